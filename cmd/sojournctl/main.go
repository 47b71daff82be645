// sojournctl is an operator CLI for the sojourn API. It keeps a token
// file under the user config dir so sessions survive between runs.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/sojourn-loans/sojourn/internal/apiclient"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		fmt.Fprintln(os.Stderr, "sojournctl:", err)
		os.Exit(1)
	}
}

func run(args []string) error {
	global := flag.NewFlagSet("sojournctl", flag.ContinueOnError)
	baseURL := global.String("api", envOr("SOJOURN_API", "http://127.0.0.1:8080"), "API base URL")
	if err := global.Parse(args); err != nil {
		return err
	}
	rest := global.Args()
	if len(rest) == 0 {
		return usageError()
	}

	client := apiclient.New(*baseURL, apiclient.NewFileTokenStore(tokenPath()))
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	switch rest[0] {
	case "login":
		return cmdLogin(ctx, client, rest[1:])
	case "logout":
		return client.Logout(ctx)
	case "borrowers":
		return cmdBorrowers(ctx, client, rest[1:])
	case "borrower":
		return cmdBorrower(ctx, client, rest[1:])
	case "pay":
		return cmdPay(ctx, client, rest[1:])
	case "schedule":
		return cmdSchedule(ctx, client, rest[1:])
	default:
		return usageError()
	}
}

func usageError() error {
	return fmt.Errorf("usage: sojournctl [-api URL] <login|logout|borrowers|borrower|pay|schedule> [flags]")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func tokenPath() string {
	dir, err := os.UserConfigDir()
	if err != nil {
		dir = "."
	}
	return filepath.Join(dir, "sojournctl", "tokens.json")
}

func cmdLogin(ctx context.Context, client *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	phone := fs.String("phone", "", "phone number")
	password := fs.String("password", "", "password")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *phone == "" || *password == "" {
		return fmt.Errorf("login requires -phone and -password")
	}
	resp, err := client.Login(ctx, *phone, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s (%s)\n", resp.Name, resp.Role)
	if resp.PasswordResetRequired {
		fmt.Println("note: a password reset is required on this account")
	}
	return nil
}

func cmdBorrowers(ctx context.Context, client *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("borrowers", flag.ContinueOnError)
	search := fs.String("search", "", "name, phone or Ghana card filter")
	status := fs.String("status", "", "comma separated status filter")
	page := fs.Int("page", 0, "zero-based page number")
	size := fs.Int("size", 20, "page size")
	if err := fs.Parse(args); err != nil {
		return err
	}

	query := url.Values{}
	if *search != "" {
		query.Set("search", *search)
	}
	if *status != "" {
		query.Set("status", *status)
	}
	query.Set("page", strconv.Itoa(*page))
	query.Set("size", strconv.Itoa(*size))

	var out struct {
		Content []struct {
			ID          int64   `json:"id"`
			FullName    string  `json:"fullName"`
			PhoneNumber string  `json:"phoneNumber"`
			LoanAmount  float64 `json:"loanAmount"`
			Balance     float64 `json:"balance"`
			Status      string  `json:"status"`
		} `json:"content"`
		TotalElements int64 `json:"totalElements"`
		Number        int   `json:"number"`
		TotalPages    int   `json:"totalPages"`
	}
	if err := client.Get(ctx, "/admin/borrowers", query, &out); err != nil {
		return err
	}
	for _, b := range out.Content {
		fmt.Printf("%6d  %-28s %-14s %10.2f %10.2f  %s\n", b.ID, b.FullName, b.PhoneNumber, b.LoanAmount, b.Balance, b.Status)
	}
	fmt.Printf("page %d/%d, %d borrowers total\n", out.Number+1, out.TotalPages, out.TotalElements)
	return nil
}

func cmdBorrower(ctx context.Context, client *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("borrower", flag.ContinueOnError)
	id := fs.Int64("id", 0, "borrower id")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("borrower requires -id")
	}
	var out map[string]any
	if err := client.Get(ctx, "/admin/borrowers/"+strconv.FormatInt(*id, 10), nil, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func cmdPay(ctx context.Context, client *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("pay", flag.ContinueOnError)
	borrowerID := fs.Int64("borrower", 0, "borrower id")
	amount := fs.Float64("amount", 0, "payment amount in GHS")
	date := fs.String("date", "", "payment date (2006-01-02), defaults to today")
	note := fs.String("note", "", "optional note")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *borrowerID <= 0 || *amount <= 0 {
		return fmt.Errorf("pay requires -borrower and -amount")
	}
	body := map[string]any{
		"borrowerId": *borrowerID,
		"amountPaid": *amount,
	}
	if *date != "" {
		body["paymentDate"] = *date
	}
	if *note != "" {
		body["note"] = *note
	}
	var out map[string]any
	if err := client.Post(ctx, "/admin/payments", body, &out); err != nil {
		return err
	}
	return printJSON(out)
}

func cmdSchedule(ctx context.Context, client *apiclient.Client, args []string) error {
	fs := flag.NewFlagSet("schedule", flag.ContinueOnError)
	id := fs.Int64("id", 0, "borrower id")
	out := fs.String("out", "schedule.pdf", "output file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *id <= 0 {
		return fmt.Errorf("schedule requires -id")
	}
	pdf, err := client.Download(ctx, "/admin/borrowers/"+strconv.FormatInt(*id, 10)+"/schedule")
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, pdf, 0o644); err != nil {
		return err
	}
	fmt.Printf("wrote %s (%d bytes)\n", *out, len(pdf))
	return nil
}

func printJSON(v any) error {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(raw))
	return nil
}
