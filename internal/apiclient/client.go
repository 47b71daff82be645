// Package apiclient is a Go client for the sojourn HTTP API. It injects
// bearer tokens, refreshes them transparently on 401 responses and
// retries the original request once with the new credential.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/sojourn-loans/sojourn/internal/shared"
)

// Client talks to the sojourn API.
type Client struct {
	baseURL string
	http    *http.Client
	store   TokenStore
	refresh singleflight.Group
}

// New constructs a Client for the given base URL. A nil store defaults
// to an in-memory one.
func New(baseURL string, store TokenStore) *Client {
	if store == nil {
		store = &MemoryTokenStore{}
	}
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		store:   store,
	}
}

// APIError is a non-2xx response from the server, carrying the RFC 7807
// problem detail when one was returned.
type APIError struct {
	StatusCode int
	Title      string
	Detail     string
}

func (e *APIError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("api: %d %s: %s", e.StatusCode, e.Title, e.Detail)
	}
	return fmt.Sprintf("api: %d %s", e.StatusCode, e.Title)
}

// LoginResponse mirrors the server's login payload.
type LoginResponse struct {
	AccessToken           string `json:"accessToken"`
	RefreshToken          string `json:"refreshToken"`
	Role                  string `json:"role"`
	Name                  string `json:"name"`
	ExpiresIn             int64  `json:"expiresIn"`
	PasswordResetRequired bool   `json:"passwordResetRequired"`
}

// Login authenticates and stores the resulting token pair.
func (c *Client) Login(ctx context.Context, phone, password string) (*LoginResponse, error) {
	var out LoginResponse
	err := c.do(ctx, http.MethodPost, "/auth/login", map[string]string{
		"phoneNumber": phone,
		"password":    password,
	}, &out, false)
	if err != nil {
		return nil, err
	}
	if err := c.store.Save(Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}); err != nil {
		return nil, err
	}
	return &out, nil
}

// Logout revokes the stored refresh token and clears local state.
func (c *Client) Logout(ctx context.Context) error {
	tokens, err := c.store.Load()
	if err != nil {
		return err
	}
	if tokens.RefreshToken != "" {
		_ = c.do(ctx, http.MethodPost, "/auth/logout", map[string]string{
			"refreshToken": tokens.RefreshToken,
		}, nil, false)
	}
	return c.store.Clear()
}

// Get performs an authenticated GET and decodes the JSON response.
func (c *Client) Get(ctx context.Context, path string, query url.Values, out any) error {
	if len(query) > 0 {
		path += "?" + query.Encode()
	}
	return c.do(ctx, http.MethodGet, path, nil, out, true)
}

// Post performs an authenticated POST with a JSON body.
func (c *Client) Post(ctx context.Context, path string, body, out any) error {
	return c.do(ctx, http.MethodPost, path, body, out, true)
}

// Download performs an authenticated GET and returns the raw bytes,
// for binary responses such as PDFs.
func (c *Client) Download(ctx context.Context, path string) ([]byte, error) {
	resp, err := c.send(ctx, http.MethodGet, path, nil, true)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, decodeProblem(resp)
	}
	return io.ReadAll(resp.Body)
}

func (c *Client) do(ctx context.Context, method, path string, body, out any, authed bool) error {
	resp, err := c.send(ctx, method, path, body, authed)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return decodeProblem(resp)
	}
	if out == nil || resp.StatusCode == http.StatusNoContent {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// send issues the request, refreshing the access token and retrying
// once when the server answers 401.
func (c *Client) send(ctx context.Context, method, path string, body any, authed bool) (*http.Response, error) {
	resp, err := c.issue(ctx, method, path, body, authed)
	if err != nil {
		return nil, err
	}
	if !authed || resp.StatusCode != http.StatusUnauthorized {
		return resp, nil
	}
	resp.Body.Close()

	if err := c.refreshTokens(ctx); err != nil {
		return nil, err
	}
	return c.issue(ctx, method, path, body, authed)
}

func (c *Client) issue(ctx context.Context, method, path string, body any, authed bool) (*http.Response, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if authed {
		tokens, err := c.store.Load()
		if err != nil {
			return nil, err
		}
		if tokens.AccessToken != "" {
			req.Header.Set("Authorization", "Bearer "+tokens.AccessToken)
		}
	}
	return c.http.Do(req)
}

// refreshTokens exchanges the stored refresh token for a new pair.
// Concurrent 401s collapse into a single refresh call; every waiter
// shares its outcome. A failed refresh clears local tokens so the
// caller is forced back through login.
func (c *Client) refreshTokens(ctx context.Context) error {
	result := c.refresh.DoChan("refresh", func() (any, error) {
		tokens, err := c.store.Load()
		if err != nil {
			return nil, err
		}
		if tokens.RefreshToken == "" {
			return nil, shared.ErrTokenExpired
		}

		var out struct {
			AccessToken  string `json:"accessToken"`
			RefreshToken string `json:"refreshToken"`
		}
		err = c.do(ctx, http.MethodPost, "/auth/refresh", map[string]string{
			"refreshToken": tokens.RefreshToken,
		}, &out, false)
		if err != nil {
			_ = c.store.Clear()
			return nil, fmt.Errorf("%w: session expired, log in again", shared.ErrTokenExpired)
		}
		next := Tokens{AccessToken: out.AccessToken, RefreshToken: out.RefreshToken}
		if err := c.store.Save(next); err != nil {
			return nil, err
		}
		return nil, nil
	})
	select {
	case <-ctx.Done():
		return ctx.Err()
	case res := <-result:
		return res.Err
	}
}

func decodeProblem(resp *http.Response) error {
	apiErr := &APIError{StatusCode: resp.StatusCode, Title: http.StatusText(resp.StatusCode)}
	var problem struct {
		Title  string `json:"title"`
		Detail string `json:"detail"`
	}
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<16)).Decode(&problem); err == nil {
		if problem.Title != "" {
			apiErr.Title = problem.Title
		}
		apiErr.Detail = problem.Detail
	}
	return apiErr
}
