package report

import (
	"context"
	"fmt"
	"html/template"
	"strings"
	"time"

	"github.com/sojourn-loans/sojourn/internal/shared"
	"github.com/sojourn-loans/sojourn/internal/timeline"
)

// ScheduleData carries everything the repayment schedule document shows.
type ScheduleData struct {
	BorrowerName   string
	PhoneNumber    string
	LoanAmount     float64
	MonthlyPayment float64
	TotalPaid      float64
	Balance        float64
	Status         string
	Entries        []timeline.Entry
	GeneratedAt    time.Time
}

// Renderer turns schedule data into a PDF via Gotenberg.
type Renderer struct {
	client *Client
}

// NewRenderer constructs a Renderer.
func NewRenderer(client *Client) *Renderer {
	return &Renderer{client: client}
}

// RenderSchedule builds the schedule HTML and converts it to PDF.
func (r *Renderer) RenderSchedule(ctx context.Context, data ScheduleData) ([]byte, error) {
	html, err := ScheduleHTML(data)
	if err != nil {
		return nil, err
	}
	return r.client.RenderHTML(ctx, html)
}

var scheduleTmpl = template.Must(template.New("schedule").Funcs(template.FuncMap{
	"money": shared.FormatGHS,
	"date":  func(t time.Time) string { return t.Format("02 Jan 2006") },
	"statusClass": func(s timeline.Status) string {
		return strings.ToLower(string(s))
	},
}).Parse(scheduleHTML))

// ScheduleHTML renders the repayment schedule document body.
func ScheduleHTML(data ScheduleData) (string, error) {
	if data.GeneratedAt.IsZero() {
		data.GeneratedAt = time.Now()
	}
	var sb strings.Builder
	if err := scheduleTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render schedule template: %w", err)
	}
	return sb.String(), nil
}

const scheduleHTML = `<!DOCTYPE html>
<html>
<head>
<meta charset="utf-8">
<title>Repayment Schedule</title>
<style>
  body { font-family: Helvetica, Arial, sans-serif; font-size: 12px; color: #1f2933; margin: 32px; }
  h1 { font-size: 20px; margin-bottom: 2px; }
  .meta { color: #52606d; margin-bottom: 18px; }
  table.summary { margin-bottom: 20px; border-collapse: collapse; }
  table.summary td { padding: 3px 18px 3px 0; }
  table.summary td.label { color: #52606d; }
  table.entries { width: 100%; border-collapse: collapse; }
  table.entries th { text-align: left; border-bottom: 2px solid #1f2933; padding: 6px 8px; }
  table.entries td { border-bottom: 1px solid #d9e2ec; padding: 6px 8px; }
  .completed { color: #0f7b41; }
  .overdue { color: #b91c1c; }
  .pending { color: #52606d; }
  .failed { color: #b91c1c; }
  .footer { margin-top: 24px; color: #829ab1; font-size: 10px; }
</style>
</head>
<body>
<h1>Repayment Schedule</h1>
<div class="meta">{{.BorrowerName}} &middot; {{.PhoneNumber}}</div>

<table class="summary">
  <tr><td class="label">Loan Amount</td><td>{{money .LoanAmount}}</td></tr>
  <tr><td class="label">Monthly Payment</td><td>{{money .MonthlyPayment}}</td></tr>
  <tr><td class="label">Total Paid</td><td>{{money .TotalPaid}}</td></tr>
  <tr><td class="label">Balance</td><td>{{money .Balance}}</td></tr>
  <tr><td class="label">Status</td><td>{{.Status}}</td></tr>
</table>

<table class="entries">
  <tr><th>#</th><th>Date</th><th>Amount</th><th>Status</th><th>Recorded By</th><th>Note</th></tr>
  {{range .Entries}}
  <tr>
    <td>{{.StepNumber}}</td>
    <td>{{date .Date}}</td>
    <td>{{money .Amount}}</td>
    <td class="{{statusClass .Status}}">{{.Status}}</td>
    <td>{{.RecordedBy}}</td>
    <td>{{.Note}}</td>
  </tr>
  {{end}}
</table>

<div class="footer">Generated {{date .GeneratedAt}}</div>
</body>
</html>`
