// Package timeline reconstructs a month-by-month repayment history for a
// loan from its recorded payments. The output is derived view state: it is
// recomputed on every request and never persisted.
package timeline

import (
	"sort"
	"time"
)

// Status classifies a timeline entry.
type Status string

const (
	StatusCompleted Status = "Completed"
	StatusPending   Status = "Pending"
	StatusOverdue   Status = "Overdue"
	// StatusFailed is reserved for a severity policy that is not
	// implemented yet. Reconstruct never assigns it.
	StatusFailed Status = "Failed"
)

// Kind distinguishes recorded payments from synthesized placeholders.
type Kind string

const (
	KindActual    Kind = "Actual"
	KindScheduled Kind = "Scheduled"
)

// Payment is a single recorded installment transaction. Multiple payments
// may fall in the same calendar month; they are never merged.
type Payment struct {
	Amount     float64
	Date       time.Time
	RecordedBy string
	Note       string
}

// Entry is one row of the reconstructed timeline. Actual entries carry the
// payment's own date, amount and metadata; Scheduled entries carry the
// month's anchor date and the flat monthly amount.
type Entry struct {
	StepNumber int       `json:"stepNumber"`
	Date       time.Time `json:"date"`
	Amount     float64   `json:"amount"`
	Status     Status    `json:"status"`
	Kind       Kind      `json:"kind"`
	RecordedBy string    `json:"recordedBy,omitempty"`
	Note       string    `json:"note,omitempty"`
}

const monthKeyLayout = "2006-01"

// Reconstruct builds the ordered repayment timeline for a loan.
//
// For each month from start, a month with recorded payments emits one
// Actual/Completed entry per payment in chronological order; a month
// without payments emits a single Scheduled entry, Overdue when the month
// lies strictly before today's month, Pending otherwise. Coverage extends
// beyond totalMonths when payments were recorded past the contracted
// duration. A zero start returns nil; totalMonths <= 0 degenerates to the
// coverage implied by payment history alone.
func Reconstruct(payments []Payment, start time.Time, totalMonths int, monthlyAmount float64, today time.Time) []Entry {
	if start.IsZero() {
		return nil
	}

	sorted := make([]Payment, len(payments))
	copy(sorted, payments)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].Date.Before(sorted[j].Date)
	})

	byMonth := make(map[string][]Payment)
	for _, p := range sorted {
		key := p.Date.Format(monthKeyLayout)
		byMonth[key] = append(byMonth[key], p)
	}

	months := totalMonths
	if months < 0 {
		months = 0
	}
	if len(sorted) > 0 {
		last := sorted[len(sorted)-1].Date
		if span := monthsBetween(start, last) + 1; span > months {
			months = span
		}
	}

	var entries []Entry
	step := 1
	for i := 0; i < months; i++ {
		anchor := AddMonths(start, i)
		actual, ok := byMonth[anchor.Format(monthKeyLayout)]
		if ok && len(actual) > 0 {
			for _, p := range actual {
				entries = append(entries, Entry{
					StepNumber: step,
					Date:       p.Date,
					Amount:     p.Amount,
					Status:     StatusCompleted,
					Kind:       KindActual,
					RecordedBy: p.RecordedBy,
					Note:       p.Note,
				})
				step++
			}
			continue
		}

		status := StatusPending
		if beforeMonth(anchor, today) {
			status = StatusOverdue
		}
		entries = append(entries, Entry{
			StepNumber: step,
			Date:       anchor,
			Amount:     monthlyAmount,
			Status:     status,
			Kind:       KindScheduled,
		})
		step++
	}
	return entries
}

// NextDue returns the anchor date of the first scheduled (unpaid) month, or
// the zero time when every covered month has a recorded payment.
func NextDue(entries []Entry) time.Time {
	for _, e := range entries {
		if e.Kind == KindScheduled {
			return e.Date
		}
	}
	return time.Time{}
}

// HasOverdue reports whether any scheduled month is past due.
func HasOverdue(entries []Entry) bool {
	for _, e := range entries {
		if e.Kind == KindScheduled && e.Status == StatusOverdue {
			return true
		}
	}
	return false
}

// AddMonths advances t by n calendar months keeping t's day-of-month,
// clamped to the target month's length. Go's AddDate normalizes overflow
// instead (Jan 31 + 1 month = Mar 3), which would skip short months
// entirely and corrupt the per-month grouping.
func AddMonths(t time.Time, n int) time.Time {
	year, month, day := t.Date()
	first := time.Date(year, month+time.Month(n), 1, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
	if max := daysIn(first.Year(), first.Month()); day > max {
		day = max
	}
	return time.Date(first.Year(), first.Month(), day, t.Hour(), t.Minute(), t.Second(), t.Nanosecond(), t.Location())
}

// monthsBetween counts whole calendar months from a's month to b's month,
// ignoring days.
func monthsBetween(a, b time.Time) int {
	return (b.Year()-a.Year())*12 + int(b.Month()) - int(a.Month())
}

// beforeMonth reports whether a's month is strictly before b's month.
func beforeMonth(a, b time.Time) bool {
	if a.Year() != b.Year() {
		return a.Year() < b.Year()
	}
	return a.Month() < b.Month()
}

func daysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
