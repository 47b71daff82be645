// Package portal serves the borrower's own dashboard and schedule.
package portal

import (
	"context"
	"time"

	"github.com/sojourn-loans/sojourn/internal/loan"
	"github.com/sojourn-loans/sojourn/internal/timeline"
)

// DetailLoader resolves the borrower record owned by a login user.
type DetailLoader interface {
	GetBorrowerDetailByUser(ctx context.Context, userID int64) (*loan.DetailView, error)
}

// Service assembles the borrower dashboard from loan data.
type Service struct {
	loans DetailLoader
}

// NewService builds a Service instance.
func NewService(loans DetailLoader) *Service {
	return &Service{loans: loans}
}

// PaymentHistoryItem is one row of the borrower's payment history.
type PaymentHistoryItem struct {
	Amount     float64   `json:"amount"`
	Date       time.Time `json:"date"`
	RecordedBy string    `json:"recordedBy"`
}

// Dashboard is the borrower's self-service view.
type Dashboard struct {
	FullName           string               `json:"fullName"`
	PhoneNumber        string               `json:"phoneNumber"`
	HomeAddressGhana   string               `json:"homeAddressGhana"`
	DestinationAddress string               `json:"destinationAddress"`
	LoanAmount         float64              `json:"loanAmount"`
	MonthlyPayment     float64              `json:"monthlyPayment"`
	TotalPaid          float64              `json:"totalPaid"`
	Balance            float64              `json:"balance"`
	StartDate          *time.Time           `json:"startDate"`
	NextDueDate        *time.Time           `json:"nextDueDate"`
	EndDate            *time.Time           `json:"endDate"`
	TotalMonths        int                  `json:"totalMonths"`
	MonthsPaid         int                  `json:"monthsPaid"`
	MonthsRemaining    int                  `json:"monthsRemaining"`
	Status             loan.Status          `json:"status"`
	GuarantorName      string               `json:"guarantorName"`
	GuarantorPhone     string               `json:"guarantorPhone"`
	PaymentHistory     []PaymentHistoryItem `json:"paymentHistory"`
	Timeline           []timeline.Entry     `json:"timeline"`
}

// GetDashboard builds the dashboard for the authenticated borrower.
func (s *Service) GetDashboard(ctx context.Context, userID int64) (*Dashboard, error) {
	view, err := s.loans.GetBorrowerDetailByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return buildDashboard(view), nil
}

// GetScheduleView returns the detail view used for the borrower's own
// schedule PDF.
func (s *Service) GetScheduleView(ctx context.Context, userID int64) (*loan.DetailView, error) {
	return s.loans.GetBorrowerDetailByUser(ctx, userID)
}

func buildDashboard(view *loan.DetailView) *Dashboard {
	d := view.Detail
	monthsPaid := loan.MonthsPaid(d.Loan.TotalPaid, d.Loan.MonthlyPayment)
	remaining := d.Loan.MonthsDuration - monthsPaid
	if remaining < 0 {
		remaining = 0
	}

	dash := &Dashboard{
		FullName:           d.Borrower.FullName,
		PhoneNumber:        d.Borrower.PhoneNumber,
		HomeAddressGhana:   d.Borrower.HomeAddressGhana,
		DestinationAddress: d.Borrower.DestinationAddress,
		LoanAmount:         d.Loan.Amount,
		MonthlyPayment:     d.Loan.MonthlyPayment,
		TotalPaid:          d.Loan.TotalPaid,
		Balance:            d.Loan.Balance(),
		TotalMonths:        d.Loan.MonthsDuration,
		MonthsPaid:         monthsPaid,
		MonthsRemaining:    remaining,
		Status:             d.Loan.Status,
		GuarantorName:      d.Guarantor.FullName,
		GuarantorPhone:     d.Guarantor.PhoneNumber,
		PaymentHistory:     []PaymentHistoryItem{},
		Timeline:           view.Timeline,
	}
	if !d.Loan.StartDate.IsZero() {
		t := d.Loan.StartDate
		dash.StartDate = &t
	}
	if !d.Loan.EndDate.IsZero() {
		t := d.Loan.EndDate
		dash.EndDate = &t
	}
	if next := timeline.NextDue(view.Timeline); !next.IsZero() {
		dash.NextDueDate = &next
	}
	for _, p := range d.Payments {
		dash.PaymentHistory = append(dash.PaymentHistory, PaymentHistoryItem{
			Amount:     p.Amount,
			Date:       p.PaidAt,
			RecordedBy: p.RecordedBy,
		})
	}
	if dash.Timeline == nil {
		dash.Timeline = []timeline.Entry{}
	}
	return dash
}
