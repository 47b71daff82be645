// Package loan implements borrower and repayment administration.
package loan

import (
	"time"

	"github.com/sojourn-loans/sojourn/internal/timeline"
)

// Status enumerates loan servicing states.
type Status string

const (
	StatusOnTrack   Status = "On Track"
	StatusDelayed   Status = "Delayed"
	StatusCompleted Status = "Completed"
)

// DefaultMonthsDuration applies when a registration omits the contracted
// repayment duration.
const DefaultMonthsDuration = 12

// Borrower holds the traveller's identity and contact details.
type Borrower struct {
	ID                 int64
	UserID             int64
	FullName           string
	PhoneNumber        string
	GhanaCardNumber    string
	ProfilePicturePath string
	HomeAddressGhana   string
	DestinationAddress string
	CreatedAt          time.Time
}

// Loan is the financial record for one borrower. StartDate is the zero
// time until the loan is disbursed.
type Loan struct {
	ID             int64
	BorrowerID     int64
	Amount         float64
	MonthlyPayment float64
	TotalPaid      float64
	StartDate      time.Time
	EndDate        time.Time
	MonthsDuration int
	Status         Status
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// Balance returns the outstanding principal, floored at zero.
func (l Loan) Balance() float64 {
	if b := l.Amount - l.TotalPaid; b > 0 {
		return b
	}
	return 0
}

// Guarantor vouches for a borrower.
type Guarantor struct {
	ID           int64
	BorrowerID   int64
	FullName     string
	PhoneNumber  string
	Relationship string
}

// Payment is one recorded installment transaction.
type Payment struct {
	ID         int64
	LoanID     int64
	Amount     float64
	PaidAt     time.Time
	RecordedBy string
	Note       string
	CreatedAt  time.Time
}

// BorrowerSummary is one row of the admin listing.
type BorrowerSummary struct {
	ID              int64      `json:"id"`
	FullName        string     `json:"fullName"`
	PhoneNumber     string     `json:"phoneNumber"`
	GhanaCardNumber string     `json:"ghanaCardNumber"`
	LoanAmount      float64    `json:"loanAmount"`
	MonthlyPayment  float64    `json:"monthlyPayment"`
	TotalPaid       float64    `json:"totalPaid"`
	Balance         float64    `json:"balance"`
	StartDate       *time.Time `json:"startDate"`
	EndDate         *time.Time `json:"endDate"`
	MonthsPaid      int        `json:"monthsPaid"`
	TotalMonths     int        `json:"totalMonths"`
	Status          Status     `json:"status"`
}

// BorrowerDetail is the full admin view of one borrower.
type BorrowerDetail struct {
	Borrower  Borrower
	Loan      Loan
	Guarantor Guarantor
	Payments  []Payment
}

// RegisterBorrowerInput captures a new borrower registration.
type RegisterBorrowerInput struct {
	FullName           string
	PhoneNumber        string
	GhanaCardNumber    string
	HomeAddressGhana   string
	DestinationAddress string
	ProfilePicturePath string
	LoanAmount         float64
	MonthsDuration     int
	StartDate          time.Time
	GuarantorName      string
	GuarantorPhone     string
	GuarantorRelation  string
	RegisteredBy       int64
}

// RecordPaymentInput captures a payment against a borrower's loan.
type RecordPaymentInput struct {
	BorrowerID int64
	Amount     float64
	PaidAt     time.Time
	Note       string
	RecordedBy string
	ActorID    int64
}

// ListBorrowersRequest filters the admin listing.
type ListBorrowersRequest struct {
	Search   string
	Statuses []Status
	Page     int
	PerPage  int
	SortBy   string
	SortDir  string
}

// EvaluateStatus derives the servicing state of a loan from its payment
// history as of today. A loan is Completed once fully repaid, Delayed when
// the reconstructed timeline contains any overdue scheduled month, and On
// Track otherwise.
func EvaluateStatus(l Loan, payments []Payment, today time.Time) Status {
	if l.Amount > 0 && l.TotalPaid >= l.Amount {
		return StatusCompleted
	}
	entries := timeline.Reconstruct(TimelinePayments(payments), l.StartDate, l.MonthsDuration, l.MonthlyPayment, today)
	if timeline.HasOverdue(entries) {
		return StatusDelayed
	}
	return StatusOnTrack
}

// TimelinePayments converts stored payments into reconstruction input.
func TimelinePayments(payments []Payment) []timeline.Payment {
	out := make([]timeline.Payment, 0, len(payments))
	for _, p := range payments {
		out = append(out, timeline.Payment{
			Amount:     p.Amount,
			Date:       p.PaidAt,
			RecordedBy: p.RecordedBy,
			Note:       p.Note,
		})
	}
	return out
}

// MonthsPaid counts fully covered installments from the amount repaid.
func MonthsPaid(totalPaid, monthlyPayment float64) int {
	if monthlyPayment <= 0 {
		return 0
	}
	return int(totalPaid / monthlyPayment)
}
