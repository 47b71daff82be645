package loan

import (
	"encoding/json"
	"time"

	"github.com/hibiken/asynq"
)

// Task types emitted by the loan module. Handlers live in the jobs
// package; defining the types here lets the service enqueue without
// depending on the worker.
const (
	TaskTypePaymentReceipt = "loan:payment_receipt"
	TaskTypeStatusRefresh  = "loan:status_refresh"
)

// ReceiptPayload describes a recorded payment for the receipt notification.
type ReceiptPayload struct {
	BorrowerID   int64     `json:"borrower_id"`
	BorrowerName string    `json:"borrower_name"`
	PhoneNumber  string    `json:"phone_number"`
	Amount       float64   `json:"amount"`
	PaidAt       time.Time `json:"paid_at"`
	RecordedBy   string    `json:"recorded_by"`
	Balance      float64   `json:"balance"`
}

// NewReceiptTask constructs the receipt notification task for a payment.
func NewReceiptTask(detail *BorrowerDetail, p *Payment) (*asynq.Task, error) {
	loan := detail.Loan
	loan.TotalPaid += p.Amount
	data, err := json.Marshal(ReceiptPayload{
		BorrowerID:   detail.Borrower.ID,
		BorrowerName: detail.Borrower.FullName,
		PhoneNumber:  detail.Borrower.PhoneNumber,
		Amount:       p.Amount,
		PaidAt:       p.PaidAt,
		RecordedBy:   p.RecordedBy,
		Balance:      loan.Balance(),
	})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypePaymentReceipt, data), nil
}

// NewStatusRefreshTask constructs the nightly status refresh task.
func NewStatusRefreshTask() *asynq.Task {
	return asynq.NewTask(TaskTypeStatusRefresh, nil)
}
