package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jordan-wright/email"
	"github.com/stretchr/testify/require"

	"github.com/sojourn-loans/sojourn/internal/loan"
)

type stubRefresher struct {
	changed int
	err     error
	calls   int
}

func (s *stubRefresher) RefreshStatuses(context.Context) (int, error) {
	s.calls++
	return s.changed, s.err
}

func TestStatusRefreshJob(t *testing.T) {
	refresher := &stubRefresher{changed: 3}
	job := NewStatusRefreshJob(refresher, slog.Default(), nil)

	err := job.Handle(context.Background(), loan.NewStatusRefreshTask())
	require.NoError(t, err)
	require.Equal(t, 1, refresher.calls)
}

func TestStatusRefreshJobPropagatesError(t *testing.T) {
	refresher := &stubRefresher{err: errors.New("db down")}
	job := NewStatusRefreshJob(refresher, slog.Default(), nil)

	err := job.Handle(context.Background(), loan.NewStatusRefreshTask())
	require.Error(t, err)
}

func TestStatusRefreshJobUnconfigured(t *testing.T) {
	var job *StatusRefreshJob
	require.Error(t, job.Handle(context.Background(), loan.NewStatusRefreshTask()))
}

func TestReceiptMailSkipsMalformedPayload(t *testing.T) {
	mailer := NewMailer(MailConfig{NotifyTo: "ops@example.com"}, slog.Default())
	sent := 0
	mailer.send = func(*email.Email) error { sent++; return nil }

	err := mailer.HandleReceiptTask(context.Background(), asynq.NewTask(loan.TaskTypePaymentReceipt, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	require.Zero(t, sent)
}

func TestReceiptMailContent(t *testing.T) {
	mailer := NewMailer(MailConfig{From: "noreply@example.com", NotifyTo: "ops@example.com"}, slog.Default())
	var captured *email.Email
	mailer.send = func(e *email.Email) error { captured = e; return nil }

	payload, err := json.Marshal(loan.ReceiptPayload{
		BorrowerID:   7,
		BorrowerName: "Kofi Boateng",
		PhoneNumber:  "233241234567",
		Amount:       1000,
		PaidAt:       time.Date(2026, time.February, 15, 0, 0, 0, 0, time.UTC),
		RecordedBy:   "Ama",
		Balance:      2000,
	})
	require.NoError(t, err)

	err = mailer.HandleReceiptTask(context.Background(), asynq.NewTask(loan.TaskTypePaymentReceipt, payload))
	require.NoError(t, err)
	require.NotNil(t, captured)
	require.Equal(t, []string{"ops@example.com"}, captured.To)
	require.Contains(t, captured.Subject, "Kofi Boateng")
	require.Contains(t, string(captured.Text), "GHS 1,000.00")
	require.Contains(t, string(captured.Text), "GHS 2,000.00")
}

func TestReceiptMailNoNotifyAddress(t *testing.T) {
	mailer := NewMailer(MailConfig{}, slog.Default())
	sent := 0
	mailer.send = func(*email.Email) error { sent++; return nil }

	payload, err := json.Marshal(loan.ReceiptPayload{BorrowerID: 1})
	require.NoError(t, err)

	err = mailer.HandleReceiptTask(context.Background(), asynq.NewTask(loan.TaskTypePaymentReceipt, payload))
	require.NoError(t, err)
	require.Zero(t, sent)
}
