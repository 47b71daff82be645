// Package jobs hosts the background worker: payment receipt emails and
// the nightly loan status refresh.
package jobs

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/smtp"
	"time"

	"github.com/hibiken/asynq"
	"github.com/jordan-wright/email"

	"github.com/sojourn-loans/sojourn/internal/loan"
	"github.com/sojourn-loans/sojourn/internal/shared"
)

// QueueDefault is the default queue name for background jobs.
const QueueDefault = "default"

// MailConfig carries SMTP settings and the operations mailbox that
// receives payment notifications.
type MailConfig struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	NotifyTo string
}

func (c MailConfig) addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func (c MailConfig) auth() smtp.Auth {
	if c.Username == "" {
		return nil
	}
	return smtp.PlainAuth("", c.Username, c.Password, c.Host)
}

// Mailer sends transactional mail for the worker.
type Mailer struct {
	cfg    MailConfig
	logger *slog.Logger
	send   func(*email.Email) error
}

// NewMailer constructs a Mailer.
func NewMailer(cfg MailConfig, logger *slog.Logger) *Mailer {
	m := &Mailer{cfg: cfg, logger: logger}
	m.send = func(e *email.Email) error {
		return e.Send(cfg.addr(), cfg.auth())
	}
	return m
}

// HandleReceiptTask emails the operations mailbox when a payment is
// recorded. Malformed payloads are dropped rather than retried.
func (m *Mailer) HandleReceiptTask(ctx context.Context, t *asynq.Task) error {
	var payload loan.ReceiptPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if m.cfg.NotifyTo == "" {
		m.logger.Warn("receipt mail skipped, no notify address configured",
			slog.Int64("borrower_id", payload.BorrowerID))
		return nil
	}

	e := email.NewEmail()
	e.From = m.cfg.From
	e.To = []string{m.cfg.NotifyTo}
	e.Subject = fmt.Sprintf("Payment received: %s (%s)", payload.BorrowerName, shared.FormatGHS(payload.Amount))
	e.Text = []byte(fmt.Sprintf(
		"Payment recorded for %s (%s).\n\nAmount: %s\nPaid at: %s\nRecorded by: %s\nRemaining balance: %s\n",
		payload.BorrowerName,
		shared.FormatPhone(payload.PhoneNumber),
		shared.FormatGHS(payload.Amount),
		payload.PaidAt.Format("02 Jan 2006"),
		payload.RecordedBy,
		shared.FormatGHS(payload.Balance),
	))

	if err := m.send(e); err != nil {
		return fmt.Errorf("send receipt mail: %w", err)
	}
	m.logger.Info("receipt mail sent",
		slog.Int64("borrower_id", payload.BorrowerID),
		slog.Float64("amount", payload.Amount),
		slog.Duration("age", time.Since(payload.PaidAt)))
	return nil
}
