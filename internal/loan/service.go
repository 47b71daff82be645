package loan

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"golang.org/x/crypto/bcrypt"

	"github.com/sojourn-loans/sojourn/internal/shared"
	"github.com/sojourn-loans/sojourn/internal/timeline"
)

// RepositoryPort defines data access methods for loan administration.
type RepositoryPort interface {
	CreateBorrower(ctx context.Context, rec CreateBorrowerRecord) (*BorrowerDetail, error)
	ListBorrowers(ctx context.Context, req ListBorrowersRequest) ([]BorrowerSummary, int, error)
	GetBorrowerDetail(ctx context.Context, borrowerID int64) (*BorrowerDetail, error)
	GetBorrowerDetailByUser(ctx context.Context, userID int64) (*BorrowerDetail, error)
	CreatePayment(ctx context.Context, loanID int64, p Payment) (*Payment, error)
	UpdateLoanStatus(ctx context.Context, loanID int64, status Status) error
	UpdateUserPassword(ctx context.Context, userID int64, passwordHash string, mustReset bool) error
	ListLoanIDs(ctx context.Context) ([]int64, error)
	GetLoanWithPayments(ctx context.Context, loanID int64) (*Loan, []Payment, error)
}

// AuditRecorder persists audit trail entries.
type AuditRecorder interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// TaskEnqueuer submits background tasks. *asynq.Client satisfies it.
type TaskEnqueuer interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// Service handles loan administration business logic.
type Service struct {
	logger   *slog.Logger
	repo     RepositoryPort
	cache    *Cache
	audit    AuditRecorder
	enqueuer TaskEnqueuer
	now      func() time.Time
}

// NewService builds a Service instance. Cache, audit and enqueuer may be
// nil; the corresponding side effects are skipped.
func NewService(logger *slog.Logger, repo RepositoryPort, cache *Cache, audit AuditRecorder, enqueuer TaskEnqueuer) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{logger: logger, repo: repo, cache: cache, audit: audit, enqueuer: enqueuer, now: time.Now}
}

// WithNow overrides the service clock for testing.
func (s *Service) WithNow(fn func() time.Time) {
	if fn != nil {
		s.now = fn
	}
}

// RegisterBorrower creates a borrower with their loan account and
// guarantor. The monthly installment is the flat division of the loan
// amount over the contracted duration, fixed at registration. Returns the
// created record and the generated one-time password.
func (s *Service) RegisterBorrower(ctx context.Context, in RegisterBorrowerInput) (*BorrowerDetail, string, error) {
	if in.FullName == "" {
		return nil, "", errors.New("full name required")
	}
	if in.LoanAmount <= 0 {
		return nil, "", errors.New("loan amount must be positive")
	}
	phone, err := shared.NormalizePhone(in.PhoneNumber)
	if err != nil {
		return nil, "", err
	}
	in.PhoneNumber = phone
	if in.GuarantorPhone != "" {
		if gp, err := shared.NormalizePhone(in.GuarantorPhone); err == nil {
			in.GuarantorPhone = gp
		}
	}
	if in.MonthsDuration <= 0 {
		in.MonthsDuration = DefaultMonthsDuration
	}

	tempPassword := generateTempPassword()
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return nil, "", fmt.Errorf("hash password: %w", err)
	}

	rec := CreateBorrowerRecord{
		Input:          in,
		PasswordHash:   string(hash),
		MonthlyPayment: in.LoanAmount / float64(in.MonthsDuration),
	}
	if !in.StartDate.IsZero() {
		rec.EndDate = timeline.AddMonths(in.StartDate, in.MonthsDuration)
	}

	detail, err := s.repo.CreateBorrower(ctx, rec)
	if err != nil {
		return nil, "", err
	}

	s.recordAudit(ctx, in.RegisteredBy, "borrower.register", "borrower", detail.Borrower.ID, map[string]any{
		"loan_amount": in.LoanAmount,
		"months":      in.MonthsDuration,
	})
	s.bumpCache(ctx)
	return detail, tempPassword, nil
}

// ListPage is a cached page of the borrower listing.
type ListPage struct {
	Items      []BorrowerSummary `json:"items"`
	Pagination shared.Pagination `json:"pagination"`
}

// ListBorrowers serves the admin listing through the query cache.
func (s *Service) ListBorrowers(ctx context.Context, req ListBorrowersRequest) (*ListPage, error) {
	key, err := s.cache.BuildKey(ctx, keyBorrowerList(req)...)
	if err != nil {
		return nil, err
	}
	var page ListPage
	err = s.cache.FetchJSON(ctx, key, &page, func(ctx context.Context) (any, error) {
		items, total, err := s.repo.ListBorrowers(ctx, req)
		if err != nil {
			return nil, err
		}
		return &ListPage{
			Items:      items,
			Pagination: shared.NewPagination(req.Page, req.PerPage, total),
		}, nil
	})
	if err != nil {
		return nil, err
	}
	return &page, nil
}

// DetailView bundles a borrower detail with its reconstructed timeline.
type DetailView struct {
	Detail   *BorrowerDetail
	Timeline []timeline.Entry
}

// GetBorrowerDetail loads a borrower and reconstructs the repayment
// timeline as of today. The stored status is refreshed when the
// evaluation disagrees with it.
func (s *Service) GetBorrowerDetail(ctx context.Context, borrowerID int64) (*DetailView, error) {
	detail, err := s.repo.GetBorrowerDetail(ctx, borrowerID)
	if err != nil {
		return nil, err
	}
	return s.buildDetailView(ctx, detail)
}

// GetBorrowerDetailByUser is GetBorrowerDetail keyed by the login user,
// for borrower self-service.
func (s *Service) GetBorrowerDetailByUser(ctx context.Context, userID int64) (*DetailView, error) {
	detail, err := s.repo.GetBorrowerDetailByUser(ctx, userID)
	if err != nil {
		return nil, err
	}
	return s.buildDetailView(ctx, detail)
}

func (s *Service) buildDetailView(ctx context.Context, detail *BorrowerDetail) (*DetailView, error) {
	today := s.now()
	entries := timeline.Reconstruct(TimelinePayments(detail.Payments), detail.Loan.StartDate, detail.Loan.MonthsDuration, detail.Loan.MonthlyPayment, today)

	if status := EvaluateStatus(detail.Loan, detail.Payments, today); status != detail.Loan.Status {
		if err := s.repo.UpdateLoanStatus(ctx, detail.Loan.ID, status); err != nil {
			s.logger.Warn("refresh loan status", slog.Int64("loan_id", detail.Loan.ID), slog.Any("error", err))
		} else {
			detail.Loan.Status = status
			s.bumpCache(ctx)
		}
	}
	return &DetailView{Detail: detail, Timeline: entries}, nil
}

// RecordPayment registers an installment payment, updates the loan's
// running total and servicing status, invalidates cached listings and
// enqueues a receipt notification.
func (s *Service) RecordPayment(ctx context.Context, in RecordPaymentInput) (*Payment, error) {
	if in.BorrowerID == 0 {
		return nil, errors.New("borrower ID required")
	}
	if in.Amount <= 0 {
		return nil, errors.New("amount must be positive")
	}
	if in.PaidAt.IsZero() {
		in.PaidAt = s.now()
	}

	detail, err := s.repo.GetBorrowerDetail(ctx, in.BorrowerID)
	if err != nil {
		return nil, err
	}

	payment, err := s.repo.CreatePayment(ctx, detail.Loan.ID, Payment{
		Amount:     in.Amount,
		PaidAt:     in.PaidAt,
		RecordedBy: in.RecordedBy,
		Note:       in.Note,
	})
	if err != nil {
		return nil, err
	}

	loan := detail.Loan
	loan.TotalPaid += in.Amount
	payments := append(detail.Payments, *payment)
	if status := EvaluateStatus(loan, payments, s.now()); status != detail.Loan.Status {
		if err := s.repo.UpdateLoanStatus(ctx, loan.ID, status); err != nil {
			s.logger.Warn("update loan status", slog.Int64("loan_id", loan.ID), slog.Any("error", err))
		}
	}

	s.recordAudit(ctx, in.ActorID, "payment.record", "payment", payment.ID, map[string]any{
		"borrower_id": in.BorrowerID,
		"amount":      in.Amount,
	})
	s.bumpCache(ctx)
	s.enqueueReceipt(ctx, detail, payment)
	return payment, nil
}

// ResetBorrowerPassword issues a new one-time password for the borrower's
// login and forces a change on next sign-in.
func (s *Service) ResetBorrowerPassword(ctx context.Context, borrowerID, actorID int64) (string, error) {
	detail, err := s.repo.GetBorrowerDetail(ctx, borrowerID)
	if err != nil {
		return "", err
	}
	tempPassword := generateTempPassword()
	hash, err := bcrypt.GenerateFromPassword([]byte(tempPassword), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	if err := s.repo.UpdateUserPassword(ctx, detail.Borrower.UserID, string(hash), true); err != nil {
		return "", err
	}
	s.recordAudit(ctx, actorID, "borrower.reset_password", "borrower", borrowerID, nil)
	return tempPassword, nil
}

// RefreshStatuses re-evaluates the servicing state of every open loan.
// Returns the number of loans whose status changed.
func (s *Service) RefreshStatuses(ctx context.Context) (int, error) {
	ids, err := s.repo.ListLoanIDs(ctx)
	if err != nil {
		return 0, err
	}
	changed := 0
	today := s.now()
	for _, id := range ids {
		l, payments, err := s.repo.GetLoanWithPayments(ctx, id)
		if err != nil {
			s.logger.Warn("load loan for refresh", slog.Int64("loan_id", id), slog.Any("error", err))
			continue
		}
		status := EvaluateStatus(*l, payments, today)
		if status == l.Status {
			continue
		}
		if err := s.repo.UpdateLoanStatus(ctx, id, status); err != nil {
			s.logger.Warn("update loan status", slog.Int64("loan_id", id), slog.Any("error", err))
			continue
		}
		changed++
	}
	if changed > 0 {
		s.bumpCache(ctx)
	}
	return changed, nil
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entity string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	err := s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   entity,
		EntityID: strconv.FormatInt(entityID, 10),
		Meta:     meta,
	})
	if err != nil {
		s.logger.Warn("record audit log", slog.String("action", action), slog.Any("error", err))
	}
}

func (s *Service) bumpCache(ctx context.Context) {
	if err := s.cache.Bump(ctx); err != nil {
		s.logger.Warn("bump listing cache", slog.Any("error", err))
	}
}

func (s *Service) enqueueReceipt(ctx context.Context, detail *BorrowerDetail, p *Payment) {
	if s.enqueuer == nil {
		return
	}
	task, err := NewReceiptTask(detail, p)
	if err != nil {
		s.logger.Warn("build receipt task", slog.Any("error", err))
		return
	}
	if _, err := s.enqueuer.EnqueueContext(ctx, task, asynq.MaxRetry(3)); err != nil {
		s.logger.Warn("enqueue receipt task", slog.Any("error", err))
	}
}

func generateTempPassword() string {
	return uuid.NewString()[:8]
}
