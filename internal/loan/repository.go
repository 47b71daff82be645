package loan

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/sojourn-loans/sojourn/internal/platform/db"
	"github.com/sojourn-loans/sojourn/internal/shared"
)

// Repository provides PostgreSQL backed persistence for borrowers, loans
// and payments.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// CreateBorrowerRecord carries everything persisted during registration.
type CreateBorrowerRecord struct {
	Input          RegisterBorrowerInput
	PasswordHash   string
	MonthlyPayment float64
	EndDate        time.Time
}

const uniqueViolation = "23505"

func mapPgError(err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
		return fmt.Errorf("%w: %s", shared.ErrDuplicate, pgErr.ConstraintName)
	}
	return err
}

// CreateBorrower registers a borrower inside one transaction: login user,
// borrower profile, loan account and guarantor.
func (r *Repository) CreateBorrower(ctx context.Context, rec CreateBorrowerRecord) (*BorrowerDetail, error) {
	in := rec.Input
	detail := &BorrowerDetail{}

	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		var userID int64
		err := tx.QueryRow(ctx, `
			INSERT INTO users (phone_number, full_name, password_hash, role, must_reset_password, created_at)
			VALUES ($1, $2, $3, 'BORROWER', TRUE, NOW())
			RETURNING id`,
			in.PhoneNumber, in.FullName, rec.PasswordHash,
		).Scan(&userID)
		if err != nil {
			return mapPgError(err)
		}

		b := Borrower{
			UserID:             userID,
			FullName:           in.FullName,
			PhoneNumber:        in.PhoneNumber,
			GhanaCardNumber:    in.GhanaCardNumber,
			ProfilePicturePath: in.ProfilePicturePath,
			HomeAddressGhana:   in.HomeAddressGhana,
			DestinationAddress: in.DestinationAddress,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO borrowers (user_id, ghana_card_number, profile_picture_path, home_address_ghana, destination_address, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id, created_at`,
			userID, in.GhanaCardNumber, in.ProfilePicturePath, in.HomeAddressGhana, in.DestinationAddress,
		).Scan(&b.ID, &b.CreatedAt)
		if err != nil {
			return mapPgError(err)
		}

		l := Loan{
			BorrowerID:     b.ID,
			Amount:         in.LoanAmount,
			MonthlyPayment: rec.MonthlyPayment,
			StartDate:      in.StartDate,
			EndDate:        rec.EndDate,
			MonthsDuration: in.MonthsDuration,
			Status:         StatusOnTrack,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO loans (borrower_id, amount, monthly_payment, total_paid, start_date, end_date, months_duration, status, created_at, updated_at)
			VALUES ($1, $2, $3, 0, $4, $5, $6, $7, NOW(), NOW())
			RETURNING id, created_at, updated_at`,
			b.ID, in.LoanAmount, rec.MonthlyPayment, nullableTime(in.StartDate), nullableTime(rec.EndDate), in.MonthsDuration, StatusOnTrack,
		).Scan(&l.ID, &l.CreatedAt, &l.UpdatedAt)
		if err != nil {
			return err
		}

		g := Guarantor{
			BorrowerID:   b.ID,
			FullName:     in.GuarantorName,
			PhoneNumber:  in.GuarantorPhone,
			Relationship: in.GuarantorRelation,
		}
		err = tx.QueryRow(ctx, `
			INSERT INTO guarantors (borrower_id, full_name, phone_number, relationship)
			VALUES ($1, $2, $3, $4)
			RETURNING id`,
			b.ID, g.FullName, g.PhoneNumber, g.Relationship,
		).Scan(&g.ID)
		if err != nil {
			return err
		}

		detail.Borrower = b
		detail.Loan = l
		detail.Guarantor = g
		return nil
	})
	if err != nil {
		return nil, err
	}
	return detail, nil
}

var sortColumns = map[string]string{
	"id":        "b.id",
	"fullName":  "u.full_name",
	"createdAt": "b.created_at",
	"startDate": "l.start_date",
	"balance":   "(l.amount - l.total_paid)",
}

// ListBorrowers returns one page of borrower summaries plus the total
// count matching the filter.
func (r *Repository) ListBorrowers(ctx context.Context, req ListBorrowersRequest) ([]BorrowerSummary, int, error) {
	var (
		conds []string
		args  []any
	)
	if req.Search != "" {
		args = append(args, "%"+req.Search+"%")
		p := fmt.Sprintf("$%d", len(args))
		conds = append(conds, fmt.Sprintf("(u.full_name ILIKE %s OR u.phone_number ILIKE %s OR b.ghana_card_number ILIKE %s)", p, p, p))
	}
	if len(req.Statuses) > 0 {
		statuses := make([]string, 0, len(req.Statuses))
		for _, s := range req.Statuses {
			statuses = append(statuses, string(s))
		}
		args = append(args, statuses)
		conds = append(conds, fmt.Sprintf("l.status = ANY($%d)", len(args)))
	}
	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	const baseFrom = ` FROM borrowers b
		JOIN users u ON u.id = b.user_id
		JOIN loans l ON l.borrower_id = b.id`

	var total int
	if err := r.pool.QueryRow(ctx, "SELECT COUNT(*)"+baseFrom+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	orderBy, ok := sortColumns[req.SortBy]
	if !ok {
		orderBy = "b.id"
	}
	dir := "DESC"
	if strings.EqualFold(req.SortDir, "asc") {
		dir = "ASC"
	}
	page := shared.NewPagination(req.Page, req.PerPage, total)
	args = append(args, page.PerPage, page.Offset())

	query := `SELECT b.id, u.full_name, u.phone_number, b.ghana_card_number,
		l.amount, l.monthly_payment, l.total_paid, l.start_date, l.end_date, l.months_duration, l.status` +
		baseFrom + where +
		fmt.Sprintf(" ORDER BY %s %s LIMIT $%d OFFSET $%d", orderBy, dir, len(args)-1, len(args))

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []BorrowerSummary
	for rows.Next() {
		var (
			s          BorrowerSummary
			start, end pgtype.Timestamptz
		)
		if err := rows.Scan(&s.ID, &s.FullName, &s.PhoneNumber, &s.GhanaCardNumber,
			&s.LoanAmount, &s.MonthlyPayment, &s.TotalPaid, &start, &end, &s.TotalMonths, &s.Status); err != nil {
			return nil, 0, err
		}
		if start.Valid {
			t := start.Time
			s.StartDate = &t
		}
		if end.Valid {
			t := end.Time
			s.EndDate = &t
		}
		s.Balance = s.LoanAmount - s.TotalPaid
		if s.Balance < 0 {
			s.Balance = 0
		}
		s.MonthsPaid = MonthsPaid(s.TotalPaid, s.MonthlyPayment)
		out = append(out, s)
	}
	return out, total, rows.Err()
}

// GetBorrowerDetail loads one borrower with loan, guarantor and payments.
func (r *Repository) GetBorrowerDetail(ctx context.Context, borrowerID int64) (*BorrowerDetail, error) {
	var (
		d          BorrowerDetail
		start, end pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `
		SELECT b.id, b.user_id, u.full_name, u.phone_number, b.ghana_card_number,
			COALESCE(b.profile_picture_path, ''), b.home_address_ghana, b.destination_address, b.created_at,
			l.id, l.amount, l.monthly_payment, l.total_paid, l.start_date, l.end_date, l.months_duration, l.status, l.created_at, l.updated_at,
			g.id, g.full_name, g.phone_number, g.relationship
		FROM borrowers b
		JOIN users u ON u.id = b.user_id
		JOIN loans l ON l.borrower_id = b.id
		JOIN guarantors g ON g.borrower_id = b.id
		WHERE b.id = $1`,
		borrowerID,
	).Scan(
		&d.Borrower.ID, &d.Borrower.UserID, &d.Borrower.FullName, &d.Borrower.PhoneNumber, &d.Borrower.GhanaCardNumber,
		&d.Borrower.ProfilePicturePath, &d.Borrower.HomeAddressGhana, &d.Borrower.DestinationAddress, &d.Borrower.CreatedAt,
		&d.Loan.ID, &d.Loan.Amount, &d.Loan.MonthlyPayment, &d.Loan.TotalPaid, &start, &end, &d.Loan.MonthsDuration, &d.Loan.Status, &d.Loan.CreatedAt, &d.Loan.UpdatedAt,
		&d.Guarantor.ID, &d.Guarantor.FullName, &d.Guarantor.PhoneNumber, &d.Guarantor.Relationship,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	if start.Valid {
		d.Loan.StartDate = start.Time
	}
	if end.Valid {
		d.Loan.EndDate = end.Time
	}
	d.Loan.BorrowerID = d.Borrower.ID
	d.Guarantor.BorrowerID = d.Borrower.ID

	payments, err := r.listPayments(ctx, d.Loan.ID)
	if err != nil {
		return nil, err
	}
	d.Payments = payments
	return &d, nil
}

// GetBorrowerDetailByUser resolves the borrower owned by a login user.
func (r *Repository) GetBorrowerDetailByUser(ctx context.Context, userID int64) (*BorrowerDetail, error) {
	var borrowerID int64
	err := r.pool.QueryRow(ctx, `SELECT id FROM borrowers WHERE user_id = $1`, userID).Scan(&borrowerID)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.GetBorrowerDetail(ctx, borrowerID)
}

func (r *Repository) listPayments(ctx context.Context, loanID int64) ([]Payment, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, loan_id, amount, paid_at, recorded_by, COALESCE(note, ''), created_at
		FROM payments
		WHERE loan_id = $1
		ORDER BY paid_at ASC, id ASC`,
		loanID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Payment
	for rows.Next() {
		var p Payment
		if err := rows.Scan(&p.ID, &p.LoanID, &p.Amount, &p.PaidAt, &p.RecordedBy, &p.Note, &p.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// CreatePayment inserts a payment and rolls the amount into the loan's
// running total atomically.
func (r *Repository) CreatePayment(ctx context.Context, loanID int64, p Payment) (*Payment, error) {
	created := p
	created.LoanID = loanID
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		err := tx.QueryRow(ctx, `
			INSERT INTO payments (loan_id, amount, paid_at, recorded_by, note, created_at)
			VALUES ($1, $2, $3, $4, $5, NOW())
			RETURNING id, created_at`,
			loanID, p.Amount, p.PaidAt, p.RecordedBy, p.Note,
		).Scan(&created.ID, &created.CreatedAt)
		if err != nil {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE loans SET total_paid = total_paid + $1, updated_at = NOW() WHERE id = $2`, p.Amount, loanID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &created, nil
}

// UpdateLoanStatus persists a newly evaluated servicing state.
func (r *Repository) UpdateLoanStatus(ctx context.Context, loanID int64, status Status) error {
	tag, err := r.pool.Exec(ctx, `UPDATE loans SET status = $1, updated_at = NOW() WHERE id = $2`, status, loanID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

// ListLoanIDs returns ids of loans that are not yet completed, for the
// nightly status refresh.
func (r *Repository) ListLoanIDs(ctx context.Context) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT id FROM loans WHERE status <> $1 ORDER BY id`, StatusCompleted)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// GetLoanWithPayments loads one loan and its payment history.
func (r *Repository) GetLoanWithPayments(ctx context.Context, loanID int64) (*Loan, []Payment, error) {
	var (
		l          Loan
		start, end pgtype.Timestamptz
	)
	err := r.pool.QueryRow(ctx, `
		SELECT id, borrower_id, amount, monthly_payment, total_paid, start_date, end_date, months_duration, status, created_at, updated_at
		FROM loans WHERE id = $1`,
		loanID,
	).Scan(&l.ID, &l.BorrowerID, &l.Amount, &l.MonthlyPayment, &l.TotalPaid, &start, &end, &l.MonthsDuration, &l.Status, &l.CreatedAt, &l.UpdatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil, shared.ErrNotFound
	}
	if err != nil {
		return nil, nil, err
	}
	if start.Valid {
		l.StartDate = start.Time
	}
	if end.Valid {
		l.EndDate = end.Time
	}
	payments, err := r.listPayments(ctx, loanID)
	if err != nil {
		return nil, nil, err
	}
	return &l, payments, nil
}

// UpdateUserPassword replaces a login password, optionally forcing a
// reset on next login.
func (r *Repository) UpdateUserPassword(ctx context.Context, userID int64, passwordHash string, mustReset bool) error {
	tag, err := r.pool.Exec(ctx, `UPDATE users SET password_hash = $1, must_reset_password = $2 WHERE id = $3`, passwordHash, mustReset, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return shared.ErrNotFound
	}
	return nil
}

func nullableTime(t time.Time) pgtype.Timestamptz {
	if t.IsZero() {
		return pgtype.Timestamptz{}
	}
	return pgtype.Timestamptz{Time: t, Valid: true}
}
