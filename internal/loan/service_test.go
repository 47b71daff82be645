package loan

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/sojourn-loans/sojourn/internal/shared"
)

type memoryRepo struct {
	nextID     int64
	borrowers  map[int64]*BorrowerDetail
	byUser     map[int64]int64
	listCalls  int
	statusSets map[int64]Status
	passwords  map[int64]string
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{
		nextID:     1,
		borrowers:  map[int64]*BorrowerDetail{},
		byUser:     map[int64]int64{},
		statusSets: map[int64]Status{},
		passwords:  map[int64]string{},
	}
}

func (m *memoryRepo) id() int64 {
	v := m.nextID
	m.nextID++
	return v
}

func (m *memoryRepo) CreateBorrower(_ context.Context, rec CreateBorrowerRecord) (*BorrowerDetail, error) {
	for _, d := range m.borrowers {
		if d.Borrower.PhoneNumber == rec.Input.PhoneNumber {
			return nil, shared.ErrDuplicate
		}
	}
	userID := m.id()
	borrowerID := m.id()
	loanID := m.id()
	detail := &BorrowerDetail{
		Borrower: Borrower{
			ID:              borrowerID,
			UserID:          userID,
			FullName:        rec.Input.FullName,
			PhoneNumber:     rec.Input.PhoneNumber,
			GhanaCardNumber: rec.Input.GhanaCardNumber,
		},
		Loan: Loan{
			ID:             loanID,
			BorrowerID:     borrowerID,
			Amount:         rec.Input.LoanAmount,
			MonthlyPayment: rec.MonthlyPayment,
			StartDate:      rec.Input.StartDate,
			EndDate:        rec.EndDate,
			MonthsDuration: rec.Input.MonthsDuration,
			Status:         StatusOnTrack,
		},
		Guarantor: Guarantor{FullName: rec.Input.GuarantorName, PhoneNumber: rec.Input.GuarantorPhone},
	}
	m.borrowers[borrowerID] = detail
	m.byUser[userID] = borrowerID
	m.passwords[userID] = rec.PasswordHash
	return detail, nil
}

func (m *memoryRepo) ListBorrowers(_ context.Context, _ ListBorrowersRequest) ([]BorrowerSummary, int, error) {
	m.listCalls++
	out := make([]BorrowerSummary, 0, len(m.borrowers))
	for _, d := range m.borrowers {
		out = append(out, BorrowerSummary{
			ID:         d.Borrower.ID,
			FullName:   d.Borrower.FullName,
			LoanAmount: d.Loan.Amount,
			TotalPaid:  d.Loan.TotalPaid,
			Balance:    d.Loan.Balance(),
			Status:     d.Loan.Status,
		})
	}
	return out, len(out), nil
}

func (m *memoryRepo) GetBorrowerDetail(_ context.Context, borrowerID int64) (*BorrowerDetail, error) {
	d, ok := m.borrowers[borrowerID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	copied := *d
	return &copied, nil
}

func (m *memoryRepo) GetBorrowerDetailByUser(ctx context.Context, userID int64) (*BorrowerDetail, error) {
	id, ok := m.byUser[userID]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return m.GetBorrowerDetail(ctx, id)
}

func (m *memoryRepo) CreatePayment(_ context.Context, loanID int64, p Payment) (*Payment, error) {
	for _, d := range m.borrowers {
		if d.Loan.ID == loanID {
			p.ID = m.id()
			p.LoanID = loanID
			d.Payments = append(d.Payments, p)
			d.Loan.TotalPaid += p.Amount
			return &p, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (m *memoryRepo) UpdateLoanStatus(_ context.Context, loanID int64, status Status) error {
	for _, d := range m.borrowers {
		if d.Loan.ID == loanID {
			d.Loan.Status = status
			m.statusSets[loanID] = status
			return nil
		}
	}
	return shared.ErrNotFound
}

func (m *memoryRepo) UpdateUserPassword(_ context.Context, userID int64, hash string, _ bool) error {
	if _, ok := m.passwords[userID]; !ok {
		return shared.ErrNotFound
	}
	m.passwords[userID] = hash
	return nil
}

func (m *memoryRepo) ListLoanIDs(_ context.Context) ([]int64, error) {
	ids := make([]int64, 0, len(m.borrowers))
	for _, d := range m.borrowers {
		if d.Loan.Status != StatusCompleted {
			ids = append(ids, d.Loan.ID)
		}
	}
	return ids, nil
}

func (m *memoryRepo) GetLoanWithPayments(_ context.Context, loanID int64) (*Loan, []Payment, error) {
	for _, d := range m.borrowers {
		if d.Loan.ID == loanID {
			l := d.Loan
			return &l, append([]Payment(nil), d.Payments...), nil
		}
	}
	return nil, nil, shared.ErrNotFound
}

func newTestService(t *testing.T) (*Service, *memoryRepo) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	repo := newMemoryRepo()
	svc := NewService(nil, repo, NewCache(client, time.Minute), nil, nil)
	return svc, repo
}

func registerTestBorrower(t *testing.T, svc *Service, start time.Time) *BorrowerDetail {
	t.Helper()
	detail, _, err := svc.RegisterBorrower(context.Background(), RegisterBorrowerInput{
		FullName:       "Kofi Boateng",
		PhoneNumber:    "0241234567",
		LoanAmount:     12000,
		MonthsDuration: 12,
		StartDate:      start,
	})
	require.NoError(t, err)
	return detail
}

func TestRegisterBorrowerDefaults(t *testing.T) {
	svc, _ := newTestService(t)
	start := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)

	detail, tempPassword, err := svc.RegisterBorrower(context.Background(), RegisterBorrowerInput{
		FullName:    "Akosua Mensah",
		PhoneNumber: "024 987 6543",
		LoanAmount:  6000,
		StartDate:   start,
	})
	require.NoError(t, err)
	require.Len(t, tempPassword, 8)

	// Duration defaults to twelve months and the installment is the flat
	// division of principal over duration.
	require.Equal(t, 12, detail.Loan.MonthsDuration)
	require.InDelta(t, 500, detail.Loan.MonthlyPayment, 0.001)
	require.Equal(t, start.AddDate(1, 0, 0), detail.Loan.EndDate)
	require.Equal(t, "233249876543", detail.Borrower.PhoneNumber)
	require.Equal(t, StatusOnTrack, detail.Loan.Status)
}

func TestRegisterBorrowerValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, _, err := svc.RegisterBorrower(context.Background(), RegisterBorrowerInput{PhoneNumber: "0241234567", LoanAmount: 100})
	require.Error(t, err)

	_, _, err = svc.RegisterBorrower(context.Background(), RegisterBorrowerInput{FullName: "A", PhoneNumber: "0241234567"})
	require.Error(t, err)

	_, _, err = svc.RegisterBorrower(context.Background(), RegisterBorrowerInput{FullName: "A", PhoneNumber: "12", LoanAmount: 100})
	require.ErrorIs(t, err, shared.ErrInvalidPhone)
}

func TestRegisterBorrowerDuplicatePhone(t *testing.T) {
	svc, _ := newTestService(t)
	start := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	registerTestBorrower(t, svc, start)

	_, _, err := svc.RegisterBorrower(context.Background(), RegisterBorrowerInput{
		FullName:    "Other Person",
		PhoneNumber: "0241234567",
		LoanAmount:  500,
	})
	require.ErrorIs(t, err, shared.ErrDuplicate)
}

func TestListBorrowersCachesPages(t *testing.T) {
	svc, repo := newTestService(t)
	registerTestBorrower(t, svc, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))

	req := ListBorrowersRequest{Page: 1, PerPage: 20}
	page, err := svc.ListBorrowers(context.Background(), req)
	require.NoError(t, err)
	require.Len(t, page.Items, 1)
	require.Equal(t, 1, repo.listCalls)

	// Second identical query is served from cache.
	_, err = svc.ListBorrowers(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)
}

func TestRecordPaymentInvalidatesListingCache(t *testing.T) {
	svc, repo := newTestService(t)
	svc.WithNow(func() time.Time { return time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC) })
	detail := registerTestBorrower(t, svc, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))

	req := ListBorrowersRequest{Page: 1, PerPage: 20}
	_, err := svc.ListBorrowers(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 1, repo.listCalls)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{
		BorrowerID: detail.Borrower.ID,
		Amount:     1000,
		RecordedBy: "Ama",
	})
	require.NoError(t, err)

	// The version bump forces a reload on the next listing.
	page, err := svc.ListBorrowers(context.Background(), req)
	require.NoError(t, err)
	require.Equal(t, 2, repo.listCalls)
	require.InDelta(t, 1000, page.Items[0].TotalPaid, 0.001)
}

func TestRecordPaymentValidation(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{Amount: 100})
	require.Error(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{BorrowerID: 1, Amount: 0})
	require.Error(t, err)

	_, err = svc.RecordPayment(context.Background(), RecordPaymentInput{BorrowerID: 99, Amount: 100})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRecordPaymentCompletesLoan(t *testing.T) {
	svc, repo := newTestService(t)
	svc.WithNow(func() time.Time { return time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC) })
	detail := registerTestBorrower(t, svc, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))

	_, err := svc.RecordPayment(context.Background(), RecordPaymentInput{
		BorrowerID: detail.Borrower.ID,
		Amount:     12000,
	})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, repo.statusSets[detail.Loan.ID])
}

func TestGetBorrowerDetailRefreshesStaleStatus(t *testing.T) {
	svc, repo := newTestService(t)
	detail := registerTestBorrower(t, svc, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))

	// Two months later with no payments the stored On Track status is stale.
	svc.WithNow(func() time.Time { return time.Date(2026, time.March, 10, 0, 0, 0, 0, time.UTC) })

	view, err := svc.GetBorrowerDetail(context.Background(), detail.Borrower.ID)
	require.NoError(t, err)
	require.Equal(t, StatusDelayed, view.Detail.Loan.Status)
	require.Equal(t, StatusDelayed, repo.statusSets[detail.Loan.ID])
	require.Len(t, view.Timeline, 12)
}

func TestResetBorrowerPassword(t *testing.T) {
	svc, repo := newTestService(t)
	detail := registerTestBorrower(t, svc, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))

	tempPassword, err := svc.ResetBorrowerPassword(context.Background(), detail.Borrower.ID, 1)
	require.NoError(t, err)
	require.Len(t, tempPassword, 8)

	hash := repo.passwords[detail.Borrower.UserID]
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(hash), []byte(tempPassword)))

	_, err = svc.ResetBorrowerPassword(context.Background(), 99, 1)
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRefreshStatuses(t *testing.T) {
	svc, repo := newTestService(t)
	svc.WithNow(func() time.Time { return time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC) })
	detail := registerTestBorrower(t, svc, time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC))

	changed, err := svc.RefreshStatuses(context.Background())
	require.NoError(t, err)
	require.Zero(t, changed)

	// Move past the first unpaid month.
	svc.WithNow(func() time.Time { return time.Date(2026, time.March, 1, 0, 0, 0, 0, time.UTC) })
	changed, err = svc.RefreshStatuses(context.Background())
	require.NoError(t, err)
	require.Equal(t, 1, changed)
	require.Equal(t, StatusDelayed, repo.statusSets[detail.Loan.ID])
}

func TestEvaluateStatus(t *testing.T) {
	start := time.Date(2026, time.January, 15, 0, 0, 0, 0, time.UTC)
	l := Loan{Amount: 3000, MonthlyPayment: 1000, MonthsDuration: 3, StartDate: start}

	today := time.Date(2026, time.January, 20, 0, 0, 0, 0, time.UTC)
	require.Equal(t, StatusOnTrack, EvaluateStatus(l, nil, today))

	today = time.Date(2026, time.February, 20, 0, 0, 0, 0, time.UTC)
	require.Equal(t, StatusDelayed, EvaluateStatus(l, nil, today))

	paid := l
	paid.TotalPaid = 3000
	require.Equal(t, StatusCompleted, EvaluateStatus(paid, nil, today))

	// An undisbursed loan has no schedule to fall behind on.
	require.Equal(t, StatusOnTrack, EvaluateStatus(Loan{Amount: 100}, nil, today))
}
