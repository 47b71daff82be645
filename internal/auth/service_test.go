package auth

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

type stubRepo struct {
	users map[int64]*User
}

func (s *stubRepo) FindByPhone(_ context.Context, phone string) (*User, error) {
	for _, u := range s.users {
		if u.PhoneNumber == phone {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(_ context.Context, id int64) (*User, error) {
	u, ok := s.users[id]
	if !ok {
		return nil, shared.ErrNotFound
	}
	return u, nil
}

func (s *stubRepo) UpdatePassword(_ context.Context, userID int64, hash string, mustReset bool) error {
	u, ok := s.users[userID]
	if !ok {
		return shared.ErrNotFound
	}
	u.PasswordHash = hash
	u.MustResetPassword = mustReset
	return nil
}

func newTestService(t *testing.T) (*Service, *stubRepo, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	hash, err := bcrypt.GenerateFromPassword([]byte("correct horse"), bcrypt.MinCost)
	require.NoError(t, err)

	repo := &stubRepo{users: map[int64]*User{
		1: {
			ID:           1,
			PhoneNumber:  "233241234567",
			FullName:     "Akosua Mensah",
			PasswordHash: string(hash),
			Role:         shared.RoleAdmin,
			IsActive:     true,
		},
	}}
	svc := NewService(repo, client, Config{JWTSecret: "test-secret"})
	return svc, repo, mr
}

func TestLoginIssuesTokenPair(t *testing.T) {
	svc, _, mr := newTestService(t)
	ctx := context.Background()

	user, pair, err := svc.Login(ctx, "0241234567", "correct horse")
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.NotEmpty(t, pair.AccessToken)
	require.NotEmpty(t, pair.RefreshToken)
	require.Equal(t, int64((15 * time.Minute).Seconds()), pair.ExpiresIn)

	// Refresh token is persisted against the user id.
	stored, err := mr.Get(refreshKeyPrefix + pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, "1", stored)

	identity, err := svc.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)
	require.Equal(t, int64(1), identity.UserID)
	require.Equal(t, shared.RoleAdmin, identity.Role)
	require.Equal(t, "Akosua Mensah", identity.FullName)
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.Login(ctx, "0241234567", "wrong")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	_, _, err = svc.Login(ctx, "0209999999", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	repo.users[1].IsActive = false
	_, _, err = svc.Login(ctx, "0241234567", "correct horse")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)
}

func TestRefreshRotatesToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "0241234567", "correct horse")
	require.NoError(t, err)

	user, next, err := svc.Refresh(ctx, pair.RefreshToken)
	require.NoError(t, err)
	require.Equal(t, int64(1), user.ID)
	require.NotEqual(t, pair.RefreshToken, next.RefreshToken)

	// The presented token was consumed; replaying it must fail.
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, shared.ErrTokenExpired)

	// The rotated token works exactly once more.
	_, _, err = svc.Refresh(ctx, next.RefreshToken)
	require.NoError(t, err)
}

func TestRefreshUnknownToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	_, _, err := svc.Refresh(context.Background(), "nope")
	require.ErrorIs(t, err, shared.ErrTokenExpired)
}

func TestLogoutRevokesRefreshToken(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	_, pair, err := svc.Login(ctx, "0241234567", "correct horse")
	require.NoError(t, err)

	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
	_, _, err = svc.Refresh(ctx, pair.RefreshToken)
	require.ErrorIs(t, err, shared.ErrTokenExpired)

	// Logging out twice is harmless.
	require.NoError(t, svc.Logout(ctx, pair.RefreshToken))
}

func TestParseAccessTokenExpiry(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	base := time.Date(2026, time.March, 1, 9, 0, 0, 0, time.UTC)
	svc.WithNow(func() time.Time { return base })

	_, pair, err := svc.Login(ctx, "0241234567", "correct horse")
	require.NoError(t, err)

	_, err = svc.ParseAccessToken(pair.AccessToken)
	require.NoError(t, err)

	svc.WithNow(func() time.Time { return base.Add(16 * time.Minute) })
	_, err = svc.ParseAccessToken(pair.AccessToken)
	require.ErrorIs(t, err, shared.ErrTokenExpired)
}

func TestChangePassword(t *testing.T) {
	svc, repo, _ := newTestService(t)
	ctx := context.Background()

	err := svc.ChangePassword(ctx, 1, "wrong", "brand new pass")
	require.ErrorIs(t, err, shared.ErrInvalidCredentials)

	err = svc.ChangePassword(ctx, 1, "correct horse", "short")
	require.Error(t, err)

	err = svc.ChangePassword(ctx, 1, "correct horse", "brand new pass")
	require.NoError(t, err)
	require.False(t, repo.users[1].MustResetPassword)
	require.NoError(t, bcrypt.CompareHashAndPassword([]byte(repo.users[1].PasswordHash), []byte("brand new pass")))
}
