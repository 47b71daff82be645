package loan

import (
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/require"

	"github.com/sojourn-loans/sojourn/internal/shared"
)

func TestMapPgErrorUniqueViolation(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "users_phone_number_key"}
	err := mapPgError(fmt.Errorf("insert user: %w", pgErr))
	require.ErrorIs(t, err, shared.ErrDuplicate)
	require.Contains(t, err.Error(), "users_phone_number_key")
}

func TestMapPgErrorPassesOtherErrorsThrough(t *testing.T) {
	fk := fmt.Errorf("insert loan: %w", &pgconn.PgError{Code: "23503"})
	require.Equal(t, fk, mapPgError(fk))
	require.NotErrorIs(t, mapPgError(fk), shared.ErrDuplicate)

	plain := errors.New("connection reset")
	require.Equal(t, plain, mapPgError(plain))
}
