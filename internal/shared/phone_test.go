package shared

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNormalizePhone(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"233241234567", "233241234567"},
		{"0241234567", "233241234567"},
		{"241234567", "233241234567"},
		{"+233 24 123 4567", "233241234567"},
		{"024-123-4567", "233241234567"},
		{"0551112222", "233551112222"},
	}
	for _, tc := range cases {
		got, err := NormalizePhone(tc.in)
		require.NoError(t, err, tc.in)
		require.Equal(t, tc.want, got)
	}
}

func TestNormalizePhoneInvalid(t *testing.T) {
	for _, in := range []string{"", "12345", "0841234567", "0641234567", "23324123456", "abcdefghij"} {
		_, err := NormalizePhone(in)
		require.ErrorIs(t, err, ErrInvalidPhone, in)
	}
}

func TestFormatPhone(t *testing.T) {
	require.Equal(t, "+233 24 123 4567", FormatPhone("0241234567"))
	require.Equal(t, "not-a-number", FormatPhone("not-a-number"))
}
