package shared

import (
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidPhone indicates the number cannot be normalized to the
// canonical Ghana format.
var ErrInvalidPhone = errors.New("invalid ghana phone number")

// NormalizePhone canonicalizes a Ghana mobile number to 233XXXXXXXXX.
// Accepted inputs: 233XXXXXXXXX, 0XXXXXXXXX and bare 9-digit numbers;
// punctuation and spacing are stripped first.
func NormalizePhone(raw string) (string, error) {
	var digits strings.Builder
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			digits.WriteRune(r)
		}
	}
	cleaned := digits.String()

	switch {
	case len(cleaned) == 12 && strings.HasPrefix(cleaned, "233"):
		return cleaned, nil
	case len(cleaned) == 10 && cleaned[0] == '0' && validNetworkPrefix(cleaned[1]):
		return "233" + cleaned[1:], nil
	case len(cleaned) == 9 && validNetworkPrefix(cleaned[0]):
		return "233" + cleaned, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidPhone, raw)
}

// FormatPhone renders a canonical number as +233 XX XXX XXXX for display.
// Non-canonical input is returned unchanged.
func FormatPhone(phone string) string {
	normalized, err := NormalizePhone(phone)
	if err != nil {
		return phone
	}
	return "+" + normalized[:3] + " " + normalized[3:5] + " " + normalized[5:8] + " " + normalized[8:]
}

// Ghana mobile numbers start with 2-5 after the country code.
func validNetworkPrefix(b byte) bool {
	return b >= '2' && b <= '5'
}
