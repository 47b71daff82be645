package shared

import (
	"golang.org/x/text/language"
	"golang.org/x/text/message"
)

var ghsPrinter = message.NewPrinter(language.English)

// FormatGHS renders an amount as Ghana cedis for documents and emails,
// e.g. "GHS 1,250.00".
func FormatGHS(amount float64) string {
	return ghsPrinter.Sprintf("GHS %.2f", amount)
}
