package domain

import (
	"fmt"
	"regexp"
	"strings"
)

// symbolRegex admits exchange tickers as well as index (^GSPC), class
// (BRK.B, BF-B) and currency (EURUSD=X) forms.
var symbolRegex = regexp.MustCompile(`^[A-Z0-9.\-^=]{1,12}$`)

// NormalizeSymbol trims and upper-cases a ticker so that lookups are
// case-insensitive and stored symbols are canonical.
func NormalizeSymbol(s string) (string, error) {
	symbol := strings.ToUpper(strings.TrimSpace(s))
	if !symbolRegex.MatchString(symbol) {
		return "", fmt.Errorf("%w: %q", ErrInvalidSymbol, s)
	}
	return symbol, nil
}
