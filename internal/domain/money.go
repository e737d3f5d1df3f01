package domain

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/Rhymond/go-money"
	"github.com/shopspring/decimal"
)

// CurrencyPlaces is the number of fractional digits kept for every cash
// balance and price. Prices are rounded to it when quoted so that
// shares × price is always exact at this precision.
const CurrencyPlaces = 2

// ParseAmount parses a non-negative currency amount with at most
// CurrencyPlaces decimal places.
func ParseAmount(s string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(s))
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q", s)
	}
	if d.IsNegative() {
		return decimal.Zero, fmt.Errorf("amount must be >= 0, got %s", d)
	}
	if !d.Equal(d.Round(CurrencyPlaces)) {
		return decimal.Zero, fmt.Errorf("monetary values must have at most %d decimal places", CurrencyPlaces)
	}
	return d.Round(CurrencyPlaces), nil
}

// RoundPrice rounds a quoted price to CurrencyPlaces, half away from zero.
func RoundPrice(d decimal.Decimal) decimal.Decimal {
	return d.Round(CurrencyPlaces)
}

// Cost returns shares × price.
func Cost(price decimal.Decimal, shares int64) decimal.Decimal {
	return price.Mul(decimal.NewFromInt(shares))
}

// FormatUSD renders an amount as a US dollar string, e.g. "$9,500.00".
func FormatUSD(d decimal.Decimal) string {
	cents := d.Round(CurrencyPlaces).Shift(CurrencyPlaces).IntPart()
	return money.New(cents, money.USD).Display()
}

// ParseShares parses a share count. Only base-10 positive integers are
// accepted; fractional, zero, negative and malformed inputs all yield
// ErrInvalidQuantity.
func ParseShares(s string) (int64, error) {
	n, err := strconv.ParseInt(strings.TrimSpace(s), 10, 64)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("%w: shares must be a positive integer, got %q", ErrInvalidQuantity, s)
	}
	return n, nil
}
