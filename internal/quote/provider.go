// Package quote looks up current market prices for ticker symbols.
package quote

import (
	"context"
	"errors"

	"github.com/efreitasn/finance/internal/domain"
)

// ErrNotFound is returned when a provider has no quote for a symbol.
var ErrNotFound = errors.New("quote not found")

// Provider returns the current name and price for a symbol. Symbols are
// passed already normalized. Implementations must not cache: every call
// reflects the market at call time.
type Provider interface {
	Lookup(ctx context.Context, symbol string) (domain.Quote, error)
}
