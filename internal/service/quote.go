package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/quote"
)

// QuoteService normalizes symbols and bounds every provider call.
type QuoteService struct {
	provider quote.Provider
	timeout  time.Duration
	logger   *zap.Logger
}

// NewQuoteService creates a new QuoteService. A non-positive timeout
// leaves lookups bounded only by the caller's context.
func NewQuoteService(provider quote.Provider, timeout time.Duration, logger *zap.Logger) *QuoteService {
	return &QuoteService{
		provider: provider,
		timeout:  timeout,
		logger:   logger,
	}
}

// Lookup returns the current quote for symbol with its price rounded to
// cents. Unknown symbols, provider failures, and non-positive prices all
// yield domain.ErrInvalidSymbol.
func (s *QuoteService) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return domain.Quote{}, err
	}

	if s.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.timeout)
		defer cancel()
	}

	q, err := s.provider.Lookup(ctx, sym)
	if err != nil {
		if !errors.Is(err, quote.ErrNotFound) {
			s.logger.Warn("quote lookup failed", zap.String("symbol", sym), zap.Error(err))
		}
		return domain.Quote{}, fmt.Errorf("%w: %s", domain.ErrInvalidSymbol, sym)
	}

	q.Symbol = sym
	q.Price = domain.RoundPrice(q.Price)
	if !q.Price.IsPositive() {
		return domain.Quote{}, fmt.Errorf("%w: %s has no tradable price", domain.ErrInvalidSymbol, sym)
	}
	if q.Name == "" {
		q.Name = sym
	}
	return q, nil
}
