package service

import (
	"context"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/store"
)

// maxConcurrentLookups bounds the quote requests in flight for one valuation.
const maxConcurrentLookups = 8

// PortfolioService aggregates positions from the ledger and values them at
// current quotes. Nothing is cached: every call reads the ledger and asks
// the provider again.
type PortfolioService struct {
	store  store.Store
	quotes *QuoteService
	logger *zap.Logger
}

// NewPortfolioService creates a new PortfolioService.
func NewPortfolioService(st store.Store, quotes *QuoteService, logger *zap.Logger) *PortfolioService {
	return &PortfolioService{
		store:  st,
		quotes: quotes,
		logger: logger,
	}
}

// Positions returns every symbol the user holds a positive amount of,
// ordered by symbol.
func (s *PortfolioService) Positions(ctx context.Context, userID int64) ([]domain.Position, error) {
	return s.store.Positions(ctx, userID)
}

// Position returns the user's share total for symbol; zero when not held.
func (s *PortfolioService) Position(ctx context.Context, userID int64, symbol string) (int64, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return 0, err
	}
	return s.store.Position(ctx, userID, sym)
}

// History returns the user's transactions, newest first.
func (s *PortfolioService) History(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	return s.store.History(ctx, userID)
}

// Valuation prices every position at its current quote. Positions whose
// quote cannot be obtained are left out of both holdings and total.
func (s *PortfolioService) Valuation(ctx context.Context, userID int64) (domain.Valuation, error) {
	user, err := s.store.GetUser(ctx, userID)
	if err != nil {
		return domain.Valuation{}, err
	}
	positions, err := s.store.Positions(ctx, userID)
	if err != nil {
		return domain.Valuation{}, err
	}

	// Each goroutine writes only its own slot, keeping symbol order.
	priced := make([]*domain.Holding, len(positions))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxConcurrentLookups)
	for i, p := range positions {
		i, p := i, p
		g.Go(func() error {
			q, err := s.quotes.Lookup(gctx, p.Symbol)
			if err != nil {
				s.logger.Debug("skipping unpriced position",
					zap.Int64("user_id", userID),
					zap.String("symbol", p.Symbol),
					zap.Error(err),
				)
				return nil
			}
			priced[i] = &domain.Holding{
				Symbol: p.Symbol,
				Name:   q.Name,
				Shares: p.Shares,
				Price:  q.Price,
				Value:  domain.Cost(q.Price, p.Shares),
			}
			return nil
		})
	}
	_ = g.Wait() // lookups never fail the group

	holdings := make([]domain.Holding, 0, len(priced))
	for _, h := range priced {
		if h != nil {
			holdings = append(holdings, *h)
		}
	}
	return domain.NewValuation(user.Cash, holdings), nil
}
