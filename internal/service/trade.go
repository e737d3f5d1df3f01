package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/store"
)

// TradeService executes market buys and sells at the quoted price.
type TradeService struct {
	store  store.Store
	quotes *QuoteService
	logger *zap.Logger
	now    func() time.Time
}

// NewTradeService creates a new TradeService with the given dependencies.
func NewTradeService(st store.Store, quotes *QuoteService, logger *zap.Logger) *TradeService {
	return &TradeService{
		store:  st,
		quotes: quotes,
		logger: logger,
		now:    time.Now,
	}
}

// Buy purchases shares of symbol at the current quote. The ledger entry and
// the cash debit commit together or not at all.
func (s *TradeService) Buy(ctx context.Context, userID int64, symbol string, shares int64) (*domain.Transaction, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if shares <= 0 {
		return nil, fmt.Errorf("%w: shares must be a positive integer", domain.ErrInvalidQuantity)
	}

	q, err := s.quotes.Lookup(ctx, sym)
	if err != nil {
		return nil, err
	}

	trade := &domain.Transaction{
		Symbol:    sym,
		Shares:    shares,
		Price:     q.Price,
		Timestamp: s.now().UTC(),
	}
	cost := trade.Total()

	err = s.store.WithinUserTx(ctx, userID, func(tx store.LedgerTx) error {
		cash, err := tx.Cash(ctx)
		if err != nil {
			return err
		}
		if cash.LessThan(cost) {
			return domain.ErrInsufficientFunds
		}
		if _, err := tx.AppendTransaction(ctx, trade); err != nil {
			return err
		}
		return tx.AdjustCash(ctx, trade.CashDelta())
	})
	if err != nil {
		return nil, err
	}

	s.logTrade(trade)
	return trade, nil
}

// Sell disposes of shares of symbol at the current quote. The position is
// checked once up front and again under the user's lock, so of several
// concurrent sells of the same shares only as many succeed as the position
// covers.
func (s *TradeService) Sell(ctx context.Context, userID int64, symbol string, shares int64) (*domain.Transaction, error) {
	sym, err := domain.NormalizeSymbol(symbol)
	if err != nil {
		return nil, err
	}
	if shares <= 0 {
		return nil, fmt.Errorf("%w: shares must be a positive integer", domain.ErrInvalidQuantity)
	}

	held, err := s.store.Position(ctx, userID, sym)
	if err != nil {
		return nil, err
	}
	if held == 0 {
		return nil, domain.ErrNoPosition
	}
	if shares > held {
		return nil, domain.ErrInsufficientShares
	}

	q, err := s.quotes.Lookup(ctx, sym)
	if err != nil {
		return nil, err
	}

	trade := &domain.Transaction{
		Symbol:    sym,
		Shares:    -shares,
		Price:     q.Price,
		Timestamp: s.now().UTC(),
	}

	err = s.store.WithinUserTx(ctx, userID, func(tx store.LedgerTx) error {
		held, err := tx.Position(ctx, sym)
		if err != nil {
			return err
		}
		// Another sell may have committed since the first check.
		if held < shares {
			return domain.ErrInsufficientShares
		}
		if _, err := tx.AppendTransaction(ctx, trade); err != nil {
			return err
		}
		return tx.AdjustCash(ctx, trade.CashDelta())
	})
	if err != nil {
		return nil, err
	}

	s.logTrade(trade)
	return trade, nil
}

func (s *TradeService) logTrade(t *domain.Transaction) {
	s.logger.Info("trade executed",
		zap.Int64("transaction_id", t.ID),
		zap.Int64("user_id", t.UserID),
		zap.String("side", string(t.Side())),
		zap.String("symbol", t.Symbol),
		zap.Int64("shares", t.Quantity()),
		zap.String("price", t.Price.StringFixed(domain.CurrencyPlaces)),
	)
}
