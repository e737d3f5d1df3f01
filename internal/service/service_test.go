package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/quote"
	"github.com/efreitasn/finance/internal/store"
)

// testEnv wires every service over an in-memory store and a fixed quote table.
type testEnv struct {
	store     *store.MemoryStore
	sessions  *store.SessionStore
	quotes    *quote.StaticProvider
	provider  *switchProvider
	auth      *AuthService
	quote     *QuoteService
	trade     *TradeService
	portfolio *PortfolioService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	return newEnv(decimal.RequireFromString("10000.00"))
}

func newEnv(initialCash decimal.Decimal) *testEnv {
	logger := zap.NewNop()
	st := store.NewMemoryStore()
	sessions := store.NewSessionStore(time.Hour)
	static := quote.NewStaticProvider()
	provider := &switchProvider{inner: static}
	quotes := NewQuoteService(provider, time.Second, logger)

	return &testEnv{
		store:     st,
		sessions:  sessions,
		quotes:    static,
		provider:  provider,
		auth:      NewAuthService(st, sessions, initialCash, bcrypt.MinCost, logger),
		quote:     quotes,
		trade:     NewTradeService(st, quotes, logger),
		portfolio: NewPortfolioService(st, quotes, logger),
	}
}

func (e *testEnv) setPrice(symbol, price string) {
	e.quotes.Set(symbol, symbol+" Inc.", decimal.RequireFromString(price))
}

func (e *testEnv) register(t *testing.T, username string) int64 {
	t.Helper()
	u, err := e.auth.Register(context.Background(), RegisterRequest{
		Username:     username,
		Password:     "secret",
		Confirmation: "secret",
	})
	require.NoError(t, err)
	return u.ID
}

func (e *testEnv) cash(t *testing.T, userID int64) decimal.Decimal {
	t.Helper()
	u, err := e.store.GetUser(context.Background(), userID)
	require.NoError(t, err)
	return u.Cash
}

// switchProvider forwards to inner, optionally holding every lookup at a
// barrier until the expected number of callers has arrived.
type switchProvider struct {
	inner quote.Provider
	gate  *sync.WaitGroup
	fail  error
}

func (p *switchProvider) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	if p.gate != nil {
		p.gate.Done()
		p.gate.Wait()
	}
	if p.fail != nil {
		return domain.Quote{}, p.fail
	}
	return p.inner.Lookup(ctx, symbol)
}

// blockingProvider never answers before the context ends.
type blockingProvider struct{}

func (blockingProvider) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	<-ctx.Done()
	return domain.Quote{}, ctx.Err()
}
