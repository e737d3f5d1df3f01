package service

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/efreitasn/finance/internal/domain"
)

func TestValuation_Empty(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "alice")

	v, err := env.portfolio.Valuation(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, v.Cash.Equal(decimal.NewFromInt(10000)))
	assert.True(t, v.Total.Equal(v.Cash))
	assert.NotNil(t, v.Holdings)
	assert.Empty(t, v.Holdings)
}

func TestValuation_PricesEveryPosition(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "alice")

	env.setPrice("MSFT", "300")
	env.setPrice("AAA", "50")
	_, err := env.trade.Buy(ctx, id, "MSFT", 2)
	require.NoError(t, err)
	_, err = env.trade.Buy(ctx, id, "AAA", 10)
	require.NoError(t, err)

	env.setPrice("AAA", "55.25")
	v, err := env.portfolio.Valuation(ctx, id)
	require.NoError(t, err)

	require.Len(t, v.Holdings, 2)
	assert.Equal(t, "AAA", v.Holdings[0].Symbol)
	assert.Equal(t, "AAA Inc.", v.Holdings[0].Name)
	assert.Equal(t, int64(10), v.Holdings[0].Shares)
	assert.Equal(t, "552.50", v.Holdings[0].Value.StringFixed(2))
	assert.Equal(t, "MSFT", v.Holdings[1].Symbol)
	assert.Equal(t, "600.00", v.Holdings[1].Value.StringFixed(2))

	// 10000 - 600 - 500 = 8900 cash; 8900 + 552.50 + 600 = 10052.50.
	assert.Equal(t, "8900.00", v.Cash.StringFixed(2))
	assert.Equal(t, "10052.50", v.Total.StringFixed(2))
}

func TestValuation_SkipsUnpricedPositions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "alice")

	env.setPrice("AAA", "10")
	env.setPrice("GONE", "20")
	_, err := env.trade.Buy(ctx, id, "AAA", 1)
	require.NoError(t, err)
	_, err = env.trade.Buy(ctx, id, "GONE", 1)
	require.NoError(t, err)

	env.quotes.Remove("GONE")
	v, err := env.portfolio.Valuation(ctx, id)
	require.NoError(t, err)

	require.Len(t, v.Holdings, 1)
	assert.Equal(t, "AAA", v.Holdings[0].Symbol)
	assert.Equal(t, "9970.00", v.Cash.StringFixed(2))
	assert.Equal(t, "9980.00", v.Total.StringFixed(2))

	// The position itself is still on the ledger.
	positions, err := env.portfolio.Positions(ctx, id)
	require.NoError(t, err)
	assert.Len(t, positions, 2)
}

func TestValuation_Idempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "alice")
	env.setPrice("AAA", "12.34")
	_, err := env.trade.Buy(ctx, id, "AAA", 7)
	require.NoError(t, err)

	first, err := env.portfolio.Valuation(ctx, id)
	require.NoError(t, err)
	second, err := env.portfolio.Valuation(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestValuation_UnknownUser(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.portfolio.Valuation(context.Background(), 42)
	assert.ErrorIs(t, err, domain.ErrUserNotFound)
}

func TestHistory_NewestFirst(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	id := env.register(t, "alice")
	env.setPrice("AAA", "10")

	_, err := env.trade.Buy(ctx, id, "AAA", 4)
	require.NoError(t, err)
	_, err = env.trade.Sell(ctx, id, "aaa", 1)
	require.NoError(t, err)

	history, err := env.portfolio.History(ctx, id)
	require.NoError(t, err)
	require.Len(t, history, 2)
	assert.Equal(t, domain.SideSell, history[0].Side())
	assert.Equal(t, int64(1), history[0].Quantity())
	assert.Equal(t, domain.SideBuy, history[1].Side())
	assert.Equal(t, int64(4), history[1].Quantity())
}

func TestPosition_InvalidSymbol(t *testing.T) {
	env := newTestEnv(t)
	id := env.register(t, "alice")

	_, err := env.portfolio.Position(context.Background(), id, "bad symbol")
	assert.ErrorIs(t, err, domain.ErrInvalidSymbol)
}
