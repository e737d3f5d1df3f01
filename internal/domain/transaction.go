package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// Side indicates whether a transaction bought or sold shares.
type Side string

const (
	SideBuy  Side = "BUY"
	SideSell Side = "SELL"
)

// Transaction is one immutable ledger entry. Shares is signed: positive
// for a buy, negative for a sell.
type Transaction struct {
	ID        int64
	UserID    int64
	Symbol    string
	Shares    int64
	Price     decimal.Decimal // per share, at execution
	Timestamp time.Time
}

// Side derives the transaction side from the sign of Shares.
func (t *Transaction) Side() Side {
	if t.Shares < 0 {
		return SideSell
	}
	return SideBuy
}

// Quantity returns the unsigned number of shares traded.
func (t *Transaction) Quantity() int64 {
	if t.Shares < 0 {
		return -t.Shares
	}
	return t.Shares
}

// Total returns the cash that changed hands: |shares| × price.
func (t *Transaction) Total() decimal.Decimal {
	return Cost(t.Price, t.Quantity())
}

// CashDelta is the signed effect of the transaction on the owner's cash:
// negative for a buy, positive for a sell.
func (t *Transaction) CashDelta() decimal.Decimal {
	return Cost(t.Price, t.Shares).Neg()
}
