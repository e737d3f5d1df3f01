package domain

import "github.com/shopspring/decimal"

// Position is a derived holding: the sum of a user's signed share counts
// for one symbol. Only positions with Shares > 0 are ever exposed.
type Position struct {
	Symbol string
	Shares int64
}

// Quote is a market price lookup result.
type Quote struct {
	Symbol string
	Name   string
	Price  decimal.Decimal
}

// Holding is a priced position inside a Valuation.
type Holding struct {
	Symbol string
	Name   string
	Shares int64
	Price  decimal.Decimal
	Value  decimal.Decimal
}

// Valuation is a point-in-time portfolio snapshot. Nothing in it is stored.
type Valuation struct {
	Cash     decimal.Decimal
	Holdings []Holding
	Total    decimal.Decimal
}

// NewValuation totals cash plus the value of every holding.
func NewValuation(cash decimal.Decimal, holdings []Holding) Valuation {
	total := cash
	for _, h := range holdings {
		total = total.Add(h.Value)
	}
	if holdings == nil {
		holdings = []Holding{}
	}
	return Valuation{
		Cash:     cash,
		Holdings: holdings,
		Total:    total,
	}
}
