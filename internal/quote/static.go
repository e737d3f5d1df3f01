package quote

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/efreitasn/finance/internal/domain"
)

// StaticProvider serves quotes from a fixed table. It backs offline
// deployments (QUOTE_SOURCE=file) and tests.
type StaticProvider struct {
	mu     sync.RWMutex
	quotes map[string]domain.Quote
}

// NewStaticProvider creates an empty StaticProvider.
func NewStaticProvider() *StaticProvider {
	return &StaticProvider{
		quotes: make(map[string]domain.Quote),
	}
}

type quotesFile struct {
	Quotes []struct {
		Symbol string `yaml:"symbol"`
		Name   string `yaml:"name"`
		Price  string `yaml:"price"`
	} `yaml:"quotes"`
}

// LoadFile reads a YAML quote table of the form
//
//	quotes:
//	  - symbol: AAPL
//	    name: Apple Inc.
//	    price: "189.84"
func LoadFile(path string) (*StaticProvider, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read quotes file: %w", err)
	}

	var f quotesFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parse quotes file %s: %w", path, err)
	}

	p := NewStaticProvider()
	for i, q := range f.Quotes {
		symbol, err := domain.NormalizeSymbol(q.Symbol)
		if err != nil {
			return nil, fmt.Errorf("quote %d: %w", i, err)
		}
		price, err := decimal.NewFromString(q.Price)
		if err != nil || !price.IsPositive() {
			return nil, fmt.Errorf("quote %d (%s): price must be a positive decimal, got %q", i, symbol, q.Price)
		}
		p.Set(symbol, q.Name, price)
	}
	return p, nil
}

// Set adds or replaces the quote for symbol.
func (p *StaticProvider) Set(symbol, name string, price decimal.Decimal) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if name == "" {
		name = symbol
	}
	p.quotes[symbol] = domain.Quote{
		Symbol: symbol,
		Name:   name,
		Price:  domain.RoundPrice(price),
	}
}

// Remove drops symbol, making later lookups fail with ErrNotFound.
func (p *StaticProvider) Remove(symbol string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.quotes, symbol)
}

// Lookup returns the stored quote for symbol.
func (p *StaticProvider) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	if err := ctx.Err(); err != nil {
		return domain.Quote{}, err
	}

	p.mu.RLock()
	defer p.mu.RUnlock()

	q, ok := p.quotes[symbol]
	if !ok {
		return domain.Quote{}, ErrNotFound
	}
	return q, nil
}
