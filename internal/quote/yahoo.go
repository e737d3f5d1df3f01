package quote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/pkg/errors"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/finance/internal/domain"
)

// YahooProvider reads quotes from the Yahoo Finance v8 chart API.
type YahooProvider struct {
	baseURL string
	client  *http.Client
}

// NewYahooProvider creates a provider against baseURL (no trailing slash).
// timeout bounds each HTTP round trip.
func NewYahooProvider(baseURL string, timeout time.Duration) *YahooProvider {
	return &YahooProvider{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
	}
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Meta struct {
				Symbol             string  `json:"symbol"`
				LongName           string  `json:"longName"`
				ShortName          string  `json:"shortName"`
				RegularMarketPrice float64 `json:"regularMarketPrice"`
			} `json:"meta"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// Lookup fetches the latest price for symbol.
func (p *YahooProvider) Lookup(ctx context.Context, symbol string) (domain.Quote, error) {
	endpoint := fmt.Sprintf("%s/v8/finance/chart/%s?interval=1d&range=1d", p.baseURL, url.PathEscape(symbol))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return domain.Quote{}, errors.Wrap(err, "build yahoo request")
	}
	req.Header.Set("User-Agent", "finance/1.0")
	req.Header.Set("Accept", "application/json")

	resp, err := p.client.Do(req)
	if err != nil {
		return domain.Quote{}, errors.Wrapf(err, "yahoo request for %s", symbol)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return domain.Quote{}, ErrNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Quote{}, errors.Errorf("yahoo http %d for %s", resp.StatusCode, symbol)
	}

	var raw chartResponse
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		return domain.Quote{}, errors.Wrap(err, "decode yahoo response")
	}
	if raw.Chart.Error != nil || len(raw.Chart.Result) == 0 {
		return domain.Quote{}, ErrNotFound
	}

	r := raw.Chart.Result[0]
	price := r.Meta.RegularMarketPrice

	// Fallback: last positive close when the meta price is missing.
	if price <= 0 && len(r.Indicators.Quote) > 0 {
		closes := r.Indicators.Quote[0].Close
		for i := len(closes) - 1; i >= 0; i-- {
			if closes[i] != nil && *closes[i] > 0 {
				price = *closes[i]
				break
			}
		}
	}
	if price <= 0 {
		return domain.Quote{}, ErrNotFound
	}

	name := r.Meta.LongName
	if name == "" {
		name = r.Meta.ShortName
	}
	if name == "" {
		name = symbol
	}
	sym := r.Meta.Symbol
	if sym == "" {
		sym = symbol
	}

	return domain.Quote{
		Symbol: sym,
		Name:   name,
		Price:  domain.RoundPrice(decimal.NewFromFloat(price)),
	}, nil
}
