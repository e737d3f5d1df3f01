package handler

import (
	"context"
	"encoding/json"
	"net/http"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/service"
)

// TradeHandler handles HTTP requests for buy and sell endpoints.
type TradeHandler struct {
	tradeSvc *service.TradeService
}

// NewTradeHandler creates a new TradeHandler.
func NewTradeHandler(tradeSvc *service.TradeService) *TradeHandler {
	return &TradeHandler{tradeSvc: tradeSvc}
}

// tradeRequest is the JSON request body for POST /buy and POST /sell.
// Shares is kept as a number literal so that fractional and oversized
// values surface as invalid_quantity instead of a decode failure.
type tradeRequest struct {
	Symbol string      `json:"symbol"`
	Shares json.Number `json:"shares"`
}

// transactionResponse is a single ledger entry as seen by clients: the side
// is explicit and shares are always positive.
type transactionResponse struct {
	ID           int64  `json:"id"`
	Type         string `json:"type"`
	Symbol       string `json:"symbol"`
	Shares       int64  `json:"shares"`
	Price        string `json:"price"`
	PriceDisplay string `json:"price_display"`
	Total        string `json:"total"`
	TotalDisplay string `json:"total_display"`
	Timestamp    string `json:"timestamp"`
}

// Buy handles POST /buy.
func (h *TradeHandler) Buy(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.tradeSvc.Buy)
}

// Sell handles POST /sell.
func (h *TradeHandler) Sell(w http.ResponseWriter, r *http.Request) {
	h.trade(w, r, h.tradeSvc.Sell)
}

type tradeFunc func(ctx context.Context, userID int64, symbol string, shares int64) (*domain.Transaction, error)

func (h *TradeHandler) trade(w http.ResponseWriter, r *http.Request, execute tradeFunc) {
	var req tradeRequest
	if err := ParseJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	}

	symbol, err := domain.NormalizeSymbol(req.Symbol)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	shares, err := domain.ParseShares(req.Shares.String())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	tx, err := execute(r.Context(), userID(r), symbol, shares)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	WriteJSON(w, http.StatusCreated, toTransactionResponse(tx))
}

func toTransactionResponse(t *domain.Transaction) transactionResponse {
	total := t.Total()
	return transactionResponse{
		ID:           t.ID,
		Type:         string(t.Side()),
		Symbol:       t.Symbol,
		Shares:       t.Quantity(),
		Price:        formatAmount(t.Price),
		PriceDisplay: domain.FormatUSD(t.Price),
		Total:        formatAmount(total),
		TotalDisplay: domain.FormatUSD(total),
		Timestamp:    t.Timestamp.UTC().Format(timeFormat),
	}
}
