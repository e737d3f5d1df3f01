package handler

import (
	"net/http"

	"github.com/efreitasn/finance/internal/domain"
	"github.com/efreitasn/finance/internal/service"
)

// PortfolioHandler handles HTTP requests for valuation, positions, and
// history endpoints.
type PortfolioHandler struct {
	portfolioSvc *service.PortfolioService
}

// NewPortfolioHandler creates a new PortfolioHandler.
func NewPortfolioHandler(portfolioSvc *service.PortfolioService) *PortfolioHandler {
	return &PortfolioHandler{portfolioSvc: portfolioSvc}
}

// valuationResponse is the JSON response for GET /.
type valuationResponse struct {
	Cash         string            `json:"cash"`
	CashDisplay  string            `json:"cash_display"`
	Holdings     []holdingResponse `json:"holdings"`
	Total        string            `json:"total"`
	TotalDisplay string            `json:"total_display"`
}

// holdingResponse is a single priced position in the valuation.
type holdingResponse struct {
	Symbol       string `json:"symbol"`
	Name         string `json:"name"`
	Shares       int64  `json:"shares"`
	Price        string `json:"price"`
	PriceDisplay string `json:"price_display"`
	Value        string `json:"value"`
	ValueDisplay string `json:"value_display"`
}

// positionResponse is a single held symbol in GET /positions.
type positionResponse struct {
	Symbol string `json:"symbol"`
	Shares int64  `json:"shares"`
}

type positionListResponse struct {
	Positions []positionResponse `json:"positions"`
}

type historyResponse struct {
	Transactions []transactionResponse `json:"transactions"`
}

// Valuation handles GET /.
func (h *PortfolioHandler) Valuation(w http.ResponseWriter, r *http.Request) {
	v, err := h.portfolioSvc.Valuation(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	holdings := make([]holdingResponse, len(v.Holdings))
	for i, hd := range v.Holdings {
		holdings[i] = holdingResponse{
			Symbol:       hd.Symbol,
			Name:         hd.Name,
			Shares:       hd.Shares,
			Price:        formatAmount(hd.Price),
			PriceDisplay: domain.FormatUSD(hd.Price),
			Value:        formatAmount(hd.Value),
			ValueDisplay: domain.FormatUSD(hd.Value),
		}
	}

	WriteJSON(w, http.StatusOK, valuationResponse{
		Cash:         formatAmount(v.Cash),
		CashDisplay:  domain.FormatUSD(v.Cash),
		Holdings:     holdings,
		Total:        formatAmount(v.Total),
		TotalDisplay: domain.FormatUSD(v.Total),
	})
}

// Positions handles GET /positions.
func (h *PortfolioHandler) Positions(w http.ResponseWriter, r *http.Request) {
	positions, err := h.portfolioSvc.Positions(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]positionResponse, len(positions))
	for i, p := range positions {
		resp[i] = positionResponse{Symbol: p.Symbol, Shares: p.Shares}
	}
	WriteJSON(w, http.StatusOK, positionListResponse{Positions: resp})
}

// History handles GET /history.
func (h *PortfolioHandler) History(w http.ResponseWriter, r *http.Request) {
	history, err := h.portfolioSvc.History(r.Context(), userID(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}

	resp := make([]transactionResponse, len(history))
	for i := range history {
		resp[i] = toTransactionResponse(&history[i])
	}
	WriteJSON(w, http.StatusOK, historyResponse{Transactions: resp})
}
