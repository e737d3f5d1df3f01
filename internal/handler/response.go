package handler

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/finance/internal/domain"
)

// timeFormat is used for every timestamp in responses.
const timeFormat = "2006-01-02T15:04:05Z"

// WriteJSON writes a JSON response with the given status code and data.
// Sets Content-Type to application/json before writing the status code.
func WriteJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data) // Write error intentionally ignored in response helper
}

// errorResponse is the standard error response format.
type errorResponse struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

// WriteError writes a standard error response with the given status code,
// error code, and human-readable message.
func WriteError(w http.ResponseWriter, status int, errorCode, message string) {
	WriteJSON(w, status, errorResponse{
		Error:   errorCode,
		Message: message,
	})
}

// ParseJSON decodes the request body as JSON into v.
// It validates that the Content-Type header is application/json and
// returns an error for missing/incorrect content type or malformed JSON.
func ParseJSON(r *http.Request, v any) error {
	ct := r.Header.Get("Content-Type")
	if ct == "" || !strings.HasPrefix(ct, "application/json") {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("Request body must be valid JSON with Content-Type: application/json")
	}

	return nil
}

// errorStatus pairs a domain sentinel with its HTTP status.
var errorStatus = []struct {
	err    error
	status int
}{
	{domain.ErrInvalidSymbol, http.StatusBadRequest},
	{domain.ErrInvalidQuantity, http.StatusBadRequest},
	{domain.ErrInsufficientFunds, http.StatusConflict},
	{domain.ErrNoPosition, http.StatusConflict},
	{domain.ErrInsufficientShares, http.StatusConflict},
	{domain.ErrDuplicateUsername, http.StatusConflict},
	{domain.ErrInvalidCredentials, http.StatusForbidden},
	{domain.ErrUnauthenticated, http.StatusUnauthorized},
	{domain.ErrUserNotFound, http.StatusNotFound},
	{domain.ErrStoreUnavailable, http.StatusServiceUnavailable},
}

// writeServiceError maps domain errors to HTTP responses. The error code is
// the sentinel's own text.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *domain.ValidationError
	if errors.As(err, &validationErr) {
		WriteError(w, http.StatusBadRequest, "validation_error", validationErr.Message)
		return
	}

	for _, e := range errorStatus {
		if errors.Is(err, e.err) {
			WriteError(w, e.status, e.err.Error(), errorMessage(e.err, err))
			return
		}
	}
	WriteError(w, http.StatusInternalServerError, "internal_error", "An unexpected error occurred")
}

// errorMessage keeps storage details out of responses.
func errorMessage(sentinel, err error) string {
	if sentinel == domain.ErrStoreUnavailable {
		return "The ledger is temporarily unavailable"
	}
	return err.Error()
}

// formatAmount renders a currency amount with exactly two decimals.
func formatAmount(d decimal.Decimal) string {
	return d.StringFixed(domain.CurrencyPlaces)
}
