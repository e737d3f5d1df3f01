package domain

import "errors"

// Sentinel errors for domain-level error handling.
// The handler layer maps these to HTTP status codes.
var (
	ErrInvalidSymbol      = errors.New("invalid_symbol")
	ErrInvalidQuantity    = errors.New("invalid_quantity")
	ErrInsufficientFunds  = errors.New("insufficient_funds")
	ErrNoPosition         = errors.New("no_position")
	ErrInsufficientShares = errors.New("insufficient_shares")
	ErrDuplicateUsername  = errors.New("duplicate_username")
	ErrInvalidCredentials = errors.New("invalid_credentials")
	ErrUserNotFound       = errors.New("user_not_found")
	ErrStoreUnavailable   = errors.New("store_unavailable")
	ErrUnauthenticated    = errors.New("unauthenticated")
)

// ValidationError represents a request validation failure.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return e.Message
}
