package store

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/efreitasn/finance/internal/domain"
)

// Store is the durable ledger: users with a mutable cash balance and an
// append-only transaction log. Every error it returns is one of the
// domain sentinels (possibly wrapped); raw driver errors never escape.
type Store interface {
	// CreateUser inserts a user and returns its ID, or
	// domain.ErrDuplicateUsername if the username is taken.
	CreateUser(ctx context.Context, username, hash string, cash decimal.Decimal) (int64, error)

	GetUser(ctx context.Context, id int64) (*domain.User, error)
	GetUserByUsername(ctx context.Context, username string) (*domain.User, error)

	// Positions returns the user's holdings ordered by symbol. Symbols
	// whose signed share sum is <= 0 are omitted.
	Positions(ctx context.Context, userID int64) ([]domain.Position, error)

	// Position returns the user's share total for symbol, never negative.
	Position(ctx context.Context, userID int64, symbol string) (int64, error)

	// History returns the user's transactions, newest first.
	History(ctx context.Context, userID int64) ([]domain.Transaction, error)

	UpdatePasswordHash(ctx context.Context, id int64, hash string) error

	// DeleteUser removes the user together with all of its transactions.
	DeleteUser(ctx context.Context, id int64) error

	// WithinUserTx runs fn as one unit of work over the user's rows. The
	// user's rows stay locked until fn returns, so concurrent units for the
	// same user serialize. Writes made through the LedgerTx are committed
	// only if fn returns nil; otherwise none of them is applied and fn's
	// error is returned unchanged.
	WithinUserTx(ctx context.Context, userID int64, fn func(tx LedgerTx) error) error
}

// LedgerTx is the view of one user's ledger inside a unit of work.
// Reads observe the unit's own uncommitted writes.
type LedgerTx interface {
	Cash(ctx context.Context) (decimal.Decimal, error)
	Position(ctx context.Context, symbol string) (int64, error)

	// AppendTransaction records t for the unit's user, filling in ID,
	// UserID and, when zero, Timestamp.
	AppendTransaction(ctx context.Context, t *domain.Transaction) (int64, error)

	// AdjustCash adds delta to the cash balance. It fails with
	// domain.ErrInsufficientFunds if the balance would become negative.
	AdjustCash(ctx context.Context, delta decimal.Decimal) error
}
