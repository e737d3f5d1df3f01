package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// User represents a registered account holder.
type User struct {
	ID        int64
	Username  string
	Hash      string          // salted one-way password hash
	Cash      decimal.Decimal // never negative
	CreatedAt time.Time
}
