package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/btree"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/finance/internal/domain"
)

// MemoryStore is a thread-safe in-memory Store. Users are keyed by ID with
// a username index; each user's transactions are kept append-only in
// chronological order.
type MemoryStore struct {
	mu         sync.RWMutex
	nextUserID int64
	nextTxID   int64
	users      map[int64]*memoryUser
	usernames  map[string]int64
	ledger     map[int64][]domain.Transaction // user_id → transactions (chronological)
}

// memoryUser pairs a user row with the lock that serializes units of work
// on it. Cash is read and written under MemoryStore.mu.
type memoryUser struct {
	user domain.User
	mu   sync.Mutex
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:     make(map[int64]*memoryUser),
		usernames: make(map[string]int64),
		ledger:    make(map[int64][]domain.Transaction),
	}
}

// CreateUser adds a user. It returns domain.ErrDuplicateUsername if the
// username already exists.
func (s *MemoryStore) CreateUser(ctx context.Context, username, hash string, cash decimal.Decimal) (int64, error) {
	if cash.IsNegative() {
		return 0, domain.ErrInsufficientFunds
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.usernames[username]; exists {
		return 0, domain.ErrDuplicateUsername
	}

	s.nextUserID++
	id := s.nextUserID
	s.users[id] = &memoryUser{
		user: domain.User{
			ID:        id,
			Username:  username,
			Hash:      hash,
			Cash:      cash,
			CreatedAt: time.Now().UTC(),
		},
	}
	s.usernames[username] = id
	return id, nil
}

// GetUser retrieves a copy of the user. It returns domain.ErrUserNotFound
// if the user does not exist.
func (s *MemoryStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := rec.user
	return &u, nil
}

// GetUserByUsername retrieves a copy of the user with the given username.
func (s *MemoryStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.usernames[username]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	u := s.users[id].user
	return &u, nil
}

// Positions sums the user's transactions per symbol.
func (s *MemoryStore) Positions(ctx context.Context, userID int64) ([]domain.Position, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return aggregatePositions(s.ledger[userID]), nil
}

// Position sums the user's transactions for one symbol.
func (s *MemoryStore) Position(ctx context.Context, userID int64, symbol string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return clampShares(sumShares(s.ledger[userID], symbol)), nil
}

// History returns the user's transactions, newest first.
func (s *MemoryStore) History(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	txs := s.ledger[userID]
	result := make([]domain.Transaction, len(txs))
	for i, t := range txs {
		result[len(txs)-1-i] = t
	}
	return result, nil
}

// UpdatePasswordHash replaces the user's password hash.
func (s *MemoryStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.users[id]
	if !ok {
		return domain.ErrUserNotFound
	}
	rec.user.Hash = hash
	return nil
}

// DeleteUser removes the user and all of its transactions. It waits for
// any unit of work in progress on the user to finish first.
func (s *MemoryStore) DeleteUser(ctx context.Context, id int64) error {
	rec, err := s.record(id)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.users[id] != rec {
		return domain.ErrUserNotFound
	}
	delete(s.users, id)
	delete(s.usernames, rec.user.Username)
	delete(s.ledger, id)
	return nil
}

// WithinUserTx holds the user's lock while fn runs. Writes are staged on
// the memoryTx and applied to the store in one step after fn succeeds.
func (s *MemoryStore) WithinUserTx(ctx context.Context, userID int64, fn func(tx LedgerTx) error) error {
	rec, err := s.record(userID)
	if err != nil {
		return err
	}

	rec.mu.Lock()
	defer rec.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	tx := &memoryTx{store: s, rec: rec}
	if err := fn(tx); err != nil {
		return err
	}
	return s.commit(ctx, rec, tx)
}

func (s *MemoryStore) commit(ctx context.Context, rec *memoryUser, tx *memoryTx) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	// The user may have been deleted between lookup and lock.
	if s.users[rec.user.ID] != rec {
		return domain.ErrUserNotFound
	}

	cash := rec.user.Cash.Add(tx.cashDelta)
	if cash.IsNegative() {
		return domain.ErrInsufficientFunds
	}

	rec.user.Cash = cash
	s.ledger[rec.user.ID] = append(s.ledger[rec.user.ID], tx.staged...)
	return nil
}

func (s *MemoryStore) record(id int64) (*memoryUser, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return rec, nil
}

// memoryTx stages writes for one unit of work.
type memoryTx struct {
	store     *MemoryStore
	rec       *memoryUser
	staged    []domain.Transaction
	cashDelta decimal.Decimal
}

func (t *memoryTx) Cash(ctx context.Context) (decimal.Decimal, error) {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()

	return t.rec.user.Cash.Add(t.cashDelta), nil
}

func (t *memoryTx) Position(ctx context.Context, symbol string) (int64, error) {
	t.store.mu.RLock()
	committed := sumShares(t.store.ledger[t.rec.user.ID], symbol)
	t.store.mu.RUnlock()

	return clampShares(committed + sumShares(t.staged, symbol)), nil
}

func (t *memoryTx) AppendTransaction(ctx context.Context, tx *domain.Transaction) (int64, error) {
	if tx.Shares == 0 {
		return 0, fmt.Errorf("%w: transaction must move shares", domain.ErrInvalidQuantity)
	}

	t.store.mu.Lock()
	t.store.nextTxID++
	id := t.store.nextTxID
	t.store.mu.Unlock()

	tx.ID = id
	tx.UserID = t.rec.user.ID
	if tx.Timestamp.IsZero() {
		tx.Timestamp = time.Now().UTC()
	}
	t.staged = append(t.staged, *tx)
	return id, nil
}

func (t *memoryTx) AdjustCash(ctx context.Context, delta decimal.Decimal) error {
	cash, err := t.Cash(ctx)
	if err != nil {
		return err
	}
	if cash.Add(delta).IsNegative() {
		return domain.ErrInsufficientFunds
	}
	t.cashDelta = t.cashDelta.Add(delta)
	return nil
}

func positionLess(a, b domain.Position) bool {
	return a.Symbol < b.Symbol
}

// aggregatePositions folds transactions into per-symbol totals kept in
// symbol order and returns the strictly positive ones.
func aggregatePositions(txs []domain.Transaction) []domain.Position {
	totals := btree.NewG[domain.Position](8, positionLess)
	for _, t := range txs {
		p, _ := totals.Get(domain.Position{Symbol: t.Symbol})
		p.Symbol = t.Symbol
		p.Shares += t.Shares
		totals.ReplaceOrInsert(p)
	}

	positions := make([]domain.Position, 0, totals.Len())
	totals.Ascend(func(p domain.Position) bool {
		if p.Shares > 0 {
			positions = append(positions, p)
		}
		return true
	})
	return positions
}

func sumShares(txs []domain.Transaction, symbol string) int64 {
	var total int64
	for _, t := range txs {
		if t.Symbol == symbol {
			total += t.Shares
		}
	}
	return total
}

func clampShares(n int64) int64 {
	if n < 0 {
		return 0
	}
	return n
}
