package store

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/efreitasn/finance/internal/domain"
)

//go:embed schema.sql
var schema string

// SQLSTATE codes the store translates into domain errors.
const (
	sqlStateForeignKeyViolation = "23503"
	sqlStateUniqueViolation     = "23505"
	sqlStateCheckViolation      = "23514"

	constraintCashNonNegative = "users_cash_non_negative"
)

// PostgresStore is a Store backed by PostgreSQL. Every operation runs under
// its own deadline of timeout.
type PostgresStore struct {
	pool    *pgxpool.Pool
	timeout time.Duration
}

var _ Store = (*PostgresStore)(nil)

// NewPostgresStore connects to dbURL and verifies connectivity.
func NewPostgresStore(ctx context.Context, dbURL string, timeout time.Duration) (*PostgresStore, error) {
	config, err := pgxpool.ParseConfig(dbURL)
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
	}

	s := &PostgresStore{pool: pool, timeout: timeout}
	pingCtx, cancel := s.withTimeout(ctx)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("%w: ping: %v", domain.ErrStoreUnavailable, err)
	}
	return s, nil
}

// Migrate creates the tables if they do not exist yet.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return translateError(err)
	}
	return nil
}

// Close releases every pooled connection.
func (s *PostgresStore) Close() {
	s.pool.Close()
}

func (s *PostgresStore) CreateUser(ctx context.Context, username, hash string, cash decimal.Decimal) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var id int64
	err := s.pool.QueryRow(ctx,
		`INSERT INTO users (username, hash, cash) VALUES ($1, $2, $3) RETURNING id`,
		username, hash, cash,
	).Scan(&id)
	if err != nil {
		return 0, translateError(err)
	}
	return id, nil
}

func (s *PostgresStore) GetUser(ctx context.Context, id int64) (*domain.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, hash, cash, created_at FROM users WHERE id = $1`, id))
}

func (s *PostgresStore) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return scanUser(s.pool.QueryRow(ctx,
		`SELECT id, username, hash, cash, created_at FROM users WHERE username = $1`, username))
}

func (s *PostgresStore) Positions(ctx context.Context, userID int64) ([]domain.Position, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT symbol, SUM(shares)::BIGINT
		FROM transactions
		WHERE user_id = $1
		GROUP BY symbol
		HAVING SUM(shares) > 0
		ORDER BY symbol`, userID)
	if err != nil {
		return nil, translateError(err)
	}

	positions, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Position, error) {
		var p domain.Position
		err := row.Scan(&p.Symbol, &p.Shares)
		return p, err
	})
	if err != nil {
		return nil, translateError(err)
	}
	return positions, nil
}

func (s *PostgresStore) Position(ctx context.Context, userID int64, symbol string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	return queryPosition(ctx, s.pool, userID, symbol)
}

func (s *PostgresStore) History(ctx context.Context, userID int64) ([]domain.Transaction, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	rows, err := s.pool.Query(ctx, `
		SELECT id, user_id, symbol, shares, price, timestamp
		FROM transactions
		WHERE user_id = $1
		ORDER BY timestamp DESC, id DESC`, userID)
	if err != nil {
		return nil, translateError(err)
	}

	history, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.Transaction, error) {
		var t domain.Transaction
		err := row.Scan(&t.ID, &t.UserID, &t.Symbol, &t.Shares, &t.Price, &t.Timestamp)
		return t, err
	})
	if err != nil {
		return nil, translateError(err)
	}
	return history, nil
}

func (s *PostgresStore) UpdatePasswordHash(ctx context.Context, id int64, hash string) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `UPDATE users SET hash = $2 WHERE id = $1`, id, hash)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// DeleteUser removes the user; transactions go with it through the foreign
// key's ON DELETE CASCADE. The row lock taken by a running unit of work
// makes the delete wait for it.
func (s *PostgresStore) DeleteUser(ctx context.Context, id int64) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tag, err := s.pool.Exec(ctx, `DELETE FROM users WHERE id = $1`, id)
	if err != nil {
		return translateError(err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrUserNotFound
	}
	return nil
}

// WithinUserTx opens a transaction and locks the user's row with
// SELECT ... FOR UPDATE before running fn.
func (s *PostgresStore) WithinUserTx(ctx context.Context, userID int64, fn func(tx LedgerTx) error) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return translateError(err)
	}
	defer tx.Rollback(ctx)

	var cash decimal.Decimal
	err = tx.QueryRow(ctx, `SELECT cash FROM users WHERE id = $1 FOR UPDATE`, userID).Scan(&cash)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.ErrUserNotFound
	}
	if err != nil {
		return translateError(err)
	}

	if err := fn(&postgresTx{tx: tx, userID: userID, cash: cash}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return translateError(err)
	}
	return nil
}

func (s *PostgresStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// postgresTx is the LedgerTx of one database transaction. cash mirrors the
// locked row so the balance check does not need a round trip.
type postgresTx struct {
	tx     pgx.Tx
	userID int64
	cash   decimal.Decimal
}

func (t *postgresTx) Cash(ctx context.Context) (decimal.Decimal, error) {
	return t.cash, nil
}

func (t *postgresTx) Position(ctx context.Context, symbol string) (int64, error) {
	return queryPosition(ctx, t.tx, t.userID, symbol)
}

func (t *postgresTx) AppendTransaction(ctx context.Context, tr *domain.Transaction) (int64, error) {
	if tr.Shares == 0 {
		return 0, fmt.Errorf("%w: transaction must move shares", domain.ErrInvalidQuantity)
	}
	if tr.Timestamp.IsZero() {
		tr.Timestamp = time.Now().UTC()
	}

	err := t.tx.QueryRow(ctx, `
		INSERT INTO transactions (user_id, symbol, shares, price, timestamp)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id`,
		t.userID, tr.Symbol, tr.Shares, tr.Price, tr.Timestamp,
	).Scan(&tr.ID)
	if err != nil {
		return 0, translateError(err)
	}
	tr.UserID = t.userID
	return tr.ID, nil
}

func (t *postgresTx) AdjustCash(ctx context.Context, delta decimal.Decimal) error {
	if t.cash.Add(delta).IsNegative() {
		return domain.ErrInsufficientFunds
	}

	var cash decimal.Decimal
	err := t.tx.QueryRow(ctx,
		`UPDATE users SET cash = cash + $2 WHERE id = $1 RETURNING cash`,
		t.userID, delta,
	).Scan(&cash)
	if err != nil {
		return translateError(err)
	}
	t.cash = cash
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

func queryPosition(ctx context.Context, q querier, userID int64, symbol string) (int64, error) {
	var shares int64
	err := q.QueryRow(ctx,
		`SELECT COALESCE(SUM(shares), 0)::BIGINT FROM transactions WHERE user_id = $1 AND symbol = $2`,
		userID, symbol,
	).Scan(&shares)
	if err != nil {
		return 0, translateError(err)
	}
	return clampShares(shares), nil
}

func scanUser(row pgx.Row) (*domain.User, error) {
	var u domain.User
	err := row.Scan(&u.ID, &u.Username, &u.Hash, &u.Cash, &u.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, translateError(err)
	}
	return &u, nil
}

// translateError maps driver errors onto the domain taxonomy. Anything not
// recognized becomes a wrapped domain.ErrStoreUnavailable.
func translateError(err error) error {
	if err == nil {
		return nil
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case sqlStateUniqueViolation:
			return domain.ErrDuplicateUsername
		case sqlStateForeignKeyViolation:
			return domain.ErrUserNotFound
		case sqlStateCheckViolation:
			if pgErr.ConstraintName == constraintCashNonNegative {
				return domain.ErrInsufficientFunds
			}
		}
	}
	return fmt.Errorf("%w: %v", domain.ErrStoreUnavailable, err)
}
