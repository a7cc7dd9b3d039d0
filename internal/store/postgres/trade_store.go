package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultline/suisync/internal/domain"
)

// TradeStore implements domain.TradeStore using PostgreSQL.
type TradeStore struct {
	pool *pgxpool.Pool
}

// NewTradeStore creates a new TradeStore backed by the given connection pool.
func NewTradeStore(pool *pgxpool.Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

const tradeSelectCols = `id, user_id, vault_id, fiat_amount, fiat_symbol,
	token_amount, token_symbol, price, tx_digest, cycle_index, created_at`

func scanTradeRows(rows pgx.Rows) ([]domain.Trade, error) {
	var trades []domain.Trade
	for rows.Next() {
		var t domain.Trade
		if err := rows.Scan(
			&t.ID, &t.UserID, &t.VaultID,
			&t.FiatAmount, &t.FiatSymbol,
			&t.TokenAmount, &t.TokenSymbol,
			&t.Price, &t.TxDigest, &t.CycleIndex, &t.CreatedAt,
		); err != nil {
			return nil, err
		}
		trades = append(trades, t)
	}
	return trades, rows.Err()
}

// ExistsByDigest reports whether a trade has already been persisted for the
// given transaction digest.
func (s *TradeStore) ExistsByDigest(ctx context.Context, digest string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx,
		"SELECT EXISTS(SELECT 1 FROM trades WHERE tx_digest = $1)", digest,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("postgres: exists by digest %s: %w", digest, err)
	}
	return exists, nil
}

// Insert persists a trade, relying on the unique index on tx_digest to make
// the operation race-safe: when a concurrent insert for the same digest
// already landed it returns domain.ErrAlreadyExists, which callers treat as
// "already synced" rather than a failure.
func (s *TradeStore) Insert(ctx context.Context, trade domain.Trade) (domain.Trade, error) {
	const query = `
		INSERT INTO trades (
			user_id, vault_id, fiat_amount, fiat_symbol,
			token_amount, token_symbol, price, tx_digest, cycle_index, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (tx_digest) DO NOTHING
		RETURNING id`

	err := s.pool.QueryRow(ctx, query,
		trade.UserID, trade.VaultID,
		trade.FiatAmount, trade.FiatSymbol,
		trade.TokenAmount, trade.TokenSymbol,
		trade.Price, trade.TxDigest, trade.CycleIndex, trade.CreatedAt,
	).Scan(&trade.ID)
	if err != nil {
		// DO NOTHING on conflict yields no row for RETURNING.
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Trade{}, fmt.Errorf("postgres: insert trade %s: %w", trade.TxDigest, domain.ErrAlreadyExists)
		}
		return domain.Trade{}, fmt.Errorf("postgres: insert trade %s: %w", trade.TxDigest, err)
	}
	return trade, nil
}

// MostRecentDigest returns the digest of the most recently created trade, or
// the empty string when no trades exist.
func (s *TradeStore) MostRecentDigest(ctx context.Context) (string, error) {
	var digest string
	err := s.pool.QueryRow(ctx,
		"SELECT tx_digest FROM trades ORDER BY created_at DESC, id DESC LIMIT 1",
	).Scan(&digest)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("postgres: most recent digest: %w", err)
	}
	return digest, nil
}

// CountByVault returns the number of trades persisted for a vault.
func (s *TradeStore) CountByVault(ctx context.Context, vaultID int64) (int64, error) {
	var count int64
	err := s.pool.QueryRow(ctx,
		"SELECT COUNT(*) FROM trades WHERE vault_id = $1", vaultID,
	).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("postgres: count trades for vault %d: %w", vaultID, err)
	}
	return count, nil
}

// ListByUser returns a user's trades, newest first, with pagination.
func (s *TradeStore) ListByUser(ctx context.Context, userID int64, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.list(ctx, "user_id", userID, opts)
}

// ListByVault returns a vault's trades, newest first, with pagination.
func (s *TradeStore) ListByVault(ctx context.Context, vaultID int64, opts domain.ListOpts) ([]domain.Trade, error) {
	return s.list(ctx, "vault_id", vaultID, opts)
}

func (s *TradeStore) list(ctx context.Context, column string, id int64, opts domain.ListOpts) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE ` + column + ` = $1 ORDER BY created_at DESC`
	args := []any{id}
	argIdx := 2

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades by %s: %w", column, err)
	}
	defer rows.Close()

	trades, err := scanTradeRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan trades by %s: %w", column, err)
	}
	return trades, nil
}

// ListBefore returns all trades created strictly before the given time (for
// archiving).
func (s *TradeStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Trade, error) {
	query := `SELECT ` + tradeSelectCols + ` FROM trades WHERE created_at < $1 ORDER BY created_at ASC`
	rows, err := s.pool.Query(ctx, query, before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list trades before: %w", err)
	}
	defer rows.Close()
	return scanTradeRows(rows)
}

// Compile-time interface check.
var _ domain.TradeStore = (*TradeStore)(nil)
