package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/vaultline/suisync/internal/domain"
)

// WalletStore implements domain.WalletStore using PostgreSQL. The sync
// subsystem only reads from it; registration is owned by the CRUD layer.
type WalletStore struct {
	pool *pgxpool.Pool
}

// NewWalletStore creates a new WalletStore backed by the given pool.
func NewWalletStore(pool *pgxpool.Pool) *WalletStore {
	return &WalletStore{pool: pool}
}

const walletSelectCols = `user_id, vault_id, address, alt_address, created_at`

func scanWalletRows(rows pgx.Rows) ([]domain.WalletRecord, error) {
	var wallets []domain.WalletRecord
	for rows.Next() {
		var w domain.WalletRecord
		if err := rows.Scan(&w.UserID, &w.VaultID, &w.Address, &w.AltAddress, &w.CreatedAt); err != nil {
			return nil, err
		}
		wallets = append(wallets, w)
	}
	return wallets, rows.Err()
}

// ListAll returns every registered wallet.
func (s *WalletStore) ListAll(ctx context.Context) ([]domain.WalletRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+walletSelectCols+` FROM wallets ORDER BY id ASC`)
	if err != nil {
		return nil, fmt.Errorf("postgres: list wallets: %w", err)
	}
	defer rows.Close()

	wallets, err := scanWalletRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan wallets: %w", err)
	}
	return wallets, nil
}

// ListActive returns wallets whose owner traded within the last sinceDays
// days, so a tight cadence can skip long-dormant accounts.
func (s *WalletStore) ListActive(ctx context.Context, sinceDays int) ([]domain.WalletRecord, error) {
	const query = `
		SELECT ` + walletSelectCols + ` FROM wallets w
		WHERE EXISTS (
			SELECT 1 FROM trades t
			WHERE t.user_id = w.user_id
			AND t.created_at >= NOW() - ($1 * INTERVAL '1 day')
		)
		ORDER BY w.id ASC`

	rows, err := s.pool.Query(ctx, query, sinceDays)
	if err != nil {
		return nil, fmt.Errorf("postgres: list active wallets: %w", err)
	}
	defer rows.Close()

	wallets, err := scanWalletRows(rows)
	if err != nil {
		return nil, fmt.Errorf("postgres: scan active wallets: %w", err)
	}
	return wallets, nil
}

// Compile-time interface check.
var _ domain.WalletStore = (*WalletStore)(nil)
