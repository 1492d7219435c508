package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// HolderStore implements storage.HolderStore using PostgreSQL.
// Mutations go through TradeApplier; this store reads only.
type HolderStore struct {
	pool *Pool
}

// NewHolderStore creates a new HolderStore.
func NewHolderStore(pool *Pool) *HolderStore {
	return &HolderStore{pool: pool}
}

// Compile-time interface check.
var _ storage.HolderStore = (*HolderStore)(nil)

const holderColumns = `
	coin_id, user_id, token_balance, total_bought, total_sold,
	avg_cost::text, realized_profit::text, created_at, updated_at
`

// Get retrieves the holder record for a (coin, user) pair.
func (s *HolderStore) Get(ctx context.Context, coinID, userID string) (*domain.Holder, error) {
	query := `SELECT ` + holderColumns + ` FROM holders WHERE coin_id = $1 AND user_id = $2`

	row := s.pool.QueryRow(ctx, query, coinID, userID)
	h, err := scanHolder(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get holder: %w", err)
	}
	return h, nil
}

// ListByCoin retrieves all holders of a coin, largest balance first.
func (s *HolderStore) ListByCoin(ctx context.Context, coinID string) ([]*domain.Holder, error) {
	query := `
		SELECT ` + holderColumns + `
		FROM holders
		WHERE coin_id = $1
		ORDER BY token_balance DESC, user_id ASC
	`

	rows, err := s.pool.Query(ctx, query, coinID)
	if err != nil {
		return nil, fmt.Errorf("list holders by coin: %w", err)
	}
	defer rows.Close()

	return scanHolders(rows)
}

// ListByUser retrieves all positions of a user.
func (s *HolderStore) ListByUser(ctx context.Context, userID string) ([]*domain.Holder, error) {
	query := `
		SELECT ` + holderColumns + `
		FROM holders
		WHERE user_id = $1
		ORDER BY coin_id ASC
	`

	rows, err := s.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("list holders by user: %w", err)
	}
	defer rows.Close()

	return scanHolders(rows)
}

// scanHolder scans a single row into a Holder.
func scanHolder(row pgx.Row) (*domain.Holder, error) {
	var h domain.Holder
	var avgCost, realizedProfit string

	err := row.Scan(
		&h.CoinID, &h.UserID, &h.TokenBalance, &h.TotalBought, &h.TotalSold,
		&avgCost, &realizedProfit, &h.CreatedAt, &h.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if h.AvgCost, err = decimal.NewFromString(avgCost); err != nil {
		return nil, fmt.Errorf("parse avg_cost: %w", err)
	}
	if h.RealizedProfit, err = decimal.NewFromString(realizedProfit); err != nil {
		return nil, fmt.Errorf("parse realized_profit: %w", err)
	}
	return &h, nil
}

// scanHolders scans multiple rows into a slice of Holder.
func scanHolders(rows pgx.Rows) ([]*domain.Holder, error) {
	var holders []*domain.Holder

	for rows.Next() {
		h, err := scanHolder(rows)
		if err != nil {
			return nil, fmt.Errorf("scan holder row: %w", err)
		}
		holders = append(holders, h)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate holder rows: %w", err)
	}

	return holders, nil
}
