package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// TradeStore implements storage.TradeStore using PostgreSQL.
// The trades table is append-only: rows are never updated or deleted.
type TradeStore struct {
	pool *Pool
}

// NewTradeStore creates a new TradeStore.
func NewTradeStore(pool *Pool) *TradeStore {
	return &TradeStore{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeStore = (*TradeStore)(nil)

const tradeColumns = `
	signature, coin_id, user_id, side, token_amount,
	quote_amount::text, price_per_token::text, wallet_address, status,
	executed_at, created_at
`

const insertTradeSQL = `
	INSERT INTO trades (
		signature, coin_id, user_id, side, token_amount,
		quote_amount, price_per_token, wallet_address, status,
		executed_at, created_at
	) VALUES (
		$1, $2, $3, $4, $5,
		$6::numeric, $7::numeric, $8, $9,
		$10, $11
	)
`

func insertTradeArgs(t *domain.Trade) []any {
	return []any{
		t.Signature, t.CoinID, t.UserID, t.Side, t.TokenAmount,
		t.QuoteAmount.String(), t.PricePerToken.String(), t.WalletAddress, t.Status,
		t.ExecutedAt, t.CreatedAt,
	}
}

// Insert appends a trade. Returns ErrDuplicateKey if signature exists.
func (s *TradeStore) Insert(ctx context.Context, t *domain.Trade) error {
	_, err := s.pool.Exec(ctx, insertTradeSQL, insertTradeArgs(t)...)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert trade: %w", err)
	}
	return nil
}

// GetBySignature retrieves a trade. Returns ErrNotFound if not exists.
func (s *TradeStore) GetBySignature(ctx context.Context, signature string) (*domain.Trade, error) {
	query := `SELECT ` + tradeColumns + ` FROM trades WHERE signature = $1`

	row := s.pool.QueryRow(ctx, query, signature)
	t, err := scanTrade(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get trade by signature: %w", err)
	}
	return t, nil
}

// ListByCoin retrieves up to limit trades for a coin, newest first.
func (s *TradeStore) ListByCoin(ctx context.Context, coinID string, limit int) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE coin_id = $1
		ORDER BY executed_at DESC, signature ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, coinID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list trades by coin: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// ListByUser retrieves up to limit trades for a user, newest first.
func (s *TradeStore) ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error) {
	query := `
		SELECT ` + tradeColumns + `
		FROM trades
		WHERE user_id = $1
		ORDER BY executed_at DESC, signature ASC
		LIMIT $2
	`

	rows, err := s.pool.Query(ctx, query, userID, normalizeLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("list trades by user: %w", err)
	}
	defer rows.Close()

	return scanTrades(rows)
}

// defaultTradeLimit bounds unlimited history queries.
const defaultTradeLimit = 1000

func normalizeLimit(limit int) int {
	if limit <= 0 || limit > defaultTradeLimit {
		return defaultTradeLimit
	}
	return limit
}

// scanTrade scans a single row into a Trade.
func scanTrade(row pgx.Row) (*domain.Trade, error) {
	var t domain.Trade
	var quoteAmount, pricePerToken string

	err := row.Scan(
		&t.Signature, &t.CoinID, &t.UserID, &t.Side, &t.TokenAmount,
		&quoteAmount, &pricePerToken, &t.WalletAddress, &t.Status,
		&t.ExecutedAt, &t.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if t.QuoteAmount, err = decimal.NewFromString(quoteAmount); err != nil {
		return nil, fmt.Errorf("parse quote_amount: %w", err)
	}
	if t.PricePerToken, err = decimal.NewFromString(pricePerToken); err != nil {
		return nil, fmt.Errorf("parse price_per_token: %w", err)
	}
	return &t, nil
}

// scanTrades scans multiple rows into a slice of Trade.
func scanTrades(rows pgx.Rows) ([]*domain.Trade, error) {
	var trades []*domain.Trade

	for rows.Next() {
		t, err := scanTrade(rows)
		if err != nil {
			return nil, fmt.Errorf("scan trade row: %w", err)
		}
		trades = append(trades, t)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade rows: %w", err)
	}

	return trades, nil
}
