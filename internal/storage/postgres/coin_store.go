package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/shopspring/decimal"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// CoinStore implements storage.CoinStore using PostgreSQL.
//
// Monetary columns are NUMERIC; values cross the wire as strings
// (::text on read, ::numeric casts on write) so decimals round-trip without
// precision loss.
type CoinStore struct {
	pool *Pool
}

// NewCoinStore creates a new CoinStore.
func NewCoinStore(pool *Pool) *CoinStore {
	return &CoinStore{pool: pool}
}

// Compile-time interface check.
var _ storage.CoinStore = (*CoinStore)(nil)

const coinColumns = `
	coin_id, creator_id, symbol, name,
	initial_price::text, price_increment::text, total_supply, graduation_threshold::text,
	tokens_sold, current_price::text, market_cap::text, liquidity_raised::text,
	holder_count, is_active, graduated, version, created_at, updated_at
`

// Insert adds a new coin. Returns ErrDuplicateKey if coin_id exists.
func (s *CoinStore) Insert(ctx context.Context, c *domain.Coin) error {
	query := `
		INSERT INTO coins (
			coin_id, creator_id, symbol, name,
			initial_price, price_increment, total_supply, graduation_threshold,
			tokens_sold, current_price, market_cap, liquidity_raised,
			holder_count, is_active, graduated, version, created_at, updated_at
		) VALUES (
			$1, $2, $3, $4,
			$5::numeric, $6::numeric, $7, $8::numeric,
			$9, $10::numeric, $11::numeric, $12::numeric,
			$13, $14, $15, $16, $17, $18
		)
	`

	_, err := s.pool.Exec(ctx, query,
		c.CoinID, c.CreatorID, c.Symbol, c.Name,
		c.InitialPrice.String(), c.PriceIncrement.String(), c.TotalSupply, c.GraduationThreshold.String(),
		c.TokensSold, c.CurrentPrice.String(), c.MarketCap.String(), c.LiquidityRaised.String(),
		c.HolderCount, c.IsActive, c.Graduated, c.Version, c.CreatedAt, c.UpdatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert coin: %w", err)
	}
	return nil
}

// GetByID retrieves a coin by its ID. Returns ErrNotFound if not exists.
func (s *CoinStore) GetByID(ctx context.Context, coinID string) (*domain.Coin, error) {
	query := `SELECT ` + coinColumns + ` FROM coins WHERE coin_id = $1`

	row := s.pool.QueryRow(ctx, query, coinID)
	c, err := scanCoin(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get coin by id: %w", err)
	}
	return c, nil
}

// ListActive retrieves all active coins, newest first.
func (s *CoinStore) ListActive(ctx context.Context) ([]*domain.Coin, error) {
	query := `
		SELECT ` + coinColumns + `
		FROM coins
		WHERE is_active = TRUE
		ORDER BY created_at DESC, coin_id ASC
	`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list active coins: %w", err)
	}
	defer rows.Close()

	return scanCoins(rows)
}

// ListByCreator retrieves all coins launched by a user, newest first.
func (s *CoinStore) ListByCreator(ctx context.Context, creatorID string) ([]*domain.Coin, error) {
	query := `
		SELECT ` + coinColumns + `
		FROM coins
		WHERE creator_id = $1
		ORDER BY created_at DESC, coin_id ASC
	`

	rows, err := s.pool.Query(ctx, query, creatorID)
	if err != nil {
		return nil, fmt.Errorf("list coins by creator: %w", err)
	}
	defer rows.Close()

	return scanCoins(rows)
}

// Update replaces coin state if the stored version equals expectedVersion.
func (s *CoinStore) Update(ctx context.Context, c *domain.Coin, expectedVersion int64) error {
	tag, err := s.pool.Exec(ctx, updateCoinSQL, updateCoinArgs(c, expectedVersion)...)
	if err != nil {
		return fmt.Errorf("update coin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Distinguish a missing coin from a concurrent change.
		if _, err := s.GetByID(ctx, c.CoinID); err != nil {
			return err
		}
		return storage.ErrVersionConflict
	}
	return nil
}

// updateCoinSQL is shared with TradeApplier so both paths carry the same
// optimistic version guard.
const updateCoinSQL = `
	UPDATE coins SET
		tokens_sold = $3,
		current_price = $4::numeric,
		market_cap = $5::numeric,
		liquidity_raised = $6::numeric,
		holder_count = $7,
		is_active = $8,
		graduated = $9,
		version = $10,
		updated_at = $11
	WHERE coin_id = $1 AND version = $2
`

func updateCoinArgs(c *domain.Coin, expectedVersion int64) []any {
	return []any{
		c.CoinID, expectedVersion,
		c.TokensSold,
		c.CurrentPrice.String(),
		c.MarketCap.String(),
		c.LiquidityRaised.String(),
		c.HolderCount,
		c.IsActive,
		c.Graduated,
		c.Version,
		c.UpdatedAt,
	}
}

// scanCoin scans a single row into a Coin.
func scanCoin(row pgx.Row) (*domain.Coin, error) {
	var c domain.Coin
	var initialPrice, priceIncrement, graduationThreshold string
	var currentPrice, marketCap, liquidityRaised string

	err := row.Scan(
		&c.CoinID, &c.CreatorID, &c.Symbol, &c.Name,
		&initialPrice, &priceIncrement, &c.TotalSupply, &graduationThreshold,
		&c.TokensSold, &currentPrice, &marketCap, &liquidityRaised,
		&c.HolderCount, &c.IsActive, &c.Graduated, &c.Version, &c.CreatedAt, &c.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := parseCoinDecimals(&c, initialPrice, priceIncrement, graduationThreshold,
		currentPrice, marketCap, liquidityRaised); err != nil {
		return nil, err
	}
	return &c, nil
}

// scanCoins scans multiple rows into a slice of Coin.
func scanCoins(rows pgx.Rows) ([]*domain.Coin, error) {
	var coins []*domain.Coin

	for rows.Next() {
		c, err := scanCoin(rows)
		if err != nil {
			return nil, fmt.Errorf("scan coin row: %w", err)
		}
		coins = append(coins, c)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate coin rows: %w", err)
	}

	return coins, nil
}

func parseCoinDecimals(c *domain.Coin, initialPrice, priceIncrement, graduationThreshold,
	currentPrice, marketCap, liquidityRaised string) error {
	var err error
	if c.InitialPrice, err = decimal.NewFromString(initialPrice); err != nil {
		return fmt.Errorf("parse initial_price: %w", err)
	}
	if c.PriceIncrement, err = decimal.NewFromString(priceIncrement); err != nil {
		return fmt.Errorf("parse price_increment: %w", err)
	}
	if c.GraduationThreshold, err = decimal.NewFromString(graduationThreshold); err != nil {
		return fmt.Errorf("parse graduation_threshold: %w", err)
	}
	if c.CurrentPrice, err = decimal.NewFromString(currentPrice); err != nil {
		return fmt.Errorf("parse current_price: %w", err)
	}
	if c.MarketCap, err = decimal.NewFromString(marketCap); err != nil {
		return fmt.Errorf("parse market_cap: %w", err)
	}
	if c.LiquidityRaised, err = decimal.NewFromString(liquidityRaised); err != nil {
		return fmt.Errorf("parse liquidity_raised: %w", err)
	}
	return nil
}
