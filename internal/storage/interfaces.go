package storage

import (
	"context"

	"github.com/shopspring/decimal"

	"curve-exchange/internal/domain"
)

// CoinStore provides access to coins storage.
type CoinStore interface {
	// Insert adds a new coin. Returns ErrDuplicateKey if coin_id exists.
	Insert(ctx context.Context, c *domain.Coin) error

	// GetByID retrieves a coin by its ID. Returns ErrNotFound if not exists.
	GetByID(ctx context.Context, coinID string) (*domain.Coin, error)

	// ListActive retrieves all active coins, newest first.
	ListActive(ctx context.Context) ([]*domain.Coin, error)

	// ListByCreator retrieves all coins launched by a user, newest first.
	ListByCreator(ctx context.Context, creatorID string) ([]*domain.Coin, error)

	// Update replaces coin state if the stored version equals
	// expectedVersion. Returns ErrVersionConflict otherwise and
	// ErrNotFound if the coin does not exist.
	Update(ctx context.Context, c *domain.Coin, expectedVersion int64) error
}

// HolderStore provides read access to holders storage. Holder mutations
// happen exclusively through TradeApplier.
type HolderStore interface {
	// Get retrieves the holder record for a (coin, user) pair.
	// Returns ErrNotFound if the user holds no position.
	Get(ctx context.Context, coinID, userID string) (*domain.Holder, error)

	// ListByCoin retrieves all holders of a coin, largest balance first.
	ListByCoin(ctx context.Context, coinID string) ([]*domain.Holder, error)

	// ListByUser retrieves all positions of a user.
	ListByUser(ctx context.Context, userID string) ([]*domain.Holder, error)
}

// TradeStore provides access to the append-only trade log.
type TradeStore interface {
	// Insert appends a trade. Returns ErrDuplicateKey if signature exists.
	Insert(ctx context.Context, t *domain.Trade) error

	// GetBySignature retrieves a trade. Returns ErrNotFound if not exists.
	GetBySignature(ctx context.Context, signature string) (*domain.Trade, error)

	// ListByCoin retrieves up to limit trades for a coin, newest first.
	ListByCoin(ctx context.Context, coinID string, limit int) ([]*domain.Trade, error)

	// ListByUser retrieves up to limit trades for a user, newest first.
	ListByUser(ctx context.Context, userID string, limit int) ([]*domain.Trade, error)
}

// TradeApplier persists the full effect of one trade atomically: coin state,
// holder upsert or delete, and the trade log append all land together or not
// at all. Returns ErrVersionConflict if the coin changed since the caller
// read it, ErrDuplicateKey if the trade signature already exists.
type TradeApplier interface {
	ApplyTrade(ctx context.Context, app *domain.TradeApplication) error
}

// TradeTickStore provides access to trade tick analytics storage.
type TradeTickStore interface {
	// InsertBulk appends multiple ticks.
	InsertBulk(ctx context.Context, ticks []*domain.TradeTick) error

	// GetByCoinRange retrieves ticks for a coin within [start, end]
	// (inclusive, ms), ordered by timestamp ASC.
	GetByCoinRange(ctx context.Context, coinID string, start, end int64) ([]*domain.TradeTick, error)

	// Volume24h returns the total quote volume for a coin over the 24 hours
	// preceding nowMs.
	Volume24h(ctx context.Context, coinID string, nowMs int64) (decimal.Decimal, error)
}
