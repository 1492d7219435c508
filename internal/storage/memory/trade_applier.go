package memory

import (
	"context"
	"fmt"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// TradeApplier applies a trade across the in-memory stores.
//
// The engine serializes trades per coin, so the three mutations below are
// never interleaved with another trade on the same coin. The duplicate and
// version checks run before any mutation, which keeps the apply all-or-
// nothing without a rollback path.
type TradeApplier struct {
	coins   *CoinStore
	holders *HolderStore
	trades  *TradeStore
}

// NewTradeApplier creates a TradeApplier over the given memory stores.
func NewTradeApplier(coins *CoinStore, holders *HolderStore, trades *TradeStore) *TradeApplier {
	return &TradeApplier{coins: coins, holders: holders, trades: trades}
}

// ApplyTrade persists the coin update, holder upsert/delete, and trade
// append for one committed trade.
func (a *TradeApplier) ApplyTrade(ctx context.Context, app *domain.TradeApplication) error {
	if app == nil || app.Coin == nil || app.Trade == nil {
		return storage.ErrInvalidInput
	}
	if app.Holder == nil && !app.DeleteHolder {
		return storage.ErrInvalidInput
	}

	// Fail before mutating anything.
	if _, err := a.trades.GetBySignature(ctx, app.Trade.Signature); err == nil {
		return storage.ErrDuplicateKey
	}

	if err := a.coins.Update(ctx, app.Coin, app.ExpectedVersion); err != nil {
		return err
	}

	if app.DeleteHolder {
		if err := a.holders.Delete(ctx, app.Trade.CoinID, app.Trade.UserID); err != nil {
			return fmt.Errorf("delete holder: %w", err)
		}
	} else {
		if err := a.holders.Put(ctx, app.Holder); err != nil {
			return fmt.Errorf("put holder: %w", err)
		}
	}

	if err := a.trades.Insert(ctx, app.Trade); err != nil {
		return fmt.Errorf("append trade: %w", err)
	}

	return nil
}

// Verify interface compliance at compile time.
var _ storage.TradeApplier = (*TradeApplier)(nil)
