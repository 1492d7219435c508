package postgres

import (
	"context"
	"fmt"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// TradeApplier implements storage.TradeApplier using a single PostgreSQL
// transaction: coin update (guarded by the optimistic version check), holder
// upsert or delete, and trade append commit together or roll back together.
type TradeApplier struct {
	pool *Pool
}

// NewTradeApplier creates a new TradeApplier.
func NewTradeApplier(pool *Pool) *TradeApplier {
	return &TradeApplier{pool: pool}
}

// Compile-time interface check.
var _ storage.TradeApplier = (*TradeApplier)(nil)

const upsertHolderSQL = `
	INSERT INTO holders (
		coin_id, user_id, token_balance, total_bought, total_sold,
		avg_cost, realized_profit, created_at, updated_at
	) VALUES (
		$1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9
	)
	ON CONFLICT (coin_id, user_id) DO UPDATE SET
		token_balance = EXCLUDED.token_balance,
		total_bought = EXCLUDED.total_bought,
		total_sold = EXCLUDED.total_sold,
		avg_cost = EXCLUDED.avg_cost,
		realized_profit = EXCLUDED.realized_profit,
		updated_at = EXCLUDED.updated_at
`

// ApplyTrade persists the full effect of one trade atomically.
func (a *TradeApplier) ApplyTrade(ctx context.Context, app *domain.TradeApplication) error {
	if app == nil || app.Coin == nil || app.Trade == nil {
		return storage.ErrInvalidInput
	}
	if app.Holder == nil && !app.DeleteHolder {
		return storage.ErrInvalidInput
	}

	tx, err := a.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin trade transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	// Coin state, refused when the stored version moved.
	tag, err := tx.Exec(ctx, updateCoinSQL, updateCoinArgs(app.Coin, app.ExpectedVersion)...)
	if err != nil {
		return fmt.Errorf("apply coin state: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return storage.ErrVersionConflict
	}

	// Holder ledger.
	if app.DeleteHolder {
		tag, err = tx.Exec(ctx, `DELETE FROM holders WHERE coin_id = $1 AND user_id = $2`,
			app.Trade.CoinID, app.Trade.UserID)
		if err != nil {
			return fmt.Errorf("delete holder: %w", err)
		}
		if tag.RowsAffected() == 0 {
			return fmt.Errorf("delete holder: %w", storage.ErrNotFound)
		}
	} else {
		h := app.Holder
		_, err = tx.Exec(ctx, upsertHolderSQL,
			h.CoinID, h.UserID, h.TokenBalance, h.TotalBought, h.TotalSold,
			h.AvgCost.String(), h.RealizedProfit.String(), h.CreatedAt, h.UpdatedAt,
		)
		if err != nil {
			return fmt.Errorf("upsert holder: %w", err)
		}
	}

	// Trade log append.
	if _, err := tx.Exec(ctx, insertTradeSQL, insertTradeArgs(app.Trade)...); err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("append trade: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit trade transaction: %w", err)
	}
	return nil
}
