// Package engine orchestrates trades against the bonding curve.
// One trade runs validating → pricing → applying; the per-coin lock plus the
// optimistic version check in the applier keep concurrent trades on the same
// coin linearizable.
package engine

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"sync/atomic"
	"time"

	"github.com/shopspring/decimal"

	"curve-exchange/internal/curve"
	"curve-exchange/internal/domain"
	"curve-exchange/internal/idhash"
	"curve-exchange/internal/observability"
	"curve-exchange/internal/signature"
	"curve-exchange/internal/storage"
)

// maxApplyRetries bounds reload-and-retry after a version conflict. The
// per-coin lock makes conflicts impossible within one process; the retry
// covers state changed by another writer on the same database.
const maxApplyRetries = 3

// TradePublisher receives committed trades for realtime delivery.
// Delivery is best-effort and happens outside the atomic apply.
type TradePublisher interface {
	PublishTrade(t *domain.Trade)
}

// Engine executes trades, creates coins, and serves engine-level stats.
type Engine struct {
	coins   storage.CoinStore
	holders storage.HolderStore
	trades  storage.TradeStore
	applier storage.TradeApplier
	ticks   storage.TradeTickStore // optional
	feed    TradePublisher         // optional

	signer *signature.Signer
	locks  *coinLocks
	logger *log.Logger

	startedAt      time.Time
	tradesExecuted atomic.Int64
	tradesRejected atomic.Int64
	coinsCreated   atomic.Int64
}

// Options for creating an Engine.
type Options struct {
	// Required stores
	CoinStore   storage.CoinStore
	HolderStore storage.HolderStore
	TradeStore  storage.TradeStore
	Applier     storage.TradeApplier

	// Optional collaborators
	TickStore storage.TradeTickStore
	Feed      TradePublisher
	Signer    *signature.Signer
	Logger    *log.Logger
}

// New creates a new Engine.
func New(opts Options) (*Engine, error) {
	if opts.CoinStore == nil || opts.HolderStore == nil || opts.TradeStore == nil || opts.Applier == nil {
		return nil, errors.New("engine requires coin, holder, and trade stores plus an applier")
	}

	signer := opts.Signer
	if signer == nil {
		var err error
		signer, err = signature.NewSigner()
		if err != nil {
			return nil, fmt.Errorf("create signer: %w", err)
		}
	}

	logger := opts.Logger
	if logger == nil {
		logger = log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile)
	}

	return &Engine{
		coins:     opts.CoinStore,
		holders:   opts.HolderStore,
		trades:    opts.TradeStore,
		applier:   opts.Applier,
		ticks:     opts.TickStore,
		feed:      opts.Feed,
		signer:    signer,
		locks:     newCoinLocks(),
		logger:    logger,
		startedAt: time.Now(),
	}, nil
}

// TradeResult is the summary returned for one committed trade.
type TradeResult struct {
	Signature    string          `json:"signature"`
	CoinID       string          `json:"coin_id"`
	Side         string          `json:"side"`
	TokenAmount  int64           `json:"token_amount"`
	QuoteAmount  decimal.Decimal `json:"quote_amount"`
	AveragePrice decimal.Decimal `json:"average_price"`
	NewPrice     decimal.Decimal `json:"new_price"`
	TokensSold   int64           `json:"tokens_sold"`
	Graduated    bool            `json:"graduated"`
}

// Buy executes a buy of amount token units for userID.
func (e *Engine) Buy(ctx context.Context, coinID, userID string, amount int64) (*TradeResult, error) {
	return e.trade(ctx, curve.DirectionBuy, coinID, userID, amount, "")
}

// Sell executes a sell of amount token units for userID. walletAddress is
// pass-through audit data; a malformed address is logged, never rejected.
func (e *Engine) Sell(ctx context.Context, coinID, userID string, amount int64, walletAddress string) (*TradeResult, error) {
	if walletAddress != "" && !signature.IsOnCurve(walletAddress) {
		e.logger.Printf("WARN: wallet address %q is not a valid ed25519 point (coin=%s user=%s)",
			walletAddress, coinID, userID)
	}
	return e.trade(ctx, curve.DirectionSell, coinID, userID, amount, walletAddress)
}

// trade runs the full validate-price-apply sequence under the coin's lock.
func (e *Engine) trade(ctx context.Context, dir curve.Direction, coinID, userID string, amount int64, walletAddress string) (*TradeResult, error) {
	started := time.Now()

	if userID == "" {
		return nil, e.reject(ErrUnauthorized)
	}
	if amount <= 0 {
		return nil, e.reject(ErrInvalidAmount)
	}

	lock := e.locks.get(coinID)
	lock.Lock()
	defer lock.Unlock()

	var lastErr error
	for attempt := 0; attempt <= maxApplyRetries; attempt++ {
		if attempt > 0 {
			observability.RecordTradeRetry()
		}

		result, err := e.tradeOnce(ctx, dir, coinID, userID, amount, walletAddress)
		if err == nil {
			e.tradesExecuted.Add(1)
			observability.RecordTradeExecuted(string(dir), time.Since(started).Seconds())
			return result, nil
		}
		if !errors.Is(err, storage.ErrVersionConflict) {
			return nil, e.reject(err)
		}
		lastErr = err
	}

	e.logger.Printf("trade %s coin=%s user=%s: version conflict persisted after %d retries",
		dir, coinID, userID, maxApplyRetries)
	return nil, e.reject(fmt.Errorf("%w: %v", ErrApplyFailure, lastErr))
}

// tradeOnce prices and applies one trade against a fresh coin snapshot.
// Returns storage.ErrVersionConflict when another writer moved the coin
// between the read and the apply.
func (e *Engine) tradeOnce(ctx context.Context, dir curve.Direction, coinID, userID string, amount int64, walletAddress string) (*TradeResult, error) {
	coin, err := e.coins.GetByID(ctx, coinID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("%w: load coin: %v", ErrApplyFailure, err)
	}

	if !coin.IsActive {
		return nil, ErrCoinInactive
	}
	if coin.Graduated {
		return nil, ErrCoinGraduated
	}

	var holder *domain.Holder
	if dir == curve.DirectionSell {
		holder, err = e.holders.Get(ctx, coinID, userID)
		if err != nil {
			if errors.Is(err, storage.ErrNotFound) {
				return nil, ErrNotFound
			}
			return nil, fmt.Errorf("%w: load holder: %v", ErrApplyFailure, err)
		}
		if holder.TokenBalance < amount {
			return nil, ErrInsufficientBalance
		}
	} else {
		holder, err = e.holders.Get(ctx, coinID, userID)
		if err != nil && !errors.Is(err, storage.ErrNotFound) {
			return nil, fmt.Errorf("%w: load holder: %v", ErrApplyFailure, err)
		}
	}

	params := curve.Params{
		InitialPrice:   coin.InitialPrice,
		PriceIncrement: coin.PriceIncrement,
		TotalSupply:    coin.TotalSupply,
	}
	quote, err := curve.Quote(dir, params, coin.TokensSold, amount)
	if err != nil {
		switch {
		case errors.Is(err, curve.ErrPositionExceeded):
			return nil, ErrInsufficientBalance
		default:
			return nil, ErrInvalidAmount
		}
	}

	now := time.Now().UnixMilli()
	app := e.buildApplication(dir, coin, holder, quote, amount, userID, walletAddress, now)

	if err := e.applier.ApplyTrade(ctx, app); err != nil {
		if errors.Is(err, storage.ErrVersionConflict) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %v", ErrApplyFailure, err)
	}

	if app.Coin.Graduated && !coin.Graduated {
		observability.RecordCoinGraduated()
		e.logger.Printf("coin %s graduated at tokens_sold=%d", coinID, app.Coin.TokensSold)
	}

	e.afterCommit(ctx, app.Trade)

	return &TradeResult{
		Signature:    app.Trade.Signature,
		CoinID:       coinID,
		Side:         app.Trade.Side,
		TokenAmount:  amount,
		QuoteAmount:  quote.TotalQuote,
		AveragePrice: quote.AveragePrice,
		NewPrice:     quote.NewPrice,
		TokensSold:   app.Coin.TokensSold,
		Graduated:    app.Coin.Graduated,
	}, nil
}

// buildApplication assembles the post-trade coin, holder, and trade record.
func (e *Engine) buildApplication(dir curve.Direction, coin *domain.Coin, holder *domain.Holder,
	quote *curve.Result, amount int64, userID, walletAddress string, now int64) *domain.TradeApplication {

	after := *coin
	after.TokensSold = quote.NewTokensSold
	after.CurrentPrice = quote.NewPrice
	after.MarketCap = quote.NewPrice.Mul(decimal.NewFromInt(coin.TotalSupply))
	after.Version = coin.Version + 1
	after.UpdatedAt = now

	app := &domain.TradeApplication{
		Coin:            &after,
		ExpectedVersion: coin.Version,
	}

	if dir == curve.DirectionBuy {
		after.LiquidityRaised = coin.LiquidityRaised.Add(quote.TotalQuote)
		if quote.NewTokensSold >= coin.GraduationTarget() {
			after.Graduated = true
		}

		if holder == nil {
			after.HolderCount = coin.HolderCount + 1
			app.CreateHolder = true
			app.Holder = &domain.Holder{
				CoinID:       coin.CoinID,
				UserID:       userID,
				TokenBalance: amount,
				TotalBought:  amount,
				AvgCost:      quote.AveragePrice,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
		} else {
			// Running weighted-average cost basis: fold the new cost into
			// the existing position.
			h := *holder
			newBalance := h.TokenBalance + amount
			totalCost := h.AvgCost.Mul(decimal.NewFromInt(h.TokenBalance)).Add(quote.TotalQuote)
			h.AvgCost = totalCost.Div(decimal.NewFromInt(newBalance))
			h.TokenBalance = newBalance
			h.TotalBought += amount
			h.UpdatedAt = now
			app.Holder = &h
		}
	} else {
		after.LiquidityRaised = coin.LiquidityRaised.Sub(quote.TotalQuote)
		if after.LiquidityRaised.IsNegative() {
			after.LiquidityRaised = decimal.Zero
		}

		h := *holder
		h.TokenBalance -= amount
		h.TotalSold += amount
		// Sells realize proceeds minus the average cost of the sold units.
		costBasis := h.AvgCost.Mul(decimal.NewFromInt(amount))
		h.RealizedProfit = h.RealizedProfit.Add(quote.TotalQuote.Sub(costBasis))
		h.UpdatedAt = now

		if h.TokenBalance == 0 {
			app.DeleteHolder = true
			after.HolderCount = coin.HolderCount - 1
			if after.HolderCount < 0 {
				after.HolderCount = 0
			}
		} else {
			app.Holder = &h
		}
	}

	side := domain.TradeSideBuy
	if dir == curve.DirectionSell {
		side = domain.TradeSideSell
	}
	app.Trade = &domain.Trade{
		Signature:     e.signer.SignTrade(coin.CoinID, userID, side, amount, now),
		CoinID:        coin.CoinID,
		UserID:        userID,
		Side:          side,
		TokenAmount:   amount,
		QuoteAmount:   quote.TotalQuote,
		PricePerToken: quote.AveragePrice,
		WalletAddress: walletAddress,
		Status:        domain.TradeStatusConfirmed,
		ExecutedAt:    now,
		CreatedAt:     now,
	}

	return app
}

// afterCommit handles best-effort side effects of a committed trade: the
// analytic tick write and the realtime feed push. Failures are logged, never
// surfaced to the trader.
func (e *Engine) afterCommit(ctx context.Context, t *domain.Trade) {
	if e.ticks != nil {
		tick := &domain.TradeTick{
			CoinID:      t.CoinID,
			TimestampMs: t.ExecutedAt,
			Side:        t.Side,
			TokenAmount: t.TokenAmount,
			QuoteAmount: t.QuoteAmount,
			Price:       t.PricePerToken,
		}
		err := e.ticks.InsertBulk(ctx, []*domain.TradeTick{tick})
		observability.RecordTickWrite(1, err)
		if err != nil {
			e.logger.Printf("WARN: tick write for trade %s failed: %v", t.Signature, err)
		}
	}

	if e.feed != nil {
		e.feed.PublishTrade(t)
	}
}

// reject counts and classifies one rejected trade.
func (e *Engine) reject(err error) error {
	e.tradesRejected.Add(1)
	observability.RecordTradeRejected(rejectionReason(err))
	return err
}

func rejectionReason(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidAmount):
		return "invalid_amount"
	case errors.Is(err, ErrInsufficientBalance):
		return "insufficient_balance"
	case errors.Is(err, ErrCoinInactive):
		return "coin_inactive"
	case errors.Is(err, ErrCoinGraduated):
		return "coin_graduated"
	case errors.Is(err, ErrApplyFailure):
		return "apply_failure"
	default:
		return "other"
	}
}

// CreateCoinParams are the caller-supplied coin attributes. Curve parameters
// are fixed platform-wide and not caller-controlled.
type CreateCoinParams struct {
	CreatorID string
	Symbol    string
	Name      string
}

// CreateCoin initializes a coin with the fixed curve defaults and a
// deterministic id derived from creator, symbol, name, and creation time.
func (e *Engine) CreateCoin(ctx context.Context, params CreateCoinParams) (*domain.Coin, error) {
	if params.CreatorID == "" {
		return nil, ErrUnauthorized
	}
	if params.Symbol == "" || params.Name == "" {
		return nil, fmt.Errorf("%w: symbol and name are required", ErrInvalidParams)
	}

	now := time.Now().UnixMilli()
	coin := &domain.Coin{
		CoinID:              idhash.ComputeCoinID(params.CreatorID, params.Symbol, params.Name, now),
		CreatorID:           params.CreatorID,
		Symbol:              params.Symbol,
		Name:                params.Name,
		InitialPrice:        domain.DefaultInitialPrice,
		PriceIncrement:      domain.DefaultPriceIncrement,
		TotalSupply:         domain.DefaultTotalSupply,
		GraduationThreshold: domain.DefaultGraduationThreshold,
		TokensSold:          0,
		CurrentPrice:        domain.DefaultInitialPrice,
		MarketCap:           domain.DefaultInitialPrice.Mul(decimal.NewFromInt(domain.DefaultTotalSupply)),
		LiquidityRaised:     decimal.Zero,
		HolderCount:         0,
		IsActive:            true,
		Graduated:           false,
		Version:             1,
		CreatedAt:           now,
		UpdatedAt:           now,
	}

	if err := e.coins.Insert(ctx, coin); err != nil {
		if errors.Is(err, storage.ErrDuplicateKey) {
			return nil, ErrDuplicateCoin
		}
		return nil, fmt.Errorf("%w: %v", ErrApplyFailure, err)
	}

	e.coinsCreated.Add(1)
	observability.RecordCoinCreated()
	e.logger.Printf("coin %s (%s) created by %s", coin.CoinID, coin.Symbol, coin.CreatorID)
	return coin, nil
}

// DeactivateCoin soft-deactivates a coin. Only the creator may deactivate;
// the coin row is never deleted.
func (e *Engine) DeactivateCoin(ctx context.Context, coinID, userID string) error {
	if userID == "" {
		return ErrUnauthorized
	}

	lock := e.locks.get(coinID)
	lock.Lock()
	defer lock.Unlock()

	coin, err := e.coins.GetByID(ctx, coinID)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return ErrNotFound
		}
		return fmt.Errorf("%w: load coin: %v", ErrApplyFailure, err)
	}
	if coin.CreatorID != userID {
		return ErrUnauthorized
	}
	if !coin.IsActive {
		return nil
	}

	expected := coin.Version
	coin.IsActive = false
	coin.Version++
	coin.UpdatedAt = time.Now().UnixMilli()

	if err := e.coins.Update(ctx, coin, expected); err != nil {
		return fmt.Errorf("%w: deactivate coin: %v", ErrApplyFailure, err)
	}

	observability.RecordCoinDeactivated()
	e.logger.Printf("coin %s deactivated by %s", coinID, userID)
	return nil
}

// Stats is a point-in-time snapshot of engine counters.
type Stats struct {
	UptimeSeconds  int64 `json:"uptime_seconds"`
	TradesExecuted int64 `json:"trades_executed"`
	TradesRejected int64 `json:"trades_rejected"`
	CoinsCreated   int64 `json:"coins_created"`
}

// Stats returns the engine counters for the status endpoint.
func (e *Engine) Stats() Stats {
	return Stats{
		UptimeSeconds:  int64(time.Since(e.startedAt).Seconds()),
		TradesExecuted: e.tradesExecuted.Load(),
		TradesRejected: e.tradesRejected.Load(),
		CoinsCreated:   e.coinsCreated.Load(),
	}
}
