package engine

import (
	"context"
	"io"
	"log"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage/memory"
)

// testEngine wires an Engine over fresh memory stores.
type testEngine struct {
	engine  *Engine
	coins   *memory.CoinStore
	holders *memory.HolderStore
	trades  *memory.TradeStore
	ticks   *memory.TradeTickStore
}

func newTestEngine(t *testing.T) *testEngine {
	t.Helper()

	coins := memory.NewCoinStore()
	holders := memory.NewHolderStore()
	trades := memory.NewTradeStore()
	ticks := memory.NewTradeTickStore()

	eng, err := New(Options{
		CoinStore:   coins,
		HolderStore: holders,
		TradeStore:  trades,
		Applier:     memory.NewTradeApplier(coins, holders, trades),
		TickStore:   ticks,
		Logger:      log.New(io.Discard, "", 0),
	})
	require.NoError(t, err)

	return &testEngine{engine: eng, coins: coins, holders: holders, trades: trades, ticks: ticks}
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// seedCoin inserts a coin in an arbitrary curve position.
func (te *testEngine) seedCoin(t *testing.T, coinID string, tokensSold int64, liquidity decimal.Decimal, holderCount int) *domain.Coin {
	t.Helper()

	coin := &domain.Coin{
		CoinID:              coinID,
		CreatorID:           "creator-1",
		Symbol:              "TEST",
		Name:                "Test Coin",
		InitialPrice:        domain.DefaultInitialPrice,
		PriceIncrement:      domain.DefaultPriceIncrement,
		TotalSupply:         domain.DefaultTotalSupply,
		GraduationThreshold: domain.DefaultGraduationThreshold,
		TokensSold:          tokensSold,
		CurrentPrice:        domain.DefaultInitialPrice.Add(domain.DefaultPriceIncrement.Mul(decimal.NewFromInt(tokensSold))),
		LiquidityRaised:     liquidity,
		HolderCount:         holderCount,
		IsActive:            true,
		Version:             1,
		CreatedAt:           1000,
		UpdatedAt:           1000,
	}
	coin.MarketCap = coin.CurrentPrice.Mul(decimal.NewFromInt(coin.TotalSupply))
	require.NoError(t, te.coins.Insert(context.Background(), coin))
	return coin
}

func (te *testEngine) seedHolder(t *testing.T, coinID, userID string, balance int64, avgCost decimal.Decimal) {
	t.Helper()

	require.NoError(t, te.holders.Put(context.Background(), &domain.Holder{
		CoinID:       coinID,
		UserID:       userID,
		TokenBalance: balance,
		TotalBought:  balance,
		AvgCost:      avgCost,
		CreatedAt:    1000,
		UpdatedAt:    1000,
	}))
}

func TestCreateCoin(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	coin, err := te.engine.CreateCoin(ctx, CreateCoinParams{
		CreatorID: "creator-1",
		Symbol:    "MEME",
		Name:      "Meme Coin",
	})
	require.NoError(t, err)

	assert.Len(t, coin.CoinID, 64)
	assert.True(t, domain.DefaultInitialPrice.Equal(coin.InitialPrice))
	assert.True(t, domain.DefaultPriceIncrement.Equal(coin.PriceIncrement))
	assert.Equal(t, domain.DefaultTotalSupply, coin.TotalSupply)
	assert.True(t, domain.DefaultGraduationThreshold.Equal(coin.GraduationThreshold))
	assert.Equal(t, int64(0), coin.TokensSold)
	assert.True(t, domain.DefaultInitialPrice.Equal(coin.CurrentPrice))
	assert.True(t, dec("100000").Equal(coin.MarketCap), "market_cap = %s", coin.MarketCap)
	assert.True(t, coin.IsActive)
	assert.False(t, coin.Graduated)
	assert.Equal(t, int64(1), coin.Version)

	stored, err := te.coins.GetByID(ctx, coin.CoinID)
	require.NoError(t, err)
	assert.Equal(t, coin.CoinID, stored.CoinID)
}

func TestCreateCoin_Validation(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	_, err := te.engine.CreateCoin(ctx, CreateCoinParams{Symbol: "X", Name: "X"})
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = te.engine.CreateCoin(ctx, CreateCoinParams{CreatorID: "u", Name: "X"})
	assert.ErrorIs(t, err, ErrInvalidParams)

	_, err = te.engine.CreateCoin(ctx, CreateCoinParams{CreatorID: "u", Symbol: "X"})
	assert.ErrorIs(t, err, ErrInvalidParams)
}

func TestBuy_FirstBuyCreatesHolder(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 0, decimal.Zero, 0)

	result, err := te.engine.Buy(ctx, "coin-1", "user-1", 100)
	require.NoError(t, err)

	// Closed-form cost for 100 units from position 0
	assert.True(t, dec("0.0100495").Equal(result.QuoteAmount), "quote = %s", result.QuoteAmount)
	assert.True(t, dec("0.000100495").Equal(result.AveragePrice), "avg = %s", result.AveragePrice)
	assert.True(t, dec("0.000101").Equal(result.NewPrice), "price = %s", result.NewPrice)
	assert.Equal(t, int64(100), result.TokensSold)
	assert.NotEmpty(t, result.Signature)

	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), coin.TokensSold)
	assert.Equal(t, 1, coin.HolderCount)
	assert.True(t, dec("0.0100495").Equal(coin.LiquidityRaised))
	assert.True(t, dec("101000").Equal(coin.MarketCap), "market_cap = %s", coin.MarketCap)
	assert.Equal(t, int64(2), coin.Version)

	holder, err := te.holders.Get(ctx, "coin-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), holder.TokenBalance)
	assert.Equal(t, int64(100), holder.TotalBought)
	assert.True(t, dec("0.000100495").Equal(holder.AvgCost))

	trades, err := te.trades.ListByCoin(ctx, "coin-1", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, domain.TradeSideBuy, trades[0].Side)
	assert.Equal(t, result.Signature, trades[0].Signature)

	ticks, err := te.ticks.GetByCoinRange(ctx, "coin-1", 0, trades[0].ExecutedAt)
	require.NoError(t, err)
	assert.Len(t, ticks, 1)
}

func TestBuy_SecondBuyAveragesCost(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 0, decimal.Zero, 0)

	_, err := te.engine.Buy(ctx, "coin-1", "user-1", 100)
	require.NoError(t, err)
	_, err = te.engine.Buy(ctx, "coin-1", "user-1", 100)
	require.NoError(t, err)

	holder, err := te.holders.Get(ctx, "coin-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), holder.TokenBalance)
	assert.Equal(t, int64(200), holder.TotalBought)
	// (0.0100495 + 0.0101495) / 200
	assert.True(t, dec("0.000100995").Equal(holder.AvgCost), "avg_cost = %s", holder.AvgCost)

	// Same user again: holder count stays 1
	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, coin.HolderCount)
}

func TestBuy_Validation(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 0, decimal.Zero, 0)

	_, err := te.engine.Buy(ctx, "coin-1", "", 100)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = te.engine.Buy(ctx, "coin-1", "user-1", 0)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = te.engine.Buy(ctx, "coin-1", "user-1", -5)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	_, err = te.engine.Buy(ctx, "coin-404", "user-1", 100)
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = te.engine.Buy(ctx, "coin-1", "user-1", domain.DefaultTotalSupply+1)
	assert.ErrorIs(t, err, ErrInvalidAmount)

	stats := te.engine.Stats()
	assert.Equal(t, int64(5), stats.TradesRejected)
}

func TestBuy_InactiveAndGraduated(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()

	inactive := te.seedCoin(t, "coin-off", 0, decimal.Zero, 0)
	inactive.IsActive = false
	inactive.Version = 2
	require.NoError(t, te.coins.Update(ctx, inactive, 1))

	graduated := te.seedCoin(t, "coin-grad", 850_000_000, decimal.Zero, 0)
	graduated.Graduated = true
	graduated.Version = 2
	require.NoError(t, te.coins.Update(ctx, graduated, 1))

	_, err := te.engine.Buy(ctx, "coin-off", "user-1", 100)
	assert.ErrorIs(t, err, ErrCoinInactive)

	_, err = te.engine.Buy(ctx, "coin-grad", "user-1", 100)
	assert.ErrorIs(t, err, ErrCoinGraduated)

	_, err = te.engine.Sell(ctx, "coin-grad", "user-1", 100, "")
	assert.ErrorIs(t, err, ErrCoinGraduated)
}

func TestBuy_GraduationFlip(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 849_999_999, decimal.Zero, 0)

	// This buy crosses 85% of total supply
	result, err := te.engine.Buy(ctx, "coin-1", "user-1", 1)
	require.NoError(t, err)
	assert.True(t, result.Graduated)
	assert.Equal(t, int64(850_000_000), result.TokensSold)

	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.True(t, coin.Graduated)

	// Graduated coins refuse further trades
	_, err = te.engine.Buy(ctx, "coin-1", "user-1", 1)
	assert.ErrorIs(t, err, ErrCoinGraduated)
}

func TestBuy_ExactSupplyBoundary(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", domain.DefaultTotalSupply-100, decimal.Zero, 0)

	// Exact fill reaches total_supply (and crosses graduation)
	result, err := te.engine.Buy(ctx, "coin-1", "user-1", 100)
	require.NoError(t, err)
	assert.Equal(t, domain.DefaultTotalSupply, result.TokensSold)
	assert.True(t, result.Graduated)

	_, err = te.engine.Buy(ctx, "coin-1", "user-1", 1)
	assert.ErrorIs(t, err, ErrCoinGraduated)
}

func TestSell_ReferenceScenario(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 1000, dec("1"), 1)
	te.seedHolder(t, "coin-1", "user-1", 100, dec("0.0001"))

	result, err := te.engine.Sell(ctx, "coin-1", "user-1", 100, "")
	require.NoError(t, err)

	// raw = 100*0.0001 + 1e-8*(100*900 + 4950) = 0.0109495; total = raw*0.95
	assert.True(t, dec("0.010402025").Equal(result.QuoteAmount), "quote = %s", result.QuoteAmount)
	assert.True(t, dec("0.00010402025").Equal(result.AveragePrice), "avg = %s", result.AveragePrice)
	assert.Equal(t, int64(900), result.TokensSold)

	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(900), coin.TokensSold)
	assert.True(t, dec("0.000109").Equal(coin.CurrentPrice), "price = %s", coin.CurrentPrice)
	assert.True(t, dec("0.989597975").Equal(coin.LiquidityRaised), "liquidity = %s", coin.LiquidityRaised)
}

func TestSell_RealizesProfitAndDeletesAtZero(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 1000, dec("1"), 2)
	te.seedHolder(t, "coin-1", "user-1", 100, dec("0.0001"))

	// Partial sell keeps the holder and realizes profit on the sold units
	result, err := te.engine.Sell(ctx, "coin-1", "user-1", 40, "")
	require.NoError(t, err)

	holder, err := te.holders.Get(ctx, "coin-1", "user-1")
	require.NoError(t, err)
	assert.Equal(t, int64(60), holder.TokenBalance)
	assert.Equal(t, int64(40), holder.TotalSold)
	expectedProfit := result.QuoteAmount.Sub(dec("0.0001").Mul(decimal.NewFromInt(40)))
	assert.True(t, expectedProfit.Equal(holder.RealizedProfit), "profit = %s", holder.RealizedProfit)
	// Cost basis unchanged by sells
	assert.True(t, dec("0.0001").Equal(holder.AvgCost))

	// Selling the rest deletes the holder and decrements holder_count
	_, err = te.engine.Sell(ctx, "coin-1", "user-1", 60, "")
	require.NoError(t, err)

	_, err = te.holders.Get(ctx, "coin-1", "user-1")
	assert.Error(t, err)

	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.Equal(t, 1, coin.HolderCount)
	assert.Equal(t, int64(900), coin.TokensSold)
}

func TestSell_Validation(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 1000, dec("1"), 1)
	te.seedHolder(t, "coin-1", "user-1", 100, dec("0.0001"))

	_, err := te.engine.Sell(ctx, "coin-1", "", 10, "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = te.engine.Sell(ctx, "coin-1", "user-1", 0, "")
	assert.ErrorIs(t, err, ErrInvalidAmount)

	// No holder record
	_, err = te.engine.Sell(ctx, "coin-1", "user-2", 10, "")
	assert.ErrorIs(t, err, ErrNotFound)

	// Balance too small
	_, err = te.engine.Sell(ctx, "coin-1", "user-1", 101, "")
	assert.ErrorIs(t, err, ErrInsufficientBalance)

	// Nothing mutated
	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(1000), coin.TokensSold)
	assert.Equal(t, int64(1), coin.Version)
}

func TestSell_LiquidityFlooredAtZero(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	// Liquidity smaller than the sell proceeds
	te.seedCoin(t, "coin-1", 1000, dec("0.001"), 1)
	te.seedHolder(t, "coin-1", "user-1", 100, dec("0.0001"))

	_, err := te.engine.Sell(ctx, "coin-1", "user-1", 100, "")
	require.NoError(t, err)

	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.True(t, coin.LiquidityRaised.IsZero(), "liquidity = %s", coin.LiquidityRaised)
}

func TestSell_MalformedWalletAddressAccepted(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 1000, dec("1"), 1)
	te.seedHolder(t, "coin-1", "user-1", 100, dec("0.0001"))

	// Audit-only field: a bad address is logged, not rejected
	_, err := te.engine.Sell(ctx, "coin-1", "user-1", 10, "not-a-wallet")
	require.NoError(t, err)

	trades, err := te.trades.ListByUser(ctx, "user-1", 10)
	require.NoError(t, err)
	require.Len(t, trades, 1)
	assert.Equal(t, "not-a-wallet", trades[0].WalletAddress)
}

func TestConcurrentBuys_NoLostUpdate(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 0, decimal.Zero, 0)

	var wg sync.WaitGroup
	errs := make([]error, 2)
	for i := 0; i < 2; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			user := "user-a"
			if i == 1 {
				user = "user-b"
			}
			_, errs[i] = te.engine.Buy(ctx, "coin-1", user, 100)
		}(i)
	}
	wg.Wait()

	require.NoError(t, errs[0])
	require.NoError(t, errs[1])

	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(200), coin.TokensSold)
	assert.Equal(t, 2, coin.HolderCount)
	assert.Equal(t, int64(3), coin.Version)
}

func TestRoundTrip_NeverProfits(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 0, decimal.Zero, 0)

	buy, err := te.engine.Buy(ctx, "coin-1", "user-1", 500)
	require.NoError(t, err)

	sell, err := te.engine.Sell(ctx, "coin-1", "user-1", 500, "")
	require.NoError(t, err)

	assert.True(t, sell.QuoteAmount.LessThan(buy.QuoteAmount),
		"sell %s should be less than buy %s", sell.QuoteAmount, buy.QuoteAmount)

	// Full unwind returns the curve to its origin
	coin, err := te.coins.GetByID(ctx, "coin-1")
	require.NoError(t, err)
	assert.Equal(t, int64(0), coin.TokensSold)
	assert.True(t, domain.DefaultInitialPrice.Equal(coin.CurrentPrice))
}

func TestDeactivateCoin(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 0, decimal.Zero, 0)

	err := te.engine.DeactivateCoin(ctx, "coin-1", "")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = te.engine.DeactivateCoin(ctx, "coin-1", "someone-else")
	assert.ErrorIs(t, err, ErrUnauthorized)

	err = te.engine.DeactivateCoin(ctx, "coin-404", "creator-1")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, te.engine.DeactivateCoin(ctx, "coin-1", "creator-1"))

	// Idempotent
	require.NoError(t, te.engine.DeactivateCoin(ctx, "coin-1", "creator-1"))

	_, err = te.engine.Buy(ctx, "coin-1", "user-1", 100)
	assert.ErrorIs(t, err, ErrCoinInactive)
}

func TestStats(t *testing.T) {
	te := newTestEngine(t)
	ctx := context.Background()
	te.seedCoin(t, "coin-1", 0, decimal.Zero, 0)

	_, err := te.engine.Buy(ctx, "coin-1", "user-1", 100)
	require.NoError(t, err)
	_, err = te.engine.Buy(ctx, "coin-1", "user-1", 0)
	require.Error(t, err)

	_, err = te.engine.CreateCoin(ctx, CreateCoinParams{CreatorID: "u", Symbol: "S", Name: "N"})
	require.NoError(t, err)

	stats := te.engine.Stats()
	assert.Equal(t, int64(1), stats.TradesExecuted)
	assert.Equal(t, int64(1), stats.TradesRejected)
	assert.Equal(t, int64(1), stats.CoinsCreated)
}
