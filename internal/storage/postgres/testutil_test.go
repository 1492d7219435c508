package postgres_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	pgcontainer "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage/migrations"
	"curve-exchange/internal/storage/postgres"
)

// setupTestDB creates a PostgreSQL container for testing and applies migrations.
// Returns a cleanup function that must be called after tests complete.
func setupTestDB(t *testing.T) (*postgres.Pool, func()) {
	t.Helper()

	ctx := context.Background()

	container, err := pgcontainer.Run(ctx, "postgres:15-alpine",
		pgcontainer.WithDatabase("testdb"),
		pgcontainer.WithUsername("test"),
		pgcontainer.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	require.NoError(t, err, "failed to start postgres container")

	dsn, err := container.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err, "failed to get connection string")

	pool, err := postgres.NewPool(ctx, dsn)
	require.NoError(t, err, "failed to create pool")

	// Apply embedded migrations
	err = migrations.RunPostgresMigrations(ctx, pool)
	require.NoError(t, err, "failed to run migrations")

	cleanup := func() {
		pool.Close()
		if err := container.Terminate(ctx); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	}

	return pool, cleanup
}

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

// newTestCoin builds a coin with default curve parameters and the given id.
func newTestCoin(coinID, creatorID string, createdAt int64) *domain.Coin {
	return &domain.Coin{
		CoinID:              coinID,
		CreatorID:           creatorID,
		Symbol:              "TEST",
		Name:                "Test Coin",
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
		CreatedAt:           createdAt,
		UpdatedAt:           createdAt,
	}
}

// newTestTrade builds a confirmed trade with the given signature.
func newTestTrade(signature, coinID, userID, side string, amount, executedAt int64) *domain.Trade {
	return &domain.Trade{
		Signature:     signature,
		CoinID:        coinID,
		UserID:        userID,
		Side:          side,
		TokenAmount:   amount,
		QuoteAmount:   dec("0.01"),
		PricePerToken: dec("0.0001"),
		Status:        domain.TradeStatusConfirmed,
		ExecutedAt:    executedAt,
		CreatedAt:     executedAt,
	}
}

// seedHolder inserts a holder row directly; production writes go through
// TradeApplier only.
func seedHolder(t *testing.T, pool *postgres.Pool, h *domain.Holder) {
	t.Helper()

	_, err := pool.Exec(context.Background(), `
		INSERT INTO holders (
			coin_id, user_id, token_balance, total_bought, total_sold,
			avg_cost, realized_profit, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6::numeric, $7::numeric, $8, $9)
	`,
		h.CoinID, h.UserID, h.TokenBalance, h.TotalBought, h.TotalSold,
		h.AvgCost.String(), h.RealizedProfit.String(), h.CreatedAt, h.UpdatedAt,
	)
	require.NoError(t, err, "failed to seed holder")
}
