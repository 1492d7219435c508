// Package main runs the bonding-curve trading venue: the trade engine, the
// HTTP API, and the websocket trade feed over PostgreSQL (system of record)
// and ClickHouse (trade tick analytics).
package main

import (
	"context"
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"curve-exchange/internal/engine"
	"curve-exchange/internal/feed"
	"curve-exchange/internal/server"
	"curve-exchange/internal/signature"
	"curve-exchange/internal/storage"
	chstore "curve-exchange/internal/storage/clickhouse"
	"curve-exchange/internal/storage/memory"
	"curve-exchange/internal/storage/migrations"
	pgstore "curve-exchange/internal/storage/postgres"
)

// venueStores holds all storage implementations.
type venueStores struct {
	coinStore   storage.CoinStore
	holderStore storage.HolderStore
	tradeStore  storage.TradeStore
	applier     storage.TradeApplier
	tickStore   storage.TradeTickStore
}

func main() {
	// Load .env file if exists
	loadEnvFile()

	// Parse flags (env vars as defaults)
	addr := flag.String("addr", envOr("HTTP_ADDR", ":8080"), "HTTP listen address")
	postgresDSN := flag.String("postgres-dsn", os.Getenv("POSTGRES_DSN"), "PostgreSQL connection string")
	clickhouseDSN := flag.String("clickhouse-dsn", os.Getenv("CLICKHOUSE_DSN"), "ClickHouse connection string")
	useMemory := flag.Bool("use-memory", false, "Use in-memory storage instead of PostgreSQL/ClickHouse")
	signingSeed := flag.String("signing-seed", os.Getenv("SIGNING_SEED"), "Hex-encoded 32-byte trade signing seed (random key if empty)")
	shutdownTimeout := flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")

	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lshortfile)

	if !*useMemory && *postgresDSN == "" {
		logger.Fatal("--postgres-dsn is required (use --use-memory for in-memory storage)")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Create stores
	stores, cleanup, err := createStores(ctx, *postgresDSN, *clickhouseDSN, *useMemory, logger)
	if err != nil {
		logger.Fatalf("Failed to create stores: %v", err)
	}
	defer cleanup()

	// Trade signer
	signer, err := createSigner(*signingSeed)
	if err != nil {
		logger.Fatalf("Failed to create signer: %v", err)
	}

	// Realtime feed
	hub := feed.NewHub(nil, log.New(os.Stdout, "[feed] ", log.LstdFlags|log.Lshortfile))
	defer hub.Close()

	// Trade engine
	eng, err := engine.New(engine.Options{
		CoinStore:   stores.coinStore,
		HolderStore: stores.holderStore,
		TradeStore:  stores.tradeStore,
		Applier:     stores.applier,
		TickStore:   stores.tickStore,
		Feed:        hub,
		Signer:      signer,
		Logger:      log.New(os.Stdout, "[engine] ", log.LstdFlags|log.Lshortfile),
	})
	if err != nil {
		logger.Fatalf("Failed to create engine: %v", err)
	}

	// HTTP surface
	srv, err := server.New(server.Options{
		Engine:      eng,
		CoinStore:   stores.coinStore,
		HolderStore: stores.holderStore,
		TradeStore:  stores.tradeStore,
		TickStore:   stores.tickStore,
		Hub:         hub,
		Logger:      logger,
	})
	if err != nil {
		logger.Fatalf("Failed to create server: %v", err)
	}

	httpServer := &http.Server{
		Addr:    *addr,
		Handler: srv.Handler(),
	}

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		sig := <-sigCh
		logger.Printf("Received signal %v, initiating graceful shutdown...", sig)
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *shutdownTimeout)
		defer shutdownCancel()

		go func() {
			// Second signal forces immediate shutdown
			sig := <-sigCh
			logger.Printf("Received second signal %v, forcing immediate shutdown", sig)
			os.Exit(1)
		}()

		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			logger.Printf("HTTP shutdown error: %v", err)
		}
	}()

	logger.Printf("Trading venue listening on %s (memory=%v)", *addr, *useMemory)
	if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Fatalf("HTTP server error: %v", err)
	}

	logger.Println("Shutdown complete")
}

// createStores creates all required stores and runs migrations.
func createStores(ctx context.Context, postgresDSN, clickhouseDSN string, useMemory bool, logger *log.Logger) (*venueStores, func(), error) {
	if useMemory {
		coins := memory.NewCoinStore()
		holders := memory.NewHolderStore()
		trades := memory.NewTradeStore()
		stores := &venueStores{
			coinStore:   coins,
			holderStore: holders,
			tradeStore:  trades,
			applier:     memory.NewTradeApplier(coins, holders, trades),
			tickStore:   memory.NewTradeTickStore(),
		}
		return stores, func() {}, nil
	}

	// PostgreSQL: system of record
	pool, err := pgstore.NewPool(ctx, postgresDSN)
	if err != nil {
		return nil, nil, fmt.Errorf("connect to postgres: %w", err)
	}
	if err := migrations.RunPostgresMigrations(ctx, pool); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("run postgres migrations: %w", err)
	}

	stores := &venueStores{
		coinStore:   pgstore.NewCoinStore(pool),
		holderStore: pgstore.NewHolderStore(pool),
		tradeStore:  pgstore.NewTradeStore(pool),
		applier:     pgstore.NewTradeApplier(pool),
	}
	cleanup := func() { pool.Close() }

	// ClickHouse: optional trade tick analytics
	if clickhouseDSN == "" {
		logger.Println("No --clickhouse-dsn, trade tick analytics disabled")
		return stores, cleanup, nil
	}

	chConn, err := chstore.NewConn(ctx, clickhouseDSN)
	if err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	if err := migrations.RunClickhouseMigrations(ctx, chConn); err != nil {
		chConn.Close()
		pool.Close()
		return nil, nil, fmt.Errorf("run clickhouse migrations: %w", err)
	}

	stores.tickStore = chstore.NewTradeTickStore(chConn)
	cleanup = func() {
		chConn.Close()
		pool.Close()
	}

	return stores, cleanup, nil
}

// createSigner builds the trade signer from the optional hex seed.
func createSigner(seed string) (*signature.Signer, error) {
	if seed == "" {
		return signature.NewSigner()
	}

	raw, err := hex.DecodeString(seed)
	if err != nil {
		return nil, fmt.Errorf("decode signing seed: %w", err)
	}
	return signature.NewSignerFromSeed(raw)
}

// envOr returns the env var value or a fallback.
func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// loadEnvFile loads environment variables from .env file if it exists.
func loadEnvFile() {
	data, err := os.ReadFile(".env")
	if err != nil {
		return // File doesn't exist, use system env vars
	}

	for _, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		parts := strings.SplitN(line, "=", 2)
		if len(parts) != 2 {
			continue
		}

		key := strings.TrimSpace(parts[0])
		value := strings.TrimSpace(parts[1])

		// Don't override existing env vars
		if os.Getenv(key) == "" {
			os.Setenv(key, value)
		}
	}
}
