package clickhouse

import (
	"context"
	"fmt"

	"github.com/shopspring/decimal"

	"curve-exchange/internal/domain"
	"curve-exchange/internal/storage"
)

// TradeTickStore implements storage.TradeTickStore using ClickHouse.
// Ticks are an analytic projection of the trade log; the MergeTree table
// does not enforce uniqueness, callers insert each committed trade once.
type TradeTickStore struct {
	conn *Conn
}

// NewTradeTickStore creates a new TradeTickStore.
func NewTradeTickStore(conn *Conn) *TradeTickStore {
	return &TradeTickStore{conn: conn}
}

// Compile-time interface check.
var _ storage.TradeTickStore = (*TradeTickStore)(nil)

// InsertBulk appends multiple ticks in a single batch.
func (s *TradeTickStore) InsertBulk(ctx context.Context, ticks []*domain.TradeTick) error {
	if len(ticks) == 0 {
		return nil
	}

	batch, err := s.conn.PrepareBatch(ctx, `
		INSERT INTO trade_ticks (
			coin_id, timestamp_ms, side, token_amount, quote_amount, price
		)
	`)
	if err != nil {
		return fmt.Errorf("prepare batch: %w", err)
	}

	for _, tick := range ticks {
		err = batch.Append(
			tick.CoinID, uint64(tick.TimestampMs), tick.Side,
			tick.TokenAmount, tick.QuoteAmount, tick.Price,
		)
		if err != nil {
			return fmt.Errorf("append to batch: %w", err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("send batch: %w", err)
	}

	return nil
}

// GetByCoinRange retrieves ticks for a coin within [start, end] (inclusive).
func (s *TradeTickStore) GetByCoinRange(ctx context.Context, coinID string, start, end int64) ([]*domain.TradeTick, error) {
	query := `
		SELECT coin_id, timestamp_ms, side, token_amount, quote_amount, price
		FROM trade_ticks
		WHERE coin_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
		ORDER BY timestamp_ms ASC
	`

	rows, err := s.conn.Query(ctx, query, coinID, uint64(start), uint64(end))
	if err != nil {
		return nil, fmt.Errorf("query by coin range: %w", err)
	}
	defer rows.Close()

	return scanTradeTicks(rows)
}

// Volume24h returns the total quote volume for a coin over the 24 hours
// preceding nowMs.
func (s *TradeTickStore) Volume24h(ctx context.Context, coinID string, nowMs int64) (decimal.Decimal, error) {
	const dayMs = 24 * 60 * 60 * 1000

	start := nowMs - dayMs
	if start < 0 {
		start = 0
	}

	query := `
		SELECT sum(quote_amount) FROM trade_ticks
		WHERE coin_id = ? AND timestamp_ms >= ? AND timestamp_ms <= ?
	`

	var volume decimal.Decimal
	err := s.conn.QueryRow(ctx, query, coinID, uint64(start), uint64(nowMs)).Scan(&volume)
	if err != nil {
		return decimal.Zero, fmt.Errorf("query 24h volume: %w", err)
	}

	return volume, nil
}

// chRows abstracts driver.Rows for scanning.
type chRows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Err() error
}

// scanTradeTicks scans multiple rows.
func scanTradeTicks(rows chRows) ([]*domain.TradeTick, error) {
	var ticks []*domain.TradeTick

	for rows.Next() {
		var tick domain.TradeTick
		var timestampMs uint64

		err := rows.Scan(
			&tick.CoinID, &timestampMs, &tick.Side,
			&tick.TokenAmount, &tick.QuoteAmount, &tick.Price,
		)
		if err != nil {
			return nil, fmt.Errorf("scan trade tick row: %w", err)
		}

		tick.TimestampMs = int64(timestampMs)
		ticks = append(ticks, &tick)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate trade tick rows: %w", err)
	}

	return ticks, nil
}
