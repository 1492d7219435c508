package domain

import "github.com/shopspring/decimal"

// TradeTick is the analytic projection of a committed trade.
// Corresponds to trade_ticks table in ClickHouse; written best-effort after
// commit and consumed by 24h volume and history display queries.
type TradeTick struct {
	CoinID      string          // coin identifier
	TimestampMs int64           // execution timestamp (ms)
	Side        string          // "buy" | "sell"
	TokenAmount int64           // units traded
	QuoteAmount decimal.Decimal // quote currency moved
	Price       decimal.Decimal // average execution price
}
