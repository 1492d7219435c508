package domain

import "github.com/shopspring/decimal"

// Trade represents one executed trade. Immutable once written; the trades
// table is the append-only system of record for audit and history display.
type Trade struct {
	Signature string // unique per trade, base58-encoded ed25519 signature
	CoinID    string // FK to coins
	UserID    string // trading user

	Side          string          // "buy" | "sell"
	TokenAmount   int64           // units traded, > 0
	QuoteAmount   decimal.Decimal // cost for buy, net return for sell, > 0
	PricePerToken decimal.Decimal // average execution price
	WalletAddress string          // pass-through for audit/display, sells only

	Status     string // "confirmed" | "failed"
	ExecutedAt int64  // execution timestamp (ms)
	CreatedAt  int64  // record creation timestamp (ms)
}

// Trade side constants
const (
	TradeSideBuy  = "buy"
	TradeSideSell = "sell"
)

// Trade status constants
const (
	TradeStatusConfirmed = "confirmed"
	TradeStatusFailed    = "failed"
)
