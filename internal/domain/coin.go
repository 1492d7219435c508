package domain

import "github.com/shopspring/decimal"

// Coin represents one tradable token and its bonding-curve state.
// Corresponds to coins table in PostgreSQL.
type Coin struct {
	CoinID    string // PRIMARY KEY, deterministic hash
	CreatorID string // user that launched the coin
	Symbol    string // display only
	Name      string // display only

	// Curve parameters, immutable after creation
	InitialPrice        decimal.Decimal // price at zero tokens sold
	PriceIncrement      decimal.Decimal // price step per token unit
	TotalSupply         int64           // total token units on the curve
	GraduationThreshold decimal.Decimal // fraction of supply that triggers graduation

	// Curve state, mutated only through trade application
	TokensSold      int64           // units sold, in [0, TotalSupply]
	CurrentPrice    decimal.Decimal // InitialPrice + TokensSold*PriceIncrement
	MarketCap       decimal.Decimal // CurrentPrice * TotalSupply
	LiquidityRaised decimal.Decimal // cumulative net quote inflow, >= 0
	HolderCount     int             // holders with nonzero balance

	// Lifecycle
	IsActive  bool  // soft-deactivation flag
	Graduated bool  // one-way, coin refuses curve trades once true
	Version   int64 // optimistic concurrency counter

	CreatedAt int64 // record creation timestamp (ms)
	UpdatedAt int64 // last mutation timestamp (ms)
}

// Default curve parameters applied at coin creation.
var (
	DefaultInitialPrice        = decimal.RequireFromString("0.0001")
	DefaultPriceIncrement      = decimal.RequireFromString("0.00000001")
	DefaultGraduationThreshold = decimal.RequireFromString("0.85")
)

// DefaultTotalSupply is the fixed token supply per coin.
const DefaultTotalSupply int64 = 1_000_000_000

// GraduationTarget returns the tokens_sold level at which the coin graduates.
func (c *Coin) GraduationTarget() int64 {
	return c.GraduationThreshold.Mul(decimal.NewFromInt(c.TotalSupply)).IntPart()
}
