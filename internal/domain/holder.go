package domain

import "github.com/shopspring/decimal"

// Holder represents one user's position in one coin.
// Corresponds to holders table in PostgreSQL. A record exists only while
// token_balance > 0: it is created on first buy and deleted when a sell
// brings the balance to exactly zero.
type Holder struct {
	CoinID string // FK to coins
	UserID string // position owner

	TokenBalance int64 // current balance, > 0 while record exists
	TotalBought  int64 // cumulative units bought, non-decreasing
	TotalSold    int64 // cumulative units sold, non-decreasing

	// AvgCost is the running weighted-average cost per token, updated on
	// buys only. Sells realize proceeds - amount*AvgCost into RealizedProfit.
	AvgCost        decimal.Decimal
	RealizedProfit decimal.Decimal // signed, cumulative

	CreatedAt int64 // record creation timestamp (ms)
	UpdatedAt int64 // last mutation timestamp (ms)
}
