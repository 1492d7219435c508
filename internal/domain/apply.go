package domain

// TradeApplication captures every mutation produced by one trade: the
// post-trade coin state, the post-trade holder state (or its deletion), and
// the trade record to append. A TradeApplier persists all three as one unit
// or none at all.
type TradeApplication struct {
	// Coin is the full post-trade coin state with Version already bumped.
	Coin *Coin

	// ExpectedVersion is the pre-trade coin version; appliers must refuse
	// the application when the stored version differs.
	ExpectedVersion int64

	// Holder is the post-trade holder state. Nil when DeleteHolder is set.
	Holder *Holder

	// CreateHolder marks a first buy for the (coin, user) pair.
	CreateHolder bool

	// DeleteHolder marks a sell that drained the position to zero.
	DeleteHolder bool

	// Trade is the record to append, always with status confirmed.
	Trade *Trade
}
