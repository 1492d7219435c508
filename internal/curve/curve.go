// Package curve prices trades against a linear bonding curve.
// All functions are pure: the caller supplies the curve parameters and the
// current position, and receives the quote plus the resulting position.
package curve

import (
	"errors"

	"github.com/shopspring/decimal"
)

// Direction of a trade along the curve.
type Direction string

const (
	DirectionBuy  Direction = "buy"
	DirectionSell Direction = "sell"
)

// Pricing errors.
var (
	// ErrInvalidAmount is returned when amount is not a positive quantity.
	ErrInvalidAmount = errors.New("amount must be a positive token quantity")

	// ErrSupplyExceeded is returned when a buy would push tokens_sold past
	// total_supply.
	ErrSupplyExceeded = errors.New("buy exceeds remaining curve supply")

	// ErrPositionExceeded is returned when a sell would unwind the curve
	// below zero tokens sold.
	ErrPositionExceeded = errors.New("sell exceeds tokens sold on curve")

	// ErrUnknownDirection is returned for a direction other than buy/sell.
	ErrUnknownDirection = errors.New("unknown trade direction")
)

// SellSlippage is the fixed discount applied uniformly to sell proceeds.
var SellSlippage = decimal.RequireFromString("0.95")

// Params are the immutable curve parameters fixed at coin creation.
type Params struct {
	InitialPrice   decimal.Decimal // price at zero tokens sold
	PriceIncrement decimal.Decimal // price step per token unit
	TotalSupply    int64           // upper bound on tokens sold
}

// Result is the outcome of pricing one trade.
type Result struct {
	TotalQuote    decimal.Decimal // cost for buy, net return for sell
	AveragePrice  decimal.Decimal // TotalQuote / amount
	NewTokensSold int64           // curve position after the trade
	NewPrice      decimal.Decimal // marginal price at the new position
}

var two = decimal.NewFromInt(2)

// PriceAt returns the marginal price at a curve position:
// initial_price + position * price_increment.
func PriceAt(p Params, tokensSold int64) decimal.Decimal {
	return p.InitialPrice.Add(p.PriceIncrement.Mul(decimal.NewFromInt(tokensSold)))
}

// Quote prices a trade in the given direction.
func Quote(dir Direction, p Params, tokensSold, amount int64) (*Result, error) {
	switch dir {
	case DirectionBuy:
		return QuoteBuy(p, tokensSold, amount)
	case DirectionSell:
		return QuoteSell(p, tokensSold, amount)
	default:
		return nil, ErrUnknownDirection
	}
}

// QuoteBuy prices a buy of amount units starting at position tokensSold.
// Total cost is the closed-form sum of marginal prices over
// [tokensSold, tokensSold+amount):
//
//	total = amount*initial + increment*(amount*tokensSold + amount*(amount-1)/2)
func QuoteBuy(p Params, tokensSold, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if tokensSold < 0 || tokensSold+amount > p.TotalSupply {
		return nil, ErrSupplyExceeded
	}

	total := seriesSum(p, tokensSold, amount)
	newSold := tokensSold + amount

	return &Result{
		TotalQuote:    total,
		AveragePrice:  total.Div(decimal.NewFromInt(amount)),
		NewTokensSold: newSold,
		NewPrice:      PriceAt(p, newSold),
	}, nil
}

// QuoteSell prices a sell of amount units unwinding the curve from position
// tokensSold down to tokensSold-amount. The raw series sum over
// [tokensSold-amount, tokensSold) is discounted by the uniform slippage
// factor, not compounded per unit. The post-trade price is floored at the
// curve origin.
func QuoteSell(p Params, tokensSold, amount int64) (*Result, error) {
	if amount <= 0 {
		return nil, ErrInvalidAmount
	}
	if amount > tokensSold {
		return nil, ErrPositionExceeded
	}

	newSold := tokensSold - amount
	raw := seriesSum(p, newSold, amount)
	total := raw.Mul(SellSlippage)

	newPrice := PriceAt(p, newSold)
	if newPrice.LessThan(p.InitialPrice) {
		newPrice = p.InitialPrice
	}

	return &Result{
		TotalQuote:    total,
		AveragePrice:  total.Div(decimal.NewFromInt(amount)),
		NewTokensSold: newSold,
		NewPrice:      newPrice,
	}, nil
}

// seriesSum computes the sum of marginal prices for amount consecutive units
// starting at position from:
//
//	amount*initial + increment*(amount*from + amount*(amount-1)/2)
func seriesSum(p Params, from, amount int64) decimal.Decimal {
	amt := decimal.NewFromInt(amount)
	fromDec := decimal.NewFromInt(from)

	// amount*(amount-1) is always even, so the division is exact.
	triangle := amt.Mul(amt.Sub(decimal.NewFromInt(1))).Div(two)
	steps := amt.Mul(fromDec).Add(triangle)

	return amt.Mul(p.InitialPrice).Add(p.PriceIncrement.Mul(steps))
}
