package engine

import "errors"

// Trade and coin lifecycle errors returned to callers. Each maps to one
// rejection reason; validation failures are deterministic and never retried.
var (
	// ErrUnauthorized is returned when the request carries no caller identity
	// or the caller may not perform the operation.
	ErrUnauthorized = errors.New("unauthorized")

	// ErrNotFound is returned when the coin or holder does not exist.
	ErrNotFound = errors.New("coin or holder not found")

	// ErrInvalidAmount is returned for a non-positive or out-of-bounds
	// token quantity.
	ErrInvalidAmount = errors.New("invalid token amount")

	// ErrInsufficientBalance is returned when a sell exceeds the holder's
	// token balance.
	ErrInsufficientBalance = errors.New("insufficient token balance")

	// ErrCoinInactive is returned when the coin is soft-deactivated.
	ErrCoinInactive = errors.New("coin is not active")

	// ErrCoinGraduated is returned when the coin left curve-based pricing.
	ErrCoinGraduated = errors.New("coin has graduated")

	// ErrApplyFailure is returned when the atomic apply step could not
	// complete after retries. The trade is fully rolled back.
	ErrApplyFailure = errors.New("trade apply failed")

	// ErrInvalidParams is returned by CreateCoin for missing symbol or name.
	ErrInvalidParams = errors.New("invalid coin parameters")

	// ErrDuplicateCoin is returned by CreateCoin when the id already exists.
	ErrDuplicateCoin = errors.New("coin already exists")
)
