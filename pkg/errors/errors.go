package apperrors

import "errors"

// Input/config errors. Rejected immediately, never retried.
var (
	ErrInvalidConfiguration = errors.New("invalid configuration")
	ErrInvalidRatios        = errors.New("target ratios must sum to 100")
	ErrUnknownVenue         = errors.New("unknown venue")
	ErrInvalidMarket        = errors.New("invalid market")
)

// Market-data errors. Abort the dependent operation; the caller may re-poll
// the oracle and resubmit with a fresh quote.
var (
	ErrStalePrice                  = errors.New("price feed is stale")
	ErrLowConfidence               = errors.New("price confidence interval too wide")
	ErrInsufficientConfidence      = errors.New("price confidence implausibly tight")
	ErrExcessiveRelativeConfidence = errors.New("confidence exceeds relative cap")
	ErrInsufficientPriceData       = errors.New("no price samples in window")
	ErrPriceUnavailable            = errors.New("price unavailable")
)

// Economic-guard errors. Abort the specific route or trade, not the batch.
var (
	ErrSlippageExceeded    = errors.New("slippage tolerance exceeded")
	ErrDeadlineExceeded    = errors.New("deadline exceeded")
	ErrInsufficientProfit  = errors.New("insufficient profit")
	ErrInsufficientBalance = errors.New("insufficient balance")
)

// Strategy interpreter errors.
var (
	ErrConditionNotMet = errors.New("condition not met")
)

// Arithmetic errors. Always fatal to the current computation; the engine
// never saturates or wraps silently.
var (
	ErrOverflow = errors.New("arithmetic overflow")
)
