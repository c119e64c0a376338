package core

import (
	"context"
	"time"
)

// SwapParams are the validated parameters for a venue swap. TokenIn is
// spent, TokenOut is received.
type SwapParams struct {
	TokenIn     string
	TokenOut    string
	AmountIn    uint64
	MinimumOut  uint64
	SlippageBps uint16
}

// SwapResult is the fill returned by a venue. Fills are atomic: either an
// amount is returned or an error occurs; partial fills are not modeled.
type SwapResult struct {
	AmountOut uint64
}

// LiquidityParams are the parameters for a venue liquidity deposit.
type LiquidityParams struct {
	Pair           TokenPair
	AmountA        uint64
	AmountB        uint64
	MinLPAmount    uint64
	MaxSlippageBps uint16
}

// Venue executes swap and liquidity operations against one exchange or
// liquidity pool. Implementations are selected through a registry keyed on
// VenueKind, so adding a venue touches one registration site.
type Venue interface {
	Kind() VenueKind
	Swap(ctx context.Context, params SwapParams) (SwapResult, error)
	AddLiquidity(ctx context.Context, params LiquidityParams) (lpMinted uint64, err error)
	RemoveLiquidity(ctx context.Context, pair TokenPair, lpAmount uint64) (amountA, amountB uint64, err error)
	Pool(ctx context.Context, pair TokenPair) (PoolState, error)
}

// Oracle supplies timestamped price quotes with confidence intervals. The
// engine does not trust a feed beyond its freshness and confidence checks.
type Oracle interface {
	GetQuote(ctx context.Context, feedID string) (PriceQuote, error)
	GetHistory(ctx context.Context, feedID string, window time.Duration) ([]PriceQuote, error)
}

// MetricsStore persists PerformanceMetrics between runs.
type MetricsStore interface {
	Load(ctx context.Context) (PerformanceMetrics, error)
	Save(ctx context.Context, metrics PerformanceMetrics) error
}

// ILogger defines the interface for logging
type ILogger interface {
	Debug(msg string, fields ...interface{})
	Info(msg string, fields ...interface{})
	Warn(msg string, fields ...interface{})
	Error(msg string, fields ...interface{})
	Fatal(msg string, fields ...interface{})
	WithField(key string, value interface{}) ILogger
	WithFields(fields map[string]interface{}) ILogger
}
