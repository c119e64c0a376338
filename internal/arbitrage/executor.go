package arbitrage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trade_engine/internal/amm"
	"trade_engine/internal/core"
	"trade_engine/internal/risk"
	apperrors "trade_engine/pkg/errors"
	"trade_engine/pkg/telemetry"
)

// VenueResolver resolves a venue kind to its implementation. The registry
// in internal/venue satisfies it.
type VenueResolver interface {
	Get(kind core.VenueKind) (core.Venue, error)
}

// Executor runs one route as two sequential swaps: spend the quote token
// on the entry venue, sell the acquired base on the exit venue. The route's
// deadline and profitability are re-checked at execution time because the
// market has moved since discovery.
type Executor struct {
	venues VenueResolver
	logger core.ILogger

	// now is swappable for tests.
	now func() int64
}

// NewExecutor creates an Executor. The logger may be nil.
func NewExecutor(venues VenueResolver, logger core.ILogger) *Executor {
	return &Executor{
		venues: venues,
		logger: logger,
		now:    func() int64 { return time.Now().Unix() },
	}
}

// Execute runs route with amountIn of the quote token. It returns
// allowed=false without error when the risk gate rejects the trade; the
// metrics are updated only when both legs fill.
func (e *Executor) Execute(
	ctx context.Context,
	route core.ArbitrageRoute,
	amountIn uint64,
	params core.RiskParameters,
	metrics *core.PerformanceMetrics,
) (core.TradeResult, bool, error) {
	now := e.now()
	if now > route.Deadline {
		return core.TradeResult{}, true, fmt.Errorf("%w: route %s expired at %d",
			apperrors.ErrDeadlineExceeded, route.ID, route.Deadline)
	}
	if route.ExpectedProfitBps < route.MinProfitBps {
		return core.TradeResult{}, true, fmt.Errorf("%w: %d bps below minimum %d bps",
			apperrors.ErrInsufficientProfit, route.ExpectedProfitBps, route.MinProfitBps)
	}

	if !risk.Allow(params, *metrics, amountIn) {
		telemetry.GetGlobalMetrics().AddRiskRejection(ctx)
		if e.logger != nil {
			e.logger.WithFields(map[string]interface{}{
				"route":      route.ID,
				"trade_size": amountIn,
			}).Warn("trade rejected by risk gate")
		}
		return core.TradeResult{}, false, nil
	}

	entry, err := e.venues.Get(route.EntryVenue)
	if err != nil {
		return core.TradeResult{}, true, err
	}
	exit, err := e.venues.Get(route.ExitVenue)
	if err != nil {
		return core.TradeResult{}, true, err
	}

	baseOut, _, err := e.leg(ctx, entry, route.Pair, route.Pair.Quote, route.Pair.Base, amountIn, route.MaxSlippageBps)
	if err != nil {
		return core.TradeResult{}, true, fmt.Errorf("entry leg on %s: %w", route.EntryVenue, err)
	}
	quoteOut, exitImpact, err := e.leg(ctx, exit, route.Pair, route.Pair.Base, route.Pair.Quote, baseOut, route.MaxSlippageBps)
	if err != nil {
		return core.TradeResult{}, true, fmt.Errorf("exit leg on %s: %w", route.ExitVenue, err)
	}

	pnl := int64(quoteOut) - int64(amountIn)
	risk.RecordTradeOutcome(metrics, pnl)
	metrics.TotalVolume += amountIn

	m := telemetry.GetGlobalMetrics()
	m.AddTradeExecuted(ctx, route.EntryVenue.String())
	m.AddTradeExecuted(ctx, route.ExitVenue.String())
	m.AddRealizedPnL(ctx, float64(pnl)/float64(core.PricePrecision))
	m.AddVolume(ctx, float64(amountIn)/float64(core.PricePrecision))

	result := core.TradeResult{
		ID:          uuid.NewString(),
		Venue:       route.ExitVenue,
		Pair:        route.Pair,
		AmountIn:    amountIn,
		AmountOut:   quoteOut,
		ProfitLoss:  pnl,
		SlippageBps: exitImpact,
		Timestamp:   now,
	}

	if e.logger != nil {
		e.logger.WithFields(map[string]interface{}{
			"route":      route.Kind.String(),
			"pair":       route.Pair.String(),
			"amount_in":  amountIn,
			"amount_out": quoteOut,
			"pnl":        pnl,
		}).Info("arbitrage route executed")
	}
	return result, true, nil
}

// leg quotes the expected output from the venue's pool snapshot, derives
// the minimum acceptable fill from the slippage cap, and submits the swap.
func (e *Executor) leg(
	ctx context.Context,
	v core.Venue,
	pair core.TokenPair,
	tokenIn, tokenOut string,
	amountIn uint64,
	maxSlippageBps uint16,
) (uint64, uint16, error) {
	pool, err := v.Pool(ctx, pair)
	if err != nil {
		return 0, 0, err
	}

	reserveIn, reserveOut := pool.ReserveA, pool.ReserveB
	if tokenIn == pool.TokenB {
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	}

	expectedOut, err := amm.SwapOutputWithFee(amountIn, reserveIn, reserveOut, pool.FeeBps)
	if err != nil {
		return 0, 0, err
	}
	minOut, err := amm.MulDiv(expectedOut, core.BpsDenominator-uint64(maxSlippageBps), core.BpsDenominator)
	if err != nil {
		return 0, 0, err
	}

	fill, err := v.Swap(ctx, core.SwapParams{
		TokenIn:     tokenIn,
		TokenOut:    tokenOut,
		AmountIn:    amountIn,
		MinimumOut:  minOut,
		SlippageBps: maxSlippageBps,
	})
	if err != nil {
		return 0, 0, err
	}

	impact, err := amm.PriceImpactBps(amountIn, fill.AmountOut, reserveIn, reserveOut)
	if err != nil {
		return 0, 0, err
	}
	return fill.AmountOut, impact, nil
}
