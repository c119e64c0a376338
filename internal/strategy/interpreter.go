package strategy

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"trade_engine/internal/amm"
	"trade_engine/internal/core"
	"trade_engine/internal/oracle"
	"trade_engine/internal/risk"
	apperrors "trade_engine/pkg/errors"
	"trade_engine/pkg/telemetry"
)

// RunStatus is the terminal state of one interpreter run.
type RunStatus uint8

const (
	StatusRunning RunStatus = iota
	StatusCompleted
	StatusAborted
	StatusExited
)

func (s RunStatus) String() string {
	switch s {
	case StatusRunning:
		return "running"
	case StatusCompleted:
		return "completed"
	case StatusAborted:
		return "aborted"
	case StatusExited:
		return "exited"
	default:
		return fmt.Sprintf("status(%d)", uint8(s))
	}
}

// VenueResolver resolves a venue kind to its implementation.
type VenueResolver interface {
	Get(kind core.VenueKind) (core.Venue, error)
}

// Snapshot is the immutable account view a run executes against. The
// caller serializes concurrent runs against the same account; the
// interpreter never refreshes the snapshot mid-run.
type Snapshot struct {
	Balances map[string]uint64 // token -> balance, fixed-point
	Volumes  map[string]uint64 // feed id -> trailing volume, fixed-point
}

// Outcome is the result of one run. Status is never StatusRunning on
// return. RiskRejected marks runs aborted by the risk gate rather than a
// failed check; such runs carry no error.
type Outcome struct {
	Status       RunStatus
	State        *core.ExecutionState
	RiskRejected bool
}

// Interpreter walks a block sequence with a single forward cursor. Three
// terminal modes exist: the cursor passes the last block (Completed), a
// trigger, condition or action fails (Aborted), or an Exit block fires
// (Exited).
type Interpreter struct {
	oracle    core.Oracle
	venues    VenueResolver
	validator oracle.Validator
	logger    core.ILogger

	// now is swappable for tests.
	now func() int64
}

// NewInterpreter creates an Interpreter. The logger may be nil.
func NewInterpreter(o core.Oracle, venues VenueResolver, validator oracle.Validator, logger core.ILogger) *Interpreter {
	return &Interpreter{
		oracle:    o,
		venues:    venues,
		validator: validator,
		logger:    logger,
		now:       func() int64 { return time.Now().Unix() },
	}
}

// activeLoop tracks one Loop block mid-repeat.
type activeLoop struct {
	loopIdx int
	endIdx  int
}

// Run validates and executes blocks against snap. The metrics record is
// updated in place as trades fill; the caller persists it after the run.
func (it *Interpreter) Run(
	ctx context.Context,
	blocks []Block,
	snap Snapshot,
	params core.RiskParameters,
	metrics *core.PerformanceMetrics,
) (Outcome, error) {
	if err := ValidateBlocks(blocks); err != nil {
		return Outcome{Status: StatusAborted}, err
	}

	state := core.NewExecutionState()
	index := make(map[string]int, len(blocks))
	for i, b := range blocks {
		index[b.ID] = i
	}

	var loops []activeLoop
	cursor := 0
	for cursor < len(blocks) {
		b := blocks[cursor]

		switch b.Type {
		case BlockTrigger:
			if err := it.evalTrigger(ctx, b, snap, state); err != nil {
				return it.abort(b, state, err)
			}

		case BlockCondition:
			if err := it.evalCondition(ctx, b, snap, state); err != nil {
				return it.abort(b, state, err)
			}

		case BlockAction:
			rejected, err := it.runAction(ctx, b, params, metrics, state)
			if err != nil {
				return it.abort(b, state, err)
			}
			if rejected {
				if it.logger != nil {
					it.logger.WithField("block", b.ID).Warn("action rejected by risk gate")
				}
				return Outcome{Status: StatusAborted, State: state, RiskRejected: true}, nil
			}

		case BlockLoop:
			if state.LoopCounters[b.ID] < b.Loop.MaxIterations {
				state.LoopCounters[b.ID]++
				loops = append(loops, activeLoop{loopIdx: cursor, endIdx: index[b.Loop.EndID]})
				cursor = index[b.Loop.StartID]
				continue
			}

		case BlockExit:
			if it.evalExit(b, state) {
				if it.logger != nil {
					it.logger.WithField("block", b.ID).Info("strategy run exited")
				}
				return Outcome{Status: StatusExited, State: state}, nil
			}
		}

		// Return to the owning Loop block once its range end is passed.
		if n := len(loops); n > 0 && cursor == loops[n-1].endIdx {
			cursor = loops[n-1].loopIdx
			loops = loops[:n-1]
			continue
		}
		cursor++
	}

	return Outcome{Status: StatusCompleted, State: state}, nil
}

func (it *Interpreter) abort(b Block, state *core.ExecutionState, err error) (Outcome, error) {
	if it.logger != nil {
		it.logger.WithFields(map[string]interface{}{
			"block": b.ID,
			"type":  b.Type.String(),
		}).Warn("strategy run aborted", "error", err)
	}
	return Outcome{Status: StatusAborted, State: state}, fmt.Errorf("block %q: %w", b.ID, err)
}

func (it *Interpreter) evalTrigger(ctx context.Context, b Block, snap Snapshot, state *core.ExecutionState) error {
	cfg := b.Trigger
	switch cfg.Type {
	case TriggerTimeAfter:
		if it.now() >= cfg.After {
			return nil
		}
		return apperrors.ErrConditionNotMet

	case TriggerVolumeAbove:
		if snap.Volumes[cfg.FeedID] > cfg.Threshold {
			return nil
		}
		return apperrors.ErrConditionNotMet
	}

	quote, err := it.oracle.GetQuote(ctx, cfg.FeedID)
	if err != nil {
		return err
	}
	price, err := it.validator.Validate(quote, it.now())
	if err != nil {
		return err
	}
	state.LastPrices[cfg.FeedID] = price.Price
	telemetry.GetGlobalMetrics().SetLastPrice(cfg.FeedID, float64(price.Price)/float64(core.PricePrecision))

	switch cfg.Type {
	case TriggerPriceAbove:
		if price.Price > cfg.Threshold {
			return nil
		}
	case TriggerPriceBelow:
		if price.Price < cfg.Threshold {
			return nil
		}
	case TriggerPriceApproxEqual:
		tol := cfg.Tolerance
		if tol == 0 {
			tol = ApproxEqualTolerance
		}
		diff := price.Price - cfg.Threshold
		if price.Price < cfg.Threshold {
			diff = cfg.Threshold - price.Price
		}
		if diff <= tol {
			return nil
		}
	}
	return apperrors.ErrConditionNotMet
}

func (it *Interpreter) evalCondition(ctx context.Context, b Block, snap Snapshot, state *core.ExecutionState) error {
	cfg := b.Condition
	switch cfg.Type {
	case ConditionBalanceAtLeast:
		if snap.Balances[cfg.Token] >= cfg.MinBalance {
			return nil
		}
		return fmt.Errorf("%w: balance of %s below %d", apperrors.ErrConditionNotMet, cfg.Token, cfg.MinBalance)

	case ConditionMaxPriceImpact:
		v, err := it.venues.Get(cfg.Venue)
		if err != nil {
			return err
		}
		pool, err := v.Pool(ctx, cfg.Pair)
		if err != nil {
			return err
		}
		out, err := amm.SwapOutputWithFee(cfg.AmountIn, pool.ReserveA, pool.ReserveB, pool.FeeBps)
		if err != nil {
			return err
		}
		impact, err := amm.PriceImpactBps(cfg.AmountIn, out, pool.ReserveA, pool.ReserveB)
		if err != nil {
			return err
		}
		if impact <= cfg.MaxImpactBps {
			return nil
		}
		return fmt.Errorf("%w: price impact %d bps exceeds %d bps", apperrors.ErrConditionNotMet, impact, cfg.MaxImpactBps)

	case ConditionCustom:
		if cfg.Predicate(state) {
			return nil
		}
		return apperrors.ErrConditionNotMet
	}
	return fmt.Errorf("%w: unknown condition type", apperrors.ErrInvalidConfiguration)
}

// runAction dispatches one venue operation. It returns rejected=true when
// the risk gate declines the trade; the sequence owner decides what that
// means for the run.
func (it *Interpreter) runAction(
	ctx context.Context,
	b Block,
	params core.RiskParameters,
	metrics *core.PerformanceMetrics,
	state *core.ExecutionState,
) (bool, error) {
	cfg := b.Action
	if !risk.Allow(params, *metrics, cfg.Amount) {
		telemetry.GetGlobalMetrics().AddRiskRejection(ctx)
		return true, nil
	}

	v, err := it.venues.Get(cfg.Venue)
	if err != nil {
		return false, err
	}

	switch cfg.Type {
	case ActionSwap:
		if err := it.runSwap(ctx, v, b, metrics, state); err != nil {
			return false, err
		}

	case ActionAddLiquidity:
		_, err := v.AddLiquidity(ctx, core.LiquidityParams{
			Pair:           cfg.Pair,
			AmountA:        cfg.Amount,
			AmountB:        cfg.AmountB,
			MinLPAmount:    cfg.MinLPAmount,
			MaxSlippageBps: cfg.SlippageBps,
		})
		if err != nil {
			return false, err
		}

	case ActionRemoveLiquidity:
		_, _, err := v.RemoveLiquidity(ctx, cfg.Pair, cfg.Amount)
		if err != nil {
			return false, err
		}
	}

	state.ExecutedBlockIDs = append(state.ExecutedBlockIDs, b.ID)
	return false, nil
}

func (it *Interpreter) runSwap(ctx context.Context, v core.Venue, b Block, metrics *core.PerformanceMetrics, state *core.ExecutionState) error {
	cfg := b.Action
	pool, err := v.Pool(ctx, cfg.Pair)
	if err != nil {
		return err
	}
	reserveIn, reserveOut := pool.ReserveA, pool.ReserveB
	if cfg.TokenIn == pool.TokenB {
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	}

	expectedOut, err := amm.SwapOutputWithFee(cfg.Amount, reserveIn, reserveOut, pool.FeeBps)
	if err != nil {
		return err
	}
	minOut, err := amm.MulDiv(expectedOut, core.BpsDenominator-uint64(cfg.SlippageBps), core.BpsDenominator)
	if err != nil {
		return err
	}

	fill, err := v.Swap(ctx, core.SwapParams{
		TokenIn:     cfg.TokenIn,
		TokenOut:    cfg.TokenOut,
		AmountIn:    cfg.Amount,
		MinimumOut:  minOut,
		SlippageBps: cfg.SlippageBps,
	})
	if err != nil {
		return err
	}

	impact, err := amm.PriceImpactBps(cfg.Amount, fill.AmountOut, reserveIn, reserveOut)
	if err != nil {
		return err
	}
	// Execution cost against the no-slippage quote; standalone swaps have
	// no round trip to realize a gain against.
	quoteOut, err := amm.MulDiv(cfg.Amount, reserveOut, reserveIn)
	if err != nil {
		return err
	}
	pnl := int64(fill.AmountOut) - int64(quoteOut)

	risk.RecordTradeOutcome(metrics, pnl)
	metrics.TotalVolume += cfg.Amount

	m := telemetry.GetGlobalMetrics()
	m.AddTradeExecuted(ctx, cfg.Venue.String())
	m.AddRealizedPnL(ctx, float64(pnl)/float64(core.PricePrecision))
	m.AddVolume(ctx, float64(cfg.Amount)/float64(core.PricePrecision))

	state.TradeResults = append(state.TradeResults, core.TradeResult{
		ID:          uuid.NewString(),
		BlockID:     b.ID,
		Venue:       cfg.Venue,
		Pair:        cfg.Pair,
		AmountIn:    cfg.Amount,
		AmountOut:   fill.AmountOut,
		ProfitLoss:  pnl,
		SlippageBps: impact,
		Timestamp:   it.now(),
	})
	return nil
}

func (it *Interpreter) evalExit(b Block, state *core.ExecutionState) bool {
	cfg := b.Exit
	if cfg.MinExecutedBlocks > 0 && len(state.ExecutedBlockIDs) >= cfg.MinExecutedBlocks {
		return true
	}
	if cfg.MaxCumulativeLoss > 0 && state.CumulativeLoss() > cfg.MaxCumulativeLoss {
		return true
	}
	if cfg.Predicate != nil && cfg.Predicate(state) {
		return true
	}
	return false
}
