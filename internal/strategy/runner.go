package strategy

import (
	"context"
	"errors"
	"sync"
	"time"

	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

// Runner executes a configured block sequence on a fixed interval. Each
// tick is one full interpreter run against the runner's account snapshot;
// an aborted run is an outcome, not a runner failure, so a strategy whose
// trigger has not fired yet simply waits for the next tick. The runner
// keeps its own cumulative metrics record across runs.
type Runner struct {
	interpreter *Interpreter
	blocks      []Block
	snap        Snapshot
	params      core.RiskParameters
	interval    time.Duration
	logger      core.ILogger

	mu      sync.Mutex
	metrics core.PerformanceMetrics
	last    Outcome
	ran     bool
}

// NewRunner creates a Runner. A non-positive interval runs the sequence
// exactly once. The logger may be nil.
func NewRunner(
	it *Interpreter,
	blocks []Block,
	snap Snapshot,
	params core.RiskParameters,
	interval time.Duration,
	logger core.ILogger,
) *Runner {
	return &Runner{
		interpreter: it,
		blocks:      blocks,
		snap:        snap,
		params:      params,
		interval:    interval,
		logger:      logger,
	}
}

// Run executes the sequence once immediately, then on every interval tick
// until ctx is cancelled. A malformed sequence fails fast before any run.
func (r *Runner) Run(ctx context.Context) error {
	if err := ValidateBlocks(r.blocks); err != nil {
		return err
	}

	r.runOnce(ctx)
	if r.interval <= 0 {
		return nil
	}

	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			r.runOnce(ctx)
		}
	}
}

func (r *Runner) runOnce(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()

	outcome, err := r.interpreter.Run(ctx, r.blocks, r.snap, r.params, &r.metrics)
	r.last = outcome
	r.ran = true
	if r.logger == nil {
		return
	}
	switch {
	case errors.Is(err, apperrors.ErrConditionNotMet):
		r.logger.Debug("strategy waiting on trigger")
	case err != nil:
		r.logger.Warn("strategy run aborted", "error", err)
	case outcome.RiskRejected:
		r.logger.Warn("strategy trade rejected by risk gate")
	default:
		r.logger.Info("strategy run finished", "status", outcome.Status.String())
	}
}

// Metrics returns a copy of the cumulative metrics record.
func (r *Runner) Metrics() core.PerformanceMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.metrics
}

// LastOutcome reports the most recent run's outcome. The second return is
// false before the first run finishes.
func (r *Runner) LastOutcome() (Outcome, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last, r.ran
}
