package strategy_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/core"
	"trade_engine/internal/mock"
	"trade_engine/internal/strategy"
	apperrors "trade_engine/pkg/errors"
)

func exitAfterOne(id string) strategy.Block {
	return strategy.Block{
		ID:   id,
		Type: strategy.BlockExit,
		Exit: &strategy.ExitConfig{MinExecutedBlocks: 1},
	}
}

func TestRunner_RunsOnceWithoutInterval(t *testing.T) {
	o := mock.NewOracle()
	o.SetQuote(solFeed, freshQuote(100_000_000))
	it := strategy.NewInterpreter(o, testVenues(t), testValidator(), nil)

	blocks := []strategy.Block{
		priceAboveBlock("check-price", 50_000_000),
		swapBlock("buy-usdc"),
		exitAfterOne("done"),
	}
	r := strategy.NewRunner(it, blocks, strategy.Snapshot{}, permissiveParams(), 0, nil)

	require.NoError(t, r.Run(context.Background()))

	out, ran := r.LastOutcome()
	require.True(t, ran)
	assert.Equal(t, strategy.StatusExited, out.Status)
	metrics := r.Metrics()
	assert.Equal(t, uint64(1), metrics.WinCount+metrics.LossCount)
	assert.Equal(t, uint64(1_000_000), metrics.TotalVolume)
}

func TestRunner_TicksUntilCancelled(t *testing.T) {
	o := mock.NewOracle()
	o.SetQuote(solFeed, freshQuote(100_000_000))
	it := strategy.NewInterpreter(o, testVenues(t), testValidator(), nil)

	blocks := []strategy.Block{
		priceAboveBlock("check-price", 50_000_000),
		swapBlock("buy-usdc"),
		exitAfterOne("done"),
	}
	r := strategy.NewRunner(it, blocks, strategy.Snapshot{}, permissiveParams(), 5*time.Millisecond, nil)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- r.Run(ctx) }()

	require.Eventually(t, func() bool {
		m := r.Metrics()
		return m.WinCount+m.LossCount >= 3
	}, 5*time.Second, 5*time.Millisecond, "each tick completes one run")

	cancel()
	require.NoError(t, <-done)
	assert.Greater(t, r.Metrics().TotalVolume, uint64(2_000_000), "volume accumulates across runs")
}

func TestRunner_AbortedRunIsNotAFailure(t *testing.T) {
	o := mock.NewOracle()
	o.SetQuote(solFeed, freshQuote(100_000_000))
	it := strategy.NewInterpreter(o, testVenues(t), testValidator(), nil)

	// The trigger never fires at the quoted price.
	blocks := []strategy.Block{
		priceAboveBlock("check-price", 500_000_000),
		swapBlock("buy-usdc"),
		exitAfterOne("done"),
	}
	r := strategy.NewRunner(it, blocks, strategy.Snapshot{}, permissiveParams(), 0, nil)

	require.NoError(t, r.Run(context.Background()))

	out, ran := r.LastOutcome()
	require.True(t, ran)
	assert.Equal(t, strategy.StatusAborted, out.Status)
	assert.Equal(t, core.PerformanceMetrics{}, r.Metrics(), "no trade fills on a waiting trigger")
}

func TestRunner_InvalidSequenceFailsFast(t *testing.T) {
	it := strategy.NewInterpreter(mock.NewOracle(), testVenues(t), testValidator(), nil)
	blocks := []strategy.Block{{ID: "broken", Type: strategy.BlockAction}}
	r := strategy.NewRunner(it, blocks, strategy.Snapshot{}, permissiveParams(), time.Second, nil)

	err := r.Run(context.Background())
	assert.ErrorIs(t, err, apperrors.ErrInvalidConfiguration)

	_, ran := r.LastOutcome()
	assert.False(t, ran)
}
