// Package liquidity computes rebalancing moves that bring the actual
// per-venue liquidity distribution in line with configured target ratios.
package liquidity

import (
	"fmt"

	"trade_engine/internal/amm"
	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

// PoolBalance identifies one venue pool and its current liquidity value.
type PoolBalance struct {
	Venue   core.VenueKind
	Pool    string
	Current uint64
}

// ComputeMoves diffs current balances against target ratios and returns
// the moves that close the gap. Ratios must sum to exactly 100; that is
// checked before any balance is read, so a bad config never produces a
// partial move list. Moves follow the order of targets as given.
func ComputeMoves(balances []PoolBalance, targets []core.LiquidityRatio) ([]core.LiquidityMove, error) {
	var sum uint64
	for _, t := range targets {
		sum += uint64(t.TargetRatio)
	}
	if sum != 100 {
		return nil, fmt.Errorf("%w: got %d", apperrors.ErrInvalidRatios, sum)
	}

	byPool := make(map[string]uint64, len(balances))
	var total uint64
	for _, b := range balances {
		key := poolKey(b.Venue, b.Pool)
		byPool[key] = b.Current
		t, err := checkedTotal(total, b.Current)
		if err != nil {
			return nil, err
		}
		total = t
	}

	moves := make([]core.LiquidityMove, 0, len(targets))
	for _, t := range targets {
		target, err := amm.MulDiv(total, uint64(t.TargetRatio), 100)
		if err != nil {
			return nil, err
		}
		current := byPool[poolKey(t.Venue, t.Pool)]

		switch {
		case current < target:
			moves = append(moves, core.LiquidityMove{
				Venue:     t.Venue,
				Pool:      t.Pool,
				Amount:    target - current,
				Direction: core.MoveAdd,
			})
		case current > target:
			moves = append(moves, core.LiquidityMove{
				Venue:     t.Venue,
				Pool:      t.Pool,
				Amount:    current - target,
				Direction: core.MoveRemove,
			})
		}
	}
	return moves, nil
}

// Imbalance reports the largest single-pool deviation from target, in
// basis points of total liquidity. Zero total liquidity is perfectly
// balanced by definition.
func Imbalance(balances []PoolBalance, targets []core.LiquidityRatio) (uint64, error) {
	moves, err := ComputeMoves(balances, targets)
	if err != nil {
		return 0, err
	}
	var total uint64
	for _, b := range balances {
		t, err := checkedTotal(total, b.Current)
		if err != nil {
			return 0, err
		}
		total = t
	}
	if total == 0 {
		return 0, nil
	}

	var worst uint64
	for _, m := range moves {
		bps, err := amm.MulDiv(m.Amount, core.BpsDenominator, total)
		if err != nil {
			return 0, err
		}
		if bps > worst {
			worst = bps
		}
	}
	return worst, nil
}

func poolKey(venue core.VenueKind, pool string) string {
	return venue.String() + ":" + pool
}

func checkedTotal(total, add uint64) (uint64, error) {
	sum := total + add
	if sum < total {
		return 0, apperrors.ErrOverflow
	}
	return sum, nil
}
