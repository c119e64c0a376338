package mock

import (
	"context"

	"trade_engine/internal/core"
)

// Venue delegates every call to a settable function, defaulting to zero
// results. It exists for scripting failures; happy-path tests use the
// real AMM venue.
type Venue struct {
	KindValue      core.VenueKind
	SwapFn         func(ctx context.Context, params core.SwapParams) (core.SwapResult, error)
	AddLiquidityFn func(ctx context.Context, params core.LiquidityParams) (uint64, error)
	RemoveLiquidFn func(ctx context.Context, pair core.TokenPair, lpAmount uint64) (uint64, uint64, error)
	PoolFn         func(ctx context.Context, pair core.TokenPair) (core.PoolState, error)
}

func (v *Venue) Kind() core.VenueKind {
	return v.KindValue
}

func (v *Venue) Swap(ctx context.Context, params core.SwapParams) (core.SwapResult, error) {
	if v.SwapFn != nil {
		return v.SwapFn(ctx, params)
	}
	return core.SwapResult{}, nil
}

func (v *Venue) AddLiquidity(ctx context.Context, params core.LiquidityParams) (uint64, error) {
	if v.AddLiquidityFn != nil {
		return v.AddLiquidityFn(ctx, params)
	}
	return 0, nil
}

func (v *Venue) RemoveLiquidity(ctx context.Context, pair core.TokenPair, lpAmount uint64) (uint64, uint64, error) {
	if v.RemoveLiquidFn != nil {
		return v.RemoveLiquidFn(ctx, pair, lpAmount)
	}
	return 0, 0, nil
}

func (v *Venue) Pool(ctx context.Context, pair core.TokenPair) (core.PoolState, error) {
	if v.PoolFn != nil {
		return v.PoolFn(ctx, pair)
	}
	return core.PoolState{}, nil
}
