package venue

import (
	"context"
	"fmt"
	"sync"

	"trade_engine/internal/amm"
	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

// AMMVenue is a constant-product pool venue. Every pool is held in memory
// and mutated under one lock, so swap, deposit and withdraw are atomic:
// a call either lands fully or fails without touching the reserves.
type AMMVenue struct {
	kind   core.VenueKind
	logger core.ILogger

	mu    sync.Mutex
	pools map[string]*core.PoolState
}

// NewAMMVenue creates a venue with no pools. The logger may be nil.
func NewAMMVenue(kind core.VenueKind, logger core.ILogger) *AMMVenue {
	return &AMMVenue{
		kind:   kind,
		logger: logger,
		pools:  make(map[string]*core.PoolState),
	}
}

// SeedPool installs or replaces the pool for a pair.
func (v *AMMVenue) SeedPool(pool core.PoolState) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.pools[poolKey(pool.TokenA, pool.TokenB)] = &pool
}

func poolKey(a, b string) string {
	if a < b {
		return a + "/" + b
	}
	return b + "/" + a
}

// Kind returns the venue identifier.
func (v *AMMVenue) Kind() core.VenueKind {
	return v.kind
}

// lookup must be called with v.mu held.
func (v *AMMVenue) lookup(tokenA, tokenB string) (*core.PoolState, error) {
	pool, ok := v.pools[poolKey(tokenA, tokenB)]
	if !ok {
		return nil, fmt.Errorf("%w: no %s/%s pool on %s", apperrors.ErrInvalidMarket, tokenA, tokenB, v.kind)
	}
	return pool, nil
}

// Swap executes a constant-product swap. The fill is rejected with
// ErrSlippageExceeded when the output would fall below params.MinimumOut,
// leaving the reserves unchanged.
func (v *AMMVenue) Swap(ctx context.Context, params core.SwapParams) (core.SwapResult, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pool, err := v.lookup(params.TokenIn, params.TokenOut)
	if err != nil {
		return core.SwapResult{}, err
	}

	reserveIn, reserveOut := pool.ReserveA, pool.ReserveB
	if params.TokenIn == pool.TokenB {
		reserveIn, reserveOut = pool.ReserveB, pool.ReserveA
	}

	out, err := amm.SwapOutputWithFee(params.AmountIn, reserveIn, reserveOut, pool.FeeBps)
	if err != nil {
		return core.SwapResult{}, err
	}
	if out < params.MinimumOut {
		return core.SwapResult{}, fmt.Errorf("%w: got %d, want at least %d",
			apperrors.ErrSlippageExceeded, out, params.MinimumOut)
	}

	if params.TokenIn == pool.TokenA {
		pool.ReserveA += params.AmountIn
		pool.ReserveB -= out
	} else {
		pool.ReserveB += params.AmountIn
		pool.ReserveA -= out
	}

	if v.logger != nil {
		v.logger.WithFields(map[string]interface{}{
			"venue":      v.kind.String(),
			"token_in":   params.TokenIn,
			"token_out":  params.TokenOut,
			"amount_in":  params.AmountIn,
			"amount_out": out,
		}).Debug("swap filled")
	}
	return core.SwapResult{AmountOut: out}, nil
}

// AddLiquidity deposits both sides and mints LP tokens at the pool's
// current ratio. The deposit is rejected with ErrSlippageExceeded when the
// mint falls below params.MinLPAmount.
func (v *AMMVenue) AddLiquidity(ctx context.Context, params core.LiquidityParams) (uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pool, err := v.lookup(params.Pair.Base, params.Pair.Quote)
	if err != nil {
		return 0, err
	}

	minted, err := amm.LPMintAmount(params.AmountA, params.AmountB, pool.ReserveA, pool.ReserveB, pool.LPSupply)
	if err != nil {
		return 0, err
	}
	if minted < params.MinLPAmount {
		return 0, fmt.Errorf("%w: lp mint %d below minimum %d",
			apperrors.ErrSlippageExceeded, minted, params.MinLPAmount)
	}

	pool.ReserveA += params.AmountA
	pool.ReserveB += params.AmountB
	pool.LPSupply += minted
	return minted, nil
}

// RemoveLiquidity burns lpAmount and withdraws the pro-rata share of both
// reserves.
func (v *AMMVenue) RemoveLiquidity(ctx context.Context, pair core.TokenPair, lpAmount uint64) (uint64, uint64, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pool, err := v.lookup(pair.Base, pair.Quote)
	if err != nil {
		return 0, 0, err
	}
	if lpAmount > pool.LPSupply {
		return 0, 0, fmt.Errorf("%w: burn %d exceeds lp supply %d",
			apperrors.ErrInsufficientBalance, lpAmount, pool.LPSupply)
	}

	amountA, err := amm.MulDiv(lpAmount, pool.ReserveA, pool.LPSupply)
	if err != nil {
		return 0, 0, err
	}
	amountB, err := amm.MulDiv(lpAmount, pool.ReserveB, pool.LPSupply)
	if err != nil {
		return 0, 0, err
	}

	pool.ReserveA -= amountA
	pool.ReserveB -= amountB
	pool.LPSupply -= lpAmount
	return amountA, amountB, nil
}

// Pool returns a snapshot of the pool for pair.
func (v *AMMVenue) Pool(ctx context.Context, pair core.TokenPair) (core.PoolState, error) {
	v.mu.Lock()
	defer v.mu.Unlock()

	pool, err := v.lookup(pair.Base, pair.Quote)
	if err != nil {
		return core.PoolState{}, err
	}
	return *pool, nil
}
