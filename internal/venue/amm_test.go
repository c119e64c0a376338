package venue_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/core"
	"trade_engine/internal/venue"
	apperrors "trade_engine/pkg/errors"
)

var solPair = core.TokenPair{Base: "SOL", Quote: "USDC"}

func seededVenue() *venue.AMMVenue {
	v := venue.NewAMMVenue(core.VenueRaydium, nil)
	v.SeedPool(core.PoolState{
		TokenA:   "SOL",
		TokenB:   "USDC",
		ReserveA: 1_000_000,
		ReserveB: 1_000_000,
		FeeBps:   0,
		LPSupply: 1_000_000,
	})
	return v
}

func TestAMMVenue_Swap(t *testing.T) {
	v := seededVenue()

	result, err := v.Swap(context.Background(), core.SwapParams{
		TokenIn:  "SOL",
		TokenOut: "USDC",
		AmountIn: 100_000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(90_909), result.AmountOut)

	pool, err := v.Pool(context.Background(), solPair)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_100_000), pool.ReserveA)
	assert.Equal(t, uint64(909_091), pool.ReserveB)
}

func TestAMMVenue_SwapReverseDirection(t *testing.T) {
	v := seededVenue()

	result, err := v.Swap(context.Background(), core.SwapParams{
		TokenIn:  "USDC",
		TokenOut: "SOL",
		AmountIn: 100_000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(90_909), result.AmountOut)

	pool, err := v.Pool(context.Background(), solPair)
	require.NoError(t, err)
	assert.Equal(t, uint64(909_091), pool.ReserveA)
	assert.Equal(t, uint64(1_100_000), pool.ReserveB)
}

func TestAMMVenue_SwapSlippageRejected(t *testing.T) {
	v := seededVenue()

	_, err := v.Swap(context.Background(), core.SwapParams{
		TokenIn:    "SOL",
		TokenOut:   "USDC",
		AmountIn:   100_000,
		MinimumOut: 95_000,
	})
	require.ErrorIs(t, err, apperrors.ErrSlippageExceeded)

	// A rejected fill leaves the reserves untouched.
	pool, err := v.Pool(context.Background(), solPair)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), pool.ReserveA)
	assert.Equal(t, uint64(1_000_000), pool.ReserveB)
}

func TestAMMVenue_SwapUnknownPool(t *testing.T) {
	v := seededVenue()

	_, err := v.Swap(context.Background(), core.SwapParams{
		TokenIn:  "ETH",
		TokenOut: "USDC",
		AmountIn: 1,
	})
	assert.ErrorIs(t, err, apperrors.ErrInvalidMarket)
}

func TestAMMVenue_AddLiquidity(t *testing.T) {
	v := seededVenue()

	minted, err := v.AddLiquidity(context.Background(), core.LiquidityParams{
		Pair:    solPair,
		AmountA: 100_000,
		AmountB: 100_000,
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(100_000), minted)

	pool, err := v.Pool(context.Background(), solPair)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_100_000), pool.ReserveA)
	assert.Equal(t, uint64(1_100_000), pool.ReserveB)
	assert.Equal(t, uint64(1_100_000), pool.LPSupply)
}

func TestAMMVenue_AddLiquidityBelowMinimumRejected(t *testing.T) {
	v := seededVenue()

	_, err := v.AddLiquidity(context.Background(), core.LiquidityParams{
		Pair:        solPair,
		AmountA:     100_000,
		AmountB:     100_000,
		MinLPAmount: 200_000,
	})
	require.ErrorIs(t, err, apperrors.ErrSlippageExceeded)

	pool, err := v.Pool(context.Background(), solPair)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), pool.LPSupply)
}

func TestAMMVenue_RemoveLiquidity(t *testing.T) {
	v := seededVenue()

	amountA, amountB, err := v.RemoveLiquidity(context.Background(), solPair, 250_000)
	require.NoError(t, err)
	assert.Equal(t, uint64(250_000), amountA)
	assert.Equal(t, uint64(250_000), amountB)

	pool, err := v.Pool(context.Background(), solPair)
	require.NoError(t, err)
	assert.Equal(t, uint64(750_000), pool.ReserveA)
	assert.Equal(t, uint64(750_000), pool.ReserveB)
	assert.Equal(t, uint64(750_000), pool.LPSupply)
}

func TestAMMVenue_RemoveLiquidityExceedsSupply(t *testing.T) {
	v := seededVenue()

	_, _, err := v.RemoveLiquidity(context.Background(), solPair, 2_000_000)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientBalance)
}

func TestAMMVenue_PoolSnapshotIsDetached(t *testing.T) {
	v := seededVenue()

	snap, err := v.Pool(context.Background(), solPair)
	require.NoError(t, err)
	snap.ReserveA = 0

	pool, err := v.Pool(context.Background(), solPair)
	require.NoError(t, err)
	assert.Equal(t, uint64(1_000_000), pool.ReserveA, "mutating a snapshot never touches the pool")
}

func TestAMMVenue_PoolUnknownPair(t *testing.T) {
	v := seededVenue()

	_, err := v.Pool(context.Background(), core.TokenPair{Base: "ETH", Quote: "USDC"})
	assert.ErrorIs(t, err, apperrors.ErrInvalidMarket)
}
