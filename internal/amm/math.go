// Package amm provides overflow-checked constant-product pool arithmetic.
// Every multiply and divide detects overflow and fails rather than wrapping,
// and all division truncates toward zero, which under-credits the caller and
// never over-credits.
package amm

import (
	"math/bits"

	apperrors "trade_engine/pkg/errors"
)

// MulDiv computes floor(a*b/den) with a 128-bit intermediate product.
// Fails ErrOverflow if den is zero or the quotient does not fit in 64 bits.
func MulDiv(a, b, den uint64) (uint64, error) {
	if den == 0 {
		return 0, apperrors.ErrOverflow
	}
	hi, lo := bits.Mul64(a, b)
	if hi >= den {
		return 0, apperrors.ErrOverflow
	}
	q, _ := bits.Div64(hi, lo, den)
	return q, nil
}

func checkedAdd(a, b uint64) (uint64, error) {
	sum, carry := bits.Add64(a, b, 0)
	if carry != 0 {
		return 0, apperrors.ErrOverflow
	}
	return sum, nil
}

func checkedSub(a, b uint64) (uint64, error) {
	diff, borrow := bits.Sub64(a, b, 0)
	if borrow != 0 {
		return 0, apperrors.ErrOverflow
	}
	return diff, nil
}

// SwapOutput returns the constant-product swap output
// floor(amountIn * reserveOut / (reserveIn + amountIn)).
func SwapOutput(amountIn, reserveIn, reserveOut uint64) (uint64, error) {
	den, err := checkedAdd(reserveIn, amountIn)
	if err != nil {
		return 0, err
	}
	return MulDiv(amountIn, reserveOut, den)
}

// SwapOutputWithFee deducts a basis-point fee from amountIn before applying
// the constant-product formula.
func SwapOutputWithFee(amountIn, reserveIn, reserveOut uint64, feeBps uint16) (uint64, error) {
	if uint64(feeBps) > 10_000 {
		return 0, apperrors.ErrInvalidConfiguration
	}
	amountInNet, err := MulDiv(amountIn, 10_000-uint64(feeBps), 10_000)
	if err != nil {
		return 0, err
	}
	return SwapOutput(amountInNet, reserveIn, reserveOut)
}

// PriceImpactBps measures realized slippage against the no-slippage quote
// floor(amountIn*reserveOut/reserveIn). Fails ErrOverflow when the expected
// output is zero or amountOut exceeds it.
func PriceImpactBps(amountIn, amountOut, reserveIn, reserveOut uint64) (uint16, error) {
	expectedOut, err := MulDiv(amountIn, reserveOut, reserveIn)
	if err != nil {
		return 0, err
	}
	if expectedOut == 0 {
		return 0, apperrors.ErrOverflow
	}
	diff, err := checkedSub(expectedOut, amountOut)
	if err != nil {
		return 0, err
	}
	impact, err := MulDiv(diff, 10_000, expectedOut)
	if err != nil {
		return 0, err
	}
	return uint16(impact), nil
}

// LPMintAmount returns the LP tokens minted for a two-sided deposit,
// min(floor(amountA*lpSupply/reserveA), floor(amountB*lpSupply/reserveB)).
// Asymmetric deposits are capped by the scarcer side.
func LPMintAmount(amountA, amountB, reserveA, reserveB, lpSupply uint64) (uint64, error) {
	byA, err := MulDiv(amountA, lpSupply, reserveA)
	if err != nil {
		return 0, err
	}
	byB, err := MulDiv(amountB, lpSupply, reserveB)
	if err != nil {
		return 0, err
	}
	if byA < byB {
		return byA, nil
	}
	return byB, nil
}
