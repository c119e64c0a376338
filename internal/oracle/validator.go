// Package oracle validates raw price quotes and provides oracle feed adapters.
package oracle

import (
	"math/bits"
	"time"

	"trade_engine/internal/amm"
	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

const (
	// RelativeConfidenceCapBps caps confidence at 1% of price.
	RelativeConfidenceCapBps uint64 = 100
	// MinConfidence rejects venues reporting implausibly tight or zero
	// confidence intervals.
	MinConfidence uint64 = 100
)

// Validate checks a raw quote's freshness and confidence. It is a pure
// function of (quote, now, thresholds) and never mutates the quote.
func Validate(quote core.PriceQuote, now int64, maxStaleness time.Duration, maxConfidence uint64) (core.ValidatedPrice, error) {
	if now-quote.PublishTime > int64(maxStaleness/time.Second) {
		return core.ValidatedPrice{}, apperrors.ErrStalePrice
	}
	if quote.Confidence > maxConfidence {
		return core.ValidatedPrice{}, apperrors.ErrLowConfidence
	}
	if quote.Price == 0 {
		return core.ValidatedPrice{}, apperrors.ErrPriceUnavailable
	}
	relBps, err := amm.MulDiv(quote.Confidence, 10_000, quote.Price)
	if err != nil {
		return core.ValidatedPrice{}, err
	}
	if relBps > RelativeConfidenceCapBps {
		return core.ValidatedPrice{}, apperrors.ErrExcessiveRelativeConfidence
	}
	if quote.Confidence < MinConfidence {
		return core.ValidatedPrice{}, apperrors.ErrInsufficientConfidence
	}
	return core.ValidatedPrice{
		Venue:       quote.Venue,
		Price:       quote.Price,
		Confidence:  quote.Confidence,
		PublishTime: quote.PublishTime,
	}, nil
}

// TWAP averages all samples in history published within the trailing period.
// The accumulator is 128 bits wide so summation cannot overflow, and the
// final division truncates. Fails ErrInsufficientPriceData when no sample
// qualifies.
func TWAP(history []core.PriceQuote, now int64, period time.Duration) (uint64, error) {
	var hi, lo, count uint64
	maxAge := int64(period / time.Second)
	for _, q := range history {
		if now-q.PublishTime > maxAge {
			continue
		}
		var carry uint64
		lo, carry = bits.Add64(lo, q.Price, 0)
		hi += carry
		count++
	}
	if count == 0 {
		return 0, apperrors.ErrInsufficientPriceData
	}
	// hi <= count-1, so the quotient always fits in 64 bits.
	avg, _ := bits.Div64(hi, lo, count)
	return avg, nil
}

// Validator bundles the validation thresholds used on every poll.
type Validator struct {
	MaxStaleness  time.Duration
	MaxConfidence uint64
}

// Validate applies the package-level checks with the bundled thresholds.
func (v Validator) Validate(quote core.PriceQuote, now int64) (core.ValidatedPrice, error) {
	return Validate(quote, now, v.MaxStaleness, v.MaxConfidence)
}
