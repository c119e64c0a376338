// Package risk gates proposed trades against configured limits and keeps
// the post-trade performance record.
package risk

import (
	"trade_engine/internal/core"
)

// Allow reports whether a trade of tradeSize may proceed under the given
// limits and trading record. A false return is a normal, expected outcome,
// not a fault; callers branch on it rather than treating it as an error.
func Allow(params core.RiskParameters, metrics core.PerformanceMetrics, tradeSize uint64) bool {
	if tradeSize > params.MaxTradeSize {
		return false
	}
	if metrics.TotalProfitLoss < -int64(params.DailyLossLimit) {
		return false
	}
	return true
}

// RecordTradeOutcome folds one realized profit or loss into the metrics.
// The largest-profit and largest-loss extrema only ever grow.
func RecordTradeOutcome(metrics *core.PerformanceMetrics, pnl int64) {
	metrics.TotalProfitLoss += pnl
	if pnl > 0 {
		metrics.WinCount++
		if uint64(pnl) > metrics.LargestProfit {
			metrics.LargestProfit = uint64(pnl)
		}
	} else {
		metrics.LossCount++
		if uint64(-pnl) > metrics.LargestLoss {
			metrics.LargestLoss = uint64(-pnl)
		}
	}
}
