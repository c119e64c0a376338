package risk_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"trade_engine/internal/core"
	"trade_engine/internal/risk"
)

func limits() core.RiskParameters {
	return core.RiskParameters{
		MaxTradeSize:   1_000_000_000,
		DailyLossLimit: 100_000_000,
	}
}

func TestAllow(t *testing.T) {
	assert.True(t, risk.Allow(limits(), core.PerformanceMetrics{}, 500_000_000))
}

func TestAllow_TradeSizeLimit(t *testing.T) {
	assert.False(t, risk.Allow(limits(), core.PerformanceMetrics{}, 1_000_000_001))
	assert.True(t, risk.Allow(limits(), core.PerformanceMetrics{}, 1_000_000_000), "limit itself is allowed")
}

func TestAllow_DailyLossLimit(t *testing.T) {
	metrics := core.PerformanceMetrics{TotalProfitLoss: -100_000_001}
	assert.False(t, risk.Allow(limits(), metrics, 1))

	metrics.TotalProfitLoss = -100_000_000
	assert.True(t, risk.Allow(limits(), metrics, 1), "exactly at the loss limit still trades")
}

func TestRecordTradeOutcome_Win(t *testing.T) {
	metrics := core.PerformanceMetrics{}
	risk.RecordTradeOutcome(&metrics, 500)

	assert.Equal(t, int64(500), metrics.TotalProfitLoss)
	assert.Equal(t, uint64(1), metrics.WinCount)
	assert.Equal(t, uint64(0), metrics.LossCount)
	assert.Equal(t, uint64(500), metrics.LargestProfit)
}

func TestRecordTradeOutcome_Loss(t *testing.T) {
	metrics := core.PerformanceMetrics{}
	risk.RecordTradeOutcome(&metrics, -300)

	assert.Equal(t, int64(-300), metrics.TotalProfitLoss)
	assert.Equal(t, uint64(1), metrics.LossCount)
	assert.Equal(t, uint64(300), metrics.LargestLoss)
}

func TestRecordTradeOutcome_ExtremaNeverDecrease(t *testing.T) {
	metrics := core.PerformanceMetrics{}
	risk.RecordTradeOutcome(&metrics, 500)
	risk.RecordTradeOutcome(&metrics, 100)
	risk.RecordTradeOutcome(&metrics, -400)
	risk.RecordTradeOutcome(&metrics, -50)

	assert.Equal(t, uint64(500), metrics.LargestProfit)
	assert.Equal(t, uint64(400), metrics.LargestLoss)
	assert.Equal(t, int64(150), metrics.TotalProfitLoss)
	assert.Equal(t, uint64(2), metrics.WinCount)
	assert.Equal(t, uint64(2), metrics.LossCount)
}
