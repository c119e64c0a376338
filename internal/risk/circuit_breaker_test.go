package risk_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"trade_engine/internal/risk"
)

func TestCircuitBreaker_ConsecutiveLosses(t *testing.T) {
	cb := risk.NewCircuitBreaker(risk.CircuitConfig{MaxConsecutiveLosses: 3})

	cb.RecordTrade(-100)
	cb.RecordTrade(-100)
	assert.False(t, cb.IsTripped())

	cb.RecordTrade(-100)
	assert.True(t, cb.IsTripped())
}

func TestCircuitBreaker_WinResetsStreak(t *testing.T) {
	cb := risk.NewCircuitBreaker(risk.CircuitConfig{MaxConsecutiveLosses: 3})

	cb.RecordTrade(-100)
	cb.RecordTrade(-100)
	cb.RecordTrade(50)
	cb.RecordTrade(-100)
	cb.RecordTrade(-100)
	assert.False(t, cb.IsTripped())
}

func TestCircuitBreaker_Drawdown(t *testing.T) {
	cb := risk.NewCircuitBreaker(risk.CircuitConfig{MaxDrawdownAmount: 1000})

	cb.RecordTrade(500)
	cb.RecordTrade(-1400)
	assert.False(t, cb.IsTripped(), "net pnl -900 is inside the drawdown limit")

	cb.RecordTrade(-200)
	assert.True(t, cb.IsTripped())
}

func TestCircuitBreaker_CooldownAutoReset(t *testing.T) {
	cb := risk.NewCircuitBreaker(risk.CircuitConfig{
		MaxConsecutiveLosses: 1,
		CooldownPeriod:       time.Millisecond,
	})

	cb.RecordTrade(-100)
	assert.True(t, cb.IsTripped())

	time.Sleep(5 * time.Millisecond)
	assert.False(t, cb.IsTripped())

	status := cb.GetStatus()
	assert.False(t, status.IsOpen)
	assert.Zero(t, status.ConsecutiveLosses)
}

func TestCircuitBreaker_ManualOpenAndReset(t *testing.T) {
	cb := risk.NewCircuitBreaker(risk.CircuitConfig{MaxConsecutiveLosses: 100})

	cb.Open()
	assert.True(t, cb.IsTripped())

	cb.Reset()
	assert.False(t, cb.IsTripped())
}
