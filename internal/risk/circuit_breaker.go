package risk

import (
	"sync"
	"time"

	"trade_engine/pkg/telemetry"
)

type CircuitState int

const (
	CircuitClosed CircuitState = iota
	CircuitOpen
)

type CircuitConfig struct {
	MaxConsecutiveLosses int
	MaxDrawdownAmount    uint64 // fixed-point, 0 disables
	CooldownPeriod       time.Duration
}

// CircuitBreaker halts trading after a losing streak or drawdown. It sits
// in front of the per-trade gate: the gate judges one trade, the breaker
// judges the recent run of trades.
type CircuitBreaker struct {
	mu                sync.RWMutex
	state             CircuitState
	config            CircuitConfig
	consecutiveLosses int
	totalPnL          int64
	lastTripped       time.Time
}

// CircuitStatus is a snapshot of the breaker for introspection.
type CircuitStatus struct {
	IsOpen            bool
	ConsecutiveLosses int
	TotalPnL          int64
	OpenedAt          int64
}

func NewCircuitBreaker(config CircuitConfig) *CircuitBreaker {
	return &CircuitBreaker{
		state:  CircuitClosed,
		config: config,
	}
}

func (cb *CircuitBreaker) RecordTrade(pnl int64) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if pnl < 0 {
		cb.consecutiveLosses++
	} else {
		cb.consecutiveLosses = 0
	}

	cb.totalPnL += pnl

	cb.checkThresholds()
}

func (cb *CircuitBreaker) checkThresholds() {
	if cb.state == CircuitOpen {
		return
	}

	if cb.config.MaxConsecutiveLosses > 0 && cb.consecutiveLosses >= cb.config.MaxConsecutiveLosses {
		cb.trip()
		return
	}

	if cb.config.MaxDrawdownAmount > 0 && cb.totalPnL < -int64(cb.config.MaxDrawdownAmount) {
		cb.trip()
		return
	}
}

func (cb *CircuitBreaker) trip() {
	cb.state = CircuitOpen
	cb.lastTripped = time.Now()

	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(true)
}

func (cb *CircuitBreaker) IsTripped() bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state == CircuitOpen {
		// Auto-reset after cooldown when configured
		if cb.config.CooldownPeriod > 0 && time.Since(cb.lastTripped) > cb.config.CooldownPeriod {
			cb.state = CircuitClosed
			cb.consecutiveLosses = 0
			cb.totalPnL = 0
			return false
		}
		return true
	}
	return false
}

func (cb *CircuitBreaker) Reset() {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.state = CircuitClosed
	cb.consecutiveLosses = 0
	cb.totalPnL = 0

	telemetry.GetGlobalMetrics().SetCircuitBreakerOpen(false)
}

// Open manually trips the circuit breaker.
func (cb *CircuitBreaker) Open() {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	cb.trip()
}

func (cb *CircuitBreaker) GetStatus() CircuitStatus {
	cb.mu.RLock()
	defer cb.mu.RUnlock()
	return CircuitStatus{
		IsOpen:            cb.state == CircuitOpen,
		ConsecutiveLosses: cb.consecutiveLosses,
		TotalPnL:          cb.totalPnL,
		OpenedAt:          cb.lastTripped.Unix(),
	}
}
