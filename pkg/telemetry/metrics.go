package telemetry

import (
	"context"
	"sync"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric names
const (
	MetricRoutesFoundTotal    = "trade_engine_routes_found_total"
	MetricTradesExecutedTotal = "trade_engine_trades_executed_total"
	MetricPnLRealizedTotal    = "trade_engine_pnl_realized_total"
	MetricVolumeTotal         = "trade_engine_volume_total"
	MetricRiskRejectionsTotal = "trade_engine_risk_rejections_total"
	MetricQuoteRejectionsTotal = "trade_engine_quote_rejections_total"
	MetricLiquidityMovesTotal = "trade_engine_liquidity_moves_total"
	MetricCircuitBreakerOpen  = "trade_engine_circuit_breaker_open"
	MetricBestProfitBps       = "trade_engine_best_profit_bps"
	MetricLastPrice           = "trade_engine_last_price"
	MetricLiquidityRiskScore  = "trade_engine_liquidity_risk_score"
)

// MetricsHolder holds initialized instruments
type MetricsHolder struct {
	RoutesFoundTotal     metric.Int64Counter
	TradesExecutedTotal  metric.Int64Counter
	PnLRealizedTotal     metric.Float64Counter
	VolumeTotal          metric.Float64Counter
	RiskRejectionsTotal  metric.Int64Counter
	QuoteRejectionsTotal metric.Int64Counter
	LiquidityMovesTotal  metric.Int64Counter
	CircuitBreakerGauge  metric.Int64ObservableGauge
	BestProfitBpsGauge   metric.Int64ObservableGauge
	LastPriceGauge       metric.Float64ObservableGauge
	LiquidityRiskGauge   metric.Int64ObservableGauge

	// State for observable gauges
	mu             sync.RWMutex
	cbOpen         int64
	bestProfitMap  map[string]int64
	lastPriceMap   map[string]float64
	liquidityRisk  int64
	initialized    bool
}

var (
	globalMetrics *MetricsHolder
	initOnce      sync.Once
)

// GetGlobalMetrics returns the singleton metrics holder
func GetGlobalMetrics() *MetricsHolder {
	initOnce.Do(func() {
		globalMetrics = &MetricsHolder{
			bestProfitMap: make(map[string]int64),
			lastPriceMap:  make(map[string]float64),
		}
		// Initialization of instruments happens in InitMetrics
	})
	return globalMetrics
}

// InitMetrics initializes instruments using the meter
func (m *MetricsHolder) InitMetrics(meter metric.Meter) error {
	var err error

	m.RoutesFoundTotal, err = meter.Int64Counter(MetricRoutesFoundTotal, metric.WithDescription("Profitable arbitrage routes discovered"))
	if err != nil {
		return err
	}

	m.TradesExecutedTotal, err = meter.Int64Counter(MetricTradesExecutedTotal, metric.WithDescription("Trades executed against venues"))
	if err != nil {
		return err
	}

	m.PnLRealizedTotal, err = meter.Float64Counter(MetricPnLRealizedTotal, metric.WithDescription("Cumulative realized profit/loss"))
	if err != nil {
		return err
	}

	m.VolumeTotal, err = meter.Float64Counter(MetricVolumeTotal, metric.WithDescription("Total traded volume in quote units"))
	if err != nil {
		return err
	}

	m.RiskRejectionsTotal, err = meter.Int64Counter(MetricRiskRejectionsTotal, metric.WithDescription("Trades rejected by the risk gate"))
	if err != nil {
		return err
	}

	m.QuoteRejectionsTotal, err = meter.Int64Counter(MetricQuoteRejectionsTotal, metric.WithDescription("Oracle quotes rejected by validation"))
	if err != nil {
		return err
	}

	m.LiquidityMovesTotal, err = meter.Int64Counter(MetricLiquidityMovesTotal, metric.WithDescription("Liquidity rebalancing moves executed"))
	if err != nil {
		return err
	}

	// Observables
	m.CircuitBreakerGauge, err = meter.Int64ObservableGauge(MetricCircuitBreakerOpen, metric.WithDescription("Circuit breaker open state (1=open, 0=closed)"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.cbOpen)
			return nil
		}))
	if err != nil {
		return err
	}

	m.BestProfitBpsGauge, err = meter.Int64ObservableGauge(MetricBestProfitBps, metric.WithDescription("Best route profit seen on the last scan, in bps"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for pair, val := range m.bestProfitMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("pair", pair)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.LastPriceGauge, err = meter.Float64ObservableGauge(MetricLastPrice, metric.WithDescription("Last validated price per feed"),
		metric.WithFloat64Callback(func(ctx context.Context, obs metric.Float64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			for feed, val := range m.lastPriceMap {
				obs.Observe(val, metric.WithAttributes(attribute.String("feed", feed)))
			}
			return nil
		}))
	if err != nil {
		return err
	}

	m.LiquidityRiskGauge, err = meter.Int64ObservableGauge(MetricLiquidityRiskScore, metric.WithDescription("Composite liquidity risk score in bps"),
		metric.WithInt64Callback(func(ctx context.Context, obs metric.Int64Observer) error {
			m.mu.RLock()
			defer m.mu.RUnlock()
			obs.Observe(m.liquidityRisk)
			return nil
		}))
	if err != nil {
		return err
	}

	m.mu.Lock()
	m.initialized = true
	m.mu.Unlock()
	return nil
}

func (m *MetricsHolder) ready() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.initialized
}

// Counter helpers. Safe no-ops before InitMetrics so unit tests need no
// telemetry bootstrap.

func (m *MetricsHolder) AddRouteFound(ctx context.Context, pair string) {
	if !m.ready() {
		return
	}
	m.RoutesFoundTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("pair", pair)))
}

func (m *MetricsHolder) AddTradeExecuted(ctx context.Context, venue string) {
	if !m.ready() {
		return
	}
	m.TradesExecutedTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("venue", venue)))
}

func (m *MetricsHolder) AddRealizedPnL(ctx context.Context, pnl float64) {
	if !m.ready() {
		return
	}
	m.PnLRealizedTotal.Add(ctx, pnl)
}

func (m *MetricsHolder) AddVolume(ctx context.Context, volume float64) {
	if !m.ready() {
		return
	}
	m.VolumeTotal.Add(ctx, volume)
}

func (m *MetricsHolder) AddRiskRejection(ctx context.Context) {
	if !m.ready() {
		return
	}
	m.RiskRejectionsTotal.Add(ctx, 1)
}

func (m *MetricsHolder) AddQuoteRejection(ctx context.Context, reason string) {
	if !m.ready() {
		return
	}
	m.QuoteRejectionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("reason", reason)))
}

func (m *MetricsHolder) AddLiquidityMove(ctx context.Context, direction string) {
	if !m.ready() {
		return
	}
	m.LiquidityMovesTotal.Add(ctx, 1, metric.WithAttributes(attribute.String("direction", direction)))
}

// Helpers to update observable state

func (m *MetricsHolder) SetCircuitBreakerOpen(open bool) {
	val := int64(0)
	if open {
		val = 1
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cbOpen = val
}

func (m *MetricsHolder) SetBestProfitBps(pair string, bps int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.bestProfitMap[pair] = bps
}

func (m *MetricsHolder) SetLastPrice(feed string, price float64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lastPriceMap[feed] = price
}

func (m *MetricsHolder) SetLiquidityRiskScore(score uint64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.liquidityRisk = int64(score)
}
