// Package scanner drives the engine: on every tick it polls the oracle,
// validates quotes, searches for arbitrage routes, and executes the best
// one through the risk gate and circuit breaker. One scan per pair runs
// as a pool task; the account metrics record is serialized behind a
// single lock so concurrent pair scans never interleave updates.
package scanner

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/time/rate"

	"trade_engine/internal/alert"
	"trade_engine/internal/amm"
	"trade_engine/internal/arbitrage"
	"trade_engine/internal/core"
	"trade_engine/internal/liquidity"
	"trade_engine/internal/oracle"
	"trade_engine/internal/risk"
	"trade_engine/internal/venue"
	"trade_engine/pkg/concurrency"
	"trade_engine/pkg/telemetry"
)

// Feed binds one oracle feed to the venue and pair it prices.
type Feed struct {
	ID    string
	Venue core.VenueKind
	Pair  core.TokenPair
}

// Config holds the scanner's tunables.
type Config struct {
	Pairs          []core.TokenPair
	Feeds          []Feed
	MinProfitBps   uint64
	TradeSize      uint64
	ScanInterval   time.Duration
	MaxScansPerSec int

	RebalanceEnabled bool
	RebalanceTargets []core.LiquidityRatio
	MinMoveAmount    uint64
	RiskThresholdBps uint64
}

// Scanner owns the scan loop and the account's metrics record.
type Scanner struct {
	cfg       Config
	oracle    core.Oracle
	validator oracle.Validator
	finder    *arbitrage.Finder
	executor  *arbitrage.Executor
	registry  *venue.Registry
	breaker   *risk.CircuitBreaker
	store     core.MetricsStore
	pool      *concurrency.WorkerPool
	limiter   *rate.Limiter
	alerts    *alert.AlertManager
	logger    core.ILogger
	params    core.RiskParameters

	mu      sync.Mutex
	metrics core.PerformanceMetrics
}

// New creates a Scanner. The alert manager and logger may be nil.
func New(
	cfg Config,
	o core.Oracle,
	validator oracle.Validator,
	registry *venue.Registry,
	breaker *risk.CircuitBreaker,
	store core.MetricsStore,
	pool *concurrency.WorkerPool,
	alerts *alert.AlertManager,
	params core.RiskParameters,
	logger core.ILogger,
) *Scanner {
	limit := rate.Inf
	if cfg.MaxScansPerSec > 0 {
		limit = rate.Limit(cfg.MaxScansPerSec)
	}
	return &Scanner{
		cfg:       cfg,
		oracle:    o,
		validator: validator,
		finder:    arbitrage.NewFinder(logger),
		executor:  arbitrage.NewExecutor(registry, logger),
		registry:  registry,
		breaker:   breaker,
		store:     store,
		pool:      pool,
		limiter:   rate.NewLimiter(limit, 1),
		alerts:    alerts,
		params:    params,
		logger:    logger,
	}
}

// Run loads the persisted metrics and scans until ctx is cancelled. The
// final metrics snapshot is saved on the way out.
func (s *Scanner) Run(ctx context.Context) error {
	metrics, err := s.store.Load(ctx)
	if err != nil {
		return fmt.Errorf("load metrics: %w", err)
	}
	s.mu.Lock()
	s.metrics = metrics
	s.mu.Unlock()

	ticker := time.NewTicker(s.cfg.ScanInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return s.saveMetrics(context.WithoutCancel(ctx))
		case <-ticker.C:
			if !s.limiter.Allow() {
				continue
			}
			s.tick(ctx)
		}
	}
}

func (s *Scanner) tick(ctx context.Context) {
	for _, pair := range s.cfg.Pairs {
		p := pair
		if err := s.pool.Submit(func() { s.scanPair(ctx, p) }); err != nil {
			if s.logger != nil {
				s.logger.Warn("scan skipped, worker pool full", "pair", p.String())
			}
		}
	}
	if s.cfg.RebalanceEnabled {
		if err := s.pool.Submit(func() { s.rebalance(ctx) }); err != nil && s.logger != nil {
			s.logger.Warn("rebalance skipped, worker pool full")
		}
	}
}

// scanPair runs the full decision pipeline for one pair on one tick.
func (s *Scanner) scanPair(ctx context.Context, pair core.TokenPair) {
	if s.breaker.IsTripped() {
		return
	}

	now := time.Now()
	quotes := s.collectQuotes(ctx, pair, now)
	if len(quotes) < 2 {
		return
	}

	routes, err := s.finder.FindRoutes(quotes, now, pair, s.cfg.MinProfitBps)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("route search failed", "pair", pair.String(), "error", err)
		}
		return
	}
	routes = arbitrage.FilterProfitable(routes)
	if len(routes) == 0 {
		return
	}

	best := routes[0]
	for _, r := range routes[1:] {
		if r.ExpectedProfitBps > best.ExpectedProfitBps {
			best = r
		}
	}
	telemetry.GetGlobalMetrics().AddRouteFound(ctx, pair.String())
	telemetry.GetGlobalMetrics().SetBestProfitBps(pair.String(), int64(best.ExpectedProfitBps))

	s.mu.Lock()
	defer s.mu.Unlock()

	result, allowed, err := s.executor.Execute(ctx, best, s.cfg.TradeSize, s.params, &s.metrics)
	if err != nil {
		if s.logger != nil {
			s.logger.Warn("route execution failed", "route", best.Kind.String(), "error", err)
		}
		return
	}
	if !allowed {
		s.notifyRejection(ctx, best)
		return
	}

	s.breaker.RecordTrade(result.ProfitLoss)
	if s.breaker.IsTripped() {
		s.notifyBreakerTrip(ctx)
	}

	if err := s.store.Save(ctx, s.metrics); err != nil && s.logger != nil {
		s.logger.Error("metrics save failed", "error", err)
	}
}

// collectQuotes polls and validates the pair's feeds. Feeds that fail
// validation are dropped for this tick; a venue without a fresh quote
// contributes no routes.
func (s *Scanner) collectQuotes(ctx context.Context, pair core.TokenPair, now time.Time) map[core.VenueKind]core.ValidatedPrice {
	quotes := make(map[core.VenueKind]core.ValidatedPrice)
	for _, feed := range s.cfg.Feeds {
		if feed.Pair != pair {
			continue
		}
		quote, err := s.oracle.GetQuote(ctx, feed.ID)
		if err != nil {
			telemetry.GetGlobalMetrics().AddQuoteRejection(ctx, "fetch_failed")
			continue
		}
		validated, err := s.validator.Validate(quote, now.Unix())
		if err != nil {
			telemetry.GetGlobalMetrics().AddQuoteRejection(ctx, err.Error())
			if s.logger != nil {
				s.logger.Debug("quote rejected", "feed", feed.ID, "error", err)
			}
			continue
		}
		quotes[feed.Venue] = validated
		telemetry.GetGlobalMetrics().SetLastPrice(feed.ID, float64(validated.Price)/float64(core.PricePrecision))
	}
	return quotes
}

// rebalance measures the liquidity distribution across registered venues
// and applies the moves that restore the configured targets. Moves only
// run when the position's health crosses the risk threshold.
func (s *Scanner) rebalance(ctx context.Context) {
	balances := make([]liquidity.PoolBalance, 0, len(s.cfg.RebalanceTargets))
	prices := make([]uint64, 0, len(s.cfg.RebalanceTargets))
	for _, t := range s.cfg.RebalanceTargets {
		v, err := s.registry.Get(t.Venue)
		if err != nil {
			continue
		}
		pair, ok := parsePool(t.Pool)
		if !ok {
			continue
		}
		pool, err := v.Pool(ctx, pair)
		if err != nil {
			continue
		}
		balances = append(balances, liquidity.PoolBalance{
			Venue:   t.Venue,
			Pool:    t.Pool,
			Current: pool.ReserveB, // quote-side value
		})
		if pool.ReserveA > 0 {
			if p, err := amm.MulDiv(pool.ReserveB, core.PricePrecision, pool.ReserveA); err == nil {
				prices = append(prices, p)
			}
		}
	}

	health, err := liquidity.Assess(balances, s.cfg.RebalanceTargets, priceDispersionBps(prices), s.cfg.RiskThresholdBps)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("liquidity health check failed", "error", err)
		}
		return
	}
	telemetry.GetGlobalMetrics().SetLiquidityRiskScore(health.RiskScore)
	if !health.NeedsRebalance {
		if s.logger != nil {
			s.logger.Debug("liquidity within risk threshold",
				"risk_score", health.RiskScore,
				"imbalance_bps", health.ImbalanceBps)
		}
		return
	}

	moves, err := liquidity.ComputeMoves(balances, s.cfg.RebalanceTargets)
	if err != nil {
		if s.logger != nil {
			s.logger.Error("rebalance computation failed", "error", err)
		}
		return
	}

	for _, move := range moves {
		if move.Amount < s.cfg.MinMoveAmount {
			continue
		}
		if err := s.applyMove(ctx, move); err != nil {
			if s.logger != nil {
				s.logger.Warn("liquidity move failed", "venue", move.Venue.String(), "error", err)
			}
			continue
		}
		telemetry.GetGlobalMetrics().AddLiquidityMove(ctx, move.Direction.String())
	}
}

func (s *Scanner) applyMove(ctx context.Context, move core.LiquidityMove) error {
	v, err := s.registry.Get(move.Venue)
	if err != nil {
		return err
	}
	pair, ok := parsePool(move.Pool)
	if !ok {
		return fmt.Errorf("malformed pool name %q", move.Pool)
	}

	switch move.Direction {
	case core.MoveAdd:
		pool, err := v.Pool(ctx, pair)
		if err != nil {
			return err
		}
		// Match the pool's current ratio so the deposit is symmetric.
		amountA, err := amm.MulDiv(move.Amount, pool.ReserveA, pool.ReserveB)
		if err != nil {
			return err
		}
		_, err = v.AddLiquidity(ctx, core.LiquidityParams{
			Pair:    pair,
			AmountA: amountA,
			AmountB: move.Amount,
		})
		return err
	case core.MoveRemove:
		pool, err := v.Pool(ctx, pair)
		if err != nil {
			return err
		}
		// Burn the LP share whose quote-side value equals the surplus.
		lpAmount, err := amm.MulDiv(move.Amount, pool.LPSupply, pool.ReserveB)
		if err != nil {
			return err
		}
		_, _, err = v.RemoveLiquidity(ctx, pair, lpAmount)
		return err
	}
	return nil
}

func (s *Scanner) saveMetrics(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.store.Save(ctx, s.metrics)
}

// Metrics returns a copy of the current metrics record.
func (s *Scanner) Metrics() core.PerformanceMetrics {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.metrics
}

func (s *Scanner) notifyRejection(ctx context.Context, route core.ArbitrageRoute) {
	if s.alerts == nil {
		return
	}
	s.alerts.Alert(ctx, "Trade rejected", "risk gate declined the trade", alert.Warning, map[string]string{
		"route": route.Kind.String(),
		"pair":  route.Pair.String(),
	})
}

func (s *Scanner) notifyBreakerTrip(ctx context.Context) {
	if s.logger != nil {
		s.logger.Error("circuit breaker tripped, trading halted")
	}
	if s.alerts == nil {
		return
	}
	status := s.breaker.GetStatus()
	s.alerts.Alert(ctx, "Circuit breaker tripped", "trading halted until cooldown elapses", alert.Critical, map[string]string{
		"consecutive_losses": fmt.Sprintf("%d", status.ConsecutiveLosses),
		"total_pnl":          fmt.Sprintf("%d", status.TotalPnL),
	})
}

// priceDispersionBps proxies market volatility as the spread between the
// highest and lowest pool-implied price, in bps of the lowest.
func priceDispersionBps(prices []uint64) uint64 {
	if len(prices) < 2 {
		return 0
	}
	min, max := prices[0], prices[0]
	for _, p := range prices[1:] {
		if p < min {
			min = p
		}
		if p > max {
			max = p
		}
	}
	if min == 0 {
		return 0
	}
	d, err := amm.MulDiv(max-min, core.BpsDenominator, min)
	if err != nil {
		return core.BpsDenominator
	}
	return d
}

// parsePool splits a "BASE/QUOTE" pool name.
func parsePool(pool string) (core.TokenPair, bool) {
	for i := 0; i < len(pool); i++ {
		if pool[i] == '/' {
			if i == 0 || i == len(pool)-1 {
				return core.TokenPair{}, false
			}
			return core.TokenPair{Base: pool[:i], Quote: pool[i+1:]}, true
		}
	}
	return core.TokenPair{}, false
}
