package scanner_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/core"
	"trade_engine/internal/mock"
	"trade_engine/internal/oracle"
	"trade_engine/internal/risk"
	"trade_engine/internal/scanner"
	"trade_engine/internal/venue"
	"trade_engine/pkg/concurrency"
	"trade_engine/pkg/logging"
)

var solPair = core.TokenPair{Base: "SOL", Quote: "USDC"}

func testLogger(t *testing.T) core.ILogger {
	t.Helper()
	logger, err := logging.NewZapLogger("ERROR")
	require.NoError(t, err)
	return logger
}

func testPool(t *testing.T) *concurrency.WorkerPool {
	t.Helper()
	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "scan-test",
		MaxWorkers:  2,
		MaxCapacity: 64,
		NonBlocking: true,
	}, testLogger(t))
	t.Cleanup(pool.Stop)
	return pool
}

// seedRegistry prices SOL at 100 USDC on raydium and 110 on jupiter, a
// spread wide enough that a round trip profits after pool impact.
func seedRegistry() *venue.Registry {
	raydium := venue.NewAMMVenue(core.VenueRaydium, nil)
	raydium.SeedPool(core.PoolState{
		TokenA: "SOL", TokenB: "USDC",
		ReserveA: 1_000_000_000_000,
		ReserveB: 100_000_000_000_000,
		LPSupply: 1_000_000_000_000,
	})
	jupiter := venue.NewAMMVenue(core.VenueJupiter, nil)
	jupiter.SeedPool(core.PoolState{
		TokenA: "SOL", TokenB: "USDC",
		ReserveA: 1_000_000_000_000,
		ReserveB: 110_000_000_000_000,
		LPSupply: 1_000_000_000_000,
	})
	registry := venue.NewRegistry()
	registry.Register(raydium)
	registry.Register(jupiter)
	return registry
}

func seedOracle() *mock.Oracle {
	o := mock.NewOracle()
	now := time.Now().Unix()
	o.SetQuote("ray-sol-usdc", core.PriceQuote{
		Venue: core.VenueRaydium, Price: 100_000_000, Confidence: 500_000, PublishTime: now,
	})
	o.SetQuote("jup-sol-usdc", core.PriceQuote{
		Venue: core.VenueJupiter, Price: 110_000_000, Confidence: 500_000, PublishTime: now,
	})
	return o
}

func permissiveParams() core.RiskParameters {
	return core.RiskParameters{
		MaxTradeSize:      1_000_000_000_000,
		DailyLossLimit:    1_000_000_000_000,
		MaxDrawdown:       1_000_000_000_000,
		ConsecutiveLosses: 100,
	}
}

func testBreaker() *risk.CircuitBreaker {
	return risk.NewCircuitBreaker(risk.CircuitConfig{
		MaxConsecutiveLosses: 100,
		MaxDrawdownAmount:    1_000_000_000_000,
		CooldownPeriod:       time.Minute,
	})
}

func arbFeeds() []scanner.Feed {
	return []scanner.Feed{
		{ID: "ray-sol-usdc", Venue: core.VenueRaydium, Pair: solPair},
		{ID: "jup-sol-usdc", Venue: core.VenueJupiter, Pair: solPair},
	}
}

func runScanner(t *testing.T, s *scanner.Scanner, until func() bool) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(5 * time.Second)
	for !until() {
		select {
		case <-deadline:
			cancel()
			<-done
			t.Fatal("scanner never reached the expected state")
		case <-time.After(10 * time.Millisecond):
		}
	}
	cancel()
	require.NoError(t, <-done)
}

func TestScanner_ExecutesProfitableRoute(t *testing.T) {
	store := risk.NewMemoryStore()
	validator := oracle.Validator{MaxStaleness: time.Minute, MaxConfidence: 1_000_000}

	pool := concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "scan-test",
		MaxWorkers:  2,
		MaxCapacity: 64,
		NonBlocking: true,
	}, testLogger(t))

	cfg := scanner.Config{
		Pairs:        []core.TokenPair{solPair},
		Feeds:        arbFeeds(),
		MinProfitBps: 50,
		TradeSize:    100_000_000, // 100 USDC
		ScanInterval: 10 * time.Millisecond,
	}
	s := scanner.New(cfg, seedOracle(), validator, seedRegistry(), testBreaker(),
		store, pool, nil, permissiveParams(), testLogger(t))

	runScanner(t, s, func() bool {
		m := s.Metrics()
		return m.WinCount+m.LossCount > 0
	})
	// Drain in-flight scans so the record stops moving.
	pool.Stop()

	metrics := s.Metrics()
	assert.Greater(t, metrics.TotalProfitLoss, int64(0), "a 10 percent spread round trip wins")
	assert.GreaterOrEqual(t, metrics.TotalVolume, uint64(100_000_000))

	persisted, err := store.Load(context.Background())
	require.NoError(t, err)
	assert.Equal(t, metrics, persisted, "metrics survive through the store")
}

func TestScanner_SingleQuoteFindsNothing(t *testing.T) {
	store := risk.NewMemoryStore()
	validator := oracle.Validator{MaxStaleness: time.Minute, MaxConfidence: 1_000_000}

	o := mock.NewOracle()
	o.SetQuote("ray-sol-usdc", core.PriceQuote{
		Venue: core.VenueRaydium, Price: 100_000_000, Confidence: 500_000, PublishTime: time.Now().Unix(),
	})

	cfg := scanner.Config{
		Pairs:        []core.TokenPair{solPair},
		Feeds:        arbFeeds(), // the jupiter feed has no quote scripted
		MinProfitBps: 50,
		TradeSize:    100_000_000,
		ScanInterval: 5 * time.Millisecond,
	}
	s := scanner.New(cfg, o, validator, seedRegistry(), testBreaker(),
		store, testPool(t), nil, permissiveParams(), testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, core.PerformanceMetrics{}, s.Metrics(), "one venue alone yields no routes")
}

func TestScanner_StaleQuotesFindNothing(t *testing.T) {
	store := risk.NewMemoryStore()
	validator := oracle.Validator{MaxStaleness: time.Minute, MaxConfidence: 1_000_000}

	o := mock.NewOracle()
	old := time.Now().Add(-10 * time.Minute).Unix()
	o.SetQuote("ray-sol-usdc", core.PriceQuote{
		Venue: core.VenueRaydium, Price: 100_000_000, Confidence: 500_000, PublishTime: old,
	})
	o.SetQuote("jup-sol-usdc", core.PriceQuote{
		Venue: core.VenueJupiter, Price: 110_000_000, Confidence: 500_000, PublishTime: old,
	})

	cfg := scanner.Config{
		Pairs:        []core.TokenPair{solPair},
		Feeds:        arbFeeds(),
		MinProfitBps: 50,
		TradeSize:    100_000_000,
		ScanInterval: 5 * time.Millisecond,
	}
	s := scanner.New(cfg, o, validator, seedRegistry(), testBreaker(),
		store, testPool(t), nil, permissiveParams(), testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, core.PerformanceMetrics{}, s.Metrics())
}

func TestScanner_TrippedBreakerHaltsTrading(t *testing.T) {
	store := risk.NewMemoryStore()
	validator := oracle.Validator{MaxStaleness: time.Minute, MaxConfidence: 1_000_000}

	breaker := testBreaker()
	breaker.Open()

	cfg := scanner.Config{
		Pairs:        []core.TokenPair{solPair},
		Feeds:        arbFeeds(),
		MinProfitBps: 50,
		TradeSize:    100_000_000,
		ScanInterval: 5 * time.Millisecond,
	}
	s := scanner.New(cfg, seedOracle(), validator, seedRegistry(), breaker,
		store, testPool(t), nil, permissiveParams(), testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	assert.Equal(t, core.PerformanceMetrics{}, s.Metrics(), "an open breaker stops all execution")
}

func TestScanner_RebalancesLiquidity(t *testing.T) {
	store := risk.NewMemoryStore()
	validator := oracle.Validator{MaxStaleness: time.Minute, MaxConfidence: 1_000_000}
	registry := seedRegistry()

	cfg := scanner.Config{
		Pairs:            []core.TokenPair{solPair},
		Feeds:            nil, // no quotes, rebalance only
		MinProfitBps:     50,
		TradeSize:        100_000_000,
		ScanInterval:     10 * time.Millisecond,
		RebalanceEnabled: true,
		RebalanceTargets: []core.LiquidityRatio{
			{Venue: core.VenueRaydium, Pool: "SOL/USDC", TargetRatio: 50},
			{Venue: core.VenueJupiter, Pool: "SOL/USDC", TargetRatio: 50},
		},
		MinMoveAmount: 1_000_000,
	}
	s := scanner.New(cfg, mock.NewOracle(), validator, registry, testBreaker(),
		store, testPool(t), nil, permissiveParams(), testLogger(t))

	quoteReserve := func(kind core.VenueKind) uint64 {
		v, err := registry.Get(kind)
		require.NoError(t, err)
		pool, err := v.Pool(context.Background(), solPair)
		require.NoError(t, err)
		return pool.ReserveB
	}

	// 100m vs 110m USDC against 50/50 targets: raydium gains, jupiter sheds.
	runScanner(t, s, func() bool {
		return quoteReserve(core.VenueRaydium) > 100_000_000_000_000
	})

	assert.Less(t, quoteReserve(core.VenueJupiter), uint64(110_000_000_000_000))
}

func TestScanner_HighRiskThresholdSuppressesRebalance(t *testing.T) {
	store := risk.NewMemoryStore()
	validator := oracle.Validator{MaxStaleness: time.Minute, MaxConfidence: 1_000_000}
	registry := seedRegistry()

	cfg := scanner.Config{
		Pairs:            []core.TokenPair{solPair},
		Feeds:            nil,
		MinProfitBps:     50,
		TradeSize:        100_000_000,
		ScanInterval:     5 * time.Millisecond,
		RebalanceEnabled: true,
		RebalanceTargets: []core.LiquidityRatio{
			{Venue: core.VenueRaydium, Pool: "SOL/USDC", TargetRatio: 50},
			{Venue: core.VenueJupiter, Pool: "SOL/USDC", TargetRatio: 50},
		},
		MinMoveAmount: 1_000_000,
		// The seeded skew scores well under 9000 bps, so no move fires.
		RiskThresholdBps: 9_000,
	}
	s := scanner.New(cfg, mock.NewOracle(), validator, registry, testBreaker(),
		store, testPool(t), nil, permissiveParams(), testLogger(t))

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	require.NoError(t, s.Run(ctx))

	quoteReserve := func(kind core.VenueKind) uint64 {
		v, err := registry.Get(kind)
		require.NoError(t, err)
		pool, err := v.Pool(context.Background(), solPair)
		require.NoError(t, err)
		return pool.ReserveB
	}
	assert.Equal(t, uint64(100_000_000_000_000), quoteReserve(core.VenueRaydium))
	assert.Equal(t, uint64(110_000_000_000_000), quoteReserve(core.VenueJupiter))
}
