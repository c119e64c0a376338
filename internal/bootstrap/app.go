// Package bootstrap assembles the engine from configuration and owns the
// application lifecycle.
package bootstrap

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"trade_engine/internal/alert"
	"trade_engine/internal/config"
	"trade_engine/internal/core"
	"trade_engine/internal/infrastructure/health"
	"trade_engine/internal/infrastructure/metrics"
	"trade_engine/internal/mock"
	"trade_engine/internal/oracle"
	"trade_engine/internal/risk"
	"trade_engine/internal/scanner"
	"trade_engine/internal/strategy"
	"trade_engine/internal/venue"
	"trade_engine/pkg/concurrency"
	"trade_engine/pkg/logging"
	"trade_engine/pkg/telemetry"
)

const (
	oracleHTTPTimeout = 10 * time.Second
	breakerCooldown   = 10 * time.Minute
)

// App holds the assembled engine and its shared infrastructure.
type App struct {
	Cfg      *config.Config
	Logger   core.ILogger
	Registry *venue.Registry
	Scanner  *scanner.Scanner
	Strategy *strategy.Runner // nil unless a strategy is configured

	zap           *logging.ZapLogger
	tel           *telemetry.Telemetry
	feed          *oracle.WSFeed
	sqlite        *risk.SQLiteStore
	pool          *concurrency.WorkerPool
	metricsServer *metrics.Server
}

// NewApp builds every component from the config file.
func NewApp(configPath string) (*App, error) {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("config: %w", err)
	}

	zapLogger, err := logging.NewZapLogger(cfg.System.LogLevel)
	if err != nil {
		return nil, fmt.Errorf("logger: %w", err)
	}
	logging.SetGlobalLogger(zapLogger)

	tel, err := telemetry.Setup("trade_engine")
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}

	app := &App{
		Cfg:    cfg,
		Logger: zapLogger,
		zap:    zapLogger,
		tel:    tel,
	}

	if err := app.buildVenues(); err != nil {
		return nil, err
	}

	feedOracle, err := app.buildOracle()
	if err != nil {
		return nil, err
	}

	store, err := app.buildStore()
	if err != nil {
		return nil, err
	}

	breaker := risk.NewCircuitBreaker(risk.CircuitConfig{
		MaxConsecutiveLosses: cfg.Risk.ConsecutiveLosses,
		MaxDrawdownAmount:    cfg.Risk.MaxDrawdown,
		CooldownPeriod:       breakerCooldown,
	})

	app.pool = concurrency.NewWorkerPool(concurrency.PoolConfig{
		Name:        "scan",
		MaxWorkers:  cfg.Concurrency.ScanPoolSize,
		MaxCapacity: cfg.Concurrency.ScanPoolBuffer,
		NonBlocking: true,
	}, zapLogger)

	alerts := app.buildAlerts()

	hm := health.NewHealthManager(zapLogger)
	hm.Register("circuit_breaker", func() error {
		if breaker.IsTripped() {
			return fmt.Errorf("breaker open")
		}
		return nil
	})

	if cfg.Telemetry.EnableMetrics {
		app.metricsServer = metrics.NewServer(cfg.Telemetry.MetricsPort, hm, zapLogger)
	}

	scanCfg, err := app.buildScannerConfig()
	if err != nil {
		return nil, err
	}

	maxConfidence, err := config.ParseAmount(cfg.Oracle.MaxConfidence)
	if err != nil {
		return nil, err
	}
	validator := oracle.Validator{
		MaxStaleness:  time.Duration(cfg.Oracle.MaxStalenessSeconds) * time.Second,
		MaxConfidence: maxConfidence,
	}

	app.Scanner = scanner.New(
		scanCfg, feedOracle, validator, app.Registry, breaker,
		store, app.pool, alerts, cfg.Risk, zapLogger,
	)

	if err := app.buildStrategy(feedOracle, validator); err != nil {
		return nil, err
	}

	return app, nil
}

func (a *App) buildVenues() error {
	a.Registry = venue.NewRegistry()
	for name, vc := range a.Cfg.Venues {
		kind, err := core.ParseVenueKind(name)
		if err != nil {
			return err
		}
		v := venue.NewAMMVenue(kind, a.Logger)
		for _, pc := range vc.Pools {
			reserveBase, err := config.ParseAmount(pc.ReserveBase)
			if err != nil {
				return err
			}
			reserveQuote, err := config.ParseAmount(pc.ReserveQuote)
			if err != nil {
				return err
			}
			lpSupply, err := config.ParseAmount(pc.LPSupply)
			if err != nil {
				return err
			}
			v.SeedPool(core.PoolState{
				TokenA:   pc.Base,
				TokenB:   pc.Quote,
				ReserveA: reserveBase,
				ReserveB: reserveQuote,
				FeeBps:   pc.FeeBps,
				LPSupply: lpSupply,
			})
		}
		a.Registry.Register(v)
	}
	return nil
}

func (a *App) buildOracle() (core.Oracle, error) {
	switch a.Cfg.Oracle.Source {
	case "rest":
		return oracle.NewRESTOracle(a.Cfg.Oracle.BaseURL, oracleHTTPTimeout, a.Logger), nil
	case "websocket":
		a.feed = oracle.NewWSFeed(a.Cfg.Oracle.WebsocketURL, a.Logger)
		return a.feed, nil
	case "mock":
		return mock.NewOracle(), nil
	default:
		return nil, fmt.Errorf("unknown oracle source %q", a.Cfg.Oracle.Source)
	}
}

func (a *App) buildStore() (core.MetricsStore, error) {
	if a.Cfg.System.MetricsDBPath == "" {
		return risk.NewMemoryStore(), nil
	}
	store, err := risk.NewSQLiteStore(a.Cfg.System.MetricsDBPath)
	if err != nil {
		return nil, fmt.Errorf("metrics store: %w", err)
	}
	a.sqlite = store
	return store, nil
}

func (a *App) buildAlerts() *alert.AlertManager {
	if !a.Cfg.Alerts.Enabled {
		return nil
	}
	am := alert.NewAlertManager(a.Logger)
	if url := string(a.Cfg.Alerts.SlackWebhookURL); url != "" {
		am.AddChannel(alert.NewSlackChannel(url))
	}
	if token := string(a.Cfg.Alerts.TelegramBotToken); token != "" {
		am.AddChannel(alert.NewTelegramChannel(token, a.Cfg.Alerts.TelegramChatID))
	}
	return am
}

func (a *App) buildScannerConfig() (scanner.Config, error) {
	tradeSize, err := config.ParseAmount(a.Cfg.Engine.TradeSize)
	if err != nil {
		return scanner.Config{}, err
	}

	feeds := make([]scanner.Feed, 0, len(a.Cfg.Oracle.Feeds))
	for _, f := range a.Cfg.Oracle.Feeds {
		kind, err := core.ParseVenueKind(f.Venue)
		if err != nil {
			return scanner.Config{}, err
		}
		feeds = append(feeds, scanner.Feed{ID: f.ID, Venue: kind, Pair: f.Pair})
	}

	cfg := scanner.Config{
		Pairs:          a.Cfg.Engine.Pairs,
		Feeds:          feeds,
		MinProfitBps:   a.Cfg.Engine.MinProfitBps,
		TradeSize:      tradeSize,
		ScanInterval:   time.Duration(a.Cfg.Engine.ScanIntervalMs) * time.Millisecond,
		MaxScansPerSec: a.Cfg.Engine.MaxScansPerSec,
	}

	if a.Cfg.Liquidity.Enabled {
		minMove, err := config.ParseAmount(a.Cfg.Liquidity.MinMoveAmount)
		if err != nil {
			return scanner.Config{}, err
		}
		cfg.RebalanceEnabled = true
		cfg.RebalanceTargets = a.Cfg.Liquidity.Targets
		cfg.MinMoveAmount = minMove
		cfg.RiskThresholdBps = a.Cfg.Liquidity.RiskThresholdBps
	}
	return cfg, nil
}

func (a *App) buildStrategy(o core.Oracle, validator oracle.Validator) error {
	if !a.Cfg.Strategy.Enabled {
		return nil
	}

	blocks, err := buildStrategyBlocks(a.Cfg.Strategy.Blocks)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}
	if err := strategy.ValidateBlocks(blocks); err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	snap, err := buildStrategySnapshot(a.Cfg.Strategy)
	if err != nil {
		return fmt.Errorf("strategy: %w", err)
	}

	interpreter := strategy.NewInterpreter(o, a.Registry, validator, a.Logger)
	interval := time.Duration(a.Cfg.Strategy.RunIntervalMs) * time.Millisecond
	a.Strategy = strategy.NewRunner(interpreter, blocks, snap, a.Cfg.Risk, interval, a.Logger)
	return nil
}

func buildStrategySnapshot(cfg config.StrategyConfig) (strategy.Snapshot, error) {
	snap := strategy.Snapshot{
		Balances: make(map[string]uint64, len(cfg.Balances)),
		Volumes:  make(map[string]uint64, len(cfg.Volumes)),
	}
	for token, amount := range cfg.Balances {
		v, err := config.ParseAmount(amount)
		if err != nil {
			return strategy.Snapshot{}, err
		}
		snap.Balances[token] = v
	}
	for feed, amount := range cfg.Volumes {
		v, err := config.ParseAmount(amount)
		if err != nil {
			return strategy.Snapshot{}, err
		}
		snap.Volumes[feed] = v
	}
	return snap, nil
}

// buildStrategyBlocks converts the data-only config blocks into the
// strategy package's block sequence.
func buildStrategyBlocks(cfgs []config.StrategyBlockConfig) ([]strategy.Block, error) {
	blocks := make([]strategy.Block, 0, len(cfgs))
	for _, bc := range cfgs {
		kind, err := strategy.ParseBlockType(bc.Type)
		if err != nil {
			return nil, fmt.Errorf("block %q: %w", bc.ID, err)
		}
		block := strategy.Block{ID: bc.ID, Type: kind}

		switch kind {
		case strategy.BlockTrigger:
			trigger, err := buildTrigger(bc.Trigger)
			if err != nil {
				return nil, fmt.Errorf("block %q: %w", bc.ID, err)
			}
			block.Trigger = trigger
		case strategy.BlockCondition:
			condition, err := buildCondition(bc.Condition)
			if err != nil {
				return nil, fmt.Errorf("block %q: %w", bc.ID, err)
			}
			block.Condition = condition
		case strategy.BlockAction:
			action, err := buildAction(bc.Action)
			if err != nil {
				return nil, fmt.Errorf("block %q: %w", bc.ID, err)
			}
			block.Action = action
		case strategy.BlockLoop:
			if bc.Loop == nil {
				return nil, fmt.Errorf("block %q: loop config missing", bc.ID)
			}
			block.Loop = &strategy.LoopConfig{
				MaxIterations: bc.Loop.MaxIterations,
				StartID:       bc.Loop.Start,
				EndID:         bc.Loop.End,
			}
		case strategy.BlockExit:
			exit, err := buildExit(bc.Exit)
			if err != nil {
				return nil, fmt.Errorf("block %q: %w", bc.ID, err)
			}
			block.Exit = exit
		}
		blocks = append(blocks, block)
	}
	return blocks, nil
}

func buildTrigger(cfg *config.TriggerBlockConfig) (*strategy.TriggerConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("trigger config missing")
	}
	kind, err := strategy.ParseTriggerType(cfg.Type)
	if err != nil {
		return nil, err
	}
	threshold, err := parseOptional(cfg.Threshold)
	if err != nil {
		return nil, err
	}
	tolerance, err := parseOptional(cfg.Tolerance)
	if err != nil {
		return nil, err
	}
	return &strategy.TriggerConfig{
		Type:      kind,
		FeedID:    cfg.Feed,
		Threshold: threshold,
		Tolerance: tolerance,
		After:     cfg.AfterUnix,
	}, nil
}

func buildCondition(cfg *config.ConditionBlockConfig) (*strategy.ConditionConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("condition config missing")
	}
	kind, err := strategy.ParseConditionType(cfg.Type)
	if err != nil {
		return nil, err
	}
	minBalance, err := parseOptional(cfg.MinBalance)
	if err != nil {
		return nil, err
	}
	probe, err := parseOptional(cfg.ProbeAmount)
	if err != nil {
		return nil, err
	}
	out := &strategy.ConditionConfig{
		Type:         kind,
		Token:        cfg.Token,
		MinBalance:   minBalance,
		Pair:         cfg.Pair,
		AmountIn:     probe,
		MaxImpactBps: cfg.MaxImpactBps,
	}
	if cfg.Venue != "" {
		venueKind, err := core.ParseVenueKind(cfg.Venue)
		if err != nil {
			return nil, err
		}
		out.Venue = venueKind
	}
	return out, nil
}

func buildAction(cfg *config.ActionBlockConfig) (*strategy.ActionConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("action config missing")
	}
	kind, err := strategy.ParseActionType(cfg.Type)
	if err != nil {
		return nil, err
	}
	venueKind, err := core.ParseVenueKind(cfg.Venue)
	if err != nil {
		return nil, err
	}
	amount, err := config.ParseAmount(cfg.Amount)
	if err != nil {
		return nil, err
	}
	amountB, err := parseOptional(cfg.AmountB)
	if err != nil {
		return nil, err
	}
	minLP, err := parseOptional(cfg.MinLPAmount)
	if err != nil {
		return nil, err
	}
	return &strategy.ActionConfig{
		Type:        kind,
		Venue:       venueKind,
		Pair:        cfg.Pair,
		TokenIn:     cfg.TokenIn,
		TokenOut:    cfg.TokenOut,
		Amount:      amount,
		AmountB:     amountB,
		MinLPAmount: minLP,
		SlippageBps: cfg.SlippageBps,
	}, nil
}

func buildExit(cfg *config.ExitBlockConfig) (*strategy.ExitConfig, error) {
	if cfg == nil {
		return nil, fmt.Errorf("exit config missing")
	}
	maxLoss, err := parseOptional(cfg.MaxCumulativeLoss)
	if err != nil {
		return nil, err
	}
	return &strategy.ExitConfig{
		MinExecutedBlocks: cfg.MinExecutedBlocks,
		MaxCumulativeLoss: maxLoss,
	}, nil
}

// parseOptional converts a decimal string, treating empty as zero.
func parseOptional(s string) (uint64, error) {
	if s == "" {
		return 0, nil
	}
	return config.ParseAmount(s)
}

// Runner is a component with a blocking run loop.
type Runner interface {
	Run(ctx context.Context) error
}

// Run starts the background infrastructure and blocks until a runner
// fails or a termination signal arrives.
func (a *App) Run(runners ...Runner) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if a.feed != nil {
		a.feed.Start()
	}
	if a.metricsServer != nil {
		a.metricsServer.Start()
	}

	g, ctx := errgroup.WithContext(ctx)
	a.Logger.Info("starting trade engine")

	for _, runner := range runners {
		r := runner
		g.Go(func() error {
			return r.Run(ctx)
		})
	}

	err := g.Wait()
	a.shutdown()
	if err != nil && err != context.Canceled {
		a.Logger.Error("engine stopped with error", "error", err)
		return err
	}
	a.Logger.Info("engine shut down gracefully")
	return nil
}

func (a *App) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if a.pool != nil {
		a.pool.Stop()
	}
	if a.feed != nil {
		a.feed.Stop()
	}
	if a.metricsServer != nil {
		_ = a.metricsServer.Stop(shutdownCtx)
	}
	if a.sqlite != nil {
		_ = a.sqlite.Close()
	}
	if a.tel != nil {
		_ = a.tel.Shutdown(shutdownCtx)
	}
	_ = a.zap.Sync()
}
