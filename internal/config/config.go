// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"trade_engine/internal/core"
	"trade_engine/internal/strategy"
)

// Config represents the complete configuration structure
type Config struct {
	Engine      EngineConfig           `yaml:"engine"`
	Risk        core.RiskParameters    `yaml:"risk"`
	Venues      map[string]VenueConfig `yaml:"venues"`
	Oracle      OracleConfig           `yaml:"oracle"`
	Liquidity   LiquidityConfig        `yaml:"liquidity"`
	Strategy    StrategyConfig         `yaml:"strategy"`
	System      SystemConfig           `yaml:"system"`
	Concurrency ConcurrencyConfig      `yaml:"concurrency"`
	Telemetry   TelemetryConfig        `yaml:"telemetry"`
	Alerts      AlertConfig            `yaml:"alerts"`
}

// EngineConfig contains the scan and execution parameters.
type EngineConfig struct {
	Pairs          []core.TokenPair `yaml:"pairs"`
	MinProfitBps   uint64           `yaml:"min_profit_bps"`
	TradeSize      string           `yaml:"trade_size"` // decimal string, e.g. "250.0"
	ScanIntervalMs int              `yaml:"scan_interval_ms"`
	MaxScansPerSec int              `yaml:"max_scans_per_sec"`
}

// VenueConfig seeds the pools of one simulated venue.
type VenueConfig struct {
	Pools []PoolConfig `yaml:"pools"`
}

// PoolConfig is one constant-product pool seed. Reserve amounts are decimal
// strings converted to fixed-point at load time.
type PoolConfig struct {
	Base         string `yaml:"base"`
	Quote        string `yaml:"quote"`
	ReserveBase  string `yaml:"reserve_base"`
	ReserveQuote string `yaml:"reserve_quote"`
	FeeBps       uint16 `yaml:"fee_bps"`
	LPSupply     string `yaml:"lp_supply"`
}

// OracleConfig contains price feed settings.
type OracleConfig struct {
	Source              string     `yaml:"source" validate:"oneof=rest websocket mock"`
	BaseURL             string     `yaml:"base_url"`
	WebsocketURL        string     `yaml:"websocket_url"`
	Feeds               []FeedSpec `yaml:"feeds"`
	MaxStalenessSeconds int        `yaml:"max_staleness_seconds"`
	MaxConfidence       string     `yaml:"max_confidence"` // decimal string
	TWAPWindowSeconds   int        `yaml:"twap_window_seconds"`
}

// FeedSpec binds one oracle feed to the venue and pair it prices.
type FeedSpec struct {
	ID    string         `yaml:"id"`
	Venue string         `yaml:"venue"`
	Pair  core.TokenPair `yaml:"pair"`
}

// LiquidityConfig contains rebalancer settings. RiskThresholdBps gates
// rebalancing on the composite liquidity risk score; zero rebalances on
// any nonzero risk.
type LiquidityConfig struct {
	Enabled          bool                  `yaml:"enabled"`
	Targets          []core.LiquidityRatio `yaml:"targets"`
	MinMoveAmount    string                `yaml:"min_move_amount"`
	RiskThresholdBps uint64                `yaml:"risk_threshold_bps"`
}

// StrategyConfig configures the block-sequence strategy runner. Balances
// and Volumes seed the account snapshot each run executes against; amounts
// are decimal strings converted to fixed-point at load time.
type StrategyConfig struct {
	Enabled       bool                  `yaml:"enabled"`
	RunIntervalMs int                   `yaml:"run_interval_ms"` // zero runs the sequence once
	Balances      map[string]string     `yaml:"balances"`        // token -> amount
	Volumes       map[string]string     `yaml:"volumes"`         // feed id -> trailing volume
	Blocks        []StrategyBlockConfig `yaml:"blocks"`
}

// StrategyBlockConfig is one block of the configured sequence. Exactly the
// sub-config matching Type must be present.
type StrategyBlockConfig struct {
	ID        string                `yaml:"id"`
	Type      string                `yaml:"type"`
	Trigger   *TriggerBlockConfig   `yaml:"trigger"`
	Condition *ConditionBlockConfig `yaml:"condition"`
	Action    *ActionBlockConfig    `yaml:"action"`
	Loop      *LoopBlockConfig      `yaml:"loop"`
	Exit      *ExitBlockConfig      `yaml:"exit"`
}

// TriggerBlockConfig parameterizes a trigger block.
type TriggerBlockConfig struct {
	Type      string `yaml:"type"`
	Feed      string `yaml:"feed"`
	Threshold string `yaml:"threshold"` // decimal price or volume
	Tolerance string `yaml:"tolerance"` // price_approx_equal only
	AfterUnix int64  `yaml:"after_unix"`
}

// ConditionBlockConfig parameterizes a condition block.
type ConditionBlockConfig struct {
	Type         string         `yaml:"type"`
	Token        string         `yaml:"token"`
	MinBalance   string         `yaml:"min_balance"`
	Venue        string         `yaml:"venue"`
	Pair         core.TokenPair `yaml:"pair"`
	ProbeAmount  string         `yaml:"probe_amount"`
	MaxImpactBps uint16         `yaml:"max_impact_bps"`
}

// ActionBlockConfig parameterizes an action block.
type ActionBlockConfig struct {
	Type        string         `yaml:"type"`
	Venue       string         `yaml:"venue"`
	Pair        core.TokenPair `yaml:"pair"`
	TokenIn     string         `yaml:"token_in"`
	TokenOut    string         `yaml:"token_out"`
	Amount      string         `yaml:"amount"`
	AmountB     string         `yaml:"amount_b"`
	MinLPAmount string         `yaml:"min_lp_amount"`
	SlippageBps uint16         `yaml:"slippage_bps"`
}

// LoopBlockConfig parameterizes a loop block.
type LoopBlockConfig struct {
	MaxIterations uint64 `yaml:"max_iterations"`
	Start         string `yaml:"start"`
	End           string `yaml:"end"`
}

// ExitBlockConfig parameterizes an exit block.
type ExitBlockConfig struct {
	MinExecutedBlocks int    `yaml:"min_executed_blocks"`
	MaxCumulativeLoss string `yaml:"max_cumulative_loss"`
}

// SystemConfig contains system settings
type SystemConfig struct {
	LogLevel      string `yaml:"log_level" validate:"required,oneof=DEBUG INFO WARN ERROR FATAL"`
	MetricsDBPath string `yaml:"metrics_db_path"` // empty selects the in-memory store
}

// ConcurrencyConfig contains worker pool settings
type ConcurrencyConfig struct {
	ScanPoolSize   int `yaml:"scan_pool_size" validate:"min=1,max=100"`
	ScanPoolBuffer int `yaml:"scan_pool_buffer" validate:"min=1,max=10000"`
}

// TelemetryConfig contains telemetry settings
type TelemetryConfig struct {
	MetricsPort   int  `yaml:"metrics_port"`
	EnableMetrics bool `yaml:"enable_metrics"`
}

// AlertConfig contains notification channel settings.
type AlertConfig struct {
	Enabled          bool   `yaml:"enabled"`
	SlackWebhookURL  Secret `yaml:"slack_webhook_url"`
	TelegramBotToken Secret `yaml:"telegram_bot_token"`
	TelegramChatID   string `yaml:"telegram_chat_id"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable expansion
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expandedData := expandEnvVars(string(data))

	var config Config
	if err := yaml.Unmarshal([]byte(expandedData), &config); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

// ParseAmount converts a decimal string to the engine's unsigned 6-decimal
// fixed-point representation. Negative values and values with more than 6
// fractional digits are rejected rather than truncated.
func ParseAmount(s string) (uint64, error) {
	d, err := decimal.NewFromString(s)
	if err != nil {
		return 0, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.IsNegative() {
		return 0, fmt.Errorf("invalid amount %q: must not be negative", s)
	}
	scaled := d.Shift(6)
	if !scaled.IsInteger() {
		return 0, fmt.Errorf("invalid amount %q: more than 6 decimal places", s)
	}
	if !scaled.BigInt().IsUint64() {
		return 0, fmt.Errorf("invalid amount %q: exceeds fixed-point range", s)
	}
	return scaled.BigInt().Uint64(), nil
}

// Validate performs comprehensive validation of the configuration
func (c *Config) Validate() error {
	var errors []string

	if err := c.validateEngineConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateRiskConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateVenues(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateOracleConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateLiquidityConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateStrategyConfig(); err != nil {
		errors = append(errors, err.Error())
	}
	if err := c.validateSystemConfig(); err != nil {
		errors = append(errors, err.Error())
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n%s", strings.Join(errors, "\n"))
	}

	return nil
}

func (c *Config) validateEngineConfig() error {
	if len(c.Engine.Pairs) == 0 {
		return ValidationError{
			Field:   "engine.pairs",
			Message: "at least one token pair must be configured",
		}
	}
	for _, p := range c.Engine.Pairs {
		if p.Base == "" || p.Quote == "" {
			return ValidationError{
				Field:   "engine.pairs",
				Value:   p.String(),
				Message: "pair requires both base and quote tokens",
			}
		}
	}
	if c.Engine.MinProfitBps > 10_000 {
		return ValidationError{
			Field:   "engine.min_profit_bps",
			Value:   c.Engine.MinProfitBps,
			Message: "must not exceed 10000",
		}
	}
	if _, err := ParseAmount(c.Engine.TradeSize); err != nil {
		return ValidationError{
			Field:   "engine.trade_size",
			Value:   c.Engine.TradeSize,
			Message: err.Error(),
		}
	}
	return nil
}

func (c *Config) validateRiskConfig() error {
	if c.Risk.MaxTradeSize == 0 {
		return ValidationError{
			Field:   "risk.max_trade_size",
			Message: "must be positive",
		}
	}
	if c.Risk.MaxSlippageBps > 10_000 {
		return ValidationError{
			Field:   "risk.max_slippage_bps",
			Value:   c.Risk.MaxSlippageBps,
			Message: "must not exceed 10000",
		}
	}
	return nil
}

func (c *Config) validateVenues() error {
	if len(c.Venues) == 0 {
		return ValidationError{
			Field:   "venues",
			Message: "at least one venue must be configured",
		}
	}
	for name, venue := range c.Venues {
		if _, err := core.ParseVenueKind(name); err != nil {
			return ValidationError{
				Field:   "venues",
				Value:   name,
				Message: err.Error(),
			}
		}
		for i, pool := range venue.Pools {
			field := fmt.Sprintf("venues.%s.pools[%d]", name, i)
			if pool.Base == "" || pool.Quote == "" {
				return ValidationError{Field: field, Message: "pool requires both tokens"}
			}
			if pool.FeeBps >= 10_000 {
				return ValidationError{Field: field, Value: pool.FeeBps, Message: "fee must be below 10000 bps"}
			}
			for _, amount := range []string{pool.ReserveBase, pool.ReserveQuote, pool.LPSupply} {
				v, err := ParseAmount(amount)
				if err != nil {
					return ValidationError{Field: field, Value: amount, Message: err.Error()}
				}
				if v == 0 {
					return ValidationError{Field: field, Value: amount, Message: "must be positive"}
				}
			}
		}
	}
	return nil
}

func (c *Config) validateOracleConfig() error {
	validSources := []string{"rest", "websocket", "mock"}
	if !contains(validSources, c.Oracle.Source) {
		return ValidationError{
			Field:   "oracle.source",
			Value:   c.Oracle.Source,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validSources, ", ")),
		}
	}
	if c.Oracle.Source == "rest" && c.Oracle.BaseURL == "" {
		return ValidationError{
			Field:   "oracle.base_url",
			Message: "required for the rest source",
		}
	}
	if c.Oracle.Source == "websocket" && c.Oracle.WebsocketURL == "" {
		return ValidationError{
			Field:   "oracle.websocket_url",
			Message: "required for the websocket source",
		}
	}
	for i, feed := range c.Oracle.Feeds {
		field := fmt.Sprintf("oracle.feeds[%d]", i)
		if feed.ID == "" {
			return ValidationError{Field: field, Message: "feed requires an id"}
		}
		if _, err := core.ParseVenueKind(feed.Venue); err != nil {
			return ValidationError{Field: field, Value: feed.Venue, Message: err.Error()}
		}
		if feed.Pair.Base == "" || feed.Pair.Quote == "" {
			return ValidationError{Field: field, Message: "feed requires both pair tokens"}
		}
	}
	if c.Oracle.MaxStalenessSeconds <= 0 {
		return ValidationError{
			Field:   "oracle.max_staleness_seconds",
			Value:   c.Oracle.MaxStalenessSeconds,
			Message: "must be positive",
		}
	}
	if _, err := ParseAmount(c.Oracle.MaxConfidence); err != nil {
		return ValidationError{
			Field:   "oracle.max_confidence",
			Value:   c.Oracle.MaxConfidence,
			Message: err.Error(),
		}
	}
	return nil
}

func (c *Config) validateLiquidityConfig() error {
	if !c.Liquidity.Enabled {
		return nil
	}
	var sum uint64
	for _, t := range c.Liquidity.Targets {
		sum += uint64(t.TargetRatio)
	}
	if sum != 100 {
		return ValidationError{
			Field:   "liquidity.targets",
			Value:   sum,
			Message: "target ratios must sum to 100",
		}
	}
	if c.Liquidity.RiskThresholdBps > 10_000 {
		return ValidationError{
			Field:   "liquidity.risk_threshold_bps",
			Value:   c.Liquidity.RiskThresholdBps,
			Message: "must not exceed 10000",
		}
	}
	return nil
}

// validateStrategyConfig checks names and amounts. Structural sequence
// rules (unique ids, loop references, required action fields) are enforced
// by the strategy package once the blocks are built.
func (c *Config) validateStrategyConfig() error {
	if !c.Strategy.Enabled {
		return nil
	}
	if c.Strategy.RunIntervalMs < 0 {
		return ValidationError{
			Field:   "strategy.run_interval_ms",
			Value:   c.Strategy.RunIntervalMs,
			Message: "must not be negative",
		}
	}
	if len(c.Strategy.Blocks) == 0 {
		return ValidationError{
			Field:   "strategy.blocks",
			Message: "at least one block must be configured",
		}
	}
	for token, amount := range c.Strategy.Balances {
		if _, err := ParseAmount(amount); err != nil {
			return ValidationError{Field: "strategy.balances." + token, Value: amount, Message: err.Error()}
		}
	}
	for feed, amount := range c.Strategy.Volumes {
		if _, err := ParseAmount(amount); err != nil {
			return ValidationError{Field: "strategy.volumes." + feed, Value: amount, Message: err.Error()}
		}
	}
	for i, b := range c.Strategy.Blocks {
		field := fmt.Sprintf("strategy.blocks[%d]", i)
		if b.ID == "" {
			return ValidationError{Field: field, Message: "block requires an id"}
		}
		kind, err := strategy.ParseBlockType(b.Type)
		if err != nil {
			return ValidationError{Field: field, Value: b.Type, Message: err.Error()}
		}
		if err := validateStrategyBlock(kind, b); err != nil {
			return ValidationError{Field: field, Value: b.ID, Message: err.Error()}
		}
	}
	return nil
}

func validateStrategyBlock(kind strategy.BlockType, b StrategyBlockConfig) error {
	switch kind {
	case strategy.BlockTrigger:
		if b.Trigger == nil {
			return fmt.Errorf("trigger config missing")
		}
		if _, err := strategy.ParseTriggerType(b.Trigger.Type); err != nil {
			return err
		}
		return parseOptionalAmounts(b.Trigger.Threshold, b.Trigger.Tolerance)
	case strategy.BlockCondition:
		if b.Condition == nil {
			return fmt.Errorf("condition config missing")
		}
		if _, err := strategy.ParseConditionType(b.Condition.Type); err != nil {
			return err
		}
		if b.Condition.Venue != "" {
			if _, err := core.ParseVenueKind(b.Condition.Venue); err != nil {
				return err
			}
		}
		if b.Condition.MaxImpactBps > 10_000 {
			return fmt.Errorf("max_impact_bps must not exceed 10000")
		}
		return parseOptionalAmounts(b.Condition.MinBalance, b.Condition.ProbeAmount)
	case strategy.BlockAction:
		if b.Action == nil {
			return fmt.Errorf("action config missing")
		}
		if _, err := strategy.ParseActionType(b.Action.Type); err != nil {
			return err
		}
		if _, err := core.ParseVenueKind(b.Action.Venue); err != nil {
			return err
		}
		if b.Action.SlippageBps > 10_000 {
			return fmt.Errorf("slippage_bps must not exceed 10000")
		}
		if b.Action.Amount == "" {
			return fmt.Errorf("action requires an amount")
		}
		return parseOptionalAmounts(b.Action.Amount, b.Action.AmountB, b.Action.MinLPAmount)
	case strategy.BlockLoop:
		if b.Loop == nil {
			return fmt.Errorf("loop config missing")
		}
		return nil
	case strategy.BlockExit:
		if b.Exit == nil {
			return fmt.Errorf("exit config missing")
		}
		return parseOptionalAmounts(b.Exit.MaxCumulativeLoss)
	}
	return nil
}

// parseOptionalAmounts checks decimal strings, treating empty as unset.
func parseOptionalAmounts(amounts ...string) error {
	for _, a := range amounts {
		if a == "" {
			continue
		}
		if _, err := ParseAmount(a); err != nil {
			return err
		}
	}
	return nil
}

func (c *Config) validateSystemConfig() error {
	validLevels := []string{"DEBUG", "INFO", "WARN", "ERROR", "FATAL"}
	if !contains(validLevels, strings.ToUpper(c.System.LogLevel)) {
		return ValidationError{
			Field:   "system.log_level",
			Value:   c.System.LogLevel,
			Message: fmt.Sprintf("must be one of: %s", strings.Join(validLevels, ", ")),
		}
	}
	return nil
}

// String returns a string representation of the configuration. Alert
// credentials are Secret values and redact themselves when marshaled.
func (c *Config) String() string {
	data, _ := yaml.Marshal(c)
	return string(data)
}

// Helper functions

func expandEnvVars(s string) string {
	return os.Expand(s, os.Getenv)
}

func contains(slice []string, item string) bool {
	for _, s := range slice {
		if s == item {
			return true
		}
	}
	return false
}

// DefaultConfig returns a default configuration for testing
func DefaultConfig() *Config {
	return &Config{
		Engine: EngineConfig{
			Pairs:          []core.TokenPair{{Base: "SOL", Quote: "USDC"}},
			MinProfitBps:   50,
			TradeSize:      "250.0",
			ScanIntervalMs: 500,
			MaxScansPerSec: 10,
		},
		Risk: core.RiskParameters{
			MaxTradeSize:      1_000_000_000, // 1000.0
			DailyLossLimit:    100_000_000,   // 100.0
			MaxDrawdown:       250_000_000,
			MinProfitBps:      50,
			MaxSlippageBps:    100,
			ConsecutiveLosses: 5,
		},
		Venues: map[string]VenueConfig{
			"raydium": {Pools: []PoolConfig{{
				Base: "SOL", Quote: "USDC",
				ReserveBase: "10000", ReserveQuote: "1500000",
				FeeBps: 25, LPSupply: "100000",
			}}},
			"jupiter": {Pools: []PoolConfig{{
				Base: "SOL", Quote: "USDC",
				ReserveBase: "8000", ReserveQuote: "1210000",
				FeeBps: 30, LPSupply: "90000",
			}}},
			"serum": {Pools: []PoolConfig{{
				Base: "SOL", Quote: "USDC",
				ReserveBase: "12000", ReserveQuote: "1795000",
				FeeBps: 22, LPSupply: "110000",
			}}},
		},
		Oracle: OracleConfig{
			Source: "mock",
			Feeds: []FeedSpec{
				{ID: "raydium-sol-usdc", Venue: "raydium", Pair: core.TokenPair{Base: "SOL", Quote: "USDC"}},
				{ID: "jupiter-sol-usdc", Venue: "jupiter", Pair: core.TokenPair{Base: "SOL", Quote: "USDC"}},
				{ID: "serum-sol-usdc", Venue: "serum", Pair: core.TokenPair{Base: "SOL", Quote: "USDC"}},
			},
			MaxStalenessSeconds: 60,
			MaxConfidence:       "1.0",
			TWAPWindowSeconds:   300,
		},
		Liquidity: LiquidityConfig{
			Enabled: true,
			Targets: []core.LiquidityRatio{
				{Venue: core.VenueRaydium, Pool: "SOL/USDC", TargetRatio: 40},
				{Venue: core.VenueJupiter, Pool: "SOL/USDC", TargetRatio: 30},
				{Venue: core.VenueSerum, Pool: "SOL/USDC", TargetRatio: 30},
			},
			MinMoveAmount:    "1.0",
			RiskThresholdBps: 2000,
		},
		Strategy: StrategyConfig{
			Enabled:       false,
			RunIntervalMs: 1000,
			Balances:      map[string]string{"USDC": "1000.0"},
			Blocks: []StrategyBlockConfig{
				{
					ID:   "dip-trigger",
					Type: "trigger",
					Trigger: &TriggerBlockConfig{
						Type:      "price_below",
						Feed:      "raydium-sol-usdc",
						Threshold: "150.0",
					},
				},
				{
					ID:   "buy-sol",
					Type: "action",
					Action: &ActionBlockConfig{
						Type:        "swap",
						Venue:       "raydium",
						Pair:        core.TokenPair{Base: "SOL", Quote: "USDC"},
						TokenIn:     "USDC",
						TokenOut:    "SOL",
						Amount:      "100.0",
						SlippageBps: 100,
					},
				},
				{
					ID:   "done",
					Type: "exit",
					Exit: &ExitBlockConfig{MinExecutedBlocks: 1},
				},
			},
		},
		System: SystemConfig{
			LogLevel: "INFO",
		},
		Concurrency: ConcurrencyConfig{
			ScanPoolSize:   4,
			ScanPoolBuffer: 100,
		},
		Telemetry: TelemetryConfig{
			MetricsPort:   9090,
			EnableMetrics: false,
		},
	}
}
