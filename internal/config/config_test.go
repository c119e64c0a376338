package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"trade_engine/internal/config"
	"trade_engine/internal/core"
)

func TestParseAmount(t *testing.T) {
	tests := []struct {
		input   string
		want    uint64
		wantErr bool
	}{
		{input: "0", want: 0},
		{input: "1", want: 1_000_000},
		{input: "250.0", want: 250_000_000},
		{input: "0.000001", want: 1},
		{input: "1500000", want: 1_500_000_000_000},
		{input: "0.123456", want: 123_456},
		{input: "-1", wantErr: true},
		{input: "0.0000001", wantErr: true}, // 7 decimal places
		{input: "not-a-number", wantErr: true},
		{input: "", wantErr: true},
		{input: "99999999999999999999", wantErr: true}, // exceeds uint64 after scaling
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := config.ParseAmount(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDefaultConfigIsValid(t *testing.T) {
	require.NoError(t, config.DefaultConfig().Validate())
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "engine.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalYAML = `
engine:
  pairs:
    - base: SOL
      quote: USDC
  min_profit_bps: 50
  trade_size: "100.0"
  scan_interval_ms: 500
risk:
  max_trade_size: 1000000000
  daily_loss_limit: 100000000
  max_drawdown: 250000000
  max_slippage_bps: 100
  consecutive_losses: 5
venues:
  raydium:
    pools:
      - base: SOL
        quote: USDC
        reserve_base: "10000"
        reserve_quote: "1500000"
        fee_bps: 25
        lp_supply: "100000"
oracle:
  source: mock
  feeds:
    - id: raydium-sol-usdc
      venue: raydium
      pair:
        base: SOL
        quote: USDC
  max_staleness_seconds: 60
  max_confidence: "1.0"
system:
  log_level: ${TEST_ENGINE_LOG_LEVEL}
`

func TestLoadConfig(t *testing.T) {
	t.Setenv("TEST_ENGINE_LOG_LEVEL", "DEBUG")
	path := writeConfig(t, minimalYAML)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.Equal(t, []core.TokenPair{{Base: "SOL", Quote: "USDC"}}, cfg.Engine.Pairs)
	assert.Equal(t, uint64(50), cfg.Engine.MinProfitBps)
	assert.Equal(t, "DEBUG", cfg.System.LogLevel, "env var expanded at load time")
	require.Len(t, cfg.Oracle.Feeds, 1)
	assert.Equal(t, "raydium-sol-usdc", cfg.Oracle.Feeds[0].ID)
	require.Contains(t, cfg.Venues, "raydium")
	assert.Equal(t, uint16(25), cfg.Venues["raydium"].Pools[0].FeeBps)
}

func TestLoadConfig_MissingFile(t *testing.T) {
	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}

func TestLoadConfig_MalformedYAML(t *testing.T) {
	path := writeConfig(t, "engine: [unclosed")
	_, err := config.LoadConfig(path)
	assert.ErrorContains(t, err, "failed to parse config file")
}

func TestValidate_Rejections(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(c *config.Config)
		wantMsg string
	}{
		{
			name:    "no pairs",
			mutate:  func(c *config.Config) { c.Engine.Pairs = nil },
			wantMsg: "engine.pairs",
		},
		{
			name:    "pair missing quote",
			mutate:  func(c *config.Config) { c.Engine.Pairs = []core.TokenPair{{Base: "SOL"}} },
			wantMsg: "engine.pairs",
		},
		{
			name:    "profit threshold above 100 percent",
			mutate:  func(c *config.Config) { c.Engine.MinProfitBps = 10_001 },
			wantMsg: "engine.min_profit_bps",
		},
		{
			name:    "negative trade size",
			mutate:  func(c *config.Config) { c.Engine.TradeSize = "-5" },
			wantMsg: "engine.trade_size",
		},
		{
			name:    "zero max trade size",
			mutate:  func(c *config.Config) { c.Risk.MaxTradeSize = 0 },
			wantMsg: "risk.max_trade_size",
		},
		{
			name:    "no venues",
			mutate:  func(c *config.Config) { c.Venues = nil },
			wantMsg: "venues",
		},
		{
			name: "unknown venue name",
			mutate: func(c *config.Config) {
				c.Venues["binance"] = c.Venues["raydium"]
			},
			wantMsg: "venues",
		},
		{
			name: "pool fee at 100 percent",
			mutate: func(c *config.Config) {
				v := c.Venues["raydium"]
				v.Pools[0].FeeBps = 10_000
				c.Venues["raydium"] = v
			},
			wantMsg: "fee must be below",
		},
		{
			name: "zero pool reserve",
			mutate: func(c *config.Config) {
				v := c.Venues["raydium"]
				v.Pools[0].ReserveBase = "0"
				c.Venues["raydium"] = v
			},
			wantMsg: "must be positive",
		},
		{
			name:    "unknown oracle source",
			mutate:  func(c *config.Config) { c.Oracle.Source = "carrier-pigeon" },
			wantMsg: "oracle.source",
		},
		{
			name: "rest source without base url",
			mutate: func(c *config.Config) {
				c.Oracle.Source = "rest"
				c.Oracle.BaseURL = ""
			},
			wantMsg: "oracle.base_url",
		},
		{
			name: "websocket source without url",
			mutate: func(c *config.Config) {
				c.Oracle.Source = "websocket"
				c.Oracle.WebsocketURL = ""
			},
			wantMsg: "oracle.websocket_url",
		},
		{
			name: "feed without id",
			mutate: func(c *config.Config) {
				c.Oracle.Feeds[0].ID = ""
			},
			wantMsg: "feed requires an id",
		},
		{
			name: "feed with unknown venue",
			mutate: func(c *config.Config) {
				c.Oracle.Feeds[0].Venue = "binance"
			},
			wantMsg: "oracle.feeds[0]",
		},
		{
			name:    "non-positive staleness",
			mutate:  func(c *config.Config) { c.Oracle.MaxStalenessSeconds = 0 },
			wantMsg: "oracle.max_staleness_seconds",
		},
		{
			name: "liquidity ratios not summing to 100",
			mutate: func(c *config.Config) {
				c.Liquidity.Targets[0].TargetRatio = 50
			},
			wantMsg: "liquidity.targets",
		},
		{
			name:    "liquidity risk threshold above 100 percent",
			mutate:  func(c *config.Config) { c.Liquidity.RiskThresholdBps = 10_001 },
			wantMsg: "liquidity.risk_threshold_bps",
		},
		{
			name: "enabled strategy without blocks",
			mutate: func(c *config.Config) {
				c.Strategy.Enabled = true
				c.Strategy.Blocks = nil
			},
			wantMsg: "strategy.blocks",
		},
		{
			name: "strategy block with unknown type",
			mutate: func(c *config.Config) {
				c.Strategy.Enabled = true
				c.Strategy.Blocks[0].Type = "banana"
			},
			wantMsg: "strategy.blocks[0]",
		},
		{
			name: "strategy trigger with unknown comparison",
			mutate: func(c *config.Config) {
				c.Strategy.Enabled = true
				c.Strategy.Blocks[0].Trigger.Type = "price_sideways"
			},
			wantMsg: "strategy.blocks[0]",
		},
		{
			name: "strategy action with bad amount",
			mutate: func(c *config.Config) {
				c.Strategy.Enabled = true
				c.Strategy.Blocks[1].Action.Amount = "lots"
			},
			wantMsg: "strategy.blocks[1]",
		},
		{
			name: "strategy balance not a number",
			mutate: func(c *config.Config) {
				c.Strategy.Enabled = true
				c.Strategy.Balances["USDC"] = "lots"
			},
			wantMsg: "strategy.balances.USDC",
		},
		{
			name:    "bad log level",
			mutate:  func(c *config.Config) { c.System.LogLevel = "VERBOSE" },
			wantMsg: "system.log_level",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.ErrorContains(t, err, tt.wantMsg)
		})
	}
}

func TestLoadConfig_StrategySection(t *testing.T) {
	t.Setenv("TEST_ENGINE_LOG_LEVEL", "INFO")
	path := writeConfig(t, minimalYAML+`
strategy:
  enabled: true
  run_interval_ms: 1000
  balances:
    USDC: "1000.0"
  blocks:
    - id: dip-trigger
      type: trigger
      trigger:
        type: price_below
        feed: raydium-sol-usdc
        threshold: "150.0"
    - id: buy-sol
      type: action
      action:
        type: swap
        venue: raydium
        pair: { base: SOL, quote: USDC }
        token_in: USDC
        token_out: SOL
        amount: "100.0"
        slippage_bps: 100
`)

	cfg, err := config.LoadConfig(path)
	require.NoError(t, err)

	assert.True(t, cfg.Strategy.Enabled)
	assert.Equal(t, 1000, cfg.Strategy.RunIntervalMs)
	assert.Equal(t, "1000.0", cfg.Strategy.Balances["USDC"])
	require.Len(t, cfg.Strategy.Blocks, 2)
	require.NotNil(t, cfg.Strategy.Blocks[0].Trigger)
	assert.Equal(t, "price_below", cfg.Strategy.Blocks[0].Trigger.Type)
	require.NotNil(t, cfg.Strategy.Blocks[1].Action)
	assert.Equal(t, "raydium", cfg.Strategy.Blocks[1].Action.Venue)
	assert.Equal(t, core.TokenPair{Base: "SOL", Quote: "USDC"}, cfg.Strategy.Blocks[1].Action.Pair)
}

func TestValidate_DisabledStrategySkipsBlockChecks(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Strategy.Enabled = false
	cfg.Strategy.Blocks[0].Type = "banana"
	assert.NoError(t, cfg.Validate())
}

func TestValidate_DisabledLiquiditySkipsRatioCheck(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Liquidity.Enabled = false
	cfg.Liquidity.Targets[0].TargetRatio = 50
	assert.NoError(t, cfg.Validate())
}

func TestConfigString_RedactsSecrets(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Alerts.SlackWebhookURL = config.Secret("https://hooks.slack.com/services/T000/B000/secret")

	out := cfg.String()
	assert.NotContains(t, out, "secret")
	assert.NotContains(t, out, "hooks.slack.com")
}
