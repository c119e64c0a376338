// Package core defines the core types and interfaces for the trade-decision engine
package core

import (
	"fmt"

	"gopkg.in/yaml.v3"
)

// PricePrecision is the fixed-point scale for all monetary and price values.
// A price of 1.0 is stored as 1_000_000.
const PricePrecision uint64 = 1_000_000

// BpsDenominator is the basis-point scale; bps values range [0, 10000].
const BpsDenominator uint64 = 10_000

// VenueKind identifies a supported trading venue.
type VenueKind uint8

const (
	VenueRaydium VenueKind = iota
	VenueJupiter
	VenueSerum
)

func (v VenueKind) String() string {
	switch v {
	case VenueRaydium:
		return "raydium"
	case VenueJupiter:
		return "jupiter"
	case VenueSerum:
		return "serum"
	default:
		return fmt.Sprintf("venue(%d)", uint8(v))
	}
}

// ParseVenueKind parses a venue name as it appears in configuration.
func ParseVenueKind(s string) (VenueKind, error) {
	switch s {
	case "raydium":
		return VenueRaydium, nil
	case "jupiter":
		return VenueJupiter, nil
	case "serum":
		return VenueSerum, nil
	default:
		return 0, fmt.Errorf("unknown venue %q", s)
	}
}

// UnmarshalYAML accepts venue names in configuration files.
func (v *VenueKind) UnmarshalYAML(value *yaml.Node) error {
	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	kind, err := ParseVenueKind(s)
	if err != nil {
		return err
	}
	*v = kind
	return nil
}

// MarshalYAML emits the venue name.
func (v VenueKind) MarshalYAML() (interface{}, error) {
	return v.String(), nil
}

// TokenPair is a base/quote token pair, e.g. SOL/USDC.
type TokenPair struct {
	Base  string `yaml:"base" json:"base"`
	Quote string `yaml:"quote" json:"quote"`
}

func (p TokenPair) String() string {
	return p.Base + "/" + p.Quote
}

// PriceQuote is a raw, timestamped price observation from an oracle feed.
// Quotes are immutable; a quote must pass validation before it may be used.
type PriceQuote struct {
	Venue       VenueKind
	Price       uint64 // fixed-point, PricePrecision scale
	Confidence  uint64 // confidence interval, same scale as Price
	PublishTime int64  // unix seconds
}

// ValidatedPrice is a quote that passed freshness and confidence checks.
type ValidatedPrice struct {
	Venue       VenueKind
	Price       uint64
	Confidence  uint64
	PublishTime int64
}

// RouteKind enumerates the ordered venue pairs the finder considers.
type RouteKind uint8

const (
	RouteRaydiumJupiter RouteKind = iota
	RouteJupiterSerum
	RouteSerumRaydium
)

func (r RouteKind) String() string {
	switch r {
	case RouteRaydiumJupiter:
		return "raydium->jupiter"
	case RouteJupiterSerum:
		return "jupiter->serum"
	case RouteSerumRaydium:
		return "serum->raydium"
	default:
		return fmt.Sprintf("route(%d)", uint8(r))
	}
}

// EntryVenue returns the venue bought on.
func (r RouteKind) EntryVenue() VenueKind {
	switch r {
	case RouteRaydiumJupiter:
		return VenueRaydium
	case RouteJupiterSerum:
		return VenueJupiter
	default:
		return VenueSerum
	}
}

// ExitVenue returns the venue sold on.
func (r RouteKind) ExitVenue() VenueKind {
	switch r {
	case RouteRaydiumJupiter:
		return VenueJupiter
	case RouteJupiterSerum:
		return VenueSerum
	default:
		return VenueRaydium
	}
}

// ArbitrageRoute is a scored cross-venue opportunity. Routes are created by
// the finder, consumed once by an execution step, and never mutated. The
// profitability and deadline invariants are checked both at creation and
// again at execution time, because time elapses between discovery and
// submission.
type ArbitrageRoute struct {
	ID                string
	Kind              RouteKind
	Pair              TokenPair
	EntryVenue        VenueKind
	ExitVenue         VenueKind
	ExpectedProfitBps uint64
	MinProfitBps      uint64
	MaxSlippageBps    uint16
	Deadline          int64 // unix seconds
}

// TradeResult records one executed trade.
type TradeResult struct {
	ID          string
	BlockID     string // set when produced by the strategy interpreter
	Venue       VenueKind
	Pair        TokenPair
	AmountIn    uint64
	AmountOut   uint64
	ProfitLoss  int64 // signed, fixed-point
	SlippageBps uint16
	Timestamp   int64
}

// RiskParameters are the caller-owned trade limits read by the risk gate.
// The gate never writes them.
type RiskParameters struct {
	MaxTradeSize      uint64 `yaml:"max_trade_size"`
	DailyLossLimit    uint64 `yaml:"daily_loss_limit"`
	MaxDrawdown       uint64 `yaml:"max_drawdown"`
	MinProfitBps      uint64 `yaml:"min_profit_bps"`
	MaxSlippageBps    uint16 `yaml:"max_slippage_bps"`
	ConsecutiveLosses int    `yaml:"consecutive_losses"`
}

// PerformanceMetrics is the long-lived trading record for an account. It is
// read by the risk gate and written only by the post-trade update step.
type PerformanceMetrics struct {
	TotalProfitLoss int64  `json:"total_profit_loss"`
	WinCount        uint64 `json:"win_count"`
	LossCount       uint64 `json:"loss_count"`
	LargestProfit   uint64 `json:"largest_profit"`
	LargestLoss     uint64 `json:"largest_loss"`
	TotalVolume     uint64 `json:"total_volume"`
}

// MoveDirection is the direction of a liquidity move.
type MoveDirection uint8

const (
	MoveAdd MoveDirection = iota
	MoveRemove
)

func (d MoveDirection) String() string {
	if d == MoveAdd {
		return "add"
	}
	return "remove"
}

// LiquidityMove is one rebalancing step produced by the rebalancer and
// consumed once by a venue liquidity call.
type LiquidityMove struct {
	Venue     VenueKind
	Pool      string
	Amount    uint64
	Direction MoveDirection
}

// LiquidityRatio is a target share of total liquidity for one venue pool.
type LiquidityRatio struct {
	Venue       VenueKind `yaml:"venue"`
	Pool        string    `yaml:"pool"`
	TargetRatio uint8     `yaml:"target_ratio"` // percent, 0-100
}

// ExecutionState tracks one strategy interpreter run. It is created fresh
// per run, mutated only by the interpreter, and discarded once the caller
// has persisted the recorded trade results.
type ExecutionState struct {
	ExecutedBlockIDs []string
	LoopCounters     map[string]uint64
	LastPrices       map[string]uint64
	TradeResults     []TradeResult
}

// NewExecutionState returns an empty run state.
func NewExecutionState() *ExecutionState {
	return &ExecutionState{
		LoopCounters: make(map[string]uint64),
		LastPrices:   make(map[string]uint64),
	}
}

// CumulativeLoss sums the losing trades of the run.
func (s *ExecutionState) CumulativeLoss() uint64 {
	var loss uint64
	for _, r := range s.TradeResults {
		if r.ProfitLoss < 0 {
			loss += uint64(-r.ProfitLoss)
		}
	}
	return loss
}

// PoolState is a snapshot of a constant-product pool.
type PoolState struct {
	TokenA   string
	TokenB   string
	ReserveA uint64
	ReserveB uint64
	FeeBps   uint16
	LPSupply uint64
}
