// Package strategy interprets user-authored block sequences. A sequence is
// an ordered list of immutable blocks walked by a single forward cursor;
// only Loop and Exit blocks alter control flow. Blocks are validated
// structurally before a run starts, so the interpreter never dispatches a
// block with missing required fields.
package strategy

import (
	"fmt"

	"trade_engine/internal/core"
	apperrors "trade_engine/pkg/errors"
)

// BlockType identifies the kind of a strategy block.
type BlockType uint8

const (
	BlockTrigger BlockType = iota
	BlockCondition
	BlockAction
	BlockLoop
	BlockExit
)

func (t BlockType) String() string {
	switch t {
	case BlockTrigger:
		return "trigger"
	case BlockCondition:
		return "condition"
	case BlockAction:
		return "action"
	case BlockLoop:
		return "loop"
	case BlockExit:
		return "exit"
	default:
		return fmt.Sprintf("block(%d)", uint8(t))
	}
}

// ParseBlockType accepts block type names from configuration files.
func ParseBlockType(s string) (BlockType, error) {
	switch s {
	case "trigger":
		return BlockTrigger, nil
	case "condition":
		return BlockCondition, nil
	case "action":
		return BlockAction, nil
	case "loop":
		return BlockLoop, nil
	case "exit":
		return BlockExit, nil
	default:
		return 0, fmt.Errorf("unknown block type %q", s)
	}
}

// TriggerType selects the comparison a Trigger block performs.
type TriggerType uint8

const (
	TriggerPriceAbove TriggerType = iota
	TriggerPriceBelow
	TriggerPriceApproxEqual
	TriggerVolumeAbove
	TriggerTimeAfter
)

// ParseTriggerType accepts trigger names from configuration files.
func ParseTriggerType(s string) (TriggerType, error) {
	switch s {
	case "price_above":
		return TriggerPriceAbove, nil
	case "price_below":
		return TriggerPriceBelow, nil
	case "price_approx_equal":
		return TriggerPriceApproxEqual, nil
	case "volume_above":
		return TriggerVolumeAbove, nil
	case "time_after":
		return TriggerTimeAfter, nil
	default:
		return 0, fmt.Errorf("unknown trigger type %q", s)
	}
}

// ConditionType selects the check a Condition block performs.
type ConditionType uint8

const (
	ConditionBalanceAtLeast ConditionType = iota
	ConditionMaxPriceImpact
	ConditionCustom
)

// ParseConditionType accepts condition names from configuration files.
// Custom predicate conditions have no config form and are not parsed.
func ParseConditionType(s string) (ConditionType, error) {
	switch s {
	case "balance_at_least":
		return ConditionBalanceAtLeast, nil
	case "max_price_impact":
		return ConditionMaxPriceImpact, nil
	default:
		return 0, fmt.Errorf("unknown condition type %q", s)
	}
}

// ActionType selects the venue operation an Action block performs.
type ActionType uint8

const (
	ActionSwap ActionType = iota
	ActionAddLiquidity
	ActionRemoveLiquidity
)

// ParseActionType accepts action names from configuration files.
func ParseActionType(s string) (ActionType, error) {
	switch s {
	case "swap":
		return ActionSwap, nil
	case "add_liquidity":
		return ActionAddLiquidity, nil
	case "remove_liquidity":
		return ActionRemoveLiquidity, nil
	default:
		return 0, fmt.Errorf("unknown action type %q", s)
	}
}

// ApproxEqualTolerance is the default absolute tolerance, in fixed-point
// price units, for the approximately-equal trigger comparison.
const ApproxEqualTolerance uint64 = 100

// TriggerConfig parameterizes a Trigger block.
type TriggerConfig struct {
	Type      TriggerType
	FeedID    string // oracle feed for price and volume triggers
	Threshold uint64 // fixed-point price, volume, or unused for TimeAfter
	Tolerance uint64 // ApproxEqual only; zero means ApproxEqualTolerance
	After     int64  // unix seconds, TimeAfter only
}

// ConditionConfig parameterizes a Condition block. Predicate is the
// extensible custom check; it sees the run state and nothing else.
type ConditionConfig struct {
	Type         ConditionType
	Token        string // BalanceAtLeast
	MinBalance   uint64 // BalanceAtLeast
	Venue        core.VenueKind // MaxPriceImpact
	Pair         core.TokenPair // MaxPriceImpact
	AmountIn     uint64         // MaxPriceImpact probe size
	MaxImpactBps uint16
	Predicate    func(state *core.ExecutionState) bool
}

// ActionConfig parameterizes an Action block. Swap actions require Amount,
// both tokens and a slippage bound; liquidity actions require Amount and
// the pair.
type ActionConfig struct {
	Type        ActionType
	Venue       core.VenueKind
	Pair        core.TokenPair
	TokenIn     string
	TokenOut    string
	Amount      uint64
	AmountB     uint64 // AddLiquidity second side
	MinLPAmount uint64
	SlippageBps uint16
}

// LoopConfig parameterizes a Loop block. The repeated sub-range is named
// by explicit block references and must both precede the loop block; the
// iteration cap is mandatory so every sequence terminates.
type LoopConfig struct {
	MaxIterations uint64
	StartID       string
	EndID         string
}

// ExitConfig parameterizes an Exit block. Any configured criterion being
// true ends the run; at least one must be set.
type ExitConfig struct {
	MinExecutedBlocks int    // exit once this many action blocks have run
	MaxCumulativeLoss uint64 // exit once run losses exceed this
	Predicate         func(state *core.ExecutionState) bool
}

// Block is one unit of user-authored strategy logic. Exactly the config
// matching Type must be set.
type Block struct {
	ID        string
	Type      BlockType
	Trigger   *TriggerConfig
	Condition *ConditionConfig
	Action    *ActionConfig
	Loop      *LoopConfig
	Exit      *ExitConfig
}

// ValidateBlocks checks a sequence structurally: every block carries the
// config its type requires, action parameters are fully populated, loop
// references resolve to earlier blocks, and block ids are unique. It does
// not evaluate any market data.
func ValidateBlocks(blocks []Block) error {
	index := make(map[string]int, len(blocks))
	for i, b := range blocks {
		if b.ID == "" {
			return fmt.Errorf("%w: block %d has no id", apperrors.ErrInvalidConfiguration, i)
		}
		if _, dup := index[b.ID]; dup {
			return fmt.Errorf("%w: duplicate block id %q", apperrors.ErrInvalidConfiguration, b.ID)
		}
		index[b.ID] = i
	}

	for i, b := range blocks {
		switch b.Type {
		case BlockTrigger:
			if b.Trigger == nil {
				return confErr(b.ID, "trigger config missing")
			}
			switch b.Trigger.Type {
			case TriggerTimeAfter:
				if b.Trigger.After <= 0 {
					return confErr(b.ID, "time trigger requires a timestamp")
				}
			default:
				if b.Trigger.FeedID == "" {
					return confErr(b.ID, "trigger requires a feed id")
				}
			}
		case BlockCondition:
			if b.Condition == nil {
				return confErr(b.ID, "condition config missing")
			}
			switch b.Condition.Type {
			case ConditionBalanceAtLeast:
				if b.Condition.Token == "" {
					return confErr(b.ID, "balance condition requires a token")
				}
			case ConditionMaxPriceImpact:
				if b.Condition.AmountIn == 0 {
					return confErr(b.ID, "impact condition requires a probe amount")
				}
			case ConditionCustom:
				if b.Condition.Predicate == nil {
					return confErr(b.ID, "custom condition requires a predicate")
				}
			}
		case BlockAction:
			if b.Action == nil {
				return confErr(b.ID, "action config missing")
			}
			if b.Action.Amount == 0 {
				return confErr(b.ID, "action requires an amount")
			}
			if b.Action.Type == ActionSwap {
				if b.Action.TokenIn == "" || b.Action.TokenOut == "" {
					return confErr(b.ID, "swap action requires both tokens")
				}
				if b.Action.SlippageBps == 0 {
					return confErr(b.ID, "swap action requires a slippage bound")
				}
			}
		case BlockLoop:
			if b.Loop == nil {
				return confErr(b.ID, "loop config missing")
			}
			if b.Loop.MaxIterations == 0 {
				return confErr(b.ID, "loop requires a maximum iteration count")
			}
			start, ok := index[b.Loop.StartID]
			if !ok {
				return confErr(b.ID, "loop start reference not found")
			}
			end, ok := index[b.Loop.EndID]
			if !ok {
				return confErr(b.ID, "loop end reference not found")
			}
			if start > end || end >= i {
				return confErr(b.ID, "loop range must be earlier blocks in order")
			}
		case BlockExit:
			if b.Exit == nil {
				return confErr(b.ID, "exit config missing")
			}
			if b.Exit.MinExecutedBlocks == 0 && b.Exit.MaxCumulativeLoss == 0 && b.Exit.Predicate == nil {
				return confErr(b.ID, "exit requires at least one criterion")
			}
		default:
			return confErr(b.ID, "unknown block type")
		}
	}
	return nil
}

func confErr(blockID, msg string) error {
	return fmt.Errorf("%w: block %q: %s", apperrors.ErrInvalidConfiguration, blockID, msg)
}
