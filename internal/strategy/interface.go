package strategy

import (
	"fmt"
	"time"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/exposure"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/risk"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// Mode selects a concrete strategy variant. The set is closed; the
// factory fails fast on anything else.
type Mode string

const (
	ModePureLending      Mode = "pure_lending"
	ModeBasisTrade       Mode = "basis_trade"
	ModeLeveragedStaking Mode = "leveraged_staking"
	ModeMarketNeutral    Mode = "market_neutral"
	ModeMLDirectional    Mode = "ml_directional"
)

// ActionType is one of the five standardized rebalancing actions
type ActionType string

const (
	ActionEntryFull    ActionType = "entry_full"
	ActionEntryPartial ActionType = "entry_partial"
	ActionExitFull     ActionType = "exit_full"
	ActionExitPartial  ActionType = "exit_partial"
	ActionSellDust     ActionType = "sell_dust"
)

// Action is one rebalancing decision: the action type plus the position
// deltas it is expected to produce. Delta keys are validated against the
// strategy's subscribed instrument universe at creation.
type Action struct {
	Type           ActionType                    `json:"action_type"`
	ExpectedDeltas map[types.PositionKey]float64 `json:"expected_deltas"`
}

// NewAction builds an action, rejecting any delta key outside the
// subscribed universe
func NewAction(actionType ActionType, deltas map[types.PositionKey]float64, universe map[types.PositionKey]bool) (Action, error) {
	for key := range deltas {
		if !universe[key] {
			return Action{}, perrors.NewValidationError("strategy", "NewAction",
				fmt.Sprintf("delta key %s is outside the strategy universe", key))
		}
	}
	return Action{Type: actionType, ExpectedDeltas: deltas}, nil
}

// DecisionState is the per-tick input every strategy decision reads
type DecisionState struct {
	Timestamp time.Time
	Snapshot  ledger.Snapshot
	Exposure  exposure.Report
	Risk      []risk.Assessment
	Tick      types.TickData

	// Capital is the deployable capital in share class currency
	Capital float64
}

// HasCriticalRisk reports whether any risk dimension is critical this tick
func (s DecisionState) HasCriticalRisk() bool {
	for _, a := range s.Risk {
		if a.IsCritical() {
			return true
		}
	}
	return false
}

// SignalProvider is the consumed contract of the ML signal source; model
// training and inference internals live behind it
type SignalProvider interface {
	// Signal returns a directional signal in [-1, 1] for the tick
	Signal(tick types.TickData) (float64, error)
}

// Strategy is the shared capability set every variant implements
type Strategy interface {
	// Name returns the instance name for logs and reports
	Name() string

	// Mode returns the configured variant mode
	Mode() Mode

	// State returns the current lifecycle state
	State() State

	// Universe returns the subscribed instrument universe
	Universe() []types.PositionKey

	// CalculateTargetPosition returns target weights per position key.
	// Weights are fractions of deployable capital; derivative weights are
	// signed (shorts negative).
	CalculateTargetPosition(state DecisionState) (map[types.PositionKey]float64, error)

	// The five standardized action constructors
	EntryFull(state DecisionState) ([]Action, error)
	EntryPartial(state DecisionState, fraction float64) ([]Action, error)
	ExitFull(state DecisionState) ([]Action, error)
	ExitPartial(state DecisionState, fraction float64) ([]Action, error)
	SellDust(state DecisionState) ([]Action, error)

	// Decide advances the lifecycle state machine for one tick and
	// returns the actions to execute
	Decide(state DecisionState) ([]Action, error)
}

// Config configures a strategy instance
type Config struct {
	Mode               Mode                   `json:"mode"`
	Name               string                 `json:"name"`
	ShareClassCurrency string                 `json:"share_class_currency"`
	SpotVenue          string                 `json:"spot_venue"`
	PerpVenue          string                 `json:"perp_venue"`
	LendingVenue       string                 `json:"lending_venue"`
	StakingVenue       string                 `json:"staking_venue"`
	Asset              string                 `json:"asset"`
	Instrument         string                 `json:"instrument"`
	Leverage           float64                `json:"leverage"`
	RebalanceThreshold float64                `json:"rebalance_threshold"`
	DustThreshold      float64                `json:"dust_threshold"`
	Signal             SignalProvider         `json:"-"`
	OnTransition       func(TransitionRecord) `json:"-"`
}
