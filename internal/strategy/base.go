package strategy

import (
	"fmt"
	"math"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// deltaEpsilon filters out negligible rebalancing deltas
const deltaEpsilon = 1e-9

// targetCalculator is the one piece each variant supplies: its target
// weights per position key, as fractions of deployable capital
type targetCalculator interface {
	targetWeights(state DecisionState) (map[types.PositionKey]float64, error)
}

// baseStrategy carries the machinery shared by all variants: the
// subscribed universe, the lifecycle state machine, and the standardized
// action constructors built from target-vs-current deltas.
type baseStrategy struct {
	cfg      Config
	mode     Mode
	calc     targetCalculator
	machine  *stateMachine
	universe map[types.PositionKey]bool
	ordered  []types.PositionKey
	cash     map[types.PositionKey]bool
}

func newBaseStrategy(cfg Config, mode Mode, calc targetCalculator, universe, cashKeys []types.PositionKey) *baseStrategy {
	b := &baseStrategy{
		cfg:      cfg,
		mode:     mode,
		calc:     calc,
		machine:  newStateMachine(cfg.OnTransition),
		universe: make(map[types.PositionKey]bool, len(universe)),
		cash:     make(map[types.PositionKey]bool, len(cashKeys)),
	}
	for _, key := range universe {
		b.universe[key] = true
		b.ordered = append(b.ordered, key)
	}
	for _, key := range cashKeys {
		b.cash[key] = true
	}
	return b
}

func (b *baseStrategy) Name() string {
	if b.cfg.Name != "" {
		return b.cfg.Name
	}
	return string(b.mode)
}

func (b *baseStrategy) Mode() Mode { return b.mode }

func (b *baseStrategy) State() State { return b.machine.State() }

func (b *baseStrategy) Universe() []types.PositionKey {
	out := make([]types.PositionKey, len(b.ordered))
	copy(out, b.ordered)
	return out
}

// TransitionHistory returns the state transitions taken this run
func (b *baseStrategy) TransitionHistory() []TransitionRecord {
	return b.machine.History()
}

func (b *baseStrategy) CalculateTargetPosition(state DecisionState) (map[types.PositionKey]float64, error) {
	return b.calc.targetWeights(state)
}

// EntryFull builds the deltas that move every universe position from its
// current quantity to the full target
func (b *baseStrategy) EntryFull(state DecisionState) ([]Action, error) {
	return b.entryActions(state, ActionEntryFull, 1.0)
}

// EntryPartial scales the entry deltas by the given fraction of the
// remaining distance to target
func (b *baseStrategy) EntryPartial(state DecisionState, fraction float64) ([]Action, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, perrors.NewValidationError("strategy", "EntryPartial",
			fmt.Sprintf("fraction %v outside (0, 1]", fraction))
	}
	return b.entryActions(state, ActionEntryPartial, fraction)
}

// ExitFull flattens every universe position (share class cash excluded,
// cash is the residual)
func (b *baseStrategy) ExitFull(state DecisionState) ([]Action, error) {
	return b.exitActions(state, ActionExitFull, 1.0)
}

// ExitPartial unwinds the given fraction of every open position
func (b *baseStrategy) ExitPartial(state DecisionState, fraction float64) ([]Action, error) {
	if fraction <= 0 || fraction > 1 {
		return nil, perrors.NewValidationError("strategy", "ExitPartial",
			fmt.Sprintf("fraction %v outside (0, 1]", fraction))
	}
	return b.exitActions(state, ActionExitPartial, fraction)
}

// SellDust liquidates residual non-cash balances whose share class value
// is below the configured dust threshold
func (b *baseStrategy) SellDust(state DecisionState) ([]Action, error) {
	if b.cfg.DustThreshold <= 0 {
		return nil, nil
	}

	deltas := make(map[types.PositionKey]float64)
	for _, key := range b.ordered {
		if b.cash[key] || key.Type == types.PositionTypePerp {
			continue
		}
		qty := state.Snapshot.Balance(key)
		if qty <= deltaEpsilon {
			continue
		}
		price, ok := b.unitPrice(key, state.Tick)
		if !ok {
			continue
		}
		value := qty * price
		if value >= b.cfg.DustThreshold {
			continue
		}
		deltas[key] = -qty
		if cashKey, ok := b.cashKeyFor(key.Venue); ok {
			deltas[cashKey] += value
		}
	}

	if len(deltas) == 0 {
		return nil, nil
	}

	action, err := NewAction(ActionSellDust, deltas, b.universe)
	if err != nil {
		return nil, err
	}
	return []Action{action}, nil
}

// Decide advances the lifecycle for one tick. A critical risk assessment
// pre-empts everything and forces the unwind.
func (b *baseStrategy) Decide(state DecisionState) ([]Action, error) {
	now := state.Timestamp

	if state.HasCriticalRisk() {
		switch b.machine.State() {
		case StateEntering, StateHolding, StateRebalancing:
			b.machine.Force("critical risk assessment", now)
			return b.ExitFull(state)
		case StateIdle:
			// never deploy capital into a critical book
			return nil, nil
		}
	}

	switch b.machine.State() {
	case StateIdle:
		if state.Capital <= 0 {
			return nil, nil
		}
		if err := b.machine.Transition(StateEntering, "capital deployment", now); err != nil {
			return nil, err
		}
		return b.EntryFull(state)

	case StateEntering:
		drift, err := b.drift(state)
		if err != nil {
			return nil, err
		}
		if drift <= b.rebalanceThreshold() {
			if err := b.machine.Transition(StateHolding, "entry complete", now); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return b.EntryPartial(state, 1.0)

	case StateHolding:
		drift, err := b.drift(state)
		if err != nil {
			return nil, err
		}
		if drift > b.rebalanceThreshold() {
			reason := fmt.Sprintf("drift %.4f above threshold %.4f", drift, b.rebalanceThreshold())
			if err := b.machine.Transition(StateRebalancing, reason, now); err != nil {
				return nil, err
			}
			return b.EntryPartial(state, 1.0)
		}
		return b.SellDust(state)

	case StateRebalancing:
		drift, err := b.drift(state)
		if err != nil {
			return nil, err
		}
		if drift <= b.rebalanceThreshold() {
			if err := b.machine.Transition(StateHolding, "rebalance complete", now); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return b.EntryPartial(state, 1.0)

	case StateExiting:
		if b.isFlat(state) {
			if err := b.machine.Transition(StateIdle, "unwind complete", now); err != nil {
				return nil, err
			}
			return nil, nil
		}
		return b.ExitFull(state)
	}

	return nil, nil
}

// entryActions computes (target - current) * fraction for every universe key
func (b *baseStrategy) entryActions(state DecisionState, actionType ActionType, fraction float64) ([]Action, error) {
	targets, err := b.targetQuantities(state)
	if err != nil {
		return nil, err
	}

	deltas := make(map[types.PositionKey]float64)
	for _, key := range b.ordered {
		if b.cash[key] {
			continue
		}
		delta := (targets[key] - b.currentQuantity(key, state)) * fraction
		if math.Abs(delta) > deltaEpsilon {
			deltas[key] = delta
		}
	}

	if len(deltas) == 0 {
		return nil, nil
	}

	action, err := NewAction(actionType, deltas, b.universe)
	if err != nil {
		return nil, err
	}
	return []Action{action}, nil
}

func (b *baseStrategy) exitActions(state DecisionState, actionType ActionType, fraction float64) ([]Action, error) {
	deltas := make(map[types.PositionKey]float64)
	for _, key := range b.ordered {
		if b.cash[key] {
			continue
		}
		current := b.currentQuantity(key, state)
		if math.Abs(current) > deltaEpsilon {
			deltas[key] = -current * fraction
		}
	}

	if len(deltas) == 0 {
		return nil, nil
	}

	action, err := NewAction(actionType, deltas, b.universe)
	if err != nil {
		return nil, err
	}
	return []Action{action}, nil
}

// targetQuantities converts target weights to quantities at current
// prices: quantity = capital * weight / unit price
func (b *baseStrategy) targetQuantities(state DecisionState) (map[types.PositionKey]float64, error) {
	weights, err := b.calc.targetWeights(state)
	if err != nil {
		return nil, err
	}

	quantities := make(map[types.PositionKey]float64, len(weights))
	for key, weight := range weights {
		if !b.universe[key] {
			return nil, perrors.NewValidationError("strategy", "targetQuantities",
				fmt.Sprintf("target weight key %s outside universe", key))
		}
		if weight == 0 {
			continue
		}
		price, ok := b.unitPrice(key, state.Tick)
		if !ok || price <= 0 {
			return nil, perrors.NewValidationError("strategy", "targetQuantities",
				fmt.Sprintf("no price for %s this tick", key))
		}
		quantities[key] = state.Capital * weight / price
	}
	return quantities, nil
}

func (b *baseStrategy) currentQuantity(key types.PositionKey, state DecisionState) float64 {
	if key.Type == types.PositionTypePerp {
		pos, ok := state.Snapshot.Derivative(types.DerivativeKey{Venue: key.Venue, Instrument: key.Symbol})
		if !ok {
			return 0
		}
		return pos.Size
	}
	return state.Snapshot.Balance(key)
}

// unitPrice resolves the share class price of one unit of the key's token
func (b *baseStrategy) unitPrice(key types.PositionKey, tick types.TickData) (float64, bool) {
	switch key.Type {
	case types.PositionTypePerp:
		if p, ok := tick.ProtocolData.PerpPrices[key.Symbol]; ok {
			return p, true
		}
		return tick.Price(key.Symbol, key.Venue)
	case types.PositionTypeLST:
		rate, ok := tick.OracleRate(key.Symbol + "/ETH")
		if !ok {
			return 0, false
		}
		ethPrice, ok := tick.Price("ETH", key.Venue)
		if !ok {
			return 0, false
		}
		return rate * ethPrice, true
	case types.PositionTypeAToken, types.PositionTypeDebtToken:
		index, ok := tick.AaveIndex(key.Symbol)
		if !ok {
			return 0, false
		}
		price, ok := b.symbolPrice(key.Symbol, key.Venue, tick)
		if !ok {
			return 0, false
		}
		return index * price, true
	default:
		return b.symbolPrice(key.Symbol, key.Venue, tick)
	}
}

func (b *baseStrategy) symbolPrice(symbol, venue string, tick types.TickData) (float64, bool) {
	if symbol == b.cfg.ShareClassCurrency || isShareClassStable(symbol, b.cfg.ShareClassCurrency) {
		return 1, true
	}
	return tick.Price(symbol, venue)
}

// drift is the share class value of the total deviation from target,
// relative to deployable capital
func (b *baseStrategy) drift(state DecisionState) (float64, error) {
	targets, err := b.targetQuantities(state)
	if err != nil {
		return 0, err
	}

	totalDeviation := 0.0
	for _, key := range b.ordered {
		if b.cash[key] {
			continue
		}
		price, ok := b.unitPrice(key, state.Tick)
		if !ok {
			continue
		}
		totalDeviation += math.Abs(targets[key]-b.currentQuantity(key, state)) * price
	}

	capital := state.Capital
	if capital <= 0 {
		capital = 1
	}
	return totalDeviation / capital, nil
}

func (b *baseStrategy) isFlat(state DecisionState) bool {
	for _, key := range b.ordered {
		if b.cash[key] {
			continue
		}
		if math.Abs(b.currentQuantity(key, state)) > deltaEpsilon {
			return false
		}
	}
	return true
}

func (b *baseStrategy) rebalanceThreshold() float64 {
	if b.cfg.RebalanceThreshold > 0 {
		return b.cfg.RebalanceThreshold
	}
	return 0.02
}

func (b *baseStrategy) cashKeyFor(venue string) (types.PositionKey, bool) {
	for key := range b.cash {
		if key.Venue == venue {
			return key, true
		}
	}
	return types.PositionKey{}, false
}

// isShareClassStable treats the common stable quote aliases as par with
// the share class so USDT/USDC books do not need a synthetic price feed
func isShareClassStable(symbol, shareClass string) bool {
	if shareClass != "USDT" && shareClass != "USDC" && shareClass != "USD" {
		return false
	}
	switch symbol {
	case "USDT", "USDC", "USD":
		return true
	}
	return false
}
