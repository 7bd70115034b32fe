package strategy

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	perrors "github.com/IggyIkenna/basis-strategy-v1-sub010/internal/errors"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/risk"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

func basisConfig() Config {
	return Config{
		Mode:               ModeBasisTrade,
		ShareClassCurrency: "USDT",
		SpotVenue:          "binance",
		PerpVenue:          "bybit",
		Asset:              "BTC",
		Instrument:         "BTCUSDT",
	}
}

func tickWithPrices(prices map[string]float64) types.TickData {
	return types.TickData{
		Timestamp:  time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
		MarketData: types.MarketData{Prices: prices},
	}
}

func decisionState(snapshot ledger.Snapshot, tick types.TickData, capital float64) DecisionState {
	return DecisionState{
		Timestamp: tick.Timestamp,
		Snapshot:  snapshot,
		Tick:      tick,
		Capital:   capital,
	}
}

func TestFactoryCreatesEveryMode(t *testing.T) {
	signal := stubSignal{value: 0.5}

	cases := []struct {
		mode Mode
		cfg  Config
	}{
		{ModePureLending, Config{Mode: ModePureLending, ShareClassCurrency: "USDT", LendingVenue: "aave"}},
		{ModeBasisTrade, basisConfig()},
		{ModeLeveragedStaking, Config{Mode: ModeLeveragedStaking, ShareClassCurrency: "USDT", StakingVenue: "etherfi", LendingVenue: "aave", Asset: "weETH", Leverage: 3}},
		{ModeMarketNeutral, Config{Mode: ModeMarketNeutral, ShareClassCurrency: "USDT", SpotVenue: "binance", PerpVenue: "bybit", LendingVenue: "aave", Asset: "BTC", Instrument: "BTCUSDT"}},
		{ModeMLDirectional, Config{Mode: ModeMLDirectional, ShareClassCurrency: "USDT", PerpVenue: "bybit", Instrument: "BTCUSDT", Signal: signal}},
	}

	for _, tc := range cases {
		t.Run(string(tc.mode), func(t *testing.T) {
			s, err := NewStrategy(tc.cfg)
			require.NoError(t, err)
			assert.Equal(t, tc.mode, s.Mode())
			assert.Equal(t, StateIdle, s.State())
			assert.NotEmpty(t, s.Universe())
		})
	}
}

func TestFactoryRejectsUnknownMode(t *testing.T) {
	_, err := NewStrategy(Config{Mode: "momentum", ShareClassCurrency: "USDT"})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryConfig))
	assert.Contains(t, err.Error(), "momentum")
}

func TestFactoryRejectsMissingFields(t *testing.T) {
	cfg := basisConfig()
	cfg.PerpVenue = ""
	cfg.Instrument = ""

	_, err := NewStrategy(cfg)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryConfig))
	assert.Contains(t, err.Error(), "perp_venue")
	assert.Contains(t, err.Error(), "instrument")
}

func TestFactoryRequiresShareClassCurrency(t *testing.T) {
	cfg := basisConfig()
	cfg.ShareClassCurrency = ""

	_, err := NewStrategy(cfg)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryConfig))
}

func TestMLDirectionalRequiresSignalProvider(t *testing.T) {
	cfg := Config{Mode: ModeMLDirectional, ShareClassCurrency: "USDT", PerpVenue: "bybit", Instrument: "BTCUSDT"}

	_, err := NewStrategy(cfg)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryConfig))
}

func TestStateMachineLegalLifecycle(t *testing.T) {
	m := newStateMachine(nil)
	now := time.Now()

	require.NoError(t, m.Transition(StateEntering, "capital deployment", now))
	require.NoError(t, m.Transition(StateHolding, "entry complete", now))
	require.NoError(t, m.Transition(StateRebalancing, "drift", now))
	require.NoError(t, m.Transition(StateHolding, "rebalance complete", now))
	require.NoError(t, m.Transition(StateExiting, "wind down", now))
	require.NoError(t, m.Transition(StateIdle, "unwind complete", now))

	history := m.History()
	require.Len(t, history, 6)
	assert.Equal(t, StateIdle, history[0].From)
	assert.Equal(t, StateEntering, history[0].To)
	for _, rec := range history {
		assert.False(t, rec.Forced)
	}
}

func TestStateMachineRejectsIllegalTransition(t *testing.T) {
	m := newStateMachine(nil)

	err := m.Transition(StateHolding, "skip entry", time.Now())
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryValidation))
	assert.Equal(t, StateIdle, m.State())
}

func TestStateMachineForceToExiting(t *testing.T) {
	m := newStateMachine(nil)
	now := time.Now()
	require.NoError(t, m.Transition(StateEntering, "capital deployment", now))
	require.NoError(t, m.Transition(StateHolding, "entry complete", now))

	m.Force("critical risk assessment", now)
	assert.Equal(t, StateExiting, m.State())

	history := m.History()
	require.Len(t, history, 3)
	assert.True(t, history[2].Forced)
	assert.Equal(t, StateExiting, history[2].To)
}

func TestStateMachineForceNoOpFromIdle(t *testing.T) {
	m := newStateMachine(nil)

	m.Force("critical risk assessment", time.Now())
	assert.Equal(t, StateIdle, m.State())
	assert.Empty(t, m.History())
}

func TestNewActionRejectsKeyOutsideUniverse(t *testing.T) {
	inside := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")
	outside := types.NewPositionKey("okx", types.PositionTypeBaseToken, "ETH")
	universe := map[types.PositionKey]bool{inside: true}

	_, err := NewAction(ActionEntryFull, map[types.PositionKey]float64{outside: 1}, universe)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryValidation))

	action, err := NewAction(ActionEntryFull, map[types.PositionKey]float64{inside: 1}, universe)
	require.NoError(t, err)
	assert.Equal(t, ActionEntryFull, action.Type)
}

func TestBasisTradeEntryFullDeltas(t *testing.T) {
	s, err := NewBasisTrade(basisConfig())
	require.NoError(t, err)

	tick := tickWithPrices(map[string]float64{"BTC": 50000, "BTCUSDT": 50000})
	state := decisionState(ledger.Snapshot{}, tick, 10000)

	actions, err := s.EntryFull(state)
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionEntryFull, actions[0].Type)

	spotKey := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")
	perpKey := types.NewPositionKey("bybit", types.PositionTypePerp, "BTCUSDT")
	assert.InDelta(t, 0.2, actions[0].ExpectedDeltas[spotKey], 1e-12)
	assert.InDelta(t, -0.2, actions[0].ExpectedDeltas[perpKey], 1e-12)
}

func TestBasisTradeDecideLifecycle(t *testing.T) {
	s, err := NewBasisTrade(basisConfig())
	require.NoError(t, err)

	tick := tickWithPrices(map[string]float64{"BTC": 50000, "BTCUSDT": 50000})
	spotKey := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")
	perpDerivKey := types.DerivativeKey{Venue: "bybit", Instrument: "BTCUSDT"}

	// IDLE with deployable capital: enter
	actions, err := s.Decide(decisionState(ledger.Snapshot{}, tick, 10000))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionEntryFull, actions[0].Type)
	assert.Equal(t, StateEntering, s.State())

	// Filled to target: settle into HOLDING
	filled := ledger.Snapshot{
		Tokens: map[types.PositionKey]float64{spotKey: 0.2},
		Derivatives: map[types.DerivativeKey]ledger.DerivativePosition{
			perpDerivKey: {Instrument: "BTCUSDT", Size: -0.2, EntryPrice: 50000, Notional: 10000},
		},
	}
	actions, err = s.Decide(decisionState(filled, tick, 10000))
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, StateHolding, s.State())

	// Spot leg drifted away: rebalance back toward target
	drifted := ledger.Snapshot{
		Tokens: map[types.PositionKey]float64{spotKey: 0.1},
		Derivatives: map[types.DerivativeKey]ledger.DerivativePosition{
			perpDerivKey: {Instrument: "BTCUSDT", Size: -0.2, EntryPrice: 50000, Notional: 10000},
		},
	}
	actions, err = s.Decide(decisionState(drifted, tick, 10000))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionEntryPartial, actions[0].Type)
	assert.InDelta(t, 0.1, actions[0].ExpectedDeltas[spotKey], 1e-12)
	assert.Equal(t, StateRebalancing, s.State())

	// Back at target: settle into HOLDING again
	actions, err = s.Decide(decisionState(filled, tick, 10000))
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, StateHolding, s.State())
}

func TestCriticalRiskForcesExit(t *testing.T) {
	s, err := NewBasisTrade(basisConfig())
	require.NoError(t, err)

	tick := tickWithPrices(map[string]float64{"BTC": 50000, "BTCUSDT": 50000})
	spotKey := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")
	perpKey := types.NewPositionKey("bybit", types.PositionTypePerp, "BTCUSDT")
	perpDerivKey := types.DerivativeKey{Venue: "bybit", Instrument: "BTCUSDT"}

	_, err = s.Decide(decisionState(ledger.Snapshot{}, tick, 10000))
	require.NoError(t, err)
	require.Equal(t, StateEntering, s.State())

	holding := ledger.Snapshot{
		Tokens: map[types.PositionKey]float64{spotKey: 0.2},
		Derivatives: map[types.DerivativeKey]ledger.DerivativePosition{
			perpDerivKey: {Instrument: "BTCUSDT", Size: -0.2, EntryPrice: 50000, Notional: 10000},
		},
	}
	state := decisionState(holding, tick, 10000)
	state.Risk = []risk.Assessment{{Dimension: risk.DimensionAaveLTV, Level: risk.LevelCritical}}

	actions, err := s.Decide(state)
	require.NoError(t, err)
	assert.Equal(t, StateExiting, s.State())
	require.Len(t, actions, 1)
	assert.Equal(t, ActionExitFull, actions[0].Type)
	assert.InDelta(t, -0.2, actions[0].ExpectedDeltas[spotKey], 1e-12)
	assert.InDelta(t, 0.2, actions[0].ExpectedDeltas[perpKey], 1e-12)

	history := s.TransitionHistory()
	require.NotEmpty(t, history)
	last := history[len(history)-1]
	assert.True(t, last.Forced)
	assert.Equal(t, StateExiting, last.To)

	// Flat: unwind complete, back to IDLE
	actions, err = s.Decide(decisionState(ledger.Snapshot{}, tick, 10000))
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, StateIdle, s.State())
}

func TestDecideIdleWithoutCapitalStaysIdle(t *testing.T) {
	s, err := NewBasisTrade(basisConfig())
	require.NoError(t, err)

	tick := tickWithPrices(map[string]float64{"BTC": 50000, "BTCUSDT": 50000})
	actions, err := s.Decide(decisionState(ledger.Snapshot{}, tick, 0))
	require.NoError(t, err)
	assert.Empty(t, actions)
	assert.Equal(t, StateIdle, s.State())
}

func TestEntryFullFailsWithoutPrice(t *testing.T) {
	s, err := NewBasisTrade(basisConfig())
	require.NoError(t, err)

	state := decisionState(ledger.Snapshot{}, tickWithPrices(map[string]float64{}), 10000)
	_, err = s.EntryFull(state)
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryValidation))
}

func TestEntryPartialRejectsBadFraction(t *testing.T) {
	s, err := NewBasisTrade(basisConfig())
	require.NoError(t, err)

	tick := tickWithPrices(map[string]float64{"BTC": 50000, "BTCUSDT": 50000})
	state := decisionState(ledger.Snapshot{}, tick, 10000)

	for _, fraction := range []float64{0, -0.5, 1.5} {
		_, err := s.EntryPartial(state, fraction)
		require.Error(t, err, "fraction %v", fraction)
		assert.True(t, perrors.Is(err, perrors.ErrorCategoryValidation))
	}
}

func TestSellDustLiquidatesResiduals(t *testing.T) {
	cfg := basisConfig()
	cfg.DustThreshold = 1.0
	s, err := NewBasisTrade(cfg)
	require.NoError(t, err)

	tick := tickWithPrices(map[string]float64{"BTC": 50000, "BTCUSDT": 50000})
	spotKey := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")
	spotCash := types.NewPositionKey("binance", types.PositionTypeBaseToken, "USDT")

	residual := ledger.Snapshot{Tokens: map[types.PositionKey]float64{spotKey: 0.00001}}
	actions, err := s.SellDust(decisionState(residual, tick, 10000))
	require.NoError(t, err)
	require.Len(t, actions, 1)
	assert.Equal(t, ActionSellDust, actions[0].Type)
	assert.InDelta(t, -0.00001, actions[0].ExpectedDeltas[spotKey], 1e-12)
	assert.InDelta(t, 0.5, actions[0].ExpectedDeltas[spotCash], 1e-9)
}

func TestSellDustIgnoresPositionsAboveThreshold(t *testing.T) {
	cfg := basisConfig()
	cfg.DustThreshold = 1.0
	s, err := NewBasisTrade(cfg)
	require.NoError(t, err)

	tick := tickWithPrices(map[string]float64{"BTC": 50000, "BTCUSDT": 50000})
	spotKey := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")

	snapshot := ledger.Snapshot{Tokens: map[types.PositionKey]float64{spotKey: 0.2}}
	actions, err := s.SellDust(decisionState(snapshot, tick, 10000))
	require.NoError(t, err)
	assert.Empty(t, actions)
}

func TestPureLendingTargetWeights(t *testing.T) {
	s, err := NewPureLending(Config{Mode: ModePureLending, ShareClassCurrency: "USDT", LendingVenue: "aave"})
	require.NoError(t, err)

	weights, err := s.CalculateTargetPosition(DecisionState{})
	require.NoError(t, err)
	supplyKey := types.NewPositionKey("aave", types.PositionTypeAToken, "USDT")
	require.Len(t, weights, 1)
	assert.Equal(t, 1.0, weights[supplyKey])
}

func TestMarketNeutralTargetWeights(t *testing.T) {
	s, err := NewMarketNeutral(Config{
		Mode: ModeMarketNeutral, ShareClassCurrency: "USDT",
		SpotVenue: "binance", PerpVenue: "bybit", LendingVenue: "aave",
		Asset: "BTC", Instrument: "BTCUSDT",
	})
	require.NoError(t, err)

	weights, err := s.CalculateTargetPosition(DecisionState{})
	require.NoError(t, err)

	spotKey := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")
	perpKey := types.NewPositionKey("bybit", types.PositionTypePerp, "BTCUSDT")
	supplyKey := types.NewPositionKey("aave", types.PositionTypeAToken, "USDT")
	assert.Equal(t, 0.5, weights[spotKey])
	assert.Equal(t, -0.5, weights[perpKey])
	assert.Equal(t, 0.5, weights[supplyKey])
}

func TestLeveragedStakingTargetWeights(t *testing.T) {
	s, err := NewLeveragedStaking(Config{
		Mode: ModeLeveragedStaking, ShareClassCurrency: "USDT",
		StakingVenue: "etherfi", LendingVenue: "aave", Asset: "weETH", Leverage: 3,
	})
	require.NoError(t, err)

	weights, err := s.CalculateTargetPosition(DecisionState{})
	require.NoError(t, err)

	lstKey := types.NewPositionKey("etherfi", types.PositionTypeLST, "weETH")
	debtKey := types.NewPositionKey("aave", types.PositionTypeDebtToken, "WETH")
	assert.Equal(t, 3.0, weights[lstKey])
	assert.Equal(t, 2.0, weights[debtKey])
}

func TestLeveragedStakingNoDebtAtUnitLeverage(t *testing.T) {
	s, err := NewLeveragedStaking(Config{
		Mode: ModeLeveragedStaking, ShareClassCurrency: "USDT",
		StakingVenue: "etherfi", LendingVenue: "aave", Asset: "weETH", Leverage: 1,
	})
	require.NoError(t, err)

	weights, err := s.CalculateTargetPosition(DecisionState{})
	require.NoError(t, err)
	require.Len(t, weights, 1)

	lstKey := types.NewPositionKey("etherfi", types.PositionTypeLST, "weETH")
	assert.Equal(t, 1.0, weights[lstKey])
}

type stubSignal struct {
	value float64
	err   error
}

func (s stubSignal) Signal(tick types.TickData) (float64, error) {
	return s.value, s.err
}

func TestMLDirectionalClampsSignal(t *testing.T) {
	perpKey := types.NewPositionKey("bybit", types.PositionTypePerp, "BTCUSDT")

	cases := []struct {
		signal float64
		weight float64
	}{
		{0.5, 0.5},
		{1.5, 1.0},
		{-2.0, -1.0},
	}

	for _, tc := range cases {
		t.Run(fmt.Sprintf("signal_%v", tc.signal), func(t *testing.T) {
			s, err := NewMLDirectional(Config{
				Mode: ModeMLDirectional, ShareClassCurrency: "USDT",
				PerpVenue: "bybit", Instrument: "BTCUSDT",
				Signal: stubSignal{value: tc.signal},
			})
			require.NoError(t, err)

			weights, err := s.CalculateTargetPosition(DecisionState{})
			require.NoError(t, err)
			assert.Equal(t, tc.weight, weights[perpKey])
		})
	}
}

func TestMLDirectionalPropagatesSignalFailure(t *testing.T) {
	s, err := NewMLDirectional(Config{
		Mode: ModeMLDirectional, ShareClassCurrency: "USDT",
		PerpVenue: "bybit", Instrument: "BTCUSDT",
		Signal: stubSignal{err: fmt.Errorf("model unavailable")},
	})
	require.NoError(t, err)

	_, err = s.CalculateTargetPosition(DecisionState{})
	require.Error(t, err)
	assert.True(t, perrors.Is(err, perrors.ErrorCategoryValidation))
}

func TestOnTransitionCallbackFires(t *testing.T) {
	var seen []TransitionRecord
	cfg := basisConfig()
	cfg.OnTransition = func(rec TransitionRecord) { seen = append(seen, rec) }

	s, err := NewBasisTrade(cfg)
	require.NoError(t, err)

	tick := tickWithPrices(map[string]float64{"BTC": 50000, "BTCUSDT": 50000})
	_, err = s.Decide(decisionState(ledger.Snapshot{}, tick, 10000))
	require.NoError(t, err)

	require.Len(t, seen, 1)
	assert.Equal(t, StateIdle, seen[0].From)
	assert.Equal(t, StateEntering, seen[0].To)
}
