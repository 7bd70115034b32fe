package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/datafeed"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/execution"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/exposure"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/logger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/persistence"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/risk"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/strategy"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

func flatFeed() datafeed.Provider {
	return datafeed.NewSimulatedProvider(datafeed.SimulatedConfig{
		Start:        time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		BasePrices:   map[string]float64{"BTC": 50000, "BTCUSDT": 50000},
		FundingRates: map[string]float64{"BTCUSDT": 0.0001},
	})
}

func basisOrchestrator(t *testing.T, writer *persistence.Writer) (*Orchestrator, *ledger.Ledger, *logger.EventLog) {
	t.Helper()

	strat, err := strategy.NewStrategy(strategy.Config{
		Mode:               strategy.ModeBasisTrade,
		ShareClassCurrency: "USDT",
		SpotVenue:          "binance",
		PerpVenue:          "bybit",
		Asset:              "BTC",
		Instrument:         "BTCUSDT",
	})
	require.NoError(t, err)

	fundingKey := types.NewPositionKey(execution.DefaultFundingVenue, types.PositionTypeBaseToken, "USDT")
	led := ledger.NewLedger(ledger.Config{
		Universe:  append(strat.Universe(), fundingKey),
		Venues:    []string{"binance", "bybit"},
		Simulated: true,
	})

	events := logger.NewMemoryEventLog()
	coordinator := execution.NewCoordinator(execution.Config{
		ShareClassCurrency: "USDT",
		CEXVenues:          []string{"binance", "bybit"},
		Simulated:          true,
	}, led, events, nil)
	t.Cleanup(coordinator.Stop)

	o := New(Config{
		RunID:              "test-run",
		InitialCapital:     10000,
		Risk:               risk.DefaultConfig(),
		CEXVenues:          []string{"binance", "bybit"},
		ShareClassCurrency: "USDT",
	}, Deps{
		Ledger:      led,
		Exposure:    exposure.NewCalculator(exposure.Config{ShareClassCurrency: "USDT", TrackedAssets: []string{"BTC", "USDT"}}),
		Strategy:    strat,
		Coordinator: coordinator,
		Feed:        flatFeed(),
		Writer:      writer,
		Events:      events,
	})
	return o, led, events
}

func ticks(n int) []time.Time {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	out := make([]time.Time, n)
	for i := range out {
		out[i] = start.Add(time.Duration(i) * time.Hour)
	}
	return out
}

func TestRunEntersAndSettlesIntoHolding(t *testing.T) {
	o, led, _ := basisOrchestrator(t, nil)

	summary, err := o.Run(context.Background(), ticks(3))
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Ticks)
	assert.Equal(t, 0, summary.FailedTicks)
	// margin transfer plus the spot and perp legs
	assert.Equal(t, 3, summary.InstructionsSucceeded)
	assert.Equal(t, 0, summary.InstructionsFailed)
	assert.Equal(t, strategy.StateHolding, summary.FinalState)
	assert.InDelta(t, 0, summary.FinalNetDelta, 1e-6)

	require.Len(t, summary.Transitions, 2)
	assert.Equal(t, strategy.StateIdle, summary.Transitions[0].From)
	assert.Equal(t, strategy.StateEntering, summary.Transitions[0].To)
	assert.Equal(t, strategy.StateEntering, summary.Transitions[1].From)
	assert.Equal(t, strategy.StateHolding, summary.Transitions[1].To)

	snapshot := led.Snapshot()
	spotKey := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")
	assert.InDelta(t, 0.2, snapshot.Balance(spotKey), 1e-9)

	pos, open := snapshot.Derivative(types.DerivativeKey{Venue: "bybit", Instrument: "BTCUSDT"})
	require.True(t, open)
	assert.InDelta(t, -0.2, pos.Size, 1e-9)

	// the perp venue was funded out of the wallet: 20% of 10000 notional
	perpCash := types.NewPositionKey("bybit", types.PositionTypeBaseToken, "USDT")
	walletCash := types.NewPositionKey(execution.DefaultFundingVenue, types.PositionTypeBaseToken, "USDT")
	assert.InDelta(t, 2000, snapshot.Balance(perpCash), 1e-9)
	assert.InDelta(t, 8000, snapshot.Balance(walletCash), 1e-9)
}

func TestRunPersistsEveryTimestep(t *testing.T) {
	dir := t.TempDir()
	writer, err := persistence.NewWriter(dir, "test-run", nil)
	require.NoError(t, err)

	o, _, _ := basisOrchestrator(t, writer)

	_, err = o.Run(context.Background(), ticks(3))
	require.NoError(t, err)
	writer.Stop()

	for seq := 0; seq < 3; seq++ {
		path := filepath.Join(dir, "test-run", "timesteps", fmt.Sprintf("%d.json", seq))
		data, err := os.ReadFile(path)
		require.NoError(t, err, "missing timestep file %s", path)

		// the persisted record must round-trip, position keys included
		var persisted TimestepResult
		require.NoError(t, json.Unmarshal(data, &persisted), "timestep %d", seq)
		assert.Equal(t, uint64(seq), persisted.Sequence)
		assert.NotEmpty(t, persisted.Snapshot.Tokens)
	}

	final := filepath.Join(dir, "test-run", "timesteps", "2.json")
	data, err := os.ReadFile(final)
	require.NoError(t, err)

	var persisted TimestepResult
	require.NoError(t, json.Unmarshal(data, &persisted))
	spotKey := types.NewPositionKey("binance", types.PositionTypeBaseToken, "BTC")
	assert.InDelta(t, 0.2, persisted.Snapshot.Tokens[spotKey], 1e-9)

	pos, open := persisted.Snapshot.Derivatives[types.DerivativeKey{Venue: "bybit", Instrument: "BTCUSDT"}]
	require.True(t, open)
	assert.InDelta(t, -0.2, pos.Size, 1e-9)
}

func TestCriticalRiskBlocksDeploymentFromIdle(t *testing.T) {
	strat, err := strategy.NewStrategy(strategy.Config{
		Mode:               strategy.ModePureLending,
		ShareClassCurrency: "USDT",
		LendingVenue:       "aave",
	})
	require.NoError(t, err)

	supplyKey := types.NewPositionKey("aave", types.PositionTypeAToken, "USDT")
	debtKey := types.NewPositionKey("aave", types.PositionTypeDebtToken, "USDT")
	fundingKey := types.NewPositionKey(execution.DefaultFundingVenue, types.PositionTypeBaseToken, "USDT")
	universe := append(strat.Universe(), debtKey, fundingKey)

	led := ledger.NewLedger(ledger.Config{Universe: universe, Simulated: true})
	require.NoError(t, led.SetOpeningBalance(supplyKey, 100))
	require.NoError(t, led.SetOpeningBalance(debtKey, 9990))

	events := logger.NewMemoryEventLog()
	coordinator := execution.NewCoordinator(execution.Config{
		ShareClassCurrency: "USDT",
		Simulated:          true,
	}, led, events, nil)
	t.Cleanup(coordinator.Stop)

	feed := datafeed.NewSimulatedProvider(datafeed.SimulatedConfig{
		Start:   time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		AaveAPY: map[string]float64{"USDT": 0},
	})

	o := New(Config{
		RunID:              "risk-run",
		InitialCapital:     10000,
		Risk:               risk.DefaultConfig(),
		ShareClassCurrency: "USDT",
	}, Deps{
		Ledger:      led,
		Exposure:    exposure.NewCalculator(exposure.Config{ShareClassCurrency: "USDT", TrackedAssets: []string{"USDT"}}),
		Strategy:    strat,
		Coordinator: coordinator,
		Feed:        feed,
		Events:      events,
	})

	summary, err := o.Run(context.Background(), ticks(2))
	require.NoError(t, err)

	// a critical book never gets new capital
	assert.Equal(t, strategy.StateIdle, summary.FinalState)
	assert.Equal(t, 0, summary.InstructionsSucceeded)

	require.NotEmpty(t, summary.RiskBreaches)
	assert.Equal(t, risk.DimensionAaveLTV, summary.RiskBreaches[0].Dimension)
	assert.Equal(t, risk.LevelCritical, summary.RiskBreaches[0].Level)

	breaches := events.EventsOfType(logger.EventTypeRiskBreach)
	require.NotEmpty(t, breaches)
	assert.Equal(t, logger.SeverityCritical, breaches[0].Severity)
}

type countingObserver struct {
	sequences []uint64
}

func (c *countingObserver) ObserveTick(result TimestepResult) {
	c.sequences = append(c.sequences, result.Sequence)
}

func TestObserversSeeEveryTick(t *testing.T) {
	o, _, _ := basisOrchestrator(t, nil)

	observer := &countingObserver{}
	o.AddObserver(observer)

	_, err := o.Run(context.Background(), ticks(3))
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2}, observer.sequences)
}

func TestRunStopsOnCancelledContext(t *testing.T) {
	o, _, _ := basisOrchestrator(t, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	summary, err := o.Run(ctx, ticks(3))
	require.Error(t, err)
	assert.Equal(t, 0, summary.Ticks)
}
