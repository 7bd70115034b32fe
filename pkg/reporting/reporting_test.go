package reporting

import (
	"bytes"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/execution"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/orchestrator"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/risk"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/strategy"
)

func sampleSummary() *orchestrator.RunSummary {
	return &orchestrator.RunSummary{
		RunID:                 "report-run",
		Ticks:                 24,
		FailedTicks:           1,
		InstructionsSucceeded: 5,
		InstructionsFailed:    1,
		FinalState:            strategy.StateHolding,
		FinalNetDelta:         0.000042,
		RiskBreaches: []risk.Assessment{
			{
				Dimension: risk.DimensionAaveLTV,
				Level:     risk.LevelWarning,
				Value:     0.72,
				Message:   "ltv above warning target",
				Timestamp: time.Date(2024, 1, 1, 3, 0, 0, 0, time.UTC),
			},
		},
		Transitions: []strategy.TransitionRecord{
			{
				Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
				From:      strategy.StateIdle,
				To:        strategy.StateEntering,
				Reason:    "capital available",
			},
		},
	}
}

func sampleResults() []orchestrator.TimestepResult {
	return []orchestrator.TimestepResult{
		{
			Sequence:      0,
			Timestamp:     time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
			StrategyState: strategy.StateEntering,
			NetDelta:      0.01,
			ActionTypes:   []strategy.ActionType{strategy.ActionEntryFull},
			Execution:     &execution.ExecutionResult{Succeeded: 2},
		},
		{
			Sequence:      1,
			Timestamp:     time.Date(2024, 1, 1, 1, 0, 0, 0, time.UTC),
			StrategyState: strategy.StateHolding,
			NetDelta:      0.000042,
			Execution:     &execution.ExecutionResult{Failed: 1},
			Errors:        []string{"venue timeout"},
		},
	}
}

func TestConsoleRunSummary(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewConsoleReporterTo(&buf)

	reporter.PrintRunSummary(sampleSummary())
	out := buf.String()

	assert.Contains(t, out, "RUN SUMMARY")
	assert.Contains(t, out, "report-run")
	assert.Contains(t, out, "5 succeeded / 1 failed")
	assert.Contains(t, out, "HOLDING")
	assert.Contains(t, out, "STATE TRANSITIONS")
	assert.Contains(t, out, "capital available")
	assert.Contains(t, out, "RISK BREACHES")
	assert.Contains(t, out, "ltv above warning target")
}

func TestConsoleTimesteps(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewConsoleReporterTo(&buf)

	reporter.PrintTimesteps(sampleResults())
	out := buf.String()

	assert.Contains(t, out, "TIMESTEPS")
	assert.Contains(t, out, "ENTERING")
	assert.Contains(t, out, string(strategy.ActionEntryFull))
	assert.Contains(t, out, "2024-01-01 01:00")
}

func TestExcelRunReport(t *testing.T) {
	path := filepath.Join(t.TempDir(), "reports", "run.xlsx")
	reporter := NewExcelReporter()

	require.NoError(t, reporter.WriteRunReport(path, sampleSummary(), sampleResults()))

	fx, err := excelize.OpenFile(path)
	require.NoError(t, err)
	defer fx.Close()

	assert.ElementsMatch(t,
		[]string{"Run Summary", "Timesteps", "Risk Breaches", "Transitions"},
		fx.GetSheetList())

	runID, err := fx.GetCellValue("Run Summary", "B1")
	require.NoError(t, err)
	assert.Equal(t, "report-run", runID)

	state, err := fx.GetCellValue("Timesteps", "C2")
	require.NoError(t, err)
	assert.Equal(t, "ENTERING", state)

	dimension, err := fx.GetCellValue("Risk Breaches", "B2")
	require.NoError(t, err)
	assert.Equal(t, string(risk.DimensionAaveLTV), dimension)

	to, err := fx.GetCellValue("Transitions", "C2")
	require.NoError(t, err)
	assert.Equal(t, "ENTERING", to)
}
