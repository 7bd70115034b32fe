package reporting

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/orchestrator"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/risk"
)

// ConsoleReporter renders run results as terminal tables
type ConsoleReporter struct {
	out io.Writer
}

// NewConsoleReporter creates a reporter writing to stdout
func NewConsoleReporter() *ConsoleReporter {
	return &ConsoleReporter{out: os.Stdout}
}

// NewConsoleReporterTo creates a reporter writing to the given writer
func NewConsoleReporterTo(out io.Writer) *ConsoleReporter {
	return &ConsoleReporter{out: out}
}

// PrintRunSummary renders the headline numbers of a completed run
func (r *ConsoleReporter) PrintRunSummary(summary *orchestrator.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("RUN SUMMARY")
	t.SetStyle(table.StyleRounded)

	t.AppendRows([]table.Row{
		{"🆔 Run ID", summary.RunID},
		{"⏱️ Ticks", fmt.Sprintf("%d (%d failed)", summary.Ticks, summary.FailedTicks)},
		{"📋 Instructions", fmt.Sprintf("%d succeeded / %d failed", summary.InstructionsSucceeded, summary.InstructionsFailed)},
		{"🚨 Risk Breaches", fmt.Sprintf("%d", len(summary.RiskBreaches))},
		{"🔄 Transitions", fmt.Sprintf("%d", len(summary.Transitions))},
		{"🎯 Final State", string(summary.FinalState)},
		{"⚖️ Final Net Delta", fmt.Sprintf("%.6f", summary.FinalNetDelta)},
	})

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 1, WidthMin: 18, WidthMax: 20, Align: text.AlignLeft},
		{Number: 2, WidthMin: 28, WidthMax: 45, Align: text.AlignLeft},
	})

	t.Render()
	fmt.Fprintln(r.out)

	if len(summary.Transitions) > 0 {
		r.printTransitions(summary)
	}
	if len(summary.RiskBreaches) > 0 {
		r.printRiskBreaches(summary.RiskBreaches)
	}
}

func (r *ConsoleReporter) printTransitions(summary *orchestrator.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("STATE TRANSITIONS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "From", "To", "Reason", "Forced"})

	for _, tr := range summary.Transitions {
		forced := ""
		if tr.Forced {
			forced = "⚠️ forced"
		}
		t.AppendRow(table.Row{
			tr.Timestamp.Format(time.RFC3339),
			string(tr.From),
			string(tr.To),
			tr.Reason,
			forced,
		})
	}

	t.Render()
	fmt.Fprintln(r.out)
}

func (r *ConsoleReporter) printRiskBreaches(breaches []risk.Assessment) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("RISK BREACHES")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Time", "Dimension", "Level", "Value", "Message"})

	for _, breach := range breaches {
		t.AppendRow(table.Row{
			breach.Timestamp.Format(time.RFC3339),
			string(breach.Dimension),
			levelBadge(breach.Level),
			fmt.Sprintf("%.4f", breach.Value),
			breach.Message,
		})
	}

	t.Render()
	fmt.Fprintln(r.out)
}

// PrintTimesteps renders the per-tick trail, most recent last
func (r *ConsoleReporter) PrintTimesteps(results []orchestrator.TimestepResult) {
	t := table.NewWriter()
	t.SetOutputMirror(r.out)
	t.SetTitle("TIMESTEPS")
	t.SetStyle(table.StyleRounded)
	t.AppendHeader(table.Row{"Seq", "Time", "State", "Net Delta", "Actions", "Exec OK", "Exec Fail", "Errors"})

	for _, result := range results {
		succeeded, failed := 0, 0
		if result.Execution != nil {
			succeeded = result.Execution.Succeeded
			failed = result.Execution.Failed
		}
		t.AppendRow(table.Row{
			result.Sequence,
			result.Timestamp.Format("2006-01-02 15:04"),
			string(result.StrategyState),
			fmt.Sprintf("%.6f", result.NetDelta),
			actionList(result),
			succeeded,
			failed,
			len(result.Errors),
		})
	}

	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 4, Align: text.AlignRight},
		{Number: 6, Align: text.AlignRight},
		{Number: 7, Align: text.AlignRight},
	})

	t.Render()
	fmt.Fprintln(r.out)
}

func actionList(result orchestrator.TimestepResult) string {
	if len(result.ActionTypes) == 0 {
		return "-"
	}
	parts := make([]string, len(result.ActionTypes))
	for i, action := range result.ActionTypes {
		parts[i] = string(action)
	}
	return strings.Join(parts, ", ")
}

func levelBadge(level risk.Level) string {
	switch level {
	case risk.LevelCritical:
		return "🔴 " + string(level)
	case risk.LevelWarning:
		return "🟡 " + string(level)
	default:
		return string(level)
	}
}
