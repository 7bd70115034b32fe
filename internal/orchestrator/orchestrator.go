package orchestrator

import (
	"context"
	"fmt"
	"time"

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

// TimestepResult is the full record of one orchestration tick, handed to
// the persistence layer in submission order
type TimestepResult struct {
	Sequence      uint64                     `json:"sequence"`
	Timestamp     time.Time                  `json:"timestamp"`
	NetDelta      float64                    `json:"net_delta"`
	Exposure      exposure.Report            `json:"exposure"`
	Risk          []risk.Assessment          `json:"risk"`
	Stress        risk.StressResult          `json:"stress"`
	StrategyState strategy.State             `json:"strategy_state"`
	ActionTypes   []strategy.ActionType      `json:"action_types,omitempty"`
	Execution     *execution.ExecutionResult `json:"execution,omitempty"`
	Snapshot      ledger.Snapshot            `json:"snapshot"`
	Errors        []string                   `json:"errors,omitempty"`
}

// RunSummary is what a completed run reports back to the operator
type RunSummary struct {
	RunID                 string                      `json:"run_id"`
	Ticks                 int                         `json:"ticks"`
	FailedTicks           int                         `json:"failed_ticks"`
	InstructionsSucceeded int                         `json:"instructions_succeeded"`
	InstructionsFailed    int                         `json:"instructions_failed"`
	RiskBreaches          []risk.Assessment           `json:"risk_breaches,omitempty"`
	Transitions           []strategy.TransitionRecord `json:"transitions,omitempty"`
	FinalState            strategy.State              `json:"final_state"`
	FinalNetDelta         float64                     `json:"final_net_delta"`
}

// Observer is notified after every completed tick. Metrics and reporting
// hang off this without the loop knowing about them.
type Observer interface {
	ObserveTick(result TimestepResult)
}

// Config configures one orchestration run
type Config struct {
	RunID          string      `json:"run_id"`
	InitialCapital float64     `json:"initial_capital"`
	Risk           risk.Config `json:"risk"`

	// CEXVenues lists the venues included in margin assessments
	CEXVenues []string `json:"cex_venues"`

	// ShareClassCurrency denominates capital and venue cash
	ShareClassCurrency string `json:"share_class_currency"`

	// FundingVenue is the wallet venue initial capital is booked into.
	// Margin transfers draw from it during execution.
	FundingVenue string `json:"funding_venue"`
}

// Deps wires the loop's collaborators. Ledger, Exposure, Strategy,
// Coordinator and Feed are required; Writer, Events and Log are optional.
type Deps struct {
	Ledger      *ledger.Ledger
	Exposure    *exposure.Calculator
	Strategy    strategy.Strategy
	Coordinator *execution.Coordinator
	Feed        datafeed.Provider
	Writer      *persistence.Writer
	Events      *logger.EventLog
	Log         *logger.Logger
}

// Orchestrator drives the per-tick pipeline: data, position, exposure,
// risk, decision, execution. One tick completes in full before the next
// begins; the ledger is exclusively owned by this loop for the run.
type Orchestrator struct {
	cfg  Config
	deps Deps

	observers []Observer

	seq         uint64
	seeded      bool
	summary     RunSummary
	riskHistory []risk.Assessment
	transitions []strategy.TransitionRecord
}

// New creates an orchestrator for one run
func New(cfg Config, deps Deps) *Orchestrator {
	if cfg.FundingVenue == "" {
		cfg.FundingVenue = execution.DefaultFundingVenue
	}
	return &Orchestrator{
		cfg:     cfg,
		deps:    deps,
		summary: RunSummary{RunID: cfg.RunID},
	}
}

// AddObserver registers a per-tick observer
func (o *Orchestrator) AddObserver(observer Observer) {
	o.observers = append(o.observers, observer)
}

// Run processes the given timestamps strictly in order and returns the
// run summary. A tick that fails to fetch data is counted and skipped;
// the run continues. Cancellation stops the run at a tick boundary.
func (o *Orchestrator) Run(ctx context.Context, timestamps []time.Time) (*RunSummary, error) {
	if len(timestamps) > 0 {
		if err := o.seedCapital(timestamps[0]); err != nil {
			return o.finish(), err
		}
	}

	for _, timestamp := range timestamps {
		if err := ctx.Err(); err != nil {
			return o.finish(), err
		}

		result, err := o.ProcessTick(ctx, timestamp)
		if err != nil {
			o.summary.FailedTicks++
			o.logError(fmt.Sprintf("tick at %s", timestamp.Format(time.RFC3339)), err)
			continue
		}

		o.summary.Ticks++
		if result.Execution != nil {
			o.summary.InstructionsSucceeded += result.Execution.Succeeded
			o.summary.InstructionsFailed += result.Execution.Failed
		}
		o.summary.FinalNetDelta = result.NetDelta
	}

	return o.finish(), nil
}

// seedCapital books the run's initial capital into the funding wallet so
// execution has a cash balance to draw margin transfers from
func (o *Orchestrator) seedCapital(timestamp time.Time) error {
	if o.cfg.InitialCapital <= 0 || o.seeded {
		return nil
	}

	key := types.NewPositionKey(o.cfg.FundingVenue, types.PositionTypeBaseToken, o.cfg.ShareClassCurrency)
	_, err := o.deps.Ledger.Apply(ledger.DeltaBatch{
		Timestamp:    timestamp,
		Trigger:      "initial_funding",
		TokenChanges: []ledger.TokenChange{{Key: key, Delta: o.cfg.InitialCapital}},
	})
	if err != nil {
		return err
	}

	o.seeded = true
	o.logInfo("booked %.2f %s of initial capital into %s",
		o.cfg.InitialCapital, o.cfg.ShareClassCurrency, o.cfg.FundingVenue)
	return nil
}

// ProcessTick runs the full pipeline for one timestamp
func (o *Orchestrator) ProcessTick(ctx context.Context, timestamp time.Time) (*TimestepResult, error) {
	tick, err := o.deps.Feed.GetData(ctx, timestamp)
	if err != nil {
		return nil, err
	}

	result := &TimestepResult{
		Sequence:  o.seq,
		Timestamp: timestamp,
	}
	o.seq++

	snapshot := o.deps.Ledger.Snapshot()
	report := o.deps.Exposure.Calculate(snapshot, tick)
	for _, missing := range report.MissingData {
		o.logWarning("missing data for %s this tick, contributed zero", missing)
	}

	assessments, stress := o.assessRisk(snapshot, report, tick)
	o.recordBreaches(assessments, timestamp)

	state := strategy.DecisionState{
		Timestamp: timestamp,
		Snapshot:  snapshot,
		Exposure:  report,
		Risk:      assessments,
		Tick:      tick,
		Capital:   o.cfg.InitialCapital,
	}

	stateBefore := o.deps.Strategy.State()
	actions, err := o.deps.Strategy.Decide(state)
	if err != nil {
		result.Errors = append(result.Errors, err.Error())
		o.logError("strategy decision", err)
		actions = nil
	}
	o.recordTransition(stateBefore, timestamp, state.HasCriticalRisk())

	for _, action := range actions {
		result.ActionTypes = append(result.ActionTypes, action.Type)
	}

	if len(actions) > 0 {
		block, err := o.deps.Coordinator.BuildInstructionBlock(actions, snapshot, tick)
		if err != nil {
			result.Errors = append(result.Errors, err.Error())
			o.logError("instruction build", err)
		} else if !block.IsEmpty() {
			execResult, err := o.deps.Coordinator.Execute(ctx, block)
			if err != nil {
				result.Errors = append(result.Errors, err.Error())
				o.logError("block execution", err)
			}
			result.Execution = execResult
		}
	}

	// re-read after execution so the persisted record reflects the tick's
	// final state
	result.Snapshot = o.deps.Ledger.Snapshot()
	result.Exposure = o.deps.Exposure.Calculate(result.Snapshot, tick)
	result.NetDelta = result.Exposure.NetDelta
	result.Risk = assessments
	result.Stress = stress
	result.StrategyState = o.deps.Strategy.State()

	o.persist(result)
	o.notify(*result)
	o.logTick(result)

	return result, nil
}

// Summary returns the running summary so far
func (o *Orchestrator) Summary() RunSummary {
	return *o.finish()
}

func (o *Orchestrator) finish() *RunSummary {
	o.summary.RiskBreaches = append([]risk.Assessment(nil), o.riskHistory...)
	o.summary.Transitions = append([]strategy.TransitionRecord(nil), o.transitions...)
	o.summary.FinalState = o.deps.Strategy.State()
	return &o.summary
}

func (o *Orchestrator) recordBreaches(assessments []risk.Assessment, timestamp time.Time) {
	for _, assessment := range assessments {
		if assessment.Level != risk.LevelWarning && assessment.Level != risk.LevelCritical {
			continue
		}
		o.riskHistory = append(o.riskHistory, assessment)

		severity := logger.SeverityWarning
		if assessment.Level == risk.LevelCritical {
			severity = logger.SeverityCritical
		}
		o.appendEvent(logger.Event{
			Timestamp: timestamp,
			EventType: logger.EventTypeRiskBreach,
			Details:   fmt.Sprintf("%s: %s", assessment.Dimension, assessment.Message),
			Severity:  severity,
		})
		if o.deps.Log != nil {
			o.deps.Log.LogRiskBreach(string(assessment.Dimension), string(assessment.Level),
				assessment.Value, assessment.Message)
		}
	}
}

func (o *Orchestrator) recordTransition(before strategy.State, timestamp time.Time, critical bool) {
	after := o.deps.Strategy.State()
	if after == before {
		return
	}

	record := strategy.TransitionRecord{
		Timestamp: timestamp,
		From:      before,
		To:        after,
		Reason:    "strategy decision",
		Forced:    critical && after == strategy.StateExiting,
	}
	if record.Forced {
		record.Reason = "critical risk assessment"
	}
	o.transitions = append(o.transitions, record)

	o.appendEvent(logger.Event{
		Timestamp: timestamp,
		EventType: logger.EventTypeStateTransition,
		Details:   fmt.Sprintf("%s -> %s (%s)", record.From, record.To, record.Reason),
		Severity:  logger.SeverityInfo,
	})
}

func (o *Orchestrator) persist(result *TimestepResult) {
	if o.deps.Writer == nil {
		return
	}
	if err := o.deps.Writer.Submit(result); err != nil {
		result.Errors = append(result.Errors, err.Error())
		o.logError("timestep persistence", err)
	}
}

func (o *Orchestrator) notify(result TimestepResult) {
	for _, observer := range o.observers {
		observer.ObserveTick(result)
	}
}

func (o *Orchestrator) appendEvent(event logger.Event) {
	if o.deps.Events != nil {
		o.deps.Events.Append(event)
	}
}

func (o *Orchestrator) logTick(result *TimestepResult) {
	if o.deps.Log == nil {
		return
	}
	succeeded, failed := 0, 0
	if result.Execution != nil {
		succeeded, failed = result.Execution.Succeeded, result.Execution.Failed
	}
	o.deps.Log.LogTick(result.Sequence, result.Timestamp, result.NetDelta, succeeded, failed)
}

func (o *Orchestrator) logError(context string, err error) {
	if o.deps.Log != nil {
		o.deps.Log.LogError(context, err)
	}
}

func (o *Orchestrator) logWarning(format string, args ...interface{}) {
	if o.deps.Log != nil {
		o.deps.Log.Warning(format, args...)
	}
}

func (o *Orchestrator) logInfo(format string, args ...interface{}) {
	if o.deps.Log != nil {
		o.deps.Log.Info(format, args...)
	}
}
