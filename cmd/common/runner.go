package common

import (
	"context"
	"fmt"
	"net/http"
	"path/filepath"
	"time"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/config"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/datafeed"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/execution"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/exposure"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/ledger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/logger"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/monitoring"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/orchestrator"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/persistence"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/strategy"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/reporting"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/pkg/types"
)

// Runner assembles one coordination run from its configuration and owns
// the lifecycle of every component it wires
type Runner struct {
	cfg *config.RunConfig

	ledger      *ledger.Ledger
	strategy    strategy.Strategy
	coordinator *execution.Coordinator
	writer      *persistence.Writer
	log         *logger.Logger
	events      *logger.EventLog
	metrics     *monitoring.Metrics
	health      *monitoring.HealthChecker
	orch        *orchestrator.Orchestrator

	results *resultCollector
	servers []*http.Server
}

// NewRunner builds the full pipeline for the given run configuration.
// RegisterExecutor may be called before Run to attach live venues.
func NewRunner(cfg *config.RunConfig) (*Runner, error) {
	if cfg.Strategy.ShareClassCurrency == "" {
		cfg.Strategy.ShareClassCurrency = cfg.ShareClassCurrency
	}
	strat, err := strategy.NewStrategy(cfg.Strategy)
	if err != nil {
		return nil, err
	}

	// the funding wallet holds initial capital and sources margin
	// transfers, so it joins the strategy's universe
	fundingKey := types.NewPositionKey(execution.DefaultFundingVenue, types.PositionTypeBaseToken, cfg.ShareClassCurrency)
	led := ledger.NewLedger(ledger.Config{
		Universe:  append(strat.Universe(), fundingKey),
		Venues:    cfg.CEXVenues,
		Simulated: cfg.Simulated,
	})

	log, err := logger.NewLogger(cfg.LogDir, cfg.RunID)
	if err != nil {
		return nil, err
	}
	events, err := logger.NewEventLog(cfg.LogDir, cfg.RunID)
	if err != nil {
		return nil, err
	}

	coordinator := execution.NewCoordinator(execution.Config{
		ShareClassCurrency: cfg.ShareClassCurrency,
		CEXVenues:          cfg.CEXVenues,
		Simulated:          cfg.Simulated,
	}, led, events, log)

	writer, err := persistence.NewWriter(cfg.OutputDir, cfg.RunID, func(seq uint64, err error) {
		log.LogError(fmt.Sprintf("persist timestep %d", seq), err)
	})
	if err != nil {
		return nil, err
	}

	feed, err := buildFeed(cfg)
	if err != nil {
		return nil, err
	}

	orch := orchestrator.New(orchestrator.Config{
		RunID:              cfg.RunID,
		InitialCapital:     cfg.InitialCapital,
		Risk:               cfg.Risk,
		CEXVenues:          cfg.CEXVenues,
		ShareClassCurrency: cfg.ShareClassCurrency,
	}, orchestrator.Deps{
		Ledger:      led,
		Exposure:    exposure.NewCalculator(exposure.Config{ShareClassCurrency: cfg.ShareClassCurrency, TrackedAssets: trackedAssets(cfg)}),
		Strategy:    strat,
		Coordinator: coordinator,
		Feed:        feed,
		Writer:      writer,
		Events:      events,
		Log:         log,
	})

	r := &Runner{
		cfg:         cfg,
		ledger:      led,
		strategy:    strat,
		coordinator: coordinator,
		writer:      writer,
		log:         log,
		events:      events,
		metrics:     monitoring.NewMetrics(cfg.RunID),
		health:      monitoring.NewHealthChecker(),
		orch:        orch,
		results:     &resultCollector{},
	}

	orch.AddObserver(r.metrics)
	orch.AddObserver(&healthObserver{health: r.health})
	orch.AddObserver(r.results)
	return r, nil
}

// RegisterExecutor attaches a live venue executor before the run starts
func (r *Runner) RegisterExecutor(venue string, executor execution.VenueExecutor) {
	r.coordinator.RegisterExecutor(venue, executor)
}

// Run drives the configured tick window to completion, then renders the
// console summary and the Excel report
func (r *Runner) Run(ctx context.Context) (*orchestrator.RunSummary, error) {
	timestamps, err := r.cfg.Timestamps()
	if err != nil {
		return nil, err
	}

	r.startMonitoringServers()
	defer r.shutdown()

	r.log.Info("run %s starting: %d ticks, strategy %s", r.cfg.RunID, len(timestamps), r.strategy.Name())

	summary, runErr := r.orch.Run(ctx, timestamps)

	// flush ordered persistence before reporting
	r.writer.Stop()

	console := reporting.NewConsoleReporter()
	console.PrintRunSummary(summary)
	console.PrintTimesteps(r.results.all())

	reportPath := filepath.Join(r.cfg.OutputDir, r.cfg.RunID, "report.xlsx")
	if err := reporting.NewExcelReporter().WriteRunReport(reportPath, summary, r.results.all()); err != nil {
		r.log.LogError("excel report", err)
	}

	return summary, runErr
}

func (r *Runner) startMonitoringServers() {
	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", r.metrics.Handler())
	healthMux := http.NewServeMux()
	healthMux.Handle("/health", r.health)

	for _, server := range []*http.Server{
		{Addr: fmt.Sprintf(":%d", r.cfg.PrometheusPort), Handler: metricsMux},
		{Addr: fmt.Sprintf(":%d", r.cfg.HealthPort), Handler: healthMux},
	} {
		server := server
		r.servers = append(r.servers, server)
		go func() {
			if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				r.log.LogError("monitoring server "+server.Addr, err)
			}
		}()
	}
}

func (r *Runner) shutdown() {
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for _, server := range r.servers {
		server.Shutdown(shutdownCtx)
	}

	r.coordinator.Stop()
	r.events.Close()
	r.log.Close()
}

// trackedAssets derives the exposure aggregator's asset set from the
// strategy configuration
func trackedAssets(cfg *config.RunConfig) []string {
	seen := map[string]bool{}
	var assets []string
	for _, asset := range []string{cfg.Strategy.Asset, cfg.ShareClassCurrency} {
		if asset != "" && !seen[asset] {
			seen[asset] = true
			assets = append(assets, asset)
		}
	}
	return assets
}

// buildFeed constructs the configured data feed behind a memoizing cache
func buildFeed(cfg *config.RunConfig) (datafeed.Provider, error) {
	switch cfg.Feed.Kind {
	case "csv":
		provider := datafeed.NewCSVProvider()
		for symbol, file := range cfg.Feed.SeriesFiles {
			if err := provider.LoadSeries(symbol, file); err != nil {
				return nil, err
			}
		}
		for instrument, rate := range cfg.Feed.FundingRates {
			provider.SetFundingRate(instrument, rate)
		}
		return datafeed.NewCachedProvider(provider), nil
	default:
		return datafeed.NewCachedProvider(datafeed.NewSimulatedProvider(datafeed.SimulatedConfig{
			Start:        cfg.Start,
			BasePrices:   cfg.Feed.BasePrices,
			Volatility:   cfg.Feed.Volatility,
			FundingRates: cfg.Feed.FundingRates,
			AaveAPY:      cfg.Feed.AaveAPY,
			OracleRates:  cfg.Feed.OracleRates,
			StakingAPY:   cfg.Feed.StakingAPY,
			GasCost:      cfg.Feed.GasCost,
		})), nil
	}
}

// resultCollector keeps the per-tick trail for end-of-run reporting
type resultCollector struct {
	results []orchestrator.TimestepResult
}

func (c *resultCollector) ObserveTick(result orchestrator.TimestepResult) {
	c.results = append(c.results, result)
}

func (c *resultCollector) all() []orchestrator.TimestepResult {
	return c.results
}

type healthObserver struct {
	health *monitoring.HealthChecker
}

func (o *healthObserver) ObserveTick(result orchestrator.TimestepResult) {
	o.health.TickCompleted(result.NetDelta)
}
