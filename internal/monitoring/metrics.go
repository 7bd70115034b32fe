package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/orchestrator"
	"github.com/IggyIkenna/basis-strategy-v1-sub010/internal/risk"
)

// Metrics exposes pipeline health as Prometheus collectors. It observes
// the orchestration loop tick by tick.
type Metrics struct {
	registry *prometheus.Registry

	ticksTotal        prometheus.Counter
	instructionsTotal *prometheus.CounterVec
	netDelta          prometheus.Gauge
	riskLevel         *prometheus.GaugeVec
	healthFactor      prometheus.Gauge
	queueDepth        *prometheus.GaugeVec
	pendingWrites     prometheus.Gauge
	errorsTotal       *prometheus.CounterVec
}

// NewMetrics creates and registers the pipeline collectors on a private
// registry, so independent runs in one process never collide
func NewMetrics(runID string) *Metrics {
	labels := prometheus.Labels{"run_id": runID}
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		ticksTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "pipeline_ticks_total",
			Help:        "Total number of orchestration ticks processed",
			ConstLabels: labels,
		}),
		instructionsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_instructions_total",
			Help:        "Executed instructions by outcome",
			ConstLabels: labels,
		}, []string{"outcome"}),
		netDelta: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pipeline_net_delta",
			Help:        "Net exposure in share class currency",
			ConstLabels: labels,
		}),
		riskLevel: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "pipeline_risk_level",
			Help:        "Risk level per dimension (0 safe, 1 warning, 2 critical, 3 error)",
			ConstLabels: labels,
		}, []string{"dimension"}),
		healthFactor: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pipeline_health_factor",
			Help:        "Lending protocol health factor",
			ConstLabels: labels,
		}),
		queueDepth: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name:        "pipeline_call_queue_depth",
			Help:        "Pending calls per venue queue",
			ConstLabels: labels,
		}, []string{"venue"}),
		pendingWrites: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "pipeline_pending_writes",
			Help:        "Timestep results queued but not yet durably written",
			ConstLabels: labels,
		}),
		errorsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "pipeline_errors_total",
			Help:        "Pipeline errors by source",
			ConstLabels: labels,
		}, []string{"source"}),
	}

	registry.MustRegister(m.ticksTotal, m.instructionsTotal, m.netDelta,
		m.riskLevel, m.healthFactor, m.queueDepth, m.pendingWrites, m.errorsTotal)
	return m
}

// ObserveTick updates the collectors from one completed tick
func (m *Metrics) ObserveTick(result orchestrator.TimestepResult) {
	m.ticksTotal.Inc()
	m.netDelta.Set(result.NetDelta)

	if result.Execution != nil {
		m.instructionsTotal.WithLabelValues("succeeded").Add(float64(result.Execution.Succeeded))
		m.instructionsTotal.WithLabelValues("failed").Add(float64(result.Execution.Failed))
	}

	for _, assessment := range result.Risk {
		m.riskLevel.WithLabelValues(string(assessment.Dimension)).Set(levelValue(assessment.Level))
		if assessment.Dimension == risk.DimensionAaveLTV && assessment.HealthFactor > 0 {
			m.healthFactor.Set(assessment.HealthFactor)
		}
	}

	for range result.Errors {
		m.errorsTotal.WithLabelValues("tick").Inc()
	}
}

// SetQueueDepth records a venue queue's pending depth
func (m *Metrics) SetQueueDepth(venue string, depth int) {
	m.queueDepth.WithLabelValues(venue).Set(float64(depth))
}

// SetPendingWrites records the persistence backlog
func (m *Metrics) SetPendingWrites(pending int) {
	m.pendingWrites.Set(float64(pending))
}

// RecordError counts one error from the given source
func (m *Metrics) RecordError(source string) {
	m.errorsTotal.WithLabelValues(source).Inc()
}

// Handler serves this run's collectors over HTTP
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func levelValue(level risk.Level) float64 {
	switch level {
	case risk.LevelSafe:
		return 0
	case risk.LevelWarning:
		return 1
	case risk.LevelCritical:
		return 2
	default:
		return 3
	}
}
