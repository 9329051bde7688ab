package metrics

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Engine holds the counters of the cycle engine. A nil *Engine is a valid
// no-op recorder.
type Engine struct {
	statusesEnsured   *prometheus.CounterVec
	reconcileFailures *prometheus.CounterVec
	degradedWindows   *prometheus.CounterVec
	validationIssues  *prometheus.CounterVec
	repairRows        *prometheus.CounterVec
	runDuration       *prometheus.HistogramVec
}

var (
	engineOnce     sync.Once
	engineRegistry *Engine
)

// Default returns the Engine registered on the default Prometheus registry.
func Default() *Engine {
	engineOnce.Do(func() {
		engineRegistry = NewEngine(prometheus.DefaultRegisterer)
	})
	return engineRegistry
}

// NewEngine creates the engine collectors and registers them on reg.
func NewEngine(reg prometheus.Registerer) *Engine {
	m := &Engine{
		statusesEnsured: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "benefit_cycle_statuses_ensured_total",
			Help: "Status rows ensured by the reconciler, by outcome (created or existing).",
		}, []string{"outcome"}),
		reconcileFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "benefit_cycle_reconcile_failures_total",
			Help: "Benefits or users skipped during reconciliation, by reason.",
		}, []string{"reason"}),
		degradedWindows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "benefit_cycle_degraded_windows_total",
			Help: "Windows computed from the default anchor because the card opening date was unknown.",
		}, []string{"frequency"}),
		validationIssues: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "benefit_cycle_validation_mismatches_total",
			Help: "Computed windows that disagreed with benefit metadata, by validation mode.",
		}, []string{"mode"}),
		repairRows: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "benefit_cycle_repair_rows_total",
			Help: "Rows touched by duplicate repair, by action (deleted or normalized).",
		}, []string{"action"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "benefit_cycle_run_duration_seconds",
			Help:    "Duration of reconcile and repair runs.",
			Buckets: prometheus.DefBuckets,
		}, []string{"job"}),
	}
	reg.MustRegister(
		m.statusesEnsured,
		m.reconcileFailures,
		m.degradedWindows,
		m.validationIssues,
		m.repairRows,
		m.runDuration,
	)
	return m
}

func (m *Engine) ObserveStatusEnsured(created bool) {
	if m == nil {
		return
	}
	outcome := "existing"
	if created {
		outcome = "created"
	}
	m.statusesEnsured.WithLabelValues(outcome).Inc()
}

func (m *Engine) ObserveReconcileFailure(reason string) {
	if m == nil {
		return
	}
	if reason == "" {
		reason = "unknown"
	}
	m.reconcileFailures.WithLabelValues(reason).Inc()
}

func (m *Engine) ObserveDegradedWindow(frequency string) {
	if m == nil {
		return
	}
	m.degradedWindows.WithLabelValues(frequency).Inc()
}

func (m *Engine) ObserveValidationMismatch(mode string) {
	if m == nil {
		return
	}
	m.validationIssues.WithLabelValues(mode).Inc()
}

func (m *Engine) ObserveRepair(deleted, normalized int) {
	if m == nil {
		return
	}
	m.repairRows.WithLabelValues("deleted").Add(float64(deleted))
	m.repairRows.WithLabelValues("normalized").Add(float64(normalized))
}

func (m *Engine) ObserveRun(job string, seconds float64) {
	if m == nil {
		return
	}
	m.runDuration.WithLabelValues(job).Observe(seconds)
}

// Handler exposes the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
