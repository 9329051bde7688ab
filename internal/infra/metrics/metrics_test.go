package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEngineCounters(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngine(reg)

	m.ObserveStatusEnsured(true)
	m.ObserveStatusEnsured(true)
	m.ObserveStatusEnsured(false)
	m.ObserveReconcileFailure("")
	m.ObserveRepair(3, 2)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.statusesEnsured.WithLabelValues("created")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.statusesEnsured.WithLabelValues("existing")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileFailures.WithLabelValues("unknown")))
	assert.Equal(t, 3.0, testutil.ToFloat64(m.repairRows.WithLabelValues("deleted")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.repairRows.WithLabelValues("normalized")))
}

func TestNilEngineIsNoop(t *testing.T) {
	var m *Engine
	assert.NotPanics(t, func() {
		m.ObserveStatusEnsured(true)
		m.ObserveReconcileFailure("missing_anchor")
		m.ObserveDegradedWindow("YEARLY")
		m.ObserveValidationMismatch("advisory")
		m.ObserveRepair(1, 1)
		m.ObserveRun("reconcile", 1)
	})
}

func TestHandlerServesRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewEngine(reg)
	m.ObserveDegradedWindow("MONTHLY")

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `benefit_cycle_degraded_windows_total{frequency="MONTHLY"} 1`)
}
