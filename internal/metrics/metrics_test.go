package metrics

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ericksa/contractrisk/internal/risk"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveAnalysis(t *testing.T) {
	m := New()
	report := risk.NewClassifier(nil).Analyze("auto-renew penalty notice")

	m.ObserveAnalysis(report, 20*time.Millisecond)
	m.ObserveFailure()
	m.ObserveUpload(true)
	m.ObserveUpload(false)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("analyzed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.analyses.WithLabelValues("failed")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.findings.WithLabelValues("high")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.findings.WithLabelValues("low")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.uploads.WithLabelValues("rejected")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.ObserveAnalysis(risk.Report{}, time.Second)
		m.ObserveFailure()
		m.ObserveUpload(true)
	})
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveFailure()

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `contractrisk_analysis_total{status="failed"} 1`)
	assert.Contains(t, rec.Body.String(), "go_goroutines")
}
