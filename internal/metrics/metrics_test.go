package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecordRun(t *testing.T) {
	r := NewRegistry()
	r.RecordRun("ok", "ship", "pass")
	r.RecordRun("ok", "ship", "warn")
	r.RecordRun("INSUFFICIENT_DATA", "", "")

	assert.Equal(t, 2.0, testutil.ToFloat64(r.Runs.WithLabelValues("ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.Runs.WithLabelValues("INSUFFICIENT_DATA")))
	assert.Equal(t, 2.0, testutil.ToFloat64(r.Decisions.WithLabelValues("ship")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ValidityStatus.WithLabelValues("warn")))
}

func TestNilRegistryIsSafe(t *testing.T) {
	var r *Registry
	assert.NotPanics(t, func() {
		r.RecordRun("ok", "ship", "pass")
		r.ObserveStage("generate", time.Now())
	})
}

func TestHandler(t *testing.T) {
	r := NewRegistry()
	r.ObserveStage("estimate", time.Now().Add(-10*time.Millisecond))
	r.RecordRun("ok", "continue", "pass")

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	assert.Contains(t, body, "geolift_runs_total")
	assert.Contains(t, body, `geolift_stage_duration_seconds_count{stage="estimate"} 1`)

	// separate registries do not share state
	other := NewRegistry()
	assert.Equal(t, 0.0, testutil.ToFloat64(other.Runs.WithLabelValues("ok")))
}
