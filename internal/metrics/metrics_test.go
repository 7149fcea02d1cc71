package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.RecordDetection("found", 1, 2, time.Millisecond)
		m.RecordFill("success", time.Second)
		m.RecordWrite("text", true, "")
		m.RecordResolution("ai")
		m.RecordMatcher(nil, time.Millisecond)
		m.RecordHTTPRequest("GET", "/forms", 200)
	})
	assert.Nil(t, m.Registry())
}

func TestRecorders(t *testing.T) {
	m := New()

	m.RecordDetection("found", 2, 7, time.Millisecond)
	m.RecordDetection("error", 0, 0, time.Millisecond)
	m.RecordWrite("select-single", false, "no-matching-option")
	m.RecordWrite("text", true, "")
	m.RecordMatcher(errors.New("x"), time.Millisecond)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.DetectionsTotal.WithLabelValues("found")))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.FormsDetected))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.FieldsDetected), "error passes keep the last gauge values")
	assert.Equal(t, 1.0, testutil.ToFloat64(m.FieldWritesTotal.WithLabelValues("select-single", "no-matching-option")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.MatcherRequestsTotal.WithLabelValues("error")))
}

func TestHandlerServesRegistry(t *testing.T) {
	m := New()
	m.RecordFill("partial", 10*time.Millisecond)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, _ := io.ReadAll(rec.Body)
	assert.Contains(t, string(body), `autofill_fills_total{outcome="partial"} 1`)
}
