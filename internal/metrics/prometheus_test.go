package metrics

import (
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrometheusRecorderCounts(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)

	rec.ObserveRender("artifact", 120*time.Millisecond)
	rec.ObserveRender("artifact", 80*time.Millisecond)
	rec.ObserveRender("input_error", 10*time.Millisecond)
	rec.ObserveInvocation("math", "ok", time.Second)

	assert.Equal(t, 2.0, testutil.ToFloat64(rec.renderOutcomes.WithLabelValues("artifact")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.renderOutcomes.WithLabelValues("input_error")))
	assert.Equal(t, 1.0, testutil.ToFloat64(rec.invocations.WithLabelValues("math", "ok")))
}

func TestHTTPHandlerServesMetrics(t *testing.T) {
	reg := prom.NewRegistry()
	rec := NewPrometheusRecorder(reg)
	rec.ObserveRender("artifact", time.Millisecond)

	srv := httptest.NewServer(HTTPHandler(reg))
	defer srv.Close()

	resp, err := srv.Client().Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "mathbot_render_outcomes_total"), "metrics body missing render counter")
}

func TestNoopRecorder(t *testing.T) {
	var rec Recorder = NoopRecorder{}
	rec.ObserveRender("artifact", time.Second)
	rec.ObserveInvocation("math", "ok", time.Second)
}
