package metrics

import (
	"net/http"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	renderDuration     *prom.HistogramVec
	renderOutcomes     *prom.CounterVec
	invocationDuration *prom.HistogramVec
	invocations        *prom.CounterVec
}

// NewPrometheusRecorder constructs the metrics and registers them with reg.
// A nil reg gets a fresh registry.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		renderDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "mathbot",
			Name:      "render_duration_seconds",
			Help:      "Duration of render pipeline runs, workspace setup and teardown included",
			Buckets:   prom.DefBuckets,
		}, []string{"outcome"}),
		renderOutcomes: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mathbot",
			Name:      "render_outcomes_total",
			Help:      "Render pipeline runs by outcome kind",
		}, []string{"outcome"}),
		invocationDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "mathbot",
			Name:      "invocation_duration_seconds",
			Help:      "Duration of dispatched command invocations",
			Buckets:   prom.DefBuckets,
		}, []string{"command"}),
		invocations: prom.NewCounterVec(prom.CounterOpts{
			Namespace: "mathbot",
			Name:      "invocations_total",
			Help:      "Dispatched command invocations by result",
		}, []string{"command", "result"}),
	}
	reg.MustRegister(pr.renderDuration, pr.renderOutcomes, pr.invocationDuration, pr.invocations)
	return pr
}

func (p *PrometheusRecorder) ObserveRender(outcome string, d time.Duration) {
	p.renderDuration.WithLabelValues(outcome).Observe(d.Seconds())
	p.renderOutcomes.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveInvocation(command, result string, d time.Duration) {
	p.invocationDuration.WithLabelValues(command).Observe(d.Seconds())
	p.invocations.WithLabelValues(command, result).Inc()
}

// HTTPHandler returns an http.Handler that serves the metrics in reg.
func HTTPHandler(reg *prom.Registry) http.Handler {
	return promhttp.HandlerFor(reg, promhttp.HandlerOpts{EnableOpenMetrics: true})
}
