// Package metrics defines observability hooks for command invocations and
// renders, with a Prometheus implementation and a no-op default.
package metrics

import "time"

// Recorder receives invocation and render observations. Implementations must
// be safe for concurrent use.
type Recorder interface {
	// ObserveRender records one pipeline run by outcome kind.
	ObserveRender(outcome string, d time.Duration)
	// ObserveInvocation records one dispatched command by result.
	ObserveInvocation(command, result string, d time.Duration)
}

// NoopRecorder is a Recorder that does nothing (default when metrics are not
// configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveRender(string, time.Duration)             {}
func (NoopRecorder) ObserveInvocation(string, string, time.Duration) {}
