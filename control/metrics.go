// control/metrics.go
// Author: momentics <momentics@gmail.com>
//
// Runtime counters for the reactor and the sockets, kept in a go-metrics
// registry so they can be exported by any go-metrics reporter.

package control

import (
	"github.com/rcrowley/go-metrics"
)

// Metrics groups the counters updated on the I/O path.
type Metrics struct {
	Registry metrics.Registry

	Dispatch        metrics.Counter
	JobsReplaced    metrics.Counter
	BytesRead       metrics.Counter
	BytesWritten    metrics.Counter
	Accepted        metrics.Counter
	AcceptRetry     metrics.Counter
	Disconnected    metrics.Counter
	EventsPublished metrics.Counter
}

// NewMetrics registers all counters in a fresh registry.
func NewMetrics() *Metrics {
	r := metrics.NewRegistry()
	return &Metrics{
		Registry:        r,
		Dispatch:        metrics.GetOrRegisterCounter("reactor.dispatch", r),
		JobsReplaced:    metrics.GetOrRegisterCounter("reactor.jobs.replaced", r),
		BytesRead:       metrics.GetOrRegisterCounter("socket.bytes.read", r),
		BytesWritten:    metrics.GetOrRegisterCounter("socket.bytes.written", r),
		Accepted:        metrics.GetOrRegisterCounter("listen.accepted", r),
		AcceptRetry:     metrics.GetOrRegisterCounter("listen.accept.retry", r),
		Disconnected:    metrics.GetOrRegisterCounter("socket.disconnected", r),
		EventsPublished: metrics.GetOrRegisterCounter("events.published", r),
	}
}

// GetSnapshot returns the current counter values keyed by metric name.
func (m *Metrics) GetSnapshot() map[string]any {
	out := make(map[string]any)
	m.Registry.Each(func(name string, v any) {
		if c, ok := v.(metrics.Counter); ok {
			out[name] = c.Count()
		}
	})
	return out
}
