package monitoring

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/deltat/coreservice/internal/infrastructure/resilience"
	"github.com/deltat/coreservice/internal/infrastructure/tracing"
)

var _ tracing.ExportObserver = (*Metrics)(nil)

// SpansExported implements tracing.ExportObserver
func (m *Metrics) SpansExported(n int) {
	m.ExportedSpans.Add(float64(n))
	m.mu.Lock()
	m.snapshot.SpansExported += int64(n)
	m.mu.Unlock()
}

// SpansDropped implements tracing.ExportObserver
func (m *Metrics) SpansDropped(n int, reason string) {
	m.DroppedSpans.WithLabelValues(reason).Add(float64(n))
	m.mu.Lock()
	m.snapshot.SpansDropped += int64(n)
	m.mu.Unlock()
}

// BreakerStateChanged records a transition. Its signature matches
// resilience.Settings.OnStateChange.
func (m *Metrics) BreakerStateChanged(name string, from, to resilience.State) {
	m.BreakerState.WithLabelValues(name).Set(float64(breakerStateValue(to)))
	m.BreakerTransitions.WithLabelValues(name, from.String(), to.String()).Inc()
}

func breakerStateValue(s resilience.State) int {
	switch s {
	case resilience.StateHalfOpen:
		return 1
	case resilience.StateOpen:
		return 2
	default:
		return 0
	}
}

// Handler serves the metrics gathered by g in the Prometheus exposition format
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
