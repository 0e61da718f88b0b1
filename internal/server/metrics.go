// internal/server/metrics.go
package server

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/xkilldash9x/scalpel-driver/internal/automation"
	"github.com/xkilldash9x/scalpel-driver/internal/command"
)

const metricsNamespace = "scalpel_driver"

// Metrics holds the driver's collectors in a private registry, so several
// servers can coexist in one process (tests do).
type Metrics struct {
	registry *prometheus.Registry

	sessionsActive      prometheus.Gauge
	commandsTotal       *prometheus.CounterVec
	commandDuration     *prometheus.HistogramVec
	navigationsDeferred prometheus.Counter
}

var _ automation.Observer = (*Metrics)(nil)

// NewMetrics registers the driver collectors plus the Go runtime and process
// collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		registry: prometheus.NewRegistry(),
		sessionsActive: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: metricsNamespace,
			Name:      "sessions_active",
			Help:      "Number of open automation sessions.",
		}),
		commandsTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "commands_total",
			Help:      "Commands executed by automation workers, by command and wire status.",
		}, []string{"command", "status"}),
		commandDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "command_duration_seconds",
			Help:      "Time from dispatch to completion, including navigation settle.",
			Buckets:   []float64{.005, .01, .05, .1, .25, .5, 1, 2.5, 5, 10, 30, 60, 300},
		}, []string{"command"}),
		navigationsDeferred: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: metricsNamespace,
			Name:      "navigations_deferred_total",
			Help:      "Commands whose completion was deferred until a navigation settled.",
		}),
	}
	m.registry.MustRegister(
		m.sessionsActive,
		m.commandsTotal,
		m.commandDuration,
		m.navigationsDeferred,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) CommandCompleted(id command.ID, status command.Status, elapsed time.Duration) {
	m.commandsTotal.WithLabelValues(id.String(), strconv.Itoa(status.Code())).Inc()
	m.commandDuration.WithLabelValues(id.String()).Observe(elapsed.Seconds())
}

func (m *Metrics) NavigationDeferred(command.ID) {
	m.navigationsDeferred.Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}
