// Package metrics holds the Prometheus collectors of the daemon. Collectors
// live on a private registry so tests can build as many as they need.
package metrics

import (
	"net/http"
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "sessionvault"

type Metrics struct {
	registry *prometheus.Registry

	// Switch metrics
	Switches        *prometheus.CounterVec
	SwitchDuration  prometheus.Histogram
	RestoreTimeouts prometheus.Counter

	// Cookie metrics
	CookieRestoreFailures prometheus.Counter
	CookieRemoveFailures  prometheus.Counter

	// IndexedDB metrics
	IDBImports     *prometheus.CounterVec
	IDBPutFailures prometheus.Counter

	// Catalog metrics
	SessionsStored prometheus.Gauge

	// HTTP metrics
	HTTPRequests *prometheus.CounterVec
}

func New() *Metrics {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	f := promauto.With(reg)

	return &Metrics{
		registry: reg,

		Switches: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "switches_total",
				Help:      "Session switches by outcome (ok, restore_degraded, failed).",
			},
			[]string{"outcome"},
		),
		SwitchDuration: f.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: namespace,
				Name:      "switch_duration_seconds",
				Help:      "Wall time of a session switch including the reload.",
				Buckets:   []float64{.05, .1, .25, .5, 1, 2, 3, 5, 10, 20},
			},
		),
		RestoreTimeouts: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "restore_timeouts_total",
				Help:      "Restores abandoned at the restore deadline.",
			},
		),
		CookieRestoreFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cookie_restore_failures_total",
				Help:      "Cookies that could not be written back.",
			},
		),
		CookieRemoveFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "cookie_remove_failures_total",
				Help:      "Cookies that could not be removed while clearing.",
			},
		),
		IDBImports: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idb_imports_total",
				Help:      "IndexedDB database imports by outcome (ok, storeError, openError).",
			},
			[]string{"outcome"},
		),
		IDBPutFailures: f.NewCounter(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "idb_put_failures_total",
				Help:      "IndexedDB records whose put failed during import.",
			},
		),
		SessionsStored: f.NewGauge(
			prometheus.GaugeOpts{
				Namespace: namespace,
				Name:      "sessions_stored",
				Help:      "Sessions in the catalog after the last change.",
			},
		),
		HTTPRequests: f.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: namespace,
				Name:      "http_requests_total",
				Help:      "HTTP requests by method, route pattern and status.",
			},
			[]string{"method", "route", "status"},
		),
	}
}

func (m *Metrics) Registry() *prometheus.Registry { return m.registry }

// Handler serves the registry in the Prometheus text format.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{Registry: m.registry})
}

// ObserveHTTP counts one finished request.
func (m *Metrics) ObserveHTTP(method, route string, status int) {
	if route == "" {
		route = "unmatched"
	}
	m.HTTPRequests.WithLabelValues(method, route, strconv.Itoa(status)).Inc()
}
