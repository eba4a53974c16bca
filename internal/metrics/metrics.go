package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the engine's Prometheus instruments on a private registry
// so tests can create collectors without double-registration panics.
type Collector struct {
	registry *prometheus.Registry

	scansTotal         prometheus.Counter
	scanFailures       prometheus.Counter
	scanDuration       prometheus.Histogram
	violationsDetected prometheus.Counter
	openViolations     prometheus.Gauge
	reviewActions      *prometheus.CounterVec
}

func NewCollector() *Collector {
	registry := prometheus.NewRegistry()

	return &Collector{
		registry: registry,
		scansTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "nitilens_scans_total",
			Help: "Completed compliance scans.",
		}),
		scanFailures: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "nitilens_scan_failures_total",
			Help: "Scans that aborted with an error.",
		}),
		scanDuration: promauto.With(registry).NewHistogram(prometheus.HistogramOpts{
			Name:    "nitilens_scan_duration_seconds",
			Help:    "Wall-clock duration of compliance scans.",
			Buckets: prometheus.DefBuckets,
		}),
		violationsDetected: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "nitilens_violations_detected_total",
			Help: "New violations inserted by scans.",
		}),
		openViolations: promauto.With(registry).NewGauge(prometheus.GaugeOpts{
			Name: "nitilens_open_violations",
			Help: "Open violations after the most recent scan.",
		}),
		reviewActions: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "nitilens_review_actions_total",
			Help: "Review actions applied to violations.",
		}, []string{"action"}),
	}
}

func (c *Collector) ScanCompleted(d time.Duration, newViolations, totalOpen int) {
	c.scansTotal.Inc()
	c.scanDuration.Observe(d.Seconds())
	c.violationsDetected.Add(float64(newViolations))
	c.openViolations.Set(float64(totalOpen))
}

func (c *Collector) ScanFailed() {
	c.scanFailures.Inc()
}

func (c *Collector) ReviewAction(action string) {
	c.reviewActions.WithLabelValues(action).Inc()
}

// Handler exposes the registry for the /metrics route.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}
