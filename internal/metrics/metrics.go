package metrics

import (
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Collector holds the publication-loop metrics.
type Collector struct {
	reg *prometheus.Registry

	Cycles        prometheus.Counter
	CycleFailures *prometheus.CounterVec // stage label: fetch|publish

	TripDelays       prometheus.Gauge
	VehiclePositions prometheus.Gauge

	CycleDuration prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
}

// NewCollector creates and registers the metric set.
func NewCollector() *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		Cycles: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xml2pb_cycles_total",
			Help: "Total publication cycles completed successfully.",
		}),
		CycleFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "xml2pb_cycle_failures_total",
			Help: "Total aborted cycles.",
		}, []string{"stage"}),
		TripDelays: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xml2pb_trip_delays",
			Help: "Trip delay entities in the last published snapshot.",
		}),
		VehiclePositions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "xml2pb_vehicle_positions",
			Help: "Vehicle position entities in the last published snapshot.",
		}),
		CycleDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "xml2pb_cycle_duration_seconds",
			Help:    "Duration of fetch-reconcile-publish cycles.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xml2pb_nats_published_total",
			Help: "Total snapshots broadcast over NATS.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "xml2pb_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
	}

	reg.MustRegister(
		c.Cycles, c.CycleFailures,
		c.TripDelays, c.VehiclePositions,
		c.CycleDuration,
		c.NATSPublished, c.NATSPublishErrs,
	)

	return c
}

// NATSPublishedInc and NATSPublishErrInc satisfy the publisher's Metrics
// interface.
func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }

// Handler returns the /metrics HTTP handler.
func (c *Collector) Handler() http.Handler {
	return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{})
}

// Serve starts an HTTP server exposing /metrics on addr.
func (c *Collector) Serve(addr string, logger *slog.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		logger.Info("metrics listener started", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", "error", err)
		}
	}()
	return srv
}
