package metrics

import (
	"log"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Collector struct {
	reg *prometheus.Registry

	RefreshesTotal  prometheus.Counter
	RefreshErrs     prometheus.Counter
	RefreshSkips    prometheus.Counter
	TriggersDropped prometheus.Counter

	PositionUpdates prometheus.Counter

	LookupDuration prometheus.Histogram

	ArrivalsStarted   prometheus.Counter
	ArrivalsSucceeded prometheus.Counter
	ArrivalsFailed    prometheus.Counter
	ArrivalDuration   prometheus.Histogram

	NATSPublished   prometheus.Counter
	NATSPublishErrs prometheus.Counter
	NATSConnected   prometheus.Gauge

	SnapshotAge     prometheus.Gauge // seconds since last successful write
	RefreshInterval prometheus.Gauge // seconds
}

func NewCollector(refreshInterval time.Duration) *Collector {
	reg := prometheus.NewRegistry()

	c := &Collector{
		reg: reg,
		RefreshesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_refreshes_total",
			Help: "Total completed station refresh cycles.",
		}),
		RefreshErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_refresh_errors_total",
			Help: "Total refresh cycles that failed at the station lookup.",
		}),
		RefreshSkips: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_refreshes_skipped_total",
			Help: "Total refresh cycles skipped at the sentinel position.",
		}),
		TriggersDropped: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_triggers_dropped_total",
			Help: "Total refresh triggers dropped because one was in flight.",
		}),
		PositionUpdates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_position_updates_total",
			Help: "Total position updates delivered by the location source.",
		}),
		LookupDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_station_lookup_duration_seconds",
			Help:    "Duration of successful nearest-station lookups.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		ArrivalsStarted: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_arrival_resolutions_started_total",
			Help: "Total arrival-time resolutions started.",
		}),
		ArrivalsSucceeded: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_arrival_resolutions_succeeded_total",
			Help: "Total arrival-time resolutions that produced a time.",
		}),
		ArrivalsFailed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_arrival_resolutions_failed_total",
			Help: "Total arrival-time resolutions that ended in an error.",
		}),
		ArrivalDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "tracker_arrival_resolution_duration_seconds",
			Help:    "Duration of successful arrival-time resolutions.",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 12),
		}),
		NATSPublished: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_published_total",
			Help: "Total NATS snapshot messages published.",
		}),
		NATSPublishErrs: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "tracker_nats_publish_errors_total",
			Help: "Total NATS publish errors.",
		}),
		NATSConnected: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_nats_connected",
			Help: "1 if NATS connection is established, 0 otherwise.",
		}),
		SnapshotAge: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_snapshot_age_seconds",
			Help: "Seconds since the last successful snapshot write.",
		}),
		RefreshInterval: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "tracker_refresh_interval_seconds",
			Help: "Configured timer-trigger interval in seconds.",
		}),
	}

	reg.MustRegister(
		c.RefreshesTotal, c.RefreshErrs, c.RefreshSkips, c.TriggersDropped,
		c.PositionUpdates, c.LookupDuration,
		c.ArrivalsStarted, c.ArrivalsSucceeded, c.ArrivalsFailed, c.ArrivalDuration,
		c.NATSPublished, c.NATSPublishErrs, c.NATSConnected,
		c.SnapshotAge, c.RefreshInterval,
	)

	c.RefreshInterval.Set(refreshInterval.Seconds())

	return c
}

func (c *Collector) Handler() http.Handler { return promhttp.HandlerFor(c.reg, promhttp.HandlerOpts{}) }

// Serve starts an HTTP server exposing /metrics on the given address.
func (c *Collector) Serve(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", c.Handler())
	srv := &http.Server{Addr: addr, Handler: mux}
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("metrics server error: %v", err)
		}
	}()
	log.Printf("metrics listening on %s", addr)
	return srv
}

// Scheduler metrics adapter (tracker.Metrics).

func (c *Collector) RefreshSucceeded(d time.Duration) {
	c.RefreshesTotal.Inc()
	c.LookupDuration.Observe(d.Seconds())
}
func (c *Collector) RefreshFailed() {
	c.RefreshesTotal.Inc()
	c.RefreshErrs.Inc()
}
func (c *Collector) RefreshSkipped()  { c.RefreshSkips.Inc() }
func (c *Collector) TriggerDropped()  { c.TriggersDropped.Inc() }
func (c *Collector) PositionUpdated() { c.PositionUpdates.Inc() }

// Arrival-time metrics adapter (arrivals.Metrics).

func (c *Collector) ArrivalResolutionStarted() { c.ArrivalsStarted.Inc() }
func (c *Collector) ArrivalResolutionSucceeded(d time.Duration) {
	c.ArrivalsSucceeded.Inc()
	c.ArrivalDuration.Observe(d.Seconds())
}
func (c *Collector) ArrivalResolutionFailed() { c.ArrivalsFailed.Inc() }

// NATS metrics adapter (publisher.Metrics).

func (c *Collector) NATSPublishedInc()  { c.NATSPublished.Inc() }
func (c *Collector) NATSPublishErrInc() { c.NATSPublishErrs.Inc() }
func (c *Collector) NATSSetConnected(connected bool) {
	if connected {
		c.NATSConnected.Set(1)
	} else {
		c.NATSConnected.Set(0)
	}
}
