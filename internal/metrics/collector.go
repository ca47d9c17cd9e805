// collector.go - pool metrics collection
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/id-pointer/id-pointer-pool-go/internal/config"
	"github.com/id-pointer/id-pointer-pool-go/internal/pool"
)

// Source is anything the Collector can periodically sample for
// per-endpoint pool statistics. *pool.PoolMap satisfies this.
type Source interface {
	Snapshot() map[pool.Endpoint]pool.Stats
}

// Collector samples a Source on an interval and republishes it as
// Prometheus gauges labeled by endpoint (C4/C5's
// diagnostics surface, SPEC_FULL.md §5).
type Collector struct {
	cfg    config.MetricsConfig
	source Source
	logger *zap.SugaredLogger

	acquired     *prometheus.GaugeVec
	pending      *prometheus.GaugeVec
	idle         *prometheus.GaugeVec
	capacity     *prometheus.GaugeVec
	acquisitions *prometheus.GaugeVec
	releases     *prometheus.GaugeVec
	timeouts     *prometheus.GaugeVec
	connectFails *prometheus.GaugeVec
	validFails   *prometheus.GaugeVec

	stopCh chan struct{}
}

// NewCollector builds a Collector and registers its metrics with the
// default Prometheus registry. It does not start sampling until Start
// is called.
func NewCollector(cfg config.MetricsConfig, source Source, logger *zap.SugaredLogger) *Collector {
	labels := []string{"endpoint"}
	c := &Collector{
		cfg:    cfg,
		source: source,
		logger: logger,
		stopCh: make(chan struct{}),

		acquired: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_acquired_connections",
			Help: "Currently acquired connections per endpoint.",
		}, labels),
		pending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_pending_waiters",
			Help: "Queued Acquire callers per endpoint.",
		}, labels),
		idle: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_idle_connections",
			Help: "Idle reservoir size per endpoint.",
		}, labels),
		capacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_capacity",
			Help: "Configured capacity per endpoint.",
		}, labels),
		acquisitions: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_acquisitions_total",
			Help: "Cumulative acquire slots granted per endpoint, including ones whose connect then failed.",
		}, labels),
		releases: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_releases_total",
			Help: "Cumulative connections returned to the idle reservoir by Release per endpoint.",
		}, labels),
		timeouts: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_acquire_timeouts_total",
			Help: "Cumulative waiters that hit their acquire timeout per endpoint.",
		}, labels),
		connectFails: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_connect_failures_total",
			Help: "Cumulative Connector.Connect failures per endpoint.",
		}, labels),
		validFails: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "idpool_validation_failures_total",
			Help: "Cumulative HealthChecker failures per endpoint.",
		}, labels),
	}

	prometheus.MustRegister(
		c.acquired, c.pending, c.idle, c.capacity,
		c.acquisitions, c.releases, c.timeouts, c.connectFails, c.validFails,
	)

	return c
}

// Start runs the sampling loop until Stop is called. Intended to run in
// its own goroutine.
func (c *Collector) Start(interval time.Duration) {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.sample()
		case <-c.stopCh:
			return
		}
	}
}

// Stop halts the sampling loop started by Start.
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) sample() {
	snap := c.source.Snapshot()
	for ep, s := range snap {
		label := ep.String()
		c.acquired.WithLabelValues(label).Set(float64(s.AcquiredCount))
		c.pending.WithLabelValues(label).Set(float64(s.PendingCount))
		c.idle.WithLabelValues(label).Set(float64(s.IdleCount))
		c.capacity.WithLabelValues(label).Set(float64(s.Capacity))
		c.acquisitions.WithLabelValues(label).Set(float64(s.Acquisitions))
		c.timeouts.WithLabelValues(label).Set(float64(s.Timeouts))
		c.connectFails.WithLabelValues(label).Set(float64(s.ConnectFailures))
		c.validFails.WithLabelValues(label).Set(float64(s.ValidationFailures))
		c.releases.WithLabelValues(label).Set(float64(s.Releases))
	}
	c.logger.Debugw("metrics sampled", "endpoints", len(snap))
}
