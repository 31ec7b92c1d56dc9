package telemetry

import (
	"database/sql"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/techpack/backend/internal/infrastructure/admission"
	"github.com/techpack/backend/internal/infrastructure/cache"
	"github.com/techpack/backend/internal/infrastructure/printing"
)

const metricsNamespace = "techpack"

// JobDurationBuckets cover a single page render through a stuck engine
// reaching its job budget.
var JobDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2, 5, 10, 20, 30, 60}

// PoolStatsSource is satisfied by *printing.RenderPool
type PoolStatsSource interface {
	Stats() printing.PoolStats
}

// CacheStatsSource is satisfied by every artifact cache
type CacheStatsSource interface {
	Stats() cache.Stats
}

// AdmissionStatsSource is satisfied by *admission.Controller
type AdmissionStatsSource interface {
	Stats() admission.Stats
}

// PipelineCollector exposes pool, cache and admission state in the
// Prometheus text format. Counters are read from component snapshots at
// scrape time; only job durations are observed as they happen.
type PipelineCollector struct {
	registry *prometheus.Registry

	pool      PoolStatsSource
	cache     CacheStatsSource
	admission AdmissionStatsSource

	jobDuration *prometheus.HistogramVec

	poolSlots    *prometheus.Desc
	poolRunning  *prometheus.Desc
	poolPeak     *prometheus.Desc
	poolJobs     *prometheus.Desc
	poolRecycled *prometheus.Desc

	cacheHits          *prometheus.Desc
	cacheMisses        *prometheus.Desc
	cachePuts          *prometheus.Desc
	cacheStaleDrops    *prometheus.Desc
	cacheInvalidations *prometheus.Desc
	cacheErrors        *prometheus.Desc
	cacheEntries       *prometheus.Desc

	admitted    *prometheus.Desc
	rejected    *prometheus.Desc
	storeErrors *prometheus.Desc
}

// CollectorOption configures a PipelineCollector
type CollectorOption func(*PipelineCollector)

// WithPoolStats reports render pool state
func WithPoolStats(src PoolStatsSource) CollectorOption {
	return func(c *PipelineCollector) { c.pool = src }
}

// WithCacheStats reports artifact cache counters
func WithCacheStats(src CacheStatsSource) CollectorOption {
	return func(c *PipelineCollector) { c.cache = src }
}

// WithAdmissionStats reports admission decisions
func WithAdmissionStats(src AdmissionStatsSource) CollectorOption {
	return func(c *PipelineCollector) { c.admission = src }
}

// WithDBStats adds the standard database/sql pool collector
func WithDBStats(db *sql.DB, name string) CollectorOption {
	return func(c *PipelineCollector) {
		if db != nil {
			c.registry.MustRegister(collectors.NewDBStatsCollector(db, name))
		}
	}
}

// NewPipelineCollector builds a collector on its own registry together
// with the Go runtime and process collectors.
func NewPipelineCollector(opts ...CollectorOption) *PipelineCollector {
	desc := func(name, help string, labels ...string) *prometheus.Desc {
		return prometheus.NewDesc(prometheus.BuildFQName(metricsNamespace, "", name), help, labels, nil)
	}

	c := &PipelineCollector{
		registry: prometheus.NewRegistry(),
		jobDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: metricsNamespace,
			Name:      "render_job_duration_seconds",
			Help:      "Render job duration by outcome",
			Buckets:   JobDurationBuckets,
		}, []string{"outcome"}),

		poolSlots:    desc("render_pool_slots", "Render pool slots by state", "state"),
		poolRunning:  desc("render_pool_running", "Render jobs currently executing"),
		poolPeak:     desc("render_pool_peak_running", "Highest number of concurrent render jobs observed"),
		poolJobs:     desc("render_jobs_total", "Render jobs finished by outcome", "outcome"),
		poolRecycled: desc("render_engines_recycled_total", "Renderer engines replaced after failure"),

		cacheHits:          desc("artifact_cache_hits_total", "Artifact cache hits"),
		cacheMisses:        desc("artifact_cache_misses_total", "Artifact cache misses"),
		cachePuts:          desc("artifact_cache_puts_total", "Artifacts written to the cache"),
		cacheStaleDrops:    desc("artifact_cache_stale_drops_total", "Writes dropped because the document changed during render"),
		cacheInvalidations: desc("artifact_cache_invalidations_total", "Cache invalidation calls"),
		cacheErrors:        desc("artifact_cache_errors_total", "Cache backend errors"),
		cacheEntries:       desc("artifact_cache_entries", "Artifacts currently cached"),

		admitted:    desc("admission_admitted_total", "Requests admitted by class", "class"),
		rejected:    desc("admission_rejected_total", "Requests rejected by class", "class"),
		storeErrors: desc("admission_store_errors_total", "Admission store failures that failed open"),
	}

	c.registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		c.jobDuration,
		c,
	)
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// ObserveJob records one render job. Its signature matches the pool's
// job observer hook.
func (c *PipelineCollector) ObserveJob(outcome string, elapsed time.Duration) {
	c.jobDuration.WithLabelValues(outcome).Observe(elapsed.Seconds())
}

// Registry exposes the underlying registry
func (c *PipelineCollector) Registry() *prometheus.Registry {
	return c.registry
}

// Handler serves the registry in the Prometheus exposition format
func (c *PipelineCollector) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{Registry: c.registry})
}

// Describe implements prometheus.Collector
func (c *PipelineCollector) Describe(ch chan<- *prometheus.Desc) {
	for _, d := range []*prometheus.Desc{
		c.poolSlots, c.poolRunning, c.poolPeak, c.poolJobs, c.poolRecycled,
		c.cacheHits, c.cacheMisses, c.cachePuts, c.cacheStaleDrops,
		c.cacheInvalidations, c.cacheErrors, c.cacheEntries,
		c.admitted, c.rejected, c.storeErrors,
	} {
		ch <- d
	}
}

// Collect implements prometheus.Collector
func (c *PipelineCollector) Collect(ch chan<- prometheus.Metric) {
	gauge := func(d *prometheus.Desc, v float64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.GaugeValue, v, labels...)
	}
	counter := func(d *prometheus.Desc, v int64, labels ...string) {
		ch <- prometheus.MustNewConstMetric(d, prometheus.CounterValue, float64(v), labels...)
	}

	if c.pool != nil {
		s := c.pool.Stats()
		gauge(c.poolSlots, float64(s.Idle), string(printing.SlotIdle))
		gauge(c.poolSlots, float64(s.Busy), string(printing.SlotBusy))
		gauge(c.poolSlots, float64(s.Recycling), string(printing.SlotRecycling))
		gauge(c.poolSlots, float64(s.Quarantined), string(printing.SlotQuarantined))
		gauge(c.poolRunning, float64(s.Running))
		gauge(c.poolPeak, float64(s.PeakRunning))
		counter(c.poolJobs, s.Completed, printing.OutcomeSuccess)
		counter(c.poolJobs, s.Failed, printing.OutcomeFailed)
		counter(c.poolJobs, s.TimedOut, printing.OutcomeTimeout)
		counter(c.poolJobs, s.Cancelled, printing.OutcomeCancelled)
		counter(c.poolJobs, s.Saturated, printing.OutcomeSaturated)
		counter(c.poolRecycled, s.Recycled)
	}

	if c.cache != nil {
		s := c.cache.Stats()
		counter(c.cacheHits, s.Hits)
		counter(c.cacheMisses, s.Misses)
		counter(c.cachePuts, s.Puts)
		counter(c.cacheStaleDrops, s.StaleDrops)
		counter(c.cacheInvalidations, s.Invalidations)
		counter(c.cacheErrors, s.Errors)
		gauge(c.cacheEntries, float64(s.Entries))
	}

	if c.admission != nil {
		s := c.admission.Stats()
		for _, class := range admission.Classes() {
			counter(c.admitted, s.Admitted[class], string(class))
			counter(c.rejected, s.Rejected[class], string(class))
		}
		counter(c.storeErrors, s.StoreErrors)
	}
}

var _ prometheus.Collector = (*PipelineCollector)(nil)
