// Package metrics exposes Prometheus collectors for the engine, retrieval,
// embedding cache, job and queue callbacks.
package metrics

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/mohammad-safakhou/wsorch/internal/agent"
	"github.com/mohammad-safakhou/wsorch/internal/embedding"
	"github.com/mohammad-safakhou/wsorch/internal/executor"
	"github.com/mohammad-safakhou/wsorch/internal/queue/streams"
	"github.com/mohammad-safakhou/wsorch/internal/records"
)

const namespace = "wsorch"

// Collectors holds every registered metric.
type Collectors struct {
	registry *prometheus.Registry

	stepDuration *prometheus.HistogramVec
	stepFailures *prometheus.CounterVec
	runWaves     prometheus.Histogram
	retrievals   *prometheus.CounterVec
	cacheLookups *prometheus.CounterVec
	jobs         *prometheus.CounterVec
	queuePending *prometheus.GaugeVec
	queueLag     *prometheus.GaugeVec
}

// New registers the collectors on a fresh registry.
func New() (*Collectors, error) {
	c := &Collectors{
		registry: prometheus.NewRegistry(),
		stepDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "step_duration_seconds",
			Help:      "Step execution time by step id and status.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"step", "status"}),
		stepFailures: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "step_failures_total",
			Help:      "Steps that aborted their run.",
		}, []string{"step"}),
		runWaves: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_waves",
			Help:      "Waves needed to complete a run.",
			Buckets:   []float64{0, 1, 2, 3, 4, 6, 8, 12},
		}),
		retrievals: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "retrievals_total",
			Help:      "Retrieval outcomes by collection and method.",
		}, []string{"collection", "method"}),
		cacheLookups: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "embedding_cache_lookups_total",
			Help:      "Embedding cache lookups by result.",
		}, []string{"result"}),
		jobs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "jobs_total",
			Help:      "Background jobs by terminal status.",
		}, []string{"status"}),
		queuePending: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_pending",
			Help:      "Delivered but unacknowledged stream entries.",
		}, []string{"stream", "group"}),
		queueLag: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "queue_lag",
			Help:      "Stream entries not yet delivered to the group.",
		}, []string{"stream", "group"}),
	}
	for _, col := range []prometheus.Collector{
		prometheus.NewGoCollector(),
		prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}),
		c.stepDuration, c.stepFailures, c.runWaves, c.retrievals,
		c.cacheLookups, c.jobs, c.queuePending, c.queueLag,
	} {
		if err := c.registry.Register(col); err != nil {
			return nil, fmt.Errorf("register collector: %w", err)
		}
	}
	return c, nil
}

// Handler serves the registry in the Prometheus text format.
func (c *Collectors) Handler() http.Handler {
	return promhttp.HandlerFor(c.registry, promhttp.HandlerOpts{})
}

// Registry returns the underlying registry.
func (c *Collectors) Registry() *prometheus.Registry { return c.registry }

// Engine returns executor callbacks that feed the step and wave metrics.
func (c *Collectors) Engine() executor.Metrics {
	return executor.Metrics{
		StepDuration: func(ctx context.Context, stepID string, status agent.Status, d time.Duration) {
			c.stepDuration.WithLabelValues(stepID, string(status)).Observe(d.Seconds())
		},
		StepFailure: func(ctx context.Context, stepID string) {
			c.stepFailures.WithLabelValues(stepID).Inc()
		},
		Waves: func(ctx context.Context, waves int) {
			c.runWaves.Observe(float64(waves))
		},
	}
}

// ObserveRetrieval matches the retrieval observer signature.
func (c *Collectors) ObserveRetrieval(col records.Collection, method string) {
	c.retrievals.WithLabelValues(string(col), method).Inc()
}

// CacheHooks counts embedding cache hits per tier and misses.
func (c *Collectors) CacheHooks() embedding.Hooks {
	return embedding.Hooks{
		Hit:  func(tier string) { c.cacheLookups.WithLabelValues("hit_" + tier).Inc() },
		Miss: func() { c.cacheLookups.WithLabelValues("miss").Inc() },
	}
}

// JobFinished counts a job reaching a terminal status.
func (c *Collectors) JobFinished(status string) {
	c.jobs.WithLabelValues(status).Inc()
}

// SetQueueLag records the latest consumer group lag.
func (c *Collectors) SetQueueLag(stream, group string, lag streams.LagMetrics) {
	c.queuePending.WithLabelValues(stream, group).Set(float64(lag.Pending))
	c.queueLag.WithLabelValues(stream, group).Set(float64(lag.Lag))
}
