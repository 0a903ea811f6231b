// Package metrics wraps a prometheus.Registry exposing the pool and
// executor counters named in SPEC_FULL.md §4.11. A nil *Registry
// disables collection entirely, so components can take one without
// forcing tests to stand up a running registry.
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Registry holds the named collectors this runtime publishes. All
// methods are nil-receiver safe.
type Registry struct {
	reg *prometheus.Registry

	MempoolUsedBytes        prometheus.Gauge
	MempoolPeakBytes        prometheus.Gauge
	MempoolAllocBytes       prometheus.Counter
	MempoolUsedByEventBytes prometheus.Gauge
	MempoolEagerFreeBytes   prometheus.Gauge
	ExecutorLaunchesTotal   prometheus.Counter
	ExecutorLaunchSeconds   prometheus.Histogram
}

// New builds a Registry backed by a fresh prometheus.Registry and
// registers every collector.
func New() *Registry {
	reg := prometheus.NewRegistry()
	r := &Registry{
		reg: reg,
		MempoolUsedBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dart_mempool_used_bytes",
			Help: "Bytes currently allocated (status Used) across all pool allocators.",
		}),
		MempoolPeakBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dart_mempool_peak_bytes",
			Help: "High-water mark of used bytes since the pool was created.",
		}),
		MempoolAllocBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dart_mempool_alloc_bytes",
			Help: "Cumulative bytes handed out by Pool.Alloc.",
		}),
		MempoolUsedByEventBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dart_mempool_used_by_event_bytes",
			Help: "Bytes pinned by an outstanding cross-stream event.",
		}),
		MempoolEagerFreeBytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "dart_mempool_eager_free_bytes",
			Help: "Bytes moved to the eager-free set: physical pages unmapped, virtual range still reserved.",
		}),
		ExecutorLaunchesTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dart_executor_launches_total",
			Help: "Total kernel launches dispatched by the executor.",
		}),
		ExecutorLaunchSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:    "dart_executor_launch_seconds",
			Help:    "Per-node kernel launch latency.",
			Buckets: prometheus.DefBuckets,
		}),
	}
	reg.MustRegister(
		r.MempoolUsedBytes,
		r.MempoolPeakBytes,
		r.MempoolAllocBytes,
		r.MempoolUsedByEventBytes,
		r.MempoolEagerFreeBytes,
		r.ExecutorLaunchesTotal,
		r.ExecutorLaunchSeconds,
	)
	return r
}

// Gatherer exposes the underlying prometheus.Gatherer for an HTTP
// /metrics handler. Returns nil if r is nil.
func (r *Registry) Gatherer() prometheus.Gatherer {
	if r == nil {
		return nil
	}
	return r.reg
}

// ObserveLaunch records one executor launch at duration seconds. Safe to
// call on a nil *Registry (no-op), so exec.Executor never needs a nil
// check at call sites.
func (r *Registry) ObserveLaunch(seconds float64) {
	if r == nil {
		return
	}
	r.ExecutorLaunchesTotal.Inc()
	r.ExecutorLaunchSeconds.Observe(seconds)
}

// SetMempoolUsage updates the pool gauges. Safe to call on nil.
func (r *Registry) SetMempoolUsage(used, peak, usedByEvent, eagerFree int64) {
	if r == nil {
		return
	}
	r.MempoolUsedBytes.Set(float64(used))
	r.MempoolPeakBytes.Set(float64(peak))
	r.MempoolUsedByEventBytes.Set(float64(usedByEvent))
	r.MempoolEagerFreeBytes.Set(float64(eagerFree))
}

// AddMempoolAlloc accounts bytes handed out by one Pool.Alloc call. Safe
// to call on nil.
func (r *Registry) AddMempoolAlloc(bytes int64) {
	if r == nil {
		return
	}
	r.MempoolAllocBytes.Add(float64(bytes))
}
