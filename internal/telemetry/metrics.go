package telemetry

import (
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	once sync.Once

	JobsEnqueued     = prometheus.NewCounter(prometheus.CounterOpts{Name: "docpack_jobs_enqueued_total", Help: "Generation jobs dispatched to the queue"})
	JobsCompleted    = prometheus.NewCounter(prometheus.CounterOpts{Name: "docpack_jobs_completed_total", Help: "Jobs reported complete by workers"})
	JobsFailed       = prometheus.NewCounter(prometheus.CounterOpts{Name: "docpack_jobs_failed_total", Help: "Jobs reported failed by workers"})
	JobsTimedOut     = prometheus.NewCounter(prometheus.CounterOpts{Name: "docpack_jobs_timed_out_total", Help: "Stale jobs failed by the reconciler"})
	RateLimitRejects = prometheus.NewCounter(prometheus.CounterOpts{Name: "docpack_rate_limit_rejects_total", Help: "Generation requests rejected by the rate limiter"})
	VersionConflicts = prometheus.NewCounter(prometheus.CounterOpts{Name: "docpack_version_conflicts_total", Help: "Ledger commits rejected on the version precondition"})
	QueueDepthGauge  = prometheus.NewGauge(prometheus.GaugeOpts{Name: "docpack_dispatch_depth", Help: "Dispatch queue ready depth"})
	InFlightGauge    = prometheus.NewGauge(prometheus.GaugeOpts{Name: "docpack_jobs_inflight", Help: "Dispatch messages currently leased"})
)

// Handler exposes /metrics HTTP handler with a singleton registry.
func Handler() http.Handler {
	once.Do(func() {
		prometheus.MustRegister(
			JobsEnqueued,
			JobsCompleted,
			JobsFailed,
			JobsTimedOut,
			RateLimitRejects,
			VersionConflicts,
			QueueDepthGauge,
			InFlightGauge,
		)
	})
	return promhttp.Handler()
}
