package sheet

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	storeCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_store_calls_total",
		Help: "Backing store calls by backend, operation and outcome.",
	}, []string{"backend", "op", "outcome"})

	storeRetries = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "portal_store_retries_total",
		Help: "Backing store calls retried after a transient failure.",
	}, []string{"backend", "op"})

	storeDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "portal_store_call_duration_seconds",
		Help:    "Latency of backing store calls including retries.",
		Buckets: prometheus.DefBuckets,
	}, []string{"backend", "op"})
)

func observe(backend, op string, err error, elapsed time.Duration) {
	storeCalls.WithLabelValues(backend, op, Kind(err)).Inc()
	storeDuration.WithLabelValues(backend, op).Observe(elapsed.Seconds())
}
