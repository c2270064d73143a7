// internal/metrics/metrics.go
package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once          sync.Once
	MessagesTotal *prometheus.CounterVec
	BatchesTotal  prometheus.Counter
	BatchLatency  prometheus.Histogram
	DLQPublished  prometheus.Counter
	ParseErrors   prometheus.Counter
)

// Register initializes and registers all metrics exactly once.
// If r == nil, uses prometheus.DefaultRegisterer; duplicate registrations are ignored.
func Register(r prometheus.Registerer) {
	once.Do(func() {
		if r == nil {
			r = prometheus.DefaultRegisterer
		}

		MessagesTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "ingestor", Subsystem: "pipeline", Name: "messages_total",
			Help: "Messages processed, split by table and outcome (success|duplicate|failure)",
		}, []string{"table", "outcome"})
		BatchesTotal = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingestor", Subsystem: "pipeline", Name: "batches_total",
			Help: "Batches processed",
		})
		BatchLatency = prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "ingestor", Subsystem: "pipeline", Name: "batch_latency_seconds",
			Help:    "Wall-clock latency of one batch callback",
			Buckets: prometheus.DefBuckets,
		})
		DLQPublished = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingestor", Subsystem: "pipeline", Name: "dlq_published_total",
			Help: "Messages successfully published to the dead-letter topic",
		})
		ParseErrors = prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "ingestor", Subsystem: "pipeline", Name: "parse_errors_total",
			Help: "Raw messages that failed envelope parsing",
		})

		collectors := []prometheus.Collector{
			MessagesTotal,
			BatchesTotal,
			BatchLatency,
			DLQPublished,
			ParseErrors,
		}
		for _, c := range collectors {
			if err := r.Register(c); err != nil {
				if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
					panic(err)
				}
			}
		}
	})
}
