package outbox

import "github.com/prometheus/client_golang/prometheus"

var (
	enqueuedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskform",
		Subsystem: "outbox",
		Name:      "entries_enqueued_total",
		Help:      "Number of temp-answer snapshots accepted into the outbox.",
	})

	deliveredCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskform",
		Subsystem: "outbox",
		Name:      "entries_delivered_total",
		Help:      "Number of outbox entries successfully delivered to the remote sink.",
	})

	failedCounter = prometheus.NewCounter(prometheus.CounterOpts{
		Namespace: "taskform",
		Subsystem: "outbox",
		Name:      "deliveries_failed_total",
		Help:      "Number of delivery attempts that failed and were kept for retry.",
	})

	pendingGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskform",
		Subsystem: "outbox",
		Name:      "entries_pending",
		Help:      "Entries still awaiting delivery after the most recent flush.",
	})

	flushDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "taskform",
		Subsystem: "outbox",
		Name:      "flush_duration_seconds",
		Help:      "Time spent listing and delivering pending entries per flush.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 10),
	})
)

func init() {
	prometheus.MustRegister(enqueuedCounter, deliveredCounter, failedCounter, pendingGauge, flushDuration)
}
