package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	replicaPersistGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskform",
		Subsystem: "store",
		Name:      "last_replica_persisted_timestamp_seconds",
		Help:      "Unix timestamp of the most recent activity replica written to the local store.",
	})
	outboxFlushGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "taskform",
		Subsystem: "outbox",
		Name:      "last_flush_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed outbox flush.",
	})
)

func init() {
	prometheus.MustRegister(replicaPersistGauge, outboxFlushGauge)
}

// RecordReplicaPersisted updates the replica watermark gauge.
func RecordReplicaPersisted(ts time.Time) {
	if ts.IsZero() {
		return
	}
	replicaPersistGauge.Set(float64(ts.Unix()))
}

// RecordOutboxFlushed updates the flush watermark gauge.
func RecordOutboxFlushed(ts time.Time) {
	if ts.IsZero() {
		return
	}
	outboxFlushGauge.Set(float64(ts.Unix()))
}
