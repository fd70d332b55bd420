package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "docflow"

var (
	RateLimitAllowed = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_allowed_total", Help: "Number of allowed requests by limiter type."},
		[]string{"limiter"},
	)
	RateLimitRejected = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "rate_limit_rejected_total", Help: "Number of rejected requests by limiter type."},
		[]string{"limiter"},
	)

	WorkflowTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "workflow_transitions_total", Help: "Committed document status transitions."},
		[]string{"event", "from", "to"},
	)
	WorkflowRejections = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "workflow_rejections_total", Help: "Workflow operations rejected, by error kind."},
		[]string{"event", "kind"},
	)
	WorkflowRetries = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "workflow_retries_total", Help: "Operations retried after a concurrent modification."},
		[]string{"event"},
	)
	SnapshotFailures = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "revision_snapshot_failures_total", Help: "Revision snapshots that could not be written."},
	)
	OptimisticRollbacks = prometheus.NewCounter(
		prometheus.CounterOpts{Namespace: namespace, Name: "optimistic_rollbacks_total", Help: "Optimistic client updates rolled back after a failed mutation."},
	)
	CacheInvalidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{Namespace: namespace, Name: "cache_invalidations_total", Help: "Cached query keys invalidated, by key family."},
		[]string{"family"},
	)
	StreamSubscribers = prometheus.NewGauge(
		prometheus.GaugeOpts{Namespace: namespace, Name: "event_stream_subscribers", Help: "Open document event streams."},
	)
)

func RegisterCollectors(reg prometheus.Registerer) {
	reg.MustRegister(RateLimitAllowed)
	reg.MustRegister(RateLimitRejected)
	reg.MustRegister(WorkflowTransitions)
	reg.MustRegister(WorkflowRejections)
	reg.MustRegister(WorkflowRetries)
	reg.MustRegister(SnapshotFailures)
	reg.MustRegister(OptimisticRollbacks)
	reg.MustRegister(CacheInvalidations)
	reg.MustRegister(StreamSubscribers)
}
