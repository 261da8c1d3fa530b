package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	// Pass metrics
	PassDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hopper_pass_duration_seconds",
			Help:    "Time taken for a reconciliation pass in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	PassesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopper_passes_total",
			Help: "Total number of reconciliation passes by outcome",
		},
		[]string{"outcome"},
	)

	LeasesReclaimedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hopper_leases_reclaimed_total",
			Help: "Total number of stale leases reclaimed",
		},
	)

	LeasesActive = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "hopper_leases_active",
			Help: "Currently active leases by agent",
		},
		[]string{"agent"},
	)

	TasksAssignedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hopper_tasks_assigned_total",
			Help: "Total number of unassigned tasks matched to an agent",
		},
	)

	WrappersSpawned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hopper_wrappers_spawned_total",
			Help: "Total number of wrapper subprocesses spawned",
		},
	)

	WrapperSpawnDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "hopper_wrapper_spawn_duration_seconds",
			Help:    "Time taken to spawn and lease a wrapper",
			Buckets: prometheus.DefBuckets,
		},
	)

	SpawnFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hopper_spawn_failures_total",
			Help: "Total number of wrapper spawn failures",
		},
	)

	TaskServiceCallsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "hopper_task_service_calls_total",
			Help: "Total number of task-service RPC calls by tool and outcome",
		},
		[]string{"tool", "outcome"},
	)

	TaskServiceCallDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "hopper_task_service_call_duration_seconds",
			Help:    "Task-service RPC call duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"tool"},
	)

	LockAcquisitionFailuresTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "hopper_lock_acquisition_failures_total",
			Help: "Total number of times the exclusion lock was already held",
		},
	)
)

func init() {
	prometheus.MustRegister(PassDuration)
	prometheus.MustRegister(PassesTotal)
	prometheus.MustRegister(LeasesReclaimedTotal)
	prometheus.MustRegister(LeasesActive)
	prometheus.MustRegister(TasksAssignedTotal)
	prometheus.MustRegister(WrappersSpawned)
	prometheus.MustRegister(WrapperSpawnDuration)
	prometheus.MustRegister(SpawnFailuresTotal)
	prometheus.MustRegister(TaskServiceCallsTotal)
	prometheus.MustRegister(TaskServiceCallDuration)
	prometheus.MustRegister(LockAcquisitionFailuresTotal)
}

// Handler returns the Prometheus HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Timer is a helper for timing operations.
type Timer struct {
	start time.Time
}

// NewTimer creates a new timer.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// ObserveDuration records the duration to a histogram.
func (t *Timer) ObserveDuration(histogram prometheus.Histogram) {
	histogram.Observe(time.Since(t.start).Seconds())
}

// ObserveDurationVec records the duration to a histogram vec with labels.
func (t *Timer) ObserveDurationVec(histogram prometheus.ObserverVec, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(time.Since(t.start).Seconds())
}

// Duration returns the elapsed time since the timer started.
func (t *Timer) Duration() time.Duration {
	return time.Since(t.start)
}
