// Package metrics implements the Prometheus metrics this broker exposes:
// promauto-registered counters, gauges, and histograms covering task
// lifecycle transitions, submission outcomes, reconciler activity, and
// Slurm/rsync subprocess timing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// TaskStatus tracks how many known tasks currently sit in each status.
	// It is keyed by status alone (a handful of fixed values), not by task
	// id, so its cardinality stays bounded even though task rows themselves
	// are never garbage-collected.
	TaskStatus = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "ailabber_task_status",
			Help: "Number of tasks currently in each status",
		},
		[]string{"status"},
	)

	// SubmissionsTotal counts submission attempts by target and outcome.
	SubmissionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ailabber_submissions_total",
			Help: "Total number of submission attempts",
		},
		[]string{"target", "outcome"},
	)

	// ReconcilerIterations counts completed reconciler poll iterations.
	ReconcilerIterations = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "ailabber_reconciler_iterations_total",
			Help: "Total number of reconciler poll iterations completed",
		},
	)

	// ReconcilerTransitions counts state transitions the reconciler commits.
	ReconcilerTransitions = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ailabber_reconciler_transitions_total",
			Help: "Total number of state transitions committed by the reconciler",
		},
		[]string{"target", "to_status"},
	)

	// ReconcilerPollErrors counts poll sub-operation failures, which the
	// reconciler logs-and-skips rather than aborting the iteration for.
	ReconcilerPollErrors = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ailabber_reconciler_poll_errors_total",
			Help: "Total number of per-task poll errors encountered by the reconciler",
		},
		[]string{"target"},
	)

	// SlurmCommandDuration measures how long each Slurm CLI invocation takes.
	SlurmCommandDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ailabber_slurm_command_duration_seconds",
			Help:    "Duration of Slurm CLI subprocess invocations",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"command"},
	)

	// RsyncDuration measures staging push/pull duration.
	RsyncDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ailabber_rsync_duration_seconds",
			Help:    "Duration of rsync staging operations",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		},
		[]string{"direction"},
	)
)

// SetTaskStatus moves one task's count from oldStatus to newStatus: it
// decrements the gauge for the status the task is leaving (if any) and
// increments the gauge for the status it is entering.
func SetTaskStatus(oldStatus, newStatus string) {
	if oldStatus != "" {
		TaskStatus.WithLabelValues(oldStatus).Dec()
	}
	TaskStatus.WithLabelValues(newStatus).Inc()
}
