package slurm

import "strings"

// UnifiedState is the broker's unified view of a Slurm job's state, before
// it is reconciled onto a task's Status.
type UnifiedState string

const (
	StatePending   UnifiedState = "pending"
	StateRunning   UnifiedState = "running"
	StateCompleted UnifiedState = "completed"
	StateCanceled  UnifiedState = "canceled"
	StateFailed    UnifiedState = "failed"
	// StateUnknown covers any Slurm state not listed in the mapping table;
	// the Reconciler treats it as a no-op.
	StateUnknown UnifiedState = "unknown"
)

// slurmStateMap is the case-sensitive state mapping table. The base token
// is matched after stripping a trailing " (Reason)" suffix (e.g. "PENDING
// (Resources)" → "PENDING").
var slurmStateMap = map[string]UnifiedState{
	"PENDING":       StatePending,
	"RUNNING":       StateRunning,
	"COMPLETED":     StateCompleted,
	"CANCELLED":     StateCanceled,
	"FAILED":        StateFailed,
	"TIMEOUT":       StateFailed,
	"NODE_FAIL":     StateFailed,
	"PREEMPTED":     StateFailed,
	"OUT_OF_MEMORY": StateFailed,
}

// MapState maps a raw Slurm state token to the unified state. Any state not
// listed maps to StateUnknown, which the Reconciler must treat as a no-op
// rather than a transition.
func MapState(rawState string) UnifiedState {
	base := rawState
	if idx := strings.IndexByte(rawState, ' '); idx >= 0 {
		base = rawState[:idx]
	}
	if state, ok := slurmStateMap[base]; ok {
		return state
	}
	return StateUnknown
}
