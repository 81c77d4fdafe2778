// Package model defines the persisted entities shared by every component of
// the broker: tasks, users, and the audit message log.
package model

import "time"

// Status is the unified task lifecycle state. It is monotonic along the
// terminal transitions: once a task enters Completed, Failed, or Canceled it
// never leaves that state.
type Status string

const (
	StatusPending   Status = "pending"
	StatusRunning   Status = "running"
	StatusCompleted Status = "completed"
	StatusFailed    Status = "failed"
	StatusCanceled  Status = "canceled"
)

// Terminal reports whether s is one of the three states a task cannot leave.
func (s Status) Terminal() bool {
	switch s {
	case StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Valid reports whether s is one of the five recognized statuses.
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusRunning, StatusCompleted, StatusFailed, StatusCanceled:
		return true
	default:
		return false
	}
}

// Target selects which submission path owns a task.
type Target string

const (
	// TargetLocal submits synchronously through the Local Proxy's own
	// Local Submitter: the handler itself invokes sbatch before replying.
	TargetLocal Target = "local"
	// TargetRemote stages the upload root to the remote cluster and
	// delegates submission to the Remote Server over HTTP.
	TargetRemote Target = "remote"
	// TargetLocalRun records a task the caller (the CLI) will submit to
	// Slurm itself; the Local Proxy only attaches the resulting job id
	// after the fact via the local-run/<id>/slurm endpoint.
	TargetLocalRun Target = "local-run"
)

// Task is the central entity: one row per user submission.
type Task struct {
	TaskID      string
	Username    string
	Target      Target
	Status      Status
	SlurmJobID  *string
	UploadRoot  string
	Ignore      []string
	Workdir     string
	Commands    []string
	LogsPaths   []string
	ResultsPaths []string
	GPUs        int
	CPUs        int
	Memory      string
	TimeLimit   string
	Partition   string
	QOS         string
	Exclude     string

	CreatedAt   time.Time
	UpdatedAt   time.Time
	StartedAt   *time.Time
	CompletedAt *time.Time
	ExitCode    *int
}

// QueuedPaths returns the union of LogsPaths and ResultsPaths, the set the
// Result Packager walks when assembling an archive. Order is logs first,
// then results, with duplicates removed while preserving first occurrence.
func (t *Task) QueuedPaths() []string {
	seen := make(map[string]struct{}, len(t.LogsPaths)+len(t.ResultsPaths))
	out := make([]string, 0, len(t.LogsPaths)+len(t.ResultsPaths))
	for _, p := range append(append([]string{}, t.LogsPaths...), t.ResultsPaths...) {
		if _, ok := seen[p]; ok {
			continue
		}
		seen[p] = struct{}{}
		out = append(out, p)
	}
	return out
}

// StatusUpdate describes the fields update_status may apply alongside a
// status transition. Nil fields are left untouched.
type StatusUpdate struct {
	SlurmJobID *string
	ExitCode   *int
}
