// Package reconciler implements the single background poller that closes
// the loop between a task row and the Slurm job it names: on each tick it
// re-queries every pending/running task's job state and commits whatever
// transition, if any, the query implies.
//
// A Reconciler is an ordinary value with explicit Start/Stop methods, not a
// package-level singleton: a process wires exactly one instance at startup
// and nothing here depends on global state.
package reconciler

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lcpu-club/ailabber/internal/metrics"
	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/slurm"
	"github.com/lcpu-club/ailabber/internal/store"
)

// Querier looks up a Slurm job's current unified state. Both the Local
// Submitter and the Remote Bridge satisfy this with their own Query
// methods, so the Reconciler never needs to know which transport backs a
// given task's target.
type Querier interface {
	Query(ctx context.Context, jobID string) (slurm.UnifiedState, *int, error)
}

// Reconciler polls the Task Store for active work and reconciles each row
// against its Slurm job's real state. One instance runs per Local Proxy
// process; nothing here is global.
type Reconciler struct {
	Store        store.Store
	Local        Querier // backs target local and local-run
	Remote       Querier // backs target remote
	PollInterval time.Duration
	Log          *logrus.Entry

	cancel context.CancelFunc
	done   chan struct{}
}

// New builds a Reconciler. pollInterval defaults to 5s if non-positive.
func New(st store.Store, local, remote Querier, pollInterval time.Duration, log *logrus.Entry) *Reconciler {
	if pollInterval <= 0 {
		pollInterval = 5 * time.Second
	}
	return &Reconciler{Store: st, Local: local, Remote: remote, PollInterval: pollInterval, Log: log}
}

// Start launches the poll loop in a background goroutine. It is safe to
// call Stop to interrupt it even mid-sleep.
func (r *Reconciler) Start(ctx context.Context) {
	runCtx, cancel := context.WithCancel(ctx)
	r.cancel = cancel
	r.done = make(chan struct{})
	go r.run(runCtx)
}

// Stop signals the poll loop to exit and blocks until it has.
func (r *Reconciler) Stop() {
	if r.cancel == nil {
		return
	}
	r.cancel()
	<-r.done
}

func (r *Reconciler) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.PollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			r.pollOnce(ctx)
		case <-ctx.Done():
			return
		}
	}
}

// pollOnce runs one full iteration: every pending/running task is polled
// independently, so a failure on one never blocks the rest.
func (r *Reconciler) pollOnce(ctx context.Context) {
	metrics.ReconcilerIterations.Inc()

	tasks, err := r.Store.ListActive(ctx)
	if err != nil {
		r.Log.WithError(err).Error("reconciler: list active tasks failed")
		return
	}

	for _, t := range tasks {
		r.pollTask(ctx, t)
	}
}

func (r *Reconciler) pollTask(ctx context.Context, t *model.Task) {
	if t.SlurmJobID == nil {
		// A local-run task not yet attached to a Slurm job id: nothing to
		// poll until the CLI reports one back.
		return
	}

	querier := r.Remote
	if t.Target != model.TargetRemote {
		querier = r.Local
	}

	state, exitCode, err := querier.Query(ctx, *t.SlurmJobID)
	if err != nil {
		metrics.ReconcilerPollErrors.WithLabelValues(string(t.Target)).Inc()
		r.Log.WithFields(logrus.Fields{"task_id": t.TaskID, "slurm_job_id": *t.SlurmJobID, "error": err}).
			Warn("reconciler: poll failed, will retry next iteration")
		return
	}

	newStatus, ok := toModelStatus(state)
	if !ok || newStatus == t.Status {
		return
	}

	update := model.StatusUpdate{}
	if exitCode != nil {
		update.ExitCode = exitCode
	}
	if err := r.Store.UpdateStatus(ctx, t.TaskID, newStatus, update); err != nil {
		r.Log.WithError(err).WithField("task_id", t.TaskID).Error("reconciler: update_status failed")
		return
	}
	metrics.ReconcilerTransitions.WithLabelValues(string(t.Target), string(newStatus)).Inc()
	metrics.SetTaskStatus(string(t.Status), string(newStatus))
}

// toModelStatus maps a Slurm-derived unified state to a task status.
// StateUnknown reports ok=false: the Reconciler must treat it as a no-op,
// never as a transition.
func toModelStatus(state slurm.UnifiedState) (status model.Status, ok bool) {
	switch state {
	case slurm.StatePending:
		return model.StatusPending, true
	case slurm.StateRunning:
		return model.StatusRunning, true
	case slurm.StateCompleted:
		return model.StatusCompleted, true
	case slurm.StateCanceled:
		return model.StatusCanceled, true
	case slurm.StateFailed:
		return model.StatusFailed, true
	default:
		return "", false
	}
}
