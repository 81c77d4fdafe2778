// Package submitter implements the local submission path: assembling a
// Slurm batch script from a task's fields and invoking sbatch, plus the
// status-query and cancel paths that back both the local target and the
// Reconciler's local polling branch. Submission runs as a fixed phase
// sequence — resolve workdir, create the .slurm directory, build the
// script, write it to disk, invoke sbatch, commit the resulting state —
// failing fast and logging the cause at whichever phase breaks.
package submitter

import (
	"context"
	"os"
	"path/filepath"

	"github.com/sirupsen/logrus"

	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/metrics"
	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/slurm"
	"github.com/lcpu-club/ailabber/internal/store"
)

// Submitter wires the Slurm adapter to the Task Store for the local and
// local-run targets.
type Submitter struct {
	Store   store.Store
	Adapter *slurm.Adapter
	Log     *logrus.Entry
}

// New builds a Submitter.
func New(st store.Store, adapter *slurm.Adapter, log *logrus.Entry) *Submitter {
	return &Submitter{Store: st, Adapter: adapter, Log: log}
}

// ResolveWorkdir resolves a task's working directory: absolute if given as
// such, otherwise relative to upload_root.
func ResolveWorkdir(uploadRoot, workdir string) string {
	if filepath.IsAbs(workdir) {
		return workdir
	}
	return filepath.Join(uploadRoot, workdir)
}

// Submit builds the batch script for t, writes it under
// <workdir>/.slurm/<task_id>.sh, and invokes sbatch. On success the task row
// moves to running with the new Slurm job id; on any failure it moves to
// failed and the underlying error is returned to the caller.
func (s *Submitter) Submit(ctx context.Context, t *model.Task) error {
	workdir := ResolveWorkdir(t.UploadRoot, t.Workdir)
	paths := slurm.ArtifactPaths(workdir, t.TaskID)

	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return s.fail(ctx, t, apperr.Wrap(apperr.KindSubmission, "create .slurm directory", err))
	}

	script := slurm.Build(slurm.ScriptSpec{
		TaskID:    t.TaskID,
		Username:  t.Username,
		Workdir:   workdir,
		Commands:  t.Commands,
		GPUs:      t.GPUs,
		CPUs:      t.CPUs,
		Memory:    t.Memory,
		TimeLimit: t.TimeLimit,
		Partition: t.Partition,
		QOS:       t.QOS,
		Exclude:   t.Exclude,

		OutputFile: paths.Stdout,
		ErrorFile:  paths.Stderr,
	})

	if err := os.WriteFile(paths.Script, script, 0o755); err != nil {
		return s.fail(ctx, t, apperr.Wrap(apperr.KindSubmission, "write batch script", err))
	}

	jobID, err := s.Adapter.Submit(ctx, paths.Script)
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(t.Target), "failed").Inc()
		return s.fail(ctx, t, err)
	}

	if err := s.Store.UpdateStatus(ctx, t.TaskID, model.StatusRunning, model.StatusUpdate{SlurmJobID: &jobID}); err != nil {
		return err
	}
	metrics.SubmissionsTotal.WithLabelValues(string(t.Target), "submitted").Inc()
	metrics.SetTaskStatus(string(model.StatusPending), string(model.StatusRunning))

	t.SlurmJobID = &jobID
	t.Status = model.StatusRunning
	return nil
}

func (s *Submitter) fail(ctx context.Context, t *model.Task, cause error) error {
	s.Log.WithFields(logrus.Fields{"task_id": t.TaskID, "error": cause}).Error("local submission failed")
	if err := s.Store.UpdateStatus(ctx, t.TaskID, model.StatusFailed, model.StatusUpdate{}); err != nil {
		s.Log.WithError(err).Error("failed to mark task failed after submission error")
	}
	metrics.SetTaskStatus(string(model.StatusPending), string(model.StatusFailed))
	return cause
}

// Query asks the Slurm adapter for jobID's current state, mapping it to the
// unified state and exit code the Reconciler commits.
func (s *Submitter) Query(ctx context.Context, jobID string) (slurm.UnifiedState, *int, error) {
	info, err := s.Adapter.Query(ctx, jobID)
	if err != nil {
		return slurm.StateUnknown, nil, err
	}
	if info == nil {
		return slurm.StateUnknown, nil, nil
	}
	return slurm.MapState(info.State), info.ExitCode, nil
}

// Cancel invokes scancel against jobID. This is best-effort: a failure here
// must never abort the caller's cancel operation, so callers should log and
// ignore the returned error rather than propagate it to the HTTP response.
func (s *Submitter) Cancel(ctx context.Context, jobID string) error {
	return s.Adapter.Cancel(ctx, jobID)
}
