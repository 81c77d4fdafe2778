package bridge

import (
	"context"
	"io"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/config"
	"github.com/lcpu-club/ailabber/internal/metrics"
	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/slurm"
	"github.com/lcpu-club/ailabber/internal/store"
)

// Bridge implements the remote target: staging a user's upload root,
// pushing it over rsync, and forwarding submit/status/cancel/logs/fetch to
// the Remote Server. One Bridge is shared by every remote submission; the
// per-username staging lock is what keeps concurrent submits from
// corrupting each other's staging tree.
type Bridge struct {
	Store  store.Store
	Remote *RemoteClient
	Log    *logrus.Entry

	ssh          config.SSH
	stagingRoot  string
	rsyncTimeout time.Duration
	locks        *stagingLocks
}

// New builds a Bridge from the static configuration. Durations that fail
// to parse fall back to the listed defaults rather than erroring, mirroring
// config.Load's own tolerant-default posture.
func New(cfg *config.Config, st store.Store, log *logrus.Entry) *Bridge {
	rsyncTimeout := parseDurationOr(cfg.Slurm.RsyncTimeout, time.Hour)
	control := parseDurationOr(cfg.Slurm.RemoteControlTimeout, 10*time.Second)
	submit := parseDurationOr(cfg.Slurm.RemoteSubmitTimeout, 30*time.Second)
	fetch := parseDurationOr(cfg.Slurm.RemoteFetchTimeout, 300*time.Second)

	return &Bridge{
		Store:        st,
		Remote:       NewRemoteClient(cfg.SSH.RemoteServerURL, control, submit, fetch),
		Log:          log,
		ssh:          cfg.SSH,
		stagingRoot:  cfg.Paths.StagingDir(),
		rsyncTimeout: rsyncTimeout,
		locks:        newStagingLocks(),
	}
}

func parseDurationOr(raw string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(raw); err == nil {
		return d
	}
	return fallback
}

// Submit stages t's upload root, pushes it to the remote host, and asks the
// Remote Server to submit it. On any failure along the way the task moves
// to failed; on success it moves to running with the new Slurm job id.
func (b *Bridge) Submit(ctx context.Context, t *model.Task) error {
	lock := b.locks.lockFor(t.Username)
	lock.Lock()
	defer lock.Unlock()

	stagingDir := filepath.Join(b.stagingRoot, t.Username)
	if err := buildStagingTree(t.UploadRoot, stagingDir, t.Ignore); err != nil {
		return b.fail(ctx, t, apperr.Wrap(apperr.KindSubmission, "build staging tree", err))
	}

	if err := pushStaging(ctx, b.ssh, stagingDir, t.Username, b.rsyncTimeout); err != nil {
		return b.fail(ctx, t, err)
	}

	remoteWorkdir := filepath.Join(b.ssh.RemoteBaseDir, t.Username, t.Workdir)
	jobID, err := b.Remote.Submit(ctx, SubmitRequest{
		TaskID:    t.TaskID,
		Username:  t.Username,
		Workdir:   remoteWorkdir,
		Commands:  t.Commands,
		GPUs:      t.GPUs,
		CPUs:      t.CPUs,
		Memory:    t.Memory,
		TimeLimit: t.TimeLimit,
		Partition: t.Partition,
		QOS:       t.QOS,
		Exclude:   t.Exclude,
	})
	if err != nil {
		metrics.SubmissionsTotal.WithLabelValues(string(t.Target), "failed").Inc()
		return b.fail(ctx, t, err)
	}

	if err := b.Store.UpdateStatus(ctx, t.TaskID, model.StatusRunning, model.StatusUpdate{SlurmJobID: &jobID}); err != nil {
		return err
	}
	metrics.SubmissionsTotal.WithLabelValues(string(t.Target), "submitted").Inc()
	metrics.SetTaskStatus(string(model.StatusPending), string(model.StatusRunning))

	t.SlurmJobID = &jobID
	t.Status = model.StatusRunning
	return nil
}

func (b *Bridge) fail(ctx context.Context, t *model.Task, cause error) error {
	b.Log.WithFields(logrus.Fields{"task_id": t.TaskID, "error": cause}).Error("remote submission failed")
	if err := b.Store.UpdateStatus(ctx, t.TaskID, model.StatusFailed, model.StatusUpdate{}); err != nil {
		b.Log.WithError(err).Error("failed to mark task failed after remote submission error")
	}
	metrics.SetTaskStatus(string(model.StatusPending), string(model.StatusFailed))
	return cause
}

// Query asks the Remote Server for jobID's current state.
func (b *Bridge) Query(ctx context.Context, jobID string) (slurm.UnifiedState, *int, error) {
	result, err := b.Remote.Status(ctx, jobID)
	if err != nil {
		return slurm.StateUnknown, nil, err
	}
	return slurm.MapState(result.State), result.ExitCode, nil
}

// Cancel asks the Remote Server to scancel jobID. Best-effort: callers
// should log and ignore a returned error rather than fail the caller's
// cancel operation on it.
func (b *Bridge) Cancel(ctx context.Context, jobID string) error {
	return b.Remote.Cancel(ctx, jobID)
}

// Logs reads a remote task's stdout/stderr text through the Remote Server.
func (b *Bridge) Logs(ctx context.Context, t *model.Task) (stdout, stderr string, err error) {
	remoteWorkdir := filepath.Join(b.ssh.RemoteBaseDir, t.Username, t.Workdir)
	return b.Remote.Logs(ctx, t.TaskID, t.Username, remoteWorkdir)
}

// Fetch streams a remote task's results archive through the Remote
// Server. The caller must close the returned reader.
func (b *Bridge) Fetch(ctx context.Context, t *model.Task) (io.ReadCloser, error) {
	remoteWorkdir := filepath.Join(b.ssh.RemoteBaseDir, t.Username, t.Workdir)
	return b.Remote.Fetch(ctx, t.TaskID, t.Username, remoteWorkdir, t.QueuedPaths())
}
