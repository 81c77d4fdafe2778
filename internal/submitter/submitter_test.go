package submitter

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/slurm"
	"github.com/lcpu-club/ailabber/internal/store"
)

// fakeBinary writes an executable shell script standing in for one of the
// four Slurm binaries, so Adapter can be exercised without a real cluster.
func fakeBinary(t *testing.T, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	script := "#!/bin/sh\n" + body + "\n"
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))
	return path
}

func newTestSubmitter(t *testing.T, sbatchBody string) (*Submitter, *store.SQLiteStore) {
	t.Helper()
	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	dir := t.TempDir()
	bin := slurm.BinaryPaths{
		Sbatch:  fakeBinary(t, dir, "sbatch", sbatchBody),
		Sacct:   fakeBinary(t, dir, "sacct", "exit 1"),
		Squeue:  fakeBinary(t, dir, "squeue", "echo '7|RUNNING|node1|2024-01-01T00:00:00'"),
		Scancel: fakeBinary(t, dir, "scancel", "exit 0"),
	}
	adapter := slurm.NewAdapter(bin, 5*time.Second)

	log := logrus.New()
	log.SetOutput(os.Stderr)

	return New(st, adapter, log.WithField("component", "test")), st
}

func newLocalTask(t *testing.T, st store.Store) *model.Task {
	t.Helper()
	workdir := t.TempDir()
	task := &model.Task{
		Username:   "alice",
		Target:     model.TargetLocal,
		UploadRoot: workdir,
		Workdir:    ".",
		Commands:   []string{"echo hi"},
		CPUs:       1,
		Memory:     "1G",
		TimeLimit:  "0:01:00",
	}
	require.NoError(t, st.Create(context.Background(), task))
	return task
}

func TestSubmitMovesTaskToRunningWithJobID(t *testing.T) {
	ctx := context.Background()
	sub, st := newTestSubmitter(t, "echo 'Submitted batch job 123'")
	task := newLocalTask(t, st)

	require.NoError(t, sub.Submit(ctx, task))
	require.Equal(t, model.StatusRunning, task.Status)
	require.Equal(t, "123", *task.SlurmJobID)

	got, err := st.Get(ctx, task.TaskID)
	require.NoError(t, err)
	require.Equal(t, model.StatusRunning, got.Status)
	require.Equal(t, "123", *got.SlurmJobID)
	require.NotNil(t, got.StartedAt)
}

func TestSubmitWritesScriptUnderDotSlurm(t *testing.T) {
	ctx := context.Background()
	sub, st := newTestSubmitter(t, "echo 'Submitted batch job 1'")
	task := newLocalTask(t, st)

	require.NoError(t, sub.Submit(ctx, task))

	scriptPath := filepath.Join(task.UploadRoot, ".slurm", task.TaskID+".sh")
	contents, err := os.ReadFile(scriptPath)
	require.NoError(t, err)
	require.Contains(t, string(contents), "echo hi")
}

func TestSubmitFailureMarksTaskFailed(t *testing.T) {
	ctx := context.Background()
	sub, st := newTestSubmitter(t, "echo 'sbatch: error: bad script' >&2; exit 1")
	task := newLocalTask(t, st)

	err := sub.Submit(ctx, task)
	require.Error(t, err)

	got, gerr := st.Get(ctx, task.TaskID)
	require.NoError(t, gerr)
	require.Equal(t, model.StatusFailed, got.Status)
}

func TestSubmitFailureOnUnparsableOutput(t *testing.T) {
	ctx := context.Background()
	sub, st := newTestSubmitter(t, "echo 'nonsense output'")
	task := newLocalTask(t, st)

	err := sub.Submit(ctx, task)
	require.Error(t, err)

	got, gerr := st.Get(ctx, task.TaskID)
	require.NoError(t, gerr)
	require.Equal(t, model.StatusFailed, got.Status)
}

func TestQueryFallsBackToSqueue(t *testing.T) {
	sub, _ := newTestSubmitter(t, "echo 'Submitted batch job 1'")

	state, _, err := sub.Query(context.Background(), "7")
	require.NoError(t, err)
	require.Equal(t, slurm.StateRunning, state)
}

func TestCancelDelegatesToAdapter(t *testing.T) {
	sub, _ := newTestSubmitter(t, "echo 'Submitted batch job 1'")
	require.NoError(t, sub.Cancel(context.Background(), "7"))
}
