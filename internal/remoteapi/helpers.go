package remoteapi

import (
	"os"

	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/slurm"
)

// writeScript creates the .slurm directory and writes the batch script,
// mirroring submitter.Submitter.Submit's on-disk layout.
func writeScript(paths slurm.Paths, script []byte) error {
	if err := os.MkdirAll(paths.Dir, 0o755); err != nil {
		return err
	}
	return os.WriteFile(paths.Script, script, 0o755)
}

// remoteFetchTask builds a throwaway Task carrying just enough for the
// Packager to walk the remote filesystem directly: the workdir is already
// absolute (anchored at <remote_base>/<username>/... by the caller), so
// ResolveWorkdir passes it through unchanged.
func remoteFetchTask(taskID, username, workdir string, paths []string) *model.Task {
	return &model.Task{
		TaskID:       taskID,
		Username:     username,
		Target:       model.TargetLocal,
		Workdir:      workdir,
		ResultsPaths: paths,
	}
}
