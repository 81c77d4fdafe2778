package httpapi

import (
	"net/http"
	"os"

	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/packager"
	"github.com/lcpu-club/ailabber/internal/slurm"
	"github.com/lcpu-club/ailabber/internal/submitter"
)

func archiveFilename(taskID string) string {
	return packager.ArchiveName(taskID)
}

// readLogs reads a task's stdout/stderr, delegating to the Remote Bridge
// for remote tasks and reading the local .slurm artifacts otherwise.
// Missing files read as an empty string rather than an error — a task
// that hasn't started writing output yet is not a failure.
func (s *Server) readLogs(r *http.Request, t *model.Task) (stdout, stderr string, err error) {
	if t.Target == model.TargetRemote {
		return s.Bridge.Logs(r.Context(), t)
	}

	workdir := submitter.ResolveWorkdir(t.UploadRoot, t.Workdir)
	paths := slurm.ArtifactPaths(workdir, t.TaskID)
	return readFileOrEmpty(paths.Stdout), readFileOrEmpty(paths.Stderr), nil
}

func readFileOrEmpty(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}

// bestEffortCancel issues scancel (local) or a remote cancel forward
// (remote) and logs, but never propagates, a failure: a failed scancel
// must not abort the cancel operation.
func (s *Server) bestEffortCancel(r *http.Request, t *model.Task) {
	var err error
	if t.Target == model.TargetRemote {
		err = s.Bridge.Cancel(r.Context(), *t.SlurmJobID)
	} else {
		err = s.Submitter.Cancel(r.Context(), *t.SlurmJobID)
	}
	if err != nil {
		s.Log.WithError(err).WithField("task_id", t.TaskID).Warn("best-effort scancel failed")
	}
}
