package remoteapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/packager"
	"github.com/lcpu-club/ailabber/internal/slurm"
)

// submitRequest mirrors bridge.SubmitRequest — everything this daemon
// needs to build and run its own batch script, anchored at the workdir
// the Remote Bridge already resolved to <remote_base>/<username>/...
type submitRequest struct {
	TaskID    string   `json:"task_id"`
	Username  string   `json:"username"`
	Workdir   string   `json:"workdir"`
	Commands  []string `json:"commands"`
	GPUs      int      `json:"gpus"`
	CPUs      int      `json:"cpus"`
	Memory    string   `json:"memory"`
	TimeLimit string   `json:"time_limit"`
	Partition string   `json:"partition"`
	QOS       string   `json:"qos"`
	Exclude   string   `json:"exclude"`
}

func (req submitRequest) validate() error {
	if req.TaskID == "" {
		return apperr.Validationf("task_id is required")
	}
	if req.Workdir == "" {
		return apperr.Validationf("workdir is required")
	}
	if len(req.Commands) == 0 {
		return apperr.Validationf("at least one command is required")
	}
	return nil
}

// handleSubmit builds and submits a batch script using the same script
// builder and sbatch-invocation logic as the local submission path.
func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	paths := slurm.ArtifactPaths(req.Workdir, req.TaskID)
	script := slurm.Build(slurm.ScriptSpec{
		TaskID:     req.TaskID,
		Username:   req.Username,
		Workdir:    req.Workdir,
		Commands:   req.Commands,
		GPUs:       req.GPUs,
		CPUs:       req.CPUs,
		Memory:     req.Memory,
		TimeLimit:  req.TimeLimit,
		Partition:  req.Partition,
		QOS:        req.QOS,
		Exclude:    req.Exclude,
		OutputFile: paths.Stdout,
		ErrorFile:  paths.Stderr,
	})

	if err := writeScript(paths, script); err != nil {
		writeError(w, apperr.Wrap(apperr.KindSubmission, "write batch script", err))
		return
	}

	jobID, err := s.Adapter.Submit(r.Context(), paths.Script)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"slurm_job_id": jobID})
}

// handleStatus returns jobID's raw Slurm state and exit code; the caller
// (bridge.Bridge.Query) maps the raw state to the unified state itself.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["slurm_job_id"]
	info, err := s.Adapter.Query(r.Context(), jobID)
	if err != nil {
		writeError(w, err)
		return
	}
	if info == nil {
		writeError(w, apperr.NotFoundf("no status for slurm job %q", jobID))
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"state": info.State, "exit_code": info.ExitCode})
}

// handleCancel scancels jobID.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	jobID := mux.Vars(r)["slurm_job_id"]
	if err := s.Adapter.Cancel(r.Context(), jobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// handleLogs reads stdout/stderr for taskID from the workdir given in the
// query string (?workdir=...).
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	workdir := r.URL.Query().Get("workdir")
	if workdir == "" {
		writeError(w, apperr.Validationf("workdir is required"))
		return
	}

	paths := slurm.ArtifactPaths(workdir, taskID)
	writeJSON(w, http.StatusOK, map[string]string{
		"stdout": readFileOrEmpty(paths.Stdout),
		"stderr": readFileOrEmpty(paths.Stderr),
	})
}

// handleFetch streams a results archive built directly from the remote
// filesystem, using the declared paths forwarded by the Local Proxy.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	username := r.URL.Query().Get("username")
	workdir := r.URL.Query().Get("workdir")
	if workdir == "" {
		writeError(w, apperr.Validationf("workdir is required"))
		return
	}

	var paths []string
	if raw := r.URL.Query().Get("paths"); raw != "" {
		if err := json.Unmarshal([]byte(raw), &paths); err != nil {
			writeError(w, apperr.Validationf("invalid paths: %v", err))
			return
		}
	}

	task := remoteFetchTask(taskID, username, workdir, paths)
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+packager.ArchiveName(taskID)+"\"")
	if err := packager.New(nil).Build(r.Context(), task, w); err != nil {
		s.Log.WithError(err).WithField("task_id", taskID).Error("failed to build results archive")
	}
}

// handleHealth reports liveness.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "ok"})
}
