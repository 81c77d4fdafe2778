package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/model"
)

// submitRequest is the shared body shape for /api/submit and
// /api/local-run: the latter simply omits the sbatch invocation.
type submitRequest struct {
	Username  string   `json:"username"`
	Target    string   `json:"target"`
	Commands  []string `json:"commands"`
	Upload    string   `json:"upload"`
	Ignore    []string `json:"ignore"`
	Workdir   string   `json:"workdir"`
	Logs      []string `json:"logs"`
	Results   []string `json:"results"`
	GPUs      int      `json:"gpus"`
	CPUs      int      `json:"cpus"`
	Memory    string   `json:"memory"`
	TimeLimit string   `json:"time_limit"`
	Partition string   `json:"partition"`
	QOS       string   `json:"qos"`
	Exclude   string   `json:"exclude"`
}

func (req submitRequest) validate() error {
	if req.Username == "" {
		return apperr.Validationf("username is required")
	}
	if req.Upload == "" {
		return apperr.Validationf("upload is required")
	}
	if len(req.Commands) == 0 {
		return apperr.Validationf("at least one command is required")
	}
	if req.CPUs <= 0 {
		return apperr.Validationf("cpus must be positive")
	}
	if req.Memory == "" {
		return apperr.Validationf("memory is required")
	}
	if req.TimeLimit == "" {
		return apperr.Validationf("time_limit is required")
	}
	return nil
}

func (req submitRequest) toTask(target model.Target) *model.Task {
	return &model.Task{
		Username:     req.Username,
		Target:       target,
		Status:       model.StatusPending,
		UploadRoot:   req.Upload,
		Ignore:       req.Ignore,
		Workdir:      req.Workdir,
		Commands:     req.Commands,
		LogsPaths:    req.Logs,
		ResultsPaths: req.Results,
		GPUs:         req.GPUs,
		CPUs:         req.CPUs,
		Memory:       req.Memory,
		TimeLimit:    req.TimeLimit,
		Partition:    req.Partition,
		QOS:          req.QOS,
		Exclude:      req.Exclude,
	}
}

// handleSubmit creates a task and submits it synchronously (local) or
// stages+forwards it (remote) before responding.
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

	var target model.Target
	switch req.Target {
	case "local", "":
		target = model.TargetLocal
	case "remote":
		target = model.TargetRemote
	default:
		writeError(w, apperr.Validationf("unknown target %q", req.Target))
		return
	}

	task := req.toTask(target)
	if err := s.Store.Create(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}

	var submitErr error
	switch target {
	case model.TargetLocal:
		submitErr = s.Submitter.Submit(r.Context(), task)
	case model.TargetRemote:
		submitErr = s.Bridge.Submit(r.Context(), task)
	}
	if submitErr != nil {
		writeError(w, submitErr)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{
		"task_id":      task.TaskID,
		"slurm_job_id": task.SlurmJobID,
		"target":       string(task.Target),
	})
}

// handleLocalRun creates a local-run task record without submitting it:
// the CLI runs sbatch itself and reports the job id back later.
func (s *Server) handleLocalRun(w http.ResponseWriter, r *http.Request) {
	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}
	if err := req.validate(); err != nil {
		writeError(w, err)
		return
	}

	task := req.toTask(model.TargetLocalRun)
	if err := s.Store.Create(r.Context(), task); err != nil {
		writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]interface{}{"task_id": task.TaskID})
}

type attachSlurmJobIDRequest struct {
	SlurmJobID string `json:"slurm_job_id"`
}

// handleAttachSlurmJobID moves a local-run task from pending to running
// once the CLI reports the job id it submitted out-of-band.
func (s *Server) handleAttachSlurmJobID(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]

	var req attachSlurmJobIDRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, apperr.Validationf("invalid request body: %v", err))
		return
	}
	if req.SlurmJobID == "" {
		writeError(w, apperr.Validationf("slurm_job_id is required"))
		return
	}

	task, err := s.Store.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if task.Target != model.TargetLocalRun {
		writeError(w, apperr.Validationf("task %q is not a local-run task", taskID))
		return
	}

	if err := s.Store.AttachSlurmJobID(r.Context(), taskID, req.SlurmJobID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{})
}

// handleStatus returns one task row, enforcing ownership when a username
// is supplied.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	username := r.URL.Query().Get("username")

	task, err := s.Store.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := checkOwner(task, username); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"task": taskToJSON(task)})
}

// handleListTasks lists a user's tasks, optionally filtered by status.
func (s *Server) handleListTasks(w http.ResponseWriter, r *http.Request) {
	username := r.URL.Query().Get("username")
	if username == "" {
		writeError(w, apperr.Validationf("username is required"))
		return
	}

	var status *model.Status
	if raw := r.URL.Query().Get("status"); raw != "" {
		st := model.Status(raw)
		if !st.Valid() {
			writeError(w, apperr.Validationf("unknown status %q", raw))
			return
		}
		status = &st
	}

	tasks, err := s.Store.List(r.Context(), username, status)
	if err != nil {
		writeError(w, err)
		return
	}
	out := make([]map[string]interface{}, len(tasks))
	for i, t := range tasks {
		out[i] = taskToJSON(t)
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"tasks": out})
}

// handleLogs returns a task's stdout/stderr text.
func (s *Server) handleLogs(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	username := r.URL.Query().Get("username")

	task, err := s.Store.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := checkOwner(task, username); err != nil {
		writeError(w, err)
		return
	}

	stdout, stderr, err := s.readLogs(r, task)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"stdout": stdout, "stderr": stderr})
}

// handleFetch streams a task's results archive.
func (s *Server) handleFetch(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	username := r.URL.Query().Get("username")

	task, err := s.Store.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := checkOwner(task, username); err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", "attachment; filename=\""+archiveFilename(task.TaskID)+"\"")
	if err := s.Packager.Build(r.Context(), task, w); err != nil {
		s.Log.WithError(err).WithField("task_id", taskID).Error("failed to build results archive")
		return
	}
}

// handleCancel cancels a task: best-effort scancel/remote-cancel forward,
// then an unconditional terminal-state write.
func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	taskID := mux.Vars(r)["task_id"]
	username := r.URL.Query().Get("username")

	task, err := s.Store.Get(r.Context(), taskID)
	if err != nil {
		writeError(w, err)
		return
	}
	if err := checkOwner(task, username); err != nil {
		writeError(w, err)
		return
	}
	if task.Status.Terminal() {
		writeError(w, apperr.Validationf("task %q is already in a terminal state", taskID))
		return
	}

	if task.SlurmJobID != nil {
		s.bestEffortCancel(r, task)
	}
	if err := s.Store.Cancel(r.Context(), taskID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{"status": "canceled"})
}

// handleHealth reports liveness and whether the reconciler is active.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"polling_active": s.Reconciler != nil,
	})
}
