// Package httpapi implements the Local Proxy's loopback HTTP API. Every
// handler follows the same four-step shape: validate required fields, look
// up the task and enforce ownership when a username is given, delegate to
// exactly one of the store/submitter/bridge/packager/reconciler components,
// and convert any component error into a structured JSON body.
package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/bridge"
	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/packager"
	"github.com/lcpu-club/ailabber/internal/reconciler"
	"github.com/lcpu-club/ailabber/internal/store"
	"github.com/lcpu-club/ailabber/internal/submitter"
)

// Server implements the Local Proxy HTTP API.
type Server struct {
	Store      store.Store
	Submitter  *submitter.Submitter
	Bridge     *bridge.Bridge
	Packager   *packager.Packager
	Reconciler *reconciler.Reconciler
	Log        *logrus.Entry

	httpServer *http.Server
}

// New builds a Server and wires its router.
func New(addr string, st store.Store, sub *submitter.Submitter, br *bridge.Bridge, pkg *packager.Packager, rec *reconciler.Reconciler, log *logrus.Entry) *Server {
	s := &Server{Store: st, Submitter: sub, Bridge: br, Packager: pkg, Reconciler: rec, Log: log}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/local-run", s.handleLocalRun).Methods(http.MethodPost)
	api.HandleFunc("/local-run/{task_id}/slurm", s.handleAttachSlurmJobID).Methods(http.MethodPost)
	api.HandleFunc("/status/{task_id}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/tasks", s.handleListTasks).Methods(http.MethodGet)
	api.HandleFunc("/logs/{task_id}", s.handleLogs).Methods(http.MethodGet)
	api.HandleFunc("/fetch/{task_id}", s.handleFetch).Methods(http.MethodGet)
	api.HandleFunc("/cancel/{task_id}", s.handleCancel).Methods(http.MethodPost)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 310 * time.Second, // covers the 300s fetch-from-remote path
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Log.WithError(err).Error("local proxy http server failed")
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// writeError converts err into the structured error body every handler
// uses on failure, picking the HTTP status from its Kind.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	if appErr, ok := apperr.As(err); ok {
		status = appErr.HTTPStatus()
		message = appErr.Message
		if appErr.Cause != nil {
			message = appErr.Error()
		}
	}
	writeJSON(w, status, map[string]string{"error": message, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// checkOwner enforces that username (when non-empty) matches t's owner.
func checkOwner(t *model.Task, username string) error {
	if username != "" && t.Username != username {
		return apperr.Forbidden("task does not belong to the requesting user")
	}
	return nil
}

func taskToJSON(t *model.Task) map[string]interface{} {
	return map[string]interface{}{
		"task_id":       t.TaskID,
		"username":      t.Username,
		"target":        string(t.Target),
		"status":        string(t.Status),
		"slurm_job_id":  t.SlurmJobID,
		"workdir":       t.Workdir,
		"created_at":    t.CreatedAt,
		"updated_at":    t.UpdatedAt,
		"started_at":    t.StartedAt,
		"completed_at":  t.CompletedAt,
		"exit_code":     t.ExitCode,
	}
}
