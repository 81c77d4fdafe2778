// Package remoteapi implements the Remote Server's HTTP API: the same
// script-building and state-parsing logic as the local submission path,
// but anchored at <remote_base>/<username>/ and exposed over HTTP so the
// Local Proxy's Remote Bridge can drive it from across the SSH tunnel.
package remoteapi

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"

	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/slurm"
)

// Server implements the Remote Server HTTP API. It has no Task Store of
// its own: every call carries the context it needs (workdir, commands,
// paths), since the Local Proxy's Remote Bridge is the only caller and it
// already owns the durable task record.
type Server struct {
	Adapter *slurm.Adapter
	Log     *logrus.Entry

	httpServer *http.Server
}

// New builds a Server and wires its router.
func New(addr string, adapter *slurm.Adapter, log *logrus.Entry) *Server {
	s := &Server{Adapter: adapter, Log: log}

	router := mux.NewRouter()
	api := router.PathPrefix("/api").Subrouter()
	api.HandleFunc("/submit", s.handleSubmit).Methods(http.MethodPost)
	api.HandleFunc("/status/{slurm_job_id}", s.handleStatus).Methods(http.MethodGet)
	api.HandleFunc("/cancel/{slurm_job_id}", s.handleCancel).Methods(http.MethodPost)
	api.HandleFunc("/logs/{task_id}", s.handleLogs).Methods(http.MethodGet)
	api.HandleFunc("/fetch/{task_id}", s.handleFetch).Methods(http.MethodGet)
	router.HandleFunc("/health", s.handleHealth).Methods(http.MethodGet)

	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  5 * time.Second,
		WriteTimeout: 310 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Start begins serving in a background goroutine.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.Log.WithError(err).Error("remote server http server failed")
		}
	}()
}

// Stop gracefully shuts the server down.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	message := err.Error()
	if appErr, ok := apperr.As(err); ok {
		status = appErr.HTTPStatus()
		message = appErr.Error()
	}
	writeJSON(w, status, map[string]string{"error": message, "message": message})
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func readFileOrEmpty(path string) string {
	data, err := os.ReadFile(path)
	if err != nil {
		return ""
	}
	return string(data)
}
