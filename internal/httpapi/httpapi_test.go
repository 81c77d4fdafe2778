package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/lcpu-club/ailabber/internal/bridge"
	"github.com/lcpu-club/ailabber/internal/config"
	"github.com/lcpu-club/ailabber/internal/model"
	"github.com/lcpu-club/ailabber/internal/packager"
	"github.com/lcpu-club/ailabber/internal/slurm"
	"github.com/lcpu-club/ailabber/internal/store"
	"github.com/lcpu-club/ailabber/internal/submitter"
)

func fakeBinary(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

// newTestServer builds a full Server with a real Submitter (against fake
// Slurm binaries) and a real Bridge (against a fake rsync on PATH and an
// optional httptest Remote Server), wired the same way cmd/local-proxy
// would wire them.
func newTestServer(t *testing.T, sbatchBody string, remoteHandler http.HandlerFunc) (*Server, *store.SQLiteStore) {
	t.Helper()

	st, err := store.Open(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })

	binDir := t.TempDir()
	fakeBinary(t, binDir, "sbatch", sbatchBody)
	fakeBinary(t, binDir, "sacct", "exit 1")
	fakeBinary(t, binDir, "squeue", "echo '1|RUNNING|node1|2024-01-01T00:00:00'")
	fakeBinary(t, binDir, "scancel", "exit 0")
	fakeBinary(t, binDir, "rsync", "exit 0")
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	adapter := slurm.NewAdapter(slurm.BinaryPaths{
		Sbatch: filepath.Join(binDir, "sbatch"), Sacct: filepath.Join(binDir, "sacct"),
		Squeue: filepath.Join(binDir, "squeue"), Scancel: filepath.Join(binDir, "scancel"),
	}, 5*time.Second)

	log := logrus.New()
	log.SetOutput(os.Stderr)
	entry := log.WithField("component", "test")

	sub := submitter.New(st, adapter, entry)

	var remoteURL string
	if remoteHandler != nil {
		server := httptest.NewServer(remoteHandler)
		t.Cleanup(server.Close)
		remoteURL = server.URL
	}
	cfg := &config.Config{
		SSH: config.SSH{
			Host: "cluster", Port: 22, User: "alice", PrivateKeyPath: "/dev/null",
			RemoteBaseDir: "/remote/home", RemoteServerURL: remoteURL,
		},
		Paths: config.Paths{DataDir: t.TempDir()},
		Slurm: config.Slurm{
			RsyncTimeout: "5s", RemoteControlTimeout: "5s", RemoteSubmitTimeout: "5s", RemoteFetchTimeout: "5s",
		},
	}
	br := bridge.New(cfg, st, entry)
	pkg := packager.New(br)

	srv := New("127.0.0.1:0", st, sub, br, pkg, nil, entry)
	return srv, st
}

func (s *Server) router() http.Handler {
	return s.httpServer.Handler
}

func doRequest(t *testing.T, srv *Server, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	reader := bytes.NewBuffer(nil)
	if body != nil {
		payload, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewBuffer(payload)
	}
	req := httptest.NewRequest(method, path, reader)
	rec := httptest.NewRecorder()
	srv.router().ServeHTTP(rec, req)
	return rec
}

// submitLocalTask submits a local task through the real HTTP handler and
// returns its task id.
func submitLocalTask(t *testing.T, srv *Server, username, workdir string) string {
	t.Helper()
	rec := doRequest(t, srv, http.MethodPost, "/api/submit", map[string]interface{}{
		"username": username, "target": "local", "commands": []string{"echo hi"},
		"upload": workdir, "workdir": ".", "cpus": 1, "memory": "1G", "time_limit": "0:01:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return resp["task_id"].(string)
}

func TestSubmitLocalHappyPath(t *testing.T) {
	workdir := t.TempDir()
	srv, _ := newTestServer(t, "echo 'Submitted batch job 42'", nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/submit", map[string]interface{}{
		"username": "alice", "target": "local", "commands": []string{"echo hi"},
		"upload": workdir, "workdir": ".", "cpus": 1, "memory": "1G", "time_limit": "0:01:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "42", resp["slurm_job_id"])
	require.Equal(t, "local", resp["target"])
}

func TestSubmitValidationError(t *testing.T) {
	srv, _ := newTestServer(t, "echo 'Submitted batch job 1'", nil)
	rec := doRequest(t, srv, http.MethodPost, "/api/submit", map[string]interface{}{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestOwnershipCheckReturns403(t *testing.T) {
	workdir := t.TempDir()
	srv, _ := newTestServer(t, "echo 'Submitted batch job 1'", nil)
	taskID := submitLocalTask(t, srv, "alice", workdir)

	rec := doRequest(t, srv, http.MethodGet, "/api/status/"+taskID+"?username=bob", nil)
	require.Equal(t, http.StatusForbidden, rec.Code)
}

func TestCancelSetsStatusCanceled(t *testing.T) {
	workdir := t.TempDir()
	srv, _ := newTestServer(t, "echo 'Submitted batch job 1'", nil)
	taskID := submitLocalTask(t, srv, "alice", workdir)

	rec := doRequest(t, srv, http.MethodPost, "/api/cancel/"+taskID+"?username=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	statusRec := doRequest(t, srv, http.MethodGet, "/api/status/"+taskID+"?username=alice", nil)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &resp))
	taskBody := resp["task"].(map[string]interface{})
	require.Equal(t, "canceled", taskBody["status"])
}

func TestCancelOnTerminalTaskIsRejected(t *testing.T) {
	workdir := t.TempDir()
	srv, _ := newTestServer(t, "echo 'Submitted batch job 1'", nil)
	taskID := submitLocalTask(t, srv, "alice", workdir)

	first := doRequest(t, srv, http.MethodPost, "/api/cancel/"+taskID+"?username=alice", nil)
	require.Equal(t, http.StatusOK, first.Code)

	second := doRequest(t, srv, http.MethodPost, "/api/cancel/"+taskID+"?username=alice", nil)
	require.Equal(t, http.StatusBadRequest, second.Code)
}

func TestRemoteSubmitWithRsyncFailureMarksFailed(t *testing.T) {
	workdir := t.TempDir()
	srv, st := newTestServer(t, "echo 'Submitted batch job 1'", nil)

	binDir := t.TempDir()
	fakeBinary(t, binDir, "rsync", "exit 23")
	t.Setenv("PATH", binDir+":"+os.Getenv("PATH"))

	rec := doRequest(t, srv, http.MethodPost, "/api/submit", map[string]interface{}{
		"username": "alice", "target": "remote", "commands": []string{"echo hi"},
		"upload": workdir, "workdir": ".", "cpus": 1, "memory": "1G", "time_limit": "0:01:00",
	})
	require.Equal(t, http.StatusInternalServerError, rec.Code)

	tasks, err := st.List(context.Background(), "alice", nil)
	require.NoError(t, err)
	require.Len(t, tasks, 1)
	require.Equal(t, model.StatusFailed, tasks[0].Status)
}

func TestLocalRunAttachSlurmJobID(t *testing.T) {
	workdir := t.TempDir()
	srv, _ := newTestServer(t, "echo 'Submitted batch job 1'", nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/local-run", map[string]interface{}{
		"username": "alice", "commands": []string{"echo hi"}, "upload": workdir,
		"workdir": ".", "cpus": 1, "memory": "1G", "time_limit": "0:01:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	taskID := resp["task_id"].(string)

	attachRec := doRequest(t, srv, http.MethodPost, "/api/local-run/"+taskID+"/slurm", map[string]interface{}{"slurm_job_id": "77"})
	require.Equal(t, http.StatusOK, attachRec.Code)

	statusRec := doRequest(t, srv, http.MethodGet, "/api/status/"+taskID, nil)
	var statusResp map[string]interface{}
	require.NoError(t, json.Unmarshal(statusRec.Body.Bytes(), &statusResp))
	taskBody := statusResp["task"].(map[string]interface{})
	require.Equal(t, "running", taskBody["status"])
	require.Equal(t, "77", taskBody["slurm_job_id"])
}

func TestFetchReturnsZipArchive(t *testing.T) {
	workdir := t.TempDir()
	srv, _ := newTestServer(t, "echo 'Submitted batch job 1'", nil)
	taskID := submitLocalTask(t, srv, "alice", workdir)

	rec := doRequest(t, srv, http.MethodGet, "/api/fetch/"+taskID+"?username=alice", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
}

func TestHealthReportsOK(t *testing.T) {
	srv, _ := newTestServer(t, "echo 'Submitted batch job 1'", nil)
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
}
