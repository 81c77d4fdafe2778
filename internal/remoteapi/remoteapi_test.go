package remoteapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/lcpu-club/ailabber/internal/slurm"
)

func fakeBinary(t *testing.T, dir, name, body string) {
	t.Helper()
	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755))
}

func newTestServer(t *testing.T, sbatchBody, sacctBody, squeueBody string) *Server {
	t.Helper()

	binDir := t.TempDir()
	fakeBinary(t, binDir, "sbatch", sbatchBody)
	fakeBinary(t, binDir, "sacct", sacctBody)
	fakeBinary(t, binDir, "squeue", squeueBody)
	fakeBinary(t, binDir, "scancel", "exit 0")

	adapter := slurm.NewAdapter(slurm.BinaryPaths{
		Sbatch: filepath.Join(binDir, "sbatch"), Sacct: filepath.Join(binDir, "sacct"),
		Squeue: filepath.Join(binDir, "squeue"), Scancel: filepath.Join(binDir, "scancel"),
	}, 5*time.Second)

	log := logrus.New()
	log.SetOutput(os.Stderr)
	return New("127.0.0.1:0", adapter, log.WithField("component", "test"))
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
	srv.httpServer.Handler.ServeHTTP(rec, req)
	return rec
}

func TestSubmitReturnsJobID(t *testing.T) {
	workdir := t.TempDir()
	srv := newTestServer(t, "echo 'Submitted batch job 99'", "exit 1", "echo ''")

	rec := doRequest(t, srv, http.MethodPost, "/api/submit", map[string]interface{}{
		"task_id": "task-1", "username": "alice", "workdir": workdir,
		"commands": []string{"echo hi"}, "cpus": 1, "memory": "1G", "time_limit": "0:01:00",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "99", resp["slurm_job_id"])

	_, err := os.Stat(filepath.Join(workdir, ".slurm", "task-1.sh"))
	require.NoError(t, err)
}

func TestSubmitValidationError(t *testing.T) {
	srv := newTestServer(t, "echo 'Submitted batch job 1'", "exit 1", "echo ''")
	rec := doRequest(t, srv, http.MethodPost, "/api/submit", map[string]interface{}{"username": "alice"})
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestStatusReturnsRawState(t *testing.T) {
	srv := newTestServer(t, "echo 'Submitted batch job 1'", "echo '42|RUNNING|0:0|node1|2024-01-01T00:00:00|'", "echo ''")
	rec := doRequest(t, srv, http.MethodGet, "/api/status/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "RUNNING", resp["state"])
}

func TestCancelInvokesScancel(t *testing.T) {
	srv := newTestServer(t, "echo 'Submitted batch job 1'", "exit 1", "echo ''")
	rec := doRequest(t, srv, http.MethodPost, "/api/cancel/42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestLogsReadsArtifactFiles(t *testing.T) {
	srv := newTestServer(t, "echo 'Submitted batch job 1'", "exit 1", "echo ''")
	workdir := t.TempDir()
	dotSlurm := filepath.Join(workdir, ".slurm")
	require.NoError(t, os.MkdirAll(dotSlurm, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dotSlurm, "task-1.out"), []byte("hello stdout"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dotSlurm, "task-1.err"), []byte("hello stderr"), 0o644))

	rec := doRequest(t, srv, http.MethodGet, "/api/logs/task-1?workdir="+workdir, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "hello stdout", resp["stdout"])
	require.Equal(t, "hello stderr", resp["stderr"])
}

func TestLogsMissingArtifactsReturnEmptyStrings(t *testing.T) {
	srv := newTestServer(t, "echo 'Submitted batch job 1'", "exit 1", "echo ''")
	workdir := t.TempDir()

	rec := doRequest(t, srv, http.MethodGet, "/api/logs/task-missing?workdir="+workdir, nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "", resp["stdout"])
	require.Equal(t, "", resp["stderr"])
}

func TestFetchReturnsZipWithDeclaredFile(t *testing.T) {
	srv := newTestServer(t, "echo 'Submitted batch job 1'", "exit 1", "echo ''")
	workdir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(workdir, "result.txt"), []byte("result data"), 0o644))

	pathsJSON, err := json.Marshal([]string{"result.txt"})
	require.NoError(t, err)

	rec := doRequest(t, srv, http.MethodGet,
		"/api/fetch/task-1?username=alice&workdir="+workdir+"&paths="+string(pathsJSON), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "application/zip", rec.Header().Get("Content-Type"))
	require.NotZero(t, rec.Body.Len())
}

func TestFetchRequiresWorkdir(t *testing.T) {
	srv := newTestServer(t, "echo 'Submitted batch job 1'", "exit 1", "echo ''")
	rec := doRequest(t, srv, http.MethodGet, "/api/fetch/task-1?username=alice", nil)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHealthReportsOK(t *testing.T) {
	srv := newTestServer(t, "echo 'Submitted batch job 1'", "exit 1", "echo ''")
	rec := doRequest(t, srv, http.MethodGet, "/health", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Equal(t, "ok", resp["status"])
}
