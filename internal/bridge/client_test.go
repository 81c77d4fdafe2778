package bridge

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/lcpu-club/ailabber/internal/apperr"
)

func newTestClient(t *testing.T, handler http.HandlerFunc) *RemoteClient {
	t.Helper()
	server := httptest.NewServer(handler)
	t.Cleanup(server.Close)
	return NewRemoteClient(server.URL, 2*time.Second, 2*time.Second, 2*time.Second)
}

func TestSubmitReturnsJobID(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/submit", r.URL.Path)
		var req SubmitRequest
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		require.Equal(t, "alice", req.Username)
		_ = json.NewEncoder(w).Encode(submitResponse{SlurmJobID: "55"})
	})

	jobID, err := client.Submit(context.Background(), SubmitRequest{Username: "alice", TaskID: "t1"})
	require.NoError(t, err)
	require.Equal(t, "55", jobID)
}

func TestStatusParsesState(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/status/55", r.URL.Path)
		_ = json.NewEncoder(w).Encode(StatusResult{State: "COMPLETED"})
	})

	result, err := client.Status(context.Background(), "55")
	require.NoError(t, err)
	require.Equal(t, "COMPLETED", result.State)
}

func TestNonOKStatusBecomesRemoteError(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(errorBody{Error: "sacct unavailable"})
	})

	_, err := client.Status(context.Background(), "55")
	require.Error(t, err)
	require.Equal(t, apperr.KindRemote, apperr.KindOf(err))
	require.Contains(t, err.Error(), "sacct unavailable")
}

func TestFetchStreamsBody(t *testing.T) {
	client := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/api/fetch/t1", r.URL.Path)
		require.Equal(t, "alice", r.URL.Query().Get("username"))
		_, _ = w.Write([]byte("zip-bytes"))
	})

	rc, err := client.Fetch(context.Background(), "t1", "alice", "/remote/home/alice", []string{"logs"})
	require.NoError(t, err)
	defer rc.Close()

	body, err := io.ReadAll(rc)
	require.NoError(t, err)
	require.Equal(t, "zip-bytes", string(body))
}

func TestTransportErrorBecomesRemoteUnreachable(t *testing.T) {
	client := NewRemoteClient("http://127.0.0.1:0", time.Second, time.Second, time.Second)
	_, err := client.Status(context.Background(), "55")
	require.Error(t, err)
	require.Equal(t, apperr.KindRemote, apperr.KindOf(err))
}
