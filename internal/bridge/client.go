package bridge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/lcpu-club/ailabber/internal/apperr"
)

// RemoteClient talks to the Remote Server's HTTP API: one struct wrapping a
// single transport handle, one method per call, each call scoped to its own
// context timeout.
type RemoteClient struct {
	BaseURL        string
	HTTP           *http.Client
	ControlTimeout time.Duration // status/cancel, 10s
	SubmitTimeout  time.Duration // submit, 30s
	FetchTimeout   time.Duration // fetch, 300s
}

// NewRemoteClient builds a RemoteClient against baseURL (the loopback
// address an externally-maintained SSH tunnel maps onto the Remote
// Server).
func NewRemoteClient(baseURL string, control, submit, fetch time.Duration) *RemoteClient {
	return &RemoteClient{
		BaseURL:        strings.TrimRight(baseURL, "/"),
		HTTP:           &http.Client{},
		ControlTimeout: control,
		SubmitTimeout:  submit,
		FetchTimeout:   fetch,
	}
}

// SubmitRequest is the body of a remote submit call: everything the Remote
// Server needs to build and run its own batch script.
type SubmitRequest struct {
	TaskID    string   `json:"task_id"`
	Username  string   `json:"username"`
	Workdir   string   `json:"workdir"`
	Commands  []string `json:"commands"`
	GPUs      int      `json:"gpus"`
	CPUs      int      `json:"cpus"`
	Memory    string   `json:"memory"`
	TimeLimit string   `json:"time_limit"`
	Partition string   `json:"partition,omitempty"`
	QOS       string   `json:"qos,omitempty"`
	Exclude   string   `json:"exclude,omitempty"`
}

type submitResponse struct {
	SlurmJobID string `json:"slurm_job_id"`
}

// StatusResult is the Remote Server's answer to a status query, mirroring
// slurm.JobInfo's fields without importing the slurm package into the wire
// contract.
type StatusResult struct {
	State    string `json:"state"`
	ExitCode *int   `json:"exit_code"`
}

// Submit asks the Remote Server to build and submit a batch script for req,
// returning the resulting Slurm job id.
func (c *RemoteClient) Submit(ctx context.Context, req SubmitRequest) (string, error) {
	var resp submitResponse
	if err := c.doJSON(ctx, c.SubmitTimeout, http.MethodPost, "/api/submit", req, &resp); err != nil {
		return "", err
	}
	return resp.SlurmJobID, nil
}

// Status queries the Remote Server for jobID's current state.
func (c *RemoteClient) Status(ctx context.Context, jobID string) (*StatusResult, error) {
	var resp StatusResult
	path := "/api/status/" + url.PathEscape(jobID)
	if err := c.doJSON(ctx, c.ControlTimeout, http.MethodGet, path, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// Cancel asks the Remote Server to scancel jobID.
func (c *RemoteClient) Cancel(ctx context.Context, jobID string) error {
	path := "/api/cancel/" + url.PathEscape(jobID)
	return c.doJSON(ctx, c.ControlTimeout, http.MethodPost, path, nil, nil)
}

type logsResponse struct {
	Stdout string `json:"stdout"`
	Stderr string `json:"stderr"`
}

// Logs reads stdout/stderr text for taskID from the remote host.
func (c *RemoteClient) Logs(ctx context.Context, taskID, username, workdir string) (stdout, stderr string, err error) {
	q := url.Values{"username": {username}, "workdir": {workdir}}
	path := "/api/logs/" + url.PathEscape(taskID) + "?" + q.Encode()
	var resp logsResponse
	if err := c.doJSON(ctx, c.ControlTimeout, http.MethodGet, path, nil, &resp); err != nil {
		return "", "", err
	}
	return resp.Stdout, resp.Stderr, nil
}

// Fetch streams the results archive for taskID from the remote host. The
// caller must close the returned reader.
func (c *RemoteClient) Fetch(ctx context.Context, taskID, username, workdir string, paths []string) (io.ReadCloser, error) {
	pathsJSON, err := json.Marshal(paths)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "encode fetch paths", err)
	}
	q := url.Values{"username": {username}, "workdir": {workdir}, "paths": {string(pathsJSON)}}
	reqURL := c.BaseURL + "/api/fetch/" + url.PathEscape(taskID) + "?" + q.Encode()

	ctx, cancel := context.WithTimeout(ctx, c.FetchTimeout)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		cancel()
		return nil, apperr.Wrap(apperr.KindInternal, "build fetch request", err)
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		cancel()
		return nil, classifyTransportErr(err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		defer cancel()
		return nil, remoteErrorFromBody(resp)
	}
	return &cancelOnCloseBody{ReadCloser: resp.Body, cancel: cancel}, nil
}

// cancelOnCloseBody releases the request's context timeout when the
// response body is closed, so long-lived fetch streams don't leak timers.
type cancelOnCloseBody struct {
	io.ReadCloser
	cancel context.CancelFunc
}

func (b *cancelOnCloseBody) Close() error {
	defer b.cancel()
	return b.ReadCloser.Close()
}

// doJSON performs one request/response round trip, marshaling body (if
// non-nil) as the request payload and unmarshaling the response into out
// (if non-nil).
func (c *RemoteClient) doJSON(ctx context.Context, timeout time.Duration, method, path string, body, out interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return apperr.Wrap(apperr.KindInternal, "encode request", err)
		}
		reader = bytes.NewReader(payload)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, reader)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "build request", err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTP.Do(httpReq)
	if err != nil {
		return classifyTransportErr(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return remoteErrorFromBody(resp)
	}
	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return apperr.Wrap(apperr.KindRemote, "decode remote response", err)
	}
	return nil
}

type errorBody struct {
	Error string `json:"error"`
}

func remoteErrorFromBody(resp *http.Response) error {
	var eb errorBody
	_ = json.NewDecoder(resp.Body).Decode(&eb)
	msg := eb.Error
	if msg == "" {
		msg = resp.Status
	}
	return apperr.New(apperr.KindRemote, fmt.Sprintf("remote server: %s", msg))
}

// classifyTransportErr wraps a transport-level failure (connection refused,
// timeout, tunnel down) as KindRemote.
func classifyTransportErr(err error) error {
	return apperr.Wrap(apperr.KindRemote, "remote server unreachable", err)
}
