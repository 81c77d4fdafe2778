package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// Client is a thin HTTP client for the Local Proxy API: one transport
// handle, one method per call, each call scoped by its own context timeout.
type Client struct {
	baseURL string
	http    *http.Client
	timeout time.Duration
}

// NewClient builds a Client targeting the Local Proxy at baseURL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{baseURL: baseURL, http: &http.Client{}, timeout: timeout}
}

func (c *Client) doJSON(ctx context.Context, method, path string, body interface{}) (map[string]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("encode request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("local proxy unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	var out map[string]interface{}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	if resp.StatusCode >= 400 {
		msg, _ := out["message"].(string)
		if msg == "" {
			msg = fmt.Sprintf("request failed with status %d", resp.StatusCode)
		}
		return out, fmt.Errorf("%s", msg)
	}
	return out, nil
}

// Submit posts a submit request for either the local or remote target.
func (c *Client) Submit(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return c.doJSON(ctx, http.MethodPost, "/api/submit", body)
}

// LocalRun creates a local-run task record without invoking sbatch.
func (c *Client) LocalRun(ctx context.Context, body map[string]interface{}) (map[string]interface{}, error) {
	return c.doJSON(ctx, http.MethodPost, "/api/local-run", body)
}

// AttachSlurmJobID reports a job id the caller submitted out-of-band for a
// local-run task.
func (c *Client) AttachSlurmJobID(ctx context.Context, taskID, slurmJobID string) (map[string]interface{}, error) {
	return c.doJSON(ctx, http.MethodPost, "/api/local-run/"+taskID+"/slurm",
		map[string]interface{}{"slurm_job_id": slurmJobID})
}

// Status fetches one task row.
func (c *Client) Status(ctx context.Context, taskID, username string) (map[string]interface{}, error) {
	return c.doJSON(ctx, http.MethodGet, "/api/status/"+taskID+"?username="+username, nil)
}

// List returns the caller's tasks, optionally filtered by status.
func (c *Client) List(ctx context.Context, username, status string) (map[string]interface{}, error) {
	path := "/api/tasks?username=" + username
	if status != "" {
		path += "&status=" + status
	}
	return c.doJSON(ctx, http.MethodGet, path, nil)
}

// Logs returns a task's stdout/stderr text.
func (c *Client) Logs(ctx context.Context, taskID, username string) (map[string]interface{}, error) {
	return c.doJSON(ctx, http.MethodGet, "/api/logs/"+taskID+"?username="+username, nil)
}

// Cancel cancels a task.
func (c *Client) Cancel(ctx context.Context, taskID, username string) (map[string]interface{}, error) {
	return c.doJSON(ctx, http.MethodPost, "/api/cancel/"+taskID+"?username="+username, nil)
}

// FetchToFile streams a task's results archive to destPath.
func (c *Client) FetchToFile(ctx context.Context, taskID, username, destPath string) error {
	ctx, cancel := context.WithTimeout(ctx, 300*time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"/api/fetch/"+taskID+"?username="+username, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("local proxy unreachable at %s: %w", c.baseURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		var out map[string]interface{}
		_ = json.NewDecoder(resp.Body).Decode(&out)
		msg, _ := out["message"].(string)
		if msg == "" {
			msg = fmt.Sprintf("fetch failed with status %d", resp.StatusCode)
		}
		return fmt.Errorf("%s", msg)
	}

	return writeResponseToFile(resp.Body, destPath)
}
