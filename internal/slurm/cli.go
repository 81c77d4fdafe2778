package slurm

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/metrics"
)

// BinaryPaths names the exact binaries invoked: sbatch, sacct, squeue,
// scancel — never any other program.
type BinaryPaths struct {
	Sbatch  string
	Sacct   string
	Squeue  string
	Scancel string
}

// DefaultBinaryPaths resolves the four Slurm binaries by bare name, letting
// PATH lookup find them.
func DefaultBinaryPaths() BinaryPaths {
	return BinaryPaths{Sbatch: "sbatch", Sacct: "sacct", Squeue: "squeue", Scancel: "scancel"}
}

// Adapter runs the Slurm CLI tools and parses their output. A single
// instance is shared by the Local Submitter and the Remote Server.
type Adapter struct {
	Bin     BinaryPaths
	Timeout time.Duration // applies to every invocation in this package
}

// NewAdapter builds an Adapter with the given binary paths and a shared
// command timeout.
func NewAdapter(bin BinaryPaths, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Adapter{Bin: bin, Timeout: timeout}
}

var submittedJobRe = regexp.MustCompile(`Submitted batch job (\d+)`)

// Submit invokes sbatch against scriptPath. It does not write the script
// itself: the caller renders it with Build and writes it to disk first.
// Success is exit status 0 and a stdout line matching
// "Submitted batch job <digits>"; anything else is a submission failure.
func (a *Adapter) Submit(ctx context.Context, scriptPath string) (jobID string, err error) {
	stdout, _, err := a.run(ctx, "sbatch", a.Bin.Sbatch, scriptPath)
	if err != nil {
		return "", apperr.Wrap(apperr.KindSubmission, "sbatch failed", err)
	}
	match := submittedJobRe.FindStringSubmatch(stdout)
	if match == nil {
		return "", apperr.New(apperr.KindSubmission, fmt.Sprintf("could not parse sbatch output: %q", stdout))
	}
	return match[1], nil
}

// JobInfo is the parsed result of a status query.
type JobInfo struct {
	JobID     string
	State     string // raw Slurm state token, e.g. "COMPLETED"
	ExitCode  *int
	NodeList  string
	StartTime string
	EndTime   string
}

// Query asks for a job's current state via sacct, falling back to squeue
// when sacct returns no rows (job still pending or very recent).
func (a *Adapter) Query(ctx context.Context, jobID string) (*JobInfo, error) {
	stdout, _, err := a.run(ctx, "sacct", a.Bin.Sacct,
		"-j", jobID,
		"--format=JobID,State,ExitCode,NodeList,Start,End",
		"--noheader", "--parsable2",
	)
	if err == nil {
		if info := parseSacct(stdout); info != nil {
			return info, nil
		}
	}

	stdout, _, sqErr := a.run(ctx, "squeue", a.Bin.Squeue, "-j", jobID, "-h", "-o", "%i|%T|%N|%S")
	if sqErr != nil {
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "sacct and squeue both failed", err)
		}
		return nil, apperr.Wrap(apperr.KindInternal, "squeue failed", sqErr)
	}
	return parseSqueue(stdout), nil
}

// Cancel invokes scancel against jobID. Exit 0 is success; any other exit
// returns the captured stderr as the error.
func (a *Adapter) Cancel(ctx context.Context, jobID string) error {
	_, stderr, err := a.run(ctx, "scancel", a.Bin.Scancel, jobID)
	if err != nil {
		return apperr.Wrap(apperr.KindSubmission, fmt.Sprintf("scancel failed: %s", strings.TrimSpace(stderr)), err)
	}
	return nil
}

// run spawns name with args as an argument vector (never a shell string),
// enforcing the shared command timeout, and records its duration.
func (a *Adapter) run(ctx context.Context, label, name string, args ...string) (stdout, stderr string, err error) {
	timer := prometheusTimer(label)
	defer timer()

	ctx, cancel := context.WithTimeout(ctx, a.Timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, name, args...)
	cmd.Env = os.Environ()
	var outBuf, errBuf bytes.Buffer
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf

	runErr := cmd.Run()
	stdout, stderr = outBuf.String(), errBuf.String()

	if ctx.Err() == context.DeadlineExceeded {
		return stdout, stderr, fmt.Errorf("%s: timed out after %s", name, a.Timeout)
	}
	if runErr != nil {
		return stdout, stderr, fmt.Errorf("%s: %w: %s", name, runErr, strings.TrimSpace(stderr))
	}
	return stdout, stderr, nil
}

func prometheusTimer(label string) func() {
	start := time.Now()
	return func() {
		metrics.SlurmCommandDuration.WithLabelValues(label).Observe(time.Since(start).Seconds())
	}
}

// parseSacct parses one non-empty, non-.batch/.extern line of sacct's
// --parsable2 output: JobID|State|ExitCode|NodeList|Start|End.
func parseSacct(stdout string) *JobInfo {
	lines := strings.Split(strings.TrimSpace(stdout), "\n")
	for _, line := range lines {
		if line == "" || strings.Contains(line, ".batch") || strings.Contains(line, ".extern") {
			continue
		}
		parts := strings.Split(line, "|")
		if len(parts) < 2 {
			continue
		}
		info := &JobInfo{JobID: parts[0], State: parts[1]}
		if len(parts) >= 3 {
			if code, ok := parseExitCode(parts[2]); ok {
				info.ExitCode = &code
			}
		}
		if len(parts) >= 4 {
			info.NodeList = parts[3]
		}
		if len(parts) >= 5 && parts[4] != "Unknown" {
			info.StartTime = parts[4]
		}
		if len(parts) >= 6 && parts[5] != "Unknown" {
			info.EndTime = parts[5]
		}
		return info
	}
	return nil
}

// parseSqueue parses squeue -h -o '%i|%T|%N|%S' output for the pending/
// very-recent fallback.
func parseSqueue(stdout string) *JobInfo {
	line := strings.TrimSpace(stdout)
	if line == "" {
		return nil
	}
	parts := strings.Split(line, "|")
	if len(parts) < 2 {
		return nil
	}
	info := &JobInfo{JobID: parts[0], State: parts[1]}
	if len(parts) >= 3 {
		info.NodeList = parts[2]
	}
	if len(parts) >= 4 {
		info.StartTime = parts[3]
	}
	return info
}

// parseExitCode parses sacct's "<code>:<signal>" ExitCode column, taking
// only the code.
func parseExitCode(raw string) (int, bool) {
	codePart := raw
	if idx := strings.IndexByte(raw, ':'); idx >= 0 {
		codePart = raw[:idx]
	}
	code, err := strconv.Atoi(codePart)
	if err != nil {
		return 0, false
	}
	return code, true
}
