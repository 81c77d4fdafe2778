// Package store implements the Task Store: durable, ACID, single-row-
// serialized task records backed by SQLite. Every write that touches more
// than one row — such as creating a task and bumping the owning user's
// task counter — runs inside a single transaction so a crash mid-write never
// leaves the two out of sync.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/google/uuid"
	"github.com/lcpu-club/ailabber/internal/apperr"
	"github.com/lcpu-club/ailabber/internal/model"
)

// Store is the Task Store's operation surface. Every implementation must be
// safe for concurrent use; row mutations are serialized per task_id by the
// backing SQL engine's transactional semantics.
type Store interface {
	Create(ctx context.Context, t *model.Task) error
	Get(ctx context.Context, taskID string) (*model.Task, error)
	List(ctx context.Context, username string, status *model.Status) ([]*model.Task, error)
	ListActive(ctx context.Context) ([]*model.Task, error)
	UpdateStatus(ctx context.Context, taskID string, newStatus model.Status, update model.StatusUpdate) error
	Cancel(ctx context.Context, taskID string) error
	AttachSlurmJobID(ctx context.Context, taskID, slurmJobID string) error
	LogMessage(ctx context.Context, msg model.Message) error
	Close() error
}

// SQLiteStore is the sole Store implementation.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates (if needed) and opens the SQLite database at path, applying
// the schema idempotently. There is no migration tooling; schema evolution
// here is limited to CREATE TABLE/INDEX IF NOT EXISTS.
func Open(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path+"?_journal_mode=WAL&_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("store: open %q: %w", path, err)
	}
	db.SetMaxOpenConns(1) // single-writer per row; avoid SQLITE_BUSY under WAL

	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: apply schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close closes the underlying database handle.
func (s *SQLiteStore) Close() error { return s.db.Close() }

// Create inserts a pending row with a freshly generated task id and
// increments the owning user's task counter, both in one transaction.
func (s *SQLiteStore) Create(ctx context.Context, t *model.Task) error {
	if t.TaskID == "" {
		t.TaskID = generateTaskID()
	}
	now := time.Now().UTC()
	t.Status = model.StatusPending
	t.CreatedAt = now
	t.UpdatedAt = now

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store: begin create tx", err)
	}
	defer tx.Rollback()

	ignoreJSON, _ := json.Marshal(t.Ignore)
	commandsJSON, _ := json.Marshal(t.Commands)
	logsJSON, _ := json.Marshal(t.LogsPaths)
	resultsJSON, _ := json.Marshal(t.ResultsPaths)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO tasks (
			task_id, username, target, status, slurm_job_id, upload_root,
			ignore_json, workdir, commands_json, logs_json, results_json,
			gpus, cpus, memory, time_limit, partition, qos, exclude_nodes,
			created_at, updated_at
		) VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		t.TaskID, t.Username, string(t.Target), string(t.Status), nil, t.UploadRoot,
		string(ignoreJSON), t.Workdir, string(commandsJSON), string(logsJSON), string(resultsJSON),
		t.GPUs, t.CPUs, t.Memory, t.TimeLimit, t.Partition, t.QOS, t.Exclude,
		formatTime(&t.CreatedAt), formatTime(&t.UpdatedAt),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store: insert task", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (username, task_count) VALUES (?, 1)
		ON CONFLICT(username) DO UPDATE SET task_count = task_count + 1`,
		t.Username,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store: bump user counter", err)
	}

	if err := tx.Commit(); err != nil {
		return apperr.Wrap(apperr.KindInternal, "store: commit create tx", err)
	}
	return nil
}

// Get returns the row for taskID, or a KindNotFound error.
func (s *SQLiteStore) Get(ctx context.Context, taskID string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, selectColumns+` WHERE task_id = ?`, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, apperr.NotFoundf("task %q not found", taskID)
	}
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store: get task", err)
	}
	return t, nil
}

// List returns tasks owned by username, optionally filtered by status,
// newest first.
func (s *SQLiteStore) List(ctx context.Context, username string, status *model.Status) ([]*model.Task, error) {
	query := selectColumns + ` WHERE username = ?`
	args := []interface{}{username}
	if status != nil {
		query += ` AND status = ?`
		args = append(args, string(*status))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store: list tasks", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "store: scan task row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// ListActive returns every task across every user whose status is pending
// or running, oldest first — the Reconciler's per-iteration work list. No
// work is ever done on terminal tasks.
func (s *SQLiteStore) ListActive(ctx context.Context) ([]*model.Task, error) {
	query := selectColumns + ` WHERE status IN ('pending', 'running') ORDER BY created_at ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, apperr.Wrap(apperr.KindInternal, "store: list active tasks", err)
	}
	defer rows.Close()

	var out []*model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, apperr.Wrap(apperr.KindInternal, "store: scan task row", err)
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// UpdateStatus applies a state transition: it rejects transitions out of
// terminal states, sets started_at on first entry to running, sets
// completed_at (and exit_code, if given) on first entry to any terminal
// state, and is a no-op — updated_at included — when new_status repeats the
// current status and carries no new slurm_job_id or exit_code.
func (s *SQLiteStore) UpdateStatus(ctx context.Context, taskID string, newStatus model.Status, update model.StatusUpdate) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store: begin update tx", err)
	}
	defer tx.Rollback()

	row := tx.QueryRowContext(ctx, selectColumns+` WHERE task_id = ? `, taskID)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return apperr.NotFoundf("task %q not found", taskID)
	}
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store: read task for update", err)
	}

	if t.Status.Terminal() {
		// A task already in a terminal state never transitions again,
		// regardless of what newStatus was requested.
		return nil
	}

	slurmJobID := t.SlurmJobID
	if update.SlurmJobID != nil {
		slurmJobID = update.SlurmJobID
	}
	if newStatus == t.Status && update.ExitCode == nil && update.SlurmJobID == nil {
		// Nothing actually changes: skip the write entirely so a repeated
		// no-op call (e.g. running -> running on every reconciler tick)
		// doesn't churn updated_at.
		return tx.Commit()
	}

	now := time.Now().UTC()
	startedAt := t.StartedAt
	completedAt := t.CompletedAt
	exitCode := t.ExitCode

	if newStatus == model.StatusRunning && t.StartedAt == nil {
		startedAt = &now
	}
	if newStatus.Terminal() && t.CompletedAt == nil {
		completedAt = &now
		if update.ExitCode != nil {
			exitCode = update.ExitCode
		}
	}

	_, err = tx.ExecContext(ctx, `
		UPDATE tasks SET
			status = ?, slurm_job_id = ?, started_at = ?, completed_at = ?,
			exit_code = ?, updated_at = ?
		WHERE task_id = ?`,
		string(newStatus), slurmJobID, formatTime(startedAt), formatTime(completedAt),
		exitCode, formatTime(&now), taskID,
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store: apply update_status", err)
	}
	return tx.Commit()
}

// Cancel sets status to canceled from any non-terminal state; it is a
// no-op on a task already in a terminal state.
func (s *SQLiteStore) Cancel(ctx context.Context, taskID string) error {
	return s.UpdateStatus(ctx, taskID, model.StatusCanceled, model.StatusUpdate{})
}

// AttachSlurmJobID moves a local-run task from pending to running with the
// given Slurm job id, implementing POST /api/local-run/<task_id>/slurm.
func (s *SQLiteStore) AttachSlurmJobID(ctx context.Context, taskID, slurmJobID string) error {
	return s.UpdateStatus(ctx, taskID, model.StatusRunning, model.StatusUpdate{SlurmJobID: &slurmJobID})
}

// LogMessage appends an audit entry. Purely observational.
func (s *SQLiteStore) LogMessage(ctx context.Context, msg model.Message) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (direction, type, payload, created_at)
		VALUES (?, ?, ?, ?)`,
		string(msg.Direction), msg.Type, msg.Payload, formatTime(timePtr(time.Now().UTC())),
	)
	if err != nil {
		return apperr.Wrap(apperr.KindInternal, "store: log message", err)
	}
	return nil
}

const selectColumns = `
SELECT task_id, username, target, status, slurm_job_id, upload_root,
       ignore_json, workdir, commands_json, logs_json, results_json,
       gpus, cpus, memory, time_limit, partition, qos, exclude_nodes,
       created_at, updated_at, started_at, completed_at, exit_code
FROM tasks`

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(row scanner) (*model.Task, error) {
	var t model.Task
	var target, status string
	var slurmJobID sql.NullString
	var ignoreJSON, commandsJSON, logsJSON, resultsJSON string
	var createdAt, updatedAt string
	var startedAt, completedAt sql.NullString
	var exitCode sql.NullInt64

	err := row.Scan(
		&t.TaskID, &t.Username, &target, &status, &slurmJobID, &t.UploadRoot,
		&ignoreJSON, &t.Workdir, &commandsJSON, &logsJSON, &resultsJSON,
		&t.GPUs, &t.CPUs, &t.Memory, &t.TimeLimit, &t.Partition, &t.QOS, &t.Exclude,
		&createdAt, &updatedAt, &startedAt, &completedAt, &exitCode,
	)
	if err != nil {
		return nil, err
	}

	t.Target = model.Target(target)
	t.Status = model.Status(status)
	if slurmJobID.Valid {
		v := slurmJobID.String
		t.SlurmJobID = &v
	}
	_ = json.Unmarshal([]byte(ignoreJSON), &t.Ignore)
	_ = json.Unmarshal([]byte(commandsJSON), &t.Commands)
	_ = json.Unmarshal([]byte(logsJSON), &t.LogsPaths)
	_ = json.Unmarshal([]byte(resultsJSON), &t.ResultsPaths)

	if ts, err := parseTime(createdAt); err == nil {
		t.CreatedAt = ts
	}
	if ts, err := parseTime(updatedAt); err == nil {
		t.UpdatedAt = ts
	}
	if startedAt.Valid {
		if ts, err := parseTime(startedAt.String); err == nil {
			t.StartedAt = &ts
		}
	}
	if completedAt.Valid {
		if ts, err := parseTime(completedAt.String); err == nil {
			t.CompletedAt = &ts
		}
	}
	if exitCode.Valid {
		v := int(exitCode.Int64)
		t.ExitCode = &v
	}
	return &t, nil
}

func generateTaskID() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")[:12]
}

const timeLayout = time.RFC3339Nano

func formatTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return t.UTC().Format(timeLayout)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(timeLayout, s)
}

func timePtr(t time.Time) *time.Time { return &t }
