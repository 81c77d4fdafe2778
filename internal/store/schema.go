package store

const schema = `
CREATE TABLE IF NOT EXISTS users (
	username   TEXT PRIMARY KEY,
	task_count INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS tasks (
	task_id        TEXT PRIMARY KEY,
	username       TEXT NOT NULL,
	target         TEXT NOT NULL,
	status         TEXT NOT NULL,
	slurm_job_id   TEXT,
	upload_root    TEXT NOT NULL,
	ignore_json    TEXT NOT NULL DEFAULT '[]',
	workdir        TEXT NOT NULL,
	commands_json  TEXT NOT NULL DEFAULT '[]',
	logs_json      TEXT NOT NULL DEFAULT '[]',
	results_json   TEXT NOT NULL DEFAULT '[]',
	gpus           INTEGER NOT NULL DEFAULT 0,
	cpus           INTEGER NOT NULL DEFAULT 0,
	memory         TEXT NOT NULL DEFAULT '',
	time_limit     TEXT NOT NULL DEFAULT '',
	partition      TEXT NOT NULL DEFAULT '',
	qos            TEXT NOT NULL DEFAULT '',
	exclude_nodes  TEXT NOT NULL DEFAULT '',
	created_at     TEXT NOT NULL,
	updated_at     TEXT NOT NULL,
	started_at     TEXT,
	completed_at   TEXT,
	exit_code      INTEGER
);

CREATE INDEX IF NOT EXISTS idx_tasks_username ON tasks(username);
CREATE INDEX IF NOT EXISTS idx_tasks_status   ON tasks(status);
CREATE INDEX IF NOT EXISTS idx_tasks_created  ON tasks(created_at);

CREATE TABLE IF NOT EXISTS messages (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	direction  TEXT NOT NULL,
	type       TEXT NOT NULL,
	payload    BLOB NOT NULL,
	created_at TEXT NOT NULL
);
`
