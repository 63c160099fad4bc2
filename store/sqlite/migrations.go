package sqlite

// migration is a named schema change applied exactly once, in order.
type migration struct {
	name string
	sql  string
}

var migrations = []migration{
	{
		name: "0001_jobs",
		sql: `
CREATE TABLE IF NOT EXISTS toil_jobs (
	id            TEXT PRIMARY KEY,
	type          TEXT NOT NULL,
	payload       BLOB,
	status        TEXT NOT NULL DEFAULT 'pending',
	priority      INTEGER NOT NULL DEFAULT 10,
	max_retries   INTEGER NOT NULL DEFAULT 3,
	retry_count   INTEGER NOT NULL DEFAULT 0,
	last_error    TEXT NOT NULL DEFAULT '',
	result        BLOB,
	duration_ms   INTEGER NOT NULL DEFAULT 0,
	worker_id     TEXT,
	scheduled_for TIMESTAMP NOT NULL,
	started_at    TIMESTAMP,
	completed_at  TIMESTAMP,
	timeout_ms    INTEGER NOT NULL DEFAULT 0,
	created_at    TIMESTAMP NOT NULL,
	updated_at    TIMESTAMP NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_toil_jobs_claim ON toil_jobs (status, scheduled_for);
CREATE INDEX IF NOT EXISTS idx_toil_jobs_type  ON toil_jobs (type);
CREATE INDEX IF NOT EXISTS idx_toil_jobs_order ON toil_jobs (priority, created_at);
`,
	},
}
