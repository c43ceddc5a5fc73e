package history

import "time"

const schemaSQL = `
CREATE TABLE IF NOT EXISTS pipeline_runs (
	run_id       TEXT PRIMARY KEY,
	stage        TEXT NOT NULL,
	work_dir     TEXT NOT NULL,
	strategy     TEXT NOT NULL DEFAULT '',
	started_at   TIMESTAMP NOT NULL,
	completed_at TIMESTAMP,
	jobs         INTEGER NOT NULL DEFAULT 0,
	failed       INTEGER NOT NULL DEFAULT 0,
	incomplete   INTEGER NOT NULL DEFAULT 0,
	status       TEXT NOT NULL,
	error        TEXT
);

CREATE TABLE IF NOT EXISTS job_runs (
	job_id      TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL REFERENCES pipeline_runs(run_id),
	base        TEXT NOT NULL,
	step_index  TEXT NOT NULL,
	command     TEXT NOT NULL,
	output      TEXT NOT NULL,
	status      TEXT NOT NULL,
	exit_code   INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_job_runs_run_id ON job_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_pipeline_runs_started_at ON pipeline_runs(started_at);
`

// Pipeline run statuses
const (
	RunStatusRunning     = "running"
	RunStatusCompleted   = "completed"
	RunStatusNothingToDo = "nothing_to_do"
	RunStatusFailed      = "failed"
)

// PipelineRun is one invocation of a pipeline stage
type PipelineRun struct {
	RunID       string
	Stage       string
	WorkDir     string
	Strategy    string
	StartedAt   time.Time
	CompletedAt *time.Time
	Jobs        int
	Failed      int
	Incomplete  int
	Status      string
	Error       *string
}

// JobRun is the recorded outcome of one job
type JobRun struct {
	JobID    string
	RunID    string
	Base     string
	Index    string
	Command  string
	Output   string
	Status   string
	ExitCode int
}

func (db *DB) ensureSchema() error {
	_, err := db.Exec(schemaSQL)
	return err
}
