package history

import (
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// =============================================================================
// Pipeline run operations
// =============================================================================

// CreatePipelineRun records the start of a pipeline run
func (db *DB) CreatePipelineRun(run *PipelineRun) error {
	query := `
		INSERT INTO pipeline_runs (run_id, stage, work_dir, strategy, started_at, completed_at, jobs, failed, incomplete, status, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := db.Exec(query,
		run.RunID,
		run.Stage,
		run.WorkDir,
		run.Strategy,
		run.StartedAt,
		run.CompletedAt,
		run.Jobs,
		run.Failed,
		run.Incomplete,
		run.Status,
		run.Error,
	)

	return err
}

// CompletePipelineRun stores the final counters and status of a run
func (tx *Tx) CompletePipelineRun(run *PipelineRun) error {
	now := time.Now()
	run.CompletedAt = &now

	query := `
		UPDATE pipeline_runs
		SET strategy = ?, completed_at = ?, jobs = ?, failed = ?, incomplete = ?, status = ?, error = ?
		WHERE run_id = ?
	`

	result, err := tx.Exec(query,
		run.Strategy,
		run.CompletedAt,
		run.Jobs,
		run.Failed,
		run.Incomplete,
		run.Status,
		run.Error,
		run.RunID,
	)
	if err != nil {
		return err
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}

	if rows == 0 {
		return fmt.Errorf("%w: run %s", ErrNotFound, run.RunID)
	}

	return nil
}

// GetPipelineRun retrieves a pipeline run by ID
func (db *DB) GetPipelineRun(runID string) (*PipelineRun, error) {
	query := `
		SELECT run_id, stage, work_dir, strategy, started_at, completed_at, jobs, failed, incomplete, status, error
		FROM pipeline_runs
		WHERE run_id = ?
	`

	run, err := scanPipelineRun(db.QueryRow(query, runID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: run %s", ErrNotFound, runID)
	}
	if err != nil {
		return nil, err
	}

	return run, nil
}

// GetRecentPipelineRuns retrieves the latest runs, newest first
func (db *DB) GetRecentPipelineRuns(limit int) ([]PipelineRun, error) {
	query := `
		SELECT run_id, stage, work_dir, strategy, started_at, completed_at, jobs, failed, incomplete, status, error
		FROM pipeline_runs
		ORDER BY started_at DESC
		LIMIT ?
	`

	rows, err := db.Query(query, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []PipelineRun{}
	for rows.Next() {
		run, err := scanPipelineRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *run)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanPipelineRun(row rowScanner) (*PipelineRun, error) {
	run := &PipelineRun{}
	err := row.Scan(
		&run.RunID,
		&run.Stage,
		&run.WorkDir,
		&run.Strategy,
		&run.StartedAt,
		&run.CompletedAt,
		&run.Jobs,
		&run.Failed,
		&run.Incomplete,
		&run.Status,
		&run.Error,
	)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// =============================================================================
// Job run operations
// =============================================================================

// CreateJobRun records a job outcome within a transaction
func (tx *Tx) CreateJobRun(run *JobRun) error {
	query := `
		INSERT INTO job_runs (job_id, run_id, base, step_index, command, output, status, exit_code)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`

	_, err := tx.Exec(query,
		run.JobID,
		run.RunID,
		run.Base,
		run.Index,
		run.Command,
		run.Output,
		run.Status,
		run.ExitCode,
	)

	return err
}

// GetJobRuns retrieves all job outcomes of a pipeline run in timestep order
func (db *DB) GetJobRuns(runID string) ([]JobRun, error) {
	query := `
		SELECT job_id, run_id, base, step_index, command, output, status, exit_code
		FROM job_runs
		WHERE run_id = ?
		ORDER BY step_index ASC, base ASC
	`

	rows, err := db.Query(query, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := []JobRun{}
	for rows.Next() {
		var run JobRun
		err := rows.Scan(
			&run.JobID,
			&run.RunID,
			&run.Base,
			&run.Index,
			&run.Command,
			&run.Output,
			&run.Status,
			&run.ExitCode,
		)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	if err = rows.Err(); err != nil {
		return nil, err
	}

	return runs, nil
}
