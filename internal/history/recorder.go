package history

import (
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Recorder buffers job outcomes during a run and writes them together with
// the run's final status in one transaction.
type Recorder struct {
	db     *DB
	logger *slog.Logger

	run    *PipelineRun
	buffer []JobRun
}

// NewRecorder creates a recorder writing to db
func NewRecorder(db *DB, logger *slog.Logger) *Recorder {
	return &Recorder{
		db:     db,
		logger: logger,
	}
}

// Begin records the start of a run and returns its ID
func (r *Recorder) Begin(stage, workDir string) (string, error) {
	if r.run != nil {
		return "", fmt.Errorf("history: run %s already in progress", r.run.RunID)
	}

	run := &PipelineRun{
		RunID:     uuid.NewString(),
		Stage:     stage,
		WorkDir:   workDir,
		StartedAt: time.Now(),
		Status:    RunStatusRunning,
	}
	if err := r.db.CreatePipelineRun(run); err != nil {
		return "", fmt.Errorf("failed to record pipeline run: %w", err)
	}

	r.run = run
	r.buffer = make([]JobRun, 0)
	return run.RunID, nil
}

// BufferJob queues a job outcome for the current run
func (r *Recorder) BufferJob(job JobRun) {
	if r.run == nil {
		r.logger.Warn("dropping job outcome recorded outside a run", "job_id", job.JobID)
		return
	}
	job.RunID = r.run.RunID
	r.buffer = append(r.buffer, job)
}

// Finish writes buffered job outcomes and the run's final counters. final
// supplies Strategy, Jobs, Failed, Incomplete, Status and Error.
func (r *Recorder) Finish(final PipelineRun) error {
	if r.run == nil {
		return fmt.Errorf("history: no run in progress")
	}

	run := *r.run
	run.Strategy = final.Strategy
	run.Jobs = final.Jobs
	run.Failed = final.Failed
	run.Incomplete = final.Incomplete
	run.Status = final.Status
	run.Error = final.Error

	err := r.db.inTx(func(tx *Tx) error {
		for i := range r.buffer {
			if err := tx.CreateJobRun(&r.buffer[i]); err != nil {
				return fmt.Errorf("job %s: %w", r.buffer[i].JobID, err)
			}
		}
		return tx.CompletePipelineRun(&run)
	})
	if err != nil {
		return fmt.Errorf("failed to record run outcome: %w", err)
	}

	r.logger.Debug("recorded run history", "run_id", run.RunID, "jobs", len(r.buffer), "status", run.Status)

	r.run = nil
	r.buffer = nil
	return nil
}
