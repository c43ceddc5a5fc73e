// Package dispatch executes job lists, either through an external
// batch-parallel executor or one job at a time.
package dispatch

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"os/exec"
	"time"

	"github.com/livinlefevreloca/postproc/internal/joblist"
)

// ErrDispatchInfrastructure means the execution machinery itself failed
// (batch file, executor start, shell start). The run must stop.
var ErrDispatchInfrastructure = errors.New("dispatch: infrastructure failure")

// IsInfrastructure checks if err is a dispatch infrastructure failure
func IsInfrastructure(err error) bool {
	return errors.Is(err, ErrDispatchInfrastructure)
}

// Strategy names
const (
	StrategyParallel   = "parallel"
	StrategySequential = "sequential"
)

// Report summarizes one dispatch.
type Report struct {
	Strategy  string
	Attempted int

	// Failed counts failed jobs. Under the parallel strategy this is the
	// executor's aggregate count and individual job statuses may still be
	// running until reconciled by the caller.
	Failed int

	Elapsed time.Duration
	Jobs    []*joblist.Job
}

// Succeeded returns the number of jobs known to have succeeded.
func (r *Report) Succeeded() int {
	return joblist.CountStatus(r.Jobs, joblist.StatusSucceeded)
}

// Unresolved returns jobs that have no terminal status.
func (r *Report) Unresolved() []*joblist.Job {
	var out []*joblist.Job
	for _, j := range r.Jobs {
		if !j.Status.Terminal() {
			out = append(out, j)
		}
	}
	return out
}

// Strategy runs a non-empty job list to completion, writing the jobs'
// combined output to out line by line.
type Strategy interface {
	Name() string
	Run(ctx context.Context, jobs []*joblist.Job, out io.Writer) (*Report, error)
}

// New picks the parallel strategy when the configured executor is on PATH,
// and the sequential strategy otherwise. Jobs run with workDir as their
// working directory.
func New(cfg Config, workDir string, logger *slog.Logger) Strategy {
	if !cfg.ForceSequential && cfg.ParallelTool != "" {
		tool, err := exec.LookPath(cfg.ParallelTool)
		if err == nil {
			logger.Debug("using parallel executor", "tool", tool)
			return NewParallel(tool, cfg.ParallelArgs, cfg.BatchDir, workDir, cfg.InterruptGrace, logger)
		}
		logger.Info("parallel executor not found, running jobs sequentially", "tool", cfg.ParallelTool)
	}
	return NewSequential(cfg.Shell, workDir, cfg.InterruptGrace, logger)
}
