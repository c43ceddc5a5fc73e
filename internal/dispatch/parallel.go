package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/livinlefevreloca/postproc/internal/joblist"
)

// GNU parallel reports the number of failed jobs as its exit status, with
// 101 meaning "more than 100".
const maxCountedFailures = 101

// Parallel hands the whole job list to an external executor that reads
// commands from stdin.
type Parallel struct {
	tool     string
	args     []string
	batchDir string
	workDir  string
	grace    time.Duration
	logger   *slog.Logger
}

// NewParallel creates the parallel strategy.
func NewParallel(tool string, args []string, batchDir, workDir string, grace time.Duration, logger *slog.Logger) *Parallel {
	return &Parallel{
		tool:     tool,
		args:     args,
		batchDir: batchDir,
		workDir:  workDir,
		grace:    grace,
		logger:   logger,
	}
}

func (p *Parallel) Name() string {
	return StrategyParallel
}

// Run implements Strategy. Jobs are marked succeeded when the executor
// exits 0; otherwise they stay running and Report.Failed carries the
// executor's failure count.
func (p *Parallel) Run(ctx context.Context, jobs []*joblist.Job, out io.Writer) (*Report, error) {
	start := time.Now()

	batch, err := NewBatchFile(p.batchDir, joblist.Commands(jobs))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrDispatchInfrastructure, err)
	}
	defer func() {
		if err := batch.Remove(); err != nil {
			p.logger.Warn("failed to remove batch file", "path", batch.Path(), "error", err)
		}
	}()

	stdin, err := batch.Open()
	if err != nil {
		return nil, fmt.Errorf("%w: open batch file: %w", ErrDispatchInfrastructure, err)
	}
	defer stdin.Close()

	cmd := command(ctx, p.grace, p.tool, p.args...)
	cmd.Dir = p.workDir
	cmd.Stdin = stdin

	p.logger.Debug("starting parallel executor", "tool", p.tool, "args", p.args, "batch", batch.Path(), "jobs", len(jobs))

	stream, err := StartStream(cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("parallel executor interrupted: %w", ctxErr)
		}
		return nil, fmt.Errorf("%w: start %s: %w", ErrDispatchInfrastructure, p.tool, err)
	}

	for _, job := range jobs {
		job.MarkRunning()
	}

	for line := range stream.Lines() {
		fmt.Fprintln(out, line)
	}
	waitErr := stream.Wait()

	report := &Report{
		Strategy:  StrategyParallel,
		Attempted: len(jobs),
		Elapsed:   time.Since(start),
		Jobs:      jobs,
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		return report, fmt.Errorf("parallel executor interrupted: %w", ctxErr)
	}

	code, ok := exitCode(waitErr)
	switch {
	case !ok:
		return report, fmt.Errorf("%w: %s: %w", ErrDispatchInfrastructure, p.tool, waitErr)
	case code == 0:
		for _, job := range jobs {
			job.Finish(0)
		}
	case code > 0 && code <= maxCountedFailures:
		report.Failed = min(code, len(jobs))
	default:
		return report, fmt.Errorf("%w: %s exited with status %d", ErrDispatchInfrastructure, p.tool, code)
	}

	return report, nil
}
