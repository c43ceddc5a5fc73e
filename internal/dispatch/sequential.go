package dispatch

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/livinlefevreloca/postproc/internal/joblist"
)

// Sequential runs each job through a shell, one after another. A failing job
// never stops the queue.
type Sequential struct {
	shell   string
	workDir string
	grace   time.Duration
	logger  *slog.Logger
}

// NewSequential creates the sequential fallback strategy.
func NewSequential(shell, workDir string, grace time.Duration, logger *slog.Logger) *Sequential {
	return &Sequential{
		shell:   shell,
		workDir: workDir,
		grace:   grace,
		logger:  logger,
	}
}

func (s *Sequential) Name() string {
	return StrategySequential
}

// Run implements Strategy. Every job gets its own exit code.
func (s *Sequential) Run(ctx context.Context, jobs []*joblist.Job, out io.Writer) (*Report, error) {
	report := &Report{
		Strategy: StrategySequential,
		Jobs:     jobs,
	}
	start := time.Now()
	defer func() {
		report.Elapsed = time.Since(start)
	}()

	for _, job := range jobs {
		if err := ctx.Err(); err != nil {
			return report, fmt.Errorf("sequential dispatch interrupted: %w", err)
		}

		if err := s.runJob(ctx, job, out); err != nil {
			return report, err
		}

		report.Attempted++
		if job.Status == joblist.StatusFailed {
			report.Failed++
			s.logger.Warn("job failed", "job", job.String(), "exit_code", job.ExitCode, "output", job.Output)
		} else {
			s.logger.Debug("job succeeded", "job", job.String(), "output", job.Output)
		}
	}

	return report, nil
}

func (s *Sequential) runJob(ctx context.Context, job *joblist.Job, out io.Writer) error {
	cmd := command(ctx, s.grace, s.shell, "-c", job.Command)
	cmd.Dir = s.workDir

	job.MarkRunning()
	s.logger.Debug("running job", "job", job.String(), "command", job.Command)

	stream, err := StartStream(cmd)
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return fmt.Errorf("sequential dispatch interrupted: %w", ctxErr)
		}
		return fmt.Errorf("%w: start %s: %w", ErrDispatchInfrastructure, s.shell, err)
	}

	for line := range stream.Lines() {
		fmt.Fprintln(out, line)
	}

	waitErr := stream.Wait()
	code, ok := exitCode(waitErr)
	if !ok {
		// Output could not be read or the process could not be waited on.
		s.logger.Error("job did not complete cleanly", "job", job.String(), "error", waitErr)
		code = joblist.ExitUnknown
	}
	job.Finish(code)
	return nil
}
