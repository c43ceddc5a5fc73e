// Package pipeline wires scanning, grouping, staleness checks, job building
// and dispatch into one incremental run of a post-processing stage.
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/livinlefevreloca/postproc/internal/dispatch"
	"github.com/livinlefevreloca/postproc/internal/grouping"
	"github.com/livinlefevreloca/postproc/internal/history"
	"github.com/livinlefevreloca/postproc/internal/joblist"
	"github.com/livinlefevreloca/postproc/internal/staleness"
	"github.com/livinlefevreloca/postproc/lib/fileset"
)

// Result describes one completed run.
type Result struct {
	RunID    string
	Stage    Stage
	Strategy string

	Scanned    int
	Skipped    int
	Units      int
	Incomplete []error
	Warnings   []string

	Jobs   []*joblist.Job
	Failed int

	SeedsCopied      []string
	SeedCopyFailures int

	// NothingToDo is set when no unit was stale; no dispatcher ran.
	NothingToDo bool

	Elapsed time.Duration
}

// Succeeded reports whether every job and seed copy succeeded.
func (r *Result) Succeeded() bool {
	return r.Failed == 0 && r.SeedCopyFailures == 0
}

// Pipeline runs one stage.
type Pipeline struct {
	stage    stage
	dispatch dispatch.Config
	logger   *slog.Logger

	out      io.Writer
	strategy dispatch.Strategy
	recorder *history.Recorder
}

// Option customizes a Pipeline
type Option func(*Pipeline)

// WithOutput sets where progress and job output are written (default stdout).
func WithOutput(w io.Writer) Option {
	return func(p *Pipeline) {
		p.out = w
	}
}

// WithStrategy bypasses executor detection.
func WithStrategy(s dispatch.Strategy) Option {
	return func(p *Pipeline) {
		p.strategy = s
	}
}

// WithRecorder records the run in the history store.
func WithRecorder(r *history.Recorder) Option {
	return func(p *Pipeline) {
		p.recorder = r
	}
}

// NewMerge creates the stage that joins per-partition output.
func NewMerge(cfg MergeConfig, dcfg dispatch.Config, logger *slog.Logger, opts ...Option) *Pipeline {
	return newPipeline(&mergeStage{cfg: cfg}, dcfg, logger, opts)
}

// NewFlines creates the field-line tracing stage.
func NewFlines(cfg FlinesConfig, dcfg dispatch.Config, logger *slog.Logger, opts ...Option) *Pipeline {
	return newPipeline(&flinesStage{cfg: cfg}, dcfg, logger, opts)
}

func newPipeline(s stage, dcfg dispatch.Config, logger *slog.Logger, opts []Option) *Pipeline {
	p := &Pipeline{
		stage:    s,
		dispatch: dcfg,
		logger:   logger.With("stage", string(s.name())),
		out:      os.Stdout,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// runEnv holds per-run collaborators shared with the stage.
type runEnv struct {
	logger  *slog.Logger
	checker *staleness.Checker
}

// Run performs one incremental pass. A nil error with Result.Failed > 0
// means jobs failed; errors are reserved for missing prerequisites,
// dispatch infrastructure failures, filesystem errors and cancellation.
func (p *Pipeline) Run(ctx context.Context) (result *Result, err error) {
	start := time.Now()

	if err := p.stage.checkPrerequisites(); err != nil {
		return nil, err
	}

	template, err := p.stage.template()
	if err != nil {
		return nil, err
	}

	result = &Result{Stage: p.stage.name()}
	if p.recorder != nil {
		runID, recErr := p.recorder.Begin(string(p.stage.name()), p.stage.workDir())
		if recErr != nil {
			p.logger.Warn("run history unavailable", "error", recErr)
		} else {
			result.RunID = runID
			defer func() {
				p.record(result, err)
			}()
		}
	}
	defer func() {
		result.Elapsed = time.Since(start)
	}()

	fsys := os.DirFS(p.stage.workDir())
	env := &runEnv{
		logger:  p.logger,
		checker: staleness.NewChecker(fsys, p.dispatch.StatConcurrency),
	}

	files, scanner, policy, err := p.stage.scan(fsys, env)
	if err != nil {
		return result, err
	}

	counted := func(yield func(fileset.SourceFile) bool) {
		for f := range files {
			result.Scanned++
			if !yield(f) {
				return
			}
		}
	}

	grouped := policy.Group(counted)
	result.Skipped = scanner.Skipped()
	result.Units = len(grouped.Units)
	result.Incomplete = grouped.Incomplete
	result.Warnings = grouped.Warnings

	for _, w := range grouped.Warnings {
		p.logger.Warn("grouping problem", "detail", w)
	}
	for _, inc := range grouped.Incomplete {
		p.logger.Warn("skipping incomplete work unit", "error", inc)
	}

	if result.Scanned == 0 {
		p.logger.Info("no work found", "work_dir", p.stage.workDir())
	}

	builder := joblist.NewBuilder(template, env.checker)
	jobs, err := builder.Build(ctx, grouped.Units)
	if err != nil {
		return result, err
	}
	result.Jobs = jobs

	p.logger.Info("scan complete",
		"files", result.Scanned,
		"skipped", result.Skipped,
		"units", result.Units,
		"incomplete", len(result.Incomplete),
		"stale", len(jobs))

	if len(jobs) == 0 {
		result.NothingToDo = true
		fmt.Fprintln(p.out, "nothing to do (all up to date)")
		return result, p.stage.finish(ctx, fsys, env, result)
	}

	fmt.Fprintf(p.out, "running %d jobs...\n", len(jobs))

	if err := p.stage.prepare(jobs); err != nil {
		return result, err
	}

	strategy := p.strategy
	if strategy == nil {
		strategy = dispatch.New(p.dispatch, p.stage.workDir(), p.logger)
	}
	result.Strategy = strategy.Name()

	report, err := strategy.Run(ctx, jobs, p.out)
	if err != nil {
		return result, err
	}

	if unresolved := report.Unresolved(); len(unresolved) > 0 {
		p.reconcile(env.checker, grouped.Units, unresolved)
	}
	result.Failed = max(report.Failed, joblist.CountStatus(jobs, joblist.StatusFailed))

	p.logger.Info("dispatch complete",
		"strategy", report.Strategy,
		"attempted", report.Attempted,
		"failed", result.Failed,
		"elapsed", report.Elapsed)

	return result, p.stage.finish(ctx, fsys, env, result)
}

// reconcile settles jobs whose individual outcome the executor did not
// report: a job succeeded exactly when its output is no longer stale.
func (p *Pipeline) reconcile(checker *staleness.Checker, units []grouping.WorkUnit, jobs []*joblist.Job) {
	byOutput := make(map[string]grouping.WorkUnit, len(units))
	for _, u := range units {
		byOutput[u.Output] = u
	}

	for _, job := range jobs {
		unit, ok := byOutput[job.Output]
		if !ok {
			job.Settle(false)
			continue
		}
		stale, err := checker.IsStale(unit)
		if err != nil {
			p.logger.Warn("cannot determine job outcome", "job", job.String(), "error", err)
			job.Settle(false)
			continue
		}
		job.Settle(!stale)
		if stale {
			p.logger.Warn("job failed", "job", job.String(), "output", job.Output)
		}
	}
}

func (p *Pipeline) record(result *Result, runErr error) {
	final := history.PipelineRun{
		Strategy:   result.Strategy,
		Jobs:       len(result.Jobs),
		Failed:     result.Failed,
		Incomplete: len(result.Incomplete),
	}

	switch {
	case runErr != nil:
		final.Status = history.RunStatusFailed
		msg := runErr.Error()
		final.Error = &msg
	case result.NothingToDo:
		final.Status = history.RunStatusNothingToDo
	case !result.Succeeded():
		final.Status = history.RunStatusFailed
		msg := fmt.Sprintf("%d of %d jobs failed", result.Failed, len(result.Jobs))
		final.Error = &msg
	default:
		final.Status = history.RunStatusCompleted
	}

	for _, job := range result.Jobs {
		p.recorder.BufferJob(history.JobRun{
			JobID:    job.ID,
			Base:     job.Base,
			Index:    job.Index,
			Command:  job.Command,
			Output:   job.Output,
			Status:   job.Status.String(),
			ExitCode: job.ExitCode,
		})
	}

	if err := p.recorder.Finish(final); err != nil {
		p.logger.Warn("failed to record run history", "error", err)
	}
}

// IsInterrupted reports whether err stems from cancellation.
func IsInterrupted(err error) bool {
	return errors.Is(err, context.Canceled)
}
