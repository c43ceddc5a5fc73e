// Package cli implements the command-line front end shared by the
// join-vtk and mk-flines commands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"text/tabwriter"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/livinlefevreloca/postproc/internal/config"
	"github.com/livinlefevreloca/postproc/internal/dispatch"
	"github.com/livinlefevreloca/postproc/internal/history"
	"github.com/livinlefevreloca/postproc/internal/pipeline"
)

// Process exit codes
const (
	ExitOK          = 0
	ExitPrereq      = 1
	ExitJobsFailed  = 2
	ExitAborted     = 3
	ExitInterrupted = 130
)

type options struct {
	configFile string
	dir        string
	sequential bool
	verbose    bool
	history    int
	runID      string
}

// Main runs one stage with command-line args and returns the exit code.
func Main(stage pipeline.Stage, args []string, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return run(ctx, stage, args, stdout, stderr)
}

func run(ctx context.Context, stage pipeline.Stage, args []string, stdout, stderr io.Writer) int {
	opts, err := parseFlags(stage, args, stderr)
	if errors.Is(err, flag.ErrHelp) {
		return ExitOK
	}
	if err != nil {
		return ExitPrereq
	}

	cfg, err := config.LoadConfig(opts.configFile, opts.dir)
	if err != nil {
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitPrereq
	}
	cfg.SetWorkDir(opts.dir)
	if opts.sequential {
		cfg.Dispatch.ForceSequential = true
	}
	if opts.verbose {
		cfg.Logging.Level = "debug"
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(stdout, "###error: invalid configuration: %v\n", err)
		return ExitPrereq
	}

	logger := newLogger(cfg.Logging, stderr)

	if opts.history > 0 {
		return listHistory(cfg.History, opts, stdout, logger)
	}
	if opts.runID != "" {
		return showRun(cfg.History, opts, stdout, logger)
	}

	var pipeOpts []pipeline.Option
	pipeOpts = append(pipeOpts, pipeline.WithOutput(stdout))
	if cfg.History.Enabled {
		db, err := history.Open(cfg.History, opts.dir)
		if err != nil {
			logger.Warn("run history disabled", "error", err)
		} else {
			defer db.Close()
			pipeOpts = append(pipeOpts, pipeline.WithRecorder(history.NewRecorder(db, logger)))
		}
	}

	var p *pipeline.Pipeline
	switch stage {
	case pipeline.StageMerge:
		p = pipeline.NewMerge(cfg.Merge, cfg.Dispatch, logger, pipeOpts...)
	case pipeline.StageFlines:
		p = pipeline.NewFlines(cfg.Flines, cfg.Dispatch, logger, pipeOpts...)
	default:
		fmt.Fprintf(stdout, "###error: unknown stage %q\n", stage)
		return ExitPrereq
	}

	result, err := p.Run(ctx)
	return report(result, err, stdout, logger)
}

func parseFlags(stage pipeline.Stage, args []string, stderr io.Writer) (*options, error) {
	opts := &options{}

	fs := flag.NewFlagSet(commandName(stage), flag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&opts.configFile, "config", "", "Path to configuration file (TOML or YAML); defaults to "+config.DefaultConfigFile+" in -dir when present")
	fs.StringVar(&opts.dir, "dir", ".", "Simulation output directory to process")
	fs.BoolVar(&opts.sequential, "sequential", false, "Run jobs one at a time even if the parallel executor is installed")
	fs.BoolVar(&opts.verbose, "v", false, "Enable debug logging")
	fs.IntVar(&opts.history, "history", 0, "List the N most recent recorded runs and exit")
	fs.StringVar(&opts.runID, "run", "", "Show the recorded jobs of one run and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		err := fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
		fmt.Fprintln(stderr, err)
		fs.Usage()
		return nil, err
	}
	if opts.history < 0 {
		err := fmt.Errorf("-history must not be negative")
		fmt.Fprintln(stderr, err)
		return nil, err
	}
	return opts, nil
}

func commandName(stage pipeline.Stage) string {
	switch stage {
	case pipeline.StageMerge:
		return "join-vtk"
	case pipeline.StageFlines:
		return "mk-flines"
	}
	return string(stage)
}

// report prints the outcome of a run and maps it to an exit code.
func report(result *pipeline.Result, err error, stdout io.Writer, logger *slog.Logger) int {
	switch {
	case err == nil:
	case pipeline.IsPrerequisiteMissing(err):
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitPrereq
	case pipeline.IsInterrupted(err):
		logger.Warn("interrupted")
		fmt.Fprintln(stdout, "###error: interrupted")
		return ExitInterrupted
	case dispatch.IsInfrastructure(err):
		logger.Error("job executor failed", "error", err)
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitAborted
	default:
		logger.Error("run aborted", "error", err)
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitAborted
	}

	if result.Failed > 0 {
		fmt.Fprintf(stdout, "###error: %d of %d jobs failed\n", result.Failed, len(result.Jobs))
	}
	if result.SeedCopyFailures > 0 {
		fmt.Fprintf(stdout, "###error: %d seed files could not be copied\n", result.SeedCopyFailures)
	}
	if !result.Succeeded() {
		return ExitJobsFailed
	}

	logger.Info("run complete",
		"jobs", len(result.Jobs),
		"seeds_copied", len(result.SeedsCopied),
		"elapsed", result.Elapsed)
	return ExitOK
}

func newLogger(cfg config.LoggingConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(w, handlerOpts))
	}
	return slog.New(slog.NewTextHandler(w, handlerOpts))
}

func listHistory(cfg history.Config, opts *options, stdout io.Writer, logger *slog.Logger) int {
	db, err := history.Open(cfg, opts.dir)
	if err != nil {
		logger.Error("failed to open run history", "error", err)
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitAborted
	}
	defer db.Close()

	runs, err := db.GetRecentPipelineRuns(opts.history)
	if err != nil {
		logger.Error("failed to read run history", "error", err)
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitAborted
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RUN\tSTAGE\tSTARTED\tSTRATEGY\tJOBS\tFAILED\tSTATUS")
	for _, run := range runs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\t%d\t%s\n",
			run.RunID, run.Stage, run.StartedAt.Local().Format(time.DateTime),
			orDash(run.Strategy), run.Jobs, run.Failed, run.Status)
	}
	if err := tw.Flush(); err != nil {
		return ExitAborted
	}
	return ExitOK
}

func showRun(cfg history.Config, opts *options, stdout io.Writer, logger *slog.Logger) int {
	db, err := history.Open(cfg, opts.dir)
	if err != nil {
		logger.Error("failed to open run history", "error", err)
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitAborted
	}
	defer db.Close()

	run, err := db.GetPipelineRun(opts.runID)
	if history.IsNotFound(err) {
		fmt.Fprintf(stdout, "###error: no recorded run %s\n", opts.runID)
		return ExitPrereq
	}
	if err != nil {
		logger.Error("failed to read run history", "error", err)
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitAborted
	}

	jobs, err := db.GetJobRuns(run.RunID)
	if err != nil {
		logger.Error("failed to read job history", "error", err, "run_id", run.RunID)
		fmt.Fprintf(stdout, "###error: %v\n", err)
		return ExitAborted
	}

	fmt.Fprintf(stdout, "run %s: %s in %s, %s\n", run.RunID, run.Stage, run.WorkDir, run.Status)
	if run.Error != nil {
		fmt.Fprintf(stdout, "error: %s\n", *run.Error)
	}

	tw := tabwriter.NewWriter(stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STEP\tOUTPUT\tSTATUS\tEXIT")
	for _, job := range jobs {
		fmt.Fprintf(tw, "%s.%s\t%s\t%s\t%s\n", job.Base, job.Index, job.Output, job.Status, exitText(job.ExitCode))
	}
	if err := tw.Flush(); err != nil {
		return ExitAborted
	}
	return ExitOK
}

func exitText(code int) string {
	if code < 0 {
		return "?"
	}
	return strconv.Itoa(code)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
