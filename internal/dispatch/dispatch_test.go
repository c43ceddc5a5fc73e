package dispatch

import (
	"bytes"
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/livinlefevreloca/postproc/internal/joblist"
	"github.com/livinlefevreloca/postproc/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeParallel reads commands from stdin, runs them in order and exits with
// the number of failures, like GNU parallel.
const fakeParallel = `echo "executor args: $*"
failed=0
while IFS= read -r line; do
  sh -c "$line" || failed=$((failed+1))
done
exit $failed`

func makeJobs(commands ...string) []*joblist.Job {
	jobs := make([]*joblist.Job, len(commands))
	for i, cmd := range commands {
		jobs[i] = &joblist.Job{
			ID:       "job-" + string(rune('a'+i)),
			Base:     "cloud",
			Index:    "000" + string(rune('0'+i)),
			Command:  cmd,
			Status:   joblist.StatusPending,
			ExitCode: joblist.ExitUnknown,
		}
	}
	return jobs
}

func dirEntries(t *testing.T, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	var names []string
	for _, e := range entries {
		names = append(names, e.Name())
	}
	return names
}

// =============================================================================
// Batch file
// =============================================================================

func TestBatchFile_WriteAndRemove(t *testing.T) {
	dir := t.TempDir()

	batch, err := NewBatchFile(dir, []string{"echo one", "echo two"})
	require.NoError(t, err)
	assert.Equal(t, dir, filepath.Dir(batch.Path()))

	data, err := os.ReadFile(batch.Path())
	require.NoError(t, err)
	assert.Equal(t, "echo one\necho two\n", string(data))

	require.NoError(t, batch.Remove())
	assert.Empty(t, dirEntries(t, dir))
	assert.NoError(t, batch.Remove(), "second remove is a no-op")
}

func TestBatchFile_BadDir(t *testing.T) {
	_, err := NewBatchFile(filepath.Join(t.TempDir(), "missing"), []string{"true"})
	assert.Error(t, err)
}

// =============================================================================
// Stream
// =============================================================================

func TestStream_CombinedLines(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "echo out1; echo err1 1>&2; echo out2")
	stream, err := StartStream(cmd)
	require.NoError(t, err)

	lines := slices.Collect(stream.Lines())
	require.NoError(t, stream.Wait())

	assert.ElementsMatch(t, []string{"out1", "err1", "out2"}, lines)
	assert.Empty(t, slices.Collect(stream.Lines()), "lines are not restartable")
}

func TestStream_LinesArriveBeforeExit(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "echo first; sleep 1; echo second")
	stream, err := StartStream(cmd)
	require.NoError(t, err)

	start := time.Now()
	var firstAt time.Duration
	for line := range stream.Lines() {
		if line == "first" {
			firstAt = time.Since(start)
		}
	}
	require.NoError(t, stream.Wait())

	assert.Less(t, firstAt, 900*time.Millisecond, "first line should stream before the process exits")
}

func TestStream_OverlongLineIsSplit(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "head -c 2500000 /dev/zero | tr '\\0' 'a'; echo; echo after")
	stream, err := StartStream(cmd)
	require.NoError(t, err)

	lines := slices.Collect(stream.Lines())
	require.NoError(t, stream.Wait())

	require.Len(t, lines, 4)
	assert.Len(t, lines[0], maxLineSize)
	assert.Len(t, lines[1], maxLineSize)
	assert.Len(t, lines[2], 2500000-2*maxLineSize)
	assert.Equal(t, "after", lines[3])
}

func TestStream_EarlyStopDoesNotKillChild(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "echo first; head -c 300000 /dev/zero; echo done")
	stream, err := StartStream(cmd)
	require.NoError(t, err)

	for line := range stream.Lines() {
		assert.Equal(t, "first", line)
		break
	}

	code, ok := exitCode(stream.Wait())
	assert.True(t, ok)
	assert.Equal(t, 0, code)
}

func TestStream_WaitWithoutReading(t *testing.T) {
	cmd := exec.Command("/bin/sh", "-c", "echo ignored; exit 4")
	stream, err := StartStream(cmd)
	require.NoError(t, err)

	code, ok := exitCode(stream.Wait())
	assert.True(t, ok)
	assert.Equal(t, 4, code)
}

// =============================================================================
// Sequential strategy
// =============================================================================

func TestSequential_FailureDoesNotAbort(t *testing.T) {
	workDir := t.TempDir()
	logger := testutil.NewTestLogger()
	seq := NewSequential("/bin/sh", workDir, time.Second, logger.Logger())

	jobs := makeJobs("echo first > a.out", "echo broken; exit 3", "echo third > c.out")
	var out bytes.Buffer

	report, err := seq.Run(context.Background(), jobs, &out)
	require.NoError(t, err)

	assert.Equal(t, StrategySequential, report.Strategy)
	assert.Equal(t, 3, report.Attempted)
	assert.Equal(t, 1, report.Failed)
	assert.Equal(t, 2, report.Succeeded())
	assert.Empty(t, report.Unresolved())

	assert.Equal(t, joblist.StatusSucceeded, jobs[0].Status)
	assert.Equal(t, 0, jobs[0].ExitCode)
	assert.Equal(t, joblist.StatusFailed, jobs[1].Status)
	assert.Equal(t, 3, jobs[1].ExitCode)
	assert.Equal(t, joblist.StatusSucceeded, jobs[2].Status)

	assert.True(t, testutil.Exists(workDir, "a.out"))
	assert.True(t, testutil.Exists(workDir, "c.out"))
	assert.Contains(t, out.String(), "broken")
	assert.True(t, logger.HasWarning())
}

func TestSequential_LongOutputLine(t *testing.T) {
	workDir := t.TempDir()
	seq := NewSequential("/bin/sh", workDir, time.Second, testutil.NewTestLogger().Logger())

	jobs := makeJobs("head -c 2000000 /dev/zero | tr '\\0' 'a'; echo; echo done > out.txt; echo finished")
	var out bytes.Buffer

	report, err := seq.Run(context.Background(), jobs, &out)
	require.NoError(t, err)

	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, joblist.StatusSucceeded, jobs[0].Status)
	assert.Equal(t, 0, jobs[0].ExitCode)
	assert.True(t, testutil.Exists(workDir, "out.txt"))
	assert.Equal(t, 2000000, strings.Count(out.String(), "a"))
	assert.True(t, strings.HasSuffix(out.String(), "finished\n"))
}

func TestSequential_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	seq := NewSequential("/bin/sh", t.TempDir(), time.Second, testutil.NewTestLogger().Logger())
	jobs := makeJobs("true", "true")

	report, err := seq.Run(ctx, jobs, &bytes.Buffer{})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, report.Attempted)
	assert.Equal(t, joblist.StatusPending, jobs[0].Status)
}

func TestSequential_MissingShell(t *testing.T) {
	seq := NewSequential(filepath.Join(t.TempDir(), "nosh"), t.TempDir(), time.Second, testutil.NewTestLogger().Logger())

	_, err := seq.Run(context.Background(), makeJobs("true"), &bytes.Buffer{})
	assert.True(t, IsInfrastructure(err))
}

// =============================================================================
// Parallel strategy
// =============================================================================

func TestParallel_AllSucceed(t *testing.T) {
	binDir := t.TempDir()
	batchDir := t.TempDir()
	workDir := t.TempDir()
	tool := testutil.WriteScript(t, binDir, "parallel", fakeParallel)

	par := NewParallel(tool, []string{"--verbose", "--delay", "2"}, batchDir, workDir, time.Second, testutil.NewTestLogger().Logger())
	jobs := makeJobs("echo one > one.out", "echo two > two.out")
	var out bytes.Buffer

	report, err := par.Run(context.Background(), jobs, &out)
	require.NoError(t, err)

	assert.Equal(t, StrategyParallel, report.Strategy)
	assert.Equal(t, 2, report.Attempted)
	assert.Equal(t, 0, report.Failed)
	assert.Equal(t, 2, report.Succeeded())
	assert.Contains(t, out.String(), "executor args: --verbose --delay 2")
	assert.True(t, testutil.Exists(workDir, "one.out"))
	assert.True(t, testutil.Exists(workDir, "two.out"))
	assert.Empty(t, dirEntries(t, batchDir), "batch file must be removed")
}

func TestParallel_AggregateFailures(t *testing.T) {
	binDir := t.TempDir()
	batchDir := t.TempDir()
	tool := testutil.WriteScript(t, binDir, "parallel", fakeParallel)

	par := NewParallel(tool, nil, batchDir, t.TempDir(), time.Second, testutil.NewTestLogger().Logger())
	jobs := makeJobs("true", "false", "exit 2")

	report, err := par.Run(context.Background(), jobs, &bytes.Buffer{})
	require.NoError(t, err)

	assert.Equal(t, 2, report.Failed)
	assert.Len(t, report.Unresolved(), 3)
	for _, j := range jobs {
		assert.Equal(t, joblist.StatusRunning, j.Status)
	}
	assert.Empty(t, dirEntries(t, batchDir))
}

func TestParallel_ExecutorMissing(t *testing.T) {
	batchDir := t.TempDir()
	par := NewParallel(filepath.Join(t.TempDir(), "parallel"), nil, batchDir, t.TempDir(), time.Second, testutil.NewTestLogger().Logger())
	jobs := makeJobs("true")

	_, err := par.Run(context.Background(), jobs, &bytes.Buffer{})
	require.Error(t, err)
	assert.True(t, IsInfrastructure(err))
	assert.ErrorIs(t, err, os.ErrNotExist)
	assert.Empty(t, dirEntries(t, batchDir), "batch file must be removed when the executor cannot start")
	assert.Equal(t, joblist.StatusPending, jobs[0].Status)
}

func TestParallel_ExecutorError(t *testing.T) {
	binDir := t.TempDir()
	batchDir := t.TempDir()
	tool := testutil.WriteScript(t, binDir, "parallel", "echo 'parallel: Error: bad option' >&2; exit 255")

	par := NewParallel(tool, nil, batchDir, t.TempDir(), time.Second, testutil.NewTestLogger().Logger())
	var out bytes.Buffer

	_, err := par.Run(context.Background(), makeJobs("true"), &out)
	assert.True(t, IsInfrastructure(err))
	assert.Contains(t, out.String(), "bad option")
	assert.Empty(t, dirEntries(t, batchDir))
}

// =============================================================================
// Strategy selection
// =============================================================================

func TestNew_Detection(t *testing.T) {
	binDir := t.TempDir()
	tool := testutil.WriteScript(t, binDir, "parallel", fakeParallel)
	logger := testutil.NewTestLogger().Logger()

	cfg := DefaultConfig()
	cfg.ParallelTool = tool
	assert.Equal(t, StrategyParallel, New(cfg, ".", logger).Name())

	cfg.ForceSequential = true
	assert.Equal(t, StrategySequential, New(cfg, ".", logger).Name())

	cfg = DefaultConfig()
	cfg.ParallelTool = filepath.Join(binDir, "not-installed")
	assert.Equal(t, StrategySequential, New(cfg, ".", logger).Name())

	cfg.ParallelTool = ""
	assert.Equal(t, StrategySequential, New(cfg, ".", logger).Name())
}

func TestConfig_Validate(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	cfg.StatConcurrency = 0
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Shell = ""
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.InterruptGrace = -time.Second
	assert.True(t, strings.Contains(cfg.Validate().Error(), "interrupt_grace"))
}
