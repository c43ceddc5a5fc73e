package pipeline

import (
	"context"
	"io/fs"
	"iter"

	"github.com/livinlefevreloca/postproc/internal/grouping"
	"github.com/livinlefevreloca/postproc/internal/joblist"
	"github.com/livinlefevreloca/postproc/lib/fileset"
)

// Stage names a pipeline stage
type Stage string

const (
	StageMerge  Stage = "merge"
	StageFlines Stage = "flines"
)

// stage supplies the stage-specific parts of a run.
type stage interface {
	name() Stage
	workDir() string

	// checkPrerequisites runs before anything is scanned.
	checkPrerequisites() error

	// scan returns the lazy file sequence, the scanner for its counters,
	// and the grouping policy to apply.
	scan(fsys fs.FS, env *runEnv) (iter.Seq[fileset.SourceFile], *fileset.Scanner, grouping.Policy, error)

	template() (*joblist.Template, error)

	// prepare runs before jobs are dispatched.
	prepare(jobs []*joblist.Job) error

	// finish runs after dispatch, or instead of it when nothing is stale.
	finish(ctx context.Context, fsys fs.FS, env *runEnv, result *Result) error
}
