package pipeline

import (
	"context"
	"errors"
	"io/fs"
	"iter"

	"github.com/livinlefevreloca/postproc/internal/grouping"
	"github.com/livinlefevreloca/postproc/internal/joblist"
	"github.com/livinlefevreloca/postproc/lib/fileset"
)

type flinesStage struct {
	cfg FlinesConfig
}

func (s *flinesStage) name() Stage {
	return StageFlines
}

func (s *flinesStage) workDir() string {
	return s.cfg.WorkDir
}

func (s *flinesStage) checkPrerequisites() error {
	return errors.Join(
		checkExecutable(s.cfg.WorkDir, s.cfg.Executable),
		checkReadable(s.cfg.WorkDir, s.cfg.ConfigFile),
	)
}

func (s *flinesStage) scan(fsys fs.FS, env *runEnv) (iter.Seq[fileset.SourceFile], *fileset.Scanner, grouping.Policy, error) {
	convention := fileset.Convention{
		Suffixes: []string{s.cfg.PrimarySuffix, s.cfg.SeedSuffix},
	}
	roots := []fileset.Root{{Dir: ".", Partition: fileset.NoPartition}}
	scanner := fileset.NewScanner(fsys, roots, convention, env.logger)

	policy := grouping.DerivedPolicy{
		PrimarySuffix: s.cfg.PrimarySuffix,
		SeedSuffix:    s.cfg.SeedSuffix,
		OutputSuffix:  s.cfg.OutputSuffix,
	}
	return scanner.Files(), scanner, policy, nil
}

func (s *flinesStage) template() (*joblist.Template, error) {
	vars := map[string]string{
		"exe":    s.cfg.Executable,
		"config": s.cfg.ConfigFile,
	}
	return joblist.ParseTemplate(s.cfg.Command, vars, grouping.RolePrimary, grouping.RoleSeed)
}

func (s *flinesStage) prepare(_ []*joblist.Job) error {
	return nil
}

func (s *flinesStage) finish(_ context.Context, _ fs.FS, _ *runEnv, _ *Result) error {
	return nil
}
