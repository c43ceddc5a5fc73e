package pipeline

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"iter"
	"os"
	"path"
	"path/filepath"
	"slices"

	"github.com/livinlefevreloca/postproc/internal/grouping"
	"github.com/livinlefevreloca/postproc/internal/joblist"
	"github.com/livinlefevreloca/postproc/lib/fileset"
)

type mergeStage struct {
	cfg MergeConfig
}

func (s *mergeStage) name() Stage {
	return StageMerge
}

func (s *mergeStage) workDir() string {
	return s.cfg.WorkDir
}

func (s *mergeStage) checkPrerequisites() error {
	return checkExecutable(s.cfg.WorkDir, s.cfg.Executable)
}

func (s *mergeStage) scan(fsys fs.FS, env *runEnv) (iter.Seq[fileset.SourceFile], *fileset.Scanner, grouping.Policy, error) {
	partitions, err := fileset.DiscoverPartitions(fsys, s.cfg.PartitionPrefix)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("discover partitions: %w", err)
	}

	var others []int
	for _, p := range partitions {
		if p.ID != 0 {
			others = append(others, p.ID)
		}
	}
	env.logger.Debug("discovered partitions", "count", len(partitions), "has_rank0", len(partitions) > 0 && partitions[0].ID == 0)

	convention := fileset.Convention{
		PartitionPrefix: s.cfg.PartitionPrefix,
		Suffixes:        []string{s.cfg.Extension},
	}
	scanner := fileset.NewScanner(fsys, fileset.PartitionRoots(partitions), convention, env.logger)

	policy := grouping.MergePolicy{
		Partitions:      others,
		PartitionPrefix: s.cfg.PartitionPrefix,
		OutputDir:       s.cfg.OutputDir,
		Extension:       s.cfg.Extension,
	}
	return scanner.Files(), scanner, policy, nil
}

func (s *mergeStage) template() (*joblist.Template, error) {
	return joblist.ParseTemplate(s.cfg.Command, map[string]string{"exe": s.cfg.Executable}, grouping.RoleRank0)
}

func (s *mergeStage) prepare(_ []*joblist.Job) error {
	return s.ensureOutputDir()
}

func (s *mergeStage) ensureOutputDir() error {
	dir := resolve(s.cfg.WorkDir, filepath.FromSlash(s.cfg.OutputDir))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	return nil
}

func (s *mergeStage) finish(ctx context.Context, fsys fs.FS, env *runEnv, result *Result) error {
	if !s.cfg.CopySeeds {
		return nil
	}
	return s.copySeeds(ctx, fsys, env, result)
}

// copySeeds copies <prefix>0/*.<seed suffix> into the output directory when
// the copy is missing or older than its source.
func (s *mergeStage) copySeeds(ctx context.Context, fsys fs.FS, env *runEnv, result *Result) error {
	rank0 := fileset.Root{Dir: s.cfg.PartitionPrefix + "0", Partition: 0}
	convention := fileset.Convention{
		PartitionPrefix: s.cfg.PartitionPrefix,
		Suffixes:        []string{s.cfg.SeedSuffix},
	}
	if _, err := fs.Stat(fsys, rank0.Dir); err != nil {
		return nil
	}

	scanner := fileset.NewScanner(fsys, []fileset.Root{rank0}, convention, env.logger)
	var units []grouping.WorkUnit
	for f := range scanner.Files() {
		units = append(units, grouping.WorkUnit{
			Base:   f.Name.Base,
			Index:  f.Name.Index,
			Inputs: []grouping.Input{{Role: grouping.RoleSeed, File: f}},
			Output: path.Join(s.cfg.OutputDir, path.Base(f.Path)),
		})
	}

	stale, err := env.checker.StaleUnits(ctx, units)
	if err != nil {
		return fmt.Errorf("check seed copies: %w", err)
	}
	if len(stale) == 0 {
		return nil
	}

	if err := s.ensureOutputDir(); err != nil {
		return err
	}

	for _, unit := range stale {
		src := unit.Inputs[0].File.Path
		if err := copyFile(resolve(s.cfg.WorkDir, filepath.FromSlash(src)), resolve(s.cfg.WorkDir, filepath.FromSlash(unit.Output))); err != nil {
			env.logger.Error("failed to copy seed file", "src", src, "dst", unit.Output, "error", err)
			result.SeedCopyFailures++
			continue
		}
		env.logger.Debug("copied seed file", "src", src, "dst", unit.Output)
		result.SeedsCopied = append(result.SeedsCopied, unit.Output)
	}
	slices.Sort(result.SeedsCopied)
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	tmp, err := os.CreateTemp(filepath.Dir(dst), ".seed-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := io.Copy(tmp, in); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), dst)
}
