// Package joblist turns stale work units into executable jobs.
package joblist

import (
	"context"
	"fmt"
	"sort"

	"github.com/google/uuid"
	"github.com/livinlefevreloca/postproc/internal/grouping"
)

// StalenessChecker filters work units down to the ones needing work.
type StalenessChecker interface {
	StaleUnits(ctx context.Context, units []grouping.WorkUnit) ([]grouping.WorkUnit, error)
}

// Builder renders jobs from a template. It never executes anything.
type Builder struct {
	template *Template
	checker  StalenessChecker
	newID    func() string
}

// NewBuilder creates a builder. checker may be nil when only Jobs is used.
func NewBuilder(template *Template, checker StalenessChecker) *Builder {
	return &Builder{
		template: template,
		checker:  checker,
		newID:    uuid.NewString,
	}
}

// Build returns jobs for the stale subset of units.
func (b *Builder) Build(ctx context.Context, units []grouping.WorkUnit) ([]*Job, error) {
	if b.checker == nil {
		return nil, fmt.Errorf("joblist: builder has no staleness checker")
	}

	stale, err := b.checker.StaleUnits(ctx, units)
	if err != nil {
		return nil, fmt.Errorf("failed to check staleness: %w", err)
	}
	return b.Jobs(stale)
}

// Jobs renders one pending job per unit, ordered by ascending timestep.
func (b *Builder) Jobs(units []grouping.WorkUnit) ([]*Job, error) {
	ordered := make([]grouping.WorkUnit, len(units))
	copy(ordered, units)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Step() < ordered[j].Step()
	})

	jobs := make([]*Job, 0, len(ordered))
	for _, unit := range ordered {
		cmd, err := b.template.Render(unit)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, &Job{
			ID:       b.newID(),
			Base:     unit.Base,
			Index:    unit.Index,
			Command:  cmd,
			Inputs:   unit.InputPaths(),
			Output:   unit.Output,
			Status:   StatusPending,
			ExitCode: ExitUnknown,
		})
	}
	return jobs, nil
}
