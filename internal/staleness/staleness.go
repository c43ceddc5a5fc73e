// Package staleness decides which work units need rebuilding by comparing
// filesystem modification times.
package staleness

import (
	"context"
	"errors"
	"fmt"
	"io/fs"

	"github.com/livinlefevreloca/postproc/internal/grouping"
	"golang.org/x/sync/errgroup"
)

// DefaultConcurrency bounds concurrent output stats in StaleUnits.
const DefaultConcurrency = 8

// Checker compares a unit's inputs with its output in one fs.FS.
type Checker struct {
	fsys        fs.FS
	concurrency int
}

// NewChecker creates a checker. A non-positive concurrency selects
// DefaultConcurrency.
func NewChecker(fsys fs.FS, concurrency int) *Checker {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	return &Checker{fsys: fsys, concurrency: concurrency}
}

// IsStale reports whether unit's output is missing or older than any input.
// An input with the same modification time as the output is up to date.
// Input times come from the scan; only the output is stat'ed.
func (c *Checker) IsStale(unit grouping.WorkUnit) (bool, error) {
	info, err := fs.Stat(c.fsys, unit.Output)
	if errors.Is(err, fs.ErrNotExist) {
		return true, nil
	}
	if err != nil {
		return false, fmt.Errorf("stat output %s: %w", unit.Output, err)
	}

	return unit.NewestInput().After(info.ModTime()), nil
}

// StaleUnits returns the stale subset of units, preserving their order.
func (c *Checker) StaleUnits(ctx context.Context, units []grouping.WorkUnit) ([]grouping.WorkUnit, error) {
	stale := make([]bool, len(units))

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(c.concurrency)

	for i, unit := range units {
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			s, err := c.IsStale(unit)
			if err != nil {
				return err
			}
			stale[i] = s
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}

	out := make([]grouping.WorkUnit, 0, len(units))
	for i, unit := range units {
		if stale[i] {
			out = append(out, unit)
		}
	}
	return out, nil
}
