package grouping

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"time"

	"github.com/livinlefevreloca/postproc/lib/fileset"
)

// Input roles used as template placeholders.
const (
	RoleRank0   = "rank0"
	RolePrimary = "primary"
	RoleSeed    = "seed"
)

// Input is one required input of a WorkUnit.
type Input struct {
	Role string
	File fileset.SourceFile
}

// WorkUnit is the incremental unit of work for one (base, timestep) pair.
type WorkUnit struct {
	Base   string
	Index  string
	Inputs []Input
	Output string
}

// Step returns the numeric timestep of the unit.
func (u WorkUnit) Step() int {
	return fileset.Name{Index: u.Index}.Step()
}

// InputPaths returns input paths in input order.
func (u WorkUnit) InputPaths() []string {
	paths := make([]string, 0, len(u.Inputs))
	for _, in := range u.Inputs {
		paths = append(paths, in.File.Path)
	}
	return paths
}

// NewestInput returns the latest input modification time.
func (u WorkUnit) NewestInput() time.Time {
	var newest time.Time
	for _, in := range u.Inputs {
		if in.File.ModTime.After(newest) {
			newest = in.File.ModTime
		}
	}
	return newest
}

func (u WorkUnit) String() string {
	return fmt.Sprintf("%s.%s", u.Base, u.Index)
}

// ErrIncompleteUnit classifies IncompleteUnitError diagnostics.
var ErrIncompleteUnit = errors.New("grouping: incomplete work unit")

// IncompleteUnitError reports a timestep that cannot be processed because a
// required input is missing.
type IncompleteUnitError struct {
	Base   string
	Index  string
	Reason string
}

func (e *IncompleteUnitError) Error() string {
	return fmt.Sprintf("incomplete work unit %s.%s: %s", e.Base, e.Index, e.Reason)
}

func (e *IncompleteUnitError) Unwrap() error {
	return ErrIncompleteUnit
}

// IsIncomplete checks if err is an incomplete work unit diagnostic
func IsIncomplete(err error) bool {
	return errors.Is(err, ErrIncompleteUnit)
}

// Result is the outcome of grouping one scan pass.
type Result struct {
	// Units are sorted by ascending step, then base name.
	Units []WorkUnit

	// Incomplete lists timesteps that were excluded.
	Incomplete []error

	// Warnings are non-fatal problems with units that were still produced,
	// or with individual files that were ignored.
	Warnings []string
}

// Policy partitions scanned files into work units.
type Policy interface {
	Group(files iter.Seq[fileset.SourceFile]) Result
}

type unitKey struct {
	dir   string
	base  string
	index string
}

func sortKeys(keys []unitKey) {
	sort.Slice(keys, func(i, j int) bool {
		si := fileset.Name{Index: keys[i].index}.Step()
		sj := fileset.Name{Index: keys[j].index}.Step()
		if si != sj {
			return si < sj
		}
		if keys[i].index != keys[j].index {
			return keys[i].index < keys[j].index
		}
		if keys[i].base != keys[j].base {
			return keys[i].base < keys[j].base
		}
		return keys[i].dir < keys[j].dir
	})
}

// dedupe drains files, dropping repeated paths and keeping the first
// occurrence.
func dedupe(files iter.Seq[fileset.SourceFile]) []fileset.SourceFile {
	seen := make(map[string]bool)
	var out []fileset.SourceFile
	for f := range files {
		if seen[f.Path] {
			continue
		}
		seen[f.Path] = true
		out = append(out, f)
	}
	return out
}
