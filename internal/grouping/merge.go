package grouping

import (
	"fmt"
	"iter"
	"path"
	"sort"

	"github.com/livinlefevreloca/postproc/lib/fileset"
)

// MergePolicy groups per-partition files into one merge unit per timestep.
//
// The rank-0 file is required. Every other partition is best effort: a
// missing file produces a warning and the unit is merged from what exists.
type MergePolicy struct {
	// Partitions lists the known partition ids other than rank 0. When
	// empty, partitions are inferred from the scanned files.
	Partitions []int

	// PartitionPrefix is the tag prefix ("id"), used in warnings to
	// name the expected file.
	PartitionPrefix string

	OutputDir string
	Extension string
}

// Group implements Policy.
func (p MergePolicy) Group(files iter.Seq[fileset.SourceFile]) Result {
	var result Result

	rank0 := make(map[unitKey]fileset.SourceFile)
	others := make(map[unitKey]map[int]fileset.SourceFile)
	seenPartitions := make(map[int]bool)

	for _, f := range dedupe(files) {
		if f.Name.Suffix != p.Extension || !f.Partitioned() {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: not a partition %s file", f.Path, p.Extension))
			continue
		}

		key := unitKey{base: f.Name.Base, index: f.Name.Index}

		if f.Partition == 0 {
			if f.Name.Tag != "" {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: rank-0 file carries partition tag %q", f.Path, f.Name.Tag))
				continue
			}
			rank0[key] = f
			continue
		}

		if id, ok := fileset.PartitionID(f.Name.Tag, p.PartitionPrefix); !ok || id != f.Partition {
			result.Warnings = append(result.Warnings, fmt.Sprintf("%s: partition tag %q does not match directory partition %d", f.Path, f.Name.Tag, f.Partition))
			continue
		}

		if others[key] == nil {
			others[key] = make(map[int]fileset.SourceFile)
		}
		others[key][f.Partition] = f
		seenPartitions[f.Partition] = true
	}

	partitions := p.partitionList(seenPartitions)

	keys := make([]unitKey, 0, len(rank0)+len(others))
	for key := range rank0 {
		keys = append(keys, key)
	}
	for key := range others {
		if _, ok := rank0[key]; !ok {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)

	for _, key := range keys {
		head, ok := rank0[key]
		if !ok {
			result.Incomplete = append(result.Incomplete, &IncompleteUnitError{
				Base:   key.base,
				Index:  key.index,
				Reason: "rank-0 input missing, nothing to merge",
			})
			continue
		}

		unit := WorkUnit{
			Base:   key.base,
			Index:  key.index,
			Inputs: []Input{{Role: RoleRank0, File: head}},
			Output: path.Join(p.OutputDir, fmt.Sprintf("%s.%s.%s", key.base, key.index, p.Extension)),
		}

		for _, id := range partitions {
			f, ok := others[key][id]
			if !ok {
				result.Warnings = append(result.Warnings, fmt.Sprintf("%s: partition %s%d has no file for this timestep", unit, p.PartitionPrefix, id))
				continue
			}
			unit.Inputs = append(unit.Inputs, Input{Role: f.Name.Tag, File: f})
		}

		result.Units = append(result.Units, unit)
	}

	return result
}

func (p MergePolicy) partitionList(seen map[int]bool) []int {
	set := make(map[int]bool, len(p.Partitions)+len(seen))
	for _, id := range p.Partitions {
		if id != 0 {
			set[id] = true
		}
	}
	if len(p.Partitions) == 0 {
		for id := range seen {
			set[id] = true
		}
	}

	ids := make([]int, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	return ids
}
