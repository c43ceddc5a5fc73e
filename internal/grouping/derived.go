package grouping

import (
	"fmt"
	"iter"
	"path"

	"github.com/livinlefevreloca/postproc/lib/fileset"
)

// DerivedPolicy pairs a primary data file with the seed file in the same
// directory. Only keys present in both kinds become units.
type DerivedPolicy struct {
	PrimarySuffix string
	SeedSuffix    string
	OutputSuffix  string
}

// Group implements Policy.
func (p DerivedPolicy) Group(files iter.Seq[fileset.SourceFile]) Result {
	var result Result

	primaries := make(map[unitKey]fileset.SourceFile)
	seeds := make(map[unitKey]fileset.SourceFile)

	for _, f := range dedupe(files) {
		key := unitKey{dir: path.Dir(f.Path), base: f.Name.Base, index: f.Name.Index}
		switch f.Name.Suffix {
		case p.PrimarySuffix:
			primaries[key] = f
		case p.SeedSuffix:
			seeds[key] = f
		}
	}

	keys := make([]unitKey, 0, len(primaries)+len(seeds))
	for key := range primaries {
		keys = append(keys, key)
	}
	for key := range seeds {
		if _, ok := primaries[key]; !ok {
			keys = append(keys, key)
		}
	}
	sortKeys(keys)

	for _, key := range keys {
		primary, hasPrimary := primaries[key]
		seed, hasSeed := seeds[key]

		switch {
		case !hasSeed:
			result.Incomplete = append(result.Incomplete, &IncompleteUnitError{
				Base: key.base, Index: key.index,
				Reason: fmt.Sprintf("no .%s file", p.SeedSuffix),
			})
			continue
		case !hasPrimary:
			result.Incomplete = append(result.Incomplete, &IncompleteUnitError{
				Base: key.base, Index: key.index,
				Reason: fmt.Sprintf("no .%s file", p.PrimarySuffix),
			})
			continue
		}

		result.Units = append(result.Units, WorkUnit{
			Base:  key.base,
			Index: key.index,
			Inputs: []Input{
				{Role: RolePrimary, File: primary},
				{Role: RoleSeed, File: seed},
			},
			Output: path.Join(key.dir, fmt.Sprintf("%s.%s.%s", key.base, key.index, p.OutputSuffix)),
		})
	}

	return result
}
