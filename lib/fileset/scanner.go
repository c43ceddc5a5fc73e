package fileset

import (
	"errors"
	"io/fs"
	"iter"
	"log/slog"
	"path"
	"slices"
	"sort"
	"time"
)

// NoPartition marks a SourceFile that does not live in a partition directory.
const NoPartition = -1

// SourceFile is one discovered file. Path is slash-separated and relative to
// the root of the scanned fs.FS.
type SourceFile struct {
	Path      string
	Name      Name
	Partition int
	ModTime   time.Time
}

// Partitioned reports whether the file came from a partition directory.
func (f SourceFile) Partitioned() bool {
	return f.Partition != NoPartition
}

// Convention describes which files a scan accepts.
type Convention struct {
	// PartitionPrefix names partition directories and filename tags
	// ("id" matches id0/, id1/ and cloud-id1.0000.vtk).
	PartitionPrefix string

	// Suffixes lists accepted suffixes after the timestep token, e.g.
	// "vtk" or "seed.lis". Empty accepts every suffix.
	Suffixes []string
}

func (c Convention) accepts(suffix string) bool {
	return len(c.Suffixes) == 0 || slices.Contains(c.Suffixes, suffix)
}

// Partition is a per-rank output directory directly under the scan root.
type Partition struct {
	ID  int
	Dir string
}

// DiscoverPartitions lists <prefix><N> directories at the root of fsys in
// ascending partition order. A missing root is an empty result.
func DiscoverPartitions(fsys fs.FS, prefix string) ([]Partition, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var partitions []Partition
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		id, ok := PartitionID(entry.Name(), prefix)
		if !ok {
			continue
		}
		partitions = append(partitions, Partition{ID: id, Dir: entry.Name()})
	}

	sort.Slice(partitions, func(i, j int) bool {
		return partitions[i].ID < partitions[j].ID
	})
	return partitions, nil
}

// Root is one directory to scan. Partition is NoPartition for plain
// directories.
type Root struct {
	Dir       string
	Partition int
}

// PartitionRoots turns discovered partitions into scan roots.
func PartitionRoots(partitions []Partition) []Root {
	roots := make([]Root, 0, len(partitions))
	for _, p := range partitions {
		roots = append(roots, Root{Dir: p.Dir, Partition: p.ID})
	}
	return roots
}

// Scanner enumerates files matching a Convention in a fixed set of roots.
// It never descends below a root.
type Scanner struct {
	fsys       fs.FS
	roots      []Root
	convention Convention
	logger     *slog.Logger

	skipped int
}

// NewScanner creates a scanner over fsys.
func NewScanner(fsys fs.FS, roots []Root, convention Convention, logger *slog.Logger) *Scanner {
	return &Scanner{
		fsys:       fsys,
		roots:      roots,
		convention: convention,
		logger:     logger,
	}
}

// Files returns a lazy sequence of matching files, root by root in the order
// given and by filename within a root. Unreadable roots and files that fail
// the naming convention are skipped with a diagnostic.
func (s *Scanner) Files() iter.Seq[SourceFile] {
	return func(yield func(SourceFile) bool) {
		for _, root := range s.roots {
			entries, err := fs.ReadDir(s.fsys, root.Dir)
			if err != nil {
				s.logger.Warn("skipping unreadable search root", "dir", root.Dir, "error", err)
				continue
			}

			for _, entry := range entries {
				if entry.IsDir() {
					continue
				}

				file, ok := s.sourceFile(root, entry)
				if !ok {
					s.skipped++
					continue
				}

				if !yield(file) {
					return
				}
			}
		}
	}
}

// Skipped returns how many non-directory entries the scan rejected so far.
func (s *Scanner) Skipped() int {
	return s.skipped
}

func (s *Scanner) sourceFile(root Root, entry fs.DirEntry) (SourceFile, bool) {
	filePath := path.Join(root.Dir, entry.Name())

	name, err := ParseName(entry.Name(), s.convention.PartitionPrefix)
	if err != nil {
		s.logger.Debug("ignoring file outside naming convention", "path", filePath)
		return SourceFile{}, false
	}
	if !s.convention.accepts(name.Suffix) {
		s.logger.Debug("ignoring file with unaccepted suffix", "path", filePath, "suffix", name.Suffix)
		return SourceFile{}, false
	}

	info, err := entry.Info()
	if err != nil {
		// Removed between ReadDir and Info.
		s.logger.Debug("ignoring vanished file", "path", filePath, "error", err)
		return SourceFile{}, false
	}

	return SourceFile{
		Path:      filePath,
		Name:      name,
		Partition: root.Partition,
		ModTime:   info.ModTime(),
	}, true
}
