package fileset

import (
	"slices"
	"testing"
	"testing/fstest"
	"time"

	"github.com/livinlefevreloca/postproc/internal/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func collect(s *Scanner) []SourceFile {
	return slices.Collect(s.Files())
}

func paths(files []SourceFile) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Path)
	}
	return out
}

func TestDiscoverPartitions(t *testing.T) {
	fsys := fstest.MapFS{
		"id0/cloud.0000.vtk":       {},
		"id10/cloud-id10.0000.vtk": {},
		"id2/cloud-id2.0000.vtk":   {},
		"idx/cloud.0000.vtk":       {},
		"merged/cloud.0000.vtk":    {},
		"id3":                      {Data: []byte("a file, not a directory")},
	}

	partitions, err := DiscoverPartitions(fsys, "id")
	require.NoError(t, err)

	assert.Equal(t, []Partition{
		{ID: 0, Dir: "id0"},
		{ID: 2, Dir: "id2"},
		{ID: 10, Dir: "id10"},
	}, partitions)
}

func TestDiscoverPartitions_Empty(t *testing.T) {
	partitions, err := DiscoverPartitions(fstest.MapFS{}, "id")
	require.NoError(t, err)
	assert.Empty(t, partitions)
}

func TestScanner_PartitionRoots(t *testing.T) {
	mtime := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	fsys := fstest.MapFS{
		"id0/cloud.0000.vtk":            {ModTime: mtime},
		"id0/cloud.0001.vtk":            {ModTime: mtime},
		"id0/cloud.0000.seed.lis":       {ModTime: mtime},
		"id1/cloud-id1.0000.vtk":        {ModTime: mtime},
		"id1/nested/cloud-id1.0002.vtk": {ModTime: mtime},
		"id1/notes.txt":                 {ModTime: mtime},
		"cloud.0003.vtk":                {ModTime: mtime},
	}

	roots := PartitionRoots([]Partition{{ID: 0, Dir: "id0"}, {ID: 1, Dir: "id1"}})
	logger := testutil.NewTestLogger()
	scanner := NewScanner(fsys, roots, Convention{PartitionPrefix: "id", Suffixes: []string{"vtk"}}, logger.Logger())

	files := collect(scanner)

	assert.Equal(t, []string{
		"id0/cloud.0000.vtk",
		"id0/cloud.0001.vtk",
		"id1/cloud-id1.0000.vtk",
	}, paths(files))

	assert.Equal(t, 0, files[0].Partition)
	assert.Equal(t, "", files[0].Name.Tag)
	assert.Equal(t, 1, files[2].Partition)
	assert.Equal(t, "id1", files[2].Name.Tag)
	assert.Equal(t, "cloud", files[2].Name.Base)
	assert.True(t, files[2].ModTime.Equal(mtime))

	// seed.lis (suffix) and notes.txt (convention)
	assert.Equal(t, 2, scanner.Skipped())
	assert.True(t, logger.HasDebug())
}

func TestScanner_PlainRoot(t *testing.T) {
	fsys := fstest.MapFS{
		"cloud.0005.vtk":      {},
		"cloud.0005.seed.lis": {},
		"cloud.0005.flines":   {},
		"input.fline":         {},
	}

	roots := []Root{{Dir: ".", Partition: NoPartition}}
	scanner := NewScanner(fsys, roots, Convention{Suffixes: []string{"vtk", "seed.lis"}}, testutil.NewTestLogger().Logger())

	files := collect(scanner)
	assert.Equal(t, []string{"cloud.0005.seed.lis", "cloud.0005.vtk"}, paths(files))
	for _, f := range files {
		assert.False(t, f.Partitioned())
	}
}

func TestScanner_NoMatchesIsEmpty(t *testing.T) {
	fsys := fstest.MapFS{
		"README":      {},
		"input.fline": {},
	}

	scanner := NewScanner(fsys, []Root{{Dir: ".", Partition: NoPartition}}, Convention{}, testutil.NewTestLogger().Logger())
	assert.Empty(t, collect(scanner))
}

func TestScanner_MissingRootIsSkipped(t *testing.T) {
	fsys := fstest.MapFS{"id0/cloud.0000.vtk": {}}
	logger := testutil.NewTestLogger()

	roots := []Root{{Dir: "gone", Partition: 4}, {Dir: "id0", Partition: 0}}
	scanner := NewScanner(fsys, roots, Convention{PartitionPrefix: "id"}, logger.Logger())

	assert.Equal(t, []string{"id0/cloud.0000.vtk"}, paths(collect(scanner)))
	assert.True(t, logger.HasWarning())
}

func TestScanner_StopsEarly(t *testing.T) {
	fsys := fstest.MapFS{
		"cloud.0000.vtk": {},
		"cloud.0001.vtk": {},
		"cloud.0002.vtk": {},
	}

	scanner := NewScanner(fsys, []Root{{Dir: ".", Partition: NoPartition}}, Convention{}, testutil.NewTestLogger().Logger())

	var seen []string
	for f := range scanner.Files() {
		seen = append(seen, f.Path)
		if len(seen) == 2 {
			break
		}
	}
	assert.Equal(t, []string{"cloud.0000.vtk", "cloud.0001.vtk"}, seen)
}
