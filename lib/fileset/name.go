package fileset

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// IndexWidth is the fixed width of the timestep token in output filenames.
const IndexWidth = 4

// ErrNameMismatch is returned when a filename does not follow the
// <base>[-<tag>].<NNNN>.<suffix> convention.
var ErrNameMismatch = errors.New("fileset: filename does not match convention")

var nameRegex = regexp.MustCompile(`^(.+)\.([0-9]{4})\.([^/]+)$`)

// Name is the parsed identity of a simulation output filename.
//
//	cloud.0005.vtk        -> Base "cloud", Index "0005", Suffix "vtk"
//	cloud-id3.0005.vtk    -> Base "cloud", Index "0005", Suffix "vtk", Tag "id3"
//	cloud.0005.seed.lis   -> Base "cloud", Index "0005", Suffix "seed.lis"
type Name struct {
	Base   string
	Index  string
	Suffix string

	// Tag is the partition tag embedded in the stem, empty for rank-0 files.
	Tag string
}

// ParseName parses a bare filename (no directory). partitionPrefix is the
// prefix of partition tags, "id" for Athena output; when empty, no tag is
// split off the stem.
func ParseName(filename, partitionPrefix string) (Name, error) {
	if strings.ContainsRune(filename, '/') {
		return Name{}, fmt.Errorf("%w: %q contains a directory", ErrNameMismatch, filename)
	}

	matches := nameRegex.FindStringSubmatch(filename)
	if matches == nil {
		return Name{}, fmt.Errorf("%w: %q", ErrNameMismatch, filename)
	}

	name := Name{
		Base:   matches[1],
		Index:  matches[2],
		Suffix: matches[3],
	}

	if partitionPrefix != "" {
		if base, tag, ok := splitTag(name.Base, partitionPrefix); ok {
			name.Base = base
			name.Tag = tag
		}
	}

	if name.Base == "" {
		return Name{}, fmt.Errorf("%w: %q has an empty base name", ErrNameMismatch, filename)
	}

	return name, nil
}

// splitTag splits "cloud-id12" into ("cloud", "id12").
func splitTag(stem, prefix string) (string, string, bool) {
	dash := strings.LastIndexByte(stem, '-')
	if dash <= 0 {
		return "", "", false
	}
	tag := stem[dash+1:]
	if _, ok := PartitionID(tag, prefix); !ok {
		return "", "", false
	}
	return stem[:dash], tag, true
}

// PartitionID extracts N from "<prefix><N>". The numeric part must be a
// non-empty decimal.
func PartitionID(tag, prefix string) (int, bool) {
	digits, found := strings.CutPrefix(tag, prefix)
	if !found || digits == "" {
		return 0, false
	}
	for _, r := range digits {
		if r < '0' || r > '9' {
			return 0, false
		}
	}
	id, err := strconv.Atoi(digits)
	if err != nil {
		return 0, false
	}
	return id, true
}

// Step returns the numeric value of the timestep index.
func (n Name) Step() int {
	step, _ := strconv.Atoi(n.Index)
	return step
}

// Filename reassembles the name. It is the inverse of ParseName.
func (n Name) Filename() string {
	stem := n.Base
	if n.Tag != "" {
		stem += "-" + n.Tag
	}
	return stem + "." + n.Index + "." + n.Suffix
}

// FormatIndex renders a step as a zero-padded timestep token.
func FormatIndex(step int) string {
	return fmt.Sprintf("%0*d", IndexWidth, step)
}
