package dispatch

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
)

// BatchFile is a temporary newline-delimited list of shell commands. It
// exists from NewBatchFile until Remove.
type BatchFile struct {
	path string
}

// NewBatchFile writes commands, one per line, to a new temporary file in
// dir. On failure nothing is left behind.
func NewBatchFile(dir string, commands []string) (*BatchFile, error) {
	f, err := os.CreateTemp(dir, "postproc-batch-*.sh")
	if err != nil {
		return nil, fmt.Errorf("create batch file: %w", err)
	}
	batch := &BatchFile{path: f.Name()}

	w := bufio.NewWriter(f)
	for _, cmd := range commands {
		w.WriteString(cmd)
		w.WriteByte('\n')
	}

	werr := w.Flush()
	cerr := f.Close()
	if err := errors.Join(werr, cerr); err != nil {
		batch.Remove()
		return nil, fmt.Errorf("write batch file: %w", err)
	}

	return batch, nil
}

// Path returns the batch file location.
func (b *BatchFile) Path() string {
	return b.path
}

// Open opens the batch file for reading, e.g. as a child's stdin.
func (b *BatchFile) Open() (*os.File, error) {
	return os.Open(b.path)
}

// Remove deletes the batch file. Removing twice is not an error.
func (b *BatchFile) Remove() error {
	err := os.Remove(b.path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}
