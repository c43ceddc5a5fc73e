package pipeline

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
)

// ErrPrerequisiteMissing means a required executable or input file is
// absent. Nothing is scanned or run.
var ErrPrerequisiteMissing = errors.New("prerequisite missing")

// IsPrerequisiteMissing checks if err reports a missing prerequisite
func IsPrerequisiteMissing(err error) bool {
	return errors.Is(err, ErrPrerequisiteMissing)
}

// resolve interprets name relative to workDir when it is a path.
func resolve(workDir, name string) string {
	if filepath.IsAbs(name) {
		return name
	}
	return filepath.Join(workDir, name)
}

// checkExecutable accepts a path (anything containing a separator, resolved
// against workDir) or a bare command name looked up on PATH.
func checkExecutable(workDir, name string) error {
	if !strings.ContainsRune(name, filepath.Separator) {
		if _, err := exec.LookPath(name); err != nil {
			return fmt.Errorf("%w: %s not found on PATH", ErrPrerequisiteMissing, name)
		}
		return nil
	}

	path := resolve(workDir, name)
	info, err := os.Stat(path)
	if err != nil {
		return fmt.Errorf("%w: %s not found", ErrPrerequisiteMissing, name)
	}
	if !info.Mode().IsRegular() || info.Mode().Perm()&0o111 == 0 {
		return fmt.Errorf("%w: %s is not executable", ErrPrerequisiteMissing, name)
	}
	return nil
}

func checkReadable(workDir, name string) error {
	f, err := os.Open(resolve(workDir, name))
	if err != nil {
		return fmt.Errorf("%w: %s not found", ErrPrerequisiteMissing, name)
	}
	return f.Close()
}
