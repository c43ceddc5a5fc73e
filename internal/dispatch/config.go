package dispatch

import (
	"fmt"
	"time"
)

// Config controls how jobs are executed
type Config struct {
	// External batch-parallel executor looked up on PATH. Empty disables
	// the parallel strategy.
	ParallelTool string   `toml:"parallel_tool" yaml:"parallel_tool"`
	ParallelArgs []string `toml:"parallel_args" yaml:"parallel_args"`

	// Directory for the temporary batch file; empty uses os.TempDir().
	BatchDir string `toml:"batch_dir" yaml:"batch_dir"`

	// Shell used by the sequential strategy to run one command line
	Shell string `toml:"shell" yaml:"shell"`

	ForceSequential bool `toml:"force_sequential" yaml:"force_sequential"`

	// Concurrent output stats while checking staleness
	StatConcurrency int `toml:"stat_concurrency" yaml:"stat_concurrency"`

	// How long a child gets to exit after an interrupt before it is killed
	InterruptGrace time.Duration `toml:"interrupt_grace" yaml:"interrupt_grace"`
}

// DefaultConfig mirrors the classic `parallel --verbose --delay 2 < batch` call
func DefaultConfig() Config {
	return Config{
		ParallelTool:    "parallel",
		ParallelArgs:    []string{"--verbose", "--delay", "2"},
		BatchDir:        "",
		Shell:           "/bin/sh",
		ForceSequential: false,
		StatConcurrency: 8,
		InterruptGrace:  10 * time.Second,
	}
}

// Validate checks the dispatch configuration
func (c Config) Validate() error {
	if c.Shell == "" {
		return fmt.Errorf("dispatch shell must be specified")
	}
	if c.StatConcurrency <= 0 {
		return fmt.Errorf("dispatch stat_concurrency must be positive, got %d", c.StatConcurrency)
	}
	if c.InterruptGrace < 0 {
		return fmt.Errorf("dispatch interrupt_grace must not be negative, got %v", c.InterruptGrace)
	}
	return nil
}
