package pipeline

import (
	"fmt"
	"io/fs"
	"strings"

	"github.com/livinlefevreloca/postproc/lib/fileset"
)

// MergeConfig configures the stage that joins per-partition files
type MergeConfig struct {
	// Simulation output directory holding the partition directories
	WorkDir string `toml:"work_dir" yaml:"work_dir"`

	PartitionPrefix string `toml:"partition_prefix" yaml:"partition_prefix"`
	Extension       string `toml:"extension" yaml:"extension"`
	OutputDir       string `toml:"output_dir" yaml:"output_dir"`

	// Merge executable, relative to WorkDir unless absolute
	Executable string `toml:"executable" yaml:"executable"`
	Command    string `toml:"command" yaml:"command"`

	// Copy rank-0 seed files next to the merged output
	CopySeeds  bool   `toml:"copy_seeds" yaml:"copy_seeds"`
	SeedSuffix string `toml:"seed_suffix" yaml:"seed_suffix"`
}

// FlinesConfig configures the field-line tracing stage
type FlinesConfig struct {
	// Directory holding merged files and their seed files
	WorkDir string `toml:"work_dir" yaml:"work_dir"`

	Executable string `toml:"executable" yaml:"executable"`
	ConfigFile string `toml:"config_file" yaml:"config_file"`
	Command    string `toml:"command" yaml:"command"`

	PrimarySuffix string `toml:"primary_suffix" yaml:"primary_suffix"`
	SeedSuffix    string `toml:"seed_suffix" yaml:"seed_suffix"`
	OutputSuffix  string `toml:"output_suffix" yaml:"output_suffix"`
}

// DefaultMergeConfig matches the Athena id<N>/ layout and join_vtk.x
func DefaultMergeConfig() MergeConfig {
	return MergeConfig{
		WorkDir:         ".",
		PartitionPrefix: "id",
		Extension:       "vtk",
		OutputDir:       "merged",
		Executable:      "./join_vtk.x",
		Command:         "{exe} -o {output} {inputs}",
		CopySeeds:       true,
		SeedSuffix:      "seed.lis",
	}
}

// DefaultFlinesConfig matches the flines tracer and its input.fline file
func DefaultFlinesConfig() FlinesConfig {
	return FlinesConfig{
		WorkDir:       ".",
		Executable:    "./flines",
		ConfigFile:    "input.fline",
		Command:       "{exe} -i {config} files/vtk_file={primary} files/out_file={output} initial_condition/seed_file={seed}",
		PrimarySuffix: "vtk",
		SeedSuffix:    "seed.lis",
		OutputSuffix:  "flines",
	}
}

// Validate checks the merge stage configuration
func (c MergeConfig) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("merge work_dir must be specified")
	}
	if c.PartitionPrefix == "" {
		return fmt.Errorf("merge partition_prefix must be specified")
	}
	if err := validateSuffix("merge extension", c.Extension); err != nil {
		return err
	}
	if c.OutputDir == "" || c.OutputDir == "." {
		return fmt.Errorf("merge output_dir must be a subdirectory")
	}
	// Outputs are stat'ed through an fs.FS rooted at WorkDir.
	if !fs.ValidPath(c.OutputDir) {
		return fmt.Errorf("merge output_dir %q must be a clean relative path inside work_dir", c.OutputDir)
	}
	if _, ok := fileset.PartitionID(c.OutputDir, c.PartitionPrefix); ok {
		return fmt.Errorf("merge output_dir %q must not look like a partition directory", c.OutputDir)
	}
	if c.Executable == "" {
		return fmt.Errorf("merge executable must be specified")
	}
	if c.Command == "" {
		return fmt.Errorf("merge command must be specified")
	}
	if c.CopySeeds {
		if err := validateSuffix("merge seed_suffix", c.SeedSuffix); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks the flines stage configuration
func (c FlinesConfig) Validate() error {
	if c.WorkDir == "" {
		return fmt.Errorf("flines work_dir must be specified")
	}
	if c.Executable == "" {
		return fmt.Errorf("flines executable must be specified")
	}
	if c.ConfigFile == "" {
		return fmt.Errorf("flines config_file must be specified")
	}
	if c.Command == "" {
		return fmt.Errorf("flines command must be specified")
	}
	for name, suffix := range map[string]string{
		"flines primary_suffix": c.PrimarySuffix,
		"flines seed_suffix":    c.SeedSuffix,
		"flines output_suffix":  c.OutputSuffix,
	} {
		if err := validateSuffix(name, suffix); err != nil {
			return err
		}
	}
	if c.PrimarySuffix == c.SeedSuffix || c.PrimarySuffix == c.OutputSuffix || c.SeedSuffix == c.OutputSuffix {
		return fmt.Errorf("flines primary, seed and output suffixes must differ")
	}
	return nil
}

func validateSuffix(name, suffix string) error {
	if suffix == "" {
		return fmt.Errorf("%s must be specified", name)
	}
	if strings.HasPrefix(suffix, ".") || strings.ContainsRune(suffix, '/') {
		return fmt.Errorf("%s %q must not start with a dot or contain a slash", name, suffix)
	}
	return nil
}
