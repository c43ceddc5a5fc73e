package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/livinlefevreloca/postproc/internal/dispatch"
	"github.com/livinlefevreloca/postproc/internal/history"
	"github.com/livinlefevreloca/postproc/internal/pipeline"
)

// DefaultConfigFile is picked up from the working directory when no
// config file is named explicitly.
const DefaultConfigFile = "postproc.toml"

// Config represents the application configuration
type Config struct {
	Merge    pipeline.MergeConfig  `toml:"merge" yaml:"merge"`
	Flines   pipeline.FlinesConfig `toml:"flines" yaml:"flines"`
	Dispatch dispatch.Config       `toml:"dispatch" yaml:"dispatch"`
	History  history.Config        `toml:"history" yaml:"history"`
	Logging  LoggingConfig         `toml:"logging" yaml:"logging"`
}

// LoggingConfig holds logging settings
type LoggingConfig struct {
	Level  string `toml:"level" yaml:"level"`
	Format string `toml:"format" yaml:"format"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Merge:    pipeline.DefaultMergeConfig(),
		Flines:   pipeline.DefaultFlinesConfig(),
		Dispatch: dispatch.DefaultConfig(),
		History:  history.DefaultConfig(),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},
	}
}

// LoadFromFile loads configuration from a TOML or YAML file. The format is
// chosen by extension; anything other than .yaml or .yml is read as TOML.
func LoadFromFile(path string) (*Config, error) {
	// Start with defaults
	config := DefaultConfig()

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("config file does not exist: %s", path)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		if err := dec.Decode(config); err != nil && !errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	default:
		md, err := toml.Decode(string(data), config)
		if err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return nil, fmt.Errorf("unknown config key %q in %s", undecoded[0].String(), path)
		}
	}

	return config, nil
}

// LoadConfig loads configuration with the following precedence:
// 1. Default values
// 2. Config file: configPath, or DefaultConfigFile in dir if present
// 3. Command-line flags (handled by caller)
func LoadConfig(configPath, dir string) (*Config, error) {
	if configPath == "" {
		candidate := filepath.Join(dir, DefaultConfigFile)
		if _, err := os.Stat(candidate); err != nil {
			return DefaultConfig(), nil
		}
		configPath = candidate
	}

	return LoadFromFile(configPath)
}

// SetWorkDir points both stages at dir. Relative stage directories from
// the config file are kept relative to dir.
func (c *Config) SetWorkDir(dir string) {
	c.Merge.WorkDir = joinDir(dir, c.Merge.WorkDir)
	c.Flines.WorkDir = joinDir(dir, c.Flines.WorkDir)
}

func joinDir(dir, sub string) string {
	switch {
	case sub == "":
		return dir
	case filepath.IsAbs(sub):
		return sub
	}
	return filepath.Join(dir, sub)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if err := c.Merge.Validate(); err != nil {
		return err
	}
	if err := c.Flines.Validate(); err != nil {
		return err
	}
	if err := c.Dispatch.Validate(); err != nil {
		return err
	}

	// History validation
	if c.History.Enabled {
		if c.History.Driver != "sqlite3" {
			return fmt.Errorf("unsupported history driver: %s (must be sqlite3)", c.History.Driver)
		}
		if c.History.DSN == "" {
			return fmt.Errorf("history DSN must be specified")
		}
		if c.History.MaxOpenConns <= 0 {
			return fmt.Errorf("history max_open_conns must be positive")
		}
	}

	// Logging validation
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("invalid log level: %s (must be debug, info, warn, or error)", c.Logging.Level)
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("invalid log format: %s (must be text or json)", c.Logging.Format)
	}

	return nil
}
