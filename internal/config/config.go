// Package config holds the pipeline run configuration: input locations,
// workspace path, output path, and the cleaning and enforcement knobs.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"
)

// Enforcement failure modes.
const (
	// ModeStrict aborts the run when constraint enforcement fails.
	ModeStrict = "strict"
	// ModeBestEffort continues to aggregation after an enforcement failure
	// and marks the resulting report uncertified.
	ModeBestEffort = "best-effort"
)

// Config holds all registrar configuration.
type Config struct {
	// InputDir is the directory holding the three input files.
	InputDir string `yaml:"input_dir"`

	// Inputs names the three files inside InputDir.
	Inputs InputsConfig `yaml:"inputs"`

	// DatabasePath is the workspace SQLite file. It persists after a run so
	// external tooling can verify the enforced schema.
	DatabasePath string `yaml:"database_path"`

	// OutputPath is the report CSV destination.
	OutputPath string `yaml:"output_path"`

	// Mode is strict or best-effort (see the mode constants).
	Mode string `yaml:"mode"`

	// Cleaning controls the validate-clean loop.
	Cleaning CleaningConfig `yaml:"cleaning"`
}

// InputsConfig names the input files relative to InputDir.
type InputsConfig struct {
	Snapshot    string `yaml:"snapshot"`
	Enrollments string `yaml:"enrollments"`
	Departments string `yaml:"departments"`
}

// CleaningConfig controls the validate-clean fixpoint loop.
type CleaningConfig struct {
	// MaxPasses caps the number of cleaning passes before the run is
	// declared unrecoverable.
	MaxPasses int `yaml:"max_passes"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		InputDir: "input",
		Inputs: InputsConfig{
			Snapshot:    "student_info.sqlite3",
			Enrollments: "enrollments.dat",
			Departments: "departments.json",
		},
		DatabasePath: "registrar.db",
		OutputPath:   "output.csv",
		Mode:         ModeStrict,
		Cleaning: CleaningConfig{
			MaxPasses: 3,
		},
	}
}

// Load reads the configuration file at path, falling back to defaults for
// anything unset. A missing file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			cfg.applyEnvOverrides()
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if dir := os.Getenv("REGISTRAR_INPUT_DIR"); dir != "" {
		c.InputDir = dir
	}
	if path := os.Getenv("REGISTRAR_DB"); path != "" {
		c.DatabasePath = path
	}
	if path := os.Getenv("REGISTRAR_OUT"); path != "" {
		c.OutputPath = path
	}
	if mode := os.Getenv("REGISTRAR_MODE"); mode != "" {
		c.Mode = mode
	}
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.InputDir == "" {
		return fmt.Errorf("input_dir not configured")
	}
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path not configured")
	}
	if c.OutputPath == "" {
		return fmt.Errorf("output_path not configured")
	}
	if c.Mode != ModeStrict && c.Mode != ModeBestEffort {
		return fmt.Errorf("invalid mode: %s (valid: %s, %s)", c.Mode, ModeStrict, ModeBestEffort)
	}
	if c.Cleaning.MaxPasses < 1 {
		return fmt.Errorf("cleaning.max_passes must be at least 1")
	}
	return nil
}

// SnapshotPath returns the full path of the snapshot input.
func (c *Config) SnapshotPath() string {
	return filepath.Join(c.InputDir, c.Inputs.Snapshot)
}

// EnrollmentsPath returns the full path of the enrollment input.
func (c *Config) EnrollmentsPath() string {
	return filepath.Join(c.InputDir, c.Inputs.Enrollments)
}

// DepartmentsPath returns the full path of the department input.
func (c *Config) DepartmentsPath() string {
	return filepath.Join(c.InputDir, c.Inputs.Departments)
}
