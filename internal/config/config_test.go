package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultConfig(t *testing.T) {
	cfg := DefaultConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "input", cfg.InputDir)
	assert.Equal(t, ModeStrict, cfg.Mode)
	assert.Equal(t, 3, cfg.Cleaning.MaxPasses)
	assert.Equal(t, filepath.Join("input", "student_info.sqlite3"), cfg.SnapshotPath())
	assert.Equal(t, filepath.Join("input", "enrollments.dat"), cfg.EnrollmentsPath())
	assert.Equal(t, filepath.Join("input", "departments.json"), cfg.DepartmentsPath())
}

func TestLoadMissingFileYieldsDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "registrar.yaml")
	content := `
input_dir: /data/registrar
inputs:
  enrollments: term_2244.dat
output_path: /data/out/report.csv
mode: best-effort
cleaning:
  max_passes: 5
`
	require.NoError(t, os.WriteFile(path, []byte(content), 0644))

	cfg, err := Load(path)
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "/data/registrar", cfg.InputDir)
	assert.Equal(t, ModeBestEffort, cfg.Mode)
	assert.Equal(t, 5, cfg.Cleaning.MaxPasses)
	// Unset fields keep their defaults.
	assert.Equal(t, "registrar.db", cfg.DatabasePath)
	assert.Equal(t, "student_info.sqlite3", cfg.Inputs.Snapshot)
	assert.Equal(t, filepath.Join("/data/registrar", "term_2244.dat"), cfg.EnrollmentsPath())
}

func TestLoadInvalidYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.yaml")
	require.NoError(t, os.WriteFile(path, []byte("input_dir: [unclosed"), 0644))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestEnvOverrides(t *testing.T) {
	t.Setenv("REGISTRAR_INPUT_DIR", "/env/input")
	t.Setenv("REGISTRAR_DB", "/env/ws.db")
	t.Setenv("REGISTRAR_OUT", "/env/out.csv")
	t.Setenv("REGISTRAR_MODE", ModeBestEffort)

	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)

	assert.Equal(t, "/env/input", cfg.InputDir)
	assert.Equal(t, "/env/ws.db", cfg.DatabasePath)
	assert.Equal(t, "/env/out.csv", cfg.OutputPath)
	assert.Equal(t, ModeBestEffort, cfg.Mode)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{"defaults", func(c *Config) {}, false},
		{"best-effort mode", func(c *Config) { c.Mode = ModeBestEffort }, false},
		{"empty input dir", func(c *Config) { c.InputDir = "" }, true},
		{"empty database path", func(c *Config) { c.DatabasePath = "" }, true},
		{"empty output path", func(c *Config) { c.OutputPath = "" }, true},
		{"unknown mode", func(c *Config) { c.Mode = "lenient" }, true},
		{"zero passes", func(c *Config) { c.Cleaning.MaxPasses = 0 }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}
