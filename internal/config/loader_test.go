package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, Default().Calibration.Iterations, cfg.Calibration.Iterations)
	assert.Equal(t, Default().Solver.Loss, cfg.Solver.Loss)
}

func TestLoadFromFile(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	raw := "log_level: debug\ncalibration:\n  iterations: 7\nsolver:\n  loss: linear\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cate.yaml"), []byte(raw), 0o600))
	t.Chdir(dir)

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.Equal(t, 7, cfg.Calibration.Iterations)
	assert.Equal(t, "linear", string(cfg.Solver.Loss))
	// Untouched keys keep their defaults.
	assert.Equal(t, Default().Simulation.Views, cfg.Simulation.Views)
}

func TestLoadInvalidFileFailsValidation(t *testing.T) {
	viper.Reset()
	dir := t.TempDir()
	raw := "calibration:\n  iterations: -3\n"
	require.NoError(t, os.WriteFile(filepath.Join(dir, "cate.yaml"), []byte(raw), 0o600))
	t.Chdir(dir)

	_, err := NewLoader().Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "iterations")
}

func TestLoadFromEnvironment(t *testing.T) {
	viper.Reset()
	t.Chdir(t.TempDir())
	t.Setenv("CATE_LOG_LEVEL", "warn")
	t.Setenv("CATE_CALIBRATION_ITERATIONS", "3")

	cfg, err := NewLoader().Load()
	require.NoError(t, err)
	assert.Equal(t, "warn", cfg.LogLevel)
	assert.Equal(t, 3, cfg.Calibration.Iterations)
}
