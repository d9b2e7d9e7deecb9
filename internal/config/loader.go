package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

const (
	// ConfigFileName is the base name for configuration files (without
	// extension).
	ConfigFileName = "cate"

	// EnvPrefix is the prefix for environment variables.
	EnvPrefix = "CATE"
)

// Loader handles loading configuration from various sources.
type Loader struct {
	v *viper.Viper
}

// NewLoader creates a new configuration loader on the global viper instance
// so cobra flag bindings take effect.
func NewLoader() *Loader {
	return &Loader{v: viper.GetViper()}
}

// Load loads configuration from files, environment variables and defaults,
// then validates it.
func (l *Loader) Load() (*Config, error) {
	l.v.SetConfigName(ConfigFileName)
	l.v.SetConfigType("yaml")
	l.addConfigPaths()
	l.setupEnvironmentVariables()
	l.setDefaults()

	if err := l.v.ReadInConfig(); err != nil {
		// A missing config file is fine: defaults and env vars apply.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	var config Config
	if err := l.v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return &config, nil
}

// SetConfigFile points the loader at an explicit configuration file.
func (l *Loader) SetConfigFile(path string) {
	l.v.SetConfigFile(path)
}

func (l *Loader) addConfigPaths() {
	l.v.AddConfigPath(".")
	if home, err := os.UserHomeDir(); err == nil {
		l.v.AddConfigPath(home)
		l.v.AddConfigPath(filepath.Join(home, ".config", "cate"))
	}
	l.v.AddConfigPath("/etc/cate")
}

func (l *Loader) setupEnvironmentVariables() {
	l.v.SetEnvPrefix(EnvPrefix)
	l.v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	l.v.AutomaticEnv()
}

func (l *Loader) setDefaults() {
	def := Default()

	l.v.SetDefault("log_level", def.LogLevel)
	l.v.SetDefault("verbose", def.Verbose)

	l.v.SetDefault("calibration.iterations", def.Calibration.Iterations)
	l.v.SetDefault("calibration.position_bound", def.Calibration.PositionBound)
	l.v.SetDefault("calibration.angle_bound", def.Calibration.AngleBound)

	l.v.SetDefault("solver.loss", string(def.Solver.Loss))
	l.v.SetDefault("solver.huber_delta", def.Solver.HuberDelta)
	l.v.SetDefault("solver.max_iterations", def.Solver.MaxIterations)
	l.v.SetDefault("solver.cost_tolerance", def.Solver.CostTolerance)
	l.v.SetDefault("solver.step_tolerance", def.Solver.StepTolerance)
	l.v.SetDefault("solver.initial_damping", def.Solver.InitialDamping)

	l.v.SetDefault("simulation.views", def.Simulation.Views)
	l.v.SetDefault("simulation.markers", def.Simulation.Markers)
	l.v.SetDefault("simulation.noise", def.Simulation.Noise)
	l.v.SetDefault("simulation.seed", def.Simulation.Seed)
	l.v.SetDefault("simulation.source_dist", def.Simulation.SourceDist)
	l.v.SetDefault("simulation.detector_dist", def.Simulation.DetectorDist)
}
