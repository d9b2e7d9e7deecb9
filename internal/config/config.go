// Package config defines the configuration for the cate calibration tool and
// loads it from files, environment variables and command-line flags.
package config

import (
	"fmt"

	"github.com/RikVolger/CaTE/internal/optimize"
)

// Config is the complete configuration for the cate application.
type Config struct {
	// Global settings
	LogLevel string `mapstructure:"log_level" yaml:"log_level" json:"log_level"`
	Verbose  bool   `mapstructure:"verbose" yaml:"verbose" json:"verbose"`

	// Calibration loop settings
	Calibration CalibrationConfig `mapstructure:"calibration" yaml:"calibration" json:"calibration"`

	// Nonlinear solver settings
	Solver optimize.LMConfig `mapstructure:"solver" yaml:"solver" json:"solver"`

	// Synthetic data generation settings (simulate command)
	Simulation SimulationConfig `mapstructure:"simulation" yaml:"simulation" json:"simulation"`
}

// CalibrationConfig contains alternating-loop settings.
type CalibrationConfig struct {
	// Iterations is the fixed triangulate/calibrate iteration budget.
	Iterations int `mapstructure:"iterations" yaml:"iterations" json:"iterations"`
	// PositionBound boxes position components to initial ± bound; 0 disables.
	PositionBound float64 `mapstructure:"position_bound" yaml:"position_bound" json:"position_bound"`
	// AngleBound boxes angles to initial ± bound in radians; 0 disables.
	AngleBound float64 `mapstructure:"angle_bound" yaml:"angle_bound" json:"angle_bound"`
}

// SimulationConfig contains synthetic scene settings.
type SimulationConfig struct {
	Views        int     `mapstructure:"views" yaml:"views" json:"views"`
	Markers      int     `mapstructure:"markers" yaml:"markers" json:"markers"`
	Noise        float64 `mapstructure:"noise" yaml:"noise" json:"noise"`
	Seed         int64   `mapstructure:"seed" yaml:"seed" json:"seed"`
	SourceDist   float64 `mapstructure:"source_dist" yaml:"source_dist" json:"source_dist"`
	DetectorDist float64 `mapstructure:"detector_dist" yaml:"detector_dist" json:"detector_dist"`
}

// Default returns the configuration defaults.
func Default() *Config {
	return &Config{
		LogLevel: "info",
		Calibration: CalibrationConfig{
			Iterations:    20,
			PositionBound: 10,
			AngleBound:    0.1,
		},
		Solver: optimize.DefaultLMConfig(),
		Simulation: SimulationConfig{
			Views:        8,
			Markers:      10,
			Noise:        0.25,
			Seed:         1,
			SourceDist:   1000,
			DetectorDist: 500,
		},
	}
}

// Validate checks the configuration for invalid combinations.
func (c *Config) Validate() error {
	switch c.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid log_level %q (want debug, info, warn or error)", c.LogLevel)
	}

	if c.Calibration.Iterations <= 0 {
		return fmt.Errorf("calibration.iterations must be positive, got %d", c.Calibration.Iterations)
	}
	if c.Calibration.PositionBound < 0 {
		return fmt.Errorf("calibration.position_bound must not be negative, got %g", c.Calibration.PositionBound)
	}
	if c.Calibration.AngleBound < 0 {
		return fmt.Errorf("calibration.angle_bound must not be negative, got %g", c.Calibration.AngleBound)
	}

	if c.Solver.Loss != optimize.LossLinear && c.Solver.Loss != optimize.LossHuber {
		return fmt.Errorf("invalid solver.loss %q (want linear or huber)", c.Solver.Loss)
	}
	if c.Solver.MaxIterations <= 0 {
		return fmt.Errorf("solver.max_iterations must be positive, got %d", c.Solver.MaxIterations)
	}
	if c.Solver.HuberDelta <= 0 {
		return fmt.Errorf("solver.huber_delta must be positive, got %g", c.Solver.HuberDelta)
	}

	if c.Simulation.Views < 2 {
		return fmt.Errorf("simulation.views must be at least 2, got %d", c.Simulation.Views)
	}
	if c.Simulation.Markers < 1 {
		return fmt.Errorf("simulation.markers must be at least 1, got %d", c.Simulation.Markers)
	}
	if c.Simulation.Noise < 0 {
		return fmt.Errorf("simulation.noise must not be negative, got %g", c.Simulation.Noise)
	}
	return nil
}
