// Package config loads hydrasim settings from YAML files and environment
// variables. Order: defaults -> config file -> environment -> CLI flags.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/talgya/seraphin/internal/hydra"
	"github.com/talgya/seraphin/internal/logging"
	"github.com/talgya/seraphin/internal/quantum"
)

// Config contains all hydrasim settings.
type Config struct {
	Simulation SimulationConfig `json:"simulation" yaml:"simulation"`
	Storage    StorageConfig    `json:"storage" yaml:"storage"`
	Render     RenderConfig     `json:"render" yaml:"render"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
	API        APIConfig        `json:"api" yaml:"api"`
}

// SimulationConfig configures a run.
type SimulationConfig struct {
	// Model selects the rule set: "core" or "ultimate".
	Model    string `json:"model" yaml:"model"`
	Pulses   int    `json:"pulses" yaml:"pulses"`
	MaxDepth int    `json:"max_depth" yaml:"max_depth"`

	// ForcedMode routes deep or "complex" hydras through the quantum optimizer.
	ForcedMode bool `json:"forced_mode" yaml:"forced_mode"`

	// Seed makes runs reproducible. 0 draws from crypto/rand.
	Seed int64 `json:"seed" yaml:"seed"`

	// Budget overrides the spawn budget: 0 keeps the model default, -1 is unbounded.
	Budget int `json:"budget" yaml:"budget"`

	// Backend is the quantum optimizer: "fallback" or "sampler".
	Backend string `json:"backend" yaml:"backend"`
	Shots   int    `json:"shots" yaml:"shots"`
}

// StorageConfig locates the run store.
type StorageConfig struct {
	// Path is the SQLite file. Empty disables persistence.
	Path string `json:"path" yaml:"path"`
}

// RenderConfig configures the Julia hydra image.
type RenderConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Dir     string `json:"dir" yaml:"dir"`
	Width   int    `json:"width" yaml:"width"`
	Height  int    `json:"height" yaml:"height"`
	MaxIter int    `json:"max_iter" yaml:"max_iter"`
}

// LoggingConfig sets the log verbosity: "debug", "info" (default), "warn" or "error".
type LoggingConfig struct {
	Level string `json:"level" yaml:"level"`
}

// APIConfig configures the read-only HTTP API.
type APIConfig struct {
	Port              int `json:"port" yaml:"port"`
	RenderRatePerHour int `json:"render_rate_per_hour" yaml:"render_rate_per_hour"`
}

// Default returns a Config with the stock run parameters.
func Default() *Config {
	return &Config{
		Simulation: SimulationConfig{
			Model:    hydra.ModelUltimate.String(),
			Pulses:   1000,
			MaxDepth: 15,
			Backend:  "fallback",
			Shots:    quantum.DefaultShots,
		},
		Storage: StorageConfig{
			Path: "data/hydrasim.db",
		},
		Render: RenderConfig{
			Dir:     ".",
			Width:   1000,
			Height:  1000,
			MaxIter: 300,
		},
		Logging: LoggingConfig{
			Level: "info",
		},
		API: APIConfig{
			Port:              8080,
			RenderRatePerHour: 60,
		},
	}
}

// Load reads defaults, then path when it exists, then environment overrides.
// An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := os.Stat(path); err == nil {
			fileCfg, err := LoadFromFile(path)
			if err != nil {
				return nil, fmt.Errorf("loading config file: %w", err)
			}
			cfg = fileCfg
		} else if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("checking config file: %w", err)
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadFromFile loads configuration from a YAML file on top of the defaults.
func LoadFromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	cfg.Storage.Path = os.ExpandEnv(cfg.Storage.Path)
	cfg.Render.Dir = os.ExpandEnv(cfg.Render.Dir)
	return cfg, nil
}

// Validate checks that the configuration is usable.
func (c *Config) Validate() error {
	if _, err := hydra.ParseModel(c.Simulation.Model); err != nil {
		return err
	}
	if c.Simulation.Pulses < 1 {
		return fmt.Errorf("pulses must be positive, got %d", c.Simulation.Pulses)
	}
	if c.Simulation.MaxDepth < 0 {
		return fmt.Errorf("max_depth must be non-negative, got %d", c.Simulation.MaxDepth)
	}
	if c.Simulation.Budget < hydra.Unbounded {
		return fmt.Errorf("budget must be -1, 0 or positive, got %d", c.Simulation.Budget)
	}
	switch strings.ToLower(c.Simulation.Backend) {
	case "", "fallback", "sampler":
	default:
		return fmt.Errorf("invalid backend: %s (valid: fallback, sampler)", c.Simulation.Backend)
	}
	if c.Simulation.Shots < 0 {
		return fmt.Errorf("shots must be non-negative, got %d", c.Simulation.Shots)
	}
	if c.Render.Enabled && (c.Render.Width < 1 || c.Render.Height < 1 || c.Render.MaxIter < 1) {
		return fmt.Errorf("render size and max_iter must be positive, got %dx%d/%d",
			c.Render.Width, c.Render.Height, c.Render.MaxIter)
	}
	if !logging.ValidLevel(c.Logging.Level) {
		return fmt.Errorf("invalid log level: %s (valid: debug, info, warn, error)", c.Logging.Level)
	}
	if c.API.Port < 0 || c.API.Port > 65535 {
		return fmt.Errorf("api port out of range: %d", c.API.Port)
	}
	if c.API.RenderRatePerHour < 1 {
		return fmt.Errorf("render_rate_per_hour must be positive, got %d", c.API.RenderRatePerHour)
	}
	return nil
}

// applyEnvOverrides applies HYDRA_* environment variables to cfg.
func applyEnvOverrides(cfg *Config) error {
	if v := os.Getenv("HYDRA_MODEL"); v != "" {
		cfg.Simulation.Model = v
	}
	if v := os.Getenv("HYDRA_FORCED"); v != "" {
		cfg.Simulation.ForcedMode = v == "true" || v == "1"
	}
	if v := os.Getenv("HYDRA_DB"); v != "" {
		cfg.Storage.Path = v
	}
	if v := os.Getenv("HYDRA_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	ints := []struct {
		key string
		dst *int
	}{
		{"HYDRA_PULSES", &cfg.Simulation.Pulses},
		{"HYDRA_MAX_DEPTH", &cfg.Simulation.MaxDepth},
		{"HYDRA_API_PORT", &cfg.API.Port},
	}
	for _, e := range ints {
		v := os.Getenv(e.key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("parsing %s: %w", e.key, err)
		}
		*e.dst = n
	}

	if v := os.Getenv("HYDRA_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("parsing HYDRA_SEED: %w", err)
		}
		cfg.Simulation.Seed = n
	}
	return nil
}
