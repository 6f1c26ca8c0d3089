package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"twinsim/internal/clinical"
)

// DefaultPath is where the CLI looks for a config file when --config is not set.
const DefaultPath = ".twin/config.yaml"

// Config holds all twinsim configuration.
type Config struct {
	Name    string `yaml:"name"`
	Version string `yaml:"version"`

	// StateDir holds logs and other runtime files.
	StateDir string `yaml:"state_dir"`

	// Scoring service
	Scoring ScoringConfig `yaml:"scoring"`

	// Narrative generation
	Narrative NarrativeConfig `yaml:"narrative"`

	// Debounce and field bounds
	Simulation SimulationConfig `yaml:"simulation"`

	// Logging
	Logging LoggingConfig `yaml:"logging"`

	// Prometheus endpoint
	Metrics MetricsConfig `yaml:"metrics"`
}

// SimulationConfig configures the debounce scheduler and delta bounds.
type SimulationConfig struct {
	// Quiet period after the last edit before a scoring request is issued.
	Debounce string `yaml:"debounce"`

	// Per-field bound overrides; unset fields keep the default table.
	Bounds []clinical.Bounds `yaml:"bounds,omitempty"`
}

// MetricsConfig configures the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Addr    string `yaml:"addr"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		Name:     "twinsim",
		Version:  "0.3.0",
		StateDir: ".twin",

		Scoring: ScoringConfig{
			BaseURL: "http://localhost:8000",
			Timeout: "15s",
		},

		Narrative: NarrativeConfig{
			Provider: ProviderHTTP,
			BaseURL:  "http://localhost:8000",
			Model:    "gemini-2.5-flash",
			Timeout:  "120s",
			Fallback: true,
		},

		Simulation: SimulationConfig{
			Debounce: "500ms",
		},

		Logging: LoggingConfig{
			Level:  "info",
			Format: "text",
		},

		Metrics: MetricsConfig{
			Enabled: false,
			Addr:    "127.0.0.1:9464",
		},
	}
}

// Load loads configuration from a YAML file.
func Load(path string) (*Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
		// Defaults if config file doesn't exist
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	cfg.applyEnvOverrides()

	return cfg, nil
}

// Save saves configuration to a YAML file.
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}

	return nil
}

// applyEnvOverrides applies environment variable overrides.
func (c *Config) applyEnvOverrides() {
	if url := os.Getenv("TWIN_SCORING_URL"); url != "" {
		c.Scoring.BaseURL = url
	}
	if url := os.Getenv("TWIN_NARRATIVE_URL"); url != "" {
		c.Narrative.BaseURL = url
	}
	if key := os.Getenv("GEMINI_API_KEY"); key != "" {
		c.Narrative.APIKey = key
		if c.Narrative.Provider == "" {
			c.Narrative.Provider = ProviderGemini
		}
	}
	if d := os.Getenv("TWIN_DEBOUNCE"); d != "" {
		c.Simulation.Debounce = d
	}
	if dir := os.Getenv("TWIN_STATE_DIR"); dir != "" {
		c.StateDir = dir
	}
}

// GetDebounce returns the debounce interval as a duration.
func (c *Config) GetDebounce() time.Duration {
	d, err := time.ParseDuration(c.Simulation.Debounce)
	if err != nil || d <= 0 {
		return 500 * time.Millisecond
	}
	return d
}

// BoundsTable returns the default bounds with configured overrides applied.
func (c *Config) BoundsTable() (clinical.Table, error) {
	return clinical.DefaultTable().WithOverrides(c.Simulation.Bounds)
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if c.Scoring.BaseURL == "" {
		return fmt.Errorf("scoring base_url not configured (set scoring.base_url or TWIN_SCORING_URL)")
	}
	if err := c.Narrative.validate(); err != nil {
		return err
	}
	if _, err := c.BoundsTable(); err != nil {
		return fmt.Errorf("simulation bounds: %w", err)
	}
	return nil
}
