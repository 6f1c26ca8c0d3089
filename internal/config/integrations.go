package config

import (
	"fmt"
	"time"
)

// ScoringConfig configures the external risk scoring service.
type ScoringConfig struct {
	BaseURL string `yaml:"base_url"`
	Timeout string `yaml:"timeout"`
}

// GetTimeout returns the scoring timeout as a duration.
func (s ScoringConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(s.Timeout)
	if err != nil {
		return 15 * time.Second
	}
	return d
}

// Narrative providers.
const (
	ProviderHTTP    = "http"    // the scoring backend's /simulate/report endpoint
	ProviderGemini  = "gemini"  // Gemini via google.golang.org/genai
	ProviderOffline = "offline" // canned text computed from the risks
)

// ValidProviders lists all supported narrative providers.
var ValidProviders = []string{ProviderHTTP, ProviderGemini, ProviderOffline}

// NarrativeConfig configures narrative generation.
type NarrativeConfig struct {
	Provider string `yaml:"provider"`
	BaseURL  string `yaml:"base_url"`
	APIKey   string `yaml:"api_key,omitempty"`
	Model    string `yaml:"model"`
	Timeout  string `yaml:"timeout"`

	// Fallback to the offline text when the provider fails.
	Fallback bool `yaml:"fallback"`
}

// GetTimeout returns the narrative timeout as a duration.
func (n NarrativeConfig) GetTimeout() time.Duration {
	d, err := time.ParseDuration(n.Timeout)
	if err != nil {
		return 120 * time.Second
	}
	return d
}

func (n NarrativeConfig) validate() error {
	valid := false
	for _, p := range ValidProviders {
		if n.Provider == p {
			valid = true
			break
		}
	}
	if !valid {
		return fmt.Errorf("invalid narrative provider: %s (valid: %v)", n.Provider, ValidProviders)
	}
	switch n.Provider {
	case ProviderHTTP:
		if n.BaseURL == "" {
			return fmt.Errorf("narrative base_url not configured (set narrative.base_url or TWIN_NARRATIVE_URL)")
		}
	case ProviderGemini:
		if n.APIKey == "" {
			return fmt.Errorf("gemini API key not configured (set GEMINI_API_KEY)")
		}
	}
	return nil
}
