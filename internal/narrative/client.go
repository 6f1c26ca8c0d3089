// Package narrative produces on-demand textual explanations of a simulated
// scenario and drops any explanation the user has since edited away from.
package narrative

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"twinsim/internal/clinical"
	"twinsim/internal/config"
)

// ErrNarrative is matched by every failure returned from a narrative client.
var ErrNarrative = errors.New("narrative failed")

// Request carries what a narrative client may explain: the baseline, the
// absolute targets and the risks already displayed for them. Only Patient and
// Modifications go over the wire to the report endpoint.
type Request struct {
	Patient       clinical.Baseline `json:"patient"`
	Modifications clinical.Values   `json:"modifications"`
	OriginalRisk  float64           `json:"-"`
	NewRisk       float64           `json:"-"`
}

// Client turns a scenario into explanatory text.
type Client interface {
	Narrate(ctx context.Context, req Request) (string, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (string, error)

// Narrate calls f.
func (f ClientFunc) Narrate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

// NewClient builds the client selected by cfg, wrapped with the offline
// fallback when cfg.Fallback is set.
func NewClient(ctx context.Context, cfg config.NarrativeConfig) (Client, error) {
	var primary Client
	switch cfg.Provider {
	case config.ProviderHTTP, "":
		primary = NewHTTPClient(HTTPConfig{BaseURL: cfg.BaseURL, Timeout: cfg.GetTimeout()})
	case config.ProviderGemini:
		c, err := NewGenAIClient(ctx, cfg.APIKey, cfg.Model)
		if err != nil {
			return nil, err
		}
		primary = c
	case config.ProviderOffline:
		return OfflineClient{}, nil
	default:
		return nil, fmt.Errorf("unknown narrative provider %q", cfg.Provider)
	}
	if cfg.Fallback {
		return &Fallback{Primary: primary, Secondary: OfflineClient{}}, nil
	}
	return primary, nil
}

func checkText(text string) (string, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return "", fmt.Errorf("%w: empty report", ErrNarrative)
	}
	return text, nil
}
