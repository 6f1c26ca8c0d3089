package narrative

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"twinsim/internal/logging"
	"twinsim/internal/scoring"
)

// HTTPConfig holds configuration for the report endpoint client.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

var _ Client = (*HTTPClient)(nil)

// HTTPClient calls the backend's /simulate/report endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a report client. Reports are LLM generated, so the
// default timeout is generous.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 120 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

type reportResponse struct {
	Report string `json:"report"`
}

// Narrate posts the scenario and returns the report text.
func (c *HTTPClient) Narrate(ctx context.Context, req Request) (string, error) {
	timer := logging.StartTimer(logging.CategoryNarrative, "report")
	defer timer.StopWithThreshold(30 * time.Second)

	body, err := json.Marshal(req)
	if err != nil {
		return "", fmt.Errorf("%w: failed to marshal request: %v", ErrNarrative, err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/simulate/report", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: failed to create request: %v", ErrNarrative, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("%w: request failed: %w", ErrNarrative, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("%w: %w", ErrNarrative, scoring.DecodeError(resp))
	}

	var out reportResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("%w: failed to decode response: %v", ErrNarrative, err)
	}
	return checkText(out.Report)
}
