package scoring

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"twinsim/internal/logging"
	"twinsim/internal/metrics"
)

// HTTPConfig holds configuration for the HTTP scoring client.
type HTTPConfig struct {
	BaseURL string
	Timeout time.Duration
}

var _ Client = (*HTTPClient)(nil)

// HTTPClient calls the scoring backend's /simulate endpoint.
type HTTPClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewHTTPClient creates a scoring client.
func NewHTTPClient(cfg HTTPConfig) *HTTPClient {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 15 * time.Second
	}
	return &HTTPClient{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}
}

// simulateResponse omits risk_reduction; it is always recomputed locally.
type simulateResponse struct {
	OriginalRisk *float64 `json:"original_risk"`
	NewRisk      *float64 `json:"new_risk"`
}

type errorResponse struct {
	Detail string `json:"detail"`
}

// Simulate posts the scenario and decodes the projected risks.
func (c *HTTPClient) Simulate(ctx context.Context, req Request) (Score, error) {
	timer := logging.StartTimer(logging.CategoryScoring, "simulate")
	start := time.Now()
	defer func() {
		metrics.ScoringDuration.Observe(time.Since(start).Seconds())
		timer.StopWithThreshold(2 * time.Second)
	}()

	body, err := json.Marshal(req)
	if err != nil {
		return Score{}, fmt.Errorf("%w: failed to marshal request: %v", ErrScoring, err)
	}

	var resp simulateResponse
	if err := c.post(ctx, "/simulate", body, &resp); err != nil {
		return Score{}, err
	}
	if resp.OriginalRisk == nil || resp.NewRisk == nil {
		return Score{}, fmt.Errorf("%w: response missing risk fields", ErrScoring)
	}

	score := Score{OriginalRisk: *resp.OriginalRisk, NewRisk: *resp.NewRisk}
	if err := score.Validate(); err != nil {
		return Score{}, err
	}
	return score, nil
}

// Health checks the backend's /health endpoint.
func (c *HTTPClient) Health(ctx context.Context) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/health", nil)
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrScoring, err)
	}
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: health check: %w", ErrScoring, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return DecodeError(resp)
	}
	return nil
}

func (c *HTTPClient) post(ctx context.Context, path string, body []byte, out interface{}) error {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%w: failed to create request: %v", ErrScoring, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return fmt.Errorf("%w: request failed: %w", ErrScoring, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return DecodeError(resp)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: failed to decode response: %v", ErrScoring, err)
	}
	return nil
}

// DecodeError turns a non-2xx response into a *ServiceError, surfacing the
// backend's {"detail": ...} body when present.
func DecodeError(resp *http.Response) error {
	data, _ := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	var er errorResponse
	detail := strings.TrimSpace(string(data))
	if json.Unmarshal(data, &er) == nil && er.Detail != "" {
		detail = er.Detail
	}
	return &ServiceError{Status: resp.StatusCode, Detail: detail}
}
