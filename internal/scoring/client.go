// Package scoring adapts the external risk scoring service.
package scoring

import (
	"context"
	"errors"
	"fmt"
	"math"

	"twinsim/internal/clinical"
)

// ErrScoring is matched by every failure returned from a scoring client.
var ErrScoring = errors.New("scoring failed")

// Request is the payload for one scoring call: the baseline plus the
// absolute values of the simulated fields.
type Request struct {
	Patient       clinical.Baseline `json:"patient"`
	Modifications clinical.Values   `json:"modifications"`
}

// Score is the service's answer. Risk reduction is derived locally.
type Score struct {
	OriginalRisk float64
	NewRisk      float64
}

// Validate rejects risks the engine cannot display.
func (s Score) Validate() error {
	for name, v := range map[string]float64{"original_risk": s.OriginalRisk, "new_risk": s.NewRisk} {
		if math.IsNaN(v) || v < 0 || v > 1 {
			return fmt.Errorf("%w: %s %v outside [0,1]", ErrScoring, name, v)
		}
	}
	return nil
}

// Client scores a counterfactual scenario. Implementations are stateless
// and never retry.
type Client interface {
	Simulate(ctx context.Context, req Request) (Score, error)
}

// ClientFunc adapts a function to Client.
type ClientFunc func(ctx context.Context, req Request) (Score, error)

// Simulate calls f.
func (f ClientFunc) Simulate(ctx context.Context, req Request) (Score, error) {
	return f(ctx, req)
}

// ServiceError is a non-2xx response from the scoring service.
type ServiceError struct {
	Status int
	Detail string
}

func (e *ServiceError) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("scoring service returned %d", e.Status)
	}
	return fmt.Sprintf("scoring service returned %d: %s", e.Status, e.Detail)
}

// Is makes every ServiceError match ErrScoring.
func (e *ServiceError) Is(target error) bool {
	return target == ErrScoring
}

// Temporary reports whether the status is worth retrying by a fresh edit.
func (e *ServiceError) Temporary() bool {
	return e.Status == 429 || e.Status >= 500
}
