package narrative

import (
	"context"
	"errors"

	"twinsim/internal/logging"
)

// Fallback tries Primary and answers from Secondary when it fails.
// Cancellation is not a failure and is returned as is.
type Fallback struct {
	Primary   Client
	Secondary Client
}

// Narrate implements Client.
func (f *Fallback) Narrate(ctx context.Context, req Request) (string, error) {
	text, err := f.Primary.Narrate(ctx, req)
	if err == nil {
		return text, nil
	}
	if errors.Is(err, context.Canceled) || ctx.Err() != nil {
		return "", err
	}
	logging.Get(logging.CategoryNarrative).Warn("primary narrative client failed, falling back: %v", err)
	return f.Secondary.Narrate(ctx, req)
}
