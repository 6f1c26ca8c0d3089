package narrative

import (
	"context"
	"fmt"
)

// OfflineClient returns the canned analysis the backend serves when its
// language model is unavailable. It never fails.
type OfflineClient struct{}

// Narrate formats the improvement in percentage points.
func (OfflineClient) Narrate(_ context.Context, req Request) (string, error) {
	return fmt.Sprintf("Simulated Analysis: Reducing risk factors has improved the projected outcome by %.1f%%. "+
		"Sustained adherence to these targets is expected to yield long-term benefits. (AI Offline)",
		(req.OriginalRisk-req.NewRisk)*100), nil
}
