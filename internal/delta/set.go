// Package delta holds the user's proposed offsets from a patient baseline.
package delta

import (
	"fmt"
	"strings"

	"twinsim/internal/clinical"
)

// Set is an immutable-by-value mapping from each simulateable field to its
// offset. Copies are independent, so a Set can be handed to asynchronous
// work without observing later edits.
type Set struct {
	offsets [clinical.NumFields]float64
}

// Get returns the offset for f, or 0 for unknown fields.
func (s Set) Get(f clinical.Field) float64 {
	i := f.Index()
	if i < 0 {
		return 0
	}
	return s.offsets[i]
}

// With returns a copy of s with f set to v. No clamping is applied.
func (s Set) With(f clinical.Field, v float64) Set {
	if i := f.Index(); i >= 0 {
		s.offsets[i] = v
	}
	return s
}

// IsZero reports whether every offset is zero.
func (s Set) IsZero() bool {
	return s == Set{}
}

// Equal reports whether both sets hold the same offsets.
func (s Set) Equal(o Set) bool {
	return s == o
}

// Apply returns baseline + offset for every simulateable field.
func (s Set) Apply(b clinical.Baseline) clinical.Values {
	out := make(clinical.Values, clinical.NumFields)
	for i, f := range clinical.Fields {
		out[f] = b.Value(f) + s.offsets[i]
	}
	return out
}

func (s Set) String() string {
	parts := make([]string, 0, clinical.NumFields)
	for i, f := range clinical.Fields {
		parts = append(parts, fmt.Sprintf("%s=%+g", f, s.offsets[i]))
	}
	return "{" + strings.Join(parts, " ") + "}"
}
