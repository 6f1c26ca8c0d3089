package session

import (
	"twinsim/internal/clinical"
	"twinsim/internal/delta"
	"twinsim/internal/narrative"
	"twinsim/internal/simulation"
)

// FieldView is one slider row.
type FieldView struct {
	Bounds   clinical.Bounds
	Baseline float64
	Delta    float64
	Target   float64
}

// View is an immutable picture of the session for renderers.
type View struct {
	ID         string
	Baseline   clinical.Baseline
	Deltas     delta.Set
	Fields     []FieldView
	Simulation simulation.State
	Narrative  narrative.State
}

// Dirty reports whether the live deltas differ from the displayed result.
func (v View) Dirty() bool {
	if v.Simulation.Result == nil {
		return !v.Deltas.IsZero()
	}
	return !v.Simulation.Result.Deltas.Equal(v.Deltas)
}

// CanAnalyze reports whether RequestNarrative would be accepted.
func (v View) CanAnalyze() bool {
	return v.Simulation.Result != nil && !v.Dirty()
}

// View captures the current session state.
func (s *Session) View() View {
	deltas := s.store.Snapshot()
	v := View{
		ID:         s.id,
		Baseline:   s.baseline,
		Deltas:     deltas,
		Simulation: s.sched.Snapshot(),
		Narrative:  s.narr.Snapshot(),
	}
	for _, f := range clinical.Fields {
		b, ok := s.store.Bounds(f)
		if !ok {
			continue
		}
		base := s.baseline.Value(f)
		v.Fields = append(v.Fields, FieldView{
			Bounds:   b,
			Baseline: base,
			Delta:    deltas.Get(f),
			Target:   base + deltas.Get(f),
		})
	}
	return v
}
