// Package session binds one patient baseline to a delta store, a debounce
// scheduler and a narrative orchestrator.
package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"twinsim/internal/clinical"
	"twinsim/internal/delta"
	"twinsim/internal/logging"
	"twinsim/internal/metrics"
	"twinsim/internal/narrative"
	"twinsim/internal/scoring"
	"twinsim/internal/simulation"
)

// ErrNoScenario is returned when a narrative is requested without a
// displayed simulation result for the live deltas.
var ErrNoScenario = errors.New("no simulated scenario to analyze")

// Options configures a Session.
type Options struct {
	Bounds    clinical.Table // nil means clinical.DefaultTable()
	Debounce  time.Duration  // zero means simulation.DefaultInterval
	Scoring   scoring.Client
	Narrative narrative.Client // nil means narrative.OfflineClient
}

// Session is the engine instance for one baseline.
type Session struct {
	id       string
	baseline clinical.Baseline
	store    *delta.Store
	sched    *simulation.Scheduler
	narr     *narrative.Orchestrator
	log      *logging.RequestLogger

	closeOnce sync.Once
}

// New validates baseline and wires a fresh all-zero session around it.
func New(baseline clinical.Baseline, opts Options) (*Session, error) {
	if err := baseline.Validate(); err != nil {
		return nil, err
	}
	if opts.Scoring == nil {
		return nil, fmt.Errorf("scoring client is required")
	}
	if opts.Narrative == nil {
		opts.Narrative = narrative.OfflineClient{}
	}

	id := uuid.New().String()
	store := delta.NewStore(opts.Bounds)
	s := &Session{
		id:       id,
		baseline: baseline,
		store:    store,
		sched: simulation.New(baseline, store, opts.Scoring, simulation.Options{
			Debounce:  opts.Debounce,
			SessionID: id,
		}),
		narr: narrative.NewOrchestrator(opts.Narrative, store, id),
		log:  logging.WithRequestID(logging.CategorySession, id),
	}

	// The report is dropped before the scheduler re-arms, so no observer can
	// see a narrative next to deltas it does not describe.
	store.Subscribe(func(delta.Set) {
		s.narr.Invalidate()
		s.sched.Notify()
	})

	metrics.ActiveSessions.Inc()
	s.log.Info("session opened (bmi=%g HbA1c=%g glucose=%g)", baseline.BMI, baseline.HbA1c, baseline.Glucose)
	return s, nil
}

// ID returns the session's UUID.
func (s *Session) ID() string { return s.id }

// Baseline returns the session's baseline profile.
func (s *Session) Baseline() clinical.Baseline { return s.baseline }

// SetDelta stores a clamped offset for field.
func (s *Session) SetDelta(f clinical.Field, value float64) (float64, bool) {
	applied, changed := s.store.Set(f, value)
	if changed {
		s.log.Debug("set %s=%g", f, applied)
	}
	return applied, changed
}

// Nudge moves field by steps slider steps.
func (s *Session) Nudge(f clinical.Field, steps int) (float64, bool) {
	applied, changed := s.store.Nudge(f, steps)
	if changed {
		s.log.Debug("nudge %s by %d -> %g", f, steps, applied)
	}
	return applied, changed
}

// Reset zeros every delta.
func (s *Session) Reset() bool {
	changed := s.store.Reset()
	if changed {
		s.log.Info("deltas reset")
	}
	return changed
}

// Flush issues a pending debounced request now.
func (s *Session) Flush() bool {
	return s.sched.Flush()
}

// RequestNarrative asks for an explanation of the displayed result. The
// result must describe the live deltas.
func (s *Session) RequestNarrative(ctx context.Context) error {
	st := s.sched.Snapshot()
	if st.Result == nil {
		return ErrNoScenario
	}
	live := s.store.Snapshot()
	if !st.Result.Deltas.Equal(live) {
		return fmt.Errorf("%w: result is for %s, deltas are now %s", ErrNoScenario, st.Result.Deltas, live)
	}
	s.narr.Request(ctx, s.baseline, live, narrative.Risks{
		Original: st.Result.OriginalRisk,
		New:      st.Result.NewRisk,
	})
	return nil
}

// OnChange registers fn to run after any scheduler or narrative change.
func (s *Session) OnChange(fn func()) {
	s.sched.OnChange(fn)
	s.narr.OnChange(fn)
}

// AwaitResult waits for the scheduler to settle and returns the displayed
// result, or the failure of the latest request.
func (s *Session) AwaitResult(ctx context.Context) (simulation.Result, error) {
	st, err := s.sched.Await(ctx, func(st simulation.State) bool {
		return st.InFlight == 0 && st.Phase.Settled()
	})
	if err != nil {
		return simulation.Result{}, err
	}
	if st.Phase == simulation.PhaseError {
		return simulation.Result{}, st.LastError
	}
	if st.Result == nil {
		return simulation.Result{}, ErrNoScenario
	}
	return *st.Result, nil
}

// AwaitNarrative waits for the loading narrative call to finish.
func (s *Session) AwaitNarrative(ctx context.Context) (narrative.Report, error) {
	st, err := s.narr.Await(ctx, func(st narrative.State) bool { return !st.Loading })
	if err != nil {
		return narrative.Report{}, err
	}
	if st.LastError != nil {
		return narrative.Report{}, st.LastError
	}
	if st.Report == nil {
		return narrative.Report{}, fmt.Errorf("%w: report discarded by a later edit", narrative.ErrNarrative)
	}
	return *st.Report, nil
}

// Close stops the scheduler and orchestrator. Late responses are ignored.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.sched.Close()
		s.narr.Close()
		metrics.ActiveSessions.Dec()
		s.log.Info("session closed")
	})
}
