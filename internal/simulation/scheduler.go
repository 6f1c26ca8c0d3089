// Package simulation coalesces delta edits into scoring requests and keeps
// only the freshest response.
//
// Every edit re-arms a debounce timer. When the quiet period elapses the
// scheduler snapshots the deltas, tags a request with the next sequence
// number and hands it to the scoring client on its own goroutine. In-flight
// requests are never aborted; a response is applied only if its sequence
// number is still the highest one issued.
package simulation

import (
	"context"
	"fmt"
	"sync"
	"time"

	"twinsim/internal/clinical"
	"twinsim/internal/delta"
	"twinsim/internal/logging"
	"twinsim/internal/metrics"
	"twinsim/internal/scoring"
)

// Phase is the scheduler's state machine position.
type Phase int

const (
	PhaseIdle Phase = iota
	PhaseDebouncing
	PhaseRequesting
	PhaseResolved
	PhaseError
)

func (p Phase) String() string {
	switch p {
	case PhaseIdle:
		return "idle"
	case PhaseDebouncing:
		return "debouncing"
	case PhaseRequesting:
		return "requesting"
	case PhaseResolved:
		return "resolved"
	case PhaseError:
		return "error"
	}
	return fmt.Sprintf("phase(%d)", int(p))
}

// Settled reports whether no work is pending in this phase.
func (p Phase) Settled() bool {
	return p == PhaseIdle || p == PhaseResolved || p == PhaseError
}

// Source provides the live delta set. *delta.Store satisfies it.
type Source interface {
	Snapshot() delta.Set
}

// Request is an issued scoring call. It is never mutated.
type Request struct {
	Seq      uint64
	Deltas   delta.Set
	Values   clinical.Values
	IssuedAt time.Time
}

// Result is a resolved projection for the scenario in Deltas.
type Result struct {
	Seq           uint64
	Deltas        delta.Set
	Values        clinical.Values
	OriginalRisk  float64
	NewRisk       float64
	RiskReduction float64
	ResolvedAt    time.Time
}

// State is a point-in-time copy of the scheduler.
type State struct {
	Phase      Phase
	Result     *Result // nil when no scenario is displayed
	LastError  error   // failure of the most recent request, if any
	LastIssued uint64
	InFlight   int
}

// Options configures a Scheduler.
type Options struct {
	Debounce  time.Duration
	SessionID string
}

// Scheduler drives Idle → Debouncing → Requesting → Resolved | Error.
type Scheduler struct {
	baseline  clinical.Baseline
	source    Source
	client    scoring.Client
	debouncer *Debouncer
	log       *logging.RequestLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	phase     Phase
	seq       uint64 // highest sequence number issued or retired
	armGen    uint64
	armed     bool
	result    *Result
	lastErr   error
	inFlight  int
	closed    bool
	observers []func()
	changed   chan struct{}
}

// New creates a scheduler for one baseline. The baseline is copied.
func New(baseline clinical.Baseline, source Source, client scoring.Client, opts Options) *Scheduler {
	if opts.Debounce <= 0 {
		opts.Debounce = DefaultInterval
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &Scheduler{
		baseline:  baseline,
		source:    source,
		client:    client,
		debouncer: NewDebouncer(opts.Debounce),
		log:       logging.WithRequestID(logging.CategoryScheduler, opts.SessionID),
		ctx:       ctx,
		cancel:    cancel,
		changed:   make(chan struct{}),
	}
}

// OnChange registers fn to run after every state change. Observers run
// outside the scheduler lock and should call Snapshot to read the state.
func (s *Scheduler) OnChange(fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.observers = append(s.observers, fn)
}

// Notify records a delta edit: the pending timer is cancelled and a new one
// armed for the full quiet period.
func (s *Scheduler) Notify() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.armGen++
	gen := s.armGen
	s.armed = true
	s.phase = PhaseDebouncing
	s.debouncer.Debounce(func() { s.fire(gen) })
	s.mu.Unlock()

	metrics.DebounceArmed.Inc()
	s.log.Debug("debounce armed (gen %d)", gen)
	s.broadcast()
}

// Flush fires a pending debounce now. It reports whether one was pending.
func (s *Scheduler) Flush() bool {
	return s.debouncer.Flush()
}

func (s *Scheduler) fire(gen uint64) {
	s.mu.Lock()
	if s.closed || gen != s.armGen {
		s.mu.Unlock()
		return
	}
	s.armed = false

	deltas := s.source.Snapshot()
	if deltas.IsZero() {
		// Retire whatever is in flight so it cannot resurrect a result.
		s.seq++
		s.result = nil
		s.lastErr = nil
		s.phase = PhaseIdle
		s.mu.Unlock()

		metrics.ResultsCleared.Inc()
		s.log.Info("all deltas zero, cleared result")
		s.broadcast()
		return
	}

	s.seq++
	req := Request{
		Seq:      s.seq,
		Deltas:   deltas,
		Values:   deltas.Apply(s.baseline),
		IssuedAt: time.Now(),
	}
	s.phase = PhaseRequesting
	s.inFlight++
	s.wg.Add(1)
	s.mu.Unlock()

	metrics.RequestsIssued.Inc()
	s.log.WithField("seq", req.Seq).Info("issuing simulation request %s", req.Deltas)
	s.broadcast()

	go s.run(req)
}

func (s *Scheduler) run(req Request) {
	defer s.wg.Done()
	score, err := s.client.Simulate(s.ctx, scoring.Request{
		Patient:       s.baseline,
		Modifications: req.Values,
	})
	if err == nil {
		err = score.Validate()
	}
	s.resolve(req, score, err)
}

func (s *Scheduler) resolve(req Request, score scoring.Score, err error) {
	log := s.log.WithField("seq", req.Seq)

	s.mu.Lock()
	s.inFlight--
	if s.closed {
		s.mu.Unlock()
		return
	}
	if req.Seq != s.seq {
		latest := s.seq
		s.mu.Unlock()

		if err != nil {
			log.Debug("stale request failed, ignoring: %v", err)
		} else {
			log.Debug("discarding stale response (latest %d)", latest)
		}
		metrics.Responses.WithLabelValues(metrics.OutcomeStale).Inc()
		s.broadcast()
		return
	}

	next := PhaseResolved
	if err != nil {
		next = PhaseError
		s.lastErr = err
	} else {
		s.lastErr = nil
		s.result = &Result{
			Seq:           req.Seq,
			Deltas:        req.Deltas,
			Values:        req.Values,
			OriginalRisk:  score.OriginalRisk,
			NewRisk:       score.NewRisk,
			RiskReduction: score.OriginalRisk - score.NewRisk,
			ResolvedAt:    time.Now(),
		}
	}
	// A newer edit is already counting down; it owns the phase.
	if !s.armed {
		s.phase = next
	}
	s.mu.Unlock()

	if err != nil {
		metrics.Responses.WithLabelValues(metrics.OutcomeFailed).Inc()
		log.Error("simulation failed: %v", err)
		logging.ScoringError("seq %d: %v", req.Seq, err)
	} else {
		metrics.Responses.WithLabelValues(metrics.OutcomeApplied).Inc()
		log.Info("applied result original=%.4f new=%.4f", score.OriginalRisk, score.NewRisk)
	}
	s.broadcast()
}

// Snapshot returns a copy of the current state.
func (s *Scheduler) Snapshot() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

func (s *Scheduler) snapshotLocked() State {
	st := State{
		Phase:      s.phase,
		LastError:  s.lastErr,
		LastIssued: s.seq,
		InFlight:   s.inFlight,
	}
	if s.result != nil {
		r := *s.result
		st.Result = &r
	}
	return st
}

// Await blocks until cond holds for the current state or ctx is done.
func (s *Scheduler) Await(ctx context.Context, cond func(State) bool) (State, error) {
	for {
		s.mu.Lock()
		st := s.snapshotLocked()
		ch := s.changed
		s.mu.Unlock()

		if cond(st) {
			return st, nil
		}
		select {
		case <-ch:
		case <-ctx.Done():
			return st, ctx.Err()
		}
	}
}

func (s *Scheduler) broadcast() {
	s.mu.Lock()
	close(s.changed)
	s.changed = make(chan struct{})
	observers := make([]func(), len(s.observers))
	copy(observers, s.observers)
	s.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Close stops the timer, retires in-flight requests and waits for their
// goroutines to return. Results arriving after Close are ignored.
func (s *Scheduler) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	s.armed = false
	s.seq++
	issued := s.seq
	s.mu.Unlock()

	s.debouncer.Cancel()
	s.cancel()
	s.wg.Wait()
	s.broadcast()
	logging.Scheduler("scheduler closed at seq %d", issued)
}
