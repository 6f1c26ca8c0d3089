package narrative

import (
	"context"
	"sync"
	"time"

	"twinsim/internal/clinical"
	"twinsim/internal/delta"
	"twinsim/internal/logging"
	"twinsim/internal/metrics"
)

// Report is a narrative generated for the deltas in Snapshot.
type Report struct {
	Text        string
	Snapshot    delta.Set
	GeneratedAt time.Time
}

// Risks are the displayed scores the narrative explains.
type Risks struct {
	Original float64
	New      float64
}

// State is a point-in-time copy of the orchestrator.
type State struct {
	Report     *Report // nil unless a report matches the live deltas
	Loading    bool
	LastError  error
	Generation uint64
	InFlight   int
}

// Source provides the live delta set. *delta.Store satisfies it.
type Source interface {
	Snapshot() delta.Set
}

// Orchestrator runs narrative calls in the background and publishes a
// report only while it still describes the live deltas.
type Orchestrator struct {
	client Client
	source Source
	log    *logging.RequestLogger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu        sync.Mutex
	gen       uint64 // bumped by every trigger and every invalidation
	loading   bool
	inFlight  int
	report    *Report
	lastErr   error
	closed    bool
	observers []func()
	changed   chan struct{}
}

// NewOrchestrator creates an orchestrator around client. Reports are only
// published while source still holds the deltas they were generated from.
func NewOrchestrator(client Client, source Source, sessionID string) *Orchestrator {
	ctx, cancel := context.WithCancel(context.Background())
	return &Orchestrator{
		client:  client,
		source:  source,
		log:     logging.WithRequestID(logging.CategoryNarrative, sessionID),
		ctx:     ctx,
		cancel:  cancel,
		changed: make(chan struct{}),
	}
}

// OnChange registers fn to run after every state change, outside the lock.
func (o *Orchestrator) OnChange(fn func()) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.observers = append(o.observers, fn)
}

// Request starts a narrative for snapshot. Any report or loading call from an
// earlier trigger is superseded. The call is bound to ctx and to the
// orchestrator's lifetime. It returns the generation of the new trigger.
func (o *Orchestrator) Request(ctx context.Context, baseline clinical.Baseline, snapshot delta.Set, risks Risks) uint64 {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return 0
	}
	o.gen++
	gen := o.gen
	o.loading = true
	o.report = nil
	o.lastErr = nil
	o.inFlight++
	o.wg.Add(1)
	o.mu.Unlock()

	req := Request{
		Patient:       baseline,
		Modifications: snapshot.Apply(baseline),
		OriginalRisk:  risks.Original,
		NewRisk:       risks.New,
	}
	o.log.WithField("gen", gen).Info("narrative requested for %s", snapshot)
	o.broadcast()

	callCtx, cancel := context.WithCancel(o.ctx)
	stop := context.AfterFunc(ctx, cancel)
	go func() {
		defer o.wg.Done()
		defer cancel()
		defer stop()
		text, err := o.client.Narrate(callCtx, req)
		o.resolve(gen, snapshot, text, err)
	}()
	return gen
}

func (o *Orchestrator) resolve(gen uint64, snapshot delta.Set, text string, err error) {
	log := o.log.WithField("gen", gen)
	if err == nil {
		text, err = checkText(text)
	}
	// Read before locking: an edit after this read bumps the generation.
	diverged := o.source != nil && !o.source.Snapshot().Equal(snapshot)

	o.mu.Lock()
	o.inFlight--
	if o.closed {
		o.mu.Unlock()
		return
	}
	if gen != o.gen {
		current := o.gen
		o.mu.Unlock()
		log.Debug("discarding narrative for superseded generation (current %d)", current)
		metrics.Narratives.WithLabelValues(metrics.OutcomeStale).Inc()
		o.broadcast()
		return
	}
	if diverged {
		o.loading = false
		o.mu.Unlock()
		log.Info("discarding narrative for %s, deltas have moved on", snapshot)
		metrics.Narratives.WithLabelValues(metrics.OutcomeStale).Inc()
		o.broadcast()
		return
	}
	o.loading = false
	if err != nil {
		o.lastErr = err
	} else {
		o.report = &Report{Text: text, Snapshot: snapshot, GeneratedAt: time.Now()}
	}
	o.mu.Unlock()

	if err != nil {
		metrics.Narratives.WithLabelValues(metrics.OutcomeFailed).Inc()
		log.Error("narrative failed: %v", err)
		logging.NarrativeError("gen %d: %v", gen, err)
	} else {
		metrics.Narratives.WithLabelValues(metrics.OutcomeApplied).Inc()
		log.Info("narrative ready (%d chars)", len(text))
	}
	o.broadcast()
}

// Invalidate discards the current report and retires any loading call. The
// delta store calls it on every mutation. It reports whether anything was
// discarded.
func (o *Orchestrator) Invalidate() bool {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return false
	}
	o.gen++
	discarded := o.report != nil || o.loading
	o.report = nil
	o.loading = false
	o.lastErr = nil
	o.mu.Unlock()

	if !discarded {
		return false
	}
	metrics.NarrativesInvalidated.Inc()
	o.log.Debug("narrative invalidated by delta edit")
	o.broadcast()
	return true
}

// Snapshot returns a copy of the current state.
func (o *Orchestrator) Snapshot() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.snapshotLocked()
}

func (o *Orchestrator) snapshotLocked() State {
	st := State{
		Loading:    o.loading,
		LastError:  o.lastErr,
		Generation: o.gen,
		InFlight:   o.inFlight,
	}
	if o.report != nil {
		r := *o.report
		st.Report = &r
	}
	return st
}

// Await blocks until cond holds for the current state or ctx is done.
func (o *Orchestrator) Await(ctx context.Context, cond func(State) bool) (State, error) {
	for {
		o.mu.Lock()
		st := o.snapshotLocked()
		ch := o.changed
		o.mu.Unlock()

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

func (o *Orchestrator) broadcast() {
	o.mu.Lock()
	close(o.changed)
	o.changed = make(chan struct{})
	observers := make([]func(), len(o.observers))
	copy(observers, o.observers)
	o.mu.Unlock()

	for _, fn := range observers {
		fn()
	}
}

// Close cancels loading calls and waits for them to return.
func (o *Orchestrator) Close() {
	o.mu.Lock()
	if o.closed {
		o.mu.Unlock()
		return
	}
	o.closed = true
	o.loading = false
	o.gen++
	o.mu.Unlock()

	o.cancel()
	o.wg.Wait()
	o.broadcast()
}
