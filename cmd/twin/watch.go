package main

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"twinsim/internal/clinical"
	"twinsim/internal/logging"
	"twinsim/internal/simulation"
)

// BaselineWatcher reloads a baseline file when it changes on disk. The
// parent directory is watched so editors that save by rename are seen too.
type BaselineWatcher struct {
	mu        sync.Mutex
	watcher   *fsnotify.Watcher
	path      string
	debouncer *simulation.Debouncer
	onChange  func(clinical.Baseline)
	onError   func(error)
	stopCh    chan struct{}
	doneCh    chan struct{}
	running   bool
}

// NewBaselineWatcher creates a watcher for path. Bursts of writes within
// quiet are coalesced into one reload.
func NewBaselineWatcher(path string, quiet time.Duration, onChange func(clinical.Baseline), onError func(error)) (*BaselineWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	if onError == nil {
		onError = func(error) {}
	}
	return &BaselineWatcher{
		watcher:   w,
		path:      abs,
		debouncer: simulation.NewDebouncer(quiet),
		onChange:  onChange,
		onError:   onError,
		stopCh:    make(chan struct{}),
		doneCh:    make(chan struct{}),
	}, nil
}

// Start begins watching. It is non-blocking.
func (bw *BaselineWatcher) Start(ctx context.Context) error {
	bw.mu.Lock()
	if bw.running {
		bw.mu.Unlock()
		return nil
	}
	bw.running = true
	bw.mu.Unlock()

	dir := filepath.Dir(bw.path)
	if err := bw.watcher.Add(dir); err != nil {
		return fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	logging.Session("watching baseline %s", bw.path)

	go bw.run(ctx)
	return nil
}

// Stop stops the watcher and waits for its goroutine.
func (bw *BaselineWatcher) Stop() {
	bw.mu.Lock()
	if !bw.running {
		bw.mu.Unlock()
		_ = bw.watcher.Close()
		return
	}
	bw.running = false
	bw.mu.Unlock()

	close(bw.stopCh)
	<-bw.doneCh
	bw.debouncer.Cancel()

	if err := bw.watcher.Close(); err != nil {
		logging.Get(logging.CategorySession).Error("baseline watcher: error closing: %v", err)
	}
}

func (bw *BaselineWatcher) run(ctx context.Context) {
	defer close(bw.doneCh)
	for {
		select {
		case <-ctx.Done():
			return
		case <-bw.stopCh:
			return
		case event, ok := <-bw.watcher.Events:
			if !ok {
				return
			}
			bw.handleEvent(event)
		case err, ok := <-bw.watcher.Errors:
			if !ok {
				return
			}
			bw.onError(err)
		}
	}
}

func (bw *BaselineWatcher) handleEvent(event fsnotify.Event) {
	if filepath.Clean(event.Name) != bw.path {
		return
	}
	if !event.Op.Has(fsnotify.Write) && !event.Op.Has(fsnotify.Create) && !event.Op.Has(fsnotify.Rename) {
		return
	}
	logging.SessionDebug("baseline %s: %s", event.Op, event.Name)
	bw.debouncer.Debounce(bw.reload)
}

func (bw *BaselineWatcher) reload() {
	b, err := clinical.LoadBaseline(bw.path)
	if err != nil {
		bw.onError(err)
		return
	}
	bw.onChange(b)
}
