// Package watcher provides debounced file system watching. The sqlite
// backend uses it to notice writes from other processes sharing a board.
package watcher

import (
	"context"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDelay is the time to wait after the last file event before
// triggering the callback. This coalesces bursts of writes (a transaction
// touches the database, its WAL and its shared-memory file) into one call.
const DefaultDelay = 100 * time.Millisecond

// Option configures a Watcher.
type Option func(*Watcher)

// WithDelay overrides DefaultDelay.
func WithDelay(d time.Duration) Option {
	return func(w *Watcher) { w.delay = d }
}

// WithNames only reacts to files whose base name is one of names.
func WithNames(names ...string) Option {
	return func(w *Watcher) {
		w.names = make(map[string]bool, len(names))
		for _, n := range names {
			w.names[n] = true
		}
	}
}

// Watcher watches directories and invokes a callback with debouncing.
type Watcher struct {
	fsw      *fsnotify.Watcher
	callback func()
	delay    time.Duration
	names    map[string]bool

	mu    sync.Mutex
	timer *time.Timer
}

// New creates a Watcher that monitors the given paths for changes.
// The callback is invoked (debounced) whenever a matching file changes.
func New(paths []string, callback func(), opts ...Option) (*Watcher, error) {
	w := &Watcher{callback: callback, delay: DefaultDelay}
	for _, opt := range opts {
		opt(w)
	}

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		if err := fsw.Add(p); err != nil {
			_ = fsw.Close()
			return nil, err
		}
	}
	w.fsw = fsw
	return w, nil
}

// Run starts the watch loop. It blocks until the context is canceled.
// Errors from the underlying watcher are passed to the optional errFn callback.
func (w *Watcher) Run(ctx context.Context, errFn func(error)) {
	for {
		select {
		case <-ctx.Done():
			w.stop()
			return
		case event, ok := <-w.fsw.Events:
			if !ok {
				w.stop()
				return
			}
			if w.matches(event) {
				w.debounce()
			}
		case err, ok := <-w.fsw.Errors:
			if !ok {
				w.stop()
				return
			}
			if errFn != nil {
				errFn(err)
			}
		}
	}
}

// Close stops the underlying filesystem watcher.
func (w *Watcher) Close() error {
	w.stop()
	return w.fsw.Close()
}

func (w *Watcher) matches(event fsnotify.Event) bool {
	if event.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
		return false
	}
	return w.names == nil || w.names[filepath.Base(event.Name)]
}

func (w *Watcher) debounce() {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.timer != nil {
		w.timer.Stop()
	}
	w.timer = time.AfterFunc(w.delay, w.callback)
}

func (w *Watcher) stop() {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}
