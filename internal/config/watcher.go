package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"time"
)

// Watcher keeps the config file in sync with the running server. It polls
// the file and hands every valid change to a callback together with the
// config it replaces. A file that no longer parses or validates is logged
// and ignored.
type Watcher struct {
	path      string
	interval  time.Duration
	lookupEnv func(string) (string, bool)
	onChange  func(old, new *Config)
	log       *slog.Logger

	current atomic.Pointer[snapshot]

	// reloadMu serialises Reload between the poll loop and callers.
	reloadMu sync.Mutex
	stop     chan struct{}
	stopped  sync.Once
}

// snapshot is one accepted version of the file.
type snapshot struct {
	cfg   *Config
	sum   [sha256.Size]byte
	mtime time.Time
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets how often the file is checked. Default 5s.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// WithLookupEnv sets the environment used for overrides on every reload.
// Defaults to [os.LookupEnv].
func WithLookupEnv(fn func(string) (string, bool)) WatcherOption {
	return func(w *Watcher) { w.lookupEnv = fn }
}

// WithWatchLogger sets the logger. Defaults to [slog.Default].
func WithWatchLogger(l *slog.Logger) WatcherOption {
	return func(w *Watcher) { w.log = l }
}

// NewWatcher reads path once and then checks it in the background until
// [Watcher.Stop]. onChange may be nil.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:      path,
		interval:  5 * time.Second,
		lookupEnv: os.LookupEnv,
		onChange:  onChange,
		log:       slog.Default(),
		stop:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}
	snap, err := w.read()
	if err != nil {
		return nil, fmt.Errorf("config: watch %s: %w", path, err)
	}
	w.current.Store(snap)
	go w.loop()
	return w, nil
}

// Current returns the last accepted config.
func (w *Watcher) Current() *Config {
	return w.current.Load().cfg
}

// Stop ends background checks. Further calls do nothing.
func (w *Watcher) Stop() {
	w.stopped.Do(func() { close(w.stop) })
}

func (w *Watcher) loop() {
	t := time.NewTicker(w.interval)
	defer t.Stop()
	for {
		select {
		case <-w.stop:
			return
		case <-t.C:
			if info, err := os.Stat(w.path); err != nil {
				w.log.Warn("config: stat watched file", "path", w.path, "err", err)
			} else if !info.ModTime().Equal(w.current.Load().mtime) {
				_, _ = w.Reload()
			}
		}
	}
}

// Reload reads the file now, regardless of its modification time. It
// reports whether a changed config was accepted. The callback runs before
// Reload returns.
func (w *Watcher) Reload() (bool, error) {
	w.reloadMu.Lock()
	defer w.reloadMu.Unlock()

	prev := w.current.Load()
	next, err := w.read()
	if err != nil {
		w.log.Warn("config: reload rejected, keeping previous config", "path", w.path, "err", err)
		return false, err
	}
	if next.sum == prev.sum {
		// Touched but not edited.
		w.current.Store(&snapshot{cfg: prev.cfg, sum: prev.sum, mtime: next.mtime})
		return false, nil
	}
	w.current.Store(next)
	w.log.Info("config: reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(prev.cfg, next.cfg)
	}
	return true, nil
}

func (w *Watcher) read() (*snapshot, error) {
	info, err := os.Stat(w.path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, err
	}
	cfg, err := Parse(bytes.NewReader(data), w.lookupEnv)
	if err != nil {
		return nil, err
	}
	return &snapshot{cfg: cfg, sum: sha256.Sum256(data), mtime: info.ModTime()}, nil
}
