package config

import (
	"bytes"
	"crypto/sha256"
	"fmt"
	"log/slog"
	"os"
	"sync"
	"time"
)

// Watcher polls a config file and invokes a callback whenever its content
// changes to a valid configuration. Invalid or unreadable revisions are
// logged and skipped, leaving the last good config in place, so a half-saved
// edit never takes down a running server. Recognizer backends are resolved
// per-connection from the latest snapshot, which is why a plain reload (no
// diffing against running sessions) is enough here.
type Watcher struct {
	path     string
	interval time.Duration
	onChange func(old, new *Config)

	mu      sync.Mutex
	current *Config
	seen    [sha256.Size]byte
	seenAt  time.Time

	done     chan struct{}
	stopOnce sync.Once
}

// WatcherOption configures a [Watcher].
type WatcherOption func(*Watcher)

// WithInterval sets the polling interval. The default is 5 seconds.
func WithInterval(d time.Duration) WatcherOption {
	return func(w *Watcher) {
		if d > 0 {
			w.interval = d
		}
	}
}

// NewWatcher loads the config at path, then polls it in a background
// goroutine until [Watcher.Stop] is called. A failed initial load is an
// error; there is no last good config to fall back to yet.
func NewWatcher(path string, onChange func(old, new *Config), opts ...WatcherOption) (*Watcher, error) {
	w := &Watcher{
		path:     path,
		interval: 5 * time.Second,
		onChange: onChange,
		done:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(w)
	}

	cfg, digest, mtime, err := w.snapshot()
	if err != nil {
		return nil, fmt.Errorf("config: watcher initial load: %w", err)
	}
	w.current = cfg
	w.seen = digest
	w.seenAt = mtime

	go w.run()
	return w, nil
}

// Current returns the most recently loaded valid config.
func (w *Watcher) Current() *Config {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.current
}

// Stop ends the polling goroutine. Safe to call more than once.
func (w *Watcher) Stop() {
	w.stopOnce.Do(func() { close(w.done) })
}

func (w *Watcher) run() {
	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		select {
		case <-w.done:
			return
		case <-ticker.C:
			w.reloadIfChanged()
		}
	}
}

// reloadIfChanged re-reads the file when its mtime moved, swaps in the new
// config when the content digest differs and parses cleanly, and fires the
// callback outside the lock.
func (w *Watcher) reloadIfChanged() {
	info, err := os.Stat(w.path)
	if err != nil {
		slog.Warn("config watcher: cannot stat file", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	unchanged := info.ModTime().Equal(w.seenAt)
	w.mu.Unlock()
	if unchanged {
		return
	}

	cfg, digest, mtime, err := w.snapshot()
	if err != nil {
		slog.Warn("config watcher: keeping previous config", "path", w.path, "err", err)
		return
	}

	w.mu.Lock()
	if digest == w.seen {
		// Touched, not edited.
		w.seenAt = mtime
		w.mu.Unlock()
		return
	}
	old := w.current
	w.current = cfg
	w.seen = digest
	w.seenAt = mtime
	w.mu.Unlock()

	slog.Info("config watcher: configuration reloaded", "path", w.path)
	if w.onChange != nil {
		w.onChange(old, cfg)
	}
}

// snapshot reads, parses, and validates the file once, returning the config
// with the raw content's SHA-256 digest and the file's mtime.
func (w *Watcher) snapshot() (*Config, [sha256.Size]byte, time.Time, error) {
	var digest [sha256.Size]byte

	info, err := os.Stat(w.path)
	if err != nil {
		return nil, digest, time.Time{}, err
	}
	data, err := os.ReadFile(w.path)
	if err != nil {
		return nil, digest, time.Time{}, err
	}

	cfg, err := LoadFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, digest, time.Time{}, err
	}
	return cfg, sha256.Sum256(data), info.ModTime(), nil
}
