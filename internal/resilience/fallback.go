package resilience

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/MrWong99/streamstt/internal/core"
)

// FallbackConfig configures the per-backend [Breaker] a [RecognizerFallback]
// creates for each of its entries.
type FallbackConfig struct {
	Breaker BreakerConfig
}

// backendEntry pairs a recognizer with its dedicated breaker.
type backendEntry struct {
	name    string
	rec     core.Recognizer
	breaker *Breaker
}

// RecognizerFallback implements [core.Recognizer] with automatic failover:
// Transcribe tries each registered backend in order, skipping any whose
// breaker is open, until one produces a hypothesis. Because every backend
// has its own breaker, a flapping primary is cut off without affecting the
// secondaries.
//
// Load and Unload are forwarded to every entry, not just the currently
// healthy one: a fallback must already have its model in memory before it
// can be tried mid-session, and every loaded model must be released on the
// way out.
type RecognizerFallback struct {
	entries []backendEntry
	cfg     FallbackConfig
}

var _ core.Recognizer = (*RecognizerFallback)(nil)

// NewRecognizerFallback returns a RecognizerFallback with primary as its
// first, preferred backend.
func NewRecognizerFallback(primary core.Recognizer, name string, cfg FallbackConfig) *RecognizerFallback {
	f := &RecognizerFallback{cfg: cfg}
	f.add(name, primary)
	return f
}

// AddFallback registers rec as the next backend to try after every earlier
// entry. Fallbacks are tried in registration order.
func (f *RecognizerFallback) AddFallback(name string, rec core.Recognizer) {
	f.add(name, rec)
}

func (f *RecognizerFallback) add(name string, rec core.Recognizer) {
	bc := f.cfg.Breaker
	bc.Name = name
	f.entries = append(f.entries, backendEntry{
		name:    name,
		rec:     rec,
		breaker: NewBreaker(bc),
	})
}

// Load loads every registered backend. All entries are attempted; the error
// from the first failure is returned.
func (f *RecognizerFallback) Load(ctx context.Context) error {
	var firstErr error
	for _, e := range f.entries {
		if err := e.rec.Load(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Unload unloads every registered backend, continuing past individual
// failures so that one backend's error does not leak another's resources.
func (f *RecognizerFallback) Unload(ctx context.Context) error {
	var firstErr error
	for _, e := range f.entries {
		if err := e.rec.Unload(ctx); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// Transcribe tries each backend in order through its breaker until one
// succeeds. When every backend fails or is cut off, the last error is
// returned wrapped so the caller sees a single recognizer failure.
func (f *RecognizerFallback) Transcribe(ctx context.Context, samples []float32, initialPrompt string) (core.Hypothesis, error) {
	var lastErr error
	for _, e := range f.entries {
		var hyp core.Hypothesis
		err := e.breaker.Do(func() error {
			var callErr error
			hyp, callErr = e.rec.Transcribe(ctx, samples, initialPrompt)
			return callErr
		})
		if err == nil {
			return hyp, nil
		}
		lastErr = err
		if errors.Is(err, ErrBreakerOpen) {
			slog.Debug("skipping backend, breaker open", "backend", e.name)
			continue
		}
		slog.Warn("backend failed, trying next", "backend", e.name, "error", err)
	}
	return nil, fmt.Errorf("resilience: all recognizer backends failed: %w", lastErr)
}
