// Package resilience keeps a session transcribing while a recognizer
// backend degrades. Each backend gets its own [Breaker], which stops
// hammering a backend that keeps failing, and [RecognizerFallback] reroutes
// Transcribe calls to the next healthy backend while the breaker cools off.
//
// All types are safe for concurrent use.
package resilience

import (
	"errors"
	"log/slog"
	"sync"
	"time"
)

// ErrBreakerOpen is returned by [Breaker.Do] while the breaker is rejecting
// calls: either the cooldown has not elapsed, or the probe budget for the
// current probing round is exhausted.
var ErrBreakerOpen = errors.New("resilience: breaker open")

// BreakerState is the operating mode of a [Breaker].
type BreakerState int

const (
	// BreakerClosed forwards every call.
	BreakerClosed BreakerState = iota

	// BreakerOpen rejects every call until the cooldown elapses.
	BreakerOpen

	// BreakerProbing lets a limited number of calls through to test
	// whether the backend has recovered.
	BreakerProbing
)

// String renders the state for logging.
func (s BreakerState) String() string {
	switch s {
	case BreakerClosed:
		return "closed"
	case BreakerOpen:
		return "open"
	case BreakerProbing:
		return "probing"
	default:
		return "unknown"
	}
}

// BreakerConfig tunes a [Breaker]. Zero values pick the defaults noted per
// field.
type BreakerConfig struct {
	// Name labels the breaker in log lines, typically the backend's
	// model_key.
	Name string

	// FailureThreshold is how many consecutive failures trip the breaker
	// open. Default 5.
	FailureThreshold int

	// Cooldown is how long the breaker rejects calls before probing the
	// backend again. Default 30s.
	Cooldown time.Duration

	// ProbeBudget is both the number of calls allowed through per probing
	// round and the number of successes required to close again. Default 3.
	ProbeBudget int
}

// Breaker is a circuit breaker around one recognizer backend. A backend
// that fails FailureThreshold times in a row is cut off for Cooldown, after
// which a bounded number of probe calls decide whether it is healthy again.
type Breaker struct {
	name        string
	threshold   int
	cooldown    time.Duration
	probeBudget int

	mu        sync.Mutex
	state     BreakerState
	failures  int // consecutive failures while closed
	openedAt  time.Time
	probes    int // probes started this probing round
	probeWins int // probes that succeeded this probing round
}

// NewBreaker returns a closed Breaker configured by cfg.
func NewBreaker(cfg BreakerConfig) *Breaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.Cooldown <= 0 {
		cfg.Cooldown = 30 * time.Second
	}
	if cfg.ProbeBudget <= 0 {
		cfg.ProbeBudget = 3
	}
	return &Breaker{
		name:        cfg.Name,
		threshold:   cfg.FailureThreshold,
		cooldown:    cfg.Cooldown,
		probeBudget: cfg.ProbeBudget,
	}
}

// Do runs fn unless the breaker is rejecting calls, and feeds fn's outcome
// back into the breaker's accounting. While open it returns [ErrBreakerOpen]
// without calling fn; once the cooldown elapses the next Do starts a
// probing round.
func (b *Breaker) Do(fn func() error) error {
	b.mu.Lock()
	switch b.state {
	case BreakerOpen:
		if time.Since(b.openedAt) < b.cooldown {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
		b.state = BreakerProbing
		b.probes = 0
		b.probeWins = 0
		slog.Info("breaker probing backend again", "backend", b.name)
	case BreakerProbing:
		if b.probes >= b.probeBudget {
			b.mu.Unlock()
			return ErrBreakerOpen
		}
	}
	probing := b.state == BreakerProbing
	if probing {
		b.probes++
	}
	b.mu.Unlock()

	err := fn()

	b.mu.Lock()
	defer b.mu.Unlock()
	if err != nil {
		b.onFailure(probing)
		return err
	}
	b.onSuccess(probing)
	return nil
}

// onFailure must be called with b.mu held.
func (b *Breaker) onFailure(probing bool) {
	if probing {
		// One failed probe is enough evidence the backend is still down.
		b.trip("probe failed")
		return
	}
	b.failures++
	if b.failures >= b.threshold {
		b.trip("consecutive failures")
	}
}

// onSuccess must be called with b.mu held.
func (b *Breaker) onSuccess(probing bool) {
	if probing {
		b.probeWins++
		if b.probeWins >= b.probeBudget {
			b.state = BreakerClosed
			b.failures = 0
			slog.Info("breaker closed, backend recovered", "backend", b.name)
		}
		return
	}
	b.failures = 0
}

// trip must be called with b.mu held.
func (b *Breaker) trip(reason string) {
	b.state = BreakerOpen
	b.openedAt = time.Now()
	b.failures = b.threshold
	slog.Warn("breaker opened", "backend", b.name, "reason", reason)
}

// State reports the state the next Do call would observe: an open breaker
// whose cooldown has elapsed reports BreakerProbing, even though the
// transition itself happens inside that Do.
func (b *Breaker) State() BreakerState {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.state == BreakerOpen && time.Since(b.openedAt) >= b.cooldown {
		return BreakerProbing
	}
	return b.state
}

// Reset forces the breaker closed and clears all accounting.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = BreakerClosed
	b.failures = 0
	b.probes = 0
	b.probeWins = 0
	slog.Info("breaker reset", "backend", b.name)
}
