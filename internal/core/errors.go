package core

import "errors"

// Error kinds surfaced by the core pipeline. None are recovered internally:
// a session either completes cleanly on disconnect or terminates on error,
// with Recognizer.Unload guaranteed to run exactly once either way.
var (
	// ErrRecognizerFailure wraps an error returned by Recognizer.Transcribe.
	ErrRecognizerFailure = errors.New("core: recognizer failure")

	// ErrStabilizerMustPurge indicates the stabilizer returned a zero purge
	// count while the ring buffer was at capacity, which would stall the
	// scheduler forever. This is an internal invariant violation: it
	// indicates a bug in the configured Recognizer or Stabilizer, not a
	// client-caused condition.
	ErrStabilizerMustPurge = errors.New("core: stabilizer must purge on saturation")

	// ErrBadConfiguration indicates a session was constructed with
	// configuration values that violate the Config invariants.
	ErrBadConfiguration = errors.New("core: bad configuration")
)
