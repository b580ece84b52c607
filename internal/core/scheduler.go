package core

import (
	"context"
	"fmt"
)

// State is the SegmentScheduler's coarse buffering state, useful for
// observability. It is derived from the ring buffer's length relative to
// the two configured thresholds; the scheduler does not store it directly.
type State int

const (
	StateEmpty State = iota
	StateBuffering
	StateReady
	StateSaturated
)

// String renders the state for logging.
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "EMPTY"
	case StateBuffering:
		return "BUFFERING"
	case StateReady:
		return "READY"
	case StateSaturated:
		return "SATURATED"
	default:
		return "UNKNOWN"
	}
}

// Stabilizer is called by SegmentScheduler whenever enough audio has
// accumulated to warrant a recognizer invocation. It receives a defensive
// copy of the current window (never the live ring buffer, so a subsequent
// shift can never invalidate memory the recognizer is still reading) and
// the absolute start time of that window, and returns the number of
// leading samples now safe to purge.
type Stabilizer interface {
	Stabilize(ctx context.Context, window []float32, startTime float64) (purgeSamples int, err error)
}

// SegmentScheduler owns the ring buffer and transforms incoming WAV chunks
// into Stabilizer invocations, enforcing the max-segment-samples and
// min-new-samples thresholds.
//
// SegmentScheduler is not safe for concurrent use; a Session drives exactly
// one SegmentScheduler serially.
type SegmentScheduler struct {
	ring             *RingBuffer[float32]
	minNewSamples    int
	numLastProcessed int
	numPurged        int
	stabilizer       Stabilizer
}

// NewSegmentScheduler returns a scheduler with a ring buffer of capacity
// maxSegmentSamples, gating recognizer calls on minNewSamples of fresh
// audio, invoking stabilizer for every recognizer call.
func NewSegmentScheduler(maxSegmentSamples, minNewSamples int, stabilizer Stabilizer) *SegmentScheduler {
	return &SegmentScheduler{
		ring:          NewRingBuffer[float32](maxSegmentSamples),
		minNewSamples: minNewSamples,
		stabilizer:    stabilizer,
	}
}

// NumPurged returns the total number of samples shifted off the front of
// the buffer over the scheduler's lifetime. Dividing by SR yields the
// absolute time at the buffer's current index 0.
func (s *SegmentScheduler) NumPurged() int {
	return s.numPurged
}

// BufferLen returns the ring buffer's current logical length.
func (s *SegmentScheduler) BufferLen() int {
	return s.ring.Len()
}

// State reports the scheduler's coarse buffering state.
func (s *SegmentScheduler) State() State {
	switch {
	case s.ring.Len() == 0:
		return StateEmpty
	case s.ring.Len() >= s.ring.Cap():
		return StateSaturated
	case s.ring.Len()-s.numLastProcessed > s.minNewSamples:
		return StateReady
	default:
		return StateBuffering
	}
}

// QueueChunk decodes a WAV chunk, appends its samples to the ring buffer,
// and invokes the stabilizer as many times as required: first to drain
// saturation overflow, then once more if enough new audio has accumulated
// since the previous call. All invocations within one QueueChunk are
// serial.
func (s *SegmentScheduler) QueueChunk(ctx context.Context, wavBytes []byte) error {
	samples, err := DecodeWav(wavBytes)
	if err != nil {
		return err
	}

	overflow := s.ring.AppendSequence(samples)

	for len(overflow) > 0 {
		if err := s.invokeStabilizer(ctx); err != nil {
			return err
		}
		overflow = s.ring.AppendSequence(overflow)
	}

	if s.ring.Len()-s.numLastProcessed > s.minNewSamples {
		if err := s.invokeStabilizer(ctx); err != nil {
			return err
		}
	}

	return nil
}

// invokeStabilizer calls the stabilizer on a defensive copy of the current
// window, purges the samples it reports, and advances numPurged and
// numLastProcessed. It enforces that a saturated call always makes forward
// progress.
func (s *SegmentScheduler) invokeStabilizer(ctx context.Context) error {
	saturated := s.ring.Len() >= s.ring.Cap()
	startTime := float64(s.numPurged) / SR

	window := append([]float32(nil), s.ring.View()...)
	purge, err := s.stabilizer.Stabilize(ctx, window, startTime)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRecognizerFailure, err)
	}

	if saturated && purge == 0 {
		return ErrStabilizerMustPurge
	}

	s.ring.ShiftLeft(purge)
	s.numPurged += purge
	s.numLastProcessed = s.ring.Len()
	return nil
}
