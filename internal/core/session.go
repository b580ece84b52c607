package core

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/MrWong99/streamstt/internal/observe"
)

// Config parameterizes a Session: MinNewSamples must be at least 1,
// MaxSegmentSamples must be at least MinNewSamples, and LocalAgreeDim must
// be at least 1. A LocalAgreeDim of 1 disables
// history matching (every word trivially agrees with itself) and reduces
// the system to boundary-only finalization.
type Config struct {
	MaxSegmentSamples int
	MinNewSamples     int
	LocalAgreeDim     int
	Recognizer        Recognizer

	// RecognizerName labels metrics and log lines for Recognizer (e.g. the
	// model_key a client selected). Defaults to "default" when empty.
	RecognizerName string

	// SessionID labels every log line emitted for this session, for
	// correlating a transcript with the connection that produced it.
	SessionID string

	// Metrics receives recognizer and block counters. Defaults to
	// [observe.DefaultMetrics] when nil.
	Metrics *observe.Metrics
}

// Validate checks Config against its documented invariants and returns
// ErrBadConfiguration (joined with every violation found) if any fail.
func (c Config) Validate() error {
	var msgs []string
	if c.MinNewSamples < 1 {
		msgs = append(msgs, "min_new_samples must be >= 1")
	}
	if c.MaxSegmentSamples < c.MinNewSamples {
		msgs = append(msgs, "max_segment_samples must be >= min_new_samples")
	}
	if c.LocalAgreeDim < 1 {
		msgs = append(msgs, "local_agree_dim must be >= 1")
	}
	if c.Recognizer == nil {
		msgs = append(msgs, "recognizer must not be nil")
	}
	if len(msgs) == 0 {
		return nil
	}
	err := ErrBadConfiguration
	for _, m := range msgs {
		err = fmt.Errorf("%w: %s", err, m)
	}
	return err
}

// ChunkHandler consumes one connection's inbound WAV chunks. *Session is
// the standard implementation, driving every chunk through the
// scheduler/stabilizer pipeline; a backend may take over chunk handling
// entirely by implementing ChunkHandlerProvider.
type ChunkHandler interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
	QueueChunk(ctx context.Context, wavBytes []byte) error
}

// ChunkHandlerProvider is an optional capability: a Recognizer that also
// implements it is handed the connection's raw WAV chunks directly instead
// of being driven through a Session. Diagnostic backends use this to emit
// one block per chunk without buffering or stabilization.
type ChunkHandlerProvider interface {
	NewChunkHandler(sink Sink) ChunkHandler
}

// Session is the per-connection glue: it owns the SegmentScheduler and
// LocalAgreeStabilizer for the lifetime of one duplex audio connection, and
// dispatches every emitted TranscriptBlock to sink. A Session is
// single-owner: no other component observes its internal state, and it is
// not safe for concurrent use: chunks from one connection must be
// processed serially and in arrival order.
type Session struct {
	recognizer Recognizer
	scheduler  *SegmentScheduler
	loaded     bool
	id         string
	metrics    *observe.Metrics
}

var _ ChunkHandler = (*Session)(nil)

// NewSession validates cfg and constructs a Session wired to emit
// TranscriptBlocks to sink. It does not call Recognizer.Load; call Load
// once the session is ready to accept audio.
func NewSession(cfg Config, sink Sink) (*Session, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	recognizerName := cfg.RecognizerName
	if recognizerName == "" {
		recognizerName = "default"
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}

	recognizer := &instrumentedRecognizer{inner: cfg.Recognizer, name: recognizerName, metrics: metrics, sessionID: cfg.SessionID}
	instrumentedSink := &instrumentedSink{inner: sink, metrics: metrics}

	stabilizer := NewLocalAgreeStabilizer(recognizer, instrumentedSink, cfg.MaxSegmentSamples, cfg.MinNewSamples, cfg.LocalAgreeDim)
	scheduler := NewSegmentScheduler(cfg.MaxSegmentSamples, cfg.MinNewSamples, &offloadingStabilizer{inner: stabilizer})
	return &Session{
		recognizer: recognizer,
		scheduler:  scheduler,
		id:         cfg.SessionID,
		metrics:    metrics,
	}, nil
}

// Load prepares the session's recognizer for transcription. It must be
// called exactly once, before the first QueueChunk.
func (s *Session) Load(ctx context.Context) error {
	if err := s.recognizer.Load(ctx); err != nil {
		observe.SessionLogger(ctx, s.id).Error("session load failed", "error", err)
		return fmt.Errorf("%w: load: %v", ErrRecognizerFailure, err)
	}
	s.loaded = true
	s.metrics.ActiveSessions.Add(ctx, 1)
	observe.SessionLogger(ctx, s.id).Info("session started")
	return nil
}

// Unload releases the session's recognizer resources. It is safe (and
// required) to call exactly once on every disconnect path, including
// abandonment mid-call, regardless of whether Load succeeded.
func (s *Session) Unload(ctx context.Context) error {
	if !s.loaded {
		return nil
	}
	s.loaded = false
	s.metrics.ActiveSessions.Add(ctx, -1)
	observe.SessionLogger(ctx, s.id).Info("session stopped")
	if err := s.recognizer.Unload(ctx); err != nil {
		observe.SessionLogger(ctx, s.id).Error("session unload failed", "error", err)
		return fmt.Errorf("%w: unload: %v", ErrRecognizerFailure, err)
	}
	return nil
}

// QueueChunk hands one inbound WAV chunk to the SegmentScheduler. It may
// invoke the recognizer zero, one, or several times before returning; all
// invocations are serial.
func (s *Session) QueueChunk(ctx context.Context, wavBytes []byte) error {
	return s.scheduler.QueueChunk(ctx, wavBytes)
}

// BufferLen exposes the scheduler's current ring buffer length, for
// invariant checks and observability.
func (s *Session) BufferLen() int {
	return s.scheduler.BufferLen()
}

// NumPurged exposes the scheduler's total purged sample count.
func (s *Session) NumPurged() int {
	return s.scheduler.NumPurged()
}

// offloadingStabilizer adapts a Stabilizer so that its recognizer call runs
// on a separate goroutine via errgroup: a backend may block for a long time
// inside a native library. The scheduler's ring buffer is not mutated until
// the goroutine returns: ownership of the sample window transfers to the
// worker for the duration of the call.
type offloadingStabilizer struct {
	inner Stabilizer
}

func (o *offloadingStabilizer) Stabilize(ctx context.Context, window []float32, startTime float64) (int, error) {
	var purge int
	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		p, err := o.inner.Stabilize(egCtx, window, startTime)
		purge = p
		return err
	})
	if err := eg.Wait(); err != nil {
		return 0, err
	}
	return purge, nil
}
