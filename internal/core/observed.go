package core

import (
	"context"
	"time"

	"github.com/MrWong99/streamstt/internal/observe"
)

// instrumentedRecognizer wraps a Recognizer so every Transcribe call records
// latency and error-rate metrics and, on failure, a structured log line.
type instrumentedRecognizer struct {
	inner     Recognizer
	name      string
	metrics   *observe.Metrics
	sessionID string
}

func (r *instrumentedRecognizer) Load(ctx context.Context) error   { return r.inner.Load(ctx) }
func (r *instrumentedRecognizer) Unload(ctx context.Context) error { return r.inner.Unload(ctx) }

func (r *instrumentedRecognizer) Transcribe(ctx context.Context, samples []float32, initialPrompt string) (Hypothesis, error) {
	start := time.Now()
	hyp, err := r.inner.Transcribe(ctx, samples, initialPrompt)
	r.metrics.RecordRecognizeDuration(ctx, time.Since(start).Seconds(), r.name)
	if err != nil {
		r.metrics.RecordRecognizerError(ctx, r.name)
		observe.SessionLogger(ctx, r.sessionID).
			Error("recognizer transcribe failed", "recognizer", r.name, "error", err)
	}
	return hyp, err
}

// instrumentedSink wraps a Sink so every emitted TranscriptBlock increments
// the appropriate final/in-progress counter before being forwarded.
type instrumentedSink struct {
	inner   Sink
	metrics *observe.Metrics
}

func (s *instrumentedSink) EmitBlock(block TranscriptBlock) error {
	s.metrics.RecordBlock(context.Background(), block.Kind == Final)
	return s.inner.EmitBlock(block)
}
