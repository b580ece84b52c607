// Package mock provides a trivial transcription backend useful for
// exercising the pipeline and the wire protocol without a real acoustic
// model.
//
// MockDuration reports how many seconds of audio it receives rather than
// attempting any actual speech recognition, giving the rest of the system
// (buffering, scheduling, finalization, transport) something deterministic
// to drive against.
package mock

import (
	"context"
	"fmt"
	"sync"

	"github.com/MrWong99/streamstt/internal/core"
)

// MockDuration implements core.Recognizer by reporting the duration of the
// window handed to each Transcribe call, rather than transcribing it. Each
// call returns a single Word spanning the entire window.
//
// MockDuration is safe for concurrent use.
type MockDuration struct {
	mu     sync.Mutex
	loaded bool

	// LoadErr and UnloadErr, if set, are returned by Load and Unload
	// respectively. Useful for exercising session error paths in tests.
	LoadErr   error
	UnloadErr error

	// LoadCalls and UnloadCalls count invocations. Thread-safe to read once
	// the test has stopped driving the recognizer.
	LoadCalls   int
	UnloadCalls int

	// TranscribeErr, if set, is returned by every call to Transcribe instead
	// of a Hypothesis.
	TranscribeErr error

	// TranscribeCalls records the initialPrompt passed to every Transcribe
	// call, in order.
	TranscribeCalls []string
}

var _ core.Recognizer = (*MockDuration)(nil)

// Load records the call and returns LoadErr.
func (m *MockDuration) Load(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.LoadCalls++
	if m.LoadErr != nil {
		return m.LoadErr
	}
	m.loaded = true
	return nil
}

// Unload records the call and returns UnloadErr.
func (m *MockDuration) Unload(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.UnloadCalls++
	m.loaded = false
	return m.UnloadErr
}

// Transcribe ignores initialPrompt and the audio content, returning a single
// Word describing the window's duration in seconds: "Received %.1f seconds
// of audio." spanning [0, duration].
func (m *MockDuration) Transcribe(ctx context.Context, samples []float32, initialPrompt string) (core.Hypothesis, error) {
	m.mu.Lock()
	m.TranscribeCalls = append(m.TranscribeCalls, initialPrompt)
	err := m.TranscribeErr
	m.mu.Unlock()
	if err != nil {
		return nil, err
	}
	duration := float64(len(samples)) / core.SR
	text := fmt.Sprintf("Received %.1f seconds of audio.", duration)
	return core.Hypothesis{{Text: text, Start: 0, End: duration}}, nil
}

// LoadCount returns the number of Load calls so far.
func (m *MockDuration) LoadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.LoadCalls
}

// UnloadCount returns the number of Unload calls so far.
func (m *MockDuration) UnloadCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.UnloadCalls
}

var _ core.ChunkHandlerProvider = (*MockDuration)(nil)

// NewChunkHandler returns a DurationReporter that handles a connection's
// chunks directly, bypassing the stabilization pipeline: every chunk
// produces exactly one finalized block reporting that chunk's duration.
// Lifecycle calls are forwarded to m so tests can observe Load/Unload
// bookkeeping on the recognizer the registry constructed.
func (m *MockDuration) NewChunkHandler(sink core.Sink) core.ChunkHandler {
	return &DurationReporter{sink: sink, lifecycle: m}
}

// DurationReporter implements core.ChunkHandler by emitting one Final
// TranscriptBlock per inbound WAV chunk, with text reporting the chunk's
// duration and timestamps accumulating across the connection. No buffering,
// no recognizer calls, no in-progress blocks: this makes the wire protocol
// end-to-end verifiable with exact, deterministic output.
type DurationReporter struct {
	sink      core.Sink
	lifecycle *MockDuration
	elapsed   float64
}

var _ core.ChunkHandler = (*DurationReporter)(nil)

// Load forwards to the recognizer that created the reporter.
func (d *DurationReporter) Load(ctx context.Context) error { return d.lifecycle.Load(ctx) }

// Unload forwards to the recognizer that created the reporter.
func (d *DurationReporter) Unload(ctx context.Context) error { return d.lifecycle.Unload(ctx) }

// QueueChunk decodes the chunk and emits a Final block spanning the chunk's
// position in the connection's cumulative timeline.
func (d *DurationReporter) QueueChunk(ctx context.Context, wavBytes []byte) error {
	samples, err := core.DecodeWav(wavBytes)
	if err != nil {
		return err
	}
	duration := float64(len(samples)) / core.SR
	start := d.elapsed
	d.elapsed += duration
	return d.sink.EmitBlock(core.TranscriptBlock{
		Kind:  core.Final,
		Text:  fmt.Sprintf("Received %.1f seconds of audio.", duration),
		Start: start,
		End:   d.elapsed,
	})
}
