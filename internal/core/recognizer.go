package core

import "context"

// Word is a single recognized token with timestamps relative to the start
// of the sample window passed to the recognizer call that produced it.
type Word struct {
	Text  string
	Start float64 // seconds
	End   float64 // seconds
}

// Hypothesis is the ordered sequence of Words returned by one recognizer
// invocation.
type Hypothesis []Word

// Recognizer transcribes a mono sample window at SR into timed word
// segments, optionally conditioned on previously committed text. It is the
// one true polymorphic capability in the core: LocalAgreeStabilizer and
// SegmentScheduler are concrete and parameterized by it, never derived from
// it.
//
// Load is called once on session start and may preallocate large native
// resources (GPU memory, model weights). Unload is called exactly once on
// session end, even if the session ended by client disconnect or mid-call
// abandonment, and must release those resources.
//
// Transcribe must be callable serially for the duration of a session; its
// internal state need not be exposed. samples are normalized to [-1, 1] at
// SR; initialPrompt is a conditioning text string, possibly empty.
type Recognizer interface {
	Load(ctx context.Context) error
	Unload(ctx context.Context) error
	Transcribe(ctx context.Context, samples []float32, initialPrompt string) (Hypothesis, error)
}

// HypothesisHistory is a bounded queue of the most recent N-1 hypotheses,
// where N is the LocalAgree dimension. It is used to decide whether a
// freshly produced word has appeared at the same position in all recent
// hypotheses.
type HypothesisHistory struct {
	entries []Hypothesis
	max     int
}

// NewHypothesisHistory returns a history retaining at most max entries. max
// is typically localAgreeDim-1.
func NewHypothesisHistory(max int) *HypothesisHistory {
	if max < 0 {
		max = 0
	}
	return &HypothesisHistory{max: max}
}

// Len returns the number of hypotheses currently retained.
func (h *HypothesisHistory) Len() int {
	return len(h.entries)
}

// Entries returns the retained hypotheses, oldest first. The returned slice
// aliases internal storage and must not be mutated by the caller.
func (h *HypothesisHistory) Entries() []Hypothesis {
	return h.entries
}

// Push appends hyp, dropping the oldest entry if the history would
// otherwise exceed its configured maximum.
func (h *HypothesisHistory) Push(hyp Hypothesis) {
	if h.max == 0 {
		return
	}
	h.entries = append(h.entries, hyp)
	if len(h.entries) > h.max {
		h.entries = h.entries[len(h.entries)-h.max:]
	}
}

// ShortestLen returns the length of the shortest retained hypothesis, or -1
// if the history is empty (meaning "no prior information").
func (h *HypothesisHistory) ShortestLen() int {
	if len(h.entries) == 0 {
		return -1
	}
	shortest := len(h.entries[0])
	for _, e := range h.entries[1:] {
		if len(e) < shortest {
			shortest = len(e)
		}
	}
	return shortest
}
