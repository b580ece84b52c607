package core

import (
	"context"
	"strings"
)

// sentenceEnds are the punctuation marks that close a committable prefix.
const sentenceEnds = ".?!"

// ellipsis is the one sentence-ending trigraph that is NOT a boundary.
const ellipsis = "..."

// LocalAgreeStabilizer implements the LocalAgree-N stabilization algorithm
// (Liu et al. 2020; Macháček et al. 2023): it commits a prefix only after it
// has appeared identically at the same ordinal positions in N consecutive
// recognizer outputs, locking commits to sentence boundaries so that a
// mid-clause fragment never poisons the recognizer's conditioning prompt.
// When the window saturates the ring buffer, a forced-finalization fallback
// guarantees the scheduler can still evict enough samples to make forward
// progress, even over silence that never reaches a natural boundary.
//
// LocalAgreeStabilizer is not safe for concurrent use; it is the
// session-scoped, per-connection collaborator of exactly one
// SegmentScheduler, and implements the Stabilizer interface that the
// scheduler calls against.
type LocalAgreeStabilizer struct {
	recognizer        Recognizer
	sink              Sink
	maxSegmentSamples int
	minNewSamples     int
	localAgreeDim     int

	history *HypothesisHistory

	// prevText is the concatenated most recently committed text, passed to
	// the recognizer as a conditioning prompt on the next call.
	prevText string
}

// NewLocalAgreeStabilizer returns a stabilizer driving recognizer, agreeing
// across localAgreeDim consecutive hypotheses before committing a prefix,
// and emitting TranscriptBlocks to sink. maxSegmentSamples must equal the
// capacity of the SegmentScheduler's ring buffer, so that the stabilizer can
// detect saturation independently of the scheduler's internal state.
// minNewSamples is used only by the forced-finalization fallback, to know
// how much audio it must guarantee gets purged on saturation.
//
// localAgreeDim of 1 disables history matching (every word trivially agrees
// with itself): the stabilizer reduces to boundary-only finalization.
func NewLocalAgreeStabilizer(recognizer Recognizer, sink Sink, maxSegmentSamples, minNewSamples, localAgreeDim int) *LocalAgreeStabilizer {
	return &LocalAgreeStabilizer{
		recognizer:        recognizer,
		sink:              sink,
		maxSegmentSamples: maxSegmentSamples,
		minNewSamples:     minNewSamples,
		localAgreeDim:     localAgreeDim,
		history:           NewHypothesisHistory(localAgreeDim - 1),
	}
}

// Stabilize runs one invocation of the algorithm on window W (length n,
// absolute start t0): it calls recognizer.Transcribe, scans for an agreed
// and sentence-bounded prefix to commit, applies the forced-finalization
// fallback when W saturates the ring capacity, emits the resulting
// TranscriptBlocks to the configured sink, and returns the number of
// leading samples of W now safe to discard.
func (l *LocalAgreeStabilizer) Stabilize(ctx context.Context, window []float32, t0 float64) (int, error) {
	n := len(window)
	saturated := n >= l.maxSegmentSamples

	hyp, err := l.recognizer.Transcribe(ctx, window, l.prevText)
	if err != nil {
		return 0, err
	}

	// bound: how far into hyp the agreement scan may look. With an empty
	// history there is no prior hypothesis to limit it, so bound is the full
	// length of hyp; agrees still stops the scan at index 0 unless
	// localAgreeDim is 1 (every word trivially agreeing with itself).
	bound := len(hyp)
	if shortest := l.history.ShortestLen(); shortest >= 0 && shortest < bound {
		bound = shortest
	}

	var (
		prefix      strings.Builder
		commitStart float64
		commitEnd   float64
		next        int // index of the first not-yet-committed word
	)

	for i := 0; i < bound; i++ {
		if !l.agrees(hyp, i) {
			break
		}
		prefix.WriteString(hyp[i].Text)

		text := prefix.String()
		if endsSentence(text) {
			commitEnd = maxF(commitEnd, hyp[i].End)
			if err := l.emit(Final, text, t0+commitStart, t0+commitEnd); err != nil {
				return 0, err
			}
			commitStart = commitEnd
			l.prevText = text
			next = i + 1
			prefix.Reset()
		}
	}

	// Forced finalization on saturation: walk forward from next, appending
	// words until either none remain or enough audio has been covered to
	// guarantee the scheduler can purge minNewSamples. This is the only
	// mechanism that can evict samples when the acoustic content yields no
	// stable prefix, e.g. a long pause.
	if saturated {
		var forced strings.Builder
		start := commitEnd
		for next < len(hyp) && commitEnd < float64(l.minNewSamples)/SR {
			forced.WriteString(hyp[next].Text)
			commitEnd = maxF(commitEnd, hyp[next].End)
			next++
		}
		text := forced.String()
		if text != "" {
			l.prevText = text
		}
		if err := l.emit(Final, text, t0+start, t0+commitEnd); err != nil {
			return 0, err
		}
	}

	// In-progress emission: concatenate every uncommitted word, even when
	// empty. An empty in-progress block is an explicit clear signal for
	// downstream UI.
	var inProgress strings.Builder
	inProgressEnd := commitEnd
	for i := next; i < len(hyp); i++ {
		inProgress.WriteString(hyp[i].Text)
		inProgressEnd = maxF(inProgressEnd, hyp[i].End)
	}
	if err := l.emit(InProgress, inProgress.String(), t0+commitEnd, t0+inProgressEnd); err != nil {
		return 0, err
	}

	l.history.Push(hyp)

	finalizedSamples := int(commitEnd * SR)
	if saturated && finalizedSamples < l.minNewSamples {
		finalizedSamples = l.minNewSamples
	}
	if finalizedSamples > n {
		finalizedSamples = n
	}
	if finalizedSamples < 0 {
		finalizedSamples = 0
	}
	return finalizedSamples, nil
}

// agrees reports whether hyp[i] agrees with the history: the history must
// contain exactly localAgreeDim-1 prior hypotheses, each having a word at
// index i with text byte-for-byte equal to hyp[i].Text.
func (l *LocalAgreeStabilizer) agrees(hyp Hypothesis, i int) bool {
	entries := l.history.Entries()
	if len(entries) != l.localAgreeDim-1 {
		return false
	}
	for _, prior := range entries {
		if prior[i].Text != hyp[i].Text {
			return false
		}
	}
	return true
}

// emit sends a TranscriptBlock to the sink. Empty text is emitted as-is: a
// forced finalization over silence produces an empty final, and an empty
// in-progress block is the explicit clear signal for downstream UI.
func (l *LocalAgreeStabilizer) emit(kind BlockKind, text string, start, end float64) error {
	return l.sink.EmitBlock(TranscriptBlock{Kind: kind, Text: text, Start: start, End: end})
}

// endsSentence reports whether text ends in one of the sentence-ending
// marks but not in the ellipsis trigraph, which is explicitly excluded as a
// boundary.
func endsSentence(text string) bool {
	if text == "" {
		return false
	}
	if strings.HasSuffix(text, ellipsis) {
		return false
	}
	last := text[len(text)-1]
	return strings.IndexByte(sentenceEnds, last) >= 0
}

func maxF(a, b float64) float64 {
	if a > b {
		return a
	}
	return b
}
