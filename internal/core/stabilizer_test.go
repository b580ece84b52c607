package core_test

import (
	"context"
	"testing"

	"github.com/MrWong99/streamstt/internal/core"
)

// scriptedRecognizer returns one hypothesis per call, in order, and records
// the initialPrompt it was called with.
type scriptedRecognizer struct {
	hyps    []core.Hypothesis
	calls   int
	prompts []string
}

func (s *scriptedRecognizer) Load(ctx context.Context) error   { return nil }
func (s *scriptedRecognizer) Unload(ctx context.Context) error { return nil }
func (s *scriptedRecognizer) Transcribe(ctx context.Context, samples []float32, initialPrompt string) (core.Hypothesis, error) {
	s.prompts = append(s.prompts, initialPrompt)
	hyp := s.hyps[s.calls]
	s.calls++
	return hyp, nil
}

func recordingSink() (core.Sink, *[]core.TranscriptBlock) {
	var blocks []core.TranscriptBlock
	return core.SinkFunc(func(b core.TranscriptBlock) error {
		blocks = append(blocks, b)
		return nil
	}), &blocks
}

func word(text string, start, end float64) core.Word {
	return core.Word{Text: text, Start: start, End: end}
}

// TestLocalAgreeStabilizer_BoundaryOnly_Dim1 exercises localAgreeDim=1, which
// disables history matching: a sentence-ending word commits immediately,
// without waiting for repeated agreement.
func TestLocalAgreeStabilizer_BoundaryOnly_Dim1(t *testing.T) {
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{
		{word("Hello", 0, 0.5), word(" world.", 0.5, 1.0), word(" more", 1.0, 1.2)},
	}}
	sink, blocks := recordingSink()
	s := core.NewLocalAgreeStabilizer(rec, sink, 480000, 16000, 1)

	purged, err := s.Stabilize(context.Background(), make([]float32, 20000), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(*blocks) != 2 {
		t.Fatalf("emitted %d blocks, want 2 (one final, one in-progress)", len(*blocks))
	}
	final := (*blocks)[0]
	if final.Kind != core.Final {
		t.Fatalf("first block kind = %v, want Final", final.Kind)
	}
	if final.Text != "Hello world." {
		t.Fatalf("final text = %q, want %q", final.Text, "Hello world.")
	}
	inProgress := (*blocks)[1]
	if inProgress.Kind != core.InProgress {
		t.Fatalf("second block kind = %v, want InProgress", inProgress.Kind)
	}
	if inProgress.Text != " more" {
		t.Fatalf("in-progress text = %q, want %q", inProgress.Text, " more")
	}

	wantPurged := int(1.0 * core.SR)
	if purged != wantPurged {
		t.Fatalf("purged = %d, want %d", purged, wantPurged)
	}
}

// TestLocalAgreeStabilizer_EllipsisIsNotABoundary exercises edge case: an
// ellipsis-terminated prefix must not be treated as a sentence boundary and
// must not be committed.
func TestLocalAgreeStabilizer_EllipsisIsNotABoundary(t *testing.T) {
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{
		{word("Well", 0, 0.3), word("...", 0.3, 0.6), word(" anyway.", 0.6, 1.0)},
	}}
	sink, blocks := recordingSink()
	s := core.NewLocalAgreeStabilizer(rec, sink, 480000, 16000, 1)

	if _, err := s.Stabilize(context.Background(), make([]float32, 20000), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var finals []core.TranscriptBlock
	for _, b := range *blocks {
		if b.Kind == core.Final {
			finals = append(finals, b)
		}
	}
	if len(finals) != 1 {
		t.Fatalf("got %d final blocks, want 1", len(finals))
	}
	if finals[0].Text != "Well... anyway." {
		t.Fatalf("final text = %q, want %q", finals[0].Text, "Well... anyway.")
	}
}

// TestLocalAgreeStabilizer_AgreementAcrossDim2 exercises the core LocalAgree
// mechanism: with localAgreeDim=2 a word only commits once it has appeared
// identically in two consecutive hypotheses at the same position.
func TestLocalAgreeStabilizer_AgreementAcrossDim2(t *testing.T) {
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{
		{word("Hello", 0, 0.5), word(" there.", 0.5, 1.0)},
		{word("Hello", 0, 0.5), word(" there.", 0.5, 1.0)},
	}}
	sink, blocks := recordingSink()
	s := core.NewLocalAgreeStabilizer(rec, sink, 480000, 16000, 2)

	// First call: history is empty, so no word can agree yet and nothing
	// commits, even though " there." closes a sentence.
	if _, err := s.Stabilize(context.Background(), make([]float32, 20000), 0); err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	firstFinal := false
	for _, b := range *blocks {
		if b.Kind == core.Final {
			firstFinal = true
		}
	}
	if firstFinal {
		t.Fatal("no final block expected on first call (history empty)")
	}

	*blocks = nil
	if _, err := s.Stabilize(context.Background(), make([]float32, 20000), 0); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	var finals []core.TranscriptBlock
	for _, b := range *blocks {
		if b.Kind == core.Final {
			finals = append(finals, b)
		}
	}
	if len(finals) != 1 || finals[0].Text != "Hello there." {
		t.Fatalf("finals = %+v, want one block with text %q", finals, "Hello there.")
	}
}

// TestLocalAgreeStabilizer_ForcedFinalizationOnSaturation exercises the
// saturation fallback: with no sentence boundary in sight, a saturated
// window must still force enough text to be finalized to guarantee
// minNewSamples worth of purge.
func TestLocalAgreeStabilizer_ForcedFinalizationOnSaturation(t *testing.T) {
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{
		{word("um", 0, 0.5), word(" so", 0.5, 1.0), word(" anyway", 1.0, 1.5)},
	}}
	sink, blocks := recordingSink()
	maxSegmentSamples := 16000
	minNewSamples := 8000
	s := core.NewLocalAgreeStabilizer(rec, sink, maxSegmentSamples, minNewSamples, 1)

	// Window length equals capacity: saturated.
	window := make([]float32, maxSegmentSamples)
	purged, err := s.Stabilize(context.Background(), window, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var finals []core.TranscriptBlock
	for _, b := range *blocks {
		if b.Kind == core.Final {
			finals = append(finals, b)
		}
	}
	if len(finals) == 0 {
		t.Fatal("expected a forced final block on saturation, got none")
	}
	if purged < minNewSamples {
		t.Fatalf("purged = %d, want at least minNewSamples (%d)", purged, minNewSamples)
	}
}

// TestLocalAgreeStabilizer_EmptyInProgressStillEmitted exercises edge case:
// when every word commits, the in-progress block must still be emitted,
// with empty text, as an explicit clear signal.
func TestLocalAgreeStabilizer_EmptyInProgressStillEmitted(t *testing.T) {
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{
		{word("Done.", 0, 0.5)},
	}}
	sink, blocks := recordingSink()
	s := core.NewLocalAgreeStabilizer(rec, sink, 480000, 16000, 1)

	if _, err := s.Stabilize(context.Background(), make([]float32, 20000), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	last := (*blocks)[len(*blocks)-1]
	if last.Kind != core.InProgress {
		t.Fatalf("last block kind = %v, want InProgress", last.Kind)
	}
	if last.Text != "" {
		t.Fatalf("last block text = %q, want empty", last.Text)
	}
}

// TestLocalAgreeStabilizer_PromptCarriesCommittedText exercises the
// recognizer conditioning contract: the text committed in one call becomes
// the initialPrompt on the next.
func TestLocalAgreeStabilizer_PromptCarriesCommittedText(t *testing.T) {
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{
		{word("First.", 0, 0.5)},
		{word(" Second.", 0, 0.5)},
	}}
	sink, _ := recordingSink()
	s := core.NewLocalAgreeStabilizer(rec, sink, 480000, 16000, 1)

	if _, err := s.Stabilize(context.Background(), make([]float32, 20000), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Stabilize(context.Background(), make([]float32, 20000), 0); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if len(rec.prompts) != 2 {
		t.Fatalf("got %d prompts, want 2", len(rec.prompts))
	}
	if rec.prompts[0] != "" {
		t.Fatalf("first prompt = %q, want empty", rec.prompts[0])
	}
	if rec.prompts[1] != "First." {
		t.Fatalf("second prompt = %q, want %q", rec.prompts[1], "First.")
	}
}

// TestLocalAgreeStabilizer_EllipsisCommitsWithFollowingSentence verifies
// that an ellipsis-terminated prefix rides along until a real boundary: two
// agreeing hypotheses ["Wait...", " Go."] must commit "Wait... Go." as one
// block, never "Wait..." alone.
func TestLocalAgreeStabilizer_EllipsisCommitsWithFollowingSentence(t *testing.T) {
	hyp := core.Hypothesis{word("Wait...", 0, 0.5), word(" Go.", 0.5, 1.0)}
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{hyp, hyp}}
	sink, blocks := recordingSink()
	s := core.NewLocalAgreeStabilizer(rec, sink, 480000, 16000, 2)

	if _, err := s.Stabilize(context.Background(), make([]float32, 20000), 0); err != nil {
		t.Fatalf("unexpected error on first call: %v", err)
	}
	for _, b := range *blocks {
		if b.Kind == core.Final {
			t.Fatalf("unexpected final %q on first call (history empty)", b.Text)
		}
	}

	*blocks = nil
	if _, err := s.Stabilize(context.Background(), make([]float32, 20000), 0); err != nil {
		t.Fatalf("unexpected error on second call: %v", err)
	}
	var finals []core.TranscriptBlock
	for _, b := range *blocks {
		if b.Kind == core.Final {
			finals = append(finals, b)
		}
	}
	if len(finals) != 1 {
		t.Fatalf("got %d final blocks, want 1", len(finals))
	}
	if finals[0].Text != "Wait... Go." {
		t.Fatalf("final text = %q, want %q (ellipsis must not split the commit)", finals[0].Text, "Wait... Go.")
	}
}

// TestLocalAgreeStabilizer_EmptyHypothesis: a recognizer returning zero
// words yields exactly one in-progress block with empty text and a zero
// purge count when the window is not saturated.
func TestLocalAgreeStabilizer_EmptyHypothesis(t *testing.T) {
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{{}}}
	sink, blocks := recordingSink()
	s := core.NewLocalAgreeStabilizer(rec, sink, 480000, 16000, 2)

	purged, err := s.Stabilize(context.Background(), make([]float32, 20000), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purged != 0 {
		t.Fatalf("purged = %d, want 0 for an empty hypothesis below capacity", purged)
	}
	if len(*blocks) != 1 {
		t.Fatalf("emitted %d blocks, want exactly 1", len(*blocks))
	}
	b := (*blocks)[0]
	if b.Kind != core.InProgress || b.Text != "" {
		t.Fatalf("block = %+v, want an empty in-progress block", b)
	}
}

// TestLocalAgreeStabilizer_EmptyHypothesisSaturated: on a saturated window
// an empty hypothesis still purges minNewSamples so the scheduler can make
// forward progress over pure silence.
func TestLocalAgreeStabilizer_EmptyHypothesisSaturated(t *testing.T) {
	rec := &scriptedRecognizer{hyps: []core.Hypothesis{{}}}
	sink, _ := recordingSink()
	maxSegmentSamples := 16000
	minNewSamples := 8000
	s := core.NewLocalAgreeStabilizer(rec, sink, maxSegmentSamples, minNewSamples, 2)

	purged, err := s.Stabilize(context.Background(), make([]float32, maxSegmentSamples), 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if purged != minNewSamples {
		t.Fatalf("purged = %d, want minNewSamples (%d)", purged, minNewSamples)
	}
}
