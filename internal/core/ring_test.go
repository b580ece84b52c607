package core_test

import (
	"testing"

	"github.com/MrWong99/streamstt/internal/core"
)

func TestRingBuffer_AppendSequence_FitsEntirely(t *testing.T) {
	r := core.NewRingBuffer[int](4)
	overflow := r.AppendSequence([]int{1, 2, 3})
	if len(overflow) != 0 {
		t.Fatalf("overflow = %v, want empty", overflow)
	}
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if got := r.View(); len(got) != 3 || got[0] != 1 || got[2] != 3 {
		t.Fatalf("View() = %v, want [1 2 3]", got)
	}
}

func TestRingBuffer_AppendSequence_Overflow(t *testing.T) {
	r := core.NewRingBuffer[int](3)
	overflow := r.AppendSequence([]int{1, 2, 3, 4, 5})
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	if len(overflow) != 2 || overflow[0] != 4 || overflow[1] != 5 {
		t.Fatalf("overflow = %v, want [4 5]", overflow)
	}
}

// TestRingBuffer_SingleSampleAppend: after appending a one-item array to a
// buffer of capacity 2 that already has one item, View() holds 2 items and
// overflow is empty; the next append of one item returns that item as
// overflow.
func TestRingBuffer_SingleSampleAppend(t *testing.T) {
	r := core.NewRingBuffer[float32](2)
	if overflow := r.AppendSequence([]float32{0.1}); len(overflow) != 0 {
		t.Fatalf("first append overflow = %v, want empty", overflow)
	}
	overflow := r.AppendSequence([]float32{0.2})
	if len(overflow) != 0 {
		t.Fatalf("second append overflow = %v, want empty", overflow)
	}
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2", r.Len())
	}

	overflow = r.AppendSequence([]float32{0.3})
	if len(overflow) != 1 || overflow[0] != 0.3 {
		t.Fatalf("third append overflow = %v, want [0.3]", overflow)
	}
}

// TestRingBuffer_ShiftLeft_PreservesOrder exercises the shift invariant:
// the surviving items occupy indices [0, len-k) in their original order.
func TestRingBuffer_ShiftLeft_PreservesOrder(t *testing.T) {
	r := core.NewRingBuffer[int](5)
	r.AppendSequence([]int{10, 20, 30, 40, 50})
	r.ShiftLeft(2)
	if r.Len() != 3 {
		t.Fatalf("Len() = %d, want 3", r.Len())
	}
	want := []int{30, 40, 50}
	got := r.View()
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("View() = %v, want %v", got, want)
		}
	}
}

func TestRingBuffer_ShiftLeft_ClampsToLen(t *testing.T) {
	r := core.NewRingBuffer[int](4)
	r.AppendSequence([]int{1, 2})
	r.ShiftLeft(100) // more than Len(); must clamp rather than panic.
	if r.Len() != 0 {
		t.Fatalf("Len() = %d, want 0", r.Len())
	}
}

func TestRingBuffer_ShiftLeft_Zero(t *testing.T) {
	r := core.NewRingBuffer[int](4)
	r.AppendSequence([]int{1, 2})
	r.ShiftLeft(0)
	if r.Len() != 2 {
		t.Fatalf("Len() = %d, want 2 (unchanged)", r.Len())
	}
}

// TestRingBuffer_RoundTrip: append then shift the full length back to
// empty, and the concatenation of overflow tails equals the part of the
// input beyond first saturation.
func TestRingBuffer_RoundTrip(t *testing.T) {
	r := core.NewRingBuffer[int](3)
	xs := []int{1, 2, 3, 4, 5, 6, 7}

	var overflow []int
	fed := 0
	for fed < len(xs) {
		remaining := xs[fed:]
		tail := r.AppendSequence(remaining)
		fed = len(xs) - len(tail)
		if len(tail) > 0 {
			overflow = tail
			break
		}
	}

	if r.Len() != 3 {
		t.Fatalf("Len() after first saturation = %d, want 3", r.Len())
	}
	if got := overflow; len(got) != 4 || got[0] != 4 {
		t.Fatalf("overflow at first saturation = %v, want [4 5 6 7]", got)
	}

	r.ShiftLeft(r.Len())
	if r.Len() != 0 {
		t.Fatalf("Len() after shifting full length = %d, want 0", r.Len())
	}
}

func TestRingBuffer_CapReflectsConstruction(t *testing.T) {
	r := core.NewRingBuffer[float32](480000)
	if r.Cap() != 480000 {
		t.Fatalf("Cap() = %d, want 480000", r.Cap())
	}
}
