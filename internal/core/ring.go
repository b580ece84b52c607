// Package core implements the streaming transcription pipeline: a
// sample-accurate ring buffer, a WAV decoder, a segment scheduler, and the
// LocalAgree-N stabilization algorithm that turns recognizer output into a
// stable schedule of finalized and in-progress transcript blocks.
package core

// RingBuffer is a fixed-capacity, append-only sequence of T with a logical
// length bounded by capacity. It never reallocates: the backing array is
// sized once, at construction, and all mutation is in-place.
//
// RingBuffer is not safe for concurrent use; callers that share one across
// goroutines must provide their own synchronization.
type RingBuffer[T any] struct {
	buf []T
	len int
}

// NewRingBuffer returns a RingBuffer with the given fixed capacity.
func NewRingBuffer[T any](capacity int) *RingBuffer[T] {
	return &RingBuffer[T]{buf: make([]T, capacity)}
}

// Cap returns the buffer's fixed capacity.
func (r *RingBuffer[T]) Cap() int {
	return len(r.buf)
}

// Len returns the number of items currently held.
func (r *RingBuffer[T]) Len() int {
	return r.len
}

// View returns a read-only-by-convention slice of the first Len items. The
// returned slice aliases the buffer's backing array; callers that need the
// data to survive a subsequent Shift or AppendSequence must copy it first.
func (r *RingBuffer[T]) View() []T {
	return r.buf[:r.len]
}

// AppendSequence copies as many leading items of xs as fit in the remaining
// capacity, advances Len, and returns the suffix of xs that did not fit
// (empty if everything fit).
func (r *RingBuffer[T]) AppendSequence(xs []T) []T {
	room := len(r.buf) - r.len
	if room > len(xs) {
		room = len(xs)
	}
	if room > 0 {
		copy(r.buf[r.len:r.len+room], xs[:room])
		r.len += room
	}
	return xs[room:]
}

// ShiftLeft discards the first k items, preserving the order of the
// remainder, and reduces Len by k. k is clamped to [0, Len] defensively.
func (r *RingBuffer[T]) ShiftLeft(k int) {
	if k <= 0 {
		return
	}
	if k > r.len {
		k = r.len
	}
	n := copy(r.buf[0:], r.buf[k:r.len])
	r.len = n
}
