package transcript

import "sync"

// Default sizes used by voice sessions.
const (
	DefaultCapacity      = 40
	DefaultDisplayWindow = 8
)

// Buffer is a fixed-capacity transcript history. When full, the oldest
// segment is evicted. It is safe for concurrent use.
type Buffer struct {
	mu       sync.RWMutex
	capacity int
	segments []Segment
}

// NewBuffer creates a buffer holding at most capacity segments.
// A non-positive capacity uses DefaultCapacity.
func NewBuffer(capacity int) *Buffer {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Buffer{
		capacity: capacity,
		segments: make([]Segment, 0, capacity),
	}
}

// Append adds a segment, evicting the oldest ones beyond capacity.
func (b *Buffer) Append(seg Segment) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = append(b.segments, seg)
	if over := len(b.segments) - b.capacity; over > 0 {
		b.segments = append(b.segments[:0:0], b.segments[over:]...)
	}
}

// Len returns the number of segments held.
func (b *Buffer) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.segments)
}

// Capacity returns the maximum number of segments held.
func (b *Buffer) Capacity() int {
	return b.capacity
}

// All returns a copy of every held segment, oldest first.
func (b *Buffer) All() []Segment {
	return b.Recent(0)
}

// Recent returns a copy of the n most recent segments, oldest first.
// n <= 0 returns everything.
func (b *Buffer) Recent(n int) []Segment {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return Window(b.segments, n)
}

// Reset drops all segments.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.segments = b.segments[:0]
}

// Window returns a copy of the last n segments of segs, oldest first.
// n <= 0 returns a copy of all of them.
func Window(segs []Segment, n int) []Segment {
	start := 0
	if n > 0 && len(segs) > n {
		start = len(segs) - n
	}
	out := make([]Segment, len(segs)-start)
	copy(out, segs[start:])
	return out
}
