// Package ring provides a fixed-capacity FIFO line store.
//
// Once full, appending evicts the oldest entry. Append and Snapshot are
// O(1) and O(n) respectively, and the buffer is safe for concurrent use.
package ring

import (
	"sync"
)

// Buffer is a fixed-capacity ring of log lines.
type Buffer struct {
	mu    sync.Mutex
	lines []string
	start int
	count int
}

// New creates a buffer holding at most capacity lines.
// A non-positive capacity is treated as 1.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		lines: make([]string, capacity),
	}
}

// Append adds a line, evicting the oldest when full.
func (b *Buffer) Append(line string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	idx := (b.start + b.count) % len(b.lines)
	b.lines[idx] = line
	if b.count < len(b.lines) {
		b.count++
		return
	}
	b.start = (b.start + 1) % len(b.lines)
}

// Snapshot returns the buffered lines in append order, oldest first.
func (b *Buffer) Snapshot() []string {
	b.mu.Lock()
	defer b.mu.Unlock()

	out := make([]string, b.count)
	for i := 0; i < b.count; i++ {
		out[i] = b.lines[(b.start+i)%len(b.lines)]
	}
	return out
}

// Len returns the number of buffered lines.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer) Cap() int {
	return len(b.lines)
}

// Clear discards all buffered lines.
func (b *Buffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.start = 0
	b.count = 0
}
