package canvas

import (
	"image"
	"sync"
)

// DefaultHistoryCapacity bounds the undo history.
const DefaultHistoryCapacity = 30

// History is a fixed-size circular buffer of raster snapshots with
// oldest-first eviction and newest-first retrieval.
type History struct {
	frames   []*image.RGBA
	head     int // Index of oldest element
	tail     int // Index where next element will be inserted
	size     int
	capacity int
	mu       sync.Mutex
}

// NewHistory creates a history with the specified capacity.
func NewHistory(capacity int) *History {
	if capacity <= 0 {
		capacity = DefaultHistoryCapacity
	}
	return &History{
		frames:   make([]*image.RGBA, capacity),
		capacity: capacity,
	}
}

// Push stores a snapshot, evicting the oldest one when full.
// Returns true if a snapshot was evicted to make room.
func (h *History) Push(frame *image.RGBA) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	evicted := false

	h.frames[h.tail] = frame
	h.tail = (h.tail + 1) % h.capacity

	if h.size < h.capacity {
		h.size++
	} else {
		h.head = (h.head + 1) % h.capacity
		evicted = true
	}

	return evicted
}

// Pop removes and returns the newest snapshot, or nil if empty.
func (h *History) Pop() *image.RGBA {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size == 0 {
		return nil
	}
	h.tail = (h.tail - 1 + h.capacity) % h.capacity
	frame := h.frames[h.tail]
	h.frames[h.tail] = nil
	h.size--
	return frame
}

// Peek returns the newest snapshot without removing it.
func (h *History) Peek() *image.RGBA {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.size == 0 {
		return nil
	}
	return h.frames[(h.tail-1+h.capacity)%h.capacity]
}

// Len returns the number of stored snapshots.
func (h *History) Len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.size
}

// Cap returns the maximum capacity.
func (h *History) Cap() int {
	return h.capacity
}

// Clear drops every snapshot.
func (h *History) Clear() {
	h.mu.Lock()
	defer h.mu.Unlock()

	for i := range h.frames {
		h.frames[i] = nil
	}
	h.head = 0
	h.tail = 0
	h.size = 0
}
