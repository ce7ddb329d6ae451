// Package cache holds small in-memory ring buffers for keeping recent
// activity without unbounded growth over a long simulation run. No other
// package in this module imports it.
package cache

import "sync"

// BoundedSlice is a thread-safe FIFO ring buffer: once full, appending
// evicts the oldest item rather than growing further.
type BoundedSlice[T any] struct {
	items   []T
	maxSize int
	mu      sync.RWMutex
}

// NewBoundedSlice creates a ring buffer holding at most maxSize items.
func NewBoundedSlice[T any](maxSize int) *BoundedSlice[T] {
	return &BoundedSlice[T]{
		items:   make([]T, 0, maxSize),
		maxSize: maxSize,
	}
}

// Append adds item, evicting the oldest entry first if already at capacity.
func (s *BoundedSlice[T]) Append(item T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(s.items) >= s.maxSize {
		copy(s.items, s.items[1:])
		s.items[len(s.items)-1] = item
	} else {
		s.items = append(s.items, item)
	}
}

// GetAll returns a copy of every buffered item, oldest first.
func (s *BoundedSlice[T]) GetAll() []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]T, len(s.items))
	copy(result, s.items)
	return result
}

// GetLast returns the n most recently appended items.
func (s *BoundedSlice[T]) GetLast(n int) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if n > len(s.items) {
		n = len(s.items)
	}
	start := len(s.items) - n
	result := make([]T, n)
	copy(result, s.items[start:])
	return result
}

// Len returns the current number of buffered items.
func (s *BoundedSlice[T]) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.items)
}
