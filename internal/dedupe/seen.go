// ABOUTME: Thread-safe TTL set of already-seen message IDs
// ABOUTME: Guarantees a message delivered by both push and poll is applied once

package dedupe

import (
	"container/list"
	"sync"
	"time"
)

// seenEntry stores the timestamp and list element for a tracked message ID.
type seenEntry struct {
	timestamp time.Time
	element   *list.Element
}

// SeenSet tracks message IDs that have already been applied to a rendered
// sequence. The push channel and the polling fallback can both deliver the
// same logical message; whichever arrives second is rejected here.
// Entries expire after a TTL and the set is size-bounded, with the oldest
// entry evicted first (insertion order kept in a doubly-linked list so
// eviction is O(1)).
type SeenSet struct {
	mu      sync.RWMutex
	seen    map[int64]*seenEntry
	order   *list.List // message IDs in insertion order (oldest at front)
	ttl     time.Duration
	maxSize int
	done    chan struct{}
	closed  bool
}

// New creates a seen-set with the specified TTL and maximum size.
// A background goroutine periodically removes expired entries.
func New(ttl time.Duration, maxSize int) *SeenSet {
	s := &SeenSet{
		seen:    make(map[int64]*seenEntry),
		order:   list.New(),
		ttl:     ttl,
		maxSize: maxSize,
		done:    make(chan struct{}),
	}
	go s.cleanup()
	return s
}

// Check returns true if the message ID has been seen and is not expired.
func (s *SeenSet) Check(id int64) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entry, ok := s.seen[id]
	if !ok {
		return false
	}
	return time.Since(entry.timestamp) < s.ttl
}

// CheckAndMark atomically checks whether a message ID has been seen and
// marks it if not. Returns true if the ID was already seen (duplicate),
// false if it is new and now marked. The atomicity matters: the session
// appends from the push goroutine while the poller merges concurrently.
func (s *SeenSet) CheckAndMark(id int64) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, ok := s.seen[id]
	if ok && time.Since(entry.timestamp) < s.ttl {
		return true
	}

	s.markLocked(id)
	return false
}

// Mark records that a message ID has been seen. If the set is at capacity,
// the oldest entry is evicted to make room.
func (s *SeenSet) Mark(id int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markLocked(id)
}

// markLocked is the internal mark implementation. Must be called with mu held.
func (s *SeenSet) markLocked(id int64) {
	now := time.Now()

	// Re-marking refreshes the timestamp and moves the entry to the back
	if entry, exists := s.seen[id]; exists {
		entry.timestamp = now
		s.order.MoveToBack(entry.element)
		return
	}

	if len(s.seen) >= s.maxSize {
		s.evictOldest()
	}

	elem := s.order.PushBack(id)
	s.seen[id] = &seenEntry{
		timestamp: now,
		element:   elem,
	}
}

// evictOldest removes the oldest entry. Must be called with mu held.
func (s *SeenSet) evictOldest() {
	front := s.order.Front()
	if front == nil {
		return
	}

	id, _ := front.Value.(int64)
	s.order.Remove(front)
	delete(s.seen, id)
}

// cleanup runs in a background goroutine, periodically removing expired entries.
func (s *SeenSet) cleanup() {
	ticker := time.NewTicker(time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.runCleanup()
		case <-s.done:
			return
		}
	}
}

// runCleanup removes all expired entries from the set.
func (s *SeenSet) runCleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	for id, entry := range s.seen {
		if now.Sub(entry.timestamp) > s.ttl {
			s.order.Remove(entry.element)
			delete(s.seen, id)
		}
	}
}

// Close stops the background cleanup goroutine. Safe to call multiple times.
func (s *SeenSet) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		close(s.done)
		s.closed = true
	}
}
