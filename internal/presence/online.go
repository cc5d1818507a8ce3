// ABOUTME: Online-user set mutated by presence add/remove events
// ABOUTME: No snapshot-on-connect guarantee; the set restarts empty on every (re)connect

package presence

import (
	"sort"
	"sync"
)

// OnlineSet is the set of currently online user identifiers. The hub sends
// no initial snapshot, so the set starts empty after every (re)connect and
// only ever reflects events observed since then.
type OnlineSet struct {
	mu    sync.RWMutex
	users map[string]struct{}
}

// NewOnlineSet creates an empty set.
func NewOnlineSet() *OnlineSet {
	return &OnlineSet{users: make(map[string]struct{})}
}

// Add records a user as online.
func (s *OnlineSet) Add(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[userID] = struct{}{}
}

// Remove records a user as offline.
func (s *OnlineSet) Remove(userID string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.users, userID)
}

// Contains reports whether the user is known to be online.
func (s *OnlineSet) Contains(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.users[userID]
	return ok
}

// Len returns the number of users known to be online.
func (s *OnlineSet) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.users)
}

// Snapshot returns the online user ids, sorted for stable display.
func (s *OnlineSet) Snapshot() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, 0, len(s.users))
	for id := range s.users {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// Reset empties the set. Called on every (re)connect.
func (s *OnlineSet) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users = make(map[string]struct{})
}
