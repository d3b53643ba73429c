package inbox

import (
	"sync"
	"time"
)

// DefaultSeenTTL is how long a handled message ID is remembered.
const DefaultSeenTTL = 7 * 24 * time.Hour

// seenSet remembers handled message IDs for a bounded time.
type seenSet struct {
	mu   sync.Mutex
	ttl  time.Duration
	now  func() time.Time
	seen map[string]time.Time // message ID -> expiry
}

func newSeenSet(ttl time.Duration, now func() time.Time) *seenSet {
	if ttl <= 0 {
		ttl = DefaultSeenTTL
	}
	return &seenSet{ttl: ttl, now: now, seen: make(map[string]time.Time)}
}

// claim records id and reports whether it was new. Expired entries are
// pruned on the way.
func (s *seenSet) claim(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for k, exp := range s.seen {
		if now.After(exp) {
			delete(s.seen, k)
		}
	}
	if _, ok := s.seen[id]; ok {
		return false
	}
	s.seen[id] = now.Add(s.ttl)
	return true
}

// release forgets id so a failed message can be retried.
func (s *seenSet) release(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.seen, id)
}
