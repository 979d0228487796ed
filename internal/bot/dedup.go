// internal/bot/dedup.go
package bot

import "sync"

// SeenSet records which mints have already been copied this session. The
// watched wallet often buys the same token in bursts; only the first signal
// per mint is acted on. The set only grows and is discarded with the session.
type SeenSet struct {
	mu    sync.Mutex
	mints map[string]struct{}
}

// NewSeenSet creates an empty set.
func NewSeenSet() *SeenSet {
	return &SeenSet{mints: make(map[string]struct{})}
}

// TryAcquire marks mint as seen. It returns true exactly once per mint, for
// the caller that gets to run the buy.
func (s *SeenSet) TryAcquire(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, dup := s.mints[mint]; dup {
		return false
	}
	s.mints[mint] = struct{}{}
	return true
}

// Seen reports whether mint was already acquired.
func (s *SeenSet) Seen(mint string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.mints[mint]
	return ok
}

// Len reports how many distinct mints have been seen.
func (s *SeenSet) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.mints)
}
