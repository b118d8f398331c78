package ratelimit

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// LimiterStore keeps one limiter per client, evicting the least recently seen
// client once maxSize is reached.
type LimiterStore struct {
	mu       sync.Mutex
	limiters map[uint64]*timestampedLimiter
	maxSize  int

	limit rate.Limit
	burst int

	now func() time.Time
}

type timestampedLimiter struct {
	limiter  *rate.Limiter
	lastSeen time.Time
}

// NewLimiterStore creates a store handing out limiters of perMinute events per minute.
func NewLimiterStore(maxSize, perMinute int) *LimiterStore {
	limit := rate.Limit(0)
	if perMinute > 0 {
		limit = rate.Every(time.Minute / time.Duration(perMinute))
	}

	return &LimiterStore{
		limiters: make(map[uint64]*timestampedLimiter),
		maxSize:  maxSize,
		limit:    limit,
		burst:    perMinute,
		now:      time.Now,
	}
}

// Get retrieves or creates the limiter for key.
func (s *LimiterStore) Get(key uint64) *rate.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()

	if tl, ok := s.limiters[key]; ok {
		tl.lastSeen = now
		return tl.limiter
	}

	if len(s.limiters) >= s.maxSize {
		s.evictOne()
	}

	tl := &timestampedLimiter{
		limiter:  rate.NewLimiter(s.limit, s.burst),
		lastSeen: now,
	}
	s.limiters[key] = tl

	return tl.limiter
}

func (s *LimiterStore) evictOne() {
	var (
		oldestKey  uint64
		oldestTime time.Time
		first      = true
		checked    = 0
	)

	for k, v := range s.limiters {
		if first || v.lastSeen.Before(oldestTime) {
			oldestKey = k
			oldestTime = v.lastSeen
			first = false
		}

		// map order is random, a sample is good enough for large maps
		checked++
		if checked >= evictSample {
			break
		}
	}

	if !first {
		delete(s.limiters, oldestKey)
	}
}

// Cleanup removes limiters not used for olderThan.
func (s *LimiterStore) Cleanup(olderThan time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	removed := 0
	cutoff := s.now().Add(-olderThan)
	for k, v := range s.limiters {
		if v.lastSeen.Before(cutoff) {
			delete(s.limiters, k)
			removed++
		}
	}

	return removed
}

// Len returns the number of limiters
func (s *LimiterStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.limiters)
}

const evictSample = 100
