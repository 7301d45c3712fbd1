package revocation

import (
	"context"
	"sync"
	"time"
)

const purgeEvery = 1024

// MemoryStore is a process-local [Store]. It is linearizable per jti but offers no protection
// across replicas; use [RedisStore] when more than one process serves refresh requests.
type MemoryStore struct {
	mu      sync.Mutex
	records map[string]time.Time
	inserts int
	now     func() time.Time
}

// NewMemoryStore creates an empty store. A nil clock means time.Now.
func NewMemoryStore(now func() time.Time) *MemoryStore {
	if now == nil {
		now = time.Now
	}
	return &MemoryStore{
		records: make(map[string]time.Time),
		now:     now,
	}
}

// MarkUsed records jti until expiry.
func (s *MemoryStore) MarkUsed(_ context.Context, jti string, expiry time.Time) (bool, error) {
	now := s.now()
	if remainingTTL(expiry, now) <= 0 {
		return false, ErrExpired
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if exp, ok := s.records[jti]; ok && now.Before(exp) {
		return true, nil
	}

	s.records[jti] = expiry
	s.inserts++
	if s.inserts >= purgeEvery {
		s.purgeLocked(now)
	}

	return false, nil
}

// IsUsed reports whether jti holds an unexpired record.
func (s *MemoryStore) IsUsed(_ context.Context, jti string) (bool, error) {
	now := s.now()

	s.mu.Lock()
	defer s.mu.Unlock()

	exp, ok := s.records[jti]
	if !ok {
		return false, nil
	}
	if !now.Before(exp) {
		delete(s.records, jti)
		return false, nil
	}
	return true, nil
}

// Len returns the number of records currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

func (s *MemoryStore) purgeLocked(now time.Time) {
	for jti, exp := range s.records {
		if !now.Before(exp) {
			delete(s.records, jti)
		}
	}
	s.inserts = 0
}
