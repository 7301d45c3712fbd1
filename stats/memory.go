package stats

import (
	"context"
	"fmt"
	"sync"
)

// MemoryRepository is a process-local [Repository]. It is the default when no database is
// configured and is used by tests.
type MemoryRepository struct {
	mu   sync.RWMutex
	byID map[string]CycleStats
}

// NewMemoryRepository returns an empty repository.
func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{byID: make(map[string]CycleStats)}
}

// Load implements [Repository].
func (r *MemoryRepository) Load(_ context.Context, userID string) (*CycleStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	st, ok := r.byID[userID]
	if !ok {
		return nil, ErrNotFound
	}
	out := st.clone()
	return &out, nil
}

// Save implements [Repository].
func (r *MemoryRepository) Save(_ context.Context, st *CycleStats) error {
	if st == nil || st.UserID == "" {
		return fmt.Errorf("%w: missing user id", ErrInvalidObservation)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if prev, ok := r.byID[st.UserID]; ok {
		if st.Version != prev.Version+1 {
			return ErrConflict
		}
	} else if st.Version != 1 {
		return ErrConflict
	}
	r.byID[st.UserID] = st.clone()
	return nil
}

// Len returns the number of users with stored statistics.
func (r *MemoryRepository) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.byID)
}
