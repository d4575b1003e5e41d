package store

import "sync"

// RunLocks serializes population runs per source document id. Two runs
// for the same document must not interleave or the idempotent-upsert
// invariant breaks; runs for different documents proceed independently.
type RunLocks struct {
	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunLocks creates an empty lock registry.
func NewRunLocks() *RunLocks {
	return &RunLocks{locks: make(map[string]*sync.Mutex)}
}

// Acquire blocks until the lock for documentID is held and returns the
// release function.
func (r *RunLocks) Acquire(documentID string) func() {
	r.mu.Lock()
	lock, ok := r.locks[documentID]
	if !ok {
		lock = &sync.Mutex{}
		r.locks[documentID] = lock
	}
	r.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
