package ingestion

import "sync"

// BaseLocks hands out one reader/writer lock per knowledge base id.
// Ingestion units, removals and searches hold the read side; reset and
// delete hold the write side so they never overlap work on the same base.
type BaseLocks struct {
	mu    sync.Mutex
	locks map[string]*baseLock
}

type baseLock struct {
	sync.RWMutex
	refs int
}

// NewBaseLocks creates an empty lock table.
func NewBaseLocks() *BaseLocks {
	return &BaseLocks{locks: make(map[string]*baseLock)}
}

// RLock takes the read side for baseID and returns its release function.
func (b *BaseLocks) RLock(baseID string) (unlock func()) {
	l := b.acquire(baseID)
	l.RLock()
	return func() {
		l.RUnlock()
		b.release(baseID, l)
	}
}

// Lock takes the write side for baseID and returns its release function.
func (b *BaseLocks) Lock(baseID string) (unlock func()) {
	l := b.acquire(baseID)
	l.Lock()
	return func() {
		l.Unlock()
		b.release(baseID, l)
	}
}

// acquire returns the lock for baseID with its reference taken.
func (b *BaseLocks) acquire(baseID string) *baseLock {
	b.mu.Lock()
	defer b.mu.Unlock()
	l, ok := b.locks[baseID]
	if !ok {
		l = &baseLock{}
		b.locks[baseID] = l
	}
	l.refs++
	return l
}

// release drops a reference and forgets locks nobody holds or waits on.
func (b *BaseLocks) release(baseID string, l *baseLock) {
	b.mu.Lock()
	defer b.mu.Unlock()
	l.refs--
	if l.refs == 0 {
		delete(b.locks, baseID)
	}
}

// size reports how many base locks are tracked.
func (b *BaseLocks) size() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.locks)
}
