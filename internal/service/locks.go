package service

import "sync"

// periodLocks serializes in-process work per period. Rank recalculation is
// idempotent but its writes for one period must not interleave.
type periodLocks struct {
	mu    sync.Mutex
	locks map[uint64]*sync.Mutex
}

func newPeriodLocks() *periodLocks {
	return &periodLocks{locks: make(map[uint64]*sync.Mutex)}
}

// acquire locks the period and returns the unlock function.
func (p *periodLocks) acquire(periodID uint64) func() {
	p.mu.Lock()
	lock, ok := p.locks[periodID]
	if !ok {
		lock = &sync.Mutex{}
		p.locks[periodID] = lock
	}
	p.mu.Unlock()

	lock.Lock()
	return lock.Unlock
}
