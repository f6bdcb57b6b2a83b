package scheduler

import "sync"

// resizableSem is a counting semaphore whose capacity can change at
// runtime, so the scheduler's worker-pool bound can track an
// autoscale.Scaler's recommendation instead of staying fixed for the
// life of the process.
type resizableSem struct {
	mu     sync.Mutex
	cond   *sync.Cond
	cap    int
	inUse  int
	closed bool
}

func newResizableSem(capacity int) *resizableSem {
	if capacity < 1 {
		capacity = 1
	}
	s := &resizableSem{cap: capacity}
	s.cond = sync.NewCond(&s.mu)
	return s
}

// acquire blocks until a slot is available or the semaphore is shut down,
// returning false in the latter case.
func (s *resizableSem) acquire() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for !s.closed && s.inUse >= s.cap {
		s.cond.Wait()
	}
	if s.closed {
		return false
	}
	s.inUse++
	return true
}

// release frees one slot and wakes a waiter.
func (s *resizableSem) release() {
	s.mu.Lock()
	s.inUse--
	s.mu.Unlock()
	s.cond.Signal()
}

// resize changes the capacity, waking waiters if it grew.
func (s *resizableSem) resize(capacity int) {
	if capacity < 1 {
		capacity = 1
	}
	s.mu.Lock()
	s.cap = capacity
	s.mu.Unlock()
	s.cond.Broadcast()
}

func (s *resizableSem) capacity() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cap
}

// shutdown releases every blocked acquire permanently.
func (s *resizableSem) shutdown() {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	s.cond.Broadcast()
}
