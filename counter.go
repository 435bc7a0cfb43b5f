package jobsystem

import (
	"sync"

	"go.uber.org/atomic"
)

// Counter is the dispatch/wait rendezvous object described in spec §3/§4.4:
// a pair of (in-flight atomic count, blocking flag). It is created by the
// caller, must outlive every job that references it, and is decremented
// exactly once per referenced job's final step.
type Counter struct {
	count    atomic.Int64
	blocking atomic.Bool

	mu   sync.Mutex
	cond *sync.Cond
}

// NewCounter returns a zeroed, ready-to-use Counter.
func NewCounter() *Counter {
	c := &Counter{}
	c.cond = sync.NewCond(&c.mu)
	return c
}

// Load returns the current in-flight count.
func (c *Counter) Load() int64 {
	return c.count.Load()
}

// Blocking reports whether a waiter is currently parked on this counter.
func (c *Counter) Blocking() bool {
	return c.blocking.Load()
}

// add increments count by n. Called by dispatch_jobs before the dispatched
// batch becomes externally observable (establish-before-use, spec §4.4).
func (c *Counter) add(n int64) {
	if n == 0 {
		return
	}
	c.count.Add(n)
}

// done decrements count by exactly one, on behalf of one job's final step
// (spec §4.3 FinalAwaiter). When the new value reaches zero it clears
// blocking and wakes every parked waiter.
func (c *Counter) done() {
	if c.count.Dec() == 0 {
		c.wake()
	}
}

// clearAndWake clears blocking and wakes parked waiters without touching
// count. Used by SuspendAwaiter (spec §4.3 step 2): a yielding job's
// counter is not yet done, but waiters should not sleep past a yield that
// may have unblocked other work.
func (c *Counter) clearAndWake() {
	c.wake()
}

func (c *Counter) wake() {
	c.mu.Lock()
	c.blocking.Store(false)
	c.cond.Broadcast()
	c.mu.Unlock()
}

// parkUntilWoken blocks the calling goroutine until either count reaches
// zero or it is woken (by done() or clearAndWake()). The count is re-checked
// and the blocking flag set while holding the same mutex wake() takes, so a
// wake that races the park can never be missed (spec §4.4 "no starvation").
func (c *Counter) parkUntilWoken() {
	c.mu.Lock()
	if c.count.Load() == 0 {
		c.mu.Unlock()
		return
	}
	c.blocking.Store(true)
	for c.blocking.Load() {
		c.cond.Wait()
	}
	c.mu.Unlock()
}
