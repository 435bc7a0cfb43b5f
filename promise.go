package jobsystem

import (
	"github.com/google/uuid"
	"github.com/sourcegraph/conc/panics"
	"go.uber.org/atomic"
)

// promise states, observable per spec §4.3.
const (
	stateCreated int32 = iota
	stateSuspended
	stateRunning
	stateFinalizing
	stateDestroyed
)

// Promise is the coroutine-frame-resident control block for a job (spec
// §3/§4.3). It is realized here as a goroutine parked on a pair of
// rendezvous channels rather than a compiler-generated frame: resumeCh
// hands control to the job body, parkedCh hands it back — either because
// the body voluntarily suspended (a value is sent) or because it completed
// (the channel is closed). Exactly one of those is true per receive, which
// is how resume() tells "still suspended" from "finalized" apart.
type Promise struct {
	scheduler *Scheduler
	counter   *Counter
	handle    JobHandle
	traceID   uuid.UUID

	state      atomic.Int32
	dispatched atomic.Bool

	resumeCh chan struct{}
	parkedCh chan struct{}

	// currentWorker is set by resume() immediately before handing control
	// to the job goroutine, and read only by that job goroutine (in Yield
	// and the JobContext dispatch/wait methods). Spec invariant 5 (resume is serialized) means at most one
	// worker ever holds the write side at a time, so no atomic is needed.
	currentWorker *Worker
}

// JobContext is handed to a job or task body; it is the only way a body
// may voluntarily suspend.
type JobContext struct {
	promise *Promise
}

// newPromise allocates a Promise in s's slab and spawns its body goroutine,
// immediately parked on resumeCh — the Go realization of initial_suspend
// (spec §4.3: "Initial and final suspension are both mandatory").
func newPromise(s *Scheduler, body func(jc *JobContext)) *Promise {
	p := &Promise{
		scheduler: s,
		traceID:   uuid.New(),
		resumeCh:  make(chan struct{}),
		parkedCh:  make(chan struct{}),
	}
	p.state.Store(stateCreated)
	p.handle = s.slab.alloc(p)
	p.state.Store(stateSuspended)

	go p.run(body)
	return p
}

// run is the job body's goroutine. It blocks until the first resume, runs
// the body under panic recovery, and performs the final step.
func (p *Promise) run(body func(jc *JobContext)) {
	<-p.resumeCh
	p.state.Store(stateRunning)

	jc := &JobContext{promise: p}

	var catcher panics.Catcher
	catcher.Try(func() { body(jc) })

	if rec := catcher.Recovered(); rec != nil {
		p.scheduler.logger.Error().
			Str("tag", "Task").
			Str("trace_id", p.traceID.String()).
			Interface("panic", rec.Value).
			Msg("unhandled panic inside job body")
	}

	p.final()
}

// final implements FinalAwaiter (spec §4.3): decrement the counter if one
// is attached, waking any waiter that reaches zero, then destroy the frame
// and free the slab slot. Swallowed panics never skip this step, which is
// what keeps a failing job from deadlocking a counter waiter (spec §7).
func (p *Promise) final() {
	p.state.Store(stateFinalizing)
	if p.counter != nil {
		p.counter.done()
	}
	p.state.Store(stateDestroyed)
	p.scheduler.slab.free(p.handle)
	close(p.parkedCh)
}

// Yield implements SuspendAwaiter (spec §4.3): voluntary suspension. It
// re-enqueues the job's own handle into the current worker's local queue at
// Normal priority (no counter argument — the counter tracking this job's
// eventual completion is already attributed to it), clears and wakes the
// counter's waiters if one is attached, then parks until resumed again.
//
// Steps 1-2 together keep a suspended job reachable from some queue while
// unblocking any waiter that might otherwise sleep past work this yield
// made available; step 3 of the original contract (attempt an immediate
// symmetric-transfer resume from the yield site) is realized instead by
// simply returning control to the worker loop; the handle is resumed again
// whenever a later iteration dequeues it from the queue it was placed in
// (after any handles already staged in the worker's cache).
func (jc *JobContext) Yield() {
	p := jc.promise
	w := p.currentWorker

	w.queue.submitLocal(p.handle, Normal)

	if p.counter != nil {
		p.counter.clearAndWake()
	}

	p.state.Store(stateSuspended)
	p.parkedCh <- struct{}{}
	<-p.resumeCh
	p.state.Store(stateRunning)
}

// resume hands control to p's body goroutine on behalf of worker w and
// blocks until the body either suspends again (returns true) or completes
// its final step (returns false). It is the single call site responsible
// for spec invariant 5: no two threads resume the same handle concurrently
// — guaranteed because a handle is removed from its queue by whichever
// dequeue claims it, so only one caller ever holds it to resume.
func (w *Worker) resume(p *Promise) (stillAlive bool) {
	p.currentWorker = w
	p.state.Store(stateRunning)
	p.resumeCh <- struct{}{}
	_, ok := <-p.parkedCh
	return ok
}
