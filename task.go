package jobsystem

import "sync"

// TaskFunc is the body of a Task[R]: a suspendable unit of work that
// produces a value. It receives the JobContext of whichever Job (or
// enclosing Task) is currently awaiting it, so it may call jc.Yield()
// itself — doing so suspends the entire enclosing job, exactly as spec
// §4.3's state machine requires for any suspension point.
type TaskFunc[R any] func(jc *JobContext) (R, error)

// Task is an awaitable with a return value, used for structured
// composition of jobs (spec §2, §4.3 TaskAwaiter). Unlike Job, a Task does
// not own a goroutine or a slab slot: awaiting it is an ordinary (and
// possibly recursive) function call on the awaiter's own goroutine, which
// is the ground truth for "symmetric transfer" once coroutines are
// realized as goroutines — handing control to the callee costs nothing
// because it never left the caller's stack. See SPEC_FULL.md for the
// rationale.
type Task[R any] struct {
	fn   TaskFunc[R]
	once sync.Once
	ran  bool
	res  R
	err  error
}

// NewTask wraps fn as an awaitable Task.
func NewTask[R any](fn TaskFunc[R]) *Task[R] {
	return &Task[R]{fn: fn}
}

// Await runs t to completion on the caller's goroutine (or, if t already
// ran, returns its stored result by move-equivalent copy). A nil or
// already-done task short-circuits to ready and yields its stored result
// immediately, per spec §4.3's edge-case policy.
func Await[R any](jc *JobContext, t *Task[R]) (R, error) {
	if t == nil {
		var zero R
		return zero, nil
	}
	t.once.Do(func() {
		t.res, t.err = t.fn(jc)
		t.ran = true
	})
	return t.res, t.err
}

// Execute is the BasicCoroutine entry point (spec §2, §6): a fire-and-forget
// helper that drives a Task to completion from non-suspendable caller
// context, by wrapping it in a value-less Job dispatched against no
// counter. Any error the task returns is swallowed at the promise boundary
// and reported through the scheduler's logger, never propagated to the
// caller of Execute.
func Execute[R any](s *Scheduler, priority Priority, t *Task[R]) JobHandle {
	h, _ := s.newJobHandle(func(jc *JobContext) {
		if _, err := Await(jc, t); err != nil {
			s.logger.Error().
				Str("tag", "Task").
				Err(err).
				Msg("basic coroutine task returned an error")
		}
	})
	s.DispatchJob(h, priority, nil)
	return h
}
