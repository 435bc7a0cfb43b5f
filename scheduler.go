package jobsystem

import (
	"runtime"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Config configures a Scheduler, mirroring the teacher's Config/
// DefaultConfig pattern. NumWorkers is taken as a separate constructor
// argument (spec §6) rather than a field here, since its sign changes its
// meaning (exact count / no workers / hardware_concurrency + n).
type Config struct {
	// JobCacheSize is the per-worker job_cache capacity (spec §3, default 32).
	JobCacheSize int
	// MigrateThreshold and MigrateBatch tune WorkerQueue.migrateToStealable
	// (spec §4.2/§9, default 32/16).
	MigrateThreshold int
	MigrateBatch     int
	// Logger is the host logging sink (spec §1 "logging ... treated as
	// host services"). The zero value logs nothing.
	Logger zerolog.Logger
	// DisableDebugChecks turns off the "dispatched twice" sanity assertion
	// (spec §4.4, §7) — Go has no separate debug/release build, so this is
	// the nearest equivalent to the source's debug-only marker.
	DisableDebugChecks bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		JobCacheSize:     defaultJobCacheCapacity,
		MigrateThreshold: defaultMigrateThreshold,
		MigrateBatch:     defaultMigrateBatch,
		Logger:           zerolog.Nop(),
	}
}

// Scheduler owns the worker pool, the global (non-worker) context, victim
// selection, dispatch/wait APIs, and the JobStats sink (spec §3).
type Scheduler struct {
	numWorkers    int
	workers       []*Worker
	globalContext *Worker
	slab          *slab
	stats         *JobStats
	logger        zerolog.Logger
	debugChecks   bool

	stopOnce sync.Once
	stopCh   chan struct{}
	eg       *errgroup.Group
}

// Create constructs a Scheduler with default configuration and starts its
// worker threads.
func Create(numWorkers int) *Scheduler {
	return CreateWithConfig(numWorkers, DefaultConfig())
}

// CreateWithConfig constructs a Scheduler per spec §6:
//
//	numWorkers > 0:  exactly that many worker goroutines
//	numWorkers == 0: no workers; caller drives via MainThreadDoWork/WaitForCounter
//	numWorkers < 0:  runtime.NumCPU() + numWorkers, floored at 0
func CreateWithConfig(numWorkers int, cfg Config) *Scheduler {
	if cfg.JobCacheSize <= 0 {
		cfg.JobCacheSize = defaultJobCacheCapacity
	}
	if numWorkers < 0 {
		numWorkers = runtime.NumCPU() + numWorkers
		if numWorkers < 0 {
			numWorkers = 0
		}
	}

	s := &Scheduler{
		numWorkers:  numWorkers,
		slab:        newSlab(),
		logger:      cfg.Logger,
		debugChecks: !cfg.DisableDebugChecks,
		stopCh:      make(chan struct{}),
	}
	s.stats = newJobStats(numWorkers, cfg.Logger)
	s.globalContext = newWorker(globalWorkerID, s, cfg.MigrateThreshold, cfg.MigrateBatch, cfg.JobCacheSize)

	s.workers = make([]*Worker, numWorkers)
	for i := 0; i < numWorkers; i++ {
		s.workers[i] = newWorker(i, s, cfg.MigrateThreshold, cfg.MigrateBatch, cfg.JobCacheSize)
	}

	eg := &errgroup.Group{}
	for _, w := range s.workers {
		w := w
		eg.Go(func() error {
			w.runLoop(s.stopCh)
			return nil
		})
	}
	s.eg = eg

	return s
}

// runLoop is the worker thread loop of spec §4.5: iterate; on EmptyQueue,
// yield the OS thread and record idle time; repeat until stopped.
func (w *Worker) runLoop(stop <-chan struct{}) {
	for {
		select {
		case <-stop:
			return
		default:
		}

		if w.iterate() == EmptyQueue {
			idleStart := time.Now()
			runtime.Gosched()
			w.scheduler.stats.recordIdle(w.id, time.Since(idleStart))
		}
	}
}

// Shutdown requests a graceful stop: the loop terminates at its next
// iteration boundary, and any in-flight jobs complete normally (spec §5
// "Cancellation & timeouts" — stop_token is a thread-level concept only).
// It blocks until every worker goroutine has observed the stop.
func (s *Scheduler) Shutdown() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	_ = s.eg.Wait()
}

// NumWorkers returns the configured worker count.
func (s *Scheduler) NumWorkers() int {
	return s.numWorkers
}

// Stats returns the scheduler's statistics aggregator.
func (s *Scheduler) Stats() *JobStats {
	return s.stats
}

// NewJob constructs a suspendable unit of work from body. The returned
// handle is in the Suspended state (initial_suspend holds, spec §4.3); it
// becomes runnable only once dispatched.
func (s *Scheduler) NewJob(body func(jc *JobContext)) JobHandle {
	h, _ := s.newJobHandle(body)
	return h
}

func (s *Scheduler) newJobHandle(body func(jc *JobContext)) (JobHandle, *Promise) {
	p := newPromise(s, body)
	return p.handle, p
}

// annotateDispatch implements the per-handle bookkeeping of spec §4.4: set
// the counter (the scheduler pointer is already fixed by newPromise), and
// trip the debug-only "dispatched" marker — usage
// violations (dispatching the same handle twice) are treated as fatal.
func (s *Scheduler) annotateDispatch(batch []JobHandle, counter *Counter) {
	for _, h := range batch {
		p := s.slab.resolve(h)
		if p == nil {
			continue
		}
		if s.debugChecks && p.dispatched.Load() {
			panic("jobsystem: job dispatched twice")
		}
		p.counter = counter
		p.dispatched.Store(true)
	}
}

// dispatchVia submits batch to ctx's local queue at priority, annotating
// every handle and, if counter is present, incrementing it before the
// batch becomes observable to any dequeuer (establish-before-use, spec
// §4.4/§5).
func (s *Scheduler) dispatchVia(ctx *Worker, batch []JobHandle, priority Priority, counter *Counter) {
	if len(batch) == 0 {
		return
	}
	s.annotateDispatch(batch, counter)
	if counter != nil {
		counter.add(int64(len(batch)))
	}
	ctx.queue.submitLocalBulk(batch, priority)
	for range batch {
		s.stats.recordSubmission(ctx.id, priority)
	}
}

// DispatchJob dispatches a single job from non-suspendable (non-worker)
// caller context, via the scheduler's global context.
func (s *Scheduler) DispatchJob(h JobHandle, priority Priority, counter *Counter) {
	s.dispatchVia(s.globalContext, []JobHandle{h}, priority, counter)
}

// DispatchJobs dispatches batch from non-worker caller context.
func (s *Scheduler) DispatchJobs(batch []JobHandle, priority Priority, counter *Counter) {
	s.dispatchVia(s.globalContext, batch, priority, counter)
}

// WaitForCounter blocks the calling goroutine until counter reaches zero,
// helping drain the system while it waits (spec §4.4). Safe to call from
// any goroutine; non-worker callers drive the global context.
func (s *Scheduler) WaitForCounter(counter *Counter) {
	s.waitForCounterVia(s.globalContext, counter)
}

func (s *Scheduler) waitForCounterVia(ctx *Worker, counter *Counter) {
	for {
		if counter.Load() == 0 {
			return
		}
		if ctx.iterate() == EmptyQueue {
			idleStart := time.Now()
			counter.parkUntilWoken()
			s.stats.recordIdle(ctx.id, time.Since(idleStart))
			if counter.Load() == 0 {
				return
			}
		}
	}
}

// WaitForJob dispatches job against a fresh stack counter and waits for it.
func (s *Scheduler) WaitForJob(h JobHandle, priority Priority) {
	s.WaitForJobs([]JobHandle{h}, priority)
}

// WaitForJobs dispatches batch against a fresh stack counter and waits for
// all of it to complete (spec §4.4 convenience wrapper).
func (s *Scheduler) WaitForJobs(batch []JobHandle, priority Priority) {
	if len(batch) == 0 {
		return
	}
	c := NewCounter()
	s.DispatchJobs(batch, priority, c)
	s.WaitForCounter(c)
}

// MainThreadDoWork runs one worker_iteration against the global context
// (spec §6).
func (s *Scheduler) MainThreadDoWork() IterationState {
	return s.globalContext.iterate()
}

// DispatchJob dispatches a child job from inside a running job body, via
// the worker currently driving jc's job — the "caller's WorkerContext" of
// spec §4.4 when the caller is itself a worker.
func (jc *JobContext) DispatchJob(h JobHandle, priority Priority, counter *Counter) {
	jc.promise.scheduler.dispatchVia(jc.promise.currentWorker, []JobHandle{h}, priority, counter)
}

// DispatchJobs is the batch form of JobContext.DispatchJob.
func (jc *JobContext) DispatchJobs(batch []JobHandle, priority Priority, counter *Counter) {
	jc.promise.scheduler.dispatchVia(jc.promise.currentWorker, batch, priority, counter)
}

// WaitForCounter blocks the enclosing job's goroutine (not the OS thread —
// just this job) until counter reaches zero, helping drain the system from
// the owning worker's context while it waits.
func (jc *JobContext) WaitForCounter(counter *Counter) {
	jc.promise.scheduler.waitForCounterVia(jc.promise.currentWorker, counter)
}
