package jobsystem

import (
	"math"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.uber.org/atomic"
)

// queueHitKind distinguishes which queue satisfied a worker_iteration's
// refill step, for the "per-queue hit counts" field of spec §4.6.
type queueHitKind int

const (
	hitLocal queueHitKind = iota
	hitStealable
	hitGlobal
	numQueueHitKinds
)

// threadStats is the per-thread record of spec §4.6. Every field is a
// typed atomic so a worker never takes a lock on its own hot path; only
// JobStats.Aggregate and Reset take the JobStats mutex, and only to
// serialize themselves against each other (reads of each atomic are
// already safe without it).
type threadStats struct {
	submissions           atomic.Int64
	submissionsByPriority [numPriorities]atomic.Int64

	executions     atomic.Int64
	execNanosTotal atomic.Int64
	execNanosMin   atomic.Int64
	execNanosMax   atomic.Int64

	stealAttempts     atomic.Int64
	stealSuccesses    atomic.Int64
	itemsStolen       atomic.Int64
	itemsStolenFromMe atomic.Int64

	depthSamples        atomic.Int64
	depthSumLocal       atomic.Int64
	depthSumStealable   atomic.Int64
	depthMaxLocal       [numPriorities]atomic.Int64
	depthMaxStealable   [numPriorities]atomic.Int64

	idleSpins      atomic.Int64
	idleNanosTotal atomic.Int64

	queueHits [numQueueHitKinds]atomic.Int64
}

func newThreadStats() *threadStats {
	t := &threadStats{}
	t.execNanosMin.Store(math.MaxInt64)
	return t
}

func (t *threadStats) reset() {
	*t = threadStats{}
	t.execNanosMin.Store(math.MaxInt64)
}

func atomicMax(a *atomic.Int64, v int64) {
	for {
		cur := a.Load()
		if v <= cur || a.CAS(cur, v) {
			return
		}
	}
}

func atomicMin(a *atomic.Int64, v int64) {
	for {
		cur := a.Load()
		if v >= cur || a.CAS(cur, v) {
			return
		}
	}
}

// JobStats is the statistics aggregator of spec §2/§4.6: one threadStats
// slot per worker plus a reserved slot for the main/caller thread, combined
// into a GlobalStats snapshot on demand without blocking any hot path.
type JobStats struct {
	enabled atomic.Bool

	mu        sync.Mutex
	perThread []*threadStats // [0, numWorkers) are workers; the last slot is "main"
	startTime time.Time
	logger    zerolog.Logger
}

func newJobStats(numWorkers int, logger zerolog.Logger) *JobStats {
	s := &JobStats{
		perThread: make([]*threadStats, numWorkers+1),
		startTime: time.Now(),
		logger:    logger,
	}
	s.enabled.Store(true)
	for i := range s.perThread {
		s.perThread[i] = newThreadStats()
	}
	return s
}

// mainSlot is the index of the reserved main/caller-thread slot.
func (s *JobStats) mainSlot() int {
	return len(s.perThread) - 1
}

func (s *JobStats) slot(workerID int) *threadStats {
	if workerID == globalWorkerID {
		return s.perThread[s.mainSlot()]
	}
	return s.perThread[workerID]
}

// SetEnabled implements the "compile-time switch to disable the fast-path
// recording" of spec §6 as a runtime flag (Go has no debug/release build
// split to hook into) — every record* method below is a no-op while
// disabled.
func (s *JobStats) SetEnabled(enabled bool) {
	s.enabled.Store(enabled)
}

func (s *JobStats) recordSubmission(workerID int, p Priority) {
	if !s.enabled.Load() {
		return
	}
	t := s.slot(workerID)
	t.submissions.Inc()
	t.submissionsByPriority[p].Inc()
}

func (s *JobStats) recordExecution(workerID int, d time.Duration) {
	if !s.enabled.Load() {
		return
	}
	t := s.slot(workerID)
	t.executions.Inc()
	ns := d.Nanoseconds()
	t.execNanosTotal.Add(ns)
	atomicMin(&t.execNanosMin, ns)
	atomicMax(&t.execNanosMax, ns)
}

func (s *JobStats) recordStealAttempt(workerID int) {
	if !s.enabled.Load() {
		return
	}
	s.slot(workerID).stealAttempts.Inc()
}

func (s *JobStats) recordStealSuccess(thiefID, victimID, n int) {
	if !s.enabled.Load() {
		return
	}
	thief := s.slot(thiefID)
	thief.stealSuccesses.Inc()
	thief.itemsStolen.Add(int64(n))
	s.slot(victimID).itemsStolenFromMe.Add(int64(n))
}

func (s *JobStats) recordQueueHit(workerID int, kind queueHitKind) {
	if !s.enabled.Load() {
		return
	}
	s.slot(workerID).queueHits[kind].Inc()
}

func (s *JobStats) recordDepthSample(workerID int, local, stealable [numPriorities]int64) {
	if !s.enabled.Load() {
		return
	}
	t := s.slot(workerID)
	t.depthSamples.Inc()
	var sumLocal, sumStealable int64
	for p := 0; p < numPriorities; p++ {
		sumLocal += local[p]
		sumStealable += stealable[p]
		atomicMax(&t.depthMaxLocal[p], local[p])
		atomicMax(&t.depthMaxStealable[p], stealable[p])
	}
	t.depthSumLocal.Add(sumLocal)
	t.depthSumStealable.Add(sumStealable)
}

func (s *JobStats) recordIdle(workerID int, d time.Duration) {
	if !s.enabled.Load() {
		return
	}
	t := s.slot(workerID)
	t.idleSpins.Inc()
	t.idleNanosTotal.Add(d.Nanoseconds())
}

// Reset zeroes every slot's counters. stats.Aggregate(); stats.Reset();
// stats.Aggregate() yields an all-zeros snapshot modulo StartTime/Elapsed
// (spec §8).
func (s *JobStats) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, t := range s.perThread {
		t.reset()
	}
	s.startTime = time.Now()
}

// GlobalStats is the aggregated snapshot produced by JobStats.Aggregate.
type GlobalStats struct {
	NumWorkers int
	Elapsed    time.Duration

	TotalSubmissions      int64
	SubmissionsByPriority [numPriorities]int64

	TotalExecutions int64
	AverageExecTime time.Duration
	MinExecTime     time.Duration
	MaxExecTime     time.Duration

	StealAttempts     int64
	StealSuccesses    int64
	StealSuccessRate  float64
	ItemsStolen       int64
	ItemsStolenFromMe int64

	AverageLocalDepth     float64
	AverageStealableDepth float64
	MaxLocalDepth         [numPriorities]int64
	MaxStealableDepth     [numPriorities]int64

	IdleSpins       int64
	IdleTimePercent float64

	QueueHits [numQueueHitKinds]int64

	PerWorkerExecutions []int64
	LoadImbalance       float64
}

// Aggregate combines every per-thread slot into a GlobalStats snapshot
// (spec §4.6). Workers keep writing to their own slots concurrently; the
// mutex here only serializes concurrent callers of Aggregate/Reset against
// each other, not against the hot-path writers (each field is an atomic).
func (s *JobStats) Aggregate() GlobalStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	numWorkers := len(s.perThread) - 1
	g := GlobalStats{
		NumWorkers:          numWorkers,
		Elapsed:             time.Since(s.startTime),
		PerWorkerExecutions: make([]int64, numWorkers),
	}

	var depthSamples, depthSumLocal, depthSumStealable int64
	var minExec int64 = math.MaxInt64

	for i, t := range s.perThread {
		g.TotalSubmissions += t.submissions.Load()
		for p := 0; p < numPriorities; p++ {
			g.SubmissionsByPriority[p] += t.submissionsByPriority[p].Load()
		}

		execs := t.executions.Load()
		g.TotalExecutions += execs
		g.ItemsStolen += t.itemsStolen.Load()
		g.ItemsStolenFromMe += t.itemsStolenFromMe.Load()
		g.StealAttempts += t.stealAttempts.Load()
		g.StealSuccesses += t.stealSuccesses.Load()
		g.IdleSpins += t.idleSpins.Load()

		if m := t.execNanosMin.Load(); m < minExec {
			minExec = m
		}
		if m := t.execNanosMax.Load(); time.Duration(m) > g.MaxExecTime {
			g.MaxExecTime = time.Duration(m)
		}

		depthSamples += t.depthSamples.Load()
		depthSumLocal += t.depthSumLocal.Load()
		depthSumStealable += t.depthSumStealable.Load()
		for p := 0; p < numPriorities; p++ {
			if v := t.depthMaxLocal[p].Load(); v > g.MaxLocalDepth[p] {
				g.MaxLocalDepth[p] = v
			}
			if v := t.depthMaxStealable[p].Load(); v > g.MaxStealableDepth[p] {
				g.MaxStealableDepth[p] = v
			}
		}

		for k := 0; k < int(numQueueHitKinds); k++ {
			g.QueueHits[k] += t.queueHits[k].Load()
		}

		if i < numWorkers {
			g.PerWorkerExecutions[i] = execs
		}
	}

	if g.TotalExecutions > 0 {
		var totalNanos int64
		for _, t := range s.perThread {
			totalNanos += t.execNanosTotal.Load()
		}
		g.AverageExecTime = time.Duration(totalNanos / g.TotalExecutions)
	}
	if minExec != math.MaxInt64 {
		g.MinExecTime = time.Duration(minExec)
	}

	if g.StealAttempts > 0 {
		g.StealSuccessRate = float64(g.StealSuccesses) / float64(g.StealAttempts)
	}
	if depthSamples > 0 {
		g.AverageLocalDepth = float64(depthSumLocal) / float64(depthSamples)
		g.AverageStealableDepth = float64(depthSumStealable) / float64(depthSamples)
	}

	var totalIdleNanos int64
	for _, t := range s.perThread {
		totalIdleNanos += t.idleNanosTotal.Load()
	}
	if denom := g.Elapsed.Seconds() * float64(numWorkers+1); denom > 0 {
		g.IdleTimePercent = (float64(totalIdleNanos) / 1e9) / denom * 100
	}

	g.LoadImbalance = loadImbalance(g.PerWorkerExecutions)

	return g
}

// loadImbalance is stddev(per-thread executions) / mean(per-thread
// executions): scale-free, zero for perfect balance, <0.2 good, >0.5 poor
// (spec §4.6 rationale).
func loadImbalance(perWorker []int64) float64 {
	n := len(perWorker)
	if n == 0 {
		return 0
	}
	var sum int64
	for _, v := range perWorker {
		sum += v
	}
	mean := float64(sum) / float64(n)
	if mean == 0 {
		return 0
	}
	var variance float64
	for _, v := range perWorker {
		d := float64(v) - mean
		variance += d * d
	}
	variance /= float64(n)
	return math.Sqrt(variance) / mean
}

// Log writes a structured report of the current snapshot through the
// scheduler's logger, reproducing the per-thread/aggregate report the
// original engine renders as a fixed-width table (see SPEC_FULL.md).
func (s *JobStats) Log() {
	g := s.Aggregate()
	s.logger.Info().
		Int("num_workers", g.NumWorkers).
		Dur("elapsed", g.Elapsed).
		Int64("total_submissions", g.TotalSubmissions).
		Int64("total_executions", g.TotalExecutions).
		Dur("avg_exec_time", g.AverageExecTime).
		Dur("min_exec_time", g.MinExecTime).
		Dur("max_exec_time", g.MaxExecTime).
		Int64("steal_attempts", g.StealAttempts).
		Int64("steal_successes", g.StealSuccesses).
		Float64("steal_success_rate", g.StealSuccessRate).
		Float64("avg_local_depth", g.AverageLocalDepth).
		Float64("avg_stealable_depth", g.AverageStealableDepth).
		Float64("idle_time_percent", g.IdleTimePercent).
		Float64("load_imbalance", g.LoadImbalance).
		Ints64("per_worker_executions", g.PerWorkerExecutions).
		Msg("jobsystem stats")
}
