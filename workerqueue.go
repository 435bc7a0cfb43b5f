package jobsystem

import "go.uber.org/atomic"

const (
	// defaultMigrateThreshold and defaultMigrateBatch unify the two values
	// the source left inconsistent (64/32 in the migration path, 32/16 in
	// the stats path) — spec §9 Open Questions directs adopting 32/16 as
	// the default, exposed as tunables on Scheduler.
	defaultMigrateThreshold = 32
	defaultMigrateBatch     = 16
)

// WorkerQueue holds one worker's pending work, split into a private local
// pool and a stealable pool (spec §3, §4.2). Only the owning worker may
// mutate the local pool or call submit_local*; attempt_steal is the only
// method a non-owner thread may invoke.
type WorkerQueue struct {
	local     priorityQueueSet
	stealable priorityQueueSet

	localDepth     [numPriorities]atomic.Int64
	stealableDepth [numPriorities]atomic.Int64

	migrateThreshold int
	migrateBatch     int
}

func newWorkerQueue(migrateThreshold, migrateBatch int) *WorkerQueue {
	if migrateThreshold <= 0 {
		migrateThreshold = defaultMigrateThreshold
	}
	if migrateBatch <= 0 {
		migrateBatch = defaultMigrateBatch
	}
	return &WorkerQueue{migrateThreshold: migrateThreshold, migrateBatch: migrateBatch}
}

// submitLocal places handle in the local pool at priority p.
func (q *WorkerQueue) submitLocal(h JobHandle, p Priority) {
	q.local.enqueue(p, h)
	q.localDepth[p].Inc()
}

// submitLocalBulk places every handle in handles into the local pool at
// priority p, incrementing the depth counter by len(handles) — all or
// nothing with respect to the counter update (spec §4.2).
func (q *WorkerQueue) submitLocalBulk(handles []JobHandle, p Priority) {
	if len(handles) == 0 {
		return
	}
	q.local.enqueueBulk(p, handles)
	q.localDepth[p].Add(int64(len(handles)))
}

// tryPopLocalBulk drains up to len(out) items from the local pool,
// preferring High then Normal then Low, and decrements each priority's
// depth counter by the number actually drained from it.
func (q *WorkerQueue) tryPopLocalBulk(out []JobHandle) int {
	n, perPriority := q.local.popBulkByPriority(out)
	for p, got := range perPriority {
		if got > 0 {
			q.localDepth[Priority(p)].Sub(int64(got))
		}
	}
	return n
}

// migrateToStealable moves up to migrateBatch items per priority from
// local to stealable whenever a priority's local depth exceeds
// migrateThreshold, transferring the corresponding count between the two
// depth counters. Migration preserves priority: items are re-enqueued at
// the same priority they were taken from (spec §4.2).
func (q *WorkerQueue) migrateToStealable() {
	buf := make([]JobHandle, q.migrateBatch)
	for p := Priority(0); p < numPriorities; p++ {
		if q.localDepth[p].Load() <= int64(q.migrateThreshold) {
			continue
		}
		n := q.local.tryDequeueBulk(p, buf)
		if n == 0 {
			continue
		}
		q.localDepth[p].Sub(int64(n))
		q.stealable.enqueueBulk(p, buf[:n])
		q.stealableDepth[p].Add(int64(n))
	}
}

// attemptSteal drains up to len(out) items from the stealable pool, same
// priority ordering as tryPopLocalBulk. This is the only WorkerQueue
// method a non-owner goroutine may call.
func (q *WorkerQueue) attemptSteal(out []JobHandle) int {
	n, perPriority := q.stealable.popBulkByPriority(out)
	for p, got := range perPriority {
		if got > 0 {
			q.stealableDepth[Priority(p)].Sub(int64(got))
		}
	}
	return n
}

// residency returns the instantaneous number of handles resident across
// both pools, summed over all priorities — spec §8 invariant 4.
func (q *WorkerQueue) residency() int64 {
	var total int64
	for p := 0; p < numPriorities; p++ {
		total += q.localDepth[p].Load() + q.stealableDepth[p].Load()
	}
	return total
}

func (q *WorkerQueue) depths() (local, stealable [numPriorities]int64) {
	for p := 0; p < numPriorities; p++ {
		local[p] = q.localDepth[p].Load()
		stealable[p] = q.stealableDepth[p].Load()
	}
	return
}
