package jobsystem

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type WorkerQueueTestSuite struct {
	suite.Suite
}

func TestWorkerQueueTestSuite(t *testing.T) {
	suite.Run(t, new(WorkerQueueTestSuite))
}

func (ts *WorkerQueueTestSuite) TestSubmitLocalAndPop() {
	q := newWorkerQueue(32, 16)
	q.submitLocal(handle(1), Normal)

	out := make([]JobHandle, 4)
	n := q.tryPopLocalBulk(out)
	ts.Equal(1, n)
	ts.Equal(handle(1), out[0])
	ts.Equal(int64(0), q.residency())
}

func (ts *WorkerQueueTestSuite) TestMigrateToStealableRespectsThreshold() {
	q := newWorkerQueue(2, 10)
	q.submitLocal(handle(1), Normal)
	q.submitLocal(handle(2), Normal)

	q.migrateToStealable()
	// depth (2) is not > threshold (2), so nothing should migrate yet.
	local, stealable := q.depths()
	ts.Equal(int64(2), local[Normal])
	ts.Equal(int64(0), stealable[Normal])

	q.submitLocal(handle(3), Normal)
	q.migrateToStealable()
	local, stealable = q.depths()
	ts.Equal(int64(0), local[Normal])
	ts.Equal(int64(3), stealable[Normal])
}

func (ts *WorkerQueueTestSuite) TestMigratePreservesPriority() {
	q := newWorkerQueue(0, 10)
	q.submitLocal(handle(1), High)
	q.migrateToStealable()

	_, stealable := q.depths()
	ts.Equal(int64(1), stealable[High])
	ts.Equal(int64(0), stealable[Normal])
}

func (ts *WorkerQueueTestSuite) TestAttemptStealDrainsStealablePool() {
	q := newWorkerQueue(0, 10)
	q.submitLocal(handle(1), Normal)
	q.migrateToStealable()

	out := make([]JobHandle, 4)
	n := q.attemptSteal(out)
	ts.Equal(1, n)
	ts.Equal(handle(1), out[0])

	_, stealable := q.depths()
	ts.Equal(int64(0), stealable[Normal])
}

func (ts *WorkerQueueTestSuite) TestResidencySumsBothPools() {
	q := newWorkerQueue(100, 10)
	q.submitLocalBulk([]JobHandle{handle(1), handle(2)}, Low)
	q.submitLocal(handle(3), High)

	ts.Equal(int64(3), q.residency())
}

func (ts *WorkerQueueTestSuite) TestDefaultTunablesAppliedWhenNonPositive() {
	q := newWorkerQueue(0, 0)
	ts.Equal(defaultMigrateThreshold, q.migrateThreshold)
	ts.Equal(defaultMigrateBatch, q.migrateBatch)
}
