package jobsystem

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type QueueTestSuite struct {
	suite.Suite
}

func TestQueueTestSuite(t *testing.T) {
	suite.Run(t, new(QueueTestSuite))
}

func handle(idx uint32) JobHandle {
	return JobHandle{index: idx, gen: 1}
}

func (ts *QueueTestSuite) TestRingQueueFIFO() {
	var q ringQueue
	q.push(handle(1))
	q.push(handle(2))
	q.push(handle(3))

	h, ok := q.tryPop()
	ts.True(ok)
	ts.Equal(handle(1), h)

	ts.Equal(2, q.size())
}

func (ts *QueueTestSuite) TestRingQueueTryPopEmpty() {
	var q ringQueue
	_, ok := q.tryPop()
	ts.False(ok)
}

func (ts *QueueTestSuite) TestRingQueuePushBulkAndPopBulk() {
	var q ringQueue
	q.pushBulk([]JobHandle{handle(1), handle(2), handle(3), handle(4)})

	out := make([]JobHandle, 2)
	n := q.tryPopBulk(out)
	ts.Equal(2, n)
	ts.Equal([]JobHandle{handle(1), handle(2)}, out)
	ts.Equal(2, q.size())
}

func (ts *QueueTestSuite) TestRingQueuePopBulkMoreThanAvailable() {
	var q ringQueue
	q.push(handle(1))

	out := make([]JobHandle, 5)
	n := q.tryPopBulk(out)
	ts.Equal(1, n)
	ts.Equal(0, q.size())
}

func (ts *QueueTestSuite) TestPrioritySetIsolatesPriorities() {
	var s priorityQueueSet
	s.enqueue(Low, handle(1))
	s.enqueue(High, handle(2))

	_, ok := s.tryDequeue(Normal)
	ts.False(ok)

	h, ok := s.tryDequeue(High)
	ts.True(ok)
	ts.Equal(handle(2), h)
}

func (ts *QueueTestSuite) TestPopBulkByPriorityPrefersHighThenNormalThenLow() {
	var s priorityQueueSet
	s.enqueue(Low, handle(1))
	s.enqueue(Normal, handle(2))
	s.enqueue(High, handle(3))

	out := make([]JobHandle, 3)
	n, perPriority := s.popBulkByPriority(out)

	ts.Equal(3, n)
	ts.Equal(handle(3), out[0]) // High first
	ts.Equal(handle(2), out[1]) // then Normal
	ts.Equal(handle(1), out[2]) // then Low
	ts.Equal(1, perPriority[High])
	ts.Equal(1, perPriority[Normal])
	ts.Equal(1, perPriority[Low])
}

func (ts *QueueTestSuite) TestPopBulkByPrioritySpillsIntoNextTier() {
	var s priorityQueueSet
	s.enqueueBulk(Normal, []JobHandle{handle(1), handle(2)})
	s.enqueueBulk(Low, []JobHandle{handle(3), handle(4)})

	out := make([]JobHandle, 3)
	n, perPriority := s.popBulkByPriority(out)

	ts.Equal(3, n)
	ts.Equal(2, perPriority[Normal])
	ts.Equal(1, perPriority[Low])
}
