package jobsystem

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"
)

type CounterTestSuite struct {
	suite.Suite
}

func TestCounterTestSuite(t *testing.T) {
	suite.Run(t, new(CounterTestSuite))
}

func (ts *CounterTestSuite) TestNewCounterIsZero() {
	c := NewCounter()
	ts.Equal(int64(0), c.Load())
	ts.False(c.Blocking())
}

func (ts *CounterTestSuite) TestAddAndDone() {
	c := NewCounter()
	c.add(3)
	ts.Equal(int64(3), c.Load())

	c.done()
	c.done()
	ts.Equal(int64(1), c.Load())

	c.done()
	ts.Equal(int64(0), c.Load())
}

func (ts *CounterTestSuite) TestAddZeroIsNoop() {
	c := NewCounter()
	c.add(0)
	ts.Equal(int64(0), c.Load())
}

func (ts *CounterTestSuite) TestParkUntilWokenReturnsImmediatelyWhenZero() {
	c := NewCounter()
	done := make(chan struct{})
	go func() {
		c.parkUntilWoken()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		ts.Fail("parkUntilWoken blocked on an already-zero counter")
	}
}

func (ts *CounterTestSuite) TestParkUntilWokenWakesOnDone() {
	c := NewCounter()
	c.add(1)

	var wg sync.WaitGroup
	wg.Add(1)
	woke := make(chan struct{})
	go func() {
		defer wg.Done()
		c.parkUntilWoken()
		close(woke)
	}()

	// Give the waiter time to observe blocking before signalling completion.
	time.Sleep(20 * time.Millisecond)
	ts.True(c.Blocking(), "blocking flag should be set while a waiter is parked")

	c.done()
	select {
	case <-woke:
	case <-time.After(time.Second):
		ts.Fail("parkUntilWoken never woke after done()")
	}
	wg.Wait()
}

func (ts *CounterTestSuite) TestClearAndWakeDoesNotChangeCount() {
	c := NewCounter()
	c.add(2)
	c.clearAndWake()
	ts.Equal(int64(2), c.Load())
}
