package jobsystem

import (
	"testing"

	"github.com/stretchr/testify/suite"
)

type HandleTestSuite struct {
	suite.Suite
}

func TestHandleTestSuite(t *testing.T) {
	suite.Run(t, new(HandleTestSuite))
}

func (ts *HandleTestSuite) TestZeroHandleIsInvalid() {
	var h JobHandle
	ts.False(h.Valid())
}

func (ts *HandleTestSuite) TestAllocResolve() {
	s := newSlab()
	p := &Promise{}
	h := s.alloc(p)

	ts.True(h.Valid())
	ts.Same(p, s.resolve(h))
}

func (ts *HandleTestSuite) TestResolveAfterFreeIsNil() {
	s := newSlab()
	p := &Promise{}
	h := s.alloc(p)
	s.free(h)

	ts.Nil(s.resolve(h))
}

func (ts *HandleTestSuite) TestFreedSlotReusedWithBumpedGeneration() {
	s := newSlab()
	p1 := &Promise{}
	h1 := s.alloc(p1)
	s.free(h1)

	p2 := &Promise{}
	h2 := s.alloc(p2)

	ts.Equal(h1.index, h2.index)
	ts.NotEqual(h1.gen, h2.gen)
	ts.Nil(s.resolve(h1))
	ts.Same(p2, s.resolve(h2))
}

func (ts *HandleTestSuite) TestResolveOutOfRangeIsNil() {
	s := newSlab()
	ts.Nil(s.resolve(JobHandle{index: 99, gen: 1}))
}

func (ts *HandleTestSuite) TestDoubleFreeIsNoop() {
	s := newSlab()
	p := &Promise{}
	h := s.alloc(p)
	s.free(h)
	ts.NotPanics(func() { s.free(h) })
}
