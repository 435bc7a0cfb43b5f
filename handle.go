package jobsystem

import "sync"

// JobHandle is an opaque, trivially-copyable reference to a suspended job
// frame (spec §3). Copying a handle never copies the underlying Promise;
// exactly one Promise exists per live job. Rather than pass a raw pointer
// through the MPMC queues, a handle is a generation-counted index into the
// scheduler's slab of Promises (spec §9 "Opaque handles and ownership") —
// this makes resuming a handle whose frame has already been destroyed a
// detectable no-op instead of a use-after-free.
type JobHandle struct {
	index uint32
	gen   uint32
}

// Valid reports whether h was ever issued by a slab (the zero JobHandle is
// never valid).
func (h JobHandle) Valid() bool {
	return h.gen != 0
}

// slab owns the Promises referenced by JobHandles. Only the slot's
// generation changes on free/reuse; the index is stable for the slot's
// lifetime.
type slab struct {
	mu       sync.Mutex
	slots    []*Promise
	gens     []uint32
	freelist []uint32
}

func newSlab() *slab {
	return &slab{}
}

// alloc reserves a slot for p and returns its handle.
func (s *slab) alloc(p *Promise) JobHandle {
	s.mu.Lock()
	defer s.mu.Unlock()

	if n := len(s.freelist); n > 0 {
		idx := s.freelist[n-1]
		s.freelist = s.freelist[:n-1]
		s.slots[idx] = p
		return JobHandle{index: idx, gen: s.gens[idx]}
	}

	idx := uint32(len(s.slots))
	s.slots = append(s.slots, p)
	s.gens = append(s.gens, 1)
	return JobHandle{index: idx, gen: 1}
}

// resolve returns the Promise for h, or nil if h is stale (already freed).
func (s *slab) resolve(h JobHandle) *Promise {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(h.index) >= len(s.slots) || s.gens[h.index] != h.gen {
		return nil
	}
	return s.slots[h.index]
}

// free releases the slot backing h so the index may be reused with a bumped
// generation; called once, from the job's final step.
func (s *slab) free(h JobHandle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if int(h.index) >= len(s.slots) || s.gens[h.index] != h.gen {
		return
	}
	s.slots[h.index] = nil
	s.gens[h.index]++
	if s.gens[h.index] == 0 {
		s.gens[h.index] = 1
	}
	s.freelist = append(s.freelist, h.index)
}
