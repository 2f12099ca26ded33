package midiout

import (
	"math/bits"

	"go-seqout/midi"
)

// ArenaKind selects how slots are allocated.
type ArenaKind string

const (
	// ArenaFixed preallocates a power-of-two slot array with a ring free list.
	ArenaFixed ArenaKind = "fixed"
	// ArenaDynamic grows on demand, up to an optional limit.
	ArenaDynamic ArenaKind = "dynamic"
)

// Handle identifies a slot and the use it was handed out for. The slot
// index sits in the low 32 bits and the slot generation in the high 32, so
// a handle kept after its slot was freed and reused no longer resolves.
type Handle uint64

// NoHandle is returned when allocation fails. Generations start at 1, so
// the zero Handle never names a live slot.
const NoHandle Handle = 0

func makeHandle(i int32, gen uint32) Handle {
	return Handle(gen)<<32 | Handle(uint32(i))
}

func (h Handle) index() int32 { return int32(uint32(h)) }
func (h Handle) gen() uint32 { return uint32(h >> 32) }

type slot struct {
	ev   midi.Event
	seq  uint64
	gen  uint32
	live bool
	pos  int // index in the pending heap, -1 when not queued
}

// reset empties the slot and moves it to its next generation
func (s *slot) reset() {
	gen := s.gen + 1
	if gen == 0 {
		gen = 1
	}
	*s = slot{pos: -1, gen: gen}
}

// arena hands out slots by index. Callers serialize access.
type arena interface {
	alloc() (int32, bool)
	free(i int32) bool
	at(i int32) *slot
	capacity() int // 0 when unbounded
	live() int
}

func newArena(kind ArenaKind, capacity int) (arena, error) {
	switch kind {
	case ArenaDynamic:
		if capacity < 0 {
			return nil, ErrCapacity
		}
		return newDynamicArena(capacity), nil
	case ArenaFixed, "":
		if capacity <= 0 || bits.OnesCount(uint(capacity)) != 1 {
			return nil, ErrCapacity
		}
		return newFixedArena(capacity), nil
	}
	return nil, ErrCapacity
}

// fixedArena keeps free slot indices in a ring indexed with cap-1 as mask.
type fixedArena struct {
	slots []slot
	ring  []int32
	head  uint32 // next free index to hand out
	tail  uint32 // next ring position to return a slot to
	mask  uint32
	used  int
}

func newFixedArena(capacity int) *fixedArena {
	a := &fixedArena{
		slots: make([]slot, capacity),
		ring:  make([]int32, capacity),
		mask:  uint32(capacity - 1),
		tail:  uint32(capacity),
	}
	for i := range a.slots {
		a.slots[i].reset()
		a.ring[i] = int32(i)
	}
	return a
}

func (a *fixedArena) alloc() (int32, bool) {
	if a.head == a.tail {
		return -1, false
	}
	h := a.ring[a.head&a.mask]
	a.head++
	a.slots[h].live = true
	a.used++
	return h, true
}

func (a *fixedArena) free(h int32) bool {
	if h < 0 || int(h) >= len(a.slots) || !a.slots[h].live {
		return false
	}
	a.slots[h].reset()
	a.ring[a.tail&a.mask] = h
	a.tail++
	a.used--
	return true
}

func (a *fixedArena) at(h int32) *slot {
	if h < 0 || int(h) >= len(a.slots) {
		return nil
	}
	return &a.slots[h]
}

func (a *fixedArena) capacity() int { return len(a.slots) }
func (a *fixedArena) live() int { return a.used }

// dynamicArena appends slots as needed and recycles freed ones LIFO.
type dynamicArena struct {
	slots []slot
	spare []int32
	limit int
	used  int
}

func newDynamicArena(limit int) *dynamicArena {
	return &dynamicArena{limit: limit}
}

func (a *dynamicArena) alloc() (int32, bool) {
	var h int32
	if n := len(a.spare); n > 0 {
		h = a.spare[n-1]
		a.spare = a.spare[:n-1]
	} else {
		if a.limit > 0 && len(a.slots) >= a.limit {
			return -1, false
		}
		a.slots = append(a.slots, slot{pos: -1, gen: 1})
		h = int32(len(a.slots) - 1)
	}
	a.slots[h].live = true
	a.used++
	return h, true
}

func (a *dynamicArena) free(h int32) bool {
	if h < 0 || int(h) >= len(a.slots) || !a.slots[h].live {
		return false
	}
	a.slots[h].reset()
	a.spare = append(a.spare, h)
	a.used--
	return true
}

func (a *dynamicArena) at(h int32) *slot {
	if h < 0 || int(h) >= len(a.slots) {
		return nil
	}
	return &a.slots[h]
}

func (a *dynamicArena) capacity() int { return a.limit }
func (a *dynamicArena) live() int { return a.used }
