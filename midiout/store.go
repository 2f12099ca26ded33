package midiout

import (
	"bytes"
	"fmt"
	"iter"
	"slices"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"

	"go-seqout/midi"
)

// Stats describes queue occupancy and losses.
type Stats struct {
	QueueSize      int    `json:"queueSize"`
	MaxAllocated   int    `json:"maxAllocated"`
	Dropouts       uint64 `json:"dropouts"`
	Transmitted    uint64 `json:"transmitted"`
	TransmitErrors uint64 `json:"transmitErrors"`
}

// Store is a bounded pool of pending events ordered by due tick.
//
// The application schedules into it while the dispatch task drains it, so
// every method takes the store lock for the few writes it needs and never
// calls out while holding it.
type Store struct {
	mu    sync.Mutex
	arena arena
	q     *queue
	seq   uint64

	trackStats   bool
	maxAllocated int
	dropouts     uint64
}

// NewStore builds a store with the arena and capacity from cfg
func NewStore(cfg Config) (*Store, error) {
	a, err := newArena(cfg.Arena, cfg.Capacity)
	if err != nil {
		return nil, fault.Wrap(err,
			fmsg.With(fmt.Sprintf("arena %q capacity %d", cfg.Arena, cfg.Capacity)),
			ftag.With(ftag.InvalidArgument),
		)
	}
	return &Store{
		arena:      a,
		q:          newQueue(a),
		trackStats: cfg.Stats,
	}, nil
}

// Allocate reserves a slot. It fails with ErrDropped when the pool is full.
func (s *Store) Allocate() (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.alloc()
	if !ok {
		s.dropouts++
		return NoHandle, dropped(s.arena.capacity())
	}
	return s.handle(i), nil
}

func (s *Store) alloc() (int32, bool) {
	i, ok := s.arena.alloc()
	if ok && s.trackStats {
		if n := s.arena.live(); n > s.maxAllocated {
			s.maxAllocated = n
		}
	}
	return i, ok
}

func (s *Store) handle(i int32) Handle {
	return makeHandle(i, s.arena.at(i).gen)
}

// lookup resolves h to its live slot. A handle whose slot has since been
// freed, or freed and handed out again, resolves to nothing.
func (s *Store) lookup(h Handle) (int32, *slot) {
	i := h.index()
	sl := s.arena.at(i)
	if sl == nil || !sl.live || sl.gen != h.gen() {
		return -1, nil
	}
	return i, sl
}

// Commit fills an allocated slot and queues it. The payload is copied, the
// caller may reuse its buffer.
func (s *Store) Commit(h Handle, ev midi.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, sl := s.lookup(h)
	if sl == nil || sl.pos >= 0 {
		return ErrBadHandle
	}
	s.fill(i, ev)
	return nil
}

func (s *Store) fill(i int32, ev midi.Event) {
	sl := s.arena.at(i)
	ev.Msg = bytes.Clone(ev.Msg)
	sl.ev = ev
	sl.seq = s.seq
	s.seq++
	s.q.push(i)
}

// Release returns a slot to the pool, unqueueing it first if needed.
// Releasing a stale handle does nothing.
func (s *Store) Release(h Handle) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, sl := s.lookup(h)
	if sl == nil {
		return
	}
	if sl.pos >= 0 {
		s.q.remove(sl.pos)
	}
	s.arena.free(i)
}

// Insert allocates and queues ev in one step
func (s *Store) Insert(ev midi.Event) (Handle, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	i, ok := s.alloc()
	if !ok {
		s.dropouts++
		return NoHandle, dropped(s.arena.capacity())
	}
	s.fill(i, ev)
	return s.handle(i), nil
}

// InsertPair queues both events or neither. A rejected pair counts as one
// dropout.
func (s *Store) InsertPair(a, b midi.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ha, ok := s.alloc()
	if !ok {
		s.dropouts++
		return dropped(s.arena.capacity())
	}
	hb, ok := s.alloc()
	if !ok {
		s.arena.free(ha)
		s.dropouts++
		return dropped(s.arena.capacity())
	}
	s.fill(ha, a)
	s.fill(hb, b)
	return nil
}

// Event returns a copy of the event held by h
func (s *Store) Event(h Handle) (midi.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, sl := s.lookup(h)
	if sl == nil {
		return midi.Event{}, false
	}
	ev := sl.ev
	ev.Msg = bytes.Clone(ev.Msg)
	return ev, true
}

// Due yields the events that are due at now, earliest first, without
// removing them. The set is taken when iteration starts; ranging again
// takes a fresh one.
func (s *Store) Due(now uint32) iter.Seq2[Handle, midi.Event] {
	return func(yield func(Handle, midi.Event) bool) {
		for _, p := range s.dueSnapshot(now) {
			if !yield(p.h, p.ev) {
				return
			}
		}
	}
}

type pending struct {
	h  Handle
	ev midi.Event
	sl slot
}

func (s *Store) dueSnapshot(now uint32) []pending {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []pending
	// heap order: a child is never earlier than its parent, so a subtree
	// whose root is not due holds nothing due
	var walk func(i int)
	walk = func(i int) {
		if i >= s.q.len() {
			return
		}
		idx := s.q.items[i]
		sl := s.arena.at(idx)
		if !Due(sl.ev.Tick, now) {
			return
		}
		ev := sl.ev
		ev.Msg = bytes.Clone(ev.Msg)
		out = append(out, pending{h: makeHandle(idx, sl.gen), ev: ev, sl: *sl})
		walk(2*i + 1)
		walk(2*i + 2)
	}
	walk(0)

	slices.SortFunc(out, func(a, b pending) int {
		switch {
		case precedes(&a.sl, &b.sl):
			return -1
		case precedes(&b.sl, &a.sl):
			return 1
		}
		return 0
	})
	return out
}

// PopDue removes and returns the earliest event if it is due at now.
func (s *Store) PopDue(now uint32) (midi.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	h, ok := s.q.peek()
	if !ok || !Due(s.arena.at(h).ev.Tick, now) {
		return midi.Event{}, false
	}
	return s.take(), true
}

// PopAny removes and returns the earliest event regardless of its tick.
func (s *Store) PopAny() (midi.Event, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.q.len() == 0 {
		return midi.Event{}, false
	}
	return s.take(), true
}

// Drain removes every pending event and returns them in dispatch order.
// Slots allocated but not yet committed are freed too, so the store is
// empty when it returns.
func (s *Store) Drain() []midi.Event {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]midi.Event, 0, s.q.len())
	for s.q.len() > 0 {
		out = append(out, s.take())
	}
	s.freeUncommitted()
	return out
}

// take pops the heap root and frees its slot; the payload moves to the caller
func (s *Store) take() midi.Event {
	h := s.q.pop()
	ev := s.arena.at(h).ev
	s.arena.free(h)
	return ev
}

// Clear frees every slot without returning the events. Slots allocated
// but not yet committed are freed too.
func (s *Store) Clear() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	n := s.arena.live()
	for _, h := range slices.Clone(s.q.items) {
		s.arena.free(h)
	}
	s.q.clear()
	if s.arena.live() > 0 {
		s.freeUncommitted()
	}
	return n
}

func (s *Store) freeUncommitted() {
	for h := int32(0); s.arena.live() > 0; h++ {
		sl := s.arena.at(h)
		if sl == nil {
			return
		}
		if sl.live {
			s.arena.free(h)
		}
	}
}

// Len is the number of live slots (queued or allocated)
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arena.live()
}

// Pending is the number of queued events
func (s *Store) Pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.len()
}

// Cap is the pool capacity, 0 for an unbounded dynamic arena
func (s *Store) Cap() int {
	return s.arena.capacity()
}

// Next returns the tick of the earliest pending event
func (s *Store) Next() (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	h, ok := s.q.peek()
	if !ok {
		return 0, false
	}
	return s.arena.at(h).ev.Tick, true
}

// Stats returns occupancy counters. MaxAllocated and Dropouts are only
// tracked when statistics are enabled; the bool reports that.
func (s *Store) Stats() (Stats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Stats{QueueSize: s.arena.live()}
	if !s.trackStats {
		return st, false
	}
	st.MaxAllocated = s.maxAllocated
	st.Dropouts = s.dropouts
	return st, true
}

// ResetStats clears the max and dropout counters
func (s *Store) ResetStats() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxAllocated = s.arena.live()
	s.dropouts = 0
}

func dropped(capacity int) error {
	return fault.Wrap(ErrDropped,
		fmsg.With(fmt.Sprintf("pool of %d full", capacity)),
		ftag.With(TagDropped),
	)
}
