// Package midiout defers MIDI output to exact future ticks.
//
// Events are scheduled into a bounded pool and transmitted by a periodic
// dispatch task once the clock reaches their tick. Events that share a tick
// go out in kind order: clock, tempo, control change, note on, note off.
// When the pool is full the event is dropped and counted, never retried.
package midiout

import (
	"sync/atomic"

	gomidi "gitlab.com/gomidi/midi/v2"

	"go-seqout/debug"
	"go-seqout/midi"
)

// Clock provides the current tick
type Clock interface {
	Now() uint32
}

// ClockFunc adapts a function to Clock
type ClockFunc func() uint32

func (f ClockFunc) Now() uint32 { return f() }

// Transmitter sends one MIDI message immediately
type Transmitter interface {
	Transmit(port midi.Port, msg gomidi.Message) error
}

// TransmitFunc adapts a function to Transmitter
type TransmitFunc func(port midi.Port, msg gomidi.Message) error

func (f TransmitFunc) Transmit(port midi.Port, msg gomidi.Message) error { return f(port, msg) }

// Scheduler queues events and transmits them when due
type Scheduler struct {
	store *Store
	clock Clock
	out   Transmitter

	transmitted atomic.Uint64
	txErrors    atomic.Uint64
}

// New creates a scheduler with its own store
func New(cfg Config, clock Clock, out Transmitter) (*Scheduler, error) {
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}
	return &Scheduler{store: store, clock: clock, out: out}, nil
}

// Store exposes the underlying event store
func (s *Scheduler) Store() *Store {
	return s.store
}

// Schedule queues msg for transmission on port at tick due.
func (s *Scheduler) Schedule(port midi.Port, msg gomidi.Message, kind midi.Kind, due uint32) error {
	return s.ScheduleEvent(midi.Event{Port: port, Kind: kind, Msg: msg, Tick: due})
}

// ScheduleEvent validates and queues ev
func (s *Scheduler) ScheduleEvent(ev midi.Event) error {
	if err := midi.Validate(ev); err != nil {
		return err
	}
	if _, err := s.store.Insert(ev); err != nil {
		debug.LogEvery(16, "midiout", "dropped %s", ev)
		return err
	}
	return nil
}

// ScheduleNote queues a note on at tick and its note off gate ticks later.
// Either both are queued or neither is.
func (s *Scheduler) ScheduleNote(port midi.Port, ch, key, vel uint8, tick, gate uint32) error {
	on := midi.NoteOn(port, ch, key, vel, tick)
	off := midi.NoteOff(port, ch, key, tick+gate)
	if err := midi.Validate(on); err != nil {
		return err
	}
	if err := s.store.InsertPair(on, off); err != nil {
		debug.LogEvery(16, "midiout", "dropped note %d at %d", key, tick)
		return err
	}
	return nil
}

// PeriodicDispatch transmits everything due at the clock's current tick.
// It is meant to be called at a short fixed interval.
func (s *Scheduler) PeriodicDispatch() int {
	return s.DispatchAt(s.clock.Now())
}

// DispatchAt transmits every event due at now, earliest first, and returns
// how many were sent. Events queued while the pass runs wait for the next
// pass.
func (s *Scheduler) DispatchAt(now uint32) int {
	budget := s.store.Pending()
	sent := 0
	for ; sent < budget; sent++ {
		ev, ok := s.store.PopDue(now)
		if !ok {
			break
		}
		s.transmit(ev)
	}
	return sent
}

// Flush transmits every pending event in dispatch order regardless of its
// tick. The store is empty when it returns.
func (s *Scheduler) Flush() int {
	events := s.store.Drain()
	for _, ev := range events {
		s.transmit(ev)
	}
	if len(events) > 0 {
		debug.Log("midiout", "flushed %d events", len(events))
	}
	return len(events)
}

// Discard drops every pending event without transmitting
func (s *Scheduler) Discard() int {
	n := s.store.Clear()
	if n > 0 {
		debug.Log("midiout", "discarded %d events", n)
	}
	return n
}

func (s *Scheduler) transmit(ev midi.Event) {
	if err := s.out.Transmit(ev.Port, ev.Msg); err != nil {
		s.txErrors.Add(1)
		debug.LogEvery(16, "midiout", "transmit %s: %v", ev, err)
		return
	}
	s.transmitted.Add(1)
}

// Stats returns queue statistics; the bool is false when they are disabled
func (s *Scheduler) Stats() (Stats, bool) {
	st, ok := s.store.Stats()
	st.Transmitted = s.transmitted.Load()
	st.TransmitErrors = s.txErrors.Load()
	return st, ok
}

// ResetStats clears all counters
func (s *Scheduler) ResetStats() {
	s.store.ResetStats()
	s.transmitted.Store(0)
	s.txErrors.Store(0)
}
