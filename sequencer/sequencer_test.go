package sequencer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-seqout/midi"
	"go-seqout/midiout"
)

type fakeOut struct {
	events  []midi.Event
	flushes int
	full    bool
}

func (f *fakeOut) ScheduleEvent(ev midi.Event) error {
	if f.full {
		return midiout.ErrDropped
	}
	f.events = append(f.events, ev)
	return nil
}

func (f *fakeOut) ScheduleNote(port midi.Port, ch, key, vel uint8, tick, gate uint32) error {
	if f.full {
		return midiout.ErrDropped
	}
	f.events = append(f.events, midi.NoteOn(port, ch, key, vel, tick), midi.NoteOff(port, ch, key, tick+gate))
	return nil
}

func (f *fakeOut) Flush() int {
	f.flushes++
	n := len(f.events)
	f.events = nil
	return n
}

func (f *fakeOut) ofKind(k midi.Kind) []midi.Event {
	var out []midi.Event
	for _, ev := range f.events {
		if ev.Kind == k {
			out = append(out, ev)
		}
	}
	return out
}

func TestSequencerFillSchedulesSteps(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 1, 2, 96)
	s.Clock = false
	s.ToggleStep(0)
	s.ToggleStep(2)
	s.SetNote(2, 64)

	s.Play(1000)
	s.FillUntil(1000 + 4*24) // four steps

	ons := out.ofKind(midi.KindNoteOn)
	require.Len(t, ons, 2)
	assert.EqualValues(t, 1000, ons[0].Tick)
	assert.EqualValues(t, 1048, ons[1].Tick)
	assert.Equal(t, midi.Port(1), ons[0].Port)

	offs := out.ofKind(midi.KindNoteOff)
	require.Len(t, offs, 2)
	assert.EqualValues(t, 1000+19, offs[0].Tick, "gate is 80%% of a step")

	var ch, key, vel uint8
	require.True(t, gomidi.Message(ons[1].Msg).GetNoteStart(&ch, &key, &vel))
	assert.EqualValues(t, 2, ch)
	assert.EqualValues(t, 64, key)

	tempos := out.ofKind(midi.KindTempo)
	require.Len(t, tempos, 1)
	assert.EqualValues(t, 1000, tempos[0].Tick)

	// nothing is scheduled twice
	s.FillUntil(1000 + 4*24)
	assert.Len(t, out.ofKind(midi.KindNoteOn), 2)
}

func TestSequencerClock(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 0, 0, 96)

	s.Play(0)
	s.FillUntil(96) // one quarter note

	clocks := out.ofKind(midi.KindClock)
	// start + 24 pulses
	require.Len(t, clocks, 25)
	assert.Equal(t, gomidi.Start(), gomidi.Message(clocks[0].Msg))
	assert.EqualValues(t, 4, clocks[2].Tick)
}

func TestSequencerTempoChangeAtStepBoundary(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 0, 0, 96)
	s.Clock = false

	s.Play(0)
	s.FillUntil(24)
	s.SetTempo(140)
	s.SetTempo(140)
	s.FillUntil(48)

	tempos := out.ofKind(midi.KindTempo)
	require.Len(t, tempos, 2)
	assert.EqualValues(t, 24, tempos[1].Tick)
	bpm, ok := midi.TempoOf(tempos[1].Msg)
	require.True(t, ok)
	assert.InDelta(t, 140, bpm, 0.01)

	s.SetTempo(1000)
	_, _, tempo := s.GetState()
	assert.Equal(t, 300, tempo)
}

func TestSequencerStopFlushes(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 0, 0, 96)
	s.ToggleStep(0)

	s.Play(0)
	s.FillUntil(50)
	s.Stop(30)

	assert.Equal(t, 1, out.flushes)
	require.Len(t, out.events, 1)
	assert.Equal(t, gomidi.Stop(), gomidi.Message(out.events[0].Msg))
	assert.Equal(t, -1, s.Playhead(40))

	s.Stop(31)
	assert.Equal(t, 1, out.flushes)
}

func TestSequencerCountsDrops(t *testing.T) {
	out := &fakeOut{full: true}
	s := New(out, 0, 0, 96)
	s.Clock = false
	s.ToggleStep(0)

	s.Play(0)
	s.FillUntil(1)
	// tempo + note
	assert.Equal(t, 2, s.Dropped())
}

func TestSequencerPlayhead(t *testing.T) {
	s := New(&fakeOut{}, 0, 0, 96)
	assert.Equal(t, -1, s.Playhead(0))

	start := uint32(0xFFFFFFF0)
	s.Play(start)
	assert.Equal(t, 0, s.Playhead(start))
	assert.Equal(t, 1, s.Playhead(start+24)) // across the wrap
	assert.Equal(t, 0, s.Playhead(start+16*24))
	assert.Equal(t, 5, s.Playhead(start+5*24+23))
}

func TestSequencerAdjustNoteClamps(t *testing.T) {
	s := New(&fakeOut{}, 0, 0, 96)
	s.AdjustNote(0, 200)
	s.AdjustNote(1, -200)
	steps, _, _ := s.GetState()
	assert.EqualValues(t, 127, steps[0].Note)
	assert.EqualValues(t, 0, steps[1].Note)
}

// Running the sequencer into the real scheduler leaves no note hanging
func TestSequencerWithScheduler(t *testing.T) {
	held := map[uint8]int{}
	var sent int
	tx := midiout.TransmitFunc(func(port midi.Port, msg gomidi.Message) error {
		var ch, key, vel uint8
		switch {
		case msg.GetNoteStart(&ch, &key, &vel):
			held[key]++
		case msg.GetNoteEnd(&ch, &key):
			held[key]--
		}
		sent++
		return nil
	})

	var now uint32
	sched, err := midiout.New(midiout.DefaultConfig(), midiout.ClockFunc(func() uint32 { return now }), tx)
	require.NoError(t, err)

	s := New(sched, 0, 0, 96)
	for i := 0; i < NumSteps; i += 2 {
		s.ToggleStep(i)
		s.SetNote(i, uint8(40+i))
	}

	s.Play(now)
	for ; now < 500; now++ {
		s.FillUntil(now + 48)
		sched.PeriodicDispatch()
	}
	s.Stop(now)
	sched.PeriodicDispatch()

	for key, n := range held {
		assert.Equal(t, 0, n, "note %d left hanging", key)
	}
	assert.Equal(t, 0, sched.Store().Len())
	assert.Equal(t, 0, s.Dropped())
	assert.Positive(t, sent)
}

func TestSequencerStepCC(t *testing.T) {
	out := &fakeOut{}
	s := New(out, 0, 3, 96)
	s.Clock = false
	s.ToggleStep(1)
	s.SetCC(1, 74, 100)
	s.SetCC(2, 74, 100) // inactive step sends nothing

	s.Play(0)
	s.FillUntil(96)

	ccs := out.ofKind(midi.KindCC)
	require.Len(t, ccs, 1)
	assert.EqualValues(t, 24, ccs[0].Tick)

	var ch, num, val uint8
	require.True(t, gomidi.Message(ccs[0].Msg).GetControlChange(&ch, &num, &val))
	assert.EqualValues(t, 3, ch)
	assert.EqualValues(t, 74, num)
	assert.EqualValues(t, 100, val)

	s.ClearCC(1)
	steps, _, _ := s.GetState()
	assert.False(t, steps[1].CC)
}

func TestSequencerRoundsPPQN(t *testing.T) {
	for _, tt := range []struct{ in, want uint32 }{
		{0, 24}, {3, 24}, {12, 24}, {24, 24}, {100, 96}, {384, 384},
	} {
		out := &fakeOut{}
		s := New(out, 0, 0, tt.in)
		assert.Equal(t, tt.want/4, s.StepTicks(), "ppqn %d", tt.in)

		s.ToggleStep(0)
		done := make(chan struct{})
		go func() {
			s.Play(0)
			s.FillUntil(100)
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Fatalf("FillUntil did not return with ppqn %d", tt.in)
		}
		assert.NotEmpty(t, out.ofKind(midi.KindClock))
		assert.Equal(t, 0, s.Playhead(0))
	}
}
