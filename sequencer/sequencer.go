// Package sequencer is a 16-step pattern player that feeds the output
// queue ahead of the playhead.
package sequencer

import (
	"context"
	"sync"
	"time"

	"go-seqout/clock"
	"go-seqout/debug"
	"go-seqout/midi"
	"go-seqout/midiout"
)

const NumSteps = 16

// Output is the queue the sequencer schedules into
type Output interface {
	ScheduleEvent(ev midi.Event) error
	ScheduleNote(port midi.Port, ch, key, vel uint8, tick, gate uint32) error
	Flush() int
}

type Step struct {
	Active   bool  `json:"active"`
	Note     uint8 `json:"note"`
	Velocity uint8 `json:"velocity"`

	// optional controller change sent with the note
	CC      bool  `json:"cc,omitempty"`
	CCNum   uint8 `json:"ccNum,omitempty"`
	CCValue uint8 `json:"ccValue,omitempty"`
}

type Sequencer struct {
	Steps   [NumSteps]Step
	Tempo   int // BPM
	Playing bool
	Clock   bool // send MIDI clock

	out     Output
	port    midi.Port
	channel uint8
	ppqn    uint32

	start      uint32 // tick of step 0
	nextStep   uint32 // tick of the next step to schedule
	nextClock  uint32
	stepIndex  int
	tempoDirty bool
	lookAhead  uint32
	dropped    int
	mu         sync.Mutex

	// Channel to notify the UI of playhead updates
	PlayheadChan chan int
}

// New creates a sequencer writing to out on port/channel. ppqn is rounded
// down to a multiple of 24, and never below 24, so clock pulses and steps
// are whole ticks.
func New(out Output, port midi.Port, channel uint8, ppqn uint32) *Sequencer {
	if fixed := validPPQN(ppqn); fixed != ppqn {
		debug.Warn("seq", "ppqn %d adjusted to %d", ppqn, fixed)
		ppqn = fixed
	}
	s := &Sequencer{
		Tempo:        120,
		Clock:        true,
		out:          out,
		port:         port,
		channel:      channel,
		ppqn:         ppqn,
		lookAhead:    ppqn / 2, // about 250ms at 120 BPM
		PlayheadChan: make(chan int, 1),
	}
	// Initialize all steps with default note (C4 = 60)
	for i := range s.Steps {
		s.Steps[i] = Step{Active: false, Note: 60, Velocity: 100}
	}
	return s
}

func validPPQN(ppqn uint32) uint32 {
	if ppqn < clock.PulsesPerQuarter {
		return clock.PulsesPerQuarter
	}
	return ppqn - ppqn%clock.PulsesPerQuarter
}

// StepTicks is the length of one step (a 16th note)
func (s *Sequencer) StepTicks() uint32 {
	return s.ppqn / 4
}

func (s *Sequencer) gate() uint32 {
	// Note off after 80% of step duration
	return s.StepTicks() * 80 / 100
}

// Play starts playback at tick now
func (s *Sequencer) Play(now uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.Playing {
		return
	}
	s.Playing = true
	s.start = now
	s.nextStep = now
	s.nextClock = now
	s.stepIndex = 0
	s.tempoDirty = true

	if s.Clock {
		s.schedule(midi.Start(s.port, now))
	}
}

// Stop halts playback and flushes the queue so no note is left hanging
func (s *Sequencer) Stop(now uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Playing {
		return
	}
	s.Playing = false

	n := s.out.Flush()
	debug.Log("seq", "stop at %d, flushed %d", now, n)

	if s.Clock {
		s.schedule(midi.Stop(s.port, now))
	}
}

// FillUntil schedules every step and clock pulse before horizon
func (s *Sequencer) FillUntil(horizon uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Playing {
		return
	}

	if s.Clock {
		pulse := s.ppqn / clock.PulsesPerQuarter
		for midiout.Before(s.nextClock, horizon) {
			s.schedule(midi.Clock(s.port, s.nextClock))
			s.nextClock += pulse
		}
	}

	for midiout.Before(s.nextStep, horizon) {
		if s.tempoDirty {
			s.schedule(midi.Tempo(s.port, float64(s.Tempo), s.nextStep))
			s.tempoDirty = false
		}

		step := s.Steps[s.stepIndex]
		if step.Active && step.CC {
			s.schedule(midi.CC(s.port, s.channel, step.CCNum, step.CCValue, s.nextStep))
		}
		if step.Active {
			err := s.out.ScheduleNote(s.port, s.channel, step.Note, step.Velocity, s.nextStep, s.gate())
			if err != nil {
				s.dropped++
				debug.LogEvery(8, "seq", "step %d dropped: %v", s.stepIndex, err)
			}
		}

		s.stepIndex = (s.stepIndex + 1) % NumSteps
		s.nextStep += s.StepTicks()
	}
}

func (s *Sequencer) schedule(ev midi.Event) {
	if err := s.out.ScheduleEvent(ev); err != nil {
		s.dropped++
		debug.LogEvery(8, "seq", "%s dropped: %v", ev.Kind, err)
	}
}

// Run keeps the queue filled ahead of now() until ctx is done
func (s *Sequencer) Run(ctx context.Context, now func() uint32) {
	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	last := -1
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := now()
			s.FillUntil(t + s.lookAhead)

			// Notify UI
			if p := s.Playhead(t); p != last {
				last = p
				select {
				case s.PlayheadChan <- p:
				default:
				}
			}
		}
	}
}

// Playhead returns the step sounding at tick now, -1 when stopped
func (s *Sequencer) Playhead(now uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.Playing || midiout.Before(now, s.start) {
		return -1
	}
	return int((now-s.start)/s.StepTicks()) % NumSteps
}

// Dropped is the number of events the queue refused
func (s *Sequencer) Dropped() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.dropped
}

func (s *Sequencer) ToggleStep(index int) {
	if index >= 0 && index < NumSteps {
		s.mu.Lock()
		s.Steps[index].Active = !s.Steps[index].Active
		s.mu.Unlock()
	}
}

func (s *Sequencer) SetNote(index int, note uint8) {
	if index >= 0 && index < NumSteps && note <= 127 {
		s.mu.Lock()
		s.Steps[index].Note = note
		s.mu.Unlock()
	}
}

func (s *Sequencer) AdjustNote(index int, delta int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if index >= 0 && index < NumSteps {
		newNote := int(s.Steps[index].Note) + delta
		if newNote < 0 {
			newNote = 0
		}
		if newNote > 127 {
			newNote = 127
		}
		s.Steps[index].Note = uint8(newNote)
	}
}

// SetCC attaches a controller change to a step
func (s *Sequencer) SetCC(index int, num, value uint8) {
	if index >= 0 && index < NumSteps && num <= 127 && value <= 127 {
		s.mu.Lock()
		s.Steps[index].CC = true
		s.Steps[index].CCNum = num
		s.Steps[index].CCValue = value
		s.mu.Unlock()
	}
}

func (s *Sequencer) ClearCC(index int) {
	if index >= 0 && index < NumSteps {
		s.mu.Lock()
		s.Steps[index].CC = false
		s.mu.Unlock()
	}
}

// SetTempo queues a tempo change at the next step boundary
func (s *Sequencer) SetTempo(bpm int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if bpm < 20 {
		bpm = 20
	}
	if bpm > 300 {
		bpm = 300
	}
	if bpm != s.Tempo {
		s.Tempo = bpm
		s.tempoDirty = true
	}
}

func (s *Sequencer) GetState() (steps [NumSteps]Step, playing bool, tempo int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Steps, s.Playing, s.Tempo
}
