// Package clock is the sequencer timebase: a wrapping tick counter driven by
// wall-clock time at the current tempo.
package clock

import (
	"context"
	"math"
	"sync"
	"sync/atomic"
	"time"
)

const (
	DefaultPPQN     = 384
	DefaultBPM      = 120.0
	DefaultInterval = time.Millisecond

	MinBPM = 20.0
	MaxBPM = 300.0

	// MIDI clock runs at 24 pulses per quarter note. PPQN must be a
	// multiple of it so every pulse lands on a whole tick.
	PulsesPerQuarter = 24
)

// Clock converts elapsed time into ticks. Now is safe from any goroutine.
type Clock struct {
	tick atomic.Uint32
	ppqn uint32

	mu   sync.Mutex
	bpm  float64
	t0   time.Time // anchor time
	base uint32    // tick at t0

	now func() time.Time
}

// New creates a clock at bpm with ppqn ticks per quarter note
func New(bpm float64, ppqn uint32) *Clock {
	if ppqn == 0 {
		ppqn = DefaultPPQN
	}
	c := &Clock{
		ppqn: ppqn,
		bpm:  clampBPM(bpm),
		now:  time.Now,
	}
	c.t0 = c.now()
	return c
}

func clampBPM(bpm float64) float64 {
	if bpm < MinBPM {
		return MinBPM
	}
	if bpm > MaxBPM {
		return MaxBPM
	}
	return bpm
}

// Now returns the current tick
func (c *Clock) Now() uint32 {
	return c.tick.Load()
}

// PPQN returns ticks per quarter note
func (c *Clock) PPQN() uint32 {
	return c.ppqn
}

// BPM returns the current tempo
func (c *Clock) BPM() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.bpm
}

// SetBPM changes tempo without a jump in the tick count
func (c *Clock) SetBPM(bpm float64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	t := c.now()
	c.base = c.at(t)
	c.t0 = t
	c.bpm = clampBPM(bpm)
}

// TickDuration is the length of one tick at the current tempo
func (c *Clock) TickDuration() time.Duration {
	c.mu.Lock()
	defer c.mu.Unlock()
	return tickDuration(c.bpm, c.ppqn)
}

func tickDuration(bpm float64, ppqn uint32) time.Duration {
	return time.Duration(float64(time.Minute) / (bpm * float64(ppqn)))
}

// Reset restarts counting from tick
func (c *Clock) Reset(tick uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.t0 = c.now()
	c.base = tick
	c.tick.Store(tick)
}

// Advance recomputes the tick from wall-clock time and returns it
func (c *Clock) Advance() uint32 {
	c.mu.Lock()
	t := c.at(c.now())
	c.mu.Unlock()

	c.tick.Store(t)
	return t
}

// at must be called with mu held
func (c *Clock) at(t time.Time) uint32 {
	elapsed := t.Sub(c.t0)
	if elapsed < 0 {
		elapsed = 0
	}
	ticks := uint64(math.Floor(float64(elapsed) * c.bpm * float64(c.ppqn) / float64(time.Minute)))
	return c.base + uint32(ticks)
}

// Run advances the clock every interval and calls onTick after each step.
// It blocks until ctx is done.
func (c *Clock) Run(ctx context.Context, interval time.Duration, onTick func(tick uint32)) {
	if interval <= 0 {
		interval = DefaultInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t := c.Advance()
			if onTick != nil {
				onTick(t)
			}
		}
	}
}

// Manual is a clock moved by hand, for tests and offline rendering
type Manual struct {
	tick atomic.Uint32
}

func (m *Manual) Now() uint32 { return m.tick.Load() }
func (m *Manual) Set(tick uint32) { m.tick.Store(tick) }
func (m *Manual) Advance(n uint32) uint32 { return m.tick.Add(n) }
