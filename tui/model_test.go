package tui

import (
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-seqout/clock"
	"go-seqout/midi"
	"go-seqout/midiout"
	"go-seqout/sequencer"
	"go-seqout/theme"
)

func newTestModel(t *testing.T) (Model, *midiout.Scheduler, *int) {
	t.Helper()
	clk := clock.New(120, 96)
	sent := new(int)
	tx := midiout.TransmitFunc(func(midi.Port, gomidi.Message) error {
		*sent++
		return nil
	})
	sched, err := midiout.New(midiout.Config{Capacity: 8, Arena: midiout.ArenaFixed, Stats: true}, clk, tx)
	require.NoError(t, err)
	seq := sequencer.New(sched, 0, 0, clk.PPQN())
	return NewModel(seq, sched, clk, midi.NewOutput(), theme.New(theme.Plasma())), sched, sent
}

func press(m Model, key string) Model {
	var msg tea.KeyMsg
	switch key {
	case " ":
		msg = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune(" ")}
	default:
		msg = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(key)}
	}
	next, _ := m.Update(msg)
	return next.(Model)
}

func TestModelToggleAndCursor(t *testing.T) {
	m, _, _ := newTestModel(t)

	m = press(m, "l")
	m = press(m, "l")
	m = press(m, " ")
	steps, _, _ := m.Seq.GetState()
	assert.True(t, steps[2].Active)
	assert.Equal(t, 2, m.cursor)

	m = press(m, "5")
	steps, _, _ = m.Seq.GetState()
	assert.True(t, steps[4].Active)
	assert.Equal(t, 4, m.cursor)

	m = press(m, "h")
	assert.Equal(t, 3, m.cursor)
}

func TestModelTempoKeys(t *testing.T) {
	m, _, _ := newTestModel(t)
	m = press(m, "+")
	m = press(m, "+")
	m = press(m, "-")
	_, _, tempo := m.Seq.GetState()
	assert.Equal(t, 125, tempo)
}

func TestModelFlushAndReset(t *testing.T) {
	m, sched, sent := newTestModel(t)

	require.NoError(t, sched.ScheduleEvent(midi.CC(0, 0, 7, 100, m.Clock.Now()+100000)))
	require.NoError(t, sched.ScheduleEvent(midi.CC(0, 0, 7, 90, m.Clock.Now()+100001)))

	m = press(m, "f")
	assert.Equal(t, 2, *sent)
	assert.Equal(t, 0, sched.Store().Len())
	assert.Contains(t, m.View(), "flushed 2")

	m = press(m, "r")
	st, ok := sched.Stats()
	require.True(t, ok)
	assert.Zero(t, st.Transmitted)
	assert.Contains(t, m.View(), "stats reset")
}

func TestModelPlayStop(t *testing.T) {
	m, sched, _ := newTestModel(t)
	m = press(m, "1")

	m = press(m, "p")
	_, playing, _ := m.Seq.GetState()
	require.True(t, playing)
	assert.Contains(t, m.View(), "PLAY")

	// stop flushes whatever was queued
	m.Seq.FillUntil(m.Clock.Now() + 24)
	m = press(m, "p")
	_, playing, _ = m.Seq.GetState()
	assert.False(t, playing)
	assert.Equal(t, 1, sched.Store().Len(), "only the stop message is left")
	assert.Contains(t, m.View(), "STOP")
}

func TestModelPortEvents(t *testing.T) {
	m, _, _ := newTestModel(t)
	for i := 0; i < 6; i++ {
		next, _ := m.Update(portEventMsg{Type: midi.PortOnline, Name: "Synth"})
		m = next.(Model)
	}
	next, _ := m.Update(portEventMsg{Type: midi.PortOffline, Name: "Synth"})
	m = next.(Model)

	assert.Len(t, m.ports, maxPortLog)
	assert.Equal(t, "Synth offline", m.ports[len(m.ports)-1])
	assert.Contains(t, m.View(), "Synth offline")
}

func TestModelQuit(t *testing.T) {
	m, _, _ := newTestModel(t)
	next, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlC})
	require.NotNil(t, cmd)
	assert.Empty(t, next.(Model).View())
}

func TestModelSaveLoad(t *testing.T) {
	m, _, _ := newTestModel(t)
	assert.Equal(t, "no pattern dir", m.save())

	m.PatternDir = t.TempDir()
	m = press(m, "o")
	assert.Equal(t, "load failed", m.status)

	m = press(m, "3")
	m = press(m, "s")
	assert.Contains(t, m.status, "saved ")

	m = press(m, "3")
	steps, _, _ := m.Seq.GetState()
	require.False(t, steps[2].Active)

	m = press(m, "o")
	assert.Equal(t, "loaded latest", m.status)
	steps, _, _ = m.Seq.GetState()
	assert.True(t, steps[2].Active)
}
