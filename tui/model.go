package tui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"go-seqout/clock"
	"go-seqout/debug"
	"go-seqout/midi"
	"go-seqout/midiout"
	"go-seqout/sequencer"
	"go-seqout/theme"
	"go-seqout/widgets"
)

const (
	refreshRate = 100 * time.Millisecond
	meterWidth  = 32
	maxPortLog  = 4
)

type Model struct {
	Seq    *sequencer.Sequencer
	Sched  *midiout.Scheduler
	Clock  *clock.Clock
	Output *midi.Output
	Theme  *theme.Theme

	// pattern saves, disabled when empty
	PatternDir string

	cursor   int
	playhead int
	ports    []string // recent port events, newest last
	status   string
	quitting bool
}

type playheadMsg int

type refreshMsg time.Time

type portEventMsg midi.PortEvent

func NewModel(seq *sequencer.Sequencer, sched *midiout.Scheduler, clk *clock.Clock, out *midi.Output, th *theme.Theme) Model {
	return Model{
		Seq:      seq,
		Sched:    sched,
		Clock:    clk,
		Output:   out,
		Theme:    th,
		playhead: -1,
	}
}

func ListenForPlayhead(seq *sequencer.Sequencer) tea.Cmd {
	return func() tea.Msg {
		return playheadMsg(<-seq.PlayheadChan)
	}
}

func ListenForPorts(out *midi.Output) tea.Cmd {
	return func() tea.Msg {
		ev, ok := <-out.Events()
		if !ok {
			return nil
		}
		return portEventMsg(ev)
	}
}

func refresh() tea.Cmd {
	return tea.Tick(refreshRate, func(t time.Time) tea.Msg {
		return refreshMsg(t)
	})
}

func (m Model) Init() tea.Cmd {
	return tea.Batch(
		ListenForPlayhead(m.Seq),
		ListenForPorts(m.Output),
		refresh(),
	)
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c":
			m.quitting = true
			m.Seq.Stop(m.Clock.Now())
			return m, tea.Quit

		case "h", "left":
			if m.cursor > 0 {
				m.cursor--
			}

		case "l", "right":
			if m.cursor < sequencer.NumSteps-1 {
				m.cursor++
			}

		case "j", "down":
			m.Seq.AdjustNote(m.cursor, -1)

		case "k", "up":
			m.Seq.AdjustNote(m.cursor, 1)

		case "J":
			m.Seq.AdjustNote(m.cursor, -12)

		case "K":
			m.Seq.AdjustNote(m.cursor, 12)

		case " ":
			m.Seq.ToggleStep(m.cursor)

		case "1", "2", "3", "4", "5", "6", "7", "8":
			idx := int(msg.String()[0] - '1')
			m.cursor = idx
			m.Seq.ToggleStep(idx)

		case "p":
			_, playing, _ := m.Seq.GetState()
			if playing {
				m.Seq.Stop(m.Clock.Now())
				m.playhead = -1
			} else {
				m.Seq.Play(m.Clock.Now())
			}

		case "+", "=":
			_, _, tempo := m.Seq.GetState()
			m.Seq.SetTempo(tempo + 5)

		case "-", "_":
			_, _, tempo := m.Seq.GetState()
			m.Seq.SetTempo(tempo - 5)

		case "f":
			n := m.Sched.Flush()
			m.status = fmt.Sprintf("flushed %d", n)

		case "x":
			n := m.Sched.Discard()
			m.status = fmt.Sprintf("discarded %d", n)

		case "r":
			m.Sched.ResetStats()
			m.status = "stats reset"

		case "s":
			m.status = m.save()

		case "o":
			m.status = m.load()
		}

	case playheadMsg:
		m.playhead = int(msg)
		return m, ListenForPlayhead(m.Seq)

	case portEventMsg:
		ev := midi.PortEvent(msg)
		state := "online"
		if ev.Type == midi.PortOffline {
			state = "offline"
		}
		m.ports = append(m.ports, fmt.Sprintf("%s %s", ev.Name, state))
		if len(m.ports) > maxPortLog {
			m.ports = m.ports[len(m.ports)-maxPortLog:]
		}
		return m, ListenForPorts(m.Output)

	case refreshMsg:
		return m, refresh()
	}

	return m, nil
}

func (m Model) View() string {
	if m.quitting {
		return ""
	}

	steps, playing, tempo := m.Seq.GetState()

	headerStyle := lipgloss.NewStyle().Foreground(m.Theme.Accent())
	dimStyle := lipgloss.NewStyle().Foreground(m.Theme.Muted())
	statusStyle := lipgloss.NewStyle().Foreground(m.Theme.FG())
	warnStyle := lipgloss.NewStyle().Foreground(m.Theme.Warning())

	playState := "STOP"
	if playing {
		playState = "PLAY"
	}
	header := headerStyle.Render(fmt.Sprintf("go-seqout  %s  %3dbpm  %5.1f clock  tick:%010d",
		playState, tempo, m.Clock.BPM(), m.Clock.Now()))

	cells := make([]widgets.Step, len(steps))
	for i, st := range steps {
		cells[i] = widgets.Step{Active: st.Active, Note: st.Note}
	}
	playhead := -1
	if playing {
		playhead = m.playhead
	}
	grid := widgets.RenderSteps(m.Theme, cells, m.cursor, playhead)
	note := statusStyle.Render(fmt.Sprintf("step %02d %s", m.cursor+1, widgets.NoteName(steps[m.cursor].Note)))

	queue := m.queueView(statusStyle, warnStyle)

	var out strings.Builder
	out.WriteString("\n")
	out.WriteString(header)
	out.WriteString("\n\n")
	out.WriteString(grid)
	out.WriteString("  ")
	out.WriteString(note)
	out.WriteString("\n\n")
	out.WriteString(queue)
	out.WriteString("\n")

	if len(m.ports) > 0 {
		out.WriteString("\n")
		out.WriteString(dimStyle.Render("ports: " + strings.Join(m.ports, ", ")))
		out.WriteString("\n")
	}
	if m.status != "" {
		out.WriteString("\n")
		out.WriteString(statusStyle.Render(m.status))
		out.WriteString("\n")
	}

	help := dimStyle.Render("h/l:move  j/k:note  J/K:octave  space/1-8:toggle  p:play  +/-:tempo  f:flush  x:discard  r:reset  s/o:save/load  q:quit")
	out.WriteString("\n")
	out.WriteString(help)

	return out.String()
}

func (m Model) queueView(statusStyle, warnStyle lipgloss.Style) string {
	capacity := m.Sched.Store().Cap()
	stats, ok := m.Sched.Stats()

	// an unbounded arena is drawn against its own peak
	scaleCap, limit := capacity, fmt.Sprint(capacity)
	if capacity == 0 {
		scaleCap, limit = max(stats.MaxAllocated, stats.QueueSize, 1), "-"
	}

	if !ok {
		meter := widgets.RenderMeter(m.Theme, stats.QueueSize, -1, scaleCap, meterWidth)
		return fmt.Sprintf("%s %s", meter, statusStyle.Render(fmt.Sprintf("%d/%s queued  (stats off)", stats.QueueSize, limit)))
	}

	meter := widgets.RenderMeter(m.Theme, stats.QueueSize, stats.MaxAllocated, scaleCap, meterWidth)
	line := statusStyle.Render(fmt.Sprintf("%d/%s queued  peak %d  sent %d",
		stats.QueueSize, limit, stats.MaxAllocated, stats.Transmitted))

	var alerts []string
	if stats.Dropouts > 0 {
		alerts = append(alerts, fmt.Sprintf("dropouts %d", stats.Dropouts))
	}
	if stats.TransmitErrors > 0 {
		alerts = append(alerts, fmt.Sprintf("tx errors %d", stats.TransmitErrors))
	}
	if len(alerts) > 0 {
		line += "  " + warnStyle.Render(strings.Join(alerts, "  "))
	}
	return fmt.Sprintf("%s %s", meter, line)
}

func (m Model) save() string {
	if m.PatternDir == "" {
		return "no pattern dir"
	}
	name, err := sequencer.SavePattern(m.PatternDir, "", m.Seq.Pattern())
	if err != nil {
		debug.Warn("tui", "save pattern: %v", err)
		return "save failed"
	}
	return "saved " + name
}

func (m Model) load() string {
	if m.PatternDir == "" {
		return "no pattern dir"
	}
	p, err := sequencer.LoadSave(m.PatternDir, "")
	if err != nil {
		debug.Warn("tui", "load pattern: %v", err)
		return "load failed"
	}
	m.Seq.LoadPattern(p)
	return "loaded latest"
}
