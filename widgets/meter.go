package widgets

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"go-seqout/theme"
)

// RenderMeter renders queue occupancy as a bar of width cells.
// peak marks the high-water mark; pass a negative value to hide it.
func RenderMeter(th *theme.Theme, used, peak, capacity, width int) string {
	if width <= 0 {
		return ""
	}
	if capacity <= 0 {
		return lipgloss.NewStyle().Foreground(th.Muted()).Render(strings.Repeat(string(th.Symbols.MeterEmpty), width))
	}

	fill := scale(used, capacity, width)
	mark := -1
	if peak >= 0 {
		mark = scale(peak, capacity, width) - 1
	}

	var out strings.Builder
	for i := 0; i < width; i++ {
		switch {
		case i < fill:
			// color ramps from muted to warning as the queue fills
			norm := theme.RoleMuted + (theme.RoleWarning-theme.RoleMuted)*float64(i)/float64(width)
			out.WriteString(lipgloss.NewStyle().Foreground(th.Color(norm)).Render(string(th.Symbols.MeterFull)))
		case i == mark:
			out.WriteString(lipgloss.NewStyle().Foreground(th.Warning()).Render(string(th.Symbols.MeterPeak)))
		default:
			out.WriteString(lipgloss.NewStyle().Foreground(th.Muted()).Render(string(th.Symbols.MeterEmpty)))
		}
	}
	return out.String()
}

func scale(n, capacity, width int) int {
	if n <= 0 {
		return 0
	}
	if n >= capacity {
		return width
	}
	cells := n * width / capacity
	if cells == 0 {
		cells = 1
	}
	return cells
}

// Step is one cell of a step row
type Step struct {
	Active bool
	Note   uint8
}

// RenderSteps renders a step row. cursor and playhead are step indexes,
// -1 for none.
func RenderSteps(th *theme.Theme, steps []Step, cursor, playhead int) string {
	dim := lipgloss.NewStyle().Foreground(th.Muted())
	active := lipgloss.NewStyle().Foreground(th.FG())
	cursorStyle := lipgloss.NewStyle().Background(th.Color(0.1))
	head := lipgloss.NewStyle().Foreground(th.Success()).Reverse(true)

	var cells []string
	for i, step := range steps {
		char := string(th.Symbols.StepEmpty)
		style := dim
		if step.Active {
			char = NoteChar(step.Note)
			style = active
		}
		if i == cursor {
			style = style.Inherit(cursorStyle)
		}
		if i == playhead {
			style = head
		}
		cells = append(cells, style.Render(char))
	}
	return strings.Join(cells, "")
}

// NoteChar converts a MIDI note to a single character
func NoteChar(note uint8) string {
	notes := []string{"C", "c", "D", "d", "E", "F", "f", "G", "g", "A", "a", "B"}
	return notes[note%12]
}

// NoteName converts a MIDI note to a readable name (e.g., "C4", "F#3")
func NoteName(note uint8) string {
	names := []string{"C", "C#", "D", "D#", "E", "F", "F#", "G", "G#", "A", "A#", "B"}
	octave := int(note)/12 - 1
	return fmt.Sprintf("%2s%d", names[note%12], octave)
}

// RenderKeyHelp formats key bindings in a friendly way
func RenderKeyHelp(sections []KeySection) string {
	var lines []string
	for _, sec := range sections {
		if sec.Title != "" {
			lines = append(lines, sec.Title)
		}
		for _, k := range sec.Keys {
			lines = append(lines, fmt.Sprintf("  %-12s %s", k.Key, k.Desc))
		}
	}
	return strings.Join(lines, "\n")
}

// KeySection groups related key bindings
type KeySection struct {
	Title string
	Keys  []KeyBinding
}

// KeyBinding is a single key and its description
type KeyBinding struct {
	Key  string
	Desc string
}
