package theme

import "github.com/charmbracelet/lipgloss"

// Theme pairs a palette with the glyphs the widgets draw
type Theme struct {
	Palette *Palette
	Symbols Symbols
}

type Symbols struct {
	StepEmpty rune // · step with no note

	MeterFull  rune // █ queued slot
	MeterEmpty rune // ░ free slot
	MeterPeak  rune // ▌ high-water mark
}

func New(palette *Palette) *Theme {
	return &Theme{
		Palette: palette,
		Symbols: Symbols{
			StepEmpty:  '·',
			MeterFull:  '█',
			MeterEmpty: '░',
			MeterPeak:  '▌',
		},
	}
}

// Palette positions (0-1) for each role. The meter gradient runs from
// RoleMuted to RoleWarning.
const (
	RoleMuted   = 0.2
	RoleFG      = 0.4
	RoleAccent  = 0.5
	RoleWarning = 0.8
	RoleSuccess = 1.0
)

// Color returns the palette colour at norm
func (t *Theme) Color(norm float64) lipgloss.Color {
	return lipgloss.Color(t.Palette.Lookup(norm).Hex())
}

func (t *Theme) FG() lipgloss.Color { return t.Color(RoleFG) }
func (t *Theme) Accent() lipgloss.Color { return t.Color(RoleAccent) }
func (t *Theme) Muted() lipgloss.Color { return t.Color(RoleMuted) }
func (t *Theme) Warning() lipgloss.Color { return t.Color(RoleWarning) }
func (t *Theme) Success() lipgloss.Color { return t.Color(RoleSuccess) }
