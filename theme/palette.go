package theme

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
)

type RGB [3]uint8

// Hex formats c as #rrggbb
func (c RGB) Hex() string {
	return fmt.Sprintf("#%02x%02x%02x", c[0], c[1], c[2])
}

// Palette is an ordered colour ramp sampled by Lookup
type Palette struct {
	Name   string
	Colors []RGB
}

// LoadGPL reads a GIMP palette. Header, comment and malformed lines are
// skipped; a file with no colours is an error.
func LoadGPL(path string) (*Palette, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("open palette"))
	}
	defer f.Close()

	p := &Palette{}
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if name, ok := strings.CutPrefix(line, "Name:"); ok {
			p.Name = strings.TrimSpace(name)
			continue
		}
		if c, ok := parseColor(line); ok {
			p.Colors = append(p.Colors, c)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fault.Wrap(err, fmsg.With("read palette"))
	}

	if len(p.Colors) == 0 {
		return nil, fault.New("palette has no colours",
			fmsg.With(path), ftag.With(ftag.InvalidArgument))
	}
	return p, nil
}

// parseColor reads the leading "R G B" of a palette entry
func parseColor(line string) (RGB, bool) {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		return RGB{}, false
	}
	var c RGB
	for i := range c {
		v, err := strconv.ParseUint(fields[i], 10, 8)
		if err != nil {
			return RGB{}, false
		}
		c[i] = uint8(v)
	}
	return c, true
}

// LoadOrDefault loads a GPL palette, falling back to Plasma when path is
// empty or unreadable
func LoadOrDefault(path string) *Palette {
	if path != "" {
		if p, err := LoadGPL(path); err == nil {
			return p
		}
	}
	return Plasma()
}

// Plasma is the built-in palette, dark purple through to yellow
func Plasma() *Palette {
	return &Palette{
		Name: "plasma",
		Colors: []RGB{
			{13, 8, 135},
			{84, 2, 163},
			{139, 10, 165},
			{185, 50, 137},
			{219, 92, 104},
			{244, 136, 73},
			{254, 188, 43},
			{240, 249, 33},
		},
	}
}

// Lookup samples the ramp at norm, clamped to 0-1, blending the two
// nearest entries
func (p *Palette) Lookup(norm float64) RGB {
	last := len(p.Colors) - 1
	switch {
	case norm <= 0 || last == 0:
		return p.Colors[0]
	case norm >= 1:
		return p.Colors[last]
	}

	pos := norm * float64(last)
	i := int(pos)
	frac := pos - float64(i)

	var c RGB
	for ch := range c {
		a, b := float64(p.Colors[i][ch]), float64(p.Colors[i+1][ch])
		c[ch] = uint8(a + (b-a)*frac)
	}
	return c
}
