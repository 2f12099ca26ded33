package midiout

// DefaultCapacity is the slot count used when none is configured.
const DefaultCapacity = 128

// Config selects the pool strategy and whether statistics are kept.
type Config struct {
	Capacity int       `json:"capacity" yaml:"capacity"`
	Arena    ArenaKind `json:"arena" yaml:"arena"`
	Stats    bool      `json:"stats" yaml:"stats"`
}

// DefaultConfig returns a fixed 128 slot pool with statistics on
func DefaultConfig() Config {
	return Config{
		Capacity: DefaultCapacity,
		Arena:    ArenaFixed,
		Stats:    true,
	}
}
