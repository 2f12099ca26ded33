package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/Southclaws/fault/ftag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go-seqout/midiout"
)

func TestLoadMissingReturnsDefaults(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, DefaultConfig(), cfg)
	assert.Equal(t, 128, cfg.Scheduler.Capacity)
}

func TestSaveThenLoad(t *testing.T) {
	t.Setenv("HOME", t.TempDir())

	cfg := DefaultConfig()
	cfg.Scheduler.Capacity = 256
	cfg.SetPort(1, "IAC Driver Bus 1")
	require.NoError(t, cfg.Save())

	got, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 256, got.Scheduler.Capacity)
	require.NotNil(t, got.FindPort(1))
	assert.Equal(t, "IAC Driver Bus 1", got.FindPort(1).Name)
}

func TestLoadYAML(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HOME", home)

	dir := filepath.Join(home, ".config", "go-seqout")
	require.NoError(t, os.MkdirAll(dir, 0755))
	yml := `
scheduler:
  capacity: 32
  arena: fixed
  stats: false
clock:
  bpm: 98
  ppqn: 96
  interval: 2ms
output:
  defaultPort: Synth
  ports:
    - port: 2
      name: Drums
log:
  enabled: true
`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "config.yaml"), []byte(yml), 0644))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 32, cfg.Scheduler.Capacity)
	assert.False(t, cfg.Scheduler.Stats)
	assert.Equal(t, 98.0, cfg.Clock.BPM)
	assert.Equal(t, 2*time.Millisecond, cfg.Clock.Interval)
	assert.Equal(t, "Synth", cfg.Output.DefaultPort)
	assert.Equal(t, "Drums", cfg.FindPort(2).Name)
	assert.True(t, cfg.Log.Enabled)
	// untouched sections keep their defaults
	assert.Equal(t, "debug", cfg.Log.Level)
}

func TestLoadJSONDurations(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.json")
	js := `{"clock": {"bpm": 120, "ppqn": 96, "interval": "2ms"}, "output": {"pollRate": "500ms"}}`
	require.NoError(t, os.WriteFile(path, []byte(js), 0644))

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 2*time.Millisecond, cfg.Clock.Interval)
	assert.Equal(t, 500*time.Millisecond, cfg.Output.PollRate)
	assert.EqualValues(t, 96, cfg.Clock.PPQN)

	// integer nanoseconds still load
	require.NoError(t, os.WriteFile(path, []byte(`{"clock": {"bpm": 120, "ppqn": 96, "interval": 3000000}}`), 0644))
	cfg, err = LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 3*time.Millisecond, cfg.Clock.Interval)
	assert.Equal(t, time.Second, cfg.Output.PollRate, "default kept")

	// saves write strings and read back the same
	out := filepath.Join(dir, "saved.json")
	require.NoError(t, cfg.SaveFile(out))
	data, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"interval": "3ms"`)
	got, err := LoadFile(out)
	require.NoError(t, err)
	assert.Equal(t, cfg, got)

	require.NoError(t, os.WriteFile(path, []byte(`{"clock": {"interval": "soon"}}`), 0644))
	_, err = LoadFile(path)
	assert.Equal(t, ftag.InvalidArgument, ftag.Get(err))
}

func TestLoadFileRejectsGarbage(t *testing.T) {
	path := filepath.Join(t.TempDir(), "bad.json")
	require.NoError(t, os.WriteFile(path, []byte("{"), 0644))

	_, err := LoadFile(path)
	require.Error(t, err)
	assert.Equal(t, ftag.InvalidArgument, ftag.Get(err))
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		ok     bool
	}{
		{"defaults", func(*Config) {}, true},
		{"capacity not power of two", func(c *Config) { c.Scheduler.Capacity = 100 }, false},
		{"dynamic any capacity", func(c *Config) {
			c.Scheduler.Arena = midiout.ArenaDynamic
			c.Scheduler.Capacity = 100
		}, true},
		{"unknown arena", func(c *Config) { c.Scheduler.Arena = "slab" }, false},
		{"tempo too fast", func(c *Config) { c.Clock.BPM = 900 }, false},
		{"no ppqn", func(c *Config) { c.Clock.PPQN = 0 }, false},
		{"ppqn below clock rate", func(c *Config) { c.Clock.PPQN = 12 }, false},
		{"ppqn not a multiple of 24", func(c *Config) { c.Clock.PPQN = 100 }, false},
		{"ppqn 24", func(c *Config) { c.Clock.PPQN = 24 }, true},
		{"ppqn 960", func(c *Config) { c.Clock.PPQN = 960 }, true},
		{"no interval", func(c *Config) { c.Clock.Interval = 0 }, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.ok {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrInvalid)
			}
		})
	}
}

func TestSetPortUpdates(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPort(0, "A")
	cfg.SetPort(0, "B")
	require.Len(t, cfg.Output.Ports, 1)
	assert.Equal(t, "B", cfg.FindPort(0).Name)
	assert.Nil(t, cfg.FindPort(9))
}
