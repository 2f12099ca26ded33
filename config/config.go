package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	"gopkg.in/yaml.v3"

	"go-seqout/clock"
	"go-seqout/midiout"
)

// ErrInvalid is returned by Validate
var ErrInvalid = errors.New("invalid config")

// PortConfig maps a logical port number to an output port name
type PortConfig struct {
	Port uint8  `json:"port" yaml:"port"`
	Name string `json:"name" yaml:"name"`
}

// OutputConfig defines the MIDI outputs
type OutputConfig struct {
	DefaultPort string        `json:"defaultPort,omitempty" yaml:"defaultPort,omitempty"`
	Ports       []PortConfig  `json:"ports,omitempty" yaml:"ports,omitempty"`
	PollRate    time.Duration `json:"pollRate,omitempty" yaml:"pollRate,omitempty"`
}

// ClockConfig sets the timebase
type ClockConfig struct {
	BPM      float64       `json:"bpm" yaml:"bpm"`
	PPQN     uint32        `json:"ppqn" yaml:"ppqn"`
	Interval time.Duration `json:"interval" yaml:"interval"` // dispatch period
}

// LogConfig controls the debug log
type LogConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled"`
	Level   string `json:"level,omitempty" yaml:"level,omitempty"`
	Path    string `json:"path,omitempty" yaml:"path,omitempty"`
}

// Config is the main configuration structure
type Config struct {
	Scheduler midiout.Config `json:"scheduler" yaml:"scheduler"`
	Clock     ClockConfig    `json:"clock" yaml:"clock"`
	Output    OutputConfig   `json:"output" yaml:"output"`
	Log       LogConfig      `json:"log" yaml:"log"`
}

// DefaultConfig returns a config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Scheduler: midiout.DefaultConfig(),
		Clock: ClockConfig{
			BPM:      clock.DefaultBPM,
			PPQN:     clock.DefaultPPQN,
			Interval: clock.DefaultInterval,
		},
		Output: OutputConfig{
			PollRate: time.Second,
		},
		Log: LogConfig{
			Level: "debug",
		},
	}
}

// ConfigDir returns the config directory path
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "go-seqout"), nil
}

// ConfigPath returns the full path to config.json
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// Load reads the config from disk, or returns defaults if not found.
// A config.yaml next to config.json is used when config.json is absent.
func Load() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}

	if _, err := os.Stat(path); os.IsNotExist(err) {
		yamlPath := strings.TrimSuffix(path, ".json") + ".yaml"
		if _, err := os.Stat(yamlPath); err == nil {
			path = yamlPath
		}
	}

	cfg, err := LoadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	return cfg, nil
}

// LoadFile reads a JSON or YAML config (by extension) over the defaults
func LoadFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	default:
		err = json.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fault.Wrap(err, fmsg.With("parse "+path), ftag.With(ftag.InvalidArgument))
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk
func (c *Config) Save() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}

	// Create directory if it doesn't exist
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	path, err := ConfigPath()
	if err != nil {
		return err
	}
	return c.SaveFile(path)
}

// SaveFile writes the config as JSON or YAML depending on the extension
func (c *Config) SaveFile(path string) error {
	var data []byte
	var err error
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		data, err = yaml.Marshal(c)
	default:
		data, err = json.MarshalIndent(c, "", "  ")
	}
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Validate checks values the scheduler and clock cannot recover from
func (c *Config) Validate() error {
	s := c.Scheduler
	switch s.Arena {
	case midiout.ArenaFixed, "":
		if s.Capacity <= 0 || s.Capacity&(s.Capacity-1) != 0 {
			return invalid("scheduler.capacity %d is not a power of two", s.Capacity)
		}
	case midiout.ArenaDynamic:
		if s.Capacity < 0 {
			return invalid("scheduler.capacity %d is negative", s.Capacity)
		}
	default:
		return invalid("scheduler.arena %q unknown", s.Arena)
	}

	if c.Clock.BPM < clock.MinBPM || c.Clock.BPM > clock.MaxBPM {
		return invalid("clock.bpm %.1f outside %.0f-%.0f", c.Clock.BPM, clock.MinBPM, clock.MaxBPM)
	}
	if c.Clock.PPQN < clock.PulsesPerQuarter || c.Clock.PPQN%clock.PulsesPerQuarter != 0 {
		return invalid("clock.ppqn %d is not a positive multiple of %d", c.Clock.PPQN, clock.PulsesPerQuarter)
	}
	if c.Clock.Interval <= 0 {
		return invalid("clock.interval must be positive")
	}
	return nil
}

func invalid(format string, args ...any) error {
	return fault.Wrap(ErrInvalid, fmsg.With(fmt.Sprintf(format, args...)), ftag.With(ftag.InvalidArgument))
}

// FindPort finds the output name for a logical port
func (c *Config) FindPort(port uint8) *PortConfig {
	for i := range c.Output.Ports {
		if c.Output.Ports[i].Port == port {
			return &c.Output.Ports[i]
		}
	}
	return nil
}

// SetPort adds or updates a port mapping
func (c *Config) SetPort(port uint8, name string) {
	for i := range c.Output.Ports {
		if c.Output.Ports[i].Port == port {
			c.Output.Ports[i].Name = name
			return
		}
	}
	c.Output.Ports = append(c.Output.Ports, PortConfig{Port: port, Name: name})
}
