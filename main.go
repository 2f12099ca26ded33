package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-seqout/clock"
	"go-seqout/config"
	"go-seqout/debug"
	"go-seqout/midi"
	"go-seqout/midiout"
	"go-seqout/sequencer"
	"go-seqout/theme"
	"go-seqout/tui"
)

func main() {
	configPath := flag.String("config", "", "config file (json or yaml)")
	flag.Parse()

	cfg, err := loadConfig(*configPath)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	if cfg.Log.Enabled {
		path := cfg.Log.Path
		if path == "" {
			path = debug.DefaultPath()
		}
		if err := debug.Enable(path, cfg.Log.Level); err != nil {
			fmt.Printf("Warning: debug log disabled: %v\n", err)
		}
		defer debug.Disable()
	}

	// Load theme
	palettePath, patternDir := "", ""
	if dir, err := config.ConfigDir(); err == nil {
		palettePath = filepath.Join(dir, "palette.gpl")
		patternDir = sequencer.PatternsDir(dir)
	}
	th := theme.New(theme.LoadOrDefault(palettePath))

	// MIDI outputs (handles hot-plug)
	out := midi.NewOutput()
	out.SetDefault(cfg.Output.DefaultPort)
	for _, p := range cfg.Output.Ports {
		out.SetPort(midi.Port(p.Port), p.Name)
	}
	if cfg.Output.PollRate > 0 {
		out.SetPollRate(cfg.Output.PollRate)
	}

	clk := clock.New(cfg.Clock.BPM, cfg.Clock.PPQN)
	out.OnTempo(clk.SetBPM)

	sched, err := midiout.New(cfg.Scheduler, clk, out)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}

	seq := sequencer.New(sched, 0, 0, clk.PPQN())
	seq.SetTempo(int(cfg.Clock.BPM))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go out.Run(ctx)
	go clk.Run(ctx, cfg.Clock.Interval, func(uint32) {
		sched.PeriodicDispatch()
	})
	go seq.Run(ctx, clk.Now)

	m := tui.NewModel(seq, sched, clk, out, th)
	m.PatternDir = patternDir
	p := tea.NewProgram(m, tea.WithAltScreen())

	_, err = p.Run()

	// nothing is left sounding on exit
	sched.Flush()
	cancel()
	gomidi.CloseDriver()

	if err != nil {
		fmt.Printf("Error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}
