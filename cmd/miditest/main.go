package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"time"

	gomidi "gitlab.com/gomidi/midi/v2"
	_ "gitlab.com/gomidi/midi/v2/drivers/rtmididrv"

	"go-seqout/clock"
	"go-seqout/midi"
	"go-seqout/midiout"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		return
	}
	defer gomidi.CloseDriver()

	switch os.Args[1] {
	case "list":
		listPorts()
	case "flood":
		flood(os.Args[2:])
	case "clock":
		if len(os.Args) < 3 {
			usage()
			return
		}
		sendClock(os.Args[2])
	case "poll":
		pollPorts()
	default:
		usage()
	}
}

func usage() {
	fmt.Println("MIDI Output Test Scripts")
	fmt.Println("")
	fmt.Println("Commands:")
	fmt.Println("  list          - List all MIDI output ports")
	fmt.Println("  flood [cap]   - Overfill a small queue and print stats")
	fmt.Println("  clock <port>  - Play 4 bars of clock and notes to a port")
	fmt.Println("  poll          - Watch output ports come and go")
}

func listPorts() {
	fmt.Println("=== MIDI Output Ports ===")
	fmt.Println("(waiting up to 3 seconds...)")

	names, ok := midi.ListOutPorts(3 * time.Second)
	if !ok {
		fmt.Println("\nTIMEOUT! CoreMIDI is hung.")
		fmt.Println("Fix: sudo killall coreaudiod midiserver")
		return
	}
	for i, name := range names {
		fmt.Printf("  %d: %s\n", i, name)
	}
}

// flood schedules twice the queue capacity at one tick, then dispatches
func flood(args []string) {
	capacity := 16
	if len(args) > 0 {
		n, err := strconv.Atoi(args[0])
		if err != nil {
			fmt.Printf("Error: bad capacity %q\n", args[0])
			return
		}
		capacity = n
	}

	clk := &clock.Manual{}
	var sent int
	out := midiout.TransmitFunc(func(port midi.Port, msg gomidi.Message) error {
		sent++
		return nil
	})

	sched, err := midiout.New(midiout.Config{Capacity: capacity, Arena: midiout.ArenaFixed, Stats: true}, clk, out)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	var refused int
	for i := 0; i < capacity*2; i++ {
		if err := sched.ScheduleEvent(midi.NoteOn(0, 0, uint8(i%128), 100, 10)); err != nil {
			refused++
		}
	}

	stats, _ := sched.Stats()
	fmt.Printf("scheduled %d, refused %d\n", capacity*2-refused, refused)
	fmt.Printf("  queue %d  max %d  dropouts %d\n", stats.QueueSize, stats.MaxAllocated, stats.Dropouts)

	fmt.Printf("dispatch at tick 9: %d sent\n", sched.DispatchAt(9))
	clk.Set(10)
	fmt.Printf("dispatch at tick 10: %d sent\n", sched.PeriodicDispatch())

	stats, _ = sched.Stats()
	fmt.Printf("  queue %d  max %d  dropouts %d  transmitted %d\n",
		stats.QueueSize, stats.MaxAllocated, stats.Dropouts, stats.Transmitted)
}

// sendClock plays 4 bars of MIDI clock with a note on every beat
func sendClock(port string) {
	out := midi.NewOutput()
	out.SetDefault(port)

	clk := clock.New(clock.DefaultBPM, clock.DefaultPPQN)
	out.OnTempo(clk.SetBPM)

	sched, err := midiout.New(midiout.Config{Capacity: 512, Arena: midiout.ArenaFixed, Stats: true}, clk, out)
	if err != nil {
		fmt.Printf("Error: %v\n", err)
		return
	}

	ppqn := clk.PPQN()
	pulse := ppqn / 24
	start := clk.Now() + ppqn/4
	bars := uint32(4)
	end := start + bars*4*ppqn

	schedule := func(ev midi.Event) {
		if err := sched.ScheduleEvent(ev); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}

	schedule(midi.Start(0, start))
	for t := start; t < end; t += pulse {
		schedule(midi.Clock(0, t))
	}
	for beat := uint32(0); beat < bars*4; beat++ {
		key := uint8(60)
		if beat%4 == 0 {
			key = 72
		}
		if err := sched.ScheduleNote(0, 0, key, 100, start+beat*ppqn, ppqn/2); err != nil {
			fmt.Printf("Error: %v\n", err)
		}
	}
	schedule(midi.Stop(0, end))

	fmt.Printf("Playing 4 bars to %q at %.0f BPM...\n", port, clk.BPM())

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	go clk.Run(ctx, clock.DefaultInterval, func(uint32) {
		if sched.PeriodicDispatch() > 0 && sched.Store().Len() == 0 {
			cancel()
		}
	})
	<-ctx.Done()

	// anything left after ctrl-c goes out now
	sched.Flush()

	stats, _ := sched.Stats()
	fmt.Printf("Done! transmitted %d, errors %d\n", stats.Transmitted, stats.TransmitErrors)
}

func pollPorts() {
	fmt.Println("Polling for output port changes every 2 seconds...")
	fmt.Println("Connect/disconnect devices to test. Ctrl+C to exit.")

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt)
	defer cancel()

	out := midi.NewOutput()
	out.SetPollRate(2 * time.Second)
	go out.Run(ctx)

	for ev := range out.Events() {
		state := "online"
		if ev.Type == midi.PortOffline {
			state = "offline"
		}
		fmt.Printf("[%s] %s %s\n", time.Now().Format("15:04:05"), ev.Name, state)
	}
}
