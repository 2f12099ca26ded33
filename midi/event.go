package midi

import (
	"errors"
	"fmt"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"
	"gitlab.com/gomidi/midi/v2/smf"
)

// Kind classifies a scheduled event. The numeric order is the dispatch
// precedence for events that share a tick.
type Kind uint8

const (
	KindClock Kind = iota
	KindTempo
	KindCC
	KindNoteOn
	KindNoteOff
)

var kindNames = [...]string{"clock", "tempo", "cc", "note-on", "note-off"}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", k)
}

// Port is a logical output port. The transport maps it to a real device.
type Port uint8

// Event is one pending MIDI transmission.
type Event struct {
	Port Port
	Kind Kind
	Msg  gomidi.Message
	Tick uint32
}

func (e Event) String() string {
	return fmt.Sprintf("%s port=%d tick=%d % X", e.Kind, e.Port, e.Tick, []byte(e.Msg))
}

// ErrMalformed is returned when an event's payload does not match its kind.
var ErrMalformed = errors.New("malformed event")

// realtime status bytes accepted as clock events
const (
	statusTimingClock = 0xF8
	statusStart       = 0xFA
	statusContinue    = 0xFB
	statusStop        = 0xFC
)

// Validate rejects events whose payload is inconsistent with their kind.
// SysEx frames are carried under KindCC.
func Validate(ev Event) error {
	if len(ev.Msg) == 0 {
		return malformed(ev, "empty payload")
	}

	var ch, a, b uint8
	switch ev.Kind {
	case KindClock:
		if len(ev.Msg) == 1 {
			switch ev.Msg[0] {
			case statusTimingClock, statusStart, statusContinue, statusStop:
				return nil
			}
		}
		return malformed(ev, "clock event needs a realtime clock message")

	case KindTempo:
		bpm, ok := TempoOf(ev.Msg)
		if !ok {
			return malformed(ev, "tempo event needs a meta tempo message")
		}
		if bpm <= 0 {
			return malformed(ev, "tempo must be positive")
		}
		return nil

	case KindCC:
		if ev.Msg.GetControlChange(&ch, &a, &b) {
			return nil
		}
		var data []byte
		if ev.Msg.GetSysEx(&data) {
			return nil
		}
		return malformed(ev, "cc event needs a control change or sysex message")

	case KindNoteOn:
		if ev.Msg.GetNoteStart(&ch, &a, &b) {
			return nil
		}
		return malformed(ev, "note-on event needs a note on with velocity")

	case KindNoteOff:
		if ev.Msg.GetNoteEnd(&ch, &a) {
			return nil
		}
		return malformed(ev, "note-off event needs a note off")
	}

	return malformed(ev, "unknown kind")
}

func malformed(ev Event, why string) error {
	return fault.Wrap(ErrMalformed,
		fmsg.With(fmt.Sprintf("%s: %s", ev.Kind, why)),
		ftag.With(ftag.InvalidArgument),
	)
}

// Constructors for the common payloads.

func NoteOn(port Port, ch, key, vel uint8, tick uint32) Event {
	return Event{Port: port, Kind: KindNoteOn, Msg: gomidi.NoteOn(ch, key, vel), Tick: tick}
}

func NoteOff(port Port, ch, key uint8, tick uint32) Event {
	return Event{Port: port, Kind: KindNoteOff, Msg: gomidi.NoteOff(ch, key), Tick: tick}
}

func CC(port Port, ch, controller, value uint8, tick uint32) Event {
	return Event{Port: port, Kind: KindCC, Msg: gomidi.ControlChange(ch, controller, value), Tick: tick}
}

func Clock(port Port, tick uint32) Event {
	return Event{Port: port, Kind: KindClock, Msg: gomidi.TimingClock(), Tick: tick}
}

func Start(port Port, tick uint32) Event {
	return Event{Port: port, Kind: KindClock, Msg: gomidi.Start(), Tick: tick}
}

func Stop(port Port, tick uint32) Event {
	return Event{Port: port, Kind: KindClock, Msg: gomidi.Stop(), Tick: tick}
}

// Tempo builds a tempo change. It never reaches the wire; the transport
// hands it to its BPM hook.
func Tempo(port Port, bpm float64, tick uint32) Event {
	return Event{Port: port, Kind: KindTempo, Msg: gomidi.Message(smf.MetaTempo(bpm)), Tick: tick}
}

// SysEx wraps data (without F0/F7) into a system exclusive frame.
func SysEx(port Port, data []byte, tick uint32) Event {
	return Event{Port: port, Kind: KindCC, Msg: gomidi.SysEx(data), Tick: tick}
}

// TempoOf extracts the BPM of a tempo payload.
func TempoOf(msg gomidi.Message) (float64, bool) {
	if len(msg) < 2 || msg[0] != 0xFF {
		return 0, false
	}
	var bpm float64
	ok := smf.Message(msg).GetMetaTempo(&bpm)
	return bpm, ok
}
