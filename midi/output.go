package midi

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	gomidi "gitlab.com/gomidi/midi/v2"

	"go-seqout/debug"
)

var (
	ErrUnknownPort     = errors.New("no output mapped to port")
	ErrPortUnavailable = errors.New("output port unavailable")
)

// PortEvent is emitted when an output port appears or disappears
type PortEvent struct {
	Type PortEventType
	Name string
}

type PortEventType int

const (
	PortOnline PortEventType = iota
	PortOffline
)

// SendFunc writes one message to an open port
type SendFunc func(msg gomidi.Message) error

// Output maps logical ports to gomidi output ports and transmits scheduled
// events. Senders are opened lazily and dropped when their port goes away.
type Output struct {
	names       map[Port]string
	defaultName string
	senders     map[string]SendFunc
	online      map[string]bool
	mu          sync.RWMutex

	events   chan PortEvent
	pollRate time.Duration
	onTempo  func(bpm float64)

	// swappable for tests
	list func() []string
	open func(name string) (SendFunc, error)
}

// NewOutput creates an output backed by the registered gomidi driver
func NewOutput() *Output {
	return &Output{
		names:    make(map[Port]string),
		senders:  make(map[string]SendFunc),
		online:   make(map[string]bool),
		events:   make(chan PortEvent, 16),
		pollRate: time.Second,
		list:     outPortNames,
		open:     openOutPort,
	}
}

// SetPort maps a logical port to an output port name
func (o *Output) SetPort(port Port, name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.names[port] = name
}

// SetDefault sets the port name used for unmapped logical ports
func (o *Output) SetDefault(name string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.defaultName = name
}

// OnTempo registers the hook that receives tempo events
func (o *Output) OnTempo(fn func(bpm float64)) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.onTempo = fn
}

// SetPollRate changes the hot-plug scan interval
func (o *Output) SetPollRate(d time.Duration) {
	if d > 0 {
		o.pollRate = d
	}
}

// Events returns a channel of port online/offline events
func (o *Output) Events() <-chan PortEvent {
	return o.events
}

// Transmit sends msg to the device behind port. Tempo payloads go to the
// tempo hook instead of the wire.
func (o *Output) Transmit(port Port, msg gomidi.Message) error {
	if bpm, ok := TempoOf(msg); ok {
		o.mu.RLock()
		hook := o.onTempo
		o.mu.RUnlock()
		if hook != nil {
			hook(bpm)
		}
		return nil
	}

	name := o.resolve(port)
	if name == "" {
		return fault.Wrap(ErrUnknownPort,
			fmsg.With(fmt.Sprintf("port %d", port)),
			ftag.With(ftag.NotFound),
		)
	}

	send := o.getSender(name)
	if send == nil {
		return fault.Wrap(ErrPortUnavailable,
			fmsg.With(name),
			ftag.With(ftag.NotFound),
		)
	}
	return send(msg)
}

func (o *Output) resolve(port Port) string {
	o.mu.RLock()
	defer o.mu.RUnlock()
	if name, ok := o.names[port]; ok && name != "" {
		return name
	}
	return o.defaultName
}

// getSender returns a sender for the given port name, lazily opening it
func (o *Output) getSender(name string) SendFunc {
	o.mu.RLock()
	if send, ok := o.senders[name]; ok {
		o.mu.RUnlock()
		return send
	}
	o.mu.RUnlock()

	o.mu.Lock()
	defer o.mu.Unlock()

	// Double-check after acquiring write lock
	if send, ok := o.senders[name]; ok {
		return send
	}

	send, err := o.open(name)
	if err != nil {
		debug.Log("output", "open %q: %v", name, err)
		return nil
	}
	o.senders[name] = send
	return send
}

// Run polls for port changes until ctx is done (blocking - run in goroutine)
func (o *Output) Run(ctx context.Context) {
	ticker := time.NewTicker(o.pollRate)
	defer ticker.Stop()

	o.scan()

	for {
		select {
		case <-ctx.Done():
			o.mu.Lock()
			o.senders = make(map[string]SendFunc)
			o.mu.Unlock()
			close(o.events)
			return
		case <-ticker.C:
			o.scan()
		}
	}
}

func (o *Output) scan() {
	names, ok := listWithTimeout(o.list, 3*time.Second)
	if !ok {
		// CoreMIDI is hung - skip this scan
		debug.Log("output", "port scan timed out")
		return
	}

	seen := make(map[string]bool, len(names))
	for _, n := range names {
		seen[n] = true
	}

	var changes []PortEvent

	o.mu.Lock()
	for n := range seen {
		if !o.online[n] {
			o.online[n] = true
			changes = append(changes, PortEvent{Type: PortOnline, Name: n})
		}
	}
	for n := range o.online {
		if !seen[n] {
			delete(o.online, n)
			delete(o.senders, n)
			changes = append(changes, PortEvent{Type: PortOffline, Name: n})
		}
	}
	o.mu.Unlock()

	for _, ev := range changes {
		debug.Log("output", "port %q online=%v", ev.Name, ev.Type == PortOnline)
		select {
		case o.events <- ev:
		default:
		}
	}
}

// ListOutPorts returns the names of all output ports, or false when the
// driver does not answer in time
func ListOutPorts(timeout time.Duration) ([]string, bool) {
	return listWithTimeout(outPortNames, timeout)
}

func listWithTimeout(list func() []string, timeout time.Duration) ([]string, bool) {
	ch := make(chan []string, 1)
	go func() {
		ch <- list()
	}()

	select {
	case names := <-ch:
		return names, true
	case <-time.After(timeout):
		return nil, false
	}
}

func outPortNames() []string {
	outs := gomidi.GetOutPorts()
	names := make([]string, len(outs))
	for i, out := range outs {
		names[i] = out.String()
	}
	return names
}

func openOutPort(name string) (SendFunc, error) {
	for _, port := range gomidi.GetOutPorts() {
		if port.String() == name || strings.Contains(strings.ToLower(port.String()), strings.ToLower(name)) {
			send, err := gomidi.SendTo(port)
			if err != nil {
				return nil, fmt.Errorf("open output: %w", err)
			}
			return send, nil
		}
	}
	return nil, fmt.Errorf("open output: %q not found", name)
}
