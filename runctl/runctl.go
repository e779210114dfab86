// Package runctl implements the run controller: the Idle/Running/Stopping
// state machine, the control-pin set, the name-operation channel, timed
// pin assertions ("trickbox" pulses), and the notification event stream
// observers subscribe to.
package runctl

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/rs/xid"

	"github.com/z80netsim/z80netsim/busadapter"
	"github.com/z80netsim/z80netsim/halfcycle"
	"github.com/z80netsim/z80netsim/netlist"
	"github.com/z80netsim/z80netsim/observe"
	"github.com/z80netsim/z80netsim/propagate"
	"github.com/z80netsim/z80netsim/snapshot"
)

// State is one of the three run-controller states.
type State int

const (
	Idle State = iota
	Running
	Stopping
)

func (s State) String() string {
	switch s {
	case Idle:
		return "Idle"
	case Running:
		return "Running"
	case Stopping:
		return "Stopping"
	default:
		return "Unknown"
	}
}

// EventKind distinguishes the notification event types observers receive.
type EventKind int

const (
	EventRunStarted EventKind = iota
	EventRunStopped
	EventNameOp
	EventTick
	EventError
)

// NameOpInfo describes which name-operation channel call produced an
// EventNameOp.
type NameOpInfo struct {
	Op   string // "set", "rename", "delete"
	Name string
	Net  netlist.NetID
}

// Event is a single notification delivered to every registered observer.
// ID is a short sortable xid assigned to each event as it is emitted; it
// is unique per event and is not shared between the events of one Run(n)
// call.
type Event struct {
	ID      string
	Kind    EventKind
	HCycle  uint64
	NameOp  *NameOpInfo
	Err     error
}

// controlPinNames maps the control-pin set's indexed positions to their
// real (underscore-prefixed) net names in the Z80 netlist.
var controlPinNames = []string{"_int", "_nmi", "_busrq", "_wait", "_reset"}

type pulse struct {
	pin           string
	onValue       bool
	startH, endH  uint64
	started, done bool
}

// Controller owns the netlist/engine/driver triple and runs the
// simulation loop on a single dedicated worker goroutine per Run call.
type Controller struct {
	store  *netlist.Store
	engine *propagate.Engine
	driver *halfcycle.Driver

	mu    sync.Mutex // guards state and doneCh
	simMu sync.Mutex // guards a half-cycle step / snapshot read
	state State
	doneCh chan struct{}

	remaining int64 // atomic: half-cycles left in the current Run(n)

	obsMu     sync.Mutex
	observers []func(Event)

	pulseMu sync.Mutex
	pulses  []*pulse
}

// New builds a Controller. store/engine must already be loaded (resource
// package) and sealed (Store.Finalize called).
func New(store *netlist.Store, engine *propagate.Engine, bus *busadapter.Adapter, rec *observe.Recorder) *Controller {
	c := &Controller{store: store, engine: engine, state: Idle}
	c.driver = halfcycle.New(store, engine, bus, rec, c.onTick)
	return c
}

// State returns the controller's current state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Subscribe registers an observer callback invoked for every Event. It is
// called synchronously from whichever goroutine emits the event (the
// worker for Tick/RunStopped, the caller's goroutine for NameOp), so
// observers must not block or touch the netlist directly.
func (c *Controller) Subscribe(f func(Event)) {
	c.obsMu.Lock()
	defer c.obsMu.Unlock()
	c.observers = append(c.observers, f)
}

func (c *Controller) emit(e Event) {
	e.ID = xid.New().String()
	c.obsMu.Lock()
	obs := append([]func(Event){}, c.observers...)
	c.obsMu.Unlock()
	for _, f := range obs {
		f(e)
	}
}

// Run requires Idle to start a fresh worker that steps HalfCycle() n
// times, then emits EventRunStopped and returns to Idle. Calling Run
// with n==0 is "request stop": if the controller is Idle this is a
// no-op start-and-immediately-stop; if Running it cancels the in-flight
// run exactly like Stop().
func (c *Controller) Run(n uint64) error {
	c.mu.Lock()
	if c.state != Idle {
		c.mu.Unlock()
		if n == 0 {
			c.Stop()
			return nil
		}
		return fmt.Errorf("runctl: run(%d) called while %s, not Idle", n, c.state)
	}
	c.state = Running
	c.doneCh = make(chan struct{})
	done := c.doneCh
	c.mu.Unlock()

	atomic.StoreInt64(&c.remaining, int64(n))
	c.emit(Event{Kind: EventRunStarted, HCycle: c.driver.HCycle()})
	go c.worker(done)
	return nil
}

// Stop requests cancellation of an in-flight run. It is safe to call
// from any state, including Idle.
func (c *Controller) Stop() {
	c.mu.Lock()
	if c.state == Running {
		c.state = Stopping
	}
	c.mu.Unlock()
	atomic.StoreInt64(&c.remaining, 0)
}

func (c *Controller) worker(done chan struct{}) {
	defer close(done)
	for atomic.LoadInt64(&c.remaining) > 0 {
		c.simMu.Lock()
		err := c.driver.HalfCycle()
		h := c.driver.HCycle()
		c.simMu.Unlock()
		if err != nil {
			c.emit(Event{Kind: EventError, HCycle: h, Err: err})
			break
		}
		atomic.AddInt64(&c.remaining, -1)
	}

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()
	c.emit(Event{Kind: EventRunStopped, HCycle: c.driver.HCycle()})
}

func (c *Controller) waitIdle() {
	c.mu.Lock()
	done := c.doneCh
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

// Reset requires Idle, or transitions Running/Stopping to Idle first by
// requesting stop and waiting. It returns the number of half-cycles
// consumed by the reset sequence itself (always 8).
func (c *Controller) Reset() (uint64, error) {
	c.mu.Lock()
	running := c.state != Idle
	c.mu.Unlock()
	if running {
		c.Stop()
		c.waitIdle()
	}

	c.store.SetNetStateRaw(netlist.GND, false)
	c.store.SetNetStateRaw(netlist.VCC, true)
	c.store.ResetTransistors()

	if err := c.driver.SetBit("_reset", false); err != nil {
		return 0, fmt.Errorf("runctl: reset: %w", err)
	}
	for _, name := range []string{"_int", "_nmi", "_busrq", "_wait"} {
		if err := c.driver.SetBit(name, true); err != nil {
			return 0, fmt.Errorf("runctl: reset: %w", err)
		}
	}

	c.engine.Recalc(c.store.AllNets())

	c.driver.SetHCycle(0)
	var consumed uint64
	for i := 0; i < 8; i++ {
		if err := c.driver.HalfCycle(); err != nil {
			return consumed, fmt.Errorf("runctl: reset half-cycle %d: %w", i, err)
		}
		consumed++
	}

	if err := c.driver.SetBit("_reset", true); err != nil {
		return consumed, fmt.Errorf("runctl: reset: %w", err)
	}

	c.mu.Lock()
	c.state = Idle
	c.mu.Unlock()
	slog.Info("reset complete", "half_cycles", consumed)
	return consumed, nil
}

// SetPin drives one of the five indexed control pins: 0=int, 1=nmi, 2=busrq, 3=wait, 4=reset.
func (c *Controller) SetPin(index int, value bool) error {
	if index < 0 || index >= len(controlPinNames) {
		return fmt.Errorf("runctl: pin index %d out of range [0,%d)", index, len(controlPinNames))
	}
	c.simMu.Lock()
	defer c.simMu.Unlock()
	return c.driver.SetBit(controlPinNames[index], value)
}

// ReadState assembles an atomic snapshot of every register/bus/pin.
// It is legal in any state; the simMu lock guarantees it never observes
// a half-cycle partway through.
func (c *Controller) ReadState(warnings []string) (snapshot.Snapshot, error) {
	c.simMu.Lock()
	defer c.simMu.Unlock()
	return snapshot.Read(c.store, c.driver.HCycle(), warnings)
}

// SetName, RenameNet and DeleteName implement the name-operation channel
//; each broadcasts an EventNameOp to observers on success.
func (c *Controller) SetName(name string, id netlist.NetID) error {
	if err := c.store.SetName(name, id); err != nil {
		return err
	}
	c.emit(Event{Kind: EventNameOp, NameOp: &NameOpInfo{Op: "set", Name: name, Net: id}})
	return nil
}

func (c *Controller) RenameNet(newName string, id netlist.NetID) error {
	if err := c.store.Rename(newName, id); err != nil {
		return err
	}
	c.emit(Event{Kind: EventNameOp, NameOp: &NameOpInfo{Op: "rename", Name: newName, Net: id}})
	return nil
}

func (c *Controller) DeleteName(id netlist.NetID) error {
	name := c.store.NameOf(id)
	if err := c.store.Delete(id); err != nil {
		return err
	}
	c.emit(Event{Kind: EventNameOp, NameOp: &NameOpInfo{Op: "delete", Name: name, Net: id}})
	return nil
}

// SchedulePulse drives pin (one of the control-pin names) to value
// starting at half-cycle startH, and reverts it to !value once lengthHC
// half-cycles have elapsed — a trickbox-style timed pin assertion,
// consumed from the tick hook rather than polled.
func (c *Controller) SchedulePulse(pin string, value bool, startH, lengthHC uint64) {
	c.pulseMu.Lock()
	defer c.pulseMu.Unlock()
	c.pulses = append(c.pulses, &pulse{pin: pin, onValue: value, startH: startH, endH: startH + lengthHC})
}

func (c *Controller) onTick(h uint64) {
	c.drainPulses(h)
	c.emit(Event{Kind: EventTick, HCycle: h})
}

func (c *Controller) drainPulses(h uint64) {
	c.pulseMu.Lock()
	due := make([]*pulse, 0)
	for _, p := range c.pulses {
		if !p.started && h >= p.startH {
			p.started = true
			due = append(due, p)
		} else if p.started && !p.done && h >= p.endH {
			p.done = true
			due = append(due, p)
		}
	}
	c.pulseMu.Unlock()

	for _, p := range due {
		v := p.onValue
		if p.done {
			v = !p.onValue
		}
		if err := c.driver.SetBit(p.pin, v); err != nil {
			slog.Warn("trickbox pulse failed", "pin", p.pin, "error", err)
		}
	}
}
