// Package busadapter services memory, I/O, and interrupt-acknowledge bus
// cycles on behalf of the modeled Z80, against a 64 KiB memory array and a
// 256-byte I/O space. It is driven once per half-cycle by the
// halfcycle package's dispatch of the Z80's control-pin truth table.
package busadapter

import "log/slog"

// PinReader is the subset of the netlist's pin access the adapter needs to
// drive/read the address and data buses. halfcycle.Driver satisfies it.
type PinReader interface {
	// ReadBus samples a named bus and returns its value and bit width.
	ReadBus(name string) (value uint32, width int, err error)
	// DriveByte pulls the 8 nets of a named byte-wide bus high/low to match
	// v, then runs the propagation engine to a fixpoint.
	DriveByte(name string, v uint8) error
}

// IOWriteEvent is emitted whenever the adapter services an I/O write,
// supplementing the console-echo special case (AB==0x0800) with a
// general hook any observer can use. Echoed reports whether this write
// is one of the alternating half that the trickbox console treats as a
// visible character.
type IOWriteEvent struct {
	Addr   uint16
	Val    uint8
	Echoed bool
}

// Adapter holds the 64 KiB memory array and 256-byte I/O space and
// services bus cycles against them.
type Adapter struct {
	memory [65536]uint8
	io     [256]uint8

	consoleWrites uint64 // counts non-newline writes to the console port (0x0800)

	onIOWrite []func(IOWriteEvent)
}

// New returns an Adapter with memory and I/O zeroed.
func New() *Adapter {
	return &Adapter{}
}

// OnIOWrite registers a callback invoked after every I/O write, in
// addition to the console-echo special case. Used by runctl to expose I/O
// activity to external observers without coupling this package to them.
func (a *Adapter) OnIOWrite(f func(IOWriteEvent)) {
	a.onIOWrite = append(a.onIOWrite, f)
}

// LoadMemory copies data into memory starting at addr, for use by an
// external Intel-HEX loader before a run starts.
func (a *Adapter) LoadMemory(addr uint16, data []uint8) {
	for i, b := range data {
		a.memory[uint16(int(addr)+i)] = b
	}
}

// Memory returns the byte at addr without touching the simulated bus;
// used by ReadState/debugging tools, not by the half-cycle driver.
func (a *Adapter) Memory(addr uint16) uint8 { return a.memory[addr] }

// IO returns the byte at the given I/O port without touching the
// simulated bus.
func (a *Adapter) IO(addr uint8) uint8 { return a.io[addr] }

// MemRead services a memory read (opcode fetch or operand read): it
// fetches memory[AB] and drives it onto the db pins.
func (a *Adapter) MemRead(pins PinReader, ab uint16) error {
	return pins.DriveByte("db", a.memory[ab])
}

// MemWrite services a memory write: it reads db off the bus and stores it.
func (a *Adapter) MemWrite(pins PinReader, ab uint16) error {
	v, _, err := pins.ReadBus("db")
	if err != nil {
		return err
	}
	a.memory[ab] = uint8(v)
	return nil
}

// IORead services an I/O read (including interrupt-ack, which behaves
// identically): it fetches io[AB&0xFF] and drives it onto db.
func (a *Adapter) IORead(pins PinReader, ab uint16) error {
	return pins.DriveByte("db", a.io[ab&0xFF])
}

// IOWrite services an I/O write: it reads db and stores it at
// io[AB&0xFF]. A write to the console port (AB==0x0800) is the
// trickbox's character echo: newlines are dropped, and of the
// remaining writes only every other one is treated as a visible
// character, matching the original trickbox's wr_count alternation.
func (a *Adapter) IOWrite(pins PinReader, ab uint16) error {
	v, _, err := pins.ReadBus("db")
	if err != nil {
		return err
	}
	val := uint8(v)
	a.io[ab&0xFF] = val

	echoed := false
	if ab == 0x0800 && val != 10 {
		echoed = a.consoleWrites%2 == 0
		a.consoleWrites++
	}

	for _, f := range a.onIOWrite {
		f(IOWriteEvent{Addr: ab, Val: val, Echoed: echoed})
	}
	if echoed {
		slog.Debug("console byte", "value", val, "char", string(rune(val)))
	}
	return nil
}

// InterruptAck services an interrupt-acknowledge cycle. It behaves as
// an I/O read against the current address bus.
func (a *Adapter) InterruptAck(pins PinReader, ab uint16) error {
	return a.IORead(pins, ab)
}
