// Package halfcycle implements the per-half-cycle driver: it toggles the
// clk pin, dispatches bus-protocol servicing at the correct T-state before
// the rising edge, advances simulated time, and samples the watch set
// after the edge settles.
package halfcycle

import (
	"fmt"

	"github.com/z80netsim/z80netsim/busadapter"
	"github.com/z80netsim/z80netsim/netlist"
	"github.com/z80netsim/z80netsim/observe"
	"github.com/z80netsim/z80netsim/propagate"
)

// busWidths gives the bit width of the two fixed-name buses the bus
// adapter needs: the 16-bit address bus and the 8-bit data bus. Member i
// of each is named "<name><i>" (e.g. ab0..ab15, db0..db7), matching the
// original netlist's pad naming.
var busWidths = map[string]int{"ab": 16, "db": 8}

// Driver ties the netlist, propagation engine, bus adapter and watch
// recorder together and steps simulated time one half-cycle at a time.
type Driver struct {
	store  *netlist.Store
	engine *propagate.Engine
	bus    *busadapter.Adapter
	rec    *observe.Recorder
	onTick func(h uint64)

	h uint64
}

// New builds a Driver. onTick may be nil; if set it is invoked after every
// half-cycle with the counter of the half-cycle just completed, before the
// counter is advanced.
func New(store *netlist.Store, engine *propagate.Engine, bus *busadapter.Adapter, rec *observe.Recorder, onTick func(h uint64)) *Driver {
	return &Driver{store: store, engine: engine, bus: bus, rec: rec, onTick: onTick}
}

// HCycle returns the current half-cycle counter.
func (d *Driver) HCycle() uint64 { return d.h }

// SetHCycle overrides the half-cycle counter, used by the run controller
// when starting a fresh reset sequence.
func (d *Driver) SetHCycle(h uint64) { d.h = h }

// ReadBit returns the current logic level of a single named net.
func (d *Driver) ReadBit(name string) (bool, error) {
	id, ok := d.store.IDOf(name)
	if !ok {
		return false, fmt.Errorf("halfcycle: unknown net %q", name)
	}
	return d.store.NetState(id), nil
}

// SetBit drives a single named net to v and runs the propagation engine
// to a fixpoint (the "two-phase pin write": drive, then recalc).
func (d *Driver) SetBit(name string, v bool) error {
	id, ok := d.store.IDOf(name)
	if !ok {
		return fmt.Errorf("halfcycle: unknown net %q", name)
	}
	if err := d.store.SetNetPull(id, v); err != nil {
		return err
	}
	d.engine.Recalc([]netlist.NetID{id})
	return nil
}

// ReadBus implements busadapter.PinReader: it reads every member net of a
// fixed-width indexed bus ("ab" or "db") and packs them LSB-first (member
// 0 is bit 0), matching ClassNetlist::readAB/readByte in the original.
func (d *Driver) ReadBus(name string) (uint32, int, error) {
	width, ok := busWidths[name]
	if !ok {
		return 0, 0, fmt.Errorf("halfcycle: unknown bus %q", name)
	}
	var v uint32
	for i := 0; i < width; i++ {
		netName := fmt.Sprintf("%s%d", name, i)
		id, ok := d.store.IDOf(netName)
		if !ok {
			return 0, 0, fmt.Errorf("halfcycle: missing bus net %q", netName)
		}
		if d.store.NetState(id) {
			v |= 1 << uint(i)
		}
	}
	return v, width, nil
}

// DriveByte implements busadapter.PinReader: it pulls all 8 members of the
// "db" bus to match v in a single batched recalc.
func (d *Driver) DriveByte(name string, v uint8) error {
	width, ok := busWidths[name]
	if !ok || width != 8 {
		return fmt.Errorf("halfcycle: %q is not an 8-bit bus", name)
	}
	dirty := make([]netlist.NetID, 0, 8)
	for i := 0; i < 8; i++ {
		netName := fmt.Sprintf("%s%d", name, i)
		id, ok := d.store.IDOf(netName)
		if !ok {
			return fmt.Errorf("halfcycle: missing bus net %q", netName)
		}
		bit := v&(1<<uint(i)) != 0
		if err := d.store.SetNetPull(id, bit); err != nil {
			return err
		}
		dirty = append(dirty, id)
	}
	d.engine.Recalc(dirty)
	return nil
}

// HalfCycle advances simulated time by one clock edge:
//  1. Sample clk and compute the next level.
//  2. If the edge about to happen is a rise, service bus-protocol
//     activity for the current T-state against the dispatch table.
//  3. Drive clk to its next level.
//  4. Sample every active watch.
//  5. Invoke the tick hook.
//  6. Advance the half-cycle counter.
func (d *Driver) HalfCycle() error {
	clk, err := d.ReadBit("clk")
	if err != nil {
		return err
	}
	next := !clk

	if next {
		if err := d.serviceBusProtocol(); err != nil {
			return err
		}
	}

	if err := d.SetBit("clk", next); err != nil {
		return err
	}

	d.rec.SampleAll(d.h)

	if d.onTick != nil {
		d.onTick(d.h)
	}
	d.h++
	return nil
}

// serviceBusProtocol reads the six protocol pins and the T-state
// indicators and dispatches to the bus adapter per the Z80 bus-cycle
// truth table. An unmatched combination is a no-op.
func (d *Driver) serviceBusProtocol() error {
	m1, err := d.ReadBit("_m1")
	if err != nil {
		return err
	}
	rfsh, err := d.ReadBit("_rfsh")
	if err != nil {
		return err
	}
	mreq, err := d.ReadBit("_mreq")
	if err != nil {
		return err
	}
	rd, err := d.ReadBit("_rd")
	if err != nil {
		return err
	}
	wr, err := d.ReadBit("_wr")
	if err != nil {
		return err
	}
	iorq, err := d.ReadBit("_iorq")
	if err != nil {
		return err
	}
	t2, err := d.ReadBit("t2")
	if err != nil {
		return err
	}
	t3, err := d.ReadBit("t3")
	if err != nil {
		return err
	}

	ab, _, err := d.ReadBus("ab")
	if err != nil {
		return err
	}
	addr := uint16(ab)

	switch {
	case !m1 && rfsh && !mreq && !rd && wr && iorq && t2:
		return d.bus.MemRead(d, addr) // opcode fetch
	case m1 && rfsh && !mreq && !rd && wr && iorq && t3:
		return d.bus.MemRead(d, addr) // operand read
	case m1 && rfsh && !mreq && rd && !wr && iorq && t3:
		return d.bus.MemWrite(d, addr)
	case m1 && rfsh && mreq && !rd && wr && !iorq && t3:
		return d.bus.IORead(d, addr)
	case m1 && rfsh && mreq && rd && !wr && !iorq && t3:
		return d.bus.IOWrite(d, addr)
	case !m1 && rfsh && mreq && rd && wr && !iorq:
		return d.bus.InterruptAck(d, addr)
	}
	return nil
}
