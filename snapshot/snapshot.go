// Package snapshot assembles an atomic point-in-time read of every
// register, bus, and pin the state-snapshot structure exposes,
// by resolving fixed 8-net register groups and indexed pin/bus names
// against a netlist.Store.
package snapshot

import (
	"fmt"

	"github.com/z80netsim/z80netsim/netlist"
)

// regPair names the two 8-net byte groups ("reg_<letter>0..7") that make
// up one 16-bit register pair, high byte first. Names are taken from the
// Z80 netlist's own register naming, not invented here.
type regPair struct {
	field string
	hi    string
	lo    string
}

var registerPairs = []regPair{
	{"af", "reg_a", "reg_f"},
	{"bc", "reg_b", "reg_c"},
	{"de", "reg_d", "reg_e"},
	{"hl", "reg_h", "reg_l"},
	{"af2", "reg_aa", "reg_ff"},
	{"bc2", "reg_bb", "reg_cc"},
	{"de2", "reg_dd", "reg_ee"},
	{"hl2", "reg_hh", "reg_ll"},
	{"ix", "reg_ixh", "reg_ixl"},
	{"iy", "reg_iyh", "reg_iyl"},
	{"sp", "reg_sph", "reg_spl"},
	{"ir", "reg_i", "reg_r"},
	{"wz", "reg_w", "reg_z"},
	{"pc", "reg_pch", "reg_pcl"},
}

// pinName pairs a control pin's API-facing key (spec §6's unprefixed
// names) with its real, underscore-prefixed net name in the Z80 netlist.
type pinName struct {
	api string
	net string
}

var controlPins = []pinName{
	{"clk", "clk"},
	{"int", "_int"},
	{"nmi", "_nmi"},
	{"halt", "_halt"},
	{"mreq", "_mreq"},
	{"iorq", "_iorq"},
	{"rd", "_rd"},
	{"wr", "_wr"},
	{"busak", "_busak"},
	{"wait", "_wait"},
	{"busrq", "_busrq"},
	{"reset", "_reset"},
	{"m1", "_m1"},
	{"rfsh", "_rfsh"},
}

// Snapshot is a fully-resolved ReadState result.
type Snapshot struct {
	HCycle uint64

	Registers map[string]uint16 // af, bc, de, hl, af2, bc2, de2, hl2, ix, iy, sp, ir, wz, pc

	AB uint16
	DB uint8

	Pins map[string]bool // clk, int, nmi, halt, mreq, iorq, rd, wr, busak, wait, busrq, reset, m1, rfsh
	M    [6]bool
	T    [6]bool

	Instr uint8

	Warnings []string // resource-loader and recalc-cap warnings, surfaced alongside state
}

func readByte(s *netlist.Store, prefix string) (uint8, error) {
	var v uint8
	for i := 7; i >= 0; i-- {
		name := fmt.Sprintf("%s%d", prefix, i)
		id, ok := s.IDOf(name)
		if !ok {
			return 0, fmt.Errorf("snapshot: missing net %q", name)
		}
		v <<= 1
		if s.NetState(id) {
			v |= 1
		}
	}
	return v, nil
}

func readBus16(s *netlist.Store, prefix string) (uint16, error) {
	var v uint16
	for i := 15; i >= 0; i-- {
		name := fmt.Sprintf("%s%d", prefix, i)
		id, ok := s.IDOf(name)
		if !ok {
			return 0, fmt.Errorf("snapshot: missing net %q", name)
		}
		v <<= 1
		if s.NetState(id) {
			v |= 1
		}
	}
	return v, nil
}

// Read assembles a Snapshot from the current net states. It is a pure
// read with no side effects, safe to call whenever the caller can
// guarantee no concurrent recalc is in flight.
func Read(s *netlist.Store, hcycle uint64, warnings []string) (Snapshot, error) {
	snap := Snapshot{
		HCycle:    hcycle,
		Registers: make(map[string]uint16, len(registerPairs)),
		Pins:      make(map[string]bool, len(controlPins)),
		Warnings:  warnings,
	}

	for _, rp := range registerPairs {
		hi, err := readByte(s, rp.hi)
		if err != nil {
			return Snapshot{}, err
		}
		lo, err := readByte(s, rp.lo)
		if err != nil {
			return Snapshot{}, err
		}
		snap.Registers[rp.field] = uint16(hi)<<8 | uint16(lo)
	}

	ab, err := readBus16(s, "ab")
	if err != nil {
		return Snapshot{}, err
	}
	snap.AB = ab

	db, err := readByte(s, "db")
	if err != nil {
		return Snapshot{}, err
	}
	snap.DB = db

	for _, p := range controlPins {
		id, ok := s.IDOf(p.net)
		if !ok {
			return Snapshot{}, fmt.Errorf("snapshot: missing pin %q", p.net)
		}
		snap.Pins[p.api] = s.NetState(id)
	}

	for i := 0; i < 6; i++ {
		mName := fmt.Sprintf("m%d", i+1)
		mID, ok := s.IDOf(mName)
		if !ok {
			return Snapshot{}, fmt.Errorf("snapshot: missing net %q", mName)
		}
		snap.M[i] = s.NetState(mID)
		tName := fmt.Sprintf("t%d", i+1)
		tID, ok := s.IDOf(tName)
		if !ok {
			return Snapshot{}, fmt.Errorf("snapshot: missing net %q", tName)
		}
		snap.T[i] = s.NetState(tID)
	}

	instr, err := readByte(s, "_instr")
	if err != nil {
		return Snapshot{}, err
	}
	snap.Instr = instr

	return snap, nil
}
