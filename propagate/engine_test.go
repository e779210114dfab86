package propagate

import (
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/z80netsim/z80netsim/netlist"
)

// buildInverter builds a minimal NMOS inverter: gnd --[t0: gate=in]-- out,
// and a pull-up on out. Net ids: 3=in, 4=out.
func buildInverter(t *testing.T) *netlist.Store {
	t.Helper()
	s := netlist.New(8, 4)
	if err := s.AddTransistor(0, 3, netlist.GND, 4); err != nil {
		t.Fatalf("AddTransistor: %v", err)
	}
	if err := s.SetHasPullup(4); err != nil {
		t.Fatalf("SetHasPullup: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return s
}

func TestInverterLogic(t *testing.T) {
	s := buildInverter(t)
	e := New(s)

	// Drive "in" low: transistor off, pull-up wins, out should be high.
	// out has never been evaluated, so it is seeded alongside in.
	if err := s.SetNetPull(3, false); err != nil {
		t.Fatalf("SetNetPull: %v", err)
	}
	e.Recalc([]netlist.NetID{3, 4})
	if got, want := s.NetState(4), true; got != want {
		t.Errorf("out = %v, want %v (in=low): %s", got, want, spew.Sdump(s))
	}

	// Drive "in" high: transistor on, out pulled to GND, should be low.
	if err := s.SetNetPull(3, true); err != nil {
		t.Fatalf("SetNetPull: %v", err)
	}
	e.Recalc([]netlist.NetID{3})
	if got, want := s.NetState(4), false; got != want {
		t.Errorf("out = %v, want %v (in=high): %s", got, want, spew.Sdump(s))
	}
}

func TestRecalcEmptyDirtyIsNoop(t *testing.T) {
	s := buildInverter(t)
	e := New(s)
	before := s.NetState(4)
	res := e.Recalc(nil)
	if res.Iterations != 0 {
		t.Errorf("Iterations = %d, want 0 for empty dirty list", res.Iterations)
	}
	if s.NetState(4) != before {
		t.Errorf("state changed on empty recalc")
	}
}

func TestRecalcDeterministic(t *testing.T) {
	s1 := buildInverter(t)
	s2 := buildInverter(t)
	e1, e2 := New(s1), New(s2)
	for _, in := range []bool{true, false, true, true, false} {
		s1.SetNetPull(3, in)
		s2.SetNetPull(3, in)
		e1.Recalc([]netlist.NetID{3})
		e2.Recalc([]netlist.NetID{3})
		if s1.NetState(4) != s2.NetState(4) {
			t.Fatalf("divergent result for in=%v: %v vs %v", in, s1.NetState(4), s2.NetState(4))
		}
	}
}

func TestInverterChainConverges(t *testing.T) {
	// Two cascaded inverters (net3 -> node5 -> node6): confirm recalc
	// reaches a fixpoint without hitting the iteration cap.
	s := netlist.New(8, 4)
	// t0: gate=3, c1=5, c2=GND (after normalization) -- drives node5 low when net3 high
	if err := s.AddTransistor(0, 3, netlist.GND, 5); err != nil {
		t.Fatalf("AddTransistor: %v", err)
	}
	// t1: gate=5, c1=6, c2=GND -- node6 pulled low when node5 high
	if err := s.AddTransistor(1, 5, netlist.GND, 6); err != nil {
		t.Fatalf("AddTransistor: %v", err)
	}
	if err := s.SetHasPullup(5); err != nil {
		t.Fatalf("SetHasPullup: %v", err)
	}
	if err := s.SetHasPullup(6); err != nil {
		t.Fatalf("SetHasPullup: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	e := New(s)
	s.SetNetPull(3, true)
	res := e.Recalc([]netlist.NetID{3})
	if res.CapHit {
		t.Errorf("hit iteration cap on a 2-stage inverter chain: %+v", res)
	}
}

func TestGroupAbsorbsRailsWithoutExpanding(t *testing.T) {
	// A transistor on from "in" connects "mid" directly to VCC; a second
	// on transistor would connect VCC onward to "far" but VCC must not be
	// expanded through.
	s := netlist.New(8, 4)
	if err := s.AddTransistor(0, 3, 4, netlist.VCC); err != nil { // gate=3, mid=4, vcc
		t.Fatalf("AddTransistor: %v", err)
	}
	if err := s.AddTransistor(1, 3, netlist.VCC, 5); err != nil { // another leg off VCC
		t.Fatalf("AddTransistor: %v", err)
	}
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	e := New(s)
	s.SetNetPull(3, true)
	e.Recalc([]netlist.NetID{3})
	if got, want := s.NetState(4), true; got != want {
		t.Errorf("mid = %v, want %v", got, want)
	}
	if got, want := s.NetState(5), true; got != want {
		t.Errorf("far = %v, want %v", got, want)
	}
}
