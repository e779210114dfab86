package snapshot

import (
	"fmt"
	"testing"

	"github.com/davecgh/go-spew/spew"
	"github.com/z80netsim/z80netsim/netlist"
)

// buildFullStore wires up every net name Read requires, with simple
// anonymous ids, so tests exercise assembly logic without a real netlist.
func buildFullStore(t *testing.T) *netlist.Store {
	t.Helper()
	s := netlist.New(512, 1)
	id := netlist.NetID(3)
	bind := func(name string) netlist.NetID {
		if err := s.BindName(name, id); err != nil {
			t.Fatalf("BindName(%s): %v", name, err)
		}
		got := id
		id++
		return got
	}

	for _, rp := range registerPairs {
		for i := 0; i < 8; i++ {
			bind(fmt.Sprintf("%s%d", rp.hi, i))
			bind(fmt.Sprintf("%s%d", rp.lo, i))
		}
	}
	for i := 0; i < 16; i++ {
		bind(fmt.Sprintf("ab%d", i))
	}
	for i := 0; i < 8; i++ {
		bind(fmt.Sprintf("db%d", i))
	}
	for _, p := range controlPins {
		bind(p.net)
	}
	for i := 0; i < 6; i++ {
		bind(fmt.Sprintf("m%d", i+1))
		bind(fmt.Sprintf("t%d", i+1))
	}
	for i := 0; i < 8; i++ {
		bind(fmt.Sprintf("_instr%d", i))
	}

	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return s
}

func setByte(t *testing.T, s *netlist.Store, prefix string, v uint8) {
	t.Helper()
	for i := 0; i < 8; i++ {
		id, ok := s.IDOf(fmt.Sprintf("%s%d", prefix, i))
		if !ok {
			t.Fatalf("missing net %s%d", prefix, i)
		}
		s.SetNetStateRaw(id, (v>>uint(i))&1 != 0)
	}
}

func TestReadAssemblesRegisterPairHighLow(t *testing.T) {
	s := buildFullStore(t)
	setByte(t, s, "reg_h", 0x12)
	setByte(t, s, "reg_l", 0x34)

	snap, err := Read(s, 42, nil)
	if err != nil {
		t.Fatalf("Read: %v\n%s", err, spew.Sdump(snap))
	}
	if got, want := snap.Registers["hl"], uint16(0x1234); got != want {
		t.Errorf("hl = %#x, want %#x", got, want)
	}
	if snap.HCycle != 42 {
		t.Errorf("HCycle = %d, want 42", snap.HCycle)
	}
}

func TestReadAssemblesBusesAndInstr(t *testing.T) {
	s := buildFullStore(t)
	setByte(t, s, "_instr", 0xCD)
	for i := 0; i < 16; i++ {
		id, _ := s.IDOf(fmt.Sprintf("ab%d", i))
		s.SetNetStateRaw(id, (0xBEEF>>uint(i))&1 != 0)
	}

	snap, err := Read(s, 0, nil)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if snap.Instr != 0xCD {
		t.Errorf("Instr = %#x, want 0xCD", snap.Instr)
	}
	if snap.AB != 0xBEEF {
		t.Errorf("AB = %#x, want 0xBEEF", snap.AB)
	}
}

func TestReadFailsOnMissingNet(t *testing.T) {
	s := netlist.New(8, 1)
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	if _, err := Read(s, 0, nil); err == nil {
		t.Fatal("Read succeeded against an empty netlist, want error")
	}
}

func TestReadCarriesWarnings(t *testing.T) {
	s := buildFullStore(t)
	snap, err := Read(s, 0, []string{"recalc iteration cap (100) hit, dirty list size 3"})
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if len(snap.Warnings) != 1 {
		t.Fatalf("Warnings = %v, want 1 entry", snap.Warnings)
	}
}
