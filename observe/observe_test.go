package observe

import (
	"testing"

	"github.com/z80netsim/z80netsim/netlist"
)

func buildStoreWithBus(t *testing.T) *netlist.Store {
	t.Helper()
	s := netlist.New(16, 4)
	if err := s.BindName("sig", 5); err != nil {
		t.Fatalf("BindName: %v", err)
	}
	if err := s.BindName("b0", 6); err != nil {
		t.Fatalf("BindName: %v", err)
	}
	if err := s.BindName("b1", 7); err != nil {
		t.Fatalf("BindName: %v", err)
	}
	s.BindBus("bus", []netlist.NetID{6, 7})
	if err := s.Finalize(); err != nil {
		t.Fatalf("Finalize: %v", err)
	}
	return s
}

func TestSingleNetWatchRoundTrip(t *testing.T) {
	s := buildStoreWithBus(t)
	r := NewRecorder(s, 8)
	idx, err := r.AddWatch("sig")
	if err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	s.SetNetStateRaw(5, true)
	r.SampleAll(0)
	s.SetNetStateRaw(5, false)
	r.SampleAll(1)

	if got, want := r.At(idx, 0), SampleHigh; got != want {
		t.Errorf("At(0) = %v, want %v", got, want)
	}
	if got, want := r.At(idx, 1), SampleLow; got != want {
		t.Errorf("At(1) = %v, want %v", got, want)
	}
}

func TestBusWatchAggregatesLSBFirst(t *testing.T) {
	s := buildStoreWithBus(t)
	r := NewRecorder(s, 8)
	idx, err := r.AddWatch("bus")
	if err != nil {
		t.Fatalf("AddWatch: %v", err)
	}
	s.SetNetStateRaw(6, true)  // b0 = LSB = 1
	s.SetNetStateRaw(7, false) // b1 = MSB = 0
	r.SampleAll(0)

	if got := r.At(idx, 0); got != SampleBus {
		t.Errorf("At() on a bus watch = %v, want SampleBus sentinel", got)
	}
	v, width := r.AtBus(idx, 0)
	if width != 2 {
		t.Fatalf("width = %d, want 2", width)
	}
	if v != 1 {
		t.Errorf("value = %d, want 1 (b0=1 is LSB)", v)
	}
}

func TestOutOfWindowIsInvalid(t *testing.T) {
	s := buildStoreWithBus(t)
	r := NewRecorder(s, 8)
	idx, _ := r.AddWatch("sig")
	r.SampleAll(0)
	if got := r.At(idx, 5); got != SampleInvalid {
		t.Errorf("At(5) before it's sampled = %v, want SampleInvalid", got)
	}
}

// TestRingBufferWrap checks ring-buffer wraparound bookkeeping:
// MAX_HISTORY=1024, after 1500 half-cycles, first_valid_hcycle=476,
// next_hcycle=1500, and at(w,475)==invalid while at(w,476) is recorded.
func TestRingBufferWrap(t *testing.T) {
	s := buildStoreWithBus(t)
	r := NewRecorder(s, 1024)
	idx, _ := r.AddWatch("sig")
	for h := uint64(0); h < 1500; h++ {
		r.SampleAll(h)
	}
	if got, want := r.FirstValidHCycle(), uint64(476); got != want {
		t.Errorf("FirstValidHCycle() = %d, want %d", got, want)
	}
	if got, want := r.NextHCycle(), uint64(1500); got != want {
		t.Errorf("NextHCycle() = %d, want %d", got, want)
	}
	if got := r.At(idx, 475); got != SampleInvalid {
		t.Errorf("At(475) = %v, want SampleInvalid", got)
	}
	if got := r.At(idx, 476); got == SampleInvalid {
		t.Errorf("At(476) = %v, want a recorded value", got)
	}
}

func TestResetClearsHistory(t *testing.T) {
	s := buildStoreWithBus(t)
	r := NewRecorder(s, 8)
	idx, _ := r.AddWatch("sig")
	r.SampleAll(0)
	r.Reset()
	if got := r.At(idx, 0); got != SampleInvalid {
		t.Errorf("At(0) after reset = %v, want SampleInvalid", got)
	}
	if r.FirstValidHCycle() != 0 || r.NextHCycle() != 0 {
		t.Errorf("ring bounds not reset: first=%d next=%d", r.FirstValidHCycle(), r.NextHCycle())
	}
}

func TestDisabledWatchRecordsInvalid(t *testing.T) {
	s := buildStoreWithBus(t)
	r := NewRecorder(s, 8)
	idx, _ := r.AddWatch("sig")
	r.Enable(idx, false)
	s.SetNetStateRaw(5, true)
	r.SampleAll(0)
	if got := r.At(idx, 0); got != SampleInvalid {
		t.Errorf("At(0) on disabled watch = %v, want SampleInvalid", got)
	}
}
