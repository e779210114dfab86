// Package netlist defines the switch-level netlist data model: nets and
// transistors held in a cache-friendly Structure-of-Arrays layout, plus the
// name tables that map human-readable pad/signal names onto net ids.
//
// The store owns every array; every other package in this module holds only
// integer NetID/TransistorID indices into it, never pointers, so there are
// no lifetime concerns once a netlist has been loaded.
package netlist

import "fmt"

// NetID indexes a net in a Store. The zero value is never a valid net.
type NetID int32

// TransistorID indexes a transistor in a Store.
type TransistorID int32

const (
	// Invalid is the sentinel "no net" id. Net id 0 is never assigned.
	Invalid NetID = 0
	// GND is the ground rail. Its state is always low and it is never recalculated.
	GND NetID = 1
	// VCC is the power rail. Its state is always high and it is never recalculated.
	VCC NetID = 2
)

// Store holds the full netlist: nets, transistors, and the name tables.
// It is built once by the resource loader via AddTransistor/SetHasPullup/
// BindName and then sealed with Finalize, after which Gates/Channels return
// flattened, read-only adjacency views. Simulation mutates only net state
// and transistor on/off after that point.
type Store struct {
	maxNets         int
	maxTransistors  int
	transistorCount int

	// Per-net state, dense array indexed by NetID.
	state      []bool
	pulledHigh []bool
	pulledLow  []bool
	hasPullup  []bool

	// Per-net adjacency, built as staging slices during load and packed
	// into two flat pools by Finalize.
	stagingGates []([]TransistorID)
	stagingChans []([]TransistorID)
	gatesPool    []TransistorID
	gatesOff     []int32
	gatesLen     []int32
	chansPool    []TransistorID
	chansOff     []int32
	chansLen     []int32
	sealed       bool

	// Per-transistor state, dense arrays indexed by TransistorID.
	transGate []NetID
	transC1   []NetID
	transC2   []NetID
	transOn   []bool

	// Name tables.
	nameOf     []string
	idOf       map[string]NetID
	bus        map[string][]NetID
	overridden []bool
}

// New allocates a Store sized for maxNets nets (ids in [0,maxNets)) and
// maxTransistors transistors (ids in [0,maxTransistors)).
func New(maxNets, maxTransistors int) *Store {
	s := &Store{
		maxNets:        maxNets,
		maxTransistors: maxTransistors,

		state:      make([]bool, maxNets),
		pulledHigh: make([]bool, maxNets),
		pulledLow:  make([]bool, maxNets),
		hasPullup:  make([]bool, maxNets),

		stagingGates: make([][]TransistorID, maxNets),
		stagingChans: make([][]TransistorID, maxNets),

		transGate: make([]NetID, maxTransistors),
		transC1:   make([]NetID, maxTransistors),
		transC2:   make([]NetID, maxTransistors),
		transOn:   make([]bool, maxTransistors),

		nameOf:     make([]string, maxNets),
		idOf:       make(map[string]NetID, maxNets),
		bus:        make(map[string][]NetID),
		overridden: make([]bool, maxNets),
	}
	// GND/VCC never float and never get recalculated; fix their terminal
	// states up front so simulation can rely on the invariant immediately.
	s.state[GND] = false
	s.state[VCC] = true
	return s
}

// MaxNets returns the capacity the store was built with.
func (s *Store) MaxNets() int { return s.maxNets }

// MaxTransistors returns the capacity the store was built with.
func (s *Store) MaxTransistors() int { return s.maxTransistors }

// TransistorCount returns how many transistors have been added so far.
func (s *Store) TransistorCount() int { return s.transistorCount }

func (s *Store) checkNet(id NetID) error {
	if id <= Invalid || int(id) >= s.maxNets {
		return fmt.Errorf("netlist: net id %d out of range [1,%d)", id, s.maxNets)
	}
	return nil
}

func (s *Store) checkTransistor(id TransistorID) error {
	if id < 0 || int(id) >= s.maxTransistors {
		return fmt.Errorf("netlist: transistor id %d out of range [0,%d)", id, s.maxTransistors)
	}
	return nil
}

// AddTransistor records a transistor's gate/c1/c2 net ids and wires it into
// the gate/channel adjacency of those nets. If either terminal is GND or
// VCC it is normalized into c2, so c1 is always the "other" net for
// pull-up/pull-down transistors.
//
// Must be called before Finalize.
func (s *Store) AddTransistor(id TransistorID, gate, c1, c2 NetID) error {
	if s.sealed {
		return fmt.Errorf("netlist: AddTransistor(%d) called after Finalize", id)
	}
	if err := s.checkTransistor(id); err != nil {
		return err
	}
	if err := s.checkNet(gate); err != nil {
		return fmt.Errorf("netlist: transistor %d gate: %w", id, err)
	}
	if err := s.checkNet(c1); err != nil {
		return fmt.Errorf("netlist: transistor %d c1: %w", id, err)
	}
	if err := s.checkNet(c2); err != nil {
		return fmt.Errorf("netlist: transistor %d c2: %w", id, err)
	}
	if c1 == GND || c1 == VCC {
		c1, c2 = c2, c1
	}
	s.transGate[id] = gate
	s.transC1[id] = c1
	s.transC2[id] = c2
	s.stagingGates[gate] = append(s.stagingGates[gate], id)
	s.stagingChans[c1] = append(s.stagingChans[c1], id)
	s.stagingChans[c2] = append(s.stagingChans[c2], id)
	if int(id)+1 > s.transistorCount {
		s.transistorCount = int(id) + 1
	}
	return nil
}

// SetHasPullup marks a net as permanently pulled high (a depletion-mode
// load transistor in the original silicon).
func (s *Store) SetHasPullup(id NetID) error {
	if err := s.checkNet(id); err != nil {
		return err
	}
	s.hasPullup[id] = true
	return nil
}

// Finalize packs the staged per-net adjacency lists into two shared,
// offset-indexed pools and prevents further structural mutation. Must be
// called exactly once, after all transistors have been added.
func (s *Store) Finalize() error {
	if s.sealed {
		return fmt.Errorf("netlist: Finalize called twice")
	}
	s.gatesOff = make([]int32, s.maxNets)
	s.gatesLen = make([]int32, s.maxNets)
	s.chansOff = make([]int32, s.maxNets)
	s.chansLen = make([]int32, s.maxNets)

	gatesTotal, chansTotal := 0, 0
	for n := 0; n < s.maxNets; n++ {
		gatesTotal += len(s.stagingGates[n])
		chansTotal += len(s.stagingChans[n])
	}
	s.gatesPool = make([]TransistorID, 0, gatesTotal)
	s.chansPool = make([]TransistorID, 0, chansTotal)

	for n := 0; n < s.maxNets; n++ {
		s.gatesOff[n] = int32(len(s.gatesPool))
		s.gatesLen[n] = int32(len(s.stagingGates[n]))
		s.gatesPool = append(s.gatesPool, s.stagingGates[n]...)

		s.chansOff[n] = int32(len(s.chansPool))
		s.chansLen[n] = int32(len(s.stagingChans[n]))
		s.chansPool = append(s.chansPool, s.stagingChans[n]...)
	}
	s.stagingGates = nil
	s.stagingChans = nil
	s.sealed = true
	return nil
}

// Gates returns the read-only list of transistor ids whose gate is net id.
func (s *Store) Gates(id NetID) []TransistorID {
	if !s.sealed {
		if int(id) < len(s.stagingGates) {
			return s.stagingGates[id]
		}
		return nil
	}
	off, ln := s.gatesOff[id], s.gatesLen[id]
	return s.gatesPool[off : off+ln]
}

// Channels returns the read-only list of transistor ids for which id is a
// c1 or c2 terminal.
func (s *Store) Channels(id NetID) []TransistorID {
	if !s.sealed {
		if int(id) < len(s.stagingChans) {
			return s.stagingChans[id]
		}
		return nil
	}
	off, ln := s.chansOff[id], s.chansLen[id]
	return s.chansPool[off : off+ln]
}

// Degree returns len(gates)+len(channels) for id, used by value resolution
// to break ties among floating nets.
func (s *Store) Degree(id NetID) int {
	return len(s.Gates(id)) + len(s.Channels(id))
}

// NetState returns the current logic level of a net. GND is always false,
// VCC is always true.
func (s *Store) NetState(id NetID) bool { return s.state[id] }

// SetNetStateRaw assigns a net's logic level directly, bypassing
// propagation. Used only by the recalc loop (propagate package) and by
// Reset; never by callers driving an input pin (see SetNetPull).
func (s *Store) SetNetStateRaw(id NetID, v bool) { s.state[id] = v }

// PulledHigh reports whether a one-shot high drive is currently applied to
// the net (set via SetNetPull).
func (s *Store) PulledHigh(id NetID) bool { return s.pulledHigh[id] }

// PulledLow reports whether a one-shot low drive is currently applied.
func (s *Store) PulledLow(id NetID) bool { return s.pulledLow[id] }

// HasPullup reports whether the net carries a permanent pull-up.
func (s *Store) HasPullup(id NetID) bool { return s.hasPullup[id] }

// SetNetPull drives an input net high or low. This does not assign state
// directly: it is a one-shot drive that participates in value resolution
// the next time the net's group is recalculated. The drive persists (it
// is not cleared automatically) until a later call changes it, matching
// a pin being continuously held by its driver.
func (s *Store) SetNetPull(id NetID, high bool) error {
	if err := s.checkNet(id); err != nil {
		return err
	}
	s.pulledHigh[id] = high
	s.pulledLow[id] = !high
	return nil
}

// TransistorOn reports whether a transistor currently conducts.
func (s *Store) TransistorOn(id TransistorID) bool { return s.transOn[id] }

// SetTransistorOn is used only by the propagation engine to flip a
// transistor's on/off state as a function of its gate net.
func (s *Store) SetTransistorOn(id TransistorID, on bool) { s.transOn[id] = on }

// Gate returns the gate net id of a transistor.
func (s *Store) Gate(id TransistorID) NetID { return s.transGate[id] }

// C1 returns the "other" terminal net id (never GND/VCC unless both
// terminals are GND/VCC, which does not occur in a well-formed netlist).
func (s *Store) C1(id TransistorID) NetID { return s.transC1[id] }

// C2 returns the terminal net id that carries GND/VCC after normalization,
// if either terminal did.
func (s *Store) C2(id TransistorID) NetID { return s.transC2[id] }

// ResetTransistors forces every transistor off, used at the start of a
// reset sequence.
func (s *Store) ResetTransistors() {
	for i := range s.transOn {
		s.transOn[i] = false
	}
}

// AllNets returns every net id that participates in the netlist (has at
// least one gate or channel connection), excluding GND/VCC. Used to seed
// an all-nets recalc at reset.
func (s *Store) AllNets() []NetID {
	var out []NetID
	for n := 1; n < s.maxNets; n++ {
		id := NetID(n)
		if id == GND || id == VCC {
			continue
		}
		if len(s.Gates(id)) == 0 && len(s.Channels(id)) == 0 {
			continue
		}
		out = append(out, id)
	}
	return out
}
