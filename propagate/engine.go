// Package propagate implements the switch-level fixpoint algorithm: given a
// set of dirty nets, find each one's conducting group, resolve the group's
// new logic value, and iterate until no net changes (or an oscillating
// feedback loop is detected).
package propagate

import (
	"fmt"

	"github.com/z80netsim/z80netsim/netlist"
)

// defaultMaxIterations guards against pathological (non-well-formed)
// netlists that never reach a fixpoint. Well-formed netlists never hit it.
const defaultMaxIterations = 100

// Result reports how a single Recalc call converged.
type Result struct {
	Iterations int  // number of passes over the dirty list
	CapHit     bool // true if the iteration cap stopped the loop early
}

// Engine runs the recalc loop against a netlist.Store. It keeps reusable
// scratch buffers (generation-stamped membership sets rather than maps) so
// repeated half-cycles don't allocate.
type Engine struct {
	store         *netlist.Store
	maxIterations int

	warnings []string

	groupSeenGen []uint32
	groupSeenCur uint32
	groupBuf     []netlist.NetID

	nextSeenGen []uint32
	nextSeenCur uint32
	nextBuf     []netlist.NetID
}

// New creates an Engine bound to store, with the default ~100 iteration cap.
func New(store *netlist.Store) *Engine {
	n := store.MaxNets()
	return &Engine{
		store:         store,
		maxIterations: defaultMaxIterations,
		groupSeenGen:  make([]uint32, n),
		nextSeenGen:   make([]uint32, n),
	}
}

// SetMaxIterations overrides the default iteration cap (test hook; the
// recommended ~100 is otherwise unreachable on well-formed netlists).
func (e *Engine) SetMaxIterations(n int) { e.maxIterations = n }

// Warnings returns and clears accumulated recalc-cap warnings.
func (e *Engine) Warnings() []string {
	w := e.warnings
	e.warnings = nil
	return w
}

// Recalc runs the fixpoint loop seeded with dirty.
func (e *Engine) Recalc(dirty []netlist.NetID) Result {
	list := e.dedupInitial(dirty)
	res := Result{}
	for len(list) > 0 {
		res.Iterations++
		if res.Iterations > e.maxIterations {
			res.CapHit = true
			e.warnings = append(e.warnings, fmt.Sprintf("recalc iteration cap (%d) hit, dirty list size %d", e.maxIterations, len(list)))
			break
		}

		e.nextSeenCur++
		e.nextBuf = e.nextBuf[:0]
		delta := 0

		for _, n := range list {
			if n == netlist.GND || n == netlist.VCC {
				continue
			}
			group := e.group(n)
			v := e.resolve(group)
			for _, m := range group {
				if m == netlist.GND || m == netlist.VCC {
					continue
				}
				if e.store.NetState(m) == v {
					continue
				}
				e.store.SetNetStateRaw(m, v)
				// Ids are offset by one so that transistor 0 also moves delta.
				for _, t := range e.store.Gates(m) {
					if v {
						if !e.store.TransistorOn(t) {
							e.store.SetTransistorOn(t, true)
							delta += int(t) + 1
							e.addNext(e.store.C1(t))
						}
					} else {
						if e.store.TransistorOn(t) {
							e.store.SetTransistorOn(t, false)
							delta -= int(t) + 1
							e.addNext(e.store.C1(t))
							e.addNext(e.store.C2(t))
						}
					}
				}
			}
		}

		if len(e.nextBuf) == 0 {
			break
		}
		if delta == 0 {
			// Same transistors flipped on as flipped off (or none did):
			// a latched equilibrium. Conservative fixpoint detector.
			break
		}
		list = e.nextBuf
	}
	return res
}

// group returns (a reused buffer holding) the set of nets reachable from n
// through currently-on transistor channels. GND/VCC are absorbing: they
// may be members but traversal never continues past them.
func (e *Engine) group(n netlist.NetID) []netlist.NetID {
	e.groupSeenCur++
	gen := e.groupSeenCur
	e.groupBuf = e.groupBuf[:0]
	e.addToGroup(n, gen)
	for i := 0; i < len(e.groupBuf); i++ {
		m := e.groupBuf[i]
		if m == netlist.GND || m == netlist.VCC {
			continue
		}
		for _, t := range e.store.Channels(m) {
			if !e.store.TransistorOn(t) {
				continue
			}
			other := e.store.C2(t)
			if other == m {
				other = e.store.C1(t)
			}
			e.addToGroup(other, gen)
		}
	}
	return e.groupBuf
}

func (e *Engine) addToGroup(n netlist.NetID, gen uint32) {
	if e.groupSeenGen[n] == gen {
		return
	}
	e.groupSeenGen[n] = gen
	e.groupBuf = append(e.groupBuf, n)
}

func (e *Engine) addNext(n netlist.NetID) {
	if n == netlist.GND || n == netlist.VCC {
		return
	}
	if e.nextSeenGen[n] == e.nextSeenCur {
		return
	}
	e.nextSeenGen[n] = e.nextSeenCur
	e.nextBuf = append(e.nextBuf, n)
}

func (e *Engine) dedupInitial(dirty []netlist.NetID) []netlist.NetID {
	e.nextSeenCur++
	gen := e.nextSeenCur
	out := make([]netlist.NetID, 0, len(dirty))
	for _, n := range dirty {
		if n == netlist.GND || n == netlist.VCC {
			continue
		}
		if e.nextSeenGen[n] == gen {
			continue
		}
		e.nextSeenGen[n] = gen
		out = append(out, n)
	}
	return out
}

// resolve picks the new logic value for a group: GND beats VCC beats a
// pulled-high member beats a pulled-low member beats a pullup, and among
// floating groups the largest member wins, ties broken by lowest net id.
func (e *Engine) resolve(group []netlist.NetID) bool {
	for _, n := range group {
		if n == netlist.GND {
			return false
		}
	}
	for _, n := range group {
		if n == netlist.VCC {
			return true
		}
	}
	for _, n := range group {
		if e.store.PulledHigh(n) {
			return true
		}
	}
	for _, n := range group {
		if e.store.PulledLow(n) {
			return false
		}
	}
	for _, n := range group {
		if e.store.HasPullup(n) {
			return true
		}
	}
	maxDeg := -1
	var winner netlist.NetID
	for _, n := range group {
		d := e.store.Degree(n)
		if d > maxDeg || (d == maxDeg && n < winner) {
			maxDeg = d
			winner = n
		}
	}
	return e.store.NetState(winner)
}
