// Package resource loads the text and JSON resource files that populate a
// netlist.Store (node names, transistor/segment definitions, overrides,
// watch-list/tips/annotations/colors documents), and parses Intel-HEX
// program images into address/byte maps for a bus adapter's memory array.
package resource

import (
	"bufio"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"github.com/tebeka/atexit"

	"github.com/z80netsim/z80netsim/netlist"
)

// LoadError reports a fatal resource-load failure.
type LoadError struct {
	File   string
	Reason string
}

func (e LoadError) Error() string {
	return fmt.Sprintf("resource: %s: %s", e.File, e.Reason)
}

// Loader reads the netlist resource directory and populates a Store. It
// accumulates non-fatal warnings (duplicate names, duplicate net
// mappings) the way ClassApplog's warning counter does in the original.
type Loader struct {
	warnings []string
}

// Warnings returns and clears the warnings accumulated by the last Load
// call.
func (l *Loader) Warnings() []string {
	w := l.warnings
	l.warnings = nil
	return w
}

func (l *Loader) warn(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	slog.Warn(msg)
	l.warnings = append(l.warnings, msg)
}

// Load reads nodenames.txt, transdefs.txt and segdefs.txt (required) plus
// netnames.txt (optional override file) from dir, builds and finalizes a
// Store sized for maxNets/maxTransistors, and returns it. GND/VCC must
// resolve under the names "vss"/"vcc" or Load fails.
func (l *Loader) Load(dir string, maxNets, maxTransistors int) (*netlist.Store, error) {
	slog.Info("loading netlist resources", "dir", dir)
	s := netlist.New(maxNets, maxTransistors)

	if err := l.loadNodeNames(s, filepath.Join(dir, "nodenames.txt")); err != nil {
		return nil, err
	}
	// Optional custom override file; absence is not an error.
	if _, err := os.Stat(filepath.Join(dir, "netnames.txt")); err == nil {
		if err := l.loadOverrides(s, filepath.Join(dir, "netnames.txt")); err != nil {
			return nil, err
		}
	}

	if _, ok := s.IDOf("vss"); !ok {
		return nil, LoadError{File: "nodenames.txt", Reason: "GND (\"vss\") not resolved"}
	}
	if _, ok := s.IDOf("vcc"); !ok {
		return nil, LoadError{File: "nodenames.txt", Reason: "VCC (\"vcc\") not resolved"}
	}

	if err := l.loadTransdefs(s, filepath.Join(dir, "transdefs.txt")); err != nil {
		return nil, err
	}
	if err := l.loadSegdefs(s, filepath.Join(dir, "segdefs.txt")); err != nil {
		return nil, err
	}

	if err := s.Finalize(); err != nil {
		return nil, LoadError{File: dir, Reason: err.Error()}
	}
	slog.Info("completed loading netlist resources", "warnings", len(l.warnings))
	return s, nil
}

func openLines(file string) (*bufio.Scanner, *os.File, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, nil, err
	}
	return bufio.NewScanner(f), f, nil
}

// loadNodeNames parses "<name> : <uint>," lines. Duplicate
// names for the same net keep the last one; duplicate net ids for
// different names keep the last mapping and record a warning.
func (l *Loader) loadNodeNames(s *netlist.Store, file string) error {
	sc, f, err := openLines(file)
	if err != nil {
		return LoadError{File: file, Reason: err.Error()}
	}
	defer f.Close()

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		name, id, ok := parseNameLine(line)
		if !ok {
			return LoadError{File: file, Reason: fmt.Sprintf("malformed line %q", line)}
		}
		if s.NameOf(id) != "" {
			l.warn("duplicate name %q for net %d, was %q", name, id, s.NameOf(id))
		}
		if err := s.BindName(name, id); err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
	}
	if err := sc.Err(); err != nil {
		return LoadError{File: file, Reason: err.Error()}
	}
	return nil
}

// loadOverrides parses the same "name: uint," format plus "name: [n1,n2,…],"
// bus definitions.
func (l *Loader) loadOverrides(s *netlist.Store, file string) error {
	sc, f, err := openLines(file)
	if err != nil {
		return LoadError{File: file, Reason: err.Error()}
	}
	defer f.Close()

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "//") {
			continue
		}
		if idx := strings.Index(line, ":"); idx >= 0 {
			rhs := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[idx+1:]), ","))
			if strings.HasPrefix(rhs, "[") {
				name := strings.TrimSpace(line[:idx])
				members, err := parseBusList(rhs)
				if err != nil {
					return LoadError{File: file, Reason: err.Error()}
				}
				s.BindBus(name, members)
				continue
			}
		}
		name, id, ok := parseNameLine(line)
		if !ok {
			return LoadError{File: file, Reason: fmt.Sprintf("malformed line %q", line)}
		}
		if err := s.BindOverrideName(name, id); err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
	}
	if err := sc.Err(); err != nil {
		return LoadError{File: file, Reason: err.Error()}
	}
	return nil
}

func parseNameLine(line string) (string, netlist.NetID, bool) {
	idx := strings.Index(line, ":")
	if idx < 0 {
		return "", 0, false
	}
	name := strings.TrimSpace(line[:idx])
	rhs := strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(line[idx+1:]), ","))
	n, err := strconv.ParseUint(rhs, 10, 32)
	if err != nil || name == "" {
		return "", 0, false
	}
	return name, netlist.NetID(n), true
}

func parseBusList(rhs string) ([]netlist.NetID, error) {
	inner := strings.TrimSuffix(strings.TrimPrefix(rhs, "["), "]")
	parts := strings.Split(inner, ",")
	out := make([]netlist.NetID, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		n, err := strconv.ParseUint(p, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("malformed bus member %q", p)
		}
		out = append(out, netlist.NetID(n))
	}
	return out, nil
}

// loadTransdefs parses lines of the form
// [ "t_<digits>_" , gate, c1, c2, <11 more ignored fields> ],
func (l *Loader) loadTransdefs(s *netlist.Store, file string) error {
	sc, f, err := openLines(file)
	if err != nil {
		return LoadError{File: file, Reason: err.Error()}
	}
	defer f.Close()

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "[") {
			continue
		}
		fields, err := splitBracketFields(line)
		if err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
		if len(fields) != 14 {
			return LoadError{File: file, Reason: fmt.Sprintf("expected 14 fields, got %d: %q", len(fields), line)}
		}
		id, err := transistorIDFromIdent(fields[0])
		if err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
		gate, err := parseNetID(fields[1])
		if err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
		c1, err := parseNetID(fields[2])
		if err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
		c2, err := parseNetID(fields[3])
		if err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
		if err := s.AddTransistor(id, gate, c1, c2); err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
	}
	if err := sc.Err(); err != nil {
		return LoadError{File: file, Reason: err.Error()}
	}
	return nil
}

// loadSegdefs parses lines of the form [ netid, "<flags>", … ], marking
// pull-ups where the flags field contains '+'.
func (l *Loader) loadSegdefs(s *netlist.Store, file string) error {
	sc, f, err := openLines(file)
	if err != nil {
		return LoadError{File: file, Reason: err.Error()}
	}
	defer f.Close()

	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if !strings.HasPrefix(line, "[") {
			continue
		}
		fields, err := splitBracketFields(line)
		if err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
		if len(fields) < 2 {
			return LoadError{File: file, Reason: fmt.Sprintf("invalid line %q", line)}
		}
		id, err := parseNetID(fields[0])
		if err != nil {
			return LoadError{File: file, Reason: err.Error()}
		}
		if strings.Contains(fields[1], "+") {
			if err := s.SetHasPullup(id); err != nil {
				return LoadError{File: file, Reason: err.Error()}
			}
		}
	}
	if err := sc.Err(); err != nil {
		return LoadError{File: file, Reason: err.Error()}
	}
	return nil
}

func splitBracketFields(line string) ([]string, error) {
	inner := strings.TrimSpace(line)
	inner = strings.TrimPrefix(inner, "[")
	if idx := strings.LastIndex(inner, "]"); idx >= 0 {
		inner = inner[:idx]
	} else {
		return nil, fmt.Errorf("unterminated bracket list %q", line)
	}
	raw := strings.Split(inner, ",")
	out := make([]string, 0, len(raw))
	for _, f := range raw {
		out = append(out, strings.Trim(strings.TrimSpace(f), `"`))
	}
	return out, nil
}

// transistorIDFromIdent extracts the numeric transistor index from an
// identifier of the form "xx<digits>x" (characters 3..len-1).
func transistorIDFromIdent(ident string) (netlist.TransistorID, error) {
	if len(ident) < 4 {
		return 0, fmt.Errorf("transistor identifier %q too short", ident)
	}
	digits := ident[2 : len(ident)-1]
	n, err := strconv.ParseUint(digits, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("transistor identifier %q: %w", ident, err)
	}
	return netlist.TransistorID(n), nil
}

func parseNetID(field string) (netlist.NetID, error) {
	n, err := strconv.ParseUint(strings.TrimSpace(field), 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid net id %q: %w", field, err)
	}
	return netlist.NetID(n), nil
}

// SaveOverrides writes every overridden name and every bus back to file,
// in the naturally-sorted / alphabetical order the original's
// saveNetNames produces. No corpus or
// ecosystem library implements numeric-aware natural sort, so this uses
// stdlib sort with a custom Less (see DESIGN.md).
func SaveOverrides(s *netlist.Store, file string) error {
	names := s.OverriddenNames()
	sort.Slice(names, func(i, j int) bool { return naturalLess(names[i].Name, names[j].Name) })

	buses := s.Buses()
	busNames := make([]string, 0, len(buses))
	for b := range buses {
		busNames = append(busNames, b)
	}
	sort.Strings(busNames)

	f, err := os.Create(file)
	if err != nil {
		return err
	}
	defer f.Close()
	w := bufio.NewWriter(f)
	defer w.Flush()

	fmt.Fprintln(w, "// Custom net names and bus definitions. Modify by hand only when not running.")
	for _, n := range names {
		fmt.Fprintf(w, "%s: %d,\n", n.Name, n.ID)
	}
	fmt.Fprintln(w, "// Buses:")
	for _, b := range busNames {
		members := buses[b]
		parts := make([]string, len(members))
		for i, m := range members {
			parts[i] = strconv.Itoa(int(m))
		}
		fmt.Fprintf(w, "%s: [%s],\n", b, strings.Join(parts, ","))
	}
	return nil
}

// naturalLess orders strings the way QCollator's numeric mode does: equal
// non-digit runs compare literally, runs of digits compare by numeric
// value so "a9" sorts before "a10".
func naturalLess(a, b string) bool {
	i, j := 0, 0
	for i < len(a) && j < len(b) {
		ca, cb := a[i], b[j]
		if isDigit(ca) && isDigit(cb) {
			si, sj := i, j
			for i < len(a) && isDigit(a[i]) {
				i++
			}
			for j < len(b) && isDigit(b[j]) {
				j++
			}
			na := strings.TrimLeft(a[si:i], "0")
			nb := strings.TrimLeft(b[sj:j], "0")
			if len(na) != len(nb) {
				return len(na) < len(nb)
			}
			if na != nb {
				return na < nb
			}
			continue
		}
		if ca != cb {
			return ca < cb
		}
		i++
		j++
	}
	return len(a)-i < len(b)-j
}

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

// RegisterShutdownPersistence wires SaveOverrides into
// github.com/tebeka/atexit so it runs when the program exits through
// atexit.Exit (as cmd/z80netsim does at the end of main); a plain os.Exit
// skips it. JSON documents are registered separately through
// RegisterJSONPersistence.
func RegisterShutdownPersistence(s *netlist.Store, overridesFile string) {
	atexit.Register(func() {
		if err := SaveOverrides(s, overridesFile); err != nil {
			slog.Error("saving overrides failed", "error", err)
		}
	})
}

// JSONDocument is the shape shared by watchlist/tips/annotations/colors
// files: a single top-level array under a named key.
type JSONDocument struct {
	Key   string
	Items []json.RawMessage
}

// LoadJSONDocument reads a JSON document with a single top-level array
// keyed by key. Absence of the file is not an error.
func LoadJSONDocument(file, key string) (JSONDocument, error) {
	doc := JSONDocument{Key: key}
	data, err := os.ReadFile(file)
	if err != nil {
		if os.IsNotExist(err) {
			return doc, nil
		}
		return doc, LoadError{File: file, Reason: err.Error()}
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return doc, LoadError{File: file, Reason: err.Error()}
	}
	arr, ok := raw[key]
	if !ok {
		return doc, nil
	}
	var items []json.RawMessage
	if err := json.Unmarshal(arr, &items); err != nil {
		return doc, LoadError{File: file, Reason: err.Error()}
	}
	doc.Items = items
	return doc, nil
}

// SaveJSONDocument persists a document back in the same single-top-level-
// array shape.
func SaveJSONDocument(file string, doc JSONDocument) error {
	raw := map[string][]json.RawMessage{doc.Key: doc.Items}
	data, err := json.MarshalIndent(raw, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(file, data, 0o644)
}

// RegisterJSONPersistence registers an atexit hook saving doc (captured
// by reference via the getter) back to file.
func RegisterJSONPersistence(file string, getter func() JSONDocument) {
	atexit.Register(func() {
		if err := SaveJSONDocument(file, getter()); err != nil {
			slog.Error("saving JSON document failed", "file", file, "error", err)
		}
	})
}
