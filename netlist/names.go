package netlist

import "fmt"

// DuplicateNameError reports a name-op precondition violation: the name
// is already bound to a net.
type DuplicateNameError struct {
	Name string
}

func (e DuplicateNameError) Error() string {
	return fmt.Sprintf("name %q already bound", e.Name)
}

// AnonymousNetError reports a rename/delete attempted on a net that has
// no name bound.
type AnonymousNetError struct {
	Net NetID
}

func (e AnonymousNetError) Error() string {
	return fmt.Sprintf("net %d has no bound name", e.Net)
}

// NameOf returns the name bound to a net, or "" if none.
func (s *Store) NameOf(id NetID) string {
	if int(id) < 0 || int(id) >= len(s.nameOf) {
		return ""
	}
	return s.nameOf[id]
}

// IDOf resolves a name to its net id. ok is false if the name is unbound
// or names a bus.
func (s *Store) IDOf(name string) (NetID, bool) {
	id, ok := s.idOf[name]
	if !ok || id == Invalid {
		return Invalid, false
	}
	return id, true
}

// Bus resolves a bus name to its ordered member net ids.
func (s *Store) Bus(name string) ([]NetID, bool) {
	ids, ok := s.bus[name]
	return ids, ok
}

// BindName installs name -> id without marking it as overridden. Used by
// the node-name loader where later duplicate net ids win and
// duplicate names for the same net keep the last one.
func (s *Store) BindName(name string, id NetID) error {
	if err := s.checkNet(id); err != nil {
		return err
	}
	s.idOf[name] = id
	s.nameOf[id] = name
	return nil
}

// BindOverrideName installs name -> id and marks it overridden, as used by
// the override-file loader. Like BindName it silently replaces any name
// already bound to the net: callers load node names first, then
// overrides, so the override wins.
func (s *Store) BindOverrideName(name string, id NetID) error {
	if err := s.BindName(name, id); err != nil {
		return err
	}
	s.overridden[id] = true
	return nil
}

// BindBus installs a bus name -> ordered member list. Buses never appear
// in idOf.
func (s *Store) BindBus(name string, members []NetID) {
	cp := make([]NetID, len(members))
	copy(cp, members)
	s.bus[name] = cp
}

// Overridden reports whether a net's name originated from the override
// file (and must therefore be persisted back to it on shutdown).
func (s *Store) Overridden(id NetID) bool {
	if int(id) < 0 || int(id) >= len(s.overridden) {
		return false
	}
	return s.overridden[id]
}

// SetName implements the name-op "set": installs a brand-new name for a
// currently anonymous net. Fails if the name is already bound or the net
// already has a name.
func (s *Store) SetName(name string, id NetID) error {
	if err := s.checkNet(id); err != nil {
		return err
	}
	if _, exists := s.idOf[name]; exists {
		return DuplicateNameError{Name: name}
	}
	if s.nameOf[id] != "" {
		return fmt.Errorf("netlist: net %d already named %q", id, s.nameOf[id])
	}
	s.idOf[name] = id
	s.nameOf[id] = name
	s.overridden[id] = true
	return nil
}

// Rename implements the name-op "rename": replaces an existing name with
// a new one. Fails if the new name is already bound or the net has no
// existing name.
func (s *Store) Rename(newName string, id NetID) error {
	if err := s.checkNet(id); err != nil {
		return err
	}
	if _, exists := s.idOf[newName]; exists {
		return DuplicateNameError{Name: newName}
	}
	old := s.nameOf[id]
	if old == "" {
		return AnonymousNetError{Net: id}
	}
	delete(s.idOf, old)
	s.idOf[newName] = id
	s.nameOf[id] = newName
	s.overridden[id] = true
	return nil
}

// Delete implements the name-op "delete": removes a net's name and clears
// its override flag. Fails if the net has no existing name.
func (s *Store) Delete(id NetID) error {
	if err := s.checkNet(id); err != nil {
		return err
	}
	old := s.nameOf[id]
	if old == "" {
		return AnonymousNetError{Net: id}
	}
	delete(s.idOf, old)
	s.nameOf[id] = ""
	s.overridden[id] = false
	return nil
}

// OverriddenNames returns every (name, id) pair whose name is marked
// overridden, for persistence back to the override file on shutdown.
// Order is unspecified; callers sort as needed.
func (s *Store) OverriddenNames() []NamedNet {
	var out []NamedNet
	for id, ov := range s.overridden {
		if ov && s.nameOf[id] != "" {
			out = append(out, NamedNet{Name: s.nameOf[id], ID: NetID(id)})
		}
	}
	return out
}

// Buses returns every defined bus name and its member list, for
// persistence back to the override file on shutdown.
func (s *Store) Buses() map[string][]NetID {
	out := make(map[string][]NetID, len(s.bus))
	for k, v := range s.bus {
		cp := make([]NetID, len(v))
		copy(cp, v)
		out[k] = cp
	}
	return out
}

// NamedNet pairs a bound name with its net id.
type NamedNet struct {
	Name string
	ID   NetID
}
