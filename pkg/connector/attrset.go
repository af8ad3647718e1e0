package connector

// AttrSet accumulates native attributes keyed by name, preserving first
// insertion order so that assembling the same inputs twice yields
// byte-equal output. Merging unions value sets without duplicates instead
// of mutating shared slices.
type AttrSet struct {
	order  []string
	byName map[string]Attr
}

// NewAttrSet creates an empty attribute set.
func NewAttrSet() *AttrSet {
	return &AttrSet{byName: make(map[string]Attr)}
}

// Get returns the attribute with the given name.
func (s *AttrSet) Get(name string) (Attr, bool) {
	a, ok := s.byName[name]
	return a, ok
}

// Merge adds values under the given name. If the name is already present
// the value sets are unioned, preserving the order values were first seen
// and dropping duplicates.
func (s *AttrSet) Merge(name string, values []string) {
	existing, ok := s.byName[name]
	if !ok {
		s.order = append(s.order, name)
		s.byName[name] = Attr{Name: name, Values: append([]string(nil), values...)}
		return
	}
	seen := make(map[string]struct{}, len(existing.Values))
	for _, v := range existing.Values {
		seen[v] = struct{}{}
	}
	merged := append([]string(nil), existing.Values...)
	for _, v := range values {
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		merged = append(merged, v)
	}
	s.byName[name] = Attr{Name: name, Values: merged}
}

// Set replaces the values under the given name, keeping its position if
// already present.
func (s *AttrSet) Set(name string, values []string) {
	if _, ok := s.byName[name]; !ok {
		s.order = append(s.order, name)
	}
	s.byName[name] = Attr{Name: name, Values: append([]string(nil), values...)}
}

// Remove deletes the attribute with the given name.
func (s *AttrSet) Remove(name string) {
	if _, ok := s.byName[name]; !ok {
		return
	}
	delete(s.byName, name)
	for i, n := range s.order {
		if n == name {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}
}

// List returns the attributes in insertion order.
func (s *AttrSet) List() []Attr {
	out := make([]Attr, 0, len(s.order))
	for _, name := range s.order {
		out = append(out, s.byName[name])
	}
	return out
}

// Len returns the number of attributes.
func (s *AttrSet) Len() int {
	return len(s.order)
}
