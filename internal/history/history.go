// Package history stores the per-step value history of every traced variable.
//
// Each variable is keyed by its scope-qualified name. A history always has one
// entry per step once padded: steps before the first observation hold the
// Unassigned marker and steps between observations repeat the last value.
package history

import "github.com/hyperifyio/steptrace/internal/scope"

// Unassigned marks steps before a variable was first observed.
const Unassigned = "unassigned"

// Trace is the exported history of a single variable.
type Trace struct {
	Name   string   `json:"var_name"`
	Scope  []string `json:"scope"`
	Values []string `json:"trace"`
}

// Store holds histories keyed by qualified name, remembering first-seen order.
type Store struct {
	values map[string][]string
	order  []string
}

// New returns an empty store.
func New() *Store {
	return &Store{values: make(map[string][]string)}
}

// Record appends value as the entry for step (1-based) of key. Missing steps
// are back-filled: with Unassigned for a new key, otherwise with the last
// recorded value. Recording the same step twice overwrites the entry.
func (s *Store) Record(step int, key, value string) {
	v, ok := s.values[key]
	if !ok {
		s.order = append(s.order, key)
	}
	v = fill(v, step-1)
	if len(v) >= step {
		v[step-1] = value
		v = v[:step]
	} else {
		v = append(v, value)
	}
	s.values[key] = v
}

// fill extends v to length n using the gap rule.
func fill(v []string, n int) []string {
	pad := Unassigned
	if len(v) > 0 {
		pad = v[len(v)-1]
	}
	for len(v) < n {
		v = append(v, pad)
	}
	return v
}

// Pad extends every history to total entries.
func (s *Store) Pad(total int) {
	for k, v := range s.values {
		s.values[k] = fill(v, total)
	}
}

// Len reports the number of distinct keys.
func (s *Store) Len() int { return len(s.order) }

// Export pads every history to total entries and returns the trace map.
func (s *Store) Export(total int) map[string]Trace {
	s.Pad(total)
	out := make(map[string]Trace, len(s.values))
	for _, k := range s.order {
		path, name := scope.Split(k)
		vals := make([]string, len(s.values[k]))
		copy(vals, s.values[k])
		out[k] = Trace{Name: name, Scope: path, Values: vals}
	}
	return out
}

// Reset drops every history.
func (s *Store) Reset() {
	s.values = make(map[string][]string)
	s.order = nil
}
