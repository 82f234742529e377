// Package scope implements the single flat table of local variables shared
// by a whole compilation. Entries are never removed or shadowed.
package scope

// SlotSize is the distance between two consecutive variable offsets.
const SlotSize = 8

type Var struct {
	Name   string
	Offset int
}

type Scope struct {
	vars      []*Var
	byName    map[string]*Var
	maxOffset int
}

func New() *Scope {
	return &Scope{byName: make(map[string]*Var)}
}

// Lookup finds a variable by its exact name.
func (s *Scope) Lookup(name string) (*Var, bool) {
	v, ok := s.byName[name]
	return v, ok
}

// Resolve returns the variable for name, allocating it at the next free
// offset when it has not been seen before. created reports the allocation.
func (s *Scope) Resolve(name string) (v *Var, created bool) {
	if v, ok := s.byName[name]; ok {
		return v, false
	}
	s.maxOffset += SlotSize
	v = &Var{Name: name, Offset: s.maxOffset}
	s.vars = append(s.vars, v)
	s.byName[name] = v
	return v, true
}

// FrameSize is the largest offset handed out so far.
func (s *Scope) FrameSize() int { return s.maxOffset }

// Vars lists the variables in first-sighted order.
func (s *Scope) Vars() []Var {
	out := make([]Var, len(s.vars))
	for i, v := range s.vars {
		out[i] = *v
	}
	return out
}
