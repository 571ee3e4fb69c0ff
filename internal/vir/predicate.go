package vir

// Predicate is a named permission aggregate. Body is nil for abstract
// predicates, which can never be unfolded.
type Predicate struct {
	Name string
	Self LocalVar
	Body Expr
}

// SelfPlace is the place the body is written against.
func (p *Predicate) SelfPlace() Place {
	return NewPlace(p.Self)
}

// IsAbstract reports whether the predicate has no body.
func (p *Predicate) IsAbstract() bool {
	return p.Body == nil
}

// PredicateTable maps predicate names to declarations. It is built once per
// program and only read afterwards.
type PredicateTable map[string]*Predicate

// Lookup returns the declaration for name.
func (t PredicateTable) Lookup(name string) (*Predicate, bool) {
	p, ok := t[name]
	return p, ok
}

// Clone returns an independent copy. Expression trees are immutable and
// are shared.
func (t PredicateTable) Clone() PredicateTable {
	out := make(PredicateTable, len(t))
	for name, p := range t {
		cp := *p
		out[name] = &cp
	}
	return out
}
