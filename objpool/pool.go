// Package objpool implements a handle-indexed object pool.
//
// A Pool owns a growable slice of values of one type and hands out opaque
// Handles instead of pointers. Graphs built from the pool express edges as
// Handle pairs rather than owning references, which is how this module
// represents the cyclic node/net graphs in package netlist and par without
// reference cycles or a garbage-collector-defeating arena.
package objpool

// Handle identifies a value stored in a Pool. Handles are comparable and
// remain valid for the lifetime of the Pool that produced them; insertions
// never invalidate a previously returned Handle.
type Handle int

// Pool is a handle-indexed container for values of type T. The zero value
// is not usable; construct one with New. Pool is not safe for concurrent
// use, matching the single-threaded design of the PAR core (spec.md §5).
type Pool[T any] struct {
	values []T
}

// New creates an empty Pool.
func New[T any]() *Pool[T] {
	return &Pool[T]{}
}

// Insert stores v and returns a Handle that can be used to retrieve it.
func (p *Pool[T]) Insert(v T) Handle {
	p.values = append(p.values, v)
	return Handle(len(p.values) - 1)
}

// Get returns a pointer to the value identified by h. Lookup is total for
// any Handle previously returned by Insert on this Pool.
func (p *Pool[T]) Get(h Handle) *T {
	return &p.values[h]
}

// Len returns the number of live values in the pool.
func (p *Pool[T]) Len() int {
	return len(p.values)
}

// Handles returns every live handle in insertion order. Order is stable
// within a run, which the PAR core relies on for deterministic traversal
// (spec.md §4.2 "Determinism requirement").
func (p *Pool[T]) Handles() []Handle {
	hs := make([]Handle, len(p.values))
	for i := range p.values {
		hs[i] = Handle(i)
	}
	return hs
}

// Each calls fn once for every live handle, in insertion order.
func (p *Pool[T]) Each(fn func(Handle, *T)) {
	for i := range p.values {
		fn(Handle(i), &p.values[i])
	}
}
