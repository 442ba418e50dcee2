package memory

import (
	"fmt"
	"sync"
)

// TypeDescriptor is the immutable compile-time description of a managed
// type: payload size, alignment, an optional finalizer, and whether values
// of the type hold owning references to other managed objects (needed by
// the escape and cycle checks). One descriptor is created per type and
// shared by all instances.
type TypeDescriptor struct {
	Name  string
	Size  int
	Align int

	// Finalizer is the destructor, run exactly once when the object is
	// reclaimed. Nil marks the type trivial: arenas release trivial
	// objects in one batch step without per-object work.
	Finalizer func(*Object)

	// OwnsRefs marks types whose payload contains owning references to
	// other managed objects.
	OwnsRefs bool

	// PoolSize, when non-zero, pre-creates a fixed-capacity pool for the
	// type at registration (the @pool_size decorator).
	PoolSize int
}

// Trivial reports whether the type needs no per-object teardown.
func (td *TypeDescriptor) Trivial() bool {
	return td.Finalizer == nil
}

// TypeRegistry holds registered type descriptors, keyed by name.
// Registration happens once per type; descriptors are immutable afterwards.
type TypeRegistry struct {
	mu    sync.RWMutex
	types map[string]*TypeDescriptor
}

// NewTypeRegistry creates an empty type registry.
func NewTypeRegistry() *TypeRegistry {
	return &TypeRegistry{
		types: make(map[string]*TypeDescriptor),
	}
}

// Register adds a type descriptor. Re-registering a name is an error:
// descriptors are created once at compile time and never replaced.
func (r *TypeRegistry) Register(td TypeDescriptor) (*TypeDescriptor, error) {
	if td.Name == "" {
		return nil, fmt.Errorf("type descriptor has no name")
	}
	if td.Size <= 0 {
		return nil, fmt.Errorf("type %s has non-positive size %d", td.Name, td.Size)
	}
	if td.Align <= 0 {
		td.Align = 8
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.types[td.Name]; ok {
		return nil, fmt.Errorf("type %s already registered", td.Name)
	}
	desc := td
	r.types[td.Name] = &desc
	return &desc, nil
}

// Lookup returns the descriptor for a name, or ErrUnknownType.
func (r *TypeRegistry) Lookup(name string) (*TypeDescriptor, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	td, ok := r.types[name]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownType, name)
	}
	return td, nil
}

// Count returns the number of registered types.
func (r *TypeRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.types)
}
