package memory

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Scope hierarchy
//
// A Scope is one function activation or lexical block. It owns zero or one
// arena and the set of automatic-tier objects registered for scope-exit
// release. Manual and pooled objects are owner-tracked independently and
// never belong to a scope.
//
// Scope hierarchy:
//   root (depth 0)
//     └── function scope (depth 1)
//           └── block scope (depth 2)
//
// Closing a scope releases its automatic objects in reverse registration
// order and closes its arena (which closes child arenas first). Codegen
// brackets every function/block with Open/Close on all exit paths,
// including exceptional ones.

var nextScopeID uint64

// Scope is a lexical/function-activation record.
type Scope struct {
	ID     uint64
	Depth  int
	Parent *Scope

	arena  *Arena
	autos  []*Object
	closed bool
}

// Arena returns the scope's arena, nil if none was opened.
func (s *Scope) Arena() *Arena {
	return s.arena
}

// AutoCount returns the number of automatic registrations in the scope.
func (s *Scope) AutoCount() int {
	return len(s.autos)
}

// Closed reports whether the scope has exited.
func (s *Scope) Closed() bool {
	return s.closed
}

// ScopeContext manages the scope stack. One context per task: scopes are
// not shared across concurrent tasks.
type ScopeContext struct {
	arenas *ArenaContext

	mu      sync.Mutex
	root    *Scope
	current *Scope
	scopes  map[uint64]*Scope

	released int64 // atomic, automatic objects released at scope exit
}

// NewScopeContext creates a scope stack with an open root scope.
func NewScopeContext(arenas *ArenaContext) *ScopeContext {
	root := &Scope{ID: atomic.AddUint64(&nextScopeID, 1)}
	return &ScopeContext{
		arenas:  arenas,
		root:    root,
		current: root,
		scopes:  map[uint64]*Scope{root.ID: root},
	}
}

// Open enters a new scope nested in the current one.
func (ctx *ScopeContext) Open() *Scope {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()

	s := &Scope{
		ID:     atomic.AddUint64(&nextScopeID, 1),
		Depth:  ctx.current.Depth + 1,
		Parent: ctx.current,
	}
	ctx.scopes[s.ID] = s
	ctx.current = s
	return s
}

// Close exits the current scope: automatic objects are released in reverse
// registration order, then the scope's arena (if any) is closed. The root
// scope cannot be closed.
func (ctx *ScopeContext) Close() error {
	ctx.mu.Lock()
	s := ctx.current
	if s == ctx.root {
		ctx.mu.Unlock()
		return fmt.Errorf("%w: cannot close root scope", ErrScopeMismatch)
	}
	ctx.current = s.Parent
	delete(ctx.scopes, s.ID)
	ctx.mu.Unlock()

	s.closed = true
	for i := len(s.autos) - 1; i >= 0; i-- {
		if s.autos[i].finalize() {
			atomic.AddInt64(&ctx.released, 1)
		}
	}
	s.autos = nil

	if s.arena != nil && !s.arena.closed {
		return ctx.arenas.Close(s.arena)
	}
	return nil
}

// Current returns the innermost open scope.
func (ctx *ScopeContext) Current() *Scope {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	return ctx.current
}

// Lookup returns an open scope by ID.
func (ctx *ScopeContext) Lookup(id uint64) (*Scope, bool) {
	ctx.mu.Lock()
	defer ctx.mu.Unlock()
	s, ok := ctx.scopes[id]
	return s, ok
}

// EnsureArena returns the scope's arena, opening one on first use. The new
// arena is a child of the nearest enclosing scope's arena, so closing an
// outer scope tears down inner arenas in reverse creation order.
func (ctx *ScopeContext) EnsureArena(s *Scope) *Arena {
	if s.arena != nil {
		return s.arena
	}
	var parent *Arena
	for anc := s.Parent; anc != nil; anc = anc.Parent {
		if anc.arena != nil {
			parent = anc.arena
			break
		}
	}
	s.arena = ctx.arenas.Open(s.ID, parent)
	return s.arena
}

// registerAuto adds an automatic-tier object for release at scope exit.
func (s *Scope) registerAuto(obj *Object) {
	s.autos = append(s.autos, obj)
}

// AutoReleased returns how many automatic objects were released at scope
// exits so far.
func (ctx *ScopeContext) AutoReleased() int64 {
	return atomic.LoadInt64(&ctx.released)
}
