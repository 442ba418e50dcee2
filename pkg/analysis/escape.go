package analysis

import (
	"fmt"

	"hybridmem/pkg/memory"
)

// Static store checking over allocation sites.
//
// The front end runs this pass before emitting code: every declared
// variable carries its allocation site (strategy + scope depth), and every
// store of one variable into another is checked against two rules.
//
// Arena escape rule: an arena-allocated value must not be stored into a
// location whose lifetime outlives the arena's scope. Outer scopes outlive
// inner ones, and manual/hybrid containers are not bounded by any scope.
// Violations are compile-time errors here, not runtime traps - stores the
// pass cannot see (through opaque calls, say) remain the runtime facade's
// best-effort dynamic check and otherwise the caller's obligation.
//
// Strategy rule: a store of one strategy's handle into a container of
// another strategy is rejected; the container must copy the value into an
// allocation of its own strategy instead.

// VarSite is a declared variable and the allocation site behind it.
type VarSite struct {
	Name       string
	Strategy   memory.Strategy
	ScopeDepth int
}

// Violation records one rejected store.
type Violation struct {
	Dst    string
	Src    string
	Reason string
}

// EscapeContext tracks declarations per scope depth and accumulated
// violations.
type EscapeContext struct {
	ScopeDepth int
	Vars       map[string]*VarSite
	Violations []Violation
}

// NewEscapeContext creates a checker at depth 0 (function entry).
func NewEscapeContext() *EscapeContext {
	return &EscapeContext{
		Vars: make(map[string]*VarSite),
	}
}

// EnterScope enters a nested block.
func (ctx *EscapeContext) EnterScope() {
	ctx.ScopeDepth++
}

// ExitScope leaves the current block, dropping its declarations.
func (ctx *EscapeContext) ExitScope() {
	if ctx.ScopeDepth == 0 {
		return
	}
	for name, v := range ctx.Vars {
		if v.ScopeDepth == ctx.ScopeDepth {
			delete(ctx.Vars, name)
		}
	}
	ctx.ScopeDepth--
}

// Declare registers a variable with its allocation site at the current
// depth. Decorators win over the declared keyword, mirroring the runtime.
func (ctx *EscapeContext) Declare(name string, site memory.Site) *VarSite {
	strategy := site.Strategy
	if site.ArenaAllocate {
		strategy = memory.StrategyArena
	} else if site.PoolSize > 0 {
		strategy = memory.StrategyPooled
	}

	v := &VarSite{
		Name:       name,
		Strategy:   strategy,
		ScopeDepth: ctx.ScopeDepth,
	}
	ctx.Vars[name] = v
	return v
}

// CheckStore validates the store dst <- src. Unknown variables pass: the
// check is best-effort and only rejects what it can prove.
func (ctx *EscapeContext) CheckStore(dstName, srcName string) error {
	dst, okDst := ctx.Vars[dstName]
	src, okSrc := ctx.Vars[srcName]
	if !okDst || !okSrc {
		return nil
	}

	if src.Strategy == memory.StrategyArena {
		if err := ctx.checkArenaEscape(dst, src); err != nil {
			return err
		}
	}

	if dst.Strategy != src.Strategy {
		ctx.record(dst, src, "cross-strategy store")
		return fmt.Errorf("%w: cannot store %s value %s into %s container %s",
			memory.ErrStrategyMismatch, src.Strategy, src.Name, dst.Strategy, dst.Name)
	}
	return nil
}

func (ctx *EscapeContext) checkArenaEscape(dst, src *VarSite) error {
	outlives := false
	switch dst.Strategy {
	case memory.StrategyManual, memory.StrategyHybrid:
		outlives = true
	default:
		outlives = dst.ScopeDepth < src.ScopeDepth
	}
	if !outlives {
		return nil
	}

	ctx.record(dst, src, "arena value escapes its scope")
	return fmt.Errorf("%w: %s (scope depth %d, %s) outlives arena value %s (scope depth %d)",
		memory.ErrArenaEscape, dst.Name, dst.ScopeDepth, dst.Strategy, src.Name, src.ScopeDepth)
}

func (ctx *EscapeContext) record(dst, src *VarSite, reason string) {
	ctx.Violations = append(ctx.Violations, Violation{
		Dst:    dst.Name,
		Src:    src.Name,
		Reason: reason,
	})
}

// HasViolations reports whether any store was rejected.
func (ctx *EscapeContext) HasViolations() bool {
	return len(ctx.Violations) > 0
}

// FindVar returns the site for a declared variable.
func (ctx *EscapeContext) FindVar(name string) *VarSite {
	return ctx.Vars[name]
}
