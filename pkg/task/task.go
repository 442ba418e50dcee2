package task

import (
	"errors"
	"fmt"

	"golang.org/x/sync/errgroup"

	"hybridmem/pkg/memory"
)

// spawn/sync worker groups.
//
// A Group runs child tasks on independent goroutines. Sync is the join
// barrier: it blocks the spawning task until every child completed or
// failed, and a child failure surfaces there as ErrChildTaskFailure instead
// of being swallowed. There is no preemptive cancellation; a spawned task
// runs to completion or failure.
//
// Memory discipline at the boundary: hybrid handles passed to Spawn are
// marked cross-task-shared (their refcounts are atomic regardless, so the
// mark is a diagnostic record of the escape point). Arenas, pools, scopes
// and manual handles are not shared by default - each task that needs a
// scope opens its own, and manual/pooled handles crossing the boundary are
// the caller's to synchronize.

// ErrChildTaskFailure wraps the first child error observed at Sync.
var ErrChildTaskFailure = errors.New("child task failure")

// Group is a set of spawned child tasks joined by Sync.
type Group struct {
	eg errgroup.Group
}

// NewGroup creates an empty task group.
func NewGroup() *Group {
	return &Group{}
}

// Spawn starts fn as a child task. Handles listed in shared cross the task
// boundary and are marked so. A panicking child is reported at Sync as a
// failure, not a process crash.
func (g *Group) Spawn(fn func() error, shared ...*memory.Object) {
	for _, obj := range shared {
		obj.MarkShared()
	}
	g.eg.Go(func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("child task panic: %v", r)
			}
		}()
		return fn()
	})
}

// Sync joins all spawned children. The first child failure is returned
// wrapped as ErrChildTaskFailure; nil means every child completed.
func (g *Group) Sync() error {
	if err := g.eg.Wait(); err != nil {
		return fmt.Errorf("%w: %v", ErrChildTaskFailure, err)
	}
	return nil
}
