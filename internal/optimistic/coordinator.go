// Package optimistic implements the local-first mutation protocol: apply a
// patch to the task store immediately, run the remote commit, and revert to
// the pre-mutation snapshot if the commit fails. The store therefore never
// holds a failed mutation longer than the round-trip of the failed call.
package optimistic

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/crowvale/taskdeck/internal/store"
	"github.com/crowvale/taskdeck/internal/workflow"
)

var (
	// ErrNotTracked means the task is not present in the store, so there is no
	// local value to patch.
	ErrNotTracked = errors.New("task not present in store")

	// ErrCommitFailed wraps a remote persistence failure. The local store has
	// already been restored by the time this is returned.
	ErrCommitFailed = errors.New("remote commit failed")
)

type Coordinator struct {
	store *store.Store

	mu  sync.Mutex
	seq map[string]uint64
}

func New(st *store.Store) *Coordinator {
	return &Coordinator{
		store: st,
		seq:   make(map[string]uint64),
	}
}

// Apply runs one optimistic mutation: snapshot the current value, upsert the
// patched value, then call commit. On commit failure the snapshot is restored,
// unless a newer optimistic write or a feed snapshot has superseded this
// operation in the meantime; a stale revert must never clobber fresher state.
func (c *Coordinator) Apply(ctx context.Context, id string, patch func(workflow.Task) workflow.Task, commit func(context.Context) error) error {
	c.mu.Lock()
	prev, ok := c.store.Get(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	gen := c.store.Generation()
	c.seq[id]++
	op := c.seq[id]
	c.store.Upsert(patch(prev.Clone()))
	c.mu.Unlock()

	if err := commit(ctx); err != nil {
		c.revert(id, op, gen, prev)
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}

// Delete removes the task locally and restores it if the remote delete fails.
func (c *Coordinator) Delete(ctx context.Context, id string, commit func(context.Context) error) error {
	c.mu.Lock()
	prev, ok := c.store.Get(id)
	if !ok {
		c.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotTracked, id)
	}
	gen := c.store.Generation()
	c.seq[id]++
	op := c.seq[id]
	c.store.Remove(id)
	c.mu.Unlock()

	if err := commit(ctx); err != nil {
		c.revert(id, op, gen, prev)
		return fmt.Errorf("%w: %v", ErrCommitFailed, err)
	}
	return nil
}

func (c *Coordinator) revert(id string, op, gen uint64, prev workflow.Task) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seq[id] != op {
		// A later optimistic write owns the entry now.
		return
	}
	if c.store.Generation() != gen {
		// A canonical feed snapshot landed mid-flight; it wins.
		return
	}
	c.store.Upsert(prev)
}
