// Package store holds the in-memory authoritative cache of tasks visible to
// this process. It is the single source of truth for reads; writes come from
// exactly two places: the feed subscription handler (ReplaceAll) and the
// optimistic update coordinator (Upsert/Remove).
package store

import (
	"sort"
	"sync"

	"github.com/crowvale/taskdeck/internal/workflow"
)

type Store struct {
	mu         sync.RWMutex
	tasks      map[string]workflow.Task
	generation uint64
}

func New() *Store {
	return &Store{
		tasks: make(map[string]workflow.Task),
	}
}

// Get returns a clone of the task, so callers never alias store memory.
func (s *Store) Get(id string) (workflow.Task, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	t, ok := s.tasks[id]
	if !ok {
		return workflow.Task{}, false
	}
	return t.Clone(), true
}

// GetAll returns clones of every task, newest first.
func (s *Store) GetAll() []workflow.Task {
	s.mu.RLock()
	out := make([]workflow.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.tasks)
}

// ReplaceAll swaps the full task set for a canonical feed snapshot and bumps
// the snapshot generation. Only the feed subscription handler calls this.
func (s *Store) ReplaceAll(tasks []workflow.Task) {
	next := make(map[string]workflow.Task, len(tasks))
	for _, t := range tasks {
		next[t.ID] = t.Clone()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = next
	s.generation++
}

// Generation counts ReplaceAll applications. The optimistic coordinator
// snapshots it before a remote commit so a rollback can tell whether a fresher
// feed snapshot already superseded the value it would restore.
func (s *Store) Generation() uint64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.generation
}

func (s *Store) Upsert(t workflow.Task) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks[t.ID] = t.Clone()
}

func (s *Store) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.tasks, id)
}
