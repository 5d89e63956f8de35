package gateway

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/crowvale/taskdeck/internal/feed"
	"github.com/crowvale/taskdeck/internal/workflow"
)

// MemoryGateway is the in-process persistence/feed service used when no
// DATABASE_URL is configured, and by tests.
type MemoryGateway struct {
	mu    sync.Mutex
	tasks map[string]workflow.Task
	hub   *feed.Hub
	now   func() time.Time
}

func NewMemory() *MemoryGateway {
	return &MemoryGateway{
		tasks: make(map[string]workflow.Task),
		hub:   feed.NewHub(0),
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the gateway's time source. Tests only.
func (g *MemoryGateway) SetClock(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

func (g *MemoryGateway) CreateTask(_ context.Context, t workflow.Task) (workflow.Task, error) {
	now := g.now()
	stored := t.Clone()
	stored.ID = uuid.NewString()
	for i := range stored.ApprovalChain {
		stored.ApprovalChain[i].TaskID = stored.ID
	}
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	stored.UpdatedAt = now

	g.mu.Lock()
	g.tasks[stored.ID] = stored.Clone()
	snapshot := g.snapshotLocked()
	g.mu.Unlock()

	g.hub.Publish(snapshot)
	return stored, nil
}

func (g *MemoryGateway) UpdateTask(_ context.Context, t workflow.Task) error {
	g.mu.Lock()
	if _, ok := g.tasks[t.ID]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	g.tasks[t.ID] = t.Clone()
	snapshot := g.snapshotLocked()
	g.mu.Unlock()

	g.hub.Publish(snapshot)
	return nil
}

func (g *MemoryGateway) DeleteTask(_ context.Context, id string) error {
	g.mu.Lock()
	if _, ok := g.tasks[id]; !ok {
		g.mu.Unlock()
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	delete(g.tasks, id)
	snapshot := g.snapshotLocked()
	g.mu.Unlock()

	g.hub.Publish(snapshot)
	return nil
}

func (g *MemoryGateway) ListTasks(_ context.Context) ([]workflow.Task, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.snapshotLocked(), nil
}

func (g *MemoryGateway) MarkPendingIfPaused(_ context.Context, id string) (bool, error) {
	g.mu.Lock()
	t, ok := g.tasks[id]
	if !ok {
		g.mu.Unlock()
		return false, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	if t.Status != workflow.StatusPaused {
		g.mu.Unlock()
		return false, nil
	}
	t.Status = workflow.StatusPending
	t.CurrentApprovalLevel = workflow.LevelNone
	t.PausedAt = nil
	t.PausedBy = ""
	t.UpdatedAt = g.now()
	g.tasks[id] = t
	snapshot := g.snapshotLocked()
	g.mu.Unlock()

	g.hub.Publish(snapshot)
	return true, nil
}

func (g *MemoryGateway) SubscribeTasks(onSnapshot func([]workflow.Task)) (feed.Teardown, error) {
	ch, cancel := g.hub.Subscribe()

	g.mu.Lock()
	initial := g.snapshotLocked()
	g.mu.Unlock()
	onSnapshot(initial)

	done := make(chan struct{})
	go func() {
		defer close(done)
		for snap := range ch {
			onSnapshot(snap)
		}
	}()

	return func() {
		cancel()
		<-done
	}, nil
}

func (g *MemoryGateway) Close() error {
	return nil
}

func (g *MemoryGateway) snapshotLocked() []workflow.Task {
	out := make([]workflow.Task, 0, len(g.tasks))
	for _, t := range g.tasks {
		out = append(out, t.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID > out[j].ID
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out
}
