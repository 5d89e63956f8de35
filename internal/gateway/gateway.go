// Package gateway is the seam to the remote persistence/feed service. The
// workflow core talks only to the TaskGateway contract; whether the far side
// is postgres or an in-process map is invisible to it.
package gateway

import (
	"context"
	"errors"

	"github.com/crowvale/taskdeck/internal/feed"
	"github.com/crowvale/taskdeck/internal/workflow"
)

var ErrNotFound = errors.New("task not found")

// TaskGateway validates nothing about workflow semantics; it persists whole
// task documents and pushes a full snapshot to feed subscribers after every
// successful write (the snapshot-push delivery model).
type TaskGateway interface {
	// CreateTask persists a new task. The persistence layer assigns the id;
	// the stored document is returned.
	CreateTask(ctx context.Context, t workflow.Task) (workflow.Task, error)

	// UpdateTask replaces the stored document for t.ID.
	UpdateTask(ctx context.Context, t workflow.Task) error

	DeleteTask(ctx context.Context, id string) error

	ListTasks(ctx context.Context) ([]workflow.Task, error)

	// MarkPendingIfPaused flips a task back to pending and clears its pause
	// metadata, conditioned on the task still being paused at write time. It
	// reports whether a row actually changed, so a concurrent manual status
	// change is never overwritten.
	MarkPendingIfPaused(ctx context.Context, id string) (bool, error)

	// SubscribeTasks registers a snapshot callback. The current full task list
	// is delivered once immediately, then again after every change.
	SubscribeTasks(onSnapshot func([]workflow.Task)) (feed.Teardown, error)

	Close() error
}
