// Package directory adapts the external identity service. The workflow core
// consumes it read-only to resolve approvers and check actor roles.
package directory

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/crowvale/taskdeck/internal/workflow"
)

var ErrUserNotFound = errors.New("user not found")

// Directory is the read side consumed by the workflow engine and the HTTP
// edge. UpsertUser exists so deployments without an external identity source
// can still be seeded.
type Directory interface {
	ListUsers(ctx context.Context) ([]workflow.User, error)
	UpsertUser(ctx context.Context, u workflow.User) error
}

// Find resolves one user by id via ListUsers.
func Find(ctx context.Context, d Directory, id string) (workflow.User, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return workflow.User{}, ErrUserNotFound
	}
	users, err := d.ListUsers(ctx)
	if err != nil {
		return workflow.User{}, err
	}
	for _, u := range users {
		if u.ID == id {
			return u, nil
		}
	}
	return workflow.User{}, ErrUserNotFound
}

// Static is the in-memory directory used when no DATABASE_URL is configured,
// and by tests.
type Static struct {
	mu    sync.RWMutex
	users map[string]workflow.User
}

func NewStatic(seed ...workflow.User) *Static {
	d := &Static{
		users: make(map[string]workflow.User, len(seed)),
	}
	for _, u := range seed {
		d.users[u.ID] = u
	}
	return d
}

func (d *Static) ListUsers(_ context.Context) ([]workflow.User, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	out := make([]workflow.User, 0, len(d.users))
	for _, u := range d.users {
		out = append(out, u)
	}
	return out, nil
}

func (d *Static) UpsertUser(_ context.Context, u workflow.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	d.users[u.ID] = u
	return nil
}
