package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/crowvale/taskdeck/internal/directory"
	"github.com/crowvale/taskdeck/internal/gateway"
	"github.com/crowvale/taskdeck/internal/notify"
	"github.com/crowvale/taskdeck/internal/optimistic"
	"github.com/crowvale/taskdeck/internal/store"
	"github.com/crowvale/taskdeck/internal/workflow"
)

var (
	master   = workflow.User{ID: "1", Name: "Boss", Role: workflow.RoleMaster}
	chairman = workflow.User{ID: "2", Name: "Chair", Role: workflow.RoleMaster, Designation: "chairman"}
	director = workflow.User{ID: "3", Name: "Dir", Role: workflow.RoleDirector}
	employee = workflow.User{ID: "4", Name: "Emp", Role: workflow.RoleEmployee}
)

// failingGateway wraps the in-memory gateway and fails every write after the
// fuse blows.
type failingGateway struct {
	*gateway.MemoryGateway
	fail bool
}

func (g *failingGateway) UpdateTask(ctx context.Context, t workflow.Task) error {
	if g.fail {
		return errors.New("persistence unavailable")
	}
	return g.MemoryGateway.UpdateTask(ctx, t)
}

func (g *failingGateway) DeleteTask(ctx context.Context, id string) error {
	if g.fail {
		return errors.New("persistence unavailable")
	}
	return g.MemoryGateway.DeleteTask(ctx, id)
}

type failingNotifier struct {
	calls int
}

func (n *failingNotifier) Notify(context.Context, string, string) error {
	n.calls++
	return errors.New("push service down")
}

// newTestService wires the service against the in-memory gateway without the
// feed subscription: the coordinator's synchronous writes keep the store
// deterministic for assertions, and the feed sync path has its own tests.
func newTestService(t *testing.T) (*Service, *store.Store, *failingGateway) {
	t.Helper()
	gw := &failingGateway{MemoryGateway: gateway.NewMemory()}
	dir := directory.NewStatic(master, chairman, director, employee)
	st := store.New()

	engine := workflow.NewEngine(dir)
	coord := optimistic.New(st)
	sink := notify.NewLogSink(nil)
	svc := New(st, engine, coord, gw, sink, sink, nil, nil)
	return svc, st, gw
}

func createTask(t *testing.T, svc *Service) workflow.Task {
	t.Helper()
	task, err := svc.Create(context.Background(), master, CreateRequest{
		Title:      "quarterly report",
		DueDate:    time.Date(2026, 3, 15, 0, 0, 0, 0, time.UTC),
		AssignedTo: "3",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	return task
}

func TestCreateSeedsStoreAndDefaults(t *testing.T) {
	svc, st, _ := newTestService(t)

	task := createTask(t, svc)
	if task.ID == "" {
		t.Fatalf("created task has no id")
	}
	if task.Priority != workflow.PriorityMedium {
		t.Fatalf("priority = %q, want medium default", task.Priority)
	}
	if task.Status != workflow.StatusPending {
		t.Fatalf("status = %q, want pending", task.Status)
	}
	if _, ok := st.Get(task.ID); !ok {
		t.Fatalf("store not seeded with created task")
	}
}

func TestCreateDeniedWithoutAuthority(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Create(context.Background(), employee, CreateRequest{
		Title:      "rogue task",
		AssignedTo: "4",
	})
	if !errors.Is(err, workflow.ErrUnauthorized) {
		t.Fatalf("Create() error = %v, want ErrUnauthorized", err)
	}
}

func TestTransitionLifecycleEndToEnd(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	task := createTask(t, svc)

	if _, err := svc.AssignDirector(ctx, task.ID, master, "3"); err != nil {
		t.Fatalf("AssignDirector() error = %v", err)
	}
	if _, err := svc.AssignEmployee(ctx, task.ID, director, "4"); err != nil {
		t.Fatalf("AssignEmployee() error = %v", err)
	}
	if _, err := svc.Start(ctx, task.ID, employee); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := svc.Complete(ctx, task.ID, employee); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}
	if _, err := svc.Approve(ctx, task.ID, director); err != nil {
		t.Fatalf("Approve(director) error = %v", err)
	}
	final, err := svc.Approve(ctx, task.ID, chairman)
	if err != nil {
		t.Fatalf("Approve(chairman) error = %v", err)
	}
	if final.Status != workflow.StatusCompleted {
		t.Fatalf("final status = %q, want completed", final.Status)
	}

	got, _ := st.Get(task.ID)
	if got.Status != workflow.StatusCompleted {
		t.Fatalf("store status = %q, want completed", got.Status)
	}
}

func TestTransitionRollsBackOnGatewayFailure(t *testing.T) {
	svc, st, gw := newTestService(t)
	ctx := context.Background()

	task := createTask(t, svc)
	gw.fail = true

	_, err := svc.AssignDirector(ctx, task.ID, master, "3")
	if !errors.Is(err, optimistic.ErrCommitFailed) {
		t.Fatalf("AssignDirector() error = %v, want ErrCommitFailed", err)
	}

	got, _ := st.Get(task.ID)
	if got.Status != workflow.StatusPending {
		t.Fatalf("store status = %q, want pending restored after rollback", got.Status)
	}
}

func TestTransitionDeniedNeverTouchesStore(t *testing.T) {
	svc, st, _ := newTestService(t)

	task := createTask(t, svc)

	_, err := svc.AssignDirector(context.Background(), task.ID, employee, "3")
	if !errors.Is(err, workflow.ErrUnauthorized) {
		t.Fatalf("AssignDirector() error = %v, want ErrUnauthorized", err)
	}
	got, _ := st.Get(task.ID)
	if got.Status != workflow.StatusPending {
		t.Fatalf("store status = %q after denied action, want pending", got.Status)
	}
}

func TestTransitionUnknownTask(t *testing.T) {
	svc, _, _ := newTestService(t)

	_, err := svc.Start(context.Background(), "ghost", employee)
	if !errors.Is(err, ErrTaskNotFound) {
		t.Fatalf("Start(ghost) error = %v, want ErrTaskNotFound", err)
	}
}

func TestRejectAndReapproveThroughService(t *testing.T) {
	svc, _, _ := newTestService(t)
	ctx := context.Background()

	task := createTask(t, svc)
	if _, err := svc.AssignDirector(ctx, task.ID, master, "3"); err != nil {
		t.Fatalf("AssignDirector() error = %v", err)
	}
	if _, err := svc.AssignEmployee(ctx, task.ID, director, "4"); err != nil {
		t.Fatalf("AssignEmployee() error = %v", err)
	}
	if _, err := svc.Start(ctx, task.ID, employee); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	if _, err := svc.Complete(ctx, task.ID, employee); err != nil {
		t.Fatalf("Complete() error = %v", err)
	}

	rejected, err := svc.Reject(ctx, task.ID, director, "incomplete data")
	if err != nil {
		t.Fatalf("Reject() error = %v", err)
	}
	if rejected.Status != workflow.StatusRejected {
		t.Fatalf("status = %q, want rejected", rejected.Status)
	}

	resubmitted, err := svc.Reapprove(ctx, task.ID, employee, "added missing data")
	if err != nil {
		t.Fatalf("Reapprove() error = %v", err)
	}
	if resubmitted.Status != workflow.StatusPendingDirectorApproval {
		t.Fatalf("status = %q, want pending_director_approval", resubmitted.Status)
	}
	if len(resubmitted.ApprovalChain) != 2 {
		t.Fatalf("chain length = %d, want rejected history plus fresh entry", len(resubmitted.ApprovalChain))
	}
}

func TestDeleteAuthorization(t *testing.T) {
	svc, st, _ := newTestService(t)
	ctx := context.Background()

	task := createTask(t, svc)

	if err := svc.Delete(ctx, task.ID, employee); !errors.Is(err, workflow.ErrUnauthorized) {
		t.Fatalf("Delete(employee) error = %v, want ErrUnauthorized", err)
	}
	if err := svc.Delete(ctx, task.ID, master); err != nil {
		t.Fatalf("Delete(creator) error = %v", err)
	}
	if _, ok := st.Get(task.ID); ok {
		t.Fatalf("task still in store after delete")
	}
}

func TestNotifierFailureDoesNotBlockTransition(t *testing.T) {
	gw := &failingGateway{MemoryGateway: gateway.NewMemory()}
	dir := directory.NewStatic(master, chairman, director, employee)
	st := store.New()

	notifier := &failingNotifier{}
	sink := notify.NewLogSink(nil)
	svc := New(st, workflow.NewEngine(dir), optimistic.New(st), gw, notifier, sink, nil, nil)

	task, err := svc.Create(context.Background(), master, CreateRequest{
		Title:      "notify test",
		AssignedTo: "3",
	})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if notifier.calls == 0 {
		t.Fatalf("notifier never invoked")
	}

	got, err := svc.AssignDirector(context.Background(), task.ID, master, "3")
	if err != nil {
		t.Fatalf("AssignDirector() error = %v", err)
	}
	if got.Status != workflow.StatusAssignedToDirector {
		t.Fatalf("status = %q, want assigned_to_director", got.Status)
	}
}
