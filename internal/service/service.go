// Package service is the UI-adjacent orchestration layer: it runs the
// workflow engine over the store's current value, routes the resulting
// mutation through the optimistic coordinator and the gateway, and fires
// best-effort notifications once the transition has committed.
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/crowvale/taskdeck/internal/gateway"
	"github.com/crowvale/taskdeck/internal/notify"
	"github.com/crowvale/taskdeck/internal/observability"
	"github.com/crowvale/taskdeck/internal/optimistic"
	"github.com/crowvale/taskdeck/internal/store"
	"github.com/crowvale/taskdeck/internal/workflow"
)

var ErrTaskNotFound = errors.New("task not found")

type Service struct {
	store    *store.Store
	engine   *workflow.Engine
	coord    *optimistic.Coordinator
	gw       gateway.TaskGateway
	notifier notify.Dispatcher
	activity notify.ActivityLog
	metrics  *observability.Metrics
	logger   *zap.Logger
}

func New(
	st *store.Store,
	engine *workflow.Engine,
	coord *optimistic.Coordinator,
	gw gateway.TaskGateway,
	notifier notify.Dispatcher,
	activity notify.ActivityLog,
	metrics *observability.Metrics,
	logger *zap.Logger,
) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		store:    st,
		engine:   engine,
		coord:    coord,
		gw:       gw,
		notifier: notifier,
		activity: activity,
		metrics:  metrics,
		logger:   logger,
	}
}

type CreateRequest struct {
	Title                  string
	Description            string
	Category               string
	Priority               workflow.Priority
	DueDate                time.Time
	AssignedTo             string
	SkipDirectorApproval   bool
	DirectChairmanApproval bool
}

// Create persists a new pending task. Creation is not optimistic: the
// persistence layer assigns the id, so the store is seeded only once the
// gateway accepts the document (the feed snapshot then confirms it).
func (s *Service) Create(ctx context.Context, actor workflow.User, req CreateRequest) (workflow.Task, error) {
	req.Title = strings.TrimSpace(req.Title)
	req.AssignedTo = strings.TrimSpace(req.AssignedTo)
	if req.Title == "" {
		return workflow.Task{}, errors.New("title is required")
	}
	if req.AssignedTo == "" {
		return workflow.Task{}, errors.New("assigned_to is required")
	}
	if !actor.HasAssignmentAuthority() && actor.Role != workflow.RoleDirector {
		return workflow.Task{}, fmt.Errorf("%w: task creation requires assignment authority", workflow.ErrUnauthorized)
	}
	if req.Priority == "" {
		req.Priority = workflow.PriorityMedium
	}

	task := workflow.Task{
		Title:                  req.Title,
		Description:            strings.TrimSpace(req.Description),
		Category:               strings.TrimSpace(req.Category),
		Priority:               req.Priority,
		DueDate:                req.DueDate,
		CreatedBy:              actor.ID,
		AssignedTo:             req.AssignedTo,
		SkipDirectorApproval:   req.SkipDirectorApproval,
		DirectChairmanApproval: req.DirectChairmanApproval,
		Status:                 workflow.StatusPending,
		CurrentApprovalLevel:   workflow.LevelNone,
	}

	created, err := s.gw.CreateTask(ctx, task)
	if err != nil {
		s.metrics.ObserveTransition("create", "commit_failed")
		return workflow.Task{}, fmt.Errorf("create task: %w", err)
	}
	s.store.Upsert(created)
	s.metrics.ObserveTransition("create", "applied")

	s.dispatch(created.AssignedTo, fmt.Sprintf("You have been assigned a new task: %s", created.Title))
	s.record(created.ID, actor.ID, "create", created.Title)
	return created, nil
}

// Transition applies one workflow action. Authorization and transition
// validity are checked by the engine before any optimistic write, so a denied
// action never touches the store.
func (s *Service) Transition(ctx context.Context, taskID string, action workflow.Action, actor workflow.User, p workflow.Params) (workflow.Task, error) {
	current, ok := s.store.Get(taskID)
	if !ok {
		return workflow.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}

	next, err := s.engine.Apply(ctx, current, action, actor, p)
	if err != nil {
		s.metrics.ObserveTransition(string(action), resultLabel(err))
		return workflow.Task{}, err
	}

	err = s.coord.Apply(ctx, taskID,
		func(workflow.Task) workflow.Task { return next },
		func(ctx context.Context) error { return s.gw.UpdateTask(ctx, next) },
	)
	if err != nil {
		s.metrics.ObserveTransition(string(action), "commit_failed")
		s.metrics.ObserveOptimistic("rolled_back")
		return workflow.Task{}, err
	}
	s.metrics.ObserveTransition(string(action), "applied")
	s.metrics.ObserveOptimistic("committed")

	s.notifyTransition(next, action, actor, p)
	s.record(next.ID, actor.ID, string(action), p.Reason)
	return next, nil
}

func (s *Service) AssignDirector(ctx context.Context, taskID string, actor workflow.User, directorID string) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionAssignDirector, actor, workflow.Params{AssigneeID: directorID})
}

func (s *Service) AssignEmployee(ctx context.Context, taskID string, actor workflow.User, employeeID string) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionAssignEmployee, actor, workflow.Params{AssigneeID: employeeID})
}

func (s *Service) Start(ctx context.Context, taskID string, actor workflow.User) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionStart, actor, workflow.Params{})
}

func (s *Service) Complete(ctx context.Context, taskID string, actor workflow.User) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionComplete, actor, workflow.Params{})
}

func (s *Service) DirectorComplete(ctx context.Context, taskID string, actor workflow.User) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionDirectorComplete, actor, workflow.Params{})
}

func (s *Service) Approve(ctx context.Context, taskID string, actor workflow.User) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionApprove, actor, workflow.Params{})
}

func (s *Service) Reject(ctx context.Context, taskID string, actor workflow.User, reason string) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionReject, actor, workflow.Params{Reason: reason})
}

func (s *Service) Reapprove(ctx context.Context, taskID string, actor workflow.User, reason string) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionReapprove, actor, workflow.Params{Reason: reason})
}

func (s *Service) Pause(ctx context.Context, taskID string, actor workflow.User) (workflow.Task, error) {
	return s.Transition(ctx, taskID, workflow.ActionPause, actor, workflow.Params{})
}

// Delete removes a task outright. This is outside the workflow state machine;
// only the creator or a user with assignment authority may do it.
func (s *Service) Delete(ctx context.Context, taskID string, actor workflow.User) error {
	task, ok := s.store.Get(taskID)
	if !ok {
		return fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	if actor.ID != task.CreatedBy && !actor.HasAssignmentAuthority() {
		return fmt.Errorf("%w: only the creator or a master/chairman may delete", workflow.ErrUnauthorized)
	}

	err := s.coord.Delete(ctx, taskID, func(ctx context.Context) error {
		return s.gw.DeleteTask(ctx, taskID)
	})
	if err != nil {
		s.metrics.ObserveTransition("delete", "commit_failed")
		s.metrics.ObserveOptimistic("rolled_back")
		return err
	}
	s.metrics.ObserveTransition("delete", "applied")
	s.metrics.ObserveOptimistic("committed")
	s.record(taskID, actor.ID, "delete", task.Title)
	return nil
}

func (s *Service) Get(taskID string) (workflow.Task, error) {
	task, ok := s.store.Get(taskID)
	if !ok {
		return workflow.Task{}, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
	}
	return task, nil
}

func (s *Service) List() []workflow.Task {
	return s.store.GetAll()
}

// notifyTransition tells whoever the ball moved to. Delivery is best effort
// and never affects the committed transition.
func (s *Service) notifyTransition(t workflow.Task, action workflow.Action, actor workflow.User, p workflow.Params) {
	switch action {
	case workflow.ActionAssignDirector, workflow.ActionAssignEmployee:
		s.dispatch(t.AssignedTo, fmt.Sprintf("Task %q has been assigned to you", t.Title))
	case workflow.ActionComplete, workflow.ActionDirectorComplete, workflow.ActionReapprove:
		if entry, ok := pendingApprovalEntry(t); ok {
			s.dispatch(entry.ApproverID, fmt.Sprintf("Task %q is awaiting your approval", t.Title))
		}
	case workflow.ActionApprove:
		if t.Status == workflow.StatusCompleted {
			s.dispatch(t.AssignedTo, fmt.Sprintf("Task %q has been completed and approved", t.Title))
			if t.CreatedBy != t.AssignedTo {
				s.dispatch(t.CreatedBy, fmt.Sprintf("Task %q has been completed and approved", t.Title))
			}
		} else if entry, ok := pendingApprovalEntry(t); ok {
			s.dispatch(entry.ApproverID, fmt.Sprintf("Task %q is awaiting your approval", t.Title))
		}
	case workflow.ActionReject:
		s.dispatch(t.AssignedTo, fmt.Sprintf("Task %q was rejected: %s", t.Title, p.Reason))
	case workflow.ActionPause:
		if t.AssignedTo != "" && t.AssignedTo != actor.ID {
			s.dispatch(t.AssignedTo, fmt.Sprintf("Task %q has been paused", t.Title))
		}
	}
}

func pendingApprovalEntry(t workflow.Task) (workflow.ApprovalEntry, bool) {
	switch t.Status {
	case workflow.StatusPendingDirectorApproval:
		return t.PendingEntry(workflow.RoleDirector)
	case workflow.StatusPendingChairmanApproval:
		return t.PendingEntry(workflow.RoleChairman)
	default:
		return workflow.ApprovalEntry{}, false
	}
}

func (s *Service) dispatch(userID, message string) {
	if s.notifier == nil || userID == "" {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.notifier.Notify(ctx, userID, message); err != nil {
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
		s.logger.Warn("notification dispatch failed", zap.String("user_id", userID), zap.Error(err))
	}
}

func (s *Service) record(taskID, actorID, action, detail string) {
	if s.activity == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	err := s.activity.RecordActivity(ctx, notify.Activity{
		TaskID:  taskID,
		ActorID: actorID,
		Action:  action,
		Detail:  detail,
		At:      time.Now().UTC(),
	})
	if err != nil {
		if s.metrics != nil {
			s.metrics.NotifyFailures.Inc()
		}
		s.logger.Warn("activity record failed", zap.String("task_id", taskID), zap.Error(err))
	}
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, workflow.ErrUnauthorized):
		return "denied"
	case errors.Is(err, workflow.ErrInvalidTransition):
		return "invalid"
	case errors.Is(err, workflow.ErrNoApprover):
		return "no_approver"
	default:
		return "error"
	}
}
