package workflow

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Action string

const (
	ActionAssignDirector   Action = "assign_director"
	ActionAssignEmployee   Action = "assign_employee"
	ActionStart            Action = "start"
	ActionComplete         Action = "complete"
	ActionDirectorComplete Action = "director_complete"
	ActionApprove          Action = "approve"
	ActionReject           Action = "reject"
	ActionReapprove        Action = "reapprove"
	ActionPause            Action = "pause"
)

// Params carries the per-action inputs a transition may need.
type Params struct {
	AssigneeID string
	Reason     string
}

// Directory is the slice of the identity service the engine needs: a read-only
// user listing used to resolve approvers and check actor roles.
type Directory interface {
	ListUsers(ctx context.Context) ([]User, error)
}

// Engine evaluates task transitions against a declarative rule table keyed by
// (current status, action). Each rule pairs an authorization predicate with a
// mutation; authorization always runs first, so a denied or undefined
// transition never touches the task.
type Engine struct {
	dir Directory
	now func() time.Time
}

func NewEngine(dir Directory) *Engine {
	return &Engine{
		dir: dir,
		now: func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine's time source. Tests only.
func (e *Engine) SetClock(now func() time.Time) {
	if now != nil {
		e.now = now
	}
}

type ruleKey struct {
	from   Status
	action Action
}

type rule struct {
	authorize func(t Task, actor User, p Params) error
	mutate    func(ctx context.Context, e *Engine, t *Task, actor User, p Params, now time.Time) error
}

var rules = map[ruleKey]rule{
	{StatusPending, ActionAssignDirector}: {
		authorize: requireAssignmentAuthority,
		mutate:    mutateAssignDirector,
	},
	{StatusAssignedToDirector, ActionAssignEmployee}: {
		authorize: requireAssignedDirector,
		mutate:    mutateAssignEmployee,
	},
	{StatusAssignedToEmployee, ActionStart}: {
		authorize: requireAssignee,
		mutate: func(_ context.Context, _ *Engine, t *Task, _ User, _ Params, _ time.Time) error {
			t.Status = StatusInProgress
			return nil
		},
	},
	{StatusInProgress, ActionComplete}: {
		authorize: requireAssignee,
		mutate:    mutateComplete,
	},
	{StatusAssignedToDirector, ActionDirectorComplete}: {
		authorize: requireAssignedDirector,
		mutate:    mutateDirectorComplete,
	},
	{StatusInProgress, ActionDirectorComplete}: {
		authorize: requireAssignedDirector,
		mutate:    mutateDirectorComplete,
	},
	{StatusPendingDirectorApproval, ActionApprove}: {
		authorize: requirePendingApprover(RoleDirector),
		mutate:    mutateDirectorApprove,
	},
	{StatusPendingDirectorApproval, ActionReject}: {
		authorize: requirePendingApprover(RoleDirector),
		mutate:    mutateReject(RoleDirector),
	},
	{StatusPendingChairmanApproval, ActionApprove}: {
		authorize: requirePendingApprover(RoleChairman),
		mutate:    mutateChairmanApprove,
	},
	{StatusPendingChairmanApproval, ActionReject}: {
		authorize: requirePendingApprover(RoleChairman),
		mutate:    mutateReject(RoleChairman),
	},
	{StatusRejected, ActionReapprove}: {
		authorize: requireReapprovalParty,
		mutate:    mutateReapprove,
	},
	{StatusPending, ActionPause}:            pauseRule,
	{StatusAssignedToDirector, ActionPause}: pauseRule,
	{StatusAssignedToEmployee, ActionPause}: pauseRule,
	{StatusInProgress, ActionPause}:         pauseRule,
}

var pauseRule = rule{
	authorize: requireEditor,
	mutate: func(_ context.Context, _ *Engine, t *Task, actor User, _ Params, now time.Time) error {
		at := now
		t.Status = StatusPaused
		t.PausedAt = &at
		t.PausedBy = actor.ID
		return nil
	},
}

// Apply computes the task state after performing action as actor. The input
// task is never mutated; on success the returned copy carries the new status,
// an approval level re-derived from it, and a bumped UpdatedAt.
func (e *Engine) Apply(ctx context.Context, task Task, action Action, actor User, p Params) (Task, error) {
	r, ok := rules[ruleKey{task.Status, action}]
	if !ok {
		return Task{}, fmt.Errorf("%w: %s from %s", ErrInvalidTransition, action, task.Status)
	}

	out := task.Clone()
	if err := r.authorize(out, actor, p); err != nil {
		return Task{}, err
	}

	now := e.now()
	if err := r.mutate(ctx, e, &out, actor, p, now); err != nil {
		return Task{}, err
	}
	if out.Status != StatusPaused {
		out.PausedAt = nil
		out.PausedBy = ""
	}
	out.CurrentApprovalLevel = LevelForStatus(out.Status)
	out.UpdatedAt = now
	return out, nil
}

func requireAssignmentAuthority(_ Task, actor User, _ Params) error {
	if !actor.HasAssignmentAuthority() {
		return fmt.Errorf("%w: assignment requires master or chairman authority", ErrUnauthorized)
	}
	return nil
}

func requireAssignedDirector(t Task, actor User, _ Params) error {
	if actor.Role != RoleDirector || actor.ID != t.AssignedDirector {
		return fmt.Errorf("%w: only the assigned director may do this", ErrUnauthorized)
	}
	return nil
}

func requireAssignee(t Task, actor User, _ Params) error {
	if actor.ID != t.AssignedTo {
		return fmt.Errorf("%w: only the assignee may do this", ErrUnauthorized)
	}
	return nil
}

func requirePendingApprover(role Role) func(Task, User, Params) error {
	return func(t Task, actor User, _ Params) error {
		entry, ok := t.PendingEntry(role)
		if !ok {
			return fmt.Errorf("%w: no pending %s approval", ErrInvalidTransition, role)
		}
		if actor.ID != entry.ApproverID {
			return fmt.Errorf("%w: decision belongs to approver %s", ErrUnauthorized, entry.ApproverID)
		}
		return nil
	}
}

func requireReapprovalParty(t Task, actor User, _ Params) error {
	switch actor.ID {
	case t.AssignedTo, t.AssignedEmployee, t.AssignedDirector, t.CreatedBy:
		if actor.ID != "" {
			return nil
		}
	}
	return fmt.Errorf("%w: reapproval is for the assignee, their director, or the creator", ErrUnauthorized)
}

func requireEditor(_ Task, actor User, _ Params) error {
	switch {
	case actor.Role == RoleMaster, actor.Role == RoleAdmin, actor.Role == RoleDirector, actor.HasChairmanAuthority():
		return nil
	}
	return fmt.Errorf("%w: pausing requires an editor role", ErrUnauthorized)
}

func mutateAssignDirector(_ context.Context, _ *Engine, t *Task, _ User, p Params, _ time.Time) error {
	id := strings.TrimSpace(p.AssigneeID)
	if id == "" {
		return fmt.Errorf("%w: director id is required", ErrInvalidTransition)
	}
	t.AssignedDirector = id
	t.AssignedTo = id
	t.Status = StatusAssignedToDirector
	return nil
}

func mutateAssignEmployee(_ context.Context, _ *Engine, t *Task, _ User, p Params, _ time.Time) error {
	id := strings.TrimSpace(p.AssigneeID)
	if id == "" {
		return fmt.Errorf("%w: employee id is required", ErrInvalidTransition)
	}
	// The director stays on the task as approver of record.
	t.AssignedEmployee = id
	t.AssignedTo = id
	t.Status = StatusAssignedToEmployee
	return nil
}

func mutateComplete(ctx context.Context, e *Engine, t *Task, _ User, _ Params, now time.Time) error {
	if t.DirectChairmanApproval || t.SkipDirectorApproval || t.AssignedDirector == "" {
		return sendToChairman(ctx, e, t, now)
	}
	if err := appendApproval(t, t.AssignedDirector, RoleDirector, now); err != nil {
		return err
	}
	t.Status = StatusPendingDirectorApproval
	return nil
}

func mutateDirectorComplete(ctx context.Context, e *Engine, t *Task, _ User, _ Params, now time.Time) error {
	// The director did the work personally, so the director tier would be
	// self-approval; route straight to the chairman.
	return sendToChairman(ctx, e, t, now)
}

func mutateDirectorApprove(ctx context.Context, e *Engine, t *Task, _ User, _ Params, now time.Time) error {
	resolveEntry(t, RoleDirector, ApprovalApproved, "", now)
	return sendToChairman(ctx, e, t, now)
}

func mutateChairmanApprove(_ context.Context, _ *Engine, t *Task, _ User, _ Params, now time.Time) error {
	resolveEntry(t, RoleChairman, ApprovalApproved, "", now)
	t.Status = StatusCompleted
	return nil
}

func mutateReject(role Role) func(context.Context, *Engine, *Task, User, Params, time.Time) error {
	return func(_ context.Context, _ *Engine, t *Task, _ User, p Params, now time.Time) error {
		reason := strings.TrimSpace(p.Reason)
		resolveEntry(t, role, ApprovalRejected, reason, now)
		t.RejectionReason = reason
		t.Status = StatusRejected
		return nil
	}
}

func mutateReapprove(ctx context.Context, e *Engine, t *Task, _ User, p Params, now time.Time) error {
	role, ok := lastRejectedRole(*t)
	if !ok {
		return fmt.Errorf("%w: no rejected approval to resubmit", ErrInvalidTransition)
	}
	t.ReapprovalReason = strings.TrimSpace(p.Reason)
	t.RejectionReason = ""

	if role == RoleDirector && t.AssignedDirector != "" {
		if err := appendApproval(t, t.AssignedDirector, RoleDirector, now); err != nil {
			return err
		}
		t.Status = StatusPendingDirectorApproval
		return nil
	}
	return sendToChairman(ctx, e, t, now)
}

func sendToChairman(ctx context.Context, e *Engine, t *Task, now time.Time) error {
	approver, err := e.resolveChairman(ctx)
	if err != nil {
		return err
	}
	if err := appendApproval(t, approver.ID, RoleChairman, now); err != nil {
		return err
	}
	t.Status = StatusPendingChairmanApproval
	return nil
}

// appendApproval adds a fresh pending entry for role. The chain is append-only
// and a role may hold at most one pending entry at a time.
func appendApproval(t *Task, approverID string, role Role, now time.Time) error {
	if _, exists := t.PendingEntry(role); exists {
		return fmt.Errorf("%w: %s approval already pending", ErrInvalidTransition, role)
	}
	t.ApprovalChain = append(t.ApprovalChain, ApprovalEntry{
		ID:           uuid.NewString(),
		TaskID:       t.ID,
		ApproverID:   approverID,
		ApproverRole: role,
		Status:       ApprovalPending,
		CreatedAt:    now,
	})
	return nil
}

func resolveEntry(t *Task, role Role, decision ApprovalStatus, reason string, now time.Time) {
	for i := range t.ApprovalChain {
		e := &t.ApprovalChain[i]
		if e.ApproverRole != role || e.Status != ApprovalPending {
			continue
		}
		e.Status = decision
		if decision == ApprovalApproved {
			at := now
			e.ApprovedAt = &at
		} else {
			e.RejectionReason = reason
		}
		return
	}
}

func lastRejectedRole(t Task) (Role, bool) {
	for i := len(t.ApprovalChain) - 1; i >= 0; i-- {
		if t.ApprovalChain[i].Status == ApprovalRejected {
			return t.ApprovalChain[i].ApproverRole, true
		}
	}
	return "", false
}

// resolveChairman picks the approver for the chairman tier: the
// highest-numbered user holding chairman designation, falling back to a master
// user when no chairman exists.
func (e *Engine) resolveChairman(ctx context.Context) (User, error) {
	users, err := e.dir.ListUsers(ctx)
	if err != nil {
		return User{}, fmt.Errorf("list users: %w", err)
	}

	var chairman, master User
	for _, u := range users {
		if u.HasChairmanAuthority() {
			if chairman.ID == "" || idGreater(u.ID, chairman.ID) {
				chairman = u
			}
			continue
		}
		if u.Role == RoleMaster {
			if master.ID == "" || idGreater(u.ID, master.ID) {
				master = u
			}
		}
	}
	if chairman.ID != "" {
		return chairman, nil
	}
	if master.ID != "" {
		return master, nil
	}
	return User{}, ErrNoApprover
}

// idGreater compares opaque ids numerically when both parse as integers and
// lexicographically otherwise.
func idGreater(a, b string) bool {
	na, errA := strconv.ParseInt(a, 10, 64)
	nb, errB := strconv.ParseInt(b, 10, 64)
	if errA == nil && errB == nil {
		return na > nb
	}
	return a > b
}
