package workflow

import (
	"strings"
	"time"
)

type Status string

const (
	StatusPending                 Status = "pending"
	StatusAssignedToDirector      Status = "assigned_to_director"
	StatusAssignedToEmployee      Status = "assigned_to_employee"
	StatusInProgress              Status = "in_progress"
	StatusPendingDirectorApproval Status = "pending_director_approval"
	StatusPendingChairmanApproval Status = "pending_chairman_approval"
	StatusCompleted               Status = "completed"
	StatusRejected                Status = "rejected"
	StatusPaused                  Status = "paused"
)

type ApprovalLevel string

const (
	LevelNone     ApprovalLevel = "none"
	LevelDirector ApprovalLevel = "director"
	LevelAdmin    ApprovalLevel = "admin"
	LevelChairman ApprovalLevel = "chairman"
)

type ApprovalStatus string

const (
	ApprovalPending  ApprovalStatus = "pending"
	ApprovalApproved ApprovalStatus = "approved"
	ApprovalRejected ApprovalStatus = "rejected"
)

type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

type Role string

const (
	RoleMaster   Role = "master"
	RoleAdmin    Role = "admin"
	RoleDirector Role = "director"
	RoleEmployee Role = "employee"
	RoleChairman Role = "chairman"
)

// User is the read-only actor entity consumed from the directory service.
// Designation layers extra authority on top of the coarse role: a master with
// designation "chairman" carries chairman approval authority.
type User struct {
	ID          string `json:"id"`
	Name        string `json:"name,omitempty"`
	Role        Role   `json:"role"`
	Designation string `json:"designation,omitempty"`
}

func (u User) HasChairmanAuthority() bool {
	return u.Role == RoleChairman || strings.EqualFold(strings.TrimSpace(u.Designation), "chairman")
}

func (u User) HasAssignmentAuthority() bool {
	return u.Role == RoleMaster || u.HasChairmanAuthority()
}

// ApprovalEntry is one approval request in a task's chain. Entries are
// append-only: a rejected entry stays in the chain for audit and reapproval
// appends a fresh pending entry instead of resetting it.
type ApprovalEntry struct {
	ID              string         `json:"id"`
	TaskID          string         `json:"task_id"`
	ApproverID      string         `json:"approver_id"`
	ApproverRole    Role           `json:"approver_role"`
	Status          ApprovalStatus `json:"status"`
	RejectionReason string         `json:"rejection_reason,omitempty"`
	CreatedAt       time.Time      `json:"created_at"`
	ApprovedAt      *time.Time     `json:"approved_at,omitempty"`
}

type Task struct {
	ID          string    `json:"id"`
	Title       string    `json:"title"`
	Description string    `json:"description,omitempty"`
	Category    string    `json:"category,omitempty"`
	Priority    Priority  `json:"priority"`
	DueDate     time.Time `json:"due_date"`
	CreatedBy   string    `json:"created_by"`

	AssignedTo             string `json:"assigned_to"`
	AssignedDirector       string `json:"assigned_director,omitempty"`
	AssignedEmployee       string `json:"assigned_employee,omitempty"`
	SkipDirectorApproval   bool   `json:"skip_director_approval,omitempty"`
	DirectChairmanApproval bool   `json:"direct_chairman_approval,omitempty"`

	Status               Status          `json:"status"`
	CurrentApprovalLevel ApprovalLevel   `json:"current_approval_level"`
	ApprovalChain        []ApprovalEntry `json:"approval_chain,omitempty"`
	RejectionReason      string          `json:"rejection_reason,omitempty"`
	ReapprovalReason     string          `json:"reapproval_reason,omitempty"`

	PausedAt *time.Time `json:"paused_at,omitempty"`
	PausedBy string     `json:"paused_by,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (t Task) Clone() Task {
	out := t
	if t.ApprovalChain != nil {
		out.ApprovalChain = make([]ApprovalEntry, len(t.ApprovalChain))
		copy(out.ApprovalChain, t.ApprovalChain)
	}
	if t.PausedAt != nil {
		at := *t.PausedAt
		out.PausedAt = &at
	}
	return out
}

func (t Task) Terminal() bool {
	return t.Status == StatusCompleted || t.Status == StatusRejected
}

// Active reports whether the task is in a state a user is still working it,
// i.e. neither terminal, paused, nor waiting on an approval decision.
func (t Task) Active() bool {
	switch t.Status {
	case StatusPending, StatusAssignedToDirector, StatusAssignedToEmployee, StatusInProgress:
		return true
	default:
		return false
	}
}

// PendingEntry returns the chain entry currently awaiting a decision from the
// given approver role, if one exists.
func (t Task) PendingEntry(role Role) (ApprovalEntry, bool) {
	for _, e := range t.ApprovalChain {
		if e.ApproverRole == role && e.Status == ApprovalPending {
			return e, true
		}
	}
	return ApprovalEntry{}, false
}

// LevelForStatus derives the approval level a status implies. Every transition
// re-derives the level from the target status, which keeps the two consistent
// by construction.
func LevelForStatus(s Status) ApprovalLevel {
	switch s {
	case StatusPendingDirectorApproval:
		return LevelDirector
	case StatusPendingChairmanApproval:
		return LevelChairman
	default:
		return LevelNone
	}
}
