package workflow

import "errors"

var (
	// ErrUnauthorized means the actor's role or identity does not match what
	// the attempted transition requires. No state is mutated.
	ErrUnauthorized = errors.New("actor not authorized for this transition")

	// ErrInvalidTransition means the action is not defined for the task's
	// current status.
	ErrInvalidTransition = errors.New("transition not valid for current status")

	// ErrNoApprover means approver resolution found neither a chairman nor a
	// master user. This is a directory configuration problem, not a workflow
	// one, and the transition fails rather than dropping the approval step.
	ErrNoApprover = errors.New("no chairman or master user available to approve")
)
