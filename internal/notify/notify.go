// Package notify holds the fire-and-forget collaborators: notification
// dispatch and the activity audit trail. Failures here are never allowed to
// block or roll back a task transition.
package notify

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// Dispatcher delivers a user-facing message. The transport (FCM, WhatsApp,
// email) lives behind this seam.
type Dispatcher interface {
	Notify(ctx context.Context, userID, message string) error
}

// Activity is one best-effort audit record of a workflow action.
type Activity struct {
	TaskID  string    `json:"task_id"`
	ActorID string    `json:"actor_id"`
	Action  string    `json:"action"`
	Detail  string    `json:"detail,omitempty"`
	At      time.Time `json:"at"`
}

type ActivityLog interface {
	RecordActivity(ctx context.Context, entry Activity) error
}

// LogSink satisfies both interfaces by writing structured log lines. It is
// the default wiring when no real transport is configured.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogSink{logger: logger}
}

func (s *LogSink) Notify(_ context.Context, userID, message string) error {
	s.logger.Info("notify",
		zap.String("user_id", userID),
		zap.String("message", message),
	)
	return nil
}

func (s *LogSink) RecordActivity(_ context.Context, entry Activity) error {
	s.logger.Info("activity",
		zap.String("task_id", entry.TaskID),
		zap.String("actor_id", entry.ActorID),
		zap.String("action", entry.Action),
		zap.String("detail", entry.Detail),
		zap.Time("at", entry.At),
	)
	return nil
}
