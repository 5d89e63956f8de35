// Package sweep reactivates paused tasks whose due date is closing in. The
// transition is time-driven, not user-driven, and goes through a conditional
// gateway write so it can never resurrect a task a user has already moved off
// paused.
package sweep

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/crowvale/taskdeck/internal/observability"
	"github.com/crowvale/taskdeck/internal/store"
	"github.com/crowvale/taskdeck/internal/workflow"
)

// Reactivator is the slice of the gateway the sweeper needs.
type Reactivator interface {
	MarkPendingIfPaused(ctx context.Context, id string) (bool, error)
}

type Sweeper struct {
	store     *store.Store
	gw        Reactivator
	interval  time.Duration
	lookahead time.Duration
	metrics   *observability.Metrics
	logger    *zap.Logger
	now       func() time.Time
}

func New(st *store.Store, gw Reactivator, interval, lookahead time.Duration, metrics *observability.Metrics, logger *zap.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Hour
	}
	if lookahead <= 0 {
		lookahead = 240 * time.Hour
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Sweeper{
		store:     st,
		gw:        gw,
		interval:  interval,
		lookahead: lookahead,
		metrics:   metrics,
		logger:    logger,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the sweeper's time source. Tests only.
func (s *Sweeper) SetClock(now func() time.Time) {
	if now != nil {
		s.now = now
	}
}

func (s *Sweeper) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.SweepOnce(ctx)
			}
		}
	}()
}

// SweepOnce promotes every paused task due within the lookahead window back
// to pending. The store is not written here: the gateway's conditional update
// publishes a snapshot, and the feed path applies it.
func (s *Sweeper) SweepOnce(ctx context.Context) {
	now := s.now()
	deadline := now.Add(s.lookahead)
	reactivated := 0

	for _, t := range s.store.GetAll() {
		if t.Status != workflow.StatusPaused {
			continue
		}
		if t.DueDate.After(deadline) {
			continue
		}
		ok, err := s.gw.MarkPendingIfPaused(ctx, t.ID)
		if err != nil {
			s.logger.Warn("reactivation write failed", zap.String("task_id", t.ID), zap.Error(err))
			continue
		}
		if !ok {
			// Someone moved the task off paused since the snapshot; leave it.
			continue
		}
		reactivated++
		if s.metrics != nil {
			s.metrics.SweepReactivated.Inc()
		}
	}

	if reactivated > 0 {
		s.logger.Info("reactivation sweep",
			zap.Int("reactivated", reactivated),
			zap.Duration("lookahead", s.lookahead),
		)
	}
}
