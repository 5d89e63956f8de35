package gateway

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crowvale/taskdeck/internal/feed"
	"github.com/crowvale/taskdeck/internal/workflow"
)

// PostgresGateway persists tasks and their approval chains in postgres. Feed
// snapshots are published from this process after each local write; the hub is
// the fan-out point for every subscriber in the process.
type PostgresGateway struct {
	pool *pgxpool.Pool
	hub  *feed.Hub
	now  func() time.Time
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*PostgresGateway, error) {
	if err := initTaskSchema(ctx, pool); err != nil {
		return nil, err
	}
	return &PostgresGateway{
		pool: pool,
		hub:  feed.NewHub(0),
		now:  func() time.Time { return time.Now().UTC() },
	}, nil
}

func initTaskSchema(ctx context.Context, pool *pgxpool.Pool) error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS tasks (
			id TEXT PRIMARY KEY,
			title TEXT NOT NULL,
			description TEXT NOT NULL DEFAULT '',
			category TEXT NOT NULL DEFAULT '',
			priority TEXT NOT NULL,
			due_date TIMESTAMPTZ NOT NULL,
			created_by TEXT NOT NULL,
			assigned_to TEXT NOT NULL,
			assigned_director TEXT NOT NULL DEFAULT '',
			assigned_employee TEXT NOT NULL DEFAULT '',
			skip_director_approval BOOLEAN NOT NULL DEFAULT FALSE,
			direct_chairman_approval BOOLEAN NOT NULL DEFAULT FALSE,
			status TEXT NOT NULL,
			current_approval_level TEXT NOT NULL,
			rejection_reason TEXT NOT NULL DEFAULT '',
			reapproval_reason TEXT NOT NULL DEFAULT '',
			paused_at TIMESTAMPTZ NULL,
			paused_by TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_tasks_status_due ON tasks (status, due_date);`,
		`CREATE TABLE IF NOT EXISTS approval_entries (
			id TEXT PRIMARY KEY,
			task_id TEXT NOT NULL REFERENCES tasks(id) ON DELETE CASCADE,
			approver_id TEXT NOT NULL,
			approver_role TEXT NOT NULL,
			status TEXT NOT NULL,
			rejection_reason TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL,
			approved_at TIMESTAMPTZ NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_approval_entries_task ON approval_entries (task_id, created_at);`,
	}

	for _, stmt := range stmts {
		if _, err := pool.Exec(ctx, stmt); err != nil {
			return fmt.Errorf("init task schema failed on %q: %w", stmt, err)
		}
	}
	return nil
}

func (g *PostgresGateway) CreateTask(ctx context.Context, t workflow.Task) (workflow.Task, error) {
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

	if err := g.saveTask(ctx, stored); err != nil {
		return workflow.Task{}, err
	}
	g.publish(ctx)
	return stored, nil
}

func (g *PostgresGateway) UpdateTask(ctx context.Context, t workflow.Task) error {
	tag, err := g.pool.Exec(ctx, `SELECT 1 FROM tasks WHERE id=$1`, t.ID)
	if err != nil {
		return fmt.Errorf("check task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, t.ID)
	}
	if err := g.saveTask(ctx, t); err != nil {
		return err
	}
	g.publish(ctx)
	return nil
}

func (g *PostgresGateway) saveTask(ctx context.Context, t workflow.Task) error {
	tx, err := g.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO tasks (
			id, title, description, category, priority, due_date, created_by,
			assigned_to, assigned_director, assigned_employee,
			skip_director_approval, direct_chairman_approval,
			status, current_approval_level, rejection_reason, reapproval_reason,
			paused_at, paused_by, created_at, updated_at
		) VALUES (
			$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20
		)
		ON CONFLICT (id) DO UPDATE SET
			title=EXCLUDED.title,
			description=EXCLUDED.description,
			category=EXCLUDED.category,
			priority=EXCLUDED.priority,
			due_date=EXCLUDED.due_date,
			created_by=EXCLUDED.created_by,
			assigned_to=EXCLUDED.assigned_to,
			assigned_director=EXCLUDED.assigned_director,
			assigned_employee=EXCLUDED.assigned_employee,
			skip_director_approval=EXCLUDED.skip_director_approval,
			direct_chairman_approval=EXCLUDED.direct_chairman_approval,
			status=EXCLUDED.status,
			current_approval_level=EXCLUDED.current_approval_level,
			rejection_reason=EXCLUDED.rejection_reason,
			reapproval_reason=EXCLUDED.reapproval_reason,
			paused_at=EXCLUDED.paused_at,
			paused_by=EXCLUDED.paused_by,
			created_at=EXCLUDED.created_at,
			updated_at=EXCLUDED.updated_at`,
		t.ID,
		t.Title,
		t.Description,
		t.Category,
		string(t.Priority),
		t.DueDate,
		t.CreatedBy,
		t.AssignedTo,
		t.AssignedDirector,
		t.AssignedEmployee,
		t.SkipDirectorApproval,
		t.DirectChairmanApproval,
		string(t.Status),
		string(t.CurrentApprovalLevel),
		t.RejectionReason,
		t.ReapprovalReason,
		t.PausedAt,
		t.PausedBy,
		t.CreatedAt,
		t.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("upsert task: %w", err)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM approval_entries WHERE task_id=$1`, t.ID); err != nil {
		return fmt.Errorf("delete prior approval entries: %w", err)
	}
	for _, e := range t.ApprovalChain {
		_, err := tx.Exec(ctx,
			`INSERT INTO approval_entries (
				id, task_id, approver_id, approver_role, status, rejection_reason, created_at, approved_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			e.ID,
			t.ID,
			e.ApproverID,
			string(e.ApproverRole),
			string(e.Status),
			e.RejectionReason,
			e.CreatedAt,
			e.ApprovedAt,
		)
		if err != nil {
			return fmt.Errorf("insert approval entry: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit tx: %w", err)
	}
	return nil
}

func (g *PostgresGateway) DeleteTask(ctx context.Context, id string) error {
	tag, err := g.pool.Exec(ctx, `DELETE FROM tasks WHERE id=$1`, id)
	if err != nil {
		return fmt.Errorf("delete task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	g.publish(ctx)
	return nil
}

func (g *PostgresGateway) MarkPendingIfPaused(ctx context.Context, id string) (bool, error) {
	tag, err := g.pool.Exec(ctx,
		`UPDATE tasks
		    SET status=$2, current_approval_level=$3, paused_at=NULL, paused_by='', updated_at=$4
		  WHERE id=$1 AND status=$5`,
		id,
		string(workflow.StatusPending),
		string(workflow.LevelNone),
		g.now(),
		string(workflow.StatusPaused),
	)
	if err != nil {
		return false, fmt.Errorf("reactivate task: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return false, nil
	}
	g.publish(ctx)
	return true, nil
}

func (g *PostgresGateway) ListTasks(ctx context.Context) ([]workflow.Task, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, title, description, category, priority, due_date, created_by,
		        assigned_to, assigned_director, assigned_employee,
		        skip_director_approval, direct_chairman_approval,
		        status, current_approval_level, rejection_reason, reapproval_reason,
		        paused_at, paused_by, created_at, updated_at
		   FROM tasks ORDER BY created_at DESC`,
	)
	if err != nil {
		return nil, fmt.Errorf("list tasks: %w", err)
	}
	defer rows.Close()

	out := make([]workflow.Task, 0, 16)
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task row: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate task rows: %w", err)
	}

	for i := range out {
		chain, err := g.loadChain(ctx, out[i].ID)
		if err != nil {
			return nil, err
		}
		out[i].ApprovalChain = chain
	}
	return out, nil
}

func (g *PostgresGateway) loadChain(ctx context.Context, taskID string) ([]workflow.ApprovalEntry, error) {
	rows, err := g.pool.Query(ctx,
		`SELECT id, approver_id, approver_role, status, rejection_reason, created_at, approved_at
		   FROM approval_entries WHERE task_id=$1 ORDER BY created_at ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("list approval entries: %w", err)
	}
	defer rows.Close()

	chain := make([]workflow.ApprovalEntry, 0, 2)
	for rows.Next() {
		var (
			e      workflow.ApprovalEntry
			role   string
			status string
		)
		if err := rows.Scan(&e.ID, &e.ApproverID, &role, &status, &e.RejectionReason, &e.CreatedAt, &e.ApprovedAt); err != nil {
			return nil, fmt.Errorf("scan approval entry: %w", err)
		}
		e.TaskID = taskID
		e.ApproverRole = workflow.Role(role)
		e.Status = workflow.ApprovalStatus(status)
		chain = append(chain, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate approval entry rows: %w", err)
	}
	if len(chain) == 0 {
		return nil, nil
	}
	return chain, nil
}

func scanTask(rows pgx.Rows) (workflow.Task, error) {
	var (
		t        workflow.Task
		priority string
		status   string
		level    string
	)
	if err := rows.Scan(
		&t.ID,
		&t.Title,
		&t.Description,
		&t.Category,
		&priority,
		&t.DueDate,
		&t.CreatedBy,
		&t.AssignedTo,
		&t.AssignedDirector,
		&t.AssignedEmployee,
		&t.SkipDirectorApproval,
		&t.DirectChairmanApproval,
		&status,
		&level,
		&t.RejectionReason,
		&t.ReapprovalReason,
		&t.PausedAt,
		&t.PausedBy,
		&t.CreatedAt,
		&t.UpdatedAt,
	); err != nil {
		return workflow.Task{}, err
	}
	t.Priority = workflow.Priority(priority)
	t.Status = workflow.Status(status)
	t.CurrentApprovalLevel = workflow.ApprovalLevel(level)
	return t, nil
}

func (g *PostgresGateway) SubscribeTasks(onSnapshot func([]workflow.Task)) (feed.Teardown, error) {
	ch, cancel := g.hub.Subscribe()

	ctx, cancelLoad := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancelLoad()
	initial, err := g.ListTasks(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("initial snapshot: %w", err)
	}
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

// publish queries the canonical state and fans it out. Best effort: a read
// failure here only delays subscribers until the next write.
func (g *PostgresGateway) publish(ctx context.Context) {
	snapshot, err := g.ListTasks(ctx)
	if err != nil {
		return
	}
	g.hub.Publish(snapshot)
}

func (g *PostgresGateway) Close() error {
	g.pool.Close()
	return nil
}
