package directory

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/crowvale/taskdeck/internal/workflow"
)

type Postgres struct {
	pool *pgxpool.Pool
}

func NewPostgres(ctx context.Context, pool *pgxpool.Pool) (*Postgres, error) {
	stmt := `CREATE TABLE IF NOT EXISTS users (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL DEFAULT '',
		role TEXT NOT NULL,
		designation TEXT NOT NULL DEFAULT ''
	);`
	if _, err := pool.Exec(ctx, stmt); err != nil {
		return nil, fmt.Errorf("init users schema: %w", err)
	}
	return &Postgres{pool: pool}, nil
}

func (d *Postgres) ListUsers(ctx context.Context) ([]workflow.User, error) {
	rows, err := d.pool.Query(ctx, `SELECT id, name, role, designation FROM users ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	defer rows.Close()

	out := make([]workflow.User, 0, 8)
	for rows.Next() {
		var (
			u    workflow.User
			role string
		)
		if err := rows.Scan(&u.ID, &u.Name, &role, &u.Designation); err != nil {
			return nil, fmt.Errorf("scan user row: %w", err)
		}
		u.Role = workflow.Role(role)
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate user rows: %w", err)
	}
	return out, nil
}

func (d *Postgres) UpsertUser(ctx context.Context, u workflow.User) error {
	if strings.TrimSpace(u.ID) == "" {
		return errors.New("user id is required")
	}
	_, err := d.pool.Exec(ctx,
		`INSERT INTO users (id, name, role, designation) VALUES ($1,$2,$3,$4)
		 ON CONFLICT (id) DO UPDATE SET
			name=EXCLUDED.name,
			role=EXCLUDED.role,
			designation=EXCLUDED.designation`,
		u.ID, u.Name, string(u.Role), u.Designation,
	)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
