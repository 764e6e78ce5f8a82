// Package postgres implements the project repository and baseline store on
// PostgreSQL through a pgx connection pool.
package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/schedule"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS parsec_projects (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    start_date DATE,
    end_date   DATE,
    budget     NUMERIC NOT NULL DEFAULT 0,
    capacity   JSONB NOT NULL DEFAULT '{}',
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE TABLE IF NOT EXISTS parsec_tasks (
    project_id TEXT NOT NULL REFERENCES parsec_projects(id) ON DELETE CASCADE,
    id         TEXT NOT NULL,
    position   INTEGER NOT NULL,
    doc        JSONB NOT NULL,
    updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS parsec_dependencies (
    project_id      TEXT NOT NULL REFERENCES parsec_projects(id) ON DELETE CASCADE,
    predecessor     TEXT NOT NULL,
    successor       TEXT NOT NULL,
    dependency_type TEXT NOT NULL DEFAULT 'finish_to_start',
    lag_days        INTEGER NOT NULL DEFAULT 0,
    position        INTEGER NOT NULL,
    PRIMARY KEY (project_id, predecessor, successor)
);

CREATE TABLE IF NOT EXISTS parsec_constraints (
    project_id TEXT NOT NULL REFERENCES parsec_projects(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    doc        JSONB NOT NULL,
    PRIMARY KEY (project_id, position)
);

CREATE TABLE IF NOT EXISTS parsec_baselines (
    sequence   BIGSERIAL PRIMARY KEY,
    version    TEXT NOT NULL UNIQUE,
    id         TEXT NOT NULL,
    project_id TEXT NOT NULL DEFAULT '',
    doc        JSONB NOT NULL,
    created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_parsec_baselines_project ON parsec_baselines(project_id);

CREATE TABLE IF NOT EXISTS parsec_baseline_audit (
    seq        BIGSERIAL PRIMARY KEY,
    id         TEXT NOT NULL UNIQUE,
    task_id    TEXT NOT NULL,
    project_id TEXT NOT NULL DEFAULT '',
    version    TEXT NOT NULL,
    action     TEXT NOT NULL,
    doc        JSONB NOT NULL,
    at         TIMESTAMPTZ NOT NULL DEFAULT NOW()
);

CREATE INDEX IF NOT EXISTS idx_parsec_baseline_audit_task ON parsec_baseline_audit(task_id);
`

// PGStore implements engine.Repository and baseline.Store using PostgreSQL.
type PGStore struct {
	db *pgxpool.Pool
}

// New creates a PGStore backed by the given pgx connection pool.
func New(db *pgxpool.Pool) *PGStore {
	return &PGStore{db: db}
}

// Connect opens a pool for databaseURL and creates the schema.
func Connect(ctx context.Context, databaseURL string) (*PGStore, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("postgres: connect: %w", err)
	}
	s := New(pool)
	if err := s.CreateSchema(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return s, nil
}

// Close releases the pool.
func (s *PGStore) Close() {
	s.db.Close()
}

// CreateSchema creates the parsec tables if they don't exist.
func (s *PGStore) CreateSchema(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("postgres: create schema: %w", err)
	}
	return nil
}

// DropSchema drops every parsec table.
func (s *PGStore) DropSchema(ctx context.Context) error {
	_, err := s.db.Exec(ctx, `DROP TABLE IF EXISTS parsec_baseline_audit, parsec_baselines,
		parsec_constraints, parsec_dependencies, parsec_tasks, parsec_projects CASCADE`)
	if err != nil {
		return fmt.Errorf("postgres: drop schema: %w", err)
	}
	return nil
}

// dateArg maps the zero Date to NULL.
func dateArg(d schedule.Date) any {
	if d.IsZero() {
		return nil
	}
	return d.String()
}

// SaveSnapshot replaces everything stored for the snapshot's project.
func (s *PGStore) SaveSnapshot(ctx context.Context, snap schedule.Snapshot) error {
	p := snap.Project
	if p.ID == "" {
		return &schedule.ValidationError{Category: schedule.ValCatMissingField, Field: "project.id", Reason: "project id is required"}
	}
	capacity, err := json.Marshal(p.Capacity)
	if err != nil {
		return fmt.Errorf("postgres: encode capacity: %w", err)
	}

	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
			INSERT INTO parsec_projects (id, name, start_date, end_date, budget, capacity, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, NOW())
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name, start_date = EXCLUDED.start_date, end_date = EXCLUDED.end_date,
				budget = EXCLUDED.budget, capacity = EXCLUDED.capacity, updated_at = NOW()`,
			p.ID, p.Name, dateArg(p.Start), dateArg(p.End), p.Budget.String(), capacity)
		if err != nil {
			return fmt.Errorf("postgres: save project %q: %w", p.ID, err)
		}
		for _, table := range []string{"parsec_tasks", "parsec_dependencies", "parsec_constraints"} {
			if _, err := tx.Exec(ctx, "DELETE FROM "+table+" WHERE project_id = $1", p.ID); err != nil {
				return fmt.Errorf("postgres: clear %s for %q: %w", table, p.ID, err)
			}
		}

		batch := &pgx.Batch{}
		for i, t := range snap.Tasks {
			t.ProjectID = p.ID
			doc, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("postgres: encode task %q: %w", t.ID, err)
			}
			batch.Queue(`INSERT INTO parsec_tasks (project_id, id, position, doc) VALUES ($1, $2, $3, $4)`, p.ID, t.ID, i, doc)
		}
		for i, e := range snap.Edges {
			batch.Queue(`INSERT INTO parsec_dependencies (project_id, predecessor, successor, dependency_type, lag_days, position)
				VALUES ($1, $2, $3, $4, $5, $6)`, p.ID, e.Predecessor, e.Successor, string(e.Kind()), e.LagDays, i)
		}
		for i, c := range snap.Constraints {
			doc, err := json.Marshal(c)
			if err != nil {
				return fmt.Errorf("postgres: encode constraint %d: %w", i, err)
			}
			batch.Queue(`INSERT INTO parsec_constraints (project_id, position, doc) VALUES ($1, $2, $3)`, p.ID, i, doc)
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("postgres: insert snapshot rows for %q: %w", p.ID, err)
		}
		return nil
	})
}

// LoadSnapshot reads a project with its tasks, dependencies and constraints.
func (s *PGStore) LoadSnapshot(ctx context.Context, projectID string) (schedule.Snapshot, error) {
	var snap schedule.Snapshot
	var start, end *string
	var budget string
	var capacity []byte
	err := s.db.QueryRow(ctx, `
		SELECT id, name, to_char(start_date, 'YYYY-MM-DD'), to_char(end_date, 'YYYY-MM-DD'), budget::text, capacity
		FROM parsec_projects WHERE id = $1`, projectID,
	).Scan(&snap.Project.ID, &snap.Project.Name, &start, &end, &budget, &capacity)
	if errors.Is(err, pgx.ErrNoRows) {
		return snap, &schedule.NotFoundError{Kind: "project", Key: projectID}
	}
	if err != nil {
		return snap, fmt.Errorf("postgres: load project %q: %w", projectID, err)
	}
	if err := decodeProject(&snap.Project, start, end, budget, capacity); err != nil {
		return snap, fmt.Errorf("postgres: decode project %q: %w", projectID, err)
	}

	if snap.Tasks, err = queryDocs[schedule.Task](ctx, s.db,
		`SELECT doc FROM parsec_tasks WHERE project_id = $1 ORDER BY position`, projectID); err != nil {
		return snap, fmt.Errorf("postgres: tasks of %q: %w", projectID, err)
	}
	if snap.Constraints, err = queryDocs[schedule.Constraint](ctx, s.db,
		`SELECT doc FROM parsec_constraints WHERE project_id = $1 ORDER BY position`, projectID); err != nil {
		return snap, fmt.Errorf("postgres: constraints of %q: %w", projectID, err)
	}

	rows, err := s.db.Query(ctx, `SELECT predecessor, successor, dependency_type, lag_days
		FROM parsec_dependencies WHERE project_id = $1 ORDER BY position`, projectID)
	if err != nil {
		return snap, fmt.Errorf("postgres: query dependencies: %w", err)
	}
	snap.Edges, err = pgx.CollectRows(rows, func(row pgx.CollectableRow) (schedule.Edge, error) {
		var e schedule.Edge
		var kind string
		err := row.Scan(&e.Predecessor, &e.Successor, &kind, &e.LagDays)
		e.Type = schedule.DependencyType(kind)
		return e, err
	})
	if err != nil {
		return snap, fmt.Errorf("postgres: scan dependencies: %w", err)
	}
	if len(snap.Edges) == 0 {
		snap.Edges = nil
	}
	return snap, nil
}

func decodeProject(p *schedule.Project, start, end *string, budget string, capacity []byte) error {
	var err error
	if start != nil {
		if p.Start, err = schedule.ParseDate(*start); err != nil {
			return err
		}
	}
	if end != nil {
		if p.End, err = schedule.ParseDate(*end); err != nil {
			return err
		}
	}
	if p.Budget, err = decimal.NewFromString(budget); err != nil {
		return fmt.Errorf("budget: %w", err)
	}
	if err := json.Unmarshal(capacity, &p.Capacity); err != nil {
		return fmt.Errorf("capacity: %w", err)
	}
	if len(p.Capacity) == 0 {
		p.Capacity = nil
	}
	return nil
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// queryDocs decodes a single JSONB column into values of T. No rows gives
// a nil slice.
func queryDocs[T any](ctx context.Context, q querier, sql string, args ...any) ([]T, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	out, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (T, error) {
		var v T
		var doc []byte
		if err := row.Scan(&doc); err != nil {
			return v, err
		}
		return v, json.Unmarshal(doc, &v)
	})
	if err != nil || len(out) == 0 {
		return nil, err
	}
	return out, nil
}

// ApplyTasks overwrites stored tasks in one transaction. An unknown task
// aborts the whole update.
func (s *PGStore) ApplyTasks(ctx context.Context, projectID string, tasks []schedule.Task) error {
	return pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		for _, t := range tasks {
			t.ProjectID = projectID
			doc, err := json.Marshal(t)
			if err != nil {
				return fmt.Errorf("postgres: encode task %q: %w", t.ID, err)
			}
			ct, err := tx.Exec(ctx, `UPDATE parsec_tasks SET doc = $1, updated_at = NOW() WHERE project_id = $2 AND id = $3`, doc, projectID, t.ID)
			if err != nil {
				return fmt.Errorf("postgres: update task %q: %w", t.ID, err)
			}
			if ct.RowsAffected() == 0 {
				return &schedule.NotFoundError{Kind: "task", Key: projectID + "/" + t.ID}
			}
		}
		return nil
	})
}

// Projects returns every stored project id in order.
func (s *PGStore) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.Query(ctx, `SELECT id FROM parsec_projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("postgres: query projects: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("postgres: scan projects: %w", err)
	}
	return ids, nil
}

// DeleteProject removes a project and everything stored under it.
func (s *PGStore) DeleteProject(ctx context.Context, projectID string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM parsec_projects WHERE id = $1`, projectID)
	if err != nil {
		return fmt.Errorf("postgres: delete project %q: %w", projectID, err)
	}
	if ct.RowsAffected() == 0 {
		return &schedule.NotFoundError{Kind: "project", Key: projectID}
	}
	return nil
}
