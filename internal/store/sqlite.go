// Package store persists project snapshots, baselines and the restore
// audit trail in an embedded SQLite database.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite" // Pure-Go SQLite driver.

	"github.com/papapumpkin/parsec/internal/schedule"
)

// schema contains the DDL executed on first open. Tasks, constraints and
// baselines are stored as JSON documents; the columns beside them exist for
// lookup and ordering.
const schema = `
CREATE TABLE IF NOT EXISTS projects (
    id         TEXT PRIMARY KEY,
    name       TEXT NOT NULL DEFAULT '',
    start_date TEXT NOT NULL DEFAULT '',
    end_date   TEXT NOT NULL DEFAULT '',
    budget     TEXT NOT NULL DEFAULT '0',
    capacity   TEXT NOT NULL DEFAULT '{}',
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS tasks (
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    id         TEXT NOT NULL,
    position   INTEGER NOT NULL,
    doc        TEXT NOT NULL,
    updated_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP,
    PRIMARY KEY (project_id, id)
);

CREATE TABLE IF NOT EXISTS dependencies (
    project_id      TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    predecessor     TEXT NOT NULL,
    successor       TEXT NOT NULL,
    dependency_type TEXT NOT NULL DEFAULT 'finish_to_start',
    lag_days        INTEGER NOT NULL DEFAULT 0,
    position        INTEGER NOT NULL,
    PRIMARY KEY (project_id, predecessor, successor)
);

CREATE TABLE IF NOT EXISTS constraints (
    project_id TEXT NOT NULL REFERENCES projects(id) ON DELETE CASCADE,
    position   INTEGER NOT NULL,
    doc        TEXT NOT NULL,
    PRIMARY KEY (project_id, position)
);

CREATE TABLE IF NOT EXISTS baselines (
    sequence   INTEGER PRIMARY KEY AUTOINCREMENT,
    version    TEXT NOT NULL UNIQUE,
    id         TEXT NOT NULL,
    project_id TEXT NOT NULL DEFAULT '',
    doc        TEXT NOT NULL,
    created_at TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_baselines_project ON baselines(project_id);

CREATE TABLE IF NOT EXISTS baseline_audit (
    seq        INTEGER PRIMARY KEY AUTOINCREMENT,
    id         TEXT NOT NULL UNIQUE,
    task_id    TEXT NOT NULL,
    project_id TEXT NOT NULL DEFAULT '',
    version    TEXT NOT NULL,
    action     TEXT NOT NULL,
    doc        TEXT NOT NULL,
    at         TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_baseline_audit_task ON baseline_audit(task_id);
`

// SQLiteStore implements engine.Repository and baseline.Store using a local
// SQLite database in WAL mode.
type SQLiteStore struct {
	db *sql.DB
}

// Open opens (or creates) a SQLite database at dbPath, enables WAL mode,
// foreign keys and a busy timeout, and creates the schema if needed.
func Open(ctx context.Context, dbPath string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("store: open database: %w", err)
	}

	// SQLite has a single writer. One connection keeps the PRAGMAs below in
	// effect for every statement.
	db.SetMaxOpenConns(1)

	for _, pragma := range []string{"PRAGMA journal_mode=WAL", "PRAGMA busy_timeout=5000", "PRAGMA foreign_keys=ON"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("store: %s: %w", pragma, err)
		}
	}
	if _, err := db.ExecContext(ctx, schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: create schema: %w", err)
	}
	return &SQLiteStore{db: db}, nil
}

// Close releases the database connection.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// SaveSnapshot replaces everything stored for the snapshot's project.
func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap schedule.Snapshot) error {
	p := snap.Project
	if p.ID == "" {
		return &schedule.ValidationError{Category: schedule.ValCatMissingField, Field: "project.id", Reason: "project id is required"}
	}
	capacity, err := json.Marshal(p.Capacity)
	if err != nil {
		return fmt.Errorf("store: encode capacity: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx for %q: %w", p.ID, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	const upsert = `
		INSERT INTO projects (id, name, start_date, end_date, budget, capacity, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT(id) DO UPDATE SET
			name       = excluded.name,
			start_date = excluded.start_date,
			end_date   = excluded.end_date,
			budget     = excluded.budget,
			capacity   = excluded.capacity,
			updated_at = CURRENT_TIMESTAMP`
	if _, err := tx.ExecContext(ctx, upsert, p.ID, p.Name, p.Start.String(), p.End.String(), p.Budget.String(), string(capacity)); err != nil {
		return fmt.Errorf("store: save project %q: %w", p.ID, err)
	}
	for _, table := range []string{"tasks", "dependencies", "constraints"} {
		if _, err := tx.ExecContext(ctx, "DELETE FROM "+table+" WHERE project_id = ?", p.ID); err != nil {
			return fmt.Errorf("store: clear %s for %q: %w", table, p.ID, err)
		}
	}

	taskStmt, err := tx.PrepareContext(ctx, `INSERT INTO tasks (project_id, id, position, doc) VALUES (?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("store: prepare task insert: %w", err)
	}
	defer taskStmt.Close()
	for i, t := range snap.Tasks {
		t.ProjectID = p.ID
		doc, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("store: encode task %q: %w", t.ID, err)
		}
		if _, err := taskStmt.ExecContext(ctx, p.ID, t.ID, i, string(doc)); err != nil {
			return fmt.Errorf("store: insert task %q: %w", t.ID, err)
		}
	}

	for i, e := range snap.Edges {
		const q = `INSERT INTO dependencies (project_id, predecessor, successor, dependency_type, lag_days, position) VALUES (?, ?, ?, ?, ?, ?)`
		if _, err := tx.ExecContext(ctx, q, p.ID, e.Predecessor, e.Successor, string(e.Kind()), e.LagDays, i); err != nil {
			return fmt.Errorf("store: insert dependency %s: %w", e, err)
		}
	}

	for i, c := range snap.Constraints {
		doc, err := json.Marshal(c)
		if err != nil {
			return fmt.Errorf("store: encode constraint %d: %w", i, err)
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO constraints (project_id, position, doc) VALUES (?, ?, ?)`, p.ID, i, string(doc)); err != nil {
			return fmt.Errorf("store: insert constraint %d: %w", i, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit snapshot %q: %w", p.ID, err)
	}
	return nil
}

// LoadSnapshot reads a project with its tasks, dependencies and constraints.
func (s *SQLiteStore) LoadSnapshot(ctx context.Context, projectID string) (schedule.Snapshot, error) {
	var snap schedule.Snapshot
	var start, end, budget, capacity string
	err := s.db.QueryRowContext(ctx,
		`SELECT id, name, start_date, end_date, budget, capacity FROM projects WHERE id = ?`, projectID,
	).Scan(&snap.Project.ID, &snap.Project.Name, &start, &end, &budget, &capacity)
	if errors.Is(err, sql.ErrNoRows) {
		return snap, &schedule.NotFoundError{Kind: "project", Key: projectID}
	}
	if err != nil {
		return snap, fmt.Errorf("store: load project %q: %w", projectID, err)
	}
	if snap.Project, err = decodeProject(snap.Project, start, end, budget, capacity); err != nil {
		return snap, fmt.Errorf("store: decode project %q: %w", projectID, err)
	}

	if snap.Tasks, err = s.tasks(ctx, projectID); err != nil {
		return snap, err
	}
	if snap.Edges, err = s.dependencies(ctx, projectID); err != nil {
		return snap, err
	}
	if snap.Constraints, err = s.constraints(ctx, projectID); err != nil {
		return snap, err
	}
	return snap, nil
}

// decodeProject fills the columns stored as text.
func decodeProject(p schedule.Project, start, end, budget, capacity string) (schedule.Project, error) {
	var err error
	if start != "" {
		if p.Start, err = schedule.ParseDate(start); err != nil {
			return p, err
		}
	}
	if end != "" {
		if p.End, err = schedule.ParseDate(end); err != nil {
			return p, err
		}
	}
	if p.Budget, err = decimal.NewFromString(budget); err != nil {
		return p, fmt.Errorf("budget: %w", err)
	}
	if err := json.Unmarshal([]byte(capacity), &p.Capacity); err != nil {
		return p, fmt.Errorf("capacity: %w", err)
	}
	if len(p.Capacity) == 0 {
		p.Capacity = nil
	}
	return p, nil
}

func (s *SQLiteStore) tasks(ctx context.Context, projectID string) ([]schedule.Task, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM tasks WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: query tasks: %w", err)
	}
	defer rows.Close()

	var out []schedule.Task
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan task: %w", err)
		}
		var t schedule.Task
		if err := json.Unmarshal([]byte(doc), &t); err != nil {
			return nil, fmt.Errorf("store: decode task: %w", err)
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate tasks: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) dependencies(ctx context.Context, projectID string) ([]schedule.Edge, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT predecessor, successor, dependency_type, lag_days FROM dependencies WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: query dependencies: %w", err)
	}
	defer rows.Close()

	var out []schedule.Edge
	for rows.Next() {
		var e schedule.Edge
		var kind string
		if err := rows.Scan(&e.Predecessor, &e.Successor, &kind, &e.LagDays); err != nil {
			return nil, fmt.Errorf("store: scan dependency: %w", err)
		}
		e.Type = schedule.DependencyType(kind)
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate dependencies: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) constraints(ctx context.Context, projectID string) ([]schedule.Constraint, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT doc FROM constraints WHERE project_id = ? ORDER BY position`, projectID)
	if err != nil {
		return nil, fmt.Errorf("store: query constraints: %w", err)
	}
	defer rows.Close()

	var out []schedule.Constraint
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan constraint: %w", err)
		}
		var c schedule.Constraint
		if err := json.Unmarshal([]byte(doc), &c); err != nil {
			return nil, fmt.Errorf("store: decode constraint: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate constraints: %w", err)
	}
	return out, nil
}

// ApplyTasks overwrites stored tasks in one transaction. An unknown task
// aborts the whole update.
func (s *SQLiteStore) ApplyTasks(ctx context.Context, projectID string, tasks []schedule.Task) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("store: begin tx for %q: %w", projectID, err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	stmt, err := tx.PrepareContext(ctx, `UPDATE tasks SET doc = ?, updated_at = CURRENT_TIMESTAMP WHERE project_id = ? AND id = ?`)
	if err != nil {
		return fmt.Errorf("store: prepare task update: %w", err)
	}
	defer stmt.Close()

	for _, t := range tasks {
		t.ProjectID = projectID
		doc, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("store: encode task %q: %w", t.ID, err)
		}
		res, err := stmt.ExecContext(ctx, string(doc), projectID, t.ID)
		if err != nil {
			return fmt.Errorf("store: update task %q: %w", t.ID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("store: update task %q rows affected: %w", t.ID, err)
		}
		if n == 0 {
			return &schedule.NotFoundError{Kind: "task", Key: projectID + "/" + t.ID}
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("store: commit tasks for %q: %w", projectID, err)
	}
	return nil
}
