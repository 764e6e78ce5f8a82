package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/schedule"
)

var _ baseline.Store = (*SQLiteStore)(nil)

// Insert implements baseline.Store. The sequence comes from the table's
// autoincrement key, so versions stay unique across processes.
func (s *SQLiteStore) Insert(ctx context.Context, b baseline.Baseline) (baseline.Baseline, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return b, fmt.Errorf("store: begin tx for baseline: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // rollback after commit is a no-op

	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	res, err := tx.ExecContext(ctx,
		`INSERT INTO baselines (version, id, project_id, doc, created_at) VALUES (?, ?, ?, '{}', ?)`,
		"pending-"+b.ID, b.ID, b.ProjectID, b.CreatedAt.UTC().Format(time.RFC3339Nano))
	if err != nil {
		return b, fmt.Errorf("store: insert baseline: %w", err)
	}
	seq, err := res.LastInsertId()
	if err != nil {
		return b, fmt.Errorf("store: baseline sequence: %w", err)
	}

	b = b.Clone()
	b.Sequence = seq
	b.Version = baseline.FormatVersion(b.CreatedAt, seq)
	doc, err := json.Marshal(b)
	if err != nil {
		return b, fmt.Errorf("store: encode baseline: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE baselines SET version = ?, doc = ? WHERE sequence = ?`, b.Version, string(doc), seq); err != nil {
		return b, fmt.Errorf("store: finalize baseline %s: %w", b.Version, err)
	}
	if err := tx.Commit(); err != nil {
		return b, fmt.Errorf("store: commit baseline %s: %w", b.Version, err)
	}
	return b, nil
}

// Get implements baseline.Store.
func (s *SQLiteStore) Get(ctx context.Context, version string) (baseline.Baseline, error) {
	var doc string
	err := s.db.QueryRowContext(ctx, `SELECT doc FROM baselines WHERE version = ?`, version).Scan(&doc)
	if errors.Is(err, sql.ErrNoRows) {
		return baseline.Baseline{}, &schedule.NotFoundError{Kind: "baseline", Key: version}
	}
	if err != nil {
		return baseline.Baseline{}, fmt.Errorf("store: get baseline %q: %w", version, err)
	}
	var b baseline.Baseline
	if err := json.Unmarshal([]byte(doc), &b); err != nil {
		return b, fmt.Errorf("store: decode baseline %q: %w", version, err)
	}
	return b, nil
}

// List implements baseline.Store.
func (s *SQLiteStore) List(ctx context.Context, projectID string) ([]baseline.Baseline, error) {
	q, args := `SELECT doc FROM baselines ORDER BY sequence`, []any(nil)
	if projectID != "" {
		q, args = `SELECT doc FROM baselines WHERE project_id = ? ORDER BY sequence`, []any{projectID}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query baselines: %w", err)
	}
	defer rows.Close()

	var out []baseline.Baseline
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan baseline: %w", err)
		}
		var b baseline.Baseline
		if err := json.Unmarshal([]byte(doc), &b); err != nil {
			return nil, fmt.Errorf("store: decode baseline: %w", err)
		}
		out = append(out, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate baselines: %w", err)
	}
	return out, nil
}

// Delete implements baseline.Store.
func (s *SQLiteStore) Delete(ctx context.Context, version string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM baselines WHERE version = ?`, version)
	if err != nil {
		return fmt.Errorf("store: delete baseline %q: %w", version, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: delete baseline rows affected: %w", err)
	}
	if n == 0 {
		return &schedule.NotFoundError{Kind: "baseline", Key: version}
	}
	return nil
}

// AppendAudit implements baseline.Store.
func (s *SQLiteStore) AppendAudit(ctx context.Context, e baseline.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("store: encode audit entry: %w", err)
	}
	const q = `INSERT INTO baseline_audit (id, task_id, project_id, version, action, doc, at) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, e.ID, e.TaskID, e.ProjectID, e.Version, e.Action, string(doc), e.At.UTC().Format(time.RFC3339Nano)); err != nil {
		return fmt.Errorf("store: append audit for %q: %w", e.TaskID, err)
	}
	return nil
}

// Audit implements baseline.Store.
func (s *SQLiteStore) Audit(ctx context.Context, taskID string) ([]baseline.AuditEntry, error) {
	q, args := `SELECT doc FROM baseline_audit ORDER BY seq`, []any(nil)
	if taskID != "" {
		q, args = `SELECT doc FROM baseline_audit WHERE task_id = ? ORDER BY seq`, []any{taskID}
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("store: query audit: %w", err)
	}
	defer rows.Close()

	var out []baseline.AuditEntry
	for rows.Next() {
		var doc string
		if err := rows.Scan(&doc); err != nil {
			return nil, fmt.Errorf("store: scan audit entry: %w", err)
		}
		var e baseline.AuditEntry
		if err := json.Unmarshal([]byte(doc), &e); err != nil {
			return nil, fmt.Errorf("store: decode audit entry: %w", err)
		}
		out = append(out, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate audit: %w", err)
	}
	return out, nil
}
