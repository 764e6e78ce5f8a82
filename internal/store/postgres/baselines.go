package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/schedule"
)

var _ baseline.Store = (*PGStore)(nil)

// Insert implements baseline.Store. The sequence comes from a BIGSERIAL,
// so versions stay unique across every process sharing the database.
func (s *PGStore) Insert(ctx context.Context, b baseline.Baseline) (baseline.Baseline, error) {
	b = b.Clone()
	if b.ID == "" {
		b.ID = uuid.NewString()
	}
	err := pgx.BeginFunc(ctx, s.db, func(tx pgx.Tx) error {
		var seq int64
		err := tx.QueryRow(ctx,
			`INSERT INTO parsec_baselines (version, id, project_id, doc, created_at) VALUES ($1, $2, $3, '{}', $4) RETURNING sequence`,
			"pending-"+b.ID, b.ID, b.ProjectID, b.CreatedAt,
		).Scan(&seq)
		if err != nil {
			return fmt.Errorf("postgres: insert baseline: %w", err)
		}
		b.Sequence = seq
		b.Version = baseline.FormatVersion(b.CreatedAt, seq)
		doc, err := json.Marshal(b)
		if err != nil {
			return fmt.Errorf("postgres: encode baseline: %w", err)
		}
		if _, err := tx.Exec(ctx, `UPDATE parsec_baselines SET version = $1, doc = $2 WHERE sequence = $3`, b.Version, doc, seq); err != nil {
			return fmt.Errorf("postgres: finalize baseline %s: %w", b.Version, err)
		}
		return nil
	})
	return b, err
}

// Get implements baseline.Store.
func (s *PGStore) Get(ctx context.Context, version string) (baseline.Baseline, error) {
	var doc []byte
	err := s.db.QueryRow(ctx, `SELECT doc FROM parsec_baselines WHERE version = $1`, version).Scan(&doc)
	if errors.Is(err, pgx.ErrNoRows) {
		return baseline.Baseline{}, &schedule.NotFoundError{Kind: "baseline", Key: version}
	}
	if err != nil {
		return baseline.Baseline{}, fmt.Errorf("postgres: get baseline %q: %w", version, err)
	}
	var b baseline.Baseline
	if err := json.Unmarshal(doc, &b); err != nil {
		return b, fmt.Errorf("postgres: decode baseline %q: %w", version, err)
	}
	return b, nil
}

// List implements baseline.Store.
func (s *PGStore) List(ctx context.Context, projectID string) ([]baseline.Baseline, error) {
	out, err := queryDocs[baseline.Baseline](ctx, s.db,
		`SELECT doc FROM parsec_baselines WHERE $1::text = '' OR project_id = $1 ORDER BY sequence`, projectID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list baselines: %w", err)
	}
	return out, nil
}

// Delete implements baseline.Store.
func (s *PGStore) Delete(ctx context.Context, version string) error {
	ct, err := s.db.Exec(ctx, `DELETE FROM parsec_baselines WHERE version = $1`, version)
	if err != nil {
		return fmt.Errorf("postgres: delete baseline %q: %w", version, err)
	}
	if ct.RowsAffected() == 0 {
		return &schedule.NotFoundError{Kind: "baseline", Key: version}
	}
	return nil
}

// AppendAudit implements baseline.Store.
func (s *PGStore) AppendAudit(ctx context.Context, e baseline.AuditEntry) error {
	if e.ID == "" {
		e.ID = uuid.NewString()
	}
	doc, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("postgres: encode audit entry: %w", err)
	}
	_, err = s.db.Exec(ctx,
		`INSERT INTO parsec_baseline_audit (id, task_id, project_id, version, action, doc, at) VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		e.ID, e.TaskID, e.ProjectID, e.Version, e.Action, doc, e.At)
	if err != nil {
		return fmt.Errorf("postgres: append audit for %q: %w", e.TaskID, err)
	}
	return nil
}

// Audit implements baseline.Store.
func (s *PGStore) Audit(ctx context.Context, taskID string) ([]baseline.AuditEntry, error) {
	out, err := queryDocs[baseline.AuditEntry](ctx, s.db,
		`SELECT doc FROM parsec_baseline_audit WHERE $1::text = '' OR task_id = $1 ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("postgres: audit of %q: %w", taskID, err)
	}
	return out, nil
}
