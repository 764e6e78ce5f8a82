package store

import (
	"context"
	"fmt"
	"time"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// Projects returns every stored project id in order.
func (s *SQLiteStore) Projects(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("store: query projects: %w", err)
	}
	defer rows.Close()

	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate projects: %w", err)
	}
	return ids, nil
}

// DeleteProject removes a project and everything stored under it.
func (s *SQLiteStore) DeleteProject(ctx context.Context, projectID string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM projects WHERE id = ?`, projectID)
	if err != nil {
		return fmt.Errorf("store: delete project %q: %w", projectID, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return &schedule.NotFoundError{Kind: "project", Key: projectID}
	}
	return nil
}

// ProjectInfo summarizes one stored project.
type ProjectInfo struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Tasks     int       `json:"tasks"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ListProjects returns a summary of every stored project in id order.
func (s *SQLiteStore) ListProjects(ctx context.Context) ([]ProjectInfo, error) {
	const q = `SELECT p.id, p.name, p.updated_at, COUNT(t.id)
		FROM projects p LEFT JOIN tasks t ON t.project_id = p.id
		GROUP BY p.id ORDER BY p.id`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: query project list: %w", err)
	}
	defer rows.Close()

	var out []ProjectInfo
	for rows.Next() {
		var p ProjectInfo
		var ts string
		if err := rows.Scan(&p.ID, &p.Name, &ts, &p.Tasks); err != nil {
			return nil, fmt.Errorf("store: scan project: %w", err)
		}
		if p.UpdatedAt, err = parseTimestamp(ts); err != nil {
			return nil, fmt.Errorf("store: parse project timestamp: %w", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: iterate project list: %w", err)
	}
	return out, nil
}

// parseTimestamp accepts the formats SQLite drivers produce for
// CURRENT_TIMESTAMP. modernc.org/sqlite typically returns RFC 3339, while
// canonical SQLite returns the space-separated DateTime format.
func parseTimestamp(s string) (time.Time, error) {
	for _, layout := range []string{time.RFC3339Nano, time.DateTime} {
		if t, err := time.Parse(layout, s); err == nil {
			return t, nil
		}
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp format: %q", s)
}
