package baseline

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// CreateRequest names a new baseline. ProjectID defaults to the project of
// the first task.
type CreateRequest struct {
	ProjectID   string `json:"project_id,omitempty"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	CreatedBy   string `json:"created_by,omitempty"`
}

// RestoreResult reports the fields written back by Restore.
type RestoreResult struct {
	Task       schedule.Task `json:"task"`
	Version    string        `json:"baseline_version"`
	Restored   []FieldChange `json:"restored_fields"`
	RestoredAt time.Time     `json:"restored_at"`
	RestoredBy string        `json:"restored_by,omitempty"`
}

// HistoryEntry is a task's frozen state in one baseline.
type HistoryEntry struct {
	Version   string       `json:"baseline_version"`
	Sequence  int64        `json:"sequence"`
	Name      string       `json:"name"`
	CreatedAt time.Time    `json:"created_at"`
	CreatedBy string       `json:"created_by,omitempty"`
	Snapshot  TaskSnapshot `json:"snapshot"`
}

// History is everything recorded about one task.
type History struct {
	TaskID    string         `json:"task_id"`
	Baselines []HistoryEntry `json:"baselines"`
	Restores  []AuditEntry   `json:"restores"`
}

// Manager creates, compares and restores baselines over a Store.
type Manager struct {
	store  Store
	clock  schedule.Clock
	logger *slog.Logger
}

// NewManager creates a Manager. Nil arguments fall back to an in-memory
// store, the system clock and a discarding logger.
func NewManager(store Store, clock schedule.Clock, logger *slog.Logger) *Manager {
	if store == nil {
		store = NewMemoryStore()
	}
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Manager{store: store, clock: clock, logger: logger}
}

// Create freezes tasks into a new baseline.
func (m *Manager) Create(ctx context.Context, tasks []schedule.Task, req CreateRequest) (Baseline, error) {
	if err := schedule.ValidateTasks(tasks); err != nil {
		return Baseline{}, fmt.Errorf("baseline: %w", err)
	}
	if req.Name == "" {
		return Baseline{}, &schedule.ValidationError{Category: schedule.ValCatMissingField, Field: "name", Reason: "baseline name is required"}
	}
	projectID := req.ProjectID
	if projectID == "" {
		projectID = tasks[0].ProjectID
	}
	b := Baseline{
		ID:          uuid.NewString(),
		ProjectID:   projectID,
		Name:        req.Name,
		Description: req.Description,
		CreatedAt:   m.clock.Now().UTC(),
		CreatedBy:   req.CreatedBy,
		Tasks:       make([]TaskSnapshot, len(tasks)),
	}
	for i, t := range tasks {
		b.Tasks[i] = SnapshotOf(t)
	}
	b.TotalBudget, b.PlannedDurationDays = totals(b.Tasks)

	saved, err := m.store.Insert(ctx, b)
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline: saving %q: %w", req.Name, err)
	}
	m.logger.Info("baseline created", "project", saved.ProjectID, "version", saved.Version, "tasks", len(saved.Tasks))
	return saved, nil
}

// Get returns one baseline by version.
func (m *Manager) Get(ctx context.Context, version string) (Baseline, error) {
	b, err := m.store.Get(ctx, version)
	if err != nil {
		return Baseline{}, fmt.Errorf("baseline: %w", err)
	}
	return b, nil
}

// List returns the baselines of a project, oldest first.
func (m *Manager) List(ctx context.Context, projectID string) ([]Baseline, error) {
	out, err := m.store.List(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("baseline: listing %s: %w", projectID, err)
	}
	return out, nil
}

// Latest returns the most recent baseline of a project.
func (m *Manager) Latest(ctx context.Context, projectID string) (Baseline, error) {
	all, err := m.List(ctx, projectID)
	if err != nil {
		return Baseline{}, err
	}
	if len(all) == 0 {
		return Baseline{}, fmt.Errorf("baseline: %w", &schedule.NotFoundError{Kind: "baseline for project", Key: projectID})
	}
	return all[len(all)-1], nil
}

// Delete removes a baseline version.
func (m *Manager) Delete(ctx context.Context, version string) error {
	if err := m.store.Delete(ctx, version); err != nil {
		return fmt.Errorf("baseline: %w", err)
	}
	m.logger.Info("baseline deleted", "version", version)
	return nil
}

// taskIn loads a version and the frozen state of one task in it.
func (m *Manager) taskIn(ctx context.Context, taskID, version string) (TaskSnapshot, error) {
	b, err := m.Get(ctx, version)
	if err != nil {
		return TaskSnapshot{}, err
	}
	snap, ok := b.Task(taskID)
	if !ok {
		return TaskSnapshot{}, fmt.Errorf("baseline: %w", &schedule.NotFoundError{Kind: "task in " + version, Key: taskID})
	}
	return snap, nil
}

// Compare diffs a live task against its state in version.
func (m *Manager) Compare(ctx context.Context, task schedule.Task, version string) (Comparison, error) {
	base, err := m.taskIn(ctx, task.ID, version)
	if err != nil {
		return Comparison{}, err
	}
	return diff(base, task, version, m.clock.Now()), nil
}

// CompareProject diffs a whole task set against version.
func (m *Manager) CompareProject(ctx context.Context, tasks []schedule.Task, version string) (ProjectComparison, error) {
	b, err := m.Get(ctx, version)
	if err != nil {
		return ProjectComparison{}, err
	}
	return diffProject(b, tasks, m.clock.Now()), nil
}

// Restore writes the baseline values of fields back into a copy of task and
// records an audit entry. No fields means every trackable field.
func (m *Manager) Restore(ctx context.Context, task schedule.Task, version string, fieldNames []string, restoredBy string) (RestoreResult, error) {
	if len(fieldNames) == 0 {
		fieldNames = FieldNames()
	}
	selected := make([]field, 0, len(fieldNames))
	for _, name := range fieldNames {
		f, ok := lookupField(name)
		if !ok {
			return RestoreResult{}, &schedule.ValidationError{
				Category: schedule.ValCatUnknownField, TaskID: task.ID, Field: name,
				Reason: "not a trackable baseline field",
			}
		}
		selected = append(selected, f)
	}
	base, err := m.taskIn(ctx, task.ID, version)
	if err != nil {
		return RestoreResult{}, err
	}

	now := m.clock.Now()
	out := task.Clone()
	res := RestoreResult{Version: version, RestoredAt: now, RestoredBy: restoredBy}
	endField, _ := lookupField("planned_end_date")
	for _, f := range selected {
		old, want := f.get(SnapshotOf(out)), f.get(base)
		if old.Equal(want) {
			continue
		}
		prevEnd := out.PlannedEnd
		f.set(&out, base)
		res.Restored = append(res.Restored, FieldChange{Field: f.name, Label: f.label, Old: old, New: want, ChangeType: f.kind})
		// A restored duration moves the end date with it.
		if f.name != endField.name && !out.PlannedEnd.Equal(prevEnd) {
			res.Restored = append(res.Restored, FieldChange{
				Field: endField.name, Label: endField.label, ChangeType: endField.kind,
				Old: schedule.DateValue(prevEnd), New: schedule.DateValue(out.PlannedEnd),
			})
		}
	}
	res.Task = out

	entry := AuditEntry{
		ID:        uuid.NewString(),
		TaskID:    task.ID,
		ProjectID: task.ProjectID,
		Version:   version,
		Action:    ActionRestore,
		Changes:   res.Restored,
		Actor:     restoredBy,
		At:        now,
	}
	if err := m.store.AppendAudit(ctx, entry); err != nil {
		return RestoreResult{}, fmt.Errorf("baseline: recording restore of %s: %w", task.ID, err)
	}
	m.logger.Info("task restored from baseline", "task", task.ID, "version", version, "fields", len(res.Restored))
	return res, nil
}

// History lists every baseline holding taskID and the restores applied to
// it.
func (m *Manager) History(ctx context.Context, taskID string) (History, error) {
	all, err := m.store.List(ctx, "")
	if err != nil {
		return History{}, fmt.Errorf("baseline: history of %s: %w", taskID, err)
	}
	h := History{TaskID: taskID}
	for _, b := range all {
		snap, ok := b.Task(taskID)
		if !ok {
			continue
		}
		h.Baselines = append(h.Baselines, HistoryEntry{
			Version:   b.Version,
			Sequence:  b.Sequence,
			Name:      b.Name,
			CreatedAt: b.CreatedAt,
			CreatedBy: b.CreatedBy,
			Snapshot:  snap,
		})
	}
	if h.Restores, err = m.store.Audit(ctx, taskID); err != nil {
		return History{}, fmt.Errorf("baseline: audit of %s: %w", taskID, err)
	}
	return h, nil
}
