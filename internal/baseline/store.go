package baseline

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// Store persists baselines and the restore audit trail. Implementations
// return copies so callers cannot mutate stored baselines.
type Store interface {
	// Insert assigns the next sequence number and version to b and saves it.
	Insert(ctx context.Context, b Baseline) (Baseline, error)
	Get(ctx context.Context, version string) (Baseline, error)
	// List returns the baselines of a project in sequence order, or of every
	// project when projectID is empty.
	List(ctx context.Context, projectID string) ([]Baseline, error)
	Delete(ctx context.Context, version string) error
	AppendAudit(ctx context.Context, e AuditEntry) error
	Audit(ctx context.Context, taskID string) ([]AuditEntry, error)
}

// MemoryStore keeps baselines in process memory.
type MemoryStore struct {
	mu        sync.RWMutex
	seq       int64
	baselines []Baseline
	audit     []AuditEntry
}

// NewMemoryStore creates an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert implements Store.
func (s *MemoryStore) Insert(_ context.Context, b Baseline) (Baseline, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	b = b.Clone()
	b.Sequence = s.seq
	b.Version = FormatVersion(b.CreatedAt, b.Sequence)
	s.baselines = append(s.baselines, b)
	return b.Clone(), nil
}

// Get implements Store.
func (s *MemoryStore) Get(_ context.Context, version string) (Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, b := range s.baselines {
		if b.Version == version {
			return b.Clone(), nil
		}
	}
	return Baseline{}, &schedule.NotFoundError{Kind: "baseline", Key: version}
}

// List implements Store.
func (s *MemoryStore) List(_ context.Context, projectID string) ([]Baseline, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Baseline
	for _, b := range s.baselines {
		if projectID == "" || b.ProjectID == projectID {
			out = append(out, b.Clone())
		}
	}
	slices.SortFunc(out, func(a, b Baseline) int { return cmp.Compare(a.Sequence, b.Sequence) })
	return out, nil
}

// Delete implements Store.
func (s *MemoryStore) Delete(_ context.Context, version string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	i := slices.IndexFunc(s.baselines, func(b Baseline) bool { return b.Version == version })
	if i < 0 {
		return &schedule.NotFoundError{Kind: "baseline", Key: version}
	}
	s.baselines = slices.Delete(s.baselines, i, i+1)
	return nil
}

// AppendAudit implements Store.
func (s *MemoryStore) AppendAudit(_ context.Context, e AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	e.Changes = slices.Clone(e.Changes)
	s.audit = append(s.audit, e)
	return nil
}

// Audit implements Store.
func (s *MemoryStore) Audit(_ context.Context, taskID string) ([]AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []AuditEntry
	for _, e := range s.audit {
		if taskID == "" || e.TaskID == taskID {
			e.Changes = slices.Clone(e.Changes)
			out = append(out, e)
		}
	}
	return out, nil
}
