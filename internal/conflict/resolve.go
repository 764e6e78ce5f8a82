package conflict

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// Resolution errors carried by unresolved entries.
var (
	ErrUnsupportedConflict = errors.New("conflict type cannot be resolved automatically")
	ErrUnsupportedStrategy = errors.New("unsupported resolution strategy")
)

// Strategy selects how conflicts are resolved.
type Strategy string

// StrategyAuto moves or stretches the directly affected task.
const StrategyAuto Strategy = "auto"

// Change records one field rewrite.
type Change struct {
	TaskID string `json:"task_id"`
	Field  string `json:"field"`
	Old    string `json:"old"`
	New    string `json:"new"`
}

// Applied is one resolution written into the working task set.
type Applied struct {
	ConflictID   string   `json:"conflict_id"`
	ConflictType Type     `json:"conflict_type"`
	Action       Action   `json:"resolution_type"`
	TaskIDs      []string `json:"affected_tasks"`
	Changes      []Change `json:"changes"`
	DelayDays    int      `json:"delay_days,omitempty"`
	Description  string   `json:"description"`
}

// Unresolved is a conflict the strategy could not fix.
type Unresolved struct {
	Conflict Conflict `json:"conflict"`
	Err      error    `json:"-"`
	Reason   string   `json:"reason"`
}

// Resolution is the outcome of a Resolve call.
type Resolution struct {
	Strategy          Strategy        `json:"strategy"`
	ConflictsDetected int             `json:"conflicts_detected"`
	ConflictsResolved int             `json:"conflicts_resolved"`
	Applied           []Applied       `json:"applied_resolutions"`
	Unresolved        []Unresolved    `json:"unresolved_conflicts"`
	AlreadySatisfied  []string        `json:"already_satisfied"`
	Tasks             []schedule.Task `json:"updated_tasks"`
	Summary           string          `json:"summary"`
	ResolvedAt        time.Time       `json:"resolved_at"`
}

// Resolver applies a strategy to detected conflicts.
type Resolver struct {
	limits Limits
	clock  schedule.Clock
}

// NewResolver creates a Resolver. A nil clock uses the system clock.
func NewResolver(limits Limits, clock schedule.Clock) *Resolver {
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	return &Resolver{limits: limits, clock: clock}
}

// Resolve works on copies of tasks. Each conflict is re-measured against
// the working set before it is fixed, so resolving an already resolved
// conflict set applies nothing.
func (r *Resolver) Resolve(tasks []schedule.Task, edges []schedule.Edge, conflicts []Conflict, strategy Strategy) Resolution {
	work := schedule.CloneTasks(tasks)
	res := Resolution{
		Strategy:          strategy,
		ConflictsDetected: len(conflicts),
		ResolvedAt:        r.clock.Now(),
	}
	idx := schedule.Index(work)

	for _, c := range conflicts {
		if strategy != StrategyAuto {
			res.Unresolved = append(res.Unresolved, unresolved(c, fmt.Errorf("strategy %q: %w", strategy, ErrUnsupportedStrategy)))
			continue
		}
		applied, err := r.resolveOne(work, idx, edges, c)
		switch {
		case err != nil:
			res.Unresolved = append(res.Unresolved, unresolved(c, err))
		case applied == nil:
			res.AlreadySatisfied = append(res.AlreadySatisfied, c.ID)
		default:
			res.Applied = append(res.Applied, *applied)
		}
	}
	res.ConflictsResolved = len(res.Applied)
	res.Tasks = work
	res.Summary = resolutionSummary(res)
	return res
}

func unresolved(c Conflict, err error) Unresolved {
	return Unresolved{Conflict: c, Err: err, Reason: err.Error()}
}

// lookup returns a pointer into the working set.
func lookup(work []schedule.Task, idx map[string]int, id string) (*schedule.Task, error) {
	i, ok := idx[id]
	if !ok {
		return nil, &schedule.NotFoundError{Kind: "task", Key: id}
	}
	return &work[i], nil
}

func (r *Resolver) resolveOne(work []schedule.Task, idx map[string]int, edges []schedule.Edge, c Conflict) (*Applied, error) {
	switch c.Type {
	case TypeResourceOverlap:
		return r.resolveOverlap(work, idx, c)
	case TypeDependencyViolation:
		return r.resolveDependency(work, idx, edges, c)
	case TypeCapacityViolation:
		return r.resolveCapacity(work, idx, c)
	default:
		return nil, fmt.Errorf("%s: %w", c.Type, ErrUnsupportedConflict)
	}
}

func (r *Resolver) resolveOverlap(work []schedule.Task, idx map[string]int, c Conflict) (*Applied, error) {
	if len(c.TaskIDs) != 2 {
		return nil, fmt.Errorf("resource overlap needs two tasks, got %d: %w", len(c.TaskIDs), ErrUnsupportedConflict)
	}
	a, err := lookup(work, idx, c.TaskIDs[0])
	if err != nil {
		return nil, err
	}
	b, err := lookup(work, idx, c.TaskIDs[1])
	if err != nil {
		return nil, err
	}
	if !scheduled(*a) || !scheduled(*b) || a.AssignedTo != b.AssignedTo {
		return nil, nil
	}
	days := overlapDays(*a, *b)
	if days <= 0 {
		return nil, nil
	}
	earlier, later := a, b
	if _, l := laterOf(*a, *b); l.ID == a.ID {
		earlier, later = b, a
	}
	delay := clearanceDays(*earlier, *later)
	changes := shift(later, delay)
	return &Applied{
		ConflictID:   c.ID,
		ConflictType: c.Type,
		Action:       ActionDelayTask,
		TaskIDs:      []string{later.ID},
		Changes:      changes,
		DelayDays:    delay,
		Description:  fmt.Sprintf("delayed %s by %d day(s) to clear the overlap on %s", later.ID, delay, later.AssignedTo),
	}, nil
}

func (r *Resolver) resolveDependency(work []schedule.Task, idx map[string]int, edges []schedule.Edge, c Conflict) (*Applied, error) {
	edge, err := conflictEdge(edges, c)
	if err != nil {
		return nil, err
	}
	if _, err := lookup(work, idx, edge.Predecessor); err != nil {
		return nil, err
	}
	succ, err := lookup(work, idx, edge.Successor)
	if err != nil {
		return nil, err
	}
	byID := map[string]schedule.Task{
		edge.Predecessor: work[idx[edge.Predecessor]],
		edge.Successor:   *succ,
	}
	days, ok := violation(byID, edge)
	if !ok || days <= 0 {
		return nil, nil
	}
	changes := shift(succ, days+1)
	return &Applied{
		ConflictID:   c.ID,
		ConflictType: c.Type,
		Action:       ActionDelaySuccessor,
		TaskIDs:      []string{succ.ID},
		Changes:      changes,
		DelayDays:    days + 1,
		Description:  fmt.Sprintf("delayed %s by %d day(s) to honour %s", succ.ID, days+1, edge),
	}, nil
}

// conflictEdge recovers the edge a dependency conflict refers to, falling
// back to a finish-to-start edge between the two task IDs.
func conflictEdge(edges []schedule.Edge, c Conflict) (schedule.Edge, error) {
	if c.Edge != nil {
		return *c.Edge, nil
	}
	if len(c.TaskIDs) != 2 {
		return schedule.Edge{}, fmt.Errorf("dependency violation needs two tasks, got %d: %w", len(c.TaskIDs), ErrUnsupportedConflict)
	}
	for _, e := range edges {
		if e.Predecessor == c.TaskIDs[0] && e.Successor == c.TaskIDs[1] {
			return e, nil
		}
	}
	return schedule.Edge{Predecessor: c.TaskIDs[0], Successor: c.TaskIDs[1], Type: schedule.FinishToStart}, nil
}

func (r *Resolver) resolveCapacity(work []schedule.Task, idx map[string]int, c Conflict) (*Applied, error) {
	if len(c.TaskIDs) == 0 {
		return nil, fmt.Errorf("capacity violation without a task: %w", ErrUnsupportedConflict)
	}
	t, err := lookup(work, idx, c.TaskIDs[0])
	if err != nil {
		return nil, err
	}
	if r.limits.DailyHours <= 0 || t.EstimatedHours <= 0 {
		return nil, nil
	}
	need := requiredDays(t.EstimatedHours, r.limits.DailyHours)
	old := t.Duration()
	if old >= need {
		return nil, nil
	}
	changes := []Change{{
		TaskID: t.ID, Field: "planned_duration_days",
		Old: strconv.Itoa(old), New: strconv.Itoa(need),
	}}
	t.PlannedDurationDays = need
	if !t.PlannedStart.IsZero() {
		end := t.PlannedStart.AddDays(need)
		changes = append(changes, Change{TaskID: t.ID, Field: "planned_end", Old: t.PlannedEnd.String(), New: end.String()})
		t.PlannedEnd = end
	}
	return &Applied{
		ConflictID:   c.ID,
		ConflictType: c.Type,
		Action:       ActionExtendDuration,
		TaskIDs:      []string{t.ID},
		Changes:      changes,
		Description:  fmt.Sprintf("extended %s from %d to %d day(s)", t.ID, old, need),
	}, nil
}

// shift moves a task's planned window forward by days.
func shift(t *schedule.Task, days int) []Change {
	start, end := t.PlannedStart.AddDays(days), t.PlannedEnd.AddDays(days)
	changes := []Change{
		{TaskID: t.ID, Field: "planned_start", Old: t.PlannedStart.String(), New: start.String()},
		{TaskID: t.ID, Field: "planned_end", Old: t.PlannedEnd.String(), New: end.String()},
	}
	t.PlannedStart, t.PlannedEnd = start, end
	return changes
}

func resolutionSummary(res Resolution) string {
	if res.ConflictsDetected == 0 {
		return "No conflicts to resolve."
	}
	var parts []string
	if n := len(res.Applied); n > 0 {
		parts = append(parts, fmt.Sprintf("resolved %d conflict(s)", n))
	}
	if n := len(res.AlreadySatisfied); n > 0 {
		parts = append(parts, fmt.Sprintf("%d already satisfied", n))
	}
	if n := len(res.Unresolved); n > 0 {
		parts = append(parts, fmt.Sprintf("%d left unresolved", n))
	}
	s := strings.Join(parts, ", ")
	return strings.ToUpper(s[:1]) + s[1:] + "."
}
