// Package conflict detects schedule conflicts (double-booked assignees,
// deadline overruns, over-allocation, dependency date violations and
// capacity mismatches) and resolves the ones that can be fixed by moving
// or stretching a single task.
package conflict

import (
	"cmp"
	"fmt"
	"math"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// Type classifies a conflict.
type Type string

// Conflict types.
const (
	TypeResourceOverlap        Type = "resource_overlap"
	TypeDeadlineViolation      Type = "project_deadline_violation"
	TypeResourceOverallocation Type = "resource_overallocation"
	TypeDependencyViolation    Type = "dependency_violation"
	TypeCapacityViolation      Type = "capacity_violation"
)

// Severity ranks how urgent a conflict is.
type Severity string

// Severity levels, lowest first.
const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// rank orders severities for sorting, most severe first.
func (s Severity) rank() int {
	switch s {
	case SeverityCritical:
		return 0
	case SeverityHigh:
		return 1
	case SeverityMedium:
		return 2
	default:
		return 3
	}
}

// Action names a suggested or applied fix.
type Action string

// Resolution actions.
const (
	ActionDelayTask      Action = "delay_task"
	ActionDelaySuccessor Action = "delay_successor"
	ActionExtendDuration Action = "extend_duration"
	ActionRebalance      Action = "rebalance_workload"
	ActionReplan         Action = "replan_or_extend_deadline"
)

// Suggestion is the fix proposed at detection time.
type Suggestion struct {
	Action      Action `json:"type"`
	TaskID      string `json:"task_id,omitempty"`
	DelayDays   int    `json:"delay_days,omitempty"`
	NewDuration int    `json:"new_duration_days,omitempty"`
	Description string `json:"description"`
}

// Conflict is one detected problem. Conflicts are recomputed on every
// detection pass and never stored.
type Conflict struct {
	ID          string         `json:"id"`
	Type        Type           `json:"type"`
	TaskIDs     []string       `json:"task_ids"`
	Severity    Severity       `json:"severity"`
	Description string         `json:"description"`
	Resolution  Suggestion     `json:"suggested_resolution"`
	Assignee    string         `json:"assignee,omitempty"`
	Edge        *schedule.Edge `json:"dependency,omitempty"`
	Days        int            `json:"days,omitempty"`
	Hours       float64        `json:"hours,omitempty"`
	DetectedAt  time.Time      `json:"detected_at"`
}

// Key identifies a conflict by type and involved tasks.
func (c Conflict) Key() string {
	ids := slices.Clone(c.TaskIDs)
	slices.Sort(ids)
	key := string(c.Type) + ":" + strings.Join(ids, ",")
	if c.Assignee != "" {
		key += "@" + c.Assignee
	}
	return key
}

// conflictID derives a stable UUID from the conflict key so the same
// problem keeps its ID across detection passes.
func conflictID(c Conflict) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(c.Key())).String()
}

// Limits are the capacity baselines used by detection.
type Limits struct {
	DailyHours      float64
	MonthlyHours    float64
	OverlapHighDays int
	OverloadHighPct float64
}

// DefaultLimits returns 8h/day, 160h/month, high above 3 overlap days or
// 50% overload.
func DefaultLimits() Limits {
	return Limits{DailyHours: 8, MonthlyHours: 160, OverlapHighDays: 3, OverloadHighPct: 50}
}

// Detector finds conflicts in a task set.
type Detector struct {
	limits Limits
	clock  schedule.Clock
}

// NewDetector creates a Detector. A nil clock uses the system clock.
func NewDetector(limits Limits, clock schedule.Clock) *Detector {
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	return &Detector{limits: limits, clock: clock}
}

// Detect runs every rule and returns the union of their findings, most
// severe first, then by type and task IDs.
func (d *Detector) Detect(project schedule.Project, tasks []schedule.Task, edges []schedule.Edge) []Conflict {
	now := d.clock.Now()
	var out []Conflict
	out = append(out, d.overlaps(tasks)...)
	out = append(out, d.deadlines(project, tasks)...)
	out = append(out, d.overallocation(tasks)...)
	out = append(out, d.dependencies(tasks, edges)...)
	out = append(out, d.capacity(tasks)...)
	for i := range out {
		out[i].ID = conflictID(out[i])
		out[i].DetectedAt = now
	}
	slices.SortStableFunc(out, func(a, b Conflict) int {
		if c := cmp.Compare(a.Severity.rank(), b.Severity.rank()); c != 0 {
			return c
		}
		if c := cmp.Compare(a.Type, b.Type); c != 0 {
			return c
		}
		return cmp.Compare(a.Key(), b.Key())
	})
	return out
}

func scheduled(t schedule.Task) bool {
	return !t.PlannedStart.IsZero() && !t.PlannedEnd.IsZero()
}

// overlapDays returns how many days two half-open windows share.
func overlapDays(a, b schedule.Task) int {
	start := schedule.MaxDate(a.PlannedStart, b.PlannedStart)
	end := a.PlannedEnd
	if b.PlannedEnd.Before(end) {
		end = b.PlannedEnd
	}
	return start.DaysUntil(end)
}

// clearanceDays is how far later must move to start the day after earlier
// ends, which also clears windows that contain one another.
func clearanceDays(earlier, later schedule.Task) int {
	return later.PlannedStart.DaysUntil(earlier.PlannedEnd) + 1
}

// laterOf returns the pair ordered by start, then ID.
func laterOf(a, b schedule.Task) (earlier, later schedule.Task) {
	if b.PlannedStart.Before(a.PlannedStart) || (b.PlannedStart.Equal(a.PlannedStart) && b.ID < a.ID) {
		return b, a
	}
	return a, b
}

func (d *Detector) overlaps(tasks []schedule.Task) []Conflict {
	byAssignee := make(map[string][]schedule.Task)
	for _, t := range tasks {
		if t.AssignedTo != "" && scheduled(t) && t.Status.Active() {
			byAssignee[t.AssignedTo] = append(byAssignee[t.AssignedTo], t)
		}
	}
	var out []Conflict
	for assignee, list := range byAssignee {
		slices.SortFunc(list, func(a, b schedule.Task) int {
			if c := a.PlannedStart.Time().Compare(b.PlannedStart.Time()); c != 0 {
				return c
			}
			return cmp.Compare(a.ID, b.ID)
		})
		for i := range list {
			for j := i + 1; j < len(list); j++ {
				if !list[j].PlannedStart.Before(list[i].PlannedEnd) {
					break
				}
				days := overlapDays(list[i], list[j])
				if days <= 0 {
					continue
				}
				earlier, later := laterOf(list[i], list[j])
				sev := SeverityMedium
				if days > d.limits.OverlapHighDays {
					sev = SeverityHigh
				}
				delay := clearanceDays(earlier, later)
				out = append(out, Conflict{
					Type:     TypeResourceOverlap,
					TaskIDs:  []string{earlier.ID, later.ID},
					Severity: sev,
					Assignee: assignee,
					Days:     days,
					Description: fmt.Sprintf("%s is booked on %s and %s for %d overlapping day(s)",
						assignee, earlier.ID, later.ID, days),
					Resolution: Suggestion{
						Action:      ActionDelayTask,
						TaskID:      later.ID,
						DelayDays:   delay,
						Description: fmt.Sprintf("delay %s by %d day(s)", later.ID, delay),
					},
				})
			}
		}
	}
	return out
}

func (d *Detector) deadlines(project schedule.Project, tasks []schedule.Task) []Conflict {
	if project.End.IsZero() {
		return nil
	}
	var out []Conflict
	for _, t := range tasks {
		if t.PlannedEnd.IsZero() || !t.PlannedEnd.After(project.End) {
			continue
		}
		days := project.End.DaysUntil(t.PlannedEnd)
		out = append(out, Conflict{
			Type:        TypeDeadlineViolation,
			TaskIDs:     []string{t.ID},
			Severity:    SeverityHigh,
			Days:        days,
			Description: fmt.Sprintf("%s ends %s, %d day(s) after the project end %s", t.ID, t.PlannedEnd, days, project.End),
			Resolution: Suggestion{
				Action:      ActionReplan,
				TaskID:      t.ID,
				Description: "compress the task or move the project end date",
			},
		})
	}
	return out
}

func (d *Detector) overallocation(tasks []schedule.Task) []Conflict {
	if d.limits.MonthlyHours <= 0 {
		return nil
	}
	hours := make(map[string]float64)
	members := make(map[string][]string)
	for _, t := range tasks {
		if t.AssignedTo == "" || !t.Status.Active() {
			continue
		}
		hours[t.AssignedTo] += t.EstimatedHours
		members[t.AssignedTo] = append(members[t.AssignedTo], t.ID)
	}
	var out []Conflict
	for assignee, total := range hours {
		if total <= d.limits.MonthlyHours {
			continue
		}
		pct := (total - d.limits.MonthlyHours) / d.limits.MonthlyHours * 100
		sev := SeverityMedium
		if pct > d.limits.OverloadHighPct {
			sev = SeverityHigh
		}
		ids := members[assignee]
		slices.Sort(ids)
		out = append(out, Conflict{
			Type:     TypeResourceOverallocation,
			TaskIDs:  ids,
			Severity: sev,
			Assignee: assignee,
			Hours:    total,
			Description: fmt.Sprintf("%s is allocated %.1fh against %.0fh capacity (%.1f%% over)",
				assignee, total, d.limits.MonthlyHours, pct),
			Resolution: Suggestion{
				Action:      ActionRebalance,
				Description: "reassign work or extend the timeline",
			},
		})
	}
	return out
}

func (d *Detector) dependencies(tasks []schedule.Task, edges []schedule.Edge) []Conflict {
	byID := make(map[string]schedule.Task, len(tasks))
	for _, t := range tasks {
		byID[t.ID] = t
	}
	var out []Conflict
	for _, e := range edges {
		days, ok := violation(byID, e)
		if !ok || days <= 0 {
			continue
		}
		edge := e
		out = append(out, Conflict{
			Type:        TypeDependencyViolation,
			TaskIDs:     []string{e.Predecessor, e.Successor},
			Severity:    SeverityHigh,
			Edge:        &edge,
			Days:        days,
			Description: fmt.Sprintf("%s (%s, lag %d) is violated by %d day(s)", e, e.Kind(), e.LagDays, days),
			Resolution: Suggestion{
				Action:      ActionDelaySuccessor,
				TaskID:      e.Successor,
				DelayDays:   days + 1,
				Description: fmt.Sprintf("delay %s by %d day(s)", e.Successor, days+1),
			},
		})
	}
	return out
}

// violation measures by how many days the successor anchor precedes the
// predecessor anchor plus lag. ok is false when a date is missing.
func violation(byID map[string]schedule.Task, e schedule.Edge) (int, bool) {
	pred, okP := byID[e.Predecessor]
	succ, okS := byID[e.Successor]
	if !okP || !okS || !scheduled(pred) || !scheduled(succ) {
		return 0, false
	}
	predAnchor, succAnchor := e.Anchors(pred.PlannedStart, pred.PlannedEnd, succ.PlannedStart, succ.PlannedEnd)
	return succAnchor.DaysUntil(predAnchor.AddDays(e.LagDays)), true
}

func (d *Detector) capacity(tasks []schedule.Task) []Conflict {
	if d.limits.DailyHours <= 0 {
		return nil
	}
	var out []Conflict
	for _, t := range tasks {
		dur := t.Duration()
		if t.EstimatedHours <= 0 || dur <= 0 {
			continue
		}
		perDay := t.EstimatedHours / float64(dur)
		if perDay <= d.limits.DailyHours {
			continue
		}
		need := requiredDays(t.EstimatedHours, d.limits.DailyHours)
		out = append(out, Conflict{
			Type:     TypeCapacityViolation,
			TaskIDs:  []string{t.ID},
			Severity: SeverityMedium,
			Hours:    perDay,
			Description: fmt.Sprintf("%s needs %.1fh/day over %d day(s), above the %.0fh/day ceiling",
				t.ID, perDay, dur, d.limits.DailyHours),
			Resolution: Suggestion{
				Action:      ActionExtendDuration,
				TaskID:      t.ID,
				NewDuration: need,
				Description: fmt.Sprintf("extend %s to %d day(s)", t.ID, need),
			},
		})
	}
	return out
}

// requiredDays is the fewest whole days that keep hours within the daily
// ceiling.
func requiredDays(hours, daily float64) int {
	return int(math.Ceil(hours / daily))
}
