package optimize

import (
	"context"
	"math"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// delayScaleDays is the per-task delay at which the leveling score of a
// single moved task reaches zero.
const delayScaleDays = 30

// Sample is the usage of one resource on one day.
type Sample struct {
	Date     schedule.Date `json:"date"`
	Usage    int           `json:"usage"`
	Capacity int           `json:"capacity"`
	Percent  float64       `json:"utilization_pct"`
}

// LevelingResult is the outcome of optimize_resource_leveling.
type LevelingResult struct {
	Schedule          []Assignment        `json:"optimized_schedule"`
	Utilization       map[string][]Sample `json:"resource_utilization_timeline"`
	TotalDelayDays    int                 `json:"total_delay_days"`
	OptimizationScore float64             `json:"optimization_score"`
	MakespanDays      int                 `json:"makespan_days"`
	SolutionFound     bool                `json:"solution_found"`
	Approximate       bool                `json:"approximate"`
	Status            Status              `json:"status"`
	Reason            error               `json:"-"`
	ReasonText        string              `json:"reason,omitempty"`
	OptimizedTasks    []schedule.Task     `json:"optimized_tasks"`
}

// Level reschedules tasks so that concurrent demand never exceeds the
// given per-resource capacity, keeping the project as short as possible.
func (o *Optimizer) Level(ctx context.Context, tasks []schedule.Task, edges []schedule.Edge, capacity schedule.Capacity) (*LevelingResult, error) {
	res, err := o.Optimize(ctx, tasks, edges, capacity, nil, GoalMinimizeDuration)
	if err != nil {
		return nil, err
	}

	out := &LevelingResult{
		Schedule:       res.Schedule,
		Utilization:    res.utilization(),
		MakespanDays:   res.MakespanDays,
		SolutionFound:  res.SolutionFound,
		Approximate:    res.Approximate,
		Status:         res.Status,
		Reason:         res.Reason,
		ReasonText:     res.ReasonText,
		OptimizedTasks: res.OptimizedTasks,
	}
	absDelay := 0
	for _, a := range res.Schedule {
		out.TotalDelayDays += max(0, a.DelayDays)
		absDelay += abs(a.DelayDays)
	}
	out.OptimizationScore = levelingScore(absDelay, len(res.Schedule))
	return out, nil
}

// levelingScore is 1 when nothing moved and decreases linearly with the
// total absolute delay, floored at 0.
func levelingScore(absDelay, n int) float64 {
	if absDelay == 0 || n == 0 {
		return 1
	}
	score := 1 - float64(absDelay)/float64(n*delayScaleDays)
	return math.Round(max(0, score)*1000) / 1000
}

// utilization samples each capacity-limited resource once per day from the
// epoch to the makespan.
func (r *Result) utilization() map[string][]Sample {
	m := r.model
	out := make(map[string][]Sample, len(m.resources))
	for k, res := range m.resources {
		usage := make([]int, r.MakespanDays+1)
		for i, s := range r.start {
			for _, u := range m.demand[i] {
				if u.res != k {
					continue
				}
				for d := s; d < s+m.dur[i] && d < len(usage); d++ {
					if d >= 0 {
						usage[d] += u.units
					}
				}
			}
		}
		samples := make([]Sample, 0, r.MakespanDays)
		for d := 0; d < r.MakespanDays; d++ {
			pct := 0.0
			if m.capacity[k] > 0 {
				pct = math.Round(float64(usage[d])/float64(m.capacity[k])*10000) / 100
			}
			samples = append(samples, Sample{
				Date:     m.epoch.AddDays(d),
				Usage:    usage[d],
				Capacity: m.capacity[k],
				Percent:  pct,
			})
		}
		out[res] = samples
	}
	return out
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
