// Package ui renders engine results for the terminal. Reports go to the
// output stream; status lines go to the error stream.
package ui

import (
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/conflict"
	"github.com/papapumpkin/parsec/internal/cpm"
	"github.com/papapumpkin/parsec/internal/engine"
	"github.com/papapumpkin/parsec/internal/evm"
	"github.com/papapumpkin/parsec/internal/optimize"
	"github.com/papapumpkin/parsec/internal/validate"
)

// Printer writes styled reports. The zero value is not usable; call New.
type Printer struct {
	out, err io.Writer
	so, se   styles
}

// New creates a Printer on stdout and stderr.
func New() *Printer {
	return NewWriters(os.Stdout, os.Stderr)
}

// NewWriters creates a Printer on the given streams. Color is enabled only
// when a stream is a terminal.
func NewWriters(out, err io.Writer) *Printer {
	return &Printer{
		out: out,
		err: err,
		so:  newStyles(lipgloss.NewRenderer(out)),
		se:  newStyles(lipgloss.NewRenderer(err)),
	}
}

func (p *Printer) printf(format string, args ...any) {
	fmt.Fprintf(p.out, format, args...)
}

// Info writes a de-emphasized status line.
func (p *Printer) Info(msg string) {
	fmt.Fprintln(p.err, p.se.muted.Render(msg))
}

// Success writes a status line with a check mark.
func (p *Printer) Success(msg string) {
	fmt.Fprintln(p.err, p.se.ok.Render(iconOK)+" "+msg)
}

// Warn writes a warning status line.
func (p *Printer) Warn(msg string) {
	fmt.Fprintln(p.err, p.se.warn.Render(iconWarn+" "+msg))
}

// Error writes an error status line.
func (p *Printer) Error(msg string) {
	fmt.Fprintln(p.err, p.se.danger.Render("error:")+" "+msg)
}

func (p *Printer) heading(title string) {
	fmt.Fprintln(p.out, p.so.heading.Render(title))
}

func (p *Printer) kv(label string, value any) {
	p.printf("  %s %v\n", p.so.label.Render(fmt.Sprintf("%-22s", label+":")), value)
}

// Validation prints a dependency validation report and fix suggestions.
func (p *Printer) Validation(res validate.Result, fixes []validate.Fix) {
	if res.IsValid {
		p.printf("%s dependency graph is valid\n", p.so.ok.Render(iconOK))
	} else {
		p.printf("%s dependency graph is invalid\n", p.so.danger.Render(iconFail))
	}
	for _, e := range res.Errors {
		p.printf("  %s %s\n", p.so.danger.Render(iconDot), e)
	}
	for _, w := range res.Warnings {
		p.printf("  %s %s\n", p.so.warn.Render(iconWarn), w)
	}
	for _, c := range res.Cycles {
		p.printf("  %s cycle: %s\n", p.so.danger.Render(iconDot), strings.Join(c, " "+iconArrow+" "))
	}
	if len(res.LongestPath) > 0 {
		p.printf("  %s longest path (%d days): %s\n", p.so.muted.Render(iconDot), res.LongestPathDays, strings.Join(res.LongestPath, " "+iconArrow+" "))
	}
	if len(fixes) > 0 {
		p.heading("Suggested fixes")
		for _, f := range fixes {
			p.printf("  %s %s\n", p.so.muted.Render(iconDot), f.Description)
		}
	}
}

// CriticalPath prints the schedule table, a bar chart and bottlenecks.
func (p *Printer) CriticalPath(res *cpm.Result) {
	p.heading("Critical path")
	p.kv("Method", methodLabel(res.Method, res.Approximate))
	p.kv("Project", fmt.Sprintf("%s %s %s", res.ProjectStart, iconArrow, res.ProjectEnd))
	p.kv("Total duration", fmt.Sprintf("%d day(s)", res.TotalDurationDays))
	p.kv("Critical tasks", strings.Join(res.CriticalPath, " "+iconArrow+" "))
	if len(res.Components) > 1 {
		p.kv("Components", len(res.Components))
	}
	fmt.Fprintln(p.out)

	p.printf("  %-12s %-10s %-10s %-10s %-10s %5s %5s\n", "TASK", "ES", "EF", "LS", "LF", "DUR", "SLACK")
	for _, s := range res.Schedules {
		id := fmt.Sprintf("%-12s", s.TaskID)
		if s.IsCritical {
			id = p.so.critical.Render(id)
		}
		p.printf("  %s %-10s %-10s %-10s %-10s %5d %5d\n", id, s.EarliestStart, s.EarliestFinish, s.LatestStart, s.LatestFinish, s.DurationDays, s.SlackDays)
	}
	fmt.Fprintln(p.out)
	fmt.Fprint(p.out, Gantt(res, p.so, 60))

	if len(res.Bottlenecks) > 0 {
		p.heading("Bottlenecks")
		for _, b := range res.Bottlenecks {
			p.printf("  %s %-12s %d successor(s), slack %d, impact %.2f\n",
				p.so.severity(b.Severity).Render(iconWarn), b.TaskID, b.Successors, b.SlackDays, b.Impact)
		}
	}
}

func methodLabel(method string, approximate bool) string {
	if approximate {
		return method + " (approximate)"
	}
	return method
}

func (p *Printer) assignments(rows []optimize.Assignment) {
	p.printf("  %-12s %-10s %-10s %-10s %-10s %6s\n", "TASK", "FROM", "TO", "NEW START", "NEW END", "DELAY")
	for _, a := range rows {
		delay := fmt.Sprintf("%+d", a.DelayDays)
		if a.DelayDays > 0 {
			delay = p.so.warn.Render(fmt.Sprintf("%6s", delay))
		} else {
			delay = fmt.Sprintf("%6s", delay)
		}
		p.printf("  %-12s %-10s %-10s %-10s %-10s %s\n", a.TaskID, a.OriginalStart, a.OriginalEnd, a.Start, a.End, delay)
	}
}

func (p *Printer) reason(text string) {
	if text != "" {
		p.printf("  %s %s\n", p.so.warn.Render(iconWarn), text)
	}
}

// Leveling prints a resource leveling result.
func (p *Printer) Leveling(res *optimize.LevelingResult) {
	p.heading("Resource leveling")
	p.kv("Status", res.Status)
	p.kv("Makespan", fmt.Sprintf("%d day(s)", res.MakespanDays))
	p.kv("Total delay", fmt.Sprintf("%d day(s)", res.TotalDelayDays))
	p.kv("Score", fmt.Sprintf("%.3f", res.OptimizationScore))
	p.reason(res.ReasonText)
	fmt.Fprintln(p.out)
	p.assignments(res.Schedule)

	resources := make([]string, 0, len(res.Utilization))
	for r := range res.Utilization {
		resources = append(resources, r)
	}
	slices.Sort(resources)
	for _, r := range resources {
		peak := 0.0
		for _, s := range res.Utilization[r] {
			peak = max(peak, s.Percent)
		}
		p.printf("  %s %-12s peak %.0f%%\n", p.so.muted.Render(iconDot), r, peak)
	}
}

// Optimization prints a constrained optimization result.
func (p *Printer) Optimization(res *optimize.Result) {
	p.heading("Schedule optimization")
	p.kv("Goal", res.Goal)
	p.kv("Status", res.Status)
	p.kv("Method", methodLabel(res.Method, res.Approximate))
	p.kv("Objective", fmt.Sprintf("%.2f", res.ObjectiveValue))
	p.kv("Makespan", fmt.Sprintf("%d day(s)", res.MakespanDays))
	if res.Rule != "" {
		p.kv("Priority rule", res.Rule)
	}
	p.reason(res.ReasonText)
	fmt.Fprintln(p.out)
	p.assignments(res.Schedule)
}

// Conflicts prints detected conflicts with their suggested resolutions.
func (p *Printer) Conflicts(conflicts []conflict.Conflict) {
	p.heading(conflict.Summary(conflicts))
	for _, c := range conflicts {
		sev := p.so.severity(string(c.Severity)).Render(fmt.Sprintf("%-8s", c.Severity))
		p.printf("  %s %-28s %s\n", sev, c.Type, c.Description)
		if c.Resolution.Description != "" {
			p.printf("      %s %s\n", p.so.muted.Render(iconArrow), c.Resolution.Description)
		}
	}
}

// Resolution prints the outcome of conflict resolution.
func (p *Printer) Resolution(res conflict.Resolution) {
	p.heading(res.Summary)
	for _, a := range res.Applied {
		p.printf("  %s %s\n", p.so.ok.Render(iconOK), a.Description)
		for _, ch := range a.Changes {
			p.printf("      %s.%s: %s %s %s\n", ch.TaskID, ch.Field, ch.Old, iconArrow, ch.New)
		}
	}
	for _, u := range res.Unresolved {
		p.printf("  %s %s: %s\n", p.so.danger.Render(iconFail), u.Conflict.Type, u.Reason)
	}
	if n := len(res.AlreadySatisfied); n > 0 {
		p.printf("  %s %d conflict(s) already satisfied\n", p.so.muted.Render(iconDot), n)
	}
}

// Baseline prints one baseline's header.
func (p *Printer) Baseline(b baseline.Baseline) {
	p.printf("%s %s  %s\n", p.so.heading.Render(b.Version), b.Name, p.so.muted.Render(b.CreatedAt.Format("2006-01-02 15:04")))
	p.printf("  project %s, %d task(s), budget %s, %d day(s)\n", b.ProjectID, len(b.Tasks), b.TotalBudget.StringFixed(2), b.PlannedDurationDays)
}

// Baselines prints a baseline listing.
func (p *Printer) Baselines(list []baseline.Baseline) {
	if len(list) == 0 {
		p.printf("%s\n", p.so.muted.Render("no baselines"))
		return
	}
	for _, b := range list {
		p.Baseline(b)
	}
}

// Comparison prints a task's changes against a baseline.
func (p *Printer) Comparison(c baseline.Comparison) {
	sev := p.so.severity(string(c.Severity)).Render(string(c.Severity))
	p.printf("%s %s vs %s: %s (score %d)\n", p.so.label.Render("task"), c.TaskID, c.Version, sev, c.Score)
	p.printf("  %s\n", c.Summary)
	names := make([]string, 0, len(c.Changes))
	for name := range c.Changes {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		ch := c.Changes[name]
		p.printf("  %s %-24s %s %s %s\n", p.so.muted.Render(iconDot), ch.Label, ch.Old, iconArrow, ch.New)
	}
}

// ProjectComparison prints a project-wide baseline comparison.
func (p *Printer) ProjectComparison(pc baseline.ProjectComparison) {
	p.heading(fmt.Sprintf("Project %s vs %s", pc.ProjectID, pc.Version))
	p.kv("Severity", p.so.severity(string(pc.Severity)).Render(string(pc.Severity)))
	p.kv("Budget", fmt.Sprintf("%s %s %s (%s)", pc.BaselineBudget.StringFixed(2), iconArrow, pc.CurrentBudget.StringFixed(2), pc.BudgetVariance.StringFixed(2)))
	p.kv("Duration", fmt.Sprintf("%d %s %d day(s) (%+d)", pc.BaselineDurationDays, iconArrow, pc.CurrentDurationDays, pc.DurationVarianceDays))
	p.kv("Unchanged tasks", pc.Unchanged)
	if len(pc.Added) > 0 {
		p.kv("Added", strings.Join(pc.Added, ", "))
	}
	if len(pc.Removed) > 0 {
		p.kv("Removed", strings.Join(pc.Removed, ", "))
	}
	for _, c := range pc.Tasks {
		p.Comparison(c)
	}
}

// Restore prints which fields a restore wrote back.
func (p *Printer) Restore(res baseline.RestoreResult) {
	p.printf("%s restored %d field(s) of %s from %s\n", p.so.ok.Render(iconOK), len(res.Restored), res.Task.ID, res.Version)
	for _, ch := range res.Restored {
		p.printf("  %s %-24s %s %s %s\n", p.so.muted.Render(iconDot), ch.Label, ch.Old, iconArrow, ch.New)
	}
}

// History prints a task's baseline history.
func (p *Printer) History(h baseline.History) {
	p.heading("History of " + h.TaskID)
	for _, e := range h.Baselines {
		s := e.Snapshot
		p.printf("  %-24s %s %s %s, cost %s\n", e.Version, s.PlannedStart, iconArrow, s.PlannedEnd, s.BudgetedCost.StringFixed(2))
	}
	for _, a := range h.Restores {
		p.printf("  %s restored from %s by %s at %s\n", p.so.muted.Render(iconDot), a.Version, a.Actor, a.At.Format("2006-01-02 15:04"))
	}
}

// EVM prints earned value metrics with optional analysis and prediction.
func (p *Printer) EVM(m evm.Metrics, a *evm.Analysis, pred *evm.Prediction) {
	p.heading(fmt.Sprintf("Earned value as of %s", m.AsOf))
	p.kv("PV / EV / AC", fmt.Sprintf("%s / %s / %s", m.PV.StringFixed(2), m.EV.StringFixed(2), m.AC.StringFixed(2)))
	p.kv("BAC", m.BAC.StringFixed(2))
	p.kv("SV / CV", fmt.Sprintf("%s / %s", m.SV.StringFixed(2), m.CV.StringFixed(2)))
	p.kv("SPI / CPI", fmt.Sprintf("%s / %s", m.SPI.StringFixed(4), m.CPI.StringFixed(4)))
	p.kv("EAC / ETC / VAC", fmt.Sprintf("%s / %s / %s", m.EAC.StringFixed(2), m.ETC.StringFixed(2), m.VAC.StringFixed(2)))
	p.kv("TCPI", m.TCPI.StringFixed(4))
	p.kv("Complete", m.PercentComplete.StringFixed(2)+"%")
	if a != nil {
		p.kv("Schedule", p.so.severity(a.ScheduleStatus).Render(a.ScheduleStatus))
		p.kv("Cost", p.so.severity(a.CostStatus).Render(a.CostStatus))
		if a.Forecast != nil {
			p.kv("Forecast completion", a.Forecast.String())
		}
		p.kv("Risk", fmt.Sprintf("%s (score %d)", p.so.severity(a.Risk.Level).Render(a.Risk.Level), a.Risk.Score))
		for _, r := range a.Recommendations {
			p.printf("  %s %s\n", p.so.muted.Render(iconArrow), r)
		}
	}
	if pred != nil {
		p.kv("Predicted cost", fmt.Sprintf("%s [%s, %s] at %d%%", pred.FinalCost.StringFixed(2),
			pred.CostInterval.Lower.StringFixed(2), pred.CostInterval.Upper.StringFixed(2), pred.CostInterval.Confidence))
		if pred.Completion != nil {
			p.kv("Predicted completion", pred.Completion.String())
		}
		p.kv("Success probability", fmt.Sprintf("%d%%", pred.SuccessProbability))
		for _, r := range pred.KeyRisks {
			p.printf("  %s %s\n", p.so.warn.Render(iconWarn), r)
		}
	}
}

// Plan prints a full planning report.
func (p *Printer) Plan(plan *engine.Plan) {
	p.printf("%s %s\n", p.so.heading.Render("Project"), plan.ProjectID)
	p.Validation(plan.Validation, plan.Fixes)
	if plan.Schedule == nil {
		return
	}
	if plan.Schedule.Approximate {
		p.printf("%s schedule is approximate: %s\n", p.so.warn.Render(iconWarn), plan.Schedule.ReasonText)
	}
	p.CriticalPath(plan.Schedule.CriticalPath)
	p.Conflicts(plan.Conflicts)
	if plan.EVM != nil {
		p.EVM(*plan.EVM, plan.Analysis, nil)
	}
}

// Outcomes prints one line per planned project.
func (p *Printer) Outcomes(out []engine.Outcome) {
	for _, o := range out {
		if o.Err != nil {
			p.printf("%s %-20s %s\n", p.so.danger.Render(iconFail), o.ProjectID, o.Err)
			continue
		}
		s := o.Plan.Schedule
		p.printf("%s %-20s %s %s %s, %d day(s), %d conflict(s)\n", p.so.ok.Render(iconOK), o.ProjectID,
			s.CriticalPath.ProjectStart, iconArrow, s.CriticalPath.ProjectEnd, s.CriticalPath.TotalDurationDays, len(o.Plan.Conflicts))
	}
}
