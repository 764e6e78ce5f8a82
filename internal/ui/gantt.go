package ui

import (
	"fmt"
	"strings"

	"github.com/papapumpkin/parsec/internal/cpm"
)

// Bar glyphs.
const (
	glyphWork      = "█"
	glyphSlack     = "░"
	glyphMilestone = "◆"
)

// labelWidth is the fixed column reserved for task IDs.
const labelWidth = 12

// Gantt draws one bar per task from earliest start to earliest finish,
// followed by its slack up to the latest finish. Critical bars use the
// critical style. The timeline is scaled to fit width columns.
func Gantt(res *cpm.Result, st styles, width int) string {
	if res == nil || len(res.Schedules) == 0 {
		return ""
	}
	if width <= 0 {
		width = 60
	}
	span := res.ProjectStart.DaysUntil(res.ProjectEnd)
	for _, s := range res.Schedules {
		span = max(span, res.ProjectStart.DaysUntil(s.LatestFinish))
	}
	if span <= 0 {
		span = 1
	}
	scale := func(days int) int {
		return days * width / span
	}

	var b strings.Builder
	fmt.Fprintf(&b, "  %-*s %s%s%s\n", labelWidth, "", res.ProjectStart,
		strings.Repeat(" ", max(1, width-2*len(res.ProjectStart.String()))), res.ProjectEnd)
	for _, s := range res.Schedules {
		from := scale(res.ProjectStart.DaysUntil(s.EarliestStart))
		to := scale(res.ProjectStart.DaysUntil(s.EarliestFinish))
		late := scale(res.ProjectStart.DaysUntil(s.LatestFinish))

		var bar string
		if s.DurationDays == 0 {
			bar = glyphMilestone
			to = from + 1
		} else {
			bar = strings.Repeat(glyphWork, max(1, to-from))
			to = max(to, from+1)
		}
		if s.IsCritical {
			bar = st.critical.Render(bar)
		} else {
			bar = st.bar.Render(bar)
		}
		slack := ""
		if late > to {
			slack = st.slack.Render(strings.Repeat(glyphSlack, late-to))
		}
		label := truncate(s.TaskID, labelWidth)
		fmt.Fprintf(&b, "  %-*s %s%s%s\n", labelWidth, label, strings.Repeat(" ", max(0, from)), bar, slack)
	}
	return b.String()
}

// truncate shortens s to n runes, marking the cut with an ellipsis.
func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n-1]) + "…"
}
