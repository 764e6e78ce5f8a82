package evm

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/schedule"
)

// Schedule and cost statuses.
const (
	AheadOfSchedule             = "ahead_of_schedule"
	OnSchedule                  = "on_schedule"
	SlightlyBehindSchedule      = "slightly_behind_schedule"
	ModeratelyBehindSchedule    = "moderately_behind_schedule"
	SignificantlyBehindSchedule = "significantly_behind_schedule"
	UnderBudget                 = "under_budget"
	OnBudget                    = "on_budget"
	SlightlyOverBudget          = "slightly_over_budget"
	ModeratelyOverBudget        = "moderately_over_budget"
	SignificantlyOverBudget     = "significantly_over_budget"
)

const (
	riskLow    = "low"
	riskMedium = "medium"
	riskHigh   = "high"
)

var (
	tenPct    = decimal.NewFromInt(10)
	twentyPct = decimal.NewFromInt(20)
	idx080    = decimal.RequireFromString("0.8")
	idx085    = decimal.RequireFromString("0.85")
	idx090    = decimal.RequireFromString("0.9")
	idx120    = decimal.RequireFromString("1.2")
)

// RiskIndicators scores how exposed the project is.
type RiskIndicators struct {
	Score              int      `json:"risk_score"`
	Level              string   `json:"overall_risk_level"`
	Factors            []string `json:"risk_factors"`
	MitigationPriority string   `json:"mitigation_priority"`
}

// Analysis interprets a Metrics snapshot.
type Analysis struct {
	ScheduleStatus  string         `json:"schedule_status"`
	CostStatus      string         `json:"cost_status"`
	Forecast        *schedule.Date `json:"forecast_completion_date,omitempty"`
	Recommendations []string       `json:"recommendations"`
	Risk            RiskIndicators `json:"risk_indicators"`
	AnalyzedAt      time.Time      `json:"analysis_date"`
}

// Analyze classifies schedule and cost performance, forecasts completion
// and scores risk.
func (c *Calculator) Analyze(m Metrics) Analysis {
	sched := scheduleStatus(m)
	cost := costStatus(m)
	return Analysis{
		ScheduleStatus:  sched,
		CostStatus:      cost,
		Forecast:        forecast(m),
		Recommendations: recommendations(m, sched, cost),
		Risk:            riskIndicators(m),
		AnalyzedAt:      c.clock.Now(),
	}
}

// variancePct is |v|/base as a percentage, 0 when base is not positive.
func variancePct(v, base decimal.Decimal) decimal.Decimal {
	return ratio(v.Abs(), base).Mul(hundred)
}

func scheduleStatus(m Metrics) string {
	switch m.SV.Sign() {
	case 1:
		return AheadOfSchedule
	case 0:
		return OnSchedule
	}
	pct := variancePct(m.SV, m.PV)
	switch {
	case pct.GreaterThan(twentyPct):
		return SignificantlyBehindSchedule
	case pct.GreaterThan(tenPct):
		return ModeratelyBehindSchedule
	default:
		return SlightlyBehindSchedule
	}
}

func costStatus(m Metrics) string {
	switch m.CV.Sign() {
	case 1:
		return UnderBudget
	case 0:
		return OnBudget
	}
	pct := variancePct(m.CV, m.EV)
	switch {
	case pct.GreaterThan(twentyPct):
		return SignificantlyOverBudget
	case pct.GreaterThan(tenPct):
		return ModeratelyOverBudget
	default:
		return SlightlyOverBudget
	}
}

// remainingDays projects the planned days left onto the current pace.
// ok is false when SPI gives no pace to project from.
func remainingDays(m Metrics) (int, bool) {
	if !m.SPI.IsPositive() {
		return 0, false
	}
	total := decimal.NewFromInt(int64(m.Start.DaysUntil(m.End)))
	left := total.Mul(one.Sub(m.PercentComplete.Div(hundred)))
	days := left.Div(m.SPI).Ceil().IntPart()
	return int(max(days, 0)), true
}

func forecast(m Metrics) *schedule.Date {
	days, ok := remainingDays(m)
	if !ok {
		return nil
	}
	d := m.AsOf.AddDays(days)
	return &d
}

func recommendations(m Metrics, sched, cost string) []string {
	var out []string
	behind := sched != AheadOfSchedule && sched != OnSchedule
	over := cost != UnderBudget && cost != OnBudget
	if behind {
		if m.SPI.LessThan(idx080) {
			out = append(out, "Critical: schedule performance is poor. Consider crashing or fast-tracking critical path activities.")
		} else {
			out = append(out, "Monitor schedule variance closely and implement schedule recovery actions.")
		}
	}
	if over {
		if m.CPI.LessThan(idx080) {
			out = append(out, "Critical: cost performance is poor. Review budget allocations and implement cost control measures.")
		} else {
			out = append(out, "Track cost variances and implement corrective actions to prevent further overruns.")
		}
	}
	if m.TCPI.GreaterThan(idx120) {
		out = append(out, "High TCPI: the remaining work needs aggressive performance. Consider scope reduction or additional resources.")
	}
	if m.PercentComplete.LessThan(decimal.NewFromInt(50)) && (lagging(m.SPI, m.PV, idx090) || lagging(m.CPI, m.AC, idx090)) {
		out = append(out, "Early warning: the project is trending poorly. Implement immediate corrective actions.")
	}
	if len(out) == 0 {
		out = append(out, "Project performance is within acceptable ranges. Continue monitoring.")
	}
	return out
}

// lagging reports whether an index is below limit. An index whose
// denominator is still zero carries no signal.
func lagging(index, denominator, limit decimal.Decimal) bool {
	return denominator.IsPositive() && index.LessThan(limit)
}

func riskIndicators(m Metrics) RiskIndicators {
	r := RiskIndicators{Factors: []string{}}
	add := func(points int, factor string) {
		r.Score += points
		r.Factors = append(r.Factors, factor)
	}
	switch {
	case lagging(m.SPI, m.PV, idx080):
		add(3, "schedule_performance_critical")
	case lagging(m.SPI, m.PV, idx090):
		add(2, "schedule_performance")
	}
	switch {
	case lagging(m.CPI, m.AC, idx080):
		add(3, "cost_performance_critical")
	case lagging(m.CPI, m.AC, idx090):
		add(2, "cost_performance")
	}
	if m.TCPI.GreaterThan(idx120) {
		add(2, "completion_performance")
	}
	switch {
	case r.Score >= 4:
		r.Level = riskHigh
	case r.Score >= 2:
		r.Level = riskMedium
	default:
		r.Level = riskLow
	}
	r.MitigationPriority = r.Level
	return r
}
