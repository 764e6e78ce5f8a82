package evm

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/schedule"
)

const (
	costConfidence     = 80
	scheduleConfidence = 75
)

// Historical is the planned and actual outcome of a finished project.
type Historical struct {
	PlannedCost decimal.Decimal `json:"planned_cost"`
	ActualCost  decimal.Decimal `json:"actual_cost"`
	PlannedDays int             `json:"planned_days"`
	ActualDays  int             `json:"actual_days"`
}

// CostInterval bounds the predicted final cost.
type CostInterval struct {
	Lower      decimal.Decimal `json:"lower_bound"`
	Upper      decimal.Decimal `json:"upper_bound"`
	Confidence int             `json:"confidence_level"`
}

// ScheduleInterval bounds the predicted completion date. Both bounds are
// nil when there is no forecast.
type ScheduleInterval struct {
	Lower      *schedule.Date `json:"lower_bound"`
	Upper      *schedule.Date `json:"upper_bound"`
	Confidence int            `json:"confidence_level"`
}

// Prediction forecasts how a project will finish.
type Prediction struct {
	FinalCost          decimal.Decimal  `json:"predicted_final_cost"`
	Completion         *schedule.Date   `json:"predicted_completion_date,omitempty"`
	CostInterval       CostInterval     `json:"cost_confidence_interval"`
	ScheduleInterval   ScheduleInterval `json:"schedule_confidence_interval"`
	SuccessProbability int              `json:"success_probability"`
	KeyRisks           []string         `json:"key_risks"`
	PredictedAt        time.Time        `json:"prediction_date"`
}

// Predict forecasts final cost and completion. Historical projects widen
// the interval bands to their mean overrun when that is larger.
func (c *Calculator) Predict(m Metrics, historical []Historical) Prediction {
	costBand, scheduleBand := c.bands.Cost, c.bands.Schedule
	if len(historical) > 0 {
		hc, hs := overruns(historical)
		costBand = math.Max(costBand, hc)
		scheduleBand = math.Max(scheduleBand, hs)
	}

	p := Prediction{
		FinalCost:          m.EAC,
		Completion:         forecast(m),
		CostInterval:       costInterval(m.EAC, costBand),
		SuccessProbability: successProbability(m),
		KeyRisks:           keyRisks(m),
		PredictedAt:        c.clock.Now(),
	}
	if days, ok := remainingDays(m); ok {
		spread := int(math.Ceil(float64(days) * scheduleBand))
		lo, hi := m.AsOf.AddDays(days-spread), m.AsOf.AddDays(days+spread)
		p.ScheduleInterval = ScheduleInterval{Lower: &lo, Upper: &hi, Confidence: scheduleConfidence}
	}
	return p
}

func costInterval(eac decimal.Decimal, band float64) CostInterval {
	b := decimal.NewFromFloat(band)
	return CostInterval{
		Lower:      eac.Mul(one.Sub(b)).Round(moneyPlaces),
		Upper:      eac.Mul(one.Add(b)).Round(moneyPlaces),
		Confidence: costConfidence,
	}
}

// overruns returns the mean absolute relative cost and schedule overrun of
// the historical projects that carry a plan.
func overruns(hist []Historical) (cost, sched float64) {
	var nc, ns int
	for _, h := range hist {
		if h.PlannedCost.IsPositive() {
			r, _ := h.ActualCost.Sub(h.PlannedCost).Div(h.PlannedCost).Abs().Float64()
			cost += r
			nc++
		}
		if h.PlannedDays > 0 {
			sched += math.Abs(float64(h.ActualDays-h.PlannedDays)) / float64(h.PlannedDays)
			ns++
		}
	}
	if nc > 0 {
		cost /= float64(nc)
	}
	if ns > 0 {
		sched /= float64(ns)
	}
	return cost, sched
}

// indexPoints scores a performance index: at least 1.0 earns 40, 0.9 earns
// 30, 0.8 earns 20, anything lower 10.
func indexPoints(idx decimal.Decimal) int {
	switch {
	case idx.GreaterThanOrEqual(one):
		return 40
	case idx.GreaterThanOrEqual(idx090):
		return 30
	case idx.GreaterThanOrEqual(idx080):
		return 20
	default:
		return 10
	}
}

func successProbability(m Metrics) int {
	score := indexPoints(m.SPI) + indexPoints(m.CPI)
	switch pc := m.PercentComplete; {
	case pc.GreaterThanOrEqual(decimal.NewFromInt(75)):
		score += 20
	case pc.GreaterThanOrEqual(decimal.NewFromInt(50)):
		score += 15
	case pc.GreaterThanOrEqual(decimal.NewFromInt(25)):
		score += 10
	default:
		score += 5
	}
	return min(score, 100)
}

// NoKeyRisks is the single key risk reported when nothing is flagged.
const NoKeyRisks = "No significant risks identified based on current EVM metrics"

func keyRisks(m Metrics) []string {
	var risks []string
	if lagging(m.SPI, m.PV, idx085) {
		risks = append(risks, "Schedule slippage risk: SPI indicates significant delays")
	}
	if lagging(m.CPI, m.AC, idx085) {
		risks = append(risks, "Cost overrun risk: CPI indicates budget issues")
	}
	if m.TCPI.GreaterThan(idx120) {
		risks = append(risks, "Completion performance risk: TCPI requires unrealistic future performance")
	}
	if m.VAC.IsNegative() {
		if pct := variancePct(m.VAC, m.BAC); pct.GreaterThan(twentyPct) {
			risks = append(risks, fmt.Sprintf("Budget completion risk: projected shortfall of %s%%", pct.StringFixed(1)))
		}
	}
	if m.PercentComplete.LessThan(decimal.NewFromInt(30)) && lagging(m.SPI, m.PV, idx090) {
		risks = append(risks, "Early stage performance risk: poor initial performance trends")
	}
	if len(risks) == 0 {
		return []string{NoKeyRisks}
	}
	return risks
}
