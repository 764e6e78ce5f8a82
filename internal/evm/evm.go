// Package evm computes earned value metrics for a project and derives
// performance analyses and outcome forecasts from them.
package evm

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/schedule"
)

const (
	moneyPlaces = 2
	indexPlaces = 4
)

var (
	zero    = decimal.Zero
	one     = decimal.NewFromInt(1)
	hundred = decimal.NewFromInt(100)
)

// Metrics is a point-in-time EVM snapshot. A new calculation produces a new
// value; nothing mutates an existing one.
type Metrics struct {
	ProjectID       string          `json:"project_id"`
	PV              decimal.Decimal `json:"planned_value"`
	EV              decimal.Decimal `json:"earned_value"`
	AC              decimal.Decimal `json:"actual_cost"`
	BAC             decimal.Decimal `json:"budget_at_completion"`
	SV              decimal.Decimal `json:"schedule_variance"`
	CV              decimal.Decimal `json:"cost_variance"`
	SPI             decimal.Decimal `json:"schedule_performance_index"`
	CPI             decimal.Decimal `json:"cost_performance_index"`
	EAC             decimal.Decimal `json:"estimate_at_completion"`
	ETC             decimal.Decimal `json:"estimate_to_complete"`
	VAC             decimal.Decimal `json:"variance_at_completion"`
	TCPI            decimal.Decimal `json:"to_complete_performance_index"`
	PercentComplete decimal.Decimal `json:"percent_complete"`
	Start           schedule.Date   `json:"project_start_date"`
	End             schedule.Date   `json:"project_end_date"`
	AsOf            schedule.Date   `json:"as_of_date"`
	CalculatedAt    time.Time       `json:"calculated_at"`
}

// Bands are the relative widths of the forecast intervals.
type Bands struct {
	Cost     float64
	Schedule float64
}

// DefaultBands returns ±10% on cost and ±15% on schedule.
func DefaultBands() Bands {
	return Bands{Cost: 0.10, Schedule: 0.15}
}

// Calculator computes, analyses and forecasts EVM metrics.
type Calculator struct {
	clock schedule.Clock
	bands Bands
}

// New creates a Calculator. The clock's Today is the as-of date of every
// calculation.
func New(clock schedule.Clock, bands Bands) *Calculator {
	if clock == nil {
		clock = schedule.SystemClock{}
	}
	return &Calculator{clock: clock, bands: bands}
}

// Calculate derives the metrics of a project as of today. A zero budget
// means the sum of the task budgets.
func (c *Calculator) Calculate(projectID string, tasks []schedule.Task, budget decimal.Decimal, start, end schedule.Date) (Metrics, error) {
	return c.CalculateAt(projectID, tasks, budget, start, end, c.clock.Today())
}

// CalculateAt is Calculate with an explicit as-of date.
func (c *Calculator) CalculateAt(projectID string, tasks []schedule.Task, budget decimal.Decimal, start, end, asOf schedule.Date) (Metrics, error) {
	switch {
	case start.IsZero():
		return Metrics{}, &schedule.ValidationError{Category: schedule.ValCatMissingField, Field: "start_date", Reason: "project start date is required"}
	case end.IsZero():
		return Metrics{}, &schedule.ValidationError{Category: schedule.ValCatMissingField, Field: "end_date", Reason: "project end date is required"}
	case end.Before(start):
		return Metrics{}, &schedule.ValidationError{Category: schedule.ValCatDateOrder, Field: "end_date", Reason: "project ends before it starts"}
	}

	ev, ac, planned := zero, zero, zero
	for _, t := range tasks {
		progress := decimal.NewFromInt(int64(min(max(t.Progress, 0), 100)))
		ev = ev.Add(t.BudgetedCost.Mul(progress).Div(hundred))
		ac = ac.Add(t.ActualCost)
		planned = planned.Add(t.BudgetedCost)
	}
	bac := budget
	if !bac.IsPositive() {
		bac = planned
	}

	m := Metrics{
		ProjectID:    projectID,
		PV:           plannedValue(bac, start, end, asOf).Round(moneyPlaces),
		EV:           ev.Round(moneyPlaces),
		AC:           ac.Round(moneyPlaces),
		BAC:          bac.Round(moneyPlaces),
		Start:        start,
		End:          end,
		AsOf:         asOf,
		CalculatedAt: c.clock.Now(),
	}
	m.SV = m.EV.Sub(m.PV)
	m.CV = m.EV.Sub(m.AC)

	spi := ratio(m.EV, m.PV)
	cpi := ratio(m.EV, m.AC)
	m.SPI = spi.Round(indexPlaces)
	m.CPI = cpi.Round(indexPlaces)

	m.EAC = estimateAtCompletion(m.AC, m.EV, m.BAC, cpi).Round(moneyPlaces)
	m.ETC = m.EAC.Sub(m.AC)
	m.VAC = m.BAC.Sub(m.EAC)
	m.TCPI = ratio(m.BAC.Sub(m.EV), m.EAC.Sub(m.EV)).Round(indexPlaces)
	m.PercentComplete = ratio(m.EV, m.BAC).Mul(hundred).Round(moneyPlaces)
	return m, nil
}

// plannedValue spreads the budget linearly over the project window.
func plannedValue(bac decimal.Decimal, start, end, asOf schedule.Date) decimal.Decimal {
	total := start.DaysUntil(end)
	elapsed := start.DaysUntil(asOf)
	if total <= 0 || elapsed <= 0 {
		return zero
	}
	share := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(total)))
	return bac.Mul(decimal.Min(share, one))
}

func estimateAtCompletion(ac, ev, bac, cpi decimal.Decimal) decimal.Decimal {
	if !cpi.IsPositive() {
		return bac
	}
	remaining := bac.Sub(ev)
	if !remaining.IsPositive() {
		return ac
	}
	return ac.Add(remaining.Div(cpi))
}

// ratio divides a by b, yielding 0 when b is not positive.
func ratio(a, b decimal.Decimal) decimal.Decimal {
	if !b.IsPositive() {
		return zero
	}
	return a.Div(b)
}
