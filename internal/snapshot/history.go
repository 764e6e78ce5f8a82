package snapshot

import (
	"fmt"
	"os"

	toml "github.com/pelletier/go-toml/v2"

	"github.com/papapumpkin/parsec/internal/evm"
	"github.com/papapumpkin/parsec/internal/schedule"
)

// HistoryFile lists completed projects used to calibrate EVM predictions.
type HistoryFile struct {
	Projects []HistorySpec `toml:"projects"`
}

// HistorySpec is one [[projects]] entry of a history file.
type HistorySpec struct {
	ID          string `toml:"id,omitempty"`
	PlannedCost any    `toml:"planned_cost"`
	ActualCost  any    `toml:"actual_cost"`
	PlannedDays int    `toml:"planned_days"`
	ActualDays  int    `toml:"actual_days"`
}

// LoadHistory reads a history file.
func LoadHistory(path string) ([]evm.Historical, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	out, err := ParseHistory(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return out, nil
}

// ParseHistory decodes history TOML. Entries need positive planned cost
// and days.
func ParseHistory(data []byte) ([]evm.Historical, error) {
	var f HistoryFile
	if err := toml.Unmarshal(data, &f); err != nil {
		return nil, &schedule.ValidationError{Category: schedule.ValCatBoundsViolation, Field: "toml", Reason: err.Error()}
	}
	out := make([]evm.Historical, 0, len(f.Projects))
	for i, p := range f.Projects {
		key := p.ID
		if key == "" {
			key = fmt.Sprintf("projects[%d]", i)
		}
		planned, err := money(key, "planned_cost", p.PlannedCost)
		if err != nil {
			return nil, err
		}
		actual, err := money(key, "actual_cost", p.ActualCost)
		if err != nil {
			return nil, err
		}
		if !planned.IsPositive() || p.PlannedDays <= 0 {
			return nil, &schedule.ValidationError{
				Category: schedule.ValCatBoundsViolation, TaskID: key, Field: "planned_cost",
				Reason: "planned cost and planned days must be positive",
			}
		}
		out = append(out, evm.Historical{
			PlannedCost: planned,
			ActualCost:  actual,
			PlannedDays: p.PlannedDays,
			ActualDays:  p.ActualDays,
		})
	}
	return out, nil
}
