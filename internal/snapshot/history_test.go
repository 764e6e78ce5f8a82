package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/shopspring/decimal"

	"github.com/papapumpkin/parsec/internal/evm"
	"github.com/papapumpkin/parsec/internal/schedule"
)

func TestParseHistory(t *testing.T) {
	t.Parallel()
	data := `
[[projects]]
id = "depot"
planned_cost = 1000
actual_cost = "1150.50"
planned_days = 30
actual_days = 36

[[projects]]
planned_cost = 500.5
actual_cost = 480
planned_days = 10
actual_days = 9
`
	got, err := ParseHistory([]byte(data))
	if err != nil {
		t.Fatalf("ParseHistory: %v", err)
	}
	want := []evm.Historical{
		{PlannedCost: decimal.NewFromInt(1000), ActualCost: decimal.RequireFromString("1150.50"), PlannedDays: 30, ActualDays: 36},
		{PlannedCost: decimal.RequireFromString("500.5"), ActualCost: decimal.NewFromInt(480), PlannedDays: 10, ActualDays: 9},
	}
	if diff := cmp.Diff(want, got, cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })); diff != "" {
		t.Errorf("history (-want +got):\n%s", diff)
	}
}

func TestParseHistory_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		data string
	}{
		{"malformed", `[[projects]`},
		{"zero planned days", "[[projects]]\nplanned_cost = 10\nplanned_days = 0\n"},
		{"missing planned cost", "[[projects]]\nplanned_days = 5\n"},
		{"bad amount", "[[projects]]\nplanned_cost = \"ten\"\nplanned_days = 5\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := ParseHistory([]byte(tt.data))
			if !errors.Is(err, schedule.ErrValidation) {
				t.Errorf("err = %v, want a validation error", err)
			}
		})
	}
}

func TestLoadHistory_File(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "history.toml")
	if err := os.WriteFile(path, []byte("[[projects]]\nplanned_cost = 100\nactual_cost = 90\nplanned_days = 4\nactual_days = 4\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	got, err := LoadHistory(path)
	if err != nil || len(got) != 1 {
		t.Fatalf("LoadHistory = %v, %v", got, err)
	}
	if _, err := LoadHistory(filepath.Join(t.TempDir(), "missing.toml")); err == nil {
		t.Error("expected an error for a missing file")
	}
}
