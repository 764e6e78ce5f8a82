package cmd

import (
	"bufio"
	"bytes"
	"strings"
	"testing"
)

func TestPrintEvent(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		line string
		kind string
		want string
	}{
		{
			name: "full event",
			line: `{"ts":"2025-01-01T10:04:05Z","kind":"critical_path","project":"p1","duration_ms":12,"data":{"tasks":4,"critical":2}}`,
			want: "[10:04:05] critical_path project=p1 took=12ms critical=2 tasks=4\n",
		},
		{
			name: "error event",
			line: `{"ts":"2025-01-01T10:04:05Z","kind":"optimize","error":"timed out"}`,
			want: "[10:04:05] optimize error=\"timed out\"\n",
		},
		{
			name: "scalar data",
			line: `{"ts":"2025-01-01T10:04:05Z","kind":"evm","data":[1,2]}`,
			want: "[10:04:05] evm [1,2]\n",
		},
		{
			name: "filtered out",
			line: `{"ts":"2025-01-01T10:04:05Z","kind":"evm"}`,
			kind: "validate",
			want: "",
		},
		{
			name: "malformed",
			line: `not json`,
			want: "??? not json\n",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			var buf bytes.Buffer
			printEvent(&buf, tt.line, tt.kind)
			if buf.String() != tt.want {
				t.Errorf("printEvent = %q, want %q", buf.String(), tt.want)
			}
		})
	}
}

func TestFormatDataMap_SortedKeys(t *testing.T) {
	t.Parallel()
	got := formatDataMap(map[string]any{"zeta": 1, "alpha": "x", "mid": true})
	if want := "alpha=x mid=true zeta=1"; got != want {
		t.Errorf("formatDataMap = %q, want %q", got, want)
	}
}

func TestDrain_SkipsBlankLines(t *testing.T) {
	t.Parallel()
	input := `{"ts":"2025-01-01T00:00:00Z","kind":"plan_start","project":"a"}` + "\n\n" +
		`{"ts":"2025-01-01T00:00:01Z","kind":"plan_done","project":"a"}`
	var buf bytes.Buffer
	if err := drain(&buf, bufio.NewReader(strings.NewReader(input)), ""); err != nil {
		t.Fatalf("drain: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d:\n%s", len(lines), buf.String())
	}
	if !strings.Contains(lines[1], "plan_done project=a") {
		t.Errorf("second line = %q", lines[1])
	}
}
