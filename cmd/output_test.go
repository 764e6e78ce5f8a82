package cmd

import (
	"bytes"
	"strings"
	"testing"
)

type outputFixture struct {
	ID    string   `json:"id"`
	Code  string   `json:"code"`
	Days  int      `json:"days"`
	Tasks []string `json:"tasks"`
	Empty []string `json:"empty,omitempty"`
}

func TestWriteJSON_Indented(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := writeJSON(&buf, outputFixture{ID: "p1", Days: 3}); err != nil {
		t.Fatalf("writeJSON: %v", err)
	}
	if !strings.Contains(buf.String(), "\n  \"id\": \"p1\"") {
		t.Errorf("expected two-space indentation, got:\n%s", buf.String())
	}
	if strings.Contains(buf.String(), "empty") {
		t.Errorf("omitempty field rendered:\n%s", buf.String())
	}
}

func TestWriteYAML_BlockStyle(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	v := outputFixture{ID: "p1", Code: "007", Days: 3, Tasks: []string{"A", "B"}}
	if err := writeYAML(&buf, v); err != nil {
		t.Fatalf("writeYAML: %v", err)
	}
	got := buf.String()

	for _, want := range []string{
		`id: "p1"` + "\n",
		`code: "007"` + "\n",
		"days: 3\n",
		"tasks:\n  - \"A\"\n  - \"B\"\n",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("missing %q in:\n%s", want, got)
		}
	}
	if strings.ContainsAny(got, "{[") {
		t.Errorf("expected block style, got flow style:\n%s", got)
	}
}

func TestWriteYAML_Unencodable(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	if err := writeYAML(&buf, map[string]any{"ch": make(chan int)}); err == nil {
		t.Fatal("expected error for a channel value")
	}
}
