package snapshot

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/papapumpkin/parsec/internal/schedule"
)

func startWatcher(t *testing.T, dir string) *Watcher {
	t.Helper()
	w, err := NewWatcher(dir)
	if err != nil {
		t.Fatalf("NewWatcher: %v", err)
	}
	if err := w.Start(); err != nil {
		t.Fatalf("Start: %v", err)
	}
	t.Cleanup(w.Stop)
	return w
}

func nextChange(t *testing.T, w *Watcher) Change {
	t.Helper()
	select {
	case c := <-w.Changes:
		return c
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for change event")
	}
	return Change{}
}

func TestWatcher_ReloadsWrittenSnapshot(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	snap := schedule.Snapshot{Project: schedule.Project{ID: "p1"}, Tasks: []schedule.Task{{ID: "A", PlannedDurationDays: 2}}}
	if err := Write(filepath.Join(dir, "p1.toml"), snap); err != nil {
		t.Fatalf("Write: %v", err)
	}

	c := nextChange(t, w)
	if c.Kind != ChangeModified || c.Snapshot.Project.ID != "p1" || len(c.Snapshot.Tasks) != 1 {
		t.Errorf("change = %+v", c)
	}
}

func TestWatcher_ReportsInvalidAndRemoved(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "broken.toml")
	w := startWatcher(t, dir)

	if err := os.WriteFile(path, []byte("[[tasks]]\nid = \"A\"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	if c := nextChange(t, w); c.Kind != ChangeInvalid || c.Err == nil {
		t.Errorf("change = %+v, want invalid", c)
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if c := nextChange(t, w); c.Kind != ChangeRemoved {
		t.Errorf("change = %v, want removed", c.Kind)
	}
}

func TestWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	w := startWatcher(t, dir)

	if err := os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("hello"), 0o644); err != nil {
		t.Fatal(err)
	}
	select {
	case c := <-w.Changes:
		t.Errorf("unexpected change event: %+v", c)
	case <-time.After(300 * time.Millisecond):
	}
}
