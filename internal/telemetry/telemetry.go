// Package telemetry records engine operations as a JSONL event stream. Each
// validation, schedule computation, optimization, conflict pass, baseline
// action and EVM calculation becomes one structured event, so planning runs
// can be audited and compared after the fact.
package telemetry

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Event kinds identify the engine operation an event describes.
const (
	KindValidate         = "validate"
	KindCriticalPath     = "critical_path"
	KindLeveling         = "leveling"
	KindOptimize         = "optimize"
	KindSchedule         = "schedule"
	KindConflictsFound   = "conflicts_detected"
	KindConflictsFixed   = "conflicts_resolved"
	KindBaselineCreated  = "baseline_created"
	KindBaselineRestored = "baseline_restored"
	KindEVM              = "evm"
	KindPlanStart        = "plan_start"
	KindPlanDone         = "plan_done"
	KindSnapshotReloaded = "snapshot_reloaded"
)

// Event is a single telemetry record: when it happened, what kind of
// operation it was, which project it touched, how long it took and any
// operation-specific counts.
type Event struct {
	Timestamp  time.Time `json:"ts"`
	Kind       string    `json:"kind"`
	ProjectID  string    `json:"project,omitempty"`
	DurationMS int64     `json:"duration_ms,omitempty"`
	Error      string    `json:"error,omitempty"`
	Data       any       `json:"data,omitempty"`
}

// Emitter writes events as JSON lines. It is safe for concurrent use by
// multiple goroutines. A nil *Emitter is a valid no-op emitter.
type Emitter struct {
	w   io.Writer
	c   io.Closer
	enc *json.Encoder
	mu  sync.Mutex
	now func() time.Time
}

// NewEmitter creates an Emitter appending to the file at path, creating it
// if needed.
func NewEmitter(path string) (*Emitter, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("telemetry: open %s: %w", path, err)
	}
	e := NewWriterEmitter(f)
	e.c = f
	return e, nil
}

// NewWriterEmitter creates an Emitter over w. Close does not close w.
func NewWriterEmitter(w io.Writer) *Emitter {
	return &Emitter{w: w, enc: json.NewEncoder(w), now: time.Now}
}

// Emit writes a single event. A zero Timestamp is filled with the current
// time. Calling Emit on a nil Emitter is a no-op.
func (e *Emitter) Emit(evt Event) error {
	if e == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if evt.Timestamp.IsZero() {
		evt.Timestamp = e.now().UTC()
	}
	if err := e.enc.Encode(evt); err != nil {
		return fmt.Errorf("telemetry: encode event: %w", err)
	}
	return nil
}

// Record emits an event for an operation that began at start, carrying its
// error, if any, as text.
func (e *Emitter) Record(kind, projectID string, start time.Time, data any, opErr error) error {
	if e == nil {
		return nil
	}
	evt := Event{
		Kind:       kind,
		ProjectID:  projectID,
		DurationMS: e.now().Sub(start).Milliseconds(),
		Data:       data,
	}
	if opErr != nil {
		evt.Error = opErr.Error()
	}
	return e.Emit(evt)
}

// Close closes the underlying file when the Emitter owns one. Calling Close
// on a nil Emitter is a no-op.
func (e *Emitter) Close() error {
	if e == nil || e.c == nil {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.c.Close(); err != nil {
		return fmt.Errorf("telemetry: close: %w", err)
	}
	return nil
}
