package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/engine"
	"github.com/papapumpkin/parsec/internal/snapshot"
	"github.com/papapumpkin/parsec/internal/telemetry"
)

var watchCmd = &cobra.Command{
	Use:   "watch <dir>",
	Short: "Re-plan snapshot files whenever they change",
	Long: `Plans every snapshot in dir once, then watches the directory and re-plans
each file as it is written. Runs until interrupted.`,
	Args: cobra.ExactArgs(1),
	RunE: runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	e, err := newEnv(cmd, false)
	if err != nil {
		return err
	}
	defer e.close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	snaps, err := snapshot.LoadDir(dir)
	if err != nil {
		return err
	}
	out, err := e.engine.PlanAll(ctx, snaps)
	if err != nil {
		return err
	}
	e.printer.Outcomes(out)

	w, err := snapshot.NewWatcher(dir)
	if err != nil {
		return err
	}
	if err := w.Start(); err != nil {
		return err
	}
	defer w.Stop()
	e.printer.Info(fmt.Sprintf("watching %s for changes (Ctrl+C to stop)", dir))

	for {
		select {
		case <-ctx.Done():
			return nil
		case change, ok := <-w.Changes:
			if !ok {
				return nil
			}
			e.handleChange(ctx, change)
		}
	}
}

// handleChange re-plans a modified snapshot and reports the outcome.
func (e *env) handleChange(ctx context.Context, change snapshot.Change) {
	start := time.Now()
	switch change.Kind {
	case snapshot.ChangeRemoved:
		e.printer.Info("removed " + change.File)
	case snapshot.ChangeInvalid:
		e.printer.Warn(fmt.Sprintf("%s: %v", change.File, change.Err))
	case snapshot.ChangeModified:
		id := change.Snapshot.Project.ID
		p, err := e.engine.Plan(ctx, change.Snapshot)
		e.printer.Outcomes([]engine.Outcome{{ProjectID: id, Plan: p, Err: err}})
	}
	if err := e.events.Record(telemetry.KindSnapshotReloaded, change.Snapshot.Project.ID, start, map[string]any{
		"file": change.File, "change": change.Kind.String(),
	}, change.Err); err != nil {
		e.logger.Warn("telemetry write failed", "err", err)
	}
}
