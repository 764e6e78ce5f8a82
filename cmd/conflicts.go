package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/conflict"
	"github.com/papapumpkin/parsec/internal/schedule"
	"github.com/papapumpkin/parsec/internal/snapshot"
)

var conflictsCmd = &cobra.Command{
	Use:   "conflicts [snapshot.toml]",
	Short: "Detect resource, deadline, dependency and capacity conflicts",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runConflicts,
}

var conflictsResolveCmd = &cobra.Command{
	Use:   "resolve [snapshot.toml]",
	Short: "Resolve detected conflicts automatically",
	Long: `Detects conflicts and applies the automatic resolution strategy.

With --write the updated tasks are saved: back to the snapshot file, or to
the repository in one transaction for a stored project.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runConflictsResolve,
}

func init() {
	addProjectFlag(conflictsCmd)
	addProjectFlag(conflictsResolveCmd)
	conflictsResolveCmd.Flags().String("strategy", string(conflict.StrategyAuto), "resolution strategy")
	conflictsResolveCmd.Flags().Bool("write", false, "save the resolved tasks")

	conflictsCmd.AddCommand(conflictsResolveCmd)
	rootCmd.AddCommand(conflictsCmd)
}

// conflictReport is the machine-readable form of a detection run.
type conflictReport struct {
	Conflicts  []conflict.Conflict `json:"conflicts"`
	Statistics conflict.Statistics `json:"statistics"`
	Summary    string              `json:"summary"`
}

func runConflicts(cmd *cobra.Command, args []string) error {
	e, snap, err := newSnapshotEnv(cmd, args)
	if err != nil {
		return err
	}
	defer e.close()

	found := e.engine.DetectConflicts(snap.Project, snap.Tasks, snap.AllEdges())
	if found == nil {
		found = []conflict.Conflict{}
	}
	report := conflictReport{Conflicts: found, Statistics: conflict.Stats(found), Summary: conflict.Summary(found)}
	return e.render(cmd.OutOrStdout(), report, func() { e.printer.Conflicts(found) })
}

func runConflictsResolve(cmd *cobra.Command, args []string) error {
	strategy, _ := cmd.Flags().GetString("strategy")
	write, _ := cmd.Flags().GetBool("write")
	if conflict.Strategy(strategy) != conflict.StrategyAuto {
		return fmt.Errorf("strategy %q: %w", strategy, conflict.ErrUnsupportedStrategy)
	}

	e, snap, err := newSnapshotEnv(cmd, args)
	if err != nil {
		return err
	}
	defer e.close()

	edges := snap.AllEdges()
	found := e.engine.DetectConflicts(snap.Project, snap.Tasks, edges)
	res := e.engine.ResolveConflicts(snap.Tasks, edges, found, conflict.Strategy(strategy))
	if err := e.render(cmd.OutOrStdout(), res, func() { e.printer.Resolution(res) }); err != nil {
		return err
	}
	if !write || res.ConflictsResolved == 0 {
		return nil
	}
	return e.saveTasks(cmd, args, snap, res.Tasks)
}

// saveTasks writes updated tasks back to where the snapshot came from.
func (e *env) saveTasks(cmd *cobra.Command, args []string, snap schedule.Snapshot, tasks []schedule.Task) error {
	path, projectID := source(cmd, args)
	if path == "" {
		if err := e.repo.ApplyTasks(cmd.Context(), projectID, tasks); err != nil {
			return err
		}
		e.printer.Success(fmt.Sprintf("updated %d task(s) in project %s", len(tasks), projectID))
		return nil
	}
	snap.Tasks = tasks
	if err := snapshot.Write(path, snap); err != nil {
		return err
	}
	e.printer.Success(fmt.Sprintf("wrote %s", path))
	return nil
}
