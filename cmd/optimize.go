package cmd

import (
	"maps"
	"slices"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/optimize"
	"github.com/papapumpkin/parsec/internal/schedule"
)

var levelCmd = &cobra.Command{
	Use:   "level [snapshot.toml]",
	Short: "Level resource usage so no resource exceeds its capacity",
	Long: `Reschedules tasks so that concurrent resource demand stays within capacity.

Capacity comes from the snapshot's [capacity] table; --capacity entries
override or extend it, e.g. --capacity crane=1,crew=4.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runLevel,
}

var optimizeCmd = &cobra.Command{
	Use:   "optimize [snapshot.toml]",
	Short: "Optimize the schedule under the snapshot's constraints",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runOptimize,
}

func init() {
	addProjectFlag(levelCmd)
	levelCmd.Flags().StringToInt("capacity", nil, "resource capacity overrides (resource=units)")

	addProjectFlag(optimizeCmd)
	optimizeCmd.Flags().String("goal", string(optimize.GoalMinimizeDuration), "objective: minimize_duration or minimize_cost")

	rootCmd.AddCommand(levelCmd)
	rootCmd.AddCommand(optimizeCmd)
}

func runLevel(cmd *cobra.Command, args []string) error {
	e, snap, err := newSnapshotEnv(cmd, args)
	if err != nil {
		return err
	}
	defer e.close()

	overrides, _ := cmd.Flags().GetStringToInt("capacity")
	capacity := make(schedule.Capacity, len(snap.Project.Capacity)+len(overrides))
	maps.Copy(capacity, snap.Project.Capacity)
	maps.Copy(capacity, overrides)

	res, err := e.engine.OptimizeResourceLeveling(cmd.Context(), snap.Tasks, snap.AllEdges(), capacity)
	if err != nil {
		return err
	}
	if res.Approximate {
		e.printer.Warn(res.ReasonText)
	}
	return e.render(cmd.OutOrStdout(), res, func() { e.printer.Leveling(res) })
}

func runOptimize(cmd *cobra.Command, args []string) error {
	goalFlag, _ := cmd.Flags().GetString("goal")
	goal, err := optimize.ParseGoal(goalFlag)
	if err != nil {
		return err
	}
	e, snap, err := newSnapshotEnv(cmd, args)
	if err != nil {
		return err
	}
	defer e.close()

	constraints := snap.Constraints
	for _, res := range slices.Sorted(maps.Keys(snap.Project.Capacity)) {
		constraints = append(constraints, schedule.ResourceLimit(res, snap.Project.Capacity[res]))
	}
	res, err := e.engine.OptimizeScheduleWithConstraints(cmd.Context(), snap.Tasks, snap.AllEdges(), constraints, goal)
	if err != nil {
		return err
	}
	if res.Approximate {
		e.printer.Warn(res.ReasonText)
	}
	return e.render(cmd.OutOrStdout(), res, func() { e.printer.Optimization(res) })
}
