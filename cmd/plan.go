package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/engine"
	"github.com/papapumpkin/parsec/internal/schedule"
	"github.com/papapumpkin/parsec/internal/snapshot"
)

var planCmd = &cobra.Command{
	Use:   "plan [snapshot.toml | dir]",
	Short: "Validate, schedule, check conflicts and report earned value",
	Long: `Runs the full planning pipeline on one project or many.

A file argument plans that project; a directory plans every snapshot in it
in parallel. --project plans a stored project and --all every stored
project. --apply writes the scheduled dates back to the file or, in one
transaction per project, to the repository.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runPlan,
}

func init() {
	addProjectFlag(planCmd)
	planCmd.Flags().Bool("all", false, "plan every stored project")
	planCmd.Flags().Bool("apply", false, "save the scheduled tasks")
	rootCmd.AddCommand(planCmd)
}

func runPlan(cmd *cobra.Command, args []string) error {
	path, projectID := source(cmd, args)
	all, _ := cmd.Flags().GetBool("all")
	apply, _ := cmd.Flags().GetBool("apply")

	stored := path == ""
	if stored && projectID == "" && !all {
		return fmt.Errorf("a snapshot file, a directory, --project or --all is required")
	}
	e, err := newEnv(cmd, stored)
	if err != nil {
		return err
	}
	defer e.close()

	switch {
	case all:
		out, err := e.engine.PlanAllStored(cmd.Context(), e.repo, apply)
		if err != nil {
			return err
		}
		return e.renderOutcomes(cmd, out)
	case stored:
		p, err := e.engine.PlanStored(cmd.Context(), e.repo, projectID, apply)
		return e.renderPlan(cmd, p, err)
	}

	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.IsDir() {
		return e.planDir(cmd, path, apply)
	}

	snap, err := snapshot.Load(path)
	if err != nil {
		return err
	}
	p, err := e.engine.Plan(cmd.Context(), snap)
	if err := e.renderPlan(cmd, p, err); err != nil {
		return err
	}
	if apply {
		return e.writeSchedule(path, snap, p)
	}
	return nil
}

// planDir plans every snapshot in dir and, with apply, writes each
// successful schedule back to its file.
func (e *env) planDir(cmd *cobra.Command, dir string, apply bool) error {
	paths, err := snapshot.Paths(dir)
	if err != nil {
		return err
	}
	snaps := make([]schedule.Snapshot, 0, len(paths))
	for _, p := range paths {
		snap, err := snapshot.Load(p)
		if err != nil {
			return err
		}
		snaps = append(snaps, snap)
	}

	out, err := e.engine.PlanAll(cmd.Context(), snaps)
	if err != nil {
		return err
	}
	if apply {
		for i, o := range out {
			if o.Err != nil {
				continue
			}
			if err := e.writeSchedule(paths[i], snaps[i], o.Plan); err != nil {
				return err
			}
		}
	}
	return e.renderOutcomes(cmd, out)
}

func (e *env) writeSchedule(path string, snap schedule.Snapshot, p *engine.Plan) error {
	snap.Tasks = p.Schedule.PersistTasks()
	if err := snapshot.Write(path, snap); err != nil {
		return err
	}
	e.printer.Success("wrote " + path)
	return nil
}

// renderPlan prints a plan, including the partial plan of an invalid
// graph, and passes planErr through.
func (e *env) renderPlan(cmd *cobra.Command, p *engine.Plan, planErr error) error {
	if p == nil {
		return planErr
	}
	if err := e.render(cmd.OutOrStdout(), p, func() { e.printer.Plan(p) }); err != nil {
		return err
	}
	return planErr
}

func (e *env) renderOutcomes(cmd *cobra.Command, out []engine.Outcome) error {
	if err := e.render(cmd.OutOrStdout(), out, func() { e.printer.Outcomes(out) }); err != nil {
		return err
	}
	var errs []error
	for _, o := range out {
		if o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("%d of %d project(s) failed: %w", len(errs), len(out), errors.Join(errs...))
	}
	return nil
}
