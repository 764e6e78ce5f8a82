package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/schedule"
)

var baselineCmd = &cobra.Command{
	Use:   "baseline",
	Short: "Manage schedule baselines (create, list, compare, restore, history)",
}

var baselineCreateCmd = &cobra.Command{
	Use:   "create [snapshot.toml]",
	Short: "Freeze the current plan as a new baseline version",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBaselineCreate,
}

var baselineListCmd = &cobra.Command{
	Use:   "list",
	Short: "List baselines, newest first",
	Args:  cobra.NoArgs,
	RunE:  runBaselineList,
}

var baselineShowCmd = &cobra.Command{
	Use:   "show <version>",
	Short: "Show one baseline",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineShow,
}

var baselineCompareCmd = &cobra.Command{
	Use:   "compare <version> [snapshot.toml]",
	Short: "Compare the current plan, or one task with --task, against a baseline",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBaselineCompare,
}

var baselineRestoreCmd = &cobra.Command{
	Use:   "restore <version> [snapshot.toml]",
	Short: "Restore a task's planned fields from a baseline",
	Args:  cobra.RangeArgs(1, 2),
	RunE:  runBaselineRestore,
}

var baselineHistoryCmd = &cobra.Command{
	Use:   "history <task-id>",
	Short: "Show a task across baselines and restores",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineHistory,
}

var baselineDeleteCmd = &cobra.Command{
	Use:   "delete <version>",
	Short: "Delete a baseline",
	Args:  cobra.ExactArgs(1),
	RunE:  runBaselineDelete,
}

func init() {
	addProjectFlag(baselineCreateCmd)
	baselineCreateCmd.Flags().String("name", "", "baseline name (required)")
	baselineCreateCmd.Flags().String("description", "", "baseline description")
	baselineCreateCmd.Flags().String("by", os.Getenv("USER"), "author recorded on the baseline")
	_ = baselineCreateCmd.MarkFlagRequired("name")

	addProjectFlag(baselineListCmd)

	addProjectFlag(baselineCompareCmd)
	baselineCompareCmd.Flags().String("task", "", "compare only this task")

	addProjectFlag(baselineRestoreCmd)
	baselineRestoreCmd.Flags().String("task", "", "task to restore (required)")
	baselineRestoreCmd.Flags().StringSlice("fields", nil, "fields to restore (default: all restorable fields)")
	baselineRestoreCmd.Flags().String("by", os.Getenv("USER"), "actor recorded in the audit log")
	baselineRestoreCmd.Flags().Bool("write", false, "save the restored task")
	_ = baselineRestoreCmd.MarkFlagRequired("task")

	baselineCmd.AddCommand(baselineCreateCmd)
	baselineCmd.AddCommand(baselineListCmd)
	baselineCmd.AddCommand(baselineShowCmd)
	baselineCmd.AddCommand(baselineCompareCmd)
	baselineCmd.AddCommand(baselineRestoreCmd)
	baselineCmd.AddCommand(baselineHistoryCmd)
	baselineCmd.AddCommand(baselineDeleteCmd)
	rootCmd.AddCommand(baselineCmd)
}

// newBaselineEnv opens the repository, which stores baselines, and loads
// the project named by the snapshot argument or --project.
func newBaselineEnv(cmd *cobra.Command, args []string) (*env, schedule.Snapshot, error) {
	e, err := newEnv(cmd, true)
	if err != nil {
		return nil, schedule.Snapshot{}, err
	}
	path, projectID := source(cmd, args)
	snap, err := e.loadSnapshot(cmd.Context(), path, projectID)
	if err != nil {
		e.close()
		return nil, schedule.Snapshot{}, err
	}
	return e, snap, nil
}

func runBaselineCreate(cmd *cobra.Command, args []string) error {
	e, snap, err := newBaselineEnv(cmd, args)
	if err != nil {
		return err
	}
	defer e.close()

	name, _ := cmd.Flags().GetString("name")
	desc, _ := cmd.Flags().GetString("description")
	by, _ := cmd.Flags().GetString("by")
	b, err := e.engine.CreateBaseline(cmd.Context(), snap.Tasks, baseline.CreateRequest{
		ProjectID:   snap.Project.ID,
		Name:        name,
		Description: desc,
		CreatedBy:   by,
	})
	if err != nil {
		return err
	}
	return e.render(cmd.OutOrStdout(), b, func() {
		e.printer.Success("created baseline " + b.Version)
		e.printer.Baseline(b)
	})
}

func runBaselineList(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	projectID, _ := cmd.Flags().GetString("project")
	list, err := e.engine.Baselines().List(cmd.Context(), projectID)
	if err != nil {
		return err
	}
	if list == nil {
		list = []baseline.Baseline{}
	}
	return e.render(cmd.OutOrStdout(), list, func() { e.printer.Baselines(list) })
}

func runBaselineShow(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	b, err := e.engine.Baselines().Get(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return e.render(cmd.OutOrStdout(), b, func() { e.printer.Baseline(b) })
}

func findTask(tasks []schedule.Task, id string) (schedule.Task, error) {
	for _, t := range tasks {
		if t.ID == id {
			return t, nil
		}
	}
	return schedule.Task{}, &schedule.NotFoundError{Kind: "task", Key: id}
}

func runBaselineCompare(cmd *cobra.Command, args []string) error {
	version := args[0]
	e, snap, err := newBaselineEnv(cmd, args[1:])
	if err != nil {
		return err
	}
	defer e.close()

	if taskID, _ := cmd.Flags().GetString("task"); taskID != "" {
		task, err := findTask(snap.Tasks, taskID)
		if err != nil {
			return err
		}
		c, err := e.engine.CompareToBaseline(cmd.Context(), task, version)
		if err != nil {
			return err
		}
		return e.render(cmd.OutOrStdout(), c, func() { e.printer.Comparison(c) })
	}

	pc, err := e.engine.Baselines().CompareProject(cmd.Context(), snap.Tasks, version)
	if err != nil {
		return err
	}
	return e.render(cmd.OutOrStdout(), pc, func() { e.printer.ProjectComparison(pc) })
}

func runBaselineRestore(cmd *cobra.Command, args []string) error {
	version := args[0]
	e, snap, err := newBaselineEnv(cmd, args[1:])
	if err != nil {
		return err
	}
	defer e.close()

	taskID, _ := cmd.Flags().GetString("task")
	fields, _ := cmd.Flags().GetStringSlice("fields")
	by, _ := cmd.Flags().GetString("by")
	write, _ := cmd.Flags().GetBool("write")

	task, err := findTask(snap.Tasks, taskID)
	if err != nil {
		return err
	}
	res, err := e.engine.RestoreFromBaseline(cmd.Context(), task, version, fields, by)
	if err != nil {
		return err
	}
	if err := e.render(cmd.OutOrStdout(), res, func() { e.printer.Restore(res) }); err != nil {
		return err
	}
	if !write || len(res.Restored) == 0 {
		return nil
	}
	updated := schedule.CloneTasks(snap.Tasks)
	for i := range updated {
		if updated[i].ID == res.Task.ID {
			updated[i] = res.Task
		}
	}
	return e.saveTasks(cmd, args[1:], snap, updated)
}

func runBaselineHistory(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	h, err := e.engine.Baselines().History(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	return e.render(cmd.OutOrStdout(), h, func() { e.printer.History(h) })
}

func runBaselineDelete(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.engine.Baselines().Delete(cmd.Context(), args[0]); err != nil {
		return err
	}
	e.printer.Success(fmt.Sprintf("deleted baseline %s", args[0]))
	return nil
}
