package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/snapshot"
	"github.com/papapumpkin/parsec/internal/store"
)

var projectsCmd = &cobra.Command{
	Use:   "projects",
	Short: "Manage stored projects (list, import, export, delete)",
	Args:  cobra.NoArgs,
	RunE:  runProjectsList,
}

var importCmd = &cobra.Command{
	Use:   "import <snapshot.toml | dir>...",
	Short: "Store snapshot files in the repository, replacing earlier versions",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runImport,
}

var exportCmd = &cobra.Command{
	Use:   "export <project-id> <snapshot.toml>",
	Short: "Write a stored project to a snapshot file",
	Args:  cobra.ExactArgs(2),
	RunE:  runExport,
}

var deleteProjectCmd = &cobra.Command{
	Use:   "delete <project-id>",
	Short: "Delete a stored project",
	Args:  cobra.ExactArgs(1),
	RunE:  runDeleteProject,
}

func init() {
	projectsCmd.AddCommand(importCmd)
	projectsCmd.AddCommand(exportCmd)
	projectsCmd.AddCommand(deleteProjectCmd)
	rootCmd.AddCommand(projectsCmd)
}

// projectLister is implemented by repositories that can summarize their
// projects.
type projectLister interface {
	ListProjects(ctx context.Context) ([]store.ProjectInfo, error)
}

func runProjectsList(cmd *cobra.Command, _ []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	if l, ok := e.repo.(projectLister); ok {
		infos, err := l.ListProjects(cmd.Context())
		if err != nil {
			return err
		}
		if infos == nil {
			infos = []store.ProjectInfo{}
		}
		return e.render(cmd.OutOrStdout(), infos, func() {
			for _, p := range infos {
				fmt.Fprintf(cmd.OutOrStdout(), "%-20s %-30s %4d task(s)  %s\n", p.ID, p.Name, p.Tasks, p.UpdatedAt.Format("2006-01-02 15:04"))
			}
		})
	}

	ids, err := e.repo.Projects(cmd.Context())
	if err != nil {
		return err
	}
	if ids == nil {
		ids = []string{}
	}
	return e.render(cmd.OutOrStdout(), ids, func() {
		for _, id := range ids {
			fmt.Fprintln(cmd.OutOrStdout(), id)
		}
	})
}

func runImport(cmd *cobra.Command, args []string) error {
	var paths []string
	for _, arg := range args {
		info, err := os.Stat(arg)
		if err != nil {
			return err
		}
		if !info.IsDir() {
			paths = append(paths, arg)
			continue
		}
		found, err := snapshot.Paths(arg)
		if err != nil {
			return err
		}
		paths = append(paths, found...)
	}

	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	for _, p := range paths {
		snap, err := snapshot.Load(p)
		if err != nil {
			return err
		}
		if err := e.repo.SaveSnapshot(cmd.Context(), snap); err != nil {
			return fmt.Errorf("import %s: %w", p, err)
		}
		e.printer.Success(fmt.Sprintf("imported %s (%d task(s)) from %s", snap.Project.ID, len(snap.Tasks), filepath.Base(p)))
	}
	return nil
}

func runExport(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	snap, err := e.repo.LoadSnapshot(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if err := snapshot.Write(args[1], snap); err != nil {
		return err
	}
	e.printer.Success(fmt.Sprintf("wrote %s to %s", snap.Project.ID, args[1]))
	return nil
}

func runDeleteProject(cmd *cobra.Command, args []string) error {
	e, err := newEnv(cmd, true)
	if err != nil {
		return err
	}
	defer e.close()

	if err := e.repo.DeleteProject(cmd.Context(), args[0]); err != nil {
		return err
	}
	e.printer.Success("deleted project " + args[0])
	return nil
}
