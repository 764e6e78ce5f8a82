package cmd

import (
	"github.com/spf13/cobra"
)

var cpmCmd = &cobra.Command{
	Use:     "cpm [snapshot.toml]",
	Aliases: []string{"critical-path"},
	Short:   "Compute the critical path, slack and bottlenecks",
	Args:    cobra.MaximumNArgs(1),
	RunE:    runCPM,
}

func init() {
	addProjectFlag(cpmCmd)
	rootCmd.AddCommand(cpmCmd)
}

func runCPM(cmd *cobra.Command, args []string) error {
	e, snap, err := newSnapshotEnv(cmd, args)
	if err != nil {
		return err
	}
	defer e.close()

	res, err := e.engine.CalculateCriticalPath(snap.Tasks, snap.AllEdges())
	if err != nil {
		return err
	}
	return e.render(cmd.OutOrStdout(), res, func() { e.printer.CriticalPath(res) })
}
