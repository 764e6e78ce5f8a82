package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/validate"
)

var validateCmd = &cobra.Command{
	Use:   "validate [snapshot.toml]",
	Short: "Check the dependency graph for cycles, bad references and warnings",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runValidate,
}

func init() {
	addProjectFlag(validateCmd)
	rootCmd.AddCommand(validateCmd)
}

// validateReport is the machine-readable form of a validation run.
type validateReport struct {
	validate.Result
	Fixes []validate.Fix `json:"suggested_fixes,omitempty"`
}

func runValidate(cmd *cobra.Command, args []string) error {
	e, snap, err := newSnapshotEnv(cmd, args)
	if err != nil {
		return err
	}
	defer e.close()

	res := e.engine.ValidateDependencies(snap.Tasks, snap.AllEdges())
	report := validateReport{Result: res}
	if !res.IsValid {
		report.Fixes = validate.SuggestFixes(res)
	}
	if err := e.render(cmd.OutOrStdout(), report, func() { e.printer.Validation(res, report.Fixes) }); err != nil {
		return err
	}
	if !res.IsValid {
		return fmt.Errorf("validation failed with %d error(s)", len(res.Errors))
	}
	return nil
}
