package cmd

import (
	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/evm"
	"github.com/papapumpkin/parsec/internal/snapshot"
)

var evmCmd = &cobra.Command{
	Use:   "evm [snapshot.toml]",
	Short: "Report earned value metrics, status and forecasts",
	Long: `Computes planned value, earned value and actual cost with the derived
variances and indices as of today, then interprets them.

--predict adds a completion forecast; --historical calibrates it with a
TOML file of completed projects ([[projects]] planned_cost, actual_cost,
planned_days, actual_days).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runEVM,
}

func init() {
	addProjectFlag(evmCmd)
	evmCmd.Flags().Bool("predict", false, "include a completion forecast")
	evmCmd.Flags().String("historical", "", "history file calibrating the forecast")
	rootCmd.AddCommand(evmCmd)
}

// evmReport is the machine-readable form of an EVM run.
type evmReport struct {
	Metrics    evm.Metrics     `json:"metrics"`
	Analysis   evm.Analysis    `json:"analysis"`
	Prediction *evm.Prediction `json:"prediction,omitempty"`
}

func runEVM(cmd *cobra.Command, args []string) error {
	predict, _ := cmd.Flags().GetBool("predict")
	historyPath, _ := cmd.Flags().GetString("historical")

	var history []evm.Historical
	if historyPath != "" {
		h, err := snapshot.LoadHistory(historyPath)
		if err != nil {
			return err
		}
		history = h
		predict = true
	}

	e, snap, err := newSnapshotEnv(cmd, args)
	if err != nil {
		return err
	}
	defer e.close()

	p := snap.Project
	m, err := e.engine.CalculateEVM(p.ID, snap.Tasks, p.Budget, p.Start, p.End)
	if err != nil {
		return err
	}
	report := evmReport{Metrics: m, Analysis: e.engine.AnalyzeEVM(m)}
	if predict {
		pred := e.engine.PredictEVM(m, history)
		report.Prediction = &pred
	}
	return e.render(cmd.OutOrStdout(), report, func() {
		e.printer.EVM(report.Metrics, &report.Analysis, report.Prediction)
	})
}
