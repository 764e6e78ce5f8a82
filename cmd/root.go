package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "parsec",
	Short:         "Project scheduling engine",
	Long:          "Parsec validates task dependencies, computes critical paths, levels resources, detects schedule conflicts, tracks baselines and reports earned value.",
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and exits 1 on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "config file (default .parsec.yaml)")
	pf.BoolP("verbose", "v", false, "verbose output")
	pf.StringP("output", "o", "text", "output format: text, json or yaml")
	pf.String("telemetry", "", "append JSONL telemetry events to this file")
	pf.String("db", "", "SQLite database path (default .parsec/parsec.db)")
	pf.String("database-url", "", "PostgreSQL connection URL; overrides --db")
	pf.Int("workers", 0, "parallel planning workers")

	_ = viper.BindPFlag("verbose", pf.Lookup("verbose"))
	_ = viper.BindPFlag("output", pf.Lookup("output"))
	_ = viper.BindPFlag("telemetry_path", pf.Lookup("telemetry"))
	_ = viper.BindPFlag("db_path", pf.Lookup("db"))
	_ = viper.BindPFlag("database_url", pf.Lookup("database-url"))
	_ = viper.BindPFlag("workers", pf.Lookup("workers"))
}

func initConfig() {
	if cfgFile, _ := rootCmd.Flags().GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName(".parsec")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(".")
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
		}
	}

	viper.SetEnvPrefix("PARSEC")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// It's fine if no config file is found; we use defaults.
	_ = viper.ReadInConfig()
}
