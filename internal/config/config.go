package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Output formats accepted by the CLI.
const (
	OutputText = "text"
	OutputJSON = "json"
	OutputYAML = "yaml"
)

// CapacityConfig holds the per-assignee effort ceilings.
type CapacityConfig struct {
	DailyHours   float64 `mapstructure:"daily_hours"`
	MonthlyHours float64 `mapstructure:"monthly_hours"`
}

// ConflictConfig holds the severity thresholds of conflict detection.
type ConflictConfig struct {
	OverlapHighDays int     `mapstructure:"overlap_high_days"`
	OverloadHighPct float64 `mapstructure:"overload_high_pct"`
}

// CPMConfig holds the bottleneck detection thresholds.
type CPMConfig struct {
	BottleneckMinSuccessors int `mapstructure:"bottleneck_min_successors"`
	BottleneckMaxSlack      int `mapstructure:"bottleneck_max_slack"`
}

// OptimizerConfig bounds the schedule optimizer's search.
type OptimizerConfig struct {
	TimeLimit   time.Duration `mapstructure:"time_limit"`
	MaxSteps    int64         `mapstructure:"max_steps"`
	Passes      int           `mapstructure:"passes"`
	Seed        uint64        `mapstructure:"seed"`
	HorizonDays int           `mapstructure:"horizon_days"`
}

// EVMConfig holds the relative widths of the forecast intervals.
type EVMConfig struct {
	CostBand     float64 `mapstructure:"cost_band"`
	ScheduleBand float64 `mapstructure:"schedule_band"`
}

// ServerConfig configures the HTTP API.
type ServerConfig struct {
	Addr string `mapstructure:"addr"`
}

// Config holds all runtime configuration for parsec.
// Values are populated from .parsec.yaml, PARSEC_* env vars, and CLI flags.
type Config struct {
	DBPath        string          `mapstructure:"db_path"`
	DatabaseURL   string          `mapstructure:"database_url"`
	Output        string          `mapstructure:"output"`
	Verbose       bool            `mapstructure:"verbose"`
	TelemetryPath string          `mapstructure:"telemetry_path"`
	Workers       int             `mapstructure:"workers"`
	Server        ServerConfig    `mapstructure:"server"`
	Capacity      CapacityConfig  `mapstructure:"capacity"`
	Conflicts     ConflictConfig  `mapstructure:"conflicts"`
	CPM           CPMConfig       `mapstructure:"cpm"`
	Optimizer     OptimizerConfig `mapstructure:"optimizer"`
	EVM           EVMConfig       `mapstructure:"evm"`
}

// Load reads configuration from viper, applying built-in defaults for any
// values not set by config file, environment, or flags.
func Load() (Config, error) {
	viper.SetDefault("db_path", ".parsec/parsec.db")
	viper.SetDefault("database_url", "")
	viper.SetDefault("output", OutputText)
	viper.SetDefault("verbose", false)
	viper.SetDefault("telemetry_path", "")
	viper.SetDefault("workers", 4)
	viper.SetDefault("server.addr", ":8080")
	viper.SetDefault("capacity.daily_hours", 8.0)
	viper.SetDefault("capacity.monthly_hours", 160.0)
	viper.SetDefault("conflicts.overlap_high_days", 3)
	viper.SetDefault("conflicts.overload_high_pct", 50.0)
	viper.SetDefault("cpm.bottleneck_min_successors", 3)
	viper.SetDefault("cpm.bottleneck_max_slack", 1)
	viper.SetDefault("optimizer.time_limit", 5*time.Second)
	viper.SetDefault("optimizer.max_steps", 200000)
	viper.SetDefault("optimizer.passes", 8)
	viper.SetDefault("optimizer.seed", 1)
	viper.SetDefault("optimizer.horizon_days", 3650)
	viper.SetDefault("evm.cost_band", 0.10)
	viper.SetDefault("evm.schedule_band", 0.15)

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate rejects settings the engine cannot run with.
func (c Config) Validate() error {
	switch c.Output {
	case OutputText, OutputJSON, OutputYAML:
	default:
		return fmt.Errorf("config: output %q: want text, json or yaml", c.Output)
	}
	if c.Workers < 1 {
		return fmt.Errorf("config: workers must be at least 1, got %d", c.Workers)
	}
	if c.Optimizer.Passes < 1 {
		return fmt.Errorf("config: optimizer.passes must be at least 1, got %d", c.Optimizer.Passes)
	}
	if c.Optimizer.TimeLimit <= 0 {
		return fmt.Errorf("config: optimizer.time_limit must be positive, got %s", c.Optimizer.TimeLimit)
	}
	if c.Capacity.DailyHours <= 0 || c.Capacity.MonthlyHours <= 0 {
		return fmt.Errorf("config: capacity hours must be positive")
	}
	if c.EVM.CostBand < 0 || c.EVM.ScheduleBand < 0 {
		return fmt.Errorf("config: evm bands must not be negative")
	}
	return nil
}
