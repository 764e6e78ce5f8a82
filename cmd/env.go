package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/papapumpkin/parsec/internal/baseline"
	"github.com/papapumpkin/parsec/internal/config"
	"github.com/papapumpkin/parsec/internal/engine"
	"github.com/papapumpkin/parsec/internal/schedule"
	"github.com/papapumpkin/parsec/internal/snapshot"
	"github.com/papapumpkin/parsec/internal/store"
	"github.com/papapumpkin/parsec/internal/store/postgres"
	"github.com/papapumpkin/parsec/internal/telemetry"
	"github.com/papapumpkin/parsec/internal/ui"
)

// repository is what the CLI needs from a storage backend: project
// snapshots plus persistent baselines.
type repository interface {
	engine.Repository
	baseline.Store
	DeleteProject(ctx context.Context, projectID string) error
}

// env bundles the per-invocation dependencies of a command.
type env struct {
	cfg     config.Config
	logger  *slog.Logger
	printer *ui.Printer
	events  *telemetry.Emitter
	repo    repository
	engine  *engine.Engine
	closers []func()
}

// newEnv loads configuration and builds the engine. With withRepo set, the
// configured repository is opened and also backs the baseline store.
func newEnv(cmd *cobra.Command, withRepo bool) (*env, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	e := &env{
		cfg:     cfg,
		printer: ui.NewWriters(cmd.OutOrStdout(), cmd.ErrOrStderr()),
	}

	level := slog.LevelInfo
	if cfg.Verbose {
		level = slog.LevelDebug
	}
	e.logger = slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))

	if cfg.TelemetryPath != "" {
		em, err := telemetry.NewEmitter(cfg.TelemetryPath)
		if err != nil {
			return nil, err
		}
		e.events = em
		e.closers = append(e.closers, func() { em.Close() })
	}

	opts := engine.OptionsFromConfig(cfg)
	opts.Logger = e.logger
	opts.Telemetry = e.events

	if withRepo {
		repo, closeRepo, err := openRepository(cmd.Context(), cfg)
		if err != nil {
			e.close()
			return nil, err
		}
		e.repo = repo
		e.closers = append(e.closers, closeRepo)
		opts.Baselines = repo
	}
	e.engine = engine.New(opts)
	return e, nil
}

// close releases resources in reverse order of acquisition.
func (e *env) close() {
	for i := len(e.closers) - 1; i >= 0; i-- {
		e.closers[i]()
	}
}

// openRepository connects to PostgreSQL when a database URL is configured
// and opens the SQLite file otherwise.
func openRepository(ctx context.Context, cfg config.Config) (repository, func(), error) {
	if ctx == nil {
		ctx = context.Background()
	}
	if cfg.DatabaseURL != "" {
		pg, err := postgres.Connect(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, nil, err
		}
		return pg, pg.Close, nil
	}
	if dir := filepath.Dir(cfg.DBPath); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, nil, fmt.Errorf("create %s: %w", dir, err)
		}
	}
	st, err := store.Open(ctx, cfg.DBPath)
	if err != nil {
		return nil, nil, err
	}
	return st, func() { st.Close() }, nil
}

// loadSnapshot reads a project from a TOML file, or from the repository
// when path is empty and projectID is set.
func (e *env) loadSnapshot(ctx context.Context, path, projectID string) (schedule.Snapshot, error) {
	if path != "" {
		return snapshot.Load(path)
	}
	if projectID == "" {
		return schedule.Snapshot{}, fmt.Errorf("a snapshot file or --project is required")
	}
	if e.repo == nil {
		return schedule.Snapshot{}, fmt.Errorf("no repository open for project %q", projectID)
	}
	return e.repo.LoadSnapshot(ctx, projectID)
}

// source reads the snapshot argument and --project flag of a command.
func source(cmd *cobra.Command, args []string) (path, projectID string) {
	if len(args) > 0 {
		path = args[0]
	}
	projectID, _ = cmd.Flags().GetString("project")
	return path, projectID
}

// newSnapshotEnv builds an env for commands that read one project, opening
// the repository only when the project comes from it.
func newSnapshotEnv(cmd *cobra.Command, args []string) (*env, schedule.Snapshot, error) {
	path, projectID := source(cmd, args)
	e, err := newEnv(cmd, path == "")
	if err != nil {
		return nil, schedule.Snapshot{}, err
	}
	snap, err := e.loadSnapshot(cmd.Context(), path, projectID)
	if err != nil {
		e.close()
		return nil, schedule.Snapshot{}, err
	}
	return e, snap, nil
}

// addProjectFlag registers --project for commands that accept either a
// snapshot file or a stored project.
func addProjectFlag(cmd *cobra.Command) {
	cmd.Flags().StringP("project", "p", "", "stored project id (instead of a snapshot file)")
}
