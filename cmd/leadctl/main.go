package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"

	"github.com/solarhub/backend/internal/config"
	"github.com/solarhub/backend/internal/logging"
	"github.com/solarhub/backend/internal/repository"
)

func main() {
	var cfg *config.Config

	root := &cobra.Command{
		Use:           "leadctl",
		Short:         "Operate the lead intake database",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			var err error
			cfg, err = config.Load()
			if err != nil {
				return err
			}
			logging.Setup(cfg.App.LogLevel, "app", "leadctl")
			return nil
		},
	}

	var fresh bool
	var dir string
	migrateCmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending SQL migrations to PostgreSQL (SQLite is migrated on open)",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(cmd.Context(), cfg, dir, fresh)
		},
	}
	migrateCmd.Flags().BoolVar(&fresh, "fresh", false, "Roll back every migration before applying")
	migrateCmd.Flags().StringVar(&dir, "dir", "", "Migration directory (default: ./migrations or ../migrations)")

	showCmd := &cobra.Command{
		Use:   "show <submission-id>",
		Short: "Print a stored submission as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd.Context(), cfg, args[0])
		},
	}

	root.AddCommand(migrateCmd, showCmd)

	if err := root.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func runShow(ctx context.Context, cfg *config.Config, id string) error {
	repo, closeDB, err := repository.Open(ctx, cfg.Database.URL, cfg.Database.DedupWindow)
	if err != nil {
		return err
	}
	defer closeDB()

	s, err := repo.FindByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return fmt.Errorf("submission %s not found", id)
	}
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(s)
}

func runMigrate(ctx context.Context, cfg *config.Config, dir string, fresh bool) error {
	if !repository.IsPostgres(cfg.Database.URL) {
		_, closeDB, err := repository.Open(ctx, cfg.Database.URL, cfg.Database.DedupWindow)
		if err != nil {
			return err
		}
		closeDB()
		slog.Info("sqlite schema up to date", "path", repository.SQLitePath(cfg.Database.URL))
		return nil
	}

	if dir == "" {
		dir = findMigrationDir()
	}
	pool, err := repository.NewPool(ctx, cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("connect failed: %w", err)
	}
	defer pool.Close()

	if err := ensureSchemaMigrations(ctx, pool); err != nil {
		return err
	}
	if fresh {
		if err := runDown(ctx, pool, dir); err != nil {
			return err
		}
	}
	return runIncremental(ctx, pool, dir)
}

func findMigrationDir() string {
	dir := "migrations"
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		dir = "../migrations"
	}
	return dir
}

// collectMigrations returns migration names that have a file with suffix,
// sorted ascending.
func collectMigrations(dir, suffix string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read migrations dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), suffix) {
			names = append(names, strings.TrimSuffix(e.Name(), suffix))
		}
	}
	sort.Strings(names)
	return names, nil
}

func ensureSchemaMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	_, err := pool.Exec(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (
		name TEXT PRIMARY KEY,
		applied_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	)`)
	if err != nil {
		return fmt.Errorf("create schema_migrations: %w", err)
	}
	return nil
}

func runIncremental(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	names, err := collectMigrations(dir, ".up.sql")
	if err != nil {
		return err
	}
	applied := 0
	for _, name := range names {
		var exists bool
		if err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name=$1)", name).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if exists {
			continue
		}

		sql, err := os.ReadFile(filepath.Join(dir, name+".up.sql"))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("migration %s failed: %w", name, err)
		}
		if _, err := pool.Exec(ctx, "INSERT INTO schema_migrations (name) VALUES ($1)", name); err != nil {
			return fmt.Errorf("record migration %s: %w", name, err)
		}
		applied++
		slog.Info("migration completed", "migration", name)
	}

	if applied == 0 {
		slog.Info("all migrations already applied")
	} else {
		slog.Info("migrations completed", "count", applied)
	}
	return nil
}

// runDown rolls back applied migrations newest first.
func runDown(ctx context.Context, pool *pgxpool.Pool, dir string) error {
	names, err := collectMigrations(dir, ".down.sql")
	if err != nil {
		return err
	}
	for i := len(names) - 1; i >= 0; i-- {
		name := names[i]
		var exists bool
		if err := pool.QueryRow(ctx, "SELECT EXISTS(SELECT 1 FROM schema_migrations WHERE name=$1)", name).Scan(&exists); err != nil {
			return fmt.Errorf("check migration %s: %w", name, err)
		}
		if !exists {
			continue
		}
		sql, err := os.ReadFile(filepath.Join(dir, name+".down.sql"))
		if err != nil {
			return fmt.Errorf("read migration %s: %w", name, err)
		}
		if _, err := pool.Exec(ctx, string(sql)); err != nil {
			return fmt.Errorf("rollback %s failed: %w", name, err)
		}
		if _, err := pool.Exec(ctx, "DELETE FROM schema_migrations WHERE name=$1", name); err != nil {
			return fmt.Errorf("unrecord migration %s: %w", name, err)
		}
		slog.Info("migration rolled back", "migration", name)
	}
	return nil
}
