package main

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/mannybatth/carrier-nest-web-sub010/internal/app"
	"github.com/mannybatth/carrier-nest-web-sub010/internal/platform/migrations"
)

func main() {
	_ = godotenv.Load()
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var dsn string
	root := &cobra.Command{
		Use:          "migrate",
		Short:        "Apply carriernest database migrations",
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&dsn, "dsn", os.Getenv("PG_DSN"), "postgres connection string (defaults to PG_DSN)")

	run := func(action func(r *migrations.Runner, ctx context.Context) error) func(cmd *cobra.Command, args []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			if dsn == "" {
				return fmt.Errorf("migrate: --dsn or PG_DSN is required")
			}
			logger := app.NewLogger(&app.Config{LogFormat: os.Getenv("LOG_FORMAT")})
			db, err := openDB(dsn)
			if err != nil {
				return err
			}
			defer func() {
				if err := db.Close(); err != nil {
					logger.Warn("close database", slog.Any("error", err))
				}
			}()
			runner, err := migrations.NewRunner(db, logger)
			if err != nil {
				return err
			}
			return action(runner, cmd.Context())
		}
	}

	root.AddCommand(
		&cobra.Command{Use: "up", Short: "Apply all pending migrations", Args: cobra.NoArgs, RunE: run((*migrations.Runner).Up)},
		&cobra.Command{Use: "down", Short: "Roll back the latest migration", Args: cobra.NoArgs, RunE: run((*migrations.Runner).Down)},
		&cobra.Command{Use: "status", Short: "Show migration status", Args: cobra.NoArgs, RunE: run((*migrations.Runner).Status)},
	)
	return root
}

// goose drives database/sql, so the pgx connection config is bridged through stdlib.
func openDB(dsn string) (*sql.DB, error) {
	cfg, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("migrate: parse dsn: %w", err)
	}
	return stdlib.OpenDB(*cfg), nil
}
