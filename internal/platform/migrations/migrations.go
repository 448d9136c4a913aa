// Package migrations embeds the goose SQL migrations for the carriernest schema.
package migrations

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"

	"github.com/pressly/goose/v3"
)

//go:embed sql/*.sql
var files embed.FS

const dir = "sql"

// Runner applies embedded migrations against a database handle.
type Runner struct {
	db     *sql.DB
	logger *slog.Logger
}

// NewRunner configures goose to read from the embedded filesystem.
func NewRunner(db *sql.DB, logger *slog.Logger) (*Runner, error) {
	goose.SetBaseFS(files)
	if err := goose.SetDialect("postgres"); err != nil {
		return nil, fmt.Errorf("migrations: dialect: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{db: db, logger: logger}, nil
}

// Up applies all pending migrations.
func (r *Runner) Up(ctx context.Context) error {
	r.logger.Info("running database migrations")
	if err := goose.UpContext(ctx, r.db, dir); err != nil {
		return fmt.Errorf("migrations: up: %w", err)
	}
	r.logger.Info("database migrations complete")
	return nil
}

// Down rolls back the most recent migration.
func (r *Runner) Down(ctx context.Context) error {
	if err := goose.DownContext(ctx, r.db, dir); err != nil {
		return fmt.Errorf("migrations: down: %w", err)
	}
	return nil
}

// Status prints the applied state of every migration through goose's logger.
func (r *Runner) Status(ctx context.Context) error {
	if err := goose.StatusContext(ctx, r.db, dir); err != nil {
		return fmt.Errorf("migrations: status: %w", err)
	}
	return nil
}
