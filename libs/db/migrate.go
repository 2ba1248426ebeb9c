package db

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"

	"github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

var ErrMigrationsNotProvided = errors.New("db: migrations filesystem not provided")

// MigrateConfig points goose at an embedded migrations directory.
type MigrateConfig struct {
	FS    fs.FS
	Dir   string
	Table string
}

// Migrate applies pending goose migrations over the pgx pool.
func Migrate(ctx context.Context, pool *Pool, cfg MigrateConfig, logger *slog.Logger) error {
	if cfg.FS == nil {
		return ErrMigrationsNotProvided
	}
	if pool == nil || pool.Pool == nil {
		return errors.New("db not configured")
	}
	if cfg.Dir == "" {
		cfg.Dir = "."
	}
	if cfg.Table == "" {
		cfg.Table = "goose_db_version"
	}

	sqlDB := stdlib.OpenDBFromPool(pool.Pool)
	defer func() {
		if err := sqlDB.Close(); err != nil {
			logger.Error("close migration db handle failed", "err", err)
		}
	}()

	goose.SetBaseFS(cfg.FS)
	goose.SetLogger(gooseLogger{logger: logger})
	goose.SetTableName(cfg.Table)
	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("db: goose dialect: %w", err)
	}
	if err := goose.UpContext(ctx, sqlDB, cfg.Dir); err != nil {
		return fmt.Errorf("db: apply migrations: %w", err)
	}
	return nil
}

type gooseLogger struct {
	logger *slog.Logger
}

func (l gooseLogger) Fatalf(format string, v ...any) {
	l.logger.Error(fmt.Sprintf(format, v...), "component", "migrate")
}

func (l gooseLogger) Printf(format string, v ...any) {
	l.logger.Info(fmt.Sprintf(format, v...), "component", "migrate")
}
