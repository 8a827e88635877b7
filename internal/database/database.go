// Package database runs the optional direct-SQL check against the project's
// Postgres instance, bypassing the REST gateway.
package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

var tableName = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)?$`)

// Probe holds an open connection pool for the duration of one run
type Probe struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open connects through the given dialector and verifies the connection
func Open(ctx context.Context, dialector gorm.Dialector, logger *slog.Logger) (*Probe, error) {
	start := time.Now()

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger:                 newGormLogger(logger),
		SkipDefaultTransaction: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	p := &Probe{db: db, logger: logger}
	if err := p.Ping(ctx); err != nil {
		_ = p.Close()
		return nil, err
	}

	logger.Debug("Database connected",
		"dialect", dialector.Name(),
		"duration_ms", time.Since(start).Milliseconds())
	return p, nil
}

// OpenPostgres connects to a Postgres connection string (postgres://...)
func OpenPostgres(ctx context.Context, dsn string, logger *slog.Logger) (*Probe, error) {
	if dsn == "" {
		return nil, errors.New("database URL is empty")
	}
	return Open(ctx, postgres.Open(dsn), logger)
}

// Ping checks that the server answers
func (p *Probe) Ping(ctx context.Context) error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return fmt.Errorf("failed to get connection pool: %w", err)
	}
	if err := sqlDB.PingContext(ctx); err != nil {
		return fmt.Errorf("database ping failed: %w", err)
	}
	return nil
}

// ServerVersion returns the server's version string
func (p *Probe) ServerVersion(ctx context.Context) (string, error) {
	query := "SELECT version()"
	if p.db.Dialector.Name() == "sqlite" {
		query = "SELECT sqlite_version()"
	}

	var version string
	if err := p.db.WithContext(ctx).Raw(query).Scan(&version).Error; err != nil {
		return "", fmt.Errorf("failed to read server version: %w", err)
	}
	return version, nil
}

// Count returns the number of rows in table. table may be schema-qualified.
func (p *Probe) Count(ctx context.Context, table string) (int64, error) {
	if !tableName.MatchString(table) {
		return 0, fmt.Errorf("invalid table name %q", table)
	}

	start := time.Now()
	var n int64
	if err := p.db.WithContext(ctx).Table(table).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", table, err)
	}

	p.logger.Debug("Database count",
		"table", table,
		"rows", n,
		"duration_ms", time.Since(start).Milliseconds())
	return n, nil
}

// Close releases the connection pool
func (p *Probe) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
