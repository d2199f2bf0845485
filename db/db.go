package db

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"sort"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "pgx"
)

type DB struct {
	*sql.DB

	driver string
}

type Config struct {
	Driver  string `yaml:"driver"`
	ConnStr string `yaml:"conn_str"`
}

//go:embed migrations/*.sql
var migrations embed.FS

func New(ctx context.Context, cfg *Config) (*DB, error) {
	driver := cfg.Driver
	switch driver {
	case "":
		driver = DriverSQLite
	case DriverSQLite, DriverPostgres:
	case "postgres":
		driver = DriverPostgres
	default:
		return nil, fmt.Errorf("unsupported db driver %q", cfg.Driver)
	}

	sqlDB, err := sql.Open(driver, cfg.ConnStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db: %w", err)
	}

	if driver == DriverSQLite {
		sqlDB.SetMaxOpenConns(1)
	}

	if err = sqlDB.PingContext(ctx); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	db := &DB{
		DB:     sqlDB,
		driver: driver,
	}

	return db, nil
}

func (db *DB) Driver() string {
	return db.driver
}

// Migrate applies every embedded migration in name order. Migrations are idempotent.
func (db *DB) Migrate(ctx context.Context) ([]string, error) {
	entries, err := migrations.ReadDir("migrations")
	if err != nil {
		return nil, fmt.Errorf("failed to read migrations: %w", err)
	}

	files := make([]string, 0, len(entries))
	for _, entry := range entries {
		files = append(files, entry.Name())
	}

	sort.Strings(files)

	for _, file := range files {
		query, err := migrations.ReadFile("migrations/" + file)
		if err != nil {
			return nil, fmt.Errorf("failed to read migration %s: %w", file, err)
		}

		if _, err := db.ExecContext(ctx, string(query)); err != nil {
			return nil, fmt.Errorf("failed to apply migration %s: %w", file, err)
		}
	}

	return files, nil
}
