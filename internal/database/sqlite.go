package database

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jmoiron/sqlx"
	"github.com/opstracker/opstracker-backend-go/internal/config"

	_ "modernc.org/sqlite"
)

func init() {
	sqlx.BindDriver("sqlite", sqlx.QUESTION)
	register(sqliteDialect{})
}

// sqliteDialect stores gps_data in a single file. There is no server, so
// "creating the database" means making sure the file's directory exists.
type sqliteDialect struct{}

func (sqliteDialect) Name() string       { return "sqlite" }
func (sqliteDialect) DriverName() string { return "sqlite" }

func (sqliteDialect) DSN(cfg config.DatabaseConfig, scope Scope) (string, error) {
	if scope == ScopeAdmin {
		return "file::memory:", nil
	}
	if cfg.Path == "" {
		return "", fmt.Errorf("sqlite requires a database path")
	}
	// Times are written in the SQLite text format so they read back as time.Time.
	return "file:" + cfg.Path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_time_format=sqlite", nil
}

func (sqliteDialect) EnsureDatabase(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig) error {
	dir := filepath.Dir(cfg.Path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create database directory %s: %w", dir, err)
	}
	return nil
}

func (sqliteDialect) CreateTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS gps_data (
		uid TEXT,
		dt DATETIME,
		latitude FLOAT,
		longitude FLOAT,
		speed FLOAT,
		radius FLOAT,
		rssi FLOAT NULL,
		actualForever BOOL,
		userName TEXT,
		NetworkType INT
	)`
}

func (sqliteDialect) LatestSQL(columns string) string {
	return "SELECT " + columns + " FROM gps_data ORDER BY dt DESC LIMIT ?"
}

func (sqliteDialect) Savepoint(name string) Savepoint {
	return standardSavepoint(name)
}
