package database

import (
	"context"
	"errors"
	"net/url"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/opstracker/opstracker-backend-go/internal/config"
)

func init() {
	register(postgresDialect{})
}

// duplicate_database
const pqDuplicateDatabase = "42P04"

type postgresDialect struct{}

func (postgresDialect) Name() string       { return "postgres" }
func (postgresDialect) DriverName() string { return "postgres" }

func (postgresDialect) DSN(cfg config.DatabaseConfig, scope Scope) (string, error) {
	name := cfg.Name
	if scope == ScopeAdmin {
		name = adminName(cfg, "postgres")
	}

	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(cfg.User, cfg.Password),
		Host:   hostPort(cfg, 5432),
		Path:   "/" + name,
	}
	q := url.Values{}
	if cfg.SSLMode != "" {
		q.Set("sslmode", cfg.SSLMode)
	}
	u.RawQuery = q.Encode()
	return u.String(), nil
}

// EnsureDatabase checks pg_database first because CREATE DATABASE has no
// IF NOT EXISTS form and cannot run inside a transaction block.
func (postgresDialect) EnsureDatabase(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig) error {
	var exists bool
	if err := db.GetContext(ctx, &exists, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", cfg.Name); err != nil {
		return err
	}
	if exists {
		return nil
	}

	_, err := db.ExecContext(ctx, "CREATE DATABASE "+pq.QuoteIdentifier(cfg.Name))
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == pqDuplicateDatabase {
		return nil
	}
	return err
}

func (postgresDialect) CreateTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS gps_data (
		uid TEXT,
		dt TIMESTAMP,
		latitude DOUBLE PRECISION,
		longitude DOUBLE PRECISION,
		speed DOUBLE PRECISION,
		radius DOUBLE PRECISION,
		rssi DOUBLE PRECISION NULL,
		actualForever BOOLEAN,
		userName TEXT,
		NetworkType INTEGER
	)`
}

func (postgresDialect) LatestSQL(columns string) string {
	return "SELECT " + columns + " FROM gps_data ORDER BY dt DESC NULLS LAST LIMIT ?"
}

func (postgresDialect) Savepoint(name string) Savepoint {
	return standardSavepoint(name)
}
