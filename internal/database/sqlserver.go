package database

import (
	"context"
	"errors"
	"net/url"
	"strings"

	mssql "github.com/denisenkom/go-mssqldb"
	"github.com/jmoiron/sqlx"
	"github.com/opstracker/opstracker-backend-go/internal/config"
)

func init() {
	register(sqlServerDialect{})
}

// Database '%s' already exists.
const mssqlDuplicateDatabase = 1801

type sqlServerDialect struct{}

func (sqlServerDialect) Name() string       { return "sqlserver" }
func (sqlServerDialect) DriverName() string { return "sqlserver" }

func (sqlServerDialect) DSN(cfg config.DatabaseConfig, scope Scope) (string, error) {
	name := cfg.Name
	if scope == ScopeAdmin {
		name = adminName(cfg, "master")
	}

	q := url.Values{}
	q.Set("database", name)
	u := url.URL{
		Scheme:   "sqlserver",
		User:     url.UserPassword(cfg.User, cfg.Password),
		Host:     hostPort(cfg, 1433),
		RawQuery: q.Encode(),
	}
	return u.String(), nil
}

func (sqlServerDialect) EnsureDatabase(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig) error {
	var count int
	if err := db.GetContext(ctx, &count, "SELECT COUNT(*) FROM sys.databases WHERE name = @p1", cfg.Name); err != nil {
		return err
	}
	if count > 0 {
		return nil
	}

	_, err := db.ExecContext(ctx, "CREATE DATABASE "+quoteBracket(cfg.Name))
	var msErr mssql.Error
	if errors.As(err, &msErr) && msErr.Number == mssqlDuplicateDatabase {
		return nil
	}
	return err
}

func (sqlServerDialect) CreateTableSQL() string {
	return `IF NOT EXISTS (SELECT * FROM sysobjects WHERE name='gps_data' AND xtype='U')
	CREATE TABLE gps_data (
		uid NVARCHAR(100),
		dt DATETIME,
		latitude FLOAT,
		longitude FLOAT,
		speed FLOAT,
		radius FLOAT,
		rssi FLOAT NULL,
		actualForever BIT,
		userName NVARCHAR(100),
		NetworkType INT
	)`
}

func (sqlServerDialect) LatestSQL(columns string) string {
	return "SELECT TOP (?) " + columns + " FROM gps_data ORDER BY dt DESC"
}

func (sqlServerDialect) Savepoint(name string) Savepoint {
	return Savepoint{
		Create:   "SAVE TRANSACTION " + name,
		Rollback: "ROLLBACK TRANSACTION " + name,
	}
}

func quoteBracket(name string) string {
	return "[" + strings.ReplaceAll(name, "]", "]]") + "]"
}
