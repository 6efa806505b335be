package database

import (
	"context"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/jmoiron/sqlx"
	"github.com/opstracker/opstracker-backend-go/internal/config"
)

func init() {
	register(mysqlDialect{})
}

type mysqlDialect struct{}

func (mysqlDialect) Name() string       { return "mysql" }
func (mysqlDialect) DriverName() string { return "mysql" }

func (mysqlDialect) DSN(cfg config.DatabaseConfig, scope Scope) (string, error) {
	c := mysql.NewConfig()
	c.User = cfg.User
	c.Passwd = cfg.Password
	c.Net = "tcp"
	c.Addr = hostPort(cfg, 3306)
	c.DBName = cfg.Name
	if scope == ScopeAdmin {
		// MySQL accepts a server connection without a default schema.
		c.DBName = adminName(cfg, "")
	}
	c.ParseTime = true
	c.Loc = time.UTC
	return c.FormatDSN(), nil
}

func (mysqlDialect) EnsureDatabase(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig) error {
	_, err := db.ExecContext(ctx, "CREATE DATABASE IF NOT EXISTS "+quoteBacktick(cfg.Name))
	return err
}

func (mysqlDialect) CreateTableSQL() string {
	return `CREATE TABLE IF NOT EXISTS gps_data (
		uid TEXT,
		dt DATETIME(6),
		latitude DOUBLE,
		longitude DOUBLE,
		speed DOUBLE,
		radius DOUBLE,
		rssi DOUBLE NULL,
		actualForever BOOL,
		userName TEXT,
		NetworkType INT
	)`
}

func (mysqlDialect) LatestSQL(columns string) string {
	return "SELECT " + columns + " FROM gps_data ORDER BY dt DESC LIMIT ?"
}

func (mysqlDialect) Savepoint(name string) Savepoint {
	return standardSavepoint(name)
}

func quoteBacktick(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}
