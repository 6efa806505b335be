package database

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
	"github.com/opstracker/opstracker-backend-go/internal/config"
)

// TableName is the table every dialect creates and queries.
const TableName = "gps_data"

// Scope selects which database a connection is opened against.
type Scope int

const (
	// ScopeAdmin is the server's administrative database, used to create the target.
	ScopeAdmin Scope = iota
	// ScopeTarget is the database holding gps_data.
	ScopeTarget
)

func (s Scope) String() string {
	if s == ScopeAdmin {
		return "admin"
	}
	return "target"
}

// Savepoint holds the statements to mark, undo and release a savepoint.
// Release is empty for servers that have no release statement.
type Savepoint struct {
	Create   string
	Rollback string
	Release  string
}

// Dialect captures the SQL and DSN differences between supported servers.
type Dialect interface {
	// Name is the key used in configuration.
	Name() string
	// DriverName is the database/sql driver the dialect registers with.
	DriverName() string
	DSN(cfg config.DatabaseConfig, scope Scope) (string, error)
	// EnsureDatabase creates cfg.Name if it does not exist. db is an admin
	// scoped connection outside any transaction.
	EnsureDatabase(ctx context.Context, db *sqlx.DB, cfg config.DatabaseConfig) error
	CreateTableSQL() string
	// LatestSQL selects columns from gps_data, newest first, with a single
	// bind parameter for the row limit.
	LatestSQL(columns string) string
	Savepoint(name string) Savepoint
}

var dialects = map[string]Dialect{}

func register(d Dialect) {
	dialects[d.Name()] = d
}

// Lookup returns the dialect registered under name.
func Lookup(name string) (Dialect, error) {
	d, ok := dialects[strings.ToLower(name)]
	if !ok {
		return nil, fmt.Errorf("unsupported database driver %q (supported: %s)", name, strings.Join(Names(), ", "))
	}
	return d, nil
}

// Names lists the registered dialects in alphabetical order.
func Names() []string {
	names := make([]string, 0, len(dialects))
	for name := range dialects {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func standardSavepoint(name string) Savepoint {
	return Savepoint{
		Create:   "SAVEPOINT " + name,
		Rollback: "ROLLBACK TO SAVEPOINT " + name,
		Release:  "RELEASE SAVEPOINT " + name,
	}
}

func adminName(cfg config.DatabaseConfig, fallback string) string {
	if cfg.AdminName != "" {
		return cfg.AdminName
	}
	return fallback
}

func hostPort(cfg config.DatabaseConfig, defaultPort int) string {
	port := cfg.Port
	if port == 0 {
		port = defaultPort
	}
	return fmt.Sprintf("%s:%d", cfg.Host, port)
}
