package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	"github.com/opstracker/opstracker-backend-go/internal/config"
)

// Open connects to the database selected by scope and pings it, retrying
// with bounded exponential backoff. The caller owns the returned handle
// and must Close it when its phase ends.
func Open(ctx context.Context, d Dialect, cfg config.DatabaseConfig, scope Scope) (*sqlx.DB, error) {
	dsn, err := d.DSN(cfg, scope)
	if err != nil {
		return nil, err
	}

	db, err := sqlx.Open(d.DriverName(), dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s database: %w", scope, err)
	}
	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
		db.SetMaxIdleConns(cfg.MaxOpenConns / 2)
	}

	attempts := cfg.ConnectAttempts
	if attempts < 1 {
		attempts = 1
	}
	b := backoff.NewExponentialBackOff()
	if cfg.ConnectDelay > 0 {
		b.InitialInterval = cfg.ConnectDelay
	}
	b.MaxInterval = 30 * time.Second
	b.MaxElapsedTime = 0

	ping := func() error {
		return db.PingContext(ctx)
	}
	notify := func(err error, wait time.Duration) {
		log.Printf("Database %s (%s) not reachable, retrying in %v: %v", d.Name(), scope, wait.Round(time.Millisecond), err)
	}
	policy := backoff.WithContext(backoff.WithMaxRetries(b, uint64(attempts-1)), ctx)
	if err := backoff.RetryNotify(ping, policy, notify); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to connect to %s database after %d attempt(s): %w", scope, attempts, err)
	}

	return db, nil
}

// Transaction executes a function within a database transaction
func Transaction(ctx context.Context, db *sqlx.DB, fn func(*sqlx.Tx) error) error {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}

	defer func() {
		if p := recover(); p != nil {
			tx.Rollback()
			panic(p)
		}
	}()

	if err := fn(tx); err != nil {
		if rbErr := tx.Rollback(); rbErr != nil && !errors.Is(rbErr, sql.ErrTxDone) {
			return fmt.Errorf("transaction error: %w, rollback error: %v", err, rbErr)
		}
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}

	return nil
}
