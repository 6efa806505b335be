package ingest

import (
	"context"
	"encoding/csv"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/opstracker/opstracker-backend-go/internal/config"
	"github.com/opstracker/opstracker-backend-go/internal/database"
	"github.com/opstracker/opstracker-backend-go/internal/models"
	"github.com/opstracker/opstracker-backend-go/internal/repository"
)

// ErrorPolicy decides what happens to a row that fails conversion or insert.
type ErrorPolicy string

const (
	// PolicyAbort rolls back the whole batch on the first bad row.
	PolicyAbort ErrorPolicy = "abort"
	// PolicySkip records the bad row in the report and continues.
	PolicySkip ErrorPolicy = "skip"
)

const rowSavepoint = "gps_row"

// Report summarizes one ingestion run.
type Report struct {
	RunID   string
	Headers []string
	// Rows is the number of data rows read.
	Rows int
	// Inserted counts rows persisted by the commit; zero when the batch was rolled back.
	Inserted int
	Skipped  int
	// Errors holds the row errors of skipped rows in file order.
	Errors    []error
	Committed bool
	Duration  time.Duration
}

// Ingestor loads GPS telemetry from delimited text into gps_data.
type Ingestor struct {
	db      config.DatabaseConfig
	cfg     config.IngestConfig
	dialect database.Dialect
	policy  ErrorPolicy
	conv    converter
	logger  *log.Logger
	metrics *Metrics
}

// New creates an Ingestor for the database and ingest sections of cfg.
// A nil logger discards output; nil metrics are replaced by unregistered ones.
func New(cfg *config.Config, logger *log.Logger, metrics *Metrics) (*Ingestor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialect, err := database.Lookup(cfg.Database.Driver)
	if err != nil {
		return nil, err
	}
	loc, err := time.LoadLocation(cfg.Ingest.TimeZone)
	if err != nil {
		return nil, errors.Wrap(err, "load ingest timezone")
	}
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if metrics == nil {
		metrics = NewMetrics(nil)
	}

	return &Ingestor{
		db:      cfg.Database,
		cfg:     cfg.Ingest,
		dialect: dialect,
		policy:  ErrorPolicy(cfg.Ingest.OnError),
		conv:    newConverter(loc, DateOrder(cfg.Ingest.DateOrder), cfg.Ingest.Strict),
		logger:  logger,
		metrics: metrics,
	}, nil
}

// Run waits for the configured startup delay, ensures the database and
// table exist, then loads the file at path.
//
// Run is not idempotent: loading the same file twice inserts its rows twice.
func (i *Ingestor) Run(ctx context.Context, path string) (*Report, error) {
	if d := i.cfg.StartupDelay; d > 0 {
		i.logger.Printf("Waiting %v for the database server to be ready...", d)
		select {
		case <-time.After(d):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}

	i.logger.Println("Creating database if not exists...")
	if err := i.EnsureDatabase(ctx); err != nil {
		return nil, err
	}
	if err := i.EnsureTable(ctx); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrapf(err, "open input file %s", path)
	}
	defer f.Close()

	i.logger.Printf("Inserting CSV data from %s...", path)
	report, err := i.ParseAndInsert(ctx, f)
	if err != nil {
		return report, err
	}
	i.logger.Printf("Data inserted successfully: %d of %d rows, %d skipped (run %s, %v)",
		report.Inserted, report.Rows, report.Skipped, report.RunID, report.Duration.Round(time.Millisecond))
	return report, nil
}

// EnsureDatabase creates the target database if it does not exist, using an
// autocommit connection to the server's administrative database.
func (i *Ingestor) EnsureDatabase(ctx context.Context) error {
	db, err := database.Open(ctx, i.dialect, i.db, database.ScopeAdmin)
	if err != nil {
		return &ConnectionError{Scope: database.ScopeAdmin.String(), Err: err}
	}
	defer db.Close()

	if err := i.dialect.EnsureDatabase(ctx, db, i.db); err != nil {
		return &SchemaError{Object: "database " + i.db.Name, Err: err}
	}
	return nil
}

// EnsureTable creates gps_data inside the target database if it does not exist.
func (i *Ingestor) EnsureTable(ctx context.Context) error {
	db, err := database.Open(ctx, i.dialect, i.db, database.ScopeTarget)
	if err != nil {
		return &ConnectionError{Scope: database.ScopeTarget.String(), Err: err}
	}
	defer db.Close()

	if err := repository.NewGpsRepository(db, i.dialect).EnsureTable(ctx); err != nil {
		return &SchemaError{Object: "table " + database.TableName, Err: err}
	}
	return nil
}

// ParseAndInsert reads delimited text from src and inserts every row in
// file order inside a single transaction, committed once at the end.
//
// Under PolicyAbort the first ConversionError or InsertError rolls the
// batch back and is returned. Under PolicySkip bad rows are collected in
// the report; the batch is still rolled back when the configured
// MaxErrorRatio is exceeded. Any other error rolls back the batch.
func (i *Ingestor) ParseAndInsert(ctx context.Context, src io.Reader) (report *Report, err error) {
	report = &Report{RunID: uuid.NewString()}
	start := time.Now()
	defer func() {
		report.Duration = time.Since(start)
		if err != nil {
			report.Inserted = 0
		}
		i.metrics.observe(report, err)
	}()

	reader := csv.NewReader(src)
	reader.Comma = i.cfg.DelimiterRune()
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.ReuseRecord = true

	header, err := reader.Read()
	if err == io.EOF {
		i.logger.Println("Input is empty, nothing to insert")
		report.Committed = true
		return report, nil
	}
	if err != nil {
		return report, errors.Wrap(err, "read csv header")
	}

	idx := newHeaderIndex(header)
	report.Headers = idx.names
	i.logger.Printf("CSV Headers detected: %v", idx.names)
	if len(idx.unknown) > 0 {
		i.logger.Printf("Warning: ignoring unrecognized columns %v", idx.unknown)
	}
	var absent []string
	for _, spec := range FieldSpecs {
		if !idx.has(spec.Field) {
			absent = append(absent, spec.Name)
		}
	}
	if len(absent) > 0 {
		i.logger.Printf("Warning: no column found for %v, values default to empty", absent)
	}

	db, err := database.Open(ctx, i.dialect, i.db, database.ScopeTarget)
	if err != nil {
		return report, &ConnectionError{Scope: database.ScopeTarget.String(), Err: err}
	}
	defer db.Close()
	// One connection keeps every statement on the ingest transaction.
	db.SetMaxOpenConns(1)

	repo := repository.NewGpsRepository(db, i.dialect)
	err = database.Transaction(ctx, db, func(tx *sqlx.Tx) error {
		for {
			record, err := reader.Read()
			if err == io.EOF {
				break
			}
			report.Rows++
			row := report.Rows

			var rec *models.GpsRecord
			if err != nil {
				err = &ConversionError{Row: row, Field: "record", Err: err}
			} else {
				rec, err = i.conv.convert(row, idx, record)
			}
			if err == nil {
				err = i.insert(ctx, tx, repo, row, rec)
			}
			if err != nil {
				if err := i.reject(report, err); err != nil {
					return err
				}
				continue
			}
			report.Inserted++
		}

		if i.policy == PolicySkip && i.cfg.MaxErrorRatio > 0 && report.Rows > 0 {
			ratio := float64(report.Skipped) / float64(report.Rows)
			if ratio > i.cfg.MaxErrorRatio {
				return errors.Wrapf(ErrTooManyRejected, "%d of %d rows rejected (%.2f > %.2f)",
					report.Skipped, report.Rows, ratio, i.cfg.MaxErrorRatio)
			}
		}
		return nil
	})
	if err != nil {
		i.logger.Printf("Ingestion run %s rolled back after %d rows: %v", report.RunID, report.Rows, err)
		return report, err
	}

	report.Committed = true
	return report, nil
}

// insert writes rec. Under PolicySkip the insert runs inside a savepoint so
// a rejected row does not abort the surrounding transaction.
func (i *Ingestor) insert(ctx context.Context, tx *sqlx.Tx, repo *repository.GpsRepository, row int, rec *models.GpsRecord) error {
	if i.policy != PolicySkip {
		if err := repo.Insert(ctx, tx, rec); err != nil {
			return &InsertError{Row: row, Err: err}
		}
		return nil
	}

	sp := i.dialect.Savepoint(rowSavepoint)
	if _, err := tx.ExecContext(ctx, sp.Create); err != nil {
		return errors.Wrap(err, "create savepoint")
	}
	if err := repo.Insert(ctx, tx, rec); err != nil {
		if _, rbErr := tx.ExecContext(ctx, sp.Rollback); rbErr != nil {
			return errors.Wrapf(rbErr, "roll back row %d after %v", row, err)
		}
		// ROLLBACK TO keeps the savepoint open; drop it so they do not nest.
		if sp.Release != "" {
			if _, relErr := tx.ExecContext(ctx, sp.Release); relErr != nil {
				return errors.Wrap(relErr, "release savepoint")
			}
		}
		return &InsertError{Row: row, Err: err}
	}
	if sp.Release != "" {
		if _, err := tx.ExecContext(ctx, sp.Release); err != nil {
			return errors.Wrap(err, "release savepoint")
		}
	}
	return nil
}

// reject applies the error policy to a failed row. It returns err when the
// run must stop and nil when the row was skipped.
func (i *Ingestor) reject(report *Report, err error) error {
	if i.policy != PolicySkip || !isRowError(err) {
		return err
	}
	report.Skipped++
	report.Errors = append(report.Errors, err)
	i.logger.Printf("Skipping %v", err)
	return nil
}
