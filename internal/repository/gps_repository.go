package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/opstracker/opstracker-backend-go/internal/database"
	"github.com/opstracker/opstracker-backend-go/internal/models"
)

// gpsColumns aliases the mixed-case columns to lowercase so scanning works
// on servers that fold unquoted identifiers (PostgreSQL) and on those that
// do not.
const gpsColumns = `uid, dt, latitude, longitude, speed, radius, rssi,
	actualForever AS actualforever, userName AS username, NetworkType AS networktype`

const insertGpsRecordSQL = `INSERT INTO gps_data
	(uid, dt, latitude, longitude, speed, radius, rssi, actualForever, userName, NetworkType)
	VALUES (:uid, :dt, :latitude, :longitude, :speed, :radius, :rssi, :actualforever, :username, :networktype)`

// GpsRepository handles database operations for gps_data
type GpsRepository struct {
	db      *sqlx.DB
	dialect database.Dialect
}

// NewGpsRepository creates a new gps repository
func NewGpsRepository(db *sqlx.DB, dialect database.Dialect) *GpsRepository {
	return &GpsRepository{db: db, dialect: dialect}
}

// EnsureTable creates gps_data if it does not exist
func (r *GpsRepository) EnsureTable(ctx context.Context) error {
	if _, err := r.db.ExecContext(ctx, r.dialect.CreateTableSQL()); err != nil {
		return fmt.Errorf("failed to create %s table: %w", database.TableName, err)
	}
	return nil
}

// Insert writes one record through ext, which is normally the ingest transaction.
// Values are bound as parameters; nil pointers become NULL.
func (r *GpsRepository) Insert(ctx context.Context, ext sqlx.ExtContext, rec *models.GpsRecord) error {
	if _, err := sqlx.NamedExecContext(ctx, ext, insertGpsRecordSQL, rec); err != nil {
		return fmt.Errorf("failed to insert gps record: %w", err)
	}
	return nil
}

// Latest retrieves the most recent rows, newest first
func (r *GpsRepository) Latest(ctx context.Context, limit int) ([]models.GpsRecord, error) {
	records := []models.GpsRecord{}
	query := r.db.Rebind(r.dialect.LatestSQL(gpsColumns))
	if err := r.db.SelectContext(ctx, &records, query, limit); err != nil {
		return nil, fmt.Errorf("failed to query latest gps records: %w", err)
	}
	return records, nil
}

// Track retrieves every row of one device in chronological order
func (r *GpsRepository) Track(ctx context.Context, uid string) ([]models.GpsRecord, error) {
	records := []models.GpsRecord{}
	query := r.db.Rebind("SELECT " + gpsColumns + " FROM gps_data WHERE uid = ? ORDER BY dt ASC")
	if err := r.db.SelectContext(ctx, &records, query, uid); err != nil {
		return nil, fmt.Errorf("failed to query track for %s: %w", uid, err)
	}
	return records, nil
}

// Count returns the number of rows in gps_data
func (r *GpsRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	if err := r.db.GetContext(ctx, &total, "SELECT COUNT(*) FROM gps_data"); err != nil {
		return 0, fmt.Errorf("failed to count gps records: %w", err)
	}
	return total, nil
}

// Export streams every row in chronological order to fn, stopping at the first error fn returns
func (r *GpsRepository) Export(ctx context.Context, fn func(models.GpsRecord) error) error {
	rows, err := r.db.QueryxContext(ctx, "SELECT "+gpsColumns+" FROM gps_data ORDER BY dt ASC")
	if err != nil {
		return fmt.Errorf("failed to query gps records for export: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var rec models.GpsRecord
		if err := rows.StructScan(&rec); err != nil {
			return fmt.Errorf("failed to scan gps record: %w", err)
		}
		if err := fn(rec); err != nil {
			return err
		}
	}
	return rows.Err()
}
