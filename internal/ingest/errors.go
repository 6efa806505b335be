package ingest

import (
	"fmt"

	"github.com/pkg/errors"
)

// ErrTooManyRejected is returned when skipped rows exceed the configured error ratio.
var ErrTooManyRejected = errors.New("too many rejected rows")

// ConnectionError means the database server could not be reached or
// refused the credentials. It aborts the run.
type ConnectionError struct {
	Scope string
	Err   error
}

func (e *ConnectionError) Error() string {
	return fmt.Sprintf("connection error (%s database): %v", e.Scope, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// SchemaError means creating the database or the table failed. It aborts the run.
type SchemaError struct {
	Object string
	Err    error
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("schema error (%s): %v", e.Object, e.Err)
}

func (e *SchemaError) Unwrap() error { return e.Err }

// ConversionError means a populated field of a row could not be coerced to
// its column type. Row is the 1-based data row, header excluded.
type ConversionError struct {
	Row   int
	Field string
	Value string
	Err   error
}

func (e *ConversionError) Error() string {
	return fmt.Sprintf("conversion error: row %d, field %s, value %q: %v", e.Row, e.Field, e.Value, e.Err)
}

func (e *ConversionError) Unwrap() error { return e.Err }

// InsertError means the driver rejected a single row.
type InsertError struct {
	Row int
	Err error
}

func (e *InsertError) Error() string {
	return fmt.Sprintf("insert error: row %d: %v", e.Row, e.Err)
}

func (e *InsertError) Unwrap() error { return e.Err }

// isRowError reports whether err is scoped to one row and may be skipped.
func isRowError(err error) bool {
	var convErr *ConversionError
	var insErr *InsertError
	return errors.As(err, &convErr) || errors.As(err, &insErr)
}
