package db

import (
	"context"
)

// Database is a pooled SQL connection shared by repositories.
type Database interface {
	Querier

	// Dialect reports the SQL flavour so callers can pick dialect-specific DDL.
	Dialect() Dialect

	Ping(ctx context.Context) error
	Close() error
}

// Rows is the iterator returned by Query.
type Rows interface {
	Next() bool
	Scan(dest ...interface{}) error
	Close() error
	Err() error
}

// Row is the single row returned by QueryRow.
type Row interface {
	Scan(dest ...interface{}) error
}

// Result describes the outcome of Exec.
type Result interface {
	LastInsertId() (int64, error)
	RowsAffected() (int64, error)
}

// Dialect selects the driver and placeholder style.
type Dialect string

const (
	DialectMySQL    Dialect = "mysql"
	DialectPostgres Dialect = "postgres"
)
