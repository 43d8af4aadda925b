package database

import "errors"

var (
	// ErrNoPath is returned by Open when no database path is configured.
	ErrNoPath = errors.New("database: path is required")

	// ErrMigrationNotFound is returned when an applied version has no file.
	ErrMigrationNotFound = errors.New("database: migration not found")

	// ErrNoDownSQL is returned when rolling back a migration without a .down.sql file.
	ErrNoDownSQL = errors.New("database: migration has no down SQL")
)
