package migration

import "time"

// Migration represents a database migration with its metadata and SQL content
type Migration struct {
	Version     int    // Numeric version parsed from the file name
	Description string // Human-readable description of the migration
	SQL         string // SQL statements to execute
	FilePath    string // Path of the migration inside its file system
	Checksum    string // SHA-256 of the SQL content
}

// AppliedMigration represents a migration that has been successfully applied
type AppliedMigration struct {
	Version       int
	AppliedAt     time.Time
	ExecutionTime time.Duration
	Checksum      string
}

// Status provides information about the current migration state
type Status struct {
	CurrentVersion int
	Applied        []AppliedMigration
	Pending        []Migration
}
