// Package migration applies versioned SQL schema changes to a SQLite database.
//
// Migrations are read from an fs.FS (normally the embedded migrations directory of
// the sqlite package) and must be named {version}_{description}.sql, for example
// "001_initial_schema.sql". Each migration runs inside its own transaction and is
// recorded in the schema_migrations table together with its checksum, so a file
// that changes after it was applied is reported instead of silently skipped.
//
// Example usage:
//
//	manager := migration.NewManager(db, migrationsFS, logger)
//	if err := manager.Run(ctx); err != nil {
//		return fmt.Errorf("migrate: %w", err)
//	}
package migration
