// Package database provides database driver abstraction for extensibility.
// Currently only SQLite is supported, but the interface allows for future
// support of PostgreSQL, MySQL, and other relational databases.
package database

import "gorm.io/gorm"

// Driver defines the database driver interface for supporting multiple databases
type Driver interface {
	// Name returns the driver name (e.g., "sqlite", "postgres", "mysql")
	Name() string

	// Open opens a database connection and returns a GORM dialector
	Open(dsn string) (gorm.Dialector, error)

	// PreMigrationConfig applies database configurations before migration
	// (connection pool, WAL mode, etc.). Foreign key constraints must NOT
	// be enabled here to avoid migration failures
	PreMigrationConfig(db *gorm.DB) error

	// PostMigrationConfig applies database configurations after migration
	// (foreign key constraints, etc.)
	PostMigrationConfig(db *gorm.DB) error
}
