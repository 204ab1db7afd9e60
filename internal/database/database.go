// Package database provides database initialization and connection management.
// It uses GORM with SQLite for embedded database storage, with driver abstraction
// for future extensibility to support other relational databases.
package database

import (
	"os"
	"path/filepath"
	"strings"
	"sync"

	"go.uber.org/zap"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/reviewgate/reviewgate/internal/model"
	"github.com/reviewgate/reviewgate/pkg/errors"
	"github.com/reviewgate/reviewgate/pkg/logger"
)

const (
	// DefaultDatabaseURL is the fallback database location when DATABASE_URL
	// is not set. The path is stable to prevent data loss from configuration
	// errors.
	DefaultDatabaseURL = "sqlite://./data/reviewgate.db"
)

var (
	db   *gorm.DB
	once sync.Once
)

// Init initializes the database connection and performs auto-migration.
// databaseURL accepts "sqlite://<path>" or a bare filesystem path.
// This function is safe to call multiple times; only the first call will take effect.
func Init(databaseURL string) error {
	var initErr error
	once.Do(func() {
		initErr = initDB(databaseURL)
	})
	return initErr
}

func initDB(databaseURL string) error {
	if databaseURL == "" {
		databaseURL = DefaultDatabaseURL
	}

	dbPath, err := parseDatabaseURL(databaseURL)
	if err != nil {
		return err
	}

	logger.Info("Initializing database", zap.String("path", dbPath))

	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		logger.Error("Failed to create database directory", zap.Error(err), zap.String("dir", dir))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to create database directory", err)
	}

	driver := &SQLiteDriver{}

	dialector, err := driver.Open(dbPath)
	if err != nil {
		logger.Error("Failed to open database", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to open database", err)
	}

	db, err = gorm.Open(dialector, &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		logger.Error("Failed to connect to database", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to connect to database", err)
	}

	if err := driver.PreMigrationConfig(db); err != nil {
		logger.Error("Failed to apply pre-migration config", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to apply pre-migration config", err)
	}

	if err := migrate(); err != nil {
		return err
	}

	if err := driver.PostMigrationConfig(db); err != nil {
		logger.Error("Failed to apply post-migration config", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to apply post-migration config", err)
	}

	logger.Info("Database initialized successfully", zap.String("driver", driver.Name()))
	return nil
}

// parseDatabaseURL resolves a DATABASE_URL value to a sqlite file path.
// Only the sqlite scheme is supported by this build.
func parseDatabaseURL(databaseURL string) (string, error) {
	if path, ok := strings.CutPrefix(databaseURL, "sqlite://"); ok {
		if path == "" {
			return "", errors.New(errors.ErrCodeConfigInvalid, "DATABASE_URL has empty sqlite path")
		}
		return path, nil
	}
	if strings.Contains(databaseURL, "://") {
		return "", errors.New(errors.ErrCodeConfigInvalid,
			"DATABASE_URL scheme not supported, expected sqlite://<path>")
	}
	return databaseURL, nil
}

// migrate runs auto-migration for all models
func migrate() error {
	logger.Info("Running database migrations")

	models := model.AllModels()
	if err := db.AutoMigrate(models...); err != nil {
		logger.Error("Failed to run database migrations", zap.Error(err))
		return errors.Wrap(errors.ErrCodeDBMigration, "failed to run database migrations", err)
	}

	logger.Info("Database migrations completed", zap.Int("models", len(models)))
	return nil
}

// Get returns the database instance.
// Panics if the database hasn't been initialized.
func Get() *gorm.DB {
	if db == nil {
		panic("database not initialized, call Init first")
	}
	return db
}

// Close closes the database connection
func Close() error {
	if db == nil {
		return nil
	}

	sqlDB, err := db.DB()
	if err != nil {
		return err
	}

	logger.Info("Closing database connection")
	return sqlDB.Close()
}

// ResetForTesting resets the database state for testing purposes.
// This allows re-initialization of the database in tests.
// WARNING: Only use this function in tests!
func ResetForTesting() {
	if db != nil {
		sqlDB, _ := db.DB()
		if sqlDB != nil {
			sqlDB.Close()
		}
		db = nil
	}
	once = sync.Once{}
}

// Transaction executes a function within a database transaction
func Transaction(fn func(tx *gorm.DB) error) error {
	return Get().Transaction(fn)
}

// HealthCheck performs a simple health check on the database
func HealthCheck() error {
	sqlDB, err := db.DB()
	if err != nil {
		return errors.Wrap(errors.ErrCodeDBConnection, "failed to get database connection", err)
	}
	return sqlDB.Ping()
}
