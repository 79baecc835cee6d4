// Package database opens gorm connections for the relational pricing backends.
package database

import (
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Supported backends
const (
	BackendPostgres = "postgres"
	BackendSQLite   = "sqlite"
)

// Open connects to a postgres or sqlite database. GORM's own logging is
// routed through zl.
func Open(backend, dsn string, zl *zap.Logger) (*gorm.DB, error) {
	if zl == nil {
		zl = zap.NewNop()
	}

	// Create a logger for gorm
	dbLogger := logger.New(
		zap.NewStdLog(zl),
		logger.Config{
			SlowThreshold:             time.Second, // Slow SQL threshold
			LogLevel:                  logger.Warn, // Log level
			IgnoreRecordNotFoundError: true,        // Not-found is an expected outcome
			Colorful:                  false,
		},
	)
	config := &gorm.Config{
		Logger:         dbLogger,
		TranslateError: true,
	}

	var dialector gorm.Dialector
	switch backend {
	case BackendPostgres:
		dialector = postgres.Open(dsn)
	case BackendSQLite:
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database backend: %s", backend)
	}

	zl.Sugar().Infof("connecting to %s database...", backend)
	db, err := gorm.Open(dialector, config)
	if err != nil {
		return nil, fmt.Errorf("unable to open %s database: %w", backend, err)
	}

	if backend == BackendSQLite {
		// SQLite serialises writers; a single connection avoids SQLITE_BUSY
		sqlDB, err := db.DB()
		if err != nil {
			return nil, err
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return db, nil
}

// Close closes the connection pool behind db
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
