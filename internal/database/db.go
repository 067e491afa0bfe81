package database

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/Clau791/Document-proccesing-Video-sub-dub/internal/models"

	log "github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const appDirName = "mediadesk"

var DB *gorm.DB

// DefaultURL points at history.db in the user config directory
func DefaultURL() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return "sqlite://" + filepath.Join(configDir, appDirName, "history.db"), nil
}

// Init opens the history database and runs auto-migration.
// An empty databaseURL selects DefaultURL.
func Init(databaseURL string, debug bool) (*gorm.DB, error) {
	if databaseURL == "" {
		defaultURL, err := DefaultURL()
		if err != nil {
			return nil, err
		}
		databaseURL = defaultURL
	}

	var dialector gorm.Dialector
	switch {
	case strings.HasPrefix(databaseURL, "sqlite://"):
		dbPath := strings.TrimPrefix(databaseURL, "sqlite://")
		if !strings.HasPrefix(dbPath, "file:") && dbPath != ":memory:" {
			if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
				return nil, fmt.Errorf("failed to create database directory: %w", err)
			}
		}
		log.WithField("path", dbPath).Debug("Using sqlite history database")
		dialector = sqlite.Open(dbPath)
	case strings.HasPrefix(databaseURL, "postgresql://"), strings.HasPrefix(databaseURL, "postgres://"):
		dialector = postgres.Open(databaseURL)
	default:
		return nil, fmt.Errorf("unsupported database URL format: %s", databaseURL)
	}

	gormLogger := logger.Default.LogMode(logger.Warn)
	if debug {
		gormLogger = logger.Default.LogMode(logger.Info)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: gormLogger,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get database instance: %w", err)
	}

	// Pool parameters are configurable via environment variables
	maxOpenConns := getEnvInt("MEDIADESK_DB_MAX_OPEN_CONNS", 10)
	maxIdleConns := getEnvInt("MEDIADESK_DB_MAX_IDLE_CONNS", 2)
	connMaxLifetime := getEnvDuration("MEDIADESK_DB_CONN_MAX_LIFETIME", 5*time.Minute)

	sqlDB.SetMaxOpenConns(maxOpenConns)
	sqlDB.SetMaxIdleConns(maxIdleConns)
	sqlDB.SetConnMaxLifetime(connMaxLifetime)

	if err := sqlDB.Ping(); err != nil {
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if err := AutoMigrate(db); err != nil {
		return nil, fmt.Errorf("failed to auto-migrate: %w", err)
	}

	log.WithFields(log.Fields{
		"max_open":     maxOpenConns,
		"max_idle":     maxIdleConns,
		"max_lifetime": connMaxLifetime,
	}).Debug("History database initialized")

	DB = db
	return db, nil
}

// getEnvInt retrieves an integer from environment variable with default fallback
func getEnvInt(key string, defaultValue int) int {
	if val := os.Getenv(key); val != "" {
		if intVal, err := strconv.Atoi(val); err == nil {
			return intVal
		}
	}
	return defaultValue
}

// getEnvDuration retrieves a duration from environment variable with default fallback
func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if duration, err := time.ParseDuration(val); err == nil {
			return duration
		}
	}
	return defaultValue
}

// AutoMigrate runs GORM auto-migration for all models
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(
		&models.ItemRecord{},
	)
}

// Close closes the database connection
func Close(db *gorm.DB) error {
	if db == nil {
		db = DB
	}
	if db == nil {
		return nil
	}
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// GetDB returns the database instance (helper for services)
func GetDB() *gorm.DB {
	return DB
}
