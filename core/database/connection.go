package database

import (
	"fmt"
	"time"

	"github.com/AzielCF/az-connect/core/config"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/postgres"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// GlobalDB holds the database connection opened at startup.
var GlobalDB *gorm.DB

// NewDatabase initializes a database connection based on the provided configuration.
func NewDatabase(cfg *config.Config) (*gorm.DB, error) {
	db, err := Open(cfg.Database, cfg.App.Debug)
	if err == nil {
		GlobalDB = db
	}
	return db, err
}

// Open opens a gorm connection for the given driver settings.
func Open(cfg config.DatabaseConfig, debug bool) (*gorm.DB, error) {
	var dialector gorm.Dialector

	switch cfg.Driver {
	case "postgres":
		dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%d sslmode=disable TimeZone=UTC",
			cfg.Host,
			cfg.User,
			cfg.Password,
			cfg.Name,
			cfg.Port,
		)
		dialector = postgres.Open(dsn)
	case "sqlite", "":
		dsn := cfg.Name
		if dsn != ":memory:" {
			dsn = fmt.Sprintf("file:%s?_journal_mode=WAL&_foreign_keys=on", cfg.Name)
		}
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", cfg.Driver)
	}

	logLevel := logger.Warn
	if debug {
		logLevel = logger.Info
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logLevel),
		NowFunc: func() time.Time {
			return time.Now().UTC()
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database (%s): %w", cfg.Name, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB instance: %w", err)
	}

	if cfg.Driver == "sqlite" || cfg.Driver == "" {
		sqlDB.SetMaxOpenConns(1)
		sqlDB.SetMaxIdleConns(1)
		sqlDB.SetConnMaxLifetime(time.Hour)
	} else {
		sqlDB.SetMaxOpenConns(100)
		sqlDB.SetMaxIdleConns(10)
		sqlDB.SetConnMaxLifetime(time.Hour)
	}

	logrus.Infof("[DATABASE] Connected using %s driver", driverName(cfg.Driver))
	return db, nil
}

func driverName(d string) string {
	if d == "" {
		return "sqlite"
	}
	return d
}
