package database

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

// SchemaName is the postgres schema holding every table of the service.
const SchemaName = "companion_relay"

// Config holds database configuration
type Config struct {
	DatabaseURL string
	MaxIdle     int
	MaxOpen     int
	MaxLifetime time.Duration
	LogLevel    gormlogger.LogLevel
}

// GormConfig places every table in SchemaName.
func GormConfig(level gormlogger.LogLevel) *gorm.Config {
	return &gorm.Config{
		NamingStrategy: schema.NamingStrategy{
			TablePrefix:   SchemaName + ".",
			SingularTable: false,
		},
		Logger: gormlogger.Default.LogMode(level),
	}
}

// Connect creates a new database connection with the given configuration
func Connect(cfg Config, log zerolog.Logger) (*gorm.DB, error) {
	log = log.With().Str("component", "database").Logger()

	db, err := gorm.Open(postgres.Open(cfg.DatabaseURL), GormConfig(cfg.LogLevel))
	if err != nil {
		log.Error().Err(err).Msg("unable to connect to database")
		return nil, err
	}

	// Configure connection pool
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxIdleConns(cfg.MaxIdle)
	sqlDB.SetMaxOpenConns(cfg.MaxOpen)
	sqlDB.SetConnMaxLifetime(cfg.MaxLifetime)

	log.Info().Msg("Successfully connected to database")
	return db, nil
}

// Ping checks the database connection.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return fmt.Errorf("retrieve sql db: %w", err)
	}
	return sqlDB.PingContext(ctx)
}

// Close releases the connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
