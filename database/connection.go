package database

import (
	"context"
	"fmt"
	"log/slog"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/Ananth-NQI/orderline-backend/internal/config"
	"github.com/Ananth-NQI/orderline-backend/internal/models"
)

// Connect opens the postgres pool. Unique violations surface as gorm.ErrDuplicatedKey.
func Connect(cfg config.DatabaseConfig, log *slog.Logger) (*gorm.DB, error) {
	if cfg.InstanceConnectionName != "" {
		log.Info("connecting to Cloud SQL via socket", slog.String("instance", cfg.InstanceConnectionName))
	} else {
		log.Info("connecting to PostgreSQL", slog.String("host", cfg.Host))
	}

	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		TranslateError: true,
		Logger:         gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("connect database: %w", err)
	}

	log.Info("database connected")
	return db, nil
}

// Migrate creates or updates every table.
func Migrate(db *gorm.DB, log *slog.Logger) error {
	log.Info("running database migrations")
	if err := db.AutoMigrate(models.AllModels()...); err != nil {
		return fmt.Errorf("migrate database: %w", err)
	}
	log.Info("database migrations completed")
	return nil
}

// Ping reports whether the pool can reach the server.
func Ping(ctx context.Context, db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}
