package db

import (
	"context"
	"fmt"
	"time"

	"sector-registry/sectorhub/internal/logging"
	gormModels "sector-registry/sectorhub/internal/models/gorm"

	"github.com/cenkalti/backoff/v4"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var PgDB *gorm.DB

const (
	connectAttempts = 10
	connectInterval = 500 * time.Millisecond
)

// GormConfig stores every timestamp in UTC
func GormConfig() *gorm.Config {
	return &gorm.Config{
		NowFunc: func() time.Time { return time.Now().UTC() },
		Logger:  logger.Default.LogMode(logger.Warn),
	}
}

// InitPostgresORM opens the gorm connection, retrying while postgres comes up
func InitPostgresORM(ctx context.Context, dsn string) (*gorm.DB, error) {
	var db *gorm.DB
	operation := func() error {
		conn, err := gorm.Open(postgres.Open(dsn), GormConfig())
		if err != nil {
			logging.Warn("Postgres (GORM) not ready", "error", err.Error())
			return err
		}
		db = conn
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(connectInterval), connectAttempts), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres: %w", err)
	}

	PgDB = db
	logging.Info("Connected to Postgres via GORM")
	return db, nil
}

// AutoMigrate creates or updates every table the registry owns
func AutoMigrate(db *gorm.DB) error {
	err := db.AutoMigrate(
		&gormModels.EconomicSector{},
		&gormModels.SectorGroup{},
		&gormModels.SectorGroupMapping{},
		&gormModels.TransitionRun{},
		&gormModels.AuditLog{},
	)
	if err != nil {
		return fmt.Errorf("failed to migrate schema: %w", err)
	}
	return nil
}
