package db

import (
	"context"
	"fmt"

	"sector-registry/sectorhub/internal/logging"

	"github.com/cenkalti/backoff/v4"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

var DB *sqlx.DB

// InitPostgres opens the sqlx pool used by the reporting queries
func InitPostgres(ctx context.Context, dsn string) (*sqlx.DB, error) {
	var conn *sqlx.DB
	operation := func() error {
		c, err := sqlx.ConnectContext(ctx, "postgres", dsn)
		if err != nil {
			logging.Warn("Postgres (sqlx) not ready", "error", err.Error())
			return err
		}
		conn = c
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(connectInterval), connectAttempts), ctx)
	if err := backoff.Retry(operation, policy); err != nil {
		return nil, fmt.Errorf("failed to connect to postgres (sqlx): %w", err)
	}

	DB = conn
	return conn, nil
}
