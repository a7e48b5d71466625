package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
)

// queueConsumers is the number of workers draining Redis queues into Postgres:
// violations, captures and autosaved answers.
const queueConsumers = 3

// Grading saves of a whole class expiring at one deadline compete with the
// queue consumers, so the pool never shrinks below this many spare connections.
const minGradingConns = 2

// poolBounds returns the pool limits for the configured maximum. Queue
// consumers keep a warm connection each.
func poolBounds(configured int32) (minConns, maxConns int32) {
	maxConns = configured
	if floor := int32(queueConsumers + minGradingConns); maxConns < floor {
		maxConns = floor
	}
	return queueConsumers, maxConns
}

// NewPostgresPool creates a PostgreSQL pool and waits for the database to answer.
// Timestamps are exchanged in UTC so session deadlines compare across instances.
func NewPostgresPool(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(cfg.DatabaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse database URL: %w", err)
	}

	poolCfg.MinConns, poolCfg.MaxConns = poolBounds(cfg.MaxDBConns)
	poolCfg.MaxConnIdleTime = 5 * time.Minute
	poolCfg.MaxConnLifetime = 30 * time.Minute
	poolCfg.MaxConnLifetimeJitter = 5 * time.Minute
	poolCfg.HealthCheckPeriod = 30 * time.Second
	poolCfg.ConnConfig.RuntimeParams["application_name"] = "exstem-proctor"
	poolCfg.ConnConfig.RuntimeParams["timezone"] = "UTC"

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := waitReady(ctx, log, "postgres", pool.Ping); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info().
		Int32("min_conns", poolCfg.MinConns).
		Int32("max_conns", poolCfg.MaxConns).
		Str("host", poolCfg.ConnConfig.Host).
		Str("database", poolCfg.ConnConfig.Database).
		Msg("PostgreSQL connected")

	return pool, nil
}
