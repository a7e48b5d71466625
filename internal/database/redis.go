package database

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/stemsi/exstem-proctor/internal/config"
)

// minRequestConns is left free for autosaves, rate limiting and lookups while
// every queue consumer is parked in BLPOP.
const minRequestConns = 4

// sizeRedisPool adjusts options parsed from the URL. A pool_size of zero keeps
// the client default, which already scales with GOMAXPROCS.
func sizeRedisPool(opt *redis.Options) {
	if opt.PoolSize > 0 && opt.PoolSize < queueConsumers+minRequestConns {
		opt.PoolSize = queueConsumers + minRequestConns
	}
	if opt.MinIdleConns < queueConsumers {
		opt.MinIdleConns = queueConsumers
	}
	if opt.ClientName == "" {
		opt.ClientName = "exstem-proctor"
	}
}

// NewRedisClient creates a Redis client and waits for the server to answer.
// Redis carries the event queues, autosaves and the monitor channels.
func NewRedisClient(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*redis.Client, error) {
	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	sizeRedisPool(opt)

	rdb := redis.NewClient(opt)

	ping := func(ctx context.Context) error { return rdb.Ping(ctx).Err() }
	if err := waitReady(ctx, log, "redis", ping); err != nil {
		rdb.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}

	log.Info().
		Str("addr", opt.Addr).
		Int("db", opt.DB).
		Int("pool_size", rdb.Options().PoolSize).
		Int("min_idle_conns", opt.MinIdleConns).
		Msg("Redis connected")

	return rdb, nil
}
