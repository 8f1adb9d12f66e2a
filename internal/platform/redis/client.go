// Package redis builds the go-redis client behind the distributed status index.
package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"

	"statusable/internal/platform/config"
)

// Options translates cfg into go-redis universal options and reports whether
// redis is configured at all. REDIS_URL supplies credentials, database and
// TLS; REDIS_ADDRS replaces its single address with a seed list, which makes
// the client a cluster client, and REDIS_MASTER_NAME selects sentinel failover.
func Options(cfg config.RedisConfig) (*redis.UniversalOptions, bool, error) {
	if cfg.URL == "" && len(cfg.Addrs) == 0 {
		return nil, false, nil
	}

	opts := &redis.UniversalOptions{
		Addrs:        cfg.Addrs,
		MasterName:   cfg.MasterName,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}
	if cfg.URL != "" {
		parsed, err := redis.ParseURL(cfg.URL)
		if err != nil {
			return nil, false, fmt.Errorf("parse redis URL: %w", err)
		}
		if len(opts.Addrs) == 0 {
			opts.Addrs = []string{parsed.Addr}
		}
		opts.Username = parsed.Username
		opts.Password = parsed.Password
		opts.DB = parsed.DB
		opts.TLSConfig = parsed.TLSConfig
	}
	return opts, true, nil
}

// NewClient connects and pings. Returns nil when redis is not configured.
func NewClient(ctx context.Context, cfg config.RedisConfig) (redis.UniversalClient, error) {
	opts, ok, err := Options(cfg)
	if err != nil || !ok {
		return nil, err
	}
	client := redis.NewUniversalClient(opts)
	if err := Health(ctx, client); err != nil {
		_ = client.Close()
		return nil, err
	}
	return client, nil
}

// Health pings the server.
func Health(ctx context.Context, client redis.UniversalClient) error {
	if err := client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("redis ping failed: %w", err)
	}
	return nil
}
