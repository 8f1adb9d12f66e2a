package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/redis/go-redis/v9"

	"statusable/internal/status/models"
	"statusable/pkg/platform/circuit"
	"statusable/pkg/platform/sentinel"
)

const defaultAppendRetries = 5

// RedisIndexCache stores the whole id-index as one JSON array under a single
// key. Calls are guarded by a circuit breaker; while it is open every call
// fails fast with sentinel.ErrUnavailable and the registry falls back to the
// store.
type RedisIndexCache struct {
	client  redis.UniversalClient
	breaker *circuit.Breaker
	logger  *slog.Logger
	retries int
}

// RedisOption configures a RedisIndexCache.
type RedisOption func(*RedisIndexCache)

// WithLogger sets the logger for breaker transitions.
func WithLogger(logger *slog.Logger) RedisOption {
	return func(c *RedisIndexCache) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithBreaker replaces the default circuit breaker.
func WithBreaker(b *circuit.Breaker) RedisOption {
	return func(c *RedisIndexCache) {
		if b != nil {
			c.breaker = b
		}
	}
}

// WithAppendRetries bounds optimistic retries when concurrent writers race on Append.
func WithAppendRetries(n int) RedisOption {
	return func(c *RedisIndexCache) {
		if n > 0 {
			c.retries = n
		}
	}
}

func NewRedisIndexCache(client redis.UniversalClient, opts ...RedisOption) *RedisIndexCache {
	c := &RedisIndexCache{
		client:  client,
		breaker: circuit.New("status-redis-cache"),
		logger:  slog.Default(),
		retries: defaultAppendRetries,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Get returns the cached id-index. found is false when the key is absent.
func (c *RedisIndexCache) Get(ctx context.Context, key string) ([]models.IDEntry, bool, error) {
	var (
		entries []models.IDEntry
		found   bool
	)
	err := c.guard(ctx, func() error {
		raw, err := c.client.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		entries, err = decode(raw)
		if err != nil {
			return err
		}
		found = true
		return nil
	})
	if err != nil {
		return nil, false, fmt.Errorf("get status index: %w", err)
	}
	return entries, found, nil
}

// Put overwrites the id-index. The key never expires.
func (c *RedisIndexCache) Put(ctx context.Context, key string, entries []models.IDEntry) error {
	data, err := encode(entries)
	if err != nil {
		return err
	}
	if err := c.guard(ctx, func() error {
		return c.client.Set(ctx, key, data, 0).Err()
	}); err != nil {
		return fmt.Errorf("put status index: %w", err)
	}
	return nil
}

// Append adds entry to the cached index with WATCH/MULTI so concurrent
// appenders never lose each other's entries. Entries already present are
// skipped. An absent key is left absent; the next cold load fills it whole.
func (c *RedisIndexCache) Append(ctx context.Context, key string, entry models.IDEntry) error {
	appendTx := func(rtx *redis.Tx) error {
		raw, err := rtx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}
		entries, err := decode(raw)
		if err != nil {
			return err
		}
		if containsEntry(entries, entry) {
			return nil
		}
		data, err := encode(append(entries, entry))
		if err != nil {
			return err
		}
		_, err = rtx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, 0)
			return nil
		})
		return err
	}

	err := c.guard(ctx, func() error {
		for range c.retries {
			err := c.client.Watch(ctx, appendTx, key)
			if !errors.Is(err, redis.TxFailedErr) {
				return err
			}
		}
		return redis.TxFailedErr
	})
	if err != nil {
		return fmt.Errorf("append status index: %w", err)
	}
	return nil
}

func (c *RedisIndexCache) guard(ctx context.Context, op func() error) error {
	if !c.breaker.Allow() {
		return sentinel.ErrUnavailable
	}
	if err := op(); err != nil {
		if _, change := c.breaker.RecordFailure(); change.Opened {
			c.logger.WarnContext(ctx, "status cache circuit opened", "breaker", c.breaker.Name(), "error", err)
		}
		return err
	}
	if _, change := c.breaker.RecordSuccess(); change.Closed {
		c.logger.InfoContext(ctx, "status cache circuit closed", "breaker", c.breaker.Name())
	}
	return nil
}

func encode(entries []models.IDEntry) ([]byte, error) {
	if entries == nil {
		entries = []models.IDEntry{}
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return nil, fmt.Errorf("encode status index: %w", err)
	}
	return data, nil
}

func decode(raw []byte) ([]models.IDEntry, error) {
	var entries []models.IDEntry
	if err := json.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("decode status index: %w", err)
	}
	return entries, nil
}

func containsEntry(entries []models.IDEntry, entry models.IDEntry) bool {
	for _, e := range entries {
		if e.ID == entry.ID || e.Key() == entry.Key() {
			return true
		}
	}
	return false
}
