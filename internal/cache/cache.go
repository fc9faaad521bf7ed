package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/leafsii/blog-bff/internal/metrics"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

var ErrCacheMiss = errors.New("cache miss")

type Cache struct {
	// When Redis is available, use client for all operations
	client *redis.Client
	// When Redis is unavailable, fall back to an in-process map
	mem *memoryStore

	logger  *zap.SugaredLogger
	metrics *metrics.Metrics
}

// New connects to Redis at addr. An unreachable Redis is not an error: the
// cache falls back to in-memory mode.
func New(addr string, logger *zap.SugaredLogger, metrics *metrics.Metrics) (*Cache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
		PoolSize:     10,
		MinIdleConns: 2,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		if logger != nil {
			logger.Warnw("Redis unavailable; using in-memory cache", "addr", addr, "error", err)
		}
		_ = client.Close()
		return NewInMemory(logger, metrics), nil
	}

	return &Cache{
		client:  client,
		logger:  logger,
		metrics: metrics,
	}, nil
}

func NewInMemory(logger *zap.SugaredLogger, metrics *metrics.Metrics) *Cache {
	return &Cache{
		mem:     newMemoryStore(time.Minute),
		logger:  logger,
		metrics: metrics,
	}
}

func (c *Cache) Get(ctx context.Context, key string, dest any) error {
	var data []byte

	if c.client != nil {
		val, err := c.client.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				c.metrics.RecordCacheMiss(ctx, kindOf(key))
				return ErrCacheMiss
			}
			if c.logger != nil {
				c.logger.Errorw("Cache get error", "key", key, "error", err)
			}
			return fmt.Errorf("cache get error: %w", err)
		}
		data = val
	} else {
		val, ok := c.mem.get(key)
		if !ok {
			c.metrics.RecordCacheMiss(ctx, kindOf(key))
			return ErrCacheMiss
		}
		data = val
	}

	c.metrics.RecordCacheHit(ctx, kindOf(key))
	if err := json.Unmarshal(data, dest); err != nil {
		return fmt.Errorf("cache unmarshal error: %w", err)
	}
	return nil
}

func (c *Cache) Set(ctx context.Context, key string, value any, ttl time.Duration) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("cache marshal error: %w", err)
	}
	if c.client != nil {
		if err := c.client.Set(ctx, key, data, ttl).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache set error", "key", key, "error", err)
			}
			return fmt.Errorf("cache set error: %w", err)
		}
		return nil
	}
	c.mem.set(key, data, ttl)
	return nil
}

func (c *Cache) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}

	if c.client != nil {
		if err := c.client.Del(ctx, keys...).Err(); err != nil {
			if c.logger != nil {
				c.logger.Errorw("Cache delete error", "keys", keys, "error", err)
			}
			return fmt.Errorf("cache delete error: %w", err)
		}
		return nil
	}
	c.mem.del(keys...)
	return nil
}

// Incr atomically increments an integer counter, creating it at 1.
func (c *Cache) Incr(ctx context.Context, key string) (int64, error) {
	if c.client != nil {
		n, err := c.client.Incr(ctx, key).Result()
		if err != nil {
			return 0, fmt.Errorf("cache incr error: %w", err)
		}
		return n, nil
	}
	n, err := c.mem.incr(key)
	if err != nil {
		return 0, fmt.Errorf("cache incr error: %w", err)
	}
	return n, nil
}

// Counter reads an integer counter, returning 0 when it does not exist.
func (c *Cache) Counter(ctx context.Context, key string) (int64, error) {
	if c.client != nil {
		n, err := c.client.Get(ctx, key).Int64()
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		if err != nil {
			return 0, fmt.Errorf("cache counter error: %w", err)
		}
		return n, nil
	}
	var n int64
	if err := c.getRaw(key, &n); err != nil {
		return 0, nil
	}
	return n, nil
}

func (c *Cache) getRaw(key string, dest any) error {
	val, ok := c.mem.get(key)
	if !ok {
		return ErrCacheMiss
	}
	return json.Unmarshal(val, dest)
}

// IsInMemoryMode returns true if the cache is running in in-memory mode
func (c *Cache) IsInMemoryMode() bool {
	return c.client == nil
}

func (c *Cache) Ping(ctx context.Context) error {
	if c.client != nil {
		return c.client.Ping(ctx).Err()
	}
	return nil
}

func (c *Cache) Close() error {
	if c.client != nil {
		return c.client.Close()
	}
	if c.mem != nil {
		c.mem.close()
	}
	return nil
}

// kindOf extracts the metric label from keys shaped "blog:<kind>:...".
func kindOf(key string) string {
	parts := strings.SplitN(key, ":", 3)
	if len(parts) < 2 {
		return key
	}
	return parts[1]
}
