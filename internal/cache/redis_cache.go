package cache

import (
	"context"
	"fmt"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const versionKey = "reports:version"

type RedisReportCache struct {
	client *redis.Client
}

func NewRedisReportCache(addr string, password string, db int) *RedisReportCache {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	return &RedisReportCache{client: client}
}

func (c *RedisReportCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

func (c *RedisReportCache) Close() error {
	return c.client.Close()
}

// versionedKey prefixes the key with the current version counter so that a
// single INCR invalidates every cached report without scanning keys.
func (c *RedisReportCache) versionedKey(ctx context.Context, key string) (string, error) {
	version, err := c.client.Get(ctx, versionKey).Result()
	if err == redis.Nil {
		version = "0"
	} else if err != nil {
		return "", err
	}
	return fmt.Sprintf("reports:%s:%s", version, key), nil
}

func (c *RedisReportCache) Get(ctx context.Context, key string) ([]byte, bool, error) {
	full, err := c.versionedKey(ctx, key)
	if err != nil {
		return nil, false, err
	}
	payload, err := c.client.Get(ctx, full).Bytes()
	if err == redis.Nil {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, err
	}
	return payload, true, nil
}

func (c *RedisReportCache) Set(ctx context.Context, key string, payload []byte, ttl time.Duration) error {
	if len(payload) == 0 {
		return nil
	}
	full, err := c.versionedKey(ctx, key)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, full, payload, ttl).Err()
}

func (c *RedisReportCache) Invalidate(ctx context.Context) error {
	return c.client.Incr(ctx, versionKey).Err()
}
