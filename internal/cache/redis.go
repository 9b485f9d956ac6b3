package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// redisClient implementa Client usando Redis.
type redisClient struct {
	client     *redis.Client
	prefix     string
	defaultTTL time.Duration
}

// NewRedis crea el cliente y verifica la conexión.
func NewRedis(ctx context.Context, cfg Config) (Client, error) {
	rdb := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := rdb.Ping(pctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("cache: redis ping failed: %w", err)
	}
	return NewRedisFromClient(rdb, cfg.Prefix, cfg.DefaultTTL), nil
}

// NewRedisFromClient envuelve un cliente existente (compartido con el rate limiter).
func NewRedisFromClient(rdb *redis.Client, prefix string, defaultTTL time.Duration) Client {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &redisClient{client: rdb, prefix: prefix, defaultTTL: defaultTTL}
}

func (c *redisClient) Get(ctx context.Context, key string) ([]byte, error) {
	val, err := c.client.Get(ctx, prefixed(c.prefix, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return val, nil
}

func (c *redisClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = c.defaultTTL
	}
	return c.client.Set(ctx, prefixed(c.prefix, key), value, ttl).Err()
}

func (c *redisClient) Delete(ctx context.Context, keys ...string) error {
	if len(keys) == 0 {
		return nil
	}
	full := make([]string, len(keys))
	for i, k := range keys {
		full[i] = prefixed(c.prefix, k)
	}
	return c.client.Del(ctx, full...).Err()
}

func (c *redisClient) Ping(ctx context.Context) error { return c.client.Ping(ctx).Err() }

func (c *redisClient) Close() error { return c.client.Close() }
