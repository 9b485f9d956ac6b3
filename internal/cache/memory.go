package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// memoryClient implementa Client sobre go-cache.
type memoryClient struct {
	prefix string
	c      *gocache.Cache
}

// NewMemory crea un cliente in-process. defaultTTL <= 0 => 2m.
func NewMemory(prefix string, defaultTTL time.Duration) Client {
	if defaultTTL <= 0 {
		defaultTTL = 2 * time.Minute
	}
	return &memoryClient{prefix: prefix, c: gocache.New(defaultTTL, time.Minute)}
}

func (m *memoryClient) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(prefixed(m.prefix, key))
	if !ok {
		return nil, ErrNotFound
	}
	b, _ := v.([]byte)
	return append([]byte(nil), b...), nil
}

func (m *memoryClient) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	if ttl <= 0 {
		ttl = gocache.DefaultExpiration
	}
	m.c.Set(prefixed(m.prefix, key), append([]byte(nil), value...), ttl)
	return nil
}

func (m *memoryClient) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		m.c.Delete(prefixed(m.prefix, k))
	}
	return nil
}

func (m *memoryClient) Ping(ctx context.Context) error { return nil }

func (m *memoryClient) Close() error {
	m.c.Flush()
	return nil
}
