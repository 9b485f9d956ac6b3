// Package cache abstrae el caching de cards con dos backends:
//   - Memory (go-cache, in-process)
//   - Redis (distribuido)
package cache

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Client define las operaciones de cache. Valores opacos en bytes.
type Client interface {
	// Get obtiene un valor. Retorna ErrNotFound si no existe o expiró.
	Get(ctx context.Context, key string) ([]byte, error)
	// Set guarda un valor; ttl 0 usa el default del backend.
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Delete(ctx context.Context, keys ...string) error
	Ping(ctx context.Context) error
	Close() error
}

var ErrNotFound = errors.New("cache: key not found")

func IsNotFound(err error) bool { return errors.Is(err, ErrNotFound) }

// Config configuración para crear un cliente de cache.
type Config struct {
	Driver     string // "memory" | "redis"
	Addr       string
	Password   string
	DB         int
	Prefix     string
	DefaultTTL time.Duration
}

// New crea un cliente según cfg.Driver.
func New(ctx context.Context, cfg Config) (Client, error) {
	switch cfg.Driver {
	case "memory", "":
		return NewMemory(cfg.Prefix, cfg.DefaultTTL), nil
	case "redis":
		return NewRedis(ctx, cfg)
	default:
		return nil, fmt.Errorf("cache: driver %q not supported", cfg.Driver)
	}
}

func prefixed(prefix, k string) string {
	if prefix == "" {
		return k
	}
	return prefix + k
}
