package rate

import (
	"time"

	rdb "github.com/redis/go-redis/v9"
)

// Config límites de publicación.
type Config struct {
	Enabled bool
	Max     int
	Window  time.Duration
	Prefix  string
}

// New devuelve un limiter redis si hay cliente, o uno en memoria. nil si está deshabilitado.
func New(cfg Config, client *rdb.Client) Limiter {
	if !cfg.Enabled || cfg.Max <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if client != nil {
		return NewRedisLimiter(client, cfg.Prefix, cfg.Max, cfg.Window)
	}
	return NewMemoryLimiter(cfg.Max, cfg.Window)
}
