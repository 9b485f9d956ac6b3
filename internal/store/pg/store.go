// Package pg implementa los repositorios del directorio sobre Postgres (pgx/v5).
package pg

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/dropDatabas3/hellocards/internal/observability/logger"
)

type Store struct{ pool *pgxpool.Pool }

// PoolConfig ajusta el pool; valores cero usan los defaults de pgxpool.
type PoolConfig struct {
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func New(ctx context.Context, dsn string, cfg PoolConfig) (*Store, error) {
	pcfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.MaxOpenConns > 0 {
		pcfg.MaxConns = int32(cfg.MaxOpenConns)
	}
	// MaxIdleConns → MinConns (pgxpool)
	if cfg.MaxIdleConns > 0 {
		pcfg.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		pcfg.MaxConnLifetime = cfg.ConnMaxLifetime
		pcfg.MaxConnIdleTime = cfg.ConnMaxLifetime
	}
	if pcfg.MaxConns == 0 {
		pcfg.MaxConns = 8
	}

	pool, err := pgxpool.NewWithConfig(ctx, pcfg)
	if err != nil {
		return nil, err
	}

	log := logger.L().Named("pg")
	// No bloqueante: la app arranca aunque la DB esté caída temporalmente.
	if err := pool.Ping(ctx); err != nil {
		log.Warn("pg_pool_startup_ping_failed", logger.Err(err))
	} else {
		log.Info("pg_pool_ready", zap.Int32("max_conns", pcfg.MaxConns))
	}
	return &Store{pool: pool}, nil
}

// Pool expone el pool interno (migraciones, tests).
func (s *Store) Pool() *pgxpool.Pool {
	if s == nil {
		return nil
	}
	return s.pool
}

// PoolStats devuelve un snapshot del estado del pool.
func (s *Store) PoolStats() *pgxpool.Stat {
	if s == nil || s.pool == nil {
		return nil
	}
	return s.pool.Stat()
}

func (s *Store) Ping(ctx context.Context) error { return s.pool.Ping(ctx) }

// Close cierra el pool subyacente (idempotente).
func (s *Store) Close() {
	if s != nil && s.pool != nil {
		s.pool.Close()
	}
}
