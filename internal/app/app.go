// Package app arma el directorio de cards a partir de la config: storage, keystore,
// issuer, cache, rate limiter y router HTTP.
package app

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"

	"github.com/dropDatabas3/hellocards/internal/cache"
	"github.com/dropDatabas3/hellocards/internal/config"
	"github.com/dropDatabas3/hellocards/internal/crypto"
	"github.com/dropDatabas3/hellocards/internal/directory"
	"github.com/dropDatabas3/hellocards/internal/http/controllers"
	mw "github.com/dropDatabas3/hellocards/internal/http/middlewares"
	"github.com/dropDatabas3/hellocards/internal/http/router"
	"github.com/dropDatabas3/hellocards/internal/jwt"
	"github.com/dropDatabas3/hellocards/internal/metrics"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
	"github.com/dropDatabas3/hellocards/internal/rate"
	"github.com/dropDatabas3/hellocards/internal/store/core"
	"github.com/dropDatabas3/hellocards/internal/store/memory"
	"github.com/dropDatabas3/hellocards/internal/store/pg"
	migrations "github.com/dropDatabas3/hellocards/migrations/postgres"
)

// App es el servicio cableado.
type App struct {
	Handler   http.Handler
	Directory *directory.Service
	Keystore  *jwt.PersistentKeystore
	Issuer    *jwt.Issuer
	Cache     cache.Client

	closers []func()
}

// Options permite a tests y al harness inyectar piezas ya construidas.
type Options struct {
	Crypto     crypto.Provider
	Registry   prometheus.Registerer
	Gatherer   prometheus.Gatherer
	ServiceKey crypto.PrivateKey
	Version    string
}

// New construye la App. Close libera pool y clientes.
func New(ctx context.Context, cfg *config.Config, opts Options) (*App, error) {
	a := &App{}
	ok := false
	defer func() {
		if !ok {
			a.Close()
		}
	}()
	log := logger.Named("app")

	p := opts.Crypto
	if p == nil {
		p = crypto.NewEd25519Provider()
	}
	if err := metrics.Register(opts.Registry); err != nil {
		return nil, err
	}

	// ---- storage ----
	var (
		cards  core.CardRepository
		pgs    *pg.Store
		checks = map[string]controllers.HealthCheck{}
	)
	switch cfg.Storage.Driver {
	case "postgres":
		s, err := pg.New(ctx, cfg.Storage.DSN, pg.PoolConfig{
			MaxOpenConns:    cfg.Storage.Postgres.MaxOpenConns,
			MaxIdleConns:    cfg.Storage.Postgres.MaxIdleConns,
			ConnMaxLifetime: config.Duration(cfg.Storage.Postgres.ConnMaxLifetime, 0),
		})
		if err != nil {
			return nil, fmt.Errorf("storage: %w", err)
		}
		a.closers = append(a.closers, s.Close)
		if cfg.Storage.Migrate {
			res, err := s.Migrate(ctx, pg.NewMigrator(migrations.CardsFS, migrations.CardsDir))
			if err != nil {
				return nil, fmt.Errorf("migrate: %w", err)
			}
			log.Info("migrations applied", logger.Count(len(res.Applied)))
		}
		pgs, cards = s, s
		checks["postgres"] = s.Ping
	default:
		cards = memory.NewCardStore()
	}

	// ---- issuer keystore ----
	var keysRepo core.SigningKeyRepository
	switch cfg.Issuer.Keystore {
	case "fs":
		pass := os.Getenv(cfg.Issuer.MasterPasswordEnv)
		if pass == "" {
			return nil, fmt.Errorf("issuer: %s is required for the fs keystore", cfg.Issuer.MasterPasswordEnv)
		}
		fs, err := jwt.NewFileSigningKeyStore(cfg.Issuer.KeysDir, pass, p)
		if err != nil {
			return nil, fmt.Errorf("issuer keystore: %w", err)
		}
		keysRepo = fs
	case "postgres":
		keysRepo = pgs
	default:
		keysRepo = jwt.NewMemorySigningKeyStore()
	}
	a.Keystore = jwt.NewPersistentKeystore(keysRepo, p)
	if err := a.Keystore.EnsureBootstrap(ctx); err != nil {
		return nil, fmt.Errorf("issuer bootstrap: %w", err)
	}
	a.Issuer = jwt.NewIssuer(cfg.Issuer.AppID, a.Keystore)
	checks["keystore"] = func(ctx context.Context) error {
		_, _, err := a.Keystore.ActivePublic(ctx)
		return err
	}

	// ---- cache + redis compartido con el rate limiter ----
	var rdb *redis.Client
	cacheTTL := config.Duration(cfg.Cache.Memory.DefaultTTL, 0)
	if cfg.Cache.Kind == "redis" {
		rdb = redis.NewClient(&redis.Options{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
		})
		a.closers = append(a.closers, func() { _ = rdb.Close() })
		if err := rdb.Ping(ctx).Err(); err != nil {
			return nil, fmt.Errorf("redis: %w", err)
		}
		a.Cache = cache.NewRedisFromClient(rdb, cfg.Cache.Redis.Prefix, cacheTTL)
		checks["redis"] = a.Cache.Ping
	} else {
		a.Cache = cache.NewMemory("", cacheTTL)
		a.closers = append(a.closers, func() { _ = a.Cache.Close() })
	}

	limiter := rate.New(rate.Config{
		Enabled: cfg.Rate.Enabled,
		Max:     cfg.Rate.Publish,
		Window:  config.Duration(cfg.Rate.Window, 0),
		Prefix:  cfg.Cache.Redis.Prefix + "rl:",
	}, rdb)

	// ---- directorio ----
	svcKey := opts.ServiceKey
	if !svcKey.Valid() {
		k, err := loadServiceKey(cfg, p)
		if err != nil {
			return nil, err
		}
		svcKey = k
	}
	a.Directory = directory.NewService(cards, p, svcKey, cfg.SingleActive())
	a.Directory.SearchLimit = cfg.Directory.SearchLimit
	a.Directory.OutdatedLimit = cfg.Directory.OutdatedLimit
	if pub := a.Directory.ServicePublicKey(); pub != nil {
		log.Info("service signing enabled", logger.KeyID(pub.ID()))
	}

	// ---- validación de tokens ----
	var keys jwt.KeyResolver = a.Keystore
	if cfg.Issuer.JWKSURL != "" {
		keys = jwt.NewRemoteJWKS(cfg.Issuer.JWKSURL, 0)
	}

	// ---- HTTP ----
	var poolFn func() *pgxpool.Pool
	if pgs != nil {
		poolFn = pgs.Pool
	}
	hm, err := mw.NewHTTPMetrics(opts.Registry, poolFn)
	if err != nil {
		return nil, err
	}
	metricsHandler := promhttp.Handler()
	if opts.Gatherer != nil {
		metricsHandler = promhttp.HandlerFor(opts.Gatherer, promhttp.HandlerOpts{})
	}

	deps := router.Deps{
		Cards:          controllers.NewCardsController(a.Directory),
		Health:         controllers.NewHealthController(opts.Version, checks),
		JWKS:           controllers.NewJWKSController(a.Keystore),
		Auth:           mw.AuthConfig{Keys: keys, AppID: cfg.Issuer.AppID},
		RateLimiter:    limiter,
		Metrics:        hm,
		MetricsHandler: metricsHandler,
	}
	if cfg.Issuer.DevEndpoint {
		deps.Token = controllers.NewTokenController(a.Issuer, config.Duration(cfg.Issuer.AccessTTL, 0))
		log.Warn("dev token endpoint enabled")
	}
	a.Handler = router.New(deps)

	ok = true
	return a, nil
}

// Close libera recursos en orden inverso.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
	a.closers = nil
}

// loadServiceKey lee la privada del servicio (base64 de la exportación con password).
// Sin path configurado, en dev genera una efímera; en otros entornos no firma.
func loadServiceKey(cfg *config.Config, p crypto.Provider) (crypto.PrivateKey, error) {
	if cfg.Directory.ServiceKeyPath == "" {
		if cfg.App.Env != "dev" {
			return nil, nil
		}
		kp, err := p.GenerateKeyPair()
		if err != nil {
			return nil, err
		}
		logger.Named("app").Warn("using ephemeral service key", logger.KeyID(kp.Public.ID()))
		return kp.Private, nil
	}
	b, err := os.ReadFile(cfg.Directory.ServiceKeyPath)
	if err != nil {
		return nil, fmt.Errorf("service key: %w", err)
	}
	data, err := base64.StdEncoding.DecodeString(strings.TrimSpace(string(b)))
	if err != nil {
		return nil, fmt.Errorf("service key: %w", err)
	}
	priv, err := p.ImportPrivateKey(data, os.Getenv(cfg.Directory.ServiceKeyPasswordEnv))
	if err != nil {
		if errors.Is(err, crypto.ErrDecrypt) {
			return nil, fmt.Errorf("service key: wrong password (%s)", cfg.Directory.ServiceKeyPasswordEnv)
		}
		return nil, fmt.Errorf("service key: %w", err)
	}
	return priv, nil
}
