package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

type Config struct {
	App struct {
		// dev | staging | prod
		Env  string `yaml:"env"`
		Name string `yaml:"name"`
	} `yaml:"app"`

	Server struct {
		Addr            string `yaml:"addr"`
		ReadTimeout     string `yaml:"read_timeout"`
		WriteTimeout    string `yaml:"write_timeout"`
		ShutdownTimeout string `yaml:"shutdown_timeout"`
	} `yaml:"server"`

	Storage struct {
		// memory | postgres
		Driver   string `yaml:"driver"`
		DSN      string `yaml:"dsn"`
		Migrate  bool   `yaml:"migrate"`
		Postgres struct {
			MaxOpenConns    int    `yaml:"max_open_conns"`
			MaxIdleConns    int    `yaml:"max_idle_conns"`
			ConnMaxLifetime string `yaml:"conn_max_lifetime"`
		} `yaml:"postgres"`
	} `yaml:"storage"`

	Cache struct {
		// memory | redis
		Kind  string `yaml:"kind"`
		Redis struct {
			Addr     string `yaml:"addr"`
			DB       int    `yaml:"db"`
			Password string `yaml:"password"`
			Prefix   string `yaml:"prefix"`
		} `yaml:"redis"`
		Memory struct {
			DefaultTTL string `yaml:"default_ttl"`
		} `yaml:"memory"`
		// CardTTL: vida de una card en la cache del lookup.
		CardTTL string `yaml:"card_ttl"`
	} `yaml:"cache"`

	Issuer struct {
		AppID string `yaml:"app_id"`
		// memory | fs | postgres
		Keystore          string `yaml:"keystore"`
		KeysDir           string `yaml:"keys_dir"`
		MasterPasswordEnv string `yaml:"master_password_env"`
		AccessTTL         string `yaml:"access_ttl"`
		// DevEndpoint habilita POST /token (solo dev).
		DevEndpoint bool `yaml:"dev_endpoint"`
		// JWKSURL: issuer remoto. Si está vacío el directorio valida contra su propio keystore.
		JWKSURL          string `yaml:"jwks_url"`
		KeyRotationGrace string `yaml:"key_rotation_grace"`
	} `yaml:"issuer"`

	Directory struct {
		ServiceURL       string `yaml:"service_url"`
		ServicePublicKey string `yaml:"service_public_key"` // base64
		// ServiceKeyPath: privada del servicio exportada con password (ver cmd/cardctl keys generate).
		ServiceKeyPath        string `yaml:"service_key_path"`
		ServiceKeyPasswordEnv string `yaml:"service_key_password_env"`
		SingleActiveCard      *bool  `yaml:"single_active_card"`
		SearchLimit           int    `yaml:"search_limit"`
		OutdatedLimit         int    `yaml:"outdated_limit"`
	} `yaml:"directory"`

	Rate struct {
		Enabled bool   `yaml:"enabled"`
		Window  string `yaml:"window"`
		// Publish: máximo de publicaciones por identity en la ventana.
		Publish int `yaml:"publish"`
	} `yaml:"rate"`

	Log struct {
		Level string `yaml:"level"`
	} `yaml:"log"`
}

// Load lee el YAML, aplica defaults y overrides CARDS_*. path vacío => solo defaults + env.
func Load(path string) (*Config, error) {
	var c Config
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, err
		}
		if err := yaml.Unmarshal(b, &c); err != nil {
			return nil, fmt.Errorf("parse %s: %w", path, err)
		}
	}
	c.applyEnvOverrides()
	c.applyDefaults()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Default devuelve una config solo con defaults (tests, harness local).
func Default() *Config {
	var c Config
	c.applyDefaults()
	return &c
}

func (c *Config) applyDefaults() {
	if c.App.Env == "" {
		c.App.Env = "dev"
	}
	if c.App.Name == "" {
		c.App.Name = "cardsvc"
	}
	if c.Server.Addr == "" {
		c.Server.Addr = ":8080"
	}
	if c.Server.ReadTimeout == "" {
		c.Server.ReadTimeout = "10s"
	}
	if c.Server.WriteTimeout == "" {
		c.Server.WriteTimeout = "15s"
	}
	if c.Server.ShutdownTimeout == "" {
		c.Server.ShutdownTimeout = "10s"
	}
	if c.Storage.Driver == "" {
		c.Storage.Driver = "memory"
	}
	if c.Cache.Kind == "" {
		c.Cache.Kind = "memory"
	}
	if c.Cache.Memory.DefaultTTL == "" {
		c.Cache.Memory.DefaultTTL = "2m"
	}
	if c.Cache.Redis.Prefix == "" {
		c.Cache.Redis.Prefix = "cards:"
	}
	if c.Cache.CardTTL == "" {
		c.Cache.CardTTL = "10m"
	}
	if c.Issuer.AppID == "" {
		c.Issuer.AppID = "local"
	}
	if c.Issuer.Keystore == "" {
		c.Issuer.Keystore = "memory"
	}
	if c.Issuer.KeysDir == "" {
		c.Issuer.KeysDir = "./data/keys"
	}
	if c.Issuer.MasterPasswordEnv == "" {
		c.Issuer.MasterPasswordEnv = "CARDS_SIGNING_MASTER_PASSWORD"
	}
	if c.Issuer.AccessTTL == "" {
		c.Issuer.AccessTTL = "15m"
	}
	if c.Issuer.KeyRotationGrace == "" {
		c.Issuer.KeyRotationGrace = "24h"
	}
	if c.Directory.ServiceKeyPasswordEnv == "" {
		c.Directory.ServiceKeyPasswordEnv = "CARDS_SERVICE_KEY_PASSWORD"
	}
	if c.Directory.SingleActiveCard == nil {
		v := true
		c.Directory.SingleActiveCard = &v
	}
	if c.Directory.SearchLimit <= 0 {
		c.Directory.SearchLimit = 50
	}
	if c.Directory.OutdatedLimit <= 0 {
		c.Directory.OutdatedLimit = 1000
	}
	if c.Rate.Window == "" {
		c.Rate.Window = "1m"
	}
	if c.Rate.Publish == 0 {
		c.Rate.Publish = 10
	}
	if c.Log.Level == "" {
		c.Log.Level = "info"
	}
}

// ---- Helpers env ----

func getEnvStr(key string) (string, bool) {
	v := os.Getenv(key)
	return v, v != ""
}

func getEnvInt(key string) (int, bool) {
	if s, ok := getEnvStr(key); ok {
		if i, err := strconv.Atoi(strings.TrimSpace(s)); err == nil {
			return i, true
		}
	}
	return 0, false
}

func getEnvBool(key string) (bool, bool) {
	if s, ok := getEnvStr(key); ok {
		if b, err := strconv.ParseBool(strings.TrimSpace(s)); err == nil {
			return b, true
		}
	}
	return false, false
}

// applyEnvOverrides: pisa el YAML con variables CARDS_*.
func (c *Config) applyEnvOverrides() {
	str := map[string]*string{
		"CARDS_APP_ENV":                  &c.App.Env,
		"CARDS_SERVER_ADDR":              &c.Server.Addr,
		"CARDS_STORAGE_DRIVER":           &c.Storage.Driver,
		"CARDS_STORAGE_DSN":              &c.Storage.DSN,
		"CARDS_CACHE_KIND":               &c.Cache.Kind,
		"CARDS_REDIS_ADDR":               &c.Cache.Redis.Addr,
		"CARDS_REDIS_PASSWORD":           &c.Cache.Redis.Password,
		"CARDS_CACHE_CARD_TTL":           &c.Cache.CardTTL,
		"CARDS_ISSUER_APP_ID":            &c.Issuer.AppID,
		"CARDS_ISSUER_KEYSTORE":          &c.Issuer.Keystore,
		"CARDS_ISSUER_KEYS_DIR":          &c.Issuer.KeysDir,
		"CARDS_ISSUER_ACCESS_TTL":        &c.Issuer.AccessTTL,
		"CARDS_ISSUER_JWKS_URL":          &c.Issuer.JWKSURL,
		"CARDS_DIRECTORY_SERVICE_URL":    &c.Directory.ServiceURL,
		"CARDS_DIRECTORY_SERVICE_PUBKEY": &c.Directory.ServicePublicKey,
		"CARDS_DIRECTORY_SERVICE_KEY":    &c.Directory.ServiceKeyPath,
		"CARDS_RATE_WINDOW":              &c.Rate.Window,
		"CARDS_LOG_LEVEL":                &c.Log.Level,
	}
	for k, dst := range str {
		if v, ok := getEnvStr(k); ok {
			*dst = strings.TrimSpace(v)
		}
	}
	c.App.Env = strings.ToLower(c.App.Env)

	if v, ok := getEnvInt("CARDS_REDIS_DB"); ok {
		c.Cache.Redis.DB = v
	}
	if v, ok := getEnvInt("CARDS_RATE_PUBLISH"); ok {
		c.Rate.Publish = v
	}
	if v, ok := getEnvBool("CARDS_RATE_ENABLED"); ok {
		c.Rate.Enabled = v
	}
	if v, ok := getEnvBool("CARDS_STORAGE_MIGRATE"); ok {
		c.Storage.Migrate = v
	}
	if v, ok := getEnvBool("CARDS_ISSUER_DEV_ENDPOINT"); ok {
		c.Issuer.DevEndpoint = v
	}
	if v, ok := getEnvBool("CARDS_DIRECTORY_SINGLE_ACTIVE_CARD"); ok {
		c.Directory.SingleActiveCard = &v
	}
}

// Validate chequea combinaciones inválidas. Se llama desde Load con defaults ya aplicados.
func (c *Config) Validate() error {
	var errs []error
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			errs = append(errs, errors.New("storage.dsn is required for postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.driver %q not supported", c.Storage.Driver))
	}
	switch c.Cache.Kind {
	case "memory":
	case "redis":
		if c.Cache.Redis.Addr == "" {
			errs = append(errs, errors.New("cache.redis.addr is required for redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("cache.kind %q not supported", c.Cache.Kind))
	}
	switch c.Issuer.Keystore {
	case "memory", "fs":
	case "postgres":
		if c.Storage.Driver != "postgres" {
			errs = append(errs, errors.New("issuer.keystore=postgres requires storage.driver=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("issuer.keystore %q not supported", c.Issuer.Keystore))
	}
	if c.App.Env == "prod" && c.Issuer.DevEndpoint {
		errs = append(errs, errors.New("issuer.dev_endpoint cannot be enabled in prod"))
	}
	for name, v := range map[string]string{
		"server.read_timeout":                c.Server.ReadTimeout,
		"server.write_timeout":               c.Server.WriteTimeout,
		"server.shutdown_timeout":            c.Server.ShutdownTimeout,
		"cache.memory.default_ttl":           c.Cache.Memory.DefaultTTL,
		"cache.card_ttl":                     c.Cache.CardTTL,
		"issuer.access_ttl":                  c.Issuer.AccessTTL,
		"issuer.key_rotation_grace":          c.Issuer.KeyRotationGrace,
		"rate.window":                        c.Rate.Window,
		"storage.postgres.conn_max_lifetime": c.Storage.Postgres.ConnMaxLifetime,
	} {
		if v == "" {
			continue
		}
		if _, err := time.ParseDuration(v); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// Duration parsea un valor ya validado; vacío o inválido => fallback.
func Duration(v string, fallback time.Duration) time.Duration {
	if d, err := time.ParseDuration(strings.TrimSpace(v)); err == nil {
		return d
	}
	return fallback
}

// SingleActive devuelve la política single_active_card (default true).
func (c *Config) SingleActive() bool {
	return c.Directory.SingleActiveCard == nil || *c.Directory.SingleActiveCard
}
