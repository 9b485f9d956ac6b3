package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"github.com/dropDatabas3/hellocards/internal/app"
	"github.com/dropDatabas3/hellocards/internal/config"
	httpserver "github.com/dropDatabas3/hellocards/internal/http"
	"github.com/dropDatabas3/hellocards/internal/observability/logger"
)

var version = "dev"

func fileExists(p string) bool {
	if p == "" {
		return false
	}
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}

func main() {
	var (
		flagEnvFile    = flag.String("env-file", ".env", "ruta a .env")
		flagConfigPath = flag.String("config", "", "ruta a config.yaml (vacío => configs/config.yaml si existe)")
	)
	flag.Parse()

	if *flagEnvFile != "" {
		_ = godotenv.Load(*flagEnvFile)
	}

	path := *flagConfigPath
	if path == "" && fileExists("configs/config.yaml") {
		path = "configs/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger.Init(logger.Config{
		Env:         cfg.App.Env,
		Level:       cfg.Log.Level,
		ServiceName: cfg.App.Name,
		Version:     version,
	})
	defer func() { _ = logger.Sync() }()
	lg := logger.Named("main")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, app.Options{Version: version})
	if err != nil {
		lg.Fatal("app init", zap.Error(err))
	}
	defer a.Close()

	srv := httpserver.NewServer(httpserver.ServerConfig{
		Addr:            cfg.Server.Addr,
		ReadTimeout:     config.Duration(cfg.Server.ReadTimeout, 0),
		WriteTimeout:    config.Duration(cfg.Server.WriteTimeout, 0),
		ShutdownTimeout: config.Duration(cfg.Server.ShutdownTimeout, 0),
	}, a.Handler)

	lg.Info("starting", logger.String("env", cfg.App.Env), logger.String("storage", cfg.Storage.Driver),
		logger.String("cache", cfg.Cache.Kind), logger.AppID(cfg.Issuer.AppID))
	if err := srv.Run(ctx); err != nil {
		lg.Error("server stopped", logger.Err(err))
		os.Exit(1)
	}
	lg.Info("bye")
}
