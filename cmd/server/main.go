package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"go.uber.org/zap"

	"github.com/bookgate/bookgate/pkg/bookgate/api"
	"github.com/bookgate/bookgate/pkg/bookgate/config"
)

type appEnv struct {
	Environment string `env:"ENVIRONMENT" env-default:"development"`
	JWTSecret   string `env:"JWT_SECRET" env-default:"dev-secret"`
}

func main() {
	var env appEnv
	if err := cleanenv.ReadEnv(&env); err != nil {
		panic(err)
	}

	var logger *zap.Logger
	var err error
	if env.Environment == "production" {
		logger, err = zap.NewProduction()
	} else {
		logger, err = zap.NewDevelopment()
	}
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	cfg, err := config.Load(config.WithEnv(""))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	if cfg.DatabaseType == "postgres" {
		if err := config.PingPostgres(cfg.DatabaseURL, cfg.DBSchema); err != nil {
			logger.Fatal("database not reachable", zap.Error(err))
		}
	}

	svc, err := cfg.BuildService(logger)
	if err != nil {
		logger.Fatal("failed to build service", zap.Error(err))
	}

	jwtSecret := cfg.JWTSecret
	if jwtSecret == "" {
		jwtSecret = env.JWTSecret
	}

	router := api.NewRouter(svc, jwtSecret, logger)

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: router,
	}

	go func() {
		logger.Info("server starting",
			zap.String("port", cfg.Port),
			zap.String("environment", cfg.Environment),
			zap.String("database", cfg.DatabaseType),
			zap.String("storage", cfg.Storage.Type))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	logger.Info("server shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logger.Error("forced shutdown", zap.Error(err))
	}
	logger.Info("server stopped")
}
