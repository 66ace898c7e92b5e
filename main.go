package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/avolkov/slotcore/internal/api"
	"github.com/avolkov/slotcore/internal/audit"
	"github.com/avolkov/slotcore/internal/auth"
	"github.com/avolkov/slotcore/internal/config"
	"github.com/avolkov/slotcore/internal/control"
	"github.com/avolkov/slotcore/internal/database"
	"github.com/avolkov/slotcore/internal/limits"
	"github.com/avolkov/slotcore/internal/rng"
	"github.com/avolkov/slotcore/internal/settlement"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func main() {
	cfg := config.Load()

	logger, err := buildLogger(cfg.Logging)
	if err != nil {
		panic(err)
	}
	defer logger.Sync()

	db, err := database.New(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		logger.Fatal("failed to connect to database", zap.Error(err))
	}
	defer db.Close()

	if err := db.Migrate(); err != nil {
		logger.Fatal("failed to run migrations", zap.Error(err))
	}

	auditSvc := audit.New(db.DB, logger)
	authSvc := auth.New(db.DB, &cfg.Auth, auditSvc)

	controlSvc := control.New(db.DB, auditSvc)
	if err := controlSvc.LoadState(context.Background()); err != nil {
		logger.Fatal("failed to load control state", zap.Error(err))
	}

	rngSvc := rng.New()
	if _, err := rngSvc.HealthCheck(); err != nil {
		logger.Fatal("RNG health check failed", zap.Error(err))
	}

	limitsSvc := limits.New(logger)
	settleSvc := settlement.New(rngSvc, limitsSvc, auditSvc, nil, logger)
	settleSvc.SetLargeWinMultiple(cfg.Game.LargeWinMultiple)
	store := database.NewStore(db, logger)

	// Hourly sweep of expired per-game key-value entries.
	go func() {
		ticker := time.NewTicker(time.Hour)
		defer ticker.Stop()
		for range ticker.C {
			purged, err := store.PurgeExpiredGameData(context.Background())
			if err != nil {
				logger.Error("game data purge failed", zap.Error(err))
				continue
			}
			if purged > 0 {
				logger.Info("expired game data purged", zap.Int64("entries", purged))
			}
		}
	}()

	handler := api.New(authSvc, settleSvc, store, controlSvc, auditSvc, rngSvc, cfg, logger)

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler.SetupRouter(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	go func() {
		logger.Info("server starting", zap.String("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("shutdown failed", zap.Error(err))
	}
}

func buildLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var zc zap.Config
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	} else {
		zc = zap.NewProductionConfig()
	}
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}
