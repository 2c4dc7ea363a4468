package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/DigestHub/internal/api"
	"github.com/LJTian/DigestHub/internal/app"
	"github.com/LJTian/DigestHub/internal/config"
	"github.com/LJTian/DigestHub/internal/logging"
	"github.com/LJTian/DigestHub/internal/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// First run starts a little after boot so the API comes up before the crawl.
const startupDelay = 15 * time.Second

func main() {
	cfg := config.Load()

	logger, err := logging.New(cfg.LogLevel)
	if err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	a, err := app.New(cfg, nil, logger)
	if err != nil {
		logger.Fatal("init app failed", zap.Error(err))
	}
	defer func() { _ = a.Close() }()

	if err := a.SeedFromFile(cfg); err != nil {
		logger.Fatal("seed failed", zap.String("file", cfg.SeedFile), zap.Error(err))
	}

	s, err := scheduler.New(a.Pipeline, scheduler.Options{
		Spec:         cfg.Schedule(),
		Location:     cfg.Location(),
		StartupDelay: startupDelay,
	}, logger)
	if err != nil {
		logger.Fatal("init scheduler failed", zap.String("spec", cfg.Schedule()), zap.Error(err))
	}
	s.Start()

	r := gin.Default()
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}
	api.NewServer(a.Store, s, a.Pipeline, a.Dispatcher, nil, logger).RegisterRoutes(r)

	srv := &http.Server{
		Addr:              ":" + cfg.AppPort,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go func() {
		logger.Info("starting api server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server exit", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown", zap.Error(err))
	}
	if err := s.Shutdown(shutdownCtx); err != nil {
		logger.Warn("scheduler shutdown", zap.Error(err))
	}
}
