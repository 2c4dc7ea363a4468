package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/DigestHub/internal/app"
	"github.com/LJTian/DigestHub/internal/config"
	"github.com/LJTian/DigestHub/internal/logging"
	"go.uber.org/zap"
)

// Runs a single pipeline pass and exits; handy for cron on the host or manual runs.
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

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	n, err := a.Pipeline.Run(ctx)
	if err != nil {
		logger.Error("run failed", zap.Int("processed", n), zap.Error(err))
		_ = a.Close()
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("run done", zap.Int("processed", n))
}
