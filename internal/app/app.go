// Package app wires the pipeline from configuration for the binaries.
package app

import (
	"context"
	"fmt"
	"time"

	"github.com/LJTian/DigestHub/internal/classifier"
	"github.com/LJTian/DigestHub/internal/collector"
	"github.com/LJTian/DigestHub/internal/config"
	"github.com/LJTian/DigestHub/internal/coordination"
	"github.com/LJTian/DigestHub/internal/metrics"
	"github.com/LJTian/DigestHub/internal/notify"
	"github.com/LJTian/DigestHub/internal/pipeline"
	"github.com/LJTian/DigestHub/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

type App struct {
	Store      *storage.Store
	Metrics    *metrics.Metrics
	Dispatcher *notify.Dispatcher
	Pipeline   *pipeline.Orchestrator
}

// New connects the store and builds the pipeline. reg may be nil.
func New(cfg *config.Config, reg prometheus.Registerer, logger *zap.Logger) (*App, error) {
	store, err := storage.NewStore(cfg.PostgresDSN, cfg.RedisAddr, logger)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	return Assemble(cfg, store, reg, logger), nil
}

// Assemble builds the pipeline on an already opened store.
func Assemble(cfg *config.Config, store *storage.Store, reg prometheus.Registerer, logger *zap.Logger) *App {
	m := metrics.New(reg)

	fetchers := pipeline.CollectorFactory(collector.Options{ArticleLimit: cfg.CrawlArticlesLimit}, logger)
	ingestion := pipeline.NewIngestion(store, fetchers, cfg.FetchConcurrency, m, logger)

	gen := classifier.NewAnthropicGenerator(classifier.AnthropicConfig{
		APIKey:    cfg.AnthropicAPIKey,
		Model:     cfg.AnthropicModel,
		BaseURL:   cfg.AnthropicBaseURL,
		MaxTokens: cfg.AIMaxTokens,
	})
	cls := classifier.New(gen, classifier.Options{
		MaxInputChars:   cfg.MaxInputChars,
		SummaryMaxWords: cfg.SummaryMaxWords,
	}, logger)

	dispatcher := notify.NewDispatcher(notify.Options{TelegramAPIBase: cfg.TelegramAPIBase}, logger)

	var lock *coordination.RunLock
	if store.Redis != nil {
		lock = coordination.NewRunLock(store.Redis, coordination.DefaultRunLockKey, coordination.DefaultLockTTL)
	}

	orch := pipeline.NewOrchestrator(store, ingestion, cls, dispatcher, lock, m, pipeline.Options{
		BatchSize:         cfg.SummaryBatchSize,
		ProcessLimit:      cfg.ProcessLimit,
		SelectionWindow:   cfg.SelectionWindow,
		NotifyConcurrency: cfg.NotifyConcurrency,
	}, logger)

	return &App{Store: store, Metrics: m, Dispatcher: dispatcher, Pipeline: orch}
}

// Seed upserts the configured sources and categories by slug.
func (a *App) Seed(ctx context.Context, seed *config.Seed) error {
	for _, s := range seed.Sources {
		if _, err := a.Store.EnsureSource(ctx, s.Slug, s.Name, s.URL); err != nil {
			return fmt.Errorf("ensure source %s: %w", s.Slug, err)
		}
	}
	for _, c := range seed.Categories {
		if _, err := a.Store.EnsureCategory(ctx, c.Slug, c.Name, c.Description); err != nil {
			return fmt.Errorf("ensure category %s: %w", c.Slug, err)
		}
	}
	return nil
}

// SeedFromFile loads cfg.SeedFile, if any, and applies it.
func (a *App) SeedFromFile(cfg *config.Config) error {
	seed, err := config.LoadSeed(cfg.SeedFile)
	if err != nil {
		return err
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	return a.Seed(ctx, seed)
}

func (a *App) Close() error {
	return a.Store.Close()
}
