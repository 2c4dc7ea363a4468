package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/LJTian/DigestHub/internal/collector"
	"github.com/LJTian/DigestHub/internal/metrics"
	"github.com/LJTian/DigestHub/internal/processor"
	"github.com/LJTian/DigestHub/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// FetcherFactory returns the adapter for a site kind.
type FetcherFactory func(kind collector.SiteKind) collector.Fetcher

// CollectorFactory builds real adapters with shared options.
func CollectorFactory(opts collector.Options, logger *zap.Logger) FetcherFactory {
	return func(kind collector.SiteKind) collector.Fetcher {
		return collector.New(kind, opts, logger)
	}
}

// Ingestion fetches every source and stores articles whose URL is new.
type Ingestion struct {
	store       *storage.Store
	fetchers    FetcherFactory
	normalizer  *processor.Normalizer
	concurrency int
	metrics     *metrics.Metrics
	log         *zap.Logger

	// writeMu serializes the check-then-insert of articles.
	writeMu sync.Mutex
}

func NewIngestion(store *storage.Store, fetchers FetcherFactory, concurrency int, m *metrics.Metrics, logger *zap.Logger) *Ingestion {
	if concurrency <= 0 {
		concurrency = 4
	}
	return &Ingestion{
		store:       store,
		fetchers:    fetchers,
		normalizer:  processor.NewNormalizer(),
		concurrency: concurrency,
		metrics:     m,
		log:         logger.With(zap.String("component", "ingestion")),
	}
}

// CrawlAllSources returns the number of new articles stored. A failing source
// is logged and skipped; the error return is reserved for listing sources.
func (s *Ingestion) CrawlAllSources(ctx context.Context) (int, error) {
	sources, err := s.store.ListSources(ctx)
	if err != nil {
		return 0, fmt.Errorf("list sources: %w", err)
	}

	var (
		total atomic.Int64
		g     errgroup.Group
	)
	g.SetLimit(s.concurrency)

	for _, src := range sources {
		g.Go(func() error {
			n, err := s.crawlSource(ctx, src)
			if err != nil {
				s.log.Error("source failed", zap.String("source", src.Slug), zap.Error(err))
				return nil
			}
			total.Add(int64(n))
			s.log.Info("source ingested", zap.String("source", src.Slug), zap.Int("new", n))
			return nil
		})
	}
	_ = g.Wait()

	return int(total.Load()), nil
}

func (s *Ingestion) crawlSource(ctx context.Context, src storage.Source) (n int, err error) {
	defer func() {
		if r := recover(); r != nil {
			n, err = 0, fmt.Errorf("adapter panic: %v", r)
		}
	}()

	fetcher := s.fetchers(collector.KindForSlug(src.Slug))
	records := s.normalizer.Process(fetcher.Fetch(ctx, src.URL))
	if len(records) == 0 {
		return 0, nil
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	crawledAt := time.Now().UTC()
	err = s.store.WithTx(ctx, func(tx *storage.Store) error {
		n = 0
		for _, rec := range records {
			exists, err := tx.ArticleExists(ctx, rec.URL)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			article := &storage.Article{
				URL:         rec.URL,
				Title:       rec.Title,
				Content:     rec.Content,
				PublishedAt: rec.PublishedAt,
				CrawledAt:   crawledAt,
				SourceID:    src.ID,
			}
			if err := tx.InsertArticle(ctx, article); err != nil {
				if errors.Is(err, storage.ErrConflict) {
					continue
				}
				return err
			}
			n++
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.metrics.ArticlesIngested.WithLabelValues(src.Slug).Add(float64(n))
	return n, nil
}
