package pipeline

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/LJTian/DigestHub/internal/classifier"
	"github.com/LJTian/DigestHub/internal/coordination"
	"github.com/LJTian/DigestHub/internal/metrics"
	"github.com/LJTian/DigestHub/internal/notify"
	"github.com/LJTian/DigestHub/internal/storage"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// ErrRunInProgress is returned when a run is triggered while another is active.
var ErrRunInProgress = errors.New("pipeline: run already in progress")

var errEmptySummary = errors.New("empty summary")

type Crawler interface {
	CrawlAllSources(ctx context.Context) (int, error)
}

type ContentClassifier interface {
	Summarize(ctx context.Context, text string) (string, error)
	Classify(ctx context.Context, title, body string, categories []classifier.CategoryOption) (*string, error)
	SummarizeAndClassifyBatch(ctx context.Context, items []classifier.Item, categories []classifier.CategoryOption) ([]classifier.Result, error)
}

type Sender interface {
	Send(ctx context.Context, provider string, creds map[string]any, msg notify.Message) (string, error)
	Supports(provider string) bool
}

type Options struct {
	BatchSize         int
	ProcessLimit      int
	SelectionWindow   time.Duration
	NotifyConcurrency int
}

func (o Options) withDefaults() Options {
	if o.BatchSize <= 0 {
		o.BatchSize = 5
	}
	if o.ProcessLimit <= 0 {
		o.ProcessLimit = 10
	}
	if o.SelectionWindow <= 0 {
		o.SelectionWindow = 24 * time.Hour
	}
	if o.NotifyConcurrency <= 0 {
		o.NotifyConcurrency = 4
	}
	return o
}

// Orchestrator runs crawl, selection, summarization and fan-out as one job.
type Orchestrator struct {
	store      *storage.Store
	crawler    Crawler
	classifier ContentClassifier
	sender     Sender
	lock       *coordination.RunLock
	metrics    *metrics.Metrics
	opts       Options
	log        *zap.Logger

	runMu sync.Mutex
	state stateHolder
}

// NewOrchestrator wires the job. lock may be nil for single-process setups.
func NewOrchestrator(store *storage.Store, crawler Crawler, cls ContentClassifier, sender Sender,
	lock *coordination.RunLock, m *metrics.Metrics, opts Options, logger *zap.Logger) *Orchestrator {
	o := &Orchestrator{
		store:      store,
		crawler:    crawler,
		classifier: cls,
		sender:     sender,
		lock:       lock,
		metrics:    m,
		opts:       opts.withDefaults(),
		log:        logger.With(zap.String("component", "pipeline")),
	}
	o.state.set(StateIdle)
	return o
}

func (o *Orchestrator) State() State { return o.state.get() }

// catalog indexes the categories known at the start of a run.
type catalog struct {
	options []classifier.CategoryOption
	bySlug  map[string]storage.Category
	byID    map[uint]storage.Category
}

func newCatalog(cats []storage.Category) catalog {
	c := catalog{bySlug: make(map[string]storage.Category), byID: make(map[uint]storage.Category)}
	for _, cat := range cats {
		c.options = append(c.options, classifier.CategoryOption{Slug: cat.Slug, Name: cat.Name, Description: cat.Description})
		c.bySlug[cat.Slug] = cat
		c.byID[cat.ID] = cat
	}
	return c
}

func (c catalog) idFor(slug *string) *uint {
	if slug == nil {
		return nil
	}
	cat, ok := c.bySlug[*slug]
	if !ok {
		return nil
	}
	return &cat.ID
}

// processed is an article whose summary has been committed.
type processed struct {
	article storage.Article
	summary *storage.Summary
}

// Run executes one pipeline pass and returns how many articles got a summary.
func (o *Orchestrator) Run(ctx context.Context) (int, error) {
	if !o.runMu.TryLock() {
		return 0, ErrRunInProgress
	}
	defer o.runMu.Unlock()

	var lease *coordination.Lease
	if o.lock != nil {
		var err error
		lease, err = o.lock.Acquire(ctx)
		switch {
		case errors.Is(err, coordination.ErrLockNotAcquired):
			return 0, ErrRunInProgress
		case err != nil:
			// Redis is optional; the in-process lock still serializes runs here.
			o.log.Warn("run lock unavailable, continuing without it", zap.Error(err))
			lease = nil
		default:
			defer func() {
				if err := lease.Release(context.WithoutCancel(ctx)); err != nil {
					o.log.Warn("release run lock", zap.Error(err))
				}
			}()
		}
	}

	start := time.Now()
	n, err := o.run(ctx, lease)
	o.metrics.RunDurationSeconds.Observe(time.Since(start).Seconds())
	o.state.set(StateDone)

	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	o.metrics.RunsTotal.WithLabelValues(outcome).Inc()
	o.log.Info("run finished", zap.Int("processed", n), zap.Duration("took", time.Since(start)), zap.Error(err))
	return n, err
}

func (o *Orchestrator) run(ctx context.Context, lease *coordination.Lease) (int, error) {
	if err := o.store.Ping(ctx); err != nil {
		return 0, fmt.Errorf("store unreachable: %w", err)
	}

	o.state.set(StateCrawling)
	if added, err := o.crawler.CrawlAllSources(ctx); err != nil {
		o.log.Error("crawl failed", zap.Error(err))
	} else {
		o.log.Info("crawl done", zap.Int("new_articles", added))
	}

	o.state.set(StateSelecting)
	since := time.Now().UTC().Add(-o.opts.SelectionWindow)
	articles, err := o.store.SelectUnprocessed(ctx, since, o.opts.ProcessLimit)
	if err != nil {
		return 0, fmt.Errorf("select unprocessed: %w", err)
	}
	if len(articles) == 0 {
		o.log.Info("nothing to process")
		return 0, nil
	}

	cats, err := o.store.ListCategories(ctx)
	if err != nil {
		o.log.Error("list categories", zap.Error(err))
	}
	cat := newCatalog(cats)

	users, err := o.store.ActiveSubscribers(ctx)
	if err != nil {
		o.log.Error("list subscribers", zap.Error(err))
	}

	o.state.set(StateBatching)
	total := 0
	for start := 0; start < len(articles); start += o.opts.BatchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := min(start+o.opts.BatchSize, len(articles))
		batch := articles[start:end]

		// A started batch runs to completion even if the run is cancelled.
		done := o.processBatch(context.WithoutCancel(ctx), batch, cat)
		total += len(done)
		o.log.Info("batch done",
			zap.Int("batch", start/o.opts.BatchSize+1),
			zap.Int("size", len(batch)),
			zap.Int("processed", len(done)))

		o.dispatch(ctx, done, users, cat)

		if lease != nil {
			if err := lease.Extend(ctx); err != nil {
				o.log.Warn("extend run lock", zap.Error(err))
			}
		}
	}
	return total, nil
}

// processBatch tries the batch call first and falls back to one article at a
// time for whatever the batch could not settle.
func (o *Orchestrator) processBatch(ctx context.Context, batch []storage.Article, cat catalog) []processed {
	o.state.set(StateProcessing)

	items := make([]classifier.Item, len(batch))
	for i, a := range batch {
		items[i] = classifier.Item{Title: a.Title, Content: a.Content}
	}

	var (
		done  []processed
		retry []storage.Article
	)
	results, err := o.classifier.SummarizeAndClassifyBatch(ctx, items, cat.options)
	if err == nil {
		err = o.store.WithTx(ctx, func(tx *storage.Store) error {
			done, retry = nil, nil
			for i, a := range batch {
				var res classifier.Result
				if i < len(results) {
					res = results[i]
				}
				if res.Summary == "" {
					retry = append(retry, a)
					continue
				}
				p, err := o.persist(ctx, tx, a, res.Summary, cat.idFor(res.CategorySlug))
				if err != nil {
					return err
				}
				if p != nil {
					done = append(done, *p)
				}
			}
			return nil
		})
	}
	if err != nil {
		o.log.Warn("batch failed, processing individually", zap.Int("size", len(batch)), zap.Error(err))
		o.metrics.BatchFallbacks.Inc()
		done, retry = nil, batch
	}
	o.metrics.ArticlesProcessed.WithLabelValues("batch").Add(float64(len(done)))

	if len(retry) > 0 {
		o.state.set(StateFallback)
	}
	for _, a := range retry {
		p, err := o.processOne(ctx, a, cat)
		if err != nil {
			o.log.Error("article failed", zap.Uint("article_id", a.ID), zap.String("url", a.URL), zap.Error(err))
			continue
		}
		if p != nil {
			done = append(done, *p)
			o.metrics.ArticlesProcessed.WithLabelValues("individual").Inc()
		}
	}
	return done
}

func (o *Orchestrator) processOne(ctx context.Context, a storage.Article, cat catalog) (*processed, error) {
	summary, err := o.classifier.Summarize(ctx, a.Title+"\n\n"+a.Content)
	if err != nil {
		return nil, fmt.Errorf("summarize: %w", err)
	}
	if summary == "" {
		return nil, errEmptySummary
	}

	var slug *string
	if a.CategoryID == nil && len(cat.options) > 0 {
		if slug, err = o.classifier.Classify(ctx, a.Title, a.Content, cat.options); err != nil {
			return nil, fmt.Errorf("classify: %w", err)
		}
	}

	var p *processed
	err = o.store.WithTx(ctx, func(tx *storage.Store) error {
		var err error
		p, err = o.persist(ctx, tx, a, summary, cat.idFor(slug))
		return err
	})
	return p, err
}

// persist assigns the category when the article has none and stores the
// summary. A nil result means another run already summarized the article.
func (o *Orchestrator) persist(ctx context.Context, tx *storage.Store, a storage.Article, summary string, categoryID *uint) (*processed, error) {
	if categoryID != nil && a.CategoryID == nil {
		set, err := tx.AssignCategoryIfUnset(ctx, a.ID, *categoryID)
		if err != nil {
			return nil, fmt.Errorf("assign category: %w", err)
		}
		if set {
			a.CategoryID = categoryID
		} else if a.CategoryID, err = tx.ArticleCategory(ctx, a.ID); err != nil {
			return nil, fmt.Errorf("reload category: %w", err)
		}
	}

	sum, err := tx.CreateSummary(ctx, a.ID, summary)
	if errors.Is(err, storage.ErrConflict) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("create summary: %w", err)
	}
	return &processed{article: a, summary: sum}, nil
}

// dispatch sends every committed article to its recipients and waits for all
// sends to finish.
func (o *Orchestrator) dispatch(ctx context.Context, done []processed, users []storage.User, cat catalog) {
	if len(done) == 0 || len(users) == 0 {
		return
	}

	var g errgroup.Group
	g.SetLimit(o.opts.NotifyConcurrency)

	for _, p := range done {
		msg := notify.Message{
			Title:      p.article.Title,
			Summary:    p.summary.SummaryText,
			URL:        p.article.URL,
			SourceName: p.article.Source.Name,
		}
		if p.article.CategoryID != nil {
			msg.CategoryName = cat.byID[*p.article.CategoryID].Name
		}

		for _, t := range targetsFor(users, p.article.CategoryID) {
			g.Go(func() error {
				o.deliver(ctx, p, t, msg)
				return nil
			})
		}
	}
	_ = g.Wait()
}

func (o *Orchestrator) deliver(ctx context.Context, p processed, t target, msg notify.Message) {
	ch := t.channel
	token, err := o.sender.Send(ctx, ch.Provider, map[string]any(ch.Credentials), msg)
	if err != nil {
		fields := []zap.Field{
			zap.Uint("user_id", t.user.ID),
			zap.Uint("channel_id", ch.ID),
			zap.String("provider", ch.Provider),
			zap.Uint("article_id", p.article.ID),
			zap.Error(err),
		}
		var de *notify.DeliveryError
		if errors.As(err, &de) {
			fields = append(fields, zap.Int("status", de.StatusCode))
		}
		o.log.Warn("notification failed", fields...)
		o.metrics.NotificationsSent.WithLabelValues(ch.Provider, "error").Inc()
		return
	}
	if !o.sender.Supports(ch.Provider) {
		return
	}
	o.metrics.NotificationsSent.WithLabelValues(ch.Provider, "ok").Inc()

	d := &storage.Delivery{SummaryID: p.summary.ID, ChannelID: ch.ID, Provider: ch.Provider, Token: token}
	if err := o.store.RecordDelivery(context.WithoutCancel(ctx), d); err != nil {
		o.log.Warn("record delivery", zap.Uint("channel_id", ch.ID), zap.Error(err))
	}
}
