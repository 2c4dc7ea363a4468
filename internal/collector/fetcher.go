package collector

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// ArticleRecord is one article as extracted from a source, before persistence.
type ArticleRecord struct {
	URL         string
	Title       string
	Content     string
	PublishedAt *time.Time
}

// Fetcher abstracts one kind of news source. Fetch never fails: page errors are
// logged and skipped, and an unreachable source yields an empty slice.
type Fetcher interface {
	Name() string
	Fetch(ctx context.Context, originURL string) []ArticleRecord
}

// SiteKind selects the adapter for a source.
type SiteKind string

const (
	KindFeed       SiteKind = "feed"
	KindThanhNien  SiteKind = "thanhnien"
	KindTuoiTre    SiteKind = "tuoitre"
	KindVietnamNet SiteKind = "vietnamnet"
	KindBBC        SiteKind = "bbc"
)

// KindForSlug maps a source slug to its adapter; unknown slugs are feeds.
func KindForSlug(slug string) SiteKind {
	s := strings.ToLower(strings.TrimSpace(slug))
	switch {
	case s == "bao-thanh-nien":
		return KindThanhNien
	case s == "bao-tuoi-tre", s == "tuoi-tre", strings.Contains(s, "tuoitre"):
		return KindTuoiTre
	case strings.Contains(s, "vietnamnet"):
		return KindVietnamNet
	case strings.Contains(s, "bbc"):
		return KindBBC
	default:
		return KindFeed
	}
}

// FetchError describes a page that could not be retrieved or parsed.
type FetchError struct {
	URL string
	Err error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetch %s: %v", e.URL, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

const (
	defaultUserAgent    = "Mozilla/5.0 (compatible; DigestHubBot/1.0)"
	defaultTimeout      = 30 * time.Second
	defaultArticleLimit = 20
)

type Options struct {
	// ArticleLimit caps article pages visited per site run.
	ArticleLimit int
	Timeout      time.Duration
	UserAgent    string
}

func (o Options) withDefaults() Options {
	if o.ArticleLimit <= 0 {
		o.ArticleLimit = defaultArticleLimit
	}
	if o.Timeout <= 0 {
		o.Timeout = defaultTimeout
	}
	if o.UserAgent == "" {
		o.UserAgent = defaultUserAgent
	}
	return o
}

// New returns the adapter for kind.
func New(kind SiteKind, opts Options, logger *zap.Logger) Fetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	opts = opts.withDefaults()

	switch kind {
	case KindThanhNien:
		return newSiteFetcher(thanhNienProfile, opts, logger)
	case KindTuoiTre:
		return newSiteFetcher(tuoiTreProfile, opts, logger)
	case KindVietnamNet:
		return newSiteFetcher(vietnamNetProfile, opts, logger)
	case KindBBC:
		return newSiteFetcher(bbcProfile, opts, logger)
	default:
		return NewFeedFetcher(opts, logger)
	}
}
