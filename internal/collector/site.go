package collector

import (
	"context"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"
)

const minContentRunes = 100

// siteProfile holds the selectors and URL rules of one news site.
type siteProfile struct {
	name             string
	linkSelectors    []string
	isArticle        func(url string) bool
	titleSelectors   []string
	titleSuffix      *regexp.Regexp
	contentSelectors []string
	skipPhrases      []string
	// extraDate runs after article:published_time and before time[datetime].
	extraDate func(doc *goquery.Document) *time.Time
	urlDate   func(url string) *time.Time
}

// SiteFetcher crawls a site front page and the article pages it links to.
type SiteFetcher struct {
	profile siteProfile
	opts    Options
	log     *zap.Logger
}

func newSiteFetcher(p siteProfile, opts Options, logger *zap.Logger) *SiteFetcher {
	return &SiteFetcher{
		profile: p,
		opts:    opts,
		log:     logger.With(zap.String("component", "collector"), zap.String("site", p.name)),
	}
}

func (f *SiteFetcher) Name() string { return f.profile.name }

func (f *SiteFetcher) Fetch(ctx context.Context, originURL string) []ArticleRecord {
	links, err := f.collectLinks(ctx, originURL)
	if err != nil {
		f.log.Error("index page failed", zap.String("url", originURL), zap.Error(err))
		return nil
	}
	f.log.Info("article links found", zap.String("url", originURL), zap.Int("links", len(links)))

	if len(links) > f.opts.ArticleLimit {
		links = links[:f.opts.ArticleLimit]
	}

	out := make([]ArticleRecord, 0, len(links))
	for _, link := range links {
		if ctx.Err() != nil {
			break
		}
		rec, err := f.fetchArticle(ctx, link)
		if err != nil {
			f.log.Warn("article skipped", zap.String("url", link), zap.Error(err))
			continue
		}
		if rec != nil {
			out = append(out, *rec)
		}
	}

	f.log.Info("site crawled", zap.String("url", originURL), zap.Int("articles", len(out)))
	return out
}

// collectLinks returns candidate article URLs in page order, deduplicated.
func (f *SiteFetcher) collectLinks(ctx context.Context, originURL string) ([]string, error) {
	var (
		links []string
		seen  = make(map[string]struct{})
	)

	c := newCollector(ctx, f.opts)
	for _, sel := range f.profile.linkSelectors {
		c.OnHTML(sel, func(e *colly.HTMLElement) {
			href := strings.TrimSpace(e.Attr("href"))
			if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
				return
			}
			abs := e.Request.AbsoluteURL(href)
			if abs == "" || !f.profile.isArticle(abs) {
				return
			}
			if _, ok := seen[abs]; ok {
				return
			}
			seen[abs] = struct{}{}
			links = append(links, abs)
		})
	}

	if err := c.Visit(originURL); err != nil {
		return nil, &FetchError{URL: originURL, Err: err}
	}
	return links, nil
}

// fetchArticle returns nil without error when the page fails the quality gate.
func (f *SiteFetcher) fetchArticle(ctx context.Context, url string) (*ArticleRecord, error) {
	doc, err := fetchDocument(ctx, f.opts, url)
	if err != nil {
		return nil, err
	}

	title := firstText(doc, f.profile.titleSelectors)
	if f.profile.titleSuffix != nil {
		title = strings.TrimSpace(f.profile.titleSuffix.ReplaceAllString(title, ""))
	}
	if title == "" {
		f.log.Debug("no title", zap.String("url", url))
		return nil, nil
	}

	published := f.publishedAt(doc, url)

	content := paragraphText(doc, f.profile.contentSelectors, f.profile.skipPhrases)
	if runeLen(content) < minContentRunes {
		f.log.Debug("content too short", zap.String("url", url), zap.Int("runes", runeLen(content)))
		return nil, nil
	}

	return &ArticleRecord{URL: url, Title: title, Content: content, PublishedAt: published}, nil
}

// publishedAt tries structured metadata, then visible timestamps, then the URL.
func (f *SiteFetcher) publishedAt(doc *goquery.Document, url string) *time.Time {
	if t := attrTime(doc, "meta[property='article:published_time']", "content"); t != nil {
		return t
	}
	if f.profile.extraDate != nil {
		if t := f.profile.extraDate(doc); t != nil {
			return t
		}
	}
	if t := attrTime(doc, "time[datetime]", "datetime"); t != nil {
		return t
	}
	if f.profile.urlDate != nil {
		return f.profile.urlDate(url)
	}
	return nil
}
