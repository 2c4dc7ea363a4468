package collector

import (
	"context"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
	"go.uber.org/zap"
)

// Feed entries with less inline text than this get their page fetched.
const minFeedContentRunes = 200

var genericContentSelectors = []string{
	"article", ".article-content", ".post-content", ".entry-content",
	"main", "#main-content", ".content",
}

// FeedFetcher reads RSS and Atom feeds.
type FeedFetcher struct {
	opts Options
	log  *zap.Logger
}

func NewFeedFetcher(opts Options, logger *zap.Logger) *FeedFetcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FeedFetcher{
		opts: opts.withDefaults(),
		log:  logger.With(zap.String("component", "collector"), zap.String("site", "feed")),
	}
}

func (f *FeedFetcher) Name() string { return "feed" }

func (f *FeedFetcher) Fetch(ctx context.Context, originURL string) []ArticleRecord {
	feed, err := f.parse(ctx, originURL)
	if err != nil {
		f.log.Error("feed failed", zap.Error(&FetchError{URL: originURL, Err: err}))
		return nil
	}

	out := make([]ArticleRecord, 0, len(feed.Items))
	for _, entry := range feed.Items {
		rec := f.recordFromEntry(ctx, entry)
		if rec != nil {
			out = append(out, *rec)
		}
	}

	f.log.Info("feed crawled", zap.String("url", originURL), zap.Int("articles", len(out)))
	return out
}

// parse bounds only the feed request; page refetches carry their own timeout.
func (f *FeedFetcher) parse(ctx context.Context, originURL string) (*gofeed.Feed, error) {
	ctx, cancel := context.WithTimeout(ctx, f.opts.Timeout)
	defer cancel()

	parser := gofeed.NewParser()
	parser.UserAgent = f.opts.UserAgent
	return parser.ParseURLWithContext(originURL, ctx)
}

func (f *FeedFetcher) recordFromEntry(ctx context.Context, entry *gofeed.Item) *ArticleRecord {
	link := strings.TrimSpace(entry.Link)
	if link == "" && strings.HasPrefix(entry.GUID, "http") {
		link = entry.GUID
	}
	title := cleanText(entry.Title)
	if link == "" || title == "" {
		return nil
	}

	raw := entry.Content
	if strings.TrimSpace(raw) == "" {
		raw = entry.Description
	}
	content := stripHTML(raw)

	if runeLen(content) < minFeedContentRunes {
		if full := f.fetchFullText(ctx, link); runeLen(full) > runeLen(content) {
			content = full
		}
	}

	rec := &ArticleRecord{URL: link, Title: title, Content: content}
	switch {
	case entry.PublishedParsed != nil:
		t := *entry.PublishedParsed
		rec.PublishedAt = &t
	case entry.UpdatedParsed != nil:
		t := *entry.UpdatedParsed
		rec.PublishedAt = &t
	}
	return rec
}

// fetchFullText extracts body text from the linked page: generic containers
// first, then readability, then the whole body.
func (f *FeedFetcher) fetchFullText(ctx context.Context, link string) string {
	doc, err := fetchDocument(ctx, f.opts, link)
	if err != nil {
		f.log.Debug("full article fetch failed", zap.String("url", link), zap.Error(err))
		return ""
	}
	doc.Find("script, style, nav, header, footer").Remove()

	for _, sel := range genericContentSelectors {
		if el := doc.Find(sel).First(); el.Length() > 0 {
			return cleanText(el.Text())
		}
	}

	if text := readabilityText(doc, link); text != "" {
		return text
	}
	return cleanText(doc.Find("body").Text())
}

func readabilityText(doc *goquery.Document, pageURL string) string {
	html, err := doc.Html()
	if err != nil {
		return ""
	}
	parsed, err := url.Parse(pageURL)
	if err != nil {
		return ""
	}
	article, err := readability.FromReader(strings.NewReader(html), parsed)
	if err != nil {
		return ""
	}
	return cleanText(article.TextContent)
}

// stripHTML turns an HTML fragment into collapsed plain text.
func stripHTML(fragment string) string {
	if strings.TrimSpace(fragment) == "" {
		return ""
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(fragment))
	if err != nil {
		return cleanText(fragment)
	}
	doc.Find("script, style").Remove()
	return cleanText(doc.Text())
}
