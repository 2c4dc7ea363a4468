package collector

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
)

const boilerplateTags = "script, style, nav, header, footer, aside, figure, iframe, noscript"

var errEmptyResponse = errors.New("empty response")

// Article pages larger than this are truncated before parsing.
const maxPageBytes = 4 << 20

func newCollector(ctx context.Context, opts Options) *colly.Collector {
	c := colly.NewCollector(
		colly.StdlibContext(ctx),
		colly.UserAgent(opts.UserAgent),
		colly.MaxBodySize(maxPageBytes),
	)
	c.SetRequestTimeout(opts.Timeout)
	return c
}

// fetchDocument retrieves url and parses it with goquery.
func fetchDocument(ctx context.Context, opts Options, url string) (*goquery.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}

	var (
		doc      *goquery.Document
		parseErr error
	)
	c := newCollector(ctx, opts)
	c.OnResponse(func(r *colly.Response) {
		doc, parseErr = goquery.NewDocumentFromReader(bytes.NewReader(r.Body))
	})

	if err := c.Visit(url); err != nil {
		return nil, &FetchError{URL: url, Err: err}
	}
	if parseErr != nil {
		return nil, &FetchError{URL: url, Err: parseErr}
	}
	if doc == nil {
		return nil, &FetchError{URL: url, Err: errEmptyResponse}
	}
	return doc, nil
}

var spaceRe = regexp.MustCompile(`\s+`)

// cleanText collapses all whitespace runs to single spaces.
func cleanText(s string) string {
	return strings.TrimSpace(spaceRe.ReplaceAllString(s, " "))
}

func runeLen(s string) int { return utf8.RuneCountInString(s) }

// firstText returns the first non-empty match of the ordered selectors. Meta
// selectors read the content attribute.
func firstText(doc *goquery.Document, selectors []string) string {
	for _, sel := range selectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		var text string
		if goquery.NodeName(el) == "meta" {
			text, _ = el.Attr("content")
		} else {
			text = el.Text()
		}
		if text = cleanText(text); text != "" {
			return text
		}
	}
	return ""
}

// paragraphText joins the paragraphs of the first container that yields any,
// dropping short paragraphs and boilerplate phrases.
func paragraphText(doc *goquery.Document, selectors, skipPhrases []string) string {
	doc.Find(boilerplateTags).Remove()

	for _, sel := range selectors {
		el := doc.Find(sel).First()
		if el.Length() == 0 {
			continue
		}
		var texts []string
		el.Find("p").Each(func(_ int, p *goquery.Selection) {
			t := cleanText(p.Text())
			if runeLen(t) <= 10 || containsAny(strings.ToLower(t), skipPhrases) {
				return
			}
			texts = append(texts, t)
		})
		if len(texts) > 0 {
			return strings.Join(texts, " ")
		}
	}
	return ""
}

func containsAny(s string, needles []string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

var timeLayouts = []string{
	time.RFC3339Nano,
	time.RFC3339,
	"2006-01-02T15:04:05-0700",
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// parseTimestamp accepts the ISO-ish forms found in meta tags and time elements.
func parseTimestamp(s string) (time.Time, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, false
	}
	for _, layout := range timeLayouts {
		if t, err := time.Parse(layout, s); err == nil {
			return t, true
		}
	}
	return time.Time{}, false
}

func attrTime(doc *goquery.Document, selector, attr string) *time.Time {
	v, ok := doc.Find(selector).First().Attr(attr)
	if !ok {
		return nil
	}
	if t, ok := parseTimestamp(v); ok {
		return &t
	}
	return nil
}
