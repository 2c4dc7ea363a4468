// Package classifier produces article summaries and category labels with a
// generative model, one article at a time or in numbered batches.
package classifier

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"
)

const (
	defaultMaxInputChars   = 4000
	defaultSummaryMaxWords = 200

	systemPrompt = "You write short, factual digests of news articles. " +
		"Always answer in the language the article is written in."
)

// Item is one article handed to the model.
type Item struct {
	Title   string
	Content string
}

// CategoryOption is a category the model may choose.
type CategoryOption struct {
	Slug        string
	Name        string
	Description string
}

// Result pairs a summary with an optional category slug. An empty Summary
// means the model gave nothing usable for that item.
type Result struct {
	Summary      string
	CategorySlug *string
}

type Options struct {
	MaxInputChars   int
	SummaryMaxWords int
}

type Classifier struct {
	gen  Generator
	opts Options
	log  *zap.Logger
}

func New(gen Generator, opts Options, logger *zap.Logger) *Classifier {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.MaxInputChars <= 0 {
		opts.MaxInputChars = defaultMaxInputChars
	}
	if opts.SummaryMaxWords <= 0 {
		opts.SummaryMaxWords = defaultSummaryMaxWords
	}
	return &Classifier{gen: gen, opts: opts, log: logger.With(zap.String("component", "classifier"))}
}

func (c *Classifier) generate(ctx context.Context, prompt string) (string, error) {
	out, err := c.gen.Generate(ctx, systemPrompt, prompt)
	if err != nil {
		return "", &TransportError{Err: err}
	}
	return out, nil
}

// Summarize returns a summary of text, which usually is the title and body joined.
func (c *Classifier) Summarize(ctx context.Context, text string) (string, error) {
	prompt := fmt.Sprintf(
		"Summarize the following news article concisely in at most %d words. Reply with the summary only.\n\n%s",
		c.opts.SummaryMaxWords, c.clip(text))

	out, err := c.generate(ctx, prompt)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(stripFences(out)), nil
}

// Classify picks one of categories for the article, or nil when none fits.
func (c *Classifier) Classify(ctx context.Context, title, body string, categories []CategoryOption) (*string, error) {
	if len(categories) == 0 {
		return nil, nil
	}
	var sb strings.Builder
	sb.WriteString("Choose the single best category for the news article below.\n")
	writeCategories(&sb, categories)
	sb.WriteString("Reply with the category slug only, or none if nothing fits.\n\n")
	fmt.Fprintf(&sb, "Title: %s\nContent: %s\n", title, c.clip(body))

	out, err := c.generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	line := firstLine(stripFences(out))
	if m := categoryLineRe.FindStringSubmatch(line); m != nil {
		line = m[1]
	}
	return coerceSlug(&line, slugSet(categories)), nil
}

// SummarizeBatch summarizes all items with one request. The result always has
// len(items) entries; unusable entries are empty strings.
func (c *Classifier) SummarizeBatch(ctx context.Context, items []Item) ([]string, error) {
	if len(items) == 0 {
		return []string{}, nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize each numbered news article below in at most %d words.\n", c.opts.SummaryMaxWords)
	sb.WriteString(`Respond with JSON only, exactly in this shape: {"results":[{"index":1,"summary":"..."}]}` + "\n\n")
	c.writeItems(&sb, items)

	out, err := c.generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	entries := c.decode(out, len(items), false)
	summaries := make([]string, len(items))
	for i, e := range entries {
		if e != nil && e.Summary != nil {
			summaries[i] = strings.TrimSpace(*e.Summary)
		}
	}
	return summaries, nil
}

// ClassifyBatch labels all items with one request; entries are nil where no
// allowed category was returned.
func (c *Classifier) ClassifyBatch(ctx context.Context, items []Item, categories []CategoryOption) ([]*string, error) {
	slugs := make([]*string, len(items))
	if len(items) == 0 || len(categories) == 0 {
		return slugs, nil
	}
	var sb strings.Builder
	sb.WriteString("Choose the single best category for each numbered news article below.\n")
	writeCategories(&sb, categories)
	sb.WriteString(`Use null when nothing fits. Respond with JSON only, exactly in this shape: {"results":[{"index":1,"category_slug":"..."}]}` + "\n\n")
	c.writeItems(&sb, items)

	out, err := c.generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	allowed := slugSet(categories)
	for i, e := range c.decode(out, len(items), true) {
		if e != nil {
			slugs[i] = coerceSlug(e.CategorySlug, allowed)
		}
	}
	return slugs, nil
}

// SummarizeAndClassifyBatch does both jobs in a single request.
func (c *Classifier) SummarizeAndClassifyBatch(ctx context.Context, items []Item, categories []CategoryOption) ([]Result, error) {
	if len(items) == 0 {
		return []Result{}, nil
	}
	var sb strings.Builder
	fmt.Fprintf(&sb, "Summarize each numbered news article below in at most %d words", c.opts.SummaryMaxWords)
	if len(categories) > 0 {
		sb.WriteString(" and choose the single best category for it.\n")
		writeCategories(&sb, categories)
		sb.WriteString("Use null for category_slug when nothing fits.\n")
	} else {
		sb.WriteString(". Set category_slug to null.\n")
	}
	sb.WriteString(`Respond with JSON only, exactly in this shape: {"results":[{"index":1,"summary":"...","category_slug":"..."}]}` + "\n\n")
	c.writeItems(&sb, items)

	out, err := c.generate(ctx, sb.String())
	if err != nil {
		return nil, err
	}

	allowed := slugSet(categories)
	results := make([]Result, len(items))
	for i, e := range c.decode(out, len(items), false) {
		if e == nil {
			continue
		}
		if e.Summary != nil {
			results[i].Summary = strings.TrimSpace(*e.Summary)
		}
		results[i].CategorySlug = coerceSlug(e.CategorySlug, allowed)
	}
	return results, nil
}

// decode parses the JSON protocol and falls back to line extraction.
func (c *Classifier) decode(raw string, n int, slugsOnly bool) []*batchEntry {
	entries, err := parseBatch(raw, n)
	if err == nil {
		return entries
	}
	var fe *FormatError
	if errors.As(err, &fe) {
		c.log.Warn("batch response not JSON, using line fallback",
			zap.Error(fe), zap.Int("items", n), zap.Int("raw_len", len(fe.Raw)))
	}
	return parseLines(raw, n, slugsOnly)
}

func (c *Classifier) writeItems(sb *strings.Builder, items []Item) {
	for i, it := range items {
		fmt.Fprintf(sb, "Article %d\nTitle: %s\nContent: %s\n\n", i+1, strings.TrimSpace(it.Title), c.clip(it.Content))
	}
}

func (c *Classifier) clip(s string) string {
	s = strings.TrimSpace(s)
	rs := []rune(s)
	if len(rs) <= c.opts.MaxInputChars {
		return s
	}
	return string(rs[:c.opts.MaxInputChars])
}

func writeCategories(sb *strings.Builder, categories []CategoryOption) {
	sb.WriteString("Categories (slug: name):\n")
	for _, cat := range categories {
		fmt.Fprintf(sb, "- %s: %s", cat.Slug, cat.Name)
		if cat.Description != "" {
			fmt.Fprintf(sb, " (%s)", cat.Description)
		}
		sb.WriteString("\n")
	}
}

func slugSet(categories []CategoryOption) map[string]struct{} {
	set := make(map[string]struct{}, len(categories))
	for _, cat := range categories {
		set[strings.ToLower(strings.TrimSpace(cat.Slug))] = struct{}{}
	}
	return set
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return s[:i]
	}
	return s
}
