package processor

import (
	"crypto/sha1"
	"encoding/hex"
	"net/url"
	"strings"

	"github.com/LJTian/DigestHub/internal/collector"
)

const (
	maxURLRunes   = 500
	maxTitleRunes = 1000
	// Articles longer than this are cut before storage; the classifier reads far less.
	maxContentRunes = 100000
)

// Normalizer cleans fetched records before persistence.
type Normalizer struct{}

func NewNormalizer() *Normalizer {
	return &Normalizer{}
}

// Process trims and bounds every field and drops records without a usable URL
// or title, plus URLs already seen in this batch.
func (p *Normalizer) Process(items []collector.ArticleRecord) []collector.ArticleRecord {
	out := make([]collector.ArticleRecord, 0, len(items))
	seen := make(map[string]struct{})

	for _, it := range items {
		u := strings.TrimSpace(it.URL)
		if !validURL(u) || len([]rune(u)) > maxURLRunes {
			continue
		}
		id := hashURL(u)
		if _, ok := seen[id]; ok {
			continue
		}

		title := truncateRunes(strings.ToValidUTF8(strings.TrimSpace(it.Title), "\uFFFD"), maxTitleRunes)
		if title == "" {
			continue
		}
		seen[id] = struct{}{}

		published := it.PublishedAt
		if published != nil {
			t := published.UTC()
			published = &t
		}

		out = append(out, collector.ArticleRecord{
			URL:         u,
			Title:       title,
			Content:     truncateRunes(strings.ToValidUTF8(strings.TrimSpace(it.Content), "\uFFFD"), maxContentRunes),
			PublishedAt: published,
		})
	}

	return out
}

func validURL(s string) bool {
	parsed, err := url.Parse(s)
	if err != nil {
		return false
	}
	return (parsed.Scheme == "http" || parsed.Scheme == "https") && parsed.Host != ""
}

func hashURL(url string) string {
	h := sha1.New()
	h.Write([]byte(url))
	return hex.EncodeToString(h.Sum(nil))
}

// truncateRunes cuts s to limit runes and marks the cut with an ellipsis.
func truncateRunes(s string, limit int) string {
	rs := []rune(s)
	if limit <= 0 || len(rs) <= limit {
		return s
	}
	return string(rs[:limit]) + "…"
}
