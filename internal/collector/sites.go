package collector

import (
	"net/url"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

// Vietnam sites publish in UTC+7.
var ictZone = time.FixedZone("ICT", 7*3600)

var vietnameseSkipPhrases = []string{
	"đọc thêm", "xem thêm", "liên quan", "tin liên quan",
	"bình luận", "chia sẻ", "đăng ký", "theo dõi",
}

var commonExcludedPaths = []string{
	"/rss", "/sitemap", "/search", "/tag", "/author", "/category",
	"/chuyen-muc", "/danh-muc", "/tim-kiem", "/lien-he",
	"/gioi-thieu", "/quy-dinh", "/chinh-sach",
}

func hasExcludedPath(u string, patterns []string) bool {
	return containsAny(strings.ToLower(u), patterns)
}

var thanhNienProfile = siteProfile{
	name:          "thanhnien",
	linkSelectors: []string{"a.box-category-link-title", "h3.box-title-text a"},
	isArticle: func(u string) bool {
		return strings.HasSuffix(u, ".htm")
	},
	titleSelectors: []string{
		"h1.detail-title", "h1.detail__title", "h1.article-title", "h1",
		".detail-title", "meta[property='og:title']",
	},
	contentSelectors: []string{
		".detail-content", ".detail__content", ".article-content", ".article-body",
		".detail-body", "[class*='detail-content']", "[class*='article-content']",
		"article", "main",
	},
	skipPhrases: vietnameseSkipPhrases,
}

var (
	tuoiTreDateRe = regexp.MustCompile(`-(\d{4})(\d{2})(\d{2})(\d{2})(\d{2})`)
	gmtOffsetRe   = regexp.MustCompile(`\s*GMT\s*([+-]\d{1,2})\s*$`)
)

var tuoiTreProfile = siteProfile{
	name: "tuoitre",
	linkSelectors: []string{
		"a[href*='.htm']", ".box-category-link-title a", ".article-title a",
		"h3 a", "h2 a", ".title-news a", ".box-title-text a",
	},
	isArticle: isTuoiTreArticle,
	titleSelectors: []string{
		"h1.detail-title.article-title", "h1.detail-title", "h1.article-title",
		"h1[data-role='title']", "h1", "meta[property='og:title']", "meta[name='title']",
	},
	contentSelectors: []string{
		".detail-content.afcbc-body", ".detail-content", "[data-role='content']",
		".article-content", ".article-body", ".detail-body", "[class*='detail-content']",
		"[class*='article-content']", "[itemprop='articleBody']", "article", "main",
	},
	skipPhrases: vietnameseSkipPhrases,
	extraDate: func(doc *goquery.Document) *time.Time {
		return parseTuoiTreDate(doc.Find("div[data-role='publishdate']").First().Text())
	},
	urlDate: tuoiTreURLDate,
}

func isTuoiTreArticle(u string) bool {
	if !strings.HasSuffix(u, ".htm") {
		return false
	}
	return !hasExcludedPath(u, commonExcludedPaths)
}

// parseTuoiTreDate reads the "29/12/2025 22:32 GMT+7" byline format.
func parseTuoiTreDate(s string) *time.Time {
	s = cleanText(s)
	if s == "" {
		return nil
	}
	loc := ictZone
	if m := gmtOffsetRe.FindStringSubmatch(s); m != nil {
		if h, err := strconv.Atoi(m[1]); err == nil {
			loc = time.FixedZone("GMT"+m[1], h*3600)
		}
		s = strings.TrimSpace(gmtOffsetRe.ReplaceAllString(s, ""))
	}
	for _, layout := range []string{"02/01/2006 15:04", "2/1/2006 15:04", "02/01/2006"} {
		if t, err := time.ParseInLocation(layout, s, loc); err == nil {
			return &t
		}
	}
	return nil
}

func tuoiTreURLDate(u string) *time.Time {
	m := tuoiTreDateRe.FindStringSubmatch(u)
	if m == nil {
		return nil
	}
	t, err := time.ParseInLocation("200601021504", m[1]+m[2]+m[3]+m[4]+m[5], ictZone)
	if err != nil {
		return nil
	}
	return &t
}

var (
	vietnamNetIDRe   = regexp.MustCompile(`-(\d+)\.html$`)
	slashDateRe      = regexp.MustCompile(`/(\d{4})/(\d{2})/(\d{2})/`)
	vietnamNetSuffix = regexp.MustCompile(`(?i)\s*\|\s*Báo\s+VietNamNet.*$`)
)

var vietnamNetExcluded = append(append([]string{}, commonExcludedPaths...),
	"/thong-tin-toa-soan", "/premium", "/video", "/photo", "/infographic",
	"comment.vietnamnet.vn", "account.vietnamnet.vn", "giamngheobenvung.vietnamnet.vn",
)

var vietnamNetProfile = siteProfile{
	name: "vietnamnet",
	linkSelectors: []string{
		"a[href*='vietnamnet.vn']", "a[href*='.html']", ".box-category-link-title a",
		".article-title a", ".title-news a", "h3 a", "h2 a",
		"[class*='article'] a", "[class*='news'] a", "[class*='item'] a",
	},
	isArticle: isVietnamNetArticle,
	titleSelectors: []string{
		"h1.content-detail-title", "h1.content-title", "h1.detail-title", "h1.article-title",
		"h1[class*='title']", "h1", "meta[property='og:title']", "meta[name='title']",
	},
	titleSuffix: vietnamNetSuffix,
	contentSelectors: []string{
		".main-content.content-detail", ".main-content", ".content-detail",
		"[class*='content-detail']", "[class*='main-content']", ".article-content",
		".article-body", ".detail-body", "[itemprop='articleBody']", "article", "main",
	},
	skipPhrases: append(append([]string{}, vietnameseSkipPhrases...),
		"video liên quan", "ảnh liên quan", "tin cùng chuyên mục"),
	extraDate: func(doc *goquery.Document) *time.Time {
		return attrTime(doc, "meta[property='article:published']", "content")
	},
	urlDate: slashURLDate,
}

func isVietnamNetArticle(u string) bool {
	if !strings.Contains(u, "vietnamnet.vn") || hasExcludedPath(u, vietnamNetExcluded) {
		return false
	}
	if !strings.HasSuffix(u, ".html") {
		return false
	}
	if vietnamNetIDRe.MatchString(u) || slashDateRe.MatchString(u) {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil {
		return false
	}
	return len(parsed.Path) > 10 && strings.Count(parsed.Path, "/") >= 2
}

func slashURLDate(u string) *time.Time {
	m := slashDateRe.FindStringSubmatch(u)
	if m == nil {
		return nil
	}
	t, err := time.ParseInLocation("2006/01/02", m[1]+"/"+m[2]+"/"+m[3], ictZone)
	if err != nil {
		return nil
	}
	return &t
}

var (
	bbcIDRe     = regexp.MustCompile(`-(\d{8,})/?$`)
	bbcDateRe   = regexp.MustCompile(`/news/.*/\d{4}/\d{2}/\d{2}/`)
	bbcSuffixes = regexp.MustCompile(`(?i)\s*[|-]\s*BBC\s+News.*$`)
)

var bbcExcluded = []string{
	"/rss", "/sitemap", "/search", "/tag", "/author", "/category", "/live", "/av/",
	"/sport", "/weather", "/travel", "/culture", "/future", "/worklife", "/reel",
	"/newsround", "/newsbeat", "/topics/", "/correspondents/", "/programmes/",
	"/help", "/terms", "/privacy", "/about", "/contact",
}

var bbcProfile = siteProfile{
	name: "bbc",
	linkSelectors: []string{
		"a[href*='/news/']", "a[href*='bbc.com/news']", "a[href*='bbc.co.uk/news']",
		"[data-testid='topic-promos'] a", "[data-testid='topic-list'] a",
		"article a", "h2 a", "h3 a", "[class*='promo'] a", "[class*='story'] a",
	},
	isArticle: isBBCArticle,
	titleSelectors: []string{
		"h1[data-testid='headline']", "h1[id='main-heading']", "h1.article-headline",
		"h1[class*='headline']", "h1", "meta[property='og:title']", "meta[name='title']",
	},
	titleSuffix: bbcSuffixes,
	contentSelectors: []string{
		"[data-testid='article-body']", "[data-component='text-block']",
		"article[data-testid='article']", "[class*='article-body']", "[class*='story-body']",
		"[class*='article-content']", "[itemprop='articleBody']", "article", "main",
	},
	skipPhrases: []string{
		"read more", "related", "related stories", "comment", "share", "subscribe",
		"follow", "video", "image", "photograph", "getty images", "external links",
		"related topics", "more on this story",
	},
	extraDate: func(doc *goquery.Document) *time.Time {
		return attrTime(doc, "time[data-testid='timestamp']", "datetime")
	},
	urlDate: slashURLDate,
}

func isBBCArticle(u string) bool {
	if !strings.Contains(u, "bbc.com") && !strings.Contains(u, "bbc.co.uk") {
		return false
	}
	if !strings.Contains(u, "/news/") || hasExcludedPath(u, bbcExcluded) {
		return false
	}
	if bbcIDRe.MatchString(u) || bbcDateRe.MatchString(u) {
		return true
	}
	parsed, err := url.Parse(u)
	if err != nil || !strings.HasPrefix(parsed.Path, "/news/") {
		return false
	}
	var segments []string
	for _, s := range strings.Split(parsed.Path, "/") {
		if s != "" {
			segments = append(segments, s)
		}
	}
	return len(segments) >= 2 && len(segments[len(segments)-1]) > 5
}
