package collector

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKindForSlug(t *testing.T) {
	cases := map[string]SiteKind{
		"bao-thanh-nien":   KindThanhNien,
		"bao-tuoi-tre":     KindTuoiTre,
		"tuoi-tre":         KindTuoiTre,
		"tuoitre-online":   KindTuoiTre,
		"vietnamnet":       KindVietnamNet,
		"bao-vietnamnet":   KindVietnamNet,
		"bbc-news":         KindBBC,
		"vnexpress":        KindFeed,
		"":                 KindFeed,
		"thanh-nien-rss":   KindFeed,
		" BAO-THANH-NIEN ": KindThanhNien,
	}
	for slug, want := range cases {
		assert.Equal(t, want, KindForSlug(slug), "slug %q", slug)
	}
}

func TestNewPicksAdapter(t *testing.T) {
	assert.Equal(t, "thanhnien", New(KindThanhNien, Options{}, nil).Name())
	assert.Equal(t, "bbc", New(KindBBC, Options{}, nil).Name())
	assert.Equal(t, "feed", New(KindFeed, Options{}, nil).Name())
}

func TestFetchErrorUnwraps(t *testing.T) {
	inner := errors.New("boom")
	err := error(&FetchError{URL: "https://example.com", Err: inner})
	assert.ErrorIs(t, err, inner)
	assert.Contains(t, err.Error(), "https://example.com")
}

func TestArticleURLFilters(t *testing.T) {
	assert.True(t, isTuoiTreArticle("https://tuoitre.vn/gia-vang-tang-20251229222801915.htm"))
	assert.False(t, isTuoiTreArticle("https://tuoitre.vn/tag/gia-vang.htm"))
	assert.False(t, isTuoiTreArticle("https://tuoitre.vn/gia-vang.html"))

	assert.True(t, isVietnamNetArticle("https://vietnamnet.vn/kinh-doanh/gia-xang-giam-2345678.html"))
	assert.False(t, isVietnamNetArticle("https://vietnamnet.vn/video/clip-2345678.html"))
	assert.False(t, isVietnamNetArticle("https://example.com/kinh-doanh/gia-xang-2345678.html"))
	assert.False(t, isVietnamNetArticle("https://vietnamnet.vn/kinh-doanh"))

	assert.True(t, isBBCArticle("https://www.bbc.com/news/world-europe-67812345"))
	assert.True(t, isBBCArticle("https://www.bbc.co.uk/news/articles/c4gxyz12345o"))
	assert.False(t, isBBCArticle("https://www.bbc.com/news/live/world-67812345"))
	assert.False(t, isBBCArticle("https://www.bbc.com/sport/football-67812345"))
	assert.False(t, isBBCArticle("https://www.bbc.com/news/world"))
}

func TestParseTuoiTreDate(t *testing.T) {
	got := parseTuoiTreDate(" 29/12/2025 22:32 GMT+7 ")
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2025, 12, 29, 15, 32, 0, 0, time.UTC)))

	assert.Nil(t, parseTuoiTreDate(""))
	assert.Nil(t, parseTuoiTreDate("yesterday"))
}

func TestURLDates(t *testing.T) {
	got := tuoiTreURLDate("https://tuoitre.vn/gia-vang-tang-20251229222801915.htm")
	require.NotNil(t, got)
	assert.True(t, got.Equal(time.Date(2025, 12, 29, 22, 28, 0, 0, ictZone)))

	got = slashURLDate("https://vietnamnet.vn/2025/01/20/tin-moi.html")
	require.NotNil(t, got)
	assert.Equal(t, 20, got.Day())

	assert.Nil(t, slashURLDate("https://vietnamnet.vn/tin-moi.html"))
}

func TestParseTimestamp(t *testing.T) {
	for _, s := range []string{"2025-12-29T22:32:00+07:00", "2025-12-29T22:32:00Z", "2025-12-29 22:32:00", "2025-12-29"} {
		_, ok := parseTimestamp(s)
		assert.True(t, ok, s)
	}
	_, ok := parseTimestamp("29 Dec")
	assert.False(t, ok)
}
