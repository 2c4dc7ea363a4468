package storage

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
	"gorm.io/datatypes"
	"gorm.io/driver/sqlite"
)

func newTestStore(t *testing.T, rdb *redis.Client) *Store {
	t.Helper()
	s, err := Open(sqlite.Open(filepath.Join(t.TempDir(), "digest.db")), rdb, zap.NewNop())
	require.NoError(t, err)
	sqlDB, err := s.DB.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })
	return s
}

func seedArticle(t *testing.T, s *Store, src *Source, url string, crawledAt time.Time) *Article {
	t.Helper()
	a := &Article{URL: url, Title: "t " + url, Content: "body", SourceID: src.ID, CrawledAt: crawledAt.UTC()}
	require.NoError(t, s.InsertArticle(context.Background(), a))
	return a
}

func TestEnsureSourceIsIdempotent(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()

	a, err := s.EnsureSource(ctx, "bbc", "BBC", "https://www.bbc.com/news")
	require.NoError(t, err)
	b, err := s.EnsureSource(ctx, "bbc", "BBC again", "https://www.bbc.com/news")
	require.NoError(t, err)
	assert.Equal(t, a.ID, b.ID)
	assert.Equal(t, "BBC", b.Name)
}

func TestInsertArticleDuplicateURL(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	src, err := s.EnsureSource(ctx, "feed", "Feed", "https://example.com/rss")
	require.NoError(t, err)

	seedArticle(t, s, src, "https://example.com/a", time.Now())
	err = s.InsertArticle(ctx, &Article{URL: "https://example.com/a", Title: "dup", Content: "x", SourceID: src.ID})
	assert.ErrorIs(t, err, ErrConflict)

	ok, err := s.ArticleExists(ctx, "https://example.com/a")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestSelectUnprocessedSkipsSummarizedAndOld(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	src, err := s.EnsureSource(ctx, "feed", "Feed", "https://example.com/rss")
	require.NoError(t, err)

	now := time.Now().UTC()
	old := seedArticle(t, s, src, "https://example.com/old", now.Add(-48*time.Hour))
	done := seedArticle(t, s, src, "https://example.com/done", now.Add(-2*time.Hour))
	older := seedArticle(t, s, src, "https://example.com/older", now.Add(-3*time.Hour))
	newest := seedArticle(t, s, src, "https://example.com/newest", now.Add(-time.Minute))

	_, err = s.CreateSummary(ctx, done.ID, "already")
	require.NoError(t, err)

	list, err := s.SelectUnprocessed(ctx, now.Add(-24*time.Hour), 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newest.ID, list[0].ID)
	assert.Equal(t, older.ID, list[1].ID)
	assert.Equal(t, "feed", list[0].Source.Slug)
	for _, a := range list {
		assert.NotEqual(t, old.ID, a.ID)
	}

	limited, err := s.SelectUnprocessed(ctx, now.Add(-24*time.Hour), 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)
}

func TestCreateSummaryOncePerArticle(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	src, err := s.EnsureSource(ctx, "feed", "Feed", "https://example.com/rss")
	require.NoError(t, err)
	a := seedArticle(t, s, src, "https://example.com/a", time.Now())

	_, err = s.CreateSummary(ctx, a.ID, "first")
	require.NoError(t, err)
	_, err = s.CreateSummary(ctx, a.ID, "second")
	assert.ErrorIs(t, err, ErrConflict)
}

func TestAssignCategoryIfUnsetKeepsFirst(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	src, err := s.EnsureSource(ctx, "feed", "Feed", "https://example.com/rss")
	require.NoError(t, err)
	tech, err := s.EnsureCategory(ctx, "tech", "Tech", "")
	require.NoError(t, err)
	sports, err := s.EnsureCategory(ctx, "sports", "Sports", "")
	require.NoError(t, err)
	a := seedArticle(t, s, src, "https://example.com/a", time.Now())

	set, err := s.AssignCategoryIfUnset(ctx, a.ID, tech.ID)
	require.NoError(t, err)
	assert.True(t, set)

	set, err = s.AssignCategoryIfUnset(ctx, a.ID, sports.ID)
	require.NoError(t, err)
	assert.False(t, set)

	got, err := s.ArticleCategory(ctx, a.ID)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, tech.ID, *got)
}

func TestEnsureLookupMissIsNotLogged(t *testing.T) {
	core, logs := observer.New(zap.DebugLevel)
	s, err := Open(sqlite.Open(filepath.Join(t.TempDir(), "quiet.db")), nil, zap.New(core))
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	ctx := context.Background()

	_, err = s.EnsureSource(ctx, "new-source", "New", "https://new.example.com/rss")
	require.NoError(t, err)
	_, err = s.EnsureCategory(ctx, "tech", "Tech", "")
	require.NoError(t, err)

	assert.Zero(t, logs.FilterMessageSnippet("record not found").Len())
}

func TestWithTxRollsBack(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	src, err := s.EnsureSource(ctx, "feed", "Feed", "https://example.com/rss")
	require.NoError(t, err)
	a := seedArticle(t, s, src, "https://example.com/a", time.Now())

	err = s.WithTx(ctx, func(tx *Store) error {
		if _, err := tx.CreateSummary(ctx, a.ID, "draft"); err != nil {
			return err
		}
		return assert.AnError
	})
	require.ErrorIs(t, err, assert.AnError)

	list, err := s.SelectUnprocessed(ctx, time.Now().Add(-time.Hour), 10)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestCreateChannelRejectsSecondForProvider(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	u, err := s.CreateUser(ctx, "a@example.com", "A")
	require.NoError(t, err)

	first := &NotificationChannel{UserID: u.ID, Provider: "discord_webhook", IsActive: true,
		Credentials: datatypes.JSONMap{"url": "https://discord.example/hook"}}
	require.NoError(t, s.CreateChannel(ctx, first))

	second := &NotificationChannel{UserID: u.ID, Provider: "discord_webhook", IsActive: true,
		Credentials: datatypes.JSONMap{"url": "https://discord.example/other"}}
	assert.ErrorIs(t, s.CreateChannel(ctx, second), ErrChannelExists)

	other := &NotificationChannel{UserID: u.ID, Provider: "slack_webhook", IsActive: true,
		Credentials: datatypes.JSONMap{"url": "https://slack.example/hook"}}
	assert.NoError(t, s.CreateChannel(ctx, other))
}

func TestActiveSubscribersFiltersInactive(t *testing.T) {
	s := newTestStore(t, nil)
	ctx := context.Background()
	_, err := s.EnsureCategory(ctx, "tech", "Tech", "")
	require.NoError(t, err)

	alice, err := s.CreateUser(ctx, "alice@example.com", "Alice", "tech")
	require.NoError(t, err)
	bob, err := s.CreateUser(ctx, "bob@example.com", "Bob")
	require.NoError(t, err)
	_, err = s.CreateUser(ctx, "carol@example.com", "Carol")
	require.NoError(t, err)

	require.NoError(t, s.CreateChannel(ctx, &NotificationChannel{UserID: alice.ID, Provider: "slack_webhook", IsActive: true,
		Credentials: datatypes.JSONMap{"url": "x"}}))
	require.NoError(t, s.CreateChannel(ctx, &NotificationChannel{UserID: alice.ID, Provider: "discord_webhook", IsActive: false,
		Credentials: datatypes.JSONMap{"url": "y"}}))
	require.NoError(t, s.CreateChannel(ctx, &NotificationChannel{UserID: bob.ID, Provider: "discord_webhook", IsActive: false,
		Credentials: datatypes.JSONMap{"url": "z"}}))

	users, err := s.ActiveSubscribers(ctx)
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, alice.ID, users[0].ID)
	require.Len(t, users[0].NotificationChannels, 1)
	assert.Equal(t, "slack_webhook", users[0].NotificationChannels[0].Provider)
	assert.Equal(t, "x", users[0].NotificationChannels[0].Credentials["url"])
	require.Len(t, users[0].CategoryPreferences, 1)
	assert.Equal(t, "tech", users[0].CategoryPreferences[0].Slug)
}

func TestRecentDigestsUsesCache(t *testing.T) {
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	s := newTestStore(t, rdb)
	ctx := context.Background()

	src, err := s.EnsureSource(ctx, "feed", "Feed", "https://example.com/rss")
	require.NoError(t, err)
	a := seedArticle(t, s, src, "https://example.com/a", time.Now())
	_, err = s.CreateSummary(ctx, a.ID, "short digest")
	require.NoError(t, err)

	list, err := s.RecentDigests(ctx, 5)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, "short digest", list[0].Summary)
	assert.Equal(t, "Feed", list[0].Source)
	assert.Empty(t, list[0].Category)
	assert.True(t, mr.Exists("digest:recent:5"))

	b := seedArticle(t, s, src, "https://example.com/b", time.Now())
	_, err = s.CreateSummary(ctx, b.ID, "second digest")
	require.NoError(t, err)

	cached, err := s.RecentDigests(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, cached, 1)

	mr.FastForward(2 * time.Minute)
	fresh, err := s.RecentDigests(ctx, 5)
	require.NoError(t, err)
	assert.Len(t, fresh, 2)
}
