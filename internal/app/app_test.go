package app

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/LJTian/DigestHub/internal/config"
	"github.com/LJTian/DigestHub/internal/notify"
	"github.com/LJTian/DigestHub/internal/pipeline"
	"github.com/LJTian/DigestHub/internal/storage"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
)

func TestAssembleAndSeed(t *testing.T) {
	store, err := storage.Open(sqlite.Open(filepath.Join(t.TempDir(), "app.db")), nil, zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	a := Assemble(&config.Config{}, store, prometheus.NewRegistry(), zap.NewNop())
	assert.Equal(t, pipeline.StateIdle, a.Pipeline.State())
	assert.True(t, a.Dispatcher.Supports(notify.ProviderSlack))

	seed := &config.Seed{
		Sources:    []config.SeedSource{{Slug: "bbc-news", Name: "BBC", URL: "https://www.bbc.com/news"}},
		Categories: []config.SeedCategory{{Slug: "tech", Name: "Technology"}},
	}
	ctx := context.Background()
	require.NoError(t, a.Seed(ctx, seed))
	require.NoError(t, a.Seed(ctx, seed))

	sources, err := store.ListSources(ctx)
	require.NoError(t, err)
	assert.Len(t, sources, 1)
	cats, err := store.ListCategories(ctx)
	require.NoError(t, err)
	assert.Len(t, cats, 1)

	require.NoError(t, a.SeedFromFile(&config.Config{}))
}
