package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const digestCacheTTL = time.Minute

// Digest is one processed article as shown by the admin API.
type Digest struct {
	SummaryID uint      `json:"summaryId"`
	ArticleID uint      `json:"articleId"`
	Title     string    `json:"title"`
	URL       string    `json:"url"`
	Summary   string    `json:"summary"`
	Source    string    `json:"source"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"createdAt"`
}

// RecentDigests returns the latest summaries, served from Redis for a minute.
func (s *Store) RecentDigests(ctx context.Context, limit int) ([]Digest, error) {
	if limit <= 0 || limit > 200 {
		limit = 20
	}
	cacheKey := fmt.Sprintf("digest:recent:%d", limit)

	if s.Redis != nil {
		if bs, err := s.Redis.Get(ctx, cacheKey).Bytes(); err == nil {
			var cached []Digest
			if err := json.Unmarshal(bs, &cached); err == nil {
				return cached, nil
			}
		}
	}

	var list []Digest
	err := s.DB.WithContext(ctx).Raw(`
SELECT summaries.id AS summary_id, articles.id AS article_id, articles.title, articles.url,
       summaries.summary_text AS summary, sources.name AS source,
       COALESCE(categories.name, '') AS category, summaries.created_at
FROM summaries
JOIN articles ON articles.id = summaries.article_id
JOIN sources ON sources.id = articles.source_id
LEFT JOIN categories ON categories.id = articles.category_id
ORDER BY summaries.created_at DESC, summaries.id DESC
LIMIT ?`, limit).Scan(&list).Error
	if err != nil {
		return nil, err
	}

	if s.Redis != nil && len(list) > 0 {
		if bs, err := json.Marshal(list); err == nil {
			if err := s.Redis.Set(ctx, cacheKey, bs, digestCacheTTL).Err(); err != nil {
				s.log.Debug("digest cache write failed", zap.Error(err))
			}
		}
	}
	return list, nil
}
