package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	gormlogger "gorm.io/gorm/logger"
)

var (
	// ErrConflict means the row already exists (duplicate article URL or summary).
	ErrConflict = errors.New("storage: row already exists")
	// ErrChannelExists means the user already has a channel for that provider.
	ErrChannelExists = errors.New("storage: notification channel already exists for provider")
)

type Store struct {
	DB    *gorm.DB
	Redis *redis.Client

	log *zap.Logger
}

// NewStore opens Postgres, migrates the schema and connects Redis when redisAddr is set.
func NewStore(dsn, redisAddr string, logger *zap.Logger) (*Store, error) {
	var rdb *redis.Client
	if strings.TrimSpace(redisAddr) != "" {
		rdb = redis.NewClient(&redis.Options{Addr: redisAddr})

		ctx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		if err := rdb.Ping(ctx).Err(); err != nil {
			logger.Warn("redis ping failed", zap.String("addr", redisAddr), zap.Error(err))
		}
	}
	return Open(postgres.Open(dsn), rdb, logger)
}

// newGormLogger sends gorm warnings (slow queries, SQL errors) through zap.
// Misses are expected on lookups and stay quiet.
func newGormLogger(logger *zap.Logger) gormlogger.Interface {
	return gormlogger.New(zap.NewStdLog(logger.With(zap.String("component", "gorm"))), gormlogger.Config{
		SlowThreshold:             time.Second,
		LogLevel:                  gormlogger.Warn,
		IgnoreRecordNotFoundError: true,
	})
}

// Open builds a Store on any gorm dialector; rdb may be nil.
func Open(dialector gorm.Dialector, rdb *redis.Client, logger *zap.Logger) (*Store, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	db, err := gorm.Open(dialector, &gorm.Config{
		TranslateError: true,
		NowFunc:        func() time.Time { return time.Now().UTC() },
		Logger:         newGormLogger(logger),
	})
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if err := db.AutoMigrate(
		&Source{}, &Category{}, &Article{}, &Summary{},
		&User{}, &NotificationChannel{}, &Delivery{},
	); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	return &Store{DB: db, Redis: rdb, log: logger.With(zap.String("component", "storage"))}, nil
}

func (s *Store) Close() error {
	if s.Redis != nil {
		_ = s.Redis.Close()
	}
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks that the database answers.
func (s *Store) Ping(ctx context.Context) error {
	sqlDB, err := s.DB.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// WithTx runs fn inside one transaction; fn must only use the Store it is given.
func (s *Store) WithTx(ctx context.Context, fn func(tx *Store) error) error {
	return s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&Store{DB: tx, Redis: s.Redis, log: s.log})
	})
}

// EnsureSource creates the source if its slug is unknown.
func (s *Store) EnsureSource(ctx context.Context, slug, name, url string) (*Source, error) {
	src := &Source{}
	err := s.DB.WithContext(ctx).Where("slug = ?", slug).First(src).Error
	if err == nil {
		return src, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	src = &Source{Slug: slug, Name: name, URL: url}
	if err := s.DB.WithContext(ctx).Create(src).Error; err != nil {
		return nil, fmt.Errorf("create source %s: %w", slug, err)
	}
	return src, nil
}

// EnsureCategory creates the category if its slug is unknown.
func (s *Store) EnsureCategory(ctx context.Context, slug, name, description string) (*Category, error) {
	cat := &Category{}
	err := s.DB.WithContext(ctx).Where("slug = ?", slug).First(cat).Error
	if err == nil {
		return cat, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	cat = &Category{Slug: slug, Name: name, Description: description}
	if err := s.DB.WithContext(ctx).Create(cat).Error; err != nil {
		return nil, fmt.Errorf("create category %s: %w", slug, err)
	}
	return cat, nil
}

func (s *Store) ListSources(ctx context.Context) ([]Source, error) {
	var list []Source
	err := s.DB.WithContext(ctx).Order("id ASC").Find(&list).Error
	return list, err
}

func (s *Store) ListCategories(ctx context.Context) ([]Category, error) {
	var list []Category
	err := s.DB.WithContext(ctx).Order("id ASC").Find(&list).Error
	return list, err
}

func (s *Store) ArticleExists(ctx context.Context, url string) (bool, error) {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&Article{}).Where("url = ?", url).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// InsertArticle stores a new article; ErrConflict when the URL is already known.
func (s *Store) InsertArticle(ctx context.Context, a *Article) error {
	a.Title = toValidUTF8(a.Title)
	a.Content = toValidUTF8(a.Content)
	if a.CrawledAt.IsZero() {
		a.CrawledAt = time.Now().UTC()
	}

	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "url"}}, DoNothing: true}).
		Create(a)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return ErrConflict
		}
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// SelectUnprocessed returns articles crawled since the given time that have no
// summary yet, newest first.
func (s *Store) SelectUnprocessed(ctx context.Context, since time.Time, limit int) ([]Article, error) {
	if limit <= 0 {
		limit = 10
	}
	var list []Article
	err := s.DB.WithContext(ctx).
		Preload("Source").
		Where("crawled_at >= ?", since.UTC()).
		Where("NOT EXISTS (SELECT 1 FROM summaries WHERE summaries.article_id = articles.id)").
		Order("crawled_at DESC").Order("id DESC").
		Limit(limit).
		Find(&list).Error
	return list, err
}

// AssignCategoryIfUnset sets the article category only when none is stored yet.
func (s *Store) AssignCategoryIfUnset(ctx context.Context, articleID, categoryID uint) (bool, error) {
	res := s.DB.WithContext(ctx).Model(&Article{}).
		Where("id = ? AND category_id IS NULL", articleID).
		Update("category_id", categoryID)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ArticleCategory returns the stored category of an article, nil when unset.
func (s *Store) ArticleCategory(ctx context.Context, articleID uint) (*uint, error) {
	var a Article
	if err := s.DB.WithContext(ctx).Select("id", "category_id").First(&a, articleID).Error; err != nil {
		return nil, err
	}
	return a.CategoryID, nil
}

// CreateSummary marks the article processed; ErrConflict if it already was.
func (s *Store) CreateSummary(ctx context.Context, articleID uint, text string) (*Summary, error) {
	sum := &Summary{ArticleID: articleID, SummaryText: toValidUTF8(text)}
	res := s.DB.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: []clause.Column{{Name: "article_id"}}, DoNothing: true}).
		Create(sum)
	if res.Error != nil {
		if errors.Is(res.Error, gorm.ErrDuplicatedKey) {
			return nil, ErrConflict
		}
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, ErrConflict
	}
	return sum, nil
}

// ActiveSubscribers returns users with at least one active channel, preloading
// their preferences and only the active channels.
func (s *Store) ActiveSubscribers(ctx context.Context) ([]User, error) {
	var users []User
	err := s.DB.WithContext(ctx).
		Preload("CategoryPreferences").
		Preload("NotificationChannels", "is_active = ?", true).
		Where("EXISTS (SELECT 1 FROM notification_channels nc WHERE nc.user_id = users.id AND nc.is_active = ?)", true).
		Order("id ASC").
		Find(&users).Error
	return users, err
}

// CreateUser stores a subscriber with preferences resolved from category slugs.
func (s *Store) CreateUser(ctx context.Context, email, displayName string, categorySlugs ...string) (*User, error) {
	u := &User{Email: email, DisplayName: displayName}
	if len(categorySlugs) > 0 {
		if err := s.DB.WithContext(ctx).Where("slug IN ?", categorySlugs).Find(&u.CategoryPreferences).Error; err != nil {
			return nil, err
		}
	}
	if err := s.DB.WithContext(ctx).Create(u).Error; err != nil {
		return nil, fmt.Errorf("create user %s: %w", email, err)
	}
	return u, nil
}

func (s *Store) UserExists(ctx context.Context, id uint) (bool, error) {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&User{}).Where("id = ?", id).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateChannel enforces one channel per (user, provider).
func (s *Store) CreateChannel(ctx context.Context, ch *NotificationChannel) error {
	var n int64
	if err := s.DB.WithContext(ctx).Model(&NotificationChannel{}).
		Where("user_id = ? AND provider = ?", ch.UserID, ch.Provider).
		Count(&n).Error; err != nil {
		return err
	}
	if n > 0 {
		return ErrChannelExists
	}

	if err := s.DB.WithContext(ctx).Create(ch).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrChannelExists
		}
		return err
	}
	return nil
}

func (s *Store) RecordDelivery(ctx context.Context, d *Delivery) error {
	if d.SentAt.IsZero() {
		d.SentAt = time.Now().UTC()
	}
	return s.DB.WithContext(ctx).Create(d).Error
}

func toValidUTF8(s string) string {
	return strings.ToValidUTF8(s, "\uFFFD")
}
