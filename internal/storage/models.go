package storage

import (
	"time"

	"gorm.io/datatypes"
)

// Source is a configured news origin.
type Source struct {
	ID   uint   `gorm:"primaryKey" json:"id"`
	Slug string `gorm:"size:255;uniqueIndex;not null" json:"slug"`
	Name string `gorm:"size:255;index;not null" json:"name"`
	URL  string `gorm:"size:500;uniqueIndex;not null" json:"url"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

type Category struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Name        string `gorm:"size:100;uniqueIndex;not null" json:"name"`
	Slug        string `gorm:"size:100;uniqueIndex;not null" json:"slug"`
	Description string `gorm:"type:text" json:"description"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Article is unique by URL across all sources. CategoryID stays nil until the
// classifier assigns one, and is written at most once.
type Article struct {
	ID          uint       `gorm:"primaryKey" json:"id"`
	URL         string     `gorm:"size:500;uniqueIndex;not null" json:"url"`
	Title       string     `gorm:"type:text;not null" json:"title"`
	Content     string     `gorm:"type:text;not null" json:"content"`
	PublishedAt *time.Time `json:"publishedAt"`
	CrawledAt   time.Time  `gorm:"index;not null" json:"crawledAt"`
	SourceID    uint       `gorm:"index;not null" json:"sourceId"`
	CategoryID  *uint      `gorm:"index" json:"categoryId"`

	Source   Source    `json:"source"`
	Category *Category `json:"category,omitempty"`
}

// Summary marks its article as processed; at most one per article.
type Summary struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	ArticleID   uint      `gorm:"uniqueIndex;not null" json:"articleId"`
	SummaryText string    `gorm:"type:text;not null" json:"summaryText"`
	CreatedAt   time.Time `json:"createdAt"`

	Article Article `json:"article"`
}

type User struct {
	ID          uint   `gorm:"primaryKey" json:"id"`
	Email       string `gorm:"size:255;index;not null" json:"email"`
	DisplayName string `gorm:"size:255" json:"displayName"`

	CategoryPreferences  []Category            `gorm:"many2many:user_category_preferences" json:"categoryPreferences"`
	NotificationChannels []NotificationChannel `json:"notificationChannels"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// NotificationChannel is one delivery target of a user; (user, provider) is unique.
type NotificationChannel struct {
	ID          uint              `gorm:"primaryKey" json:"id"`
	UserID      uint              `gorm:"not null;uniqueIndex:uq_user_provider" json:"userId"`
	Provider    string            `gorm:"size:50;not null;uniqueIndex:uq_user_provider" json:"provider"`
	Name        string            `gorm:"size:255" json:"name"`
	Credentials datatypes.JSONMap `gorm:"not null" json:"-"`
	IsActive    bool              `gorm:"not null" json:"isActive"`

	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Delivery records a message accepted by a provider.
type Delivery struct {
	ID        uint   `gorm:"primaryKey"`
	SummaryID uint   `gorm:"index;not null"`
	ChannelID uint   `gorm:"index;not null"`
	Provider  string `gorm:"size:50;not null"`
	Token     string `gorm:"size:100"`
	SentAt    time.Time
}
