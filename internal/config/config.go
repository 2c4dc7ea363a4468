package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const defaultTimezone = "Asia/Ho_Chi_Minh"

type Config struct {
	AppPort string

	PostgresDSN string
	RedisAddr   string

	// CronSpec wins over CrawlIntervalHours when both are set.
	CronSpec           string
	CrawlIntervalHours int
	Timezone           string

	AnthropicAPIKey  string
	AnthropicModel   string
	AnthropicBaseURL string
	AIMaxTokens      int
	MaxInputChars    int
	SummaryMaxWords  int

	SummaryBatchSize   int
	ProcessLimit       int
	SelectionWindow    time.Duration
	CrawlArticlesLimit int
	FetchConcurrency   int
	NotifyConcurrency  int

	TelegramAPIBase string

	LogLevel string

	BasicAuthUser string
	BasicAuthPass string

	SeedFile string
}

// Load reads an optional .env file (ENV_PATH or ./.env) and then the process environment.
func Load() *Config {
	envPath := getEnv("ENV_PATH", ".env")
	_ = godotenv.Load(envPath)

	cfg := &Config{
		AppPort:            getEnv("APP_PORT", "9000"),
		PostgresDSN:        getEnv("POSTGRES_DSN", "host=localhost user=digesthub password=digesthub dbname=digesthub port=5432 sslmode=disable TimeZone=UTC"),
		RedisAddr:          getEnv("REDIS_ADDR", ""),
		CronSpec:           getEnv("CRON_SPEC", ""),
		CrawlIntervalHours: getEnvInt("CRAWL_INTERVAL_HOURS", 8),
		Timezone:           getEnv("TIMEZONE", defaultTimezone),
		AnthropicAPIKey:    getEnv("ANTHROPIC_API_KEY", ""),
		AnthropicModel:     getEnv("ANTHROPIC_MODEL", "claude-3-5-haiku-latest"),
		AnthropicBaseURL:   getEnv("ANTHROPIC_BASE_URL", ""),
		AIMaxTokens:        getEnvInt("AI_MAX_TOKENS", 4096),
		MaxInputChars:      getEnvInt("MAX_INPUT_CHARS", 4000),
		SummaryMaxWords:    getEnvInt("SUMMARY_MAX_WORDS", 200),
		SummaryBatchSize:   getEnvInt("SUMMARY_BATCH_SIZE", 5),
		ProcessLimit:       getEnvInt("PROCESS_LIMIT", 10),
		SelectionWindow:    time.Duration(getEnvInt("SELECTION_WINDOW_HOURS", 24)) * time.Hour,
		CrawlArticlesLimit: getEnvInt("CRAWL_ARTICLES_LIMIT", 20),
		FetchConcurrency:   getEnvInt("FETCH_CONCURRENCY", 4),
		NotifyConcurrency:  getEnvInt("NOTIFY_CONCURRENCY", 4),
		TelegramAPIBase:    getEnv("TELEGRAM_API_BASE", "https://api.telegram.org"),
		LogLevel:           getEnv("LOG_LEVEL", "info"),
		BasicAuthUser:      getEnv("APP_BASIC_USER", ""),
		BasicAuthPass:      getEnv("APP_BASIC_PASS", ""),
		SeedFile:           getEnv("SEED_FILE", ""),
	}

	return cfg
}

// Schedule returns the cron expression for the pipeline job.
func (c *Config) Schedule() string {
	if strings.TrimSpace(c.CronSpec) != "" {
		return c.CronSpec
	}
	hours := c.CrawlIntervalHours
	if hours <= 0 {
		hours = 8
	}
	return fmt.Sprintf("@every %dh", hours)
}

// Location resolves Timezone, falling back to UTC+7 when the zone database is missing.
func (c *Config) Location() *time.Location {
	tz := c.Timezone
	if tz == "" {
		tz = defaultTimezone
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return time.FixedZone("ICT", 7*3600)
	}
	return loc
}

func getEnv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func getEnvInt(key string, def int) int {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return def
	}
	return n
}
