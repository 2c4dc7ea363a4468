// Package notify delivers article digests to chat providers.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
	"unicode/utf8"

	"go.uber.org/zap"
)

const (
	ProviderDiscord  = "discord_webhook"
	ProviderTelegram = "telegram_bot"
	ProviderSlack    = "slack_webhook"

	defaultTelegramAPIBase = "https://api.telegram.org"
	maxErrorBody           = 512

	labelSource   = "Nguồn"
	labelCategory = "Chuyên mục"
	labelReadMore = "Xem thêm"
)

// Message is the digest of one article.
type Message struct {
	Title        string
	Summary      string
	URL          string
	SourceName   string
	CategoryName string
}

// Provider sends a message with one channel's credentials and returns the
// provider's delivery token.
type Provider interface {
	Name() string
	Send(ctx context.Context, creds map[string]any, msg Message) (string, error)
}

var ErrMissingCredentials = errors.New("notify: missing credentials")

// DeliveryError is a non-success answer from a provider.
type DeliveryError struct {
	Provider   string
	StatusCode int
	Body       string
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("notify %s: status %d: %s", e.Provider, e.StatusCode, e.Body)
}

type Options struct {
	TelegramAPIBase string
	Timeout         time.Duration
}

// Dispatcher routes messages to the provider named by a channel.
type Dispatcher struct {
	providers map[string]Provider
	log       *zap.Logger
}

func NewDispatcher(opts Options, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	if opts.TelegramAPIBase == "" {
		opts.TelegramAPIBase = defaultTelegramAPIBase
	}
	client := &http.Client{Timeout: opts.Timeout}

	d := &Dispatcher{
		providers: make(map[string]Provider),
		log:       logger.With(zap.String("component", "notify")),
	}
	d.Register(&Discord{client: client})
	d.Register(&Telegram{client: client, apiBase: opts.TelegramAPIBase})
	d.Register(&Slack{client: client})
	return d
}

func (d *Dispatcher) Register(p Provider) {
	d.providers[p.Name()] = p
}

func (d *Dispatcher) Supports(provider string) bool {
	_, ok := d.providers[provider]
	return ok
}

// Send delivers msg. Unknown providers are logged and yield an empty token
// without error.
func (d *Dispatcher) Send(ctx context.Context, provider string, creds map[string]any, msg Message) (string, error) {
	p, ok := d.providers[provider]
	if !ok {
		d.log.Warn("unknown provider", zap.String("provider", provider))
		return "", nil
	}
	return p.Send(ctx, creds, msg)
}

// credString reads a credential that may have been stored as a JSON number.
func credString(creds map[string]any, key string) string {
	switch v := creds[key].(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case fmt.Stringer:
		return v.String()
	default:
		return ""
	}
}

func truncate(s string, limit int) string {
	if utf8.RuneCountInString(s) <= limit {
		return s
	}
	return string([]rune(s)[:limit])
}

func readErrorBody(resp *http.Response) string {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	return string(body)
}

func success(code int) bool { return code >= 200 && code < 300 }
