package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"unicode/utf8"
)

const (
	telegramMaxText  = 4096
	telegramMaxTitle = 256
)

// Telegram sends a Markdown message through the Bot API.
type Telegram struct {
	client  *http.Client
	apiBase string
}

func (t *Telegram) Name() string { return ProviderTelegram }

func (t *Telegram) Send(ctx context.Context, creds map[string]any, msg Message) (string, error) {
	token := credString(creds, "token")
	chatID := credString(creds, "chat_id")
	if token == "" || chatID == "" {
		return "", fmt.Errorf("%s: %w: token and chat_id", ProviderTelegram, ErrMissingCredentials)
	}

	payload, err := json.Marshal(map[string]any{
		"chat_id":                  chatID,
		"text":                     telegramText(msg),
		"parse_mode":               "Markdown",
		"disable_web_page_preview": false,
	})
	if err != nil {
		return "", err
	}

	endpoint := fmt.Sprintf("%s/bot%s/sendMessage", strings.TrimRight(t.apiBase, "/"), token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		// The URL carries the bot token; keep it out of logs.
		return "", fmt.Errorf("do request: %w", unwrapURLError(err))
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return "", &DeliveryError{Provider: ProviderTelegram, StatusCode: resp.StatusCode, Body: readErrorBody(resp)}
	}

	var out struct {
		Result struct {
			MessageID int64 `json:"message_id"`
		} `json:"result"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil || out.Result.MessageID == 0 {
		return "", nil
	}
	return strconv.FormatInt(out.Result.MessageID, 10), nil
}

// telegramText cuts the summary, never the link or labels, to fit the limit.
func telegramText(msg Message) string {
	head := fmt.Sprintf("*%s*\n\n", truncate(msg.Title, telegramMaxTitle))

	var tail strings.Builder
	fmt.Fprintf(&tail, "\n\n🔗 [%s](%s)", labelReadMore, msg.URL)
	if msg.SourceName != "" {
		fmt.Fprintf(&tail, "\n📰 %s: %s", labelSource, msg.SourceName)
	}
	if msg.CategoryName != "" {
		fmt.Fprintf(&tail, "\n🏷 %s: %s", labelCategory, msg.CategoryName)
	}

	room := max(telegramMaxText-utf8.RuneCountInString(head)-utf8.RuneCountInString(tail.String()), 0)
	return truncate(head+truncate(msg.Summary, room)+tail.String(), telegramMaxText)
}

func unwrapURLError(err error) error {
	var ue *url.Error
	if errors.As(err, &ue) {
		return ue.Err
	}
	return err
}
