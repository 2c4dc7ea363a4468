package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
)

const discordBlurple = 0x5865F2

// Discord posts an embed to a webhook URL.
type Discord struct {
	client *http.Client
}

func (d *Discord) Name() string { return ProviderDiscord }

type discordEmbed struct {
	Title       string         `json:"title"`
	Description string         `json:"description"`
	URL         string         `json:"url,omitempty"`
	Color       int            `json:"color"`
	Fields      []discordField `json:"fields,omitempty"`
	Footer      *discordFooter `json:"footer,omitempty"`
}

type discordField struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Inline bool   `json:"inline"`
}

type discordFooter struct {
	Text string `json:"text"`
}

func (d *Discord) Send(ctx context.Context, creds map[string]any, msg Message) (string, error) {
	webhook := credString(creds, "url")
	if webhook == "" {
		return "", fmt.Errorf("%s: %w: url", ProviderDiscord, ErrMissingCredentials)
	}

	embed := discordEmbed{
		Title:       truncate(msg.Title, 256),
		Description: truncate(msg.Summary, 4096),
		URL:         msg.URL,
		Color:       discordBlurple,
		Footer:      &discordFooter{Text: "DigestHub"},
	}
	if msg.SourceName != "" {
		embed.Fields = append(embed.Fields, discordField{Name: labelSource, Value: truncate(msg.SourceName, 1024), Inline: true})
	}
	if msg.CategoryName != "" {
		embed.Fields = append(embed.Fields, discordField{Name: labelCategory, Value: truncate(msg.CategoryName, 1024), Inline: true})
	}

	payload, err := json.Marshal(map[string]any{"embeds": []discordEmbed{embed}})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := d.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return "", &DeliveryError{Provider: ProviderDiscord, StatusCode: resp.StatusCode, Body: readErrorBody(resp)}
	}

	if id := resp.Header.Get("X-Message-Id"); id != "" {
		return id, nil
	}
	// With ?wait=true Discord answers with the created message.
	var created struct {
		ID string `json:"id"`
	}
	if resp.StatusCode == http.StatusOK {
		_ = json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&created)
	}
	return created.ID, nil
}
