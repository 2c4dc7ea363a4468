package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
)

// Slack posts Block Kit blocks to an incoming webhook.
type Slack struct {
	client *http.Client
}

func (s *Slack) Name() string { return ProviderSlack }

type slackText struct {
	Type string `json:"type"`
	Text string `json:"text"`
}

type slackElement struct {
	Type string     `json:"type"`
	Text *slackText `json:"text,omitempty"`
	URL  string     `json:"url,omitempty"`
}

type slackBlock struct {
	Type     string     `json:"type"`
	Text     *slackText `json:"text,omitempty"`
	Elements []any      `json:"elements,omitempty"`
}

func slackBlocks(msg Message) []slackBlock {
	section := msg.Summary
	if section == "" {
		section = msg.Title
	}
	meta := "📰 *" + labelSource + ":* " + msg.SourceName
	if msg.CategoryName != "" {
		meta += "  🏷 *" + labelCategory + ":* " + msg.CategoryName
	}

	return []slackBlock{
		{Type: "header", Text: &slackText{Type: "plain_text", Text: truncate(msg.Title, 150)}},
		{Type: "section", Text: &slackText{Type: "mrkdwn", Text: truncate(section, 3000)}},
		{Type: "context", Elements: []any{slackText{Type: "mrkdwn", Text: meta}}},
		{Type: "actions", Elements: []any{slackElement{
			Type: "button",
			Text: &slackText{Type: "plain_text", Text: labelReadMore},
			URL:  msg.URL,
		}}},
	}
}

func (s *Slack) Send(ctx context.Context, creds map[string]any, msg Message) (string, error) {
	webhook := credString(creds, "url")
	if webhook == "" {
		return "", fmt.Errorf("%s: %w: url", ProviderSlack, ErrMissingCredentials)
	}

	payload, err := json.Marshal(map[string]any{"blocks": slackBlocks(msg)})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, webhook, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("new request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("do request: %w", err)
	}
	defer resp.Body.Close()

	if !success(resp.StatusCode) {
		return "", &DeliveryError{Provider: ProviderSlack, StatusCode: resp.StatusCode, Body: readErrorBody(resp)}
	}
	return "slack_message", nil
}
