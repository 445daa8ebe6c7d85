package notion

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"arduino-fleet-backend/config"
)

// Mode selects how a log entry lands in Notion.
type Mode string

const (
	ModeCreatePage Mode = "create_page"
	ModeAppend     Mode = "append"
)

// Client is a thin wrapper over the Notion REST API used by the log relay.
// Only the two write paths the relay needs are implemented.
type Client struct {
	baseURL   string
	apiKey    string
	version   string
	logPageID string
	client    *http.Client
}

// NewClient builds a client from the notion config section.
func NewClient(cfg *config.NotionConfig) *Client {
	return &Client{
		baseURL:   strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:    cfg.APIKey,
		version:   cfg.Version,
		logPageID: cfg.LogPageID,
		client:    &http.Client{Timeout: 30 * time.Second},
	}
}

// Configured reports whether the relay has a usable target.
func (c *Client) Configured() bool {
	return c.apiKey != "" && c.logPageID != ""
}

// Relay sends a device log entry to Notion. pageID overrides the
// configured default target; mode defaults to create_page.
func (c *Client) Relay(ctx context.Context, source string, payload map[string]any, mode Mode, pageID string) (int, error) {
	target := pageID
	if target == "" {
		target = c.logPageID
	}
	if target == "" {
		return 0, fmt.Errorf("no notion target page configured")
	}

	content := fmt.Sprintf("Source: %s | Payload: %v", source, payload)
	paragraph := map[string]any{
		"object": "block",
		"type":   "paragraph",
		"paragraph": map[string]any{
			"rich_text": []map[string]any{
				{"type": "text", "text": map[string]any{"content": content}},
			},
		},
	}

	switch mode {
	case ModeAppend:
		body := map[string]any{"children": []map[string]any{paragraph}}
		return c.do(ctx, http.MethodPatch, fmt.Sprintf("%s/blocks/%s/children", c.baseURL, target), body)
	case ModeCreatePage, "":
		body := map[string]any{
			"parent": map[string]any{"page_id": target},
			"properties": map[string]any{
				"title": []map[string]any{
					{"type": "text", "text": map[string]any{"content": fmt.Sprintf("Log from %s", source)}},
				},
			},
			"children": []map[string]any{paragraph},
		}
		return c.do(ctx, http.MethodPost, c.baseURL+"/pages", body)
	default:
		return 0, fmt.Errorf("unsupported notion mode: %s", mode)
	}
}

func (c *Client) do(ctx context.Context, method, url string, body map[string]any) (int, error) {
	raw, err := json.Marshal(body)
	if err != nil {
		return 0, fmt.Errorf("marshal notion request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(raw))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Notion-Version", c.version)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("notion request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		logrus.WithFields(logrus.Fields{
			"status": resp.StatusCode,
			"body":   string(msg),
		}).Warn("Notion rejected relay request")
	}
	return resp.StatusCode, nil
}
