package analytics

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sirupsen/logrus"

	"arduino-fleet-backend/config"
)

// Client fetches counter-session pages from the upstream Notion-backed
// integration API.
type Client struct {
	baseURL  string
	endpoint string
	client   *http.Client
}

// NewClient builds an analytics client from config.
func NewClient(cfg *config.AnalyticsConfig) *Client {
	return &Client{
		baseURL:  strings.TrimRight(cfg.BaseURL, "/"),
		endpoint: "/" + strings.TrimLeft(cfg.Endpoint, "/"),
		client:   &http.Client{Timeout: cfg.Timeout},
	}
}

// upstreamResponse is the Notion-shaped envelope the integration returns.
type upstreamResponse struct {
	Results []sessionPage `json:"results"`
}

type sessionPage struct {
	Properties map[string]pageProperty `json:"properties"`
}

type pageProperty struct {
	Title  []titleFragment `json:"title"`
	Number *float64        `json:"number"`
	Date   *dateValue      `json:"date"`
}

type titleFragment struct {
	PlainText string `json:"plain_text"`
}

type dateValue struct {
	Start string `json:"start"`
}

// FetchSessions retrieves the raw session pages and flattens them into
// records. Pages without properties are skipped.
func (c *Client) FetchSessions(ctx context.Context, params url.Values) ([]SessionRecord, error) {
	u := c.baseURL + c.endpoint
	if len(params) > 0 {
		u += "?" + params.Encode()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch counter sessions: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("upstream returned status %d", resp.StatusCode)
	}

	var body upstreamResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("decode counter sessions: %w", err)
	}

	records := flatten(body.Results)
	logrus.WithField("count", len(records)).Debug("Flattened counter session pages")
	return records, nil
}
