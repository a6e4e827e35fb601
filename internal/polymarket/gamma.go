package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// DefaultGammaURL is the production gamma API endpoint.
const DefaultGammaURL = "https://gamma-api.polymarket.com"

// GammaClient is a client for the gamma REST API, the discovery side of
// the venue (events, markets, metadata).
type GammaClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewGammaClient creates a gamma client. Pass nil to use a default
// client with a 10 second timeout.
func NewGammaClient(httpClient *http.Client) *GammaClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &GammaClient{
		httpClient: httpClient,
		baseURL:    DefaultGammaURL,
	}
}

// WithBaseURL overrides the API base URL, mainly for tests.
func (c *GammaClient) WithBaseURL(baseURL string) *GammaClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// EventsBySlug fetches the events published under a market slug. A slug
// that does not exist yields an empty slice, not an error.
func (c *GammaClient) EventsBySlug(ctx context.Context, slug string) ([]Event, error) {
	q := url.Values{"slug": {slug}}
	u := fmt.Sprintf("%s/events?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("gamma: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("gamma: fetch events: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("gamma: unexpected status: %d", resp.StatusCode)
	}

	var events []Event
	if err := json.NewDecoder(resp.Body).Decode(&events); err != nil {
		return nil, fmt.Errorf("gamma: decode events: %w", err)
	}
	return events, nil
}
