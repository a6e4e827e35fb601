package polymarket

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultClobURL is the production CLOB API endpoint.
const DefaultClobURL = "https://clob.polymarket.com"

// msThreshold separates unix seconds from unix milliseconds: upstream
// timestamps below it are seconds and get scaled up.
const msThreshold = int64(1e12)

// ClobClient is a read-only client for the CLOB REST API, the trading
// side of the venue (books, prices, trade history).
type ClobClient struct {
	httpClient *http.Client
	baseURL    string
}

// NewClobClient creates a CLOB client. Pass nil to use a default client
// with a 10 second timeout.
func NewClobClient(httpClient *http.Client) *ClobClient {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	return &ClobClient{
		httpClient: httpClient,
		baseURL:    DefaultClobURL,
	}
}

// WithBaseURL overrides the API base URL, mainly for tests.
func (c *ClobClient) WithBaseURL(baseURL string) *ClobClient {
	c.baseURL = strings.TrimRight(baseURL, "/")
	return c
}

// Midpoint returns the current book midpoint for a token.
func (c *ClobClient) Midpoint(ctx context.Context, tokenID string) (decimal.Decimal, error) {
	q := url.Values{"token_id": {tokenID}}
	u := fmt.Sprintf("%s/midpoint?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return decimal.Zero, fmt.Errorf("clob: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return decimal.Zero, fmt.Errorf("clob: fetch midpoint: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return decimal.Zero, fmt.Errorf("clob: unexpected status: %d", resp.StatusCode)
	}

	var payload struct {
		Mid string `json:"mid"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return decimal.Zero, fmt.Errorf("clob: decode midpoint: %w", err)
	}

	mid, err := decimal.NewFromString(payload.Mid)
	if err != nil {
		return decimal.Zero, fmt.Errorf("clob: parse midpoint %q: %w", payload.Mid, err)
	}
	return mid, nil
}

// HistoryPoint is one sample of a token's traded price history, with the
// timestamp normalized to milliseconds.
type HistoryPoint struct {
	TimeMs int64
	Price  float64
}

// HistoryParams narrows a prices-history query. StartTs/EndTs are unix
// seconds; Fidelity is the sample resolution in minutes. Zero values are
// omitted from the query.
type HistoryParams struct {
	StartTs  int64
	EndTs    int64
	Interval string
	Fidelity int
}

// PricesHistory returns the traded price series for a token, oldest
// first. Upstream reports timestamps in seconds; any already in
// milliseconds pass through unchanged.
func (c *ClobClient) PricesHistory(ctx context.Context, tokenID string, params HistoryParams) ([]HistoryPoint, error) {
	q := url.Values{"market": {tokenID}}
	if params.StartTs > 0 {
		q.Set("startTs", strconv.FormatInt(params.StartTs, 10))
	}
	if params.EndTs > 0 {
		q.Set("endTs", strconv.FormatInt(params.EndTs, 10))
	}
	if params.Interval != "" {
		q.Set("interval", params.Interval)
	}
	if params.Fidelity > 0 {
		q.Set("fidelity", strconv.Itoa(params.Fidelity))
	}
	u := fmt.Sprintf("%s/prices-history?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("clob: build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("clob: fetch prices history: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("clob: unexpected status: %d", resp.StatusCode)
	}

	var payload struct {
		History []struct {
			T int64   `json:"t"`
			P float64 `json:"p"`
		} `json:"history"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("clob: decode prices history: %w", err)
	}

	points := make([]HistoryPoint, 0, len(payload.History))
	for _, h := range payload.History {
		points = append(points, HistoryPoint{TimeMs: NormalizeMs(h.T), Price: h.P})
	}
	return points, nil
}

// NormalizeMs coerces a unix timestamp that may be in seconds or
// milliseconds into milliseconds.
func NormalizeMs(ts int64) int64 {
	if ts > 0 && ts < msThreshold {
		return ts * 1000
	}
	return ts
}
