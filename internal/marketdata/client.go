// Package marketdata is the REST client for the reference-data API: session
// snapshots for band construction and historical aggregates, dividends, and
// splits for the dataset build.
package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// rateKey is the shared limiter bucket for every request this client makes.
const rateKey = "marketdata"

// Config holds the client parameters.
type Config struct {
	BaseURL string
	ApiKey  string
	Timeout time.Duration
	// RateLimit / RateWindow cap outbound requests; enforced through the
	// limiter before every call.
	RateLimit  int
	RateWindow time.Duration
}

// Client is the reference-data API client. It implements
// domain.SnapshotSource. All calls block on the rate limiter first, so a
// burst of pair lookups degrades to a queue instead of a 429 storm.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
	limiter    domain.RateLimiter
	rateLimit  int
	rateWindow time.Duration
}

// New creates a Client. limiter may not be nil; use an in-process limiter in
// tests.
func New(cfg Config, limiter domain.RateLimiter) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL:    cfg.BaseURL,
		apiKey:     cfg.ApiKey,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		rateLimit:  cfg.RateLimit,
		rateWindow: cfg.RateWindow,
	}
}

// OpenClose returns today's opening price and the previous session close for
// one ticker, from the consolidated snapshot endpoint.
func (c *Client) OpenClose(ctx context.Context, ticker string) (domain.Snapshot, error) {
	path := fmt.Sprintf("/v2/snapshot/locale/us/markets/stocks/tickers/%s", url.PathEscape(ticker))

	body, err := c.doGet(ctx, path)
	if err != nil {
		return domain.Snapshot{}, fmt.Errorf("marketdata: snapshot %s: %w", ticker, err)
	}

	var resp struct {
		Ticker struct {
			Day struct {
				Open decimal.Decimal `json:"o"`
			} `json:"day"`
			PrevDay struct {
				Close decimal.Decimal `json:"c"`
			} `json:"prevDay"`
		} `json:"ticker"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return domain.Snapshot{}, fmt.Errorf("marketdata: decode snapshot %s: %w", ticker, err)
	}

	snap := domain.Snapshot{
		Open:      resp.Ticker.Day.Open,
		PrevClose: resp.Ticker.PrevDay.Close,
	}
	if !snap.Open.IsPositive() || !snap.PrevClose.IsPositive() {
		return domain.Snapshot{}, fmt.Errorf("marketdata: snapshot %s: %w: open=%s prev_close=%s",
			ticker, domain.ErrNotFound, snap.Open, snap.PrevClose)
	}
	return snap, nil
}

// Bar is one unadjusted five-minute aggregate.
type Bar struct {
	At    time.Time
	Close decimal.Decimal
}

// Aggregates returns the unadjusted five-minute bars for ticker over
// [from, to], oldest first.
func (c *Client) Aggregates(ctx context.Context, ticker string, from, to time.Time) ([]Bar, error) {
	params := url.Values{}
	params.Set("adjusted", "false")
	params.Set("sort", "asc")
	params.Set("limit", "50000")

	path := fmt.Sprintf("/v2/aggs/ticker/%s/range/5/minute/%s/%s?%s",
		url.PathEscape(ticker),
		from.Format("2006-01-02"),
		to.Format("2006-01-02"),
		params.Encode(),
	)

	body, err := c.doGet(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("marketdata: aggregates %s: %w", ticker, err)
	}

	var resp struct {
		Results []struct {
			Timestamp int64           `json:"t"` // milliseconds since epoch
			Close     decimal.Decimal `json:"c"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketdata: decode aggregates %s: %w", ticker, err)
	}

	bars := make([]Bar, 0, len(resp.Results))
	for _, r := range resp.Results {
		bars = append(bars, Bar{At: time.UnixMilli(r.Timestamp).UTC(), Close: r.Close})
	}
	return bars, nil
}

// Dividend is one cash distribution, keyed by its ex-dividend date.
type Dividend struct {
	ExDate     string // YYYY-MM-DD
	CashAmount decimal.Decimal
}

// Dividends returns the dividends for ticker with ex-date on or after since.
func (c *Client) Dividends(ctx context.Context, ticker string, since time.Time) ([]Dividend, error) {
	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("ex_dividend_date.gte", since.Format("2006-01-02"))
	params.Set("limit", strconv.Itoa(1000))

	body, err := c.doGet(ctx, "/v3/reference/dividends?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("marketdata: dividends %s: %w", ticker, err)
	}

	var resp struct {
		Results []struct {
			ExDividendDate string          `json:"ex_dividend_date"`
			CashAmount     decimal.Decimal `json:"cash_amount"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketdata: decode dividends %s: %w", ticker, err)
	}

	divs := make([]Dividend, 0, len(resp.Results))
	for _, r := range resp.Results {
		divs = append(divs, Dividend{ExDate: r.ExDividendDate, CashAmount: r.CashAmount})
	}
	return divs, nil
}

// Split is one stock split, keyed by its execution date. The adjustment
// factor for earlier prices is From/To.
type Split struct {
	ExDate string // YYYY-MM-DD
	From   decimal.Decimal
	To     decimal.Decimal
}

// Splits returns the splits for ticker executed on or after since.
func (c *Client) Splits(ctx context.Context, ticker string, since time.Time) ([]Split, error) {
	params := url.Values{}
	params.Set("ticker", ticker)
	params.Set("execution_date.gte", since.Format("2006-01-02"))
	params.Set("limit", strconv.Itoa(1000))

	body, err := c.doGet(ctx, "/v3/reference/splits?"+params.Encode())
	if err != nil {
		return nil, fmt.Errorf("marketdata: splits %s: %w", ticker, err)
	}

	var resp struct {
		Results []struct {
			ExecutionDate string          `json:"execution_date"`
			SplitFrom     decimal.Decimal `json:"split_from"`
			SplitTo       decimal.Decimal `json:"split_to"`
		} `json:"results"`
	}
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("marketdata: decode splits %s: %w", ticker, err)
	}

	splits := make([]Split, 0, len(resp.Results))
	for _, r := range resp.Results {
		splits = append(splits, Split{ExDate: r.ExecutionDate, From: r.SplitFrom, To: r.SplitTo})
	}
	return splits, nil
}

// --------------------------------------------------------------------------
// Internal helpers
// --------------------------------------------------------------------------

// doGet sends an authenticated GET request after clearing the rate limiter.
func (c *Client) doGet(ctx context.Context, path string) ([]byte, error) {
	if err := c.limiter.Wait(ctx, rateKey, c.rateLimit, c.rateWindow); err != nil {
		return nil, fmt.Errorf("rate limit: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("http request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, fmt.Errorf("%w: status 429", domain.ErrRateLimited)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(body, 200))
	}
	return body, nil
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}

// Compile-time interface check.
var _ domain.SnapshotSource = (*Client)(nil)
