package marketdata

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// openLimiter admits every request and counts how often it was consulted.
type openLimiter struct {
	waits atomic.Int64
}

func (l *openLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	return true, nil
}

func (l *openLimiter) Wait(ctx context.Context, key string, limit int, window time.Duration) error {
	l.waits.Add(1)
	return nil
}

func newTestClient(t *testing.T, handler http.HandlerFunc) (*Client, *openLimiter) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	limiter := &openLimiter{}
	client := New(Config{BaseURL: srv.URL, ApiKey: "test-key"}, limiter)
	return client, limiter
}

func TestOpenClose(t *testing.T) {
	client, limiter := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/snapshot/locale/us/markets/stocks/tickers/AAA", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		w.Write([]byte(`{"ticker":{"day":{"o":110.5},"prevDay":{"c":108.25}}}`))
	})

	snap, err := client.OpenClose(context.Background(), "AAA")
	require.NoError(t, err)
	assert.Equal(t, "110.5", snap.Open.String())
	assert.Equal(t, "108.25", snap.PrevClose.String())
	assert.Equal(t, int64(1), limiter.waits.Load(), "every request clears the limiter first")
}

func TestOpenCloseMissingSession(t *testing.T) {
	// Pre-market the day object comes back zeroed.
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ticker":{"day":{"o":0},"prevDay":{"c":108.25}}}`))
	})

	_, err := client.OpenClose(context.Background(), "AAA")
	require.Error(t, err)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestOpenCloseRateLimited(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	})

	_, err := client.OpenClose(context.Background(), "AAA")
	assert.ErrorIs(t, err, domain.ErrRateLimited)
}

func TestOpenCloseServerError(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "internal", http.StatusInternalServerError)
	})

	_, err := client.OpenClose(context.Background(), "AAA")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestAggregates(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v2/aggs/ticker/AAA/range/5/minute/2026-01-05/2026-01-09", r.URL.Path)
		assert.Equal(t, "false", r.URL.Query().Get("adjusted"))
		assert.Equal(t, "asc", r.URL.Query().Get("sort"))
		w.Write([]byte(`{"results":[
			{"t":1700000000000,"c":110.25},
			{"t":1700000300000,"c":110.5}
		]}`))
	})

	from := time.Date(2026, 1, 5, 0, 0, 0, 0, time.UTC)
	to := time.Date(2026, 1, 9, 0, 0, 0, 0, time.UTC)
	bars, err := client.Aggregates(context.Background(), "AAA", from, to)
	require.NoError(t, err)
	require.Len(t, bars, 2)
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), bars[0].At)
	assert.Equal(t, "110.25", bars[0].Close.String())
	assert.Equal(t, "110.5", bars[1].Close.String())
}

func TestDividendsAndSplits(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/v3/reference/dividends":
			assert.Equal(t, "AAA", r.URL.Query().Get("ticker"))
			assert.Equal(t, "2026-01-01", r.URL.Query().Get("ex_dividend_date.gte"))
			w.Write([]byte(`{"results":[{"ex_dividend_date":"2026-02-10","cash_amount":0.25}]}`))
		case "/v3/reference/splits":
			assert.Equal(t, "2026-01-01", r.URL.Query().Get("execution_date.gte"))
			w.Write([]byte(`{"results":[{"execution_date":"2026-03-02","split_from":1,"split_to":2}]}`))
		default:
			t.Errorf("unexpected path %s", r.URL.Path)
		}
	})

	since := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)

	divs, err := client.Dividends(context.Background(), "AAA", since)
	require.NoError(t, err)
	require.Len(t, divs, 1)
	assert.Equal(t, "2026-02-10", divs[0].ExDate)
	assert.Equal(t, "0.25", divs[0].CashAmount.String())

	splits, err := client.Splits(context.Background(), "AAA", since)
	require.NoError(t, err)
	require.Len(t, splits, 1)
	assert.Equal(t, "2026-03-02", splits[0].ExDate)
	assert.Equal(t, "1", splits[0].From.String())
	assert.Equal(t, "2", splits[0].To.String())
}
