package generator

import (
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// capturePublisher records every published intent.
type capturePublisher struct {
	mu      sync.Mutex
	intents []domain.PositionIntent
}

func (p *capturePublisher) Publish(ctx context.Context, intent domain.PositionIntent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.intents = append(p.intents, intent)
	return nil
}

func (p *capturePublisher) snapshot() []domain.PositionIntent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]domain.PositionIntent, len(p.intents))
	copy(out, p.intents)
	return out
}

func (p *capturePublisher) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.intents)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func testBands() []domain.TradeBands {
	return []domain.TradeBands{{
		Asset1:      "AAA",
		Asset2:      "BBB",
		Equilibrium: decimal.Zero,
		UpperBand:   d("0.02"),
		LowerBand:   d("-0.02"),
	}}
}

// startGenerator runs a generator with fast timers and returns its event
// channel, publisher, and a done channel carrying Run's result.
func startGenerator(t *testing.T, cash string) (chan domain.RelayEvent, *capturePublisher, chan error, context.CancelFunc) {
	t.Helper()

	events := make(chan domain.RelayEvent, 16)
	pub := &capturePublisher{}
	gen := New(d(cash), testBands(), events, pub, Config{
		InitialDelay: 20 * time.Millisecond,
		Interval:     30 * time.Millisecond,
	}, slog.Default())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gen.Run(ctx) }()
	return events, pub, done, cancel
}

func waitDone(t *testing.T, done chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("generator did not stop in time")
		return nil
	}
}

func TestGeneratorSkipsPartiallyPricedPairs(t *testing.T) {
	events, pub, done, cancel := startGenerator(t, "300000")

	events <- domain.PriceTick{Ticker: "AAA", Price: d("110"), At: time.Now()}

	// Let at least two timer cycles pass with only one leg priced.
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, pub.count(), "no intents may be published during warm-up")

	cancel()
	require.NoError(t, waitDone(t, done))
}

func TestGeneratorShortSignalIntents(t *testing.T) {
	events, pub, done, cancel := startGenerator(t, "300000")
	defer cancel()

	events <- domain.PriceTick{Ticker: "AAA", Price: d("110"), At: time.Now()}
	events <- domain.PriceTick{Ticker: "BBB", Price: d("100"), At: time.Now()}

	require.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	intents := pub.snapshot()[:2]
	byTicker := map[string]domain.PositionIntent{}
	for _, in := range intents {
		byTicker[in.Ticker] = in
		assert.Equal(t, DefaultStrategy, in.Strategy)
		assert.Equal(t, "AAA-BBB", in.SubStrategy)
	}

	aaa, ok := byTicker["AAA"]
	require.True(t, ok)
	assert.Equal(t, domain.AmountNotional, aaa.Amount.Kind)
	assert.True(t, aaa.Amount.Notional.Equal(d("-100000")), "AAA notional = %s", aaa.Amount.Notional)
	require.NotNil(t, aaa.LimitPrice)
	assert.True(t, aaa.LimitPrice.Equal(d("109.45")), "AAA limit = %s", aaa.LimitPrice)
	assert.Equal(t, domain.RetainShortPolicy, aaa.UpdatePolicy)

	bbb, ok := byTicker["BBB"]
	require.True(t, ok)
	assert.True(t, bbb.Amount.Notional.Equal(d("100000")), "BBB notional = %s", bbb.Amount.Notional)
	require.NotNil(t, bbb.LimitPrice)
	assert.True(t, bbb.LimitPrice.Equal(d("100.5")), "BBB limit = %s", bbb.LimitPrice)
	assert.Equal(t, domain.RetainLongPolicy, bbb.UpdatePolicy)
}

func TestGeneratorRetainSignalIntents(t *testing.T) {
	events, pub, done, cancel := startGenerator(t, "300000")
	defer cancel()

	events <- domain.PriceTick{Ticker: "AAA", Price: d("100"), At: time.Now()}
	events <- domain.PriceTick{Ticker: "BBB", Price: d("100"), At: time.Now()}

	require.Eventually(t, func() bool { return pub.count() >= 2 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	for _, in := range pub.snapshot()[:2] {
		assert.True(t, in.Amount.Notional.IsZero(), "retain intents carry no notional")
		assert.Nil(t, in.LimitPrice, "retain intents carry no limit price")
		switch in.Ticker {
		case "AAA":
			assert.Equal(t, domain.AmountRetainLong, in.Amount.Kind)
			assert.Equal(t, domain.RetainLongPolicy, in.UpdatePolicy)
		case "BBB":
			assert.Equal(t, domain.AmountRetainShort, in.Amount.Kind)
			assert.Equal(t, domain.RetainShortPolicy, in.UpdatePolicy)
		default:
			t.Fatalf("unexpected ticker %s", in.Ticker)
		}
	}
}

func TestGeneratorRepeatedCyclesAreIdempotent(t *testing.T) {
	events, pub, done, cancel := startGenerator(t, "300000")
	defer cancel()

	events <- domain.PriceTick{Ticker: "AAA", Price: d("110"), At: time.Now()}
	events <- domain.PriceTick{Ticker: "BBB", Price: d("100"), At: time.Now()}

	// Wait through at least two evaluation cycles with unchanged prices.
	require.Eventually(t, func() bool { return pub.count() >= 4 }, 2*time.Second, 5*time.Millisecond)
	cancel()
	require.NoError(t, waitDone(t, done))

	intents := pub.snapshot()
	first, second := intents[0:2], intents[2:4]
	for i := range first {
		assert.Equal(t, first[i].Ticker, second[i].Ticker)
		assert.Equal(t, first[i].Amount.Kind, second[i].Amount.Kind)
		assert.True(t, first[i].Amount.Notional.Equal(second[i].Amount.Notional))
		require.NotNil(t, first[i].LimitPrice)
		require.NotNil(t, second[i].LimitPrice)
		assert.True(t, first[i].LimitPrice.Equal(*second[i].LimitPrice))
		assert.NotEqual(t, first[i].ID, second[i].ID, "each cycle publishes fresh intents")
	}
}

func TestGeneratorWindDown(t *testing.T) {
	events, pub, done, _ := startGenerator(t, "300000")

	events <- domain.WindDown{}
	require.NoError(t, waitDone(t, done))

	intents := pub.snapshot()
	require.Len(t, intents, 1)
	assert.Equal(t, domain.TickerAll, intents[0].Ticker)
	assert.Equal(t, domain.AmountFlatten, intents[0].Amount.Kind)
	assert.Equal(t, domain.NoPolicy, intents[0].UpdatePolicy)
	assert.Nil(t, intents[0].LimitPrice)
}

func TestGeneratorStopsWhenChannelCloses(t *testing.T) {
	events, pub, done, _ := startGenerator(t, "300000")

	close(events)
	require.ErrorIs(t, waitDone(t, done), ErrFeedClosed)
	assert.Zero(t, pub.count(), "channel closure must not flatten positions")
}
