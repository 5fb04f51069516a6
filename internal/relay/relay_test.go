package relay

import (
	"context"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// scriptedSource replays a fixed payload sequence, then reports end of
// stream.
type scriptedSource struct {
	payloads [][]byte
	next     int
}

func (s *scriptedSource) Fetch(ctx context.Context) ([]byte, error) {
	if s.next >= len(s.payloads) {
		return nil, domain.ErrStreamClosed
	}
	p := s.payloads[s.next]
	s.next++
	return p, nil
}

// runRelay drives a relay over the scripted payloads with sequential
// handling and returns everything it forwarded.
func runRelay(t *testing.T, tickers map[string]struct{}, payloads [][]byte) []domain.RelayEvent {
	t.Helper()

	out := make(chan domain.RelayEvent, len(payloads)+1)
	r := New(tickers, &scriptedSource{payloads: payloads}, out, Config{MaxInFlight: 1}, slog.Default())

	require.NoError(t, r.Run(context.Background()))
	close(out)

	var events []domain.RelayEvent
	for ev := range out {
		events = append(events, ev)
	}
	return events
}

func TestRelayForwardsOnlyTrackedTickers(t *testing.T) {
	tracked := map[string]struct{}{"AAA": {}, "BBB": {}}
	events := runRelay(t, tracked, [][]byte{
		[]byte(`{"symbol":"AAA","close":"110"}`),
		[]byte(`{"symbol":"ZZZ","close":"55"}`),
		[]byte(`{"symbol":"BBB","close":"100"}`),
	})

	require.Len(t, events, 2)
	for _, ev := range events {
		tick, ok := ev.(domain.PriceTick)
		require.True(t, ok)
		assert.Contains(t, tracked, tick.Ticker)
	}
}

func TestRelayDropsMalformedAndContinues(t *testing.T) {
	events := runRelay(t, map[string]struct{}{"AAA": {}}, [][]byte{
		[]byte(`garbage`),
		[]byte(`{"state":"halted"}`),
		[]byte(`{"symbol":"AAA","close":"110"}`),
	})

	require.Len(t, events, 1)
	tick, ok := events[0].(domain.PriceTick)
	require.True(t, ok)
	assert.Equal(t, "AAA", tick.Ticker)
	assert.Equal(t, "110", tick.Price.String())
}

func TestRelayDropsNonPositivePrices(t *testing.T) {
	events := runRelay(t, map[string]struct{}{"AAA": {}}, [][]byte{
		[]byte(`{"symbol":"AAA","close":"0"}`),
		[]byte(`{"symbol":"AAA","close":"-5"}`),
	})
	assert.Empty(t, events)
}

func TestRelayWindDownThreshold(t *testing.T) {
	t.Run("at threshold", func(t *testing.T) {
		events := runRelay(t, nil, [][]byte{
			[]byte(`{"state":"open","next_close":600}`),
		})
		require.Len(t, events, 1)
		_, ok := events[0].(domain.WindDown)
		assert.True(t, ok)
	})

	t.Run("above threshold", func(t *testing.T) {
		events := runRelay(t, nil, [][]byte{
			[]byte(`{"state":"open","next_close":601}`),
		})
		assert.Empty(t, events)
	})

	t.Run("closed market forwards nothing", func(t *testing.T) {
		events := runRelay(t, nil, [][]byte{
			[]byte(`{"state":"closed","next_open":3600}`),
		})
		assert.Empty(t, events)
	})
}

func TestRelayStopsOnEOF(t *testing.T) {
	src := &eofSource{}
	out := make(chan domain.RelayEvent, 1)
	r := New(nil, src, out, Config{MaxInFlight: 1}, slog.Default())
	require.NoError(t, r.Run(context.Background()))
}

type eofSource struct{}

func (*eofSource) Fetch(ctx context.Context) ([]byte, error) {
	return nil, io.EOF
}
