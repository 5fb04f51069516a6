package feed

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeMarketState(t *testing.T) {
	t.Run("open", func(t *testing.T) {
		msg, err := Decode([]byte(`{"state":"open","next_close":600}`))
		require.NoError(t, err)

		state, ok := msg.(*MarketState)
		require.True(t, ok)
		assert.True(t, state.Open)
		assert.Equal(t, int64(600), state.NextClose)
	})

	t.Run("closed", func(t *testing.T) {
		msg, err := Decode([]byte(`{"state":"closed","next_open":3600}`))
		require.NoError(t, err)

		state, ok := msg.(*MarketState)
		require.True(t, ok)
		assert.False(t, state.Open)
		assert.Equal(t, int64(3600), state.NextOpen)
	})

	t.Run("open without next_close", func(t *testing.T) {
		_, err := Decode([]byte(`{"state":"open"}`))
		assert.Error(t, err)
	})

	t.Run("closed without next_open", func(t *testing.T) {
		_, err := Decode([]byte(`{"state":"closed"}`))
		assert.Error(t, err)
	})

	t.Run("unknown state", func(t *testing.T) {
		_, err := Decode([]byte(`{"state":"halted"}`))
		assert.Error(t, err)
	})
}

func TestDecodeAggregate(t *testing.T) {
	msg, err := Decode([]byte(`{"symbol":"AAA","close":"110.25","timestamp":1700000000000,"volume":1234}`))
	require.NoError(t, err)

	agg, ok := msg.(*Aggregate)
	require.True(t, ok)
	assert.Equal(t, "AAA", agg.Symbol)
	assert.Equal(t, "110.25", agg.Close.String())
	assert.Equal(t, time.UnixMilli(1700000000000).UTC(), agg.At)
}

func TestDecodeAggregateNumericClose(t *testing.T) {
	msg, err := Decode([]byte(`{"symbol":"BBB","close":99.5}`))
	require.NoError(t, err)

	agg, ok := msg.(*Aggregate)
	require.True(t, ok)
	assert.Equal(t, "99.5", agg.Close.String())
	assert.False(t, agg.At.IsZero(), "missing timestamp falls back to receive time")
}

func TestDecodeFailsClosed(t *testing.T) {
	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `not json at all`},
		{"empty object", `{}`},
		{"aggregate missing close", `{"symbol":"AAA"}`},
		{"aggregate missing symbol", `{"close":"1.0"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			assert.Error(t, err, "payload %q must not decode", tt.payload)
		})
	}
}
