// Package feed defines the wire format of the inbound market-data topic and
// isolates all parse concerns from the decision logic. The topic carries an
// interleaved, untagged union of aggregate price ticks and market-state
// records; Decode tries each known shape in a fixed order and fails closed
// when none match.
package feed

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// Message is the decoded union: *Aggregate or *MarketState.
type Message interface {
	feedMessage()
}

// Aggregate is a per-ticker price aggregate. Only symbol and close are
// consumed by the engine; the remaining aggregate fields (open, volume, bar
// boundaries) pass through undecoded.
type Aggregate struct {
	Symbol string
	Close  decimal.Decimal
	At     time.Time
}

// MarketState reports whether the market is open, and how long until the
// next transition.
type MarketState struct {
	Open bool
	// NextClose is seconds until the market closes (only when Open).
	NextClose int64
	// NextOpen is seconds until the market opens (only when !Open).
	NextOpen int64
}

func (*Aggregate) feedMessage()   {}
func (*MarketState) feedMessage() {}

type wireState struct {
	State     string `json:"state"`
	NextClose *int64 `json:"next_close"`
	NextOpen  *int64 `json:"next_open"`
}

type wireAggregate struct {
	Symbol    string           `json:"symbol"`
	Close     *decimal.Decimal `json:"close"`
	Timestamp int64            `json:"timestamp"` // milliseconds since epoch, optional
}

// Decode parses one feed payload. Shapes are tried in a fixed order: a
// market-state record (tagged by its "state" field) first, then an aggregate
// tick (requires "symbol" and "close"). A payload matching neither shape is
// a parse error — the relay logs and drops it, never guesses.
func Decode(payload []byte) (Message, error) {
	var st wireState
	if err := json.Unmarshal(payload, &st); err != nil {
		return nil, fmt.Errorf("feed: decode: %w", err)
	}
	switch st.State {
	case "open":
		if st.NextClose == nil {
			return nil, fmt.Errorf("feed: open state missing next_close")
		}
		return &MarketState{Open: true, NextClose: *st.NextClose}, nil
	case "closed":
		if st.NextOpen == nil {
			return nil, fmt.Errorf("feed: closed state missing next_open")
		}
		return &MarketState{Open: false, NextOpen: *st.NextOpen}, nil
	case "":
		// Not a market-state record; fall through to the aggregate shape.
	default:
		return nil, fmt.Errorf("feed: unknown market state %q", st.State)
	}

	var agg wireAggregate
	if err := json.Unmarshal(payload, &agg); err != nil {
		return nil, fmt.Errorf("feed: decode: %w", err)
	}
	if agg.Symbol == "" || agg.Close == nil {
		return nil, fmt.Errorf("feed: payload matches no known shape")
	}

	at := time.Now().UTC()
	if agg.Timestamp > 0 {
		at = time.UnixMilli(agg.Timestamp).UTC()
	}
	return &Aggregate{Symbol: agg.Symbol, Close: *agg.Close, At: at}, nil
}
