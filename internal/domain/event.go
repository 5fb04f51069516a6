package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// RelayEvent is the internal union delivered from the relay to the trade
// generator. Events are constructed by the relay, consumed exactly once, and
// discarded.
type RelayEvent interface {
	relayEvent()
}

// PriceTick carries the latest price for one tracked ticker.
type PriceTick struct {
	Ticker string
	Price  decimal.Decimal
	At     time.Time
}

// WindDown signals that the market closes soon and the generator should
// flatten all positions and stop.
type WindDown struct{}

func (PriceTick) relayEvent() {}
func (WindDown) relayEvent()  {}
