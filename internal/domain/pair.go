// Package domain holds the pure core of the pairs-trading engine: the static
// pair universe, the per-session trade bands, the four-state trading signal,
// and the position intents published for the downstream executor. Nothing in
// this package performs I/O.
package domain

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"
)

// TradePair is one row of the monitored-pair universe. It is loaded once at
// startup (from CSV or Postgres) and never mutated afterwards.
type TradePair struct {
	Asset1           string
	Asset2           string
	OriginalLtSpread decimal.Decimal // long-term log-spread baseline
	OriginalStSpread decimal.Decimal // short-term log-spread baseline
	Epsilon          decimal.Decimal // half-width of the no-trade band
}

// Validate checks the structural invariants of a pair row. Epsilon must be
// non-negative so that lower_band <= equilibrium <= upper_band holds by
// construction.
func (p TradePair) Validate() error {
	if p.Asset1 == "" || p.Asset2 == "" {
		return fmt.Errorf("%w: both legs must name a ticker", ErrInvalidPair)
	}
	if p.Asset1 == p.Asset2 {
		return fmt.Errorf("%w: legs must differ, got %s twice", ErrInvalidPair, p.Asset1)
	}
	if p.Epsilon.IsNegative() {
		return fmt.Errorf("%w: epsilon must be non-negative, got %s", ErrInvalidPair, p.Epsilon)
	}
	return nil
}

// SubStrategy returns the pair identifier used to attribute intents
// downstream, e.g. "AAA-BBB".
func (p TradePair) SubStrategy() string {
	return p.Asset1 + "-" + p.Asset2
}

// Snapshot is the per-ticker open/previous-close pair used to seed the
// session's equilibrium before the live loop starts.
type Snapshot struct {
	Open      decimal.Decimal
	PrevClose decimal.Decimal
}

// Position is the trading signal for one pair at one evaluation. The two
// Retain states give the band model its hysteresis: inside the band the
// signal reports which side of equilibrium the spread sits on without
// requesting a new entry, so the executor keeps existing exposure instead of
// churning. No position state is stored anywhere; every evaluation recomputes
// the signal from current prices and the fixed bands.
type Position int

const (
	Long Position = iota
	RetainLong
	RetainShort
	Short
)

func (p Position) String() string {
	switch p {
	case Long:
		return "long"
	case RetainLong:
		return "retain_long"
	case RetainShort:
		return "retain_short"
	case Short:
		return "short"
	default:
		return fmt.Sprintf("position(%d)", int(p))
	}
}

// TradeBands fixes one pair's decision thresholds for a trading session.
// Built once before the live loop, read-only afterwards.
type TradeBands struct {
	Asset1           string
	Asset2           string
	Equilibrium      decimal.Decimal
	UpperBand        decimal.Decimal
	LowerBand        decimal.Decimal
	OriginalStSpread decimal.Decimal
}

// NewTradeBands derives the session bands for a pair from each leg's
// open/previous-close snapshot:
//
//	equilibrium = ((ln(o1/o2) - lt) + (ln(c1/c2) - lt)) / 2
//	upper_band  = equilibrium + epsilon
//	lower_band  = equilibrium - epsilon
//
// Logarithms run in float64 and the result is converted to decimal before it
// is ever compared against anything, so repeated evaluations against the same
// bands cannot drift.
func NewTradeBands(pair TradePair, leg1, leg2 Snapshot) (TradeBands, error) {
	if err := pair.Validate(); err != nil {
		return TradeBands{}, err
	}
	for _, s := range []Snapshot{leg1, leg2} {
		if !s.Open.IsPositive() || !s.PrevClose.IsPositive() {
			return TradeBands{}, fmt.Errorf("%w: %s: snapshot prices must be positive", ErrInvalidPair, pair.SubStrategy())
		}
	}

	openSpread := logSpread(leg1.Open, leg2.Open).Sub(pair.OriginalLtSpread)
	closeSpread := logSpread(leg1.PrevClose, leg2.PrevClose).Sub(pair.OriginalLtSpread)
	equilibrium := openSpread.Add(closeSpread).Div(decimal.NewFromInt(2))

	return TradeBands{
		Asset1:           pair.Asset1,
		Asset2:           pair.Asset2,
		Equilibrium:      equilibrium,
		UpperBand:        equilibrium.Add(pair.Epsilon),
		LowerBand:        equilibrium.Sub(pair.Epsilon),
		OriginalStSpread: pair.OriginalStSpread,
	}, nil
}

// SubStrategy returns the pair identifier, e.g. "AAA-BBB".
func (b TradeBands) SubStrategy() string {
	return b.Asset1 + "-" + b.Asset2
}

// Signal maps a live price pair to a trading decision. Pure and
// deterministic. Band crossings are strict: a spread sitting exactly on
// upper_band is RetainShort, exactly on lower_band is RetainLong, and exactly
// on equilibrium is RetainLong. Both prices must be positive; the relay drops
// non-positive ticks before they reach the cache.
func (b TradeBands) Signal(price1, price2 decimal.Decimal) Position {
	spread := logSpread(price1, price2).Sub(b.OriginalStSpread)
	switch {
	case spread.GreaterThan(b.UpperBand):
		return Short
	case spread.GreaterThan(b.Equilibrium):
		return RetainShort
	case spread.LessThan(b.LowerBand):
		return Long
	default:
		return RetainLong
	}
}

// logSpread computes ln(a) - ln(b) as a decimal. The float64 round trip is
// confined to this one step.
func logSpread(a, b decimal.Decimal) decimal.Decimal {
	fa, _ := a.Float64()
	fb, _ := b.Float64()
	return decimal.NewFromFloat(math.Log(fa) - math.Log(fb))
}
