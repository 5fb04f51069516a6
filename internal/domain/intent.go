package domain

import (
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TickerAll is the wildcard ticker. An intent addressed to it applies to
// every position held under the strategy; it is only valid with a flatten
// amount (the wind-down intent).
const TickerAll = "*"

// AmountKind tags the Amount union.
type AmountKind string

const (
	// AmountNotional is a signed dollar notional: positive buys, negative
	// sells.
	AmountNotional AmountKind = "notional"
	// AmountRetainLong asks the executor to keep an existing long leg as-is.
	AmountRetainLong AmountKind = "retain_long"
	// AmountRetainShort asks the executor to keep an existing short leg as-is.
	AmountRetainShort AmountKind = "retain_short"
	// AmountFlatten zeroes the addressed position(s).
	AmountFlatten AmountKind = "flatten"
)

// Amount is the desired exposure change carried by an intent. Only the
// notional kind carries a value; the directive kinds are zero-notional by
// definition.
type Amount struct {
	Kind     AmountKind      `json:"kind"`
	Notional decimal.Decimal `json:"notional"`
}

// Dollars builds a signed notional amount.
func Dollars(notional decimal.Decimal) Amount {
	return Amount{Kind: AmountNotional, Notional: notional}
}

// Retain builds the zero-notional directive matching a retain-side policy.
func Retain(policy UpdatePolicy) Amount {
	if policy == RetainShortPolicy {
		return Amount{Kind: AmountRetainShort}
	}
	return Amount{Kind: AmountRetainLong}
}

// Flatten builds the zero/flatten directive.
func Flatten() Amount {
	return Amount{Kind: AmountFlatten}
}

func (a Amount) validate() error {
	switch a.Kind {
	case AmountNotional:
		if a.Notional.IsZero() {
			return fmt.Errorf("%w: zero notional (use a retain or flatten amount)", ErrInvalidIntent)
		}
	case AmountRetainLong, AmountRetainShort, AmountFlatten:
		if !a.Notional.IsZero() {
			return fmt.Errorf("%w: %s amount must carry no notional", ErrInvalidIntent, a.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown amount kind %q", ErrInvalidIntent, a.Kind)
	}
	return nil
}

// UpdatePolicy tells the downstream executor how to reconcile an intent
// against an existing position in the same ticker.
type UpdatePolicy string

const (
	NoPolicy          UpdatePolicy = ""
	RetainLongPolicy  UpdatePolicy = "retain_long"
	RetainShortPolicy UpdatePolicy = "retain_short"
)

// PositionIntent is the normalized instruction published on the intents
// topic. Intents are immutable after construction; ownership passes to the
// broker client on publish.
type PositionIntent struct {
	ID           string           `json:"id"`
	Strategy     string           `json:"strategy"`
	SubStrategy  string           `json:"sub_strategy,omitempty"`
	Ticker       string           `json:"ticker"`
	Amount       Amount           `json:"amount"`
	LimitPrice   *decimal.Decimal `json:"limit_price,omitempty"`
	UpdatePolicy UpdatePolicy     `json:"update_policy,omitempty"`
	Timestamp    time.Time        `json:"timestamp"`
}

// IntentOptions carries the optional fields of an intent.
type IntentOptions struct {
	SubStrategy  string
	LimitPrice   *decimal.Decimal
	UpdatePolicy UpdatePolicy
}

// NewPositionIntent validates and constructs an intent. Invalid combinations
// are rejected here, at construction, rather than surfacing later in the
// publish path: the wildcard ticker only accepts a flatten amount, notional
// amounts must address a single ticker, and a limit price must be positive.
func NewPositionIntent(strategy, ticker string, amount Amount, opts IntentOptions) (PositionIntent, error) {
	if strategy == "" {
		return PositionIntent{}, fmt.Errorf("%w: strategy is required", ErrInvalidIntent)
	}
	if ticker == "" {
		return PositionIntent{}, fmt.Errorf("%w: ticker is required", ErrInvalidIntent)
	}
	if err := amount.validate(); err != nil {
		return PositionIntent{}, err
	}
	if ticker == TickerAll && amount.Kind != AmountFlatten {
		return PositionIntent{}, fmt.Errorf("%w: wildcard ticker only accepts a flatten amount", ErrInvalidIntent)
	}
	if opts.LimitPrice != nil && !opts.LimitPrice.IsPositive() {
		return PositionIntent{}, fmt.Errorf("%w: limit price must be positive, got %s", ErrInvalidIntent, opts.LimitPrice)
	}
	switch opts.UpdatePolicy {
	case NoPolicy, RetainLongPolicy, RetainShortPolicy:
	default:
		return PositionIntent{}, fmt.Errorf("%w: unknown update policy %q", ErrInvalidIntent, opts.UpdatePolicy)
	}

	return PositionIntent{
		ID:           uuid.NewString(),
		Strategy:     strategy,
		SubStrategy:  opts.SubStrategy,
		Ticker:       ticker,
		Amount:       amount,
		LimitPrice:   opts.LimitPrice,
		UpdatePolicy: opts.UpdatePolicy,
		Timestamp:    time.Now().UTC(),
	}, nil
}

// PublishKey is the partitioning key for the intents topic: the ticker for
// addressed intents, empty for the wildcard wind-down intent.
func (i PositionIntent) PublishKey() string {
	if i.Ticker == TickerAll {
		return ""
	}
	return i.Ticker
}
