// Package generator owns the live price cache and turns signals into
// position intents on a fixed timer.
package generator

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// DefaultStrategy identifies this engine on every published intent.
const DefaultStrategy = "double-trouble"

// ErrFeedClosed reports that the relay channel closed before a wind-down:
// the loop stops without flattening, and the caller decides how loudly to
// surface that.
var ErrFeedClosed = errors.New("generator: event stream closed before wind-down")

// Default timer schedule: first evaluation one minute after start, then
// every five minutes.
const (
	DefaultInitialDelay = 60 * time.Second
	DefaultInterval     = 300 * time.Second
)

// Limit-price offsets: buys are capped 0.5% above the cached price, sells
// floored 0.5% below it.
var (
	limitAbove = decimal.NewFromFloat(1.005)
	limitBelow = decimal.NewFromFloat(0.995)
)

var three = decimal.NewFromInt(3)

// Config tunes the generator. Zero values fall back to the defaults above;
// tests shrink the timer to drive cycles quickly.
type Config struct {
	Strategy     string
	InitialDelay time.Duration
	Interval     time.Duration
}

// TradeGenerator is the single-threaded event loop at the center of the
// engine. It is the exclusive owner of the price cache — no lock is needed
// because nothing else reads or writes it — and it reacts to exactly two
// event sources: the periodic timer and the relay channel.
type TradeGenerator struct {
	strategy     string
	cash         decimal.Decimal
	bands        []domain.TradeBands
	prices       map[string]decimal.Decimal
	events       <-chan domain.RelayEvent
	pub          domain.IntentPublisher
	initialDelay time.Duration
	interval     time.Duration
	logger       *slog.Logger
}

// New creates a TradeGenerator over the given session bands. cash is the
// total capital allocation consumed by the sizing step.
func New(cash decimal.Decimal, bands []domain.TradeBands, events <-chan domain.RelayEvent, pub domain.IntentPublisher, cfg Config, logger *slog.Logger) *TradeGenerator {
	strategy := cfg.Strategy
	if strategy == "" {
		strategy = DefaultStrategy
	}
	initialDelay := cfg.InitialDelay
	if initialDelay <= 0 {
		initialDelay = DefaultInitialDelay
	}
	interval := cfg.Interval
	if interval <= 0 {
		interval = DefaultInterval
	}
	return &TradeGenerator{
		strategy:     strategy,
		cash:         cash,
		bands:        bands,
		prices:       make(map[string]decimal.Decimal),
		events:       events,
		pub:          pub,
		initialDelay: initialDelay,
		interval:     interval,
		logger:       logger.With(slog.String("component", "generator")),
	}
}

// Run drives the event loop until one of the two terminal transitions:
// a WindDown event (publish the global flatten intent, then stop) or closure
// of the relay channel (stop with ErrFeedClosed, no flatten). Cancellation
// of ctx also stops the loop. The timer is a fixed-period time.Ticker after
// the initial delay: a slow cycle does not shift later fire times, and ticks
// that would pile up behind it are coalesced by the runtime.
func (g *TradeGenerator) Run(ctx context.Context) error {
	g.logger.InfoContext(ctx, "trade generator starting",
		slog.Int("pairs", len(g.bands)),
		slog.String("cash", g.cash.String()),
		slog.Duration("initial_delay", g.initialDelay),
		slog.Duration("interval", g.interval),
	)

	first := time.NewTimer(g.initialDelay)
	defer first.Stop()
	ticks := first.C

	var ticker *time.Ticker
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			g.logger.InfoContext(ctx, "trade generator cancelled")
			return nil

		case <-ticks:
			g.evaluate(ctx)
			if ticker == nil {
				ticker = time.NewTicker(g.interval)
				ticks = ticker.C
			}

		case ev, ok := <-g.events:
			if !ok {
				g.logger.WarnContext(ctx, "relay channel closed, stopping")
				return ErrFeedClosed
			}
			switch e := ev.(type) {
			case domain.PriceTick:
				g.prices[e.Ticker] = e.Price
			case domain.WindDown:
				g.windDown(ctx)
				return nil
			}
		}
	}
}

// evaluate runs one timer cycle: every pair with both legs priced goes
// through the signal model and its intents are published. Pairs with a
// missing leg are skipped — normal during warm-up, not an error.
func (g *TradeGenerator) evaluate(ctx context.Context) {
	for _, bands := range g.bands {
		price1, ok1 := g.prices[bands.Asset1]
		price2, ok2 := g.prices[bands.Asset2]
		if !ok1 || !ok2 {
			g.logger.DebugContext(ctx, "pair not fully priced yet, skipping",
				slog.String("sub_strategy", bands.SubStrategy()),
			)
			continue
		}

		signal := bands.Signal(price1, price2)
		for _, intent := range g.pairIntents(bands, signal, price1, price2) {
			g.publish(ctx, intent)
		}
	}
}

// legNotional is the sizing step: a flat capital split per leg. Deliberately
// isolated so a real sizing model can replace it without touching the signal
// or relay logic.
func (g *TradeGenerator) legNotional() decimal.Decimal {
	return g.cash.Div(three)
}

// pairIntents translates one pair's signal into its two per-leg intents.
func (g *TradeGenerator) pairIntents(bands domain.TradeBands, signal domain.Position, price1, price2 decimal.Decimal) []domain.PositionIntent {
	notional := g.legNotional()
	sub := bands.SubStrategy()

	var leg1, leg2 legSpec
	switch signal {
	case domain.Long:
		leg1 = legSpec{amount: domain.Dollars(notional), limit: price1.Mul(limitAbove), policy: domain.RetainLongPolicy}
		leg2 = legSpec{amount: domain.Dollars(notional.Neg()), limit: price2.Mul(limitBelow), policy: domain.RetainShortPolicy}
	case domain.Short:
		leg1 = legSpec{amount: domain.Dollars(notional.Neg()), limit: price1.Mul(limitBelow), policy: domain.RetainShortPolicy}
		leg2 = legSpec{amount: domain.Dollars(notional), limit: price2.Mul(limitAbove), policy: domain.RetainLongPolicy}
	case domain.RetainLong:
		leg1 = legSpec{amount: domain.Retain(domain.RetainLongPolicy), policy: domain.RetainLongPolicy}
		leg2 = legSpec{amount: domain.Retain(domain.RetainShortPolicy), policy: domain.RetainShortPolicy}
	case domain.RetainShort:
		leg1 = legSpec{amount: domain.Retain(domain.RetainShortPolicy), policy: domain.RetainShortPolicy}
		leg2 = legSpec{amount: domain.Retain(domain.RetainLongPolicy), policy: domain.RetainLongPolicy}
	}

	intents := make([]domain.PositionIntent, 0, 2)
	for _, leg := range []struct {
		ticker string
		spec   legSpec
	}{
		{bands.Asset1, leg1},
		{bands.Asset2, leg2},
	} {
		opts := domain.IntentOptions{SubStrategy: sub, UpdatePolicy: leg.spec.policy}
		if !leg.spec.limit.IsZero() {
			limit := leg.spec.limit
			opts.LimitPrice = &limit
		}
		intent, err := domain.NewPositionIntent(g.strategy, leg.ticker, leg.spec.amount, opts)
		if err != nil {
			// Only reachable through a bug in intent assembly; keep the loop
			// alive and surface it loudly.
			g.logger.Error("intent construction failed",
				slog.String("ticker", leg.ticker),
				slog.String("sub_strategy", sub),
				slog.String("error", err.Error()),
			)
			continue
		}
		intents = append(intents, intent)
	}
	return intents
}

type legSpec struct {
	amount domain.Amount
	limit  decimal.Decimal
	policy domain.UpdatePolicy
}

// publish delivers one intent. Publish failures are logged with the intent's
// identity and never abort the batch or the loop.
func (g *TradeGenerator) publish(ctx context.Context, intent domain.PositionIntent) {
	if err := g.pub.Publish(ctx, intent); err != nil {
		g.logger.ErrorContext(ctx, "publish failed",
			slog.String("intent_id", intent.ID),
			slog.String("ticker", intent.Ticker),
			slog.String("sub_strategy", intent.SubStrategy),
			slog.String("error", err.Error()),
		)
	}
}

// windDown publishes the single global flatten intent: wildcard ticker,
// flatten amount, no update policy. This is the engine's one normal
// termination path.
func (g *TradeGenerator) windDown(ctx context.Context) {
	g.logger.InfoContext(ctx, "winding down, flattening all positions")
	intent, err := domain.NewPositionIntent(g.strategy, domain.TickerAll, domain.Flatten(), domain.IntentOptions{})
	if err != nil {
		g.logger.Error("wind-down intent construction failed", slog.String("error", err.Error()))
		return
	}
	g.publish(ctx, intent)
}
