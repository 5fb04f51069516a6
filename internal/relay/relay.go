// Package relay consumes the subscribed market-data stream, filters it down
// to the tracked ticker universe, and forwards normalized events to the trade
// generator over a channel.
package relay

import (
	"context"
	"errors"
	"io"
	"log/slog"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/pairsbot/internal/domain"
	"github.com/alanyoungcy/pairsbot/internal/feed"
)

// DefaultMaxInFlight bounds concurrent message handling when the config does
// not say otherwise.
const DefaultMaxInFlight = 50

// DefaultWindDownWithin is the seconds-to-close threshold that triggers
// wind-down.
const DefaultWindDownWithin = 600

// Config tunes the relay.
type Config struct {
	// MaxInFlight is the fan-out bound for message handling.
	MaxInFlight int64
	// WindDownWithin is the seconds-to-close threshold at or under which an
	// open-market state forwards a WindDown event.
	WindDownWithin int64
}

// Relay filters the inbound stream and forwards price ticks and the
// wind-down trigger. It owns the consumer handle; the output channel is
// owned by the orchestrator and shared with the generator.
type Relay struct {
	tickers        map[string]struct{}
	source         domain.MessageSource
	out            chan<- domain.RelayEvent
	sem            *semaphore.Weighted
	maxInFlight    int64
	windDownWithin int64
	logger         *slog.Logger
}

// New creates a Relay tracking the given ticker set.
func New(tickers map[string]struct{}, source domain.MessageSource, out chan<- domain.RelayEvent, cfg Config, logger *slog.Logger) *Relay {
	maxInFlight := cfg.MaxInFlight
	if maxInFlight <= 0 {
		maxInFlight = DefaultMaxInFlight
	}
	windDownWithin := cfg.WindDownWithin
	if windDownWithin <= 0 {
		windDownWithin = DefaultWindDownWithin
	}
	return &Relay{
		tickers:        tickers,
		source:         source,
		out:            out,
		sem:            semaphore.NewWeighted(maxInFlight),
		maxInFlight:    maxInFlight,
		windDownWithin: windDownWithin,
		logger:         logger.With(slog.String("component", "relay")),
	}
}

// Run consumes the stream until it ends or ctx is cancelled. Messages are
// handled with bounded concurrency (MaxInFlight), so there is no ordering
// guarantee between ticks of different tickers and only best-effort ordering
// within one ticker; callers that need strict per-ticker ordering must
// serialize handling per key. A malformed payload or a per-message delivery
// error is logged and dropped, never fatal. Run does not return until every
// in-flight handler has finished, so the caller may close the output channel
// afterwards.
func (r *Relay) Run(ctx context.Context) error {
	r.logger.InfoContext(ctx, "relay starting", slog.Int("tickers", len(r.tickers)))
	defer r.drain()

	for {
		payload, err := r.source.Fetch(ctx)
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, domain.ErrStreamClosed) {
				r.logger.InfoContext(ctx, "inbound stream ended")
				return nil
			}
			if ctx.Err() != nil {
				r.logger.InfoContext(ctx, "relay cancelled")
				return nil
			}
			r.logger.ErrorContext(ctx, "fetch failed, skipping message", slog.String("error", err.Error()))
			continue
		}

		if err := r.sem.Acquire(ctx, 1); err != nil {
			return nil
		}
		go func(payload []byte) {
			defer r.sem.Release(1)
			r.handle(ctx, payload)
		}(payload)
	}
}

// drain waits for all in-flight handlers by taking every permit.
func (r *Relay) drain() {
	_ = r.sem.Acquire(context.Background(), r.maxInFlight)
	r.sem.Release(r.maxInFlight)
}

func (r *Relay) handle(ctx context.Context, payload []byte) {
	msg, err := feed.Decode(payload)
	if err != nil {
		r.logger.WarnContext(ctx, "dropping malformed message", slog.String("error", err.Error()))
		return
	}

	switch m := msg.(type) {
	case *feed.Aggregate:
		if _, tracked := r.tickers[m.Symbol]; !tracked {
			return
		}
		if !m.Close.IsPositive() {
			r.logger.WarnContext(ctx, "dropping non-positive price",
				slog.String("ticker", m.Symbol),
				slog.String("close", m.Close.String()),
			)
			return
		}
		r.send(ctx, domain.PriceTick{Ticker: m.Symbol, Price: m.Close, At: m.At})

	case *feed.MarketState:
		if !m.Open {
			r.logger.WarnContext(ctx, "market reported closed while engine is running",
				slog.Int64("next_open_secs", m.NextOpen),
			)
			return
		}
		if m.NextClose <= r.windDownWithin {
			r.logger.InfoContext(ctx, "market closing soon, winding down",
				slog.Int64("next_close_secs", m.NextClose),
			)
			r.send(ctx, domain.WindDown{})
		}
	}
}

// send forwards an event to the generator. When the receiver is gone the
// orchestrator has cancelled ctx, so the failure is logged and the event
// dropped; the relay itself keeps running until its stream ends.
func (r *Relay) send(ctx context.Context, ev domain.RelayEvent) {
	select {
	case r.out <- ev:
	case <-ctx.Done():
		r.logger.WarnContext(ctx, "receiver gone, dropping event")
	}
}
