package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/pairsbot/internal/dataprep"
	"github.com/alanyoungcy/pairsbot/internal/domain"
	"github.com/alanyoungcy/pairsbot/internal/generator"
	"github.com/alanyoungcy/pairsbot/internal/notify"
	"github.com/alanyoungcy/pairsbot/internal/pairs"
	"github.com/alanyoungcy/pairsbot/internal/relay"
)

// errEngineDone marks the generator's normal completion inside the errgroup,
// so its return cancels the relay without surfacing as a failure.
var errEngineDone = errors.New("engine done")

// eventBufferSize decouples relay fan-out from the generator's single loop; a
// burst of ticks queues here instead of stalling the relay workers.
const eventBufferSize = 256

// TradeMode runs the live engine: pair loading, band construction, then the
// relay and the trade generator side by side. It returns when the generator
// finishes — wind-down or relay channel closure — or when ctx is cancelled.
func (a *App) TradeMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting trade mode")

	tradePairs, err := deps.Pairs.Pairs(ctx)
	if err != nil {
		return fmt.Errorf("trade mode: load pairs: %w", err)
	}
	universe := pairs.Universe(tradePairs)

	bands, err := pairs.BuildBands(ctx, tradePairs, deps.Snapshots, a.logger)
	if err != nil {
		return fmt.Errorf("trade mode: %w", err)
	}
	a.logger.InfoContext(ctx, "session bands built",
		slog.Int("pairs", len(bands)),
		slog.Int("tickers", len(universe)),
	)

	if err := deps.Notifier.Notify(ctx, notify.EventStartup, "Pairs engine started",
		fmt.Sprintf("%d pairs, %d tickers, strategy %s", len(bands), len(universe), a.cfg.Strategy.Name),
	); err != nil {
		a.logger.WarnContext(ctx, "startup notification failed", slog.String("error", err.Error()))
	}

	events := make(chan domain.RelayEvent, eventBufferSize)

	rel := relay.New(universe, deps.Feed, events, relay.Config{
		MaxInFlight:    a.cfg.Relay.MaxInFlight,
		WindDownWithin: a.cfg.Relay.WindDownWithinSec,
	}, a.logger)

	gen := generator.New(a.cfg.CashDecimal(), bands, events, deps.Intents, generator.Config{
		Strategy:     a.cfg.Strategy.Name,
		InitialDelay: a.cfg.Strategy.InitialDelay.Duration,
		Interval:     a.cfg.Strategy.Interval.Duration,
	}, a.logger)

	// The generator decides when the engine is done; its completion cancels
	// the relay through the shared group context.
	g, runCtx := errgroup.WithContext(ctx)
	g.Go(func() error {
		defer close(events)
		return rel.Run(runCtx)
	})
	g.Go(func() error {
		if err := gen.Run(runCtx); err != nil {
			return err
		}
		return errEngineDone
	})

	err = g.Wait()
	event := stopEvent(err)
	if nerr := deps.Notifier.Notify(ctx, event, "Pairs engine stopped",
		fmt.Sprintf("strategy %s, reason %s", a.cfg.Strategy.Name, event),
	); nerr != nil {
		a.logger.WarnContext(ctx, "stop notification failed", slog.String("error", nerr.Error()))
	}

	switch {
	case err == nil || errors.Is(err, errEngineDone):
		return nil
	case errors.Is(err, generator.ErrFeedClosed):
		// The feed ended before wind-down. The generator never flattened, so
		// the stop is abnormal, but the engine itself did nothing wrong.
		a.logger.WarnContext(ctx, "engine stopped before wind-down")
		return nil
	default:
		return fmt.Errorf("trade mode: %w", err)
	}
}

// stopEvent classifies the engine's exit for the operator notification: a
// wind-down (or a clean cancellation) is routine, everything else is an
// abnormal stop.
func stopEvent(err error) notify.Event {
	if err == nil || errors.Is(err, errEngineDone) {
		return notify.EventWindDown
	}
	return notify.EventAbnormalStop
}

// PrepareMode runs the historical dataset build for the full ticker universe.
func (a *App) PrepareMode(ctx context.Context, deps *Dependencies) error {
	a.logger.InfoContext(ctx, "starting prepare mode")

	tradePairs, err := deps.Pairs.Pairs(ctx)
	if err != nil {
		return fmt.Errorf("prepare mode: load pairs: %w", err)
	}

	universe := pairs.Universe(tradePairs)
	tickers := make([]string, 0, len(universe))
	for ticker := range universe {
		tickers = append(tickers, ticker)
	}
	sort.Strings(tickers)

	builder := dataprep.NewBuilder(deps.History, deps.BlobWriter, dataprep.Config{
		OutputDir: a.cfg.DataPrep.OutputDir,
		Days:      a.cfg.DataPrep.Days,
		ChunkDays: a.cfg.DataPrep.ChunkDays,
		Upload:    a.cfg.DataPrep.Upload,
	}, a.logger)

	if err := builder.Run(ctx, tickers); err != nil {
		return fmt.Errorf("prepare mode: %w", err)
	}
	return nil
}
