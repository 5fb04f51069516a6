// Package dataprep builds the historical research dataset: chunked downloads
// of unadjusted five-minute bars, back-adjustment for dividends and splits,
// and a JSON artifact on disk with optional object-storage upload.
package dataprep

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/alanyoungcy/pairsbot/internal/domain"
	"github.com/alanyoungcy/pairsbot/internal/marketdata"
)

// HistorySource is the slice of the reference-data API the dataset build
// consumes.
type HistorySource interface {
	Aggregates(ctx context.Context, ticker string, from, to time.Time) ([]marketdata.Bar, error)
	Dividends(ctx context.Context, ticker string, since time.Time) ([]marketdata.Dividend, error)
	Splits(ctx context.Context, ticker string, since time.Time) ([]marketdata.Split, error)
}

// Config tunes the dataset build.
type Config struct {
	OutputDir string
	// Days is the business-day lookback.
	Days int
	// ChunkDays is the calendar-day span of each download request.
	ChunkDays int
	Upload    bool
}

// Series is one ticker's adjusted price history, parallel slices of Unix
// timestamps (seconds) and decimal prices rendered as strings.
type Series struct {
	Timestamps []int64  `json:"timestamps"`
	Prices     []string `json:"prices"`
}

// Builder runs the dataset build. blob may be nil when upload is disabled.
type Builder struct {
	source HistorySource
	blob   domain.BlobWriter
	cfg    Config
	logger *slog.Logger
}

// NewBuilder creates a Builder.
func NewBuilder(source HistorySource, blob domain.BlobWriter, cfg Config, logger *slog.Logger) *Builder {
	if cfg.Days <= 0 {
		cfg.Days = 100
	}
	if cfg.ChunkDays <= 0 {
		cfg.ChunkDays = 35
	}
	if cfg.OutputDir == "" {
		cfg.OutputDir = "data"
	}
	return &Builder{
		source: source,
		blob:   blob,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "dataprep")),
	}
}

// Run downloads, adjusts, and writes the dataset for every ticker. A ticker
// whose download fails is dropped with a warning; the build fails only when
// no ticker survives or the artifact cannot be written.
func (b *Builder) Run(ctx context.Context, tickers []string) error {
	now := time.Now().UTC()
	from := businessDaysBack(now, b.cfg.Days)

	b.logger.InfoContext(ctx, "dataset build starting",
		slog.Int("tickers", len(tickers)),
		slog.String("from", from.Format(dateLayout)),
		slog.String("to", now.Format(dateLayout)),
	)

	dataset := make(map[string]Series, len(tickers))
	for _, ticker := range tickers {
		series, err := b.buildTicker(ctx, ticker, from, now)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			b.logger.WarnContext(ctx, "dropping ticker from dataset",
				slog.String("ticker", ticker),
				slog.String("error", err.Error()),
			)
			continue
		}
		dataset[ticker] = series
	}
	if len(dataset) == 0 {
		return fmt.Errorf("dataprep: no ticker produced data")
	}

	payload, err := json.MarshalIndent(dataset, "", "  ")
	if err != nil {
		return fmt.Errorf("dataprep: marshal dataset: %w", err)
	}

	name := fmt.Sprintf("dataset-%s.json", now.Format(dateLayout))
	path := filepath.Join(b.cfg.OutputDir, name)
	if err := os.MkdirAll(b.cfg.OutputDir, 0o755); err != nil {
		return fmt.Errorf("dataprep: create output dir: %w", err)
	}
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("dataprep: write dataset: %w", err)
	}
	b.logger.InfoContext(ctx, "dataset written",
		slog.String("path", path),
		slog.Int("tickers", len(dataset)),
	)

	if b.cfg.Upload && b.blob != nil {
		key := "datasets/" + name
		if err := b.blob.Put(ctx, key, bytes.NewReader(payload), "application/json"); err != nil {
			return fmt.Errorf("dataprep: upload dataset: %w", err)
		}
		b.logger.InfoContext(ctx, "dataset uploaded", slog.String("key", key))
	}
	return nil
}

// buildTicker downloads one ticker's bars window by window and back-adjusts
// the stitched series.
func (b *Builder) buildTicker(ctx context.Context, ticker string, from, to time.Time) (Series, error) {
	var bars []marketdata.Bar
	for _, w := range windows(from, to, b.cfg.ChunkDays) {
		chunk, err := b.source.Aggregates(ctx, ticker, w.from, w.to)
		if err != nil {
			return Series{}, fmt.Errorf("aggregates %s..%s: %w", w.from.Format(dateLayout), w.to.Format(dateLayout), err)
		}
		bars = append(bars, chunk...)
	}
	if len(bars) == 0 {
		return Series{}, fmt.Errorf("no bars in window")
	}

	divs, err := b.source.Dividends(ctx, ticker, from)
	if err != nil {
		return Series{}, fmt.Errorf("dividends: %w", err)
	}
	splits, err := b.source.Splits(ctx, ticker, from)
	if err != nil {
		return Series{}, fmt.Errorf("splits: %w", err)
	}

	adjusted := AdjustBars(bars, divs, splits)

	series := Series{
		Timestamps: make([]int64, len(adjusted)),
		Prices:     make([]string, len(adjusted)),
	}
	for i, bar := range adjusted {
		series.Timestamps[i] = bar.At.Unix()
		series.Prices[i] = bar.Close.String()
	}
	return series, nil
}
