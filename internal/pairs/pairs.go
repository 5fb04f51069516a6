// Package pairs loads the static pair universe and builds the per-session
// trade bands before the live loop starts.
package pairs

import (
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"os"

	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// csvHeader is the required column order of the pairs file.
var csvHeader = []string{"asset_1", "asset_2", "original_lt_spread", "original_st_spread", "epsilon"}

// CSVSource reads TradePair rows from a CSV file. It implements
// domain.PairSource. A malformed file is a construction-time failure and
// aborts startup rather than being skipped row by row.
type CSVSource struct {
	path string
}

// NewCSVSource creates a CSVSource for the given file path.
func NewCSVSource(path string) *CSVSource {
	return &CSVSource{path: path}
}

// Pairs parses the whole file. The header row must match the expected
// columns exactly.
func (s *CSVSource) Pairs(ctx context.Context) ([]domain.TradePair, error) {
	f, err := os.Open(s.path)
	if err != nil {
		return nil, fmt.Errorf("pairs: open %s: %w", s.path, err)
	}
	defer f.Close()

	reader := csv.NewReader(f)
	reader.FieldsPerRecord = len(csvHeader)

	records, err := reader.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("pairs: read %s: %w", s.path, err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("pairs: %s is empty", s.path)
	}

	for i, col := range csvHeader {
		if records[0][i] != col {
			return nil, fmt.Errorf("pairs: %s: header column %d is %q, want %q", s.path, i, records[0][i], col)
		}
	}

	out := make([]domain.TradePair, 0, len(records)-1)
	for i, row := range records[1:] {
		pair, err := parseRow(row)
		if err != nil {
			return nil, fmt.Errorf("pairs: %s row %d: %w", s.path, i+2, err)
		}
		out = append(out, pair)
	}
	return out, nil
}

func parseRow(row []string) (domain.TradePair, error) {
	lt, err := decimal.NewFromString(row[2])
	if err != nil {
		return domain.TradePair{}, fmt.Errorf("original_lt_spread: %w", err)
	}
	st, err := decimal.NewFromString(row[3])
	if err != nil {
		return domain.TradePair{}, fmt.Errorf("original_st_spread: %w", err)
	}
	epsilon, err := decimal.NewFromString(row[4])
	if err != nil {
		return domain.TradePair{}, fmt.Errorf("epsilon: %w", err)
	}

	pair := domain.TradePair{
		Asset1:           row[0],
		Asset2:           row[1],
		OriginalLtSpread: lt,
		OriginalStSpread: st,
		Epsilon:          epsilon,
	}
	if err := pair.Validate(); err != nil {
		return domain.TradePair{}, err
	}
	return pair, nil
}

// Universe returns the set of every ticker appearing in the pair list. Built
// once and shared read-only with the relay.
func Universe(pairs []domain.TradePair) map[string]struct{} {
	tickers := make(map[string]struct{}, 2*len(pairs))
	for _, p := range pairs {
		tickers[p.Asset1] = struct{}{}
		tickers[p.Asset2] = struct{}{}
	}
	return tickers
}

// BuildBands derives the session bands for every pair from each leg's
// open/previous-close snapshot. A pair whose snapshots cannot be fetched is
// dropped with a warning rather than failing the session; it returns an
// error only when no pair survives.
func BuildBands(ctx context.Context, tradePairs []domain.TradePair, snapshots domain.SnapshotSource, logger *slog.Logger) ([]domain.TradeBands, error) {
	logger = logger.With(slog.String("component", "pairs"))

	bands := make([]domain.TradeBands, 0, len(tradePairs))
	for _, pair := range tradePairs {
		leg1, err := snapshots.OpenClose(ctx, pair.Asset1)
		if err != nil {
			logger.WarnContext(ctx, "dropping pair, snapshot unavailable",
				slog.String("sub_strategy", pair.SubStrategy()),
				slog.String("ticker", pair.Asset1),
				slog.String("error", err.Error()),
			)
			continue
		}
		leg2, err := snapshots.OpenClose(ctx, pair.Asset2)
		if err != nil {
			logger.WarnContext(ctx, "dropping pair, snapshot unavailable",
				slog.String("sub_strategy", pair.SubStrategy()),
				slog.String("ticker", pair.Asset2),
				slog.String("error", err.Error()),
			)
			continue
		}

		b, err := domain.NewTradeBands(pair, leg1, leg2)
		if err != nil {
			return nil, fmt.Errorf("pairs: bands for %s: %w", pair.SubStrategy(), err)
		}
		bands = append(bands, b)
	}

	if len(bands) == 0 {
		return nil, fmt.Errorf("pairs: no tradable pairs (all %d dropped)", len(tradePairs))
	}
	return bands, nil
}

// Compile-time interface check.
var _ domain.PairSource = (*CSVSource)(nil)
