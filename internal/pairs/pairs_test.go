package pairs

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

func writePairsFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "trade_pairs.csv")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const validCSV = `asset_1,asset_2,original_lt_spread,original_st_spread,epsilon
AAA,BBB,0.05,0.01,0.02
CCC,DDD,-0.1,0,0.015
`

func TestCSVSourcePairs(t *testing.T) {
	src := NewCSVSource(writePairsFile(t, validCSV))

	pairs, err := src.Pairs(context.Background())
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, "AAA", pairs[0].Asset1)
	assert.Equal(t, "BBB", pairs[0].Asset2)
	assert.Equal(t, "0.05", pairs[0].OriginalLtSpread.String())
	assert.Equal(t, "0.01", pairs[0].OriginalStSpread.String())
	assert.Equal(t, "0.02", pairs[0].Epsilon.String())
	assert.Equal(t, "CCC-DDD", pairs[1].SubStrategy())
}

func TestCSVSourceRejectsBadFiles(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"wrong header", "a,b,c,d,e\nAAA,BBB,0,0,0.1\n"},
		{"bad decimal", "asset_1,asset_2,original_lt_spread,original_st_spread,epsilon\nAAA,BBB,x,0,0.1\n"},
		{"negative epsilon", "asset_1,asset_2,original_lt_spread,original_st_spread,epsilon\nAAA,BBB,0,0,-0.1\n"},
		{"same legs", "asset_1,asset_2,original_lt_spread,original_st_spread,epsilon\nAAA,AAA,0,0,0.1\n"},
		{"short row", "asset_1,asset_2,original_lt_spread,original_st_spread,epsilon\nAAA,BBB,0\n"},
		{"empty", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			src := NewCSVSource(writePairsFile(t, tt.content))
			_, err := src.Pairs(context.Background())
			assert.Error(t, err)
		})
	}
}

func TestCSVSourceMissingFile(t *testing.T) {
	src := NewCSVSource(filepath.Join(t.TempDir(), "nope.csv"))
	_, err := src.Pairs(context.Background())
	assert.Error(t, err)
}

func TestUniverse(t *testing.T) {
	pairs := []domain.TradePair{
		{Asset1: "AAA", Asset2: "BBB"},
		{Asset1: "BBB", Asset2: "CCC"},
	}
	universe := Universe(pairs)
	assert.Len(t, universe, 3)
	for _, ticker := range []string{"AAA", "BBB", "CCC"} {
		assert.Contains(t, universe, ticker)
	}
}

// mapSnapshots serves snapshots from a fixed map and errors on anything else.
type mapSnapshots map[string]domain.Snapshot

func (m mapSnapshots) OpenClose(ctx context.Context, ticker string) (domain.Snapshot, error) {
	snap, ok := m[ticker]
	if !ok {
		return domain.Snapshot{}, fmt.Errorf("no snapshot for %s: %w", ticker, domain.ErrNotFound)
	}
	return snap, nil
}

func TestBuildBandsDropsPairsWithMissingSnapshots(t *testing.T) {
	src := NewCSVSource(writePairsFile(t, validCSV))
	pairs, err := src.Pairs(context.Background())
	require.NoError(t, err)

	snaps := mapSnapshots{
		"AAA": {Open: decimal.RequireFromString("110"), PrevClose: decimal.RequireFromString("108")},
		"BBB": {Open: decimal.RequireFromString("100"), PrevClose: decimal.RequireFromString("101")},
		// CCC and DDD missing: the second pair is dropped.
	}

	bands, err := BuildBands(context.Background(), pairs, snaps, slog.Default())
	require.NoError(t, err)
	require.Len(t, bands, 1)
	assert.Equal(t, "AAA-BBB", bands[0].SubStrategy())
	assert.True(t, bands[0].LowerBand.LessThan(bands[0].UpperBand))
}

func TestBuildBandsFailsWhenNothingSurvives(t *testing.T) {
	src := NewCSVSource(writePairsFile(t, validCSV))
	pairs, err := src.Pairs(context.Background())
	require.NoError(t, err)

	_, err = BuildBands(context.Background(), pairs, mapSnapshots{}, slog.Default())
	assert.Error(t, err)
}
