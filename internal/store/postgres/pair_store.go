package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/alanyoungcy/pairsbot/internal/domain"
)

// PairStore implements domain.PairSource using PostgreSQL. It is the
// operational alternative to the CSV file: pairs can be toggled without a
// redeploy by flipping the enabled flag.
type PairStore struct {
	pool *pgxpool.Pool
}

// NewPairStore creates a new PairStore backed by the given connection pool.
func NewPairStore(pool *pgxpool.Pool) *PairStore {
	return &PairStore{pool: pool}
}

// Pairs returns every enabled pair, validated the same way as the CSV path.
func (s *PairStore) Pairs(ctx context.Context) ([]domain.TradePair, error) {
	const query = `
		SELECT asset_1, asset_2, original_lt_spread, original_st_spread, epsilon
		FROM trade_pairs
		WHERE enabled
		ORDER BY asset_1, asset_2`

	rows, err := s.pool.Query(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("postgres: query trade_pairs: %w", err)
	}
	defer rows.Close()

	var pairs []domain.TradePair
	for rows.Next() {
		var pair domain.TradePair
		var lt, st, epsilon string
		if err := rows.Scan(&pair.Asset1, &pair.Asset2, &lt, &st, &epsilon); err != nil {
			return nil, fmt.Errorf("postgres: scan trade_pair: %w", err)
		}
		if pair.OriginalLtSpread, err = decimal.NewFromString(lt); err != nil {
			return nil, fmt.Errorf("postgres: trade_pair %s/%s original_lt_spread: %w", pair.Asset1, pair.Asset2, err)
		}
		if pair.OriginalStSpread, err = decimal.NewFromString(st); err != nil {
			return nil, fmt.Errorf("postgres: trade_pair %s/%s original_st_spread: %w", pair.Asset1, pair.Asset2, err)
		}
		if pair.Epsilon, err = decimal.NewFromString(epsilon); err != nil {
			return nil, fmt.Errorf("postgres: trade_pair %s/%s epsilon: %w", pair.Asset1, pair.Asset2, err)
		}
		if err := pair.Validate(); err != nil {
			return nil, fmt.Errorf("postgres: trade_pair %s/%s: %w", pair.Asset1, pair.Asset2, err)
		}
		pairs = append(pairs, pair)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: iterate trade_pairs: %w", err)
	}
	return pairs, nil
}

// Compile-time interface check.
var _ domain.PairSource = (*PairStore)(nil)
