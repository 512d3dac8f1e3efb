package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// PoolStore implements domain.PoolStore using PostgreSQL.
type PoolStore struct {
	pool *pgxpool.Pool
}

// NewPoolStore creates a PoolStore backed by the given pool.
func NewPoolStore(pool *pgxpool.Pool) *PoolStore {
	return &PoolStore{pool: pool}
}

const poolSelectCols = `venue,
	base_symbol, base_address, base_decimals,
	quote_symbol, quote_address, quote_decimals,
	price, liquidity, fee, updated_at`

// Older observations never overwrite newer ones.
const upsertPool = `
	INSERT INTO pools (
		venue, pair_key,
		base_symbol, base_address, base_decimals,
		quote_symbol, quote_address, quote_decimals,
		price, liquidity, fee, updated_at
	) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (venue, pair_key) DO UPDATE SET
		base_address = EXCLUDED.base_address,
		quote_address = EXCLUDED.quote_address,
		price = EXCLUDED.price,
		liquidity = EXCLUDED.liquidity,
		fee = EXCLUDED.fee,
		updated_at = EXCLUDED.updated_at
	WHERE pools.updated_at <= EXCLUDED.updated_at`

// UpsertPools records the latest state of each pool in a single round trip.
func (s *PoolStore) UpsertPools(ctx context.Context, pools []domain.Pool) error {
	if len(pools) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, p := range pools {
		batch.Queue(upsertPool, poolArgs(p)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, p := range pools {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert pool %s: %w", p.Key(), err)
		}
	}
	return nil
}

func poolArgs(p domain.Pool) []any {
	return []any{
		p.Venue, p.Pair.Key(),
		p.Pair.Base.Symbol, p.Pair.Base.Address, p.Pair.Base.Decimals,
		p.Pair.Quote.Symbol, p.Pair.Quote.Address, p.Pair.Quote.Decimals,
		p.Price, p.Liquidity, p.Fee, p.UpdatedAt,
	}
}

// poolQuery builds the filtered listing, deepest pools first.
func poolQuery(f domain.PoolFilter) (string, []any) {
	var (
		conds []string
		args  []any
	)
	arg := func(v any) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}
	if f.Venue != "" {
		conds = append(conds, "lower(venue) = lower("+arg(f.Venue)+")")
	}
	if f.Token != "" {
		n := arg(strings.ToLower(f.Token))
		conds = append(conds, fmt.Sprintf(
			"(lower(base_symbol) = %[1]s OR lower(base_address) = %[1]s OR lower(quote_symbol) = %[1]s OR lower(quote_address) = %[1]s)", n))
	}
	if f.MinLiquidity > 0 {
		conds = append(conds, "liquidity >= "+arg(f.MinLiquidity))
	}

	query := `SELECT ` + poolSelectCols + ` FROM pools`
	if len(conds) > 0 {
		query += " WHERE " + strings.Join(conds, " AND ")
	}
	query += " ORDER BY liquidity DESC, venue, pair_key"
	if f.Limit > 0 {
		query += " LIMIT " + arg(f.Limit)
	}
	return query, args
}

// ListPools returns the pools matching f, deepest first.
func (s *PoolStore) ListPools(ctx context.Context, f domain.PoolFilter) ([]domain.Pool, error) {
	query, args := poolQuery(f)
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list pools: %w", err)
	}
	defer rows.Close()

	var pools []domain.Pool
	for rows.Next() {
		p, err := scanPool(rows)
		if err != nil {
			return nil, err
		}
		pools = append(pools, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list pools rows: %w", err)
	}
	return pools, nil
}

// GetPool returns one venue's pool for a pair key such as "WETH/USDC".
func (s *PoolStore) GetPool(ctx context.Context, venue, pairKey string) (domain.Pool, error) {
	query := `SELECT ` + poolSelectCols + ` FROM pools WHERE venue = $1 AND pair_key = $2`
	p, err := scanPool(s.pool.QueryRow(ctx, query, venue, pairKey))
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.Pool{}, fmt.Errorf("postgres: pool %s|%s: %w", venue, pairKey, domain.ErrNotFound)
	}
	return p, err
}

// Stats summarizes the stored pools.
func (s *PoolStore) Stats(ctx context.Context) (domain.PoolStats, error) {
	const query = `SELECT COUNT(*), COUNT(DISTINCT venue),
		COALESCE(AVG(liquidity), 0), COALESCE(MAX(liquidity), 0)
		FROM pools`
	var st domain.PoolStats
	if err := s.pool.QueryRow(ctx, query).Scan(&st.Count, &st.Venues, &st.AvgLiquidity, &st.MaxLiquidity); err != nil {
		return domain.PoolStats{}, fmt.Errorf("postgres: pool stats: %w", err)
	}
	return st, nil
}

func scanPool(row pgx.Row) (domain.Pool, error) {
	var p domain.Pool
	if err := row.Scan(
		&p.Venue,
		&p.Pair.Base.Symbol, &p.Pair.Base.Address, &p.Pair.Base.Decimals,
		&p.Pair.Quote.Symbol, &p.Pair.Quote.Address, &p.Pair.Quote.Decimals,
		&p.Price, &p.Liquidity, &p.Fee, &p.UpdatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return domain.Pool{}, err
		}
		return domain.Pool{}, fmt.Errorf("postgres: scan pool: %w", err)
	}
	return p, nil
}

// Compile-time interface check.
var _ domain.PoolStore = (*PoolStore)(nil)
