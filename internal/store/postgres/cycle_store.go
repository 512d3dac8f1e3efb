package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// CycleStore implements domain.CycleStore using PostgreSQL.
type CycleStore struct {
	pool *pgxpool.Pool
}

// NewCycleStore creates a CycleStore backed by the given pool.
func NewCycleStore(pool *pgxpool.Pool) *CycleStore {
	return &CycleStore{pool: pool}
}

// Insert records one monitor cycle. Re-inserting the same cycle is a no-op.
func (s *CycleStore) Insert(ctx context.Context, c domain.ScanCycle) error {
	const query = `
		INSERT INTO scan_cycles (
			id, started_at, finished_at,
			pairs_scanned, quotes_fetched, quotes_failed, opportunities, error
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (id) DO NOTHING`

	if _, err := s.pool.Exec(ctx, query,
		c.ID, c.StartedAt, c.FinishedAt,
		c.PairsScanned, c.QuotesFetched, c.QuotesFailed, c.Opportunities, c.Err,
	); err != nil {
		return fmt.Errorf("postgres: insert scan cycle %s: %w", c.ID, err)
	}
	return nil
}

// ListRecent returns the latest cycles, newest first.
func (s *CycleStore) ListRecent(ctx context.Context, limit int) ([]domain.ScanCycle, error) {
	query := `SELECT id, started_at, finished_at, pairs_scanned, quotes_fetched,
		quotes_failed, opportunities, error
		FROM scan_cycles ORDER BY started_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent cycles: %w", err)
	}
	defer rows.Close()

	var cycles []domain.ScanCycle
	for rows.Next() {
		var c domain.ScanCycle
		if err := rows.Scan(
			&c.ID, &c.StartedAt, &c.FinishedAt, &c.PairsScanned, &c.QuotesFetched,
			&c.QuotesFailed, &c.Opportunities, &c.Err,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan cycle row: %w", err)
		}
		cycles = append(cycles, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list recent cycles rows: %w", err)
	}
	return cycles, nil
}

// Compile-time interface check.
var _ domain.CycleStore = (*CycleStore)(nil)
