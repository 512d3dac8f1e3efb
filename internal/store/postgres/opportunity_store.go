package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// OpportunityStore implements domain.OpportunityStore using PostgreSQL.
type OpportunityStore struct {
	pool *pgxpool.Pool
}

// NewOpportunityStore creates an OpportunityStore backed by the given pool.
func NewOpportunityStore(pool *pgxpool.Pool) *OpportunityStore {
	return &OpportunityStore{pool: pool}
}

const opportunitySelectCols = `id,
	base_symbol, base_address, base_decimals,
	quote_symbol, quote_address, quote_decimals,
	buy_venue, sell_venue, buy_price, sell_price,
	profit_pct, net_profit_pct, liquidity, confidence,
	slippage_pct, gas_cost_eth, detected_at`

const insertOpportunity = `
	INSERT INTO opportunities (
		id, pair_key,
		base_symbol, base_address, base_decimals,
		quote_symbol, quote_address, quote_decimals,
		buy_venue, sell_venue, buy_price, sell_price,
		profit_pct, net_profit_pct, liquidity, confidence,
		slippage_pct, gas_cost_eth, detected_at
	) VALUES (
		$1, $2,
		$3, $4, $5,
		$6, $7, $8,
		$9, $10, $11, $12,
		$13, $14, $15, $16,
		$17, $18, $19
	)
	ON CONFLICT (id) DO NOTHING`

// InsertBatch stores the opportunities of one cycle in a single round trip.
func (s *OpportunityStore) InsertBatch(ctx context.Context, opps []domain.Opportunity) error {
	if len(opps) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, o := range opps {
		batch.Queue(insertOpportunity, opportunityArgs(o)...)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()
	for _, o := range opps {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: insert opportunity %s: %w", o.ID, err)
		}
	}
	return nil
}

func opportunityArgs(o domain.Opportunity) []any {
	return []any{
		o.ID, o.Pair.Key(),
		o.Pair.Base.Symbol, o.Pair.Base.Address, o.Pair.Base.Decimals,
		o.Pair.Quote.Symbol, o.Pair.Quote.Address, o.Pair.Quote.Decimals,
		o.BuyVenue, o.SellVenue, o.BuyPrice, o.SellPrice,
		o.ProfitPercentage, o.NetProfitPercentage, o.Liquidity, o.ConfidenceScore,
		o.EstimatedSlippage, o.GasCostEstimate, o.DetectedAt,
	}
}

// ListRecent returns the most recent opportunities, newest first.
func (s *OpportunityStore) ListRecent(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities ORDER BY detected_at DESC`
	args := []any{}
	if limit > 0 {
		query += " LIMIT $1"
		args = append(args, limit)
	}
	return s.query(ctx, "list recent opportunities", query, args...)
}

// ListByPair returns the most recent opportunities for a pair key such as
// "WETH/USDC".
func (s *OpportunityStore) ListByPair(ctx context.Context, pairKey string, limit int) ([]domain.Opportunity, error) {
	query := `SELECT ` + opportunitySelectCols + ` FROM opportunities WHERE pair_key = $1 ORDER BY detected_at DESC`
	args := []any{pairKey}
	if limit > 0 {
		query += " LIMIT $2"
		args = append(args, limit)
	}
	return s.query(ctx, "list opportunities by pair", query, args...)
}

func (s *OpportunityStore) query(ctx context.Context, op, query string, args ...any) ([]domain.Opportunity, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: %s: %w", op, err)
	}
	defer rows.Close()

	var opps []domain.Opportunity
	for rows.Next() {
		var o domain.Opportunity
		if err := rows.Scan(
			&o.ID,
			&o.Pair.Base.Symbol, &o.Pair.Base.Address, &o.Pair.Base.Decimals,
			&o.Pair.Quote.Symbol, &o.Pair.Quote.Address, &o.Pair.Quote.Decimals,
			&o.BuyVenue, &o.SellVenue, &o.BuyPrice, &o.SellPrice,
			&o.ProfitPercentage, &o.NetProfitPercentage, &o.Liquidity, &o.ConfidenceScore,
			&o.EstimatedSlippage, &o.GasCostEstimate, &o.DetectedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan opportunity: %w", err)
		}
		opps = append(opps, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: %s rows: %w", op, err)
	}
	return opps, nil
}

// Compile-time interface check.
var _ domain.OpportunityStore = (*OpportunityStore)(nil)
