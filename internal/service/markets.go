package service

import (
	"context"
	"fmt"
	"log/slog"
	"sort"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/event"
	"github.com/alanyoungcy/dexarb/internal/monitor"
)

// rememberMarkets keeps the chains of the latest cycle and merges
// its quotes into the in-memory pool table. It returns the pools the cycle
// observed.
func (s *OpportunityService) rememberMarkets(report monitor.Report) []domain.Pool {
	pools := make([]domain.Pool, 0, len(report.Quotes))
	for _, q := range report.Quotes {
		pools = append(pools, domain.PoolFromQuote(q))
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.chains = append([]domain.ArbitrageChain(nil), report.Chains...)
	for _, p := range pools {
		if prev, ok := s.pools[p.Key()]; ok && prev.UpdatedAt.After(p.UpdatedAt) {
			continue
		}
		s.pools[p.Key()] = p
	}
	return pools
}

// Chains returns up to limit chains of the latest cycle, best first.
func (s *OpportunityService) Chains(_ context.Context, limit int) ([]domain.ArbitrageChain, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.chains)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.ArbitrageChain, n)
	copy(out, s.chains[:n])
	return out, nil
}

// Pools returns the pools matching f, deepest first, from the store when one
// is configured and from memory otherwise.
func (s *OpportunityService) Pools(ctx context.Context, f domain.PoolFilter) ([]domain.Pool, error) {
	if s.deps.Pools != nil {
		pools, err := s.deps.Pools.ListPools(ctx, f)
		if err != nil {
			return nil, fmt.Errorf("service: list pools: %w", err)
		}
		return pools, nil
	}

	s.mu.RLock()
	out := make([]domain.Pool, 0, len(s.pools))
	for _, p := range s.pools {
		if f.Match(p) {
			out = append(out, p)
		}
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if out[i].Liquidity != out[j].Liquidity {
			return out[i].Liquidity > out[j].Liquidity
		}
		return out[i].Key() < out[j].Key()
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// Pool returns one venue's pool for a pair key, or domain.ErrNotFound.
func (s *OpportunityService) Pool(ctx context.Context, venue, pairKey string) (domain.Pool, error) {
	if s.deps.Pools != nil {
		p, err := s.deps.Pools.GetPool(ctx, venue, pairKey)
		if err != nil {
			return domain.Pool{}, fmt.Errorf("service: get pool: %w", err)
		}
		return p, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.pools[venue+"|"+pairKey]
	if !ok {
		return domain.Pool{}, fmt.Errorf("service: pool %s|%s: %w", venue, pairKey, domain.ErrNotFound)
	}
	return p, nil
}

// PoolStats summarizes the known pools.
func (s *OpportunityService) PoolStats(ctx context.Context) (domain.PoolStats, error) {
	if s.deps.Pools != nil {
		st, err := s.deps.Pools.Stats(ctx)
		if err != nil {
			return domain.PoolStats{}, fmt.Errorf("service: pool stats: %w", err)
		}
		return st, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	st := domain.PoolStats{Count: len(s.pools)}
	venues := make(map[string]bool)
	var total float64
	for _, p := range s.pools {
		venues[p.Venue] = true
		total += p.Liquidity
		st.MaxLiquidity = max(st.MaxLiquidity, p.Liquidity)
	}
	st.Venues = len(venues)
	if st.Count > 0 {
		st.AvgLiquidity = total / float64(st.Count)
	}
	return st, nil
}

func (s *OpportunityService) publishChain(ctx context.Context, c domain.ArbitrageChain) {
	if s.deps.Bus == nil {
		return
	}
	data, err := event.Encode(event.TypeChain, c.DetectedAt, event.ChainPayload(c))
	if err != nil {
		s.logger.WarnContext(ctx, "encode chain event", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, event.ChannelChain, data); err != nil {
		s.logger.WarnContext(ctx, "publish chain failed",
			slog.String("chain_id", c.ID),
			slog.String("error", err.Error()),
		)
	}
}
