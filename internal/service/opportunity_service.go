// Package service delivers monitor results to storage, the signal bus and
// notification channels, and serves them back to the API.
package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/event"
	"github.com/alanyoungcy/dexarb/internal/monitor"
)

const (
	defaultKeepLatest = 200
	defaultKeepCycles = 100
)

// Notifier forwards alerts to operators.
type Notifier interface {
	Notify(ctx context.Context, event, title, message string) error
}

// Options tunes an OpportunityService.
type Options struct {
	// MinConfidence gates operator notifications.
	MinConfidence float64
	// Cooldown suppresses repeat alerts for the same pair and direction.
	Cooldown   time.Duration
	KeepLatest int
	KeepCycles int
}

// Deps are optional collaborators; any of them may be nil.
type Deps struct {
	Opportunities domain.OpportunityStore
	Cycles        domain.CycleStore
	Quotes        domain.QuoteCache
	Pools         domain.PoolStore
	Bus           domain.SignalBus
	Notifier      Notifier
}

// OpportunityService implements monitor.Sink. It keeps the latest results in
// memory and fans them out to whichever collaborators are configured.
type OpportunityService struct {
	deps   Deps
	opts   Options
	dedup  *Cooldown
	logger *slog.Logger

	mu     sync.RWMutex
	latest []domain.Opportunity
	cycles []domain.ScanCycle // newest last
	chains []domain.ArbitrageChain
	pools  map[string]domain.Pool
}

// NewOpportunityService creates an OpportunityService.
func NewOpportunityService(deps Deps, opts Options, logger *slog.Logger) *OpportunityService {
	if opts.KeepLatest <= 0 {
		opts.KeepLatest = defaultKeepLatest
	}
	if opts.KeepCycles <= 0 {
		opts.KeepCycles = defaultKeepCycles
	}
	return &OpportunityService{
		deps:   deps,
		opts:   opts,
		dedup:  NewCooldown(opts.Cooldown),
		pools:  make(map[string]domain.Pool),
		logger: logger.With(slog.String("component", "opportunity_service")),
	}
}

// HandleCycle records a completed cycle. Persistence failures are returned;
// bus, cache and notification failures are logged only.
func (s *OpportunityService) HandleCycle(ctx context.Context, report monitor.Report) error {
	s.remember(report.Cycle, report.Opportunities)
	pools := s.rememberMarkets(report)

	if s.deps.Quotes != nil && len(report.Quotes) > 0 {
		if err := s.deps.Quotes.SetQuotes(ctx, report.Quotes); err != nil {
			s.logger.WarnContext(ctx, "cache quotes failed", slog.String("error", err.Error()))
		}
	}

	var errs []error
	if s.deps.Opportunities != nil && len(report.Opportunities) > 0 {
		if err := s.deps.Opportunities.InsertBatch(ctx, report.Opportunities); err != nil {
			errs = append(errs, fmt.Errorf("service: insert opportunities: %w", err))
		}
	}
	if s.deps.Cycles != nil {
		if err := s.deps.Cycles.Insert(ctx, report.Cycle); err != nil {
			errs = append(errs, fmt.Errorf("service: insert cycle: %w", err))
		}
	}
	if s.deps.Pools != nil && len(pools) > 0 {
		if err := s.deps.Pools.UpsertPools(ctx, pools); err != nil {
			errs = append(errs, fmt.Errorf("service: upsert pools: %w", err))
		}
	}

	s.dedup.Prune()
	alerted := 0
	for _, opp := range report.Opportunities {
		s.publishOpportunity(ctx, opp)
		if !s.dedup.Allow(opp) {
			continue
		}
		alerted++
		s.appendStream(ctx, opp)
		if s.deps.Notifier != nil && opp.ConfidenceScore >= s.opts.MinConfidence {
			if err := s.deps.Notifier.Notify(ctx, event.TypeOpportunity, opportunityTitle(opp), opportunityMessage(opp)); err != nil {
				s.logger.WarnContext(ctx, "notify opportunity failed",
					slog.String("opp_id", opp.ID),
					slog.String("error", err.Error()),
				)
			}
		}
	}
	for _, c := range report.Chains {
		s.publishChain(ctx, c)
	}
	s.publishCycle(ctx, event.TypeCycle, report.Cycle)

	s.logger.DebugContext(ctx, "cycle delivered",
		slog.String("cycle_id", report.Cycle.ID),
		slog.Int("opportunities", len(report.Opportunities)),
		slog.Int("chains", len(report.Chains)),
		slog.Int("alerted", alerted),
	)
	return errors.Join(errs...)
}

// HandleFailure records a failed cycle and alerts operators.
func (s *OpportunityService) HandleFailure(ctx context.Context, cycle domain.ScanCycle) {
	s.remember(cycle, nil)

	if s.deps.Cycles != nil {
		if err := s.deps.Cycles.Insert(ctx, cycle); err != nil {
			s.logger.WarnContext(ctx, "insert failed cycle", slog.String("error", err.Error()))
		}
	}
	s.publishCycle(ctx, event.TypeCycleFailed, cycle)

	if s.deps.Notifier != nil {
		msg := fmt.Sprintf("cycle %s failed after %s: %s", cycle.ID, cycle.Duration().Round(time.Millisecond), cycle.Err)
		if err := s.deps.Notifier.Notify(ctx, event.TypeCycleFailed, "Scan cycle failed", msg); err != nil {
			s.logger.WarnContext(ctx, "notify cycle failure failed", slog.String("error", err.Error()))
		}
	}
}

// Latest returns up to limit recent opportunities, from the store when one is
// configured and from memory otherwise.
func (s *OpportunityService) Latest(ctx context.Context, limit int) ([]domain.Opportunity, error) {
	if s.deps.Opportunities != nil {
		opps, err := s.deps.Opportunities.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("service: list recent opportunities: %w", err)
		}
		return opps, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.latest)
	if limit > 0 && limit < n {
		n = limit
	}
	out := make([]domain.Opportunity, n)
	copy(out, s.latest[:n])
	return out, nil
}

// ByPair returns recent opportunities for one pair key ("WETH/USDC").
func (s *OpportunityService) ByPair(ctx context.Context, pairKey string, limit int) ([]domain.Opportunity, error) {
	if s.deps.Opportunities != nil {
		opps, err := s.deps.Opportunities.ListByPair(ctx, pairKey, limit)
		if err != nil {
			return nil, fmt.Errorf("service: list opportunities for %s: %w", pairKey, err)
		}
		return opps, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []domain.Opportunity
	for _, o := range s.latest {
		if limit > 0 && len(out) >= limit {
			break
		}
		if o.Pair.Key() == pairKey {
			out = append(out, o)
		}
	}
	return out, nil
}

// RecentCycles returns up to limit cycle records, newest first.
func (s *OpportunityService) RecentCycles(ctx context.Context, limit int) ([]domain.ScanCycle, error) {
	if s.deps.Cycles != nil {
		cycles, err := s.deps.Cycles.ListRecent(ctx, limit)
		if err != nil {
			return nil, fmt.Errorf("service: list recent cycles: %w", err)
		}
		return cycles, nil
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]domain.ScanCycle, 0, len(s.cycles))
	for i := len(s.cycles) - 1; i >= 0; i-- {
		if limit > 0 && len(out) >= limit {
			break
		}
		out = append(out, s.cycles[i])
	}
	return out, nil
}

func (s *OpportunityService) remember(cycle domain.ScanCycle, opps []domain.Opportunity) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if opps != nil || cycle.Err == "" {
		n := min(len(opps), s.opts.KeepLatest)
		latest := make([]domain.Opportunity, n)
		copy(latest, opps[:n])
		s.latest = latest
	}

	s.cycles = append(s.cycles, cycle)
	if over := len(s.cycles) - s.opts.KeepCycles; over > 0 {
		s.cycles = append([]domain.ScanCycle(nil), s.cycles[over:]...)
	}
}

func (s *OpportunityService) publishOpportunity(ctx context.Context, opp domain.Opportunity) {
	if s.deps.Bus == nil {
		return
	}
	data, err := event.Encode(event.TypeOpportunity, opp.DetectedAt, event.OpportunityPayload(opp))
	if err != nil {
		s.logger.WarnContext(ctx, "encode opportunity event", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, event.ChannelOpportunity, data); err != nil {
		s.logger.WarnContext(ctx, "publish opportunity failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OpportunityService) appendStream(ctx context.Context, opp domain.Opportunity) {
	if s.deps.Bus == nil {
		return
	}
	data, err := event.Encode(event.TypeOpportunity, opp.DetectedAt, event.OpportunityPayload(opp))
	if err != nil {
		return
	}
	if err := s.deps.Bus.StreamAppend(ctx, event.StreamOpportunity, data); err != nil {
		s.logger.WarnContext(ctx, "stream append failed",
			slog.String("opp_id", opp.ID),
			slog.String("error", err.Error()),
		)
	}
}

func (s *OpportunityService) publishCycle(ctx context.Context, typ string, cycle domain.ScanCycle) {
	if s.deps.Bus == nil {
		return
	}
	data, err := event.Encode(typ, cycle.FinishedAt, event.CyclePayload(cycle))
	if err != nil {
		s.logger.WarnContext(ctx, "encode cycle event", slog.String("error", err.Error()))
		return
	}
	if err := s.deps.Bus.Publish(ctx, event.ChannelCycle, data); err != nil {
		s.logger.WarnContext(ctx, "publish cycle failed", slog.String("error", err.Error()))
	}
}

func opportunityTitle(o domain.Opportunity) string {
	return fmt.Sprintf("Arbitrage %s %.2f%%", o.Pair.Key(), o.ProfitPercentage)
}

func opportunityMessage(o domain.Opportunity) string {
	return fmt.Sprintf(
		"buy %s @ %.6f\nsell %s @ %.6f\nprofit %.2f%% (net %.2f%%)\nliquidity %.0f, slippage %.3f%%\nconfidence %.0f",
		o.BuyVenue, o.BuyPrice,
		o.SellVenue, o.SellPrice,
		o.ProfitPercentage, o.NetProfitPercentage,
		o.Liquidity, o.EstimatedSlippage,
		o.ConfidenceScore,
	)
}
