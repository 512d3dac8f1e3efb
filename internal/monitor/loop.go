// Package monitor runs the periodic scan → detect → deliver cycle.
package monitor

import (
	"context"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/dexarb/internal/aggregator"
	"github.com/alanyoungcy/dexarb/internal/dex"
	"github.com/alanyoungcy/dexarb/internal/domain"
)

// State is the lifecycle state of a Loop.
type State int32

const (
	StateIdle State = iota
	StateScanning
	StateShutdown
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateScanning:
		return "scanning"
	case StateShutdown:
		return "shutdown"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// Scanner collects quotes for every pair from every source.
type Scanner interface {
	Scan(ctx context.Context, pairs []domain.TokenPair, sources []dex.Source) aggregator.Result
}

// Detector turns grouped quotes into ranked opportunities.
type Detector interface {
	Detect(quotes map[domain.TokenPair][]domain.Quote, gasPriceGwei float64) []domain.Opportunity
}

// ChainDetector finds multi-hop cycles in grouped quotes.
type ChainDetector interface {
	FindChains(quotes map[domain.TokenPair][]domain.Quote, gasPriceGwei float64) []domain.ArbitrageChain
}

// GasOracle reports the gas price used for cost estimates.
type GasOracle interface {
	GasPriceGwei(ctx context.Context) float64
}

// Report is everything one cycle produced.
type Report struct {
	Cycle         domain.ScanCycle
	Quotes        []domain.Quote
	Opportunities []domain.Opportunity
	Chains        []domain.ArbitrageChain
	Stats         aggregator.Stats
}

// Sink receives the report of each completed cycle.
type Sink interface {
	HandleCycle(ctx context.Context, report Report) error
}

// FailureSink is implemented by sinks that also want the record of cycles
// that failed.
type FailureSink interface {
	HandleFailure(ctx context.Context, cycle domain.ScanCycle)
}

// Options configures a Loop.
type Options struct {
	Interval time.Duration
	Pairs    []domain.TokenPair
	Sources  []dex.Source
	// Chains enables the multi-hop search when set.
	Chains ChainDetector
}

// Loop drives scan cycles at a fixed cadence. Cycles never overlap.
type Loop struct {
	scanner  Scanner
	detector Detector
	gas      GasOracle
	sink     Sink
	opts     Options
	logger   *slog.Logger

	cycleMu sync.Mutex
	state   atomic.Int32

	mu   sync.RWMutex
	last *domain.ScanCycle
}

// New creates a Loop. gas and sink may be nil.
func New(scanner Scanner, detector Detector, gas GasOracle, sink Sink, opts Options, logger *slog.Logger) *Loop {
	return &Loop{
		scanner:  scanner,
		detector: detector,
		gas:      gas,
		sink:     sink,
		opts:     opts,
		logger:   logger.With(slog.String("component", "monitor")),
	}
}

// State returns the current lifecycle state.
func (l *Loop) State() State {
	return State(l.state.Load())
}

// LastCycle returns the record of the most recent completed cycle.
func (l *Loop) LastCycle() (domain.ScanCycle, bool) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.last == nil {
		return domain.ScanCycle{}, false
	}
	return *l.last, true
}

// Run executes cycles until ctx is cancelled. The next cycle starts
// max(0, interval - elapsed) after the previous one began. Cycle failures are
// logged and never stop the loop; Run only returns ctx's error.
func (l *Loop) Run(ctx context.Context) error {
	defer l.state.Store(int32(StateShutdown))

	l.logger.InfoContext(ctx, "monitor loop starting",
		slog.Duration("interval", l.opts.Interval),
		slog.Int("pairs", len(l.opts.Pairs)),
		slog.Int("sources", len(l.opts.Sources)),
	)

	for {
		if err := ctx.Err(); err != nil {
			l.logger.InfoContext(ctx, "monitor loop stopped")
			return err
		}

		started := time.Now()
		if report, err := l.RunOnce(ctx); err != nil {
			l.logger.ErrorContext(ctx, "scan cycle failed", slog.String("error", err.Error()))
			if fs, ok := l.sink.(FailureSink); ok {
				fs.HandleFailure(ctx, report.Cycle)
			}
		}

		wait := max(l.opts.Interval-time.Since(started), 0)
		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			l.logger.InfoContext(ctx, "monitor loop stopped")
			return ctx.Err()
		case <-timer.C:
		}
	}
}

// RunOnce performs a single cycle. Concurrent callers are serialised.
func (l *Loop) RunOnce(ctx context.Context) (report Report, err error) {
	l.cycleMu.Lock()
	defer l.cycleMu.Unlock()

	l.state.Store(int32(StateScanning))
	defer l.state.CompareAndSwap(int32(StateScanning), int32(StateIdle))

	cycle := domain.ScanCycle{
		ID:           uuid.NewString(),
		StartedAt:    time.Now().UTC(),
		PairsScanned: len(l.opts.Pairs),
	}
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("monitor: cycle panic: %v", r)
			l.logger.ErrorContext(ctx, "scan cycle panicked",
				slog.Any("panic", r),
				slog.String("stack", string(debug.Stack())),
			)
		}
		if cycle.FinishedAt.IsZero() {
			cycle.FinishedAt = time.Now().UTC()
		}
		if err != nil {
			cycle.Err = err.Error()
		}
		report.Cycle = cycle
		l.record(cycle)
	}()

	result := l.scanner.Scan(ctx, l.opts.Pairs, l.opts.Sources)
	cycle.QuotesFetched = result.Stats.Succeeded
	cycle.QuotesFailed = result.Stats.Failed

	var gasPrice float64
	if l.gas != nil {
		gasPrice = l.gas.GasPriceGwei(ctx)
	}
	opps := l.detector.Detect(result.Quotes, gasPrice)
	cycle.Opportunities = len(opps)
	var chains []domain.ArbitrageChain
	if l.opts.Chains != nil {
		chains = l.opts.Chains.FindChains(result.Quotes, gasPrice)
	}

	report = Report{
		Quotes:        result.All(),
		Opportunities: opps,
		Chains:        chains,
		Stats:         result.Stats,
	}

	attrs := []any{
		slog.String("cycle_id", cycle.ID),
		slog.Int("quotes", result.Stats.Succeeded),
		slog.Int("failed", result.Stats.Failed),
		slog.Int("opportunities", len(opps)),
		slog.Int("chains", len(chains)),
		slog.Duration("scan_elapsed", result.Stats.Elapsed),
	}
	if len(opps) > 0 {
		best := opps[0]
		attrs = append(attrs,
			slog.String("best_pair", best.Pair.Key()),
			slog.String("best_route", best.BuyVenue+"->"+best.SellVenue),
			slog.Float64("best_profit_pct", best.ProfitPercentage),
		)
	}
	l.logger.InfoContext(ctx, "scan cycle complete", attrs...)

	cycle.FinishedAt = time.Now().UTC()
	if l.sink != nil {
		report.Cycle = cycle
		if sinkErr := l.sink.HandleCycle(ctx, report); sinkErr != nil {
			return report, fmt.Errorf("monitor: deliver cycle: %w", sinkErr)
		}
	}
	return report, nil
}

func (l *Loop) record(cycle domain.ScanCycle) {
	l.mu.Lock()
	l.last = &cycle
	l.mu.Unlock()
}
