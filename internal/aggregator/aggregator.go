// Package aggregator fans quote requests out to every venue for every pair
// under a bounded concurrency limit and merges the results.
package aggregator

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sort"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/alanyoungcy/dexarb/internal/dex"
	"github.com/alanyoungcy/dexarb/internal/domain"
)

// Options tunes the fan-out.
type Options struct {
	// MaxConcurrent bounds the number of in-flight fetches.
	MaxConcurrent int
	// RequestTimeout bounds each individual fetch.
	RequestTimeout time.Duration
	// GracePeriod is how long in-flight fetches may keep running after the
	// parent context is cancelled before they are abandoned.
	GracePeriod time.Duration
}

// Stats summarizes one scan.
type Stats struct {
	Requests  int            `json:"requests"`
	Succeeded int            `json:"succeeded"`
	Failed    int            `json:"failed"`
	Skipped   int            `json:"skipped"`
	Abandoned int            `json:"abandoned"`
	Failures  map[string]int `json:"failures"`
	Elapsed   time.Duration  `json:"elapsed"`
}

// Result holds the quotes of one scan grouped by pair. Pairs without a single
// successful quote are absent. Quotes within a pair are ordered by venue.
type Result struct {
	Quotes map[domain.TokenPair][]domain.Quote
	Stats  Stats
}

// All flattens the quotes in pair-key then venue order.
func (r Result) All() []domain.Quote {
	pairs := make([]domain.TokenPair, 0, len(r.Quotes))
	for p := range r.Quotes {
		pairs = append(pairs, p)
	}
	sort.Slice(pairs, func(i, j int) bool { return pairs[i].Key() < pairs[j].Key() })

	var out []domain.Quote
	for _, p := range pairs {
		out = append(out, r.Quotes[p]...)
	}
	return out
}

// Aggregator runs quote scans.
type Aggregator struct {
	opts   Options
	logger *slog.Logger
}

// New creates an Aggregator. MaxConcurrent below one is treated as one.
func New(opts Options, logger *slog.Logger) *Aggregator {
	if opts.MaxConcurrent < 1 {
		opts.MaxConcurrent = 1
	}
	return &Aggregator{
		opts:   opts,
		logger: logger.With(slog.String("component", "aggregator")),
	}
}

type job struct {
	pair   domain.TokenPair
	source dex.Source
}

type outcome struct {
	job   job
	quote domain.Quote
	err   error
}

// Scan issues one fetch per (pair, source) and returns once every started
// fetch has reported or been abandoned. Individual failures never fail the
// scan; they are counted in Stats.Failures by kind.
func (a *Aggregator) Scan(ctx context.Context, pairs []domain.TokenPair, sources []dex.Source) Result {
	start := time.Now()
	jobs := make([]job, 0, len(pairs)*len(sources))
	for _, p := range pairs {
		for _, s := range sources {
			jobs = append(jobs, job{pair: p, source: s})
		}
	}

	stats := Stats{Requests: len(jobs), Failures: make(map[string]int)}
	quotes := make(map[domain.TokenPair][]domain.Quote)
	if len(jobs) == 0 {
		stats.Elapsed = time.Since(start)
		return Result{Quotes: quotes, Stats: stats}
	}

	// Fetches run on a context detached from the parent so that cancellation
	// only reaches them once the grace period has elapsed.
	workCtx, cancelWork := context.WithCancel(context.WithoutCancel(ctx))
	defer cancelWork()
	abandon := make(chan struct{})
	stopWatch := context.AfterFunc(ctx, func() {
		time.AfterFunc(a.opts.GracePeriod, func() {
			close(abandon)
			cancelWork()
		})
	})
	defer stopWatch()

	sem := semaphore.NewWeighted(int64(a.opts.MaxConcurrent))
	results := make(chan outcome, len(jobs))

	started := 0
	for _, j := range jobs {
		if ctx.Err() != nil {
			break
		}
		if err := sem.Acquire(ctx, 1); err != nil {
			break
		}
		started++
		go func() {
			defer sem.Release(1)
			results <- a.fetch(workCtx, j)
		}()
	}
	stats.Skipped = len(jobs) - started

	received := 0
collect:
	for received < started {
		select {
		case o := <-results:
			received++
			if o.err != nil {
				stats.Failed++
				kind := kindName(o.err)
				stats.Failures[kind]++
				a.logger.DebugContext(ctx, "quote fetch failed",
					slog.String("source", o.job.source.Name()),
					slog.String("pair", o.job.pair.Key()),
					slog.String("kind", kind),
					slog.String("error", o.err.Error()),
				)
				continue
			}
			stats.Succeeded++
			quotes[o.job.pair] = append(quotes[o.job.pair], o.quote)
		case <-abandon:
			break collect
		}
	}
	stats.Abandoned = started - received

	for p := range quotes {
		qs := quotes[p]
		sort.Slice(qs, func(i, j int) bool { return qs[i].Venue < qs[j].Venue })
	}

	stats.Elapsed = time.Since(start)
	if stats.Abandoned > 0 || stats.Skipped > 0 {
		a.logger.WarnContext(ctx, "scan cut short by shutdown",
			slog.Int("skipped", stats.Skipped),
			slog.Int("abandoned", stats.Abandoned),
		)
	}
	return Result{Quotes: quotes, Stats: stats}
}

// fetch runs one quote request under the per-request timeout and validates
// the returned quote.
func (a *Aggregator) fetch(ctx context.Context, j job) (o outcome) {
	o.job = j
	defer func() {
		if r := recover(); r != nil {
			o.err = domain.NewQuoteError(j.source.Name(), j.pair, domain.ErrNetwork, fmt.Errorf("panic: %v", r))
		}
	}()

	fctx := ctx
	if a.opts.RequestTimeout > 0 {
		var cancel context.CancelFunc
		fctx, cancel = context.WithTimeout(ctx, a.opts.RequestTimeout)
		defer cancel()
	}

	q, err := j.source.Quote(fctx, j.pair)
	if err != nil {
		var qe *domain.QuoteError
		if !errors.As(err, &qe) {
			err = domain.NewQuoteError(j.source.Name(), j.pair, domain.ClassifyQuoteError(err), err)
		}
		o.err = err
		return o
	}
	if err := validQuote(q); err != nil {
		o.err = domain.NewQuoteError(j.source.Name(), j.pair, domain.ErrParse, err)
		return o
	}
	q.Venue = j.source.Name()
	q.Pair = j.pair
	o.quote = q
	return o
}

func validQuote(q domain.Quote) error {
	if math.IsNaN(q.Price) || math.IsInf(q.Price, 0) || q.Price <= 0 {
		return fmt.Errorf("invalid price %v", q.Price)
	}
	if math.IsNaN(q.Liquidity) || math.IsInf(q.Liquidity, 0) || q.Liquidity < 0 {
		return fmt.Errorf("invalid liquidity %v", q.Liquidity)
	}
	return nil
}

// kindName labels an error with its quote error kind.
func kindName(err error) string {
	switch {
	case errors.Is(err, domain.ErrInvalidPair):
		return "invalid_pair"
	case errors.Is(err, domain.ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, domain.ErrParse):
		return "parse"
	default:
		return "network"
	}
}
