package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"text/tabwriter"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alanyoungcy/dexarb/internal/dex"
	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/monitor"
	"github.com/alanyoungcy/dexarb/internal/server"
	"github.com/alanyoungcy/dexarb/internal/server/handler"
	"github.com/alanyoungcy/dexarb/internal/server/ws"
)

// healthTimeout bounds each source's startup health check.
const healthTimeout = 10 * time.Second

// MonitorMode runs the scan loop until ctx is cancelled, with the HTTP API and
// WebSocket feed alongside when the server is enabled.
func (a *App) MonitorMode(ctx context.Context, deps *Dependencies) error {
	loop, venues, err := a.prepareLoop(ctx, deps)
	if err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return ignoreCanceled(loop.Run(ctx))
	})
	g.Go(func() error {
		a.refreshTokens(ctx, deps)
		return nil
	})
	if a.cfg.Server.Enabled {
		a.startHTTPServer(ctx, g, deps, loop, venues)
	}
	return g.Wait()
}

// ScanMode runs a single cycle, prints the opportunity table and exits.
func (a *App) ScanMode(ctx context.Context, deps *Dependencies) error {
	loop, _, err := a.prepareLoop(ctx, deps)
	if err != nil {
		return err
	}

	report, err := loop.RunOnce(ctx)
	if err != nil {
		return fmt.Errorf("scan mode: %w", err)
	}
	a.logger.InfoContext(ctx, "scan complete",
		slog.Int("quotes", report.Cycle.QuotesFetched),
		slog.Int("failed", report.Cycle.QuotesFailed),
		slog.Int("opportunities", len(report.Opportunities)),
		slog.Int("chains", len(report.Chains)),
		slog.Duration("elapsed", report.Cycle.Duration()),
	)
	if err := monitor.WriteTable(a.out, report.Opportunities); err != nil {
		return err
	}
	if deps.Chains == nil {
		return nil
	}
	fmt.Fprintln(a.out)
	return monitor.WriteChainTable(a.out, report.Chains)
}

// TokensMode force-refreshes the token cache (archiving the snapshot when S3
// is enabled) and prints the top of the list.
func (a *App) TokensMode(ctx context.Context, deps *Dependencies) error {
	if err := deps.Tokens.Load(ctx); err != nil {
		a.logger.WarnContext(ctx, "token cache load failed", slog.String("error", err.Error()))
	}
	list, err := deps.Tokens.GetTokens(ctx, true, 0)
	if err != nil {
		return fmt.Errorf("tokens mode: %w", err)
	}
	a.logger.InfoContext(ctx, "token cache ready",
		slog.Int("tokens", list.TotalCount),
		slog.Time("last_updated", list.LastUpdated),
		slog.String("path", a.cfg.Cache.FilePath),
	)

	top, err := deps.Tokens.GetTopTokens(ctx, 20)
	if err != nil {
		return fmt.Errorf("tokens mode: %w", err)
	}
	return writeTokenTable(a.out, top, a.cfg.Registry.Platform)
}

// ServerMode serves the HTTP API over stored data without scanning.
func (a *App) ServerMode(ctx context.Context, deps *Dependencies) error {
	if err := deps.Tokens.Load(ctx); err != nil {
		a.logger.WarnContext(ctx, "token cache load failed", slog.String("error", err.Error()))
	}
	if deps.OpportunityStore == nil {
		a.logger.WarnContext(ctx, "postgres disabled; server mode has no opportunity history")
	}

	g, ctx := errgroup.WithContext(ctx)
	a.startHTTPServer(ctx, g, deps, nil, nil)
	return g.Wait()
}

// prepareLoop loads the token cache, drops unhealthy sources and builds the
// monitor loop. It also returns the names of the sources in use.
func (a *App) prepareLoop(ctx context.Context, deps *Dependencies) (*monitor.Loop, []string, error) {
	if len(deps.Pairs) == 0 {
		return nil, nil, fmt.Errorf("app: %w: no token pairs configured", domain.ErrConfig)
	}

	if err := deps.Tokens.Load(ctx); err != nil {
		a.logger.WarnContext(ctx, "token cache load failed", slog.String("error", err.Error()))
	}
	if _, err := deps.Tokens.GetTokens(ctx, false, 0); err != nil {
		// Detection still works; trade sizing assumes a USD quote token.
		a.logger.WarnContext(ctx, "token prices unavailable", slog.String("error", err.Error()))
	}

	sources := dex.FilterHealthy(ctx, deps.Sources, healthTimeout, a.logger)
	if len(sources) == 0 {
		return nil, nil, fmt.Errorf("app: %w: no healthy dex sources", domain.ErrDataUnavailable)
	}
	names := dex.Names(sources)
	a.logger.InfoContext(ctx, "dex sources ready",
		slog.Any("sources", names),
		slog.Int("pairs", len(deps.Pairs)),
	)

	opts := monitor.Options{
		Interval: a.cfg.Monitoring.ScanInterval.Duration,
		Pairs:    deps.Pairs,
		Sources:  sources,
	}
	if deps.Chains != nil {
		opts.Chains = deps.Chains
	}
	loop := monitor.New(deps.Aggregator, deps.Detector, deps.Gas, deps.Opportunities, opts, a.logger)
	return loop, names, nil
}

// refreshTokens keeps the token cache warm, refreshing once per TTL.
func (a *App) refreshTokens(ctx context.Context, deps *Dependencies) {
	ttl := a.cfg.Cache.TTL.Duration
	if ttl <= 0 {
		return
	}
	ticker := time.NewTicker(ttl)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := deps.Tokens.GetTokens(ctx, false, 0); err != nil && ctx.Err() == nil {
				a.logger.WarnContext(ctx, "token refresh failed", slog.String("error", err.Error()))
			}
		}
	}
}

// startHTTPServer adds the API server, and the WebSocket hub when a signal
// bus is configured, to g. loop is nil in server mode.
func (a *App) startHTTPServer(ctx context.Context, g *errgroup.Group, deps *Dependencies, loop *monitor.Loop, venues []string) {
	var status handler.LoopStatus
	if loop != nil {
		status = loop
	}

	var hub *ws.Hub
	if deps.SignalBus != nil {
		hub = ws.NewHub(deps.SignalBus, a.cfg.Mode, a.logger)
		g.Go(func() error {
			return ignoreCanceled(hub.Run(ctx))
		})
	}

	srv := server.NewServer(
		server.Config{
			Port:        a.cfg.Server.Port,
			CORSOrigins: a.cfg.Server.CORSOrigins,
			APIKey:      a.cfg.Server.APIKey,
			RateLimit:   a.cfg.Server.RateLimit,
			RateWindow:  a.cfg.Server.RateWindow.Duration,
		},
		server.Handlers{
			Health:        handler.NewHealthHandler(deps.Checks, a.logger),
			Status:        handler.NewStatusHandler(a.cfg.Mode, venues, status),
			Opportunities: handler.NewOpportunityHandler(deps.Opportunities, a.logger),
			Tokens:        handler.NewTokenHandler(deps.Tokens, a.logger),
			Markets:       handler.NewMarketHandler(deps.Opportunities, a.logger),
		},
		hub,
		deps.RateLimiter,
		a.logger,
	)

	g.Go(func() error {
		return srv.Run(ctx, a.cfg.Monitoring.GracePeriod.Duration)
	})
}

func writeTokenTable(w io.Writer, tokens []domain.Token, platform string) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tSYMBOL\tNAME\tPRICE_USD\tADDRESS")
	for _, t := range tokens {
		rank, price, addr := "-", "-", "-"
		if t.MarketCapRank != nil {
			rank = fmt.Sprintf("%d", *t.MarketCapRank)
		}
		if t.CurrentPrice != nil {
			price = fmt.Sprintf("%.6g", *t.CurrentPrice)
		}
		if a := t.Platforms[platform]; a != nil {
			addr = *a
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", rank, t.Symbol, t.Name, price, addr)
	}
	return tw.Flush()
}

// ignoreCanceled treats context cancellation as a clean exit.
func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
