package dex

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
)

// FilterHealthy runs every source's health check concurrently and returns the
// sources that passed, ordered by name. Failing sources are logged and dropped.
func FilterHealthy(ctx context.Context, sources []Source, timeout time.Duration, logger *slog.Logger) []Source {
	var (
		mu      sync.Mutex
		healthy []Source
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, src := range sources {
		g.Go(func() error {
			hctx, cancel := context.WithTimeout(gctx, timeout)
			defer cancel()
			if err := src.Health(hctx); err != nil {
				logger.WarnContext(ctx, "dex source unhealthy, skipping",
					slog.String("source", src.Name()),
					slog.String("error", err.Error()),
				)
				return nil
			}
			mu.Lock()
			healthy = append(healthy, src)
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()

	SortByName(healthy)
	return healthy
}

// SortByName orders sources by name in place.
func SortByName(sources []Source) {
	sort.Slice(sources, func(i, j int) bool { return sources[i].Name() < sources[j].Name() })
}

// Names returns the source names in order.
func Names(sources []Source) []string {
	names := make([]string, len(sources))
	for i, s := range sources {
		names[i] = s.Name()
	}
	return names
}
