package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// MarketQuerier is the read side of the multi-hop chains and pool table.
type MarketQuerier interface {
	Chains(ctx context.Context, limit int) ([]domain.ArbitrageChain, error)
	Pools(ctx context.Context, f domain.PoolFilter) ([]domain.Pool, error)
	Pool(ctx context.Context, venue, pairKey string) (domain.Pool, error)
	PoolStats(ctx context.Context) (domain.PoolStats, error)
}

// MarketHandler serves multi-hop chains and observed pools.
type MarketHandler struct {
	svc    MarketQuerier
	logger *slog.Logger
}

// NewMarketHandler creates a MarketHandler.
func NewMarketHandler(svc MarketQuerier, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{svc: svc, logger: logHandler(logger, "markets")}
}

// ListChains returns the chains found by the latest cycle, best first.
// GET /api/chains?limit=20
func (h *MarketHandler) ListChains(w http.ResponseWriter, r *http.Request) {
	chains, err := h.svc.Chains(r.Context(), parseLimit(r, "limit", 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list chains failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list chains")
		return
	}
	if chains == nil {
		chains = []domain.ArbitrageChain{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chains": chains})
}

// ListPools returns observed pools, deepest first.
// GET /api/pools?venue=curve&token=WETH&min_liquidity=100000&limit=100
func (h *MarketHandler) ListPools(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := domain.PoolFilter{
		Venue: strings.TrimSpace(q.Get("venue")),
		Token: strings.TrimSpace(q.Get("token")),
		Limit: parseLimit(r, "limit", 100, 1000),
	}
	if v := q.Get("min_liquidity"); v != "" {
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, "min_liquidity must be a non-negative number")
			return
		}
		f.MinLiquidity = n
	}

	pools, err := h.svc.Pools(r.Context(), f)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list pools failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list pools")
		return
	}
	if pools == nil {
		pools = []domain.Pool{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"pools": pools})
}

// GetPool returns one venue's pool for a pair such as "WETH/USDC".
// GET /api/pools/{venue}/{pair...}
func (h *MarketHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	venue := r.PathValue("venue")
	pair := strings.ToUpper(r.PathValue("pair"))
	p, err := h.svc.Pool(r.Context(), venue, pair)
	if err != nil {
		status := statusFor(err)
		if status == http.StatusNotFound {
			writeError(w, status, "pool not found")
			return
		}
		h.logger.ErrorContext(r.Context(), "get pool failed",
			slog.String("venue", venue),
			slog.String("pair", pair),
			slog.String("error", err.Error()),
		)
		writeError(w, status, "failed to get pool")
		return
	}
	writeJSON(w, http.StatusOK, p)
}

// PoolStats summarizes the observed pools.
// GET /api/pools/stats
func (h *MarketHandler) PoolStats(w http.ResponseWriter, r *http.Request) {
	st, err := h.svc.PoolStats(r.Context())
	if err != nil {
		h.logger.ErrorContext(r.Context(), "pool stats failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "pool stats unavailable")
		return
	}
	writeJSON(w, http.StatusOK, st)
}
