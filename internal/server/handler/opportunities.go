package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// OpportunityQuerier is the read side of the opportunity service.
type OpportunityQuerier interface {
	Latest(ctx context.Context, limit int) ([]domain.Opportunity, error)
	ByPair(ctx context.Context, pairKey string, limit int) ([]domain.Opportunity, error)
	RecentCycles(ctx context.Context, limit int) ([]domain.ScanCycle, error)
}

// OpportunityHandler serves detected opportunities and scan cycle history.
type OpportunityHandler struct {
	svc    OpportunityQuerier
	logger *slog.Logger
}

// NewOpportunityHandler creates an OpportunityHandler.
func NewOpportunityHandler(svc OpportunityQuerier, logger *slog.Logger) *OpportunityHandler {
	return &OpportunityHandler{svc: svc, logger: logHandler(logger, "opportunities")}
}

type listOpportunitiesResponse struct {
	Opportunities []domain.Opportunity `json:"opportunities"`
}

// ListOpportunities returns the most recent opportunities, optionally for one
// pair such as "WETH/USDC".
// GET /api/opportunities?limit=50&pair=WETH/USDC
func (h *OpportunityHandler) ListOpportunities(w http.ResponseWriter, r *http.Request) {
	limit := parseLimit(r, "limit", 50, 500)
	pair := strings.ToUpper(strings.TrimSpace(r.URL.Query().Get("pair")))

	var (
		opps []domain.Opportunity
		err  error
	)
	if pair != "" {
		opps, err = h.svc.ByPair(r.Context(), pair, limit)
	} else {
		opps, err = h.svc.Latest(r.Context(), limit)
	}
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list opportunities failed",
			slog.String("pair", pair),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), "failed to list opportunities")
		return
	}
	if opps == nil {
		opps = []domain.Opportunity{}
	}
	writeJSON(w, http.StatusOK, listOpportunitiesResponse{Opportunities: opps})
}

// ListCycles returns recent scan cycles, newest first.
// GET /api/cycles?limit=20
func (h *OpportunityHandler) ListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.svc.RecentCycles(r.Context(), parseLimit(r, "limit", 20, 200))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list cycles failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "failed to list cycles")
		return
	}
	if cycles == nil {
		cycles = []domain.ScanCycle{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"cycles": cycles})
}
