package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/alanyoungcy/dexarb/internal/domain"
)

// TokenQuerier is the read side of the token cache.
type TokenQuerier interface {
	GetTokens(ctx context.Context, force bool, limit int) (domain.TokenList, error)
	GetTopTokens(ctx context.Context, n int) ([]domain.Token, error)
	GetTokenBySymbol(ctx context.Context, symbol string) (domain.Token, bool, error)
	GetTokenByAddress(ctx context.Context, address string) (domain.Token, bool, error)
}

// TokenHandler serves the cached token registry.
type TokenHandler struct {
	tokens TokenQuerier
	logger *slog.Logger
}

// NewTokenHandler creates a TokenHandler.
func NewTokenHandler(tokens TokenQuerier, logger *slog.Logger) *TokenHandler {
	return &TokenHandler{tokens: tokens, logger: logHandler(logger, "tokens")}
}

// ListTokens returns the token list. force=true refreshes from the registry
// first; limit=0 returns everything.
// GET /api/tokens?limit=100&force=false
func (h *TokenHandler) ListTokens(w http.ResponseWriter, r *http.Request) {
	list, err := h.tokens.GetTokens(r.Context(), parseBool(r, "force"), parseLimit(r, "limit", 0, 0))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "list tokens failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "token data unavailable")
		return
	}
	writeJSON(w, http.StatusOK, list)
}

// TopTokens returns the n best ranked tokens.
// GET /api/tokens/top?n=10
func (h *TokenHandler) TopTokens(w http.ResponseWriter, r *http.Request) {
	tokens, err := h.tokens.GetTopTokens(r.Context(), parseLimit(r, "n", 10, 1000))
	if err != nil {
		h.logger.ErrorContext(r.Context(), "top tokens failed", slog.String("error", err.Error()))
		writeError(w, statusFor(err), "token data unavailable")
		return
	}
	if tokens == nil {
		tokens = []domain.Token{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"tokens": tokens})
}

// BySymbol looks a token up by case-insensitive symbol.
// GET /api/tokens/symbol/{symbol}
func (h *TokenHandler) BySymbol(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, "symbol", h.tokens.GetTokenBySymbol)
}

// ByAddress looks a token up by contract address on the configured platform.
// GET /api/tokens/address/{address}
func (h *TokenHandler) ByAddress(w http.ResponseWriter, r *http.Request) {
	h.lookup(w, r, "address", h.tokens.GetTokenByAddress)
}

func (h *TokenHandler) lookup(
	w http.ResponseWriter,
	r *http.Request,
	param string,
	find func(context.Context, string) (domain.Token, bool, error),
) {
	key := strings.TrimSpace(r.PathValue(param))
	if key == "" {
		writeError(w, http.StatusBadRequest, "missing "+param)
		return
	}
	tok, ok, err := find(r.Context(), key)
	if err != nil {
		h.logger.ErrorContext(r.Context(), "token lookup failed",
			slog.String(param, key),
			slog.String("error", err.Error()),
		)
		writeError(w, statusFor(err), "token data unavailable")
		return
	}
	if !ok {
		writeError(w, http.StatusNotFound, "token not found")
		return
	}
	writeJSON(w, http.StatusOK, tok)
}
