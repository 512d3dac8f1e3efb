package handler

import (
	"net/http"
	"time"

	"github.com/alanyoungcy/dexarb/internal/domain"
	"github.com/alanyoungcy/dexarb/internal/monitor"
)

// LoopStatus exposes the monitor loop state.
type LoopStatus interface {
	State() monitor.State
	LastCycle() (domain.ScanCycle, bool)
}

// StatusHandler serves the process status: mode, venues and the loop state.
type StatusHandler struct {
	mode      string
	venues    []string
	loop      LoopStatus
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler. loop is nil when no monitor loop
// runs in this process (server mode).
func NewStatusHandler(mode string, venues []string, loop LoopStatus) *StatusHandler {
	return &StatusHandler{mode: mode, venues: venues, loop: loop, startedAt: time.Now().UTC()}
}

type statusResponse struct {
	Mode          string            `json:"mode"`
	Venues        []string          `json:"venues"`
	UptimeSeconds int64             `json:"uptime_seconds"`
	LoopState     string            `json:"loop_state"`
	LastCycle     *domain.ScanCycle `json:"last_cycle,omitempty"`
	LastCycleMS   int64             `json:"last_cycle_ms,omitempty"`
}

// GetStatus responds with the current mode and loop state.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{
		Mode:          h.mode,
		Venues:        h.venues,
		UptimeSeconds: int64(time.Since(h.startedAt).Seconds()),
		LoopState:     "disabled",
	}
	if resp.Venues == nil {
		resp.Venues = []string{}
	}
	if h.loop != nil {
		resp.LoopState = h.loop.State().String()
		if c, ok := h.loop.LastCycle(); ok {
			resp.LastCycle = &c
			resp.LastCycleMS = c.Duration().Milliseconds()
		}
	}
	writeJSON(w, http.StatusOK, resp)
}
