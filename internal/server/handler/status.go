package handler

import (
	"context"
	"net/http"
	"time"

	"github.com/kprasolov/betledger/internal/service"
)

// StatusService reports ledger and mirror counts.
type StatusService interface {
	GetStatus(ctx context.Context) service.Status
}

// StatusHandler serves the operational summary for dashboards.
type StatusHandler struct {
	status    StatusService
	mode      string
	startedAt time.Time
}

// NewStatusHandler creates a StatusHandler for the given run mode.
func NewStatusHandler(status StatusService, mode string, startedAt time.Time) *StatusHandler {
	return &StatusHandler{status: status, mode: mode, startedAt: startedAt}
}

// statusResponse decorates the service status with process metadata.
type statusResponse struct {
	service.Status
	Mode          string `json:"mode"`
	UptimeSeconds int64  `json:"uptime_seconds"`
}

// GetStatus responds with ledger counts, mirror state, and uptime.
// GET /api/status
func (h *StatusHandler) GetStatus(w http.ResponseWriter, r *http.Request) {
	uptime := int64(time.Since(h.startedAt).Seconds())
	if uptime < 0 {
		uptime = 0
	}

	writeJSON(w, http.StatusOK, statusResponse{
		Status:        h.status.GetStatus(r.Context()),
		Mode:          h.mode,
		UptimeSeconds: uptime,
	})
}
