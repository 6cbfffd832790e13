package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/kprasolov/betledger/internal/domain"
)

// EventService defines the journal queries the event handler requires.
type EventService interface {
	MarketEvents(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error)
	RecentEvents(ctx context.Context, limit int) ([]domain.Event, error)
}

// EventHandler serves the journaled event history.
type EventHandler struct {
	events EventService
	logger *slog.Logger
}

// NewEventHandler creates an EventHandler with the given service and logger.
func NewEventHandler(events EventService, logger *slog.Logger) *EventHandler {
	return &EventHandler{
		events: events,
		logger: logger,
	}
}

// listEventsResponse wraps event list responses.
type listEventsResponse struct {
	Events []domain.Event `json:"events"`
}

// ListMarketEvents returns one market's journaled events in occurrence order.
// GET /api/markets/{id}/events
func (h *EventHandler) ListMarketEvents(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	events, err := h.events.MarketEvents(r.Context(), id, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}

// ListRecentEvents returns the newest journaled events across all markets.
// GET /api/events/recent?limit=50
func (h *EventHandler) ListRecentEvents(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)

	events, err := h.events.RecentEvents(r.Context(), opts.Limit)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if events == nil {
		events = []domain.Event{}
	}
	writeJSON(w, http.StatusOK, listEventsResponse{Events: events})
}
