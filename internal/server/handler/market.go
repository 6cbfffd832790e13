package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
)

// MarketService defines the methods the market handler requires from the
// service layer. It is declared locally so the handler package does not
// depend on the concrete service implementation.
type MarketService interface {
	CreateMarket(ctx context.Context, caller domain.Identity, question, description string, duration time.Duration, options []string, maxReward uint64) (domain.Event, error)
	ResolveMarket(ctx context.Context, caller domain.Identity, marketID uint64, answer string) (domain.Event, error)
	GetMarket(ctx context.Context, id uint64) (domain.Market, error)
	ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	ListLockedMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	Pool(ctx context.Context, marketID uint64) (domain.PoolSnapshot, error)
}

// MarketHandler serves market lifecycle endpoints.
type MarketHandler struct {
	markets MarketService
	logger  *slog.Logger
}

// NewMarketHandler creates a MarketHandler with the given service and logger.
func NewMarketHandler(markets MarketService, logger *slog.Logger) *MarketHandler {
	return &MarketHandler{
		markets: markets,
		logger:  logger,
	}
}

// marketView decorates a market with its derived locked flag: past its end
// time, not yet resolved by the creator.
type marketView struct {
	domain.Market
	Locked bool `json:"locked"`
}

func newMarketView(m domain.Market, now time.Time) marketView {
	return marketView{Market: m, Locked: m.Locked(now)}
}

func newMarketViews(markets []domain.Market, now time.Time) []marketView {
	views := make([]marketView, len(markets))
	for i, m := range markets {
		views[i] = newMarketView(m, now)
	}
	return views
}

// createMarketRequest is the JSON body for market creation. Durations are
// given in whole minutes.
type createMarketRequest struct {
	Question        string   `json:"question"`
	Description     string   `json:"description"`
	DurationMinutes int64    `json:"duration_minutes"`
	Options         []string `json:"options"`
	MaxReward       uint64   `json:"max_reward"`
}

// CreateMarket opens a new market owned by the authenticated caller.
// POST /api/markets
func (h *MarketHandler) CreateMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	var req createMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	evt, err := h.markets.CreateMarket(r.Context(), caller,
		req.Question, req.Description,
		time.Duration(req.DurationMinutes)*time.Minute,
		req.Options, req.MaxReward)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, evt)
}

// listMarketsResponse wraps the list endpoint output with paging metadata.
type listMarketsResponse struct {
	Markets []marketView `json:"markets"`
	Limit   int          `json:"limit"`
	Offset  int          `json:"offset"`
}

// ListMarkets returns markets ordered by id. The status filter accepts the
// stored states (active, resolved) plus the derived "locked".
// GET /api/markets?status=active&limit=50&offset=0
func (h *MarketHandler) ListMarkets(w http.ResponseWriter, r *http.Request) {
	opts := parseListOpts(r)
	status := r.URL.Query().Get("status")

	var (
		markets []domain.Market
		err     error
	)
	switch status {
	case "", string(domain.MarketStatusActive), string(domain.MarketStatusResolved):
		markets, err = h.markets.ListMarkets(r.Context(), domain.MarketStatus(status), opts)
	case "locked":
		markets, err = h.markets.ListLockedMarkets(r.Context(), opts)
	default:
		writeError(w, http.StatusBadRequest, "unknown status filter: "+status)
		return
	}
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, listMarketsResponse{
		Markets: newMarketViews(markets, time.Now().UTC()),
		Limit:   opts.Limit,
		Offset:  opts.Offset,
	})
}

// GetMarket returns a single market by its ID.
// GET /api/markets/{id}
func (h *MarketHandler) GetMarket(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	market, err := h.markets.GetMarket(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, newMarketView(market, time.Now().UTC()))
}

// GetPool returns the live per-option stake totals of a market.
// GET /api/markets/{id}/pool
func (h *MarketHandler) GetPool(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	snap, err := h.markets.Pool(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, snap)
}

// resolveMarketRequest is the JSON body for market resolution.
type resolveMarketRequest struct {
	Answer string `json:"answer"`
}

// ResolveMarket fixes the correct answer of the caller's ended market.
// POST /api/markets/{id}/resolve
func (h *MarketHandler) ResolveMarket(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req resolveMarketRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	evt, err := h.markets.ResolveMarket(r.Context(), caller, id, req.Answer)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, evt)
}
