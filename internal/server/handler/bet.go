package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/kprasolov/betledger/internal/domain"
)

// BetService defines the methods the bet handler requires from the service
// layer.
type BetService interface {
	PlaceBet(ctx context.Context, caller domain.Identity, marketID uint64, option string, amount uint64) (domain.Event, error)
	ClaimReward(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Event, error)
	GetBet(ctx context.Context, marketID uint64, user domain.Identity) (domain.Bet, error)
	MarketBets(ctx context.Context, marketID uint64) ([]domain.Bet, error)
	UserBets(ctx context.Context, user domain.Identity, opts domain.ListOpts) ([]domain.Bet, error)
	Claimables(ctx context.Context, user domain.Identity) ([]domain.Bet, error)
}

// BetHandler serves bet placement, claim, and history endpoints.
type BetHandler struct {
	bets   BetService
	logger *slog.Logger
}

// NewBetHandler creates a BetHandler with the given service and logger.
func NewBetHandler(bets BetService, logger *slog.Logger) *BetHandler {
	return &BetHandler{
		bets:   bets,
		logger: logger,
	}
}

// placeBetRequest is the JSON body for bet placement.
type placeBetRequest struct {
	Option string `json:"option"`
	Amount uint64 `json:"amount"`
}

// PlaceBet stakes the caller's amount on one option of an open market.
// POST /api/markets/{id}/bets
func (h *BetHandler) PlaceBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	var req placeBetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	evt, err := h.bets.PlaceBet(r.Context(), caller, id, req.Option, req.Amount)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusCreated, evt)
}

// ClaimReward pays out the caller's winning bet on a resolved market.
// POST /api/markets/{id}/claim
func (h *BetHandler) ClaimReward(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	evt, err := h.bets.ClaimReward(r.Context(), caller, id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, evt)
}

// listBetsResponse wraps bet list responses.
type listBetsResponse struct {
	Bets []domain.Bet `json:"bets"`
}

// ListMarketBets returns every bet on a market in placement order.
// GET /api/markets/{id}/bets
func (h *BetHandler) ListMarketBets(w http.ResponseWriter, r *http.Request) {
	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	bets, err := h.bets.MarketBets(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, listBetsResponse{Bets: bets})
}

// GetOwnBet returns the caller's bet on one market.
// GET /api/markets/{id}/bet
func (h *BetHandler) GetOwnBet(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	id, err := marketIDParam(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid market id")
		return
	}

	bet, err := h.bets.GetBet(r.Context(), id, caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, bet)
}

// ListUserBets returns one user's bets across markets.
// GET /api/users/{address}/bets
func (h *BetHandler) ListUserBets(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	bets, err := h.bets.UserBets(r.Context(), domain.NormalizeIdentity(address), parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, listBetsResponse{Bets: bets})
}

// ListOwnBets returns the caller's bets across markets.
// GET /api/me/bets
func (h *BetHandler) ListOwnBets(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	bets, err := h.bets.UserBets(r.Context(), caller, parseListOpts(r))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, listBetsResponse{Bets: bets})
}

// ListUserRewards returns one user's unclaimed winning bets on resolved
// markets.
// GET /api/users/{address}/rewards
func (h *BetHandler) ListUserRewards(w http.ResponseWriter, r *http.Request) {
	address := pathParam(r, "address")
	if address == "" {
		writeError(w, http.StatusBadRequest, "missing address")
		return
	}

	bets, err := h.bets.Claimables(r.Context(), domain.NormalizeIdentity(address))
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, listBetsResponse{Bets: bets})
}

// ListClaimables returns the caller's unclaimed winning bets.
// GET /api/me/claimables
func (h *BetHandler) ListClaimables(w http.ResponseWriter, r *http.Request) {
	caller, ok := identity(w, r)
	if !ok {
		return
	}

	bets, err := h.bets.Claimables(r.Context(), caller)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	if bets == nil {
		bets = []domain.Bet{}
	}
	writeJSON(w, http.StatusOK, listBetsResponse{Bets: bets})
}
