package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
)

// AuthService defines the wallet login flow the auth handler requires.
type AuthService interface {
	BeginLogin(ctx context.Context, address string) (nonce, message string, err error)
	CompleteLogin(ctx context.Context, address, signatureHex string) (token string, identity domain.Identity, expiresAt time.Time, err error)
}

// AuthHandler serves the two-step wallet login.
type AuthHandler struct {
	auth   AuthService
	logger *slog.Logger
}

// NewAuthHandler creates an AuthHandler with the given service and logger.
func NewAuthHandler(auth AuthService, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		auth:   auth,
		logger: logger,
	}
}

type loginRequest struct {
	Address string `json:"address"`
}

type loginResponse struct {
	Nonce   string `json:"nonce"`
	Message string `json:"message"`
}

// Login starts a wallet login: it issues a fresh nonce for the address and
// returns the exact message the wallet must sign.
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	nonce, message, err := h.auth.BeginLogin(r.Context(), req.Address)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, loginResponse{Nonce: nonce, Message: message})
}

type verifyRequest struct {
	Address   string `json:"address"`
	Signature string `json:"signature"`
}

type verifyResponse struct {
	Token     string    `json:"token"`
	Identity  string    `json:"identity"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Verify completes a wallet login by checking the signature over the issued
// challenge and returns a bearer token for the session.
// POST /api/auth/verify
func (h *AuthHandler) Verify(w http.ResponseWriter, r *http.Request) {
	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body: "+err.Error())
		return
	}

	token, id, expiresAt, err := h.auth.CompleteLogin(r.Context(), req.Address, req.Signature)
	if err != nil {
		writeDomainError(w, r, h.logger, err)
		return
	}

	writeJSON(w, http.StatusOK, verifyResponse{
		Token:     token,
		Identity:  id.String(),
		ExpiresAt: expiresAt,
	})
}
