// Package auth implements wallet login for the HTTP API: a one-time nonce
// challenge, EIP-191 personal-signature verification, and the bearer tokens
// that carry the resolved identity on subsequent requests.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"

	"github.com/kprasolov/betledger/internal/domain"
)

// Service runs the two-step login flow. Challenges are single use: the nonce
// is consumed on the first completion attempt, successful or not.
type Service struct {
	nonces   domain.NonceCache
	tokens   *TokenIssuer
	nonceTTL time.Duration
	log      *slog.Logger
}

// NewService wires the nonce cache and token issuer into a login service.
func NewService(nonces domain.NonceCache, tokens *TokenIssuer, nonceTTL time.Duration, log *slog.Logger) *Service {
	return &Service{
		nonces:   nonces,
		tokens:   tokens,
		nonceTTL: nonceTTL,
		log:      log.With("component", "auth"),
	}
}

// BeginLogin issues a fresh challenge for the address and returns the nonce
// plus the exact message the wallet must sign.
func (s *Service) BeginLogin(ctx context.Context, address string) (nonce, message string, err error) {
	if !common.IsHexAddress(address) {
		return "", "", fmt.Errorf("auth: %q is not a hex address: %w", address, domain.ErrInvalidInput)
	}

	nonce = uuid.NewString()
	if err := s.nonces.Put(ctx, strings.ToLower(address), nonce, s.nonceTTL); err != nil {
		return "", "", fmt.Errorf("auth: storing nonce: %w", err)
	}

	s.log.Debug("challenge issued", "address", strings.ToLower(address))
	return nonce, LoginMessage(address, nonce), nil
}

// CompleteLogin verifies the signed challenge and mints a bearer token.
func (s *Service) CompleteLogin(ctx context.Context, address, signatureHex string) (token string, identity domain.Identity, expiresAt time.Time, err error) {
	lower := strings.ToLower(address)

	nonce, err := s.nonces.Take(ctx, lower)
	if err != nil {
		if errors.Is(err, domain.ErrNonceNotFound) {
			return "", "", time.Time{}, fmt.Errorf("auth: no pending challenge for %s: %w", lower, domain.ErrUnauthenticated)
		}
		return "", "", time.Time{}, fmt.Errorf("auth: taking nonce: %w", err)
	}

	if err := VerifyPersonalSign(address, LoginMessage(address, nonce), signatureHex); err != nil {
		return "", "", time.Time{}, err
	}

	identity = domain.NormalizeIdentity(address)
	token, expiresAt, err = s.tokens.Issue(identity, time.Now().UTC())
	if err != nil {
		return "", "", time.Time{}, err
	}

	s.log.Info("login completed", "identity", identity)
	return token, identity, expiresAt, nil
}
