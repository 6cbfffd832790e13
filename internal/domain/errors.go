package domain

import (
	"errors"
	"fmt"
)

// Category sentinels. Every ledger failure matches exactly one of these via
// errors.Is; the HTTP layer maps categories to status codes.
var (
	ErrInvalidInput    = errors.New("invalid input")
	ErrUnauthenticated = errors.New("unauthenticated")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrNotFound        = errors.New("not found")
	ErrInvalidOption   = errors.New("invalid option")
	ErrInvalidState    = errors.New("invalid state")
	ErrDuplicateBet    = errors.New("duplicate bet")
	ErrAlreadyClaimed  = errors.New("reward already claimed")
	ErrNothingToClaim  = errors.New("nothing to claim")
)

// Specific conditions. Each wraps its category, so errors.Is matches both the
// condition and the category: errors.Is(ErrMarketEnded, ErrInvalidState).
var (
	ErrMarketEnded     = fmt.Errorf("market ended: %w", ErrInvalidState)
	ErrAlreadyResolved = fmt.Errorf("market already resolved: %w", ErrInvalidState)
	ErrTooEarly        = fmt.Errorf("market has not ended yet: %w", ErrInvalidState)
	ErrNotResolved     = fmt.Errorf("market not resolved: %w", ErrInvalidState)
	ErrNoBet           = fmt.Errorf("no bet placed on this market: %w", ErrNotFound)
	ErrDidNotWin       = fmt.Errorf("bet did not pick the correct answer: %w", ErrInvalidState)
)

// Infrastructure sentinels shared by the cache and lock implementations.
var (
	ErrLockHeld      = errors.New("lock already held")
	ErrRateLimited   = errors.New("rate limited")
	ErrNonceNotFound = errors.New("nonce not found or expired")
)
