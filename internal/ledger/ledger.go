// Package ledger implements the authoritative in-memory prediction-market
// ledger. Every state change goes through Apply, which validates one action
// against the current state and either executes it atomically or leaves the
// ledger untouched. The ledger performs no I/O and never reads the wall
// clock; the caller supplies the effective time with each action, so the
// same action sequence always yields the same state.
package ledger

import (
	"fmt"
	"math"
	"strings"
	"sync"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
)

// betKey identifies the one bet a user may hold on a market.
type betKey struct {
	marketID uint64
	user     domain.Identity
}

// Ledger holds all markets and bets plus the market id counter. Writes are
// serialized; reads may run concurrently with each other and return copies,
// never pointers into live state.
type Ledger struct {
	mu      sync.RWMutex
	nextID  uint64
	markets map[uint64]*domain.Market
	bets    map[betKey]*domain.Bet

	// betsByMarket keeps per-market bet keys in placement order so that
	// resolution touches only the affected market's bets.
	betsByMarket map[uint64][]betKey
}

// New returns an empty ledger. Market ids start at 1.
func New() *Ledger {
	return &Ledger{
		nextID:       1,
		markets:      make(map[uint64]*domain.Market),
		bets:         make(map[betKey]*domain.Bet),
		betsByMarket: make(map[uint64][]betKey),
	}
}

// ---------------------------------------------------------------------------
// Apply
// ---------------------------------------------------------------------------

// Apply validates and executes a single action on behalf of caller, with now
// as the authoritative time for every time comparison. It returns the event
// describing the transition. On error the ledger state is unchanged.
func (l *Ledger) Apply(action domain.Action, caller domain.Identity, now time.Time) (domain.Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	switch action.Kind {
	case domain.ActionCreateMarket:
		return l.createMarket(action, caller, now)
	case domain.ActionPlaceBet:
		return l.placeBet(action, caller, now)
	case domain.ActionResolveMarket:
		return l.resolveMarket(action, caller, now)
	case domain.ActionClaimReward:
		return l.claimReward(action, caller, now)
	default:
		return domain.Event{}, fmt.Errorf("unknown action kind %q: %w", action.Kind, domain.ErrInvalidInput)
	}
}

func (l *Ledger) createMarket(a domain.Action, caller domain.Identity, now time.Time) (domain.Event, error) {
	if strings.TrimSpace(a.Question) == "" {
		return domain.Event{}, fmt.Errorf("question must not be empty: %w", domain.ErrInvalidInput)
	}
	if len(a.Options) < 2 {
		return domain.Event{}, fmt.Errorf("market needs at least two options: %w", domain.ErrInvalidInput)
	}
	if err := validateOptions(a.Options); err != nil {
		return domain.Event{}, err
	}
	if a.MaxReward == 0 {
		return domain.Event{}, fmt.Errorf("max reward must be positive: %w", domain.ErrInvalidInput)
	}
	if caller == "" {
		return domain.Event{}, domain.ErrUnauthenticated
	}

	id := l.nextID
	l.nextID++

	l.markets[id] = &domain.Market{
		ID:          id,
		Creator:     caller,
		Question:    a.Question,
		Description: a.Description,
		Options:     append([]string(nil), a.Options...),
		Status:      domain.MarketStatusActive,
		Bets:        make(map[string]uint64, len(a.Options)),
		MaxReward:   a.MaxReward,
		EndTime:     now.Add(a.Duration),
		CreatedAt:   now,
	}

	return domain.Event{
		Type:       domain.EventMarketCreated,
		MarketID:   id,
		Creator:    caller,
		OccurredAt: now,
	}, nil
}

func (l *Ledger) placeBet(a domain.Action, caller domain.Identity, now time.Time) (domain.Event, error) {
	if a.Amount == 0 {
		return domain.Event{}, fmt.Errorf("bet amount must be positive: %w", domain.ErrInvalidInput)
	}
	if caller == "" {
		return domain.Event{}, domain.ErrUnauthenticated
	}
	m, ok := l.markets[a.MarketID]
	if !ok {
		return domain.Event{}, fmt.Errorf("market %d: %w", a.MarketID, domain.ErrNotFound)
	}
	if m.Status != domain.MarketStatusActive {
		return domain.Event{}, fmt.Errorf("market %d no longer accepts bets: %w", a.MarketID, domain.ErrAlreadyResolved)
	}
	// The clock decides, not the stored status: a market past its end time
	// rejects bets even though nothing flipped it to resolved yet.
	if !now.Before(m.EndTime) {
		return domain.Event{}, fmt.Errorf("market %d: %w", a.MarketID, domain.ErrMarketEnded)
	}
	if !m.HasOption(a.Option) {
		return domain.Event{}, fmt.Errorf("option %q: %w", a.Option, domain.ErrInvalidOption)
	}
	key := betKey{marketID: a.MarketID, user: caller}
	if _, exists := l.bets[key]; exists {
		return domain.Event{}, fmt.Errorf("user %s already bet on market %d: %w", caller, a.MarketID, domain.ErrDuplicateBet)
	}
	if a.Amount > math.MaxUint64-m.TotalPool {
		return domain.Event{}, fmt.Errorf("stake overflows the market pool: %w", domain.ErrInvalidInput)
	}

	l.bets[key] = &domain.Bet{
		MarketID: a.MarketID,
		User:     caller,
		Option:   a.Option,
		Amount:   a.Amount,
		PlacedAt: now,
	}
	l.betsByMarket[a.MarketID] = append(l.betsByMarket[a.MarketID], key)
	m.Bets[a.Option] += a.Amount
	m.TotalPool += a.Amount

	return domain.Event{
		Type:       domain.EventBetPlaced,
		MarketID:   a.MarketID,
		User:       caller,
		Option:     a.Option,
		Amount:     a.Amount,
		OccurredAt: now,
	}, nil
}

func (l *Ledger) resolveMarket(a domain.Action, caller domain.Identity, now time.Time) (domain.Event, error) {
	if caller == "" {
		return domain.Event{}, domain.ErrUnauthenticated
	}
	m, ok := l.markets[a.MarketID]
	if !ok {
		return domain.Event{}, fmt.Errorf("market %d: %w", a.MarketID, domain.ErrNotFound)
	}
	if caller != m.Creator {
		return domain.Event{}, fmt.Errorf("only the market creator may resolve market %d: %w", a.MarketID, domain.ErrUnauthorized)
	}
	if m.Status == domain.MarketStatusResolved {
		return domain.Event{}, fmt.Errorf("market %d: %w", a.MarketID, domain.ErrAlreadyResolved)
	}
	if now.Before(m.EndTime) {
		return domain.Event{}, fmt.Errorf("market %d is still open for betting: %w", a.MarketID, domain.ErrTooEarly)
	}
	if !m.HasOption(a.Answer) {
		return domain.Event{}, fmt.Errorf("answer %q: %w", a.Answer, domain.ErrInvalidOption)
	}

	m.Status = domain.MarketStatusResolved
	m.CorrectAnswer = a.Answer

	// With no stake on the winning option every reward stays zero; the
	// resolution itself still succeeds.
	if winningPool := m.Bets[a.Answer]; winningPool > 0 {
		for _, key := range l.betsByMarket[a.MarketID] {
			b := l.bets[key]
			if b.Option != a.Answer {
				continue
			}
			b.RewardAmount = cappedShare(b.Amount, m.TotalPool, winningPool, m.MaxReward)
		}
	}

	return domain.Event{
		Type:       domain.EventMarketResolved,
		MarketID:   a.MarketID,
		Creator:    m.Creator,
		Answer:     a.Answer,
		OccurredAt: now,
	}, nil
}

func (l *Ledger) claimReward(a domain.Action, caller domain.Identity, now time.Time) (domain.Event, error) {
	if caller == "" {
		return domain.Event{}, domain.ErrUnauthenticated
	}
	m, ok := l.markets[a.MarketID]
	if !ok {
		return domain.Event{}, fmt.Errorf("market %d: %w", a.MarketID, domain.ErrNotFound)
	}
	if m.Status != domain.MarketStatusResolved {
		return domain.Event{}, fmt.Errorf("market %d: %w", a.MarketID, domain.ErrNotResolved)
	}
	b, ok := l.bets[betKey{marketID: a.MarketID, user: caller}]
	if !ok {
		return domain.Event{}, fmt.Errorf("user %s has no bet on market %d: %w", caller, a.MarketID, domain.ErrNoBet)
	}
	if !b.Won(m.CorrectAnswer) {
		return domain.Event{}, fmt.Errorf("bet on %q lost to %q: %w", b.Option, m.CorrectAnswer, domain.ErrDidNotWin)
	}
	if b.Claimed {
		return domain.Event{}, fmt.Errorf("market %d: %w", a.MarketID, domain.ErrAlreadyClaimed)
	}
	if b.RewardAmount == 0 {
		return domain.Event{}, fmt.Errorf("market %d: %w", a.MarketID, domain.ErrNothingToClaim)
	}

	b.Claimed = true

	return domain.Event{
		Type:       domain.EventRewardClaimed,
		MarketID:   a.MarketID,
		User:       caller,
		Option:     b.Option,
		Amount:     b.RewardAmount,
		OccurredAt: now,
	}, nil
}

// validateOptions rejects blank and duplicate labels. Labels are compared
// byte for byte; resolution later matches the correct answer the same way.
func validateOptions(options []string) error {
	seen := make(map[string]struct{}, len(options))
	for _, label := range options {
		if label == "" {
			return fmt.Errorf("option labels must not be empty: %w", domain.ErrInvalidInput)
		}
		if _, dup := seen[label]; dup {
			return fmt.Errorf("duplicate option label %q: %w", label, domain.ErrInvalidInput)
		}
		seen[label] = struct{}{}
	}
	return nil
}
