package ledger

import (
	"fmt"
	"sort"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
)

// ---------------------------------------------------------------------------
// Read path. Every accessor copies before returning so callers can never
// mutate live ledger state or observe a partial write.
// ---------------------------------------------------------------------------

// GetMarket returns a copy of the market with the given id.
func (l *Ledger) GetMarket(id uint64) (domain.Market, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.markets[id]
	if !ok {
		return domain.Market{}, fmt.Errorf("market %d: %w", id, domain.ErrNotFound)
	}
	return m.Clone(), nil
}

// ListMarkets returns copies of all markets ordered by id.
func (l *Ledger) ListMarkets() []domain.Market {
	l.mu.RLock()
	defer l.mu.RUnlock()

	out := make([]domain.Market, 0, len(l.markets))
	for _, m := range l.markets {
		out = append(out, m.Clone())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// ListMarketsByStatus returns copies of all markets with the given stored
// status, ordered by id.
func (l *Ledger) ListMarketsByStatus(status domain.MarketStatus) []domain.Market {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Market
	for _, m := range l.markets {
		if m.Status == status {
			out = append(out, m.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// GetBet returns a copy of the user's bet on the given market.
func (l *Ledger) GetBet(marketID uint64, user domain.Identity) (domain.Bet, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	b, ok := l.bets[betKey{marketID: marketID, user: user}]
	if !ok {
		return domain.Bet{}, fmt.Errorf("user %s has no bet on market %d: %w", user, marketID, domain.ErrNoBet)
	}
	return *b, nil
}

// BetsByMarket returns copies of all bets on a market in placement order.
func (l *Ledger) BetsByMarket(marketID uint64) []domain.Bet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	keys := l.betsByMarket[marketID]
	out := make([]domain.Bet, 0, len(keys))
	for _, key := range keys {
		out = append(out, *l.bets[key])
	}
	return out
}

// BetsByUser returns copies of the user's bets across all markets, ordered by
// market id. The bet map is keyed per market, so this is a full scan; user
// histories are served from the durable mirror when one is configured.
func (l *Ledger) BetsByUser(user domain.Identity) []domain.Bet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Bet
	for key, b := range l.bets {
		if key.user == user {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// ClaimableRewards returns the user's winning, unclaimed, non-zero bets on
// resolved markets, ordered by market id.
func (l *Ledger) ClaimableRewards(user domain.Identity) []domain.Bet {
	l.mu.RLock()
	defer l.mu.RUnlock()

	var out []domain.Bet
	for key, b := range l.bets {
		if key.user != user {
			continue
		}
		m := l.markets[key.marketID]
		if m.Resolved() && b.Won(m.CorrectAnswer) && b.Claimable() {
			out = append(out, *b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MarketID < out[j].MarketID })
	return out
}

// PoolSnapshot returns the market's per-option stakes and total pool as of
// the given time.
func (l *Ledger) PoolSnapshot(marketID uint64, now time.Time) (domain.PoolSnapshot, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	m, ok := l.markets[marketID]
	if !ok {
		return domain.PoolSnapshot{}, fmt.Errorf("market %d: %w", marketID, domain.ErrNotFound)
	}
	snap := domain.PoolSnapshot{
		MarketID:  marketID,
		Bets:      make(map[string]uint64, len(m.Bets)),
		TotalPool: m.TotalPool,
		At:        now,
	}
	for k, v := range m.Bets {
		snap.Bets[k] = v
	}
	return snap, nil
}

// Counts returns the number of markets and bets currently on the ledger.
func (l *Ledger) Counts() (markets, bets int) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return len(l.markets), len(l.bets)
}
