package service

import (
	"context"
	"fmt"

	"github.com/kprasolov/betledger/internal/domain"
)

// Queries are answered from the in-memory ledger, which is authoritative
// while the process runs. The mirror serves only what the ledger does not
// index: paginated per-user histories and the event journal.

// GetMarket returns one market by id.
func (s *MarketService) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	m, err := s.ledger.GetMarket(id)
	if err != nil {
		return domain.Market{}, fmt.Errorf("market_service: get market %d: %w", id, err)
	}
	return m, nil
}

// ListMarkets returns markets ordered by id. status filters on the stored
// lifecycle state when non-empty; limit/offset page the result.
func (s *MarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	var markets []domain.Market
	if status == "" {
		markets = s.ledger.ListMarkets()
	} else {
		markets = s.ledger.ListMarketsByStatus(status)
	}
	return page(markets, opts), nil
}

// ListLockedMarkets returns markets past their end time that are still
// waiting on their creator to resolve. Locked is derived from the clock, so
// the stored-status filter cannot answer this query.
func (s *MarketService) ListLockedMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	now := s.now()
	var locked []domain.Market
	for _, m := range s.ledger.ListMarketsByStatus(domain.MarketStatusActive) {
		if m.Locked(now) {
			locked = append(locked, m)
		}
	}
	return page(locked, opts), nil
}

// GetBet returns one user's bet on one market.
func (s *MarketService) GetBet(ctx context.Context, marketID uint64, user domain.Identity) (domain.Bet, error) {
	b, err := s.ledger.GetBet(marketID, user)
	if err != nil {
		return domain.Bet{}, fmt.Errorf("market_service: get bet %d/%s: %w", marketID, user, err)
	}
	return b, nil
}

// MarketBets returns every bet on a market in placement order.
func (s *MarketService) MarketBets(ctx context.Context, marketID uint64) ([]domain.Bet, error) {
	if _, err := s.ledger.GetMarket(marketID); err != nil {
		return nil, fmt.Errorf("market_service: market bets %d: %w", marketID, err)
	}
	return s.ledger.BetsByMarket(marketID), nil
}

// UserBets returns one user's bets across markets. The mirror answers when
// attached (it pages and time-filters in SQL); otherwise the ledger is
// scanned.
func (s *MarketService) UserBets(ctx context.Context, user domain.Identity, opts domain.ListOpts) ([]domain.Bet, error) {
	if s.bets != nil {
		bets, err := s.bets.ListByUser(ctx, user, opts)
		if err != nil {
			return nil, fmt.Errorf("market_service: user bets %s: %w", user, err)
		}
		return bets, nil
	}
	return page(s.ledger.BetsByUser(user), opts), nil
}

// Claimables returns the user's unclaimed winning bets on resolved markets.
func (s *MarketService) Claimables(ctx context.Context, user domain.Identity) ([]domain.Bet, error) {
	return s.ledger.ClaimableRewards(user), nil
}

// Pool returns the live per-option stake totals for one market.
func (s *MarketService) Pool(ctx context.Context, marketID uint64) (domain.PoolSnapshot, error) {
	snap, err := s.ledger.PoolSnapshot(marketID, s.now())
	if err != nil {
		return domain.PoolSnapshot{}, fmt.Errorf("market_service: pool %d: %w", marketID, err)
	}
	return snap, nil
}

// MarketEvents returns the journaled events of one market in occurrence
// order. Without a mirror there is no journal and the result is empty.
func (s *MarketService) MarketEvents(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	if s.events == nil {
		return nil, nil
	}
	events, err := s.events.ListByMarket(ctx, marketID, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: market events %d: %w", marketID, err)
	}
	return events, nil
}

// RecentEvents returns the newest journaled events across all markets.
func (s *MarketService) RecentEvents(ctx context.Context, limit int) ([]domain.Event, error) {
	if s.events == nil {
		return nil, nil
	}
	events, err := s.events.ListRecent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("market_service: recent events: %w", err)
	}
	return events, nil
}

// AuditLog returns audit rows for the admin surface.
func (s *MarketService) AuditLog(ctx context.Context, opts domain.ListOpts) ([]domain.AuditEntry, error) {
	if s.audit == nil {
		return nil, nil
	}
	entries, err := s.audit.List(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("market_service: audit log: %w", err)
	}
	return entries, nil
}

// Status is the operational summary behind the status endpoint.
type Status struct {
	Markets       int    `json:"markets"`
	Bets          int    `json:"bets"`
	MirrorEnabled bool   `json:"mirror_enabled"`
	MirrorMarkets int64  `json:"mirror_markets,omitempty"`
	MirrorError   string `json:"mirror_error,omitempty"`
}

// GetStatus reports ledger counts and, when a mirror is attached, the
// mirrored market count so drift is visible at a glance.
func (s *MarketService) GetStatus(ctx context.Context) Status {
	markets, bets := s.ledger.Counts()
	st := Status{
		Markets:       markets,
		Bets:          bets,
		MirrorEnabled: s.markets != nil,
	}

	if s.markets != nil {
		count, err := s.markets.Count(ctx)
		if err != nil {
			st.MirrorError = err.Error()
		} else {
			st.MirrorMarkets = count
		}
	}
	return st
}

// page applies limit/offset to an already ordered slice.
func page[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return nil
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
