package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/kprasolov/betledger/internal/domain"
)

// Rehydrate replaces the ledger's state with the mirrored markets and bets.
// Serve mode calls it once at startup, after taking the writer lock and
// before accepting requests.
func (s *MarketService) Rehydrate(ctx context.Context) error {
	if s.markets == nil {
		return fmt.Errorf("market_service: rehydrate: no mirror attached")
	}

	markets, err := s.markets.List(ctx, domain.ListOpts{})
	if err != nil {
		return fmt.Errorf("market_service: rehydrate: %w", err)
	}

	var bets []domain.Bet
	for _, m := range markets {
		mb, err := s.bets.ListByMarket(ctx, m.ID)
		if err != nil {
			return fmt.Errorf("market_service: rehydrate market %d: %w", m.ID, err)
		}
		bets = append(bets, mb...)
	}

	if err := s.ledger.Restore(markets, bets); err != nil {
		return fmt.Errorf("market_service: rehydrate: %w", err)
	}

	// Debug, not info: monitor nodes rehydrate on a timer.
	s.logger.DebugContext(ctx, "market_service: ledger rehydrated",
		slog.Int("markets", len(markets)),
		slog.Int("bets", len(bets)),
	)
	return nil
}
