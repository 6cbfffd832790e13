package ledger

import (
	"fmt"

	"github.com/kprasolov/betledger/internal/domain"
)

// Restore replaces the ledger's state with records loaded from the durable
// mirror. The id counter resumes one past the highest restored market id so
// ids are never reissued. The new state is staged and validated before the
// swap, so a failed Restore leaves the ledger exactly as it was; a mirror
// that disagrees with the ledger's invariants needs operator attention, not
// silent fixes.
//
// Serve mode calls Restore once at startup. Monitor mode also calls it on a
// timer to track the writer, so it must stay safe against concurrent reads.
func (l *Ledger) Restore(markets []domain.Market, bets []domain.Bet) error {
	nextID := uint64(1)
	stagedMarkets := make(map[uint64]*domain.Market, len(markets))
	stagedBets := make(map[betKey]*domain.Bet, len(bets))
	stagedByMarket := make(map[uint64][]betKey, len(markets))

	for _, m := range markets {
		if m.ID == 0 {
			return fmt.Errorf("restore: market with zero id")
		}
		if _, dup := stagedMarkets[m.ID]; dup {
			return fmt.Errorf("restore: duplicate market id %d", m.ID)
		}
		mm := m.Clone()
		if mm.Bets == nil {
			mm.Bets = make(map[string]uint64, len(mm.Options))
		}
		stagedMarkets[m.ID] = &mm
		if m.ID >= nextID {
			nextID = m.ID + 1
		}
	}

	for _, b := range bets {
		if _, ok := stagedMarkets[b.MarketID]; !ok {
			return fmt.Errorf("restore: bet by %s references unknown market %d", b.User, b.MarketID)
		}
		key := betKey{marketID: b.MarketID, user: b.User}
		if _, dup := stagedBets[key]; dup {
			return fmt.Errorf("restore: duplicate bet by %s on market %d", b.User, b.MarketID)
		}
		bb := b
		stagedBets[key] = &bb
		stagedByMarket[b.MarketID] = append(stagedByMarket[b.MarketID], key)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.nextID = nextID
	l.markets = stagedMarkets
	l.bets = stagedBets
	l.betsByMarket = stagedByMarket

	return nil
}
