package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kprasolov/betledger/internal/domain"
)

func restoredFixture() ([]domain.Market, []domain.Bet) {
	markets := []domain.Market{
		{
			ID:        2,
			Creator:   alice,
			Question:  "q2?",
			Options:   []string{"yes", "no"},
			Status:    domain.MarketStatusActive,
			Bets:      map[string]uint64{"yes": 100},
			TotalPool: 100,
			MaxReward: 500,
			EndTime:   t0.Add(time.Hour),
			CreatedAt: t0,
		},
		{
			ID:            7,
			Creator:       bob,
			Question:      "q7?",
			Options:       []string{"red", "blue"},
			Status:        domain.MarketStatusResolved,
			CorrectAnswer: "red",
			Bets:          map[string]uint64{"red": 50, "blue": 30},
			TotalPool:     80,
			MaxReward:     100,
			EndTime:       t0.Add(-time.Hour),
			CreatedAt:     t0.Add(-2 * time.Hour),
		},
	}
	bets := []domain.Bet{
		{MarketID: 2, User: carol, Option: "yes", Amount: 100, PlacedAt: t0.Add(time.Minute)},
		{MarketID: 7, User: carol, Option: "red", Amount: 50, RewardAmount: 80, PlacedAt: t0.Add(-90 * time.Minute)},
		{MarketID: 7, User: alice, Option: "blue", Amount: 30, PlacedAt: t0.Add(-80 * time.Minute)},
	}
	return markets, bets
}

func TestRestore(t *testing.T) {
	l := New()
	markets, bets := restoredFixture()
	require.NoError(t, l.Restore(markets, bets))

	nm, nb := l.Counts()
	assert.Equal(t, 2, nm)
	assert.Equal(t, 3, nb)

	m, err := l.GetMarket(7)
	require.NoError(t, err)
	assert.Equal(t, "red", m.CorrectAnswer)
	assert.Equal(t, uint64(80), m.TotalPool)

	b, err := l.GetBet(7, carol)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), b.RewardAmount)

	// Restored state behaves like live state: the winner can claim.
	ev, err := l.Apply(domain.NewClaimReward(7), carol, t0)
	require.NoError(t, err)
	assert.Equal(t, uint64(80), ev.Amount)
}

func TestRestore_ResumesIDCounter(t *testing.T) {
	l := New()
	markets, bets := restoredFixture()
	require.NoError(t, l.Restore(markets, bets))

	id := newMarket(t, l, alice, 100)
	assert.Equal(t, uint64(8), id)
}

func TestRestore_EmptyMirror(t *testing.T) {
	l := New()
	require.NoError(t, l.Restore(nil, nil))

	id := newMarket(t, l, alice, 100)
	assert.Equal(t, uint64(1), id)
}

func TestRestore_Rejects(t *testing.T) {
	markets, bets := restoredFixture()

	tests := []struct {
		name    string
		markets []domain.Market
		bets    []domain.Bet
	}{
		{
			name:    "market with zero id",
			markets: []domain.Market{{Options: []string{"yes", "no"}}},
		},
		{
			name:    "duplicate market id",
			markets: append(append([]domain.Market(nil), markets...), markets[0]),
		},
		{
			name:    "bet on unknown market",
			markets: markets,
			bets:    append(append([]domain.Bet(nil), bets...), domain.Bet{MarketID: 99, User: bob, Option: "yes", Amount: 1}),
		},
		{
			name:    "duplicate bet",
			markets: markets,
			bets:    append(append([]domain.Bet(nil), bets...), bets[0]),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Error(t, New().Restore(tt.markets, tt.bets))
		})
	}
}

func TestRestore_FailureKeepsState(t *testing.T) {
	l := New()
	markets, bets := restoredFixture()
	require.NoError(t, l.Restore(markets, bets))

	// A refresh against a corrupt mirror must not disturb the serving state.
	bad := []domain.Bet{{MarketID: 99, User: bob, Option: "yes", Amount: 1}}
	require.Error(t, l.Restore(markets, bad))

	nm, nb := l.Counts()
	assert.Equal(t, 2, nm)
	assert.Equal(t, 3, nb)

	m, err := l.GetMarket(7)
	require.NoError(t, err)
	assert.Equal(t, "red", m.CorrectAnswer)
}

func TestRestore_CopiesInput(t *testing.T) {
	l := New()
	markets, bets := restoredFixture()
	require.NoError(t, l.Restore(markets, bets))

	// Mutating the caller's slices after Restore must not leak into the ledger.
	markets[0].Bets["yes"] = 9999
	markets[0].Options[0] = "tampered"

	m, err := l.GetMarket(2)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), m.Bets["yes"])
	assert.Equal(t, "yes", m.Options[0])
}
