package ledger

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kprasolov/betledger/internal/domain"
)

func TestGetMarket_ReturnsIsolatedCopy(t *testing.T) {
	l := New()
	id := newMarket(t, l, alice, 1000)
	placeBet(t, l, id, bob, "yes", 100)

	m, err := l.GetMarket(id)
	require.NoError(t, err)

	m.Bets["yes"] = 9999
	m.Options[0] = "tampered"
	m.TotalPool = 0

	fresh, err := l.GetMarket(id)
	require.NoError(t, err)
	assert.Equal(t, uint64(100), fresh.Bets["yes"])
	assert.Equal(t, "yes", fresh.Options[0])
	assert.Equal(t, uint64(100), fresh.TotalPool)
}

func TestListMarkets_OrderedByID(t *testing.T) {
	l := New()
	for i := 0; i < 4; i++ {
		newMarket(t, l, alice, 100)
	}

	markets := l.ListMarkets()
	require.Len(t, markets, 4)
	for i, m := range markets {
		assert.Equal(t, uint64(i+1), m.ID)
	}
}

func TestListMarketsByStatus(t *testing.T) {
	l := New()
	first := newMarket(t, l, alice, 100)
	second := newMarket(t, l, alice, 100)
	newMarket(t, l, alice, 100)

	_, err := l.Apply(domain.NewResolveMarket(second, "yes"), alice, t0.Add(time.Hour))
	require.NoError(t, err)

	active := l.ListMarketsByStatus(domain.MarketStatusActive)
	require.Len(t, active, 2)
	assert.Equal(t, first, active[0].ID)

	resolved := l.ListMarketsByStatus(domain.MarketStatusResolved)
	require.Len(t, resolved, 1)
	assert.Equal(t, second, resolved[0].ID)
}

func TestBetsByMarket_PlacementOrder(t *testing.T) {
	l := New()
	id := newMarket(t, l, alice, 1000)

	placeBet(t, l, id, carol, "yes", 10)
	placeBet(t, l, id, alice, "no", 20)
	placeBet(t, l, id, bob, "yes", 30)

	bets := l.BetsByMarket(id)
	require.Len(t, bets, 3)
	assert.Equal(t, carol, bets[0].User)
	assert.Equal(t, alice, bets[1].User)
	assert.Equal(t, bob, bets[2].User)
}

func TestBetsByUser_AcrossMarkets(t *testing.T) {
	l := New()
	first := newMarket(t, l, alice, 1000)
	second := newMarket(t, l, alice, 1000)

	placeBet(t, l, second, bob, "no", 40)
	placeBet(t, l, first, bob, "yes", 10)
	placeBet(t, l, first, carol, "yes", 5)

	bets := l.BetsByUser(bob)
	require.Len(t, bets, 2)
	assert.Equal(t, first, bets[0].MarketID)
	assert.Equal(t, second, bets[1].MarketID)
	assert.Empty(t, l.BetsByUser("nobody"))
}

func TestClaimableRewards(t *testing.T) {
	l := New()

	won := newMarket(t, l, alice, 1000)
	placeBet(t, l, won, bob, "yes", 100)
	placeBet(t, l, won, carol, "no", 100)

	lost := newMarket(t, l, alice, 1000)
	placeBet(t, l, lost, bob, "yes", 100)
	placeBet(t, l, lost, carol, "no", 100)

	pending := newMarket(t, l, alice, 1000)
	placeBet(t, l, pending, bob, "yes", 100)

	after := t0.Add(time.Hour)
	_, err := l.Apply(domain.NewResolveMarket(won, "yes"), alice, after)
	require.NoError(t, err)
	_, err = l.Apply(domain.NewResolveMarket(lost, "no"), alice, after)
	require.NoError(t, err)

	claimable := l.ClaimableRewards(bob)
	require.Len(t, claimable, 1)
	assert.Equal(t, won, claimable[0].MarketID)
	assert.Equal(t, uint64(200), claimable[0].RewardAmount)

	// Once claimed it drops out of the list.
	_, err = l.Apply(domain.NewClaimReward(won), bob, after)
	require.NoError(t, err)
	assert.Empty(t, l.ClaimableRewards(bob))
}

func TestPoolSnapshot(t *testing.T) {
	l := New()
	id := newMarket(t, l, alice, 1000)
	placeBet(t, l, id, bob, "yes", 100)
	placeBet(t, l, id, carol, "no", 60)

	at := t0.Add(30 * time.Minute)
	snap, err := l.PoolSnapshot(id, at)
	require.NoError(t, err)

	assert.Equal(t, id, snap.MarketID)
	assert.Equal(t, uint64(160), snap.TotalPool)
	assert.Equal(t, map[string]uint64{"yes": 100, "no": 60}, snap.Bets)
	assert.Equal(t, at, snap.At)

	_, err = l.PoolSnapshot(99, at)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestCounts(t *testing.T) {
	l := New()
	nm, nb := l.Counts()
	assert.Zero(t, nm)
	assert.Zero(t, nb)

	id := newMarket(t, l, alice, 100)
	placeBet(t, l, id, bob, "yes", 10)

	nm, nb = l.Counts()
	assert.Equal(t, 1, nm)
	assert.Equal(t, 1, nb)
}
