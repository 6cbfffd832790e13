package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kprasolov/betledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeBetService struct {
	placeFn      func(ctx context.Context, caller domain.Identity, marketID uint64, option string, amount uint64) (domain.Event, error)
	claimFn      func(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Event, error)
	getFn        func(ctx context.Context, marketID uint64, user domain.Identity) (domain.Bet, error)
	marketBetsFn func(ctx context.Context, marketID uint64) ([]domain.Bet, error)
	userBetsFn   func(ctx context.Context, user domain.Identity, opts domain.ListOpts) ([]domain.Bet, error)
	claimablesFn func(ctx context.Context, user domain.Identity) ([]domain.Bet, error)
}

var _ BetService = (*fakeBetService)(nil)

func (f *fakeBetService) PlaceBet(ctx context.Context, caller domain.Identity, marketID uint64, option string, amount uint64) (domain.Event, error) {
	return f.placeFn(ctx, caller, marketID, option, amount)
}

func (f *fakeBetService) ClaimReward(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Event, error) {
	return f.claimFn(ctx, caller, marketID)
}

func (f *fakeBetService) GetBet(ctx context.Context, marketID uint64, user domain.Identity) (domain.Bet, error) {
	return f.getFn(ctx, marketID, user)
}

func (f *fakeBetService) MarketBets(ctx context.Context, marketID uint64) ([]domain.Bet, error) {
	return f.marketBetsFn(ctx, marketID)
}

func (f *fakeBetService) UserBets(ctx context.Context, user domain.Identity, opts domain.ListOpts) ([]domain.Bet, error) {
	return f.userBetsFn(ctx, user, opts)
}

func (f *fakeBetService) Claimables(ctx context.Context, user domain.Identity) ([]domain.Bet, error) {
	return f.claimablesFn(ctx, user)
}

func TestPlaceBet(t *testing.T) {
	var gotOption string
	var gotAmount uint64
	svc := &fakeBetService{
		placeFn: func(_ context.Context, caller domain.Identity, marketID uint64, option string, amount uint64) (domain.Event, error) {
			gotOption = option
			gotAmount = amount
			return domain.Event{Type: domain.EventBetPlaced, MarketID: marketID, User: caller, Option: option, Amount: amount}, nil
		},
	}
	h := NewBetHandler(svc, discardLogger())

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/markets/7/bets", jsonBody(t, placeBetRequest{Option: "yes", Amount: 250})), "0xbob")
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.PlaceBet(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "yes", gotOption)
	assert.Equal(t, uint64(250), gotAmount)

	evt := decodeBody[domain.Event](t, rec)
	assert.Equal(t, domain.EventBetPlaced, evt.Type)
	assert.Equal(t, domain.Identity("0xbob"), evt.User)
}

func TestPlaceBet_RequiresSession(t *testing.T) {
	h := NewBetHandler(&fakeBetService{}, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/markets/7/bets", jsonBody(t, placeBetRequest{Option: "yes", Amount: 1}))
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.PlaceBet(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPlaceBet_Conflicts(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"second bet on same market", domain.ErrDuplicateBet, http.StatusConflict},
		{"betting window closed", domain.ErrMarketEnded, http.StatusConflict},
		{"unknown option", domain.ErrInvalidOption, http.StatusBadRequest},
		{"zero amount", domain.ErrInvalidInput, http.StatusBadRequest},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &fakeBetService{
				placeFn: func(context.Context, domain.Identity, uint64, string, uint64) (domain.Event, error) {
					return domain.Event{}, fmt.Errorf("market_service: bet.place: %w", tc.err)
				},
			}
			h := NewBetHandler(svc, discardLogger())

			req := asUser(httptest.NewRequest(http.MethodPost, "/api/markets/7/bets", jsonBody(t, placeBetRequest{Option: "yes", Amount: 1})), "0xbob")
			req.SetPathValue("id", "7")
			rec := httptest.NewRecorder()

			h.PlaceBet(rec, req)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestClaimReward(t *testing.T) {
	svc := &fakeBetService{
		claimFn: func(_ context.Context, caller domain.Identity, marketID uint64) (domain.Event, error) {
			return domain.Event{Type: domain.EventRewardClaimed, MarketID: marketID, User: caller, Amount: 400}, nil
		},
	}
	h := NewBetHandler(svc, discardLogger())

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/markets/7/claim", nil), "0xbob")
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.ClaimReward(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	evt := decodeBody[domain.Event](t, rec)
	assert.Equal(t, uint64(400), evt.Amount)
}

func TestClaimReward_AlreadyClaimed(t *testing.T) {
	svc := &fakeBetService{
		claimFn: func(context.Context, domain.Identity, uint64) (domain.Event, error) {
			return domain.Event{}, fmt.Errorf("market_service: reward.claim: %w", domain.ErrAlreadyClaimed)
		},
	}
	h := NewBetHandler(svc, discardLogger())

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/markets/7/claim", nil), "0xbob")
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.ClaimReward(rec, req)

	assert.Equal(t, http.StatusConflict, rec.Code)
}

func TestGetOwnBet_NoBet(t *testing.T) {
	svc := &fakeBetService{
		getFn: func(context.Context, uint64, domain.Identity) (domain.Bet, error) {
			return domain.Bet{}, fmt.Errorf("market_service: get bet: %w", domain.ErrNoBet)
		},
	}
	h := NewBetHandler(svc, discardLogger())

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/markets/7/bet", nil), "0xbob")
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.GetOwnBet(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

// Empty lists serialize as [] rather than null so clients can iterate without
// a nil check.
func TestListMarketBets_Empty(t *testing.T) {
	svc := &fakeBetService{
		marketBetsFn: func(context.Context, uint64) ([]domain.Bet, error) {
			return nil, nil
		},
	}
	h := NewBetHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/7/bets", nil)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.ListMarketBets(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"bets":[]}`, rec.Body.String())
}

func TestListUserBets_NormalizesAddress(t *testing.T) {
	var gotUser domain.Identity
	svc := &fakeBetService{
		userBetsFn: func(_ context.Context, user domain.Identity, _ domain.ListOpts) ([]domain.Bet, error) {
			gotUser = user
			return []domain.Bet{{MarketID: 7, User: user, Option: "yes", Amount: 100}}, nil
		},
	}
	h := NewBetHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/users/0xB0B/bets", nil)
	req.SetPathValue("address", "0xB0B")
	rec := httptest.NewRecorder()

	h.ListUserBets(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Identity("0xb0b"), gotUser, "mixed-case addresses must be normalized before lookup")

	resp := decodeBody[listBetsResponse](t, rec)
	require.Len(t, resp.Bets, 1)
	assert.Equal(t, uint64(100), resp.Bets[0].Amount)
}

func TestListUserRewards(t *testing.T) {
	var gotUser domain.Identity
	svc := &fakeBetService{
		claimablesFn: func(_ context.Context, user domain.Identity) ([]domain.Bet, error) {
			gotUser = user
			return []domain.Bet{{MarketID: 3, User: user, Option: "yes", Amount: 50, RewardAmount: 125}}, nil
		},
	}
	h := NewBetHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/users/0xB0B/rewards", nil)
	req.SetPathValue("address", "0xB0B")
	rec := httptest.NewRecorder()

	h.ListUserRewards(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.Identity("0xb0b"), gotUser)

	resp := decodeBody[listBetsResponse](t, rec)
	require.Len(t, resp.Bets, 1)
	assert.Equal(t, uint64(125), resp.Bets[0].RewardAmount)
}

func TestListClaimables(t *testing.T) {
	svc := &fakeBetService{
		claimablesFn: func(_ context.Context, user domain.Identity) ([]domain.Bet, error) {
			return []domain.Bet{{MarketID: 7, User: user, Option: "yes", Amount: 100, RewardAmount: 400}}, nil
		},
	}
	h := NewBetHandler(svc, discardLogger())

	req := asUser(httptest.NewRequest(http.MethodGet, "/api/me/claimables", nil), "0xbob")
	rec := httptest.NewRecorder()

	h.ListClaimables(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	resp := decodeBody[listBetsResponse](t, rec)
	require.Len(t, resp.Bets, 1)
	assert.Equal(t, uint64(400), resp.Bets[0].RewardAmount)
}
