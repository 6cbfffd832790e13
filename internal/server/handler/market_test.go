package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeMarketService struct {
	createFn     func(ctx context.Context, caller domain.Identity, question, description string, duration time.Duration, options []string, maxReward uint64) (domain.Event, error)
	resolveFn    func(ctx context.Context, caller domain.Identity, marketID uint64, answer string) (domain.Event, error)
	getFn        func(ctx context.Context, id uint64) (domain.Market, error)
	listFn       func(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error)
	listLockedFn func(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error)
	poolFn       func(ctx context.Context, marketID uint64) (domain.PoolSnapshot, error)
}

var _ MarketService = (*fakeMarketService)(nil)

func (f *fakeMarketService) CreateMarket(ctx context.Context, caller domain.Identity, question, description string, duration time.Duration, options []string, maxReward uint64) (domain.Event, error) {
	return f.createFn(ctx, caller, question, description, duration, options, maxReward)
}

func (f *fakeMarketService) ResolveMarket(ctx context.Context, caller domain.Identity, marketID uint64, answer string) (domain.Event, error) {
	return f.resolveFn(ctx, caller, marketID, answer)
}

func (f *fakeMarketService) GetMarket(ctx context.Context, id uint64) (domain.Market, error) {
	return f.getFn(ctx, id)
}

func (f *fakeMarketService) ListMarkets(ctx context.Context, status domain.MarketStatus, opts domain.ListOpts) ([]domain.Market, error) {
	return f.listFn(ctx, status, opts)
}

func (f *fakeMarketService) ListLockedMarkets(ctx context.Context, opts domain.ListOpts) ([]domain.Market, error) {
	return f.listLockedFn(ctx, opts)
}

func (f *fakeMarketService) Pool(ctx context.Context, marketID uint64) (domain.PoolSnapshot, error) {
	return f.poolFn(ctx, marketID)
}

func TestCreateMarket(t *testing.T) {
	var gotCaller domain.Identity
	var gotDuration time.Duration
	svc := &fakeMarketService{
		createFn: func(_ context.Context, caller domain.Identity, question, _ string, duration time.Duration, options []string, maxReward uint64) (domain.Event, error) {
			gotCaller = caller
			gotDuration = duration
			return domain.Event{ID: "evt-1", Type: domain.EventMarketCreated, MarketID: 1, Creator: caller}, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	body := jsonBody(t, createMarketRequest{
		Question:        "Will it rain tomorrow?",
		DurationMinutes: 60,
		Options:         []string{"yes", "no"},
		MaxReward:       1000,
	})
	req := asUser(httptest.NewRequest(http.MethodPost, "/api/markets", body), "0xalice")
	rec := httptest.NewRecorder()

	h.CreateMarket(rec, req)

	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, domain.Identity("0xalice"), gotCaller)
	assert.Equal(t, time.Hour, gotDuration)

	evt := decodeBody[domain.Event](t, rec)
	assert.Equal(t, domain.EventMarketCreated, evt.Type)
	assert.Equal(t, uint64(1), evt.MarketID)
}

func TestCreateMarket_RequiresSession(t *testing.T) {
	called := false
	svc := &fakeMarketService{
		createFn: func(context.Context, domain.Identity, string, string, time.Duration, []string, uint64) (domain.Event, error) {
			called = true
			return domain.Event{}, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(`{}`))
	rec := httptest.NewRecorder()

	h.CreateMarket(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.False(t, called, "service must not be reached without a session")
}

func TestCreateMarket_BadBody(t *testing.T) {
	h := NewMarketHandler(&fakeMarketService{}, discardLogger())

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/markets", strings.NewReader(`{not json`)), "0xalice")
	rec := httptest.NewRecorder()

	h.CreateMarket(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestGetMarket_LockedFlag(t *testing.T) {
	ended := domain.Market{
		ID:       7,
		Question: "Will it rain tomorrow?",
		Status:   domain.MarketStatusActive,
		EndTime:  time.Now().UTC().Add(-time.Minute),
	}
	svc := &fakeMarketService{
		getFn: func(_ context.Context, id uint64) (domain.Market, error) {
			require.Equal(t, uint64(7), id)
			return ended, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/7", nil)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.GetMarket(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	view := decodeBody[map[string]any](t, rec)
	assert.Equal(t, true, view["locked"], "ended active market must report locked")
	assert.Equal(t, string(domain.MarketStatusActive), view["status"])
}

func TestGetMarket_NotFound(t *testing.T) {
	svc := &fakeMarketService{
		getFn: func(context.Context, uint64) (domain.Market, error) {
			return domain.Market{}, fmt.Errorf("market_service: get market: %w", domain.ErrNotFound)
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/99", nil)
	req.SetPathValue("id", "99")
	rec := httptest.NewRecorder()

	h.GetMarket(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGetMarket_BadID(t *testing.T) {
	h := NewMarketHandler(&fakeMarketService{}, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/abc", nil)
	req.SetPathValue("id", "abc")
	rec := httptest.NewRecorder()

	h.GetMarket(rec, req)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestListMarkets_StatusFilter(t *testing.T) {
	var gotStatus domain.MarketStatus
	lockedCalled := false
	svc := &fakeMarketService{
		listFn: func(_ context.Context, status domain.MarketStatus, _ domain.ListOpts) ([]domain.Market, error) {
			gotStatus = status
			return nil, nil
		},
		listLockedFn: func(context.Context, domain.ListOpts) ([]domain.Market, error) {
			lockedCalled = true
			return nil, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	rec := httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets?status=resolved", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, domain.MarketStatusResolved, gotStatus)

	rec = httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets?status=locked", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, lockedCalled, "locked filter must use the derived query")

	rec = httptest.NewRecorder()
	h.ListMarkets(rec, httptest.NewRequest(http.MethodGet, "/api/markets?status=closed", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "unknown filters are rejected, not ignored")
}

func TestResolveMarket_NotCreator(t *testing.T) {
	svc := &fakeMarketService{
		resolveFn: func(context.Context, domain.Identity, uint64, string) (domain.Event, error) {
			return domain.Event{}, fmt.Errorf("market_service: market.resolve: %w", domain.ErrUnauthorized)
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/markets/7/resolve", jsonBody(t, resolveMarketRequest{Answer: "yes"})), "0xbob")
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.ResolveMarket(rec, req)

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestResolveMarket(t *testing.T) {
	var gotAnswer string
	svc := &fakeMarketService{
		resolveFn: func(_ context.Context, caller domain.Identity, marketID uint64, answer string) (domain.Event, error) {
			gotAnswer = answer
			return domain.Event{Type: domain.EventMarketResolved, MarketID: marketID, Answer: answer}, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := asUser(httptest.NewRequest(http.MethodPost, "/api/markets/7/resolve", jsonBody(t, resolveMarketRequest{Answer: "yes"})), "0xalice")
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.ResolveMarket(rec, req)

	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "yes", gotAnswer)

	evt := decodeBody[domain.Event](t, rec)
	assert.Equal(t, domain.EventMarketResolved, evt.Type)
}

func TestGetPool(t *testing.T) {
	svc := &fakeMarketService{
		poolFn: func(_ context.Context, marketID uint64) (domain.PoolSnapshot, error) {
			return domain.PoolSnapshot{
				MarketID:  marketID,
				Bets:      map[string]uint64{"yes": 100, "no": 300},
				TotalPool: 400,
			}, nil
		},
	}
	h := NewMarketHandler(svc, discardLogger())

	req := httptest.NewRequest(http.MethodGet, "/api/markets/7/pool", nil)
	req.SetPathValue("id", "7")
	rec := httptest.NewRecorder()

	h.GetPool(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	snap := decodeBody[domain.PoolSnapshot](t, rec)
	assert.Equal(t, uint64(400), snap.TotalPool)
	assert.Equal(t, uint64(100), snap.Bets["yes"])
}
