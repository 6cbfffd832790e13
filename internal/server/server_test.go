package server

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
	"github.com/kprasolov/betledger/internal/server/handler"
	"github.com/kprasolov/betledger/internal/service"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubService implements every handler service interface with canned happy
// paths; these tests exercise routing and middleware, not the service layer.
type stubService struct{}

func (stubService) CreateMarket(context.Context, domain.Identity, string, string, time.Duration, []string, uint64) (domain.Event, error) {
	return domain.Event{Type: domain.EventMarketCreated, MarketID: 1}, nil
}

func (stubService) ResolveMarket(context.Context, domain.Identity, uint64, string) (domain.Event, error) {
	return domain.Event{Type: domain.EventMarketResolved, MarketID: 1}, nil
}

func (stubService) GetMarket(context.Context, uint64) (domain.Market, error) {
	return domain.Market{ID: 1, Status: domain.MarketStatusActive, EndTime: time.Now().Add(time.Hour)}, nil
}

func (stubService) ListMarkets(context.Context, domain.MarketStatus, domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}

func (stubService) ListLockedMarkets(context.Context, domain.ListOpts) ([]domain.Market, error) {
	return nil, nil
}

func (stubService) Pool(context.Context, uint64) (domain.PoolSnapshot, error) {
	return domain.PoolSnapshot{MarketID: 1}, nil
}

func (stubService) PlaceBet(context.Context, domain.Identity, uint64, string, uint64) (domain.Event, error) {
	return domain.Event{Type: domain.EventBetPlaced, MarketID: 1}, nil
}

func (stubService) ClaimReward(context.Context, domain.Identity, uint64) (domain.Event, error) {
	return domain.Event{Type: domain.EventRewardClaimed, MarketID: 1}, nil
}

func (stubService) GetBet(context.Context, uint64, domain.Identity) (domain.Bet, error) {
	return domain.Bet{MarketID: 1}, nil
}

func (stubService) MarketBets(context.Context, uint64) ([]domain.Bet, error) { return nil, nil }

func (stubService) UserBets(context.Context, domain.Identity, domain.ListOpts) ([]domain.Bet, error) {
	return nil, nil
}

func (stubService) Claimables(context.Context, domain.Identity) ([]domain.Bet, error) {
	return nil, nil
}

func (stubService) BeginLogin(context.Context, string) (string, string, error) {
	return "nonce", "message", nil
}

func (stubService) CompleteLogin(context.Context, string, string) (string, domain.Identity, time.Time, error) {
	return "token", "0xalice", time.Now().Add(time.Hour), nil
}

func (stubService) MarketEvents(context.Context, uint64, domain.ListOpts) ([]domain.Event, error) {
	return nil, nil
}

func (stubService) RecentEvents(context.Context, int) ([]domain.Event, error) { return nil, nil }

func (stubService) AuditLog(context.Context, domain.ListOpts) ([]domain.AuditEntry, error) {
	return nil, nil
}

func (stubService) GetStatus(context.Context) service.Status {
	return service.Status{Markets: 1, Bets: 2}
}

// fakeVerifier accepts exactly one token.
type fakeVerifier struct{}

func (fakeVerifier) Verify(token string) (domain.Identity, error) {
	if token == "good-token" {
		return "0xalice", nil
	}
	return "", fmt.Errorf("verify: %w", domain.ErrUnauthenticated)
}

func newTestServer(t *testing.T, cfg Config) *httptest.Server {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	stub := stubService{}

	handlers := Handlers{
		Health:  handler.NewHealthHandler(logger),
		Status:  handler.NewStatusHandler(stub, "serve", time.Now().UTC()),
		Auth:    handler.NewAuthHandler(stub, logger),
		Markets: handler.NewMarketHandler(stub, logger),
		Bets:    handler.NewBetHandler(stub, logger),
		Events:  handler.NewEventHandler(stub, logger),
		Admin:   handler.NewAdminHandler(stub, logger),
	}

	srv := NewServer(cfg, handlers, nil, fakeVerifier{}, nil, logger)
	ts := httptest.NewServer(srv.httpServer.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func doRequest(t *testing.T, ts *httptest.Server, method, path string, header map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, ts.URL+path, strings.NewReader(`{"option":"yes","amount":1}`))
	require.NoError(t, err)
	for k, v := range header {
		req.Header.Set(k, v)
	}
	resp, err := ts.Client().Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestPublicRoutes(t *testing.T) {
	ts := newTestServer(t, Config{})

	for _, path := range []string{
		"/api/health",
		"/api/status",
		"/api/markets",
		"/api/markets/1",
		"/api/markets/1/pool",
		"/api/markets/1/bets",
		"/api/markets/1/events",
		"/api/users/0xalice/bets",
		"/api/users/0xalice/rewards",
		"/api/events/recent",
	} {
		resp := doRequest(t, ts, http.MethodGet, path, nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestWriteRoutes_SessionRequired(t *testing.T) {
	ts := newTestServer(t, Config{})

	// No token: handlers reject for missing identity.
	resp := doRequest(t, ts, http.MethodPost, "/api/markets", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Garbage token: the session middleware rejects before routing.
	resp = doRequest(t, ts, http.MethodPost, "/api/markets", map[string]string{"Authorization": "Bearer nope"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	// Valid token.
	resp = doRequest(t, ts, http.MethodPost, "/api/markets", map[string]string{"Authorization": "Bearer good-token"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, "/api/markets/1/bets", map[string]string{"Authorization": "Bearer good-token"})
	assert.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/me/bets", map[string]string{"Authorization": "Bearer good-token"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminRoute_KeyGate(t *testing.T) {
	ts := newTestServer(t, Config{AdminAPIKey: "secret"})

	resp := doRequest(t, ts, http.MethodGet, "/api/admin/audit", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/admin/audit", map[string]string{"X-API-Key": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodGet, "/api/admin/audit", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAdminArchiveTrigger(t *testing.T) {
	ts := newTestServer(t, Config{AdminAPIKey: "secret"})

	// No trigger attached: the route exists but answers 501.
	resp := doRequest(t, ts, http.MethodPost, "/api/admin/archive", map[string]string{"X-API-Key": "secret"})
	assert.Equal(t, http.StatusNotImplemented, resp.StatusCode)

	resp = doRequest(t, ts, http.MethodPost, "/api/admin/archive", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestAdminRoute_AbsentWithoutKey(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := doRequest(t, ts, http.MethodGet, "/api/admin/audit", map[string]string{"X-API-Key": "anything"})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t, Config{CORSOrigins: []string{"https://app.example.com"}})

	resp := doRequest(t, ts, http.MethodOptions, "/api/markets", map[string]string{"Origin": "https://app.example.com"})
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)
	assert.Equal(t, "https://app.example.com", resp.Header.Get("Access-Control-Allow-Origin"))

	resp = doRequest(t, ts, http.MethodOptions, "/api/markets", map[string]string{"Origin": "https://evil.example.com"})
	assert.Empty(t, resp.Header.Get("Access-Control-Allow-Origin"))
}

func TestMethodNotAllowed(t *testing.T) {
	ts := newTestServer(t, Config{})

	resp := doRequest(t, ts, http.MethodDelete, "/api/markets", nil)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode)
}
