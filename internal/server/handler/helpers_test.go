package handler

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/kprasolov/betledger/internal/domain"
	"github.com/kprasolov/betledger/internal/server/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// jsonBody marshals v into a request body reader.
func jsonBody(t *testing.T, v any) io.Reader {
	t.Helper()
	data, err := json.Marshal(v)
	require.NoError(t, err)
	return bytes.NewReader(data)
}

// asUser attaches an authenticated identity to the request, the way the
// session middleware does for a valid bearer token.
func asUser(r *http.Request, id domain.Identity) *http.Request {
	return r.WithContext(middleware.WithIdentity(r.Context(), id))
}

// decodeBody unmarshals the recorded response body into T.
func decodeBody[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return out
}

func TestWriteDomainError_StatusMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{"invalid input", fmt.Errorf("market_service: market.create: %w", domain.ErrInvalidInput), http.StatusBadRequest},
		{"invalid option", fmt.Errorf("market_service: bet.place: %w", domain.ErrInvalidOption), http.StatusBadRequest},
		{"unauthenticated", domain.ErrUnauthenticated, http.StatusUnauthorized},
		{"unauthorized", fmt.Errorf("market_service: market.resolve: %w", domain.ErrUnauthorized), http.StatusForbidden},
		{"not found", domain.ErrNotFound, http.StatusNotFound},
		{"no bet", domain.ErrNoBet, http.StatusNotFound},
		{"duplicate bet", domain.ErrDuplicateBet, http.StatusConflict},
		{"already claimed", domain.ErrAlreadyClaimed, http.StatusConflict},
		{"nothing to claim", domain.ErrNothingToClaim, http.StatusConflict},
		{"market ended", domain.ErrMarketEnded, http.StatusConflict},
		{"too early", domain.ErrTooEarly, http.StatusConflict},
		{"did not win", domain.ErrDidNotWin, http.StatusConflict},
		{"rate limited", domain.ErrRateLimited, http.StatusTooManyRequests},
		{"unknown", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			req := httptest.NewRequest(http.MethodGet, "/test", nil)

			writeDomainError(rec, req, discardLogger(), tc.err)

			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

// Internal errors must not leak their detail to clients; everything else
// carries the wrapped message so callers see which precondition failed.
func TestWriteDomainError_Messages(t *testing.T) {
	rec := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	writeDomainError(rec, req, discardLogger(), errors.New("pgx: connection refused"))

	body := decodeBody[map[string]string](t, rec)
	assert.Equal(t, "internal server error", body["error"])

	rec = httptest.NewRecorder()
	writeDomainError(rec, req, discardLogger(), fmt.Errorf("market_service: bet.place: %w", domain.ErrMarketEnded))

	body = decodeBody[map[string]string](t, rec)
	assert.Contains(t, body["error"], "market ended")
}

func TestParseListOpts(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/x?limit=9000&offset=20&since=2026-01-02T15:04:05Z", nil)

	opts := parseListOpts(req)

	assert.Equal(t, 500, opts.Limit, "limit should be capped")
	assert.Equal(t, 20, opts.Offset)
	require.NotNil(t, opts.Since)
	assert.Equal(t, 2026, opts.Since.Year())
	assert.Nil(t, opts.Until)
}

func TestParseListOpts_Defaults(t *testing.T) {
	opts := parseListOpts(httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, 50, opts.Limit)
	assert.Equal(t, 0, opts.Offset)
	assert.Nil(t, opts.Since)
	assert.Nil(t, opts.Until)
}
