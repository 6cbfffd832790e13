package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/kprasolov/betledger/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	err  error

	mu     sync.Mutex
	titles []string
}

func (f *fakeSender) Send(_ context.Context, title, _ string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.titles = append(f.titles, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func (f *fakeSender) sent() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.titles...)
}

type fakeLimiter struct {
	mu   sync.Mutex
	keys []string
}

var _ domain.RateLimiter = (*fakeLimiter)(nil)

func (f *fakeLimiter) Allow(context.Context, string, int, time.Duration) (bool, error) {
	return true, nil
}

func (f *fakeLimiter) Wait(_ context.Context, key string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.keys = append(f.keys, key)
	return nil
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotify_EventFilter(t *testing.T) {
	s := &fakeSender{name: "telegram"}
	n := NewNotifier([]Sender{s}, []string{"market.resolved"}, testLogger())

	require.NoError(t, n.Notify(context.Background(), "bet.placed", "Bet placed", "ignored"))
	require.NoError(t, n.Notify(context.Background(), "market.resolved", "Market resolved", "paid out"))

	assert.Equal(t, []string{"Market resolved"}, s.sent())
}

func TestNotify_EmptyFilterAllowsAll(t *testing.T) {
	s := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{s}, nil, testLogger())

	require.NoError(t, n.Notify(context.Background(), "market.created", "Market created", "#1"))

	assert.Len(t, s.sent(), 1)
}

func TestDispatch_ContinuesPastFailedSender(t *testing.T) {
	broken := &fakeSender{name: "telegram", err: errors.New("api down")}
	working := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{broken, working}, nil, testLogger())

	err := n.NotifyAll(context.Background(), "Market resolved", "paid out")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "telegram")
	assert.Len(t, working.sent(), 1, "remaining senders still deliver")
}

func TestDispatch_PacesEachSender(t *testing.T) {
	limiter := &fakeLimiter{}
	a := &fakeSender{name: "telegram"}
	b := &fakeSender{name: "discord"}
	n := NewNotifier([]Sender{a, b}, nil, testLogger()).WithRateLimiter(limiter)

	require.NoError(t, n.NotifyAll(context.Background(), "Market created", "#1"))

	assert.Equal(t, []string{"notify:telegram", "notify:discord"}, limiter.keys)
}

func TestNotify_NoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.NotifyAll(context.Background(), "t", "m"))
}
