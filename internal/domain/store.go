package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and time filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// MarketStore mirrors ledger markets durably. The in-memory ledger stays
// authoritative while the process runs; the store is the rehydration source
// at startup and the query source for archival.
type MarketStore interface {
	Upsert(ctx context.Context, market Market) error
	GetByID(ctx context.Context, id uint64) (Market, error)
	List(ctx context.Context, opts ListOpts) ([]Market, error)
	ListByStatus(ctx context.Context, status MarketStatus, opts ListOpts) ([]Market, error)
	ListResolvedBefore(ctx context.Context, before time.Time) ([]Market, error)
	Count(ctx context.Context) (int64, error)
}

// BetStore mirrors ledger bets durably, keyed by (market id, user).
type BetStore interface {
	Upsert(ctx context.Context, bet Bet) error
	UpsertBatch(ctx context.Context, bets []Bet) error
	Get(ctx context.Context, marketID uint64, user Identity) (Bet, error)
	ListByMarket(ctx context.Context, marketID uint64) ([]Bet, error)
	ListByUser(ctx context.Context, user Identity, opts ListOpts) ([]Bet, error)
}

// EventStore persists the append-only journal of emitted events.
type EventStore interface {
	Append(ctx context.Context, event Event) error
	ListByMarket(ctx context.Context, marketID uint64, opts ListOpts) ([]Event, error)
	ListRecent(ctx context.Context, limit int) ([]Event, error)
	ListBefore(ctx context.Context, before time.Time) ([]Event, error)
}

// AuditEntry is a single audit log row.
type AuditEntry struct {
	ID        int64          `json:"id"`
	Event     string         `json:"event"`
	Detail    map[string]any `json:"detail"`
	CreatedAt time.Time      `json:"created_at"`
}

// AuditStore persists an append-only audit log.
type AuditStore interface {
	Log(ctx context.Context, event string, detail map[string]any) error
	List(ctx context.Context, opts ListOpts) ([]AuditEntry, error)
}
