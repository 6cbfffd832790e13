package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kprasolov/betledger/internal/domain"
)

// EventStore implements domain.EventStore using PostgreSQL. The journal is
// append-only; rows are never updated.
type EventStore struct {
	pool *pgxpool.Pool
}

// NewEventStore creates a new EventStore backed by the given connection pool.
func NewEventStore(pool *pgxpool.Pool) *EventStore {
	return &EventStore{pool: pool}
}

// Append writes one event to the journal. Replays of the same envelope id are
// ignored so a retried mirror write cannot duplicate history.
func (s *EventStore) Append(ctx context.Context, e domain.Event) error {
	const query = `
		INSERT INTO events (
			event_id, type, market_id, creator, user_identity,
			option, amount, correct_answer, occurred_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (event_id) DO NOTHING`

	_, err := s.pool.Exec(ctx, query,
		e.ID, string(e.Type), e.MarketID, e.Creator.String(), e.User.String(),
		e.Option, e.Amount, e.Answer, e.OccurredAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append event %s: %w", e.ID, err)
	}
	return nil
}

const eventCols = `event_id, type, market_id, creator, user_identity, option, amount, correct_answer, occurred_at`

// scanEvent scans a single event row into a domain.Event.
func scanEvent(row pgx.Row) (domain.Event, error) {
	var (
		e       domain.Event
		typ     string
		creator string
		user    string
	)
	err := row.Scan(&e.ID, &typ, &e.MarketID, &creator, &user, &e.Option, &e.Amount, &e.Answer, &e.OccurredAt)
	if err != nil {
		return domain.Event{}, err
	}
	e.Type = domain.EventType(typ)
	e.Creator = domain.Identity(creator)
	e.User = domain.Identity(user)
	return e, nil
}

// ListByMarket returns a market's events in occurrence order.
func (s *EventStore) ListByMarket(ctx context.Context, marketID uint64, opts domain.ListOpts) ([]domain.Event, error) {
	query := `SELECT ` + eventCols + ` FROM events WHERE market_id = $1`
	args := []any{marketID}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND occurred_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND occurred_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY occurred_at, event_id"

	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events for market %d: %w", marketID, err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListRecent returns the newest events across all markets, newest first.
func (s *EventStore) ListRecent(ctx context.Context, limit int) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM events ORDER BY occurred_at DESC, event_id DESC LIMIT $1`,
		limit)
	if err != nil {
		return nil, fmt.Errorf("postgres: list recent events: %w", err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

// ListBefore returns all events that occurred before the cutoff, oldest
// first, the archiver's selection query.
func (s *EventStore) ListBefore(ctx context.Context, before time.Time) ([]domain.Event, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+eventCols+` FROM events WHERE occurred_at < $1 ORDER BY occurred_at, event_id`,
		before)
	if err != nil {
		return nil, fmt.Errorf("postgres: list events before %s: %w", before.Format(time.RFC3339), err)
	}
	defer rows.Close()

	return collectEvents(rows)
}

func collectEvents(rows pgx.Rows) ([]domain.Event, error) {
	var events []domain.Event
	for rows.Next() {
		e, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan event: %w", err)
		}
		events = append(events, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: event rows: %w", err)
	}
	return events, nil
}
