package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kprasolov/betledger/internal/domain"
)

// BetStore implements domain.BetStore using PostgreSQL.
type BetStore struct {
	pool *pgxpool.Pool
}

// NewBetStore creates a new BetStore backed by the given connection pool.
func NewBetStore(pool *pgxpool.Pool) *BetStore {
	return &BetStore{pool: pool}
}

const betUpsertQuery = `
	INSERT INTO bets (
		market_id, user_identity, option, amount,
		reward_amount, claimed, placed_at, updated_at
	) VALUES (
		$1, $2, $3, $4,
		$5, $6, $7, NOW()
	)
	ON CONFLICT (market_id, user_identity) DO UPDATE SET
		option        = EXCLUDED.option,
		amount        = EXCLUDED.amount,
		reward_amount = EXCLUDED.reward_amount,
		claimed       = EXCLUDED.claimed,
		placed_at     = EXCLUDED.placed_at,
		updated_at    = NOW()`

// Upsert inserts or updates a single bet.
func (s *BetStore) Upsert(ctx context.Context, b domain.Bet) error {
	_, err := s.pool.Exec(ctx, betUpsertQuery,
		b.MarketID, b.User.String(), b.Option, b.Amount,
		b.RewardAmount, b.Claimed, b.PlacedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: upsert bet %d/%s: %w", b.MarketID, b.User, err)
	}
	return nil
}

// UpsertBatch inserts or updates multiple bets in a single batch operation.
// Resolution rewrites every winning bet of a market, so this path matters.
func (s *BetStore) UpsertBatch(ctx context.Context, bets []domain.Bet) error {
	if len(bets) == 0 {
		return nil
	}

	batch := &pgx.Batch{}
	for _, b := range bets {
		batch.Queue(betUpsertQuery,
			b.MarketID, b.User.String(), b.Option, b.Amount,
			b.RewardAmount, b.Claimed, b.PlacedAt,
		)
	}

	br := s.pool.SendBatch(ctx, batch)
	defer br.Close()

	for i := range bets {
		if _, err := br.Exec(); err != nil {
			return fmt.Errorf("postgres: upsert bet batch item %d: %w", i, err)
		}
	}
	return nil
}

const betCols = `market_id, user_identity, option, amount, reward_amount, claimed, placed_at`

// scanBet scans a single bet row into a domain.Bet.
func scanBet(row pgx.Row) (domain.Bet, error) {
	var (
		b    domain.Bet
		user string
	)
	err := row.Scan(&b.MarketID, &user, &b.Option, &b.Amount, &b.RewardAmount, &b.Claimed, &b.PlacedAt)
	if err != nil {
		return domain.Bet{}, err
	}
	b.User = domain.Identity(user)
	return b, nil
}

// Get retrieves the one bet a user holds on a market.
func (s *BetStore) Get(ctx context.Context, marketID uint64, user domain.Identity) (domain.Bet, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 AND user_identity = $2`,
		marketID, user.String())
	b, err := scanBet(row)
	if err != nil {
		if err == pgx.ErrNoRows {
			return domain.Bet{}, domain.ErrNoBet
		}
		return domain.Bet{}, fmt.Errorf("postgres: get bet %d/%s: %w", marketID, user, err)
	}
	return b, nil
}

// ListByMarket returns all bets on a market in placement order.
func (s *BetStore) ListByMarket(ctx context.Context, marketID uint64) ([]domain.Bet, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+betCols+` FROM bets WHERE market_id = $1 ORDER BY placed_at, user_identity`,
		marketID)
	if err != nil {
		return nil, fmt.Errorf("postgres: list bets for market %d: %w", marketID, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

// ListByUser returns a user's bets across markets, newest market first.
func (s *BetStore) ListByUser(ctx context.Context, user domain.Identity, opts domain.ListOpts) ([]domain.Bet, error) {
	query := `SELECT ` + betCols + ` FROM bets WHERE user_identity = $1`
	args := []any{user.String()}
	argIdx := 2

	if opts.Since != nil {
		query += fmt.Sprintf(" AND placed_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND placed_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}

	query += " ORDER BY market_id DESC"

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
		return nil, fmt.Errorf("postgres: list bets for user %s: %w", user, err)
	}
	defer rows.Close()

	return collectBets(rows)
}

func collectBets(rows pgx.Rows) ([]domain.Bet, error) {
	var bets []domain.Bet
	for rows.Next() {
		b, err := scanBet(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan bet: %w", err)
		}
		bets = append(bets, b)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: bet rows: %w", err)
	}
	return bets, nil
}
