// Package service orchestrates ledger actions against the supporting
// infrastructure: every accepted action is mirrored to Postgres, journaled,
// published on the signal bus, and fanned out to notifiers. The in-memory
// ledger stays authoritative throughout; infrastructure failures are logged
// and audited but never roll an accepted action back.
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/kprasolov/betledger/internal/domain"
	"github.com/kprasolov/betledger/internal/ledger"
	"github.com/kprasolov/betledger/internal/notify"
)

// MarketService is the single entry point for ledger mutations and queries.
type MarketService struct {
	ledger *ledger.Ledger
	logger *slog.Logger

	// Optional attachments; every one of them may be nil and the service
	// degrades to ledger-only operation.
	markets  domain.MarketStore
	bets     domain.BetStore
	events   domain.EventStore
	audit    domain.AuditStore
	cache    domain.MarketCache
	bus      domain.SignalBus
	notifier *notify.Notifier

	now func() time.Time
}

// NewMarketService creates a MarketService around the authoritative ledger.
// Mirror stores, cache, bus, and notifier are attached with the With methods.
func NewMarketService(lg *ledger.Ledger, logger *slog.Logger) *MarketService {
	return &MarketService{
		ledger: lg,
		logger: logger,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// WithMirror attaches the Postgres mirror stores. Accepted actions are
// mirrored synchronously; a failed mirror write is logged and audited while
// the request still succeeds, since the ledger has already committed.
func (s *MarketService) WithMirror(markets domain.MarketStore, bets domain.BetStore, events domain.EventStore, audit domain.AuditStore) *MarketService {
	s.markets = markets
	s.bets = bets
	s.events = events
	s.audit = audit
	return s
}

// WithCache attaches the hot market cache.
func (s *MarketService) WithCache(cache domain.MarketCache) *MarketService {
	s.cache = cache
	return s
}

// WithBus attaches the signal bus for pub/sub fan-out and the events stream.
func (s *MarketService) WithBus(bus domain.SignalBus) *MarketService {
	s.bus = bus
	return s
}

// WithNotifier attaches operator notifications for market lifecycle events.
func (s *MarketService) WithNotifier(n *notify.Notifier) *MarketService {
	s.notifier = n
	return s
}

// ---------------------------------------------------------------------------
// Write path
// ---------------------------------------------------------------------------

// CreateMarket opens a new market owned by caller and returns its creation
// event. The market accepts bets until now+duration.
func (s *MarketService) CreateMarket(ctx context.Context, caller domain.Identity, question, description string, duration time.Duration, options []string, maxReward uint64) (domain.Event, error) {
	return s.apply(ctx, domain.NewCreateMarket(question, description, duration, options, maxReward), caller)
}

// PlaceBet stakes amount on one option of an open market for caller.
func (s *MarketService) PlaceBet(ctx context.Context, caller domain.Identity, marketID uint64, option string, amount uint64) (domain.Event, error) {
	return s.apply(ctx, domain.NewPlaceBet(marketID, option, amount), caller)
}

// ResolveMarket fixes the correct answer of caller's ended market and
// computes every winner's reward.
func (s *MarketService) ResolveMarket(ctx context.Context, caller domain.Identity, marketID uint64, answer string) (domain.Event, error) {
	return s.apply(ctx, domain.NewResolveMarket(marketID, answer), caller)
}

// ClaimReward pays out caller's winning bet on a resolved market.
func (s *MarketService) ClaimReward(ctx context.Context, caller domain.Identity, marketID uint64) (domain.Event, error) {
	return s.apply(ctx, domain.NewClaimReward(marketID), caller)
}

// apply runs one action through the ledger and, if it was accepted, mirrors,
// journals, publishes, and notifies. Only the ledger can fail the action.
func (s *MarketService) apply(ctx context.Context, action domain.Action, caller domain.Identity) (domain.Event, error) {
	evt, err := s.ledger.Apply(action, caller, s.now())
	if err != nil {
		return domain.Event{}, fmt.Errorf("market_service: %s: %w", action.Kind, err)
	}
	evt.ID = uuid.NewString()

	s.mirror(ctx, evt)
	s.auditAction(ctx, evt)
	s.publish(ctx, evt)
	s.notifyEvent(ctx, evt)

	s.logger.InfoContext(ctx, "market_service: action applied",
		slog.String("event_id", evt.ID),
		slog.String("type", string(evt.Type)),
		slog.Uint64("market_id", evt.MarketID),
	)

	return evt, nil
}

// mirror writes the post-action state to the Postgres stores. State is
// re-read from the ledger at write time, so concurrent applies on the same
// market converge on the newest row regardless of write order.
func (s *MarketService) mirror(ctx context.Context, evt domain.Event) {
	if s.markets == nil {
		return
	}

	market, err := s.ledger.GetMarket(evt.MarketID)
	if err != nil {
		s.mirrorFailed(ctx, evt, "market read-back", err)
		return
	}

	switch evt.Type {
	case domain.EventMarketCreated:
		err = s.markets.Upsert(ctx, market)

	case domain.EventBetPlaced:
		if err = s.markets.Upsert(ctx, market); err == nil {
			var bet domain.Bet
			if bet, err = s.ledger.GetBet(evt.MarketID, evt.User); err == nil {
				err = s.bets.Upsert(ctx, bet)
			}
		}

	case domain.EventMarketResolved:
		// Resolution rewrites the reward of every winning bet, so the whole
		// market's bets are re-mirrored in one batch.
		if err = s.markets.Upsert(ctx, market); err == nil {
			err = s.bets.UpsertBatch(ctx, s.ledger.BetsByMarket(evt.MarketID))
		}

	case domain.EventRewardClaimed:
		var bet domain.Bet
		if bet, err = s.ledger.GetBet(evt.MarketID, evt.User); err == nil {
			err = s.bets.Upsert(ctx, bet)
		}
	}
	if err != nil {
		s.mirrorFailed(ctx, evt, "state upsert", err)
		return
	}

	if err := s.events.Append(ctx, evt); err != nil {
		s.mirrorFailed(ctx, evt, "event append", err)
	}
}

// mirrorFailed records a mirror divergence. The ledger has already committed
// the action, so the failure is surfaced to operators instead of the caller.
func (s *MarketService) mirrorFailed(ctx context.Context, evt domain.Event, stage string, err error) {
	s.logger.WarnContext(ctx, "market_service: mirror write failed",
		slog.String("stage", stage),
		slog.String("event_id", evt.ID),
		slog.String("type", string(evt.Type)),
		slog.Uint64("market_id", evt.MarketID),
		slog.String("error", err.Error()),
	)

	if s.audit == nil {
		return
	}
	if auditErr := s.audit.Log(ctx, "mirror_write_failed", map[string]any{
		"stage":     stage,
		"event_id":  evt.ID,
		"type":      string(evt.Type),
		"market_id": evt.MarketID,
		"error":     err.Error(),
	}); auditErr != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("error", auditErr.Error()),
		)
	}
}

// auditAction writes one audit row per accepted action.
func (s *MarketService) auditAction(ctx context.Context, evt domain.Event) {
	if s.audit == nil {
		return
	}

	detail := map[string]any{
		"event_id":  evt.ID,
		"market_id": evt.MarketID,
	}
	switch evt.Type {
	case domain.EventMarketCreated:
		detail["creator"] = string(evt.Creator)
	case domain.EventBetPlaced:
		detail["user"] = string(evt.User)
		detail["option"] = evt.Option
		detail["amount"] = evt.Amount
	case domain.EventMarketResolved:
		detail["correct_answer"] = evt.Answer
	case domain.EventRewardClaimed:
		detail["user"] = string(evt.User)
		detail["amount"] = evt.Amount
	}

	if err := s.audit.Log(ctx, string(evt.Type), detail); err != nil {
		s.logger.WarnContext(ctx, "market_service: audit log failed",
			slog.String("event_id", evt.ID),
			slog.String("error", err.Error()),
		)
	}
}

// publish fans the event out on the bus and keeps the cache in step.
func (s *MarketService) publish(ctx context.Context, evt domain.Event) {
	if s.bus != nil {
		payload, err := json.Marshal(evt)
		if err != nil {
			s.logger.WarnContext(ctx, "market_service: marshal event failed",
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
			return
		}

		if err := s.bus.Publish(ctx, evt.Channel(), payload); err != nil {
			s.logger.WarnContext(ctx, "market_service: publish failed",
				slog.String("channel", evt.Channel()),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, domain.EventStream, payload); err != nil {
			s.logger.WarnContext(ctx, "market_service: stream append failed",
				slog.String("error", err.Error()),
			)
		}

		// Every accepted bet moves the pool; publish the fresh per-option
		// totals for live consumers.
		if evt.Type == domain.EventBetPlaced {
			if snap, err := s.ledger.PoolSnapshot(evt.MarketID, s.now()); err == nil {
				if data, err := json.Marshal(snap); err == nil {
					if err := s.bus.Publish(ctx, domain.ChannelPoolUpdates, data); err != nil {
						s.logger.WarnContext(ctx, "market_service: publish pool snapshot failed",
							slog.String("error", err.Error()),
						)
					}
				}
			}
		}
	}

	s.refreshCache(ctx, evt)
}

// refreshCache keeps the Redis market snapshot in step with the ledger.
// Creation and resolution overwrite the entry; bets invalidate it because
// pool totals churn too fast to be worth re-serializing on every stake.
func (s *MarketService) refreshCache(ctx context.Context, evt domain.Event) {
	if s.cache == nil {
		return
	}

	var err error
	switch evt.Type {
	case domain.EventMarketCreated, domain.EventMarketResolved:
		var market domain.Market
		if market, err = s.ledger.GetMarket(evt.MarketID); err == nil {
			err = s.cache.Set(ctx, market)
		}
	case domain.EventBetPlaced:
		err = s.cache.Invalidate(ctx, evt.MarketID)
	default:
		return
	}
	if err != nil {
		s.logger.WarnContext(ctx, "market_service: cache refresh failed",
			slog.Uint64("market_id", evt.MarketID),
			slog.String("error", err.Error()),
		)
		// Non-fatal: the cache entry expires on its own.
	}
}

// notifyEvent forwards market lifecycle events to the configured notifier.
// Delivery runs in the background so a slow webhook cannot stall the caller.
func (s *MarketService) notifyEvent(ctx context.Context, evt domain.Event) {
	if s.notifier == nil {
		return
	}

	var title, message string
	switch evt.Type {
	case domain.EventMarketCreated:
		market, err := s.ledger.GetMarket(evt.MarketID)
		if err != nil {
			return
		}
		title = "Market created"
		message = fmt.Sprintf("#%d %s (betting closes %s)",
			market.ID, market.Question, market.EndTime.Format(time.RFC3339))
	case domain.EventMarketResolved:
		market, err := s.ledger.GetMarket(evt.MarketID)
		if err != nil {
			return
		}
		title = "Market resolved"
		message = fmt.Sprintf("#%d %s: %s", market.ID, market.Question, evt.Answer)
	default:
		return
	}

	bg := context.WithoutCancel(ctx)
	go func() {
		if err := s.notifier.Notify(bg, string(evt.Type), title, message); err != nil {
			s.logger.WarnContext(bg, "market_service: notify failed",
				slog.String("event_id", evt.ID),
				slog.String("error", err.Error()),
			)
		}
	}()
}
