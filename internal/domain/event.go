package domain

import "time"

// EventType identifies the effect produced by a successful ledger action.
type EventType string

const (
	EventMarketCreated  EventType = "market.created"
	EventBetPlaced      EventType = "bet.placed"
	EventMarketResolved EventType = "market.resolved"
	EventRewardClaimed  EventType = "reward.claimed"
)

// Pub/sub channel names. market_updates carries created and resolved markets,
// bet_updates carries placed bets and claims, pool_updates carries a pool
// snapshot after every accepted bet.
const (
	ChannelMarketUpdates = "market_updates"
	ChannelBetUpdates    = "bet_updates"
	ChannelPoolUpdates   = "pool_updates"
)

// EventStream is the Redis stream every event envelope is appended to.
const EventStream = "events"

// Event describes the effect of one applied action. The ledger fills the
// type-specific fields and OccurredAt (the logical timestamp of the action);
// the host assigns ID before journaling or publishing.
type Event struct {
	ID         string    `json:"event_id"`
	Type       EventType `json:"type"`
	MarketID   uint64    `json:"market_id"`
	Creator    Identity  `json:"creator,omitempty"`        // market.created
	User       Identity  `json:"user,omitempty"`           // bet.placed, reward.claimed
	Option     string    `json:"option,omitempty"`         // bet.placed, reward.claimed
	Amount     uint64    `json:"amount,omitempty"`         // bet.placed stake / reward.claimed payout
	Answer     string    `json:"correct_answer,omitempty"` // market.resolved
	OccurredAt time.Time `json:"occurred_at"`
}

// Channel returns the pub/sub channel an event of this type is published on.
func (e Event) Channel() string {
	switch e.Type {
	case EventMarketCreated, EventMarketResolved:
		return ChannelMarketUpdates
	default:
		return ChannelBetUpdates
	}
}

// PoolSnapshot is the payload published on pool_updates after each accepted
// bet: the full per-option ledger and total for one market.
type PoolSnapshot struct {
	MarketID  uint64            `json:"market_id"`
	Bets      map[string]uint64 `json:"bets"`
	TotalPool uint64            `json:"total_pool"`
	At        time.Time         `json:"at"`
}
