// Package domain defines the core types of the betledger resolution engine:
// markets, bets, the actions that mutate them, the events those actions emit,
// and the store/cache interfaces the infrastructure layers implement.
package domain

import "time"

// MarketStatus is the stored lifecycle state of a market. Only two values are
// ever persisted; "locked" is a derived condition (now past EndTime, not yet
// resolved) recomputed wherever it matters, never written.
type MarketStatus string

const (
	MarketStatusActive   MarketStatus = "active"
	MarketStatusResolved MarketStatus = "resolved"
)

// Market is one prediction market on the ledger.
type Market struct {
	ID            uint64            `json:"id"`
	Creator       Identity          `json:"creator"`
	Question      string            `json:"question"`
	Description   string            `json:"description"`
	Options       []string          `json:"options"`
	Status        MarketStatus      `json:"status"`
	CorrectAnswer string            `json:"correct_answer,omitempty"` // empty until resolved
	Bets          map[string]uint64 `json:"bets"`                     // option label -> cumulative stake
	TotalPool     uint64            `json:"total_pool"`
	MaxReward     uint64            `json:"max_reward"` // per-winner payout cap
	EndTime       time.Time         `json:"end_time"`
	CreatedAt     time.Time         `json:"created_at"`
}

// Resolved reports whether the market has been resolved.
func (m Market) Resolved() bool {
	return m.Status == MarketStatusResolved
}

// Locked reports whether the market has passed its end time without being
// resolved. Locked markets accept no bets and are waiting on the creator.
func (m Market) Locked(now time.Time) bool {
	return m.Status == MarketStatusActive && !now.Before(m.EndTime)
}

// AcceptsBets reports whether a bet may be placed at the given time. Both
// conditions are required independently: the stored status must still be
// active and the end time must not have passed.
func (m Market) AcceptsBets(now time.Time) bool {
	return m.Status == MarketStatusActive && now.Before(m.EndTime)
}

// HasOption reports whether label is one of the market's options.
func (m Market) HasOption(label string) bool {
	for _, o := range m.Options {
		if o == label {
			return true
		}
	}
	return false
}

// WinningPool returns the cumulative stake on the market's correct answer.
// It is zero until resolution and zero when nobody bet on the winning option.
func (m Market) WinningPool() uint64 {
	if m.CorrectAnswer == "" {
		return 0
	}
	return m.Bets[m.CorrectAnswer]
}

// Clone returns a deep copy safe to hand to readers while the ledger keeps
// mutating the original.
func (m Market) Clone() Market {
	out := m
	out.Options = append([]string(nil), m.Options...)
	out.Bets = make(map[string]uint64, len(m.Bets))
	for k, v := range m.Bets {
		out.Bets[k] = v
	}
	return out
}
