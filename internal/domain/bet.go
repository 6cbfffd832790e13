package domain

import "time"

// Bet is one user's single irrevocable stake on one option of one market.
// Bets are keyed by (MarketID, User); at most one exists per pair.
type Bet struct {
	MarketID     uint64    `json:"market_id"`
	User         Identity  `json:"user"`
	Option       string    `json:"option"`
	Amount       uint64    `json:"amount"`
	RewardAmount uint64    `json:"reward_amount"` // set at resolution for winning bets, zero otherwise
	Claimed      bool      `json:"claimed"`
	PlacedAt     time.Time `json:"placed_at"`
}

// Won reports whether the bet picked the given correct answer. It is false
// for the empty answer, i.e. before resolution.
func (b Bet) Won(correctAnswer string) bool {
	return correctAnswer != "" && b.Option == correctAnswer
}

// Claimable reports whether the bet has an unclaimed, nonzero reward.
func (b Bet) Claimable() bool {
	return !b.Claimed && b.RewardAmount > 0
}
