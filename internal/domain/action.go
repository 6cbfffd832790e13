package domain

import "time"

// ActionKind selects one of the four ledger operations.
type ActionKind string

const (
	ActionCreateMarket  ActionKind = "create_market"
	ActionPlaceBet      ActionKind = "place_bet"
	ActionResolveMarket ActionKind = "resolve_market"
	ActionClaimReward   ActionKind = "claim_reward"
)

// Action is the single input type of the ledger dispatcher. Kind selects the
// operation; only the fields belonging to that operation are read.
type Action struct {
	Kind ActionKind

	// CreateMarket fields.
	Question    string
	Description string
	Duration    time.Duration
	Options     []string
	MaxReward   uint64

	// Fields shared by the per-market operations.
	MarketID uint64
	Option   string // PlaceBet: chosen option
	Amount   uint64 // PlaceBet: stake
	Answer   string // ResolveMarket: correct answer
}

// NewCreateMarket builds a CreateMarket action.
func NewCreateMarket(question, description string, duration time.Duration, options []string, maxReward uint64) Action {
	return Action{
		Kind:        ActionCreateMarket,
		Question:    question,
		Description: description,
		Duration:    duration,
		Options:     options,
		MaxReward:   maxReward,
	}
}

// NewPlaceBet builds a PlaceBet action.
func NewPlaceBet(marketID uint64, option string, amount uint64) Action {
	return Action{Kind: ActionPlaceBet, MarketID: marketID, Option: option, Amount: amount}
}

// NewResolveMarket builds a ResolveMarket action.
func NewResolveMarket(marketID uint64, answer string) Action {
	return Action{Kind: ActionResolveMarket, MarketID: marketID, Answer: answer}
}

// NewClaimReward builds a ClaimReward action.
func NewClaimReward(marketID uint64) Action {
	return Action{Kind: ActionClaimReward, MarketID: marketID}
}
