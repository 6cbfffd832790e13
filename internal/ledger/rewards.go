package ledger

import "math/bits"

// share returns floor(amount * totalPool / winningPool). The product of two
// uint64 stakes can exceed 64 bits, so the multiplication runs through a
// 128-bit intermediate. Callers must pass amount <= winningPool <= totalPool,
// which is always true for a bet counted inside its own winning pool; under
// that precondition the quotient is at most totalPool and fits in a uint64.
func share(amount, totalPool, winningPool uint64) uint64 {
	if winningPool == 0 {
		return 0
	}
	hi, lo := bits.Mul64(amount, totalPool)
	q, _ := bits.Div64(hi, lo, winningPool)
	return q
}

// cappedShare is share limited to the market's per-winner maximum. Division
// truncates, so the sum of all payouts never exceeds the total pool; the
// remainder stays in the ledger rather than being redistributed.
func cappedShare(amount, totalPool, winningPool, maxReward uint64) uint64 {
	s := share(amount, totalPool, winningPool)
	if s > maxReward {
		return maxReward
	}
	return s
}
