package tournament

import (
	"fmt"
	"math/bits"
)

// IsPowerOfTwo reports whether n is a valid bracket size.
func IsPowerOfTwo(n int) bool {
	return n >= 2 && n&(n-1) == 0
}

// Rounds returns the number of rounds a bracket of n players needs.
func Rounds(n int) int {
	return bits.TrailingZeros(uint(n))
}

// BuildBracket lays out a single-elimination tree over players, in order.
// The first round played is round log2(n) with n/2 matches pairing players
// 2k and 2k+1; every lower round has half as many placeholder matches, each
// fed by matches 2k and 2k+1 of the round above. Round 1 is the final.
func BuildBracket(players []int) ([]MatchSlot, error) {
	n := len(players)
	if !IsPowerOfTwo(n) {
		return nil, fmt.Errorf("%w: %d players is not a power of two", ErrInvalidBracketState, n)
	}

	maxRound := Rounds(n)
	slots := make([]MatchSlot, 0, n-1)
	for k := 0; k < n/2; k++ {
		slots = append(slots, MatchSlot{
			Round:       maxRound,
			MatchNumber: k,
			Player1ID:   intPtr(players[2*k]),
			Player2ID:   intPtr(players[2*k+1]),
			Status:      SlotPending,
		})
	}

	for round := maxRound - 1; round >= 1; round-- {
		count := n >> (maxRound - round + 1)
		for k := 0; k < count; k++ {
			slots = append(slots, MatchSlot{
				Round:            round,
				MatchNumber:      k,
				PreviousMatchID1: intPtr(2 * k),
				PreviousMatchID2: intPtr(2*k + 1),
				Status:           SlotPending,
			})
		}
	}
	return slots, nil
}

// nextSlot finds the match in the round below that the winner of
// (round, matchNumber) feeds, and whether it fills player 1.
func nextSlot(t *Tournament, round, matchNumber int) (*MatchSlot, bool, error) {
	var found *MatchSlot
	first := false
	for i := range t.Matches {
		s := &t.Matches[i]
		if s.Round != round-1 {
			continue
		}
		switch {
		case s.PreviousMatchID1 != nil && *s.PreviousMatchID1 == matchNumber:
			first = true
		case s.PreviousMatchID2 != nil && *s.PreviousMatchID2 == matchNumber:
			first = false
		default:
			continue
		}
		if found != nil {
			return nil, false, fmt.Errorf("%w: match %d/%d feeds more than one slot", ErrInvalidBracketState, round, matchNumber)
		}
		found = s
	}
	if found == nil {
		return nil, false, fmt.Errorf("%w: no successor for match %d/%d", ErrInvalidBracketState, round, matchNumber)
	}
	return found, first, nil
}
