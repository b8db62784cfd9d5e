// Package consensus tallies weighted ledger votes into a single strategy signal.
package consensus

import "github.com/talgya/seraphin/internal/ledger"

const (
	// MinVotes is the number of votes required before any decision is made.
	MinVotes = 10
	// Window is how many of the most recent votes are tallied.
	Window = 50
)

// Decide returns the proposal with the highest summed weight over the last
// Window votes. ok is false when fewer than MinVotes votes exist. Among
// proposals with equal sums the one whose first vote in the window came
// earliest wins.
func Decide(votes []ledger.Vote) (proposal string, ok bool) {
	if len(votes) < MinVotes {
		return "", false
	}
	if len(votes) > Window {
		votes = votes[len(votes)-Window:]
	}

	scores := make(map[string]float64)
	var order []string
	for _, v := range votes {
		if _, seen := scores[v.Proposal]; !seen {
			order = append(order, v.Proposal)
		}
		scores[v.Proposal] += v.Weight
	}

	best := order[0]
	for _, p := range order[1:] {
		if scores[p] > scores[best] {
			best = p
		}
	}
	return best, true
}
