package analytics

import (
	"sort"

	"github.com/samber/lo"
)

// TopTransitions is how many transitions MovementPatterns reports.
const TopTransitions = 5

type Transition struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Count int    `json:"count"`
}

// AggregateMovements counts location-to-location moves across sequences after
// collapsing consecutive repeats, and returns the n most frequent. Equal
// counts keep the order in which the transitions were first seen.
func AggregateMovements(sequences [][]string, n int) []Transition {
	type pair struct{ from, to string }
	counts := map[pair]int{}
	var order []pair

	for _, seq := range sequences {
		collapsed := collapse(seq)
		for i := 1; i < len(collapsed); i++ {
			p := pair{collapsed[i-1], collapsed[i]}
			if _, ok := counts[p]; !ok {
				order = append(order, p)
			}
			counts[p]++
		}
	}

	out := lo.Map(order, func(p pair, _ int) Transition {
		return Transition{From: p.from, To: p.to, Count: counts[p]}
	})
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func collapse(seq []string) []string {
	out := make([]string, 0, len(seq))
	for _, loc := range seq {
		if len(out) == 0 || out[len(out)-1] != loc {
			out = append(out, loc)
		}
	}
	return out
}

// MovementPatterns runs AggregateMovements over every session, visiting users
// in id order.
func MovementPatterns(sessions map[string]Session) []Transition {
	users := lo.Keys(sessions)
	sort.Strings(users)
	seqs := lo.Map(users, func(u string, _ int) []string {
		return lo.Map(sessions[u].Visits, func(v Visit, _ int) string { return v.LocationID })
	})
	return AggregateMovements(seqs, TopTransitions)
}
