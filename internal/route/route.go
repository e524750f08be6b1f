// Package route orders a set of booth stops into a short walking route.
//
// Small requests (up to MaxExactStops) are solved exactly by enumerating every
// visiting order. Larger ones are built with nearest insertion and then
// polished with 2-opt. Routes are open: they start at a given point and end
// at the last stop.
package route

import (
	"errors"
	"fmt"

	"beacon-presence-api/internal/geo"
)

// MaxExactStops caps the exhaustive search; 8! orders is the most we enumerate.
const MaxExactStops = 8

// improvementEpsilon keeps 2-opt from cycling on floating point noise.
const improvementEpsilon = 1e-6

// ErrTooManyStops is returned when exact search is asked for more than MaxExactStops stops.
var ErrTooManyStops = errors.New("route: too many stops for exact search")

// Stop is a routable location.
type Stop struct {
	ID    string    `json:"id"`
	Point geo.Point `json:"point"`
}

// Result is an ordered route and its total length.
type Result struct {
	Order         []string `json:"order"`
	TotalDistance float64  `json:"total_distance"`
	Exact         bool     `json:"exact"`
}

// Optimize picks exact search or the heuristic depending on the number of stops.
func Optimize(start geo.Point, stops []Stop) Result {
	if len(stops) <= MaxExactStops {
		res, _ := Exact(start, stops)
		return res
	}
	ordered := TwoOpt(start, NearestInsertion(start, stops))
	return newResult(start, ordered, false)
}

// Exact enumerates every visiting order and keeps the shortest. On exact ties
// the first order found (lexicographic in input positions) wins.
func Exact(start geo.Point, stops []Stop) (Result, error) {
	n := len(stops)
	if n > MaxExactStops {
		return Result{}, fmt.Errorf("%w: %d > %d", ErrTooManyStops, n, MaxExactStops)
	}
	if n == 0 {
		return Result{Order: []string{}, Exact: true}, nil
	}

	var (
		best    []int
		bestLen = -1.0
		cur     = make([]int, 0, n)
		used    = make([]bool, n)
	)

	var walk func(prev geo.Point, length float64)
	walk = func(prev geo.Point, length float64) {
		if bestLen >= 0 && length >= bestLen {
			return
		}
		if len(cur) == n {
			bestLen = length
			best = append(best[:0], cur...)
			return
		}
		for i := 0; i < n; i++ {
			if used[i] {
				continue
			}
			used[i] = true
			cur = append(cur, i)
			walk(stops[i].Point, length+geo.Distance(prev, stops[i].Point))
			cur = cur[:len(cur)-1]
			used[i] = false
		}
	}
	walk(start, 0)

	ordered := make([]Stop, n)
	for i, idx := range best {
		ordered[i] = stops[idx]
	}
	return newResult(start, ordered, true), nil
}

// NearestInsertion builds a route by repeatedly taking the unrouted stop
// nearest to the current last stop and inserting it where it adds the least
// length. Position 0 uses start as its predecessor; the route end is open.
func NearestInsertion(start geo.Point, stops []Stop) []Stop {
	if len(stops) == 0 {
		return []Stop{}
	}
	remaining := append([]Stop(nil), stops...)

	seed := nearest(start, remaining)
	route := []Stop{remaining[seed]}
	remaining = removeAt(remaining, seed)

	for len(remaining) > 0 {
		next := nearest(route[len(route)-1].Point, remaining)
		s := remaining[next]
		remaining = removeAt(remaining, next)

		pos, bestCost := 0, -1.0
		for i := 0; i <= len(route); i++ {
			c := insertionCost(start, route, i, s.Point)
			if bestCost < 0 || c < bestCost {
				pos, bestCost = i, c
			}
		}
		route = append(route, Stop{})
		copy(route[pos+1:], route[pos:])
		route[pos] = s
	}
	return route
}

func insertionCost(start geo.Point, route []Stop, pos int, p geo.Point) float64 {
	prev := start
	if pos > 0 {
		prev = route[pos-1].Point
	}
	if pos == len(route) {
		return geo.Distance(prev, p)
	}
	next := route[pos].Point
	return geo.Distance(prev, p) + geo.Distance(p, next) - geo.Distance(prev, next)
}

// TwoOpt applies the first improving segment reversal of each pass until a
// full pass finds none. The input slice is not modified.
func TwoOpt(start geo.Point, route []Stop) []Stop {
	r := append([]Stop(nil), route...)
	n := len(r)
	for improved := true; improved; {
		improved = false
	scan:
		for i := 0; i < n-1; i++ {
			for k := i + 1; k < n; k++ {
				if reversalDelta(start, r, i, k) < -improvementEpsilon {
					reverse(r[i : k+1])
					improved = true
					break scan
				}
			}
		}
	}
	return r
}

// reversalDelta is the change in length from reversing r[i..k].
func reversalDelta(start geo.Point, r []Stop, i, k int) float64 {
	prev := start
	if i > 0 {
		prev = r[i-1].Point
	}
	delta := geo.Distance(prev, r[k].Point) - geo.Distance(prev, r[i].Point)
	if k+1 < len(r) {
		next := r[k+1].Point
		delta += geo.Distance(r[i].Point, next) - geo.Distance(r[k].Point, next)
	}
	return delta
}

func nearest(from geo.Point, stops []Stop) int {
	best, bestD := 0, -1.0
	for i, s := range stops {
		if d := geo.Distance(from, s.Point); bestD < 0 || d < bestD {
			best, bestD = i, d
		}
	}
	return best
}

func removeAt(s []Stop, i int) []Stop {
	return append(s[:i], s[i+1:]...)
}

func reverse(s []Stop) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

// Length returns the open path length of an ordered route.
func Length(start geo.Point, route []Stop) float64 {
	pts := make([]geo.Point, len(route))
	for i, s := range route {
		pts[i] = s.Point
	}
	return geo.PathLength(start, pts)
}

func newResult(start geo.Point, ordered []Stop, exact bool) Result {
	order := make([]string, len(ordered))
	for i, s := range ordered {
		order[i] = s.ID
	}
	return Result{Order: order, TotalDistance: Length(start, ordered), Exact: exact}
}
