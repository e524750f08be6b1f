// Package geo holds the planar geometry used for venue floor plans.
// Coordinates are in the venue's own unit (usually meters).
package geo

import "math"

// Point is a position on the venue floor plan.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// Distance returns the Euclidean distance between a and b.
func Distance(a, b Point) float64 {
	return math.Hypot(a.X-b.X, a.Y-b.Y)
}

// PathLength is the length of the open path start -> pts[0] -> ... -> pts[n-1].
func PathLength(start Point, pts []Point) float64 {
	total := 0.0
	prev := start
	for _, p := range pts {
		total += Distance(prev, p)
		prev = p
	}
	return total
}
