// Package match implements the matching engine: partitioning a subscriber
// roster into groups of two (or one group of three for an odd roster)
// while preferring pairs that have never been matched before.
//
// The package is deliberately pure: it knows nothing about persistence or
// delivery, operating only on member ids and an in-memory view of the pair
// history. Callers load the history once and pass it in.
package match

// Pair is an unordered pair of member ids in canonical form (A < B).
// Always construct it through MakePair so that (x, y) and (y, x) compare
// equal.
type Pair struct {
	A, B int64
}

// MakePair returns the canonical Pair for two member ids.
func MakePair(x, y int64) Pair {
	if x > y {
		x, y = y, x
	}
	return Pair{A: x, B: y}
}

// History is the set of all unordered pairs that have ever been matched.
type History map[Pair]struct{}

// Add records that x and y have been matched.
func (h History) Add(x, y int64) { h[MakePair(x, y)] = struct{}{} }

// Seen reports whether x and y have ever been matched, in either order.
func (h History) Seen(x, y int64) bool {
	_, ok := h[MakePair(x, y)]
	return ok
}
