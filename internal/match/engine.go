package match

import "math/rand"

// Group is an ordered list of 2 or 3 member ids matched together. Output
// order carries no meaning; groups are processed independently afterward.
type Group struct {
	Members []int64
}

// GenerateGroups partitions memberIDs into groups of two, preferring pairs
// not present in history, and degrades gracefully to repeats when the pool
// is small or history is nearly exhausted. For an odd roster exactly one
// group of three is produced.
//
// Algorithm (greedy, randomized):
//  1. Shuffle the roster uniformly. The shuffle is the sole source of
//     match variety across runs and prevents positional bias.
//  2. Scan in shuffled order; for each unmatched member, take the first
//     later unmatched member whose pair is not in history.
//  3. Members with no history-clean partner left are collected into an
//     unmatched pool and drained pairwise as accepted repeats, so nobody
//     is dropped solely because their history is exhausted.
//  4. A single leftover (odd roster) joins one existing group chosen
//     uniformly at random.
//
// The greedy scan is O(n²) and not guaranteed minimum-repeat; that is an
// accepted trade-off at community scale (tens to low hundreds of members).
// Callers must ensure len(memberIDs) >= 2.
//
// The returned repeats count is the number of drained pairs that repeat
// history, for logging and stats.
func GenerateGroups(memberIDs []int64, history History, rng *rand.Rand) (groups []Group, repeats int) {
	roster := make([]int64, len(memberIDs))
	copy(roster, memberIDs)
	rng.Shuffle(len(roster), func(i, j int) {
		roster[i], roster[j] = roster[j], roster[i]
	})

	used := make(map[int64]bool, len(roster))
	var unmatched []int64

	for i, a := range roster {
		if used[a] {
			continue
		}
		partner := int64(0)
		found := false
		for _, b := range roster[i+1:] {
			if used[b] || history.Seen(a, b) {
				continue
			}
			partner = b
			found = true
			break
		}
		if found {
			groups = append(groups, Group{Members: []int64{a, partner}})
			used[a] = true
			used[partner] = true
		} else {
			unmatched = append(unmatched, a)
		}
	}

	// Drain the leftover pool pairwise even though these pairs may repeat
	// history. Repeats are accepted: the novelty guarantee yields before
	// the match-everyone guarantee does.
	for len(unmatched) >= 2 {
		a, b := unmatched[0], unmatched[1]
		unmatched = unmatched[2:]
		groups = append(groups, Group{Members: []int64{a, b}})
		if history.Seen(a, b) {
			repeats++
		}
	}

	// Odd roster: the last member joins a random existing group. With the
	// len >= 2 precondition there is always at least one group here.
	if len(unmatched) == 1 && len(groups) > 0 {
		i := rng.Intn(len(groups))
		groups[i].Members = append(groups[i].Members, unmatched[0])
	}

	return groups, repeats
}
