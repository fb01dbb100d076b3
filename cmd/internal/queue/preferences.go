package queue

import (
	"sort"

	"huddle/cmd/internal/session"
)

// Preferences are aggregated category signals. They reorder and filter
// candidates but never eliminate queued items.
type Preferences struct {
	// Liked categories, most accepted first.
	Liked []string
	// Disliked categories were rejected by at least half of the participants and accepted by nobody.
	Disliked []string
}

// Empty reports whether there is no signal yet.
func (p Preferences) Empty() bool { return len(p.Liked) == 0 && len(p.Disliked) == 0 }

// BuildPreferences aggregates distinct-participant category counts.
func BuildPreferences(accepts, rejects map[string]int, participants int) Preferences {
	var p Preferences
	for c, n := range accepts {
		if n > 0 {
			p.Liked = append(p.Liked, c)
		}
	}
	sort.Slice(p.Liked, func(i, j int) bool {
		a, b := accepts[p.Liked[i]], accepts[p.Liked[j]]
		if a != b {
			return a > b
		}
		return p.Liked[i] < p.Liked[j]
	})

	if participants > 0 {
		for c, n := range rejects {
			if accepts[c] == 0 && n*2 >= participants {
				p.Disliked = append(p.Disliked, c)
			}
		}
		sort.Strings(p.Disliked)
	}
	return p
}

// Apply drops candidates whose categories are only disliked ones and moves
// candidates in liked categories to the front. Order is otherwise preserved.
func (p Preferences) Apply(items []session.Candidate) []session.Candidate {
	if p.Empty() {
		return items
	}

	rank := make(map[string]int, len(p.Liked))
	for i, c := range p.Liked {
		rank[c] = i
	}
	disliked := make(map[string]bool, len(p.Disliked))
	for _, c := range p.Disliked {
		disliked[c] = true
	}

	type scored struct {
		c     session.Candidate
		score int
	}
	var kept []scored
	for _, c := range items {
		best := len(p.Liked)
		bad := false
		for _, cat := range c.Categories {
			if r, ok := rank[cat]; ok && r < best {
				best = r
			}
			if disliked[cat] {
				bad = true
			}
		}
		if bad && best == len(p.Liked) {
			continue
		}
		kept = append(kept, scored{c: c, score: best})
	}
	sort.SliceStable(kept, func(i, j int) bool { return kept[i].score < kept[j].score })

	out := make([]session.Candidate, 0, len(kept))
	for _, k := range kept {
		out = append(out, k.c)
	}
	return out
}
