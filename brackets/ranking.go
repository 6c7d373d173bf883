package brackets

import (
	"math"
	"sort"
)

// RoundScore rounds a score to two decimals.
func RoundScore(score float64) float64 {
	return math.Round(score*100) / 100
}

// scoreKey compares scores at hundredth precision without float drift.
func scoreKey(score float64) int64 {
	return int64(math.Round(score * 100))
}

func SameScore(a, b float64) bool {
	return scoreKey(a) == scoreKey(b)
}

type ScoredContestant struct {
	ContestantID int
	Score        float64
}

// RankByScore orders contestants by score descending; equal scores keep ID order for stable output.
func RankByScore(entries []ScoredContestant) []ScoredContestant {
	ranked := make([]ScoredContestant, len(entries))
	copy(ranked, entries)
	sort.SliceStable(ranked, func(i, j int) bool {
		ki, kj := scoreKey(ranked[i].Score), scoreKey(ranked[j].Score)
		if ki != kj {
			return ki > kj
		}
		return ranked[i].ContestantID < ranked[j].ContestantID
	})
	return ranked
}

// CutoffTie describes contestants sharing the score at the qualification boundary.
type CutoffTie struct {
	BoundaryScore float64
	TiedIDs       []int
	OpenSlots     int
}

type Qualification struct {
	// Secured holds contestants qualified outright.
	Secured []int
	// Tie is nil when the boundary is clean.
	Tie *CutoffTie
}

// Qualify takes the top capacity contestants. When the scores at rank capacity and
// capacity+1 are equal, every contestant holding that score joins the tie group and
// OpenSlots is what remains after the strictly better contestants are seated.
func Qualify(entries []ScoredContestant, capacity int) Qualification {
	ranked := RankByScore(entries)
	if capacity <= 0 {
		return Qualification{Secured: []int{}}
	}
	if capacity >= len(ranked) {
		ids := make([]int, len(ranked))
		for i, e := range ranked {
			ids[i] = e.ContestantID
		}
		return Qualification{Secured: ids}
	}

	boundary := ranked[capacity-1].Score
	if !SameScore(boundary, ranked[capacity].Score) {
		ids := make([]int, capacity)
		for i := 0; i < capacity; i++ {
			ids[i] = ranked[i].ContestantID
		}
		return Qualification{Secured: ids}
	}

	secured := make([]int, 0, capacity)
	tied := make([]int, 0)
	for _, e := range ranked {
		switch {
		case scoreKey(e.Score) > scoreKey(boundary):
			secured = append(secured, e.ContestantID)
		case SameScore(e.Score, boundary):
			tied = append(tied, e.ContestantID)
		}
	}
	return Qualification{
		Secured: secured,
		Tie: &CutoffTie{
			BoundaryScore: RoundScore(boundary),
			TiedIDs:       tied,
			OpenSlots:     capacity - len(secured),
		},
	}
}

type MemberPoints struct {
	ContestantID int
	Points       int
}

// PoolLeaders returns every member holding the maximum points, in input order.
// A single leader is the pool winner; more than one is a tie.
func PoolLeaders(members []MemberPoints) []int {
	if len(members) == 0 {
		return nil
	}
	best := members[0].Points
	for _, m := range members[1:] {
		if m.Points > best {
			best = m.Points
		}
	}
	leaders := make([]int, 0, 1)
	for _, m := range members {
		if m.Points == best {
			leaders = append(leaders, m.ContestantID)
		}
	}
	return leaders
}
