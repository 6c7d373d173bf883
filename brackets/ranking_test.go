package brackets

import (
	"slices"
	"testing"
)

func TestQualifyCleanBoundary(t *testing.T) {
	entries := []ScoredContestant{
		{1, 9.1}, {2, 8.0}, {3, 7.2}, {4, 6.5}, {5, 5.0},
	}
	q := Qualify(entries, 4)
	if q.Tie != nil {
		t.Fatalf("expected no tie, got %+v", q.Tie)
	}
	if !slices.Equal(q.Secured, []int{1, 2, 3, 4}) {
		t.Errorf("unexpected qualifiers %v", q.Secured)
	}
}

func TestQualifyBoundaryTie(t *testing.T) {
	// capacity 8, ranks 8 and 9 share 7.50
	entries := []ScoredContestant{
		{1, 9.8}, {2, 9.1}, {3, 8.7}, {4, 8.5}, {5, 8.2}, {6, 8.0}, {7, 7.9},
		{8, 7.5}, {9, 7.5}, {10, 6.1},
	}
	q := Qualify(entries, 8)
	if q.Tie == nil {
		t.Fatal("expected a cutoff tie")
	}
	if len(q.Tie.TiedIDs) != 2 {
		t.Errorf("expected N=2, got %v", q.Tie.TiedIDs)
	}
	if q.Tie.OpenSlots != 1 {
		t.Errorf("expected P=1, got %d", q.Tie.OpenSlots)
	}
	if len(q.Secured) != 7 {
		t.Errorf("expected 7 secured, got %v", q.Secured)
	}
	if q.Tie.BoundaryScore != 7.5 {
		t.Errorf("unexpected boundary score %v", q.Tie.BoundaryScore)
	}
}

func TestQualifyGathersWholeScoreTier(t *testing.T) {
	// 7.50 is shared by ranks 6..9: all four join the tie for three open slots.
	entries := []ScoredContestant{
		{1, 9.8}, {2, 9.1}, {3, 8.7}, {4, 8.5}, {5, 8.2},
		{6, 7.5}, {7, 7.5}, {8, 7.5}, {9, 7.5}, {10, 6.1},
	}
	q := Qualify(entries, 8)
	if q.Tie == nil {
		t.Fatal("expected a cutoff tie")
	}
	if !slices.Equal(q.Tie.TiedIDs, []int{6, 7, 8, 9}) {
		t.Errorf("unexpected tie group %v", q.Tie.TiedIDs)
	}
	if q.Tie.OpenSlots != 3 {
		t.Errorf("expected 3 open slots, got %d", q.Tie.OpenSlots)
	}
}

func TestQualifyComparesAtHundredths(t *testing.T) {
	entries := []ScoredContestant{{1, 8.0}, {2, 7.1 + 0.4}, {3, 7.5}}
	q := Qualify(entries, 2)
	if q.Tie == nil || len(q.Tie.TiedIDs) != 2 {
		t.Fatalf("expected a two-way tie at 7.50, got %+v", q)
	}
}

func TestPoolLeaders(t *testing.T) {
	leaders := PoolLeaders([]MemberPoints{{1, 9}, {2, 9}, {3, 6}, {4, 3}})
	if !slices.Equal(leaders, []int{1, 2}) {
		t.Errorf("expected leaders [1 2], got %v", leaders)
	}

	leaders = PoolLeaders([]MemberPoints{{1, 4}, {2, 9}, {3, 6}})
	if !slices.Equal(leaders, []int{2}) {
		t.Errorf("expected single leader 2, got %v", leaders)
	}

	if PoolLeaders(nil) != nil {
		t.Error("expected nil leaders for empty pool")
	}
}

func TestRoundScore(t *testing.T) {
	if got := RoundScore(7.456); got != 7.46 {
		t.Errorf("RoundScore(7.456) = %v", got)
	}
	if got := RoundScore((7.5 + 8.25 + 9.0) / 3); got != 8.25 {
		t.Errorf("RoundScore(avg) = %v", got)
	}
}
