package brackets

import (
	"context"
	"fmt"
	"sort"
)

type RoundRobinGenerator struct{}

func NewRoundRobinGenerator() Generator {
	return &RoundRobinGenerator{}
}

func (g *RoundRobinGenerator) GetName() string {
	return "RoundRobin"
}

// Generate creates the single round robin of a pool: every unordered pair of
// members meets exactly once, n(n-1)/2 battles in total.
func (g *RoundRobinGenerator) Generate(ctx context.Context, params GenerateParams) ([]*Pairing, error) {
	members := params.ContestantIDs
	if len(members) < 2 {
		return nil, fmt.Errorf("RoundRobinGenerator: not enough contestants (found %d, min 2 required)", len(members))
	}

	pairings := make([]*Pairing, 0, len(members)*(len(members)-1)/2)
	order := 0
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			order++
			pairings = append(pairings, &Pairing{
				UID:            fmt.Sprintf("C%d_RR%d_P%dvsP%d", params.CategoryID, order, members[i], members[j]),
				Order:          order,
				ParticipantIDs: []int{members[i], members[j]},
			})
		}
	}

	sort.Slice(pairings, func(i, j int) bool {
		return pairings[i].Order < pairings[j].Order
	})
	return pairings, nil
}
