package brackets

import (
	"context"
	"fmt"
	"math/rand/v2"
)

type PreselectionGenerator struct{}

func NewPreselectionGenerator() Generator {
	return &PreselectionGenerator{}
}

func (g *PreselectionGenerator) GetName() string {
	return "Preselection"
}

// Generate shuffles the roster uniformly and pairs it 1:1.
// With an odd roster the last group becomes a three-way battle.
func (g *PreselectionGenerator) Generate(ctx context.Context, params GenerateParams) ([]*Pairing, error) {
	n := len(params.ContestantIDs)
	if n < 2 {
		return nil, fmt.Errorf("PreselectionGenerator: not enough contestants in category %d (found %d, min 2 required)", params.CategoryID, n)
	}

	shuffled := make([]int, n)
	copy(shuffled, params.ContestantIDs)
	shuffle := rand.Shuffle
	if params.Rand != nil {
		shuffle = params.Rand.Shuffle
	}
	shuffle(n, func(i, j int) { shuffled[i], shuffled[j] = shuffled[j], shuffled[i] })

	groups := n / 2
	pairings := make([]*Pairing, 0, groups)
	for i := 0; i < groups; i++ {
		members := []int{shuffled[2*i], shuffled[2*i+1]}
		if i == groups-1 && n%2 == 1 {
			members = append(members, shuffled[n-1])
		}
		pairings = append(pairings, &Pairing{
			UID:            fmt.Sprintf("C%d_PRE%d", params.CategoryID, i+1),
			Order:          i + 1,
			ParticipantIDs: members,
		})
	}
	return pairings, nil
}
