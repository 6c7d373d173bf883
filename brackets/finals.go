package brackets

import (
	"context"
	"fmt"
)

// SupportedFinalPools is the only pool count the finals stage knows how to pair.
const SupportedFinalPools = 2

type FinalsGenerator struct{}

func NewFinalsGenerator() Generator {
	return &FinalsGenerator{}
}

func (g *FinalsGenerator) GetName() string {
	return "Finals"
}

// Generate pairs adjacent pool winners. ContestantIDs must hold the winners in pool order.
func (g *FinalsGenerator) Generate(ctx context.Context, params GenerateParams) ([]*Pairing, error) {
	if params.PoolCount != SupportedFinalPools {
		return nil, fmt.Errorf("%w: finals support exactly %d pools, category %d has %d",
			ErrConfiguration, SupportedFinalPools, params.CategoryID, params.PoolCount)
	}
	winners := params.ContestantIDs
	if len(winners) != params.PoolCount {
		return nil, fmt.Errorf("FinalsGenerator: expected %d pool winners in category %d, got %d",
			params.PoolCount, params.CategoryID, len(winners))
	}

	pairings := make([]*Pairing, 0, len(winners)/2)
	for i := 0; i+1 < len(winners); i += 2 {
		pairings = append(pairings, &Pairing{
			UID:            fmt.Sprintf("C%d_FINAL%d", params.CategoryID, i/2+1),
			Order:          i/2 + 1,
			ParticipantIDs: []int{winners[i], winners[i+1]},
		})
	}
	return pairings, nil
}
