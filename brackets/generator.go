package brackets

import (
	"context"
	"math/rand/v2"
)

// Pairing is one generated encounter before it is persisted as a contest.
type Pairing struct {
	UID            string
	Order          int
	ParticipantIDs []int
}

type GenerateParams struct {
	CategoryID    int
	ContestantIDs []int
	// PoolCount is only consulted by the finals generator.
	PoolCount int
	// Rand drives shuffling; nil means an unseeded source.
	Rand *rand.Rand
}

type Generator interface {
	Generate(ctx context.Context, params GenerateParams) ([]*Pairing, error)

	GetName() string
}
