package brackets

import (
	"errors"
	"fmt"
	"slices"

	"github.com/Dosada05/battle-tournament/models"
)

var (
	ErrAmbiguousVote       = errors.New("voting round produced no strict majority")
	ErrInvalidBallot       = errors.New("invalid tiebreak ballot")
	ErrEliminationFinished = errors.New("tiebreak already resolved")
)

type Ballot struct {
	Voter    string `json:"voter"`
	TargetID int    `json:"target_id"`
}

// EliminationState is the mutable part of a tiebreak, threaded through ResolveRound.
type EliminationState struct {
	Remaining     []int
	WinnersNeeded int
	Round         int
	Eliminated    []int
	Log           []models.TiebreakVote
}

func NewEliminationState(participants []int, winnersNeeded int) (EliminationState, error) {
	if winnersNeeded < 1 || winnersNeeded >= len(participants) {
		return EliminationState{}, fmt.Errorf("%w: %d participants cannot produce %d winners", ErrConfiguration, len(participants), winnersNeeded)
	}
	return EliminationState{
		Remaining:     slices.Clone(participants),
		WinnersNeeded: winnersNeeded,
		Round:         1,
		Eliminated:    []int{},
		Log:           []models.TiebreakVote{},
	}, nil
}

// StateFromOutcome rebuilds the state stored on a tiebreak contest.
func StateFromOutcome(o *models.TiebreakOutcome) EliminationState {
	round := o.Round
	if round < 1 {
		round = 1
	}
	return EliminationState{
		Remaining:     slices.Clone(o.Remaining),
		WinnersNeeded: o.P,
		Round:         round,
		Eliminated:    slices.Clone(o.Eliminated),
		Log:           slices.Clone(o.Votes),
	}
}

// Apply writes the state back into the outcome payload.
func (s EliminationState) Apply(o *models.TiebreakOutcome) {
	o.Remaining = slices.Clone(s.Remaining)
	o.Eliminated = slices.Clone(s.Eliminated)
	o.Round = s.Round
	o.Votes = slices.Clone(s.Log)
	if s.Done() {
		o.Winners = slices.Clone(s.Remaining)
	}
}

func (s EliminationState) Done() bool {
	return len(s.Remaining) == s.WinnersNeeded
}

// Mode is keep-voting for a final pair that must yield one survivor, eliminate-voting otherwise.
func (s EliminationState) Mode() models.VoteKind {
	if len(s.Remaining) == 2 && s.WinnersNeeded < 2 {
		return models.VoteKindKeep
	}
	return models.VoteKindEliminate
}

type RoundResult struct {
	Round   int
	Kind    models.VoteKind
	Counts  map[int]int
	Removed []int
	Done    bool
}

// ResolveRound tallies one round of ballots. A strict majority (more than half of
// the cast ballots) is required. On ErrAmbiguousVote the returned state still
// carries the ballots and the next round number, with the remaining set untouched.
func ResolveRound(s EliminationState, ballots []Ballot) (EliminationState, RoundResult, error) {
	if s.Done() {
		return s, RoundResult{}, ErrEliminationFinished
	}
	if err := validateBallots(s, ballots); err != nil {
		return s, RoundResult{}, err
	}

	kind := s.Mode()
	next := EliminationState{
		Remaining:     slices.Clone(s.Remaining),
		WinnersNeeded: s.WinnersNeeded,
		Round:         s.Round + 1,
		Eliminated:    slices.Clone(s.Eliminated),
		Log:           slices.Clone(s.Log),
	}
	counts := make(map[int]int, len(s.Remaining))
	for _, b := range ballots {
		counts[b.TargetID]++
		next.Log = append(next.Log, models.TiebreakVote{
			Voter:    b.Voter,
			Round:    s.Round,
			Kind:     kind,
			TargetID: b.TargetID,
		})
	}
	result := RoundResult{Round: s.Round, Kind: kind, Counts: counts}

	majority, ok := strictMajority(counts, len(ballots))
	if !ok {
		return next, result, fmt.Errorf("%w: round %d, %d ballots", ErrAmbiguousVote, s.Round, len(ballots))
	}

	switch kind {
	case models.VoteKindKeep:
		for _, id := range next.Remaining {
			if id != majority {
				result.Removed = append(result.Removed, id)
			}
		}
		next.Remaining = []int{majority}
	default:
		next.Remaining = slices.DeleteFunc(next.Remaining, func(id int) bool { return id == majority })
		result.Removed = []int{majority}
	}
	next.Eliminated = append(next.Eliminated, result.Removed...)
	result.Done = next.Done()
	return next, result, nil
}

func validateBallots(s EliminationState, ballots []Ballot) error {
	if len(ballots) == 0 {
		return fmt.Errorf("%w: round %d has no ballots", ErrInvalidBallot, s.Round)
	}
	voters := make(map[string]struct{}, len(ballots))
	for _, b := range ballots {
		if b.Voter == "" {
			return fmt.Errorf("%w: ballot without voter", ErrInvalidBallot)
		}
		if _, dup := voters[b.Voter]; dup {
			return fmt.Errorf("%w: voter %q voted twice in round %d", ErrInvalidBallot, b.Voter, s.Round)
		}
		voters[b.Voter] = struct{}{}
		if !slices.Contains(s.Remaining, b.TargetID) {
			return fmt.Errorf("%w: contestant %d is not in the running", ErrInvalidBallot, b.TargetID)
		}
	}
	return nil
}

func strictMajority(counts map[int]int, total int) (int, bool) {
	for id, c := range counts {
		if c*2 > total {
			return id, true
		}
	}
	return 0, false
}
