package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

type ContestPhase string

const (
	ContestPhasePreselection ContestPhase = "PRESELECTION"
	ContestPhasePool         ContestPhase = "POOL"
	ContestPhaseTiebreak     ContestPhase = "TIEBREAK"
	ContestPhaseFinal        ContestPhase = "FINAL"
)

type ContestStatus string

const (
	ContestStatusPending   ContestStatus = "PENDING"
	ContestStatusActive    ContestStatus = "ACTIVE"
	ContestStatusCompleted ContestStatus = "COMPLETED"
)

// Contest is one scored encounter ("battle") between two or more contestants.
type Contest struct {
	ID               int           `json:"id" db:"id"`
	TournamentID     int           `json:"tournament_id" db:"tournament_id"`
	CategoryID       int           `json:"category_id" db:"category_id"`
	PoolID           *int          `json:"pool_id,omitempty" db:"pool_id"`
	Phase            ContestPhase  `json:"phase" db:"phase"`
	Status           ContestStatus `json:"status" db:"status"`
	ParticipantIDs   []int         `json:"participant_ids" db:"participant_ids"`
	Outcome          Outcome       `json:"outcome" db:"outcome"`
	SequencePosition int           `json:"sequence_position" db:"sequence_position"`
	CreatedAt        time.Time     `json:"created_at" db:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at" db:"updated_at"`
}

func (c *Contest) HasParticipant(contestantID int) bool {
	for _, id := range c.ParticipantIDs {
		if id == contestantID {
			return true
		}
	}
	return false
}

// Outcome is the phase-specific result payload of a contest.
// Implemented by *PreselectionOutcome, *PoolOutcome, *TiebreakOutcome and *FinalOutcome.
type Outcome interface {
	Phase() ContestPhase
}

var ErrOutcomePhaseMismatch = errors.New("outcome payload does not match contest phase")

// PreselectionOutcome collects averaged judge inputs per contestant.
// Scores is filled once the contest completes.
type PreselectionOutcome struct {
	Inputs map[int][]float64 `json:"inputs"`
	Scores map[int]float64   `json:"scores,omitempty"`
}

func (*PreselectionOutcome) Phase() ContestPhase { return ContestPhasePreselection }

// PoolOutcome: WinnerID and Draw are mutually exclusive.
type PoolOutcome struct {
	WinnerID *int `json:"winner_id,omitempty"`
	Draw     bool `json:"draw"`
}

func (*PoolOutcome) Phase() ContestPhase { return ContestPhasePool }

// FinalOutcome has no draw flag: finals always produce a champion.
type FinalOutcome struct {
	WinnerID *int `json:"winner_id,omitempty"`
}

func (*FinalOutcome) Phase() ContestPhase { return ContestPhaseFinal }

type TiebreakReason string

const (
	TiebreakReasonCutoff TiebreakReason = "CUTOFF"
	TiebreakReasonPool   TiebreakReason = "POOL"
)

type VoteKind string

const (
	VoteKindKeep      VoteKind = "KEEP"
	VoteKindEliminate VoteKind = "ELIMINATE"
)

// TiebreakVote is one ballot of the audit trail. Ballots are only ever appended.
type TiebreakVote struct {
	Voter    string   `json:"voter"`
	Round    int      `json:"round"`
	Kind     VoteKind `json:"kind"`
	TargetID int      `json:"target_id"`
}

// Key identifies a ballot by voter and round.
func (v TiebreakVote) Key() string {
	return fmt.Sprintf("%s#%d", v.Voter, v.Round)
}

type TiebreakOutcome struct {
	Reason        TiebreakReason `json:"reason"`
	BoundaryScore *float64       `json:"boundary_score,omitempty"` // cutoff ties only
	N             int            `json:"participant_count"`
	P             int            `json:"winners_needed"`
	Round         int            `json:"round"` // next round to be voted, 1-based
	Remaining     []int          `json:"remaining"`
	Eliminated    []int          `json:"eliminated"`
	Votes         []TiebreakVote `json:"votes"`
	Winners       []int          `json:"winners,omitempty"`
}

func (*TiebreakOutcome) Phase() ContestPhase { return ContestPhaseTiebreak }

// Resolved reports whether the winner set is final.
func (o *TiebreakOutcome) Resolved() bool {
	return len(o.Winners) > 0 && len(o.Winners) == o.P
}

// RoundsRecorded returns the number of distinct rounds present in the vote log.
func (o *TiebreakOutcome) RoundsRecorded() int {
	seen := make(map[int]struct{})
	for _, v := range o.Votes {
		seen[v.Round] = struct{}{}
	}
	return len(seen)
}

// NewOutcome returns an empty payload for the given phase.
func NewOutcome(phase ContestPhase) (Outcome, error) {
	switch phase {
	case ContestPhasePreselection:
		return &PreselectionOutcome{Inputs: map[int][]float64{}}, nil
	case ContestPhasePool:
		return &PoolOutcome{}, nil
	case ContestPhaseTiebreak:
		return &TiebreakOutcome{Round: 1}, nil
	case ContestPhaseFinal:
		return &FinalOutcome{}, nil
	default:
		return nil, fmt.Errorf("unknown contest phase %q", phase)
	}
}

// DecodeOutcome parses a stored payload for the given phase.
func DecodeOutcome(phase ContestPhase, raw []byte) (Outcome, error) {
	out, err := NewOutcome(phase)
	if err != nil {
		return nil, err
	}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return nil, fmt.Errorf("failed to decode %s outcome: %w", phase, err)
	}
	if pre, ok := out.(*PreselectionOutcome); ok && pre.Inputs == nil {
		pre.Inputs = map[int][]float64{}
	}
	return out, nil
}

func (c *Contest) PreselectionOutcome() (*PreselectionOutcome, error) {
	o, ok := c.Outcome.(*PreselectionOutcome)
	if !ok || o == nil {
		return nil, fmt.Errorf("%w: contest %d (%s) has no preselection outcome", ErrOutcomePhaseMismatch, c.ID, c.Phase)
	}
	return o, nil
}

func (c *Contest) PoolOutcome() (*PoolOutcome, error) {
	o, ok := c.Outcome.(*PoolOutcome)
	if !ok || o == nil {
		return nil, fmt.Errorf("%w: contest %d (%s) has no pool outcome", ErrOutcomePhaseMismatch, c.ID, c.Phase)
	}
	return o, nil
}

func (c *Contest) TiebreakOutcome() (*TiebreakOutcome, error) {
	o, ok := c.Outcome.(*TiebreakOutcome)
	if !ok || o == nil {
		return nil, fmt.Errorf("%w: contest %d (%s) has no tiebreak outcome", ErrOutcomePhaseMismatch, c.ID, c.Phase)
	}
	return o, nil
}

func (c *Contest) FinalOutcome() (*FinalOutcome, error) {
	o, ok := c.Outcome.(*FinalOutcome)
	if !ok || o == nil {
		return nil, fmt.Errorf("%w: contest %d (%s) has no final outcome", ErrOutcomePhaseMismatch, c.ID, c.Phase)
	}
	return o, nil
}

// Clone returns a deep copy; outcomes are copied through their JSON form.
func (c *Contest) Clone() *Contest {
	cp := *c
	cp.ParticipantIDs = append([]int(nil), c.ParticipantIDs...)
	if c.PoolID != nil {
		id := *c.PoolID
		cp.PoolID = &id
	}
	if c.Outcome != nil {
		raw, err := json.Marshal(c.Outcome)
		if err == nil {
			if out, decErr := DecodeOutcome(c.Phase, raw); decErr == nil {
				cp.Outcome = out
			}
		}
	}
	return &cp
}
