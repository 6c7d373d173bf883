package models

import "time"

// TournamentPhase представляет фазу турнира. Фаза общая для всех категорий.
type TournamentPhase string

const (
	PhaseRegistration TournamentPhase = "REGISTRATION"
	PhasePreselection TournamentPhase = "PRESELECTION"
	PhasePools        TournamentPhase = "POOLS"
	PhaseFinals       TournamentPhase = "FINALS"
	PhaseCompleted    TournamentPhase = "COMPLETED"
)

var phaseOrder = []TournamentPhase{
	PhaseRegistration,
	PhasePreselection,
	PhasePools,
	PhaseFinals,
	PhaseCompleted,
}

// Next returns the phase that follows p. ok is false for COMPLETED and unknown phases.
func (p TournamentPhase) Next() (next TournamentPhase, ok bool) {
	for i, phase := range phaseOrder {
		if phase == p && i+1 < len(phaseOrder) {
			return phaseOrder[i+1], true
		}
	}
	return "", false
}

func (p TournamentPhase) IsValid() bool {
	for _, phase := range phaseOrder {
		if phase == p {
			return true
		}
	}
	return false
}

// Tournament представляет турнир.
type Tournament struct {
	ID        int             `json:"id" db:"id"`
	Name      string          `json:"name" db:"name"`
	Phase     TournamentPhase `json:"phase" db:"phase"`
	CreatedAt time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt time.Time       `json:"updated_at" db:"updated_at"`

	Categories []Category `json:"categories,omitempty" db:"-"`
}

// Locked reports whether the tournament rejects further writes.
func (t *Tournament) Locked() bool {
	return t.Phase == PhaseCompleted
}
