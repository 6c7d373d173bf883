package models

import "time"

// Pool is a round-robin group of contestants within a category.
type Pool struct {
	ID         int       `json:"id" db:"id"`
	CategoryID int       `json:"category_id" db:"category_id"`
	Number     int       `json:"number" db:"number"` // 1-based, stable order used for finals pairing
	MemberIDs  []int     `json:"member_ids" db:"member_ids"`
	WinnerID   *int      `json:"winner_id,omitempty" db:"winner_id"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

func (p *Pool) HasMember(contestantID int) bool {
	for _, id := range p.MemberIDs {
		if id == contestantID {
			return true
		}
	}
	return false
}
