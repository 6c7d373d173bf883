package models

import "time"

// Contestant is a dancer or a duo registered in exactly one category.
type Contestant struct {
	ID          int       `json:"id" db:"id"`
	CategoryID  int       `json:"category_id" db:"category_id"`
	DisplayName string    `json:"display_name" db:"display_name"`
	PartnerName *string   `json:"partner_name,omitempty" db:"partner_name"`
	CreatedAt   time.Time `json:"created_at" db:"created_at"`
}

const (
	PointsPerWin  = 3
	PointsPerDraw = 1
)

// ContestantStats holds the derived statistics of a contestant. Only the outcome recorder mutates it.
type ContestantStats struct {
	ContestantID      int       `json:"contestant_id" db:"contestant_id"`
	CategoryID        int       `json:"category_id" db:"category_id"`
	Wins              int       `json:"wins" db:"wins"`
	Draws             int       `json:"draws" db:"draws"`
	Losses            int       `json:"losses" db:"losses"`
	PreselectionScore *float64  `json:"preselection_score,omitempty" db:"preselection_score"` // nil until preselection completes
	UpdatedAt         time.Time `json:"updated_at" db:"updated_at"`
}

func (s ContestantStats) Points() int {
	return s.Wins*PointsPerWin + s.Draws*PointsPerDraw
}
