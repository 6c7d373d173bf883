package models

import "time"

// Category is a competition track inside a tournament.
type Category struct {
	ID             int       `json:"id" db:"id"`
	TournamentID   int       `json:"tournament_id" db:"tournament_id"`
	Name           string    `json:"name" db:"name"`
	PoolCount      int       `json:"pool_count" db:"pool_count"`
	TargetPoolSize int       `json:"target_pool_size" db:"target_pool_size"`
	IsTeam         bool      `json:"is_team" db:"is_team"`
	ChampionID     *int      `json:"champion_id,omitempty" db:"champion_id"`
	CreatedAt      time.Time `json:"created_at" db:"created_at"`

	Contestants []Contestant `json:"contestants,omitempty" db:"-"`
}
