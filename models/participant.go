package models

import (
	"time"

	"github.com/saboarena/tournament-engine/ranking"
)

// Participant is a confirmed registrant as the bracket engine sees it.
type Participant struct {
	ID           int           `json:"id" db:"user_id"`
	Name         string        `json:"name" db:"display_name"`
	Rank         *ranking.Rank `json:"rank,omitempty" db:"-"`
	EloScore     *int          `json:"elo_score,omitempty" db:"elo"`
	RegisteredAt time.Time     `json:"registered_at" db:"registration_date"`
}
