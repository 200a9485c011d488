package models

import "time"

// TournamentStatus is shared by the tournament row and its bracket.
type TournamentStatus string

const (
	StatusRegistration TournamentStatus = "registration"
	StatusSeeding      TournamentStatus = "seeding"
	StatusInProgress   TournamentStatus = "in_progress"
	StatusCompleted    TournamentStatus = "completed"
	StatusCancelled    TournamentStatus = "cancelled"
)

// Finished reports whether no further results can be recorded.
func (s TournamentStatus) Finished() bool {
	return s == StatusCompleted || s == StatusCancelled
}

type Tournament struct {
	ID              int              `json:"id" db:"id"`
	Name            string           `json:"name" db:"name"`
	OrganizerID     int              `json:"organizer_id" db:"organizer_id"`
	Status          TournamentStatus `json:"status" db:"status"`
	RaceTo          int              `json:"race_to" db:"race_to"`
	MaxParticipants int              `json:"max_participants" db:"max_participants"`
	StartDate       *time.Time       `json:"start_date,omitempty" db:"start_date"`
	CreatedAt       time.Time        `json:"created_at" db:"created_at"`
	ArchivedAt      *time.Time       `json:"archived_at,omitempty" db:"archived_at"`
	ArchiveKey      *string          `json:"-" db:"archive_key"`
	ArchiveURL      *string          `json:"archive_url,omitempty" db:"-"`
}
