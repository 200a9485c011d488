package models

// TournamentStanding is one participant's line in the standings table.
type TournamentStanding struct {
	ParticipantID int    `json:"participant_id"`
	Seed          int    `json:"seed"`
	Alive         bool   `json:"alive"`
	EliminatedIn  *Round `json:"eliminated_in,omitempty"`
	EliminatedBy  string `json:"eliminated_match,omitempty"`
	Place         *int   `json:"place,omitempty"` // nil while still alive and undecided
	Wins          int    `json:"wins"`
	Losses        int    `json:"losses"`

	Participant *Participant `json:"participant,omitempty"`
}

type SegmentProgress struct {
	Completed int `json:"completed"`
	Total     int `json:"total"`
}

// Progress summarizes how far a bracket has advanced. Bye matches are not
// counted.
type Progress struct {
	Segments  map[Segment]SegmentProgress `json:"segments"`
	Completed int                         `json:"completed"`
	Total     int                         `json:"total"`
	Stage     string                      `json:"stage"`
	Percent   int                         `json:"percent"`
}

// RatingChange is the ELO movement a participant earned from the decided
// matches of one tournament. Stored profiles are not updated.
type RatingChange struct {
	ParticipantID int `json:"participant_id"`
	Before        int `json:"rating_before"`
	After         int `json:"rating_after"`
	Delta         int `json:"delta"`
	Matches       int `json:"matches"`
}
