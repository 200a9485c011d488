package models

import (
	"time"

	"github.com/saboarena/tournament-engine/handicap"
)

type MatchStatus string

const (
	MatchStatusPending    MatchStatus = "pending"
	MatchStatusReady      MatchStatus = "ready"
	MatchStatusInProgress MatchStatus = "in_progress"
	MatchStatusCompleted  MatchStatus = "completed"
	// MatchStatusSkipped is used for the bracket reset game when it is not needed.
	MatchStatusSkipped MatchStatus = "skipped"
)

// Done reports whether the match can no longer change without a reset.
func (s MatchStatus) Done() bool {
	return s == MatchStatusCompleted || s == MatchStatusSkipped
}

type Outcome string

const (
	OutcomeWinner Outcome = "winner"
	OutcomeLoser  Outcome = "loser"
)

type SlotPosition int

const (
	SlotA SlotPosition = 0
	SlotB SlotPosition = 1
)

func (p SlotPosition) String() string {
	if p == SlotB {
		return "B"
	}
	return "A"
}

func (p SlotPosition) Other() SlotPosition { return 1 - p }

// Feed names the match and outcome that fills a slot.
type Feed struct {
	MatchID string  `json:"match_id"`
	Outcome Outcome `json:"outcome"`
}

// Destination names the slot a winner or loser is written to.
type Destination struct {
	MatchID string       `json:"match_id"`
	Slot    SlotPosition `json:"slot"`
}

type SlotState string

const (
	SlotOpen   SlotState = "open"
	SlotFilled SlotState = "filled"
	// SlotEmpty is a bye hole: nobody will ever occupy the slot.
	SlotEmpty SlotState = "empty"
)

type Slot struct {
	// Feed is nil for first round slots, which are filled from Seed.
	Feed          *Feed     `json:"feed,omitempty"`
	Seed          int       `json:"seed,omitempty"`
	State         SlotState `json:"state"`
	ParticipantID *int      `json:"participant_id,omitempty"`
}

func (s Slot) Resolved() bool { return s.State != SlotOpen }

type Score struct {
	A int `json:"a"`
	B int `json:"b"`
}

type Match struct {
	ID       string       `json:"id" db:"match_uid"`
	Round    Round        `json:"round" db:"-"`
	Number   int          `json:"number" db:"match_number"`
	Slots    [2]Slot      `json:"slots" db:"-"`
	WinnerTo *Destination `json:"winner_to,omitempty" db:"-"`
	LoserTo  *Destination `json:"loser_to,omitempty" db:"-"`

	Status      MatchStatus      `json:"status" db:"status"`
	WinnerID    *int             `json:"winner_id,omitempty" db:"winner_id"`
	LoserID     *int             `json:"loser_id,omitempty" db:"loser_id"`
	Score       *Score           `json:"score,omitempty" db:"-"`
	IsBye       bool             `json:"is_bye" db:"is_bye"`
	Handicap    *handicap.Result `json:"handicap,omitempty" db:"handicap"`
	StartedAt   *time.Time       `json:"started_at,omitempty" db:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty" db:"completed_at"`
}

// Occupants returns the participant ids sitting in both slots, nil where the
// slot is not filled.
func (m *Match) Occupants() (a, b *int) {
	return m.Slots[SlotA].ParticipantID, m.Slots[SlotB].ParticipantID
}

// SlotOf returns the slot holding participant id.
func (m *Match) SlotOf(id int) (SlotPosition, bool) {
	for i, s := range m.Slots {
		if s.State == SlotFilled && s.ParticipantID != nil && *s.ParticipantID == id {
			return SlotPosition(i), true
		}
	}
	return SlotA, false
}

func (m *Match) Clone() *Match {
	c := *m
	for i := range c.Slots {
		if m.Slots[i].Feed != nil {
			f := *m.Slots[i].Feed
			c.Slots[i].Feed = &f
		}
		c.Slots[i].ParticipantID = cloneInt(m.Slots[i].ParticipantID)
	}
	if m.WinnerTo != nil {
		d := *m.WinnerTo
		c.WinnerTo = &d
	}
	if m.LoserTo != nil {
		d := *m.LoserTo
		c.LoserTo = &d
	}
	c.WinnerID = cloneInt(m.WinnerID)
	c.LoserID = cloneInt(m.LoserID)
	if m.Score != nil {
		s := *m.Score
		c.Score = &s
	}
	if m.Handicap != nil {
		h := *m.Handicap
		c.Handicap = &h
	}
	c.StartedAt = cloneTime(m.StartedAt)
	c.CompletedAt = cloneTime(m.CompletedAt)
	return &c
}

func cloneInt(p *int) *int {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func cloneTime(p *time.Time) *time.Time {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}
