package models

import (
	"errors"
	"fmt"
)

var ErrInvalidRound = errors.New("invalid round")

// Segment names the part of a double-elimination bracket a round belongs to.
type Segment string

const (
	SegmentWinners    Segment = "winners"
	SegmentLosersA    Segment = "losers_a"
	SegmentLosersB    Segment = "losers_b"
	SegmentGrandFinal Segment = "grand_final"
)

// Round identifies a round by segment and position inside that segment.
// Grand final rounds are numbered by game: 1 is the final, 2 the reset game.
type Round struct {
	Segment Segment `json:"segment"`
	Number  int     `json:"number"`
}

func WinnersRound(n int) Round  { return Round{Segment: SegmentWinners, Number: n} }
func LosersBranchA(n int) Round { return Round{Segment: SegmentLosersA, Number: n} }
func LosersBranchB(n int) Round { return Round{Segment: SegmentLosersB, Number: n} }
func GrandFinal(game int) Round { return Round{Segment: SegmentGrandFinal, Number: game} }

// Code returns the legacy numeric round used by the storage schema and the
// web client: winners n, branch A 100+n, branch B 200+n, grand final 300+game.
func (r Round) Code() int {
	switch r.Segment {
	case SegmentLosersA:
		return 100 + r.Number
	case SegmentLosersB:
		return 200 + r.Number
	case SegmentGrandFinal:
		return 300 + r.Number
	default:
		return r.Number
	}
}

func RoundFromCode(code int) (Round, error) {
	switch {
	case code >= 1 && code < 100:
		return WinnersRound(code), nil
	case code > 100 && code < 200:
		return LosersBranchA(code - 100), nil
	case code > 200 && code < 300:
		return LosersBranchB(code - 200), nil
	case code == 301 || code == 302:
		return GrandFinal(code - 300), nil
	}
	return Round{}, fmt.Errorf("%w: code %d", ErrInvalidRound, code)
}

// Label is the short prefix used in match ids, e.g. "WR2" or "LB1".
func (r Round) Label() string {
	switch r.Segment {
	case SegmentWinners:
		return fmt.Sprintf("WR%d", r.Number)
	case SegmentLosersA:
		return fmt.Sprintf("LA%d", r.Number)
	case SegmentLosersB:
		return fmt.Sprintf("LB%d", r.Number)
	case SegmentGrandFinal:
		return fmt.Sprintf("GF%d", r.Number)
	}
	return "R?"
}

func (r Round) String() string { return r.Label() }

func (r Round) IsWinners() bool    { return r.Segment == SegmentWinners }
func (r Round) IsLosers() bool     { return r.Segment == SegmentLosersA || r.Segment == SegmentLosersB }
func (r Round) IsGrandFinal() bool { return r.Segment == SegmentGrandFinal }

// MatchID builds the stable key of match number within round r.
func MatchID(r Round, number int) string {
	return fmt.Sprintf("%s-M%d", r.Label(), number)
}
