package services

import (
	"context"
	"errors"
	"fmt"

	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/ranking"
)

// MatchHandicap compares the handicap stored with a match against the one the
// current configuration produces for the same players.
type MatchHandicap struct {
	MatchID string           `json:"match_id"`
	Stored  *handicap.Result `json:"stored,omitempty"`
	Live    handicap.Result  `json:"live"`
	Drift   bool             `json:"drift"`
}

// MatchHandicap returns the stored and live handicap of a match. When they
// differ the result is returned together with handicap.ErrHandicapDrift.
func (s *tournamentService) MatchHandicap(ctx context.Context, tournamentID int, matchID string) (*MatchHandicap, error) {
	st, err := s.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	m, ok := st.bracket.Match(matchID)
	if !ok {
		return nil, fmt.Errorf("%w: %s", brackets.ErrMatchNotFound, matchID)
	}
	a, b := m.Occupants()
	if a == nil || b == nil {
		return nil, fmt.Errorf("%w: %s has no opponents yet", brackets.ErrNotReady, matchID)
	}
	challenger, ok := st.participants[*a]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrParticipantNotFound, *a)
	}
	opponent, ok := st.participants[*b]
	if !ok {
		return nil, fmt.Errorf("%w: %d", ErrParticipantNotFound, *b)
	}

	out := &MatchHandicap{MatchID: matchID}
	if m.Handicap == nil {
		live, err := s.calculator.Calculate(challenger.Rank, opponent.Rank, s.raceTo(st))
		if err != nil {
			return nil, fmt.Errorf("handicap for %s: %w", matchID, err)
		}
		out.Live = live
		return out, nil
	}

	stored := *m.Handicap
	out.Stored = &stored
	live, err := s.calculator.Verify(stored, challenger.Rank, opponent.Rank)
	out.Live = live
	if errors.Is(err, handicap.ErrHandicapDrift) {
		out.Drift = true
		return out, fmt.Errorf("match %s: %w", matchID, err)
	}
	if err != nil {
		return nil, fmt.Errorf("handicap for %s: %w", matchID, err)
	}
	return out, nil
}

func (s *tournamentService) CalculateHandicap(challenger, opponent *ranking.Rank, stake int) (handicap.Result, error) {
	return s.calculator.Calculate(challenger, opponent, stake)
}

func (s *tournamentService) CalculateForBet(challenger, opponent *ranking.Rank, betPoints int) (handicap.Result, error) {
	return s.calculator.CalculateForBet(challenger, opponent, betPoints)
}

func (s *tournamentService) HandicapTiers() []handicap.Tier {
	return s.calculator.Tiers()
}
