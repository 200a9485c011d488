package services

import (
	"context"
	"sort"

	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/ranking"
)

func (s *tournamentService) RatingChanges(ctx context.Context, tournamentID int) ([]models.RatingChange, error) {
	st, err := s.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return st.ratingChanges(), nil
}

// ratingChanges replays the decided matches in completion order, each one
// rated from the ratings left by the previous. Byes and reset matches do not
// count.
func (st *tournamentState) ratingChanges() []models.RatingChange {
	var decided []*models.Match
	for _, m := range st.bracket.Matches {
		if m.IsBye || m.Status != models.MatchStatusCompleted || m.WinnerID == nil || m.LoserID == nil {
			continue
		}
		decided = append(decided, m)
	}
	sort.SliceStable(decided, func(i, j int) bool {
		a, b := decided[i].CompletedAt, decided[j].CompletedAt
		if a == nil || b == nil {
			return a != nil
		}
		return a.Before(*b)
	})

	changes := make(map[int]*models.RatingChange, len(st.bracket.Seeds))
	entry := func(id int) *models.RatingChange {
		c, ok := changes[id]
		if !ok {
			p := st.participants[id]
			start := ranking.RatingFor(p.EloScore, p.Rank)
			c = &models.RatingChange{ParticipantID: id, Before: start, After: start}
			changes[id] = c
		}
		return c
	}
	for _, id := range st.bracket.Seeds {
		entry(id)
	}
	for _, m := range decided {
		w, l := entry(*m.WinnerID), entry(*m.LoserID)
		dw, dl := ranking.MatchOutcome(w.After, l.After)
		w.After += dw
		l.After += dl
		w.Matches++
		l.Matches++
	}

	out := make([]models.RatingChange, 0, len(st.bracket.Seeds))
	for _, id := range st.bracket.Seeds {
		c := changes[id]
		c.Delta = c.After - c.Before
		out = append(out, *c)
	}
	return out
}
