package brackets

import (
	"sort"
	"strconv"

	"github.com/saboarena/tournament-engine/models"
)

// Standings lists every seeded participant. The champion is placed first and
// eliminated players are placed by how late they went out; players knocked out
// at the same stage share the best place of their group. Players still alive
// have no place until the tournament is decided.
func (e *Engine) Standings() []models.TournamentStanding {
	return Standings(e.bracket)
}

func Standings(b *models.Bracket) []models.TournamentStanding {
	wins := make(map[int]int)
	losses := make(map[int]int)
	for _, m := range b.Matches {
		if m.Status != models.MatchStatusCompleted || m.IsBye || m.WinnerID == nil || m.LoserID == nil {
			continue
		}
		wins[*m.WinnerID]++
		losses[*m.LoserID]++
	}

	// stage for everyone; alive players count as above every elimination
	top := 2*b.WinnersRounds + 1
	stage := make(map[int]int, len(b.Seeds))
	for _, id := range b.Seeds {
		if el, out := b.Eliminations[id]; out {
			stage[id] = el.Stage
		} else {
			stage[id] = top
		}
	}

	out := make([]models.TournamentStanding, 0, len(b.Seeds))
	for i, id := range b.Seeds {
		st := models.TournamentStanding{
			ParticipantID: id,
			Seed:          i + 1,
			Wins:          wins[id],
			Losses:        losses[id],
		}
		el, eliminated := b.Eliminations[id]
		switch {
		case b.Champion != nil && *b.Champion == id:
			place := 1
			st.Place = &place
		case eliminated:
			r := el.Round
			st.EliminatedIn = &r
			st.EliminatedBy = el.MatchID
			place := 1
			for _, other := range b.Seeds {
				if other != id && stage[other] > el.Stage {
					place++
				}
			}
			st.Place = &place
		default:
			st.Alive = b.Status != models.StatusCancelled
		}
		out = append(out, st)
	}

	sort.SliceStable(out, func(i, j int) bool {
		pi, pj := out[i].Place, out[j].Place
		switch {
		case pi != nil && pj != nil && *pi != *pj:
			return *pi < *pj
		case pi != nil && pj == nil:
			return true
		case pi == nil && pj != nil:
			return false
		}
		return out[i].Seed < out[j].Seed
	})
	return out
}

func (e *Engine) Progress() models.Progress {
	return Progress(e.bracket)
}

// Progress counts played matches per segment. Byes and a skipped reset game
// are left out of the totals.
func Progress(b *models.Bracket) models.Progress {
	p := models.Progress{Segments: make(map[models.Segment]models.SegmentProgress)}
	var current *models.Round
	for _, m := range b.Matches {
		if m.IsBye || m.Status == models.MatchStatusSkipped {
			continue
		}
		// the reset game only counts once it has been activated
		if m.Round == models.GrandFinal(2) && m.Status == models.MatchStatusPending {
			continue
		}
		seg := p.Segments[m.Round.Segment]
		seg.Total++
		p.Total++
		if m.Status == models.MatchStatusCompleted {
			seg.Completed++
			p.Completed++
		} else if current == nil {
			r := m.Round
			current = &r
		}
		p.Segments[m.Round.Segment] = seg
	}
	if p.Total > 0 {
		p.Percent = p.Completed * 100 / p.Total
	}

	switch {
	case b.Status == models.StatusSeeding:
		p.Stage = "not started"
	case b.Status == models.StatusCancelled:
		p.Stage = "cancelled"
	case b.Status == models.StatusCompleted:
		p.Stage = "completed"
	case current != nil:
		p.Stage = stageLabel(*current)
	}
	return p
}

func stageLabel(r models.Round) string {
	switch r.Segment {
	case models.SegmentWinners:
		return "winners round " + strconv.Itoa(r.Number)
	case models.SegmentLosersA:
		return "losers round " + strconv.Itoa(r.Number) + "A"
	case models.SegmentLosersB:
		return "losers round " + strconv.Itoa(r.Number) + "B"
	case models.SegmentGrandFinal:
		if r.Number == 2 {
			return "grand final reset"
		}
		return "grand final"
	}
	return ""
}
