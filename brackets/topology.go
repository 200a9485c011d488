package brackets

import (
	"errors"
	"fmt"

	"github.com/saboarena/tournament-engine/models"
)

var (
	ErrUnsupportedParticipantCount = errors.New("unsupported participant count")
	ErrWiringInconsistency         = errors.New("bracket wiring is inconsistent")
)

const DefaultMaxParticipants = 256

type Options struct {
	MaxParticipants int
}

// Topology is the static double-elimination structure for a participant count.
// Matches are in build order: winners rounds, then losers rounds alternating
// branch A and branch B, then the two grand final games.
type Topology struct {
	ParticipantCount int
	Size             int
	WinnersRounds    int
	Matches          []*models.Match
}

// Build creates the wiring for participantCount players. Counts that are not a
// power of two are padded with byes up to the next one. The result depends only
// on the arguments.
func Build(participantCount int, opts Options) (*Topology, error) {
	limit := opts.MaxParticipants
	if limit <= 0 {
		limit = DefaultMaxParticipants
	}
	if participantCount < 2 || participantCount > limit {
		return nil, fmt.Errorf("%w: %d (allowed 2..%d)", ErrUnsupportedParticipantCount, participantCount, limit)
	}

	size, rounds := 2, 1
	for size < participantCount {
		size <<= 1
		rounds++
	}

	t := &Topology{ParticipantCount: participantCount, Size: size, WinnersRounds: rounds}
	order := SeedOrder(size)

	for r := 1; r <= rounds; r++ {
		round := models.WinnersRound(r)
		for j := 1; j <= size>>r; j++ {
			m := newMatch(round, j)
			if r == 1 {
				m.Slots[models.SlotA].Seed = order[2*j-2]
				m.Slots[models.SlotB].Seed = order[2*j-1]
			} else {
				prev := models.WinnersRound(r - 1)
				m.Slots[models.SlotA].Feed = feed(prev, 2*j-1, models.OutcomeWinner)
				m.Slots[models.SlotB].Feed = feed(prev, 2*j, models.OutcomeWinner)
			}
			t.Matches = append(t.Matches, m)
		}
	}

	for n := 1; n < rounds; n++ {
		count := size >> (n + 1)

		branchA := models.LosersBranchA(n)
		for j := 1; j <= count; j++ {
			m := newMatch(branchA, j)
			if n == 1 {
				m.Slots[models.SlotA].Feed = feed(models.WinnersRound(1), 2*j-1, models.OutcomeLoser)
				m.Slots[models.SlotB].Feed = feed(models.WinnersRound(1), 2*j, models.OutcomeLoser)
			} else {
				prev := models.LosersBranchB(n - 1)
				m.Slots[models.SlotA].Feed = feed(prev, 2*j-1, models.OutcomeWinner)
				m.Slots[models.SlotB].Feed = feed(prev, 2*j, models.OutcomeWinner)
			}
			t.Matches = append(t.Matches, m)
		}

		branchB := models.LosersBranchB(n)
		for j := 1; j <= count; j++ {
			m := newMatch(branchB, j)
			drop := j
			if n%2 == 1 {
				drop = count + 1 - j
			}
			m.Slots[models.SlotA].Feed = feed(models.WinnersRound(n+1), drop, models.OutcomeLoser)
			m.Slots[models.SlotB].Feed = feed(branchA, j, models.OutcomeWinner)
			t.Matches = append(t.Matches, m)
		}
	}

	final := newMatch(models.GrandFinal(1), 1)
	final.Slots[models.SlotA].Feed = feed(models.WinnersRound(rounds), 1, models.OutcomeWinner)
	if rounds == 1 {
		final.Slots[models.SlotB].Feed = feed(models.WinnersRound(1), 1, models.OutcomeLoser)
	} else {
		final.Slots[models.SlotB].Feed = feed(models.LosersBranchB(rounds-1), 1, models.OutcomeWinner)
	}
	reset := newMatch(models.GrandFinal(2), 1)
	reset.Slots[models.SlotA].Feed = feed(models.GrandFinal(1), 1, models.OutcomeLoser)
	reset.Slots[models.SlotB].Feed = feed(models.GrandFinal(1), 1, models.OutcomeWinner)
	t.Matches = append(t.Matches, final, reset)

	if err := linkDestinations(t.Matches); err != nil {
		return nil, err
	}
	if err := ValidateWiring(t.Matches); err != nil {
		return nil, err
	}
	return t, nil
}

// NewBracket returns a fresh bracket with a private copy of the wiring.
func (t *Topology) NewBracket(tournamentID int) *models.Bracket {
	b := models.NewBracket(tournamentID, t.ParticipantCount, t.Size, t.WinnersRounds)
	for _, m := range t.Matches {
		b.AddMatch(m.Clone())
	}
	return b
}

// SeedOrder returns the standard bracket order for size slots: adjacent pairs
// are first round matches and seeds 1 and 2 can only meet in the final.
// SeedOrder(8) is 1,8,4,5,2,7,3,6.
func SeedOrder(size int) []int {
	order := []int{1}
	for len(order) < size {
		n := len(order)*2 + 1
		next := make([]int, 0, len(order)*2)
		for _, s := range order {
			next = append(next, s, n-s)
		}
		order = next
	}
	return order
}

// ValidateWiring checks that feeders and destinations agree everywhere.
func ValidateWiring(matches []*models.Match) error {
	index := make(map[string]*models.Match, len(matches))
	for _, m := range matches {
		if _, dup := index[m.ID]; dup {
			return fmt.Errorf("%w: duplicate match id %s", ErrWiringInconsistency, m.ID)
		}
		index[m.ID] = m
	}

	seeds := make(map[int]bool)
	fed := make(map[models.Destination]bool)
	for _, m := range matches {
		for i, s := range m.Slots {
			pos := models.SlotPosition(i)
			if s.Feed == nil {
				if m.Round != models.WinnersRound(1) {
					return fmt.Errorf("%w: %s slot %s has no feeder", ErrWiringInconsistency, m.ID, pos)
				}
				if s.Seed < 1 || seeds[s.Seed] {
					return fmt.Errorf("%w: %s slot %s has bad seed %d", ErrWiringInconsistency, m.ID, pos, s.Seed)
				}
				seeds[s.Seed] = true
				continue
			}
			src, ok := index[s.Feed.MatchID]
			if !ok {
				return fmt.Errorf("%w: %s slot %s fed by unknown match %s", ErrWiringInconsistency, m.ID, pos, s.Feed.MatchID)
			}
			d := destinationFor(src, s.Feed.Outcome)
			if d == nil || d.MatchID != m.ID || d.Slot != pos {
				return fmt.Errorf("%w: %s slot %s is not the %s destination of %s", ErrWiringInconsistency, m.ID, pos, s.Feed.Outcome, src.ID)
			}
		}

		for _, outcome := range []models.Outcome{models.OutcomeWinner, models.OutcomeLoser} {
			d := destinationFor(m, outcome)
			if d == nil {
				continue
			}
			if fed[*d] {
				return fmt.Errorf("%w: %s slot %s is fed twice", ErrWiringInconsistency, d.MatchID, d.Slot)
			}
			fed[*d] = true
			target, ok := index[d.MatchID]
			if !ok {
				return fmt.Errorf("%w: %s sends its %s to unknown match %s", ErrWiringInconsistency, m.ID, outcome, d.MatchID)
			}
			f := target.Slots[d.Slot].Feed
			if f == nil || f.MatchID != m.ID || f.Outcome != outcome {
				return fmt.Errorf("%w: %s %s destination %s does not list it as feeder", ErrWiringInconsistency, m.ID, outcome, d.MatchID)
			}
		}

		if m.WinnerTo == nil && m.Round != models.GrandFinal(2) {
			return fmt.Errorf("%w: %s has no winner destination", ErrWiringInconsistency, m.ID)
		}
	}
	return nil
}

func newMatch(r models.Round, number int) *models.Match {
	return &models.Match{
		ID:     models.MatchID(r, number),
		Round:  r,
		Number: number,
		Slots:  [2]models.Slot{{State: models.SlotOpen}, {State: models.SlotOpen}},
		Status: models.MatchStatusPending,
	}
}

func feed(r models.Round, number int, outcome models.Outcome) *models.Feed {
	return &models.Feed{MatchID: models.MatchID(r, number), Outcome: outcome}
}

// linkDestinations derives every WinnerTo/LoserTo from the slot feeders.
func linkDestinations(matches []*models.Match) error {
	index := make(map[string]*models.Match, len(matches))
	for _, m := range matches {
		index[m.ID] = m
	}
	for _, m := range matches {
		for i, s := range m.Slots {
			if s.Feed == nil {
				continue
			}
			src, ok := index[s.Feed.MatchID]
			if !ok {
				return fmt.Errorf("%w: %s fed by unknown match %s", ErrWiringInconsistency, m.ID, s.Feed.MatchID)
			}
			dest := &models.Destination{MatchID: m.ID, Slot: models.SlotPosition(i)}
			switch s.Feed.Outcome {
			case models.OutcomeWinner:
				if src.WinnerTo != nil {
					return fmt.Errorf("%w: %s has two winner destinations", ErrWiringInconsistency, src.ID)
				}
				src.WinnerTo = dest
			case models.OutcomeLoser:
				if src.LoserTo != nil {
					return fmt.Errorf("%w: %s has two loser destinations", ErrWiringInconsistency, src.ID)
				}
				src.LoserTo = dest
			}
		}
	}
	return nil
}

func destinationFor(m *models.Match, outcome models.Outcome) *models.Destination {
	if outcome == models.OutcomeLoser {
		return m.LoserTo
	}
	return m.WinnerTo
}
