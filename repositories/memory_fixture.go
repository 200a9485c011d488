package repositories

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/saboarena/tournament-engine/models"
)

var ErrInvalidFixture = errors.New("invalid fixture")

// Fixture is the JSON document used to seed the in-memory repository.
type Fixture struct {
	Tournaments []FixtureTournament `json:"tournaments"`
}

type FixtureTournament struct {
	models.Tournament
	Registrants []models.Participant `json:"registrants"`
}

// LoadMemoryFixture decodes a fixture from r into a fresh in-memory repository.
// Tournaments without a status start in registration.
func LoadMemoryFixture(r io.Reader) (*MemoryTournamentRepository, error) {
	var f Fixture
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidFixture, err)
	}
	if len(f.Tournaments) == 0 {
		return nil, fmt.Errorf("%w: no tournaments", ErrInvalidFixture)
	}

	repo := NewMemoryTournamentRepository()
	seen := make(map[int]bool, len(f.Tournaments))
	for _, ft := range f.Tournaments {
		t := ft.Tournament
		if t.ID <= 0 {
			return nil, fmt.Errorf("%w: tournament id %d", ErrInvalidFixture, t.ID)
		}
		if seen[t.ID] {
			return nil, fmt.Errorf("%w: duplicate tournament %d", ErrInvalidFixture, t.ID)
		}
		seen[t.ID] = true
		if t.Status == "" {
			t.Status = models.StatusRegistration
		}
		repo.AddTournament(t)

		players := make(map[int]bool, len(ft.Registrants))
		for _, p := range ft.Registrants {
			if p.ID <= 0 || players[p.ID] {
				return nil, fmt.Errorf("%w: tournament %d registrant %d", ErrInvalidFixture, t.ID, p.ID)
			}
			if p.Rank != nil && !p.Rank.Valid() {
				return nil, fmt.Errorf("%w: user %d rank %q", ErrInvalidRegistrant, p.ID, *p.Rank)
			}
			players[p.ID] = true
			repo.AddRegistrant(t.ID, p)
		}
	}
	return repo, nil
}
