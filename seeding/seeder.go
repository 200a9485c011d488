// Package seeding turns a list of confirmed registrants into a seed order.
package seeding

import (
	"errors"
	"fmt"
	"hash/fnv"
	"math/rand/v2"
	"sort"
	"strconv"

	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/ranking"
)

var (
	ErrInsufficientParticipants = errors.New("at least two participants are required")
	ErrDuplicateParticipant     = errors.New("participant listed more than once")
	ErrUnknownMode              = errors.New("unknown seeding mode")
)

type Mode string

const (
	ModeByRankDesc        Mode = "by-rank-desc"
	ModeRegistrationOrder Mode = "registration-order"
	ModeRandom            Mode = "random"
)

func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeByRankDesc, ModeRegistrationOrder, ModeRandom:
		return m, nil
	case "":
		return ModeByRankDesc, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
}

// Seeder orders participants. Salt only affects ModeRandom.
type Seeder struct {
	Salt string
}

func New(salt string) *Seeder {
	return &Seeder{Salt: salt}
}

// Seed returns participant ids in seed order, strongest first. The input slice
// is not modified. The same participants, mode and salt always give the same
// order.
func (s *Seeder) Seed(participants []models.Participant, mode Mode) ([]int, error) {
	if len(participants) < 2 {
		return nil, fmt.Errorf("%w: got %d", ErrInsufficientParticipants, len(participants))
	}
	seen := make(map[int]struct{}, len(participants))
	for _, p := range participants {
		if _, dup := seen[p.ID]; dup {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicateParticipant, p.ID)
		}
		seen[p.ID] = struct{}{}
	}

	list := make([]models.Participant, len(participants))
	copy(list, participants)

	switch mode {
	case ModeByRankDesc:
		sort.SliceStable(list, func(i, j int) bool { return strongerFirst(list[i], list[j]) })
	case ModeRegistrationOrder:
		sort.SliceStable(list, func(i, j int) bool { return registeredFirst(list[i], list[j]) })
	case ModeRandom:
		sort.Slice(list, func(i, j int) bool { return list[i].ID < list[j].ID })
		rng := rand.New(rand.NewPCG(s.hash(list), 0x5ab0))
		rng.Shuffle(len(list), func(i, j int) { list[i], list[j] = list[j], list[i] })
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownMode, string(mode))
	}

	ids := make([]int, len(list))
	for i, p := range list {
		ids[i] = p.ID
	}
	return ids, nil
}

// hash expects list sorted by id.
func (s *Seeder) hash(list []models.Participant) uint64 {
	h := fnv.New64a()
	h.Write([]byte(s.Salt))
	for _, p := range list {
		h.Write([]byte{0})
		h.Write([]byte(strconv.Itoa(p.ID)))
	}
	return h.Sum64()
}

func strongerFirst(a, b models.Participant) bool {
	ra, _ := ranking.Order(ranking.OrDefault(a.Rank))
	rb, _ := ranking.Order(ranking.OrDefault(b.Rank))
	if ra != rb {
		return ra > rb
	}
	switch {
	case a.EloScore != nil && b.EloScore != nil && *a.EloScore != *b.EloScore:
		return *a.EloScore > *b.EloScore
	case a.EloScore != nil && b.EloScore == nil:
		return true
	case a.EloScore == nil && b.EloScore != nil:
		return false
	}
	return registeredFirst(a, b)
}

func registeredFirst(a, b models.Participant) bool {
	if !a.RegisteredAt.Equal(b.RegisteredAt) {
		return a.RegisteredAt.Before(b.RegisteredAt)
	}
	return a.ID < b.ID
}
