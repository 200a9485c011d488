package seeding

import (
	"testing"
	"time"

	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var base = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func player(id int, r string, elo *int, minute int) models.Participant {
	p := models.Participant{ID: id, Name: "p", EloScore: elo, RegisteredAt: base.Add(time.Duration(minute) * time.Minute)}
	if r != "" {
		rk := ranking.Rank(r)
		p.Rank = &rk
	}
	return p
}

func elo(v int) *int { return &v }

func TestSeedByRankDesc(t *testing.T) {
	in := []models.Participant{
		player(1, "K", nil, 1),
		player(2, "E", nil, 2),
		player(3, "H", elo(1450), 3),
		player(4, "H", elo(1480), 4),
		player(5, "", nil, 0), // unranked counts as K
		player(6, "H", nil, 5),
		player(7, "K", nil, 1),
	}

	got, err := New("").Seed(in, ModeByRankDesc)
	require.NoError(t, err)
	// E, then H by elo desc with missing elo last, then K/unranked by registration then id
	assert.Equal(t, []int{2, 4, 3, 6, 5, 1, 7}, got)
}

func TestSeedRegistrationOrder(t *testing.T) {
	in := []models.Participant{
		player(10, "E", nil, 5),
		player(11, "K", nil, 1),
		player(9, "G", nil, 5),
	}
	got, err := New("").Seed(in, ModeRegistrationOrder)
	require.NoError(t, err)
	assert.Equal(t, []int{11, 9, 10}, got)
}

func TestSeedRandomIsDeterministic(t *testing.T) {
	var in []models.Participant
	for i := 1; i <= 16; i++ {
		in = append(in, player(i, "K", nil, i))
	}

	s := New("spring-open")
	first, err := s.Seed(in, ModeRandom)
	require.NoError(t, err)
	assert.ElementsMatch(t, []int{1, 2, 3, 4, 5, 6, 7, 8, 9, 10, 11, 12, 13, 14, 15, 16}, first)

	// input order must not matter
	reversed := make([]models.Participant, len(in))
	for i := range in {
		reversed[len(in)-1-i] = in[i]
	}
	for i := 0; i < 20; i++ {
		again, err := s.Seed(reversed, ModeRandom)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}

	other, err := New("autumn-open").Seed(in, ModeRandom)
	require.NoError(t, err)
	assert.NotEqual(t, first, other)
}

func TestSeedDoesNotModifyInput(t *testing.T) {
	in := []models.Participant{player(2, "K", nil, 2), player(1, "E", nil, 1)}
	_, err := New("").Seed(in, ModeByRankDesc)
	require.NoError(t, err)
	assert.Equal(t, 2, in[0].ID)
}

func TestSeedErrors(t *testing.T) {
	s := New("")

	_, err := s.Seed([]models.Participant{player(1, "K", nil, 0)}, ModeByRankDesc)
	require.ErrorIs(t, err, ErrInsufficientParticipants)

	_, err = s.Seed([]models.Participant{player(1, "K", nil, 0), player(1, "E", nil, 0)}, ModeByRankDesc)
	require.ErrorIs(t, err, ErrDuplicateParticipant)

	_, err = s.Seed([]models.Participant{player(1, "K", nil, 0), player(2, "E", nil, 0)}, Mode("swiss"))
	require.ErrorIs(t, err, ErrUnknownMode)
}

func TestParseMode(t *testing.T) {
	m, err := ParseMode("random")
	require.NoError(t, err)
	assert.Equal(t, ModeRandom, m)

	m, err = ParseMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeByRankDesc, m)

	_, err = ParseMode("snake")
	require.ErrorIs(t, err, ErrUnknownMode)
}
