package repositories

import (
	"context"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/ranking"
)

func TestLoadMemoryFixture(t *testing.T) {
	ctx := context.Background()
	f, err := os.Open("testdata/fixture.json")
	require.NoError(t, err)
	defer f.Close()

	repo, err := LoadMemoryFixture(f)
	require.NoError(t, err)

	friday, err := repo.GetTournament(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, "Friday 9-ball", friday.Name)
	assert.Equal(t, models.StatusRegistration, friday.Status)
	assert.Equal(t, 7, friday.RaceTo)

	players, err := repo.LoadConfirmedRegistrants(ctx, 1)
	require.NoError(t, err)
	require.Len(t, players, 4)
	require.NotNil(t, players[0].Rank)
	assert.Equal(t, ranking.Rank("G"), *players[0].Rank)
	require.NotNil(t, players[2].EloScore)
	assert.Equal(t, 1420, *players[2].EloScore)
	assert.Nil(t, players[3].Rank)

	sunday, err := repo.GetTournament(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, models.StatusSeeding, sunday.Status)

	_, err = repo.LoadTopology(ctx, 1)
	assert.ErrorIs(t, err, ErrBracketNotFound)
}

func TestLoadMemoryFixtureRejects(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want error
	}{
		{"not json", `tournaments:`, ErrInvalidFixture},
		{"unknown field", `{"tournaments":[{"id":1,"prize":100}]}`, ErrInvalidFixture},
		{"empty", `{"tournaments":[]}`, ErrInvalidFixture},
		{"missing id", `{"tournaments":[{"name":"x"}]}`, ErrInvalidFixture},
		{"duplicate tournament", `{"tournaments":[{"id":1},{"id":1}]}`, ErrInvalidFixture},
		{"duplicate registrant", `{"tournaments":[{"id":1,"registrants":[{"id":5},{"id":5}]}]}`, ErrInvalidFixture},
		{"bad rank", `{"tournaments":[{"id":1,"registrants":[{"id":5,"rank":"Z"}]}]}`, ErrInvalidRegistrant},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := LoadMemoryFixture(strings.NewReader(tt.doc))
			assert.ErrorIs(t, err, tt.want)
		})
	}
}
