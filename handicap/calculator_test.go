package handicap

import (
	"testing"

	"github.com/saboarena/tournament-engine/ranking"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func rank(r ranking.Rank) *ranking.Rank { return &r }

func newCalc(t *testing.T, cfg Config) *Calculator {
	t.Helper()
	c, err := NewCalculator(cfg)
	require.NoError(t, err)
	return c
}

func TestGamesFormatting(t *testing.T) {
	assert.Equal(t, "0", Games(0).String())
	assert.Equal(t, "1.5", HalfGames(3).String())
	assert.Equal(t, "2", WholeGames(2).String())
	assert.Equal(t, "5.5", HalfGames(11).String())

	assert.Equal(t, 0, Games(0).Ceil())
	assert.Equal(t, 1, HalfGames(1).Ceil())
	assert.Equal(t, 2, HalfGames(4).Ceil())
	assert.Equal(t, 6, HalfGames(11).Ceil())
}

func TestTierCurve(t *testing.T) {
	curve := DefaultTiers[0].Curve(11)
	require.Len(t, curve, 12)
	assert.Equal(t, Games(0), curve[0])
	assert.Equal(t, HalfGames(1), curve[1])
	assert.Equal(t, HalfGames(2), curve[2])
	assert.Equal(t, HalfGames(3), curve[3])
	assert.Equal(t, HalfGames(11), curve[11])

	for d := 1; d < len(curve); d++ {
		assert.GreaterOrEqual(t, curve[d], curve[d-1], "curve must not decrease at %d", d)
	}
}

func TestTierFor(t *testing.T) {
	c := newCalc(t, Config{})

	tests := []struct {
		stake  int
		raceTo int
	}{
		{stake: 5, raceTo: 8},
		{stake: 8, raceTo: 8},
		{stake: 11, raceTo: 8},
		{stake: 12, raceTo: 12},
		{stake: 17, raceTo: 16},
		{stake: 40, raceTo: 22},
	}
	for _, tt := range tests {
		tier, err := c.TierFor(tt.stake)
		require.NoError(t, err)
		assert.Equal(t, tt.raceTo, tier.RaceTo, "stake %d", tt.stake)
	}

	_, err := c.TierFor(0)
	require.ErrorIs(t, err, ErrInvalidStake)
}

func TestCalculate(t *testing.T) {
	c := newCalc(t, Config{})

	tests := []struct {
		name       string
		challenger ranking.Rank
		opponent   ranking.Rank
		stake      int
		stronger   Side
		distance   int
		amount     Games
		challRace  int
		oppRace    int
		challStart int
		oppStart   int
	}{
		{
			name: "challenger stronger by a rank and a half", challenger: ranking.RankHPlus, opponent: ranking.RankI, stake: 8,
			stronger: SideChallenger, distance: 3, amount: HalfGames(3),
			challRace: 10, oppRace: 8, oppStart: 2,
		},
		{
			name: "opponent at the top of the table", challenger: ranking.RankK, opponent: ranking.RankEPlus, stake: 8,
			stronger: SideOpponent, distance: 11, amount: HalfGames(11),
			challRace: 8, oppRace: 14, challStart: 6,
		},
		{
			name: "longer race uses larger tier", challenger: ranking.RankG, opponent: ranking.RankI, stake: 16,
			stronger: SideChallenger, distance: 4, amount: HalfGames(10),
			challRace: 21, oppRace: 16, oppStart: 5,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := c.Calculate(rank(tt.challenger), rank(tt.opponent), tt.stake)
			require.NoError(t, err)
			assert.Equal(t, tt.stronger, res.Stronger)
			assert.Equal(t, tt.distance, res.Distance)
			assert.Equal(t, tt.amount, res.Amount)
			assert.Equal(t, tt.challRace, res.ChallengerRace)
			assert.Equal(t, tt.oppRace, res.OpponentRace)
			assert.Equal(t, tt.challStart, res.ChallengerStart)
			assert.Equal(t, tt.oppStart, res.OpponentStart)
			assert.Equal(t, ModeRaceExtension, res.Mode)
			assert.NotEmpty(t, res.Explanation)
		})
	}
}

func TestCalculateEqualRanks(t *testing.T) {
	c := newCalc(t, Config{})
	for _, r := range ranking.All {
		res, err := c.Calculate(rank(r), rank(r), 8)
		require.NoError(t, err)
		assert.Equal(t, Games(0), res.Amount)
		assert.Equal(t, SideNone, res.Stronger)
		assert.Equal(t, 8, res.ChallengerRace)
		assert.Equal(t, 8, res.OpponentRace)
		assert.Equal(t, EqualRankExplanation, res.Explanation)
	}
}

func TestCalculateIsDeterministic(t *testing.T) {
	c := newCalc(t, Config{})
	first, err := c.Calculate(rank(ranking.RankF), rank(ranking.RankIPlus), 14)
	require.NoError(t, err)
	for i := 0; i < 1000; i++ {
		again, err := c.Calculate(rank(ranking.RankF), rank(ranking.RankIPlus), 14)
		require.NoError(t, err)
		require.Equal(t, first, again)
	}
}

func TestCalculateSymmetric(t *testing.T) {
	c := newCalc(t, Config{})
	for _, a := range ranking.All {
		for _, b := range ranking.All {
			ab, err := c.Calculate(rank(a), rank(b), 12)
			require.NoError(t, err)
			ba, err := c.Calculate(rank(b), rank(a), 12)
			require.NoError(t, err)
			assert.Equal(t, ab.Amount, ba.Amount)
			assert.Equal(t, ab.ChallengerRace, ba.OpponentRace)
			assert.Equal(t, ab.OpponentStart, ba.ChallengerStart)
		}
	}
}

func TestCalculateErrors(t *testing.T) {
	c := newCalc(t, Config{})

	_, err := c.Calculate(nil, rank(ranking.RankK), 8)
	require.ErrorIs(t, err, ErrMissingRank)

	_, err = c.Calculate(rank(ranking.RankK), nil, 8)
	require.ErrorIs(t, err, ErrMissingRank)

	_, err = c.Calculate(rank(ranking.RankK), rank(ranking.RankG), 0)
	require.ErrorIs(t, err, ErrInvalidStake)

	_, err = c.Calculate(rank(ranking.RankK), rank("Z"), 8)
	require.ErrorIs(t, err, ranking.ErrInvalidRank)
}

func TestDefaultRank(t *testing.T) {
	c := newCalc(t, Config{DefaultRank: rank(ranking.Default)})

	res, err := c.Calculate(nil, rank(ranking.RankKPlus), 8)
	require.NoError(t, err)
	assert.Equal(t, ranking.RankK, res.ChallengerRank)
	assert.Equal(t, SideOpponent, res.Stronger)
	assert.Equal(t, HalfGames(1), res.Amount)
}

func TestStartingDeficitMode(t *testing.T) {
	c := newCalc(t, Config{Mode: ModeStartingDeficit})

	res, err := c.Calculate(rank(ranking.RankI), rank(ranking.RankG), 8)
	require.NoError(t, err)
	assert.Equal(t, ModeStartingDeficit, res.Mode)
	assert.Equal(t, SideOpponent, res.Stronger)
	assert.Equal(t, 2, res.ChallengerStart)
	assert.Equal(t, 10, res.OpponentRace)
	assert.Contains(t, res.Explanation, "starts 2-0")
}

func TestCalculateForBet(t *testing.T) {
	c := newCalc(t, Config{})

	res, err := c.CalculateForBet(rank(ranking.RankG), rank(ranking.RankK), 300)
	require.NoError(t, err)
	assert.Equal(t, 14, res.Stake)
	assert.Equal(t, 6, res.Distance)
	assert.Equal(t, WholeGames(6), res.Amount)
	assert.Equal(t, 20, res.ChallengerRace)

	_, err = c.CalculateForBet(rank(ranking.RankG), rank(ranking.RankK), 250)
	require.ErrorIs(t, err, ErrInvalidStake)
}

func TestVerify(t *testing.T) {
	c := newCalc(t, Config{})

	stored, err := c.Calculate(rank(ranking.RankH), rank(ranking.RankK), 8)
	require.NoError(t, err)

	live, err := c.Verify(stored, rank(ranking.RankH), rank(ranking.RankK))
	require.NoError(t, err)
	assert.Equal(t, stored, live)

	// opponent got promoted since the match was scheduled
	_, err = c.Verify(stored, rank(ranking.RankH), rank(ranking.RankI))
	require.ErrorIs(t, err, ErrHandicapDrift)
}

func TestNewCalculatorValidation(t *testing.T) {
	_, err := NewCalculator(Config{Mode: "sideways"})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCalculator(Config{Tiers: []Tier{{RaceTo: 8}, {RaceTo: 8}}})
	require.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewCalculator(Config{DefaultRank: rank("Q")})
	require.ErrorIs(t, err, ranking.ErrInvalidRank)

	c := newCalc(t, Config{Tiers: []Tier{
		{BetPoints: 200, RaceTo: 12, FullRank: 3, HalfRank: 2},
		{BetPoints: 100, RaceTo: 8, FullRank: 2, HalfRank: 1},
	}})
	tiers := c.Tiers()
	require.Len(t, tiers, 2)
	assert.Equal(t, 8, tiers[0].RaceTo)
}
