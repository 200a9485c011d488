package handicap

import (
	"fmt"
	"strconv"
)

// Games is an amount of games counted in halves, so 3 means one and a half
// games. Handicap tables use half-game steps and keeping them integral makes
// every result exactly reproducible.
type Games int

func HalfGames(n int) Games { return Games(n) }

func WholeGames(n int) Games { return Games(2 * n) }

// Ceil rounds up to whole games.
func (g Games) Ceil() int {
	if g <= 0 {
		return 0
	}
	return (int(g) + 1) / 2
}

func (g Games) String() string {
	if g%2 == 0 {
		return strconv.Itoa(int(g) / 2)
	}
	return fmt.Sprintf("%d.5", int(g)/2)
}

// Tier is one row of the stake table: the race length played for a bet level
// and the handicap granted per full rank and per sub-rank of difference.
type Tier struct {
	BetPoints int   `json:"bet_points"`
	RaceTo    int   `json:"race_to"`
	FullRank  Games `json:"handicap_1_rank"`
	HalfRank  Games `json:"handicap_05_rank"`
}

// DefaultTiers is the SABO challenge table.
var DefaultTiers = []Tier{
	{BetPoints: 100, RaceTo: 8, FullRank: HalfGames(2), HalfRank: HalfGames(1)},
	{BetPoints: 200, RaceTo: 12, FullRank: HalfGames(3), HalfRank: HalfGames(2)},
	{BetPoints: 300, RaceTo: 14, FullRank: HalfGames(4), HalfRank: HalfGames(3)},
	{BetPoints: 400, RaceTo: 16, FullRank: HalfGames(5), HalfRank: HalfGames(3)},
	{BetPoints: 500, RaceTo: 18, FullRank: HalfGames(6), HalfRank: HalfGames(4)},
	{BetPoints: 600, RaceTo: 22, FullRank: HalfGames(7), HalfRank: HalfGames(5)},
}

// Amount returns the handicap for a distance measured in sub-ranks.
func (t Tier) Amount(distance int) Games {
	if distance <= 0 {
		return 0
	}
	return Games(distance/2)*t.FullRank + Games(distance%2)*t.HalfRank
}

// Curve expands the tier into the full distance table, index = distance.
func (t Tier) Curve(maxDistance int) []Games {
	curve := make([]Games, maxDistance+1)
	for d := range curve {
		curve[d] = t.Amount(d)
	}
	return curve
}
