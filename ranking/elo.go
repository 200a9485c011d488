package ranking

import (
	elogo "github.com/kortemy/elo-go"
)

const (
	eloDeviation = 400
	upsetGap     = 200
)

// KFactor is the weight of one match for a player rated rating. Stronger
// ranks move slower.
func KFactor(rating int) int {
	switch FromElo(rating) {
	case RankK, RankKPlus:
		return 40
	case RankI, RankIPlus:
		return 35
	case RankH, RankHPlus:
		return 32
	case RankG, RankGPlus:
		return 28
	case RankF, RankFPlus:
		return 24
	case RankE:
		return 20
	default:
		return 16
	}
}

// RatingFor picks the rating a player enters a match with: the stored ELO when
// known, otherwise the bottom of the rank's band, otherwise the bottom of the
// default rank's band.
func RatingFor(elo *int, rank *Rank) int {
	if elo != nil {
		return *elo
	}
	r := Default
	if rank != nil && rank.Valid() {
		r = *rank
	}
	min, _, _ := EloBand(r)
	return min
}

// MatchOutcome returns the rating deltas of one decided match. Each side moves
// by its own K-factor; a winner rated more than upsetGap below the loser earns
// half as much again.
func MatchOutcome(winnerRating, loserRating int) (winnerDelta, loserDelta int) {
	kw := KFactor(winnerRating)
	if loserRating-winnerRating > upsetGap {
		kw += kw / 2
	}
	w, _ := elogo.NewEloWithFactors(kw, eloDeviation).Outcome(winnerRating, loserRating, 1)
	_, l := elogo.NewEloWithFactors(KFactor(loserRating), eloDeviation).Outcome(winnerRating, loserRating, 1)
	return w.Delta, l.Delta
}
