package ranking

import (
	"errors"
	"fmt"
	"strings"
)

var (
	ErrInvalidRank = errors.New("invalid rank")
)

// Rank is a SABO skill tier. The zero value is not a valid rank.
type Rank string

const (
	RankK     Rank = "K"
	RankKPlus Rank = "K+"
	RankI     Rank = "I"
	RankIPlus Rank = "I+"
	RankH     Rank = "H"
	RankHPlus Rank = "H+"
	RankG     Rank = "G"
	RankGPlus Rank = "G+"
	RankF     Rank = "F"
	RankFPlus Rank = "F+"
	RankE     Rank = "E"
	RankEPlus Rank = "E+"

	// Default is assumed for unranked players where a policy allows it.
	Default = RankK
)

const (
	eloBase     = 1000
	eloBandSize = 100
)

// All lists every rank from lowest to highest.
var All = []Rank{
	RankK, RankKPlus,
	RankI, RankIPlus,
	RankH, RankHPlus,
	RankG, RankGPlus,
	RankF, RankFPlus,
	RankE, RankEPlus,
}

var orderIndex = func() map[Rank]int {
	m := make(map[Rank]int, len(All))
	for i, r := range All {
		m[r] = i
	}
	return m
}()

type Comparison int

const (
	Less    Comparison = -1
	Equal   Comparison = 0
	Greater Comparison = 1
)

func (c Comparison) String() string {
	switch c {
	case Less:
		return "less"
	case Greater:
		return "greater"
	default:
		return "equal"
	}
}

// Order returns the position of r in the total order, 0 for K up to 11 for E+.
func Order(r Rank) (int, error) {
	idx, ok := orderIndex[r]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrInvalidRank, string(r))
	}
	return idx, nil
}

func Compare(a, b Rank) (Comparison, error) {
	oa, err := Order(a)
	if err != nil {
		return Equal, err
	}
	ob, err := Order(b)
	if err != nil {
		return Equal, err
	}
	switch {
	case oa < ob:
		return Less, nil
	case oa > ob:
		return Greater, nil
	default:
		return Equal, nil
	}
}

// EloBand returns the inclusive ELO range covered by r.
func EloBand(r Rank) (min, max int, err error) {
	idx, err := Order(r)
	if err != nil {
		return 0, 0, err
	}
	min = eloBase + idx*eloBandSize
	return min, min + eloBandSize - 1, nil
}

// FromElo maps a rating onto the rank whose band contains it. Ratings outside
// the table are clamped to K and E+.
func FromElo(score int) Rank {
	if score < eloBase {
		return All[0]
	}
	idx := (score - eloBase) / eloBandSize
	if idx >= len(All) {
		idx = len(All) - 1
	}
	return All[idx]
}

func Parse(code string) (Rank, error) {
	r := Rank(strings.ToUpper(strings.TrimSpace(code)))
	if _, err := Order(r); err != nil {
		return "", err
	}
	return r, nil
}

func (r Rank) Valid() bool {
	_, ok := orderIndex[r]
	return ok
}

func (r Rank) String() string {
	return string(r)
}
