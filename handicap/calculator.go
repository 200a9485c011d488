package handicap

import (
	"errors"
	"fmt"
	"sort"

	"github.com/saboarena/tournament-engine/ranking"
)

var (
	ErrMissingRank   = errors.New("player rank is required for handicap")
	ErrInvalidStake  = errors.New("stake must be a positive race length")
	ErrInvalidConfig = errors.New("invalid handicap configuration")
	ErrHandicapDrift = errors.New("stored handicap differs from recomputed handicap")
)

const EqualRankExplanation = "no handicap — equal rank."

type Mode string

const (
	// ModeRaceExtension makes the stronger player race to more games.
	ModeRaceExtension Mode = "race_extension"
	// ModeStartingDeficit spots the weaker player games at the start.
	ModeStartingDeficit Mode = "starting_deficit"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeRaceExtension, ModeStartingDeficit:
		return Mode(s), nil
	}
	return "", fmt.Errorf("%w: unknown mode %q", ErrInvalidConfig, s)
}

type Side string

const (
	SideNone       Side = "none"
	SideChallenger Side = "challenger"
	SideOpponent   Side = "opponent"
)

// Result is comparable with == so a stored copy can be checked against a
// fresh computation.
type Result struct {
	ChallengerRank  ranking.Rank `json:"challenger_rank"`
	OpponentRank    ranking.Rank `json:"opponent_rank"`
	Stake           int          `json:"stake"`
	Distance        int          `json:"distance"`
	Stronger        Side         `json:"stronger"`
	Amount          Games        `json:"amount_half_games"`
	Mode            Mode         `json:"mode"`
	ChallengerRace  int          `json:"challenger_race_to"`
	OpponentRace    int          `json:"opponent_race_to"`
	ChallengerStart int          `json:"challenger_start"`
	OpponentStart   int          `json:"opponent_start"`
	Explanation     string       `json:"explanation"`
}

type Config struct {
	Tiers []Tier
	// DefaultRank is used for a missing rank. Nil makes a missing rank an error.
	DefaultRank *ranking.Rank
	Mode        Mode
}

type Calculator struct {
	tiers       []Tier
	defaultRank *ranking.Rank
	mode        Mode
}

func NewCalculator(cfg Config) (*Calculator, error) {
	tiers := cfg.Tiers
	if len(tiers) == 0 {
		tiers = DefaultTiers
	}
	sorted := make([]Tier, len(tiers))
	copy(sorted, tiers)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].RaceTo < sorted[j].RaceTo })
	for i, t := range sorted {
		if t.RaceTo <= 0 || t.FullRank < 0 || t.HalfRank < 0 {
			return nil, fmt.Errorf("%w: tier %d has non-positive race or negative handicap", ErrInvalidConfig, i)
		}
		if i > 0 && sorted[i-1].RaceTo == t.RaceTo {
			return nil, fmt.Errorf("%w: duplicate race length %d", ErrInvalidConfig, t.RaceTo)
		}
	}

	mode := cfg.Mode
	if mode == "" {
		mode = ModeRaceExtension
	}
	if _, err := ParseMode(string(mode)); err != nil {
		return nil, err
	}
	if cfg.DefaultRank != nil && !cfg.DefaultRank.Valid() {
		return nil, fmt.Errorf("%w: default rank %q", ranking.ErrInvalidRank, string(*cfg.DefaultRank))
	}

	return &Calculator{tiers: sorted, defaultRank: cfg.DefaultRank, mode: mode}, nil
}

// TierFor returns the largest tier whose race fits in stake. Stakes shorter
// than every tier use the smallest one.
func (c *Calculator) TierFor(stake int) (Tier, error) {
	if stake <= 0 {
		return Tier{}, fmt.Errorf("%w: got %d", ErrInvalidStake, stake)
	}
	chosen := c.tiers[0]
	for _, t := range c.tiers {
		if t.RaceTo > stake {
			break
		}
		chosen = t
	}
	return chosen, nil
}

func (c *Calculator) Tiers() []Tier {
	out := make([]Tier, len(c.tiers))
	copy(out, c.tiers)
	return out
}

// Calculate computes the handicap for a race of stake games. It is a pure
// function of its arguments and the calculator configuration.
func (c *Calculator) Calculate(challenger, opponent *ranking.Rank, stake int) (Result, error) {
	if stake <= 0 {
		return Result{}, fmt.Errorf("%w: got %d", ErrInvalidStake, stake)
	}
	cr, err := c.resolve(challenger, "challenger")
	if err != nil {
		return Result{}, err
	}
	or, err := c.resolve(opponent, "opponent")
	if err != nil {
		return Result{}, err
	}
	tier, err := c.TierFor(stake)
	if err != nil {
		return Result{}, err
	}
	return c.compute(cr, or, stake, tier)
}

// CalculateForBet looks the race length up from the bet level.
func (c *Calculator) CalculateForBet(challenger, opponent *ranking.Rank, betPoints int) (Result, error) {
	for _, t := range c.tiers {
		if t.BetPoints == betPoints && betPoints > 0 {
			cr, err := c.resolve(challenger, "challenger")
			if err != nil {
				return Result{}, err
			}
			or, err := c.resolve(opponent, "opponent")
			if err != nil {
				return Result{}, err
			}
			return c.compute(cr, or, t.RaceTo, t)
		}
	}
	return Result{}, fmt.Errorf("%w: no race length configured for bet %d", ErrInvalidStake, betPoints)
}

// Verify recomputes the handicap and reports drift from a stored copy.
func (c *Calculator) Verify(stored Result, challenger, opponent *ranking.Rank) (Result, error) {
	live, err := c.Calculate(challenger, opponent, stored.Stake)
	if err != nil {
		return Result{}, err
	}
	if live != stored {
		return live, fmt.Errorf("%w: stored %s, live %s", ErrHandicapDrift, stored.Amount, live.Amount)
	}
	return live, nil
}

func (c *Calculator) resolve(r *ranking.Rank, who string) (ranking.Rank, error) {
	if r == nil {
		if c.defaultRank == nil {
			return "", fmt.Errorf("%w: %s", ErrMissingRank, who)
		}
		return *c.defaultRank, nil
	}
	if _, err := ranking.Order(*r); err != nil {
		return "", err
	}
	return *r, nil
}

func (c *Calculator) compute(challenger, opponent ranking.Rank, stake int, tier Tier) (Result, error) {
	co, err := ranking.Order(challenger)
	if err != nil {
		return Result{}, err
	}
	oo, err := ranking.Order(opponent)
	if err != nil {
		return Result{}, err
	}

	res := Result{
		ChallengerRank: challenger,
		OpponentRank:   opponent,
		Stake:          stake,
		Stronger:       SideNone,
		Mode:           c.mode,
		ChallengerRace: stake,
		OpponentRace:   stake,
	}
	if co == oo {
		res.Explanation = EqualRankExplanation
		return res, nil
	}

	strong, weak := challenger, opponent
	res.Stronger = SideChallenger
	res.Distance = co - oo
	if oo > co {
		strong, weak = opponent, challenger
		res.Stronger = SideOpponent
		res.Distance = oo - co
	}
	res.Amount = tier.Amount(res.Distance)
	extra := res.Amount.Ceil()

	if res.Stronger == SideChallenger {
		res.ChallengerRace = stake + extra
		res.OpponentStart = extra
	} else {
		res.OpponentRace = stake + extra
		res.ChallengerStart = extra
	}

	switch c.mode {
	case ModeStartingDeficit:
		res.Explanation = fmt.Sprintf("%s is %d sub-rank(s) above %s: handicap %s games, %s starts %d-0 in a race to %d",
			strong, res.Distance, weak, res.Amount, weak, extra, stake)
	default:
		res.Explanation = fmt.Sprintf("%s is %d sub-rank(s) above %s: handicap %s games, %s races to %d while %s races to %d",
			strong, res.Distance, weak, res.Amount, strong, stake+extra, weak, stake)
	}
	return res, nil
}
