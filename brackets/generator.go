package brackets

import (
	"context"
	"time"

	"github.com/saboarena/tournament-engine/models"
)

type GenerateBracketParams struct {
	TournamentID int
	// Seeds are participant ids, best seed first.
	Seeds []int
}

type BracketGenerator interface {
	GenerateBracket(ctx context.Context, params GenerateBracketParams) (*models.Bracket, error)

	GetName() string
}

type DoubleEliminationGenerator struct {
	opts Options
	now  func() time.Time
}

func NewDoubleEliminationGenerator(opts Options, now func() time.Time) BracketGenerator {
	if now == nil {
		now = time.Now
	}
	return &DoubleEliminationGenerator{opts: opts, now: now}
}

func (g *DoubleEliminationGenerator) GetName() string {
	return "SABODoubleElimination"
}

// GenerateBracket builds the topology for the seed count and places the seeds.
func (g *DoubleEliminationGenerator) GenerateBracket(ctx context.Context, params GenerateBracketParams) (*models.Bracket, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	topology, err := Build(len(params.Seeds), g.opts)
	if err != nil {
		return nil, err
	}
	engine := NewEngine(topology, WithTournamentID(params.TournamentID), WithClock(g.now))
	return engine.Initialize(params.Seeds)
}
