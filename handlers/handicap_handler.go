package handlers

import (
	"fmt"
	"log/slog"
	"net/http"

	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/ranking"
	"github.com/saboarena/tournament-engine/services"
)

// HandicapHandler serves the challenge-flow calculator. It needs no
// tournament.
type HandicapHandler struct {
	responder
	tournamentService services.TournamentService
}

func NewHandicapHandler(ts services.TournamentService, logger *slog.Logger) *HandicapHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &HandicapHandler{
		responder:         responder{logger: logger},
		tournamentService: ts,
	}
}

// calculateHandicapRequest takes either a stake (race length) or the bet
// points of a challenge. A missing rank is sent as null or "".
type calculateHandicapRequest struct {
	ChallengerRank string `json:"challenger_rank"`
	OpponentRank   string `json:"opponent_rank"`
	Stake          int    `json:"stake"`
	BetPoints      int    `json:"bet_points"`
}

func optionalRank(code string) (*ranking.Rank, error) {
	if code == "" {
		return nil, nil
	}
	r, err := ranking.Parse(code)
	if err != nil {
		return nil, err
	}
	return &r, nil
}

// CalculateHandler handles POST /handicap/calculate.
func (h *HandicapHandler) CalculateHandler(w http.ResponseWriter, r *http.Request) {
	var input calculateHandicapRequest
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}

	errs := make(map[string]string)
	challenger, err := optionalRank(input.ChallengerRank)
	if err != nil {
		errs["challenger_rank"] = err.Error()
	}
	opponent, err := optionalRank(input.OpponentRank)
	if err != nil {
		errs["opponent_rank"] = err.Error()
	}
	switch {
	case input.Stake > 0 && input.BetPoints > 0:
		errs["stake"] = "send either stake or bet_points, not both"
	case input.Stake <= 0 && input.BetPoints <= 0:
		errs["stake"] = "stake or bet_points must be positive"
	}
	if len(errs) > 0 {
		h.failedValidationResponse(w, r, errs)
		return
	}

	var result handicap.Result
	if input.BetPoints > 0 {
		result, err = h.tournamentService.CalculateForBet(challenger, opponent, input.BetPoints)
	} else {
		result, err = h.tournamentService.CalculateHandicap(challenger, opponent, input.Stake)
	}
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, fmt.Errorf("calculate handicap: %w", err))
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"handicap": result})
}

type tierResponse struct {
	handicap.Tier
	Curve  []handicap.Games `json:"curve_half_games"`
	Labels []string         `json:"curve"`
}

// TiersHandler handles GET /handicap/tiers and lists every stake tier with
// its handicap per rank distance.
func (h *HandicapHandler) TiersHandler(w http.ResponseWriter, r *http.Request) {
	tiers := h.tournamentService.HandicapTiers()
	out := make([]tierResponse, 0, len(tiers))
	for _, t := range tiers {
		curve := t.Curve(len(ranking.All) - 1)
		labels := make([]string, len(curve))
		for i, g := range curve {
			labels[i] = g.String()
		}
		out = append(out, tierResponse{Tier: t, Curve: curve, Labels: labels})
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"tiers": out})
}
