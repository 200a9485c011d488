package handlers

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/seeding"
	"github.com/saboarena/tournament-engine/services"
)

type TournamentHandler struct {
	responder
	tournamentService services.TournamentService
}

func NewTournamentHandler(ts services.TournamentService, logger *slog.Logger) *TournamentHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &TournamentHandler{
		responder:         responder{logger: logger},
		tournamentService: ts,
	}
}

type generateBracketRequest struct {
	SeedingMode string `json:"seeding_mode"`
}

type reportResultRequest struct {
	WinnerID int           `json:"winner_id"`
	Score    *models.Score `json:"score"`
}

func (h *TournamentHandler) tournamentID(w http.ResponseWriter, r *http.Request) (int, bool) {
	id, err := urlParamInt(r, "tournamentID")
	if err != nil {
		h.badRequestResponse(w, r, err)
		return 0, false
	}
	return id, true
}

// GetTournamentHandler handles GET /tournaments/{tournamentID}.
func (h *TournamentHandler) GetTournamentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	t, err := h.tournamentService.GetTournament(r.Context(), id)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"tournament": t})
}

// GenerateBracketHandler handles POST /tournaments/{tournamentID}/bracket. The
// body is optional; without a seeding_mode the configured default is used.
func (h *TournamentHandler) GenerateBracketHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	var input generateBracketRequest
	if err := readOptionalJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	var mode seeding.Mode
	if input.SeedingMode != "" {
		parsed, err := seeding.ParseMode(input.SeedingMode)
		if err != nil {
			h.failedValidationResponse(w, r, map[string]string{"seeding_mode": err.Error()})
			return
		}
		mode = parsed
	}

	b, err := h.tournamentService.GenerateBracket(r.Context(), id, mode)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusCreated, jsonResponse{"bracket": b})
}

func (h *TournamentHandler) GetBracketHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	b, err := h.tournamentService.GetBracket(r.Context(), id)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"bracket": b})
}

func (h *TournamentHandler) StandingsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	standings, err := h.tournamentService.Standings(r.Context(), id)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"standings": standings})
}

func (h *TournamentHandler) ProgressHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	progress, err := h.tournamentService.Progress(r.Context(), id)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"progress": progress})
}

// RatingsHandler handles GET /tournaments/{tournamentID}/ratings.
func (h *TournamentHandler) RatingsHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	changes, err := h.tournamentService.RatingChanges(r.Context(), id)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"ratings": changes})
}

// StartMatchHandler handles POST /tournaments/{tournamentID}/matches/{matchID}/start.
func (h *TournamentHandler) StartMatchHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	change, err := h.tournamentService.StartMatch(r.Context(), id, chi.URLParam(r, "matchID"))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"change": change})
}

// ReportResultHandler handles POST /tournaments/{tournamentID}/matches/{matchID}/result.
func (h *TournamentHandler) ReportResultHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	var input reportResultRequest
	if err := readJSON(w, r, &input); err != nil {
		h.badRequestResponse(w, r, err)
		return
	}
	if input.WinnerID <= 0 {
		h.failedValidationResponse(w, r, map[string]string{"winner_id": "must be a positive participant id"})
		return
	}

	change, err := h.tournamentService.ReportResult(r.Context(), id, chi.URLParam(r, "matchID"), input.WinnerID, input.Score)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"change": change})
}

// ResetMatchHandler handles POST /tournaments/{tournamentID}/matches/{matchID}/reset.
func (h *TournamentHandler) ResetMatchHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	change, err := h.tournamentService.ResetMatch(r.Context(), id, chi.URLParam(r, "matchID"))
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"change": change})
}

func (h *TournamentHandler) CancelTournamentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	if err := h.tournamentService.CancelTournament(r.Context(), id); err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"status": models.StatusCancelled})
}

func (h *TournamentHandler) ArchiveTournamentHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	t, err := h.tournamentService.ArchiveTournament(r.Context(), id)
	if err != nil {
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"tournament": t})
}

// MatchHandicapHandler handles GET /tournaments/{tournamentID}/matches/{matchID}/handicap.
// A stored handicap that no longer matches the live configuration is reported
// as a server error and logged.
func (h *TournamentHandler) MatchHandicapHandler(w http.ResponseWriter, r *http.Request) {
	id, ok := h.tournamentID(w, r)
	if !ok {
		return
	}
	matchID := chi.URLParam(r, "matchID")
	result, err := h.tournamentService.MatchHandicap(r.Context(), id, matchID)
	if err != nil {
		if result != nil {
			h.logger.Warn("stored handicap differs from live calculation",
				slog.Int("tournament_id", id),
				slog.String("match_id", matchID),
				slog.Any("stored", result.Stored),
				slog.Any("live", result.Live))
		}
		h.mapServiceErrorToHTTP(w, r, err)
		return
	}
	h.writeOrFail(w, r, http.StatusOK, jsonResponse{"handicap": result})
}
