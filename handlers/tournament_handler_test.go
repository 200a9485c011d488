package handlers

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/ranking"
	"github.com/saboarena/tournament-engine/repositories"
	"github.com/saboarena/tournament-engine/services"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type testServer struct {
	router http.Handler
	repo   *repositories.MemoryTournamentRepository
}

func newTestServer(t *testing.T, players int) *testServer {
	t.Helper()
	repo := repositories.NewMemoryTournamentRepository()
	repo.AddTournament(models.Tournament{ID: 1, Name: "Sunday 9-ball", Status: models.StatusRegistration, RaceTo: 8})
	registered := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)
	for i := 1; i <= players; i++ {
		rank := ranking.All[len(ranking.All)-i]
		repo.AddRegistrant(1, models.Participant{
			ID:           100 + i,
			Name:         fmt.Sprintf("player %d", i),
			Rank:         &rank,
			RegisteredAt: registered.Add(time.Duration(i) * time.Minute),
		})
	}

	calc, err := handicap.NewCalculator(handicap.Config{})
	require.NoError(t, err)
	svc, err := services.NewTournamentService(services.TournamentServiceConfig{
		Repository: repo,
		Generator:  brackets.NewDoubleEliminationGenerator(brackets.Options{}, nil),
		Calculator: calc,
		Logger:     discardLogger(),
	})
	require.NoError(t, err)

	th := NewTournamentHandler(svc, discardLogger())
	hh := NewHandicapHandler(svc, discardLogger())

	r := chi.NewRouter()
	r.Get("/handicap/tiers", hh.TiersHandler)
	r.Post("/handicap/calculate", hh.CalculateHandler)
	r.Route("/tournaments/{tournamentID}", func(r chi.Router) {
		r.Get("/", th.GetTournamentHandler)
		r.Get("/bracket", th.GetBracketHandler)
		r.Get("/standings", th.StandingsHandler)
		r.Get("/progress", th.ProgressHandler)
		r.Get("/ratings", th.RatingsHandler)
		r.Get("/matches/{matchID}/handicap", th.MatchHandicapHandler)
		r.Post("/bracket", th.GenerateBracketHandler)
		r.Post("/matches/{matchID}/start", th.StartMatchHandler)
		r.Post("/matches/{matchID}/result", th.ReportResultHandler)
		r.Post("/matches/{matchID}/reset", th.ResetMatchHandler)
		r.Post("/cancel", th.CancelTournamentHandler)
		r.Post("/archive", th.ArchiveTournamentHandler)
	})
	return &testServer{router: r, repo: repo}
}

func (s *testServer) do(t *testing.T, method, path, body string) (int, map[string]json.RawMessage) {
	t.Helper()
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	var out map[string]json.RawMessage
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return rec.Code, out
}

func TestGenerateBracketEndpoint(t *testing.T) {
	srv := newTestServer(t, 4)

	code, body := srv.do(t, http.MethodPost, "/tournaments/1/bracket", "")
	require.Equal(t, http.StatusCreated, code, string(body["error"]))
	var b models.Bracket
	require.NoError(t, json.Unmarshal(body["bracket"], &b))
	assert.Equal(t, []int{101, 102, 103, 104}, b.Seeds)
	assert.Equal(t, models.StatusInProgress, b.Status)

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/bracket", "")
	assert.Equal(t, http.StatusConflict, code)

	code, body = srv.do(t, http.MethodGet, "/tournaments/1/bracket", "")
	require.Equal(t, http.StatusOK, code)
	assert.Contains(t, string(body["bracket"]), `"WR1-M1"`)
}

func TestGenerateBracketEndpointValidation(t *testing.T) {
	tests := []struct {
		name    string
		players int
		path    string
		body    string
		want    int
	}{
		{"unknown seeding mode", 4, "/tournaments/1/bracket", `{"seeding_mode":"alphabetical"}`, http.StatusUnprocessableEntity},
		{"unknown field", 4, "/tournaments/1/bracket", `{"mode":"random"}`, http.StatusBadRequest},
		{"single player", 1, "/tournaments/1/bracket", "", http.StatusUnprocessableEntity},
		{"unknown tournament", 4, "/tournaments/9/bracket", "", http.StatusNotFound},
		{"bad id", 4, "/tournaments/abc/bracket", "", http.StatusBadRequest},
		{"random mode", 4, "/tournaments/1/bracket", `{"seeding_mode":"random"}`, http.StatusCreated},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv := newTestServer(t, tt.players)
			code, body := srv.do(t, http.MethodPost, tt.path, tt.body)
			assert.Equal(t, tt.want, code, string(body["error"]))
		})
	}
}

func TestReportResultEndpoint(t *testing.T) {
	srv := newTestServer(t, 4)
	code, body := srv.do(t, http.MethodPost, "/tournaments/1/bracket", "")
	require.Equal(t, http.StatusCreated, code)
	var generated models.Bracket
	require.NoError(t, json.Unmarshal(body["bracket"], &generated))

	tests := []struct {
		name  string
		match string
		body  string
		want  int
	}{
		{"missing winner", "WR1-M1", `{}`, http.StatusUnprocessableEntity},
		{"winner not in match", "WR1-M1", `{"winner_id":999}`, http.StatusUnprocessableEntity},
		{"winner with lower score", "WR1-M1", `{"winner_id":101,"score":{"a":2,"b":8}}`, http.StatusUnprocessableEntity},
		{"match not ready", "WR2-M1", `{"winner_id":101}`, http.StatusConflict},
		{"unknown match", "WR9-M9", `{"winner_id":101}`, http.StatusNotFound},
		{"empty body", "WR1-M1", "", http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := srv.do(t, http.MethodPost, "/tournaments/1/matches/"+tt.match+"/result", tt.body)
			assert.Equal(t, tt.want, code, string(body["error"]))
		})
	}

	code, body = srv.do(t, http.MethodPost, "/tournaments/1/matches/WR1-M1/result", `{"winner_id":101,"score":{"a":8,"b":3}}`)
	require.Equal(t, http.StatusOK, code, string(body["error"]))
	var change brackets.Change
	require.NoError(t, json.Unmarshal(body["change"], &change))
	assert.Contains(t, change.MatchIDs, "WR1-M1")
	assert.Equal(t, generated.Version+1, change.Version)

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/matches/WR1-M1/result", `{"winner_id":101,"score":{"a":8,"b":3}}`)
	assert.Equal(t, http.StatusConflict, code, "a second report is rejected")

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/matches/WR1-M1/reset", "")
	assert.Equal(t, http.StatusOK, code)

	code, body = srv.do(t, http.MethodGet, "/tournaments/1/progress", "")
	require.Equal(t, http.StatusOK, code)
	var progress models.Progress
	require.NoError(t, json.Unmarshal(body["progress"], &progress))
	assert.Equal(t, 0, progress.Completed)
}

func TestStartAndCancelEndpoints(t *testing.T) {
	srv := newTestServer(t, 4)
	code, _ := srv.do(t, http.MethodPost, "/tournaments/1/bracket", "")
	require.Equal(t, http.StatusCreated, code)

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/matches/WR1-M2/start", "")
	assert.Equal(t, http.StatusOK, code)
	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/matches/WR1-M2/start", "")
	assert.Equal(t, http.StatusConflict, code)

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/cancel", "")
	assert.Equal(t, http.StatusOK, code)

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/matches/WR1-M1/result", `{"winner_id":101}`)
	assert.Equal(t, http.StatusConflict, code, "cancelled tournaments take no results")

	code, body := srv.do(t, http.MethodGet, "/tournaments/1", "")
	require.Equal(t, http.StatusOK, code)
	var tour models.Tournament
	require.NoError(t, json.Unmarshal(body["tournament"], &tour))
	assert.Equal(t, models.StatusCancelled, tour.Status)

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/archive", "")
	assert.Equal(t, http.StatusServiceUnavailable, code, "no archive storage configured")
}

func TestStandingsEndpoint(t *testing.T) {
	srv := newTestServer(t, 4)

	code, _ := srv.do(t, http.MethodGet, "/tournaments/1/standings", "")
	assert.Equal(t, http.StatusNotFound, code, "no bracket yet")

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/bracket", "")
	require.Equal(t, http.StatusCreated, code)

	code, body := srv.do(t, http.MethodGet, "/tournaments/1/standings", "")
	require.Equal(t, http.StatusOK, code)
	var standings []models.TournamentStanding
	require.NoError(t, json.Unmarshal(body["standings"], &standings))
	assert.Len(t, standings, 4)
}

func TestRatingsEndpoint(t *testing.T) {
	srv := newTestServer(t, 4)

	code, _ := srv.do(t, http.MethodGet, "/tournaments/1/ratings", "")
	assert.Equal(t, http.StatusNotFound, code, "no bracket yet")

	code, _ = srv.do(t, http.MethodPost, "/tournaments/1/bracket", "")
	require.Equal(t, http.StatusCreated, code)
	code, body := srv.do(t, http.MethodPost, "/tournaments/1/matches/WR1-M1/result", `{"winner_id":101,"score":{"a":8,"b":3}}`)
	require.Equal(t, http.StatusOK, code, string(body["error"]))

	code, body = srv.do(t, http.MethodGet, "/tournaments/1/ratings", "")
	require.Equal(t, http.StatusOK, code)
	var changes []models.RatingChange
	require.NoError(t, json.Unmarshal(body["ratings"], &changes))
	require.Len(t, changes, 4)

	played := map[int]models.RatingChange{}
	for _, c := range changes {
		if c.Matches > 0 {
			played[c.ParticipantID] = c
		}
	}
	require.Len(t, played, 2)
	winner, ok := played[101]
	require.True(t, ok)
	assert.Positive(t, winner.Delta)
	for id, c := range played {
		if id != 101 {
			assert.Negative(t, c.Delta)
		}
	}
}

func TestMatchHandicapEndpoint(t *testing.T) {
	srv := newTestServer(t, 4)
	code, _ := srv.do(t, http.MethodPost, "/tournaments/1/bracket", "")
	require.Equal(t, http.StatusCreated, code)

	code, body := srv.do(t, http.MethodGet, "/tournaments/1/matches/WR1-M1/handicap", "")
	require.Equal(t, http.StatusOK, code, string(body["error"]))
	var mh services.MatchHandicap
	require.NoError(t, json.Unmarshal(body["handicap"], &mh))
	assert.False(t, mh.Drift)
	require.NotNil(t, mh.Stored)
	assert.Equal(t, *mh.Stored, mh.Live)

	code, _ = srv.do(t, http.MethodGet, "/tournaments/1/matches/WR2-M1/handicap", "")
	assert.Equal(t, http.StatusConflict, code)
}

func TestCalculateHandicapEndpoint(t *testing.T) {
	srv := newTestServer(t, 0)

	tests := []struct {
		name string
		body string
		want int
	}{
		{"stake", `{"challenger_rank":"E+","opponent_rank":"K","stake":8}`, http.StatusOK},
		{"bet points", `{"challenger_rank":"H","opponent_rank":"H","bet_points":300}`, http.StatusOK},
		{"unknown bet", `{"challenger_rank":"H","opponent_rank":"H","bet_points":150}`, http.StatusUnprocessableEntity},
		{"invalid rank", `{"challenger_rank":"Z","opponent_rank":"K","stake":8}`, http.StatusUnprocessableEntity},
		{"missing rank", `{"challenger_rank":"I","stake":8}`, http.StatusUnprocessableEntity},
		{"no stake", `{"challenger_rank":"I","opponent_rank":"K"}`, http.StatusUnprocessableEntity},
		{"both stake and bet", `{"challenger_rank":"I","opponent_rank":"K","stake":8,"bet_points":100}`, http.StatusUnprocessableEntity},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			code, body := srv.do(t, http.MethodPost, "/handicap/calculate", tt.body)
			assert.Equal(t, tt.want, code, string(body["error"]))
		})
	}

	code, body := srv.do(t, http.MethodPost, "/handicap/calculate", `{"challenger_rank":"E+","opponent_rank":"K","stake":8}`)
	require.Equal(t, http.StatusOK, code)
	var res handicap.Result
	require.NoError(t, json.Unmarshal(body["handicap"], &res))
	assert.Equal(t, handicap.SideChallenger, res.Stronger)
	assert.Equal(t, len(ranking.All)-1, res.Distance)
}

func TestTiersEndpoint(t *testing.T) {
	srv := newTestServer(t, 0)
	code, body := srv.do(t, http.MethodGet, "/handicap/tiers", "")
	require.Equal(t, http.StatusOK, code)

	var tiers []struct {
		BetPoints int      `json:"bet_points"`
		RaceTo    int      `json:"race_to"`
		Curve     []string `json:"curve"`
	}
	require.NoError(t, json.Unmarshal(body["tiers"], &tiers))
	require.Len(t, tiers, len(handicap.DefaultTiers))
	assert.Equal(t, 100, tiers[0].BetPoints)
	assert.Len(t, tiers[0].Curve, len(ranking.All))
	assert.Equal(t, "0", tiers[0].Curve[0])
	assert.Equal(t, "0.5", tiers[0].Curve[1])
}
