package services

import (
	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/models"
)

type MatchUpdatedPayload struct {
	TournamentID int              `json:"tournament_id"`
	Change       *brackets.Change `json:"change"`
	Matches      []*models.Match  `json:"matches"`
}

type TournamentCompletedPayload struct {
	TournamentID int                         `json:"tournament_id"`
	ChampionID   *int                        `json:"champion_id,omitempty"`
	Champion     *models.Participant         `json:"champion,omitempty"`
	Standings    []models.TournamentStanding `json:"standings"`
	Ratings      []models.RatingChange       `json:"rating_changes"`
	Message      string                      `json:"message"`
}

func (s *tournamentService) broadcast(tournamentID int, messageType string, payload interface{}) {
	if s.notifier == nil {
		return
	}
	room := brackets.TournamentRoom(tournamentID)
	s.notifier.BroadcastToRoom(room, brackets.WebSocketMessage{
		Type:    messageType,
		Payload: payload,
		RoomID:  room,
	})
}

func (s *tournamentService) publish(st *tournamentState, change *brackets.Change, touched []*models.Match) {
	id := st.tournament.ID
	s.broadcast(id, brackets.MessageMatchUpdated, MatchUpdatedPayload{
		TournamentID: id,
		Change:       change,
		Matches:      touched,
	})
	if change.Status != models.StatusCompleted {
		return
	}

	payload := TournamentCompletedPayload{
		TournamentID: id,
		ChampionID:   change.Champion,
		Standings:    st.standings(),
		Ratings:      st.ratingChanges(),
		Message:      "tournament completed",
	}
	if change.Champion != nil {
		if p, ok := st.participants[*change.Champion]; ok {
			payload.Champion = &p
			payload.Message = p.Name + " won the tournament"
		}
	}
	s.broadcast(id, brackets.MessageTournamentCompleted, payload)
}
