package repositories

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/ranking"
)

// RegistrationConfirmed is the only registration status that enters a bracket.
const RegistrationConfirmed = "confirmed"

func (r *postgresTournamentRepository) LoadConfirmedRegistrants(ctx context.Context, tournamentID int) ([]models.Participant, error) {
	query := `
		SELECT p.user_id, p.display_name, p.verified_rank, p.current_rank, p.rank, p.elo, tr.registration_date
		FROM tournament_registrations tr
		JOIN profiles p ON p.user_id = tr.user_id
		WHERE tr.tournament_id = $1 AND tr.status = $2
		ORDER BY tr.registration_date, p.user_id`

	rows, err := r.db.QueryContext(ctx, query, tournamentID, RegistrationConfirmed)
	if err != nil {
		return nil, fmt.Errorf("failed to load registrants of tournament %d: %w", tournamentID, err)
	}
	defer rows.Close()

	var participants []models.Participant
	for rows.Next() {
		var (
			p                         models.Participant
			verified, current, legacy sql.NullString
			elo                       sql.NullInt64
		)
		if err := rows.Scan(&p.ID, &p.Name, &verified, &current, &legacy, &elo, &p.RegisteredAt); err != nil {
			return nil, fmt.Errorf("failed to scan registrant: %w", err)
		}
		rank, err := ranking.Resolve(stringPtr(verified), stringPtr(current), stringPtr(legacy))
		if err != nil {
			return nil, fmt.Errorf("%w: user %d: %w", ErrInvalidRegistrant, p.ID, err)
		}
		p.Rank = rank
		p.EloScore = intPtr(elo)
		participants = append(participants, p)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating registrants of tournament %d: %w", tournamentID, err)
	}
	return participants, nil
}
