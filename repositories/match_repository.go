package repositories

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/lib/pq"
	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/models"
)

const matchColumns = `match_uid, round_code, match_number,
	slot_a_seed, slot_a_feed_uid, slot_a_feed_outcome, slot_a_state, slot_a_participant,
	slot_b_seed, slot_b_feed_uid, slot_b_feed_outcome, slot_b_state, slot_b_participant,
	winner_to_uid, winner_to_slot, loser_to_uid, loser_to_slot,
	status, winner_id, loser_id, score_a, score_b, is_bye, handicap, started_at, completed_at`

func (t *postgresTournamentTx) PersistTopology(ctx context.Context, b *models.Bracket) error {
	eliminations, err := json.Marshal(b.Eliminations)
	if err != nil {
		return fmt.Errorf("failed to encode eliminations: %w", err)
	}
	_, err = t.exec.ExecContext(ctx, `
		INSERT INTO brackets (
			tournament_id, participant_count, size, winners_rounds, status, version, seeds, champion_id, eliminations
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		b.TournamentID, b.ParticipantCount, b.Size, b.WinnersRounds, b.Status, b.Version,
		pq.Array(toInt64s(b.Seeds)), b.Champion, eliminations,
	)
	if err != nil {
		return handleBracketError(err)
	}

	query := `INSERT INTO bracket_matches (tournament_id, position, ` + matchColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15,
			$16, $17, $18, $19, $20, $21, $22, $23, $24, $25, $26, $27, $28)`
	for i, m := range b.Matches {
		args, err := matchArgs(m)
		if err != nil {
			return err
		}
		args = append([]interface{}{b.TournamentID, i}, args...)
		if _, err := t.exec.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to insert match %s: %w", m.ID, handleBracketError(err))
		}
	}
	return nil
}

// SaveMatches writes the runtime state of already persisted matches.
func (t *postgresTournamentTx) SaveMatches(ctx context.Context, tournamentID int, matches []*models.Match) error {
	query := `
		UPDATE bracket_matches SET
			slot_a_state = $3, slot_a_participant = $4,
			slot_b_state = $5, slot_b_participant = $6,
			status = $7, winner_id = $8, loser_id = $9, score_a = $10, score_b = $11,
			is_bye = $12, handicap = $13, started_at = $14, completed_at = $15
		WHERE tournament_id = $1 AND match_uid = $2`
	for _, m := range matches {
		hc, err := encodeHandicap(m.Handicap)
		if err != nil {
			return err
		}
		scoreA, scoreB := scoreArgs(m.Score)
		result, err := t.exec.ExecContext(ctx, query,
			tournamentID, m.ID,
			m.Slots[models.SlotA].State, m.Slots[models.SlotA].ParticipantID,
			m.Slots[models.SlotB].State, m.Slots[models.SlotB].ParticipantID,
			m.Status, m.WinnerID, m.LoserID, scoreA, scoreB,
			m.IsBye, hc, m.StartedAt, m.CompletedAt,
		)
		if err != nil {
			return fmt.Errorf("failed to save match %s: %w", m.ID, err)
		}
		if err := checkAffectedRows(result, ErrMatchRowNotFound); err != nil {
			return fmt.Errorf("%w: %s", err, m.ID)
		}
	}
	return nil
}

func (t *postgresTournamentTx) PersistMatchResult(ctx context.Context, tournamentID int, m *models.Match, version int64) error {
	if m.WinnerID == nil {
		return fmt.Errorf("match %s has no winner to record", m.ID)
	}
	scoreA, scoreB := scoreArgs(m.Score)
	_, err := t.exec.ExecContext(ctx, `
		INSERT INTO match_results (tournament_id, match_uid, winner_id, loser_id, score_a, score_b, bracket_version)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		tournamentID, m.ID, *m.WinnerID, m.LoserID, scoreA, scoreB, version,
	)
	return handleBracketError(err)
}

func (t *postgresTournamentTx) UpdateBracketState(ctx context.Context, b *models.Bracket, expectedVersion int64) error {
	eliminations, err := json.Marshal(b.Eliminations)
	if err != nil {
		return fmt.Errorf("failed to encode eliminations: %w", err)
	}
	result, err := t.exec.ExecContext(ctx, `
		UPDATE brackets SET
			status = $1, version = $2, champion_id = $3, eliminations = $4, updated_at = now()
		WHERE tournament_id = $5 AND version = $6`,
		b.Status, b.Version, b.Champion, eliminations, b.TournamentID, expectedVersion,
	)
	if err != nil {
		return fmt.Errorf("failed to update bracket %d: %w", b.TournamentID, err)
	}
	return checkAffectedRows(result, ErrVersionConflict)
}

func loadBracket(ctx context.Context, exec SQLExecutor, tournamentID int) (*models.Bracket, error) {
	var (
		participantCount, size, rounds int
		status                         models.TournamentStatus
		version                        int64
		seeds                          []int64
		champion                       sql.NullInt64
		eliminations                   []byte
	)
	err := exec.QueryRowContext(ctx, `
		SELECT participant_count, size, winners_rounds, status, version, seeds, champion_id, eliminations
		FROM brackets WHERE tournament_id = $1`, tournamentID,
	).Scan(&participantCount, &size, &rounds, &status, &version, pq.Array(&seeds), &champion, &eliminations)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrBracketNotFound
		}
		return nil, fmt.Errorf("failed to load bracket %d: %w", tournamentID, err)
	}

	b := models.NewBracket(tournamentID, participantCount, size, rounds)
	b.Status = status
	b.Version = version
	b.Champion = intPtr(champion)
	b.Seeds = make([]int, len(seeds))
	for i, s := range seeds {
		b.Seeds[i] = int(s)
	}
	if len(eliminations) > 0 {
		if err := json.Unmarshal(eliminations, &b.Eliminations); err != nil {
			return nil, fmt.Errorf("failed to decode eliminations for bracket %d: %w", tournamentID, err)
		}
	}

	rows, err := exec.QueryContext(ctx, `SELECT `+matchColumns+`
		FROM bracket_matches WHERE tournament_id = $1 ORDER BY position`, tournamentID)
	if err != nil {
		return nil, fmt.Errorf("failed to load matches for bracket %d: %w", tournamentID, err)
	}
	defer rows.Close()

	for rows.Next() {
		m, err := scanMatch(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan match of bracket %d: %w", tournamentID, err)
		}
		b.AddMatch(m)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating matches of bracket %d: %w", tournamentID, err)
	}
	return b, nil
}

func matchArgs(m *models.Match) ([]interface{}, error) {
	hc, err := encodeHandicap(m.Handicap)
	if err != nil {
		return nil, err
	}
	args := []interface{}{m.ID, m.Round.Code(), m.Number}
	for _, s := range m.Slots {
		var feedUID, feedOutcome sql.NullString
		if s.Feed != nil {
			feedUID = nullString(s.Feed.MatchID)
			feedOutcome = nullString(string(s.Feed.Outcome))
		}
		seed := sql.NullInt64{Int64: int64(s.Seed), Valid: s.Seed > 0}
		args = append(args, seed, feedUID, feedOutcome, s.State, s.ParticipantID)
	}
	for _, d := range []*models.Destination{m.WinnerTo, m.LoserTo} {
		if d == nil {
			args = append(args, nil, nil)
			continue
		}
		args = append(args, d.MatchID, int(d.Slot))
	}
	scoreA, scoreB := scoreArgs(m.Score)
	args = append(args, m.Status, m.WinnerID, m.LoserID, scoreA, scoreB, m.IsBye, hc, m.StartedAt, m.CompletedAt)
	return args, nil
}

func scanMatch(rows *sql.Rows) (*models.Match, error) {
	var (
		m                      models.Match
		roundCode              int
		seeds                  [2]sql.NullInt64
		feedUIDs, feedOutcomes [2]sql.NullString
		states                 [2]models.SlotState
		participants           [2]sql.NullInt64
		winnerTo, loserTo      sql.NullString
		winnerSlot, loserSlot  sql.NullInt64
		winnerID, loserID      sql.NullInt64
		scoreA, scoreB         sql.NullInt64
		hc                     []byte
		startedAt, completedAt sql.NullTime
	)
	if err := rows.Scan(
		&m.ID, &roundCode, &m.Number,
		&seeds[0], &feedUIDs[0], &feedOutcomes[0], &states[0], &participants[0],
		&seeds[1], &feedUIDs[1], &feedOutcomes[1], &states[1], &participants[1],
		&winnerTo, &winnerSlot, &loserTo, &loserSlot,
		&m.Status, &winnerID, &loserID, &scoreA, &scoreB, &m.IsBye, &hc, &startedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	round, err := models.RoundFromCode(roundCode)
	if err != nil {
		return nil, err
	}
	m.Round = round
	for i := range m.Slots {
		m.Slots[i] = models.Slot{
			Seed:          int(seeds[i].Int64),
			State:         states[i],
			ParticipantID: intPtr(participants[i]),
		}
		if feedUIDs[i].Valid {
			m.Slots[i].Feed = &models.Feed{MatchID: feedUIDs[i].String, Outcome: models.Outcome(feedOutcomes[i].String)}
		}
	}
	if winnerTo.Valid {
		m.WinnerTo = &models.Destination{MatchID: winnerTo.String, Slot: models.SlotPosition(winnerSlot.Int64)}
	}
	if loserTo.Valid {
		m.LoserTo = &models.Destination{MatchID: loserTo.String, Slot: models.SlotPosition(loserSlot.Int64)}
	}
	m.WinnerID = intPtr(winnerID)
	m.LoserID = intPtr(loserID)
	if scoreA.Valid && scoreB.Valid {
		m.Score = &models.Score{A: int(scoreA.Int64), B: int(scoreB.Int64)}
	}
	if len(hc) > 0 {
		var res handicap.Result
		if err := json.Unmarshal(hc, &res); err != nil {
			return nil, fmt.Errorf("failed to decode handicap of %s: %w", m.ID, err)
		}
		m.Handicap = &res
	}
	if startedAt.Valid {
		m.StartedAt = &startedAt.Time
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.Time
	}
	return &m, nil
}

func encodeHandicap(h *handicap.Result) ([]byte, error) {
	if h == nil {
		return nil, nil
	}
	b, err := json.Marshal(h)
	if err != nil {
		return nil, fmt.Errorf("failed to encode handicap: %w", err)
	}
	return b, nil
}

func scoreArgs(s *models.Score) (a, b sql.NullInt64) {
	if s == nil {
		return a, b
	}
	return sql.NullInt64{Int64: int64(s.A), Valid: true}, sql.NullInt64{Int64: int64(s.B), Valid: true}
}

func toInt64s(in []int) []int64 {
	out := make([]int64, len(in))
	for i, v := range in {
		out[i] = int64(v)
	}
	return out
}
