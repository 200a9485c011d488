package repositories

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/saboarena/tournament-engine/models"
)

var (
	ErrTournamentNotFound = errors.New("tournament not found")
	ErrBracketNotFound    = errors.New("bracket not found")
	ErrBracketExists      = errors.New("bracket already exists for tournament")
	ErrMatchRowNotFound   = errors.New("bracket match not found")
	ErrVersionConflict    = errors.New("bracket was modified by another writer")
	ErrInvalidRegistrant  = errors.New("registrant profile is invalid")
)

// TournamentRepository is everything the bracket service needs from storage.
type TournamentRepository interface {
	GetTournament(ctx context.Context, id int) (*models.Tournament, error)
	ListFinishedUnarchived(ctx context.Context) ([]*models.Tournament, error)
	MarkArchived(ctx context.Context, id int, key string, at time.Time) error
	LoadConfirmedRegistrants(ctx context.Context, tournamentID int) ([]models.Participant, error)
	LoadTopology(ctx context.Context, tournamentID int) (*models.Bracket, error)
	// RunInTx commits the writes made through tx only when fn returns nil.
	RunInTx(ctx context.Context, fn func(tx TournamentTx) error) error
}

type TournamentTx interface {
	PersistTopology(ctx context.Context, b *models.Bracket) error
	SaveMatches(ctx context.Context, tournamentID int, matches []*models.Match) error
	PersistMatchResult(ctx context.Context, tournamentID int, m *models.Match, version int64) error
	// UpdateBracketState fails with ErrVersionConflict unless the stored
	// version still equals expectedVersion.
	UpdateBracketState(ctx context.Context, b *models.Bracket, expectedVersion int64) error
	UpdateTournamentStatus(ctx context.Context, tournamentID int, status models.TournamentStatus) error
}

type postgresTournamentRepository struct {
	db *sql.DB
}

func NewPostgresTournamentRepository(db *sql.DB) TournamentRepository {
	return &postgresTournamentRepository{db: db}
}

const tournamentColumns = `id, name, organizer_id, status, race_to, max_participants,
	start_date, created_at, archived_at, archive_key`

func scanTournament(row interface{ Scan(...interface{}) error }) (*models.Tournament, error) {
	t := &models.Tournament{}
	var startDate, archivedAt sql.NullTime
	var archiveKey sql.NullString
	if err := row.Scan(
		&t.ID, &t.Name, &t.OrganizerID, &t.Status, &t.RaceTo, &t.MaxParticipants,
		&startDate, &t.CreatedAt, &archivedAt, &archiveKey,
	); err != nil {
		return nil, err
	}
	if startDate.Valid {
		t.StartDate = &startDate.Time
	}
	if archivedAt.Valid {
		t.ArchivedAt = &archivedAt.Time
	}
	t.ArchiveKey = stringPtr(archiveKey)
	return t, nil
}

func (r *postgresTournamentRepository) GetTournament(ctx context.Context, id int) (*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + ` FROM tournaments WHERE id = $1`
	t, err := scanTournament(r.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrTournamentNotFound
		}
		return nil, fmt.Errorf("failed to get tournament %d: %w", id, err)
	}
	return t, nil
}

func (r *postgresTournamentRepository) ListFinishedUnarchived(ctx context.Context) ([]*models.Tournament, error) {
	query := `SELECT ` + tournamentColumns + `
		FROM tournaments
		WHERE status = ANY($1) AND archived_at IS NULL
		ORDER BY id`
	finished := pq.Array([]string{string(models.StatusCompleted), string(models.StatusCancelled)})

	rows, err := r.db.QueryContext(ctx, query, finished)
	if err != nil {
		return nil, fmt.Errorf("failed to list finished tournaments: %w", err)
	}
	defer rows.Close()

	var tournaments []*models.Tournament
	for rows.Next() {
		t, err := scanTournament(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan finished tournament: %w", err)
		}
		tournaments = append(tournaments, t)
	}
	if err = rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating finished tournaments: %w", err)
	}
	return tournaments, nil
}

func (r *postgresTournamentRepository) MarkArchived(ctx context.Context, id int, key string, at time.Time) error {
	query := `UPDATE tournaments SET archived_at = $1, archive_key = $2 WHERE id = $3`
	result, err := r.db.ExecContext(ctx, query, at, key, id)
	if err != nil {
		return fmt.Errorf("failed to mark tournament %d archived: %w", id, err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func (r *postgresTournamentRepository) LoadTopology(ctx context.Context, tournamentID int) (*models.Bracket, error) {
	return loadBracket(ctx, r.db, tournamentID)
}

func (r *postgresTournamentRepository) RunInTx(ctx context.Context, fn func(tx TournamentTx) error) (txErr error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if p := recover(); p != nil {
			_ = tx.Rollback()
			panic(p)
		} else if txErr != nil {
			if rbErr := tx.Rollback(); rbErr != nil {
				txErr = fmt.Errorf("transaction processing error: %w (rollback also failed: %v)", txErr, rbErr)
			}
		} else if cErr := tx.Commit(); cErr != nil {
			txErr = fmt.Errorf("failed to commit transaction: %w", cErr)
		}
	}()

	txErr = fn(&postgresTournamentTx{exec: tx})
	return txErr
}

type postgresTournamentTx struct {
	exec SQLExecutor
}

func (t *postgresTournamentTx) UpdateTournamentStatus(ctx context.Context, tournamentID int, status models.TournamentStatus) error {
	query := `UPDATE tournaments SET status = $1 WHERE id = $2`
	result, err := t.exec.ExecContext(ctx, query, status, tournamentID)
	if err != nil {
		return handleBracketError(err)
	}
	return checkAffectedRows(result, ErrTournamentNotFound)
}

func handleBracketError(err error) error {
	if err == nil {
		return nil
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		switch pqErr.Code {
		case "23505":
			if pqErr.Constraint == "brackets_pkey" || pqErr.Constraint == "bracket_matches_pkey" {
				return ErrBracketExists
			}
		case "23503":
			switch pqErr.Constraint {
			case "brackets_tournament_id_fkey":
				return ErrTournamentNotFound
			case "bracket_matches_tournament_id_fkey", "match_results_tournament_id_fkey":
				return ErrBracketNotFound
			}
		}
	}
	return err
}
