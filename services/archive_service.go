package services

import (
	"bytes"
	"compress/gzip"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/repositories"
)

const archiveContentType = "application/gzip"

// ArchiveSnapshot is the document written to archive storage.
type ArchiveSnapshot struct {
	Tournament   models.Tournament           `json:"tournament"`
	Bracket      *models.Bracket             `json:"bracket,omitempty"`
	Standings    []models.TournamentStanding `json:"standings,omitempty"`
	Participants []models.Participant        `json:"participants"`
	ArchivedAt   time.Time                   `json:"archived_at"`
}

// ArchiveKey returns the object key for a new archive of the tournament.
func ArchiveKey(tournamentID int) string {
	return fmt.Sprintf("archives/tournaments/%d/%s.json.gz", tournamentID, uuid.NewString())
}

// ArchiveTournament uploads a compressed snapshot of a completed or cancelled
// tournament and records where it went. Archiving twice is a no-op.
func (s *tournamentService) ArchiveTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	t, err := s.repo.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, handleRepositoryError(err, "failed to get tournament %d", tournamentID)
	}
	if !t.Status.Finished() {
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrArchiveNotAllowed, tournamentID, t.Status)
	}
	if t.ArchivedAt != nil {
		s.populateArchiveURL(t)
		return t, nil
	}
	if s.uploader == nil {
		return nil, ErrArchiveUnavailable
	}

	var (
		bracket      *models.Bracket
		participants []models.Participant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		b, err := s.repo.LoadTopology(gctx, tournamentID)
		if errors.Is(err, repositories.ErrBracketNotFound) {
			return nil
		}
		bracket = b
		return handleRepositoryError(err, "failed to load bracket of tournament %d", tournamentID)
	})
	g.Go(func() error {
		var err error
		participants, err = s.repo.LoadConfirmedRegistrants(gctx, tournamentID)
		return handleRepositoryError(err, "failed to load registrants of tournament %d", tournamentID)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	now := s.now()
	snapshot := ArchiveSnapshot{
		Tournament:   *t,
		Bracket:      bracket,
		Participants: participants,
		ArchivedAt:   now,
	}
	if bracket != nil {
		snapshot.Standings = newTournamentState(*t, bracket, participants).standings()
	}
	body, err := encodeArchive(snapshot)
	if err != nil {
		return nil, fmt.Errorf("failed to encode archive of tournament %d: %w", tournamentID, err)
	}

	key := ArchiveKey(tournamentID)
	res, err := s.uploader.Upload(ctx, key, archiveContentType, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to upload archive of tournament %d: %w", tournamentID, err)
	}
	if err := s.repo.MarkArchived(ctx, tournamentID, res.Key, now); err != nil {
		if delErr := s.uploader.Delete(ctx, res.Key); delErr != nil {
			s.logger.Warn("orphaned archive object",
				slog.Int("tournament_id", tournamentID),
				slog.String("key", res.Key),
				slog.Any("error", delErr))
		}
		return nil, handleRepositoryError(err, "failed to mark tournament %d archived", tournamentID)
	}

	t.ArchivedAt = &now
	t.ArchiveKey = &res.Key
	if res.Location != "" {
		t.ArchiveURL = &res.Location
	}
	s.evict(tournamentID)
	s.logger.Info("tournament archived",
		slog.Int("tournament_id", tournamentID),
		slog.String("key", res.Key),
		slog.Bool("has_bracket", bracket != nil))
	return t, nil
}

// ArchiveFinished archives every finished tournament that has not been
// archived yet and returns how many were archived. Failures do not stop the
// sweep; they are returned joined.
func (s *tournamentService) ArchiveFinished(ctx context.Context) (int, error) {
	if s.uploader == nil {
		return 0, ErrArchiveUnavailable
	}
	pending, err := s.repo.ListFinishedUnarchived(ctx)
	if err != nil {
		return 0, handleRepositoryError(err, "failed to list finished tournaments")
	}

	var (
		archived int
		errs     []error
	)
	for _, t := range pending {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		if _, err := s.ArchiveTournament(ctx, t.ID); err != nil {
			s.logger.Error("archive failed", slog.Int("tournament_id", t.ID), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		archived++
	}
	return archived, errors.Join(errs...)
}

func (s *tournamentService) populateArchiveURL(t *models.Tournament) {
	if t.ArchiveKey == nil || s.uploader == nil {
		return
	}
	if url := s.uploader.GetPublicURL(*t.ArchiveKey); url != "" {
		t.ArchiveURL = &url
	}
}

func encodeArchive(snapshot ArchiveSnapshot) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if err := json.NewEncoder(zw).Encode(snapshot); err != nil {
		return nil, err
	}
	if err := zw.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeArchive reads a snapshot written by ArchiveTournament.
func DecodeArchive(data []byte) (*ArchiveSnapshot, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	defer zr.Close()
	var snapshot ArchiveSnapshot
	if err := json.NewDecoder(zr).Decode(&snapshot); err != nil {
		return nil, err
	}
	if snapshot.Bracket != nil {
		snapshot.Bracket.Reindex()
		if err := brackets.ValidateWiring(snapshot.Bracket.Matches); err != nil {
			return nil, err
		}
	}
	return &snapshot, nil
}
