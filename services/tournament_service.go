package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/ranking"
	"github.com/saboarena/tournament-engine/repositories"
	"github.com/saboarena/tournament-engine/seeding"
	"github.com/saboarena/tournament-engine/storage"
)

const defaultRaceTo = 8

// Notifier delivers live bracket updates. *brackets.Hub implements it.
type Notifier interface {
	BroadcastToRoom(roomID string, message interface{})
}

type TournamentService interface {
	GetTournament(ctx context.Context, tournamentID int) (*models.Tournament, error)
	GenerateBracket(ctx context.Context, tournamentID int, mode seeding.Mode) (*models.Bracket, error)
	StartMatch(ctx context.Context, tournamentID int, matchID string) (*brackets.Change, error)
	ReportResult(ctx context.Context, tournamentID int, matchID string, winnerID int, score *models.Score) (*brackets.Change, error)
	ResetMatch(ctx context.Context, tournamentID int, matchID string) (*brackets.Change, error)
	CancelTournament(ctx context.Context, tournamentID int) error

	GetBracket(ctx context.Context, tournamentID int) (*models.Bracket, error)
	Standings(ctx context.Context, tournamentID int) ([]models.TournamentStanding, error)
	Progress(ctx context.Context, tournamentID int) (models.Progress, error)
	// RatingChanges reports the ELO each participant would gain or lose from
	// the matches decided so far.
	RatingChanges(ctx context.Context, tournamentID int) ([]models.RatingChange, error)

	MatchHandicap(ctx context.Context, tournamentID int, matchID string) (*MatchHandicap, error)
	CalculateHandicap(challenger, opponent *ranking.Rank, stake int) (handicap.Result, error)
	CalculateForBet(challenger, opponent *ranking.Rank, betPoints int) (handicap.Result, error)
	HandicapTiers() []handicap.Tier

	ArchiveTournament(ctx context.Context, tournamentID int) (*models.Tournament, error)
	ArchiveFinished(ctx context.Context) (int, error)
}

type TournamentServiceConfig struct {
	Repository repositories.TournamentRepository
	Generator  brackets.BracketGenerator
	Seeder     *seeding.Seeder
	Calculator *handicap.Calculator
	// Notifier and Uploader are optional.
	Notifier      Notifier
	Uploader      storage.FileUploader
	Logger        *slog.Logger
	SeedingMode   seeding.Mode
	DefaultRaceTo int
	Now           func() time.Time
}

// tournamentState is an immutable cached view of one tournament. Writers
// replace it as a whole after a successful commit.
type tournamentState struct {
	tournament   models.Tournament
	bracket      *models.Bracket
	participants map[int]models.Participant
}

type tournamentService struct {
	repo          repositories.TournamentRepository
	generator     brackets.BracketGenerator
	seeder        *seeding.Seeder
	calculator    *handicap.Calculator
	notifier      Notifier
	uploader      storage.FileUploader
	logger        *slog.Logger
	seedingMode   seeding.Mode
	defaultRaceTo int
	now           func() time.Time

	locks keyedMutex
	mu    sync.RWMutex
	cache map[int]*tournamentState
}

func NewTournamentService(cfg TournamentServiceConfig) (TournamentService, error) {
	if cfg.Repository == nil || cfg.Generator == nil || cfg.Calculator == nil {
		return nil, errors.New("tournament service requires a repository, a bracket generator and a handicap calculator")
	}
	s := &tournamentService{
		repo:          cfg.Repository,
		generator:     cfg.Generator,
		seeder:        cfg.Seeder,
		calculator:    cfg.Calculator,
		notifier:      cfg.Notifier,
		uploader:      cfg.Uploader,
		logger:        cfg.Logger,
		seedingMode:   cfg.SeedingMode,
		defaultRaceTo: cfg.DefaultRaceTo,
		now:           cfg.Now,
		cache:         make(map[int]*tournamentState),
	}
	if s.seeder == nil {
		s.seeder = seeding.New("")
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}
	if s.seedingMode == "" {
		s.seedingMode = seeding.ModeByRankDesc
	}
	if s.defaultRaceTo <= 0 {
		s.defaultRaceTo = defaultRaceTo
	}
	if s.now == nil {
		s.now = time.Now
	}
	return s, nil
}

func (s *tournamentService) GetTournament(ctx context.Context, tournamentID int) (*models.Tournament, error) {
	t, err := s.repo.GetTournament(ctx, tournamentID)
	if err != nil {
		return nil, handleRepositoryError(err, "failed to get tournament %d", tournamentID)
	}
	s.populateArchiveURL(t)
	return t, nil
}

// GenerateBracket seeds the confirmed registrants and stores the initialized
// bracket together with the tournament status change.
func (s *tournamentService) GenerateBracket(ctx context.Context, tournamentID int, mode seeding.Mode) (*models.Bracket, error) {
	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	if mode == "" {
		mode = s.seedingMode
	}

	var (
		tournament   *models.Tournament
		participants []models.Participant
		exists       bool
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tournament, err = s.repo.GetTournament(gctx, tournamentID)
		return handleRepositoryError(err, "failed to get tournament %d", tournamentID)
	})
	g.Go(func() error {
		var err error
		participants, err = s.repo.LoadConfirmedRegistrants(gctx, tournamentID)
		return handleRepositoryError(err, "failed to load registrants of tournament %d", tournamentID)
	})
	g.Go(func() error {
		_, err := s.repo.LoadTopology(gctx, tournamentID)
		switch {
		case err == nil:
			exists = true
			return nil
		case errors.Is(err, repositories.ErrBracketNotFound):
			return nil
		}
		return handleRepositoryError(err, "failed to check bracket of tournament %d", tournamentID)
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	if exists {
		return nil, fmt.Errorf("tournament %d: %w", tournamentID, brackets.ErrAlreadyInitialized)
	}
	if tournament.Status != models.StatusRegistration && tournament.Status != models.StatusSeeding {
		return nil, fmt.Errorf("%w: tournament %d is %s", ErrTournamentInvalidStatus, tournamentID, tournament.Status)
	}

	seeds, err := s.seeder.Seed(participants, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to seed tournament %d: %w", tournamentID, err)
	}
	b, err := s.generator.GenerateBracket(ctx, brackets.GenerateBracketParams{
		TournamentID: tournamentID,
		Seeds:        seeds,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to generate bracket for tournament %d: %w", tournamentID, err)
	}

	st := newTournamentState(*tournament, b, participants)
	s.refreshHandicaps(st, b.Matches)

	err = s.repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
		if err := tx.PersistTopology(ctx, b); err != nil {
			return err
		}
		return tx.UpdateTournamentStatus(ctx, tournamentID, b.Status)
	})
	if err != nil {
		s.logger.Error("bracket persist failed",
			slog.Int("tournament_id", tournamentID),
			slog.Any("error", err))
		return nil, handleRepositoryError(err, "failed to persist bracket of tournament %d", tournamentID)
	}

	st.tournament.Status = b.Status
	s.store(st)
	s.logger.Info("bracket generated",
		slog.Int("tournament_id", tournamentID),
		slog.String("generator", s.generator.GetName()),
		slog.String("seeding_mode", string(mode)),
		slog.Int("participants", b.ParticipantCount),
		slog.Int("matches", len(b.Matches)))
	s.broadcast(tournamentID, brackets.MessageBracketUpdated, b)
	return b.Clone(), nil
}

func (s *tournamentService) StartMatch(ctx context.Context, tournamentID int, matchID string) (*brackets.Change, error) {
	return s.apply(ctx, tournamentID, "start match", "", func(e *brackets.Engine) (*brackets.Change, error) {
		return e.StartMatch(matchID)
	})
}

func (s *tournamentService) ReportResult(ctx context.Context, tournamentID int, matchID string, winnerID int, score *models.Score) (*brackets.Change, error) {
	change, err := s.apply(ctx, tournamentID, "report result", matchID, func(e *brackets.Engine) (*brackets.Change, error) {
		return e.ReportResult(matchID, winnerID, score)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("match result recorded",
		slog.Int("tournament_id", tournamentID),
		slog.String("match_id", matchID),
		slog.Int("winner_id", winnerID),
		slog.Int("touched", len(change.MatchIDs)),
		slog.Int64("version", change.Version))
	return change, nil
}

func (s *tournamentService) ResetMatch(ctx context.Context, tournamentID int, matchID string) (*brackets.Change, error) {
	change, err := s.apply(ctx, tournamentID, "reset match", "", func(e *brackets.Engine) (*brackets.Change, error) {
		return e.ResetMatch(matchID)
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("match result reset",
		slog.Int("tournament_id", tournamentID),
		slog.String("match_id", matchID),
		slog.Int64("version", change.Version))
	return change, nil
}

// CancelTournament stops a tournament for good. Tournaments without a bracket
// are cancelled directly. The tournament lock is held throughout so a bracket
// generated concurrently is cancelled with it.
func (s *tournamentService) CancelTournament(ctx context.Context, tournamentID int) error {
	unlock := s.locks.Lock(tournamentID)
	defer unlock()

	cancel := func(e *brackets.Engine) (*brackets.Change, error) {
		return e.Cancel()
	}
	_, err := s.applyLocked(ctx, tournamentID, "cancel", "", cancel)
	if errors.Is(err, ErrBracketNotFound) {
		// the bracket may have been written since the cache was filled
		_, lerr := s.repo.LoadTopology(ctx, tournamentID)
		switch {
		case lerr == nil:
			s.evict(tournamentID)
			_, err = s.applyLocked(ctx, tournamentID, "cancel", "", cancel)
		case errors.Is(lerr, repositories.ErrBracketNotFound):
			return s.cancelWithoutBracket(ctx, tournamentID)
		default:
			return handleRepositoryError(lerr, "failed to check bracket of tournament %d", tournamentID)
		}
	}
	if err != nil {
		return err
	}
	s.logger.Info("tournament cancelled", slog.Int("tournament_id", tournamentID))
	return nil
}

// cancelWithoutBracket must be called with the tournament lock held.
func (s *tournamentService) cancelWithoutBracket(ctx context.Context, tournamentID int) error {
	t, err := s.repo.GetTournament(ctx, tournamentID)
	if err != nil {
		return handleRepositoryError(err, "failed to get tournament %d", tournamentID)
	}
	if t.Status.Finished() {
		return fmt.Errorf("tournament %d: %w", tournamentID, brackets.ErrTournamentClosed)
	}
	err = s.repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
		return tx.UpdateTournamentStatus(ctx, tournamentID, models.StatusCancelled)
	})
	if err != nil {
		return handleRepositoryError(err, "failed to cancel tournament %d", tournamentID)
	}
	s.evict(tournamentID)
	s.logger.Info("tournament cancelled before bracket generation", slog.Int("tournament_id", tournamentID))
	return nil
}

func (s *tournamentService) GetBracket(ctx context.Context, tournamentID int) (*models.Bracket, error) {
	st, err := s.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return st.bracket.Clone(), nil
}

func (s *tournamentService) Standings(ctx context.Context, tournamentID int) ([]models.TournamentStanding, error) {
	st, err := s.snapshot(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	return st.standings(), nil
}

func (s *tournamentService) Progress(ctx context.Context, tournamentID int) (models.Progress, error) {
	st, err := s.snapshot(ctx, tournamentID)
	if err != nil {
		return models.Progress{}, err
	}
	return brackets.Progress(st.bracket), nil
}

// apply runs one engine operation against a copy of the cached bracket and
// persists every match it touched in a single transaction. The cache only
// moves forward once the transaction committed.
func (s *tournamentService) apply(ctx context.Context, tournamentID int, op, reported string, fn func(e *brackets.Engine) (*brackets.Change, error)) (*brackets.Change, error) {
	unlock := s.locks.Lock(tournamentID)
	defer unlock()
	return s.applyLocked(ctx, tournamentID, op, reported, fn)
}

// applyLocked must be called with the tournament lock held. A finished
// tournament row only accepts cancel, which brings a bracket left behind in
// play in line with it.
func (s *tournamentService) applyLocked(ctx context.Context, tournamentID int, op, reported string, fn func(e *brackets.Engine) (*brackets.Change, error)) (*brackets.Change, error) {
	st, err := s.load(ctx, tournamentID)
	if err != nil {
		return nil, err
	}
	if st.tournament.Status.Finished() && op != "cancel" {
		return nil, fmt.Errorf("%s on tournament %d: %w", op, tournamentID, brackets.ErrTournamentClosed)
	}
	engine, err := brackets.Load(st.bracket.Clone(), brackets.WithClock(s.now))
	if err != nil {
		s.logger.Error("stored bracket failed validation",
			slog.Int("tournament_id", tournamentID),
			slog.Any("error", err))
		return nil, fmt.Errorf("tournament %d: %w", tournamentID, err)
	}
	change, err := fn(engine)
	if err != nil {
		return nil, fmt.Errorf("%s on tournament %d: %w", op, tournamentID, err)
	}

	next := engine.Bracket()
	touched := make([]*models.Match, 0, len(change.MatchIDs))
	for _, id := range change.MatchIDs {
		if m, ok := next.Match(id); ok {
			touched = append(touched, m)
		}
	}
	s.refreshHandicaps(st, touched)

	err = s.repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
		if err := tx.UpdateBracketState(ctx, next, st.bracket.Version); err != nil {
			return err
		}
		if err := tx.SaveMatches(ctx, tournamentID, touched); err != nil {
			return err
		}
		if reported != "" {
			m, _ := next.Match(reported)
			if err := tx.PersistMatchResult(ctx, tournamentID, m, next.Version); err != nil {
				return err
			}
		}
		if next.Status != st.tournament.Status {
			return tx.UpdateTournamentStatus(ctx, tournamentID, next.Status)
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, repositories.ErrVersionConflict) {
			s.evict(tournamentID)
		}
		s.logger.Error("bracket update not persisted",
			slog.Int("tournament_id", tournamentID),
			slog.String("operation", op),
			slog.Any("error", err))
		return nil, handleRepositoryError(err, "failed to persist %s on tournament %d", op, tournamentID)
	}

	updated := &tournamentState{
		tournament:   st.tournament,
		bracket:      next,
		participants: st.participants,
	}
	updated.tournament.Status = next.Status
	s.store(updated)
	s.publish(updated, change, touched)
	return change, nil
}

// refreshHandicaps keeps the handicap of each given match in line with its
// occupants: cleared while a slot is unfilled, computed once both are known.
func (s *tournamentService) refreshHandicaps(st *tournamentState, matches []*models.Match) {
	for _, m := range matches {
		a, b := m.Occupants()
		if m.Slots[models.SlotA].State != models.SlotFilled || m.Slots[models.SlotB].State != models.SlotFilled || a == nil || b == nil {
			m.Handicap = nil
			continue
		}
		if m.Handicap != nil || m.Status.Done() {
			continue
		}
		pa, okA := st.participants[*a]
		pb, okB := st.participants[*b]
		if !okA || !okB {
			continue
		}
		res, err := s.calculator.Calculate(pa.Rank, pb.Rank, s.raceTo(st))
		if err != nil {
			s.logger.Warn("handicap not computed",
				slog.Int("tournament_id", st.tournament.ID),
				slog.String("match_id", m.ID),
				slog.Any("error", err))
			continue
		}
		m.Handicap = &res
	}
}

func (s *tournamentService) raceTo(st *tournamentState) int {
	if st.tournament.RaceTo > 0 {
		return st.tournament.RaceTo
	}
	return s.defaultRaceTo
}

// snapshot returns the cached state, loading it under the tournament lock on
// a miss so a concurrent writer cannot be overwritten by a stale read.
func (s *tournamentService) snapshot(ctx context.Context, tournamentID int) (*tournamentState, error) {
	s.mu.RLock()
	st, ok := s.cache[tournamentID]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}
	unlock := s.locks.Lock(tournamentID)
	defer unlock()
	return s.load(ctx, tournamentID)
}

// load must be called with the tournament lock held.
func (s *tournamentService) load(ctx context.Context, tournamentID int) (*tournamentState, error) {
	s.mu.RLock()
	st, ok := s.cache[tournamentID]
	s.mu.RUnlock()
	if ok {
		return st, nil
	}

	var (
		tournament   *models.Tournament
		bracket      *models.Bracket
		participants []models.Participant
	)
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		tournament, err = s.repo.GetTournament(gctx, tournamentID)
		return handleRepositoryError(err, "failed to get tournament %d", tournamentID)
	})
	g.Go(func() error {
		var err error
		bracket, err = s.repo.LoadTopology(gctx, tournamentID)
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

	st = newTournamentState(*tournament, bracket, participants)
	s.store(st)
	return st, nil
}

func (s *tournamentService) store(st *tournamentState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[st.tournament.ID] = st
}

func (s *tournamentService) evict(tournamentID int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.cache, tournamentID)
}

func newTournamentState(t models.Tournament, b *models.Bracket, participants []models.Participant) *tournamentState {
	st := &tournamentState{
		tournament:   t,
		bracket:      b,
		participants: make(map[int]models.Participant, len(participants)),
	}
	for _, p := range participants {
		st.participants[p.ID] = p
	}
	return st
}

func (st *tournamentState) standings() []models.TournamentStanding {
	rows := brackets.Standings(st.bracket)
	for i := range rows {
		if p, ok := st.participants[rows[i].ParticipantID]; ok {
			rows[i].Participant = &p
		}
	}
	return rows
}
