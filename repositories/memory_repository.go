package repositories

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/saboarena/tournament-engine/models"
)

// MatchResult is one recorded result row.
type MatchResult struct {
	TournamentID   int
	MatchID        string
	WinnerID       int
	LoserID        *int
	Score          *models.Score
	BracketVersion int64
}

// MemoryTournamentRepository keeps everything in process. It backs local runs
// without DATABASE_URL and the service tests.
type MemoryTournamentRepository struct {
	mu          sync.RWMutex
	tournaments map[int]*models.Tournament
	registrants map[int][]models.Participant
	brackets    map[int]*models.Bracket
	results     []MatchResult
}

func NewMemoryTournamentRepository() *MemoryTournamentRepository {
	return &MemoryTournamentRepository{
		tournaments: make(map[int]*models.Tournament),
		registrants: make(map[int][]models.Participant),
		brackets:    make(map[int]*models.Bracket),
	}
}

// AddTournament stores a copy of t, replacing any tournament with the same id.
func (r *MemoryTournamentRepository) AddTournament(t models.Tournament) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tournaments[t.ID] = &t
}

// AddRegistrant records p as a confirmed registrant of the tournament.
func (r *MemoryTournamentRepository) AddRegistrant(tournamentID int, p models.Participant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.registrants[tournamentID] = append(r.registrants[tournamentID], p)
}

// MatchResults returns the recorded results of a tournament in insertion order.
func (r *MemoryTournamentRepository) MatchResults(tournamentID int) []MatchResult {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []MatchResult
	for _, res := range r.results {
		if res.TournamentID == tournamentID {
			out = append(out, res)
		}
	}
	return out
}

func (r *MemoryTournamentRepository) GetTournament(_ context.Context, id int) (*models.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	c := *t
	return &c, nil
}

func (r *MemoryTournamentRepository) ListFinishedUnarchived(_ context.Context) ([]*models.Tournament, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.Tournament
	for _, t := range r.tournaments {
		if t.Status.Finished() && t.ArchivedAt == nil {
			c := *t
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *MemoryTournamentRepository) MarkArchived(_ context.Context, id int, key string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	t.ArchivedAt = &at
	t.ArchiveKey = &key
	return nil
}

func (r *MemoryTournamentRepository) LoadConfirmedRegistrants(_ context.Context, tournamentID int) ([]models.Participant, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]models.Participant(nil), r.registrants[tournamentID]...), nil
}

func (r *MemoryTournamentRepository) LoadTopology(_ context.Context, tournamentID int) (*models.Bracket, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.brackets[tournamentID]
	if !ok {
		return nil, ErrBracketNotFound
	}
	return b.Clone(), nil
}

// RunInTx stages every write made through tx and applies them together only
// when fn returns nil. Staged version checks are repeated at commit.
func (r *MemoryTournamentRepository) RunInTx(ctx context.Context, fn func(tx TournamentTx) error) error {
	tx := &memoryTournamentTx{
		repo:     r,
		brackets: make(map[int]*models.Bracket),
		expected: make(map[int]int64),
		statuses: make(map[int]models.TournamentStatus),
	}
	if err := fn(tx); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	for id, v := range tx.expected {
		stored, ok := r.brackets[id]
		if !ok || stored.Version != v {
			return ErrVersionConflict
		}
	}
	for id, b := range tx.brackets {
		if _, exists := r.brackets[id]; exists && tx.created[id] {
			return ErrBracketExists
		}
		r.brackets[id] = b
	}
	for id, status := range tx.statuses {
		if t, ok := r.tournaments[id]; ok {
			t.Status = status
		}
	}
	r.results = append(r.results, tx.results...)
	return nil
}

type memoryTournamentTx struct {
	repo     *MemoryTournamentRepository
	brackets map[int]*models.Bracket
	created  map[int]bool
	expected map[int]int64
	statuses map[int]models.TournamentStatus
	results  []MatchResult
}

// staged returns the bracket this transaction is writing, copying the stored
// one on first touch.
func (t *memoryTournamentTx) staged(tournamentID int) (*models.Bracket, error) {
	if b, ok := t.brackets[tournamentID]; ok {
		return b, nil
	}
	t.repo.mu.RLock()
	stored, ok := t.repo.brackets[tournamentID]
	t.repo.mu.RUnlock()
	if !ok {
		return nil, ErrBracketNotFound
	}
	b := stored.Clone()
	t.brackets[tournamentID] = b
	return b, nil
}

func (t *memoryTournamentTx) PersistTopology(_ context.Context, b *models.Bracket) error {
	t.repo.mu.RLock()
	_, exists := t.repo.brackets[b.TournamentID]
	_, known := t.repo.tournaments[b.TournamentID]
	t.repo.mu.RUnlock()
	if !known {
		return ErrTournamentNotFound
	}
	if _, staged := t.brackets[b.TournamentID]; exists || staged {
		return ErrBracketExists
	}
	if t.created == nil {
		t.created = make(map[int]bool)
	}
	t.brackets[b.TournamentID] = b.Clone()
	t.created[b.TournamentID] = true
	return nil
}

func (t *memoryTournamentTx) SaveMatches(_ context.Context, tournamentID int, matches []*models.Match) error {
	b, err := t.staged(tournamentID)
	if err != nil {
		return err
	}
	for _, m := range matches {
		if _, ok := b.Match(m.ID); !ok {
			return ErrMatchRowNotFound
		}
	}
	for _, m := range matches {
		for i, existing := range b.Matches {
			if existing.ID == m.ID {
				b.Matches[i] = m.Clone()
			}
		}
	}
	b.Reindex()
	return nil
}

func (t *memoryTournamentTx) PersistMatchResult(_ context.Context, tournamentID int, m *models.Match, version int64) error {
	if _, err := t.staged(tournamentID); err != nil {
		return err
	}
	res := MatchResult{
		TournamentID:   tournamentID,
		MatchID:        m.ID,
		LoserID:        m.LoserID,
		BracketVersion: version,
	}
	if m.WinnerID != nil {
		res.WinnerID = *m.WinnerID
	}
	if m.Score != nil {
		s := *m.Score
		res.Score = &s
	}
	t.results = append(t.results, res)
	return nil
}

func (t *memoryTournamentTx) UpdateBracketState(_ context.Context, b *models.Bracket, expectedVersion int64) error {
	staged, err := t.staged(b.TournamentID)
	if err != nil {
		return err
	}
	if _, checked := t.expected[b.TournamentID]; !checked {
		if staged.Version != expectedVersion {
			return ErrVersionConflict
		}
		t.expected[b.TournamentID] = expectedVersion
	}
	staged.Status = b.Status
	staged.Version = b.Version
	if b.Champion != nil {
		c := *b.Champion
		staged.Champion = &c
	} else {
		staged.Champion = nil
	}
	staged.Eliminations = make(map[int]models.Elimination, len(b.Eliminations))
	for id, e := range b.Eliminations {
		staged.Eliminations[id] = e
	}
	return nil
}

func (t *memoryTournamentTx) UpdateTournamentStatus(_ context.Context, tournamentID int, status models.TournamentStatus) error {
	t.repo.mu.RLock()
	_, ok := t.repo.tournaments[tournamentID]
	t.repo.mu.RUnlock()
	if !ok {
		return ErrTournamentNotFound
	}
	t.statuses[tournamentID] = status
	return nil
}
