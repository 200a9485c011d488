package brackets

import (
	"errors"
	"fmt"
	"time"

	"github.com/saboarena/tournament-engine/models"
)

var (
	ErrAlreadyInitialized = errors.New("bracket already initialized")
	ErrSeedCountMismatch  = errors.New("seed list does not match participant count")
	ErrDuplicateSeed      = errors.New("participant seeded twice")
	ErrMatchNotFound      = errors.New("match not found")
	ErrNotReady           = errors.New("match is not ready")
	ErrAlreadyCompleted   = errors.New("match already completed")
	ErrInvalidWinner      = errors.New("winner is not an occupant of the match")
	ErrInvalidScore       = errors.New("invalid score")
	ErrTournamentClosed   = errors.New("tournament is completed or cancelled")
	ErrResetBlocked       = errors.New("match result cannot be reset")
)

// Change lists what an accepted operation touched. The ids are in the order
// the matches were modified and each appears once.
type Change struct {
	Version    int64                   `json:"version"`
	MatchIDs   []string                `json:"match_ids"`
	Eliminated []int                   `json:"eliminated,omitempty"`
	Status     models.TournamentStatus `json:"status"`
	Champion   *int                    `json:"champion,omitempty"`

	seen map[string]struct{}
}

func newChange() *Change {
	return &Change{seen: make(map[string]struct{})}
}

func (c *Change) touch(id string) {
	if _, ok := c.seen[id]; ok {
		return
	}
	c.seen[id] = struct{}{}
	c.MatchIDs = append(c.MatchIDs, id)
}

// Touched reports whether the change modified match id.
func (c *Change) Touched(id string) bool {
	for _, m := range c.MatchIDs {
		if m == id {
			return true
		}
	}
	return false
}

type Option func(*Engine)

func WithClock(now func() time.Time) Option {
	return func(e *Engine) { e.now = now }
}

func WithTournamentID(id int) Option {
	return func(e *Engine) { e.tournamentID = id }
}

// Engine advances a single bracket. It is not safe for concurrent use; every
// accepted operation works on a copy and replaces the bracket only when the
// whole cascade succeeded, so a failed call leaves the previous state intact.
type Engine struct {
	bracket      *models.Bracket
	tournamentID int
	now          func() time.Time
}

func NewEngine(t *Topology, opts ...Option) *Engine {
	e := &Engine{now: time.Now}
	for _, opt := range opts {
		opt(e)
	}
	e.bracket = t.NewBracket(e.tournamentID)
	return e
}

// Load wraps an existing bracket, typically one read back from storage.
// The engine takes ownership of b.
func Load(b *models.Bracket, opts ...Option) (*Engine, error) {
	e := &Engine{now: time.Now, tournamentID: b.TournamentID}
	for _, opt := range opts {
		opt(e)
	}
	b.Reindex()
	if err := ValidateWiring(b.Matches); err != nil {
		return nil, err
	}
	e.bracket = b
	return e, nil
}

// Bracket returns the current state. Callers must not modify it.
func (e *Engine) Bracket() *models.Bracket { return e.bracket }

// Initialize places seeds (participant ids, best first) and resolves every
// first round bye.
func (e *Engine) Initialize(seeds []int) (*models.Bracket, error) {
	b := e.bracket
	if b.Status != models.StatusSeeding || b.Seeds != nil {
		return nil, ErrAlreadyInitialized
	}
	if len(seeds) != b.ParticipantCount {
		return nil, fmt.Errorf("%w: got %d seeds for %d participants", ErrSeedCountMismatch, len(seeds), b.ParticipantCount)
	}
	seen := make(map[int]struct{}, len(seeds))
	for _, id := range seeds {
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("%w: id %d", ErrDuplicateSeed, id)
		}
		seen[id] = struct{}{}
	}

	_, err := e.mutate(func(w *models.Bracket, c *Change) error {
		w.Seeds = append([]int(nil), seeds...)
		w.Status = models.StatusInProgress
		first := w.MatchesIn(models.WinnersRound(1))
		for _, m := range first {
			for i := range m.Slots {
				s := &m.Slots[i]
				if s.Seed <= len(seeds) {
					id := seeds[s.Seed-1]
					s.State = models.SlotFilled
					s.ParticipantID = &id
				} else {
					s.State = models.SlotEmpty
				}
			}
			c.touch(m.ID)
		}
		for _, m := range first {
			if err := e.evaluate(w, c, m); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return e.bracket, nil
}

func (e *Engine) StartMatch(id string) (*Change, error) {
	m, ok := e.bracket.Match(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if m.Status.Done() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
	}
	if e.bracket.Closed() {
		return nil, ErrTournamentClosed
	}
	if m.Status != models.MatchStatusReady {
		return nil, fmt.Errorf("%w: %s is %s", ErrNotReady, id, m.Status)
	}

	return e.mutate(func(w *models.Bracket, c *Change) error {
		wm, _ := w.Match(id)
		now := e.now()
		wm.Status = models.MatchStatusInProgress
		wm.StartedAt = &now
		c.touch(wm.ID)
		return nil
	})
}

// ReportResult records the winner of a ready or running match and advances
// both players along the static wiring. score may be nil; when given, A and B
// are the games won by the occupants of slot A and slot B.
func (e *Engine) ReportResult(id string, winnerID int, score *models.Score) (*Change, error) {
	m, ok := e.bracket.Match(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if m.Status.Done() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyCompleted, id)
	}
	if e.bracket.Closed() {
		return nil, ErrTournamentClosed
	}
	if m.Status != models.MatchStatusReady && m.Status != models.MatchStatusInProgress {
		return nil, fmt.Errorf("cannot report a result for %s, it is %s: %w", id, m.Status, ErrNotReady)
	}
	winnerSlot, ok := m.SlotOf(winnerID)
	if !ok {
		return nil, fmt.Errorf("%w: participant %d in %s", ErrInvalidWinner, winnerID, id)
	}
	if err := checkScore(score, winnerSlot); err != nil {
		return nil, err
	}

	return e.mutate(func(w *models.Bracket, c *Change) error {
		wm, _ := w.Match(id)
		var s *models.Score
		if score != nil {
			v := *score
			s = &v
		}
		return e.complete(w, c, wm, winnerSlot, s, false)
	})
}

// ResetMatch clears a reported result so it can be reported again. Only
// allowed while nothing downstream has started.
func (e *Engine) ResetMatch(id string) (*Change, error) {
	m, ok := e.bracket.Match(id)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrMatchNotFound, id)
	}
	if e.bracket.Closed() {
		return nil, ErrTournamentClosed
	}
	if m.Status != models.MatchStatusCompleted || m.IsBye {
		return nil, fmt.Errorf("%w: %s has no reported result", ErrResetBlocked, id)
	}
	if err := unwindable(e.bracket, m); err != nil {
		return nil, err
	}

	return e.mutate(func(w *models.Bracket, c *Change) error {
		wm, _ := w.Match(id)
		c.touch(wm.ID)
		if wm.LoserTo == nil && wm.LoserID != nil {
			delete(w.Eliminations, *wm.LoserID)
		}
		if err := e.unwind(w, c, wm); err != nil {
			return err
		}
		wm.Status = models.MatchStatusReady
		wm.IsBye = false
		return nil
	})
}

// Cancel stops the tournament for good.
func (e *Engine) Cancel() (*Change, error) {
	if e.bracket.Closed() {
		return nil, ErrTournamentClosed
	}
	return e.mutate(func(w *models.Bracket, c *Change) error {
		w.Status = models.StatusCancelled
		return nil
	})
}

func (e *Engine) mutate(fn func(w *models.Bracket, c *Change) error) (*Change, error) {
	w := e.bracket.Clone()
	c := newChange()
	if err := fn(w, c); err != nil {
		return nil, err
	}
	w.Version++
	c.Version = w.Version
	c.Status = w.Status
	if w.Champion != nil {
		v := *w.Champion
		c.Champion = &v
	}
	e.bracket = w
	return c, nil
}

func checkScore(score *models.Score, winner models.SlotPosition) error {
	if score == nil {
		return nil
	}
	if score.A < 0 || score.B < 0 {
		return fmt.Errorf("%w: negative games %d-%d", ErrInvalidScore, score.A, score.B)
	}
	won, lost := score.A, score.B
	if winner == models.SlotB {
		won, lost = score.B, score.A
	}
	if won < lost {
		return fmt.Errorf("%w: winner has %d games against %d", ErrInvalidScore, won, lost)
	}
	return nil
}

// evaluate moves a pending match forward once both slots are resolved.
func (e *Engine) evaluate(w *models.Bracket, c *Change, m *models.Match) error {
	if m.Status != models.MatchStatusPending {
		return nil
	}
	a, b := m.Slots[models.SlotA], m.Slots[models.SlotB]
	if !a.Resolved() || !b.Resolved() {
		return nil
	}
	switch {
	case a.State == models.SlotFilled && b.State == models.SlotFilled:
		m.Status = models.MatchStatusReady
		c.touch(m.ID)
		return nil
	case a.State == models.SlotFilled:
		return e.complete(w, c, m, models.SlotA, nil, true)
	case b.State == models.SlotFilled:
		return e.complete(w, c, m, models.SlotB, nil, true)
	}

	// nobody will ever play here; pass the hole on
	now := e.now()
	m.Status = models.MatchStatusCompleted
	m.IsBye = true
	m.CompletedAt = &now
	c.touch(m.ID)
	if err := e.place(w, c, m.WinnerTo, nil); err != nil {
		return err
	}
	return e.place(w, c, m.LoserTo, nil)
}

func (e *Engine) complete(w *models.Bracket, c *Change, m *models.Match, winnerSlot models.SlotPosition, score *models.Score, bye bool) error {
	winner := *m.Slots[winnerSlot].ParticipantID
	var loser *int
	if !bye {
		l := *m.Slots[winnerSlot.Other()].ParticipantID
		loser = &l
	}

	now := e.now()
	m.Status = models.MatchStatusCompleted
	m.WinnerID = &winner
	m.LoserID = loser
	m.Score = score
	m.IsBye = bye
	m.CompletedAt = &now
	c.touch(m.ID)

	switch m.Round {
	case models.GrandFinal(1):
		return e.resolveFinal(w, c, m, winnerSlot)
	case models.GrandFinal(2):
		e.crown(w, c, m)
		return nil
	}

	if err := e.place(w, c, m.WinnerTo, &winner); err != nil {
		return err
	}
	if m.LoserTo != nil {
		return e.place(w, c, m.LoserTo, loser)
	}
	if loser != nil {
		e.eliminate(w, c, *loser, m)
	}
	return nil
}

// resolveFinal decides whether the reset game is played. It is only needed
// when the losers bracket champion, who sits in slot B, wins the first game.
func (e *Engine) resolveFinal(w *models.Bracket, c *Change, m *models.Match, winnerSlot models.SlotPosition) error {
	if winnerSlot == models.SlotA || m.IsBye {
		if m.WinnerTo != nil {
			if reset, ok := w.Match(m.WinnerTo.MatchID); ok {
				reset.Status = models.MatchStatusSkipped
				c.touch(reset.ID)
			}
		}
		e.crown(w, c, m)
		return nil
	}
	if err := e.place(w, c, m.LoserTo, m.LoserID); err != nil {
		return err
	}
	return e.place(w, c, m.WinnerTo, m.WinnerID)
}

func (e *Engine) crown(w *models.Bracket, c *Change, m *models.Match) {
	champion := *m.WinnerID
	w.Champion = &champion
	if m.LoserID != nil {
		e.eliminate(w, c, *m.LoserID, m)
	}
	w.Status = models.StatusCompleted
}

func (e *Engine) eliminate(w *models.Bracket, c *Change, participantID int, m *models.Match) {
	w.Eliminations[participantID] = models.Elimination{
		MatchID: m.ID,
		Round:   m.Round,
		Stage:   eliminationStage(w, m.Round),
	}
	c.Eliminated = append(c.Eliminated, participantID)
}

// eliminationStage ranks how far a player got: branch A round n is 2n-1,
// branch B round n is 2n and the grand final is above every losers round.
func eliminationStage(w *models.Bracket, r models.Round) int {
	switch r.Segment {
	case models.SegmentLosersA:
		return 2*r.Number - 1
	case models.SegmentLosersB:
		return 2 * r.Number
	case models.SegmentGrandFinal:
		return 2 * w.WinnersRounds
	}
	return 0
}

// place writes a participant, or a bye hole when id is nil, into dest.
func (e *Engine) place(w *models.Bracket, c *Change, dest *models.Destination, id *int) error {
	if dest == nil {
		return nil
	}
	target, ok := w.Match(dest.MatchID)
	if !ok {
		return fmt.Errorf("%w: destination %s not found", ErrWiringInconsistency, dest.MatchID)
	}
	slot := &target.Slots[dest.Slot]
	if slot.State != models.SlotOpen {
		return fmt.Errorf("%w: slot %s of %s already resolved", ErrWiringInconsistency, dest.Slot, target.ID)
	}
	if id == nil {
		slot.State = models.SlotEmpty
		slot.ParticipantID = nil
	} else {
		v := *id
		slot.State = models.SlotFilled
		slot.ParticipantID = &v
	}
	c.touch(target.ID)
	return e.evaluate(w, c, target)
}

// unwindable checks that every match m fed can still be rolled back: only
// matches that have not started, or byes that were completed automatically.
func unwindable(b *models.Bracket, m *models.Match) error {
	for _, dest := range []*models.Destination{m.WinnerTo, m.LoserTo} {
		if dest == nil {
			continue
		}
		target, ok := b.Match(dest.MatchID)
		if !ok {
			return fmt.Errorf("%w: destination %s not found", ErrWiringInconsistency, dest.MatchID)
		}
		if target.Slots[dest.Slot].State == models.SlotOpen {
			continue
		}
		switch target.Status {
		case models.MatchStatusPending, models.MatchStatusReady:
		case models.MatchStatusCompleted:
			if !target.IsBye {
				return fmt.Errorf("%w: %s already has a result", ErrResetBlocked, target.ID)
			}
			if err := unwindable(b, target); err != nil {
				return err
			}
		default:
			return fmt.Errorf("%w: %s is %s", ErrResetBlocked, target.ID, target.Status)
		}
	}
	return nil
}

// unwind clears the result of m and everything it wrote downstream.
func (e *Engine) unwind(w *models.Bracket, c *Change, m *models.Match) error {
	for _, dest := range []*models.Destination{m.WinnerTo, m.LoserTo} {
		if dest == nil {
			continue
		}
		target, ok := w.Match(dest.MatchID)
		if !ok {
			return fmt.Errorf("%w: destination %s not found", ErrWiringInconsistency, dest.MatchID)
		}
		slot := &target.Slots[dest.Slot]
		if slot.State == models.SlotOpen {
			continue
		}
		slot.State = models.SlotOpen
		slot.ParticipantID = nil
		c.touch(target.ID)

		switch target.Status {
		case models.MatchStatusReady:
			target.Status = models.MatchStatusPending
			target.Handicap = nil
		case models.MatchStatusCompleted:
			if err := e.unwind(w, c, target); err != nil {
				return err
			}
			target.Status = models.MatchStatusPending
			target.IsBye = false
		}
	}
	m.WinnerID = nil
	m.LoserID = nil
	m.Score = nil
	m.StartedAt = nil
	m.CompletedAt = nil
	return nil
}
