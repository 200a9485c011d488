package models

// Elimination records where a participant went out.
type Elimination struct {
	MatchID string `json:"match_id"`
	Round   Round  `json:"round"`
	// Stage orders eliminations: a higher stage means the participant lasted longer.
	Stage int `json:"stage"`
}

// Bracket is the tournament aggregate: the match arena in build order plus
// everything needed to advance it.
type Bracket struct {
	TournamentID     int              `json:"tournament_id"`
	ParticipantCount int              `json:"participant_count"`
	Size             int              `json:"size"`
	WinnersRounds    int              `json:"winners_rounds"`
	Status           TournamentStatus `json:"status"`
	Version          int64            `json:"version"`
	// Seeds[i] is the participant placed at seed i+1.
	Seeds        []int               `json:"seeds"`
	Matches      []*Match            `json:"matches"`
	Eliminations map[int]Elimination `json:"eliminations"`
	Champion     *int                `json:"champion,omitempty"`

	index map[string]int
}

func NewBracket(tournamentID, participantCount, size, winnersRounds int) *Bracket {
	return &Bracket{
		TournamentID:     tournamentID,
		ParticipantCount: participantCount,
		Size:             size,
		WinnersRounds:    winnersRounds,
		Status:           StatusSeeding,
		Eliminations:     make(map[int]Elimination),
		index:            make(map[string]int),
	}
}

// AddMatch appends m to the arena. Ids must be unique.
func (b *Bracket) AddMatch(m *Match) {
	if b.index == nil {
		b.Reindex()
	}
	b.index[m.ID] = len(b.Matches)
	b.Matches = append(b.Matches, m)
}

// Reindex rebuilds the id lookup, needed after decoding a bracket.
func (b *Bracket) Reindex() {
	b.index = make(map[string]int, len(b.Matches))
	for i, m := range b.Matches {
		b.index[m.ID] = i
	}
	if b.Eliminations == nil {
		b.Eliminations = make(map[int]Elimination)
	}
}

func (b *Bracket) Match(id string) (*Match, bool) {
	if b.index == nil || len(b.index) != len(b.Matches) {
		b.Reindex()
	}
	i, ok := b.index[id]
	if !ok {
		return nil, false
	}
	return b.Matches[i], true
}

func (b *Bracket) MatchesIn(r Round) []*Match {
	var out []*Match
	for _, m := range b.Matches {
		if m.Round == r {
			out = append(out, m)
		}
	}
	return out
}

// Closed reports whether the bracket accepts no more results.
func (b *Bracket) Closed() bool {
	return b.Status == StatusCompleted || b.Status == StatusCancelled
}

// Clone returns a deep copy sharing no memory with b.
func (b *Bracket) Clone() *Bracket {
	c := &Bracket{
		TournamentID:     b.TournamentID,
		ParticipantCount: b.ParticipantCount,
		Size:             b.Size,
		WinnersRounds:    b.WinnersRounds,
		Status:           b.Status,
		Version:          b.Version,
		Champion:         cloneInt(b.Champion),
		Eliminations:     make(map[int]Elimination, len(b.Eliminations)),
		Matches:          make([]*Match, 0, len(b.Matches)),
	}
	if b.Seeds != nil {
		c.Seeds = append([]int(nil), b.Seeds...)
	}
	for id, e := range b.Eliminations {
		c.Eliminations[id] = e
	}
	for _, m := range b.Matches {
		c.Matches = append(c.Matches, m.Clone())
	}
	c.Reindex()
	return c
}
