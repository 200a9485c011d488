package repositories_test

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/db"
	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/models"
	"github.com/saboarena/tournament-engine/ranking"
	"github.com/saboarena/tournament-engine/repositories"
)

var pgNow = func() time.Time { return time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC) }

// startPostgres runs a throwaway Postgres, applies the embedded migrations and
// returns a handle to it.
func startPostgres(t *testing.T) *sql.DB {
	t.Helper()
	if testing.Short() {
		t.Skip("postgres integration tests are skipped in short mode")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)

	ctx := context.Background()
	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("sabo_test"),
		postgres.WithUsername("sabo"),
		postgres.WithPassword("sabo"),
		postgres.BasicWaitStrategies(),
	)
	testcontainers.CleanupContainer(t, pgContainer)
	require.NoError(t, err)

	dsn, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	conn, err := db.Connect(dsn, 10*time.Second, logger)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, db.Migrate(ctx, conn, logger))
	require.NoError(t, db.Migrate(ctx, conn, logger), "migrations are applied once")
	return conn
}

func insertTournament(t *testing.T, conn *sql.DB, name string) int {
	t.Helper()
	var id int
	err := conn.QueryRow(`INSERT INTO tournaments (name, organizer_id, race_to) VALUES ($1, 10, 7) RETURNING id`, name).Scan(&id)
	require.NoError(t, err)
	return id
}

func generate(t *testing.T, tournamentID int, seeds []int) *models.Bracket {
	t.Helper()
	g := brackets.NewDoubleEliminationGenerator(brackets.Options{}, pgNow)
	b, err := g.GenerateBracket(context.Background(), brackets.GenerateBracketParams{TournamentID: tournamentID, Seeds: seeds})
	require.NoError(t, err)
	return b
}

// utc drops the session location lib/pq attaches to timestamps so brackets
// compare by instant.
func utc(b *models.Bracket) *models.Bracket {
	for _, m := range b.Matches {
		if m.StartedAt != nil {
			v := m.StartedAt.UTC()
			m.StartedAt = &v
		}
		if m.CompletedAt != nil {
			v := m.CompletedAt.UTC()
			m.CompletedAt = &v
		}
	}
	return b
}

func firstReady(t *testing.T, b *models.Bracket) *models.Match {
	t.Helper()
	for _, m := range b.Matches {
		if m.Status == models.MatchStatusReady {
			return m
		}
	}
	t.Fatal("no ready match")
	return nil
}

func TestPostgresRepository(t *testing.T) {
	conn := startPostgres(t)
	repo := repositories.NewPostgresTournamentRepository(conn)
	ctx := context.Background()

	t.Run("topology round trip", func(t *testing.T) {
		id := insertTournament(t, conn, "Round trip")
		// six players leave byes, so eliminations and completed matches are stored too
		b := generate(t, id, []int{11, 12, 13, 14, 15, 16})
		ready := firstReady(t, b)
		ready.Handicap = &handicap.Result{
			ChallengerRank: ranking.RankG,
			OpponentRank:   ranking.RankI,
			Stake:          100,
			Distance:       4,
			Stronger:       handicap.SideChallenger,
			Amount:         handicap.HalfGames(3),
			Mode:           handicap.ModeRaceExtension,
			ChallengerRace: 7,
			OpponentRace:   5,
			Explanation:    "G gives I one and a half games",
		}

		require.NoError(t, repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			if err := tx.PersistTopology(ctx, b); err != nil {
				return err
			}
			return tx.UpdateTournamentStatus(ctx, id, b.Status)
		}))

		loaded, err := repo.LoadTopology(ctx, id)
		require.NoError(t, err)
		require.Equal(t, utc(b.Clone()), utc(loaded))

		tour, err := repo.GetTournament(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, b.Status, tour.Status)
		assert.Equal(t, 7, tour.RaceTo)
	})

	t.Run("result persisted with cascade", func(t *testing.T) {
		id := insertTournament(t, conn, "Cascade")
		b := generate(t, id, []int{21, 22, 23, 24})
		require.NoError(t, repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			return tx.PersistTopology(ctx, b)
		}))

		engine, err := brackets.Load(b.Clone(), brackets.WithClock(pgNow))
		require.NoError(t, err)
		m := firstReady(t, b)
		winner := *m.Slots[models.SlotA].ParticipantID
		change, err := engine.ReportResult(m.ID, winner, &models.Score{A: 7, B: 2})
		require.NoError(t, err)
		next := engine.Bracket()

		require.NoError(t, repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			if err := tx.UpdateBracketState(ctx, next, b.Version); err != nil {
				return err
			}
			var touched []*models.Match
			for _, mid := range change.MatchIDs {
				tm, _ := next.Match(mid)
				touched = append(touched, tm)
			}
			if err := tx.SaveMatches(ctx, id, touched); err != nil {
				return err
			}
			reported, _ := next.Match(m.ID)
			return tx.PersistMatchResult(ctx, id, reported, next.Version)
		}))

		loaded, err := repo.LoadTopology(ctx, id)
		require.NoError(t, err)
		require.Equal(t, utc(next.Clone()), utc(loaded))

		var results int
		require.NoError(t, conn.QueryRow(`SELECT count(*) FROM match_results WHERE tournament_id = $1 AND winner_id = $2`, id, winner).Scan(&results))
		assert.Equal(t, 1, results)
	})

	t.Run("stale version is rejected", func(t *testing.T) {
		id := insertTournament(t, conn, "Stale")
		b := generate(t, id, []int{31, 32, 33, 34})
		require.NoError(t, repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			return tx.PersistTopology(ctx, b)
		}))

		next := b.Clone()
		next.Version++
		require.NoError(t, repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			return tx.UpdateBracketState(ctx, next, b.Version)
		}))

		stale := b.Clone()
		stale.Version++
		stale.Status = models.StatusCancelled
		err := repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			return tx.UpdateBracketState(ctx, stale, b.Version)
		})
		assert.ErrorIs(t, err, repositories.ErrVersionConflict)

		loaded, err := repo.LoadTopology(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, next.Version, loaded.Version)
		assert.Equal(t, b.Status, loaded.Status)
	})

	t.Run("failed transaction leaves rows unchanged", func(t *testing.T) {
		id := insertTournament(t, conn, "Rollback")
		b := generate(t, id, []int{41, 42, 43, 44})
		require.NoError(t, repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			if err := tx.PersistTopology(ctx, b); err != nil {
				return err
			}
			return tx.UpdateTournamentStatus(ctx, id, b.Status)
		}))
		before, err := repo.LoadTopology(ctx, id)
		require.NoError(t, err)

		boom := errors.New("boom")
		err = repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			changed := b.Clone()
			changed.Version++
			changed.Status = models.StatusCompleted
			m := firstReady(t, changed)
			m.Status = models.MatchStatusInProgress
			started := pgNow()
			m.StartedAt = &started
			if err := tx.UpdateBracketState(ctx, changed, b.Version); err != nil {
				return err
			}
			if err := tx.SaveMatches(ctx, id, []*models.Match{m}); err != nil {
				return err
			}
			if err := tx.UpdateTournamentStatus(ctx, id, models.StatusCompleted); err != nil {
				return err
			}
			return boom
		})
		require.ErrorIs(t, err, boom)

		after, err := repo.LoadTopology(ctx, id)
		require.NoError(t, err)
		require.Equal(t, utc(before), utc(after))
		tour, err := repo.GetTournament(ctx, id)
		require.NoError(t, err)
		assert.Equal(t, b.Status, tour.Status)
	})

	t.Run("constraint errors", func(t *testing.T) {
		id := insertTournament(t, conn, "Constraints")
		b := generate(t, id, []int{51, 52, 53, 54})
		persist := func(b *models.Bracket) error {
			return repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
				return tx.PersistTopology(ctx, b)
			})
		}
		require.NoError(t, persist(b))

		tests := []struct {
			name string
			err  error
			want error
		}{
			{"bracket twice", persist(b), repositories.ErrBracketExists},
			{"unknown tournament", persist(generate(t, 99999, []int{1, 2})), repositories.ErrTournamentNotFound},
			{"result without bracket", repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
				winner := 1
				return tx.PersistMatchResult(ctx, insertTournament(t, conn, "No bracket"), &models.Match{ID: "WR1-M1", WinnerID: &winner}, 1)
			}), repositories.ErrBracketNotFound},
			{"status of unknown tournament", repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
				return tx.UpdateTournamentStatus(ctx, 99999, models.StatusCancelled)
			}), repositories.ErrTournamentNotFound},
			{"save unknown match", repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
				return tx.SaveMatches(ctx, id, []*models.Match{{ID: "WR9-M9", Status: models.MatchStatusPending}})
			}), repositories.ErrMatchRowNotFound},
		}
		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				assert.ErrorIs(t, tt.err, tt.want)
			})
		}

		_, err := repo.LoadTopology(ctx, 99999)
		assert.ErrorIs(t, err, repositories.ErrBracketNotFound)
		_, err = repo.GetTournament(ctx, 99999)
		assert.ErrorIs(t, err, repositories.ErrTournamentNotFound)
	})

	t.Run("confirmed registrants", func(t *testing.T) {
		id := insertTournament(t, conn, "Registrants")
		_, err := conn.Exec(`
			INSERT INTO profiles (user_id, display_name, verified_rank, current_rank, rank, elo) VALUES
				(601, 'Minh', 'G', 'H', NULL, 1650),
				(602, 'Lan', NULL, ' ', 'i+', NULL),
				(603, 'Tuan', NULL, NULL, NULL, NULL),
				(604, 'Hoa', 'E', NULL, NULL, NULL),
				(605, 'Bao', 'Z', NULL, NULL, NULL)`)
		require.NoError(t, err)
		_, err = conn.Exec(`
			INSERT INTO tournament_registrations (tournament_id, user_id, status, registration_date) VALUES
				($1, 601, 'confirmed', '2025-06-01T10:00:00Z'),
				($1, 602, 'confirmed', '2025-06-01T10:05:00Z'),
				($1, 603, 'confirmed', '2025-06-01T10:05:00Z'),
				($1, 604, 'pending', '2025-06-01T09:00:00Z')`, id)
		require.NoError(t, err)

		players, err := repo.LoadConfirmedRegistrants(ctx, id)
		require.NoError(t, err)
		require.Len(t, players, 3)

		assert.Equal(t, []int{601, 602, 603}, []int{players[0].ID, players[1].ID, players[2].ID})
		require.NotNil(t, players[0].Rank)
		assert.Equal(t, ranking.RankG, *players[0].Rank)
		require.NotNil(t, players[0].EloScore)
		assert.Equal(t, 1650, *players[0].EloScore)
		require.NotNil(t, players[1].Rank)
		assert.Equal(t, ranking.RankIPlus, *players[1].Rank)
		assert.Nil(t, players[1].EloScore)
		assert.Nil(t, players[2].Rank)

		bad := insertTournament(t, conn, "Bad rank")
		_, err = conn.Exec(`INSERT INTO tournament_registrations (tournament_id, user_id, status) VALUES ($1, 605, 'confirmed')`, bad)
		require.NoError(t, err)
		_, err = repo.LoadConfirmedRegistrants(ctx, bad)
		assert.ErrorIs(t, err, repositories.ErrInvalidRegistrant)
	})

	t.Run("archive bookkeeping", func(t *testing.T) {
		done := insertTournament(t, conn, "Done")
		open := insertTournament(t, conn, "Open")
		require.NoError(t, repo.RunInTx(ctx, func(tx repositories.TournamentTx) error {
			return tx.UpdateTournamentStatus(ctx, done, models.StatusCompleted)
		}))

		finished, err := repo.ListFinishedUnarchived(ctx)
		require.NoError(t, err)
		ids := map[int]bool{}
		for _, tour := range finished {
			ids[tour.ID] = true
		}
		assert.True(t, ids[done])
		assert.False(t, ids[open])

		require.NoError(t, repo.MarkArchived(ctx, done, "tournaments/done.json.gz", pgNow()))
		tour, err := repo.GetTournament(ctx, done)
		require.NoError(t, err)
		require.NotNil(t, tour.ArchivedAt)
		assert.True(t, pgNow().Equal(*tour.ArchivedAt))
		require.NotNil(t, tour.ArchiveKey)
		assert.Equal(t, "tournaments/done.json.gz", *tour.ArchiveKey)

		finished, err = repo.ListFinishedUnarchived(ctx)
		require.NoError(t, err)
		for _, tour := range finished {
			assert.NotEqual(t, done, tour.ID)
		}
		assert.ErrorIs(t, repo.MarkArchived(ctx, 99999, "x", pgNow()), repositories.ErrTournamentNotFound)
	})
}
