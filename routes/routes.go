package routes

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/saboarena/tournament-engine/handlers"
	"github.com/saboarena/tournament-engine/middleware"
)

type Handlers struct {
	Tournament *handlers.TournamentHandler
	Handicap   *handlers.HandicapHandler
	WebSocket  *handlers.WebSocketHandler
	// Authenticator guards the organizer routes. Nil leaves them open, which
	// is only meant for local runs.
	Authenticator  *middleware.Authenticator
	AllowedOrigins []string
}

func SetupRoutes(router chi.Router, h Handlers) {
	router.Use(chiMiddleware.RequestID)
	router.Use(chiMiddleware.RealIP)
	router.Use(chiMiddleware.Logger)
	router.Use(chiMiddleware.Recoverer)

	origins := h.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Request-Id"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	router.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("ok"))
	})

	// The websocket route stays outside the timeout middleware.
	router.Get("/ws/tournaments/{tournamentID}", h.WebSocket.ServeWs)

	router.Group(func(r chi.Router) {
		r.Use(chiMiddleware.Timeout(30 * time.Second))

		r.Route("/handicap", func(r chi.Router) {
			r.Get("/tiers", h.Handicap.TiersHandler)
			r.Post("/calculate", h.Handicap.CalculateHandler)
		})

		r.Route("/tournaments/{tournamentID}", func(r chi.Router) {
			r.Get("/", h.Tournament.GetTournamentHandler)
			r.Get("/bracket", h.Tournament.GetBracketHandler)
			r.Get("/standings", h.Tournament.StandingsHandler)
			r.Get("/progress", h.Tournament.ProgressHandler)
			r.Get("/ratings", h.Tournament.RatingsHandler)
			r.Get("/matches/{matchID}/handicap", h.Tournament.MatchHandicapHandler)

			r.Group(func(r chi.Router) {
				if h.Authenticator != nil {
					r.Use(h.Authenticator.Authenticate)
					r.Use(middleware.Authorize(middleware.RoleOrganizer, middleware.RoleAdmin))
				}
				r.Post("/bracket", h.Tournament.GenerateBracketHandler)
				r.Post("/matches/{matchID}/start", h.Tournament.StartMatchHandler)
				r.Post("/matches/{matchID}/result", h.Tournament.ReportResultHandler)
				r.Post("/matches/{matchID}/reset", h.Tournament.ResetMatchHandler)
				r.Post("/cancel", h.Tournament.CancelTournamentHandler)
				r.Post("/archive", h.Tournament.ArchiveTournamentHandler)
			})
		})
	})
}
