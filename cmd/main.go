package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-co-op/gocron/v2"

	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/config"
	"github.com/saboarena/tournament-engine/db"
	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/handlers"
	"github.com/saboarena/tournament-engine/middleware"
	"github.com/saboarena/tournament-engine/ranking"
	"github.com/saboarena/tournament-engine/repositories"
	api "github.com/saboarena/tournament-engine/routes"
	"github.com/saboarena/tournament-engine/seeding"
	"github.com/saboarena/tournament-engine/services"
	"github.com/saboarena/tournament-engine/storage"
)

const shutdownTimeout = 15 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))

	if err := run(logger); err != nil {
		logger.Error("application failed", slog.Any("error", err))
		os.Exit(1)
	}
	logger.Info("application exited")
}

func run(logger *slog.Logger) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}
	logger.Info("configuration loaded",
		slog.Int("port", cfg.ServerPort),
		slog.String("seeding_mode", string(cfg.SeedingMode)),
		slog.String("handicap_mode", string(cfg.HandicapMode)))

	if err := cfg.RequireStore(); err != nil {
		return err
	}

	var tournamentRepo repositories.TournamentRepository
	if cfg.DatabaseURL != "" {
		dbConn, err := db.Connect(cfg.DatabaseURL, 5*time.Second, logger)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		defer func() {
			if err := dbConn.Close(); err != nil {
				logger.Error("failed to close database connection", slog.Any("error", err))
			} else {
				logger.Info("database connection closed")
			}
		}()
		if err := db.Migrate(context.Background(), dbConn, logger); err != nil {
			return fmt.Errorf("failed to migrate database: %w", err)
		}
		tournamentRepo = repositories.NewPostgresTournamentRepository(dbConn)
		logger.Info("using postgres repository")
	} else {
		memoryRepo, err := loadFixture(cfg.FixtureFile)
		if err != nil {
			return err
		}
		tournamentRepo = memoryRepo
		logger.Warn("DATABASE_URL is empty, using in-memory repository",
			slog.String("fixture", cfg.FixtureFile))
	}

	var uploader storage.FileUploader
	r2Config := storage.CloudflareR2UploaderConfig{
		AccountID:       cfg.R2AccountID,
		AccessKeyID:     cfg.R2AccessKeyID,
		SecretAccessKey: cfg.R2SecretAccessKey,
		BucketName:      cfg.R2BucketName,
		PublicBaseURL:   cfg.R2PublicBaseURL,
	}
	if r2Config.Enabled() {
		uploader, err = storage.NewCloudflareR2Uploader(context.Background(), r2Config, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize Cloudflare R2 uploader: %w", err)
		}
		logger.Info("Cloudflare R2 uploader initialized", slog.String("bucket", cfg.R2BucketName))
	} else {
		logger.Info("R2 is not configured, bracket archiving disabled")
	}

	wsHub := brackets.NewHub(logger)
	go wsHub.Run()
	defer wsHub.Stop()

	calcConfig := handicap.Config{Tiers: handicap.DefaultTiers, Mode: cfg.HandicapMode}
	if cfg.UnrankedAsK {
		k := ranking.Default
		calcConfig.DefaultRank = &k
	}
	calculator, err := handicap.NewCalculator(calcConfig)
	if err != nil {
		return fmt.Errorf("failed to build handicap calculator: %w", err)
	}

	tournamentService, err := services.NewTournamentService(services.TournamentServiceConfig{
		Repository:    tournamentRepo,
		Generator:     brackets.NewDoubleEliminationGenerator(brackets.Options{MaxParticipants: cfg.BracketMaxParticipants}, nil),
		Seeder:        seeding.New(cfg.SeedingSalt),
		Calculator:    calculator,
		Notifier:      wsHub,
		Uploader:      uploader,
		Logger:        logger,
		SeedingMode:   cfg.SeedingMode,
		DefaultRaceTo: cfg.DefaultRaceTo,
	})
	if err != nil {
		return fmt.Errorf("failed to create tournament service: %w", err)
	}

	var sched gocron.Scheduler
	if uploader != nil && cfg.ArchiveInterval > 0 {
		sched, err = services.StartArchiveScheduler(tournamentService, cfg.ArchiveInterval, logger)
		if err != nil {
			return fmt.Errorf("failed to start archive scheduler: %w", err)
		}
		defer func() {
			if err := sched.Shutdown(); err != nil {
				logger.Error("failed to stop archive scheduler", slog.Any("error", err))
			}
		}()
		logger.Info("archive scheduler started", slog.Duration("interval", cfg.ArchiveInterval))
	}

	var authenticator *middleware.Authenticator
	if cfg.JWTSecretKey != "" {
		authenticator = middleware.NewAuthenticator(cfg.JWTSecretKey, logger)
	} else {
		logger.Warn("JWT_SECRET_KEY is empty, organizer routes are not protected")
	}

	router := chi.NewRouter()
	api.SetupRoutes(router, api.Handlers{
		Tournament:     handlers.NewTournamentHandler(tournamentService, logger),
		Handicap:       handlers.NewHandicapHandler(tournamentService, logger),
		WebSocket:      handlers.NewWebSocketHandler(wsHub, tournamentService, cfg.AllowedOrigins, logger),
		Authenticator:  authenticator,
		AllowedOrigins: cfg.AllowedOrigins,
	})

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.ServerPort),
		Handler:      router,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  120 * time.Second,
		ErrorLog:     slog.NewLogLogger(logger.Handler(), slog.LevelError),
	}

	serverErrors := make(chan error, 1)
	go func() {
		logger.Info("starting server", slog.String("address", server.Addr))
		serverErrors <- server.ListenAndServe()
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		logger.Info("server stopped gracefully")
	case sig := <-quit:
		logger.Info("shutdown signal received", slog.String("signal", sig.String()))
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			if closeErr := server.Close(); closeErr != nil {
				logger.Error("failed to force close server", slog.Any("error", closeErr))
			}
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
		logger.Info("server shutdown complete")
	}
	return nil
}

func loadFixture(path string) (*repositories.MemoryTournamentRepository, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open fixture: %w", err)
	}
	defer f.Close()
	repo, err := repositories.LoadMemoryFixture(f)
	if err != nil {
		return nil, fmt.Errorf("failed to load fixture %s: %w", path, err)
	}
	return repo, nil
}
