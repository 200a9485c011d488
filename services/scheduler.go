package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-co-op/gocron/v2"
)

// StartArchiveScheduler runs ArchiveFinished every interval until the returned
// scheduler is shut down.
func StartArchiveScheduler(service TournamentService, interval time.Duration, logger *slog.Logger) (gocron.Scheduler, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("archive interval must be positive, got %s", interval)
	}
	sched, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create scheduler: %w", err)
	}

	_, err = sched.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(func() {
			ctx, cancel := context.WithTimeout(context.Background(), interval)
			defer cancel()

			archived, err := service.ArchiveFinished(ctx)
			if err != nil && !errors.Is(err, ErrArchiveUnavailable) {
				logger.Error("archive sweep finished with errors",
					slog.Int("archived", archived),
					slog.Any("error", err))
				return
			}
			if archived > 0 {
				logger.Info("archive sweep", slog.Int("archived", archived))
			}
		}),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	)
	if err != nil {
		_ = sched.Shutdown()
		return nil, fmt.Errorf("failed to schedule archive sweep: %w", err)
	}

	sched.Start()
	return sched, nil
}
