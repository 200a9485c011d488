package services

import (
	"errors"
	"fmt"

	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/repositories"
)

// Errors returned by the services and mapped to HTTP statuses by the handlers.
// Engine, seeding and handicap errors are passed through wrapped, so callers
// match them with errors.Is against the package that defines them.
var (
	ErrValidationFailed = errors.New("validation failed")

	ErrTournamentNotFound  = errors.New("tournament not found")
	ErrBracketNotFound     = errors.New("bracket has not been generated for this tournament")
	ErrParticipantNotFound = errors.New("participant is not registered for this tournament")

	ErrTournamentInvalidStatus = errors.New("tournament is not in a status that allows this operation")
	ErrConcurrentUpdate        = errors.New("bracket was changed concurrently, reload and retry")

	ErrArchiveNotAllowed  = errors.New("only completed or cancelled tournaments can be archived")
	ErrArchiveUnavailable = errors.New("archive storage is not configured")
)

// handleRepositoryError translates storage errors into service errors.
func handleRepositoryError(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	msg := fmt.Sprintf(format, args...)
	switch {
	case errors.Is(err, repositories.ErrTournamentNotFound):
		return fmt.Errorf("%s: %w", msg, ErrTournamentNotFound)
	case errors.Is(err, repositories.ErrBracketNotFound):
		return fmt.Errorf("%s: %w", msg, ErrBracketNotFound)
	case errors.Is(err, repositories.ErrBracketExists):
		return fmt.Errorf("%s: %w", msg, brackets.ErrAlreadyInitialized)
	case errors.Is(err, repositories.ErrVersionConflict):
		return fmt.Errorf("%s: %w", msg, ErrConcurrentUpdate)
	case errors.Is(err, repositories.ErrInvalidRegistrant):
		return fmt.Errorf("%s: %w: %w", msg, ErrValidationFailed, err)
	}
	return fmt.Errorf("%s: %w", msg, err)
}
