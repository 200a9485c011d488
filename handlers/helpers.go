package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/saboarena/tournament-engine/brackets"
	"github.com/saboarena/tournament-engine/handicap"
	"github.com/saboarena/tournament-engine/ranking"
	"github.com/saboarena/tournament-engine/seeding"
	"github.com/saboarena/tournament-engine/services"
)

type jsonResponse map[string]interface{}

const maxBodyBytes = 1_048_576

func readJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	r.Body = http.MaxBytesReader(w, r.Body, int64(maxBodyBytes))

	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	err := dec.Decode(dst)
	if err != nil {
		var syntaxError *json.SyntaxError
		var unmarshalTypeError *json.UnmarshalTypeError
		var invalidUnmarshalError *json.InvalidUnmarshalError
		var maxBytesError *http.MaxBytesError

		switch {
		case errors.As(err, &syntaxError):
			return fmt.Errorf("body contains badly-formed JSON (at character %d)", syntaxError.Offset)
		case errors.Is(err, io.ErrUnexpectedEOF):
			return errors.New("body contains badly-formed JSON")
		case errors.As(err, &unmarshalTypeError):
			if unmarshalTypeError.Field != "" {
				return fmt.Errorf("body contains incorrect JSON type for field %q", unmarshalTypeError.Field)
			}
			return fmt.Errorf("body contains incorrect JSON type (at character %d)", unmarshalTypeError.Offset)
		case errors.Is(err, io.EOF):
			return errors.New("body must not be empty")
		case strings.HasPrefix(err.Error(), "json: unknown field "):
			fieldName := strings.TrimPrefix(err.Error(), "json: unknown field ")
			return fmt.Errorf("body contains unknown key %s", fieldName)
		case errors.As(err, &maxBytesError):
			return fmt.Errorf("body must not be larger than %d bytes", maxBodyBytes)
		case errors.As(err, &invalidUnmarshalError):
			panic(err)
		default:
			return err
		}
	}

	if err = dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return errors.New("body must only contain a single JSON value")
	}
	return nil
}

// readOptionalJSON is readJSON for endpoints whose body may be omitted.
func readOptionalJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	if r.Body == nil || r.Body == http.NoBody || r.ContentLength == 0 {
		return nil
	}
	return readJSON(w, r, dst)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}, headers http.Header) error {
	js, err := json.MarshalIndent(data, "", "\t")
	if err != nil {
		return err
	}
	js = append(js, '\n')

	for key, value := range headers {
		w.Header()[key] = value
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(js)
	return err
}

func urlParamInt(r *http.Request, name string) (int, error) {
	raw := chi.URLParam(r, name)
	id, err := strconv.Atoi(raw)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s %q", name, raw)
	}
	return id, nil
}

// responder writes the error envelopes. It carries the logger used for
// failures the client cannot fix.
type responder struct {
	logger *slog.Logger
}

func (rs responder) errorResponse(w http.ResponseWriter, r *http.Request, status int, message interface{}) {
	if err := writeJSON(w, status, jsonResponse{"error": message}, nil); err != nil {
		rs.logger.Error("failed to write error response",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		w.WriteHeader(http.StatusInternalServerError)
	}
}

func (rs responder) serverErrorResponse(w http.ResponseWriter, r *http.Request, err error) {
	rs.logger.Error("internal server error",
		slog.String("method", r.Method),
		slog.String("path", r.URL.Path),
		slog.Any("error", err))
	rs.errorResponse(w, r, http.StatusInternalServerError, "the server encountered a problem and could not process your request")
}

func (rs responder) badRequestResponse(w http.ResponseWriter, r *http.Request, err error) {
	rs.errorResponse(w, r, http.StatusBadRequest, err.Error())
}

func (rs responder) failedValidationResponse(w http.ResponseWriter, r *http.Request, errs map[string]string) {
	rs.errorResponse(w, r, http.StatusUnprocessableEntity, errs)
}

func (rs responder) writeOrFail(w http.ResponseWriter, r *http.Request, status int, data interface{}) {
	if err := writeJSON(w, status, data, nil); err != nil {
		rs.serverErrorResponse(w, r, err)
	}
}

// mapServiceErrorToHTTP turns service, engine and calculator errors into
// HTTP responses.
func (rs responder) mapServiceErrorToHTTP(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, services.ErrTournamentNotFound),
		errors.Is(err, services.ErrBracketNotFound),
		errors.Is(err, services.ErrParticipantNotFound),
		errors.Is(err, brackets.ErrMatchNotFound):
		rs.errorResponse(w, r, http.StatusNotFound, err.Error())

	case errors.Is(err, brackets.ErrWiringInconsistency),
		errors.Is(err, handicap.ErrHandicapDrift):
		rs.serverErrorResponse(w, r, err)

	case errors.Is(err, brackets.ErrNotReady),
		errors.Is(err, brackets.ErrAlreadyCompleted),
		errors.Is(err, brackets.ErrResetBlocked),
		errors.Is(err, brackets.ErrTournamentClosed),
		errors.Is(err, brackets.ErrAlreadyInitialized),
		errors.Is(err, services.ErrConcurrentUpdate),
		errors.Is(err, services.ErrTournamentInvalidStatus),
		errors.Is(err, services.ErrArchiveNotAllowed):
		rs.errorResponse(w, r, http.StatusConflict, err.Error())

	case errors.Is(err, ranking.ErrInvalidRank),
		errors.Is(err, handicap.ErrMissingRank),
		errors.Is(err, handicap.ErrInvalidStake),
		errors.Is(err, brackets.ErrInvalidWinner),
		errors.Is(err, brackets.ErrInvalidScore),
		errors.Is(err, brackets.ErrUnsupportedParticipantCount),
		errors.Is(err, brackets.ErrSeedCountMismatch),
		errors.Is(err, brackets.ErrDuplicateSeed),
		errors.Is(err, seeding.ErrInsufficientParticipants),
		errors.Is(err, seeding.ErrDuplicateParticipant),
		errors.Is(err, seeding.ErrUnknownMode),
		errors.Is(err, services.ErrValidationFailed):
		rs.errorResponse(w, r, http.StatusUnprocessableEntity, err.Error())

	case errors.Is(err, services.ErrArchiveUnavailable):
		rs.errorResponse(w, r, http.StatusServiceUnavailable, err.Error())

	default:
		rs.serverErrorResponse(w, r, err)
	}
}
