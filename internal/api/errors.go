package api

import (
	"errors"
	"io/fs"
	"net/http"

	"github.com/signalsfoundry/flightdata-analyzer/ingest"
	"github.com/signalsfoundry/flightdata-analyzer/internal/logging"
	"github.com/signalsfoundry/flightdata-analyzer/outage"
	"github.com/signalsfoundry/flightdata-analyzer/playback"
	"github.com/signalsfoundry/flightdata-analyzer/session"
)

var (
	// errUnknownColumn is a package-level sentinel for series requests
	// naming a column absent from the mission.
	errUnknownColumn = errors.New("unknown column")
	// errBadRequest is a package-level sentinel for malformed request
	// bodies and query parameters.
	errBadRequest = errors.New("bad request")
)

// statusFromError maps analyzer errors onto HTTP status codes. Column
// failures from validation are unprocessable content; unknown entities are
// not found; rejected parameters are bad requests; operations needing a
// mission while none is loaded are conflicts.
func statusFromError(err error) int {
	var schemaErr *ingest.SchemaError
	switch {
	case errors.As(err, &schemaErr):
		return http.StatusUnprocessableEntity
	case errors.Is(err, outage.ErrUnknownLink),
		errors.Is(err, errUnknownColumn),
		errors.Is(err, fs.ErrNotExist):
		return http.StatusNotFound
	case errors.Is(err, outage.ErrInvalidThreshold),
		errors.Is(err, playback.ErrInvalidSpeed),
		errors.Is(err, errBadRequest):
		return http.StatusBadRequest
	case errors.Is(err, session.ErrNoDataset),
		errors.Is(err, outage.ErrNoSamples):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// writeError renders err through the response envelope and logs it on the
// request-scoped logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := statusFromError(err)

	log := logging.LoggerFromContext(r.Context())
	if log != nil {
		if status >= http.StatusInternalServerError {
			log.Error(r.Context(), "request failed",
				logging.Int("status", status), logging.Any("error", err))
		} else {
			log.Warn(r.Context(), "request rejected",
				logging.Int("status", status), logging.Any("error", err))
		}
	}

	writeJSON(w, status, apiResponse{Success: false, Error: err.Error()})
}
