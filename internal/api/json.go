package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/starford/mailwright/internal/apperr"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("json encode failed", slog.String("error", err.Error()))
	}
}

type errResponse struct {
	Error     string            `json:"error" validate:"required"`
	Missing   []string          `json:"missing,omitempty"`
	Malformed map[string]string `json:"malformed,omitempty"`
}

func errorBody(msg string) errResponse {
	return errResponse{Error: msg}
}

// decode reads a JSON request body of at most 1 MB into v.
func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// decodeOptional is decode for endpoints whose body may be empty, whether
// or not the client sent a Content-Length.
func decodeOptional(w http.ResponseWriter, r *http.Request, v any) bool {
	if r.Body == nil || r.Body == http.NoBody {
		return true
	}
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return false
	}
	return true
}

// writeError maps the error taxonomy onto HTTP status codes. Unknown errors
// are logged and reported as internal.
func writeError(w http.ResponseWriter, op string, err error) {
	var verr *apperr.ValidationError
	switch {
	case errors.As(err, &verr):
		writeJSON(w, http.StatusUnprocessableEntity, errResponse{
			Error:     verr.Error(),
			Missing:   verr.Missing,
			Malformed: verr.Malformed,
		})
	case errors.Is(err, apperr.ErrValidation):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrPayloadTooLarge):
		writeJSON(w, http.StatusRequestEntityTooLarge, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody("not found"))
	case errors.Is(err, apperr.ErrConcurrentLoad):
		writeJSON(w, http.StatusConflict, errorBody("another load replaced this one"))
	case errors.Is(err, apperr.ErrAlreadyExists), errors.Is(err, apperr.ErrConflict):
		writeJSON(w, http.StatusConflict, errorBody(err.Error()))
	case errors.Is(err, apperr.ErrLoadTimeout), errors.Is(err, apperr.ErrStoreUnavailable):
		slog.Warn(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusServiceUnavailable, errorBody("store unavailable, try again"))
	default:
		slog.Error(op+" failed", slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
	}
}
