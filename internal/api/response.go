package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/medequip/depot/internal/common"
)

// jsonResponse writes a JSON response with the given status code.
func jsonResponse(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Error("error encoding response", "error", err)
		}
	}
}

// jsonError writes a JSON error response.
func jsonError(w http.ResponseWriter, status int, message string) {
	jsonResponse(w, status, map[string]string{"error": message})
}

// writeServiceError maps a domain error to its status code. Anything that
// is not a known domain error is logged and reported as a generic 500.
func writeServiceError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, common.ErrNotAuthenticated):
		jsonError(w, http.StatusUnauthorized, "not authenticated")
	case errors.Is(err, common.ErrNotAuthorized):
		jsonError(w, http.StatusForbidden, "insufficient permissions")
	case errors.Is(err, common.ErrInvalidArgument):
		jsonError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, common.ErrNotFound):
		jsonError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, common.ErrAlreadyDecided), errors.Is(err, common.ErrInsufficientStock):
		jsonError(w, http.StatusConflict, err.Error())
	default:
		slog.Error(op+" failed", "error", err)
		jsonError(w, http.StatusInternalServerError, "internal error")
	}
}

// decodeJSON decodes a JSON request body into the given target.
func decodeJSON(r *http.Request, target any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(target)
}

// pathID parses the {id} path value. It writes a 400 and returns false on
// failure.
func pathID(w http.ResponseWriter, r *http.Request, what string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil || id <= 0 {
		jsonError(w, http.StatusBadRequest, "invalid "+what+" id")
		return 0, false
	}
	return id, true
}

// queryInt64 parses an optional integer query parameter (0 when absent).
func queryInt64(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	v := r.URL.Query().Get(name)
	if v == "" {
		return 0, true
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		jsonError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return n, true
}
