package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"taskboard/internal/board"
)

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func urlID(r *http.Request, name string) (uint64, bool) {
	id, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	return id, err == nil && id > 0
}

// writeServiceError maps board errors to status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, board.ErrNotFound):
		http.Error(w, "not found", http.StatusNotFound)
	case errors.Is(err, board.ErrForbidden):
		http.Error(w, "forbidden", http.StatusForbidden)
	case errors.Is(err, board.ErrInvalidInput):
		http.Error(w, "invalid input", http.StatusBadRequest)
	case errors.Is(err, board.ErrAlreadyMember):
		http.Error(w, "already a member", http.StatusConflict)
	default:
		log.Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		http.Error(w, "server error", http.StatusInternalServerError)
	}
}
