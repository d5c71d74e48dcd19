package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"curasync/internal/domain"
)

func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// respondError отображает доменную таксономию ошибок на HTTP-статусы:
// NotFound/ссылочные — 404, конфликт версий и дубликаты — 409,
// все остальное — 500
func respondError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, domain.ErrNotFound), errors.Is(err, domain.ErrEntityNotFound):
		status = http.StatusNotFound
	case domain.IsVersionConflict(err), errors.Is(err, domain.ErrAlreadyExists):
		status = http.StatusConflict
	}

	respondJSON(w, status, map[string]string{"error": err.Error()})
}
