package handler

import (
	"encoding/json"
	"log"
	"net/http"

	"curasync/internal/auth"
	"curasync/internal/domain"
	"curasync/internal/service"

	"github.com/go-chi/chi/v5"
)

type CurationHandler struct {
	curationService *service.CurationService
}

func NewCurationHandler(curationService *service.CurationService) *CurationHandler {
	return &CurationHandler{curationService: curationService}
}

type createCurationRequest struct {
	EntityID string            `json:"entity_id"`
	Category string            `json:"category"`
	Rating   *int              `json:"rating,omitempty"`
	Notes    string            `json:"notes,omitempty"`
	Content  domain.OpaqueJSON `json:"content,omitempty"`
}

type updateCurationRequest struct {
	Version  int               `json:"version"`
	Category *string           `json:"category,omitempty"`
	Rating   *int              `json:"rating,omitempty"`
	Notes    *string           `json:"notes,omitempty"`
	Content  domain.OpaqueJSON `json:"content,omitempty"`
}

// CreateCuration: курация на несуществующую сущность — 404, частичных
// записей не остается
func (h *CurationHandler) CreateCuration(w http.ResponseWriter, r *http.Request) {
	curatorID, err := auth.VerifyToken(r)
	if err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req createCurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[CreateCuration] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusUnprocessableEntity)
		return
	}

	if req.EntityID == "" {
		http.Error(w, "Entity ID is required", http.StatusUnprocessableEntity)
		return
	}

	curation := &domain.Curation{
		EntityID:  req.EntityID,
		CuratorID: curatorID,
		Category:  req.Category,
		Rating:    req.Rating,
		Notes:     req.Notes,
		Content:   req.Content,
	}

	if err := h.curationService.Create(r.Context(), curation); err != nil {
		log.Printf("[CreateCuration] Failed: %v", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, curation)
}

func (h *CurationHandler) GetCuration(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	curationID := chi.URLParam(r, "id")
	curation, err := h.curationService.Get(r.Context(), curationID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, curation)
}

func (h *CurationHandler) UpdateCuration(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	curationID := chi.URLParam(r, "id")

	var req updateCurationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[UpdateCuration] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusUnprocessableEntity)
		return
	}

	if req.Version < 1 {
		http.Error(w, "Version is required", http.StatusUnprocessableEntity)
		return
	}

	patch := &domain.CurationPatch{
		Category: req.Category,
		Rating:   req.Rating,
		Notes:    req.Notes,
		Content:  req.Content,
	}

	curation, err := h.curationService.Update(r.Context(), curationID, patch, req.Version)
	if err != nil {
		log.Printf("[UpdateCuration] Failed for %s: %v", curationID, err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, curation)
}

func (h *CurationHandler) DeleteCuration(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	curationID := chi.URLParam(r, "id")
	hard := r.URL.Query().Get("hard") == "true"

	if err := h.curationService.Delete(r.Context(), curationID, !hard); err != nil {
		log.Printf("[DeleteCuration] Failed for %s: %v", curationID, err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "curation deleted", "curation_id": curationID})
}
