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

type EntityHandler struct {
	entityService   *service.EntityService
	curationService *service.CurationService
}

func NewEntityHandler(entityService *service.EntityService, curationService *service.CurationService) *EntityHandler {
	return &EntityHandler{
		entityService:   entityService,
		curationService: curationService,
	}
}

type updateEntityRequest struct {
	Version  int                  `json:"version"`
	Name     *string              `json:"name,omitempty"`
	Status   *domain.EntityStatus `json:"status,omitempty"`
	Location *domain.Location     `json:"location,omitempty"`
	Contact  *domain.Contact      `json:"contact,omitempty"`
	Tags     []string             `json:"tags,omitempty"`
}

func (h *EntityHandler) CreateEntity(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req service.CreateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[CreateEntity] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusUnprocessableEntity)
		return
	}

	if req.Name == "" {
		http.Error(w, "Name is required", http.StatusUnprocessableEntity)
		return
	}

	entity, err := h.entityService.Create(r.Context(), &req)
	if err != nil {
		log.Printf("[CreateEntity] Failed: %v", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, entity)
}

func (h *EntityHandler) GetEntity(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entityID := chi.URLParam(r, "id")
	entity, err := h.entityService.Get(r.Context(), entityID)
	if err != nil {
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, entity)
}

// UpdateEntity — одиночное обновление под оптимистической блокировкой:
// тело обязано нести version, несовпадение — 409
func (h *EntityHandler) UpdateEntity(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entityID := chi.URLParam(r, "id")

	var req updateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[UpdateEntity] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusUnprocessableEntity)
		return
	}

	if req.Version < 1 {
		http.Error(w, "Version is required", http.StatusUnprocessableEntity)
		return
	}

	patch := &domain.EntityPatch{
		Name:     req.Name,
		Status:   req.Status,
		Location: req.Location,
		Contact:  req.Contact,
		Tags:     req.Tags,
	}

	entity, err := h.entityService.Update(r.Context(), entityID, patch, req.Version)
	if err != nil {
		log.Printf("[UpdateEntity] Failed for %s: %v", entityID, err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, entity)
}

// DeleteEntity: мягкое удаление по умолчанию, ?hard=true стирает запись
// необратимо и оставляет надгробие
func (h *EntityHandler) DeleteEntity(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entityID := chi.URLParam(r, "id")
	hard := r.URL.Query().Get("hard") == "true"

	if err := h.entityService.Delete(r.Context(), entityID, !hard); err != nil {
		log.Printf("[DeleteEntity] Failed for %s: %v", entityID, err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"message": "entity deleted", "entity_id": entityID})
}

func (h *EntityHandler) GetEntityCurations(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	entityID := chi.URLParam(r, "id")

	// Сначала убеждаемся, что сущность вообще есть
	if _, err := h.entityService.Get(r.Context(), entityID); err != nil {
		respondError(w, err)
		return
	}

	curations, err := h.curationService.ListByEntity(r.Context(), entityID)
	if err != nil {
		respondError(w, err)
		return
	}
	if curations == nil {
		curations = []domain.Curation{}
	}

	respondJSON(w, http.StatusOK, curations)
}
