package handler

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"

	"curasync/internal/auth"
	"curasync/internal/domain"
	"curasync/internal/service"
)

type SyncHandler struct {
	syncService       *service.SyncService
	enrichmentService *service.EnrichmentService
}

func NewSyncHandler(syncService *service.SyncService, enrichmentService *service.EnrichmentService) *SyncHandler {
	return &SyncHandler{
		syncService:       syncService,
		enrichmentService: enrichmentService,
	}
}

// Pull отдает все изменения после водяного знака клиента
func (h *SyncHandler) Pull(w http.ResponseWriter, r *http.Request) {
	curatorID, err := auth.VerifyToken(r)
	if err != nil {
		log.Printf("[Pull] Authentication failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req domain.PullRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[Pull] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusUnprocessableEntity)
		return
	}

	// Идентификатор из токена авторитетнее присланного в теле
	req.CuratorID = curatorID

	resp, err := h.syncService.Pull(r.Context(), &req)
	if err != nil {
		log.Printf("[Pull] Failed: %v", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Push принимает пакет правок клиента. Ответ всегда 200 при живом
// хранилище: поэлементные неудачи лежат в conflicts, и вызывающий обязан
// их разбирать — 200 не означает полный успех.
func (h *SyncHandler) Push(w http.ResponseWriter, r *http.Request) {
	curatorID, err := auth.VerifyToken(r)
	if err != nil {
		log.Printf("[Push] Authentication failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var req domain.PushRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Printf("[Push] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusUnprocessableEntity)
		return
	}

	req.CuratorID = curatorID

	report, err := h.syncService.Push(r.Context(), &req)
	if err != nil {
		log.Printf("[Push] Batch failed: %v", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}

// FromConcierge — прием анализа одной сущности от платформы обогащения
func (h *SyncHandler) FromConcierge(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		log.Printf("[FromConcierge] Authentication failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var payload domain.EnrichmentPayload
	if err := json.NewDecoder(r.Body).Decode(&payload); err != nil {
		log.Printf("[FromConcierge] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusUnprocessableEntity)
		return
	}

	if err := h.enrichmentService.Ingest(r.Context(), "", &payload); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			log.Printf("[FromConcierge] Entity not found: %s", payload.EntityID)
			respondJSON(w, http.StatusNotFound, map[string]string{"error": "entity not found"})
			return
		}
		log.Printf("[FromConcierge] Failed to ingest: %v", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{
		"message":   "embeddings ingested",
		"entity_id": payload.EntityID,
	})
}

// FromConciergeBatch — пакетный прием; поэлементные ошибки в отчете
func (h *SyncHandler) FromConciergeBatch(w http.ResponseWriter, r *http.Request) {
	if _, err := auth.VerifyToken(r); err != nil {
		log.Printf("[FromConciergeBatch] Authentication failed: %v", err)
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var batch domain.EnrichmentBatch
	if err := json.NewDecoder(r.Body).Decode(&batch); err != nil {
		log.Printf("[FromConciergeBatch] Failed to decode request body: %v", err)
		http.Error(w, "Invalid request body", http.StatusUnprocessableEntity)
		return
	}

	report, err := h.enrichmentService.IngestBatch(r.Context(), &batch)
	if err != nil {
		log.Printf("[FromConciergeBatch] Batch failed: %v", err)
		respondError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, report)
}
