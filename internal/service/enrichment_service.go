package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"time"

	"curasync/internal/domain"

	"github.com/google/uuid"
)

// Archiver сохраняет сырой payload обогащения для аудита/реплея.
// Реализуется S3-клиентом; nil означает "архив не настроен".
type Archiver interface {
	Archive(ctx context.Context, key string, data []byte) error
}

// EnrichmentService принимает асинхронно посчитанный анализ (эмбеддинги)
// от платформы-консьержа. Запись идет чистым append в журнал метаданных
// сущности и не трогает version — конкурентное обновление куратора
// никогда не получит ложный конфликт из-за обогащения.
type EnrichmentService struct {
	entityRepo EntityRepository
	archive    Archiver
}

func NewEnrichmentService(entityRepo EntityRepository, archive Archiver) *EnrichmentService {
	return &EnrichmentService{
		entityRepo: entityRepo,
		archive:    archive,
	}
}

// embeddingData — payload записи журнала метаданных
type embeddingData struct {
	Embeddings  []float64         `json:"embeddings"`
	Analysis    domain.OpaqueJSON `json:"analysis,omitempty"`
	GeneratedAt time.Time         `json:"generated_at"`
}

// Ingest идемпотентно дописывает анализ в журнал метаданных сущности.
// Несуществующая сущность — domain.ErrNotFound, неявное создание запрещено.
func (s *EnrichmentService) Ingest(ctx context.Context, source string, payload *domain.EnrichmentPayload) error {
	if payload.EntityID == "" {
		return fmt.Errorf("entity_id is required")
	}

	exists, err := s.entityRepo.Exists(ctx, payload.EntityID)
	if err != nil {
		return fmt.Errorf("failed to check entity existence: %w", err)
	}
	if !exists {
		return domain.ErrNotFound
	}

	if source == "" {
		source = "concierge"
	}

	data, err := json.Marshal(embeddingData{
		Embeddings:  payload.Embeddings,
		Analysis:    payload.Analysis,
		GeneratedAt: payload.GeneratedAt,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal embedding payload: %w", err)
	}

	s.archivePayload(ctx, payload.EntityID, data)

	entry := domain.MetadataEntry{
		Type:      domain.MetadataTypeConciergeEmbeddings,
		Source:    source,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}

	return s.entityRepo.AppendMetadata(ctx, payload.EntityID, entry)
}

// IngestBatch применяет каждый payload независимо и собирает поэлементные
// ошибки в отчет — та же изоляция, что и в push
func (s *EnrichmentService) IngestBatch(ctx context.Context, batch *domain.EnrichmentBatch) (*domain.IngestReport, error) {
	report := &domain.IngestReport{Errors: []domain.IngestError{}}

	for i := range batch.Embeddings {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		payload := &batch.Embeddings[i]
		if err := s.Ingest(ctx, batch.Source, payload); err != nil {
			report.Errors = append(report.Errors, domain.IngestError{
				EntityID: payload.EntityID,
				Reason:   err.Error(),
			})
			continue
		}
		report.EntitiesUpdated++
	}

	report.Timestamp = time.Now().UTC()

	log.Printf("[IngestBatch] source=%s updated=%d errors=%d",
		batch.Source, report.EntitiesUpdated, len(report.Errors))

	return report, nil
}

// archivePayload кладет аудиторскую копию в S3. Отказ архива логируется
// и не блокирует прием — архив вспомогательный.
func (s *EnrichmentService) archivePayload(ctx context.Context, entityID string, data []byte) {
	if s.archive == nil {
		return
	}

	key := fmt.Sprintf("concierge/%s/%s-%s.json",
		time.Now().UTC().Format("2006-01-02"), entityID, uuid.NewString())
	if err := s.archive.Archive(ctx, key, data); err != nil {
		log.Printf("[Enrichment] Failed to archive payload for %s: %v", entityID, err)
	}
}
