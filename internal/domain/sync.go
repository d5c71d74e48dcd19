package domain

import "time"

// Типы записей для журнала надгробий (жестких удалений)
const (
	RecordTypeEntity   = "entity"
	RecordTypeCuration = "curation"
)

// MetadataTypeConciergeEmbeddings — тип записи журнала метаданных,
// которую добавляет платформа обогащения
const MetadataTypeConciergeEmbeddings = "concierge_embeddings"

// PullRequest — инкрементальная выборка для Collector-клиента.
// LastSyncTimestamp == nil означает полную пересинхронизацию.
type PullRequest struct {
	CuratorID         string     `json:"curator_id"`
	LastSyncTimestamp *time.Time `json:"last_sync_timestamp,omitempty"`
	EntityIDs         []string   `json:"entity_ids,omitempty"`
}

type PullResponse struct {
	Entities           []Entity   `json:"entities"`
	Curations          []Curation `json:"curations"`
	DeletedEntityIDs   []string   `json:"deleted_entity_ids"`
	DeletedCurationIDs []string   `json:"deleted_curation_ids"`
	SyncTimestamp      time.Time  `json:"sync_timestamp"`
}

// PushRequest — пакет накопленных клиентом правок. Каждый элемент
// применяется независимо от остальных.
type PushRequest struct {
	CuratorID          string     `json:"curator_id"`
	Entities           []Entity   `json:"entities"`
	Curations          []Curation `json:"curations"`
	DeletedEntityIDs   []string   `json:"deleted_entity_ids"`
	DeletedCurationIDs []string   `json:"deleted_curation_ids"`
}

// Conflict — итог одного неприменившегося элемента пакета
type Conflict struct {
	Kind   string `json:"kind"` // entity | curation
	ID     string `json:"id"`
	Reason string `json:"reason"`
}

type PushReport struct {
	EntitiesCreated  int        `json:"entities_created"`
	EntitiesUpdated  int        `json:"entities_updated"`
	EntitiesDeleted  int        `json:"entities_deleted"`
	CurationsCreated int        `json:"curations_created"`
	CurationsUpdated int        `json:"curations_updated"`
	CurationsDeleted int        `json:"curations_deleted"`
	Conflicts        []Conflict `json:"conflicts"`
	SyncTimestamp    time.Time  `json:"sync_timestamp"`
}

// EnrichmentPayload — асинхронно посчитанный анализ одной сущности.
// Analysis намеренно без схемы: платформа обогащения шлет произвольный JSON.
type EnrichmentPayload struct {
	EntityID    string     `json:"entity_id"`
	Embeddings  []float64  `json:"embeddings"`
	Analysis    OpaqueJSON `json:"analysis,omitempty"`
	GeneratedAt time.Time  `json:"generated_at"`
}

type EnrichmentBatch struct {
	Source     string              `json:"source"`
	Embeddings []EnrichmentPayload `json:"embeddings"`
}

type IngestError struct {
	EntityID string `json:"entity_id"`
	Reason   string `json:"reason"`
}

type IngestReport struct {
	EntitiesUpdated int           `json:"entities_updated"`
	Errors          []IngestError `json:"errors"`
	Timestamp       time.Time     `json:"timestamp"`
}

// Tombstone — след жесткого удаления, живет ограниченное время (TTL)
// и раздается через pull, чтобы клиенты узнавали об удалениях
type Tombstone struct {
	RecordType string    `json:"record_type" db:"record_type"`
	RecordID   string    `json:"record_id" db:"record_id"`
	DeletedAt  time.Time `json:"deleted_at" db:"deleted_at"`
}
