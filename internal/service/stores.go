package service

import (
	"context"
	"time"

	"curasync/internal/domain"
)

// Интерфейсы хранилища, которыми владеют сервисы. Реализуются
// репозиториями из internal/repository, в тестах — фейками в памяти.

type EntityRepository interface {
	Create(ctx context.Context, entity *domain.Entity) error
	Upsert(ctx context.Context, entity *domain.Entity) error
	GetByID(ctx context.Context, entityID string) (*domain.Entity, error)
	Exists(ctx context.Context, entityID string) (bool, error)
	Update(ctx context.Context, entityID string, patch *domain.EntityPatch, expectedVersion int) (*domain.Entity, error)
	SoftDelete(ctx context.Context, entityID string) error
	HardDelete(ctx context.Context, entityID string) error
	ListUpdatedSince(ctx context.Context, since *time.Time, ids []string) ([]domain.Entity, error)
	AppendMetadata(ctx context.Context, entityID string, entry domain.MetadataEntry) error
}

type CurationRepository interface {
	Create(ctx context.Context, curation *domain.Curation) error
	GetByID(ctx context.Context, curationID string) (*domain.Curation, error)
	Update(ctx context.Context, curationID string, patch *domain.CurationPatch, expectedVersion int) (*domain.Curation, error)
	SoftDelete(ctx context.Context, curationID string) error
	HardDelete(ctx context.Context, curationID string) error
	ListUpdatedSince(ctx context.Context, since *time.Time, entityIDs []string) ([]domain.Curation, error)
	ListByEntity(ctx context.Context, entityID string) ([]domain.Curation, error)
}

type TombstoneRepository interface {
	Record(ctx context.Context, recordType, recordID string) error
	ListSince(ctx context.Context, recordType string, since *time.Time, ids []string) ([]string, error)
	DeleteExpired(ctx context.Context, ttl time.Duration) (int64, error)
	// CurrentTimestamp — часы хранилища, единственный источник времени
	// для водяных знаков: updated_at строк ставится теми же часами
	CurrentTimestamp(ctx context.Context) (time.Time, error)
}
