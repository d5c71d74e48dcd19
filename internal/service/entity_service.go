package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"curasync/internal/domain"

	"github.com/google/uuid"
)

type EntityService struct {
	entityRepo    EntityRepository
	tombstoneRepo TombstoneRepository
}

func NewEntityService(entityRepo EntityRepository, tombstoneRepo TombstoneRepository) *EntityService {
	return &EntityService{
		entityRepo:    entityRepo,
		tombstoneRepo: tombstoneRepo,
	}
}

type CreateEntityRequest struct {
	// ExternalKey — ключ из внешнего источника (импортные потоки).
	// Если задан, идентификатор детерминированный и создание идет
	// через upsert-merge вместо строгой вставки.
	ExternalKey string              `json:"external_key,omitempty"`
	Name        string              `json:"name"`
	Status      domain.EntityStatus `json:"status,omitempty"`
	Location    *domain.Location    `json:"location,omitempty"`
	Contact     *domain.Contact     `json:"contact,omitempty"`
	Tags        []string            `json:"tags,omitempty"`
}

func (s *EntityService) Create(ctx context.Context, req *CreateEntityRequest) (*domain.Entity, error) {
	status := req.Status
	if status == "" {
		status = domain.EntityStatusActive
	}

	entity := &domain.Entity{
		Status:   status,
		Name:     req.Name,
		Location: req.Location,
		Contact:  req.Contact,
		Tags:     req.Tags,
	}

	if req.ExternalKey != "" {
		entity.EntityID = "ext-" + req.ExternalKey
		if err := s.entityRepo.Upsert(ctx, entity); err != nil {
			return nil, err
		}
		return entity, nil
	}

	entity.EntityID = uuid.NewString()
	if err := s.entityRepo.Create(ctx, entity); err != nil {
		return nil, err
	}

	return entity, nil
}

func (s *EntityService) Get(ctx context.Context, entityID string) (*domain.Entity, error) {
	return s.entityRepo.GetByID(ctx, entityID)
}

// Update применяет условную запись и разводит промах CAS на два исхода:
// записи нет вовсе — ErrNotFound, запись есть с другой версией —
// VersionConflictError с актуальной версией.
func (s *EntityService) Update(ctx context.Context, entityID string, patch *domain.EntityPatch, expectedVersion int) (*domain.Entity, error) {
	entity, err := s.entityRepo.Update(ctx, entityID, patch, expectedVersion)
	if err == nil {
		return entity, nil
	}
	if !errors.Is(err, domain.ErrNoMatch) {
		return nil, err
	}

	current, getErr := s.entityRepo.GetByID(ctx, entityID)
	if getErr != nil {
		if errors.Is(getErr, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve current entity: %w", getErr)
	}

	return nil, &domain.VersionConflictError{
		ID:      entityID,
		Current: current.Version,
		Given:   expectedVersion,
	}
}

// Delete: soft помечает статус deleted, иначе запись стирается необратимо
// и в журнал пишется надгробие для раздачи через pull
func (s *EntityService) Delete(ctx context.Context, entityID string, soft bool) error {
	if soft {
		return s.entityRepo.SoftDelete(ctx, entityID)
	}

	if err := s.entityRepo.HardDelete(ctx, entityID); err != nil {
		return err
	}

	return s.tombstoneRepo.Record(ctx, domain.RecordTypeEntity, entityID)
}

func (s *EntityService) ListSince(ctx context.Context, since *time.Time, ids []string) ([]domain.Entity, error) {
	return s.entityRepo.ListUpdatedSince(ctx, since, ids)
}
