package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"curasync/internal/domain"

	"github.com/google/uuid"
)

type CurationService struct {
	curationRepo  CurationRepository
	entityRepo    EntityRepository
	tombstoneRepo TombstoneRepository
}

func NewCurationService(
	curationRepo CurationRepository,
	entityRepo EntityRepository,
	tombstoneRepo TombstoneRepository,
) *CurationService {
	return &CurationService{
		curationRepo:  curationRepo,
		entityRepo:    entityRepo,
		tombstoneRepo: tombstoneRepo,
	}
}

// Create сначала проверяет, что сущность существует: курация без сущности
// не создается никогда (ссылочная проверка на уровне приложения, не БД)
func (s *CurationService) Create(ctx context.Context, curation *domain.Curation) error {
	exists, err := s.entityRepo.Exists(ctx, curation.EntityID)
	if err != nil {
		return fmt.Errorf("failed to check entity existence: %w", err)
	}
	if !exists {
		return domain.ErrEntityNotFound
	}

	if curation.CurationID == "" {
		curation.CurationID = uuid.NewString()
	}

	return s.curationRepo.Create(ctx, curation)
}

func (s *CurationService) Get(ctx context.Context, curationID string) (*domain.Curation, error) {
	return s.curationRepo.GetByID(ctx, curationID)
}

// Update — та же дисциплина оптимистической блокировки, что и у сущностей
func (s *CurationService) Update(ctx context.Context, curationID string, patch *domain.CurationPatch, expectedVersion int) (*domain.Curation, error) {
	curation, err := s.curationRepo.Update(ctx, curationID, patch, expectedVersion)
	if err == nil {
		return curation, nil
	}
	if !errors.Is(err, domain.ErrNoMatch) {
		return nil, err
	}

	current, getErr := s.curationRepo.GetByID(ctx, curationID)
	if getErr != nil {
		if errors.Is(getErr, domain.ErrNotFound) {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to resolve current curation: %w", getErr)
	}

	return nil, &domain.VersionConflictError{
		ID:      curationID,
		Current: current.Version,
		Given:   expectedVersion,
	}
}

func (s *CurationService) Delete(ctx context.Context, curationID string, soft bool) error {
	if soft {
		return s.curationRepo.SoftDelete(ctx, curationID)
	}

	if err := s.curationRepo.HardDelete(ctx, curationID); err != nil {
		return err
	}

	return s.tombstoneRepo.Record(ctx, domain.RecordTypeCuration, curationID)
}

func (s *CurationService) ListSince(ctx context.Context, since *time.Time, entityIDs []string) ([]domain.Curation, error) {
	return s.curationRepo.ListUpdatedSince(ctx, since, entityIDs)
}

func (s *CurationService) ListByEntity(ctx context.Context, entityID string) ([]domain.Curation, error) {
	return s.curationRepo.ListByEntity(ctx, entityID)
}
