package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"curasync/internal/domain"
)

// SyncService — сверка правок отключаемого Collector-клиента с сервером.
// Каждый элемент пакета применяется независимо: неудача одного элемента
// попадает в список конфликтов и не роняет остальные.
type SyncService struct {
	entityService   *EntityService
	curationService *CurationService
	tombstoneRepo   TombstoneRepository

	// strictVersions выключает "прощающее" поведение: обновление без
	// версии становится конфликтом, а не записью поверх актуальной.
	// По умолчанию выключен — доступность push важнее строгой блокировки
	// для клиентов, забывших вернуть версию.
	strictVersions bool
}

func NewSyncService(
	entityService *EntityService,
	curationService *CurationService,
	tombstoneRepo TombstoneRepository,
	strictVersions bool,
) *SyncService {
	return &SyncService{
		entityService:   entityService,
		curationService: curationService,
		tombstoneRepo:   tombstoneRepo,
		strictVersions:  strictVersions,
	}
}

// Push применяет пакет в фиксированном порядке: сущности, затем курации,
// затем удаления. Порядок обязателен — проверка существования сущности у
// курации должна видеть сущности, созданные этим же пакетом.
// Ошибка возвращается только при отказе всего вызова (контекст/хранилище);
// все поэлементные исходы живут в отчете.
func (s *SyncService) Push(ctx context.Context, req *domain.PushRequest) (*domain.PushReport, error) {
	// Водяной знак берется с часов хранилища до применения пакета:
	// собственные правки клиента придут повторно на следующем pull,
	// но ничего не потеряется
	syncTimestamp, err := s.tombstoneRepo.CurrentTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store clock: %w", err)
	}

	report := &domain.PushReport{Conflicts: []domain.Conflict{}, SyncTimestamp: syncTimestamp}

	for i := range req.Entities {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.pushEntity(ctx, &req.Entities[i], report)
	}

	for i := range req.Curations {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s.pushCuration(ctx, req.CuratorID, &req.Curations[i], report)
	}

	for _, id := range req.DeletedEntityIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.entityService.Delete(ctx, id, true); err != nil {
			report.Conflicts = append(report.Conflicts, entityConflict(id, err))
			continue
		}
		report.EntitiesDeleted++
	}

	for _, id := range req.DeletedCurationIDs {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := s.curationService.Delete(ctx, id, true); err != nil {
			report.Conflicts = append(report.Conflicts, curationConflict(id, err))
			continue
		}
		report.CurationsDeleted++
	}

	log.Printf("[Push] curator=%s entities=%d/%d curations=%d/%d conflicts=%d",
		req.CuratorID,
		report.EntitiesCreated, report.EntitiesUpdated,
		report.CurationsCreated, report.CurationsUpdated,
		len(report.Conflicts))

	return report, nil
}

// pushEntity: без идентификатора — создание, с идентификатором — обновление
// под оптимистической блокировкой
func (s *SyncService) pushEntity(ctx context.Context, e *domain.Entity, report *domain.PushReport) {
	if e.EntityID == "" {
		created, err := s.entityService.Create(ctx, &CreateEntityRequest{
			Name:     e.Name,
			Status:   e.Status,
			Location: e.Location,
			Contact:  e.Contact,
			Tags:     e.Tags,
		})
		if err != nil {
			report.Conflicts = append(report.Conflicts, entityConflict("(new)", err))
			return
		}
		e.EntityID = created.EntityID
		report.EntitiesCreated++
		return
	}

	current, err := s.entityService.Get(ctx, e.EntityID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			report.Conflicts = append(report.Conflicts, domain.Conflict{
				Kind: domain.RecordTypeEntity, ID: e.EntityID, Reason: "not found",
			})
			return
		}
		report.Conflicts = append(report.Conflicts, entityConflict(e.EntityID, err))
		return
	}

	expected := e.Version
	forgiving := false
	if expected == 0 {
		if s.strictVersions {
			report.Conflicts = append(report.Conflicts, domain.Conflict{
				Kind: domain.RecordTypeEntity, ID: e.EntityID, Reason: "missing version",
			})
			return
		}
		// Прощающий режим: версия не пришла — работаем поверх актуальной
		expected = current.Version
		forgiving = true
	}

	if expected != current.Version {
		vc := &domain.VersionConflictError{ID: e.EntityID, Current: current.Version, Given: expected}
		report.Conflicts = append(report.Conflicts, entityConflict(e.EntityID, vc))
		return
	}

	if _, err := s.entityService.Update(ctx, e.EntityID, entityPushPatch(e), expected); err != nil {
		// Без версии клиент не выбирал, поверх чего писать: проигрыш гонки
		// между чтением актуальной версии и условной записью — не конфликт,
		// одна повторная попытка поверх свежей версии
		var vc *domain.VersionConflictError
		if forgiving && errors.As(err, &vc) {
			_, err = s.entityService.Update(ctx, e.EntityID, entityPushPatch(e), vc.Current)
		}
		if err != nil {
			report.Conflicts = append(report.Conflicts, entityConflict(e.EntityID, err))
			return
		}
	}
	report.EntitiesUpdated++
}

// pushCuration: неизвестный идентификатор — создание (Collector чеканит
// идентификаторы офлайн), известный — обновление под той же блокировкой.
// Создание требует существования сущности.
func (s *SyncService) pushCuration(ctx context.Context, curatorID string, c *domain.Curation, report *domain.PushReport) {
	if c.CuratorID == "" {
		c.CuratorID = curatorID
	}

	var current *domain.Curation
	if c.CurationID != "" {
		var err error
		current, err = s.curationService.Get(ctx, c.CurationID)
		if err != nil && !errors.Is(err, domain.ErrNotFound) {
			report.Conflicts = append(report.Conflicts, curationConflict(c.CurationID, err))
			return
		}
	}

	if current == nil {
		if err := s.curationService.Create(ctx, c); err != nil {
			id := c.CurationID
			if id == "" {
				id = "(new)"
			}
			if errors.Is(err, domain.ErrEntityNotFound) {
				report.Conflicts = append(report.Conflicts, domain.Conflict{
					Kind: domain.RecordTypeCuration, ID: id, Reason: "entity not found",
				})
				return
			}
			report.Conflicts = append(report.Conflicts, curationConflict(id, err))
			return
		}
		report.CurationsCreated++
		return
	}

	expected := c.Version
	forgiving := false
	if expected == 0 {
		if s.strictVersions {
			report.Conflicts = append(report.Conflicts, domain.Conflict{
				Kind: domain.RecordTypeCuration, ID: c.CurationID, Reason: "missing version",
			})
			return
		}
		expected = current.Version
		forgiving = true
	}

	if expected != current.Version {
		vc := &domain.VersionConflictError{ID: c.CurationID, Current: current.Version, Given: expected}
		report.Conflicts = append(report.Conflicts, curationConflict(c.CurationID, vc))
		return
	}

	if _, err := s.curationService.Update(ctx, c.CurationID, curationPushPatch(c), expected); err != nil {
		// Та же повторная попытка, что и у сущностей
		var vc *domain.VersionConflictError
		if forgiving && errors.As(err, &vc) {
			_, err = s.curationService.Update(ctx, c.CurationID, curationPushPatch(c), vc.Current)
		}
		if err != nil {
			report.Conflicts = append(report.Conflicts, curationConflict(c.CurationID, err))
			return
		}
	}
	report.CurationsUpdated++
}

// Pull — инкрементальная выборка по водяному знаку. Новый sync_timestamp
// берется с часов хранилища (тех же, что ставят updated_at) до запросов к
// ленте: запись, закоммиченная параллельно с выборкой, придет повторно на
// следующем pull, но не потеряется (семантика "минимум один раз после
// водяного знака").
func (s *SyncService) Pull(ctx context.Context, req *domain.PullRequest) (*domain.PullResponse, error) {
	syncTimestamp, err := s.tombstoneRepo.CurrentTimestamp(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read store clock: %w", err)
	}

	entities, err := s.entityService.ListSince(ctx, req.LastSyncTimestamp, req.EntityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to pull entities: %w", err)
	}

	curations, err := s.curationService.ListSince(ctx, req.LastSyncTimestamp, req.EntityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to pull curations: %w", err)
	}

	deletedEntities, err := s.tombstoneRepo.ListSince(ctx, domain.RecordTypeEntity, req.LastSyncTimestamp, req.EntityIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to pull entity tombstones: %w", err)
	}

	// Надгробия кураций не сужаются по entity_ids: связь с сущностью
	// пропадает вместе с жестко удаленной строкой. Клиент игнорирует
	// незнакомые идентификаторы.
	deletedCurations, err := s.tombstoneRepo.ListSince(ctx, domain.RecordTypeCuration, req.LastSyncTimestamp, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to pull curation tombstones: %w", err)
	}

	resp := &domain.PullResponse{
		Entities:           entities,
		Curations:          curations,
		DeletedEntityIDs:   deletedEntities,
		DeletedCurationIDs: deletedCurations,
		SyncTimestamp:      syncTimestamp,
	}
	if resp.Entities == nil {
		resp.Entities = []domain.Entity{}
	}
	if resp.Curations == nil {
		resp.Curations = []domain.Curation{}
	}
	if resp.DeletedEntityIDs == nil {
		resp.DeletedEntityIDs = []string{}
	}
	if resp.DeletedCurationIDs == nil {
		resp.DeletedCurationIDs = []string{}
	}

	return resp, nil
}

// CleanupTombstones удаляет надгробия старше TTL (фоновая задача)
func (s *SyncService) CleanupTombstones(ctx context.Context, ttl time.Duration) (int64, error) {
	return s.tombstoneRepo.DeleteExpired(ctx, ttl)
}

func entityPushPatch(e *domain.Entity) *domain.EntityPatch {
	patch := &domain.EntityPatch{
		Location: e.Location,
		Contact:  e.Contact,
		Tags:     e.Tags,
	}
	if e.Name != "" {
		patch.Name = &e.Name
	}
	if e.Status != "" {
		patch.Status = &e.Status
	}
	return patch
}

func curationPushPatch(c *domain.Curation) *domain.CurationPatch {
	patch := &domain.CurationPatch{
		Rating:  c.Rating,
		Content: c.Content,
	}
	if c.Category != "" {
		patch.Category = &c.Category
	}
	if c.Notes != "" {
		patch.Notes = &c.Notes
	}
	return patch
}

func entityConflict(id string, err error) domain.Conflict {
	return domain.Conflict{Kind: domain.RecordTypeEntity, ID: id, Reason: err.Error()}
}

func curationConflict(id string, err error) domain.Conflict {
	return domain.Conflict{Kind: domain.RecordTypeCuration, ID: id, Reason: err.Error()}
}
