package service

import (
	"context"
	"sort"
	"sync"
	"time"

	"curasync/internal/domain"
)

// fakeClock выдает строго возрастающие отметки времени, чтобы тесты
// водяного знака не зависели от реальных часов
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(time.Millisecond)
	return c.t
}

type fakeEntityRepo struct {
	mu       sync.Mutex
	clock    *fakeClock
	entities map[string]*domain.Entity
}

func newFakeEntityRepo(clock *fakeClock) *fakeEntityRepo {
	return &fakeEntityRepo{
		clock:    clock,
		entities: make(map[string]*domain.Entity),
	}
}

func copyEntity(e *domain.Entity) *domain.Entity {
	cp := *e
	cp.Tags = append([]string(nil), e.Tags...)
	cp.Metadata = append(domain.MetadataLog(nil), e.Metadata...)
	return &cp
}

func (r *fakeEntityRepo) Create(_ context.Context, entity *domain.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[entity.EntityID]; ok {
		return domain.ErrAlreadyExists
	}

	now := r.clock.Now()
	entity.Version = 1
	entity.CreatedAt = now
	entity.UpdatedAt = now
	r.entities[entity.EntityID] = copyEntity(entity)
	return nil
}

func (r *fakeEntityRepo) Upsert(_ context.Context, entity *domain.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.clock.Now()
	existing, ok := r.entities[entity.EntityID]
	if !ok {
		entity.Version = 1
		entity.CreatedAt = now
		entity.UpdatedAt = now
		r.entities[entity.EntityID] = copyEntity(entity)
		return nil
	}

	if entity.Name != "" {
		existing.Name = entity.Name
	}
	if entity.Location != nil {
		existing.Location = entity.Location
	}
	if entity.Contact != nil {
		existing.Contact = entity.Contact
	}
	if entity.Tags != nil {
		existing.Tags = append([]string(nil), entity.Tags...)
	}
	existing.Version++
	existing.UpdatedAt = now

	*entity = *copyEntity(existing)
	return nil
}

func (r *fakeEntityRepo) GetByID(_ context.Context, entityID string) (*domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[entityID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyEntity(entity), nil
}

func (r *fakeEntityRepo) Exists(_ context.Context, entityID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	_, ok := r.entities[entityID]
	return ok, nil
}

func (r *fakeEntityRepo) Update(_ context.Context, entityID string, patch *domain.EntityPatch, expectedVersion int) (*domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[entityID]
	if !ok || entity.Version != expectedVersion {
		return nil, domain.ErrNoMatch
	}

	if patch.Name != nil {
		entity.Name = *patch.Name
	}
	if patch.Status != nil {
		entity.Status = *patch.Status
	}
	if patch.Location != nil {
		entity.Location = patch.Location
	}
	if patch.Contact != nil {
		entity.Contact = patch.Contact
	}
	if patch.Tags != nil {
		entity.Tags = append([]string(nil), patch.Tags...)
	}
	entity.Version++
	entity.UpdatedAt = r.clock.Now()

	return copyEntity(entity), nil
}

func (r *fakeEntityRepo) SoftDelete(_ context.Context, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[entityID]
	if !ok {
		return domain.ErrNotFound
	}
	entity.Status = domain.EntityStatusDeleted
	entity.Version++
	entity.UpdatedAt = r.clock.Now()
	return nil
}

func (r *fakeEntityRepo) HardDelete(_ context.Context, entityID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entities[entityID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.entities, entityID)
	return nil
}

func (r *fakeEntityRepo) ListUpdatedSince(_ context.Context, since *time.Time, ids []string) ([]domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := idSet(ids)
	var out []domain.Entity
	for _, entity := range r.entities {
		if since != nil && !entity.UpdatedAt.After(*since) {
			continue
		}
		if allowed != nil && !allowed[entity.EntityID] {
			continue
		}
		out = append(out, *copyEntity(entity))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *fakeEntityRepo) AppendMetadata(_ context.Context, entityID string, entry domain.MetadataEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	entity, ok := r.entities[entityID]
	if !ok {
		return domain.ErrNotFound
	}
	entity.Metadata = append(entity.Metadata, entry)
	entity.UpdatedAt = r.clock.Now()
	return nil
}

type fakeCurationRepo struct {
	mu        sync.Mutex
	clock     *fakeClock
	curations map[string]*domain.Curation
}

func newFakeCurationRepo(clock *fakeClock) *fakeCurationRepo {
	return &fakeCurationRepo{
		clock:     clock,
		curations: make(map[string]*domain.Curation),
	}
}

func copyCuration(c *domain.Curation) *domain.Curation {
	cp := *c
	return &cp
}

func (r *fakeCurationRepo) Create(_ context.Context, curation *domain.Curation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.curations[curation.CurationID]; ok {
		return domain.ErrAlreadyExists
	}

	now := r.clock.Now()
	curation.Version = 1
	curation.IsDeleted = false
	curation.CreatedAt = now
	curation.UpdatedAt = now
	r.curations[curation.CurationID] = copyCuration(curation)
	return nil
}

func (r *fakeCurationRepo) GetByID(_ context.Context, curationID string) (*domain.Curation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	curation, ok := r.curations[curationID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return copyCuration(curation), nil
}

func (r *fakeCurationRepo) Update(_ context.Context, curationID string, patch *domain.CurationPatch, expectedVersion int) (*domain.Curation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	curation, ok := r.curations[curationID]
	if !ok || curation.Version != expectedVersion {
		return nil, domain.ErrNoMatch
	}

	if patch.Category != nil {
		curation.Category = *patch.Category
	}
	if patch.Rating != nil {
		curation.Rating = patch.Rating
	}
	if patch.Notes != nil {
		curation.Notes = *patch.Notes
	}
	if patch.Content != nil {
		curation.Content = patch.Content
	}
	curation.Version++
	curation.UpdatedAt = r.clock.Now()

	return copyCuration(curation), nil
}

func (r *fakeCurationRepo) SoftDelete(_ context.Context, curationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	curation, ok := r.curations[curationID]
	if !ok {
		return domain.ErrNotFound
	}
	curation.IsDeleted = true
	curation.Version++
	curation.UpdatedAt = r.clock.Now()
	return nil
}

func (r *fakeCurationRepo) HardDelete(_ context.Context, curationID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.curations[curationID]; !ok {
		return domain.ErrNotFound
	}
	delete(r.curations, curationID)
	return nil
}

func (r *fakeCurationRepo) ListUpdatedSince(_ context.Context, since *time.Time, entityIDs []string) ([]domain.Curation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := idSet(entityIDs)
	var out []domain.Curation
	for _, curation := range r.curations {
		if since != nil && !curation.UpdatedAt.After(*since) {
			continue
		}
		if allowed != nil && !allowed[curation.EntityID] {
			continue
		}
		out = append(out, *copyCuration(curation))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UpdatedAt.Before(out[j].UpdatedAt) })
	return out, nil
}

func (r *fakeCurationRepo) ListByEntity(_ context.Context, entityID string) ([]domain.Curation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var out []domain.Curation
	for _, curation := range r.curations {
		if curation.EntityID == entityID && !curation.IsDeleted {
			out = append(out, *copyCuration(curation))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

type fakeTombstoneRepo struct {
	mu         sync.Mutex
	clock      *fakeClock
	tombstones map[string]domain.Tombstone // ключ record_type/record_id
}

func newFakeTombstoneRepo(clock *fakeClock) *fakeTombstoneRepo {
	return &fakeTombstoneRepo{
		clock:      clock,
		tombstones: make(map[string]domain.Tombstone),
	}
}

func (r *fakeTombstoneRepo) Record(_ context.Context, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.tombstones[recordType+"/"+recordID] = domain.Tombstone{
		RecordType: recordType,
		RecordID:   recordID,
		DeletedAt:  r.clock.Now(),
	}
	return nil
}

func (r *fakeTombstoneRepo) ListSince(_ context.Context, recordType string, since *time.Time, ids []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	allowed := idSet(ids)
	var stones []domain.Tombstone
	for _, ts := range r.tombstones {
		if ts.RecordType != recordType {
			continue
		}
		if since != nil && !ts.DeletedAt.After(*since) {
			continue
		}
		if allowed != nil && !allowed[ts.RecordID] {
			continue
		}
		stones = append(stones, ts)
	}
	sort.Slice(stones, func(i, j int) bool { return stones[i].DeletedAt.Before(stones[j].DeletedAt) })

	var out []string
	for _, ts := range stones {
		out = append(out, ts.RecordID)
	}
	return out, nil
}

func (r *fakeTombstoneRepo) CurrentTimestamp(_ context.Context) (time.Time, error) {
	return r.clock.Now(), nil
}

func (r *fakeTombstoneRepo) DeleteExpired(_ context.Context, ttl time.Duration) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cutoff := r.clock.Now().Add(-ttl)
	var removed int64
	for key, ts := range r.tombstones {
		if ts.DeletedAt.Before(cutoff) {
			delete(r.tombstones, key)
			removed++
		}
	}
	return removed, nil
}

func idSet(ids []string) map[string]bool {
	if ids == nil {
		return nil
	}
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// syncFixture собирает полный стек сервисов поверх фейков
type syncFixture struct {
	clock         *fakeClock
	entityRepo    *fakeEntityRepo
	curationRepo  *fakeCurationRepo
	tombstoneRepo *fakeTombstoneRepo
	entities      *EntityService
	curations     *CurationService
	sync          *SyncService
}

func newSyncFixture(strictVersions bool) *syncFixture {
	clock := newFakeClock()
	entityRepo := newFakeEntityRepo(clock)
	curationRepo := newFakeCurationRepo(clock)
	tombstoneRepo := newFakeTombstoneRepo(clock)

	entities := NewEntityService(entityRepo, tombstoneRepo)
	curations := NewCurationService(curationRepo, entityRepo, tombstoneRepo)
	syncService := NewSyncService(entities, curations, tombstoneRepo, strictVersions)

	return &syncFixture{
		clock:         clock,
		entityRepo:    entityRepo,
		curationRepo:  curationRepo,
		tombstoneRepo: tombstoneRepo,
		entities:      entities,
		curations:     curations,
		sync:          syncService,
	}
}
