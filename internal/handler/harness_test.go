package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"curasync/internal/auth"
	"curasync/internal/domain"
	"curasync/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

// Компактные фейки хранилища для прогона хендлеров без Postgres.
// Семантика CAS и ссылочных проверок та же, что у репозиториев.

type memEntityRepo struct {
	mu       sync.Mutex
	entities map[string]*domain.Entity
}

func newMemEntityRepo() *memEntityRepo {
	return &memEntityRepo{entities: make(map[string]*domain.Entity)}
}

func (r *memEntityRepo) Create(_ context.Context, e *domain.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[e.EntityID]; ok {
		return domain.ErrAlreadyExists
	}
	e.Version = 1
	e.CreatedAt = time.Now().UTC()
	e.UpdatedAt = e.CreatedAt
	cp := *e
	r.entities[e.EntityID] = &cp
	return nil
}

func (r *memEntityRepo) Upsert(_ context.Context, e *domain.Entity) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.entities[e.EntityID]
	if !ok {
		e.Version = 1
		e.CreatedAt = time.Now().UTC()
		e.UpdatedAt = e.CreatedAt
		cp := *e
		r.entities[e.EntityID] = &cp
		return nil
	}
	if e.Name != "" {
		existing.Name = e.Name
	}
	existing.Version++
	existing.UpdatedAt = time.Now().UTC()
	*e = *existing
	return nil
}

func (r *memEntityRepo) GetByID(_ context.Context, id string) (*domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (r *memEntityRepo) Exists(_ context.Context, id string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.entities[id]
	return ok, nil
}

func (r *memEntityRepo) Update(_ context.Context, id string, patch *domain.EntityPatch, expectedVersion int) (*domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok || e.Version != expectedVersion {
		return nil, domain.ErrNoMatch
	}
	if patch.Name != nil {
		e.Name = *patch.Name
	}
	if patch.Status != nil {
		e.Status = *patch.Status
	}
	e.Version++
	e.UpdatedAt = time.Now().UTC()
	cp := *e
	return &cp, nil
}

func (r *memEntityRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Status = domain.EntityStatusDeleted
	e.Version++
	e.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memEntityRepo) HardDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entities[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.entities, id)
	return nil
}

func (r *memEntityRepo) ListUpdatedSince(_ context.Context, since *time.Time, ids []string) ([]domain.Entity, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Entity
	for _, e := range r.entities {
		if since != nil && !e.UpdatedAt.After(*since) {
			continue
		}
		out = append(out, *e)
	}
	return out, nil
}

func (r *memEntityRepo) AppendMetadata(_ context.Context, id string, entry domain.MetadataEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	e, ok := r.entities[id]
	if !ok {
		return domain.ErrNotFound
	}
	e.Metadata = append(e.Metadata, entry)
	e.UpdatedAt = time.Now().UTC()
	return nil
}

type memCurationRepo struct {
	mu        sync.Mutex
	curations map[string]*domain.Curation
}

func newMemCurationRepo() *memCurationRepo {
	return &memCurationRepo{curations: make(map[string]*domain.Curation)}
}

func (r *memCurationRepo) Create(_ context.Context, c *domain.Curation) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.curations[c.CurationID]; ok {
		return domain.ErrAlreadyExists
	}
	c.Version = 1
	c.CreatedAt = time.Now().UTC()
	c.UpdatedAt = c.CreatedAt
	cp := *c
	r.curations[c.CurationID] = &cp
	return nil
}

func (r *memCurationRepo) GetByID(_ context.Context, id string) (*domain.Curation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.curations[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *c
	return &cp, nil
}

func (r *memCurationRepo) Update(_ context.Context, id string, patch *domain.CurationPatch, expectedVersion int) (*domain.Curation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.curations[id]
	if !ok || c.Version != expectedVersion {
		return nil, domain.ErrNoMatch
	}
	if patch.Notes != nil {
		c.Notes = *patch.Notes
	}
	if patch.Category != nil {
		c.Category = *patch.Category
	}
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	cp := *c
	return &cp, nil
}

func (r *memCurationRepo) SoftDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.curations[id]
	if !ok {
		return domain.ErrNotFound
	}
	c.IsDeleted = true
	c.Version++
	c.UpdatedAt = time.Now().UTC()
	return nil
}

func (r *memCurationRepo) HardDelete(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.curations[id]; !ok {
		return domain.ErrNotFound
	}
	delete(r.curations, id)
	return nil
}

func (r *memCurationRepo) ListUpdatedSince(_ context.Context, since *time.Time, entityIDs []string) ([]domain.Curation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Curation
	for _, c := range r.curations {
		if since != nil && !c.UpdatedAt.After(*since) {
			continue
		}
		out = append(out, *c)
	}
	return out, nil
}

func (r *memCurationRepo) ListByEntity(_ context.Context, entityID string) ([]domain.Curation, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Curation
	for _, c := range r.curations {
		if c.EntityID == entityID && !c.IsDeleted {
			out = append(out, *c)
		}
	}
	return out, nil
}

type memTombstoneRepo struct {
	mu     sync.Mutex
	stones []domain.Tombstone
}

func (r *memTombstoneRepo) Record(_ context.Context, recordType, recordID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stones = append(r.stones, domain.Tombstone{
		RecordType: recordType,
		RecordID:   recordID,
		DeletedAt:  time.Now().UTC(),
	})
	return nil
}

func (r *memTombstoneRepo) ListSince(_ context.Context, recordType string, since *time.Time, _ []string) ([]string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []string
	for _, ts := range r.stones {
		if ts.RecordType != recordType {
			continue
		}
		if since != nil && !ts.DeletedAt.After(*since) {
			continue
		}
		out = append(out, ts.RecordID)
	}
	return out, nil
}

func (r *memTombstoneRepo) CurrentTimestamp(_ context.Context) (time.Time, error) {
	return time.Now().UTC(), nil
}

func (r *memTombstoneRepo) DeleteExpired(_ context.Context, _ time.Duration) (int64, error) {
	return 0, nil
}

type testEnv struct {
	router     chi.Router
	entityRepo *memEntityRepo
	entities   *service.EntityService
	curations  *service.CurationService
}

// newTestEnv поднимает фейковый auth-сервис и полный роутер поверх
// фейков хранилища. Токен "Bearer good" дает curator id cur-1.
func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	authSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Authorization") != "Bearer good" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]interface{}{
			"user": map[string]string{"id": "cur-1"},
		})
	}))
	t.Cleanup(authSrv.Close)
	auth.InitClient(authSrv.URL)

	entityRepo := newMemEntityRepo()
	curationRepo := newMemCurationRepo()
	tombstoneRepo := &memTombstoneRepo{}

	entities := service.NewEntityService(entityRepo, tombstoneRepo)
	curations := service.NewCurationService(curationRepo, entityRepo, tombstoneRepo)
	syncService := service.NewSyncService(entities, curations, tombstoneRepo, false)
	enrichment := service.NewEnrichmentService(entityRepo, nil)

	entityHandler := NewEntityHandler(entities, curations)
	curationHandler := NewCurationHandler(curations)
	syncHandler := NewSyncHandler(syncService, enrichment)

	r := chi.NewRouter()
	r.Route("/v1", func(r chi.Router) {
		r.Route("/sync", func(r chi.Router) {
			r.Post("/pull", syncHandler.Pull)
			r.Post("/push", syncHandler.Push)
			r.Post("/from-concierge", syncHandler.FromConcierge)
			r.Post("/from-concierge-batch", syncHandler.FromConciergeBatch)
		})
		r.Post("/entities", entityHandler.CreateEntity)
		r.Route("/entities/{id}", func(r chi.Router) {
			r.Get("/", entityHandler.GetEntity)
			r.Put("/", entityHandler.UpdateEntity)
			r.Delete("/", entityHandler.DeleteEntity)
			r.Get("/curations", entityHandler.GetEntityCurations)
		})
		r.Post("/curations", curationHandler.CreateCuration)
		r.Route("/curations/{id}", func(r chi.Router) {
			r.Get("/", curationHandler.GetCuration)
			r.Put("/", curationHandler.UpdateCuration)
			r.Delete("/", curationHandler.DeleteCuration)
		})
	})

	return &testEnv{
		router:     r,
		entityRepo: entityRepo,
		entities:   entities,
		curations:  curations,
	}
}

// do выполняет запрос с валидным токеном и декодирует ответ в out
func (env *testEnv) do(t *testing.T, method, path string, body interface{}, out interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}

	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Authorization", "Bearer good")
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	env.router.ServeHTTP(rec, req)

	if out != nil && rec.Code < 300 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), out))
	}
	return rec
}
