package repository

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"curasync/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type EntityRepository struct {
	db *sqlx.DB
}

func NewEntityRepository(db *sqlx.DB) *EntityRepository {
	return &EntityRepository{db: db}
}

// Create строго вставляет новую сущность с version = 1.
// Повтор идентификатора — domain.ErrAlreadyExists.
func (r *EntityRepository) Create(ctx context.Context, entity *domain.Entity) error {
	query := `
        INSERT INTO entities (entity_id, version, status, name, location, contact, tags, metadata)
        VALUES ($1, 1, $2, $3, $4, $5, $6, '[]'::jsonb)
        RETURNING version, created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		entity.EntityID,
		entity.Status,
		entity.Name,
		entity.Location,
		entity.Contact,
		entity.Tags,
	).Scan(&entity.Version, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create entity: %w", err)
	}

	return nil
}

// Upsert — импортный путь создания: если сущность с таким внешним ключом
// уже есть, доменные поля домерживаются и версия растет как при обычном
// обновлении. Журнал метаданных при этом не трогается.
func (r *EntityRepository) Upsert(ctx context.Context, entity *domain.Entity) error {
	query := `
        INSERT INTO entities (entity_id, version, status, name, location, contact, tags, metadata)
        VALUES ($1, 1, $2, $3, $4, $5, $6, '[]'::jsonb)
        ON CONFLICT (entity_id) DO UPDATE SET
            name = CASE WHEN EXCLUDED.name <> '' THEN EXCLUDED.name ELSE entities.name END,
            location = COALESCE(EXCLUDED.location, entities.location),
            contact = COALESCE(EXCLUDED.contact, entities.contact),
            tags = COALESCE(EXCLUDED.tags, entities.tags),
            version = entities.version + 1,
            updated_at = CURRENT_TIMESTAMP
        RETURNING version, status, created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		entity.EntityID,
		entity.Status,
		entity.Name,
		entity.Location,
		entity.Contact,
		entity.Tags,
	).Scan(&entity.Version, &entity.Status, &entity.CreatedAt, &entity.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to upsert entity: %w", err)
	}

	return nil
}

func (r *EntityRepository) GetByID(ctx context.Context, entityID string) (*domain.Entity, error) {
	var entity domain.Entity
	query := `SELECT * FROM entities WHERE entity_id = $1`

	err := r.db.GetContext(ctx, &entity, query, entityID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get entity: %w", err)
	}

	return &entity, nil
}

func (r *EntityRepository) Exists(ctx context.Context, entityID string) (bool, error) {
	var exists bool
	err := r.db.GetContext(ctx, &exists,
		`SELECT EXISTS(SELECT 1 FROM entities WHERE entity_id = $1)`,
		entityID)
	if err != nil {
		return false, fmt.Errorf("failed to check entity existence: %w", err)
	}

	return exists, nil
}

// Update — атомарная условная запись: строка матчится по (id, version).
// Если ни одна строка не подошла — domain.ErrNoMatch; вызывающий
// перечитывает запись, чтобы отличить "не найдено" от конфликта версий.
// При успехе version становится expectedVersion + 1.
func (r *EntityRepository) Update(ctx context.Context, entityID string, patch *domain.EntityPatch, expectedVersion int) (*domain.Entity, error) {
	query := `
        UPDATE entities
        SET name = COALESCE($3, name),
            status = COALESCE($4, status),
            location = COALESCE($5, location),
            contact = COALESCE($6, contact),
            tags = COALESCE($7, tags),
            version = version + 1,
            updated_at = CURRENT_TIMESTAMP
        WHERE entity_id = $1 AND version = $2
        RETURNING *`

	var entity domain.Entity
	err := r.db.GetContext(
		ctx,
		&entity,
		query,
		entityID,
		expectedVersion,
		patch.Name,
		patch.Status,
		patch.Location,
		patch.Contact,
		patch.Tags,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNoMatch
		}
		return nil, fmt.Errorf("failed to update entity: %w", err)
	}

	return &entity, nil
}

// SoftDelete помечает сущность удаленной, версия растет как при обновлении
func (r *EntityRepository) SoftDelete(ctx context.Context, entityID string) error {
	query := `
        UPDATE entities
        SET status = 'deleted',
            version = version + 1,
            updated_at = CURRENT_TIMESTAMP
        WHERE entity_id = $1`

	result, err := r.db.ExecContext(ctx, query, entityID)
	if err != nil {
		return fmt.Errorf("failed to soft delete entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// HardDelete необратимо удаляет строку
func (r *EntityRepository) HardDelete(ctx context.Context, entityID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM entities WHERE entity_id = $1`, entityID)
	if err != nil {
		return fmt.Errorf("failed to delete entity: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}

// ListUpdatedSince — лента изменений: все записи с updated_at позже
// водяного знака, опционально ограниченные списком идентификаторов.
// since == nil означает полную выборку.
func (r *EntityRepository) ListUpdatedSince(ctx context.Context, since *time.Time, ids []string) ([]domain.Entity, error) {
	query := `
        SELECT * FROM entities
        WHERE ($1::timestamptz IS NULL OR updated_at > $1)
        AND ($2::text[] IS NULL OR entity_id = ANY($2))
        ORDER BY updated_at`

	var entities []domain.Entity
	err := r.db.SelectContext(ctx, &entities, query, since, pq.StringArray(ids))
	if err != nil {
		return nil, fmt.Errorf("failed to list entities: %w", err)
	}

	return entities, nil
}

// AppendMetadata дописывает запись в журнал метаданных. Версию не трогает
// намеренно: обогащение не должно ронять параллельный CAS куратора.
func (r *EntityRepository) AppendMetadata(ctx context.Context, entityID string, entry domain.MetadataEntry) error {
	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("failed to marshal metadata entry: %w", err)
	}

	query := `
        UPDATE entities
        SET metadata = metadata || $2::jsonb,
            updated_at = CURRENT_TIMESTAMP
        WHERE entity_id = $1`

	result, err := r.db.ExecContext(ctx, query, entityID, data)
	if err != nil {
		return fmt.Errorf("failed to append metadata: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get affected rows: %w", err)
	}

	if rows == 0 {
		return domain.ErrNotFound
	}

	return nil
}
