package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"curasync/internal/domain"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

type CurationRepository struct {
	db *sqlx.DB
}

func NewCurationRepository(db *sqlx.DB) *CurationRepository {
	return &CurationRepository{db: db}
}

// Create строго вставляет курацию с version = 1. В отличие от сущностей
// дубликаты не домерживаются никогда.
func (r *CurationRepository) Create(ctx context.Context, curation *domain.Curation) error {
	query := `
        INSERT INTO curations (curation_id, entity_id, curator_id, version, is_deleted, category, rating, notes, content)
        VALUES ($1, $2, $3, 1, false, $4, $5, $6, $7)
        RETURNING version, is_deleted, created_at, updated_at`

	err := r.db.QueryRowContext(
		ctx,
		query,
		curation.CurationID,
		curation.EntityID,
		curation.CuratorID,
		curation.Category,
		curation.Rating,
		curation.Notes,
		curation.Content,
	).Scan(&curation.Version, &curation.IsDeleted, &curation.CreatedAt, &curation.UpdatedAt)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == "23505" {
			return domain.ErrAlreadyExists
		}
		return fmt.Errorf("failed to create curation: %w", err)
	}

	return nil
}

func (r *CurationRepository) GetByID(ctx context.Context, curationID string) (*domain.Curation, error) {
	var curation domain.Curation
	query := `SELECT * FROM curations WHERE curation_id = $1`

	err := r.db.GetContext(ctx, &curation, query, curationID)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("failed to get curation: %w", err)
	}

	return &curation, nil
}

// Update — та же условная запись, что и у сущностей: матч по (id, version),
// при промахе domain.ErrNoMatch
func (r *CurationRepository) Update(ctx context.Context, curationID string, patch *domain.CurationPatch, expectedVersion int) (*domain.Curation, error) {
	query := `
        UPDATE curations
        SET category = COALESCE($3, category),
            rating = COALESCE($4, rating),
            notes = COALESCE($5, notes),
            content = COALESCE($6, content),
            version = version + 1,
            updated_at = CURRENT_TIMESTAMP
        WHERE curation_id = $1 AND version = $2
        RETURNING *`

	var curation domain.Curation
	err := r.db.GetContext(
		ctx,
		&curation,
		query,
		curationID,
		expectedVersion,
		patch.Category,
		patch.Rating,
		patch.Notes,
		patch.Content,
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, domain.ErrNoMatch
		}
		return nil, fmt.Errorf("failed to update curation: %w", err)
	}

	return &curation, nil
}

func (r *CurationRepository) SoftDelete(ctx context.Context, curationID string) error {
	query := `
        UPDATE curations
        SET is_deleted = true,
            version = version + 1,
            updated_at = CURRENT_TIMESTAMP
        WHERE curation_id = $1`

	result, err := r.db.ExecContext(ctx, query, curationID)
	if err != nil {
		return fmt.Errorf("failed to soft delete curation: %w", err)
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

func (r *CurationRepository) HardDelete(ctx context.Context, curationID string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM curations WHERE curation_id = $1`, curationID)
	if err != nil {
		return fmt.Errorf("failed to delete curation: %w", err)
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

// ListUpdatedSince — лента изменений кураций. entityIDs ограничивает выдачу
// курациями своих сущностей: курации чужих сущностей не возвращаются, даже
// если сами менялись.
func (r *CurationRepository) ListUpdatedSince(ctx context.Context, since *time.Time, entityIDs []string) ([]domain.Curation, error) {
	query := `
        SELECT * FROM curations
        WHERE ($1::timestamptz IS NULL OR updated_at > $1)
        AND ($2::text[] IS NULL OR entity_id = ANY($2))
        ORDER BY updated_at`

	var curations []domain.Curation
	err := r.db.SelectContext(ctx, &curations, query, since, pq.StringArray(entityIDs))
	if err != nil {
		return nil, fmt.Errorf("failed to list curations: %w", err)
	}

	return curations, nil
}

func (r *CurationRepository) ListByEntity(ctx context.Context, entityID string) ([]domain.Curation, error) {
	query := `
        SELECT * FROM curations
        WHERE entity_id = $1 AND is_deleted = false
        ORDER BY created_at`

	var curations []domain.Curation
	err := r.db.SelectContext(ctx, &curations, query, entityID)
	if err != nil {
		return nil, fmt.Errorf("failed to list curations by entity: %w", err)
	}

	return curations, nil
}
